package statistics

import (
	"context"
	"errors"
	"sort"
	"testing"

	"fleet-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIncomes struct {
	byDate map[string][]models.Income
	err    error
	calls  []string
}

func (f *fakeIncomes) FindByDate(_ context.Context, date string) ([]models.Income, error) {
	f.calls = append(f.calls, date)
	if f.err != nil {
		return nil, f.err
	}
	return f.byDate[date], nil
}

func (f *fakeIncomes) add(date string, revenue, net string) {
	if f.byDate == nil {
		f.byDate = map[string][]models.Income{}
	}
	f.byDate[date] = append(f.byDate[date], models.Income{
		Date:      date,
		VehicleID: uint(len(f.byDate[date]) + 1),
		Revenue:   decimal.RequireFromString(revenue),
		NetIncome: decimal.RequireFromString(net),
	})
}

type fakeVehicles struct {
	active int64
	err    error
}

func (f *fakeVehicles) CountActive(context.Context) (int64, error) {
	return f.active, f.err
}

type fakeStore struct {
	rows    map[string]models.DailyStatistics
	nextID  uint
	failOn  string
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]models.DailyStatistics{}}
}

func (f *fakeStore) Upsert(_ context.Context, stat models.DailyStatistics) (models.DailyStatistics, error) {
	if stat.Date == f.failOn {
		return models.DailyStatistics{}, errors.New("store unavailable")
	}
	f.upserts++
	if existing, ok := f.rows[stat.Date]; ok {
		stat.ID = existing.ID
	} else {
		f.nextID++
		stat.ID = f.nextID
	}
	f.rows[stat.Date] = stat
	return stat, nil
}

func (f *fakeStore) FindByDate(_ context.Context, date string) (models.DailyStatistics, error) {
	row, ok := f.rows[date]
	if !ok {
		return models.DailyStatistics{}, ErrNotFound
	}
	return row, nil
}

func (f *fakeStore) FindByDateRange(_ context.Context, start, end string) ([]models.DailyStatistics, error) {
	out := make([]models.DailyStatistics, 0)
	for d, row := range f.rows {
		if d >= start && d <= end {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func newTestService(incomes *fakeIncomes, vehicles *fakeVehicles, store *fakeStore) *Service {
	return NewService(Params{Incomes: incomes, Vehicles: vehicles, Store: store})
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "%s = %s, want %s", field, got, want)
}

func TestCalculateAndUpdateEmptyDay(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&fakeIncomes{}, &fakeVehicles{}, store)

	stat, err := svc.CalculateAndUpdate(context.Background(), "2024-01-01")
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", stat.Date)
	assertAmount(t, "0", stat.TotalRevenue, "total_revenue")
	assertAmount(t, "0", stat.TotalNetIncome, "total_net_income")
	assert.Equal(t, 0, stat.VehicleCount)
	assertAmount(t, "0", stat.AverageRevenue, "average_revenue")
	assertAmount(t, "0", stat.AverageNetIncome, "average_net_income")
	assert.Len(t, store.rows, 1)
}

func TestCalculateAndUpdateAveragesOverActiveFleet(t *testing.T) {
	incomes := &fakeIncomes{}
	incomes.add("2024-01-01", "100", "60")
	incomes.add("2024-01-01", "50", "20")
	svc := newTestService(incomes, &fakeVehicles{active: 3}, newFakeStore())

	stat, err := svc.CalculateAndUpdate(context.Background(), "2024-01-01")
	require.NoError(t, err)

	assertAmount(t, "150", stat.TotalRevenue, "total_revenue")
	assertAmount(t, "80", stat.TotalNetIncome, "total_net_income")
	assert.Equal(t, 2, stat.VehicleCount)
	assertAmount(t, "50", stat.AverageRevenue, "average_revenue")
	// 80 / 3 = 26.666...
	assertAmount(t, "26.6", stat.AverageNetIncome, "average_net_income")
}

func TestCalculateAndUpdateFloorsNegativeAmounts(t *testing.T) {
	incomes := &fakeIncomes{}
	incomes.add("2024-02-01", "10.05", "-1.27")
	incomes.add("2024-02-01", "0", "-0.02")
	svc := newTestService(incomes, &fakeVehicles{active: 2}, newFakeStore())

	stat, err := svc.CalculateAndUpdate(context.Background(), "2024-02-01")
	require.NoError(t, err)

	assertAmount(t, "10", stat.TotalRevenue, "total_revenue")
	// -1.29 floors to -1.3, not -1.2
	assertAmount(t, "-1.3", stat.TotalNetIncome, "total_net_income")
	// 10.05 / 2 = 5.025
	assertAmount(t, "5", stat.AverageRevenue, "average_revenue")
	// -1.29 / 2 = -0.645
	assertAmount(t, "-0.7", stat.AverageNetIncome, "average_net_income")
}

func TestCalculateAndUpdateNoActiveVehiclesSkipsDivision(t *testing.T) {
	incomes := &fakeIncomes{}
	incomes.add("2024-01-05", "120.55", "40.99")
	svc := newTestService(incomes, &fakeVehicles{active: 0}, newFakeStore())

	stat, err := svc.CalculateAndUpdate(context.Background(), "2024-01-05")
	require.NoError(t, err)

	assertAmount(t, "120.5", stat.TotalRevenue, "total_revenue")
	assertAmount(t, "40.9", stat.TotalNetIncome, "total_net_income")
	assert.Equal(t, 1, stat.VehicleCount)
	assertAmount(t, "0", stat.AverageRevenue, "average_revenue")
	assertAmount(t, "0", stat.AverageNetIncome, "average_net_income")
}

func TestCalculateAndUpdateOverwritesSameDate(t *testing.T) {
	incomes := &fakeIncomes{}
	incomes.add("2024-01-01", "100", "100")
	store := newFakeStore()
	svc := newTestService(incomes, &fakeVehicles{active: 1}, store)
	ctx := context.Background()

	first, err := svc.CalculateAndUpdate(ctx, "2024-01-01")
	require.NoError(t, err)

	incomes.add("2024-01-01", "40", "10")
	second, err := svc.CalculateAndUpdate(ctx, "2024-01-01")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.rows, 1)
	assertAmount(t, "140", store.rows["2024-01-01"].TotalRevenue, "total_revenue")
	assert.Equal(t, 2, store.rows["2024-01-01"].VehicleCount)
}

func TestCalculateAndUpdatePassesMalformedDateThrough(t *testing.T) {
	incomes := &fakeIncomes{}
	store := newFakeStore()
	svc := newTestService(incomes, &fakeVehicles{active: 4}, store)

	stat, err := svc.CalculateAndUpdate(context.Background(), "not-a-date")
	require.NoError(t, err)
	assert.Equal(t, []string{"not-a-date"}, incomes.calls)
	assert.Equal(t, 0, stat.VehicleCount)
}

func TestCalculateAndUpdatePropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newTestService(&fakeIncomes{err: errors.New("boom")}, &fakeVehicles{}, newFakeStore()).
		CalculateAndUpdate(ctx, "2024-01-01")
	assert.ErrorContains(t, err, "boom")

	_, err = newTestService(&fakeIncomes{}, &fakeVehicles{err: errors.New("count failed")}, newFakeStore()).
		CalculateAndUpdate(ctx, "2024-01-01")
	assert.ErrorContains(t, err, "count failed")

	store := newFakeStore()
	store.failOn = "2024-01-01"
	_, err = newTestService(&fakeIncomes{}, &fakeVehicles{}, store).CalculateAndUpdate(ctx, "2024-01-01")
	assert.ErrorContains(t, err, "store unavailable")
}

func TestRecalculateMatchesCalculateAndUpdate(t *testing.T) {
	incomes := &fakeIncomes{}
	incomes.add("2024-03-03", "33.33", "11.11")
	store := newFakeStore()
	svc := newTestService(incomes, &fakeVehicles{active: 1}, store)

	got, err := svc.Recalculate(context.Background(), "2024-03-03")
	require.NoError(t, err)
	assertAmount(t, "33.3", got.TotalRevenue, "total_revenue")
	assert.Equal(t, 1, store.upserts)
}

func TestGetByDate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&fakeIncomes{}, &fakeVehicles{}, store)
	ctx := context.Background()

	_, err := svc.GetByDate(ctx, "2024-01-01")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CalculateAndUpdate(ctx, "2024-01-01")
	require.NoError(t, err)

	got, err := svc.GetByDate(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", got.Date)
	assert.Equal(t, 1, store.upserts)
}

func TestGetByDateRangeLatestFirst(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&fakeIncomes{}, &fakeVehicles{}, store)
	ctx := context.Background()

	for _, d := range []string{"2024-01-02", "2023-12-31", "2024-01-01", "2024-01-03", "2024-01-04"} {
		_, err := svc.CalculateAndUpdate(ctx, d)
		require.NoError(t, err)
	}

	rows, err := svc.GetByDateRange(ctx, "2024-01-01", "2024-01-03")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-01-03", rows[0].Date)
	assert.Equal(t, "2024-01-02", rows[1].Date)
	assert.Equal(t, "2024-01-01", rows[2].Date)

	rows, err = svc.GetByDateRange(ctx, "2024-01-03", "2024-01-01")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBatchRecalculate(t *testing.T) {
	incomes := &fakeIncomes{}
	store := newFakeStore()
	svc := newTestService(incomes, &fakeVehicles{active: 2}, store)
	ctx := context.Background()

	n, err := svc.BatchRecalculate(ctx, "2024-01-01", "2024-01-03")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, incomes.calls)
	assert.Len(t, store.rows, 3)

	n, err = svc.BatchRecalculate(ctx, "2024-01-03", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, incomes.calls, 3)
}

func TestBatchRecalculateStopsAtFirstFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn = "2024-01-03"
	svc := newTestService(&fakeIncomes{}, &fakeVehicles{}, store)

	n, err := svc.BatchRecalculate(context.Background(), "2024-01-01", "2024-01-05")
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, store.rows, "2024-01-01")
	assert.Contains(t, store.rows, "2024-01-02")
	assert.NotContains(t, store.rows, "2024-01-04")
}

func TestBatchRecalculateRejectsUnparseableBounds(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&fakeIncomes{}, &fakeVehicles{}, store)

	_, err := svc.BatchRecalculate(context.Background(), "2024-01-01", "soon")
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Empty(t, store.rows)
}

func TestMonthlySummary(t *testing.T) {
	incomes := &fakeIncomes{}
	incomes.add("2024-02-01", "100", "50")
	incomes.add("2024-02-01", "20", "-10")
	incomes.add("2024-02-15", "45.55", "5.55")
	incomes.add("2024-03-01", "999", "999")
	svc := newTestService(incomes, &fakeVehicles{active: 2}, newFakeStore())
	ctx := context.Background()

	for _, d := range []string{"2024-02-01", "2024-02-15", "2024-03-01"} {
		_, err := svc.CalculateAndUpdate(ctx, d)
		require.NoError(t, err)
	}

	sum, err := svc.MonthlySummary(ctx, 2024, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Days)
	assert.Equal(t, 3, sum.IncomeEntries)
	assertAmount(t, "165.5", sum.TotalRevenue, "total_revenue")
	assertAmount(t, "45.5", sum.TotalNetIncome, "total_net_income")
	assertAmount(t, "82.7", sum.AverageDailyRevenue, "average_daily_revenue")
	assertAmount(t, "22.7", sum.AverageDailyNetIncome, "average_daily_net_income")
	require.Len(t, sum.Daily, 2)
	assert.Equal(t, "2024-02-01", sum.Daily[0].Date)
	assert.Equal(t, "2024-02-15", sum.Daily[1].Date)
}

func TestMonthlySummaryEmptyAndInvalid(t *testing.T) {
	svc := newTestService(&fakeIncomes{}, &fakeVehicles{}, newFakeStore())
	ctx := context.Background()

	sum, err := svc.MonthlySummary(ctx, 2024, 6)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Days)
	assertAmount(t, "0", sum.AverageDailyRevenue, "average_daily_revenue")

	_, err = svc.MonthlySummary(ctx, 2024, 13)
	assert.ErrorIs(t, err, ErrInvalidDate)
}
