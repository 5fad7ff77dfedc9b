package statistics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"fleet-backend/internal/amount"
	"fleet-backend/internal/dates"
	"fleet-backend/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound    = errors.New("statistics not found")
	ErrInvalidDate = errors.New("invalid date")
)

// IncomeReader returns the income rows recorded for one day.
type IncomeReader interface {
	FindByDate(ctx context.Context, date string) ([]models.Income, error)
}

// VehicleCounter counts the vehicles currently in service.
type VehicleCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// Store persists one DailyStatistics row per date.
type Store interface {
	// Upsert inserts or overwrites the row for stat.Date and returns the stored row.
	Upsert(ctx context.Context, stat models.DailyStatistics) (models.DailyStatistics, error)
	FindByDate(ctx context.Context, date string) (models.DailyStatistics, error)
	// FindByDateRange returns rows with start <= date <= end, latest first.
	FindByDateRange(ctx context.Context, start, end string) ([]models.DailyStatistics, error)
}

type Params struct {
	Incomes  IncomeReader
	Vehicles VehicleCounter
	Store    Store
	Log      *zap.Logger
}

type Service struct {
	incomes  IncomeReader
	vehicles VehicleCounter
	store    Store
	log      *zap.Logger
}

func NewService(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		incomes:  p.Incomes,
		vehicles: p.Vehicles,
		store:    p.Store,
		log:      log.Named("statistics"),
	}
}

// CalculateAndUpdate recomputes the figures for date from the income rows and
// the current active fleet, then upserts them. The date string is passed to
// the store as is; a malformed date simply matches no income.
func (s *Service) CalculateAndUpdate(ctx context.Context, date string) (models.DailyStatistics, error) {
	incomes, err := s.incomes.FindByDate(ctx, date)
	if err != nil {
		return models.DailyStatistics{}, fmt.Errorf("load incomes for %s: %w", date, err)
	}

	totalRevenue := decimal.Zero
	totalNetIncome := decimal.Zero
	for _, in := range incomes {
		totalRevenue = totalRevenue.Add(in.Revenue)
		totalNetIncome = totalNetIncome.Add(in.NetIncome)
	}

	// Averages are over the fleet as it is now, not as it was on date.
	fleetSize, err := s.vehicles.CountActive(ctx)
	if err != nil {
		return models.DailyStatistics{}, fmt.Errorf("count active vehicles: %w", err)
	}

	averageRevenue := decimal.Zero
	averageNetIncome := decimal.Zero
	if fleetSize > 0 {
		n := decimal.NewFromInt(fleetSize)
		averageRevenue = amount.Truncate(totalRevenue.Div(n))
		averageNetIncome = amount.Truncate(totalNetIncome.Div(n))
	}

	stat, err := s.store.Upsert(ctx, models.DailyStatistics{
		Date:             date,
		TotalRevenue:     amount.Truncate(totalRevenue),
		TotalNetIncome:   amount.Truncate(totalNetIncome),
		VehicleCount:     len(incomes),
		AverageRevenue:   averageRevenue,
		AverageNetIncome: averageNetIncome,
	})
	if err != nil {
		return models.DailyStatistics{}, fmt.Errorf("save statistics for %s: %w", date, err)
	}

	s.log.Debug("daily statistics updated",
		zap.String("date", date),
		zap.Int("entries", len(incomes)),
		zap.Int64("active_vehicles", fleetSize),
		zap.String("total_revenue", stat.TotalRevenue.String()),
	)
	return stat, nil
}

// Recalculate is CalculateAndUpdate under the name used for manual repairs.
func (s *Service) Recalculate(ctx context.Context, date string) (models.DailyStatistics, error) {
	return s.CalculateAndUpdate(ctx, date)
}

// GetByDate returns ErrNotFound when the date was never computed.
func (s *Service) GetByDate(ctx context.Context, date string) (models.DailyStatistics, error) {
	return s.store.FindByDate(ctx, date)
}

// GetByDateRange returns the stored rows in [start, end], latest first.
// A reversed range yields nothing.
func (s *Service) GetByDateRange(ctx context.Context, start, end string) ([]models.DailyStatistics, error) {
	return s.store.FindByDateRange(ctx, start, end)
}

// BatchRecalculate recomputes every day from start to end inclusive, oldest
// first, and returns how many days were written. Each day is its own upsert:
// on failure the days already processed stay committed and their count is
// returned with the error.
func (s *Service) BatchRecalculate(ctx context.Context, start, end string) (int, error) {
	from, err := dates.Parse(start)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	to, err := dates.Parse(end)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}

	processed := 0
	for day := range dates.Days(from, to) {
		if _, err := s.CalculateAndUpdate(ctx, dates.Format(day)); err != nil {
			return processed, err
		}
		processed++
	}

	s.log.Info("batch recalculation finished",
		zap.String("start", start),
		zap.String("end", end),
		zap.Int("processed", processed),
	)
	return processed, nil
}

type MonthlySummary struct {
	Year                  int
	Month                 int
	Days                  int
	IncomeEntries         int
	TotalRevenue          decimal.Decimal
	TotalNetIncome        decimal.Decimal
	AverageDailyRevenue   decimal.Decimal
	AverageDailyNetIncome decimal.Decimal
	Daily                 []models.DailyStatistics // ascending by date
}

// MonthlySummary rolls up the stored daily rows of one month. Days that were
// never computed do not count toward the daily averages.
func (s *Service) MonthlySummary(ctx context.Context, year, month int) (MonthlySummary, error) {
	if month < 1 || month > 12 || year < 1 {
		return MonthlySummary{}, fmt.Errorf("%w: %04d-%02d", ErrInvalidDate, year, month)
	}

	first, last := dates.MonthBounds(year, time.Month(month))
	rows, err := s.store.FindByDateRange(ctx, dates.Format(first), dates.Format(last))
	if err != nil {
		return MonthlySummary{}, fmt.Errorf("load month %04d-%02d: %w", year, month, err)
	}
	slices.Reverse(rows)

	sum := MonthlySummary{
		Year:                  year,
		Month:                 month,
		Days:                  len(rows),
		TotalRevenue:          decimal.Zero,
		TotalNetIncome:        decimal.Zero,
		AverageDailyRevenue:   decimal.Zero,
		AverageDailyNetIncome: decimal.Zero,
		Daily:                 rows,
	}
	for _, r := range rows {
		sum.TotalRevenue = sum.TotalRevenue.Add(r.TotalRevenue)
		sum.TotalNetIncome = sum.TotalNetIncome.Add(r.TotalNetIncome)
		sum.IncomeEntries += r.VehicleCount
	}
	if sum.Days > 0 {
		n := decimal.NewFromInt(int64(sum.Days))
		sum.AverageDailyRevenue = amount.Truncate(sum.TotalRevenue.Div(n))
		sum.AverageDailyNetIncome = amount.Truncate(sum.TotalNetIncome.Div(n))
	}
	return sum, nil
}
