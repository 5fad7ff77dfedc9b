package dashboard

import (
	"time"

	"fleet-backend/internal/dates"
	"fleet-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"

	maxPoints = 120
)

type ChartPoint struct {
	Label     string  `json:"label"` // day, week start (Monday) or month start
	Revenue   float64 `json:"revenue"`
	Cost      float64 `json:"cost"`
	NetIncome float64 `json:"net_income"`
	Entries   int     `json:"entries"`
}

type ChartTotals struct {
	Revenue   float64 `json:"revenue"`
	Cost      float64 `json:"cost"`
	NetIncome float64 `json:"net_income"`
	Entries   int     `json:"entries"`
}

type ChartResponse struct {
	Period      string       `json:"period"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	VehicleID   uint         `json:"vehicle_id,omitempty"`
	Points      []ChartPoint `json:"points"`
	GrandTotals ChartTotals  `json:"grand_totals"`
}

var now = time.Now

func defaultCount(period string) int {
	switch period {
	case PeriodWeekly:
		return 8
	case PeriodMonthly:
		return 12
	default:
		return 7
	}
}

// bucketStart maps a day to the first day of its period.
func bucketStart(period string, day time.Time) time.Time {
	y, m, d := day.Date()
	switch period {
	case PeriodWeekly:
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
}

func step(period string, t time.Time, n int) time.Time {
	switch period {
	case PeriodWeekly:
		return t.AddDate(0, 0, 7*n)
	case PeriodMonthly:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Window returns the first day of the oldest bucket, the last day of the
// newest bucket and every bucket start, oldest first. The newest bucket is
// the one containing today.
func Window(period string, count int, today time.Time) (time.Time, time.Time, []time.Time) {
	last := bucketStart(period, today)
	first := step(period, last, -(count - 1))

	buckets := make([]time.Time, 0, count)
	for b := first; !b.After(last); b = step(period, b, 1) {
		buckets = append(buckets, b)
	}
	return first, step(period, last, 1).AddDate(0, 0, -1), buckets
}

type bucketAgg struct {
	revenue   decimal.Decimal
	cost      decimal.Decimal
	netIncome decimal.Decimal
	entries   int
}

// BuildChart folds income rows into one point per bucket. Buckets without
// income are kept as zero points so the series has no gaps.
func BuildChart(period string, buckets []time.Time, rows []models.Income) ([]ChartPoint, ChartTotals) {
	aggs := make(map[time.Time]*bucketAgg, len(buckets))
	for _, b := range buckets {
		aggs[b] = &bucketAgg{}
	}

	for _, r := range rows {
		day, err := dates.Parse(r.Date)
		if err != nil {
			continue
		}
		agg, ok := aggs[bucketStart(period, day)]
		if !ok {
			continue
		}
		agg.revenue = agg.revenue.Add(r.Revenue)
		agg.cost = agg.cost.Add(r.Cost)
		agg.netIncome = agg.netIncome.Add(r.NetIncome)
		agg.entries++
	}

	points := make([]ChartPoint, 0, len(buckets))
	var grand bucketAgg
	for _, b := range buckets {
		agg := aggs[b]
		points = append(points, ChartPoint{
			Label:     dates.Format(b),
			Revenue:   agg.revenue.InexactFloat64(),
			Cost:      agg.cost.InexactFloat64(),
			NetIncome: agg.netIncome.InexactFloat64(),
			Entries:   agg.entries,
		})
		grand.revenue = grand.revenue.Add(agg.revenue)
		grand.cost = grand.cost.Add(agg.cost)
		grand.netIncome = grand.netIncome.Add(agg.netIncome)
		grand.entries += agg.entries
	}

	return points, ChartTotals{
		Revenue:   grand.revenue.InexactFloat64(),
		Cost:      grand.cost.InexactFloat64(),
		NetIncome: grand.netIncome.InexactFloat64(),
		Entries:   grand.entries,
	}
}

// GET /api/dashboard/revenue-chart?period=daily&count=7&vehicle_id=3
func RevenueChartHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		period := c.Query("period", PeriodDaily)
		switch period {
		case PeriodDaily, PeriodWeekly, PeriodMonthly:
		default:
			return fiber.NewError(fiber.StatusBadRequest, "period must be daily|weekly|monthly")
		}

		count := c.QueryInt("count", defaultCount(period))
		if count <= 0 || count > maxPoints {
			return fiber.NewError(fiber.StatusBadRequest, "count is invalid")
		}
		vehicleID := c.QueryInt("vehicle_id", 0)
		if vehicleID < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "vehicle_id is invalid")
		}

		start, end, buckets := Window(period, count, now())
		from, to := dates.Format(start), dates.Format(end)

		dbq := db.WithContext(c.UserContext()).
			Model(&models.Income{}).
			Select("date", "revenue", "cost", "net_income").
			Where("date >= ? AND date <= ?", from, to)
		if vehicleID > 0 {
			dbq = dbq.Where("vehicle_id = ?", vehicleID)
		}

		var rows []models.Income
		if err := dbq.Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load chart data")
		}

		points, totals := BuildChart(period, buckets, rows)
		return c.JSON(ChartResponse{
			Period:      period,
			From:        from,
			To:          to,
			VehicleID:   uint(vehicleID),
			Points:      points,
			GrandTotals: totals,
		})
	}
}
