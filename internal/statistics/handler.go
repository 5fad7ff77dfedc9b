package statistics

import (
	"errors"
	"fmt"

	"fleet-backend/internal/audit"
	"fleet-backend/internal/dates"
	"fleet-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type DailyResponse struct {
	Date             string  `json:"date"`
	TotalRevenue     float64 `json:"total_revenue"`
	TotalNetIncome   float64 `json:"total_net_income"`
	VehicleCount     int     `json:"vehicle_count"`
	AverageRevenue   float64 `json:"average_revenue"`
	AverageNetIncome float64 `json:"average_net_income"`
	UpdatedAt        string  `json:"updated_at"`
}

type MonthlyResponse struct {
	Year                  int             `json:"year"`
	Month                 int             `json:"month"`
	Days                  int             `json:"days"`
	IncomeEntries         int             `json:"income_entries"`
	TotalRevenue          float64         `json:"total_revenue"`
	TotalNetIncome        float64         `json:"total_net_income"`
	AverageDailyRevenue   float64         `json:"average_daily_revenue"`
	AverageDailyNetIncome float64         `json:"average_daily_net_income"`
	Daily                 []DailyResponse `json:"daily"`
}

type BatchRecalculateRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Upper bound on days per batch request; longer repairs are split by the caller.
const maxBatchDays = 366

func NewDailyResponse(s *models.DailyStatistics) DailyResponse {
	return DailyResponse{
		Date:             s.Date,
		TotalRevenue:     s.TotalRevenue.InexactFloat64(),
		TotalNetIncome:   s.TotalNetIncome.InexactFloat64(),
		VehicleCount:     s.VehicleCount,
		AverageRevenue:   s.AverageRevenue.InexactFloat64(),
		AverageNetIncome: s.AverageNetIncome.InexactFloat64(),
		UpdatedAt:        s.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func newDailyResponses(rows []models.DailyStatistics) []DailyResponse {
	resp := make([]DailyResponse, 0, len(rows))
	for i := range rows {
		resp = append(resp, NewDailyResponse(&rows[i]))
	}
	return resp
}

func rangeFromQuery(c *fiber.Ctx) (string, string, error) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" || to == "" {
		return "", "", fiber.NewError(fiber.StatusBadRequest, "from and to are required")
	}
	if _, err := dates.Parse(from); err != nil {
		return "", "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if _, err := dates.Parse(to); err != nil {
		return "", "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return from, to, nil
}

// -------------------------------------------------
// GET /api/statistics/daily/:date
// -------------------------------------------------
func GetDailyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stat, err := svc.GetByDate(c.UserContext(), c.Params("date"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "No statistics for this date")
		}
		if err != nil {
			return err
		}
		return c.JSON(NewDailyResponse(&stat))
	}
}

// -------------------------------------------------
// GET /api/statistics?from=2024-01-01&to=2024-01-31
// Latest day first.
// -------------------------------------------------
func ListRangeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, to, err := rangeFromQuery(c)
		if err != nil {
			return err
		}
		rows, err := svc.GetByDateRange(c.UserContext(), from, to)
		if err != nil {
			return err
		}
		return c.JSON(newDailyResponses(rows))
	}
}

// -------------------------------------------------
// GET /api/statistics/monthly?year=2024&month=1
// -------------------------------------------------
func MonthlyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		year := c.QueryInt("year", 0)
		month := c.QueryInt("month", 0)
		if year < 2000 {
			return fiber.NewError(fiber.StatusBadRequest, "year is invalid")
		}
		if month < 1 || month > 12 {
			return fiber.NewError(fiber.StatusBadRequest, "month is invalid")
		}

		sum, err := svc.MonthlySummary(c.UserContext(), year, month)
		if err != nil {
			return err
		}

		return c.JSON(MonthlyResponse{
			Year:                  sum.Year,
			Month:                 sum.Month,
			Days:                  sum.Days,
			IncomeEntries:         sum.IncomeEntries,
			TotalRevenue:          sum.TotalRevenue.InexactFloat64(),
			TotalNetIncome:        sum.TotalNetIncome.InexactFloat64(),
			AverageDailyRevenue:   sum.AverageDailyRevenue.InexactFloat64(),
			AverageDailyNetIncome: sum.AverageDailyNetIncome.InexactFloat64(),
			Daily:                 newDailyResponses(sum.Daily),
		})
	}
}

// -------------------------------------------------
// POST /api/statistics/daily/:date/recalculate
// -------------------------------------------------
func RecalculateHandler(svc *Service, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		date := c.Params("date")
		if _, err := dates.Parse(date); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		stat, err := svc.Recalculate(c.UserContext(), date)
		if err != nil {
			return err
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "daily_statistics",
			EntityID:    stat.ID,
			Action:      models.AuditActionRecalculate,
			Description: fmt.Sprintf("Statistics recalculated: %s", date),
			After:       NewDailyResponse(&stat),
		})

		return c.JSON(NewDailyResponse(&stat))
	}
}

// -------------------------------------------------
// POST /api/statistics/recalculate
// {"start_date": "2024-01-01", "end_date": "2024-01-31"}
// -------------------------------------------------
func BatchRecalculateHandler(svc *Service, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BatchRecalculateRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		start, err := dates.Parse(body.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		end, err := dates.Parse(body.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if end.Sub(start).Hours()/24 >= maxBatchDays {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("range is limited to %d days", maxBatchDays))
		}

		processed, err := svc.BatchRecalculate(c.UserContext(), body.StartDate, body.EndDate)
		if err != nil {
			return err
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "daily_statistics",
			Action:      models.AuditActionRecalculate,
			Description: fmt.Sprintf("Statistics recalculated: %s .. %s (%d days)", body.StartDate, body.EndDate, processed),
		})

		return c.JSON(fiber.Map{
			"start_date": body.StartDate,
			"end_date":   body.EndDate,
			"processed":  processed,
		})
	}
}
