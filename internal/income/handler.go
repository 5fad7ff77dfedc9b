package income

import (
	"errors"
	"fmt"
	"strings"

	"fleet-backend/internal/audit"
	"fleet-backend/internal/auth"
	"fleet-backend/internal/dates"
	"fleet-backend/internal/models"
	"fleet-backend/internal/statistics"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateIncomeRequest struct {
	Date      string          `json:"date"` // "2025-12-09"; empty means today
	VehicleID uint            `json:"vehicle_id"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Note      string          `json:"note"`
}

type IncomeResponse struct {
	ID          uint    `json:"id"`
	Date        string  `json:"date"`
	VehicleID   uint    `json:"vehicle_id"`
	PlateNumber string  `json:"plate_number,omitempty"`
	Revenue     float64 `json:"revenue"`
	Cost        float64 `json:"cost"`
	NetIncome   float64 `json:"net_income"`
	Note        string  `json:"note"`
}

type SaveIncomeResponse struct {
	Income     IncomeResponse           `json:"income"`
	Created    bool                     `json:"created"`
	Statistics statistics.DailyResponse `json:"statistics"`
}

func toResponse(in *models.Income) IncomeResponse {
	resp := IncomeResponse{
		ID:        in.ID,
		Date:      in.Date,
		VehicleID: in.VehicleID,
		Revenue:   in.Revenue.InexactFloat64(),
		Cost:      in.Cost.InexactFloat64(),
		NetIncome: in.NetIncome.InexactFloat64(),
		Note:      in.Note,
	}
	if in.Vehicle != nil {
		resp.PlateNumber = in.Vehicle.PlateNumber
	}
	return resp
}

// -------------------------------------------------
// POST /api/incomes
// Saving again for the same date and vehicle overwrites the earlier entry.
// -------------------------------------------------
func CreateIncomeHandler(db *gorm.DB, stats Recalculator, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateIncomeRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		date := strings.TrimSpace(body.Date)
		if date == "" {
			date = dates.Today()
		}

		actor, _ := auth.CurrentActor(c)
		ctx := c.UserContext()

		var before *models.Income
		var existing models.Income
		if err := db.WithContext(ctx).Where("date = ? AND vehicle_id = ?", date, body.VehicleID).First(&existing).Error; err == nil {
			before = &existing
		}

		saved, created, err := Save(ctx, db, Entry{
			Date:      date,
			VehicleID: body.VehicleID,
			Revenue:   body.Revenue,
			Cost:      body.Cost,
			Note:      strings.TrimSpace(body.Note),
			CreatedBy: actor.ID,
		})
		if err != nil {
			return err
		}

		stat, err := stats.CalculateAndUpdate(ctx, date)
		if err != nil {
			return err
		}

		opts := audit.LogOptions{
			EntityType:  "income",
			EntityID:    saved.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Income saved: vehicle #%d, %s, %s", saved.VehicleID, saved.Date, saved.Revenue.StringFixed(2)),
			After:       toResponse(&saved),
		}
		if before != nil {
			opts.Action = models.AuditActionUpdate
			opts.Before = toResponse(before)
		}
		rec.Record(c, opts)

		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(SaveIncomeResponse{
			Income:     toResponse(&saved),
			Created:    created,
			Statistics: statistics.NewDailyResponse(&stat),
		})
	}
}

// -------------------------------------------------
// GET /api/incomes?date=2025-12-01
// GET /api/incomes?from=2025-12-01&to=2025-12-31&vehicle_id=3
// -------------------------------------------------
func ListIncomesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := db.WithContext(c.UserContext()).Model(&models.Income{}).Preload("Vehicle")

		if date := c.Query("date"); date != "" {
			if _, err := dates.Parse(date); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			dbq = dbq.Where("date = ?", date)
		} else {
			from, to := c.Query("from"), c.Query("to")
			if from == "" || to == "" {
				return fiber.NewError(fiber.StatusBadRequest, "date or from/to is required")
			}
			if _, err := dates.Parse(from); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			if _, err := dates.Parse(to); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			dbq = dbq.Where("date >= ? AND date <= ?", from, to)
		}

		if vid := c.QueryInt("vehicle_id", 0); vid > 0 {
			dbq = dbq.Where("vehicle_id = ?", vid)
		}

		var rows []models.Income
		if err := dbq.Order("date asc, vehicle_id asc").Find(&rows).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list incomes")
		}

		resp := make([]IncomeResponse, 0, len(rows))
		for i := range rows {
			resp = append(resp, toResponse(&rows[i]))
		}
		return c.JSON(resp)
	}
}

// -------------------------------------------------
// DELETE /api/incomes/:id
// -------------------------------------------------
func DeleteIncomeHandler(db *gorm.DB, stats Recalculator, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid income id")
		}
		ctx := c.UserContext()

		var in models.Income
		if err := db.WithContext(ctx).First(&in, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Income not found")
			}
			return err
		}

		if err := db.WithContext(ctx).Delete(&models.Income{}, in.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete income")
		}
		if _, err := stats.CalculateAndUpdate(ctx, in.Date); err != nil {
			return err
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "income",
			EntityID:    in.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Income deleted: vehicle #%d, %s", in.VehicleID, in.Date),
			Before:      toResponse(&in),
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
