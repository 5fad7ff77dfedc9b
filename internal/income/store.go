package income

import (
	"context"
	"errors"

	"fleet-backend/internal/dates"
	"fleet-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Recalculator refreshes the stored statistics for one day.
type Recalculator interface {
	CalculateAndUpdate(ctx context.Context, date string) (models.DailyStatistics, error)
}

// Entry is one day's takings for one vehicle as submitted by a user.
type Entry struct {
	Date      string
	VehicleID uint
	Revenue   decimal.Decimal
	Cost      decimal.Decimal
	Note      string
	CreatedBy uint
}

func (e Entry) validate() error {
	if _, err := dates.Parse(e.Date); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if e.VehicleID == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "vehicle_id is required")
	}
	if e.Revenue.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "revenue cannot be negative")
	}
	if e.Cost.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "cost cannot be negative")
	}
	return nil
}

// Save records e, replacing any earlier entry for the same date and vehicle.
// The returned bool reports whether a new row was created.
func Save(ctx context.Context, db *gorm.DB, e Entry) (models.Income, bool, error) {
	if err := e.validate(); err != nil {
		return models.Income{}, false, err
	}

	var vehicle models.Vehicle
	if err := db.WithContext(ctx).First(&vehicle, e.VehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Income{}, false, fiber.NewError(fiber.StatusBadRequest, "Vehicle not found")
		}
		return models.Income{}, false, err
	}

	var rec models.Income
	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("date = ? AND vehicle_id = ?", e.Date, e.VehicleID).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			rec = models.Income{Date: e.Date, VehicleID: e.VehicleID, CreatedBy: e.CreatedBy}
		case err != nil:
			return err
		}

		rec.Revenue = e.Revenue
		rec.Cost = e.Cost
		rec.NetIncome = e.Revenue.Sub(e.Cost)
		rec.Note = e.Note
		return tx.Save(&rec).Error
	})
	if err != nil {
		return models.Income{}, false, err
	}
	return rec, created, nil
}
