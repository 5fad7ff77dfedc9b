package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the day-granularity format used for every date column.
const DateLayout = "2006-01-02"

// Income is one vehicle's takings for one day.
type Income struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Date      string          `gorm:"size:10;not null;uniqueIndex:idx_income_date_vehicle,priority:1" json:"date"`
	VehicleID uint            `gorm:"not null;uniqueIndex:idx_income_date_vehicle,priority:2" json:"vehicle_id"`
	Vehicle   *Vehicle        `json:"-"`
	Revenue   decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0" json:"revenue"`
	Cost      decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0" json:"cost"`
	NetIncome decimal.Decimal `gorm:"type:decimal(14,4);not null;default:0" json:"net_income"` // revenue - cost
	Note      string          `gorm:"size:255" json:"note"`
	CreatedBy uint            `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
