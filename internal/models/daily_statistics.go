package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyStatistics holds the aggregate figures for one calendar day.
// Amounts are stored floored to one fractional digit.
type DailyStatistics struct {
	ID               uint            `gorm:"primaryKey"`
	Date             string          `gorm:"size:10;uniqueIndex;not null"`
	TotalRevenue     decimal.Decimal `gorm:"type:decimal(16,1);not null;default:0"`
	TotalNetIncome   decimal.Decimal `gorm:"type:decimal(16,1);not null;default:0"`
	VehicleCount     int             `gorm:"not null;default:0"` // income rows entered that day, not fleet size
	AverageRevenue   decimal.Decimal `gorm:"type:decimal(16,1);not null;default:0"`
	AverageNetIncome decimal.Decimal `gorm:"type:decimal(16,1);not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DailyStatistics) TableName() string { return "daily_statistics" }
