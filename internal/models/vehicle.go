package models

import "time"

type VehicleStatus string

const (
	VehicleStatusActive      VehicleStatus = "active"
	VehicleStatusInactive    VehicleStatus = "inactive"
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleStatusActive, VehicleStatusInactive, VehicleStatusMaintenance:
		return true
	}
	return false
}

type Vehicle struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	PlateNumber string        `gorm:"size:20;uniqueIndex;not null" json:"plate_number"`
	Name        string        `gorm:"size:100" json:"name"` // make / model
	DriverName  string        `gorm:"size:100" json:"driver_name"`
	Status      VehicleStatus `gorm:"size:20;index;not null" json:"status"`
	Notes       string        `gorm:"size:255" json:"notes"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
