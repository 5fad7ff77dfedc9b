package models

import "time"

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleOperator UserRole = "operator"
)

func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleOperator
}

type User struct {
	ID           uint     `gorm:"primaryKey"`
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	Active       bool     `gorm:"not null;default:true"`
	// Carried in every token; bumping it revokes older sessions.
	SessionVersion int `gorm:"not null;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
