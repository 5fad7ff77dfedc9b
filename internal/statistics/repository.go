package statistics

import (
	"context"
	"errors"

	"fleet-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IncomeRepository struct {
	db *gorm.DB
}

func NewIncomeRepository(db *gorm.DB) *IncomeRepository {
	return &IncomeRepository{db: db}
}

func (r *IncomeRepository) FindByDate(ctx context.Context, date string) ([]models.Income, error) {
	var rows []models.Income
	if err := r.db.WithContext(ctx).
		Where("date = ?", date).
		Order("vehicle_id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type VehicleRepository struct {
	db *gorm.DB
}

func NewVehicleRepository(db *gorm.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

func (r *VehicleRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Vehicle{}).
		Where("status = ?", models.VehicleStatusActive).
		Count(&count).Error
	return count, err
}

type StatisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

var upsertColumns = []string{
	"total_revenue",
	"total_net_income",
	"vehicle_count",
	"average_revenue",
	"average_net_income",
	"updated_at",
}

// Upsert writes the row in a single INSERT ... ON CONFLICT (date) DO UPDATE
// statement and reads it back.
func (r *StatisticsRepository) Upsert(ctx context.Context, stat models.DailyStatistics) (models.DailyStatistics, error) {
	row := stat
	row.ID = 0

	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns(upsertColumns),
	}).Create(&row).Error; err != nil {
		return models.DailyStatistics{}, err
	}

	return r.FindByDate(ctx, stat.Date)
}

func (r *StatisticsRepository) FindByDate(ctx context.Context, date string) (models.DailyStatistics, error) {
	var stat models.DailyStatistics
	err := r.db.WithContext(ctx).Where("date = ?", date).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DailyStatistics{}, ErrNotFound
	}
	if err != nil {
		return models.DailyStatistics{}, err
	}
	return stat, nil
}

func (r *StatisticsRepository) FindByDateRange(ctx context.Context, start, end string) ([]models.DailyStatistics, error) {
	rows := make([]models.DailyStatistics, 0)
	if err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", start, end).
		Order("date desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
