package vehicle

import (
	"errors"
	"fmt"
	"strings"

	"fleet-backend/internal/audit"
	"fleet-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type VehicleResponse struct {
	ID          uint                 `json:"id"`
	PlateNumber string               `json:"plate_number"`
	Name        string               `json:"name"`
	DriverName  string               `json:"driver_name"`
	Status      models.VehicleStatus `json:"status"`
	Notes       string               `json:"notes"`
	CreatedAt   string               `json:"created_at"`
}

type CreateVehicleRequest struct {
	PlateNumber string               `json:"plate_number"`
	Name        string               `json:"name"`
	DriverName  string               `json:"driver_name"`
	Status      models.VehicleStatus `json:"status"` // defaults to active
	Notes       string               `json:"notes"`
}

type UpdateVehicleRequest struct {
	PlateNumber *string               `json:"plate_number"`
	Name        *string               `json:"name"`
	DriverName  *string               `json:"driver_name"`
	Status      *models.VehicleStatus `json:"status"`
	Notes       *string               `json:"notes"`
}

func toResponse(v *models.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:          v.ID,
		PlateNumber: v.PlateNumber,
		Name:        v.Name,
		DriverName:  v.DriverName,
		Status:      v.Status,
		Notes:       v.Notes,
		CreatedAt:   v.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// NormalizePlate upper-cases a plate and collapses inner whitespace.
func NormalizePlate(plate string) string {
	return strings.Join(strings.Fields(strings.ToUpper(plate)), " ")
}

func findVehicle(c *fiber.Ctx, db *gorm.DB) (models.Vehicle, error) {
	var v models.Vehicle
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return v, fiber.NewError(fiber.StatusBadRequest, "Invalid vehicle id")
	}
	if err := db.WithContext(c.UserContext()).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return v, fiber.NewError(fiber.StatusNotFound, "Vehicle not found")
		}
		return v, err
	}
	return v, nil
}

func plateTaken(db *gorm.DB, plate string, exceptID uint) (bool, error) {
	var count int64
	err := db.Model(&models.Vehicle{}).
		Where("plate_number = ? AND id <> ?", plate, exceptID).
		Count(&count).Error
	return count > 0, err
}

// -------------------------------------------------
// POST /api/vehicles
// -------------------------------------------------
func CreateVehicleHandler(db *gorm.DB, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateVehicleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		plate := NormalizePlate(body.PlateNumber)
		if plate == "" {
			return fiber.NewError(fiber.StatusBadRequest, "plate_number is required")
		}
		if body.Status == "" {
			body.Status = models.VehicleStatusActive
		}
		if !body.Status.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "status must be active|inactive|maintenance")
		}

		taken, err := plateTaken(db, plate, 0)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusConflict, "A vehicle with this plate already exists")
		}

		v := models.Vehicle{
			PlateNumber: plate,
			Name:        strings.TrimSpace(body.Name),
			DriverName:  strings.TrimSpace(body.DriverName),
			Status:      body.Status,
			Notes:       strings.TrimSpace(body.Notes),
		}
		if err := db.WithContext(c.UserContext()).Create(&v).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create vehicle")
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "vehicle",
			EntityID:    v.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Vehicle added: %s", v.PlateNumber),
			After:       toResponse(&v),
		})

		return c.Status(fiber.StatusCreated).JSON(toResponse(&v))
	}
}

// -------------------------------------------------
// GET /api/vehicles?status=active
// -------------------------------------------------
func ListVehiclesHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := db.WithContext(c.UserContext()).Model(&models.Vehicle{})

		if s := c.Query("status"); s != "" {
			status := models.VehicleStatus(s)
			if !status.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "status is invalid")
			}
			dbq = dbq.Where("status = ?", status)
		}

		var vehicles []models.Vehicle
		if err := dbq.Order("plate_number asc").Find(&vehicles).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list vehicles")
		}

		resp := make([]VehicleResponse, 0, len(vehicles))
		for i := range vehicles {
			resp = append(resp, toResponse(&vehicles[i]))
		}
		return c.JSON(resp)
	}
}

// -------------------------------------------------
// GET /api/vehicles/:id
// -------------------------------------------------
func GetVehicleHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := findVehicle(c, db)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(&v))
	}
}

// -------------------------------------------------
// PUT /api/vehicles/:id
// Status changes only affect averages computed afterwards.
// -------------------------------------------------
func UpdateVehicleHandler(db *gorm.DB, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := findVehicle(c, db)
		if err != nil {
			return err
		}
		before := toResponse(&v)

		var body UpdateVehicleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.PlateNumber != nil {
			plate := NormalizePlate(*body.PlateNumber)
			if plate == "" {
				return fiber.NewError(fiber.StatusBadRequest, "plate_number cannot be empty")
			}
			taken, err := plateTaken(db, plate, v.ID)
			if err != nil {
				return err
			}
			if taken {
				return fiber.NewError(fiber.StatusConflict, "A vehicle with this plate already exists")
			}
			v.PlateNumber = plate
		}
		if body.Name != nil {
			v.Name = strings.TrimSpace(*body.Name)
		}
		if body.DriverName != nil {
			v.DriverName = strings.TrimSpace(*body.DriverName)
		}
		if body.Status != nil {
			if !body.Status.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "status must be active|inactive|maintenance")
			}
			v.Status = *body.Status
		}
		if body.Notes != nil {
			v.Notes = strings.TrimSpace(*body.Notes)
		}

		if err := db.WithContext(c.UserContext()).Save(&v).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update vehicle")
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "vehicle",
			EntityID:    v.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Vehicle updated: %s", v.PlateNumber),
			Before:      before,
			After:       toResponse(&v),
		})

		return c.JSON(toResponse(&v))
	}
}

// -------------------------------------------------
// DELETE /api/vehicles/:id
// Vehicles with recorded income are kept; set them inactive instead.
// -------------------------------------------------
func DeleteVehicleHandler(db *gorm.DB, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := findVehicle(c, db)
		if err != nil {
			return err
		}

		var incomeCount int64
		if err := db.Model(&models.Income{}).Where("vehicle_id = ?", v.ID).Count(&incomeCount).Error; err != nil {
			return err
		}
		if incomeCount > 0 {
			return fiber.NewError(fiber.StatusConflict, "Vehicle has income records, mark it inactive instead")
		}

		if err := db.WithContext(c.UserContext()).Delete(&models.Vehicle{}, v.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete vehicle")
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "vehicle",
			EntityID:    v.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Vehicle deleted: %s", v.PlateNumber),
			Before:      toResponse(&v),
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
