package user

import (
	"errors"
	"fmt"
	"strings"

	"fleet-backend/internal/audit"
	"fleet-backend/internal/auth"
	"fleet-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
}

type UpdateUserRequest struct {
	Name     *string          `json:"name"`
	Role     *models.UserRole `json:"role"`
	Active   *bool            `json:"active"`
	Password *string          `json:"password"`
}

func findUser(c *fiber.Ctx, db *gorm.DB) (models.User, error) {
	var u models.User
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return u, fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}
	if err := db.WithContext(c.UserContext()).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return u, fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		return u, err
	}
	return u, nil
}

func remainingAdmins(db *gorm.DB, exceptID uint) (int64, error) {
	var n int64
	err := db.Model(&models.User{}).
		Where("role = ? AND active = ? AND id <> ?", models.RoleAdmin, true, exceptID).
		Count(&n).Error
	return n, err
}

// -------------------------------------------------
// GET /api/users
// -------------------------------------------------
func ListUsersHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := db.WithContext(c.UserContext()).Order("name asc").Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list users")
		}

		resp := make([]auth.UserResponse, 0, len(users))
		for i := range users {
			resp = append(resp, auth.NewUserResponse(&users[i]))
		}
		return c.JSON(resp)
	}
}

// -------------------------------------------------
// POST /api/users
// -------------------------------------------------
func CreateUserHandler(db *gorm.DB, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		body.Email = auth.NormalizeEmail(body.Email)
		if body.Name == "" || body.Email == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Name and email are required")
		}
		if body.Role == "" {
			body.Role = models.RoleOperator
		}
		if !body.Role.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "role must be admin|operator")
		}

		var count int64
		if err := db.Model(&models.User{}).Where("email = ?", body.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Email is already in use")
		}

		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			return err
		}

		u := models.User{
			Name:           body.Name,
			Email:          body.Email,
			PasswordHash:   hash,
			Role:           body.Role,
			Active:         true,
			SessionVersion: 1,
		}
		if err := db.WithContext(c.UserContext()).Create(&u).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not create user")
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "user",
			EntityID:    u.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("User created: %s (%s)", u.Email, u.Role),
			After:       auth.NewUserResponse(&u),
		})

		return c.Status(fiber.StatusCreated).JSON(auth.NewUserResponse(&u))
	}
}

// -------------------------------------------------
// PUT /api/users/:id
// Role, active and password changes end the user's open sessions.
// -------------------------------------------------
func UpdateUserHandler(db *gorm.DB, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := findUser(c, db)
		if err != nil {
			return err
		}
		before := auth.NewUserResponse(&u)

		var body UpdateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		updates := map[string]interface{}{}
		revoke := false

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			updates["name"] = name
		}
		if body.Role != nil && *body.Role != u.Role {
			if !body.Role.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "role must be admin|operator")
			}
			updates["role"] = *body.Role
			revoke = true
		}
		if body.Active != nil && *body.Active != u.Active {
			updates["active"] = *body.Active
			revoke = true
		}
		if body.Password != nil {
			hash, err := auth.HashPassword(*body.Password)
			if err != nil {
				return err
			}
			updates["password_hash"] = hash
			revoke = true
		}

		losesAdmin := u.Role == models.RoleAdmin &&
			((body.Role != nil && *body.Role != models.RoleAdmin) || (body.Active != nil && !*body.Active))
		if losesAdmin {
			n, err := remainingAdmins(db, u.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return fiber.NewError(fiber.StatusConflict, "At least one active admin must remain")
			}
		}

		if len(updates) == 0 {
			return c.JSON(before)
		}
		if revoke {
			updates["session_version"] = gorm.Expr("session_version + 1")
		}

		if err := db.WithContext(c.UserContext()).Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not update user")
		}
		if err := db.WithContext(c.UserContext()).First(&u, u.ID).Error; err != nil {
			return err
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "user",
			EntityID:    u.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("User updated: %s", u.Email),
			Before:      before,
			After:       auth.NewUserResponse(&u),
		})

		return c.JSON(auth.NewUserResponse(&u))
	}
}

// -------------------------------------------------
// DELETE /api/users/:id
// -------------------------------------------------
func DeleteUserHandler(db *gorm.DB, rec *audit.Recorder) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, err := findUser(c, db)
		if err != nil {
			return err
		}

		if actor, ok := auth.CurrentActor(c); ok && actor.ID == u.ID {
			return fiber.NewError(fiber.StatusBadRequest, "You cannot delete your own account")
		}
		if u.Role == models.RoleAdmin {
			n, err := remainingAdmins(db, u.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				return fiber.NewError(fiber.StatusConflict, "At least one active admin must remain")
			}
		}

		if err := db.WithContext(c.UserContext()).Delete(&models.User{}, u.ID).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not delete user")
		}

		rec.Record(c, audit.LogOptions{
			EntityType:  "user",
			EntityID:    u.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("User deleted: %s", u.Email),
			Before:      auth.NewUserResponse(&u),
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}
