package auth

import (
	"strings"

	"fleet-backend/internal/config"
	"fleet-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	CtxUserIDKey         = "user_id"
	CtxUserRoleKey       = "user_role"
	CtxUserNameKey       = "user_name"
	CtxSessionVersionKey = "session_version"
)

func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header missing")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(cfg.JWTSecret, strings.TrimSpace(parts[1]))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxSessionVersionKey, claims.SessionVersion)

		return c.Next()
	}
}

// RequireFreshSession rejects tokens whose user has since been deactivated,
// deleted, or logged out (session version bumped). The stored role replaces
// the one carried in the token.
func RequireFreshSession(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals(CtxUserIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Session missing")
		}
		version, _ := c.Locals(CtxSessionVersionKey).(int)

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Session is no longer valid")
		}
		if !user.Active || user.SessionVersion != version {
			return fiber.NewError(fiber.StatusUnauthorized, "Session is no longer valid")
		}

		c.Locals(CtxUserRoleKey, user.Role)
		c.Locals(CtxUserNameKey, user.Name)
		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Role unavailable")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "You are not allowed to do this")
	}
}

// Actor identifies the user behind the current request.
type Actor struct {
	ID   uint
	Name string
	Role models.UserRole
}

func CurrentActor(c *fiber.Ctx) (Actor, bool) {
	id, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Actor{}, false
	}
	name, _ := c.Locals(CtxUserNameKey).(string)
	role, _ := c.Locals(CtxUserRoleKey).(models.UserRole)
	return Actor{ID: id, Name: name, Role: role}, true
}
