package server

import (
	"errors"
	"strings"

	"fleet-backend/internal/audit"
	"fleet-backend/internal/auth"
	"fleet-backend/internal/config"
	"fleet-backend/internal/dashboard"
	"fleet-backend/internal/income"
	"fleet-backend/internal/logger"
	"fleet-backend/internal/models"
	"fleet-backend/internal/statistics"
	"fleet-backend/internal/user"
	"fleet-backend/internal/vehicle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewStatisticsService wires the statistics service to the gorm repositories.
func NewStatisticsService(db *gorm.DB, log *zap.Logger) *statistics.Service {
	return statistics.NewService(statistics.Params{
		Incomes:  statistics.NewIncomeRepository(db),
		Vehicles: statistics.NewVehicleRepository(db),
		Store:    statistics.NewStatisticsRepository(db),
		Log:      log,
	})
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var e *fiber.Error
		if errors.As(err, &e) {
			return c.Status(e.Code).JSON(fiber.Map{
				"error": e.Message,
			})
		}
		if errors.Is(err, statistics.ErrInvalidDate) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.Error("unexpected error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unexpected server error",
		})
	}
}

// New builds the fiber app with every route mounted under /api.
func New(cfg *config.Config, db *gorm.DB, stats *statistics.Service, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(log),
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(requestid.New())
	app.Use(logger.RequestLogger(log.Named("http")))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	rec := audit.NewRecorder(db, log)

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(cfg, db))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg), auth.RequireFreshSession(db))

	protected.Get("/auth/me", auth.MeHandler(db))
	protected.Post("/auth/logout", auth.LogoutHandler(db))
	protected.Put("/auth/password", auth.ChangePasswordHandler(db))

	adminOnly := auth.RequireRole(models.RoleAdmin)

	// Vehicles
	protected.Get("/vehicles", vehicle.ListVehiclesHandler(db))
	protected.Get("/vehicles/:id", vehicle.GetVehicleHandler(db))
	protected.Post("/vehicles", adminOnly, vehicle.CreateVehicleHandler(db, rec))
	protected.Put("/vehicles/:id", adminOnly, vehicle.UpdateVehicleHandler(db, rec))
	protected.Delete("/vehicles/:id", adminOnly, vehicle.DeleteVehicleHandler(db, rec))

	// Income entries
	protected.Post("/incomes", income.CreateIncomeHandler(db, stats, rec))
	protected.Get("/incomes", income.ListIncomesHandler(db))
	protected.Post("/incomes/import", income.ImportIncomesHandler(db, stats, rec))
	protected.Delete("/incomes/:id", income.DeleteIncomeHandler(db, stats, rec))

	// Statistics
	protected.Get("/statistics", statistics.ListRangeHandler(stats))
	protected.Get("/statistics/monthly", statistics.MonthlyHandler(stats))
	protected.Get("/statistics/export", statistics.ExportHandler(stats))
	protected.Get("/statistics/daily/:date", statistics.GetDailyHandler(stats))
	protected.Post("/statistics/daily/:date/recalculate", adminOnly, statistics.RecalculateHandler(stats, rec))
	protected.Post("/statistics/recalculate", adminOnly, statistics.BatchRecalculateHandler(stats, rec))

	// Dashboard
	protected.Get("/dashboard/revenue-chart", dashboard.RevenueChartHandler(db))

	// Users
	protected.Get("/users", adminOnly, user.ListUsersHandler(db))
	protected.Post("/users", adminOnly, user.CreateUserHandler(db, rec))
	protected.Put("/users/:id", adminOnly, user.UpdateUserHandler(db, rec))
	protected.Delete("/users/:id", adminOnly, user.DeleteUserHandler(db, rec))

	// Audit logs
	protected.Get("/audit-logs", adminOnly, audit.ListAuditLogsHandler(db))

	return app
}
