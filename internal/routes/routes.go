package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/config"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/fx"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/middleware"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. The ledger
// engine and resolver are built in main so their background lifecycles stay
// with the process, not the router.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Wallet   *wallet.Service
	Resolver *fx.Resolver
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Wallet == nil || d.Resolver == nil {
		return fmt.Errorf("wallet service and rate resolver are required")
	}
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	walletHandler := wallet.NewHandler(d.Wallet)
	rateHandler := fx.NewHandler(d.Resolver)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDKey).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterRateRoutes(api, rateHandler)

	return nil
}
