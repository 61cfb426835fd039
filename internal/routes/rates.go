package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/fx"
)

// RegisterRateRoutes wires rate resolution endpoints.
func RegisterRateRoutes(r fiber.Router, h *fx.Handler) {
	r.Get("/rates", h.Rate)
}
