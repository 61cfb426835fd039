package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/wallet"
)

// RegisterWalletRoutes wires ledger operation endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets/fund", h.Fund)
	r.Post("/wallets/transfers", h.Transfer)
	r.Post("/wallets/trades", h.Trade)
	r.Get("/wallets/:ownerId/balances", h.Balances)
	r.Get("/wallets/:ownerId/transactions", h.Entries)
}
