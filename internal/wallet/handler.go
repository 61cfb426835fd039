package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/currency"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/fx"
	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/ledger"
)

// Handler exposes the ledger engine over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundRequest struct {
	Owner     string `json:"owner_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

type transferRequest struct {
	FromOwner   string `json:"from_owner_id"`
	ToOwner     string `json:"to_owner_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type tradeRequest struct {
	Owner        string `json:"owner_id"`
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	Amount       string `json:"amount"`
}

type entryResponse struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner_id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	FromCurrency string    `json:"from_currency"`
	ToCurrency   string    `json:"to_currency"`
	Amount       string    `json:"amount"`
	Rate         string    `json:"rate"`
	Converted    string    `json:"converted_amount"`
	Reference    string    `json:"reference,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type balanceResponse struct {
	Currency  string `json:"currency"`
	Total     string `json:"total"`
	Locked    string `json:"locked"`
	Available string `json:"available"`
}

// Fund credits an owner's wallet from an external source.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req fundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	entry, err := h.service.Fund(c.UserContext(), FundInput{
		Owner:     req.Owner,
		Amount:    amount,
		Currency:  req.Currency,
		Reference: req.Reference,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

// Transfer moves funds between two owners.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	entry, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromOwner:   req.FromOwner,
		ToOwner:     req.ToOwner,
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

// Trade converts between two of an owner's currencies at the live rate.
func (h *Handler) Trade(c *fiber.Ctx) error {
	var req tradeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	entry, err := h.service.Trade(c.UserContext(), TradeInput{
		Owner:        req.Owner,
		FromCurrency: req.FromCurrency,
		ToCurrency:   req.ToCurrency,
		Amount:       amount,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(http.StatusCreated).JSON(toEntryResponse(entry))
}

// Balances lists an owner's balances.
func (h *Handler) Balances(c *fiber.Ctx) error {
	owner := c.Params("ownerId")
	balances, err := h.service.Balances(c.UserContext(), owner)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			Currency:  b.Currency,
			Total:     b.Total.String(),
			Locked:    b.Locked.String(),
			Available: b.Available.String(),
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner_id": owner, "balances": out})
}

// Entries lists an owner's transaction history.
func (h *Handler) Entries(c *fiber.Ctx) error {
	owner := c.Params("ownerId")
	entries, err := h.service.Entries(c.UserContext(), owner)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner_id": owner, "transactions": out})
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fiber.NewError(http.StatusBadRequest, "invalid amount")
	}
	return amount, nil
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:           e.ID,
		Owner:        e.Owner,
		Kind:         string(e.Kind),
		Status:       string(e.Status),
		FromCurrency: e.FromCurrency,
		ToCurrency:   e.ToCurrency,
		Amount:       e.Amount.String(),
		Rate:         e.Rate.String(),
		Converted:    e.Converted.String(),
		Reference:    e.Reference,
		Description:  e.Description,
		CreatedAt:    e.CreatedAt,
	}
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSameOwner),
		errors.Is(err, ErrSameCurrency),
		errors.Is(err, currency.ErrUnsupported):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrOwnerNotEligible):
		return fiber.NewError(http.StatusForbidden, "owner not eligible")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, fx.ErrRateUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "exchange rate unavailable")
	case errors.Is(err, ledger.ErrHoldTimeout):
		return fiber.NewError(http.StatusConflict, "balance busy, retry")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
