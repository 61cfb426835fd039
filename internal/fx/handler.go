package fx

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/MICOWEBS/Credpal-Fx-Trading-Assessment-Test/internal/currency"
)

// Handler exposes rate resolution over HTTP.
type Handler struct {
	resolver *Resolver
}

// NewHandler builds an fx HTTP handler.
func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// Rate resolves the rate for a currency pair. Callers opt into the
// degraded-accuracy fallback table with ?source=fallback; the default is a
// live resolution that fails rather than silently degrading.
func (h *Handler) Rate(c *fiber.Ctx) error {
	from, err := currency.Normalize(c.Query("from"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	to, err := currency.Normalize(c.Query("to"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	amount := decimal.NewFromInt(1)
	var quote Quote
	if c.Query("source") == SourceFallback {
		quote, err = h.resolver.FallbackQuote(from, to, amount)
	} else {
		quote, err = h.resolver.Quote(c.UserContext(), from, to, amount)
	}
	if err != nil {
		if errors.Is(err, ErrRateUnavailable) {
			return fiber.NewError(http.StatusServiceUnavailable, "exchange rate unavailable")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"from":   quote.From,
		"to":     quote.To,
		"rate":   quote.Rate.String(),
		"source": quote.Source,
		"as_of":  quote.At,
	})
}
