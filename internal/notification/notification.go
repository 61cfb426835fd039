package notification

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Event describes a completed or failed ledger operation for downstream
// audit/notification sinks.
type Event struct {
	OwnerID  string
	Kind     string
	Amount   decimal.Decimal
	Currency string
	Status   string
}

// Notifier delivers ledger events to downstream systems. Delivery is
// fire-and-forget: a failure never rolls back the ledger operation.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier is a stub implementation that writes events to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("ledger event",
		"owner", event.OwnerID,
		"kind", event.Kind,
		"amount", event.Amount.String(),
		"currency", event.Currency,
		"status", event.Status,
	)
	return nil
}
