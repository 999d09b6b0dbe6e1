package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Proton-105/clicker-social/internal/domain"
	apperrors "github.com/Proton-105/clicker-social/internal/errors"
)

// BusPublisher is the subset of the JetStream client the notifier needs.
type BusPublisher interface {
	Subject(parts ...string) string
	Publish(ctx context.Context, subject string, data []byte) error
}

// BusNotifier forwards notifications to the event bus on
// "<prefix>.<type>", guarded by a circuit breaker and bounded retries.
type BusNotifier struct {
	bus     BusPublisher
	breaker *apperrors.CircuitBreaker
	log     *slog.Logger
}

var _ Notifier = (*BusNotifier)(nil)

func NewBusNotifier(bus BusPublisher, breaker *apperrors.CircuitBreaker, log *slog.Logger) *BusNotifier {
	if log == nil {
		log = slog.Default()
	}
	if breaker == nil {
		breaker = apperrors.NewCircuitBreaker(apperrors.DefaultBreakerSettings(), func(from, to apperrors.State) {
			log.Warn("notification bus breaker state changed", slog.String("from", from.String()), slog.String("to", to.String()))
		})
	}
	return &BusNotifier{bus: bus, breaker: breaker, log: log}
}

func (b *BusNotifier) Create(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	subject := b.bus.Subject(string(n.Type))

	return b.breaker.Call(func() error {
		return apperrors.WithRetry(ctx, func() error {
			if err := b.bus.Publish(ctx, subject, payload); err != nil {
				return apperrors.NewExternalServiceError("nats", err)
			}
			return nil
		})
	})
}
