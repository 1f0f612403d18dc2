package webhook_handlers

import (
	"context"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
)

// CustomerHandler handles customer-related webhook events
type CustomerHandler struct {
	logger zerolog.Logger
	events map[string]struct{}
}

// NewCustomerHandler creates a new customer webhook handler
func NewCustomerHandler(logger zerolog.Logger) *CustomerHandler {
	return &CustomerHandler{
		logger: logger,
		events: eventSet(
			"customer.created", "customer.updated",
			"customer.create", "customer.update",
			"customers/create", "customers/update", "customers/delete",
		),
	}
}

func (h *CustomerHandler) CanHandle(_ domain.Provider, event string) bool {
	_, ok := h.events[event]
	return ok
}

// Handle logs the customer id only; contact details stay out of the logs
func (h *CustomerHandler) Handle(_ context.Context, store *domain.Store, event *domain.WebhookEvent) error {
	data, err := resourceData(event)
	if err != nil {
		return err
	}

	evt := h.logger.Info().
		Str("provider", string(event.Provider)).
		Str("event", event.Event).
		Str("customer_id", field(data, "id"))
	if store != nil {
		evt = evt.Str("store_id", store.ID)
	}
	evt.Msg("Processing customer webhook event")
	return nil
}
