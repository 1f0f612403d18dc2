package webhook_handlers

import (
	"context"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
)

// OrderHandler handles order-related webhook events
type OrderHandler struct {
	logger zerolog.Logger
	events map[string]struct{}
}

// NewOrderHandler creates a new order webhook handler
func NewOrderHandler(logger zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		logger: logger,
		events: eventSet(
			"order.created", "order.updated", "order.status.updated", "order.cancelled",
			"order.create", "order.status.update",
			"orders/create", "orders/updated", "orders/cancelled", "orders/paid", "orders/fulfilled",
		),
	}
}

// CanHandle returns true if this handler can process the given event
func (h *OrderHandler) CanHandle(_ domain.Provider, event string) bool {
	_, ok := h.events[event]
	return ok
}

// Handle logs an order webhook event
func (h *OrderHandler) Handle(_ context.Context, store *domain.Store, event *domain.WebhookEvent) error {
	data, err := resourceData(event)
	if err != nil {
		return err
	}

	evt := h.logger.Info().
		Str("provider", string(event.Provider)).
		Str("event", event.Event).
		Str("order_id", field(data, "id")).
		Str("reference", field(data, "reference_id", "code", "order_number")).
		Str("status", field(data, "status", "order_status", "financial_status")).
		Str("total", field(data, "total", "order_total", "total_price"))
	if store != nil {
		evt = evt.Str("store_id", store.ID).Str("tenant_id", store.TenantIDValue())
	}
	evt.Msg("Processing order webhook event")
	return nil
}
