package webhook_handlers

import (
	"context"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
)

// ProductHandler handles product-related webhook events
type ProductHandler struct {
	logger zerolog.Logger
	events map[string]struct{}
}

// NewProductHandler creates a new product webhook handler
func NewProductHandler(logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		logger: logger,
		events: eventSet(
			"product.created", "product.updated", "product.deleted",
			"product.create", "product.update", "product.delete",
			"products/create", "products/update", "products/delete",
		),
	}
}

func (h *ProductHandler) CanHandle(_ domain.Provider, event string) bool {
	_, ok := h.events[event]
	return ok
}

func (h *ProductHandler) Handle(_ context.Context, store *domain.Store, event *domain.WebhookEvent) error {
	data, err := resourceData(event)
	if err != nil {
		return err
	}

	evt := h.logger.Info().
		Str("provider", string(event.Provider)).
		Str("event", event.Event).
		Str("product_id", field(data, "id")).
		Str("name", field(data, "name", "title")).
		Str("sku", field(data, "sku")).
		Str("status", field(data, "status"))
	if store != nil {
		evt = evt.Str("store_id", store.ID)
	}
	evt.Msg("Processing product webhook event")
	return nil
}
