package webhook_handlers

import (
	"context"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
)

// StoreUninstaller is the part of the connect service this handler needs
type StoreUninstaller interface {
	HandleUninstall(ctx context.Context, store *domain.Store) error
}

var uninstallEvents = map[domain.Provider]string{
	domain.ProviderSalla: "app.uninstalled",
	domain.ProviderZid:   "app.market.application.uninstall",
	domain.ProviderOther: "app/uninstalled",
}

// AppUninstalledHandler handles app uninstalled webhook events
type AppUninstalledHandler struct {
	logger      zerolog.Logger
	uninstaller StoreUninstaller
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(logger zerolog.Logger, uninstaller StoreUninstaller) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		logger:      logger,
		uninstaller: uninstaller,
	}
}

// CanHandle returns true for the provider's uninstall event
func (h *AppUninstalledHandler) CanHandle(provider domain.Provider, event string) bool {
	return uninstallEvents[provider] == event
}

// Handle clears the store credentials and soft deletes it. The row is kept so a
// reinstall restores the same store.
func (h *AppUninstalledHandler) Handle(ctx context.Context, store *domain.Store, event *domain.WebhookEvent) error {
	if store == nil {
		h.logger.Warn().
			Str("provider", string(event.Provider)).
			Str("merchant_id", event.MerchantID).
			Msg("App uninstalled for an unknown store")
		return nil
	}

	h.logger.Info().
		Str("event", event.Event).
		Str("store_id", store.ID).
		Str("tenant_id", store.TenantIDValue()).
		Msg("Processing app uninstalled webhook event")

	return h.uninstaller.HandleUninstall(ctx, store)
}
