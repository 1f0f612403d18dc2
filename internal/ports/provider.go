package ports

import (
	"context"

	"merchant-connect-layer/internal/domain"
)

// ProviderAdapter is implemented once per provider. It hides the provider-specific
// OAuth endpoints and response shapes behind one normalized contract.
type ProviderAdapter interface {
	Provider() domain.Provider
	SupportsRefresh() bool

	// BuildAuthorizationURL embeds an already issued CSRF state and the provider scope
	BuildAuthorizationURL(state string, params map[string]string) (string, error)
	ExchangeCode(ctx context.Context, code string, params map[string]string) (*domain.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error)
	FetchStoreProfile(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error)
}

// StoreStatsFetcher is optionally implemented by adapters able to count store resources
type StoreStatsFetcher interface {
	FetchStoreCounts(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreCounts, error)
}

// WebhookAPI is the provider-side subscription API. Providers expose no update
// endpoint, so the manager only needs delete, create and list.
type WebhookAPI interface {
	Provider() domain.Provider
	RequiredEvents() []string

	// DeleteSubscriptions removes every subscription owned by appID.
	// A provider 404 must surface as a *domain.ProviderError with StatusCode 404.
	DeleteSubscriptions(ctx context.Context, tokens *domain.TokenSet, appID string) error
	CreateSubscription(ctx context.Context, tokens *domain.TokenSet, event, targetURL, appID string) (*domain.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, tokens *domain.TokenSet) ([]domain.WebhookSubscription, error)
}
