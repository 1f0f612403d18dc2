package ports

import (
	"context"

	"merchant-connect-layer/internal/domain"
)

// StoreRepository defines the interface for store persistence.
// Lookups return (nil, nil) when nothing matches.
type StoreRepository interface {
	Create(ctx context.Context, store *domain.Store) error
	Update(ctx context.Context, store *domain.Store) error
	GetByID(ctx context.Context, id string) (*domain.Store, error)

	// FindByMerchantID returns the non-deleted store for (provider, merchantID)
	FindByMerchantID(ctx context.Context, provider domain.Provider, merchantID string) (*domain.Store, error)
	// FindDeletedByMerchantID returns the most recently soft-deleted store for (provider, merchantID)
	FindDeletedByMerchantID(ctx context.Context, provider domain.Provider, merchantID string) (*domain.Store, error)
	// FindByProviderUUID is the fallback lookup key when a merchant id is missing
	FindByProviderUUID(ctx context.Context, provider domain.Provider, providerUUID string) (*domain.Store, error)
	// ListByTenant returns non-deleted stores owned by a tenant, optionally filtered by provider
	ListByTenant(ctx context.Context, tenantID string, provider domain.Provider) ([]*domain.Store, error)
}

// WebhookEventRepository is the append-only log of inbound webhooks.
// The identity resolver only reads from it.
type WebhookEventRepository interface {
	Append(ctx context.Context, event *domain.WebhookEvent) error
	// DistinctTenantIDs returns the distinct non-null tenant ids seen for a provider.
	// An empty merchantHint means the query is provider-scoped only.
	DistinctTenantIDs(ctx context.Context, provider domain.Provider, merchantHint string) ([]string, error)
}

// TenantDirectory is the tenant collaborator
type TenantDirectory interface {
	FindTenant(ctx context.Context, id string) (*domain.Tenant, error)
	CreateTenant(ctx context.Context, profile *domain.StoreProfile) (*domain.Tenant, error)
}

// UserProvisioner creates users for storefront installs and notifies them.
// Delivery channels are entirely its concern.
type UserProvisioner interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ProvisionUserAndNotify(ctx context.Context, profile *domain.StoreProfile, store *domain.Store) (*domain.ProvisionResult, error)
}
