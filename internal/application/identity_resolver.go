package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IdentityResolver maps provider merchant ids to stores and guards tenant ownership
type IdentityResolver struct {
	stores  ports.StoreRepository
	events  ports.WebhookEventRepository
	tenants ports.TenantDirectory
	cipher  ports.EncryptionService
	metrics ports.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewIdentityResolver creates a resolver
func NewIdentityResolver(
	stores ports.StoreRepository,
	events ports.WebhookEventRepository,
	tenants ports.TenantDirectory,
	cipher ports.EncryptionService,
	metrics ports.Metrics,
	logger zerolog.Logger,
) *IdentityResolver {
	return &IdentityResolver{
		stores:  stores,
		events:  events,
		tenants: tenants,
		cipher:  cipher,
		metrics: metricsOrNop(metrics),
		logger:  logger,
		now:     time.Now,
	}
}

// ResolveByMerchantID finds the store for (provider, merchantID). Soft-deleted
// stores are restored and a missing store is recovered from webhook history.
// Returns (nil, nil) when nothing can be resolved safely.
func (r *IdentityResolver) ResolveByMerchantID(ctx context.Context, provider domain.Provider, merchantID string) (*domain.Store, error) {
	return r.resolve(ctx, provider, merchantID, true)
}

// FindExisting is ResolveByMerchantID without webhook history recovery. Used
// when the merchant is present to authorize and can be onboarded directly.
func (r *IdentityResolver) FindExisting(ctx context.Context, provider domain.Provider, merchantID string) (*domain.Store, error) {
	return r.resolve(ctx, provider, merchantID, false)
}

func (r *IdentityResolver) resolve(ctx context.Context, provider domain.Provider, merchantID string, allowRecovery bool) (*domain.Store, error) {
	if merchantID == "" {
		return nil, nil
	}

	store, err := r.stores.FindByMerchantID(ctx, provider, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find store: %w", err)
	}
	if store != nil {
		return store, nil
	}

	deleted, err := r.stores.FindDeletedByMerchantID(ctx, provider, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find deleted store: %w", err)
	}
	if deleted != nil {
		return r.restore(ctx, deleted)
	}

	if !allowRecovery {
		return nil, nil
	}
	return r.recover(ctx, provider, merchantID)
}

// ResolveByProviderUUID is the fallback lookup when the provider sent no merchant id
func (r *IdentityResolver) ResolveByProviderUUID(ctx context.Context, provider domain.Provider, providerUUID string) (*domain.Store, error) {
	if providerUUID == "" {
		return nil, nil
	}
	store, err := r.stores.FindByProviderUUID(ctx, provider, providerUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to find store by provider uuid: %w", err)
	}
	return store, nil
}

func (r *IdentityResolver) restore(ctx context.Context, store *domain.Store) (*domain.Store, error) {
	store.DeletedAt = nil
	store.Status = domain.StoreStatusActive
	store.UpdatedAt = r.now()

	if err := r.stores.Update(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to restore store: %w", err)
	}

	r.logger.Info().
		Str("store_id", store.ID).
		Str("provider", string(store.Provider)).
		Str("merchant_id", store.MerchantIDValue()).
		Msg("Restored soft-deleted store")
	return store, nil
}

// recover rebuilds a lost store to tenant mapping from inbound webhook history.
// It fails closed unless exactly one live tenant is referenced.
func (r *IdentityResolver) recover(ctx context.Context, provider domain.Provider, merchantID string) (*domain.Store, error) {
	log := r.logger.With().Str("provider", string(provider)).Str("merchant_id", merchantID).Logger()

	tenantIDs, err := r.events.DistinctTenantIDs(ctx, provider, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook history: %w", err)
	}
	if len(tenantIDs) == 0 {
		tenantIDs, err = r.events.DistinctTenantIDs(ctx, provider, "")
		if err != nil {
			return nil, fmt.Errorf("failed to query webhook history: %w", err)
		}
	}

	if len(tenantIDs) != 1 {
		log.Warn().
			Err(domain.ErrAmbiguousRecovery).
			Int("candidates", len(tenantIDs)).
			Msg("Refusing store recovery")
		r.metrics.ObserveRecovery(provider, OutcomeAmbiguous)
		return nil, nil
	}

	tenantID := tenantIDs[0]
	tenant, err := r.tenants.FindTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}
	if tenant == nil || tenant.IsDeleted() {
		log.Warn().Str("tenant_id", tenantID).Msg("Recovery candidate tenant no longer exists")
		r.metrics.ObserveRecovery(provider, OutcomeSkipped)
		return nil, nil
	}

	owned, err := r.stores.ListByTenant(ctx, tenantID, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant stores: %w", err)
	}

	if len(owned) > 0 {
		store := pickRepairCandidate(owned)
		if store == nil {
			log.Warn().
				Str("tenant_id", tenantID).
				Int("stores", len(owned)).
				Msg("Refusing recovery, tenant stores have live merchant mappings")
			r.metrics.ObserveRecovery(provider, OutcomeSkipped)
			return nil, nil
		}
		previous := store.MerchantIDValue()
		store.MerchantID = domain.StringPtr(merchantID)
		store.UpdatedAt = r.now()
		if err := r.stores.Update(ctx, store); err != nil {
			return nil, fmt.Errorf("failed to repair store mapping: %w", err)
		}

		log.Info().
			Str("tenant_id", tenantID).
			Str("store_id", store.ID).
			Str("previous_merchant_id", previous).
			Msg("Recovered store by repairing merchant id")
		r.metrics.ObserveRecovery(provider, OutcomeRepaired)
		return store, nil
	}

	now := r.now()
	store := &domain.Store{
		ID:         uuid.NewString(),
		TenantID:   domain.StringPtr(tenantID),
		Provider:   provider,
		MerchantID: domain.StringPtr(merchantID),
		Status:     domain.StoreStatusPending,
		Name:       "Store " + merchantID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.stores.Create(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to create recovered store: %w", err)
	}

	log.Info().
		Str("tenant_id", tenantID).
		Str("store_id", store.ID).
		Msg("Recovered store as pending placeholder")
	r.metrics.ObserveRecovery(provider, OutcomeCreated)
	return store, nil
}

// pickRepairCandidate prefers a blank merchant id, then any other stale mapping.
// Stores with a live mapping are never re-pointed.
func pickRepairCandidate(stores []*domain.Store) *domain.Store {
	var stale *domain.Store
	for _, s := range stores {
		if s.MerchantIDValue() == "" {
			return s
		}
		if stale == nil && s.HasStaleMapping() {
			stale = s
		}
	}
	return stale
}

// Connect binds a freshly authorized merchant to tenantID. A merchant owned by
// another tenant is rejected with domain.ErrOwnershipConflict and left untouched.
func (r *IdentityResolver) Connect(ctx context.Context, tenantID string, provider domain.Provider, tokens *domain.TokenSet, profile *domain.StoreProfile) (*domain.Store, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if tokens == nil || profile == nil {
		return nil, fmt.Errorf("tokens and profile are required")
	}

	existing, err := r.findForConnect(ctx, tenantID, provider, profile)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.TenantID != nil && !existing.OwnedBy(tenantID) {
		r.logger.Warn().
			Str("provider", string(provider)).
			Str("merchant_id", profile.MerchantID).
			Str("tenant_id", tenantID).
			Str("owner_tenant_id", existing.TenantIDValue()).
			Msg("Store ownership conflict")
		return nil, domain.ErrOwnershipConflict
	}

	now := r.now()
	store := existing
	isNew := store == nil
	if isNew {
		store = &domain.Store{
			ID:        uuid.NewString(),
			Provider:  provider,
			CreatedAt: now,
		}
	}
	if store.TenantID == nil {
		store.TenantID = domain.StringPtr(tenantID)
	}

	if err := sealTokens(r.cipher, store, tokens, profile.AuthorizationToken, now); err != nil {
		return nil, err
	}
	store.ApplyProfile(profile)
	store.Status = domain.StoreStatusActive
	store.DeletedAt = nil
	store.ResetErrors()
	store.UpdatedAt = now

	if isNew {
		if err := r.stores.Create(ctx, store); err != nil {
			if errors.Is(err, domain.ErrDuplicateStore) {
				r.logger.Warn().Str("merchant_id", profile.MerchantID).Msg("Concurrent connect created the store first")
			}
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
	} else if err := r.stores.Update(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to update store: %w", err)
	}

	r.logger.Info().
		Str("store_id", store.ID).
		Str("tenant_id", tenantID).
		Str("provider", string(provider)).
		Str("merchant_id", store.MerchantIDValue()).
		Bool("created", isNew).
		Msg("Store connected")
	return store, nil
}

func (r *IdentityResolver) findForConnect(ctx context.Context, tenantID string, provider domain.Provider, profile *domain.StoreProfile) (*domain.Store, error) {
	if profile.MerchantID != "" {
		store, err := r.stores.FindByMerchantID(ctx, provider, profile.MerchantID)
		if err != nil {
			return nil, fmt.Errorf("failed to find store: %w", err)
		}
		if store != nil {
			return store, nil
		}

		deleted, err := r.stores.FindDeletedByMerchantID(ctx, provider, profile.MerchantID)
		if err != nil {
			return nil, fmt.Errorf("failed to find deleted store: %w", err)
		}
		// A soft-deleted row of another tenant does not block a new connection
		if deleted != nil && (deleted.TenantID == nil || deleted.OwnedBy(tenantID)) {
			return deleted, nil
		}
		return nil, nil
	}

	return r.ResolveByProviderUUID(ctx, provider, profile.ProviderUUID)
}

// sealTokens encrypts the token set onto the store. The secondary token is only
// kept when the provider just confirmed it.
func sealTokens(cipher ports.EncryptionService, store *domain.Store, tokens *domain.TokenSet, discoveredAuthorization string, now time.Time) error {
	access, err := cipher.Encrypt(tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := cipher.Encrypt(tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	authorization := tokens.AuthorizationToken
	if authorization == "" {
		authorization = discoveredAuthorization
	}
	sealedAuthorization, err := cipher.Encrypt(authorization)
	if err != nil {
		return fmt.Errorf("failed to encrypt authorization token: %w", err)
	}

	store.EncryptedAccessToken = access
	store.EncryptedRefreshToken = refresh
	store.EncryptedAuthorizationToken = sealedAuthorization
	store.TokenExpiresAt = tokens.ExpiresAt(now)
	store.LastTokenRefreshAt = &now
	return nil
}
