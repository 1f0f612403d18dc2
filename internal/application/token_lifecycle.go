package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// RefreshBuffer treats tokens expiring within this window as already expired
const RefreshBuffer = 5 * time.Minute

// TokenLifecycle hands out valid access tokens and refreshes them on demand
type TokenLifecycle struct {
	stores   ports.StoreRepository
	cipher   ports.EncryptionService
	adapters map[domain.Provider]ports.ProviderAdapter
	queue    ports.TaskQueue
	metrics  ports.Metrics
	group    singleflight.Group
	buffer   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTokenLifecycle creates a token manager. queue may be nil; it is used to
// schedule secondary token enrichment after a refresh drops that token.
func NewTokenLifecycle(
	stores ports.StoreRepository,
	cipher ports.EncryptionService,
	adapters []ports.ProviderAdapter,
	queue ports.TaskQueue,
	metrics ports.Metrics,
	logger zerolog.Logger,
) *TokenLifecycle {
	byProvider := make(map[domain.Provider]ports.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		byProvider[a.Provider()] = a
	}
	return &TokenLifecycle{
		stores:   stores,
		cipher:   cipher,
		adapters: byProvider,
		queue:    queue,
		metrics:  metricsOrNop(metrics),
		buffer:   RefreshBuffer,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsureValidAccessToken returns a usable plaintext access token for store,
// refreshing and persisting a new pair first when needed. On success the
// passed store reflects the persisted state.
func (m *TokenLifecycle) EnsureValidAccessToken(ctx context.Context, store *domain.Store) (string, error) {
	adapter, ok := m.adapters[store.Provider]
	if !ok {
		return "", fmt.Errorf("no adapter registered for provider %s", store.Provider)
	}

	access := m.cipher.DecryptSafe(store.EncryptedAccessToken)

	if !adapter.SupportsRefresh() {
		if access == "" {
			return "", domain.ErrReauthorizationRequired
		}
		return access, nil
	}

	if access != "" && m.fresh(store) {
		return access, nil
	}

	v, err, shared := m.group.Do(store.ID, func() (interface{}, error) {
		return m.refresh(ctx, adapter, store.ID)
	})
	if err != nil {
		return "", err
	}

	snapshot := *(v.(*domain.Store))
	*store = snapshot
	if shared {
		m.logger.Debug().Str("store_id", store.ID).Msg("Joined in-flight token refresh")
	}
	return m.cipher.DecryptSafe(store.EncryptedAccessToken), nil
}

// AccessTokens returns the full decrypted token set needed for provider API calls
func (m *TokenLifecycle) AccessTokens(ctx context.Context, store *domain.Store) (*domain.TokenSet, error) {
	access, err := m.EnsureValidAccessToken(ctx, store)
	if err != nil {
		return nil, err
	}
	return &domain.TokenSet{
		AccessToken:        access,
		AuthorizationToken: m.cipher.DecryptSafe(store.EncryptedAuthorizationToken),
		StoreDomain:        store.Domain,
	}, nil
}

func (m *TokenLifecycle) fresh(store *domain.Store) bool {
	if store.TokenExpiresAt == nil {
		return true
	}
	return store.TokenExpiresAt.After(m.now().Add(m.buffer))
}

// refresh runs at most once per store at a time. It reloads the row so a
// refresh persisted by another caller is reused instead of repeated.
func (m *TokenLifecycle) refresh(ctx context.Context, adapter ports.ProviderAdapter, storeID string) (*domain.Store, error) {
	store, err := m.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	if store == nil {
		return nil, domain.ErrStoreNotFound
	}

	log := m.logger.With().
		Str("store_id", store.ID).
		Str("provider", string(store.Provider)).
		Logger()

	if m.cipher.DecryptSafe(store.EncryptedAccessToken) != "" && m.fresh(store) {
		return store, nil
	}

	refreshToken := m.cipher.DecryptSafe(store.EncryptedRefreshToken)
	if strings.TrimSpace(refreshToken) == "" {
		store.RecordError(domain.StoreStatusTokenExpired, domain.ErrReauthorizationRequired, m.now())
		store.UpdatedAt = m.now()
		if err := m.stores.Update(ctx, store); err != nil {
			log.Error().Err(err).Msg("Failed to persist token_expired status")
		}
		log.Warn().Msg("No refresh token available, store must be reconnected")
		m.metrics.ObserveRefresh(store.Provider, OutcomeSkipped)
		return nil, domain.ErrReauthorizationRequired
	}

	log.Info().Msg("Refreshing access token")
	tokens, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		store.RecordError(domain.StoreStatusTokenExpired, err, m.now())
		store.UpdatedAt = m.now()
		if uerr := m.stores.Update(ctx, store); uerr != nil {
			log.Error().Err(uerr).Msg("Failed to persist refresh failure")
		}
		log.Error().Err(err).Int("consecutive_errors", store.ConsecutiveErrors).Msg("Token refresh failed")
		m.metrics.ObserveRefresh(store.Provider, OutcomeFailure)
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	now := m.now()
	if err := sealTokens(m.cipher, store, tokens, "", now); err != nil {
		return nil, err
	}
	store.Status = domain.StoreStatusActive
	store.ResetErrors()
	store.UpdatedAt = now

	if err := m.stores.Update(ctx, store); err != nil {
		m.metrics.ObserveRefresh(store.Provider, OutcomeFailure)
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Info().Time("expires_at", derefTime(store.TokenExpiresAt)).Msg("Access token refreshed")
	m.metrics.ObserveRefresh(store.Provider, OutcomeSuccess)

	if store.Provider == domain.ProviderZid && !tokens.HasAuthorizationToken() {
		m.scheduleEnrichment(ctx, store.ID)
	}
	return store, nil
}

func (m *TokenLifecycle) scheduleEnrichment(ctx context.Context, storeID string) {
	if m.queue == nil {
		return
	}
	payload, err := json.Marshal(StoreTaskPayload{StoreID: storeID})
	if err != nil {
		return
	}
	if err := m.queue.Enqueue(ctx, ports.Task{Type: TaskEnrichAuthorization, Payload: payload}); err != nil {
		m.logger.Warn().Err(err).Str("store_id", storeID).Msg("Failed to schedule authorization enrichment")
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
