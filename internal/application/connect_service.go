package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
)

// DefaultCallbackTimeout bounds code exchange plus profile fetch on a callback.
// Provider authorization sessions expire quickly.
const DefaultCallbackTimeout = 10 * time.Second

// Callback flows
const (
	FlowDashboard  = "dashboard"
	FlowStorefront = "storefront"
)

// ConnectConfig holds deployment specific values
type ConnectConfig struct {
	// WebhookBaseURL is the public base the providers deliver webhooks to
	WebhookBaseURL string
	// AppIDs identifies this application per provider when managing webhooks
	AppIDs map[domain.Provider]string
	// CallbackTimeout defaults to DefaultCallbackTimeout
	CallbackTimeout time.Duration
}

// CallbackParams is what the provider sends back to the redirect URI
type CallbackParams struct {
	Code  string
	State string
	Error string
	Shop  string
}

// CallbackResult describes a completed callback
type CallbackResult struct {
	Flow      string
	Store     *domain.Store
	IsNewUser bool
}

// ConnectService drives the OAuth callback, sync and store administration
type ConnectService struct {
	adapters map[domain.Provider]ports.ProviderAdapter
	issuer   *StateIssuer
	resolver *IdentityResolver
	tokens   *TokenLifecycle
	webhooks *WebhookManager
	stores   ports.StoreRepository
	tenants  ports.TenantDirectory
	users    ports.UserProvisioner
	queue    ports.TaskQueue
	cipher   ports.EncryptionService
	cfg      ConnectConfig
	metrics  ports.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewConnectService wires the lifecycle components together
func NewConnectService(
	adapters []ports.ProviderAdapter,
	issuer *StateIssuer,
	resolver *IdentityResolver,
	tokens *TokenLifecycle,
	webhooks *WebhookManager,
	stores ports.StoreRepository,
	tenants ports.TenantDirectory,
	users ports.UserProvisioner,
	queue ports.TaskQueue,
	cipher ports.EncryptionService,
	cfg ConnectConfig,
	metrics ports.Metrics,
	logger zerolog.Logger,
) *ConnectService {
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = DefaultCallbackTimeout
	}
	byProvider := make(map[domain.Provider]ports.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		byProvider[a.Provider()] = a
	}
	return &ConnectService{
		adapters: byProvider,
		issuer:   issuer,
		resolver: resolver,
		tokens:   tokens,
		webhooks: webhooks,
		stores:   stores,
		tenants:  tenants,
		users:    users,
		queue:    queue,
		cipher:   cipher,
		cfg:      cfg,
		metrics:  metricsOrNop(metrics),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ConnectService) adapter(provider domain.Provider) (ports.ProviderAdapter, error) {
	a, ok := s.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s is not configured", provider)
	}
	return a, nil
}

// AuthorizationURL issues a state for tenantID and returns the provider consent URL
func (s *ConnectService) AuthorizationURL(ctx context.Context, tenantID string, provider domain.Provider, params map[string]string) (string, error) {
	adapter, err := s.adapter(provider)
	if err != nil {
		return "", err
	}

	state, err := s.issuer.Issue(ctx, tenantID, params)
	if err != nil {
		return "", err
	}
	return adapter.BuildAuthorizationURL(state, params)
}

// HandleCallback completes an authorization. A live state means the tenant
// started the flow from the dashboard. Without one the merchant installed from
// the provider's app store and ownership is resolved from the merchant id.
func (s *ConnectService) HandleCallback(ctx context.Context, provider domain.Provider, params CallbackParams) (*CallbackResult, error) {
	if params.Error != "" {
		return nil, fmt.Errorf("provider denied authorization: %s", params.Error)
	}
	if params.Code == "" {
		return nil, fmt.Errorf("authorization code is missing")
	}

	adapter, err := s.adapter(provider)
	if err != nil {
		return nil, err
	}

	exchangeParams := map[string]string{}
	if params.Shop != "" {
		exchangeParams["shop"] = params.Shop
	}

	valid, err := s.issuer.PeekValid(ctx, params.State)
	if err != nil {
		return nil, err
	}
	if valid {
		st, err := s.issuer.Consume(ctx, params.State)
		if err != nil {
			return nil, err
		}
		for k, v := range st.Metadata {
			if _, ok := exchangeParams[k]; !ok {
				exchangeParams[k] = v
			}
		}
		return s.dashboardCallback(ctx, adapter, st.TenantID, params.Code, exchangeParams)
	}

	if params.State != "" {
		s.logger.Warn().Str("provider", string(provider)).Msg("Callback state is not valid, handling as storefront install")
	}
	return s.storefrontCallback(ctx, adapter, params.Code, exchangeParams)
}

func (s *ConnectService) dashboardCallback(ctx context.Context, adapter ports.ProviderAdapter, tenantID, code string, params map[string]string) (*CallbackResult, error) {
	tokens, profile, err := s.authorize(ctx, adapter, code, params)
	if err != nil {
		return nil, err
	}

	store, err := s.resolver.Connect(ctx, tenantID, adapter.Provider(), tokens, profile)
	if err != nil {
		return nil, err
	}

	s.afterConnect(ctx, store, tokens, profile)
	return &CallbackResult{Flow: FlowDashboard, Store: store}, nil
}

func (s *ConnectService) storefrontCallback(ctx context.Context, adapter ports.ProviderAdapter, code string, params map[string]string) (*CallbackResult, error) {
	tokens, profile, err := s.authorize(ctx, adapter, code, params)
	if err != nil {
		return nil, err
	}
	provider := adapter.Provider()

	existing, err := s.resolver.FindExisting(ctx, provider, profile.MerchantID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing, err = s.resolver.ResolveByProviderUUID(ctx, provider, profile.ProviderUUID)
		if err != nil {
			return nil, err
		}
	}

	result := &CallbackResult{Flow: FlowStorefront}
	tenantID := ""
	if existing != nil {
		tenantID = existing.TenantIDValue()
	}

	if tenantID == "" {
		tenantID, err = s.tenantForInstall(ctx, profile)
		if err != nil {
			return nil, err
		}
	}

	store, err := s.resolver.Connect(ctx, tenantID, provider, tokens, profile)
	if err != nil {
		return nil, err
	}
	result.Store = store

	if s.users != nil {
		provisioned, err := s.users.ProvisionUserAndNotify(ctx, profile, store)
		if err != nil {
			s.logger.Error().Err(err).Str("store_id", store.ID).Msg("Failed to provision user for install")
		} else if provisioned != nil {
			result.IsNewUser = provisioned.IsNewUser
		}
	}

	s.afterConnect(ctx, store, tokens, profile)
	return result, nil
}

// tenantForInstall finds the tenant of the merchant's user or creates one
func (s *ConnectService) tenantForInstall(ctx context.Context, profile *domain.StoreProfile) (string, error) {
	if s.users != nil && profile.Email != "" {
		user, err := s.users.FindUserByEmail(ctx, profile.Email)
		if err != nil {
			return "", fmt.Errorf("failed to find user: %w", err)
		}
		if user != nil && user.TenantID != "" {
			return user.TenantID, nil
		}
	}

	tenant, err := s.tenants.CreateTenant(ctx, profile)
	if err != nil {
		return "", fmt.Errorf("failed to create tenant: %w", err)
	}
	s.logger.Info().Str("tenant_id", tenant.ID).Str("merchant_id", profile.MerchantID).Msg("Created tenant for storefront install")
	return tenant.ID, nil
}

// authorize exchanges the code and reads the profile within the callback budget.
// An incomplete profile is patched with placeholders so onboarding continues;
// sync repairs it later.
func (s *ConnectService) authorize(ctx context.Context, adapter ports.ProviderAdapter, code string, params map[string]string) (*domain.TokenSet, *domain.StoreProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallbackTimeout)
	defer cancel()

	tokens, err := adapter.ExchangeCode(ctx, code, params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	profile, err := adapter.FetchStoreProfile(ctx, tokens)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch store profile: %w", err)
	}

	if missing := profile.MissingFields(); len(missing) > 0 {
		incomplete := &domain.ProviderDataIncompleteError{Provider: adapter.Provider(), Missing: missing}
		s.logger.Warn().Err(incomplete).Msg("Persisting store with placeholder profile")
		profile.FillPlaceholders()
	}
	if profile.MerchantID == "" && profile.ProviderUUID == "" {
		return nil, nil, &domain.ProviderDataIncompleteError{Provider: adapter.Provider(), Missing: []string{"merchant_id", "provider_uuid"}}
	}
	return tokens, profile, nil
}

// afterConnect schedules the slow follow-up work off the request path
func (s *ConnectService) afterConnect(ctx context.Context, store *domain.Store, tokens *domain.TokenSet, profile *domain.StoreProfile) {
	s.enqueue(ctx, TaskRegisterWebhooks, store.ID)

	if store.Provider == domain.ProviderZid && !tokens.HasAuthorizationToken() && profile.AuthorizationToken == "" {
		s.enqueue(ctx, TaskEnrichAuthorization, store.ID)
	}
}

func (s *ConnectService) enqueue(ctx context.Context, taskType, storeID string) {
	if s.queue == nil {
		return
	}
	payload, err := json.Marshal(StoreTaskPayload{StoreID: storeID})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode task payload")
		return
	}
	if err := s.queue.Enqueue(ctx, ports.Task{Type: taskType, Payload: payload}); err != nil {
		s.logger.Error().Err(err).Str("task", taskType).Str("store_id", storeID).Msg("Failed to enqueue task")
		return
	}
	s.logger.Debug().Str("task", taskType).Str("store_id", storeID).Msg("Task enqueued")
}

// ownedStore loads a store and hides stores of other tenants
func (s *ConnectService) ownedStore(ctx context.Context, tenantID, storeID string) (*domain.Store, error) {
	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	if store == nil || store.IsDeleted() || !store.OwnedBy(tenantID) {
		return nil, domain.ErrStoreNotFound
	}
	return store, nil
}

// Sync refreshes the profile and cached counts of a store
func (s *ConnectService) Sync(ctx context.Context, tenantID, storeID string) (*domain.Store, error) {
	store, err := s.ownedStore(ctx, tenantID, storeID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapter(store.Provider)
	if err != nil {
		return nil, err
	}

	tokens, err := s.tokens.AccessTokens(ctx, store)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().Str("store_id", store.ID).Str("provider", string(store.Provider)).Logger()

	profile, err := adapter.FetchStoreProfile(ctx, tokens)
	if err != nil {
		s.recordFailure(ctx, store, err)
		return nil, fmt.Errorf("failed to sync store profile: %w", err)
	}

	if profile.MerchantID != "" && store.MerchantIDValue() != "" && profile.MerchantID != store.MerchantIDValue() {
		log.Warn().Str("profile_merchant_id", profile.MerchantID).Msg("Provider reports a different merchant id, keeping stored id")
		profile.MerchantID = ""
	}
	if len(profile.MissingFields()) > 0 {
		profile.FillPlaceholders()
	}
	store.ApplyProfile(profile)

	if fetcher, ok := adapter.(ports.StoreStatsFetcher); ok {
		counts, err := fetcher.FetchStoreCounts(ctx, tokens)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to fetch store counts")
		} else {
			now := s.now()
			store.OrdersCount = counts.Orders
			store.ProductsCount = counts.Products
			store.CustomersCount = counts.Customers
			store.StatsSyncedAt = &now
		}
	}

	if store.Status != domain.StoreStatusActive && store.Status != domain.StoreStatusSuspended {
		store.Status = domain.StoreStatusActive
	}
	store.ResetErrors()
	store.UpdatedAt = s.now()
	if err := s.stores.Update(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to save synced store: %w", err)
	}

	log.Info().Msg("Store synced")
	return store, nil
}

func (s *ConnectService) recordFailure(ctx context.Context, store *domain.Store, cause error) {
	store.ConsecutiveErrors++
	store.LastError = cause.Error()
	now := s.now()
	store.LastErrorAt = &now
	store.UpdatedAt = now
	if err := s.stores.Update(ctx, store); err != nil {
		s.logger.Error().Err(err).Str("store_id", store.ID).Msg("Failed to record store error")
	}
}

// ConnectWithAPIKey connects a generic store with a raw admin API token.
// Such stores have no refresh path.
func (s *ConnectService) ConnectWithAPIKey(ctx context.Context, tenantID, shop, apiKey string) (*domain.Store, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	adapter, err := s.adapter(domain.ProviderOther)
	if err != nil {
		return nil, err
	}

	tokens := &domain.TokenSet{AccessToken: apiKey, StoreDomain: shop}
	profile, err := adapter.FetchStoreProfile(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to verify api key: %w", err)
	}
	if len(profile.MissingFields()) > 0 {
		profile.FillPlaceholders()
	}

	store, err := s.resolver.Connect(ctx, tenantID, domain.ProviderOther, tokens, profile)
	if err != nil {
		return nil, err
	}
	s.afterConnect(ctx, store, tokens, profile)
	return store, nil
}

// Disconnect drops the credentials of a store and keeps the row
func (s *ConnectService) Disconnect(ctx context.Context, tenantID, storeID string) (*domain.Store, error) {
	store, err := s.ownedStore(ctx, tenantID, storeID)
	if err != nil {
		return nil, err
	}

	store.ClearCredentials()
	store.Status = domain.StoreStatusDisconnected
	store.UpdatedAt = s.now()
	if err := s.stores.Update(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to disconnect store: %w", err)
	}

	s.logger.Info().Str("store_id", store.ID).Str("tenant_id", tenantID).Msg("Store disconnected")
	return store, nil
}

// HandleUninstall marks the store uninstalled, clears credentials and soft deletes it
func (s *ConnectService) HandleUninstall(ctx context.Context, store *domain.Store) error {
	now := s.now()
	store.ClearCredentials()
	store.Status = domain.StoreStatusUninstalled
	store.DeletedAt = &now
	store.UpdatedAt = now

	if err := s.stores.Update(ctx, store); err != nil {
		return fmt.Errorf("failed to mark store uninstalled: %w", err)
	}

	s.logger.Info().
		Str("store_id", store.ID).
		Str("provider", string(store.Provider)).
		Str("merchant_id", store.MerchantIDValue()).
		Msg("Store uninstalled")
	return nil
}

// ReassignTenant moves a store to another tenant. This is an explicit admin
// action and the only path that overwrites an existing owner.
func (s *ConnectService) ReassignTenant(ctx context.Context, storeID, newTenantID string) (*domain.Store, error) {
	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	if store == nil {
		return nil, domain.ErrStoreNotFound
	}

	tenant, err := s.tenants.FindTenant(ctx, newTenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}
	if tenant == nil || tenant.IsDeleted() {
		return nil, fmt.Errorf("tenant %s not found", newTenantID)
	}

	previous := store.TenantIDValue()
	store.TenantID = domain.StringPtr(newTenantID)
	store.UpdatedAt = s.now()
	if err := s.stores.Update(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to reassign store: %w", err)
	}

	s.logger.Warn().
		Str("store_id", store.ID).
		Str("previous_tenant_id", previous).
		Str("tenant_id", newTenantID).
		Msg("Store reassigned to another tenant")
	return store, nil
}

// RegisterWebhooks re-registers the provider subscriptions of a store
func (s *ConnectService) RegisterWebhooks(ctx context.Context, storeID string) (*domain.RegistrationResult, error) {
	store, tokens, err := s.storeTokens(ctx, storeID)
	if err != nil {
		return nil, err
	}

	target := strings.TrimRight(s.cfg.WebhookBaseURL, "/") + "/webhooks/" + string(store.Provider)
	return s.webhooks.Register(ctx, store.Provider, tokens, target, s.cfg.AppIDs[store.Provider])
}

// ListWebhooks returns the subscriptions the provider holds for a store
func (s *ConnectService) ListWebhooks(ctx context.Context, tenantID, storeID string) ([]domain.WebhookSubscription, error) {
	store, err := s.ownedStore(ctx, tenantID, storeID)
	if err != nil {
		return nil, err
	}
	tokens, err := s.tokens.AccessTokens(ctx, store)
	if err != nil {
		return nil, err
	}
	return s.webhooks.List(ctx, store.Provider, tokens)
}

// EnrichAuthorization probes the profile endpoints for the zid secondary token.
// When none is found the stored secondary token is cleared.
func (s *ConnectService) EnrichAuthorization(ctx context.Context, storeID string) error {
	store, tokens, err := s.storeTokens(ctx, storeID)
	if err != nil {
		return err
	}
	adapter, err := s.adapter(store.Provider)
	if err != nil {
		return err
	}

	log := s.logger.With().Str("store_id", store.ID).Logger()

	lookup := &domain.TokenSet{AccessToken: tokens.AccessToken, StoreDomain: tokens.StoreDomain}
	profile, err := adapter.FetchStoreProfile(ctx, lookup)
	if err != nil && !domain.IsTransient(err) {
		log.Warn().Err(err).Msg("Profile probing failed, continuing without authorization token")
		profile = &domain.StoreProfile{}
	} else if err != nil {
		return fmt.Errorf("failed to probe store profile: %w", err)
	}

	sealed, err := s.cipher.Encrypt(profile.AuthorizationToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt authorization token: %w", err)
	}
	store.EncryptedAuthorizationToken = sealed
	store.UpdatedAt = s.now()
	if err := s.stores.Update(ctx, store); err != nil {
		return fmt.Errorf("failed to save authorization token: %w", err)
	}

	if profile.AuthorizationToken == "" {
		log.Warn().Msg("No authorization token available, using manager token only")
	} else {
		log.Info().Msg("Authorization token enriched")
	}
	return nil
}

func (s *ConnectService) storeTokens(ctx context.Context, storeID string) (*domain.Store, *domain.TokenSet, error) {
	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get store: %w", err)
	}
	if store == nil || store.IsDeleted() {
		return nil, nil, domain.ErrStoreNotFound
	}
	tokens, err := s.tokens.AccessTokens(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	return store, tokens, nil
}

// TaskHandlers maps background task types to their processors
func (s *ConnectService) TaskHandlers() map[string]ports.TaskHandlerFunc {
	return map[string]ports.TaskHandlerFunc{
		TaskRegisterWebhooks: func(ctx context.Context, payload []byte) error {
			p, err := decodeStoreTask(payload)
			if err != nil {
				return err
			}
			_, err = s.RegisterWebhooks(ctx, p.StoreID)
			return permanentTaskError(err)
		},
		TaskEnrichAuthorization: func(ctx context.Context, payload []byte) error {
			p, err := decodeStoreTask(payload)
			if err != nil {
				return err
			}
			return permanentTaskError(s.EnrichAuthorization(ctx, p.StoreID))
		},
	}
}

// permanentTaskError marks failures that no retry can fix
func permanentTaskError(err error) error {
	if errors.Is(err, domain.ErrStoreNotFound) || errors.Is(err, domain.ErrReauthorizationRequired) {
		return fmt.Errorf("%w: %w", ports.ErrPermanentTask, err)
	}
	return err
}

func decodeStoreTask(payload []byte) (*StoreTaskPayload, error) {
	var p StoreTaskPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid payload: %v", ports.ErrPermanentTask, err)
	}
	if p.StoreID == "" {
		return nil, fmt.Errorf("%w: store id is missing", ports.ErrPermanentTask)
	}
	return &p, nil
}
