package application

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/encryption"
	"merchant-connect-layer/internal/infrastructure/repository"
	"merchant-connect-layer/internal/infrastructure/state"
	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	provider        domain.Provider
	supportsRefresh bool

	exchange func(code string) (*domain.TokenSet, error)
	refresh  func(refreshToken string) (*domain.TokenSet, error)
	profile  func(tokens *domain.TokenSet) (*domain.StoreProfile, error)
	// profileCtx overrides profile when the test needs the call context
	profileCtx func(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error)
	counts   *domain.StoreCounts

	refreshCalls  atomic.Int32
	exchangeCalls atomic.Int32
}

func newFakeAdapter(provider domain.Provider, merchantID string) *fakeAdapter {
	return &fakeAdapter{
		provider:        provider,
		supportsRefresh: provider != domain.ProviderOther,
		exchange: func(code string) (*domain.TokenSet, error) {
			return &domain.TokenSet{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, ExpiresIn: 3600}, nil
		},
		refresh: func(refreshToken string) (*domain.TokenSet, error) {
			return &domain.TokenSet{AccessToken: "refreshed-access", RefreshToken: "refreshed-refresh", ExpiresIn: 3600}, nil
		},
		profile: func(*domain.TokenSet) (*domain.StoreProfile, error) {
			return &domain.StoreProfile{MerchantID: merchantID, Name: "Shop " + merchantID, Email: "owner@" + merchantID + ".test"}, nil
		},
	}
}

func (a *fakeAdapter) Provider() domain.Provider { return a.provider }
func (a *fakeAdapter) SupportsRefresh() bool     { return a.supportsRefresh }

func (a *fakeAdapter) BuildAuthorizationURL(state string, _ map[string]string) (string, error) {
	return "https://auth.test/authorize?state=" + state, nil
}

func (a *fakeAdapter) ExchangeCode(_ context.Context, code string, _ map[string]string) (*domain.TokenSet, error) {
	a.exchangeCalls.Add(1)
	return a.exchange(code)
}

func (a *fakeAdapter) Refresh(_ context.Context, refreshToken string) (*domain.TokenSet, error) {
	a.refreshCalls.Add(1)
	return a.refresh(refreshToken)
}

func (a *fakeAdapter) FetchStoreProfile(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error) {
	if a.profileCtx != nil {
		return a.profileCtx(ctx, tokens)
	}
	return a.profile(tokens)
}

func (a *fakeAdapter) FetchStoreCounts(context.Context, *domain.TokenSet) (*domain.StoreCounts, error) {
	if a.counts == nil {
		return &domain.StoreCounts{}, nil
	}
	c := *a.counts
	return &c, nil
}

type fakeWebhookAPI struct {
	provider domain.Provider
	events   []string

	mu          sync.Mutex
	deleteErrs  []error
	createErrs  map[string][]error
	inactive    map[string]bool
	deleteCalls int
	created     []string
	targetURL   string
}

func newFakeWebhookAPI(provider domain.Provider, events ...string) *fakeWebhookAPI {
	return &fakeWebhookAPI{
		provider:   provider,
		events:     events,
		createErrs: map[string][]error{},
		inactive:   map[string]bool{},
	}
}

func (f *fakeWebhookAPI) Provider() domain.Provider { return f.provider }
func (f *fakeWebhookAPI) RequiredEvents() []string  { return f.events }

func (f *fakeWebhookAPI) DeleteSubscriptions(context.Context, *domain.TokenSet, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if len(f.deleteErrs) > 0 {
		err := f.deleteErrs[0]
		f.deleteErrs = f.deleteErrs[1:]
		return err
	}
	f.created = nil
	return nil
}

func (f *fakeWebhookAPI) CreateSubscription(_ context.Context, _ *domain.TokenSet, event, targetURL, _ string) (*domain.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.createErrs[event]; len(errs) > 0 {
		f.createErrs[event] = errs[1:]
		return nil, errs[0]
	}
	f.created = append(f.created, event)
	f.targetURL = targetURL
	return &domain.WebhookSubscription{ID: "sub-" + event, Event: event, TargetURL: targetURL, Active: !f.inactive[event]}, nil
}

func (f *fakeWebhookAPI) ListSubscriptions(context.Context, *domain.TokenSet) ([]domain.WebhookSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := make([]domain.WebhookSubscription, 0, len(f.created))
	for _, e := range f.created {
		subs = append(subs, domain.WebhookSubscription{ID: "sub-" + e, Event: e, TargetURL: f.targetURL, Active: true})
	}
	return subs, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []ports.Task
}

func (q *recordingQueue) Enqueue(_ context.Context, task ports.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.Type)
	}
	return out
}

type fakeUsers struct {
	byEmail     map[string]*domain.User
	provisioned []string
}

func (u *fakeUsers) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	return u.byEmail[email], nil
}

func (u *fakeUsers) ProvisionUserAndNotify(_ context.Context, profile *domain.StoreProfile, store *domain.Store) (*domain.ProvisionResult, error) {
	u.provisioned = append(u.provisioned, store.ID)
	_, exists := u.byEmail[profile.Email]
	return &domain.ProvisionResult{UserID: "u-" + profile.Email, TenantID: store.TenantIDValue(), IsNewUser: !exists}, nil
}

type testEnv struct {
	stores   *repository.MemoryStoreRepository
	events   *repository.MemoryWebhookEventRepository
	tenants  *repository.MemoryTenantRepository
	cipher   *encryption.Service
	queue    *recordingQueue
	users    *fakeUsers
	adapters map[domain.Provider]*fakeAdapter
	apis     map[domain.Provider]*fakeWebhookAPI

	issuer   *StateIssuer
	resolver *IdentityResolver
	tokens   *TokenLifecycle
	webhooks *WebhookManager
	connect  *ConnectService
	ingest   *WebhookIngestService
}

func newTestEnv(t *testing.T, tenants ...*domain.Tenant) *testEnv {
	t.Helper()

	cipher, err := encryption.NewService("test-encryption-key")
	require.NoError(t, err)

	logger := zerolog.Nop()
	env := &testEnv{
		stores:  repository.NewMemoryStoreRepository(),
		events:  repository.NewMemoryWebhookEventRepository(),
		tenants: repository.NewMemoryTenantRepository(tenants...),
		cipher:  cipher,
		queue:   &recordingQueue{},
		users:   &fakeUsers{byEmail: map[string]*domain.User{}},
		adapters: map[domain.Provider]*fakeAdapter{
			domain.ProviderSalla: newFakeAdapter(domain.ProviderSalla, "426101474"),
			domain.ProviderZid:   newFakeAdapter(domain.ProviderZid, "5501"),
			domain.ProviderOther: newFakeAdapter(domain.ProviderOther, "9001"),
		},
		apis: map[domain.Provider]*fakeWebhookAPI{
			domain.ProviderSalla: newFakeWebhookAPI(domain.ProviderSalla, "app.uninstalled", "order.created"),
			domain.ProviderZid:   newFakeWebhookAPI(domain.ProviderZid, "order.create"),
		},
	}

	adapters := make([]ports.ProviderAdapter, 0, len(env.adapters))
	for _, a := range env.adapters {
		adapters = append(adapters, a)
	}
	apis := make([]ports.WebhookAPI, 0, len(env.apis))
	for _, a := range env.apis {
		apis = append(apis, a)
	}

	env.issuer = NewStateIssuer(state.NewMemoryStore(), logger)
	env.resolver = NewIdentityResolver(env.stores, env.events, env.tenants, cipher, nil, logger)
	env.tokens = NewTokenLifecycle(env.stores, cipher, adapters, env.queue, nil, logger)
	env.webhooks = NewWebhookManager(apis, 0, nil, logger)
	env.webhooks.sleep = func(context.Context, time.Duration) error { return nil }
	env.connect = NewConnectService(
		adapters, env.issuer, env.resolver, env.tokens, env.webhooks,
		env.stores, env.tenants, env.users, env.queue, cipher,
		ConnectConfig{WebhookBaseURL: "https://hooks.test/", AppIDs: map[domain.Provider]string{domain.ProviderZid: "app-1"}},
		nil, logger,
	)
	env.ingest = NewWebhookIngestService(env.events, env.resolver, nil, logger)
	return env
}

// seedStore persists a store with sealed tokens expiring at expiresAt
func (e *testEnv) seedStore(t *testing.T, store *domain.Store, access, refresh string, expiresAt *time.Time) *domain.Store {
	t.Helper()

	sealedAccess, err := e.cipher.Encrypt(access)
	require.NoError(t, err)
	sealedRefresh, err := e.cipher.Encrypt(refresh)
	require.NoError(t, err)

	store.EncryptedAccessToken = sealedAccess
	store.EncryptedRefreshToken = sealedRefresh
	store.TokenExpiresAt = expiresAt
	if store.Status == "" {
		store.Status = domain.StoreStatusActive
	}
	require.NoError(t, e.stores.Create(context.Background(), store))
	return store
}

func (e *testEnv) reload(t *testing.T, id string) *domain.Store {
	t.Helper()
	s, err := e.stores.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func storeTaskPayload(t *testing.T, storeID string) []byte {
	t.Helper()
	b, err := json.Marshal(StoreTaskPayload{StoreID: storeID})
	require.NoError(t, err)
	return b
}
