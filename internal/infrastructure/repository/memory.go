package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/google/uuid"
)

// MemoryStoreRepository is an in-process ports.StoreRepository. It enforces the
// same live (provider, merchant id) uniqueness as the MongoDB index.
type MemoryStoreRepository struct {
	mu     sync.RWMutex
	stores map[string]*domain.Store
}

func NewMemoryStoreRepository() *MemoryStoreRepository {
	return &MemoryStoreRepository{stores: make(map[string]*domain.Store)}
}

func (r *MemoryStoreRepository) Create(_ context.Context, store *domain.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store.ID == "" {
		store.ID = uuid.NewString()
	}
	if _, exists := r.stores[store.ID]; exists {
		return domain.ErrDuplicateStore
	}
	if r.conflicts(store) {
		return domain.ErrDuplicateStore
	}
	if store.CreatedAt.IsZero() {
		store.CreatedAt = time.Now()
	}
	if store.UpdatedAt.IsZero() {
		store.UpdatedAt = store.CreatedAt
	}
	r.stores[store.ID] = cloneStore(store)
	return nil
}

func (r *MemoryStoreRepository) Update(_ context.Context, store *domain.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[store.ID]; !exists {
		return domain.ErrStoreNotFound
	}
	if r.conflicts(store) {
		return domain.ErrDuplicateStore
	}
	store.UpdatedAt = time.Now()
	r.stores[store.ID] = cloneStore(store)
	return nil
}

func (r *MemoryStoreRepository) GetByID(_ context.Context, id string) (*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.stores[id]; ok {
		return cloneStore(s), nil
	}
	return nil, nil
}

func (r *MemoryStoreRepository) FindByMerchantID(_ context.Context, provider domain.Provider, merchantID string) (*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.stores {
		if s.Provider == provider && s.MerchantIDValue() == merchantID && s.MerchantID != nil && !s.IsDeleted() {
			return cloneStore(s), nil
		}
	}
	return nil, nil
}

func (r *MemoryStoreRepository) FindDeletedByMerchantID(_ context.Context, provider domain.Provider, merchantID string) (*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Store
	for _, s := range r.stores {
		if s.Provider != provider || s.MerchantID == nil || *s.MerchantID != merchantID || !s.IsDeleted() {
			continue
		}
		if latest == nil || s.DeletedAt.After(*latest.DeletedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneStore(latest), nil
}

func (r *MemoryStoreRepository) FindByProviderUUID(_ context.Context, provider domain.Provider, providerUUID string) (*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.stores {
		if s.Provider == provider && s.ProviderUUID == providerUUID && providerUUID != "" && !s.IsDeleted() {
			return cloneStore(s), nil
		}
	}
	return nil, nil
}

func (r *MemoryStoreRepository) ListByTenant(_ context.Context, tenantID string, provider domain.Provider) ([]*domain.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stores []*domain.Store
	for _, s := range r.stores {
		if !s.OwnedBy(tenantID) || s.IsDeleted() {
			continue
		}
		if provider != "" && s.Provider != provider {
			continue
		}
		stores = append(stores, cloneStore(s))
	}
	sort.Slice(stores, func(i, j int) bool {
		return stores[i].CreatedAt.Before(stores[j].CreatedAt)
	})
	return stores, nil
}

// All returns every row including soft-deleted ones
func (r *MemoryStoreRepository) All() []*domain.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stores := make([]*domain.Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, cloneStore(s))
	}
	return stores
}

// conflicts must be called with the lock held
func (r *MemoryStoreRepository) conflicts(store *domain.Store) bool {
	if store.MerchantID == nil || store.IsDeleted() {
		return false
	}
	for id, s := range r.stores {
		if id == store.ID || s.IsDeleted() || s.MerchantID == nil {
			continue
		}
		if s.Provider == store.Provider && *s.MerchantID == *store.MerchantID {
			return true
		}
	}
	return false
}

func cloneStore(s *domain.Store) *domain.Store {
	c := *s
	c.TenantID = cloneString(s.TenantID)
	c.MerchantID = cloneString(s.MerchantID)
	c.TokenExpiresAt = cloneTime(s.TokenExpiresAt)
	c.LastTokenRefreshAt = cloneTime(s.LastTokenRefreshAt)
	c.LastErrorAt = cloneTime(s.LastErrorAt)
	c.StatsSyncedAt = cloneTime(s.StatsSyncedAt)
	c.DeletedAt = cloneTime(s.DeletedAt)
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// MemoryWebhookEventRepository is an in-process ports.WebhookEventRepository
type MemoryWebhookEventRepository struct {
	mu     sync.RWMutex
	events []*domain.WebhookEvent
}

func NewMemoryWebhookEventRepository() *MemoryWebhookEventRepository {
	return &MemoryWebhookEventRepository{}
}

func (r *MemoryWebhookEventRepository) Append(_ context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *event
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.TenantID = cloneString(event.TenantID)
	r.events = append(r.events, &c)
	return nil
}

// DistinctTenantIDs returns tenant ids in first-seen order
func (r *MemoryWebhookEventRepository) DistinctTenantIDs(_ context.Context, provider domain.Provider, merchantHint string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, e := range r.events {
		if e.Provider != provider || e.TenantID == nil || *e.TenantID == "" {
			continue
		}
		if merchantHint != "" && e.MerchantID != merchantHint {
			continue
		}
		if _, ok := seen[*e.TenantID]; ok {
			continue
		}
		seen[*e.TenantID] = struct{}{}
		ids = append(ids, *e.TenantID)
	}
	return ids, nil
}

// Events returns a copy of the event log
func (r *MemoryWebhookEventRepository) Events() []domain.WebhookEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, *e)
	}
	return out
}

// MemoryTenantRepository is an in-process ports.TenantDirectory
type MemoryTenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]*domain.Tenant
}

func NewMemoryTenantRepository(tenants ...*domain.Tenant) *MemoryTenantRepository {
	r := &MemoryTenantRepository{tenants: make(map[string]*domain.Tenant)}
	for _, t := range tenants {
		c := *t
		r.tenants[t.ID] = &c
	}
	return r
}

func (r *MemoryTenantRepository) FindTenant(_ context.Context, id string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.tenants[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryTenantRepository) CreateTenant(_ context.Context, profile *domain.StoreProfile) (*domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := newTenant(profile)
	r.tenants[t.ID] = t
	c := *t
	return &c, nil
}
