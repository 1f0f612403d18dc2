package repository

import (
	"context"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRepository_UniqueLiveMerchant(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStoreRepository()

	first := &domain.Store{ID: "s1", Provider: domain.ProviderSalla, MerchantID: domain.StringPtr("42")}
	require.NoError(t, repo.Create(ctx, first))

	dup := &domain.Store{ID: "s2", Provider: domain.ProviderSalla, MerchantID: domain.StringPtr("42")}
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrDuplicateStore)

	otherProvider := &domain.Store{ID: "s3", Provider: domain.ProviderZid, MerchantID: domain.StringPtr("42")}
	assert.NoError(t, repo.Create(ctx, otherProvider))

	// several placeholders may lack a merchant id
	assert.NoError(t, repo.Create(ctx, &domain.Store{ID: "p1", Provider: domain.ProviderSalla}))
	assert.NoError(t, repo.Create(ctx, &domain.Store{ID: "p2", Provider: domain.ProviderSalla}))

	now := time.Now()
	first.DeletedAt = &now
	require.NoError(t, repo.Update(ctx, first))
	assert.NoError(t, repo.Create(ctx, dup), "a soft-deleted row frees the merchant id")
}

func TestMemoryStoreRepository_Lookups(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStoreRepository()

	deletedAt := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, &domain.Store{
		ID: "old", Provider: domain.ProviderZid, MerchantID: domain.StringPtr("7"),
		TenantID: domain.StringPtr("t1"), DeletedAt: &deletedAt,
	}))
	require.NoError(t, repo.Create(ctx, &domain.Store{
		ID: "live", Provider: domain.ProviderZid, MerchantID: domain.StringPtr("8"),
		ProviderUUID: "uuid-8", TenantID: domain.StringPtr("t1"),
	}))

	live, err := repo.FindByMerchantID(ctx, domain.ProviderZid, "7")
	require.NoError(t, err)
	assert.Nil(t, live)

	deleted, err := repo.FindDeletedByMerchantID(ctx, domain.ProviderZid, "7")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "old", deleted.ID)

	byUUID, err := repo.FindByProviderUUID(ctx, domain.ProviderZid, "uuid-8")
	require.NoError(t, err)
	require.NotNil(t, byUUID)
	assert.Equal(t, "live", byUUID.ID)

	list, err := repo.ListByTenant(ctx, "t1", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "live", list[0].ID)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStoreRepository()
	require.NoError(t, repo.Create(ctx, &domain.Store{ID: "s1", Provider: domain.ProviderSalla, Name: "Before"}))

	got, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	got.Name = "After"

	again, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Before", again.Name)
}

func TestMemoryStoreRepository_UpdateUnknown(t *testing.T) {
	repo := NewMemoryStoreRepository()
	err := repo.Update(context.Background(), &domain.Store{ID: "ghost"})
	assert.ErrorIs(t, err, domain.ErrStoreNotFound)
}

func TestMemoryWebhookEventRepository_DistinctTenantIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryWebhookEventRepository()

	require.NoError(t, repo.Append(ctx, &domain.WebhookEvent{Provider: domain.ProviderSalla, TenantID: domain.StringPtr("t2"), MerchantID: "1"}))
	require.NoError(t, repo.Append(ctx, &domain.WebhookEvent{Provider: domain.ProviderSalla, TenantID: domain.StringPtr("t1"), MerchantID: "2"}))
	require.NoError(t, repo.Append(ctx, &domain.WebhookEvent{Provider: domain.ProviderSalla, TenantID: domain.StringPtr("t2"), MerchantID: "1"}))
	require.NoError(t, repo.Append(ctx, &domain.WebhookEvent{Provider: domain.ProviderSalla, MerchantID: "3"}))
	require.NoError(t, repo.Append(ctx, &domain.WebhookEvent{Provider: domain.ProviderZid, TenantID: domain.StringPtr("t9")}))

	all, err := repo.DistinctTenantIDs(ctx, domain.ProviderSalla, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2", "t1"}, all)

	hinted, err := repo.DistinctTenantIDs(ctx, domain.ProviderSalla, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, hinted)

	assert.Len(t, repo.Events(), 5)
}

func TestMemoryTenantRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTenantRepository(&domain.Tenant{ID: "t1", Name: "Acme"})

	found, err := repo.FindTenant(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Acme", found.Name)

	created, err := repo.CreateTenant(ctx, &domain.StoreProfile{Name: "New Shop", Email: "owner@shop.test"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "owner@shop.test", created.Email)

	missing, err := repo.FindTenant(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
