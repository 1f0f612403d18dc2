package onboarding

import (
	"context"
	"testing"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogProvisioner(t *testing.T) {
	ctx := context.Background()
	p := NewLogProvisioner(zerolog.Nop())
	store := &domain.Store{ID: "s1", TenantID: domain.StringPtr("tenant-1"), Provider: domain.ProviderSalla}

	first, err := p.ProvisionUserAndNotify(ctx, &domain.StoreProfile{Email: " Owner@Shop.test "}, store)
	require.NoError(t, err)
	assert.True(t, first.IsNewUser)
	assert.Equal(t, "tenant-1", first.TenantID)

	again, err := p.ProvisionUserAndNotify(ctx, &domain.StoreProfile{Email: "owner@shop.test"}, store)
	require.NoError(t, err)
	assert.False(t, again.IsNewUser)
	assert.Equal(t, first.UserID, again.UserID)

	user, err := p.FindUserByEmail(ctx, "OWNER@shop.test")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "tenant-1", user.TenantID)

	missing, err := p.FindUserByEmail(ctx, "nobody@shop.test")
	require.NoError(t, err)
	assert.Nil(t, missing)

	noEmail, err := p.ProvisionUserAndNotify(ctx, &domain.StoreProfile{}, store)
	require.NoError(t, err)
	assert.False(t, noEmail.IsNewUser)
}
