package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/state"
	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateIssuer_IssueAndConsume(t *testing.T) {
	ctx := context.Background()
	issuer := NewStateIssuer(state.NewMemoryStore(), zerolog.Nop())

	token, err := issuer.Issue(ctx, "tenant-1", map[string]string{"shop": "demo.myshop.test"})
	require.NoError(t, err)
	assert.Len(t, token, 43)
	valid, err := issuer.PeekValid(ctx, token)
	require.NoError(t, err)
	assert.True(t, valid)

	st, err := issuer.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", st.TenantID)
	assert.Equal(t, "demo.myshop.test", st.Metadata["shop"])

	_, err = issuer.Consume(ctx, token)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "a state token is single use")
	valid, err = issuer.PeekValid(ctx, token)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestStateIssuer_Expired(t *testing.T) {
	ctx := context.Background()
	issuer := NewStateIssuer(state.NewMemoryStore(), zerolog.Nop())

	issued := time.Now()
	issuer.now = func() time.Time { return issued }
	token, err := issuer.Issue(ctx, "tenant-1", nil)
	require.NoError(t, err)

	issuer.now = func() time.Time { return issued.Add(StateTTL + time.Second) }
	valid, err := issuer.PeekValid(ctx, token)
	require.NoError(t, err)
	assert.False(t, valid)

	_, err = issuer.Consume(ctx, token)
	assert.ErrorIs(t, err, domain.ErrExpiredState)
}

func TestStateIssuer_Invalid(t *testing.T) {
	ctx := context.Background()
	issuer := NewStateIssuer(state.NewMemoryStore(), zerolog.Nop())

	_, err := issuer.Consume(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = issuer.Consume(ctx, "never-issued")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = issuer.Issue(ctx, "", nil)
	assert.Error(t, err)
}

func TestStateIssuer_TokensAreUnique(t *testing.T) {
	ctx := context.Background()
	issuer := NewStateIssuer(state.NewMemoryStore(), zerolog.Nop())

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := issuer.Issue(ctx, "tenant-1", nil)
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

// flakyStateStore fails reads while keeping writes working
type flakyStateStore struct {
	ports.StateStore
	readErr error
}

func (s *flakyStateStore) Peek(ctx context.Context, token string) (*domain.OAuthState, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.StateStore.Peek(ctx, token)
}

func (s *flakyStateStore) Take(ctx context.Context, token string) (*domain.OAuthState, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.StateStore.Take(ctx, token)
}

func TestStateIssuer_StoreFailureIsNotInvalidState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStateStore{StateStore: state.NewMemoryStore()}
	issuer := NewStateIssuer(store, zerolog.Nop())

	token, err := issuer.Issue(ctx, "tenant-1", nil)
	require.NoError(t, err)

	store.readErr = errors.New("redis: i/o timeout")

	valid, err := issuer.PeekValid(ctx, token)
	assert.False(t, valid)
	assert.ErrorIs(t, err, domain.ErrStateUnavailable)

	_, err = issuer.Consume(ctx, token)
	assert.ErrorIs(t, err, domain.ErrStateUnavailable)
	assert.NotErrorIs(t, err, domain.ErrInvalidState)

	store.readErr = nil
	valid, err = issuer.PeekValid(ctx, token)
	require.NoError(t, err)
	assert.True(t, valid, "a failed read does not burn the token")
}
