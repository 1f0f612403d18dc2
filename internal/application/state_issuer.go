package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
)

// StateTTL is how long an authorization round trip may take
const StateTTL = 10 * time.Minute

const stateTokenBytes = 32

// StateIssuer issues single-use CSRF tokens that bind an OAuth flow to a tenant
type StateIssuer struct {
	store  ports.StateStore
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewStateIssuer creates a state issuer over the given store
func NewStateIssuer(store ports.StateStore, logger zerolog.Logger) *StateIssuer {
	return &StateIssuer{
		store:  store,
		ttl:    StateTTL,
		now:    time.Now,
		logger: logger,
	}
}

// Issue creates a token for tenantID. metadata travels with the state, e.g. a shop host.
func (i *StateIssuer) Issue(ctx context.Context, tenantID string, metadata map[string]string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant id is required")
	}

	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := i.now()
	st := domain.OAuthState{
		TenantID:  tenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
		Metadata:  metadata,
	}
	if err := i.store.Save(ctx, token, st, i.ttl); err != nil {
		return "", fmt.Errorf("failed to save state: %w", err)
	}
	return token, nil
}

// Consume validates and burns the token
func (i *StateIssuer) Consume(ctx context.Context, token string) (*domain.OAuthState, error) {
	if token == "" {
		return nil, domain.ErrInvalidState
	}

	st, err := i.store.Take(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStateUnavailable, err)
	}
	if st == nil {
		return nil, domain.ErrInvalidState
	}
	if !i.now().Before(st.ExpiresAt) {
		i.logger.Warn().Str("tenant_id", st.TenantID).Time("expires_at", st.ExpiresAt).Msg("OAuth state expired")
		return nil, domain.ErrExpiredState
	}
	return st, nil
}

// PeekValid reports whether token is live without consuming it. A store
// failure is returned as domain.ErrStateUnavailable, never as "not valid".
func (i *StateIssuer) PeekValid(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	st, err := i.store.Peek(ctx, token)
	if err != nil {
		i.logger.Error().Err(err).Msg("Failed to peek oauth state")
		return false, fmt.Errorf("%w: %w", domain.ErrStateUnavailable, err)
	}
	return st != nil && i.now().Before(st.ExpiresAt), nil
}
