package onboarding

import (
	"context"
	"strings"
	"sync"

	"merchant-connect-layer/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogProvisioner is a ports.UserProvisioner that keeps users in memory and
// logs the welcome notification instead of delivering it.
type LogProvisioner struct {
	mu      sync.RWMutex
	byEmail map[string]*domain.User
	logger  zerolog.Logger
}

func NewLogProvisioner(logger zerolog.Logger) *LogProvisioner {
	return &LogProvisioner{
		byEmail: make(map[string]*domain.User),
		logger:  logger,
	}
}

func (p *LogProvisioner) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if u, ok := p.byEmail[normalizeEmail(email)]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

// ProvisionUserAndNotify creates the store owner's user on first install
func (p *LogProvisioner) ProvisionUserAndNotify(_ context.Context, profile *domain.StoreProfile, store *domain.Store) (*domain.ProvisionResult, error) {
	email := normalizeEmail(profile.Email)
	if email == "" {
		p.logger.Warn().Str("store_id", store.ID).Msg("Store profile has no email, skipping user provisioning")
		return &domain.ProvisionResult{TenantID: store.TenantIDValue()}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if u, ok := p.byEmail[email]; ok {
		return &domain.ProvisionResult{UserID: u.ID, TenantID: u.TenantID}, nil
	}

	u := &domain.User{ID: uuid.NewString(), TenantID: store.TenantIDValue(), Email: email}
	p.byEmail[email] = u

	p.logger.Info().
		Str("user_id", u.ID).
		Str("tenant_id", u.TenantID).
		Str("store_id", store.ID).
		Str("provider", string(store.Provider)).
		Msg("Provisioned user for store install, welcome notification queued")

	return &domain.ProvisionResult{UserID: u.ID, TenantID: u.TenantID, IsNewUser: true}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
