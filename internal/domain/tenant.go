package domain

import (
	"context"
	"time"
)

// Tenant is the platform's account boundary. Owned by the tenant directory.
type Tenant struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsDeleted reports whether the tenant was removed
func (t *Tenant) IsDeleted() bool {
	return t.DeletedAt != nil
}

// User is the minimal projection returned by the user directory
type User struct {
	ID       string
	TenantID string
	Email    string
}

// ProvisionResult is returned by the auto-registration collaborator
type ProvisionResult struct {
	UserID    string
	TenantID  string
	IsNewUser bool
}

// OAuthState is the ephemeral record bound to a CSRF state token
type OAuthState struct {
	TenantID  string            `json:"tenant_id"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// contextKey is a type for context keys to avoid collisions
type contextKey string

const tenantIDKey contextKey = "tenant_id"

// WithTenantID adds the authenticated tenant to the context
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantIDFromContext extracts the tenant set by the auth middleware
func GetTenantIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tenantIDKey).(string); ok {
		return v
	}
	return ""
}
