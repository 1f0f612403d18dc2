package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies an external e-commerce platform
type Provider string

const (
	ProviderSalla Provider = "salla"
	ProviderZid   Provider = "zid"
	ProviderOther Provider = "other"
)

// ParseProvider validates a provider name coming from a URL or payload
func ParseProvider(raw string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(raw))); p {
	case ProviderSalla, ProviderZid, ProviderOther:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q", raw)
	}
}

// StoreStatus is the connection health of a store
type StoreStatus string

const (
	StoreStatusPending      StoreStatus = "pending"
	StoreStatusActive       StoreStatus = "active"
	StoreStatusDisconnected StoreStatus = "disconnected"
	StoreStatusTokenExpired StoreStatus = "token_expired"
	StoreStatusSuspended    StoreStatus = "suspended"
	StoreStatusUninstalled  StoreStatus = "uninstalled"
)

// Store represents one tenant's connection to one merchant account on one provider
type Store struct {
	ID           string   `json:"id"`
	TenantID     *string  `json:"tenant_id,omitempty"`   // nil until ownership is resolved
	Provider     Provider `json:"provider"`
	MerchantID   *string  `json:"merchant_id,omitempty"` // provider-native store id
	ProviderUUID string   `json:"provider_uuid,omitempty"`

	// Credentials are always stored encrypted
	EncryptedAccessToken        string     `json:"-"`
	EncryptedRefreshToken       string     `json:"-"`
	EncryptedAuthorizationToken string     `json:"-"` // zid secondary token
	TokenExpiresAt              *time.Time `json:"token_expires_at,omitempty"`
	LastTokenRefreshAt          *time.Time `json:"last_token_refresh_at,omitempty"`

	Status            StoreStatus `json:"status"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastError         string      `json:"last_error,omitempty"`
	LastErrorAt       *time.Time  `json:"last_error_at,omitempty"`

	// Denormalized provider profile, refreshed by sync
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Domain   string `json:"domain,omitempty"`
	LogoURL  string `json:"logo_url,omitempty"`
	Plan     string `json:"plan,omitempty"`
	Currency string `json:"currency,omitempty"`
	Locale   string `json:"locale,omitempty"`

	// Aggregates are only written by an explicit sync
	OrdersCount    int64      `json:"orders_count"`
	ProductsCount  int64      `json:"products_count"`
	CustomersCount int64      `json:"customers_count"`
	StatsSyncedAt  *time.Time `json:"stats_synced_at,omitempty"`

	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// OwnedBy reports whether the store belongs to the given tenant
func (s *Store) OwnedBy(tenantID string) bool {
	return s.TenantID != nil && *s.TenantID == tenantID
}

// HasStaleMapping reports whether recovery may re-point the merchant id: the id
// is blank or the store holds no working connection.
func (s *Store) HasStaleMapping() bool {
	if s.MerchantIDValue() == "" {
		return true
	}
	switch s.Status {
	case StoreStatusPending, StoreStatusTokenExpired, StoreStatusDisconnected:
		return true
	}
	return false
}

// IsDeleted reports whether the store has been soft-deleted
func (s *Store) IsDeleted() bool {
	return s.DeletedAt != nil
}

// MerchantIDValue returns the merchant id or an empty string
func (s *Store) MerchantIDValue() string {
	if s.MerchantID == nil {
		return ""
	}
	return *s.MerchantID
}

// TenantIDValue returns the tenant id or an empty string
func (s *Store) TenantIDValue() string {
	if s.TenantID == nil {
		return ""
	}
	return *s.TenantID
}

// ClearCredentials drops every stored token. The row itself is kept.
func (s *Store) ClearCredentials() {
	s.EncryptedAccessToken = ""
	s.EncryptedRefreshToken = ""
	s.EncryptedAuthorizationToken = ""
	s.TokenExpiresAt = nil
}

// RecordError marks the store as failing with the given status
func (s *Store) RecordError(status StoreStatus, err error, at time.Time) {
	s.Status = status
	s.ConsecutiveErrors++
	if err != nil {
		s.LastError = err.Error()
	}
	s.LastErrorAt = &at
}

// ResetErrors clears the failure bookkeeping after a successful provider call
func (s *Store) ResetErrors() {
	s.ConsecutiveErrors = 0
	s.LastError = ""
	s.LastErrorAt = nil
}

// ApplyProfile copies the normalized provider profile onto the store
func (s *Store) ApplyProfile(p *StoreProfile) {
	if p == nil {
		return
	}
	if p.MerchantID != "" {
		id := p.MerchantID
		s.MerchantID = &id
	}
	if p.ProviderUUID != "" {
		s.ProviderUUID = p.ProviderUUID
	}
	s.Name = p.Name
	s.Email = p.Email
	s.Phone = p.Phone
	s.Domain = p.Domain
	s.LogoURL = p.LogoURL
	s.Plan = p.Plan
	s.Currency = p.Currency
	s.Locale = p.Locale
}

// StringPtr is a small helper for optional identifiers
func StringPtr(v string) *string {
	return &v
}
