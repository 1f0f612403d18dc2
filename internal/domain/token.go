package domain

import (
	"strings"
	"time"
)

// TokenSet is the normalized result of a code exchange or refresh
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds, 0 when the provider did not say
	Scope        string

	// AuthorizationToken is the secondary bearer credential zid issues next to the manager token
	AuthorizationToken string

	// StoreDomain is the shop host a generic-provider token is bound to
	StoreDomain string
}

// ExpiresAt converts ExpiresIn into an absolute time. Returns nil when unknown.
func (t *TokenSet) ExpiresAt(now time.Time) *time.Time {
	if t == nil || t.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &at
}

// HasAuthorizationToken reports whether the provider confirmed a secondary token
func (t *TokenSet) HasAuthorizationToken() bool {
	return t != nil && strings.TrimSpace(t.AuthorizationToken) != ""
}

// StoreProfile is the provider profile normalized into one shape
type StoreProfile struct {
	MerchantID   string
	ProviderUUID string
	Name         string
	Email        string
	Phone        string
	Domain       string
	LogoURL      string
	Plan         string
	Currency     string
	Locale       string

	// AuthorizationToken is set when a profile endpoint hands out the zid secondary token
	AuthorizationToken string
}

// MissingFields lists required profile fields the provider left empty
func (p *StoreProfile) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(p.MerchantID) == "" {
		missing = append(missing, "merchant_id")
	}
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	return missing
}

// FillPlaceholders patches missing required fields so onboarding is not blocked
func (p *StoreProfile) FillPlaceholders() {
	if strings.TrimSpace(p.Name) == "" {
		if p.MerchantID != "" {
			p.Name = "Store " + p.MerchantID
		} else {
			p.Name = "Unnamed store"
		}
	}
}

// StoreCounts holds the cached aggregate numbers written by sync
type StoreCounts struct {
	Orders    int64
	Products  int64
	Customers int64
}
