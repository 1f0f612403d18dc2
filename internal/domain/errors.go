package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is returned when an OAuth state token is unknown or already used
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrExpiredState is returned when an OAuth state token outlived its TTL
	ErrExpiredState = errors.New("expired oauth state")
	// ErrStateUnavailable means the state store could not be read. The flow cannot be attributed.
	ErrStateUnavailable = errors.New("oauth state store unavailable")
	// ErrOwnershipConflict blocks connecting a merchant that belongs to another tenant
	ErrOwnershipConflict = errors.New("store belongs to a different tenant")
	// ErrReauthorizationRequired means the store has no usable refresh path
	ErrReauthorizationRequired = errors.New("store must be reconnected")
	// ErrAmbiguousRecovery means auto-recovery found zero or several candidate tenants
	ErrAmbiguousRecovery = errors.New("ambiguous store ownership recovery")
	// ErrRefreshUnsupported is returned by adapters without a refresh grant
	ErrRefreshUnsupported = errors.New("provider does not support token refresh")
	// ErrStoreNotFound is returned by services when a store id does not resolve
	ErrStoreNotFound = errors.New("store not found")
	// ErrDuplicateStore is returned by repositories on the (provider, merchant id) unique index
	ErrDuplicateStore = errors.New("store already exists for provider and merchant id")
)

// TransientProviderError wraps network failures, timeouts, 5xx and 429 answers.
// Callers may retry these.
type TransientProviderError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: transient provider error (status %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: transient provider error: %v", e.Provider, e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() error {
	return e.Err
}

// ProviderError is a non-retryable provider answer (4xx other than 429)
type ProviderError struct {
	Provider   Provider
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: provider returned status %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
}

// ProviderDataIncompleteError signals a profile fetched with missing required fields
type ProviderDataIncompleteError struct {
	Provider Provider
	Missing  []string
}

func (e *ProviderDataIncompleteError) Error() string {
	return fmt.Sprintf("%s profile incomplete: missing %s", e.Provider, strings.Join(e.Missing, ", "))
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var transient *TransientProviderError
	return errors.As(err, &transient)
}

// IsNotFound reports whether err is a provider 404
func IsNotFound(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.StatusCode == 404
	}
	return false
}
