package ports

import (
	"context"
	"errors"
	"time"

	"merchant-connect-layer/internal/domain"
)

// EncryptionService defines the credential cipher contract
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	// DecryptSafe never fails; malformed or legacy plaintext input yields ""
	DecryptSafe(value string) string
	IsEncrypted(value string) bool
}

// StateStore holds OAuth CSRF state. Implementations must be TTL-capable.
type StateStore interface {
	Save(ctx context.Context, token string, state domain.OAuthState, ttl time.Duration) error
	// Take returns and deletes the record in one step. Missing records return (nil, nil).
	Take(ctx context.Context, token string) (*domain.OAuthState, error)
	// Peek returns the record without consuming it
	Peek(ctx context.Context, token string) (*domain.OAuthState, error)
}

// Task is a unit of background work that must not block the request path
type Task struct {
	Type    string
	Payload []byte
}

// TaskQueue accepts fire-and-forget work after the primary response is produced
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
}

// ErrPermanentTask marks task failures that must not be retried
var ErrPermanentTask = errors.New("permanent task failure")

// TaskHandlerFunc processes the payload of one task type
type TaskHandlerFunc func(ctx context.Context, payload []byte) error

// WebhookHandler reacts to an ingested provider webhook. store is nil when the
// merchant could not be resolved.
type WebhookHandler interface {
	CanHandle(provider domain.Provider, event string) bool
	Handle(ctx context.Context, store *domain.Store, event *domain.WebhookEvent) error
}

// Metrics records lifecycle outcomes
type Metrics interface {
	ObserveRefresh(provider domain.Provider, outcome string)
	ObserveRecovery(provider domain.Provider, outcome string)
	ObserveWebhookRegistration(provider domain.Provider, event, outcome string)
	ObserveWebhookIngest(provider domain.Provider, event string)
	ObserveTask(taskType, outcome string)
}
