package application

import (
	"context"
	"fmt"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
)

const (
	// DefaultSettleDelay gives the provider time to forget deleted subscriptions
	// before the same events are created again.
	DefaultSettleDelay = 2 * time.Second

	// DefaultWebhookRetries is the number of retries after the first attempt
	DefaultWebhookRetries = 2

	// DefaultWebhookBackoff is the first retry delay; it doubles each retry
	DefaultWebhookBackoff = 500 * time.Millisecond
)

// WebhookManager keeps provider webhook subscriptions registered. Providers offer
// no update endpoint, so registration deletes everything the app owns and
// recreates the required set. The whole operation can be repeated safely.
type WebhookManager struct {
	apis        map[domain.Provider]ports.WebhookAPI
	settleDelay time.Duration
	retries     int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     ports.Metrics
	logger      zerolog.Logger
}

// NewWebhookManager creates a manager. A negative settleDelay selects DefaultSettleDelay.
func NewWebhookManager(apis []ports.WebhookAPI, settleDelay time.Duration, metrics ports.Metrics, logger zerolog.Logger) *WebhookManager {
	if settleDelay < 0 {
		settleDelay = DefaultSettleDelay
	}
	byProvider := make(map[domain.Provider]ports.WebhookAPI, len(apis))
	for _, a := range apis {
		byProvider[a.Provider()] = a
	}
	return &WebhookManager{
		apis:        byProvider,
		settleDelay: settleDelay,
		retries:     DefaultWebhookRetries,
		backoff:     DefaultWebhookBackoff,
		sleep:       sleepContext,
		metrics:     metricsOrNop(metrics),
		logger:      logger,
	}
}

func (m *WebhookManager) api(provider domain.Provider) (ports.WebhookAPI, error) {
	api, ok := m.apis[provider]
	if !ok {
		return nil, fmt.Errorf("no webhook api registered for provider %s", provider)
	}
	return api, nil
}

// Register performs delete, settle, create for every required event.
// Per-event failures are reported in the result and as an error.
func (m *WebhookManager) Register(ctx context.Context, provider domain.Provider, tokens *domain.TokenSet, targetURL, appID string) (*domain.RegistrationResult, error) {
	api, err := m.api(provider)
	if err != nil {
		return nil, err
	}

	log := m.logger.With().Str("provider", string(provider)).Str("target_url", targetURL).Logger()

	err = m.withRetry(ctx, func() error {
		return api.DeleteSubscriptions(ctx, tokens, appID)
	})
	switch {
	case err == nil:
		log.Info().Msg("Deleted existing webhook subscriptions")
	case domain.IsNotFound(err):
		log.Info().Msg("No existing webhook subscriptions to delete")
	default:
		return nil, fmt.Errorf("failed to delete webhook subscriptions: %w", err)
	}

	if err := m.sleep(ctx, m.settleDelay); err != nil {
		return nil, err
	}

	result := &domain.RegistrationResult{Registered: []string{}, Failed: []string{}}
	for _, event := range api.RequiredEvents() {
		var sub *domain.WebhookSubscription
		err := m.withRetry(ctx, func() error {
			var cerr error
			sub, cerr = api.CreateSubscription(ctx, tokens, event, targetURL, appID)
			return cerr
		})
		if err != nil {
			log.Error().Err(err).Str("event", event).Msg("Failed to create webhook subscription")
			result.Failed = append(result.Failed, event)
			m.metrics.ObserveWebhookRegistration(provider, event, OutcomeFailure)
			continue
		}

		result.Registered = append(result.Registered, event)
		if sub != nil && !sub.Active {
			log.Warn().Str("event", event).Str("subscription_id", sub.ID).Msg("Webhook subscription created but reported inactive")
			result.Inactive = append(result.Inactive, event)
			m.metrics.ObserveWebhookRegistration(provider, event, OutcomeInactive)
			continue
		}
		m.metrics.ObserveWebhookRegistration(provider, event, OutcomeSuccess)
	}

	log.Info().
		Strs("registered", result.Registered).
		Strs("failed", result.Failed).
		Strs("inactive", result.Inactive).
		Msg("Webhook registration finished")

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("failed to register %d of %d webhook subscriptions", len(result.Failed), len(api.RequiredEvents()))
	}
	return result, nil
}

// List returns the subscriptions the provider currently holds
func (m *WebhookManager) List(ctx context.Context, provider domain.Provider, tokens *domain.TokenSet) ([]domain.WebhookSubscription, error) {
	api, err := m.api(provider)
	if err != nil {
		return nil, err
	}

	var subs []domain.WebhookSubscription
	err = m.withRetry(ctx, func() error {
		var lerr error
		subs, lerr = api.ListSubscriptions(ctx, tokens)
		return lerr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	return subs, nil
}

// withRetry retries transient provider errors with exponential backoff
func (m *WebhookManager) withRetry(ctx context.Context, fn func() error) error {
	delay := m.backoff
	var err error
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			if serr := m.sleep(ctx, delay); serr != nil {
				return serr
			}
			delay *= 2
		}

		err = fn()
		if err == nil || !domain.IsTransient(err) {
			return err
		}
		m.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Transient webhook api error")
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
