package pubsub

import (
	"context"
	"fmt"
	"sync"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
)

// WebhookEventChannel represents a subscription channel
type WebhookEventChannel struct {
	ID     string
	Filter *WebhookEventFilter
	Events chan *domain.WebhookEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// WebhookEventFilter filters webhook events. TenantID is mandatory for
// dashboard subscribers so one tenant never sees another tenant's events.
type WebhookEventFilter struct {
	TenantID string
	Provider domain.Provider
	Events   []string
}

// WebhookPubSub fans ingested webhooks out to live subscribers.
// It implements ports.WebhookHandler.
type WebhookPubSub struct {
	mu       sync.RWMutex
	channels map[string]*WebhookEventChannel
	buffer   int
	logger   zerolog.Logger
	nextID   int64
	idMu     sync.Mutex
}

// NewWebhookPubSub creates a new webhook pub/sub system
func NewWebhookPubSub(logger zerolog.Logger) *WebhookPubSub {
	return &WebhookPubSub{
		channels: make(map[string]*WebhookEventChannel),
		buffer:   16,
		logger:   logger,
	}
}

// Subscribe creates a new subscription channel. It is removed when ctx ends.
func (ps *WebhookPubSub) Subscribe(ctx context.Context, filter *WebhookEventFilter) *WebhookEventChannel {
	ps.idMu.Lock()
	ps.nextID++
	id := fmt.Sprintf("channel-%d", ps.nextID)
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	channel := &WebhookEventChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan *domain.WebhookEvent, ps.buffer),
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Debug().Str("channel_id", id).Msg("Webhook subscription created")

	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(id)
	}()
	return channel
}

// Unsubscribe removes a subscription channel
func (ps *WebhookPubSub) Unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(ps.channels, channelID)

	ps.logger.Debug().Str("channel_id", channelID).Msg("Webhook subscription removed")
}

// Publish broadcasts an event to all matching subscribers without blocking
func (ps *WebhookPubSub) Publish(event *domain.WebhookEvent) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	published := 0
	for _, channel := range ps.channels {
		if !matchesFilter(event, channel.Filter) {
			continue
		}
		select {
		case channel.Events <- event:
			published++
		default:
			ps.logger.Warn().Str("channel_id", channel.ID).Msg("Channel buffer full, dropping event")
		}
	}

	if published > 0 {
		ps.logger.Debug().
			Str("event", event.Event).
			Int("subscribers", published).
			Msg("Published webhook event to subscribers")
	}
	return published
}

// CanHandle accepts every event; filtering happens per subscriber
func (ps *WebhookPubSub) CanHandle(domain.Provider, string) bool {
	return true
}

// Handle publishes events of resolved stores
func (ps *WebhookPubSub) Handle(_ context.Context, _ *domain.Store, event *domain.WebhookEvent) error {
	if event.TenantID == nil {
		return nil
	}
	ps.Publish(event)
	return nil
}

// Len returns the number of live subscriptions
func (ps *WebhookPubSub) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.channels)
}

func matchesFilter(event *domain.WebhookEvent, filter *WebhookEventFilter) bool {
	if filter == nil {
		return false
	}
	if event.TenantID == nil || *event.TenantID != filter.TenantID {
		return false
	}
	if filter.Provider != "" && event.Provider != filter.Provider {
		return false
	}
	if len(filter.Events) == 0 {
		return true
	}
	for _, e := range filter.Events {
		if e == event.Event {
			return true
		}
	}
	return false
}
