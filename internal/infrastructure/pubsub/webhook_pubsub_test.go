package pubsub

import (
	"context"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPubSub_FiltersByTenant(t *testing.T) {
	ps := NewWebhookPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := ps.Subscribe(ctx, &WebhookEventFilter{TenantID: "tenant-1"})
	theirs := ps.Subscribe(ctx, &WebhookEventFilter{TenantID: "tenant-2", Events: []string{"order.created"}})

	event := &domain.WebhookEvent{Provider: domain.ProviderSalla, TenantID: domain.StringPtr("tenant-1"), Event: "order.created"}
	require.NoError(t, ps.Handle(ctx, nil, event))

	select {
	case got := <-mine.Events:
		assert.Equal(t, "order.created", got.Event)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, theirs.Events)

	assert.Zero(t, ps.Publish(&domain.WebhookEvent{Provider: domain.ProviderSalla, Event: "order.created"}), "events without tenant are not published")
}

func TestWebhookPubSub_UnsubscribeOnCancel(t *testing.T) {
	ps := NewWebhookPubSub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ch := ps.Subscribe(ctx, &WebhookEventFilter{TenantID: "tenant-1"})
	assert.Equal(t, 1, ps.Len())

	cancel()
	select {
	case <-ch.Done:
	case <-time.After(time.Second):
		t.Fatal("subscription not removed")
	}
	assert.Equal(t, 0, ps.Len())
}

func TestMatchesFilter(t *testing.T) {
	event := &domain.WebhookEvent{Provider: domain.ProviderZid, TenantID: domain.StringPtr("t"), Event: "order.create"}

	assert.False(t, matchesFilter(event, nil))
	assert.True(t, matchesFilter(event, &WebhookEventFilter{TenantID: "t"}))
	assert.False(t, matchesFilter(event, &WebhookEventFilter{TenantID: "t", Provider: domain.ProviderSalla}))
	assert.True(t, matchesFilter(event, &WebhookEventFilter{TenantID: "t", Events: []string{"order.create"}}))
	assert.False(t, matchesFilter(event, &WebhookEventFilter{TenantID: "t", Events: []string{"product.create"}}))
}
