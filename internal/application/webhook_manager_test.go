package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhookManager(api *fakeWebhookAPI) (*WebhookManager, *[]time.Duration) {
	m := NewWebhookManager([]ports.WebhookAPI{api}, 2*time.Second, nil, zerolog.Nop())
	var slept []time.Duration
	m.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return m, &slept
}

func TestWebhookManager_DeleteNotFoundThenCreate(t *testing.T) {
	api := newFakeWebhookAPI(domain.ProviderSalla, "app.uninstalled", "order.created")
	api.deleteErrs = []error{&domain.ProviderError{Provider: domain.ProviderSalla, Op: "delete_webhooks", StatusCode: 404}}
	m, slept := newTestWebhookManager(api)

	result, err := m.Register(context.Background(), domain.ProviderSalla, &domain.TokenSet{AccessToken: "a"}, "https://hooks.test/webhooks/salla", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"app.uninstalled", "order.created"}, result.Registered)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []string{"app.uninstalled", "order.created"}, api.created)
	assert.Equal(t, []time.Duration{2 * time.Second}, *slept, "settle delay between delete and create")
}

func TestWebhookManager_RetriesTransientErrors(t *testing.T) {
	api := newFakeWebhookAPI(domain.ProviderZid, "order.create")
	transient := &domain.TransientProviderError{Provider: domain.ProviderZid, Op: "create_webhook", StatusCode: 503, Err: errors.New("unavailable")}
	api.deleteErrs = []error{transient}
	api.createErrs["order.create"] = []error{transient, transient}
	m, slept := newTestWebhookManager(api)

	result, err := m.Register(context.Background(), domain.ProviderZid, &domain.TokenSet{AccessToken: "a"}, "https://hooks.test", "app-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"order.create"}, result.Registered)
	assert.Equal(t, 2, api.deleteCalls)
	assert.Equal(t, []time.Duration{
		DefaultWebhookBackoff,
		2 * time.Second,
		DefaultWebhookBackoff,
		2 * DefaultWebhookBackoff,
	}, *slept)
}

func TestWebhookManager_DeleteFailureAborts(t *testing.T) {
	api := newFakeWebhookAPI(domain.ProviderSalla, "order.created")
	api.deleteErrs = []error{&domain.ProviderError{Provider: domain.ProviderSalla, Op: "delete_webhooks", StatusCode: 403}}
	m, _ := newTestWebhookManager(api)

	_, err := m.Register(context.Background(), domain.ProviderSalla, &domain.TokenSet{}, "https://hooks.test", "")
	require.Error(t, err)
	assert.Empty(t, api.created)
	assert.Equal(t, 1, api.deleteCalls, "permanent errors are not retried")
}

func TestWebhookManager_ReportsFailedAndInactive(t *testing.T) {
	api := newFakeWebhookAPI(domain.ProviderSalla, "app.uninstalled", "order.created", "product.created")
	api.createErrs["order.created"] = []error{&domain.ProviderError{Provider: domain.ProviderSalla, Op: "create_webhook", StatusCode: 422}}
	api.inactive["product.created"] = true
	m, _ := newTestWebhookManager(api)

	result, err := m.Register(context.Background(), domain.ProviderSalla, &domain.TokenSet{}, "https://hooks.test", "")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, []string{"app.uninstalled", "product.created"}, result.Registered)
	assert.Equal(t, []string{"order.created"}, result.Failed)
	assert.Equal(t, []string{"product.created"}, result.Inactive)
}

func TestWebhookManager_RegisterIsRepeatable(t *testing.T) {
	api := newFakeWebhookAPI(domain.ProviderSalla, "order.created")
	m, _ := newTestWebhookManager(api)

	for i := 0; i < 2; i++ {
		_, err := m.Register(context.Background(), domain.ProviderSalla, &domain.TokenSet{}, "https://hooks.test", "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, api.deleteCalls)

	subs, err := m.List(context.Background(), domain.ProviderSalla, &domain.TokenSet{})
	require.NoError(t, err)
	assert.Len(t, subs, 1, "old subscriptions are replaced, not duplicated")
}

func TestWebhookManager_UnknownProvider(t *testing.T) {
	m, _ := newTestWebhookManager(newFakeWebhookAPI(domain.ProviderSalla))
	_, err := m.Register(context.Background(), domain.ProviderZid, &domain.TokenSet{}, "https://hooks.test", "")
	assert.Error(t, err)
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), 0))
}
