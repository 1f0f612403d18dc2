package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	event  string
	calls  int
	stores []*domain.Store
	err    error
}

func (h *recordingHandler) CanHandle(_ domain.Provider, event string) bool {
	return event == h.event
}

func (h *recordingHandler) Handle(_ context.Context, store *domain.Store, _ *domain.WebhookEvent) error {
	h.calls++
	h.stores = append(h.stores, store)
	return h.err
}

func TestWebhookIngest_RecordsTenantOfResolvedStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedStore(t, &domain.Store{
		ID: "s1", Provider: domain.ProviderSalla, TenantID: domain.StringPtr("tenant-1"), MerchantID: domain.StringPtr("426101474"),
	}, "a", "r", timePtr(time.Now().Add(time.Hour)))

	handler := &recordingHandler{event: "order.created"}
	env.ingest.RegisterHandler(handler)

	record, err := env.ingest.Ingest(ctx, domain.ProviderSalla, InboundWebhook{
		Payload: []byte(`{"event":"order.created","merchant":426101474,"data":{"id":1}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "order.created", record.Event)
	assert.Equal(t, "426101474", record.MerchantID)
	require.NotNil(t, record.TenantID)
	assert.Equal(t, "tenant-1", *record.TenantID)

	require.Equal(t, 1, handler.calls)
	require.NotNil(t, handler.stores[0])
	assert.Equal(t, "s1", handler.stores[0].ID)
	assert.Len(t, env.events.Events(), 1)
}

func TestWebhookIngest_UnresolvedStoreIsStillLogged(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	handler := &recordingHandler{event: "order.create", err: errors.New("boom")}
	env.ingest.RegisterHandler(handler)

	record, err := env.ingest.Ingest(ctx, domain.ProviderZid, InboundWebhook{
		Event:        "order.create",
		MerchantHint: "777",
		Payload:      []byte(`{"id":5}`),
	})
	require.NoError(t, err, "handler failures do not fail ingestion")
	assert.Nil(t, record.TenantID)
	assert.Equal(t, "777", record.MerchantID)
	assert.Equal(t, 1, handler.calls)
	assert.Nil(t, handler.stores[0])
	assert.Len(t, env.events.Events(), 1)
}

func TestWebhookIngest_RecoversStoreFromHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &domain.Tenant{ID: "tenant-1"})
	require.NoError(t, env.events.Append(ctx, &domain.WebhookEvent{
		Provider: domain.ProviderSalla, TenantID: domain.StringPtr("tenant-1"), MerchantID: "31337",
	}))

	record, err := env.ingest.Ingest(ctx, domain.ProviderSalla, InboundWebhook{
		Payload: []byte(`{"event":"product.updated","merchant":"31337"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, record.TenantID)
	assert.Equal(t, "tenant-1", *record.TenantID)

	store, err := env.stores.FindByMerchantID(ctx, domain.ProviderSalla, "31337")
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, domain.StoreStatusPending, store.Status)
}

func TestWebhookIngest_DoesNotRepointLiveStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &domain.Tenant{ID: "T1"})
	env.seedStore(t, &domain.Store{
		ID: "s1", Provider: domain.ProviderSalla, TenantID: domain.StringPtr("T1"), MerchantID: domain.StringPtr("111"),
	}, "a", "r", timePtr(time.Now().Add(time.Hour)))
	require.NoError(t, env.events.Append(ctx, &domain.WebhookEvent{
		Provider: domain.ProviderSalla, TenantID: domain.StringPtr("T1"), MerchantID: "111", Event: "order.created",
	}))

	record, err := env.ingest.Ingest(ctx, domain.ProviderSalla, InboundWebhook{
		Payload: []byte(`{"event":"order.created","merchant":999}`),
	})
	require.NoError(t, err)
	assert.Nil(t, record.TenantID)

	assert.Equal(t, "111", env.reload(t, "s1").MerchantIDValue())
	missing, err := env.stores.FindByMerchantID(ctx, domain.ProviderSalla, "999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWebhookIngest_RejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.ingest.Ingest(context.Background(), domain.ProviderSalla, InboundWebhook{Payload: []byte(`{`)})
	assert.ErrorIs(t, err, ErrInvalidWebhookPayload)
	assert.Empty(t, env.events.Events())
}

func TestScalarID(t *testing.T) {
	assert.Equal(t, "426101474", scalarID([]byte(`426101474`)))
	assert.Equal(t, "abc", scalarID([]byte(`"abc"`)))
	assert.Equal(t, "", scalarID([]byte(`{"id":1}`)))
	assert.Equal(t, "", scalarID(nil))
}
