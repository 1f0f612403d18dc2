package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrInvalidWebhookPayload is returned for deliveries that are not a JSON object
var ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

// InboundWebhook is a delivery as received by the HTTP layer. Event and
// MerchantHint come from provider headers when available.
type InboundWebhook struct {
	Event        string
	MerchantHint string
	Payload      []byte
}

// WebhookIngestService appends inbound webhooks to the event log and dispatches them
type WebhookIngestService struct {
	events   ports.WebhookEventRepository
	resolver *IdentityResolver
	handlers []ports.WebhookHandler
	metrics  ports.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewWebhookIngestService creates an ingest service
func NewWebhookIngestService(
	events ports.WebhookEventRepository,
	resolver *IdentityResolver,
	metrics ports.Metrics,
	logger zerolog.Logger,
) *WebhookIngestService {
	return &WebhookIngestService{
		events:   events,
		resolver: resolver,
		metrics:  metricsOrNop(metrics),
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterHandler adds a handler. Handlers run in registration order.
func (s *WebhookIngestService) RegisterHandler(h ports.WebhookHandler) {
	s.handlers = append(s.handlers, h)
}

// envelope lists the fields providers use for the event name and store id
type envelope struct {
	Event      string          `json:"event"`
	Topic      string          `json:"topic"`
	Merchant   json.RawMessage `json:"merchant"`
	MerchantID json.RawMessage `json:"merchant_id"`
	StoreID    json.RawMessage `json:"store_id"`
}

// scalarID reads an id sent as a JSON number or string. Objects yield "".
func scalarID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	}
	return ""
}

// Ingest records the delivery, resolves its store and runs matching handlers.
// Handler failures are logged; the event stays recorded.
func (s *WebhookIngestService) Ingest(ctx context.Context, provider domain.Provider, in InboundWebhook) (*domain.WebhookEvent, error) {
	var env envelope
	if err := json.Unmarshal(in.Payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookPayload, err)
	}

	event := firstNonEmpty(in.Event, env.Event, env.Topic)
	merchantID := firstNonEmpty(in.MerchantHint, scalarID(env.Merchant), scalarID(env.MerchantID), scalarID(env.StoreID))

	log := s.logger.With().
		Str("provider", string(provider)).
		Str("event", event).
		Str("merchant_id", merchantID).
		Logger()

	var store *domain.Store
	if merchantID != "" {
		resolved, err := s.resolver.ResolveByMerchantID(ctx, provider, merchantID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to resolve webhook store")
		}
		store = resolved
	}

	record := &domain.WebhookEvent{
		ID:         uuid.NewString(),
		Provider:   provider,
		MerchantID: merchantID,
		Event:      event,
		Payload:    in.Payload,
		CreatedAt:  s.now(),
	}
	if store != nil && store.TenantID != nil {
		record.TenantID = domain.StringPtr(*store.TenantID)
	}

	if err := s.events.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to log webhook: %w", err)
	}
	s.metrics.ObserveWebhookIngest(provider, event)

	if store == nil {
		log.Warn().Msg("Webhook store could not be resolved")
	}

	for _, h := range s.handlers {
		if !h.CanHandle(provider, event) {
			continue
		}
		if err := h.Handle(ctx, store, record); err != nil {
			log.Error().Err(err).Msg("Webhook handler failed")
		}
	}
	return record, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
