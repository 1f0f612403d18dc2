package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/pubsub"
)

// streamEvent is what dashboard subscribers receive. Payloads stay raw JSON.
type streamEvent struct {
	ID         string          `json:"id"`
	Provider   domain.Provider `json:"provider"`
	Event      string          `json:"event"`
	MerchantID string          `json:"merchant_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// handleEvents streams the calling tenant's webhooks as server-sent events.
// Optional filters: ?provider=salla&event=order.created,order.updated
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	filter := &pubsub.WebhookEventFilter{TenantID: domain.GetTenantIDFromContext(r.Context())}
	if raw := r.URL.Query().Get("provider"); raw != "" {
		provider, err := domain.ParseProvider(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown_provider", err.Error())
			return
		}
		filter.Provider = provider
	}
	if raw := r.URL.Query().Get("event"); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			if e = strings.TrimSpace(e); e != "" {
				filter.Events = append(filter.Events, e)
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error().Err(err).Msg("Streaming is not supported by the response writer")
		return
	}

	sub := s.opts.Events.Subscribe(r.Context(), filter)
	heartbeat := time.NewTicker(s.opts.StreamHeartbeat)
	defer heartbeat.Stop()

	s.logger.Debug().Str("tenant_id", filter.TenantID).Str("channel_id", sub.ID).Msg("Event stream opened")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(toStreamEvent(event))
			if err != nil {
				s.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to encode stream event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: webhook\ndata: %s\n\n", event.ID, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func toStreamEvent(e *domain.WebhookEvent) streamEvent {
	payload := json.RawMessage(e.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return streamEvent{
		ID:         e.ID,
		Provider:   e.Provider,
		Event:      e.Event,
		MerchantID: e.MerchantID,
		Payload:    payload,
		CreatedAt:  e.CreatedAt,
	}
}
