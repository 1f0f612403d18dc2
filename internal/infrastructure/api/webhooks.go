package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"merchant-connect-layer/internal/application"
	"merchant-connect-layer/internal/domain"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

// WebhookVerifier authenticates an inbound delivery. body is the raw payload.
type WebhookVerifier interface {
	Verify(r *http.Request, body []byte) bool
}

// HMACVerifier checks a hex encoded HMAC-SHA256 of the body carried in Header.
// An empty secret rejects every delivery.
type HMACVerifier struct {
	Header string
	Secret string
}

func (v HMACVerifier) Verify(r *http.Request, body []byte) bool {
	if v.Secret == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(r.Header.Get(v.Header)), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// RequestVerifierFunc adapts verifiers that read the request body themselves
type RequestVerifierFunc func(r *http.Request) bool

func (f RequestVerifierFunc) Verify(r *http.Request, body []byte) bool {
	r.Body = io.NopCloser(bytes.NewReader(body))
	return f(r)
}

// handleWebhook verifies and appends a provider delivery to the event log.
// Providers without a verifier are rejected; unsigned payloads feed ownership recovery.
// Processing failures after the append are not reported to the provider.
func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_provider", err.Error())
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read webhook payload")
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}
	defer r.Body.Close()

	verifier, ok := s.opts.Verifiers[provider]
	if !ok {
		s.logger.Warn().Str("provider", string(provider)).Msg("Webhook verification is not configured, rejecting delivery")
		writeError(w, http.StatusUnauthorized, "invalid_signature", "webhook verification is not configured")
		return
	}
	if !verifier.Verify(r, payload) {
		s.logger.Warn().Str("provider", string(provider)).Msg("Webhook signature verification failed")
		writeError(w, http.StatusUnauthorized, "invalid_signature", "invalid signature")
		return
	}

	in := application.InboundWebhook{Payload: payload}
	if provider == domain.ProviderOther {
		in.Event = r.Header.Get("X-Shopify-Topic")
		in.MerchantHint = normalizeShopHeader(r.Header.Get("X-Shopify-Shop-Domain"))
	}

	event, err := s.opts.Ingest.Ingest(r.Context(), provider, in)
	if err != nil {
		if errors.Is(err, application.ErrInvalidWebhookPayload) {
			s.logger.Warn().Err(err).Str("provider", string(provider)).Msg("Rejected webhook payload")
			writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}
		s.logger.Error().Err(err).Str("provider", string(provider)).Msg("Failed to ingest webhook")
		writeError(w, http.StatusInternalServerError, "ingest_failed", "failed to record webhook")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"received": "true",
		"event_id": event.ID,
	})
}

func normalizeShopHeader(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
