package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"merchant-connect-layer/internal/application"
	"merchant-connect-layer/internal/domain"

	"github.com/go-chi/chi/v5"
)

// storeView is the public projection of a store. Credentials never leave the service.
type storeView struct {
	ID             string             `json:"id"`
	Provider       domain.Provider    `json:"provider"`
	MerchantID     string             `json:"merchant_id,omitempty"`
	Status         domain.StoreStatus `json:"status"`
	Name           string             `json:"name"`
	Email          string             `json:"email,omitempty"`
	Domain         string             `json:"domain,omitempty"`
	LogoURL        string             `json:"logo_url,omitempty"`
	Plan           string             `json:"plan,omitempty"`
	Currency       string             `json:"currency,omitempty"`
	OrdersCount    int64              `json:"orders_count"`
	ProductsCount  int64              `json:"products_count"`
	CustomersCount int64              `json:"customers_count"`
	StatsSyncedAt  *time.Time         `json:"stats_synced_at,omitempty"`
	LastError      string             `json:"last_error,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func newStoreView(s *domain.Store) storeView {
	return storeView{
		ID:             s.ID,
		Provider:       s.Provider,
		MerchantID:     s.MerchantIDValue(),
		Status:         s.Status,
		Name:           s.Name,
		Email:          s.Email,
		Domain:         s.Domain,
		LogoURL:        s.LogoURL,
		Plan:           s.Plan,
		Currency:       s.Currency,
		OrdersCount:    s.OrdersCount,
		ProductsCount:  s.ProductsCount,
		CustomersCount: s.CustomersCount,
		StatsSyncedAt:  s.StatsSyncedAt,
		LastError:      s.LastError,
		UpdatedAt:      s.UpdatedAt,
	}
}

// handleAuthorize returns the provider consent URL for the calling tenant
func (s *server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_provider", err.Error())
		return
	}

	params := map[string]string{}
	if shop := r.URL.Query().Get("shop"); shop != "" {
		params["shop"] = shop
	}

	tenantID := domain.GetTenantIDFromContext(r.Context())
	authURL, err := s.opts.Connect.AuthorizationURL(r.Context(), tenantID, provider, params)
	if err != nil {
		s.logger.Error().Err(err).Str("provider", string(provider)).Str("tenant_id", tenantID).Msg("Failed to build authorization URL")
		writeError(w, http.StatusBadRequest, "authorization_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

// handleCallback completes an OAuth authorization and always answers with a
// redirect to the dashboard
func (s *server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawProvider := chi.URLParam(r, "provider")

	provider, err := domain.ParseProvider(rawProvider)
	if err != nil {
		s.redirectResult(w, r, rawProvider, nil, "unknown_provider")
		return
	}

	result, err := s.opts.Connect.HandleCallback(r.Context(), provider, application.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
		Shop:  q.Get("shop"),
	})
	if err != nil {
		reason := callbackReason(err, q.Get("error"))
		s.logger.Warn().Err(err).Str("provider", string(provider)).Str("reason", reason).Msg("OAuth callback failed")
		s.redirectResult(w, r, string(provider), nil, reason)
		return
	}

	s.logger.Info().
		Str("provider", string(provider)).
		Str("flow", result.Flow).
		Str("store_id", result.Store.ID).
		Msg("OAuth callback completed")
	s.redirectResult(w, r, string(provider), result, "")
}

func (s *server) redirectResult(w http.ResponseWriter, r *http.Request, provider string, result *application.CallbackResult, reason string) {
	q := url.Values{}
	q.Set("provider", provider)
	if reason != "" {
		q.Set("status", "error")
		q.Set("reason", reason)
	} else {
		q.Set("status", "success")
		q.Set("flow", result.Flow)
		q.Set("store_id", result.Store.ID)
	}
	http.Redirect(w, r, s.opts.DashboardURL+"?"+q.Encode(), http.StatusFound)
}

func callbackReason(err error, providerError string) string {
	switch {
	case providerError != "":
		return "access_denied"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrExpiredState):
		return "expired_state"
	case errors.Is(err, domain.ErrStateUnavailable):
		return "state_unavailable"
	case errors.Is(err, domain.ErrOwnershipConflict):
		return "ownership_conflict"
	case domain.IsTransient(err):
		return "provider_unavailable"
	}
	var providerErr *domain.ProviderError
	if errors.As(err, &providerErr) {
		return "provider_error"
	}
	return "connect_failed"
}

type apiKeyRequest struct {
	Shop   string `json:"shop"`
	APIKey string `json:"api_key"`
}

// handleConnectAPIKey connects a generic store with an admin API token
func (s *server) handleConnectAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	if req.Shop == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "shop and api_key are required")
		return
	}

	store, err := s.opts.Connect.ConnectWithAPIKey(r.Context(), domain.GetTenantIDFromContext(r.Context()), req.Shop, req.APIKey)
	if err != nil {
		s.writeServiceError(w, "Failed to connect store with api key", err)
		return
	}
	writeJSON(w, http.StatusCreated, newStoreView(store))
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	store, err := s.opts.Connect.Sync(r.Context(), domain.GetTenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, "Failed to sync store", err)
		return
	}
	writeJSON(w, http.StatusOK, newStoreView(store))
}

func (s *server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	store, err := s.opts.Connect.Disconnect(r.Context(), domain.GetTenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, "Failed to disconnect store", err)
		return
	}
	writeJSON(w, http.StatusOK, newStoreView(store))
}

func (s *server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := s.opts.Connect.ListWebhooks(r.Context(), domain.GetTenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, "Failed to list webhooks", err)
		return
	}
	if subs == nil {
		subs = []domain.WebhookSubscription{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"webhooks": subs})
}

type reassignRequest struct {
	TenantID string `json:"tenant_id"`
}

func (s *server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "tenant_id is required")
		return
	}

	store, err := s.opts.Connect.ReassignTenant(r.Context(), chi.URLParam(r, "id"), req.TenantID)
	if err != nil {
		s.writeServiceError(w, "Failed to reassign store", err)
		return
	}
	writeJSON(w, http.StatusOK, newStoreView(store))
}

// writeServiceError maps service errors onto HTTP statuses
func (s *server) writeServiceError(w http.ResponseWriter, msg string, err error) {
	var incomplete *domain.ProviderDataIncompleteError
	var providerErr *domain.ProviderError

	switch {
	case errors.Is(err, domain.ErrStoreNotFound):
		writeError(w, http.StatusNotFound, "store_not_found", err.Error())
	case errors.Is(err, domain.ErrOwnershipConflict):
		writeError(w, http.StatusConflict, "ownership_conflict", err.Error())
	case errors.Is(err, domain.ErrReauthorizationRequired):
		writeError(w, http.StatusConflict, "reauthorization_required", err.Error())
	case domain.IsTransient(err):
		s.logger.Warn().Err(err).Msg(msg)
		writeError(w, http.StatusBadGateway, "provider_unavailable", err.Error())
	case errors.As(err, &incomplete), errors.As(err, &providerErr):
		s.logger.Warn().Err(err).Msg(msg)
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
	default:
		s.logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
