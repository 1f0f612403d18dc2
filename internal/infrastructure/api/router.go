package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"merchant-connect-layer/internal/application"
	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Connector is the store lifecycle surface the HTTP layer drives
type Connector interface {
	AuthorizationURL(ctx context.Context, tenantID string, provider domain.Provider, params map[string]string) (string, error)
	HandleCallback(ctx context.Context, provider domain.Provider, params application.CallbackParams) (*application.CallbackResult, error)
	Sync(ctx context.Context, tenantID, storeID string) (*domain.Store, error)
	Disconnect(ctx context.Context, tenantID, storeID string) (*domain.Store, error)
	ConnectWithAPIKey(ctx context.Context, tenantID, shop, apiKey string) (*domain.Store, error)
	ListWebhooks(ctx context.Context, tenantID, storeID string) ([]domain.WebhookSubscription, error)
	ReassignTenant(ctx context.Context, storeID, newTenantID string) (*domain.Store, error)
}

// Ingester appends inbound webhooks to the event log
type Ingester interface {
	Ingest(ctx context.Context, provider domain.Provider, in application.InboundWebhook) (*domain.WebhookEvent, error)
}

// EventStream feeds the live webhook stream of the dashboard
type EventStream interface {
	Subscribe(ctx context.Context, filter *pubsub.WebhookEventFilter) *pubsub.WebhookEventChannel
}

// Options wires the router
type Options struct {
	Connect   Connector
	Ingest    Ingester
	Events    EventStream
	Verifiers map[domain.Provider]WebhookVerifier
	Metrics   http.Handler

	DashboardURL string
	AdminToken   string
	SwaggerFile  string
	// StreamHeartbeat is the SSE keep-alive interval
	StreamHeartbeat time.Duration
}

type server struct {
	opts   Options
	logger zerolog.Logger
}

// NewRouter builds the HTTP surface of the service
func NewRouter(opts Options, logger zerolog.Logger) http.Handler {
	if opts.SwaggerFile == "" {
		opts.SwaggerFile = "./docs/swagger.json"
	}
	if opts.StreamHeartbeat <= 0 {
		opts.StreamHeartbeat = 25 * time.Second
	}
	s := &server{opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, s.opts.SwaggerFile)
	})

	r.Get("/oauth/{provider}/callback", s.handleCallback)
	r.Post("/webhooks/{provider}", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(tenantMiddleware(logger))

		r.Get("/stores/{provider}/authorize", s.handleAuthorize)
		r.Post("/stores/other/api-key", s.handleConnectAPIKey)
		r.Post("/stores/{id}/sync", s.handleSync)
		r.Post("/stores/{id}/disconnect", s.handleDisconnect)
		r.Get("/stores/{id}/webhooks", s.handleListWebhooks)
		if opts.Events != nil {
			r.Get("/events", s.handleEvents)
		}
	})

	if opts.AdminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminMiddleware(opts.AdminToken, logger))
			r.Post("/stores/{id}/reassign", s.handleReassign)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
