package zid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"

	"github.com/rs/zerolog"
)

const (
	defaultAuthURL    = "https://oauth.zid.sa/oauth/authorize"
	defaultTokenURL   = "https://oauth.zid.sa/oauth/token"
	defaultAPIBaseURL = "https://api.zid.sa"
)

// Config holds the zid app credentials and endpoints. Empty endpoints fall back to production.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

func (c *Config) applyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = defaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
}

// Adapter implements ports.ProviderAdapter and ports.WebhookAPI for zid.
// Zid issues a manager token (access_token) plus a secondary Authorization token;
// both are needed by the manager API family.
type Adapter struct {
	cfg        Config
	client     *httpx.Client
	strategies []ProfileStrategy
	logger     zerolog.Logger
}

// NewAdapter creates a zid adapter with the default profile strategies
func NewAdapter(cfg Config, client *httpx.Client, logger zerolog.Logger) *Adapter {
	cfg.applyDefaults()
	a := &Adapter{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("provider", string(domain.ProviderZid)).Logger(),
	}
	a.strategies = a.defaultStrategies()
	return a
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderZid
}

func (a *Adapter) SupportsRefresh() bool {
	return true
}

// BuildAuthorizationURL returns the zid consent page URL
func (a *Adapter) BuildAuthorizationURL(state string, _ map[string]string) (string, error) {
	if state == "" {
		return "", fmt.Errorf("state is required")
	}

	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("redirect_uri", a.cfg.RedirectURL)
	q.Set("response_type", "code")
	q.Set("state", state)
	return a.cfg.AuthURL + "?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	ExpiresIn     int64  `json:"expires_in"`
	TokenType     string `json:"token_type"`
	Authorization string `json:"authorization"`
}

// ExchangeCode trades the code for tokens. A missing Authorization field is not
// an error; the connect flow schedules an enrichment task for it.
func (a *Adapter) ExchangeCode(ctx context.Context, code string, _ map[string]string) (*domain.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("redirect_uri", a.cfg.RedirectURL)
	form.Set("code", code)

	return a.token(ctx, "exchange_code", form)
}

// Refresh rotates the token pair
func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("redirect_uri", a.cfg.RedirectURL)
	form.Set("refresh_token", refreshToken)

	return a.token(ctx, "refresh", form)
}

func (a *Adapter) token(ctx context.Context, op string, form url.Values) (*domain.TokenSet, error) {
	var resp tokenResponse
	err := a.client.Send(ctx, op, httpx.Request{
		Method: http.MethodPost,
		URL:    a.cfg.TokenURL,
		Form:   form,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &domain.ProviderError{Provider: domain.ProviderZid, Op: op, StatusCode: http.StatusOK, Body: "missing access_token"}
	}

	if resp.Authorization == "" {
		a.logger.Warn().Str("op", op).Msg("Token response has no Authorization token")
	}

	return &domain.TokenSet{
		AccessToken:        resp.AccessToken,
		RefreshToken:       resp.RefreshToken,
		ExpiresIn:          resp.ExpiresIn,
		AuthorizationToken: resp.Authorization,
	}, nil
}

// FetchStoreProfile tries every profile strategy in order and returns the first success
func (a *Adapter) FetchStoreProfile(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error) {
	var lastErr error
	for i, s := range a.strategies {
		profile, err := s.Fetch(ctx, tokens)
		if err == nil {
			a.logger.Info().
				Str("strategy", s.Name).
				Int("attempt", i+1).
				Bool("authorization_found", profile.AuthorizationToken != "").
				Msg("Store profile resolved")
			return profile, nil
		}

		if errors.Is(err, errSkipped) {
			a.logger.Debug().Str("strategy", s.Name).Msg("Profile strategy skipped")
			continue
		}

		lastErr = err
		evt := a.logger.Warn().Err(err).Str("strategy", s.Name).Int("attempt", i+1)
		if status := statusOf(err); status > 0 {
			evt = evt.Int("status", status)
		}
		evt.Msg("Profile strategy failed")

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no profile strategy configured")
	}
	return nil, fmt.Errorf("failed to fetch zid store profile: %w", lastErr)
}

// managerHeader builds the header pair the manager API family expects.
// Without a secondary token the manager token doubles as the bearer.
func managerHeader(tokens *domain.TokenSet, withAuthorization bool) http.Header {
	h := http.Header{}
	h.Set("X-Manager-Token", tokens.AccessToken)
	if withAuthorization && tokens.HasAuthorizationToken() {
		h.Set("Authorization", httpx.Bearer(tokens.AuthorizationToken))
	} else {
		h.Set("Authorization", httpx.Bearer(tokens.AccessToken))
	}
	h.Set("Accept-Language", "en")
	return h
}
