package salla

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"

	"github.com/rs/zerolog"
)

const (
	defaultAuthURL     = "https://accounts.salla.sa/oauth2/auth"
	defaultTokenURL    = "https://accounts.salla.sa/oauth2/token"
	defaultUserInfoURL = "https://accounts.salla.sa/oauth2/user/info"
	defaultAPIBaseURL  = "https://api.salla.dev/admin/v2"
	defaultScope       = "offline_access"
)

// Config holds the salla app credentials and endpoints. Empty endpoints fall back to production.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string

	AuthURL     string
	TokenURL    string
	UserInfoURL string
	APIBaseURL  string
}

func (c *Config) applyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = defaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.UserInfoURL == "" {
		c.UserInfoURL = defaultUserInfoURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.Scope == "" {
		c.Scope = defaultScope
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
}

// Adapter implements ports.ProviderAdapter, ports.StoreStatsFetcher and ports.WebhookAPI for salla
type Adapter struct {
	cfg    Config
	client *httpx.Client
	logger zerolog.Logger
}

// NewAdapter creates a salla adapter
func NewAdapter(cfg Config, client *httpx.Client, logger zerolog.Logger) *Adapter {
	cfg.applyDefaults()
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("provider", string(domain.ProviderSalla)).Logger(),
	}
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderSalla
}

func (a *Adapter) SupportsRefresh() bool {
	return true
}

// BuildAuthorizationURL returns the salla consent page URL
func (a *Adapter) BuildAuthorizationURL(state string, _ map[string]string) (string, error) {
	if state == "" {
		return "", fmt.Errorf("state is required")
	}

	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", a.cfg.RedirectURL)
	q.Set("scope", a.cfg.Scope)
	q.Set("state", state)
	return a.cfg.AuthURL + "?" + q.Encode(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

func (t *tokenResponse) toDomain() *domain.TokenSet {
	return &domain.TokenSet{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		Scope:        t.Scope,
	}
}

// ExchangeCode trades an authorization code for a token pair
func (a *Adapter) ExchangeCode(ctx context.Context, code string, _ map[string]string) (*domain.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("redirect_uri", a.cfg.RedirectURL)
	form.Set("scope", a.cfg.Scope)
	form.Set("code", code)

	return a.token(ctx, "exchange_code", form)
}

// Refresh rotates the token pair. Salla invalidates the previous refresh token.
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
		return nil, &domain.ProviderError{Provider: domain.ProviderSalla, Op: op, StatusCode: http.StatusOK, Body: "missing access_token"}
	}
	return resp.toDomain(), nil
}

type userInfoResponse struct {
	Data struct {
		ID       httpx.ID `json:"id"`
		Name     string   `json:"name"`
		Email    string   `json:"email"`
		Mobile   string   `json:"mobile"`
		Merchant struct {
			ID       httpx.ID `json:"id"`
			Username string   `json:"username"`
			Name     string   `json:"name"`
			Avatar   string   `json:"avatar"`
			Plan     string   `json:"plan"`
			Domain   string   `json:"domain"`
			Currency string   `json:"currency"`
			Locale   string   `json:"locale"`
		} `json:"merchant"`
	} `json:"data"`
}

// FetchStoreProfile reads the merchant behind the access token
func (a *Adapter) FetchStoreProfile(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error) {
	var resp userInfoResponse
	err := a.client.Send(ctx, "user_info", httpx.Request{
		URL:    a.cfg.UserInfoURL,
		Header: a.authHeader(tokens),
	}, &resp)
	if err != nil {
		return nil, err
	}

	m := resp.Data.Merchant
	return &domain.StoreProfile{
		MerchantID: m.ID.String(),
		Name:       m.Name,
		Email:      resp.Data.Email,
		Phone:      resp.Data.Mobile,
		Domain:     m.Domain,
		LogoURL:    m.Avatar,
		Plan:       m.Plan,
		Currency:   m.Currency,
		Locale:     m.Locale,
	}, nil
}

type paginationResponse struct {
	Pagination struct {
		Total int64 `json:"total"`
	} `json:"pagination"`
}

// FetchStoreCounts reads aggregate totals from the admin API pagination blocks
func (a *Adapter) FetchStoreCounts(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreCounts, error) {
	counts := &domain.StoreCounts{}
	targets := []struct {
		resource string
		dst      *int64
	}{
		{"orders", &counts.Orders},
		{"products", &counts.Products},
		{"customers", &counts.Customers},
	}

	for _, t := range targets {
		var resp paginationResponse
		err := a.client.Send(ctx, "count_"+t.resource, httpx.Request{
			URL:    a.cfg.APIBaseURL + "/" + t.resource,
			Query:  url.Values{"per_page": {"1"}},
			Header: a.authHeader(tokens),
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t.resource, err)
		}
		*t.dst = resp.Pagination.Total
	}
	return counts, nil
}

func (a *Adapter) authHeader(tokens *domain.TokenSet) http.Header {
	h := http.Header{}
	h.Set("Authorization", httpx.Bearer(tokens.AccessToken))
	return h
}
