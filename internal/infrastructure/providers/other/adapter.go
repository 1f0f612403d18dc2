package other

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"merchant-connect-layer/internal/domain"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

// ParamShop carries the shop host through authorization and code exchange
const ParamShop = "shop"

// Config holds the app credentials for Shopify-compatible admin APIs
type Config struct {
	APIKey      string
	APISecret   string
	RedirectURL string
	Scopes      []string
}

// Adapter implements the generic provider on top of go-shopify. Access tokens
// issued here never expire and there is no refresh grant.
type Adapter struct {
	cfg        Config
	app        goshopify.App
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewAdapter creates a generic provider adapter. httpClient bounds every call.
func NewAdapter(cfg Config, httpClient *http.Client, logger zerolog.Logger) *Adapter {
	return &Adapter{
		cfg: cfg,
		app: goshopify.App{
			ApiKey:      cfg.APIKey,
			ApiSecret:   cfg.APISecret,
			RedirectUrl: cfg.RedirectURL,
			Scope:       strings.Join(cfg.Scopes, ","),
		},
		httpClient: httpClient,
		logger:     logger.With().Str("provider", string(domain.ProviderOther)).Logger(),
	}
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderOther
}

func (a *Adapter) SupportsRefresh() bool {
	return false
}

// createClient builds a go-shopify client sharing the adapter's bounded http client
func (a *Adapter) createClient(shopDomain, accessToken string) (*goshopify.Client, error) {
	if strings.TrimSpace(shopDomain) == "" {
		return nil, fmt.Errorf("shop domain is required")
	}
	client, err := goshopify.NewClient(a.app, shopDomain, accessToken, goshopify.WithHTTPClient(a.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// BuildAuthorizationURL needs the shop host in params[ParamShop]
func (a *Adapter) BuildAuthorizationURL(state string, params map[string]string) (string, error) {
	shop := NormalizeShop(params[ParamShop])
	if shop == "" {
		return "", fmt.Errorf("shop parameter is required")
	}
	if state == "" {
		return "", fmt.Errorf("state is required")
	}

	scopes := strings.Join(a.cfg.Scopes, ",")
	a.logger.Debug().Str("shop", shop).Str("scopes", scopes).Msg("Generating authorization URL")

	return fmt.Sprintf(
		"https://%s/admin/oauth/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		shop,
		url.QueryEscape(a.cfg.APIKey),
		url.QueryEscape(scopes),
		url.QueryEscape(a.cfg.RedirectURL),
		url.QueryEscape(state),
	), nil
}

// ExchangeCode trades the code for a permanent access token
func (a *Adapter) ExchangeCode(ctx context.Context, code string, params map[string]string) (*domain.TokenSet, error) {
	shop := NormalizeShop(params[ParamShop])
	client, err := a.createClient(shop, "")
	if err != nil {
		return nil, err
	}

	app := a.app
	app.Client = client
	token, err := app.GetAccessToken(ctx, shop, code)
	if err != nil {
		return nil, classify("exchange_code", err)
	}
	if token == "" {
		return nil, &domain.ProviderError{Provider: domain.ProviderOther, Op: "exchange_code", StatusCode: http.StatusOK, Body: "missing access_token"}
	}

	return &domain.TokenSet{AccessToken: token, StoreDomain: shop}, nil
}

// Refresh is not supported by the generic provider
func (a *Adapter) Refresh(_ context.Context, _ string) (*domain.TokenSet, error) {
	return nil, domain.ErrRefreshUnsupported
}

// FetchStoreProfile reads the shop resource
func (a *Adapter) FetchStoreProfile(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreProfile, error) {
	client, err := a.createClient(tokens.StoreDomain, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	shop, err := client.Shop.Get(ctx, nil)
	if err != nil {
		return nil, classify("get_shop", err)
	}

	domainName := shop.MyshopifyDomain
	if domainName == "" {
		domainName = tokens.StoreDomain
	}
	// webhooks only carry the shop host, so the host is the merchant id
	return &domain.StoreProfile{
		MerchantID:   NormalizeShop(domainName),
		ProviderUUID: strconv.FormatUint(shop.Id, 10),
		Name:         shop.Name,
		Email:        shop.Email,
		Phone:        shop.Phone,
		Domain:       domainName,
		Plan:         shop.PlanName,
		Currency:     shop.Currency,
		Locale:       shop.PrimaryLocale,
	}, nil
}

// FetchStoreCounts uses the admin count endpoints
func (a *Adapter) FetchStoreCounts(ctx context.Context, tokens *domain.TokenSet) (*domain.StoreCounts, error) {
	client, err := a.createClient(tokens.StoreDomain, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	orders, err := client.Order.Count(ctx, nil)
	if err != nil {
		return nil, classify("count_orders", err)
	}
	products, err := client.Product.Count(ctx, nil)
	if err != nil {
		return nil, classify("count_products", err)
	}
	customers, err := client.Customer.Count(ctx, nil)
	if err != nil {
		return nil, classify("count_customers", err)
	}

	return &domain.StoreCounts{
		Orders:    int64(orders),
		Products:  int64(products),
		Customers: int64(customers),
	}, nil
}

// NormalizeShop strips scheme and trailing slashes from a shop host
func NormalizeShop(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimRight(s, "/")
}

// classify maps go-shopify errors onto the provider error taxonomy
func classify(op string, err error) error {
	var rateErr goshopify.RateLimitError
	if errors.As(err, &rateErr) {
		return &domain.TransientProviderError{Provider: domain.ProviderOther, Op: op, StatusCode: http.StatusTooManyRequests, Err: err}
	}

	status := 0
	var respErr goshopify.ResponseError
	var respErrPtr *goshopify.ResponseError
	switch {
	case errors.As(err, &respErr):
		status = respErr.Status
	case errors.As(err, &respErrPtr):
		status = respErrPtr.Status
	default:
		return &domain.TransientProviderError{Provider: domain.ProviderOther, Op: op, Err: err}
	}

	if status >= 500 || status == http.StatusTooManyRequests || status == 0 {
		return &domain.TransientProviderError{Provider: domain.ProviderOther, Op: op, StatusCode: status, Err: err}
	}
	return &domain.ProviderError{Provider: domain.ProviderOther, Op: op, StatusCode: status, Body: err.Error()}
}
