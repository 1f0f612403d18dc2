package other

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewriteTransport sends every request to the test server regardless of shop host
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	httpClient := &http.Client{Timeout: time.Second, Transport: rewriteTransport{target: target}}
	return NewAdapter(Config{APIKey: "key", APISecret: "secret", RedirectURL: "https://cb", Scopes: []string{"read_orders", "read_products"}}, httpClient, zerolog.Nop())
}

func TestBuildAuthorizationURL(t *testing.T) {
	a := NewAdapter(Config{APIKey: "key", RedirectURL: "https://cb", Scopes: []string{"read_orders", "read_products"}}, http.DefaultClient, zerolog.Nop())

	raw, err := a.BuildAuthorizationURL("st", map[string]string{ParamShop: "https://Demo.myshopify.com/"})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "demo.myshopify.com", u.Host)
	assert.Equal(t, "/admin/oauth/authorize", u.Path)
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Equal(t, "read_orders,read_products", u.Query().Get("scope"))

	_, err = a.BuildAuthorizationURL("st", nil)
	assert.Error(t, err)
}

func TestRefreshUnsupported(t *testing.T) {
	a := NewAdapter(Config{}, http.DefaultClient, zerolog.Nop())
	assert.False(t, a.SupportsRefresh())

	_, err := a.Refresh(context.Background(), "anything")
	assert.ErrorIs(t, err, domain.ErrRefreshUnsupported)
}

func TestFetchStoreProfile(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/shop.json"), r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-Shopify-Access-Token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shop":{"id":690933842,"name":"Demo","email":"owner@demo.test","myshopify_domain":"demo.myshopify.com","currency":"USD","plan_name":"basic","primary_locale":"en"}}`))
	}))

	profile, err := a.FetchStoreProfile(context.Background(), &domain.TokenSet{AccessToken: "tok", StoreDomain: "demo.myshopify.com"})
	require.NoError(t, err)
	assert.Equal(t, "demo.myshopify.com", profile.MerchantID)
	assert.Equal(t, "690933842", profile.ProviderUUID)
	assert.Equal(t, "Demo", profile.Name)
	assert.Equal(t, "demo.myshopify.com", profile.Domain)
	assert.Equal(t, "USD", profile.Currency)
}

func TestFetchStoreProfile_RequiresShop(t *testing.T) {
	a := NewAdapter(Config{}, http.DefaultClient, zerolog.Nop())
	_, err := a.FetchStoreProfile(context.Background(), &domain.TokenSet{AccessToken: "tok"})
	assert.Error(t, err)
}

func TestFetchStoreCounts(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/orders/count.json"):
			_, _ = w.Write([]byte(`{"count":3}`))
		case strings.HasSuffix(r.URL.Path, "/products/count.json"):
			_, _ = w.Write([]byte(`{"count":4}`))
		case strings.HasSuffix(r.URL.Path, "/customers/count.json"):
			_, _ = w.Write([]byte(`{"count":5}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	counts, err := a.FetchStoreCounts(context.Background(), &domain.TokenSet{AccessToken: "tok", StoreDomain: "demo.myshopify.com"})
	require.NoError(t, err)
	assert.Equal(t, &domain.StoreCounts{Orders: 3, Products: 4, Customers: 5}, counts)
}

func TestDeleteSubscriptions_EmptyIsNotFound(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"webhooks":[]}`))
	}))

	err := a.DeleteSubscriptions(context.Background(), &domain.TokenSet{AccessToken: "tok", StoreDomain: "demo.myshopify.com"}, "app")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestNormalizeShop(t *testing.T) {
	assert.Equal(t, "demo.myshopify.com", NormalizeShop(" https://Demo.myshopify.com/ "))
	assert.Equal(t, "", NormalizeShop(""))
}

func TestVerifyWebhook(t *testing.T) {
	a := NewAdapter(Config{APIKey: "key", APISecret: "secret"}, http.DefaultClient, zerolog.Nop())
	body := `{"id":1}`

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(body))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/other", strings.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", signature)
	assert.True(t, a.VerifyWebhook(req))

	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(rest))

	bad := httptest.NewRequest(http.MethodPost, "/webhooks/other", strings.NewReader(body))
	bad.Header.Set("X-Shopify-Hmac-Sha256", "nope")
	assert.False(t, a.VerifyWebhook(bad))
}
