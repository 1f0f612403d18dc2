package zid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"
	"merchant-connect-layer/internal/infrastructure/providers/httpx"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://app.example.com/oauth/zid/callback",
		TokenURL:     srv.URL + "/oauth/token",
		APIBaseURL:   srv.URL,
	}
	return NewAdapter(cfg, httpx.NewClient(domain.ProviderZid, time.Second, zerolog.Nop()), zerolog.Nop())
}

const managerProfileJSON = `{"user":{"id":1,"name":"Owner","email":"owner@zid.test","mobile":"0500","authorization":"auth-from-profile","store":{"id":777,"uuid":"store-uuid","title":"Zid Store","url":"https://zid.store/demo","currency_code":"SAR","language":"ar"}}}`

func TestBuildAuthorizationURL(t *testing.T) {
	a := NewAdapter(Config{ClientID: "client", RedirectURL: "https://cb"}, httpx.NewClient(domain.ProviderZid, 0, zerolog.Nop()), zerolog.Nop())

	raw, err := a.BuildAuthorizationURL("st", nil)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "oauth.zid.sa", u.Host)
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Equal(t, "https://cb", u.Query().Get("redirect_uri"))
}

func TestExchangeCode(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantAuth string
	}{
		{"with authorization", `{"access_token":"mgr","refresh_token":"rt","expires_in":31536000,"Authorization":"auth-1"}`, "auth-1"},
		{"without authorization", `{"access_token":"mgr","refresh_token":"rt","expires_in":31536000}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
				_, _ = w.Write([]byte(tt.body))
			}))

			tokens, err := a.ExchangeCode(context.Background(), "code", nil)
			require.NoError(t, err)
			assert.Equal(t, "mgr", tokens.AccessToken)
			assert.Equal(t, tt.wantAuth, tokens.AuthorizationToken)
			assert.Equal(t, tt.wantAuth != "", tokens.HasAuthorizationToken())
		})
	}
}

func TestFetchStoreProfile_FirstStrategyWins(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path+"|"+r.Header.Get("Authorization"))
		mu.Unlock()
		assert.Equal(t, "mgr", r.Header.Get("X-Manager-Token"))
		_, _ = w.Write([]byte(managerProfileJSON))
	}))

	profile, err := a.FetchStoreProfile(context.Background(), &domain.TokenSet{AccessToken: "mgr", AuthorizationToken: "auth-1"})
	require.NoError(t, err)
	assert.Equal(t, "777", profile.MerchantID)
	assert.Equal(t, "store-uuid", profile.ProviderUUID)
	assert.Equal(t, "Zid Store", profile.Name)
	assert.Equal(t, "owner@zid.test", profile.Email)
	assert.Equal(t, "auth-from-profile", profile.AuthorizationToken)
	assert.Equal(t, []string{"/v1/managers/account/profile|Bearer auth-1"}, calls)
}

func TestFetchStoreProfile_SkipsAuthorizationStrategyWithoutSecondaryToken(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = w.Write([]byte(managerProfileJSON))
	}))

	_, err := a.FetchStoreProfile(context.Background(), &domain.TokenSet{AccessToken: "mgr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer mgr"}, calls)
}

func TestFetchStoreProfile_FallsBackToStoreAPI(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/v1/managers/account/profile":
			w.WriteHeader(http.StatusUnauthorized)
		case "/v1/managers/store/":
			assert.Equal(t, "mgr", r.Header.Get("Access-Token"))
			assert.Empty(t, r.Header.Get("X-Manager-Token"))
			_, _ = w.Write([]byte(`{"store":{"id":"888","title":"Fallback Store"}}`))
		}
	}))

	profile, err := a.FetchStoreProfile(context.Background(), &domain.TokenSet{AccessToken: "mgr", AuthorizationToken: "auth"})
	require.NoError(t, err)
	assert.Equal(t, "888", profile.MerchantID)
	assert.Equal(t, "Fallback Store", profile.Name)
	assert.Empty(t, profile.AuthorizationToken)
	assert.Equal(t, []string{"/v1/managers/account/profile", "/v1/managers/account/profile", "/v1/managers/store/"}, paths)
}

func TestFetchStoreProfile_AllStrategiesFail(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := a.FetchStoreProfile(context.Background(), &domain.TokenSet{AccessToken: "mgr"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch zid store profile")
}

func TestWebhooks(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/managers/webhooks", r.URL.Path)
		assert.Equal(t, "Bearer auth", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodDelete:
			assert.Equal(t, "app-9", r.URL.Query().Get("subscriber"))
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"webhook":{"id":"w1","event":"order.create","target_url":"https://hook","active":true}}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"webhooks":[{"id":"w1","event":"order.create","target_url":"https://hook","active":false}]}`))
		}
	}))
	ctx := context.Background()
	tokens := &domain.TokenSet{AccessToken: "mgr", AuthorizationToken: "auth"}

	err := a.DeleteSubscriptions(ctx, tokens, "app-9")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))

	sub, err := a.CreateSubscription(ctx, tokens, "order.create", "https://hook", "app-9")
	require.NoError(t, err)
	assert.Equal(t, "w1", sub.ID)
	assert.True(t, sub.Active)

	subs, err := a.ListSubscriptions(ctx, tokens)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].Active)
}
