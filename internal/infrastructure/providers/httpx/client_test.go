package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"merchant-connect-layer/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_DecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "abc", r.PostForm.Get("code"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at"}`))
	}))
	defer srv.Close()

	c := NewClient(domain.ProviderSalla, time.Second, zerolog.Nop())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.Send(context.Background(), "exchange", Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Query:  url.Values{"page": {"1"}},
		Form:   url.Values{"code": {"abc"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "at", out.AccessToken)
}

func TestSend_ClassifiesStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"x"}`))
			}))
			defer srv.Close()

			c := NewClient(domain.ProviderZid, time.Second, zerolog.Nop())
			err := c.Send(context.Background(), "profile", Request{URL: srv.URL}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.transient, domain.IsTransient(err))

			if !tt.transient {
				var perr *domain.ProviderError
				require.True(t, errors.As(err, &perr))
				assert.Equal(t, tt.status, perr.StatusCode)
			}
		})
	}
}

func TestSend_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(domain.ProviderSalla, 20*time.Millisecond, zerolog.Nop())
	err := c.Send(context.Background(), "refresh", Request{URL: srv.URL}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}
