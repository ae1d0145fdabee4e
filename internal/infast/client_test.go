package infast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer serves the token endpoint and delegates everything else.
type fakeServer struct {
	*httptest.Server
	tokenCalls atomic.Int32
	tokens     []string
	expiresIn  int
	tokenFail  int // status to fail the token endpoint with, 0 for success
}

func newFakeServer(t *testing.T, api http.HandlerFunc) *fakeServer {
	t.Helper()
	fs := &fakeServer{tokens: []string{"tok-1", "tok-2", "tok-3"}, expiresIn: 3600}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			fs.serveToken(t, w, r)
			return
		}
		api(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) serveToken(t *testing.T, w http.ResponseWriter, r *http.Request) {
	n := int(fs.tokenCalls.Add(1))

	id, secret, ok := r.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "client", id)
	assert.Equal(t, "secret", secret)
	require.NoError(t, r.ParseForm())
	assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
	assert.Equal(t, "write", r.PostForm.Get("scope"))

	w.Header().Set("Content-Type", "application/json")
	if fs.tokenFail != 0 {
		w.WriteHeader(fs.tokenFail)
		_, _ = io.WriteString(w, `{"error":"invalid_client","error_description":"bad secret"}`)
		return
	}
	token := fs.tokens[(n-1)%len(fs.tokens)]
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   fs.expiresIn,
	})
}

func (fs *fakeServer) client(opts ...Option) *Client {
	base := []Option{WithBaseURL(fs.URL), WithTokenCache(NewTokenCache())}
	return NewClient(Credentials{ClientID: "client", ClientSecret: "secret"}, append(base, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestAccessTokenIsReused(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{"name":"ACME"}}`)
	})
	c := fs.client()
	ctx := context.Background()

	first, err := c.AccessToken(ctx)
	require.NoError(t, err)
	second, err := c.AccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, fs.tokenCalls.Load())
}

func TestAccessTokenSharedAcrossClientsWithSameCache(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	cache := NewTokenCache()
	creds := Credentials{ClientID: "client", ClientSecret: "secret"}

	a := NewClient(creds, WithBaseURL(fs.URL), WithTokenCache(cache))
	b := NewClient(creds, WithBaseURL(fs.URL), WithTokenCache(cache))

	_, err := a.AccessToken(context.Background())
	require.NoError(t, err)
	_, err = b.AccessToken(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, fs.tokenCalls.Load())
}

func TestAccessTokenRefreshedNearExpiry(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	cache := NewTokenCache()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	c := fs.client(WithTokenCache(cache))
	ctx := context.Background()

	_, err := c.AccessToken(ctx)
	require.NoError(t, err)

	// TTL is expires_in - 60s
	now = now.Add(3539 * time.Second)
	tok, err := c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	now = now.Add(2 * time.Second)
	tok, err = c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
	assert.EqualValues(t, 2, fs.tokenCalls.Load())
}

func TestAccessTokenShortLifetimeUsesMinimum(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	fs.expiresIn = 10
	cache := NewTokenCache()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	c := fs.client(WithTokenCache(cache))

	_, err := c.AccessToken(context.Background())
	require.NoError(t, err)

	// Absolute expiry is raised to 60s, usable until 30s before it.
	now = now.Add(29 * time.Second)
	_, err = c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, fs.tokenCalls.Load())

	now = now.Add(2 * time.Second)
	_, err = c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, fs.tokenCalls.Load())
}

func TestAccessTokenMissingCredentials(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(Credentials{ClientID: "client"}, WithBaseURL(srv.URL), WithTokenCache(NewTokenCache()))
	_, err := c.AccessToken(context.Background())

	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.EqualValues(t, 0, calls.Load())
}

func TestAccessTokenSendsRawBasicCredentials(t *testing.T) {
	var gotID, gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotSecret, _ = r.BasicAuth()
		assert.Empty(t, r.FormValue("client_secret"))
		writeJSON(w, http.StatusOK, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	c := NewClient(Credentials{ClientID: " id@shop ", ClientSecret: "a+b/c=\n"},
		WithBaseURL(srv.URL), WithTokenCache(NewTokenCache()))
	token, err := c.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok", token)
	assert.Equal(t, "id@shop", gotID)
	assert.Equal(t, "a+b/c=", gotSecret)
}

func TestAccessTokenAuthFailure(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {})
	fs.tokenFail = http.StatusUnauthorized
	c := fs.client()

	_, err := c.AccessToken(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, "bad secret", authErr.Message)
	assert.Contains(t, authErr.Body, "invalid_client")
}

func TestDoRetriesOnceOn401(t *testing.T) {
	var apiCalls atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := apiCalls.Add(1)
		if n == 1 {
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusUnauthorized, `{"error":"expired"}`)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"data":{"name":"ACME"}}`)
	})
	api := NewFromClient(fs.client())

	me, err := api.Customers.Me(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ACME", me.Name)
	assert.EqualValues(t, 2, apiCalls.Load())
	assert.EqualValues(t, 2, fs.tokenCalls.Load())
}

func TestDoSecond401IsAPIError(t *testing.T) {
	var apiCalls atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{"error":"nope"}`)
	})
	c := fs.client()

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "me"}, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "nope", apiErr.Message)
	assert.EqualValues(t, 2, apiCalls.Load())
}

func TestDoNoRetry(t *testing.T) {
	var apiCalls atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{"error":"nope"}`)
	})

	err := fs.client().Do(context.Background(), Request{Path: "me", NoRetry: true}, nil)

	assert.ErrorIs(t, err, ErrAPI)
	assert.EqualValues(t, 1, apiCalls.Load())
}

func TestDoResponseHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{name: "empty success", status: http.StatusNoContent},
		{name: "empty failure", status: http.StatusBadGateway, wantErr: ErrAPI},
		{name: "non json", status: http.StatusOK, body: "<html>oops</html>", wantErr: ErrMalformedResponse,
			check: func(t *testing.T, err error) {
				var m *MalformedResponseError
				require.True(t, errors.As(err, &m))
				assert.Equal(t, "<html>oops</html>", m.Body)
			}},
		{name: "api error details", status: http.StatusUnprocessableEntity, body: `{"error":"invalid","details":["name is required","email is invalid"]}`, wantErr: ErrAPI,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "invalid", apiErr.Message)
				assert.Equal(t, []any{"name is required", "email is invalid"}, apiErr.Details)
			}},
		{name: "api error without details", status: http.StatusBadRequest, body: `{"error":"invalid","fields":["name"]}`, wantErr: ErrAPI,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Nil(t, apiErr.Details)
			}},
		{name: "not found by status", status: http.StatusNotFound, body: `{"error":"gone"}`, wantErr: ErrNotFound},
		{name: "not found by message", status: http.StatusBadRequest, body: `{"error":"Customer Not Found"}`, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			var out map[string]any
			err := fs.client().Do(context.Background(), Request{Path: "anything"}, &out)

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Nil(t, out)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestDoNetworkError(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	})

	err := fs.client().Do(context.Background(), Request{Path: "me"}, nil)

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestDoSendsBodies(t *testing.T) {
	var got []string
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		got = append(got, string(raw))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, `{}`)
	})
	c := fs.client()
	ctx := context.Background()

	require.NoError(t, c.Do(ctx, Request{Method: http.MethodPost, Path: "raw", Body: `{"raw":true}`}, nil))
	require.NoError(t, c.Do(ctx, Request{Method: http.MethodPost, Path: "json", Body: PaymentPayload{Method: "CASH", Amount: 12.5}}, nil))

	assert.Equal(t, []string{`{"raw":true}`, `{"method":"CASH","amount":12.5}`}, got)
}

func TestEncodeQuery(t *testing.T) {
	assert.Equal(t, "", encodeQuery(nil))
	assert.Equal(t,
		"email=john%2Bshop%40example.com&limit=1&name=Jane%20Doe",
		encodeQuery(map[string]string{"name": "Jane Doe", "limit": "1", "email": "john+shop@example.com"}))
	assert.Equal(t, "ref=a-b_c.d~e", encodeQuery(map[string]string{"ref": "a-b_c.d~e"}))
}

func TestQueryReachesServerIntact(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "email=john%2Bshop%40example.com&limit=1", r.URL.RawQuery)
		assert.Equal(t, "john+shop@example.com", r.URL.Query().Get("email"))
		writeJSON(w, http.StatusOK, `{"data":[]}`)
	})

	_, found, err := NewFromClient(fs.client()).Customers.FindByEmail(context.Background(), "john+shop@example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDoRateLimited(t *testing.T) {
	var calls atomic.Int32
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{}`)
	})
	c := fs.client(WithRateLimit(0.001, 1))

	require.NoError(t, c.Do(context.Background(), Request{Path: "me"}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Do(ctx, Request{Path: "me"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.EqualValues(t, 1, calls.Load())
}

func TestWithRateLimitDisabled(t *testing.T) {
	c := NewClient(Credentials{}, WithRateLimit(5, 2), WithRateLimit(0, 0))
	assert.Nil(t, c.limiter)
}
