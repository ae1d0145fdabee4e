package infast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// tokenRefreshMargin is how far ahead of expiry a cached token stops
	// being handed out.
	tokenRefreshMargin = 30 * time.Second
	minTokenLifetime   = 60 * time.Second
	defaultExpiresIn   = 3600 * time.Second
	tokenScope         = "write"
)

type cachedToken struct {
	value     string
	expiresAt time.Time // Absolute expiry reported by the server
	evictAt   time.Time // End of the cache TTL
}

// TokenCache holds access tokens keyed by client. It is safe for concurrent
// use; concurrent refreshes of the same key are not coalesced.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]cachedToken
	now     func() time.Time
}

// NewTokenCache returns an empty cache using the wall clock.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		entries: make(map[string]cachedToken),
		now:     time.Now,
	}
}

// defaultTokens is shared by every client built without WithTokenCache.
var defaultTokens = NewTokenCache()

func (c *TokenCache) get(key string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	now := c.now()
	if !now.Before(entry.evictAt) || !entry.expiresAt.After(now.Add(tokenRefreshMargin)) {
		return "", false
	}
	return entry.value, true
}

func (c *TokenCache) set(key, token string, expiresIn time.Duration) {
	ttl := expiresIn - minTokenLifetime
	if ttl < minTokenLifetime {
		ttl = minTokenLifetime
	}
	lifetime := expiresIn
	if lifetime < minTokenLifetime {
		lifetime = minTokenLifetime
	}
	now := c.now()

	c.mu.Lock()
	c.entries[key] = cachedToken{
		value:     token,
		expiresAt: now.Add(lifetime),
		evictAt:   now.Add(ttl),
	}
	c.mu.Unlock()
}

func (c *TokenCache) delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func tokenKey(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return "infast_token_" + hex.EncodeToString(sum[:8])
}

// AccessToken returns a bearer token, exchanging the client credentials when
// no usable cached token exists.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	const op = "AccessToken"

	if c.creds.ClientID == "" || c.creds.ClientSecret == "" {
		return "", ErrMissingCredentials
	}

	key := tokenKey(c.creds.ClientID)
	if token, ok := c.tokens.get(key); ok {
		return token, nil
	}

	c.log.Debug().Msg("Requesting new access token")

	token, expiresIn, err := c.exchangeToken(ctx)
	if err != nil {
		c.tokens.delete(key)
		c.log.Error().Err(err).Str("op", op).Msg("Token exchange failed")
		return "", err
	}

	c.tokens.set(key, token, expiresIn)
	return token, nil
}

// ClearTokenCache drops the cached token for this client's credentials.
func (c *Client) ClearTokenCache() {
	c.tokens.delete(tokenKey(c.creds.ClientID))
}

func (c *Client) exchangeToken(ctx context.Context) (string, time.Duration, error) {
	cfg := clientcredentials.Config{
		ClientID:     c.creds.ClientID,
		ClientSecret: c.creds.ClientSecret,
		TokenURL:     c.baseURL + "/oauth2/token",
		Scopes:       []string{tokenScope},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.tokenHTTPClient())
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", 0, authErrorFrom(err)
	}
	if tok.AccessToken == "" {
		return "", 0, &AuthError{Message: "token response carries no access_token"}
	}

	expiresIn := defaultExpiresIn
	switch {
	case tok.ExpiresIn > 0:
		expiresIn = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		expiresIn = time.Until(tok.Expiry)
	}
	return tok.AccessToken, expiresIn, nil
}

// tokenHTTPClient sends the Basic credential as "id:secret". x/oauth2 would
// query-escape both halves first, which the token endpoint rejects.
func (c *Client) tokenHTTPClient() *http.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.httpClient
	hc.Transport = &rawBasicAuth{id: c.creds.ClientID, secret: c.creds.ClientSecret, base: base}
	return &hc
}

type rawBasicAuth struct {
	id     string
	secret string
	base   http.RoundTripper
}

func (t *rawBasicAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.id, t.secret)
	return t.base.RoundTrip(req)
}

func authErrorFrom(err error) *AuthError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		authErr := &AuthError{
			Body:    truncate(string(retrieveErr.Body), 512),
			Message: retrieveErr.ErrorDescription,
			Err:     err,
		}
		if retrieveErr.Response != nil {
			authErr.Status = retrieveErr.Response.StatusCode
		}
		if authErr.Message == "" {
			authErr.Message = retrieveErr.ErrorCode
		}
		if authErr.Message == "" {
			authErr.Message = "token endpoint refused the credentials"
		}
		return authErr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &AuthError{Err: &NetworkError{Op: "POST /oauth2/token", Err: err}}
	}
	return &AuthError{Message: err.Error(), Err: err}
}
