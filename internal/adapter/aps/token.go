package aps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
)

const tokenPath = "/authentication/v2/token"

type token struct {
	value     string
	expiresAt time.Time
}

// TokenCache holds one two-legged access token and refreshes it shortly
// before expiry. Concurrent callers share a single refresh.
type TokenCache struct {
	http         *resty.Client
	clientID     string
	clientSecret string
	scopes       string
	margin       time.Duration
	now          func() time.Time

	mu      sync.Mutex
	current token
	group   singleflight.Group
}

func NewTokenCache(http *resty.Client, clientID, clientSecret, scopes string, margin time.Duration) *TokenCache {
	return &TokenCache{
		http:         http,
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		margin:       margin,
		now:          time.Now,
	}
}

// GetValidToken returns a cached token unless it expires within the refresh margin.
func (c *TokenCache) GetValidToken(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		return c.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.value != "" && c.now().Add(c.margin).Before(c.current.expiresAt) {
		return c.current.value, true
	}
	return "", false
}

// Invalidate drops the cached token so the next call fetches a new one.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.current = token{}
	c.mu.Unlock()
}

func (c *TokenCache) fetch(ctx context.Context) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	r, err := c.http.R().SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      c.scopes,
		}).
		SetResult(&resp).
		Post(tokenPath)
	if err != nil {
		return "", &domain.GatewayError{Op: "authenticate", Transient: true, Err: err}
	}
	if r.IsError() {
		return "", classify("authenticate", r)
	}
	if resp.AccessToken == "" {
		return "", &domain.GatewayError{Op: "authenticate", StatusCode: r.StatusCode(), Transient: true, Err: fmt.Errorf("empty access token")}
	}

	c.mu.Lock()
	c.current = token{value: resp.AccessToken, expiresAt: c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)}
	c.mu.Unlock()
	return resp.AccessToken, nil
}
