package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/majorcontext/portico/internal/log"
)

// tokenExpiryMargin is subtracted from expires_in so a token is never
// presented after the issuer considers it expired.
const tokenExpiryMargin = 15 * time.Second

// DefaultTokenTimeout bounds a token endpoint call when none is configured.
const DefaultTokenTimeout = 30 * time.Second

// cachedToken is the Authorization value obtained for one target.
type cachedToken struct {
	authorization string
	expiresAt     time.Time
}

// TokenCacheOptions configures a TokenCache.
type TokenCacheOptions struct {
	// HTTPClient performs token requests. Defaults to a client with Timeout.
	HTTPClient *http.Client
	// Timeout bounds each token request. Defaults to DefaultTokenTimeout.
	Timeout time.Duration
	// SingleFlight collapses concurrent fetches for the same target into one request.
	SingleFlight bool
	// Now overrides the clock (for testing).
	Now func() time.Time
	// OnFetch is called after every token endpoint call with its outcome.
	OnFetch func(targetID string, err error)
}

// TokenCache memoizes client-credentials tokens per target id.
//
// Entries are overwritten by later successful fetches and otherwise live
// for the life of the process. A failed fetch leaves the entry as it was.
//
// Without SingleFlight, concurrent requests that all miss may each fetch a
// token; the last write wins. Any of those tokens is valid, so this only
// costs extra token endpoint calls.
type TokenCache struct {
	client       *http.Client
	timeout      time.Duration
	singleFlight bool
	now          func() time.Time
	onFetch      func(string, error)

	mu     sync.Mutex
	tokens map[string]cachedToken

	group singleflight.Group
}

// NewTokenCache creates an empty token cache.
func NewTokenCache(opts TokenCacheOptions) *TokenCache {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTokenTimeout
	}
	client := &http.Client{Timeout: timeout}
	if opts.HTTPClient != nil {
		c := *opts.HTTPClient
		client = &c
	}
	client.Transport = jsonBodyTransport{base: client.Transport}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TokenCache{
		client:       client,
		timeout:      timeout,
		singleFlight: opts.SingleFlight,
		now:          now,
		onFetch:      opts.OnFetch,
		tokens:       make(map[string]cachedToken),
	}
}

// GetAuthorization returns a valid Authorization value for targetID,
// fetching a new token from tokenURL when the cached one is absent or stale.
func (c *TokenCache) GetAuthorization(ctx context.Context, targetID, clientID, clientSecret, tokenURL string) (string, error) {
	if auth, ok := c.lookup(targetID); ok {
		return auth, nil
	}
	if !c.singleFlight {
		return c.fetch(ctx, targetID, clientID, clientSecret, tokenURL)
	}

	// The shared fetch must outlive any single waiter's cancellation.
	key := targetID + "\x00" + clientID + "\x00" + tokenURL
	ch := c.group.DoChan(key, func() (any, error) {
		if auth, ok := c.lookup(targetID); ok {
			return auth, nil
		}
		return c.fetch(context.WithoutCancel(ctx), targetID, clientID, clientSecret, tokenURL)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &TokenError{TargetID: targetID, Err: ctx.Err()}
	}
}

// Len returns the number of cached entries, stale ones included.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

// lookup returns the cached value for targetID if it has not yet expired.
func (c *TokenCache) lookup(targetID string) (string, bool) {
	c.mu.Lock()
	tok, ok := c.tokens[targetID]
	c.mu.Unlock()

	if !ok || !c.now().Before(tok.expiresAt) {
		return "", false
	}
	return tok.authorization, true
}

func (c *TokenCache) store(targetID string, tok cachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[targetID] = tok
}

// fetch performs the client-credentials grant and caches the result.
func (c *TokenCache) fetch(ctx context.Context, targetID, clientID, clientSecret, tokenURL string) (string, error) {
	tok, err := c.request(ctx, targetID, clientID, clientSecret, tokenURL)
	if c.onFetch != nil {
		c.onFetch(targetID, err)
	}
	if err != nil {
		return "", err
	}
	c.store(targetID, tok)

	log.Debug("oauth token cached",
		"target", targetID,
		"client_id", clientID,
		"expires_at", tok.expiresAt.Format(time.RFC3339))
	return tok.authorization, nil
}

func (c *TokenCache) request(ctx context.Context, targetID, clientID, clientSecret, tokenURL string) (cachedToken, error) {
	conf := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)

	log.Debug("requesting oauth token", "target", targetID, "client_id", clientID)

	tok, err := conf.Token(ctx)
	if err != nil {
		tokenErr := &TokenError{TargetID: targetID, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			tokenErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return cachedToken{}, tokenErr
	}
	fetchedAt := c.now()

	if tok.TokenType == "" {
		return cachedToken{}, &TokenError{TargetID: targetID, Err: errors.New("token response missing token_type")}
	}
	expiresIn, err := expiresInSeconds(tok)
	if err != nil {
		return cachedToken{}, &TokenError{TargetID: targetID, Err: err}
	}

	return cachedToken{
		authorization: tok.TokenType + " " + tok.AccessToken,
		expiresAt:     fetchedAt.Add(tokenLifetime(expiresIn)),
	}, nil
}

// maxTokenResponseSize matches the limit x/oauth2 applies to token bodies.
const maxTokenResponseSize = 1 << 20

// jsonBodyTransport relabels a text/plain token response whose body is a JSON
// object as application/json. x/oauth2 picks its parser from Content-Type and
// would otherwise read such a body as form values.
type jsonBodyTransport struct {
	base http.RoundTripper
}

func (t jsonBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/plain" {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		resp.Header = resp.Header.Clone()
		resp.Header.Set("Content-Type", "application/json")
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// expiresInSeconds reads the raw expires_in field of a token response.
func expiresInSeconds(tok *oauth2.Token) (int64, error) {
	var (
		n   int64
		err error
	)
	switch v := tok.Extra("expires_in").(type) {
	case nil:
		return 0, errors.New("token response missing expires_in")
	case float64:
		if v != math.Trunc(v) {
			err = fmt.Errorf("non-integer expires_in %v", v)
		}
		n = int64(v)
	case int64:
		n = v
	case string:
		n, err = strconv.ParseInt(v, 10, 64)
	default:
		err = fmt.Errorf("unexpected expires_in type %T", v)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid expires_in: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid expires_in: %d", n)
	}
	return n, nil
}

// tokenLifetime is max(expiresIn seconds - tokenExpiryMargin, 0).
func tokenLifetime(expiresIn int64) time.Duration {
	if expiresIn > int64(math.MaxInt64/time.Second) {
		return time.Duration(math.MaxInt64) - tokenExpiryMargin
	}
	d := time.Duration(expiresIn)*time.Second - tokenExpiryMargin
	if d < 0 {
		return 0
	}
	return d
}
