package proxy

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/majorcontext/portico/internal/target"
)

// TokenSource yields an Authorization header value for an OAuth target.
// *TokenCache implements it.
type TokenSource interface {
	GetAuthorization(ctx context.Context, targetID, clientID, clientSecret, tokenURL string) (string, error)
}

// errNoTokenSource is returned for OAuth targets when no TokenSource is configured.
var errNoTokenSource = errors.New("no token source configured")

// Authorization returns the Authorization header value to send to cfg's
// upstream, or "" when the target's scheme yields none.
func Authorization(ctx context.Context, cfg target.Config, tokens TokenSource) (string, error) {
	switch cfg.Auth() {
	case target.AuthBasic:
		return basicAuthorization(cfg.Username, cfg.Password), nil

	case target.AuthBearer:
		if cfg.Token == "" {
			return "", nil
		}
		return "Bearer " + cfg.Token, nil

	case target.AuthOAuth:
		if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.TokenURL == "" {
			return "", nil
		}
		if tokens == nil {
			return "", &TokenError{TargetID: cfg.ID, Err: errNoTokenSource}
		}
		return tokens.GetAuthorization(ctx, cfg.ID, cfg.ClientID, cfg.ClientSecret, cfg.TokenURL)

	case target.AuthNone, target.AuthUnrecognized:
		return "", nil
	}
	return "", nil
}

func basicAuthorization(username, password string) string {
	if username == "" && password == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
