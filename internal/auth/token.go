// Package auth attaches backend credentials to outgoing requests.
package auth

import (
	"net/http"

	"golang.org/x/oauth2"
)

// TokenSource returns a static bearer token source, or nil when key is empty.
func TokenSource(key string) oauth2.TokenSource {
	if key == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"})
}

// NewTransport wraps base so every request carries the backend bearer key.
// An empty key returns base unchanged.
func NewTransport(base http.RoundTripper, key string) http.RoundTripper {
	src := TokenSource(key)
	if src == nil {
		return base
	}
	return &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, src), Base: base}
}
