package config

import (
	"net/http"
	"net/url"
	"os"
	"strings"
)

// BackendConfig describes the single chat-completion backend every request is forwarded to.
type BackendConfig struct {
	// BaseURL is the API root; requests go to BaseURL + "/chat/completions".
	BaseURL string `yaml:"base-url" json:"base-url"`

	// APIKey is sent as a bearer token. When empty, APIKeyEnv names an environment variable to read.
	APIKey    string `yaml:"api-key,omitempty" json:"api-key,omitempty"`
	APIKeyEnv string `yaml:"api-key-env,omitempty" json:"api-key-env,omitempty"`

	// Headers adds custom HTTP headers to every backend request.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// ProxyURL routes backend traffic through an http(s) or socks5 proxy.
	ProxyURL string `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`

	// Timeout bounds a whole non-streaming call. IdleTimeout bounds the gap between stream reads.
	Timeout     Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	IdleTimeout Duration `yaml:"idle-timeout,omitempty" json:"idle-timeout,omitempty"`
}

// ResolveAPIKey returns the configured key, falling back to the APIKeyEnv variable.
func (b *BackendConfig) ResolveAPIKey() string {
	if b.APIKey != "" {
		return b.APIKey
	}
	if b.APIKeyEnv != "" {
		return strings.TrimSpace(os.Getenv(b.APIKeyEnv))
	}
	return ""
}

// Sanitize normalizes fields in place.
func (b *BackendConfig) Sanitize() {
	b.BaseURL = strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	b.APIKey = strings.TrimSpace(b.APIKey)
	b.APIKeyEnv = strings.TrimSpace(b.APIKeyEnv)
	b.ProxyURL = strings.TrimSpace(b.ProxyURL)
	b.Headers = NormalizeHeaders(b.Headers)
}

// Validate checks the backend configuration.
func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return &ValidationError{Field: "backend.base-url", Message: "base-url is required"}
	}
	u, err := url.Parse(b.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "backend.base-url", Message: "must be an absolute http(s) URL"}
	}
	if b.ProxyURL != "" {
		p, err := url.Parse(b.ProxyURL)
		if err != nil || p.Host == "" {
			return &ValidationError{Field: "backend.proxy-url", Message: "must be an absolute URL"}
		}
		switch p.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return &ValidationError{Field: "backend.proxy-url", Message: "scheme must be http, https, socks5 or socks5h"}
		}
	}
	if b.Timeout < 0 || b.IdleTimeout < 0 {
		return &ValidationError{Field: "backend.timeout", Message: "timeouts must not be negative"}
	}
	return nil
}

// NormalizeHeaders canonicalizes header names and drops empty entries.
func NormalizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[http.CanonicalHeaderKey(k)] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
