package executor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// TransportConfig holds HTTP transport settings tuned for long-lived LLM streams.
var TransportConfig = struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration

	H2ReadIdleTimeout time.Duration
	H2PingTimeout     time.Duration
}{
	MaxIdleConns:        1000,
	MaxIdleConnsPerHost: 100, // default is 2

	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 600 * time.Second, // large prompts can take minutes before the first byte
	DialTimeout:           30 * time.Second,
	KeepAlive:             30 * time.Second,

	H2ReadIdleTimeout: 30 * time.Second, // ping if no frame arrives
	H2PingTimeout:     15 * time.Second,
}

func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   TransportConfig.DialTimeout,
		KeepAlive: TransportConfig.KeepAlive,
	}
}

// newBaseTransport does NOT set DialContext or Proxy.
func newBaseTransport() *http.Transport {
	t := &http.Transport{
		MaxIdleConns:        TransportConfig.MaxIdleConns,
		MaxIdleConnsPerHost: TransportConfig.MaxIdleConnsPerHost,
		IdleConnTimeout:     TransportConfig.IdleConnTimeout,

		TLSHandshakeTimeout:   TransportConfig.TLSHandshakeTimeout,
		ExpectContinueTimeout: TransportConfig.ExpectContinueTimeout,
		ResponseHeaderTimeout: TransportConfig.ResponseHeaderTimeout,

		ForceAttemptHTTP2: true,

		// Decompression is handled by the executor so br and zstd bodies work too.
		DisableCompression: true,

		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,
	}
	configureHTTP2(t)
	return t
}

func configureHTTP2(transport *http.Transport) {
	h2Transport, err := http2.ConfigureTransports(transport)
	if err != nil {
		return
	}
	h2Transport.ReadIdleTimeout = TransportConfig.H2ReadIdleTimeout
	h2Transport.PingTimeout = TransportConfig.H2PingTimeout
}

// NewTransport builds the backend transport. proxyURL may be empty, http(s)://, or socks5(h)://.
func NewTransport(proxyURL string) (*http.Transport, error) {
	t := newBaseTransport()
	if proxyURL == "" {
		t.DialContext = newDialer().DialContext
		return t, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, newDialer())
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	case "http", "https":
		t.Proxy = http.ProxyURL(u)
		t.DialContext = newDialer().DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return t, nil
}

// NewHTTPClient returns a client without an overall timeout; streams are bounded by
// context cancellation and the idle watchdog instead.
func NewHTTPClient(proxyURL string) (*http.Client, error) {
	transport, err := NewTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport}, nil
}
