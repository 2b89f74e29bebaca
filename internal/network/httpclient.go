// File: internal/network/httpclient.go
package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// Constants for default outbound HTTP settings.
const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultKeepAliveInterval     = 15 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 20 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
	DefaultIdleConnTimeout       = 30 * time.Second
)

// ErrUnsupportedProxy is returned for proxy schemes the client cannot dial.
var ErrUnsupportedProxy = errors.New("unsupported proxy scheme")

// ClientConfig holds the configuration for outbound HTTP clients.
type ClientConfig struct {
	// RequestTimeout bounds each request end to end.
	RequestTimeout time.Duration
	// Proxy is an http, https, socks5 or socks5h URL. Empty means direct.
	Proxy string
	// IgnoreTLSErrors is for self-signed test endpoints only.
	IgnoreTLSErrors bool
	ForceHTTP2      bool
	Logger          *zap.Logger
}

// NewHTTPTransport builds a transport honouring cfg.Proxy.
func NewHTTPTransport(cfg ClientConfig) (*http.Transport, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultKeepAliveInterval}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.IgnoreTLSErrors},
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		MaxIdleConns:          10,
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
	}

	if cfg.Proxy != "" {
		u, err := ParseProxyURL(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, dialer)
			if err != nil {
				return nil, fmt.Errorf("failed to build socks dialer: %w", err)
			}
			transport.DialContext = contextDialer(d)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxy, u.Scheme)
		}
	}

	if cfg.ForceHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			cfg.Logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	}
	return transport, nil
}

// NewHTTPClient creates a client using the configured transport.
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	transport, err := NewHTTPTransport(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// ParseProxyURL parses a proxy descriptor. A bare host:port is read as http.
func ParseProxyURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty proxy address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q: missing host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}

// ValidateProxyScheme rejects schemes that neither the bridge nor Chrome's
// --proxy-server can use.
func ValidateProxyScheme(u *url.URL) error {
	switch u.Scheme {
	case "http", "https", "socks5", "socks5h":
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedProxy, u.Scheme)
}

// contextDialer adapts an x/net/proxy dialer to http.Transport.DialContext.
func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}
