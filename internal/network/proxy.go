// internal/network/proxy.go
package network

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

// Note: Chrome's --proxy-server flag cannot carry credentials and a headless
// browser cannot answer a proxy authentication challenge. ProxyBridge is a
// local, unauthenticated goproxy listener that forwards everything to a
// credentialed upstream.

// NeedsBridge reports whether the browser must reach u through a ProxyBridge.
func NeedsBridge(u *url.URL) bool {
	return u != nil && u.User != nil && u.User.Username() != ""
}

// ProxyBridge chains a local listener to an authenticated upstream proxy.
type ProxyBridge struct {
	proxy    *goproxy.ProxyHttpServer
	server   *http.Server
	listener net.Listener
	upstream *url.URL
	logger   *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewProxyBridge configures the chain towards upstream. Call Start to listen.
func NewProxyBridge(upstream *url.URL, logger *zap.Logger) (*ProxyBridge, error) {
	if upstream == nil {
		return nil, errors.New("upstream proxy is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("proxy_bridge")

	p := goproxy.NewProxyHttpServer()
	p.Verbose = false

	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultKeepAliveInterval}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		IdleConnTimeout:       DefaultIdleConnTimeout,
	}

	switch upstream.Scheme {
	case "http", "https":
		// Plain HTTP requests carry credentials through the transport; CONNECT
		// tunnels need the header set on the upstream CONNECT request.
		transport.Proxy = http.ProxyURL(upstream)
		auth := basicAuth(upstream.User)
		p.ConnectDial = p.NewConnectDialToProxyWithHandler(upstream.String(), func(req *http.Request) {
			if auth != "" {
				req.Header.Set("Proxy-Authorization", auth)
			}
		})
	case "socks5", "socks5h":
		d, err := proxy.FromURL(upstream, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to build socks dialer: %w", err)
		}
		transport.DialContext = contextDialer(d)
		p.ConnectDial = d.Dial
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxy, upstream.Scheme)
	}
	p.Tr = transport

	p.OnResponse().DoFunc(func(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
		if resp == nil && ctx.Error != nil {
			log.Warn("Upstream proxy request failed.", zap.String("url", getRequestURL(ctx)), zap.Error(ctx.Error))
		}
		return resp
	})

	return &ProxyBridge{proxy: p, upstream: upstream, logger: log}, nil
}

// Start binds the bridge to a random loopback port and serves in the background.
func (b *ProxyBridge) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to bind proxy bridge: %w", err)
	}
	b.listener = ln
	b.server = &http.Server{Handler: b.proxy, ReadHeaderTimeout: 30 * time.Second}

	go func() {
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("Proxy bridge stopped unexpectedly.", zap.Error(err))
		}
	}()
	b.logger.Info("Proxy bridge listening.", zap.String("addr", ln.Addr().String()), zap.String("upstream", b.upstream.Host))
	return nil
}

// Addr returns the proxy URL the browser should use.
func (b *ProxyBridge) Addr() string {
	if b.listener == nil {
		return ""
	}
	return "http://" + b.listener.Addr().String()
}

// Close shuts the listener down. It is safe to call more than once.
func (b *ProxyBridge) Close() error {
	b.closeOnce.Do(func() {
		if b.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.closeErr = b.server.Shutdown(ctx)
	})
	return b.closeErr
}

func basicAuth(user *url.Userinfo) string {
	if user == nil {
		return ""
	}
	pass, _ := user.Password()
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user.Username()+":"+pass))
}

// getRequestURL is a helper to safely extract the request URL from the context for logging.
func getRequestURL(ctx *goproxy.ProxyCtx) string {
	if ctx != nil && ctx.Req != nil && ctx.Req.URL != nil {
		return ctx.Req.URL.String()
	}
	return "unknown"
}
