// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/browser/stealth"
	"github.com/xkilldash9x/recovery-warden/internal/config"
	"github.com/xkilldash9x/recovery-warden/internal/network"
)

// ErrLaunchFailed wraps every failure to bring up a browser session.
var ErrLaunchFailed = errors.New("browser launch failed")

const defaultLaunchTimeout = 60 * time.Second

// Driver launches one isolated browser per run, either a local Chrome
// process or a remote DevTools endpoint.
type Driver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.Driver = (*Driver)(nil)

// NewDriver creates a driver for the given browser settings.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg, logger: logger.Named("browser")}
}

// IsRemote reports whether webdriver names a DevTools websocket endpoint.
func IsRemote(webdriver string) bool {
	w := strings.ToLower(strings.TrimSpace(webdriver))
	return strings.HasPrefix(w, "ws://") || strings.HasPrefix(w, "wss://")
}

// Launch starts the browser, opens its first tab and applies the stealth
// persona. The returned session owns every resource it allocated.
func (d *Driver) Launch(ctx context.Context, opts schemas.LaunchOptions) (schemas.Session, error) {
	persona := stealth.NewPersona(d.pickUserAgent())
	s := &Session{cfg: d.cfg, logger: d.logger}

	proxyServer, err := d.prepareProxy(opts.Proxy, s)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	var allocCtx context.Context
	if IsRemote(opts.Webdriver) {
		if proxyServer != "" {
			d.logger.Warn("Proxy ignored for remote webdriver; configure it on the remote browser.")
		}
		d.logger.Info("Attaching to remote browser.", zap.String("webdriver", opts.Webdriver))
		allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), opts.Webdriver)
	} else {
		allocOpts := d.buildAllocatorOptions(opts.Headless, persona.UserAgent, proxyServer)
		allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	}

	s.tabCtx, s.tabCancel = chromedp.NewContext(allocCtx)

	timeout := d.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	launchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.run(launchCtx, stealth.Apply(persona, d.logger)); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	d.logger.Info("Browser session ready.",
		zap.Bool("headless", opts.Headless),
		zap.Bool("proxied", proxyServer != ""),
		zap.String("user_agent", persona.UserAgent))
	return s, nil
}

// prepareProxy returns the value for --proxy-server. Credentialed upstreams
// are fronted by a local bridge owned by the session.
func (d *Driver) prepareProxy(raw string, s *Session) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	u, err := network.ParseProxyURL(raw)
	if err != nil {
		return "", err
	}
	if err := network.ValidateProxyScheme(u); err != nil {
		return "", err
	}
	if !network.NeedsBridge(u) {
		return u.String(), nil
	}

	bridge, err := network.NewProxyBridge(u, d.logger)
	if err != nil {
		return "", err
	}
	if err := bridge.Start(); err != nil {
		return "", err
	}
	s.bridge = bridge
	return bridge.Addr(), nil
}

func (d *Driver) pickUserAgent() string {
	if len(d.cfg.UserAgents) == 0 {
		return ""
	}
	return d.cfg.UserAgents[rand.IntN(len(d.cfg.UserAgents))]
}

// buildAllocatorOptions assembles the flags for a local browser.
func (d *Driver) buildAllocatorOptions(headless bool, userAgent, proxyServer string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	// A false flag overrides the default and drops "enable-automation" from the command line.
	opts = append(opts, chromedp.Flag("enable-automation", false))

	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", true),
		// Keeps the sign-in iframe in-process so it can be queried from the top document.
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.WindowSize(1920, 1080),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if proxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(proxyServer))
	}

	for _, arg := range d.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")

		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}
