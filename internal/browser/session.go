// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/config"
	"github.com/xkilldash9x/recovery-warden/internal/network"
)

var (
	// ErrNoSession is returned by every call made after Close.
	ErrNoSession = errors.New("browser session closed")
	// ErrNoElement means the locator matched fewer than Nth+1 elements.
	ErrNoElement = errors.New("element not found")
)

const (
	defaultNavigationTimeout = 60 * time.Second
	defaultActionTimeout     = 30 * time.Second
	pollInterval             = 100 * time.Millisecond
)

// Session is a single chromedp tab implementing schemas.Session.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	bridge      *network.ProxyBridge

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ schemas.Session = (*Session)(nil)

// run executes actions on the tab, bounded by both the tab and ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.tabCtx == nil {
		return ErrNoSession
	}

	runCtx, cancel := combineContext(s.tabCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *Session) withTimeout(ctx context.Context, fallback, configured time.Duration) (context.Context, context.CancelFunc) {
	if configured <= 0 {
		configured = fallback
	}
	return context.WithTimeout(ctx, configured)
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating session.", zap.String("url", url))
	navCtx, cancel := s.withTimeout(ctx, defaultNavigationTimeout, s.cfg.NavigationTimeout)
	defer cancel()

	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out: %w", url, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// nodes returns every match for loc, scoped to the first matching frame when loc.Frame is set.
func (s *Session) nodes(ctx context.Context, loc schemas.Locator) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
		if loc.Frame != "" {
			var frames []*cdp.Node
			if err := chromedp.Nodes(loc.Frame, &frames, chromedp.ByQuery, chromedp.AtLeast(0)).Do(ctx); err != nil {
				return err
			}
			if len(frames) == 0 {
				return nil
			}
			opts = append(opts, chromedp.FromNode(frames[0]))
		}
		return chromedp.Nodes(loc.Selector, &nodes, opts...).Do(ctx)
	}))
	return nodes, err
}

// node resolves loc to exactly one element.
func (s *Session) node(ctx context.Context, loc schemas.Locator) (*cdp.Node, error) {
	nodes, err := s.nodes(ctx, loc)
	if err != nil {
		return nil, err
	}
	if loc.Nth < 0 || loc.Nth >= len(nodes) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrNoElement, loc.Selector, loc.Nth)
	}
	return nodes[loc.Nth], nil
}

// IsVisible reports whether the element exists and has a rendered box.
func (s *Session) IsVisible(ctx context.Context, loc schemas.Locator) bool {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	n, err := s.node(actCtx, loc)
	if err != nil {
		return false
	}
	var box *dom.BoxModel
	err = s.run(actCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		box, err = dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx)
		return err
	}))
	return err == nil && box != nil && box.Width > 0 && box.Height > 0
}

// WaitVisible polls until the element is visible or timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, loc schemas.Locator, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if s.IsVisible(waitCtx, loc) {
			return true
		}
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (s *Session) Count(ctx context.Context, loc schemas.Locator) (int, error) {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	nodes, err := s.nodes(actCtx, loc)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", loc.Selector, err)
	}
	return len(nodes), nil
}

// Fill clears the input and types text into it.
func (s *Session) Fill(ctx context.Context, loc schemas.Locator, text string) error {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	n, err := s.node(actCtx, loc)
	if err != nil {
		return err
	}
	ids := []cdp.NodeID{n.NodeID}
	err = s.run(actCtx,
		chromedp.SetValue(ids, "", chromedp.ByNodeID),
		chromedp.SendKeys(ids, text, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", loc.Selector, err)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, loc schemas.Locator) error {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	n, err := s.node(actCtx, loc)
	if err != nil {
		return err
	}
	if err := s.run(actCtx, chromedp.Click([]cdp.NodeID{n.NodeID}, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc.Selector, err)
	}
	return nil
}

// PressEnter sends Enter to the focused element.
func (s *Session) PressEnter(ctx context.Context) error {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()
	if err := s.run(actCtx, chromedp.KeyEvent(kb.Enter)); err != nil {
		return fmt.Errorf("failed to press enter: %w", err)
	}
	return nil
}

func (s *Session) ReadText(ctx context.Context, loc schemas.Locator) (string, error) {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	n, err := s.node(actCtx, loc)
	if err != nil {
		return "", err
	}
	var text string
	if err := s.run(actCtx, chromedp.Text([]cdp.NodeID{n.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", loc.Selector, err)
	}
	return text, nil
}

// Attribute returns the named attribute, or "" when the element does not carry it.
func (s *Session) Attribute(ctx context.Context, loc schemas.Locator, name string) (string, error) {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	n, err := s.node(actCtx, loc)
	if err != nil {
		return "", err
	}
	var (
		value string
		ok    bool
	)
	err = s.run(actCtx, chromedp.AttributeValue([]cdp.NodeID{n.NodeID}, name, &value, &ok, chromedp.ByNodeID))
	if err != nil {
		return "", fmt.Errorf("failed to read %s of %s: %w", name, loc.Selector, err)
	}
	return value, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	var buf []byte
	if err := s.run(actCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) DumpMarkup(ctx context.Context) (string, error) {
	actCtx, cancel := s.withTimeout(ctx, defaultActionTimeout, s.cfg.ActionTimeout)
	defer cancel()

	var markup string
	if err := s.run(actCtx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to dump markup: %w", err)
	}
	return markup, nil
}

// Close shuts the tab, the browser (or the remote connection) and the proxy
// bridge. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		// chromedp.Cancel and the tab's cancel func both wait on the
		// allocation, so only one of them may run. Without a browser there is
		// nothing to close gracefully.
		var c *chromedp.Context
		if s.tabCtx != nil {
			c = chromedp.FromContext(s.tabCtx)
		}
		switch {
		case c != nil && c.Browser != nil:
			if cerr := chromedp.Cancel(s.tabCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
				s.logger.Debug("Graceful tab shutdown failed.", zap.Error(cerr))
			}
		case s.tabCancel != nil:
			s.tabCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		if s.bridge != nil {
			err = s.bridge.Close()
		}
		s.logger.Debug("Browser session closed.")
	})
	return err
}
