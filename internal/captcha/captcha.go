// internal/captcha/captcha.go
package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/config"
	"github.com/xkilldash9x/recovery-warden/internal/network"
)

// MinLength is the shortest recognition accepted by ResolveWithRetry.
const MinLength = 4

// DefaultMaxAttempts applies when ResolveWithRetry is called with a non-positive count.
const DefaultMaxAttempts = 3

// ErrUnresolved is returned by strategies that gave up without an answer.
var ErrUnresolved = errors.New("captcha unresolved")

var dataURIPrefix = regexp.MustCompile(`^data:[^;,]*;base64,`)

// Strategy is one recognition backend. Implementations receive the image as
// it was read from the page (raw base64 or a data URI) and strip the prefix
// themselves.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, image string) (string, error)
}

// clientBound is implemented by strategies that make outbound HTTP calls and
// can be rebuilt around another client.
type clientBound interface {
	withClient(c *http.Client) (Strategy, error)
}

// StripDataURI removes a leading data:<media type>;base64, prefix.
func StripDataURI(image string) string {
	return dataURIPrefix.ReplaceAllString(strings.TrimSpace(image), "")
}

// DecodeImage strips any data URI prefix and decodes the base64 payload.
func DecodeImage(image string) ([]byte, error) {
	payload := StripDataURI(image)
	if payload == "" {
		return nil, errors.New("empty captcha image")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode captcha image: %w", err)
	}
	return data, nil
}

// Solver wraps a Strategy with the bounded retry policy.
type Solver struct {
	strategy   Strategy
	logger     *zap.Logger
	retryDelay time.Duration
}

var _ schemas.CaptchaSolver = (*Solver)(nil)

// Option tunes a Solver.
type Option func(*Solver)

// WithRetryDelay sets the pause between failed attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Solver) { s.retryDelay = d }
}

// NewSolver wraps strategy.
func NewSolver(strategy Strategy, logger *zap.Logger, opts ...Option) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Solver{
		strategy:   strategy,
		logger:     logger.Named("captcha").With(zap.String("strategy", strategy.Name())),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve runs the strategy once. Errors are logged and reported as "".
func (s *Solver) Resolve(ctx context.Context, image string) string {
	text, err := s.strategy.Resolve(ctx, image)
	if err != nil {
		s.logger.Warn("Captcha recognition failed.", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

// ResolveWithRetry repeats Resolve until a result of at least MinLength
// characters comes back or maxAttempts is exhausted, in which case it returns "".
func (s *Solver) ResolveWithRetry(ctx context.Context, image string, maxAttempts int) string {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	attempt := schemas.CaptchaAttempt{}
	if data, err := DecodeImage(image); err == nil {
		attempt.Image = data
	}

	for attempt.Attempt = 1; attempt.Attempt <= maxAttempts; attempt.Attempt++ {
		attempt.Text = s.Resolve(ctx, image)
		if utf8.RuneCountInString(attempt.Text) >= MinLength {
			s.logger.Info("Captcha recognized.", zap.Int("attempt", attempt.Attempt), zap.Int("image_bytes", len(attempt.Image)))
			return attempt.Text
		}
		s.logger.Warn("Captcha attempt rejected, retrying.", zap.Int("attempt", attempt.Attempt), zap.Int("length", utf8.RuneCountInString(attempt.Text)))
		if attempt.Attempt < maxAttempts && !sleep(ctx, s.retryDelay) {
			break
		}
	}
	return ""
}

// WithProxy returns a solver whose outbound calls go through proxyURL. Solvers
// whose strategy makes no HTTP calls are returned unchanged.
func (s *Solver) WithProxy(proxyURL string, timeout time.Duration) schemas.CaptchaSolver {
	bound, ok := s.strategy.(clientBound)
	if !ok || proxyURL == "" {
		return s
	}
	client, err := network.NewHTTPClient(network.ClientConfig{Proxy: proxyURL, RequestTimeout: timeout, Logger: s.logger})
	if err != nil {
		s.logger.Warn("Captcha proxy rejected, calling directly.", zap.Error(err))
		return s
	}
	strategy, err := bound.withClient(client)
	if err != nil {
		s.logger.Warn("Failed to rebind captcha strategy to proxy.", zap.Error(err))
		return s
	}
	clone := *s
	clone.strategy = strategy
	return &clone
}

// New builds the Solver selected by cfg.Strategy.
func New(cfg config.CaptchaConfig, logger *zap.Logger) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := network.NewHTTPClient(network.ClientConfig{RequestTimeout: cfg.Timeout, Logger: logger})
	if err != nil {
		return nil, err
	}

	var strategy Strategy
	switch strings.ToLower(cfg.Strategy) {
	case "manual":
		strategy = NewManual(cfg.ManualWait)
	case "ocr":
		strategy = NewDdddOCR(cfg.Command, cfg.Timeout)
	case "script":
		strategy = NewScript(cfg.Command, cfg.Timeout)
	case "2captcha":
		strategy = NewTwoCaptcha(cfg, client)
	case "api":
		strategy = NewCustomAPI(cfg.Endpoint, client)
	case "gemini":
		strategy, err = NewGemini(context.Background(), cfg, client)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("captcha strategy %q is not supported", cfg.Strategy)
	}
	return NewSolver(strategy, logger), nil
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
