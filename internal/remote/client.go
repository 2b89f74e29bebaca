// internal/remote/client.go
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/config"
)

// ErrTaskUnavailable is returned when the controller answers but has no usable task.
var ErrTaskUnavailable = errors.New("task configuration unavailable")

// ErrPasswordUnavailable is returned when the controller holds no password for an account.
var ErrPasswordUnavailable = errors.New("password unavailable")

// codeOK is the envelope code the controller uses for a served task.
const codeOK = 200

// envelope is the controller's response wrapper.
type envelope struct {
	Code   int             `json:"code"`
	Status bool            `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// Client is the keyed JSON client for the controller. Every call is bounded by
// the configured timeout and throttled by a shared limiter. A failed call is
// logged and reported through its return value; it never panics or exits.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

var _ schemas.RemoteClient = (*Client)(nil)

// NewClient builds a client for the controller described by cfg.
func NewClient(cfg config.RemoteConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		key:        cfg.Key,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.Named("remote"),
	}
}

// post sends body to path and decodes the envelope.
func (c *Client) post(ctx context.Context, path string, body interface{}) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned HTTP %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return &env, nil
}

// FetchTask retrieves the task configuration for id.
func (c *Client) FetchTask(ctx context.Context, id string) (*schemas.RecoveryTask, error) {
	env, err := c.post(ctx, "/api/get_task_info", map[string]string{"id": id})
	if err != nil {
		c.logger.Error("Error retrieving task configuration.", zap.Error(err))
		return nil, err
	}
	if env.Code != codeOK || len(env.Data) == 0 || string(env.Data) == "null" {
		c.logger.Error("Controller refused task configuration.", zap.String("msg", env.Msg), zap.Int("code", env.Code))
		return nil, fmt.Errorf("%w: %s", ErrTaskUnavailable, env.Msg)
	}

	var task schemas.RecoveryTask
	if err := json.Unmarshal(env.Data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// ReportStatus pushes the account state to the controller. An empty password
// means "unchanged".
func (c *Client) ReportStatus(ctx context.Context, account, password string, success bool, message string) bool {
	env, err := c.post(ctx, "/api/update_account", map[string]interface{}{
		"username": account,
		"password": password,
		"status":   success,
		"message":  message,
	})
	if err != nil {
		c.logger.Error("Error updating account.", zap.Error(err))
		return false
	}
	if !env.Status {
		c.logger.Error("Controller rejected account update.", zap.String("msg", env.Msg))
	}
	return env.Status
}

// ReportProxyFault tells the controller the proxy with proxyID is unusable.
func (c *Client) ReportProxyFault(ctx context.Context, proxyID int) bool {
	env, err := c.post(ctx, "/api/report_proxy_error", map[string]int{"id": proxyID})
	if err != nil {
		c.logger.Error("Error reporting proxy fault.", zap.Error(err))
		return false
	}
	if !env.Status {
		c.logger.Error("Controller rejected proxy fault report.", zap.String("msg", env.Msg))
	}
	return env.Status
}

// Disable asks the controller to stop serving the account. Any HTTP success counts.
func (c *Client) Disable(ctx context.Context, account string) bool {
	if _, err := c.post(ctx, "/api/disable_account", map[string]string{"username": account}); err != nil {
		c.logger.Error("Error disabling account.", zap.Error(err))
		return false
	}
	return true
}

// FetchPassword returns the password the controller currently holds for account.
func (c *Client) FetchPassword(ctx context.Context, account string) (string, error) {
	env, err := c.post(ctx, "/api/get_password", map[string]string{"username": account})
	if err != nil {
		return "", err
	}
	if !env.Status || len(env.Data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrPasswordUnavailable, env.Msg)
	}
	var data struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("failed to decode password: %w", err)
	}
	if data.Password == "" {
		return "", ErrPasswordUnavailable
	}
	return data.Password, nil
}

// FetchProxy reads a proxy address (host:port or user:pass@host:port) from a
// plain-text endpoint. It is not keyed and does not go through the controller.
func (c *Client) FetchProxy(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create proxy request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("proxy endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy endpoint returned HTTP %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read proxy endpoint: %w", err)
	}
	addr := strings.TrimSpace(string(raw))
	if addr == "" {
		return "", errors.New("proxy endpoint returned an empty body")
	}
	return addr, nil
}
