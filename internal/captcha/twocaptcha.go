package captcha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/recovery-warden/internal/config"
)

const twoCaptchaBaseURL = "https://2captcha.com"

var errNotReady = errors.New("CAPCHA_NOT_READY")

// twoCaptchaResponse is the json=1 envelope used by in.php and res.php.
type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// TwoCaptcha submits the image to the 2captcha solving service and polls for
// the answer a bounded number of times at a fixed interval.
type TwoCaptcha struct {
	apiKey   string
	baseURL  string
	rounds   int
	interval time.Duration
	client   *http.Client
}

// NewTwoCaptcha builds the strategy. cfg.Endpoint, when set, replaces the service base URL.
func NewTwoCaptcha(cfg config.CaptchaConfig, client *http.Client) *TwoCaptcha {
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		base = twoCaptchaBaseURL
	}
	rounds := cfg.PollRounds
	if rounds <= 0 {
		rounds = 20
	}
	return &TwoCaptcha{
		apiKey:   cfg.APIKey,
		baseURL:  base,
		rounds:   rounds,
		interval: cfg.PollInterval,
		client:   client,
	}
}

func (t *TwoCaptcha) Name() string { return "2captcha" }

func (t *TwoCaptcha) withClient(c *http.Client) (Strategy, error) {
	clone := *t
	clone.client = c
	return &clone, nil
}

func (t *TwoCaptcha) Resolve(ctx context.Context, image string) (string, error) {
	payload := StripDataURI(image)
	if payload == "" {
		return "", errors.New("empty captcha image")
	}

	id, err := t.submit(ctx, payload)
	if err != nil {
		return "", err
	}

	// The service needs a moment before the first poll.
	if !sleep(ctx, t.interval) {
		return "", ctx.Err()
	}

	var answer string
	poll := func() error {
		text, err := t.poll(ctx, id)
		if err != nil {
			return err
		}
		answer = text
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(t.interval), uint64(t.rounds-1)), ctx)
	if err := backoff.Retry(poll, policy); err != nil {
		if errors.Is(err, errNotReady) {
			return "", fmt.Errorf("%w: 2captcha timed out after %d polls", ErrUnresolved, t.rounds)
		}
		return "", err
	}
	return answer, nil
}

func (t *TwoCaptcha) submit(ctx context.Context, payload string) (string, error) {
	form := url.Values{
		"key":    {t.apiKey},
		"method": {"base64"},
		"body":   {payload},
		"json":   {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.do(req)
	if err != nil {
		return "", fmt.Errorf("2captcha submit failed: %w", err)
	}
	if resp.Status != 1 {
		return "", fmt.Errorf("2captcha rejected submission: %s", resp.Request)
	}
	return resp.Request, nil
}

// poll returns errNotReady while the answer is pending; other failures are permanent.
func (t *TwoCaptcha) poll(ctx context.Context, id string) (string, error) {
	q := url.Values{"key": {t.apiKey}, "action": {"get"}, "id": {id}, "json": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create poll request: %w", err))
	}

	resp, err := t.do(req)
	if err != nil {
		// Network hiccups are retried like a pending answer.
		return "", errNotReady
	}
	switch {
	case resp.Status == 1:
		return resp.Request, nil
	case resp.Request == errNotReady.Error():
		return "", errNotReady
	default:
		return "", backoff.Permanent(fmt.Errorf("2captcha failed: %s", resp.Request))
	}
}

func (t *TwoCaptcha) do(req *http.Request) (*twoCaptchaResponse, error) {
	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", httpResp.StatusCode)
	}
	var out twoCaptchaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}
