package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/json-iterator/go"
)

// CustomAPI posts {"image": <base64>} to a self-hosted recognizer and reads
// the answer from the "text" or "result" field.
type CustomAPI struct {
	endpoint string
	client   *http.Client
}

// NewCustomAPI builds the strategy for endpoint.
func NewCustomAPI(endpoint string, client *http.Client) *CustomAPI {
	return &CustomAPI{endpoint: endpoint, client: client}
}

func (a *CustomAPI) Name() string { return "api" }

func (a *CustomAPI) withClient(c *http.Client) (Strategy, error) {
	return &CustomAPI{endpoint: a.endpoint, client: c}, nil
}

func (a *CustomAPI) Resolve(ctx context.Context, image string) (string, error) {
	payload := StripDataURI(image)
	if payload == "" {
		return "", errors.New("empty captcha image")
	}
	body, err := json.Marshal(map[string]string{"image": payload})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognizer unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognizer returned HTTP %d", resp.StatusCode)
	}

	var out struct {
		Text   string `json:"text"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Text != "" {
		return out.Text, nil
	}
	return out.Result, nil
}
