package captcha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"google.golang.org/genai"

	"github.com/xkilldash9x/recovery-warden/internal/config"
)

const geminiPrompt = "This image is a text captcha. Reply with the characters it shows and nothing else."

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Gemini asks a multimodal model to read the challenge.
type Gemini struct {
	cfg    config.CaptchaConfig
	client *genai.Client
}

// NewGemini builds the strategy. cfg.Endpoint, when set, overrides the API base URL.
func NewGemini(ctx context.Context, cfg config.CaptchaConfig, httpClient *http.Client) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini strategy requires captcha.api_key")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{cfg: cfg, client: client}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) withClient(c *http.Client) (Strategy, error) {
	return NewGemini(context.Background(), g.cfg, c)
}

func (g *Gemini) Resolve(ctx context.Context, image string) (string, error) {
	data, err := DecodeImage(image)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(geminiPrompt),
		genai.NewPartFromBytes(data, http.DetectContentType(data)),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	result, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	return nonAlnum.ReplaceAllString(result.Text(), ""), nil
}
