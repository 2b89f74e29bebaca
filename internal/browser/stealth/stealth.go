// internal/browser/stealth/stealth.go
package stealth

import (
	"context"
	_ "embed" // Required for the go:embed directive
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// ScreenProperties defines the resolution of the emulated display.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Persona is the browser profile presented to the recovery pages.
type Persona struct {
	UserAgent           string           `json:"userAgent"`
	Platform            string           `json:"platform"` // navigator.platform, e.g. Win32
	Languages           []string         `json:"languages"`
	HardwareConcurrency int              `json:"hardwareConcurrency,omitempty"`
	Screen              ScreenProperties `json:"screen"`
}

// NewPersona derives a consistent persona from a user agent string.
func NewPersona(userAgent string) Persona {
	return Persona{
		UserAgent:           userAgent,
		Platform:            PlatformFor(userAgent),
		Languages:           []string{"en-US", "en"},
		HardwareConcurrency: 8,
		Screen:              ScreenProperties{Width: 1920, Height: 1080},
	}
}

// PlatformFor maps a user agent to the navigator.platform value a real browser would report.
func PlatformFor(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Macintosh"):
		return "MacIntel"
	case strings.Contains(userAgent, "Linux"):
		return "Linux x86_64"
	default:
		return "Win32"
	}
}

// AcceptLanguage renders the languages as an Accept-Language header value.
func AcceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	formatted := languages[0]
	for i := 1; i < len(languages); i++ {
		qValue := 1.0 - float64(i)*0.1
		if qValue < 0.7 {
			qValue = 0.7
		}
		formatted += fmt.Sprintf(",%s;q=%.1f", languages[i], qValue)
	}
	return formatted
}

// Script returns the evasion script with the persona inlined.
func Script(persona Persona) (string, error) {
	personaJSON, err := json.Marshal(persona)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const WARDEN_PERSONA = %s;\n%s", personaJSON, evasionsScript), nil
}

// Apply orchestrates the stealth actions for a fresh tab.
func Apply(persona Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			lang := AcceptLanguage(persona.Languages)
			if lang == "" {
				return nil
			}
			headers := network.Headers{"Accept-Language": lang}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			override := emulation.SetUserAgentOverride(persona.UserAgent).
				WithPlatform(persona.Platform).
				WithAcceptLanguage(strings.Join(persona.Languages, ","))
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set user agent override: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if persona.Screen.Width <= 0 || persona.Screen.Height <= 0 {
				return nil
			}
			err := emulation.SetDeviceMetricsOverride(persona.Screen.Width, persona.Screen.Height, 1.0, false).Do(ctx)
			if err != nil {
				return fmt.Errorf("stealth: failed to set device metrics: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := Script(persona)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to add script on new document: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied.", zap.String("user_agent", persona.UserAgent))
			return nil
		}),
	}
}
