package captcha

import (
	"context"
	"time"
)

// Manual is the placeholder used when no recognizer is configured. It gives
// an operator watching a visible browser time to type the answer and never
// guesses.
type Manual struct {
	wait time.Duration
}

// NewManual returns a strategy that waits for wait and reports nothing.
func NewManual(wait time.Duration) *Manual {
	return &Manual{wait: wait}
}

func (m *Manual) Name() string { return "manual" }

func (m *Manual) Resolve(ctx context.Context, _ string) (string, error) {
	if !sleep(ctx, m.wait) {
		return "", ctx.Err()
	}
	return "", nil
}
