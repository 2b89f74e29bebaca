// internal/browser/diagnostics.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// Diagnostics holds the paths written by CaptureDiagnostics.
type Diagnostics struct {
	Screenshot string
	Markup     string
}

// CaptureDiagnostics writes a full-page screenshot and the page markup into
// dir as <name>.png and <name>.html. Each half is attempted independently.
func CaptureDiagnostics(ctx context.Context, sess schemas.Session, dir, name string, logger *zap.Logger) (Diagnostics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = "."
	}
	if name == "" {
		name = "error"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Diagnostics{}, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}

	var (
		out  Diagnostics
		errs []error
	)

	if png, err := sess.Screenshot(ctx); err != nil {
		errs = append(errs, err)
	} else {
		path := filepath.Join(dir, name+".png")
		if err := os.WriteFile(path, png, 0o640); err != nil {
			errs = append(errs, fmt.Errorf("failed to write screenshot: %w", err))
		} else {
			out.Screenshot = path
		}
	}

	if markup, err := sess.DumpMarkup(ctx); err != nil {
		errs = append(errs, err)
	} else {
		path := filepath.Join(dir, name+".html")
		if err := os.WriteFile(path, []byte(markup), 0o640); err != nil {
			errs = append(errs, fmt.Errorf("failed to write markup: %w", err))
		} else {
			out.Markup = path
		}
	}

	logger.Info("Diagnostics captured.", zap.String("screenshot", out.Screenshot), zap.String("markup", out.Markup))
	return out, errors.Join(errs...)
}
