// File: cmd/components.go
package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/browser"
	"github.com/xkilldash9x/recovery-warden/internal/captcha"
	"github.com/xkilldash9x/recovery-warden/internal/config"
	"github.com/xkilldash9x/recovery-warden/internal/notify"
	"github.com/xkilldash9x/recovery-warden/internal/remote"
	"github.com/xkilldash9x/recovery-warden/internal/workflow"
)

// Factories are package variables so tests can swap in mocks.
var (
	newRemoteClient = func(cfg config.RemoteConfig, logger *zap.Logger) schemas.RemoteClient {
		return remote.NewClient(cfg, logger)
	}
	newDependencies = buildDependencies
)

// buildDependencies wires the production collaborators of a Runner.
func buildDependencies(cfg config.Interface, logger *zap.Logger) (workflow.Dependencies, error) {
	solver, err := captcha.New(cfg.Captcha(), logger)
	if err != nil {
		return workflow.Dependencies{}, fmt.Errorf("failed to initialize captcha solver: %w", err)
	}
	return workflow.Dependencies{
		Remote:   newRemoteClient(cfg.Remote(), logger),
		Driver:   browser.NewDriver(cfg.Browser(), logger),
		Solver:   solver,
		Notifier: notify.NewNotifier(cfg.Notify(), logger),
	}, nil
}

// requireRemote checks the settings every controller call needs.
func requireRemote(cfg config.Interface) error {
	r := cfg.Remote()
	if r.URL == "" || r.Key == "" {
		return fmt.Errorf("remote.url and remote.key are required (use --api-url and --api-key)")
	}
	return nil
}
