// internal/workflow/runner.go
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/browser"
	"github.com/xkilldash9x/recovery-warden/internal/config"
	"github.com/xkilldash9x/recovery-warden/internal/locale"
	"github.com/xkilldash9x/recovery-warden/internal/observability"
)

// publishTimeout bounds reporting after the run, which must survive shutdown
// so a rotated password is not lost.
const publishTimeout = time.Minute

// proxyBindable is implemented by solvers that can route their own HTTP
// calls through the run's proxy.
type proxyBindable interface {
	WithProxy(proxyURL string, timeout time.Duration) schemas.CaptchaSolver
}

// Dependencies are the collaborators a Runner consumes.
type Dependencies struct {
	Remote   schemas.RemoteClient
	Driver   schemas.Driver
	Solver   schemas.CaptchaSolver
	Notifier schemas.Notifier
}

// Runner performs one complete run: fetch, gate, launch, recover, report.
type Runner struct {
	deps     Dependencies
	taskID   string
	debug    bool
	browser  config.BrowserConfig
	captcha  config.CaptchaConfig
	policy   DelayPolicy
	messages *locale.Messages
	logger   *zap.Logger

	now      func() time.Time
	newRunID func() string
}

// NewRunner wires a runner from configuration.
func NewRunner(cfg config.Interface, deps Dependencies, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	sched := cfg.Schedule()
	return &Runner{
		deps:     deps,
		taskID:   cfg.Task().ID,
		debug:    cfg.Task().Debug,
		browser:  cfg.Browser(),
		captcha:  cfg.Captcha(),
		policy:   DelayPolicy{Default: sched.DefaultDelay, Failure: sched.FailureDelay},
		messages: locale.Get(cfg.Task().Lang),
		logger:   logger.Named("runner"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Run executes one run and returns its report, including the schedule for
// the next one. It never panics on collaborator failures.
func (r *Runner) Run(ctx context.Context) (report schemas.RunReport) {
	report = schemas.RunReport{
		RunID:     r.newRunID(),
		TaskID:    r.taskID,
		StartedAt: r.now(),
	}
	defer func() { report.FinishedAt = r.now() }()

	logger := r.logger.With(zap.String("run_id", report.RunID))
	logger.Info(r.messages.Launch)

	task, err := r.deps.Remote.FetchTask(ctx, r.taskID)
	if err != nil || task == nil {
		logger.Error(r.messages.FetchConfigFailed, zap.Error(err))
		report.Schedule = r.policy.Next(nil, false, false)
		logger.Info(r.messages.NextRun(report.Schedule.NextDelayMinutes))
		return report
	}

	report.Account = task.Username
	logger = observability.ForRun(r.logger, report.RunID, task.Username)

	if !task.Enabled && !r.debug {
		logger.Info(r.messages.TaskDisabled)
		report.Schedule = r.policy.Next(task, false, false)
		logger.Info(r.messages.NextRun(report.Schedule.NextDelayMinutes))
		return report
	}

	report.Entered = true
	report.Outcome = r.recover(ctx, task, report.RunID, logger)
	report.Outcome.RunID = report.RunID
	report.Schedule = r.policy.Next(task, true, report.Outcome.Success)
	logger.Info(r.messages.NextRun(report.Schedule.NextDelayMinutes),
		zap.Bool("success", report.Outcome.Success),
		zap.Stringer("reason", report.Outcome.Reason))
	return report
}

// recover launches the browser, drives the engine and publishes the result.
// The session is closed before this returns.
func (r *Runner) recover(ctx context.Context, task *schemas.RecoveryTask, runID string, logger *zap.Logger) schemas.Outcome {
	proxy := ""
	if !r.debug {
		proxy = r.resolveProxy(ctx, task, logger)
	}
	targets := task.Targets()
	targets.Proxy = proxy

	opts := schemas.LaunchOptions{Headless: task.Headless, Proxy: proxy, Webdriver: task.Webdriver}
	if r.debug {
		opts = schemas.LaunchOptions{Headless: false, Webdriver: "local"}
	}

	sess, err := r.deps.Driver.Launch(ctx, opts)
	if err != nil {
		logger.Error(r.messages.LaunchFailed, zap.Error(err))
		if proxy != "" {
			r.reportProxyFault(ctx, task, logger)
		}
		out := schemas.Outcome{RunID: runID, Reason: schemas.ReasonLaunchFailed}
		r.publish(ctx, task, out, targets, logger)
		return out
	}

	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		if err := sess.Close(); err != nil {
			logger.Warn("Browser session did not close cleanly.", zap.Error(err))
		}
	}
	defer closeSession()

	if ip, err := browser.ProbeEgressIP(ctx, sess, r.browser.IPCheckURLs); err != nil {
		logger.Warn("Egress IP probe failed.", zap.Error(err))
	} else {
		logger.Info("Egress IP.", zap.String("ip", ip))
	}

	solver := r.deps.Solver
	if bindable, ok := solver.(proxyBindable); ok && proxy != "" {
		solver = bindable.WithProxy(proxy, r.captcha.Timeout)
	}

	logger.Info(r.messages.CurrentAccount + task.Username)
	adapter := NewAdapter(sess, solver, *task, AdapterConfig{
		SettleScale:     r.browser.SettleScale,
		SubmitRounds:    r.captcha.SubmitRounds,
		CaptchaAttempts: r.captcha.MaxAttempts,
		Messages:        r.messages,
	}, logger)

	diagnostics := func(ctx context.Context) {
		capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if _, err := browser.CaptureDiagnostics(capCtx, sess, r.browser.DiagnosticsDir, "error", logger); err != nil {
			logger.Warn("Diagnostics capture incomplete.", zap.Error(err))
		}
	}

	out := NewEngine(task.Flags(), adapter, diagnostics, logger).Run(ctx)
	out.RunID = runID
	if out.TwoFactor {
		logger.Info(r.messages.TwoStepDetected)
	}
	for _, w := range out.Warnings {
		logger.Warn(r.messages.Reason(w))
	}

	closeSession()

	r.publish(ctx, task, out, targets, logger)
	return out
}

// resolveProxy turns the task's proxy descriptor into a URL. A "+url"
// protocol means the content is an endpoint serving the address.
func (r *Runner) resolveProxy(ctx context.Context, task *schemas.RecoveryTask, logger *zap.Logger) string {
	if !task.HasProxy() {
		return ""
	}
	protocol := strings.TrimSpace(task.ProxyProtocol)
	if !strings.Contains(protocol, "url") {
		return protocol + "://" + strings.TrimSpace(task.ProxyContent)
	}

	scheme, _, _ := strings.Cut(protocol, "+")
	address, err := r.deps.Remote.FetchProxy(ctx, task.ProxyContent)
	if err != nil {
		logger.Error(r.messages.ProxyFetchFailed, zap.Error(err))
		r.reportProxyFault(ctx, task, logger)
		return ""
	}
	proxy := scheme + "://" + address
	logger.Info(r.messages.ProxyFetched, zap.String("proxy", proxy))
	return proxy
}

func (r *Runner) reportProxyFault(ctx context.Context, task *schemas.RecoveryTask, logger *zap.Logger) {
	if task.ProxyID == 0 {
		return
	}
	if !r.deps.Remote.ReportProxyFault(ctx, task.ProxyID) {
		logger.Warn("Proxy fault report was not accepted.", zap.Int("proxy_id", task.ProxyID))
	}
}

// publish reports the outcome and notifies humans. A changed password is
// always reported and notified first, before any later failure.
func (r *Runner) publish(ctx context.Context, task *schemas.RecoveryTask, out schemas.Outcome, targets schemas.NotificationTargets, logger *zap.Logger) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	m := r.messages
	switch {
	case out.PasswordChanged:
		r.report(pubCtx, task.Username, out.NewPassword, true, m.Normal, logger)
		r.notify(pubCtx, targets, m.UpdateSuccess+"\n"+m.NewPassword+out.NewPassword)
	case out.Success:
		r.report(pubCtx, task.Username, "", true, m.Normal, logger)
	}

	if out.Success {
		logger.Info(m.CheckComplete)
		return
	}
	reason := m.Reason(out.Reason)
	r.report(pubCtx, task.Username, "", false, reason, logger)
	r.notify(pubCtx, targets, reason)
}

func (r *Runner) report(ctx context.Context, account, password string, success bool, message string, logger *zap.Logger) {
	if r.deps.Remote.ReportStatus(ctx, account, password, success, message) {
		logger.Info(r.messages.UpdateSuccess)
		return
	}
	logger.Error(r.messages.UpdateFailed)
}

func (r *Runner) notify(ctx context.Context, targets schemas.NotificationTargets, message string) {
	if r.deps.Notifier == nil {
		return
	}
	r.deps.Notifier.Notify(ctx, targets, message)
}
