// internal/workflow/adapter.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/locale"
)

// ErrUnexpectedPage means the page did not have the shape the flow relies on.
var ErrUnexpectedPage = errors.New("unexpected page structure")

const (
	entryWait      = 10 * time.Second
	identifierWait = 7 * time.Second
	dobWait        = 5 * time.Second
	formWait       = 5 * time.Second
	signInWait     = 10 * time.Second

	defaultSubmitRounds    = 10
	defaultCaptchaAttempts = 3
)

// Executor performs one effect and reports what it observed.
type Executor interface {
	Execute(ctx context.Context, effect Effect) (Probe, error)
}

// AdapterConfig tunes the timing of the browser adapter.
type AdapterConfig struct {
	// SettleScale multiplies every fixed settle delay; 0 disables them.
	SettleScale     float64
	SubmitRounds    int
	CaptchaAttempts int
	Messages        *locale.Messages
}

// Adapter executes effects against one browser session. It owns the
// working password of the run.
type Adapter struct {
	sess     schemas.Session
	solver   schemas.CaptchaSolver
	task     schemas.RecoveryTask
	answers  schemas.SecurityAnswerMap
	original string
	password string
	cfg      AdapterConfig
	logger   *zap.Logger

	// generate is swapped in tests for a deterministic password.
	generate func() string
}

var _ Executor = (*Adapter)(nil)

// NewAdapter binds a session to the task of the current run.
func NewAdapter(sess schemas.Session, solver schemas.CaptchaSolver, task schemas.RecoveryTask, cfg AdapterConfig, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubmitRounds <= 0 {
		cfg.SubmitRounds = defaultSubmitRounds
	}
	if cfg.CaptchaAttempts <= 0 {
		cfg.CaptchaAttempts = defaultCaptchaAttempts
	}
	if cfg.Messages == nil {
		cfg.Messages = locale.Get("")
	}
	return &Adapter{
		sess:     sess,
		solver:   solver,
		task:     task,
		answers:  task.Answers(),
		original: task.Password,
		password: task.Password,
		cfg:      cfg,
		logger:   logger.Named("adapter"),
		generate: GeneratePassword,
	}
}

// Password returns the password currently held by the run.
func (a *Adapter) Password() string { return a.password }

// Execute dispatches effect to its page routine.
func (a *Adapter) Execute(ctx context.Context, effect Effect) (Probe, error) {
	switch effect {
	case EffectOpenEntry:
		return a.openEntry(ctx)
	case EffectSubmitIdentifier:
		return a.submitIdentifier(ctx)
	case EffectInspectAccount:
		return a.inspectAccount(ctx)
	case EffectOpenReset:
		return a.openReset(ctx)
	case EffectSubmitDOB:
		return a.submitDOB(ctx)
	case EffectSubmitAnswers:
		return a.submitAnswers(ctx)
	case EffectResetPassword:
		return a.resetPassword(ctx)
	case EffectEvaluatePassword:
		return Probe{OK: true, Changed: a.password != a.original, Password: a.password}, nil
	case EffectReauthenticate:
		return a.reauthenticate(ctx)
	case EffectPurgeDevices:
		return a.purgeDevices(ctx)
	case EffectNone:
		return Probe{OK: true}, nil
	default:
		return Probe{}, fmt.Errorf("unknown effect %s", effect)
	}
}

// settle waits d scaled by the configured factor.
func (a *Adapter) settle(ctx context.Context, d time.Duration) error {
	scaled := time.Duration(float64(d) * a.cfg.SettleScale)
	if scaled <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(scaled)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *Adapter) openEntry(ctx context.Context) (Probe, error) {
	if err := a.sess.Navigate(ctx, EntryURL); err != nil {
		a.logger.Error("Failed to open the recovery page.", zap.Error(err))
		return Probe{OK: false}, nil
	}
	return Probe{OK: a.sess.WaitVisible(ctx, identifierInput, entryWait)}, nil
}

// submitIdentifier fills the account and submits it, resolving the challenge
// before each of the bounded submit rounds.
func (a *Adapter) submitIdentifier(ctx context.Context) (Probe, error) {
	if !a.sess.WaitVisible(ctx, identifierInput, identifierWait) {
		return Probe{}, fmt.Errorf("%w: identifier input missing", ErrUnexpectedPage)
	}
	if err := a.sess.Fill(ctx, identifierInput, a.task.Username); err != nil {
		return Probe{}, err
	}
	if err := a.settle(ctx, time.Second); err != nil {
		return Probe{}, err
	}

	for round := 1; round <= a.cfg.SubmitRounds; round++ {
		if a.sess.IsVisible(ctx, captchaInput) {
			if err := a.answerChallenge(ctx); err != nil {
				return Probe{}, err
			}
		}
		if err := a.sess.Click(ctx, primaryButton); err != nil {
			return Probe{}, err
		}
		if err := a.settle(ctx, 2*time.Second); err != nil {
			return Probe{}, err
		}
		if !a.sess.IsVisible(ctx, challengeError) {
			a.logger.Debug("Challenge passed.", zap.Int("round", round))
			return Probe{OK: true}, nil
		}
		a.logger.Warn("Challenge rejected.", zap.Int("round", round))
	}

	a.logger.Warn(a.cfg.Messages.ChallengeFailed, zap.Int("rounds", a.cfg.SubmitRounds))
	return Probe{OK: true, Warning: schemas.ReasonChallengeUnresolved}, nil
}

// answerChallenge reads the challenge image and fills the resolved text.
// An unresolved image still fills an empty answer so the round is spent.
func (a *Adapter) answerChallenge(ctx context.Context) error {
	image, err := a.sess.Attribute(ctx, captchaImage, "src")
	if err != nil {
		a.logger.Warn("Challenge image not readable.", zap.Error(err))
	}
	text := ""
	if image != "" && a.solver != nil {
		text = a.solver.ResolveWithRetry(ctx, image, a.cfg.CaptchaAttempts)
	}
	if text == "" {
		a.logger.Warn("Challenge unresolved for this round.")
	}
	return a.sess.Fill(ctx, captchaInput, text)
}

func (a *Adapter) inspectAccount(ctx context.Context) (Probe, error) {
	return Probe{
		OK:        true,
		TwoFactor: a.sess.IsVisible(ctx, twoFactorMarker),
		Locked:    a.sess.IsVisible(ctx, dateInput),
	}, nil
}

// openReset follows the reset entry of an unlocked account and reports
// whether the date-of-birth form appeared.
func (a *Adapter) openReset(ctx context.Context) (Probe, error) {
	if a.sess.IsVisible(ctx, primaryButton) {
		if err := a.sess.Click(ctx, primaryButton); err != nil {
			return Probe{}, err
		}
		if err := a.settle(ctx, 2*time.Second); err != nil {
			return Probe{}, err
		}
	}
	locked := a.sess.WaitVisible(ctx, dateInput, dobWait)
	return Probe{OK: true, Locked: locked}, nil
}

func (a *Adapter) submitDOB(ctx context.Context) (Probe, error) {
	if !a.sess.WaitVisible(ctx, dateInput, dobWait) {
		a.logger.Error("Date of birth form did not appear.")
		return Probe{OK: false, Reason: schemas.ReasonWrongDOB}, nil
	}
	if err := a.settle(ctx, 3*time.Second); err != nil {
		return Probe{}, err
	}
	if err := a.sess.Fill(ctx, dateInput, a.task.DOB); err != nil {
		return Probe{}, err
	}
	if err := a.settle(ctx, 100*time.Millisecond); err != nil {
		return Probe{}, err
	}
	if err := a.submitForm(ctx); err != nil {
		return Probe{}, err
	}
	if a.sess.IsVisible(ctx, formError) {
		a.logger.Error("Date of birth rejected.")
		return Probe{OK: false, Reason: schemas.ReasonWrongDOB}, nil
	}
	return Probe{OK: true}, nil
}

func (a *Adapter) submitAnswers(ctx context.Context) (Probe, error) {
	if !a.sess.WaitVisible(ctx, questionPrompt, formWait) {
		return Probe{}, fmt.Errorf("%w: security questions missing", ErrUnexpectedPage)
	}
	n, err := a.sess.Count(ctx, questionPrompt)
	if err != nil {
		return Probe{}, err
	}
	if n < 2 {
		return Probe{}, fmt.Errorf("%w: %d security questions rendered", ErrUnexpectedPage, n)
	}

	prompts := make([]string, 2)
	for i := range prompts {
		if prompts[i], err = a.sess.ReadText(ctx, questionPrompt.At(i)); err != nil {
			return Probe{}, err
		}
	}
	answers, ok := answerPrompts(a.answers, prompts)
	if !ok {
		a.logger.Error("No configured answer for the security questions.", zap.Strings("questions", prompts))
		return Probe{OK: false, Reason: schemas.ReasonAnswersNotConfigured}, nil
	}

	for i, answer := range answers {
		if err := a.sess.Fill(ctx, answerInput.At(i), answer); err != nil {
			return Probe{}, err
		}
		if err := a.settle(ctx, time.Second); err != nil {
			return Probe{}, err
		}
	}
	if err := a.submitForm(ctx); err != nil {
		return Probe{}, err
	}
	if a.sess.IsVisible(ctx, formError) {
		a.logger.Error("Security answers rejected.")
		return Probe{OK: false, Reason: schemas.ReasonWrongAnswers}, nil
	}
	return Probe{OK: true}, nil
}

func (a *Adapter) resetPassword(ctx context.Context) (Probe, error) {
	if err := a.settle(ctx, 2*time.Second); err != nil {
		return Probe{}, err
	}
	if a.sess.IsVisible(ctx, passwordEntry) {
		if err := a.sess.Click(ctx, passwordEntry); err != nil {
			return Probe{}, err
		}
	}
	if !a.sess.WaitVisible(ctx, passwordInput, formWait) {
		return Probe{}, fmt.Errorf("%w: password form missing", ErrUnexpectedPage)
	}
	n, err := a.sess.Count(ctx, passwordInput)
	if err != nil {
		return Probe{}, err
	}

	candidate := a.generate()
	for i := range n {
		if err := a.sess.Fill(ctx, passwordInput.At(i), candidate); err != nil {
			return Probe{}, err
		}
	}
	if err := a.settle(ctx, time.Second); err != nil {
		return Probe{}, err
	}
	if err := a.sess.PressEnter(ctx); err != nil {
		return Probe{}, err
	}
	if err := a.settle(ctx, 3*time.Second); err != nil {
		return Probe{}, err
	}
	if a.sess.IsVisible(ctx, passwordError) {
		a.logger.Error("New password rejected.")
		return Probe{OK: false, Reason: schemas.ReasonPasswordRejected}, nil
	}

	a.password = candidate
	a.logger.Info("Password reset accepted.")
	return Probe{OK: true}, nil
}

// reauthenticate signs in to the management surface with the held password.
func (a *Adapter) reauthenticate(ctx context.Context) (Probe, error) {
	if err := a.sess.Navigate(ctx, SignInURL); err != nil {
		a.logger.Error("Failed to open the sign-in page.", zap.Error(err))
		return Probe{OK: false}, nil
	}
	if err := a.settle(ctx, 2*time.Second); err != nil {
		return Probe{}, err
	}
	if !a.sess.WaitVisible(ctx, signInAccount, signInWait) {
		a.logger.Error("Sign-in form did not appear.")
		return Probe{OK: false}, nil
	}
	if err := a.sess.Fill(ctx, signInAccount, a.task.Username); err != nil {
		return Probe{}, err
	}
	if err := a.sess.PressEnter(ctx); err != nil {
		return Probe{}, err
	}
	if err := a.settle(ctx, time.Second); err != nil {
		return Probe{}, err
	}
	if !a.sess.WaitVisible(ctx, signInPassword, formWait) {
		a.logger.Error("Sign-in password field did not appear.")
		return Probe{OK: false}, nil
	}
	if err := a.sess.Fill(ctx, signInPassword, a.password); err != nil {
		return Probe{}, err
	}
	if err := a.sess.PressEnter(ctx); err != nil {
		return Probe{}, err
	}
	if err := a.settle(ctx, 5*time.Second); err != nil {
		return Probe{}, err
	}
	if a.sess.IsVisible(ctx, signInError) {
		a.logger.Error(a.cfg.Messages.LoginFailed)
		return Probe{OK: false}, nil
	}
	return Probe{OK: true}, nil
}

// purgeDevices removes every listed device. The list re-renders after each
// removal, so the first entry is always the next one.
func (a *Adapter) purgeDevices(ctx context.Context) (Probe, error) {
	if err := a.sess.Navigate(ctx, DevicesURL); err != nil {
		a.logger.Error("Failed to open the devices page.", zap.Error(err))
		return Probe{OK: false}, nil
	}
	if err := a.settle(ctx, 3*time.Second); err != nil {
		return Probe{}, err
	}
	total, err := a.sess.Count(ctx, deviceExpand)
	if err != nil {
		return Probe{}, err
	}
	a.logger.Info(a.cfg.Messages.TotalDevices(total))

	removed := 0
	for i := 0; i < total; i++ {
		if err := a.removeFirstDevice(ctx); err != nil {
			if ctx.Err() != nil {
				return Probe{}, ctx.Err()
			}
			a.logger.Warn("Device removal failed.", zap.Int("index", i), zap.Error(err))
			continue
		}
		removed++
	}
	a.logger.Info("Device removal complete.", zap.Int("removed", removed), zap.Int("total", total))
	return Probe{OK: true, Devices: removed}, nil
}

func (a *Adapter) removeFirstDevice(ctx context.Context) error {
	if err := a.sess.Click(ctx, deviceExpand.At(0)); err != nil {
		return err
	}
	if err := a.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := a.sess.Click(ctx, deviceConfirm); err != nil {
		return err
	}
	if err := a.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := a.clickByText(ctx, dialogButton, removeLabel); err != nil {
		return err
	}
	return a.settle(ctx, 2*time.Second)
}

// clickByText clicks the first loc match whose text equals label.
func (a *Adapter) clickByText(ctx context.Context, loc schemas.Locator, label string) error {
	n, err := a.sess.Count(ctx, loc)
	if err != nil {
		return err
	}
	for i := range n {
		text, err := a.sess.ReadText(ctx, loc.At(i))
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(text), label) {
			return a.sess.Click(ctx, loc.At(i))
		}
	}
	return fmt.Errorf("%w: no %q button", ErrUnexpectedPage, label)
}

// submitForm confirms the focused form and lets the result render.
func (a *Adapter) submitForm(ctx context.Context) error {
	if err := a.sess.PressEnter(ctx); err != nil {
		return err
	}
	return a.settle(ctx, time.Second)
}
