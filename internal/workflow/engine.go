// internal/workflow/engine.go
package workflow

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// maxTransitions bounds a run; the longest legal path is far shorter.
const maxTransitions = 32

// DiagnosticsFunc captures post-mortem material for an unexpected fault.
type DiagnosticsFunc func(ctx context.Context)

// Engine drives the state machine to a terminal state using an Executor.
type Engine struct {
	flags       schemas.WorkflowFlags
	exec        Executor
	diagnostics DiagnosticsFunc
	logger      *zap.Logger
}

// NewEngine creates an engine. diagnostics may be nil.
func NewEngine(flags schemas.WorkflowFlags, exec Executor, diagnostics DiagnosticsFunc, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{flags: flags, exec: exec, diagnostics: diagnostics, logger: logger.Named("engine")}
}

// Run executes one recovery run. It always returns an outcome; driver faults
// and panics become a failure with ReasonUnknown.
func (e *Engine) Run(ctx context.Context) schemas.Outcome {
	var out schemas.Outcome
	state, effect := Start()

	for i := 0; i < maxTransitions; i++ {
		if term, ok := state.(Terminal); ok {
			out.Success = term.Success
			out.Reason = term.Reason
			e.logger.Info("Run reached terminal state.", zap.Stringer("state", term))
			return out
		}

		probe, err := e.execute(ctx, effect)
		if err != nil {
			e.logger.Error("Unexpected fault during recovery.",
				zap.Stringer("state", state), zap.Stringer("effect", effect), zap.Error(err))
			e.captureDiagnostics(ctx)
			state = Terminal{Reason: schemas.ReasonUnknown}
			continue
		}
		if probe.Warning != schemas.ReasonNone {
			out.Warnings = append(out.Warnings, probe.Warning)
		}

		next, nextEffect := Next(state, probe, e.flags)
		e.logger.Debug("Transition.",
			zap.Stringer("from", state), zap.Stringer("effect", effect),
			zap.Stringer("to", next), zap.Stringer("next_effect", nextEffect))

		switch st := next.(type) {
		case TwoFactorDetected:
			out.TwoFactor = true
		case PasswordEvaluated:
			out.PasswordChanged = st.Changed
		case Terminal:
			// Reached straight from an evaluation: the probe still carries the password state.
			if effect == EffectEvaluatePassword {
				out.PasswordChanged = probe.Changed
			}
		}
		if effect == EffectEvaluatePassword && probe.Changed {
			out.NewPassword = probe.Password
		}

		state, effect = next, nextEffect
	}

	e.logger.Error("Transition budget exhausted.", zap.Stringer("state", state))
	e.captureDiagnostics(ctx)
	out.Success = false
	out.Reason = schemas.ReasonUnknown
	return out
}

// execute runs one effect, converting a panic into an error.
func (e *Engine) execute(ctx context.Context, effect Effect) (probe Probe, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic in effect.",
				zap.Stringer("effect", effect), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic during %s: %v", effect, r)
		}
	}()
	return e.exec.Execute(ctx, effect)
}

func (e *Engine) captureDiagnostics(ctx context.Context) {
	if e.diagnostics == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Diagnostics capture panicked.", zap.Any("panic", r))
		}
	}()
	e.diagnostics(ctx)
}
