// internal/workflow/engine_test.go
package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// scriptedExecutor answers each effect from a fixed table. Effects missing
// from the table succeed with an empty probe.
type scriptedExecutor struct {
	probes map[Effect]Probe
	errs   map[Effect]error
	panics map[Effect]bool
	seen   []Effect
}

func (s *scriptedExecutor) Execute(_ context.Context, effect Effect) (Probe, error) {
	s.seen = append(s.seen, effect)
	if s.panics[effect] {
		panic("driver blew up")
	}
	if err := s.errs[effect]; err != nil {
		return Probe{}, err
	}
	if p, ok := s.probes[effect]; ok {
		return p, nil
	}
	return Probe{OK: true}, nil
}

func runEngine(t *testing.T, flags schemas.WorkflowFlags, exec Executor) (schemas.Outcome, int32) {
	t.Helper()
	var captured atomic.Int32
	diag := func(context.Context) { captured.Add(1) }
	out := NewEngine(flags, exec, diag, zaptest.NewLogger(t)).Run(context.Background())
	return out, captured.Load()
}

func TestEngine_UnlockedAccountSucceeds(t *testing.T) {
	exec := &scriptedExecutor{}
	out, captured := runEngine(t, schemas.WorkflowFlags{}, exec)

	assert.True(t, out.Success)
	assert.False(t, out.PasswordChanged)
	assert.Empty(t, out.NewPassword)
	assert.Zero(t, captured)
	assert.Equal(t, []Effect{EffectOpenEntry, EffectSubmitIdentifier, EffectInspectAccount, EffectEvaluatePassword}, exec.seen)
}

func TestEngine_UnreachablePage(t *testing.T) {
	exec := &scriptedExecutor{probes: map[Effect]Probe{EffectOpenEntry: {}}}
	out, _ := runEngine(t, schemas.WorkflowFlags{}, exec)

	assert.False(t, out.Success)
	assert.Equal(t, schemas.ReasonPageUnreachable, out.Reason)
	assert.Equal(t, []Effect{EffectOpenEntry}, exec.seen)
}

func TestEngine_LockedAccountRotatesPassword(t *testing.T) {
	exec := &scriptedExecutor{probes: map[Effect]Probe{
		EffectInspectAccount:   {OK: true, Locked: true},
		EffectEvaluatePassword: {OK: true, Changed: true, Password: "Fresh1Pass"},
	}}
	out, _ := runEngine(t, schemas.WorkflowFlags{}, exec)

	assert.True(t, out.Success)
	assert.True(t, out.PasswordChanged)
	assert.Equal(t, "Fresh1Pass", out.NewPassword)
	assert.Contains(t, exec.seen, EffectResetPassword)
}

func TestEngine_ReauthFailureKeepsChangedPassword(t *testing.T) {
	exec := &scriptedExecutor{probes: map[Effect]Probe{
		EffectInspectAccount:   {OK: true, Locked: true},
		EffectEvaluatePassword: {OK: true, Changed: true, Password: "Fresh1Pass"},
		EffectReauthenticate:   {},
	}}
	out, _ := runEngine(t, schemas.WorkflowFlags{VerifyPassword: true, DeleteDevices: true}, exec)

	assert.False(t, out.Success)
	assert.Equal(t, schemas.ReasonReAuthFailed, out.Reason)
	assert.True(t, out.PasswordChanged)
	assert.Equal(t, "Fresh1Pass", out.NewPassword)
	assert.NotContains(t, exec.seen, EffectPurgeDevices)
}

func TestEngine_DevicePurgeAfterReauth(t *testing.T) {
	exec := &scriptedExecutor{}
	out, _ := runEngine(t, schemas.WorkflowFlags{DeleteDevices: true}, exec)

	assert.True(t, out.Success)
	require.NotEmpty(t, exec.seen)
	assert.Equal(t, EffectPurgeDevices, exec.seen[len(exec.seen)-1])
}

func TestEngine_TwoFactorIsInformational(t *testing.T) {
	exec := &scriptedExecutor{probes: map[Effect]Probe{
		EffectInspectAccount: {OK: true, TwoFactor: true},
	}}
	out, _ := runEngine(t, schemas.WorkflowFlags{}, exec)

	assert.True(t, out.Success)
	assert.True(t, out.TwoFactor)
}

func TestEngine_ChallengeWarningIsCollected(t *testing.T) {
	exec := &scriptedExecutor{probes: map[Effect]Probe{
		EffectSubmitIdentifier: {OK: true, Warning: schemas.ReasonChallengeUnresolved},
	}}
	out, _ := runEngine(t, schemas.WorkflowFlags{}, exec)

	assert.True(t, out.Success)
	assert.Equal(t, []schemas.FailureReason{schemas.ReasonChallengeUnresolved}, out.Warnings)
}

func TestEngine_FaultsBecomeUnknown(t *testing.T) {
	t.Run("driver error", func(t *testing.T) {
		exec := &scriptedExecutor{errs: map[Effect]error{EffectSubmitAnswers: ErrUnexpectedPage}, probes: map[Effect]Probe{
			EffectInspectAccount: {OK: true, Locked: true},
		}}
		out, captured := runEngine(t, schemas.WorkflowFlags{}, exec)

		assert.False(t, out.Success)
		assert.Equal(t, schemas.ReasonUnknown, out.Reason)
		assert.EqualValues(t, 1, captured)
		assert.NotContains(t, exec.seen, EffectResetPassword)
	})

	t.Run("panic", func(t *testing.T) {
		exec := &scriptedExecutor{panics: map[Effect]bool{EffectInspectAccount: true}}
		out, captured := runEngine(t, schemas.WorkflowFlags{}, exec)

		assert.False(t, out.Success)
		assert.Equal(t, schemas.ReasonUnknown, out.Reason)
		assert.EqualValues(t, 1, captured)
	})

	t.Run("panicking diagnostics are contained", func(t *testing.T) {
		exec := &scriptedExecutor{errs: map[Effect]error{EffectOpenEntry: errors.New("tab crashed")}}
		diag := func(context.Context) { panic("no page") }
		out := NewEngine(schemas.WorkflowFlags{}, exec, diag, zaptest.NewLogger(t)).Run(context.Background())
		assert.Equal(t, schemas.ReasonUnknown, out.Reason)
	})

	t.Run("nil diagnostics", func(t *testing.T) {
		exec := &scriptedExecutor{errs: map[Effect]error{EffectOpenEntry: errors.New("tab crashed")}}
		out := NewEngine(schemas.WorkflowFlags{}, exec, nil, nil).Run(context.Background())
		assert.Equal(t, schemas.ReasonUnknown, out.Reason)
	})
}
