// internal/workflow/state_test.go
package workflow

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

func TestStart(t *testing.T) {
	s, e := Start()
	assert.Equal(t, Init{}, s)
	assert.Equal(t, EffectOpenEntry, e)
}

func TestNext(t *testing.T) {
	none := schemas.WorkflowFlags{}
	devices := schemas.WorkflowFlags{DeleteDevices: true}
	verify := schemas.WorkflowFlags{VerifyPassword: true}
	rotate := schemas.WorkflowFlags{AutoUpdatePassword: true}

	tests := []struct {
		name       string
		from       State
		probe      Probe
		flags      schemas.WorkflowFlags
		wantState  State
		wantEffect Effect
	}{
		{"entry opened", Init{}, Probe{OK: true}, none, Refreshed{}, EffectSubmitIdentifier},
		{"entry unreachable", Init{}, Probe{}, none, Terminal{Reason: schemas.ReasonPageUnreachable}, EffectNone},
		{"identifier submitted", Refreshed{}, Probe{OK: true}, none, LoggedIn{}, EffectInspectAccount},
		{"unresolved challenge is soft", Refreshed{}, Probe{OK: true, Warning: schemas.ReasonChallengeUnresolved}, none, LoggedIn{}, EffectInspectAccount},
		{"two factor wins over lock", LoggedIn{}, Probe{OK: true, TwoFactor: true, Locked: true}, none, TwoFactorDetected{}, EffectEvaluatePassword},
		{"locked", LoggedIn{}, Probe{OK: true, Locked: true}, none, Locked{Step: StepDOB}, EffectSubmitDOB},
		{"unlocked", LoggedIn{}, Probe{OK: true}, none, Unlocked{}, EffectEvaluatePassword},
		{"unlocked with rotation", LoggedIn{}, Probe{OK: true}, rotate, Unlocked{Rotating: true}, EffectOpenReset},
		{"rotation offered", Unlocked{Rotating: true}, Probe{OK: true, Locked: true}, rotate, Locked{Step: StepDOB}, EffectSubmitDOB},
		{"rotation not offered", Unlocked{Rotating: true}, Probe{OK: true}, rotate, Unlocked{}, EffectEvaluatePassword},
		{"dob accepted", Locked{Step: StepDOB}, Probe{OK: true}, none, Locked{Step: StepAnswers}, EffectSubmitAnswers},
		{"dob rejected", Locked{Step: StepDOB}, Probe{}, none, Terminal{Reason: schemas.ReasonWrongDOB}, EffectNone},
		{"answers accepted", Locked{Step: StepAnswers}, Probe{OK: true}, none, Locked{Step: StepPassword}, EffectResetPassword},
		{"answers rejected", Locked{Step: StepAnswers}, Probe{}, none, Terminal{Reason: schemas.ReasonWrongAnswers}, EffectNone},
		{"answers missing", Locked{Step: StepAnswers}, Probe{Reason: schemas.ReasonAnswersNotConfigured}, none, Terminal{Reason: schemas.ReasonAnswersNotConfigured}, EffectNone},
		{"password accepted", Locked{Step: StepPassword}, Probe{OK: true}, none, Unlocked{}, EffectEvaluatePassword},
		{"password rejected", Locked{Step: StepPassword}, Probe{}, none, Terminal{Reason: schemas.ReasonPasswordRejected}, EffectNone},
		{"evaluated without device flags", Unlocked{}, Probe{OK: true, Changed: true}, none, Terminal{Success: true}, EffectNone},
		{"evaluated with delete devices", Unlocked{}, Probe{OK: true, Changed: true}, devices, PasswordEvaluated{Changed: true}, EffectReauthenticate},
		{"evaluated with verify password", Unlocked{}, Probe{OK: true}, verify, PasswordEvaluated{}, EffectReauthenticate},
		{"two factor continues", TwoFactorDetected{}, Probe{OK: true}, verify, PasswordEvaluated{}, EffectReauthenticate},
		{"reauth failed", PasswordEvaluated{Changed: true}, Probe{}, devices, Terminal{Reason: schemas.ReasonReAuthFailed}, EffectNone},
		{"reauth then purge", PasswordEvaluated{}, Probe{OK: true}, devices, DeviceManaged{}, EffectPurgeDevices},
		{"reauth only verifies", PasswordEvaluated{}, Probe{OK: true}, verify, Terminal{Success: true}, EffectNone},
		{"purge failure is not fatal", DeviceManaged{}, Probe{}, devices, Terminal{Success: true}, EffectNone},
		{"terminal is absorbing", Terminal{Reason: schemas.ReasonWrongDOB}, Probe{OK: true}, devices, Terminal{Reason: schemas.ReasonWrongDOB}, EffectNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotState, gotEffect := Next(tt.from, tt.probe, tt.flags)
			if diff := cmp.Diff(tt.wantState, gotState); diff != "" {
				t.Errorf("Next() state mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantEffect, gotEffect)
		})
	}
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "locked/answers", Locked{Step: StepAnswers}.String())
	assert.Equal(t, "unlocked/rotating", Unlocked{Rotating: true}.String())
	assert.Equal(t, "terminal/failure(wrong_dob)", Terminal{Reason: schemas.ReasonWrongDOB}.String())
	assert.Equal(t, "reauthenticate", EffectReauthenticate.String())
	assert.Equal(t, "effect(99)", Effect(99).String())
}

// walk feeds probes to the machine until it terminates or the budget runs out.
func walk(probes []Probe, flags schemas.WorkflowFlags) (State, int) {
	state, _ := Start()
	for i := 0; i < maxTransitions; i++ {
		if _, ok := state.(Terminal); ok {
			return state, i
		}
		var p Probe
		if i < len(probes) {
			p = probes[i]
		}
		state, _ = Next(state, p, flags)
	}
	return state, maxTransitions
}

func TestLongestPathTerminates(t *testing.T) {
	ok := Probe{OK: true}
	probes := []Probe{ok, ok, ok, {OK: true, Locked: true}, ok, ok, ok, ok, ok, ok}
	state, steps := walk(probes, schemas.WorkflowFlags{DeleteDevices: true, AutoUpdatePassword: true})
	require.Equal(t, Terminal{Success: true}, state)
	assert.Equal(t, 10, steps)
}

// FuzzNext checks that no probe sequence keeps the machine alive and that
// terminal states never request an effect.
func FuzzNext(f *testing.F) {
	f.Add([]byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	f.Add([]byte{0})
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var flags schemas.WorkflowFlags
		if err := consumer.GenerateStruct(&flags); err != nil {
			return
		}
		probes := make([]Probe, 12)
		for i := range probes {
			if err := consumer.GenerateStruct(&probes[i]); err != nil {
				break
			}
		}

		state, effect := Start()
		for i := 0; i < maxTransitions; i++ {
			if _, ok := state.(Terminal); ok {
				if effect != EffectNone {
					t.Fatalf("terminal state %s requested %s", state, effect)
				}
				return
			}
			if effect == EffectNone {
				t.Fatalf("non-terminal state %s requested no effect", state)
			}
			state, effect = Next(state, probes[i%len(probes)], flags)
		}
		t.Fatalf("machine did not terminate, stuck in %s", state)
	})
}
