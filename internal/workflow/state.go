// internal/workflow/state.go
package workflow

import (
	"fmt"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// State is one node of the per-run recovery state machine. The concrete
// types below are the only implementations.
type State interface {
	isState()
	fmt.Stringer
}

// Step identifies the position inside the unlock sub-sequence.
type Step int

const (
	StepDOB Step = iota
	StepAnswers
	StepPassword
)

func (s Step) String() string {
	switch s {
	case StepDOB:
		return "dob"
	case StepAnswers:
		return "answers"
	case StepPassword:
		return "password"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

type (
	Init      struct{}
	Refreshed struct{}
	LoggedIn  struct{}
	// Locked is the unlock sub-sequence, positioned at Step.
	Locked struct{ Step Step }
	// TwoFactorDetected is informational; the run continues as if unlocked.
	TwoFactorDetected struct{}
	// Unlocked with Rotating set is waiting to learn whether the reset entry
	// offered the date-of-birth form.
	Unlocked          struct{ Rotating bool }
	PasswordEvaluated struct{ Changed bool }
	DeviceManaged     struct{}
	Terminal          struct {
		Success bool
		Reason  schemas.FailureReason
	}
)

func (Init) isState()              {}
func (Refreshed) isState()         {}
func (LoggedIn) isState()          {}
func (Locked) isState()            {}
func (TwoFactorDetected) isState() {}
func (Unlocked) isState()          {}
func (PasswordEvaluated) isState() {}
func (DeviceManaged) isState()     {}
func (Terminal) isState()          {}

func (Init) String() string              { return "init" }
func (Refreshed) String() string         { return "refreshed" }
func (LoggedIn) String() string          { return "logged_in" }
func (s Locked) String() string          { return "locked/" + s.Step.String() }
func (TwoFactorDetected) String() string { return "two_factor" }
func (s Unlocked) String() string {
	if s.Rotating {
		return "unlocked/rotating"
	}
	return "unlocked"
}
func (s PasswordEvaluated) String() string { return fmt.Sprintf("password_evaluated(changed=%t)", s.Changed) }
func (DeviceManaged) String() string       { return "device_managed" }
func (s Terminal) String() string {
	if s.Success {
		return "terminal/success"
	}
	return "terminal/failure(" + s.Reason.String() + ")"
}

// Effect is the side effect the adapter must perform before the next transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectOpenEntry
	EffectSubmitIdentifier
	EffectInspectAccount
	EffectOpenReset
	EffectSubmitDOB
	EffectSubmitAnswers
	EffectResetPassword
	EffectEvaluatePassword
	EffectReauthenticate
	EffectPurgeDevices
)

var effectNames = [...]string{
	EffectNone:             "none",
	EffectOpenEntry:        "open_entry",
	EffectSubmitIdentifier: "submit_identifier",
	EffectInspectAccount:   "inspect_account",
	EffectOpenReset:        "open_reset",
	EffectSubmitDOB:        "submit_dob",
	EffectSubmitAnswers:    "submit_answers",
	EffectResetPassword:    "reset_password",
	EffectEvaluatePassword: "evaluate_password",
	EffectReauthenticate:   "reauthenticate",
	EffectPurgeDevices:     "purge_devices",
}

func (e Effect) String() string {
	if e >= 0 && int(e) < len(effectNames) {
		return effectNames[e]
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

// Probe is what the adapter observed while performing an effect. Fields not
// relevant to the effect are left zero.
type Probe struct {
	// OK reports that the awaited condition held or the step was accepted.
	OK bool
	// Reason refines a failed step; zero means the step's default reason.
	Reason    schemas.FailureReason
	TwoFactor bool
	// Locked reports that the date-of-birth form is showing.
	Locked bool
	// Changed and Password are set by EffectEvaluatePassword.
	Changed  bool
	Password string
	// Warning is a soft failure that does not change the transition.
	Warning schemas.FailureReason
	Devices int
}

// Start returns the initial state and its effect.
func Start() (State, Effect) {
	return Init{}, EffectOpenEntry
}

func fail(reason schemas.FailureReason) (State, Effect) {
	return Terminal{Success: false, Reason: reason}, EffectNone
}

func reasonOr(p Probe, fallback schemas.FailureReason) schemas.FailureReason {
	if p.Reason != schemas.ReasonNone {
		return p.Reason
	}
	return fallback
}

// afterEvaluation decides whether the account-management surface is visited.
func afterEvaluation(changed bool, flags schemas.WorkflowFlags) (State, Effect) {
	if flags.ManagesDevices() {
		return PasswordEvaluated{Changed: changed}, EffectReauthenticate
	}
	return Terminal{Success: true}, EffectNone
}

// Next is the pure transition function: given the current state and what the
// adapter observed while performing that state's effect, it returns the next
// state and the effect to perform. Terminal states are absorbing.
func Next(s State, p Probe, flags schemas.WorkflowFlags) (State, Effect) {
	switch st := s.(type) {
	case Init:
		if !p.OK {
			return fail(schemas.ReasonPageUnreachable)
		}
		return Refreshed{}, EffectSubmitIdentifier

	case Refreshed:
		// A challenge that stays unresolved is a warning only; the account
		// inspection decides what actually happened.
		return LoggedIn{}, EffectInspectAccount

	case LoggedIn:
		switch {
		case p.TwoFactor:
			return TwoFactorDetected{}, EffectEvaluatePassword
		case p.Locked:
			return Locked{Step: StepDOB}, EffectSubmitDOB
		case flags.AutoUpdatePassword:
			return Unlocked{Rotating: true}, EffectOpenReset
		default:
			return Unlocked{}, EffectEvaluatePassword
		}

	case Unlocked:
		if st.Rotating {
			if p.Locked {
				return Locked{Step: StepDOB}, EffectSubmitDOB
			}
			return Unlocked{}, EffectEvaluatePassword
		}
		return afterEvaluation(p.Changed, flags)

	case TwoFactorDetected:
		return afterEvaluation(p.Changed, flags)

	case Locked:
		if !p.OK {
			switch st.Step {
			case StepDOB:
				return fail(reasonOr(p, schemas.ReasonWrongDOB))
			case StepAnswers:
				return fail(reasonOr(p, schemas.ReasonWrongAnswers))
			default:
				return fail(reasonOr(p, schemas.ReasonPasswordRejected))
			}
		}
		switch st.Step {
		case StepDOB:
			return Locked{Step: StepAnswers}, EffectSubmitAnswers
		case StepAnswers:
			return Locked{Step: StepPassword}, EffectResetPassword
		default:
			return Unlocked{}, EffectEvaluatePassword
		}

	case PasswordEvaluated:
		if !p.OK {
			return fail(schemas.ReasonReAuthFailed)
		}
		if flags.DeleteDevices {
			return DeviceManaged{}, EffectPurgeDevices
		}
		return Terminal{Success: true}, EffectNone

	case DeviceManaged:
		// Device removal is best effort and never fails the run.
		return Terminal{Success: true}, EffectNone

	case Terminal:
		return st, EffectNone

	default:
		return fail(schemas.ReasonUnknown)
	}
}
