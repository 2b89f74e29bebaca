// internal/workflow/delay.go
package workflow

import "github.com/xkilldash9x/recovery-warden/api/schemas"

// DelayPolicy decides how long the scheduler waits before the next run.
type DelayPolicy struct {
	// Default applies when the workflow was not entered or no interval is configured.
	Default int
	// Failure applies to failed runs of tasks with RetryOnFailure set.
	Failure int
}

// DefaultDelayPolicy is the 10/5 minute policy.
func DefaultDelayPolicy() DelayPolicy {
	return DelayPolicy{Default: schemas.DefaultDelayMinutes, Failure: 5}
}

// Next returns the schedule for the next run. It never returns a
// non-positive delay.
func (p DelayPolicy) Next(task *schemas.RecoveryTask, entered, success bool) schemas.ScheduleState {
	fallback := p.Default
	if fallback <= 0 {
		fallback = schemas.DefaultDelayMinutes
	}
	if task == nil || !entered {
		return schemas.ScheduleState{NextDelayMinutes: fallback}
	}

	interval := task.CheckInterval
	if interval <= 0 {
		interval = fallback
	}
	if task.RetryOnFailure && !success {
		if p.Failure > 0 {
			return schemas.ScheduleState{NextDelayMinutes: p.Failure}
		}
		return schemas.ScheduleState{NextDelayMinutes: 5}
	}
	return schemas.ScheduleState{NextDelayMinutes: interval}
}
