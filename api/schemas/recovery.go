// File: api/schemas/recovery.go
package schemas

import (
	"strings"
	"time"
)

// RecoveryTask is the per-run configuration served by the remote controller.
// It is fetched fresh at the start of every run and never mutated afterwards.
// Field tags follow the controller's wire format.
type RecoveryTask struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	DOB      string `json:"dob"`

	Q1 string `json:"q1"`
	A1 string `json:"a1"`
	Q2 string `json:"q2"`
	A2 string `json:"a2"`
	Q3 string `json:"q3"`
	A3 string `json:"a3"`

	// CheckInterval is expressed in minutes.
	CheckInterval int    `json:"check_interval"`
	Webdriver     string `json:"webdriver"`

	ProxyID       int    `json:"proxy_id,omitempty"`
	ProxyProtocol string `json:"proxy_protocol,omitempty"`
	ProxyContent  string `json:"proxy_content,omitempty"`

	TelegramChatID   string `json:"tg_chat_id,omitempty"`
	TelegramBotToken string `json:"tg_bot_token,omitempty"`
	WxPusherID       string `json:"wx_pusher_id,omitempty"`
	Webhook          string `json:"webhook,omitempty"`

	VerifyPassword     bool `json:"check_password_correct,omitempty"`
	DeleteDevices      bool `json:"enable_delete_devices,omitempty"`
	AutoUpdatePassword bool `json:"enable_auto_update_password,omitempty"`
	Headless           bool `json:"task_headless,omitempty"`
	RetryOnFailure     bool `json:"fail_retry"`
	Enabled            bool `json:"enable"`
}

// Answers builds the question-to-answer lookup for this run. Pairs with an
// empty question are skipped so they can never match every prompt.
func (t RecoveryTask) Answers() SecurityAnswerMap {
	m := make(SecurityAnswerMap, 3)
	for _, p := range [][2]string{{t.Q1, t.A1}, {t.Q2, t.A2}, {t.Q3, t.A3}} {
		q := strings.TrimSpace(p[0])
		if q == "" {
			continue
		}
		m[q] = p[1]
	}
	return m
}

// Targets extracts the notification channels configured for the task.
func (t RecoveryTask) Targets() NotificationTargets {
	return NotificationTargets{
		Account:          t.Username,
		TelegramBotToken: t.TelegramBotToken,
		TelegramChatID:   t.TelegramChatID,
		PusherID:         t.WxPusherID,
		WebhookURL:       t.Webhook,
	}
}

// Flags returns the feature switches that influence state transitions.
func (t RecoveryTask) Flags() WorkflowFlags {
	return WorkflowFlags{
		DeleteDevices:      t.DeleteDevices,
		VerifyPassword:     t.VerifyPassword,
		AutoUpdatePassword: t.AutoUpdatePassword,
	}
}

// HasProxy reports whether the task carries a proxy descriptor.
func (t RecoveryTask) HasProxy() bool {
	return t.ProxyProtocol != "" && t.ProxyContent != ""
}

// WorkflowFlags are the task switches the state machine consults.
type WorkflowFlags struct {
	DeleteDevices      bool
	VerifyPassword     bool
	AutoUpdatePassword bool
}

// ManagesDevices reports whether the account-management surface is visited at all.
func (f WorkflowFlags) ManagesDevices() bool {
	return f.DeleteDevices || f.VerifyPassword
}

// SecurityAnswerMap maps a configured question (or a distinctive fragment of
// it) to its answer. Lookup is substring containment because the rendered
// prompt usually carries decoration around the question text.
type SecurityAnswerMap map[string]string

// Answer returns the answer whose key is contained in question, or "" when no
// key matches. When several keys match, the longest one wins so that a short
// fragment cannot shadow a more specific question.
func (m SecurityAnswerMap) Answer(question string) string {
	best, answer := -1, ""
	for key, value := range m {
		if key == "" || !strings.Contains(question, key) {
			continue
		}
		if len(key) > best {
			best, answer = len(key), value
		}
	}
	return answer
}

// NotificationTargets is the set of channels a run may alert. Any subset,
// including none, can be active.
type NotificationTargets struct {
	Account          string
	TelegramBotToken string
	TelegramChatID   string
	PusherID         string
	WebhookURL       string
	// Proxy, when set, is used for outbound delivery calls.
	Proxy string
}

// HasTelegram reports whether both halves of the bot descriptor are set.
func (n NotificationTargets) HasTelegram() bool {
	return n.TelegramBotToken != "" && n.TelegramChatID != ""
}

// FailureReason classifies why a run ended in failure.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonPageUnreachable
	ReasonChallengeUnresolved
	ReasonWrongDOB
	ReasonAnswersNotConfigured
	ReasonWrongAnswers
	ReasonPasswordRejected
	ReasonReAuthFailed
	ReasonLaunchFailed
	ReasonUnknown
)

var reasonNames = map[FailureReason]string{
	ReasonNone:                 "none",
	ReasonPageUnreachable:      "page_unreachable",
	ReasonChallengeUnresolved:  "challenge_unresolved",
	ReasonWrongDOB:             "wrong_dob",
	ReasonAnswersNotConfigured: "answers_not_configured",
	ReasonWrongAnswers:         "wrong_answers",
	ReasonPasswordRejected:     "password_rejected",
	ReasonReAuthFailed:         "reauth_failed",
	ReasonLaunchFailed:         "launch_failed",
	ReasonUnknown:              "unknown",
}

func (r FailureReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Outcome is the terminal result of one run. It is produced once and consumed
// by reporting and notification; it is never persisted by the core.
type Outcome struct {
	RunID           string
	Success         bool
	PasswordChanged bool
	NewPassword     string
	Reason          FailureReason
	TwoFactor       bool
	// Warnings carries soft failures that did not abort the run, such as an
	// unresolved challenge.
	Warnings []FailureReason
}

// CaptchaAttempt holds one challenge image while it is being resolved.
type CaptchaAttempt struct {
	Image   []byte
	Attempt int
	Text    string
}

// DefaultDelayMinutes applies until a run overwrites the schedule.
const DefaultDelayMinutes = 10

// ScheduleState is the only value that outlives a run. Each run returns a new
// one and the scheduler threads it into the next iteration.
type ScheduleState struct {
	NextDelayMinutes int
}

// DefaultScheduleState is the state used before the first run completes.
func DefaultScheduleState() ScheduleState {
	return ScheduleState{NextDelayMinutes: DefaultDelayMinutes}
}

// Delay converts the state into a timer duration, never returning zero.
func (s ScheduleState) Delay() time.Duration {
	if s.NextDelayMinutes <= 0 {
		return DefaultDelayMinutes * time.Minute
	}
	return time.Duration(s.NextDelayMinutes) * time.Minute
}

// RunReport is what a single run hands back to the scheduler and observers.
type RunReport struct {
	RunID      string
	TaskID     string
	Account    string
	StartedAt  time.Time
	FinishedAt time.Time
	// Entered is false when the workflow was skipped (fetch failure, disabled task).
	Entered  bool
	Outcome  Outcome
	Schedule ScheduleState
}
