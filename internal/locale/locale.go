// Package locale holds the human-readable texts used in reports and notifications.
package locale

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// Messages is one language's catalogue.
type Messages struct {
	Normal            string
	Launch            string
	FetchConfigFailed string
	TaskDisabled      string
	LaunchFailed      string
	ProxyFetched      string
	ProxyFetchFailed  string
	CurrentAccount    string
	TwoStepDetected   string
	AccountLocked     string
	CheckComplete     string
	UpdateSuccess     string
	UpdateFailed      string
	NewPassword       string
	LoginFailed       string
	UnknownError      string
	ChallengeFailed   string

	reasons map[schemas.FailureReason]string
	nextRun string
	devices string
}

// NextRun renders the "next run in N minutes" line.
func (m *Messages) NextRun(minutes int) string { return fmt.Sprintf(m.nextRun, minutes) }

// TotalDevices renders the device count line.
func (m *Messages) TotalDevices(n int) string { return fmt.Sprintf(m.devices, n) }

// Reason renders a failure reason for humans.
func (m *Messages) Reason(r schemas.FailureReason) string {
	if s, ok := m.reasons[r]; ok {
		return s
	}
	return m.UnknownError
}

var zhCN = &Messages{
	Normal:            "正常",
	Launch:            "启动任务",
	FetchConfigFailed: "获取任务配置失败",
	TaskDisabled:      "任务已禁用",
	LaunchFailed:      "调用浏览器失败",
	ProxyFetched:      "已从接口获取代理",
	ProxyFetchFailed:  "从接口获取代理失败",
	CurrentAccount:    "当前账号：",
	TwoStepDetected:   "检测到账号开启双重认证",
	AccountLocked:     "账号被锁定",
	CheckComplete:     "检查完成",
	UpdateSuccess:     "更新成功",
	UpdateFailed:      "更新失败",
	NewPassword:       "新密码：",
	LoginFailed:       "登录失败",
	UnknownError:      "未知错误",
	ChallengeFailed:   "验证码识别失败",
	reasons: map[schemas.FailureReason]string{
		schemas.ReasonPageUnreachable:      "无法打开找回页面",
		schemas.ReasonChallengeUnresolved:  "验证码识别失败",
		schemas.ReasonWrongDOB:             "生日验证失败",
		schemas.ReasonAnswersNotConfigured: "未找到对应的密保答案",
		schemas.ReasonWrongAnswers:         "密保问题验证失败",
		schemas.ReasonPasswordRejected:     "新密码被拒绝",
		schemas.ReasonReAuthFailed:         "登录失败",
		schemas.ReasonLaunchFailed:         "调用浏览器失败",
		schemas.ReasonUnknown:              "未知错误",
	},
	nextRun: "下次运行时间：%d分钟后",
	devices: "设备总数：%d",
}

var enUS = &Messages{
	Normal:            "Normal",
	Launch:            "Task started",
	FetchConfigFailed: "Failed to fetch task configuration",
	TaskDisabled:      "Task is disabled",
	LaunchFailed:      "Failed to launch the browser",
	ProxyFetched:      "Retrieved proxy from API",
	ProxyFetchFailed:  "Failed to retrieve proxy from API",
	CurrentAccount:    "Current account: ",
	TwoStepDetected:   "Two-factor authentication detected",
	AccountLocked:     "Account is locked",
	CheckComplete:     "Check complete",
	UpdateSuccess:     "Update successful",
	UpdateFailed:      "Update failed",
	NewPassword:       "New password: ",
	LoginFailed:       "Login failed",
	UnknownError:      "Unknown error",
	ChallengeFailed:   "Captcha could not be resolved",
	reasons: map[schemas.FailureReason]string{
		schemas.ReasonPageUnreachable:      "Recovery page unreachable",
		schemas.ReasonChallengeUnresolved:  "Captcha could not be resolved",
		schemas.ReasonWrongDOB:             "Date of birth rejected",
		schemas.ReasonAnswersNotConfigured: "No configured answer matches the security questions",
		schemas.ReasonWrongAnswers:         "Security answers rejected",
		schemas.ReasonPasswordRejected:     "New password rejected",
		schemas.ReasonReAuthFailed:         "Login failed",
		schemas.ReasonLaunchFailed:         "Failed to launch the browser",
		schemas.ReasonUnknown:              "Unknown error",
	},
	nextRun: "Next run in %d minutes",
	devices: "Total devices: %d",
}

var catalogue = map[string]*Messages{
	"zh_cn": zhCN,
	"en_us": enUS,
	// No Vietnamese catalogue yet; English is the closest fallback for those operators.
	"vi_vn": enUS,
}

// Get returns the catalogue for lang ("zh_cn", "en-US", ...), defaulting to zh_cn.
func Get(lang string) *Messages {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "-", "_"))
	if m, ok := catalogue[key]; ok {
		return m
	}
	return zhCN
}
