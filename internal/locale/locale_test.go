package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

func TestGet(t *testing.T) {
	assert.Same(t, zhCN, Get("zh_cn"))
	assert.Same(t, enUS, Get("en_us"))
	assert.Same(t, enUS, Get("en-US"))
	assert.Same(t, enUS, Get("vi_vn"), "vietnamese falls back to english")
	assert.Same(t, zhCN, Get("fr_fr"), "unknown languages use the default")
	assert.Same(t, zhCN, Get(""))
}

func TestCataloguesAreComplete(t *testing.T) {
	reasons := []schemas.FailureReason{
		schemas.ReasonPageUnreachable, schemas.ReasonChallengeUnresolved, schemas.ReasonWrongDOB,
		schemas.ReasonAnswersNotConfigured, schemas.ReasonWrongAnswers, schemas.ReasonPasswordRejected,
		schemas.ReasonReAuthFailed, schemas.ReasonLaunchFailed, schemas.ReasonUnknown,
	}
	for name, m := range map[string]*Messages{"zh_cn": zhCN, "en_us": enUS} {
		t.Run(name, func(t *testing.T) {
			assert.NotEmpty(t, m.Normal)
			assert.NotEmpty(t, m.UpdateSuccess)
			assert.NotEmpty(t, m.NewPassword)
			for _, r := range reasons {
				text, ok := m.reasons[r]
				assert.True(t, ok, "reason %s has no message", r)
				assert.NotEmpty(t, text, r.String())
				assert.Equal(t, text, m.Reason(r))
			}
			assert.Equal(t, m.UnknownError, m.Reason(schemas.FailureReason(99)))
		})
	}
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "Next run in 5 minutes", enUS.NextRun(5))
	assert.Equal(t, "Total devices: 3", enUS.TotalDevices(3))
	assert.Equal(t, "下次运行时间：10分钟后", zhCN.NextRun(10))
	assert.Equal(t, enUS.UnknownError, enUS.Reason(schemas.FailureReason(99)))
}
