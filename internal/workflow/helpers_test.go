// internal/workflow/helpers_test.go
package workflow

import (
	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
	"github.com/xkilldash9x/recovery-warden/internal/mocks"
)

const (
	testAccount  = "someone@icloud.com"
	testPassword = "Orig1nalPw"
	testImage    = "data:image/png;base64,QUJDRA=="
)

func testTask() schemas.RecoveryTask {
	return schemas.RecoveryTask{
		ID:            "task-1",
		Username:      testAccount,
		Password:      testPassword,
		DOB:           "01/02/1990",
		Q1:            "母亲的名字",
		A1:            "Mary",
		Q2:            "first pet",
		A2:            "Rex",
		CheckInterval: 30,
		Enabled:       true,
	}
}

func schemasAnswers() schemas.SecurityAnswerMap {
	return testTask().Answers()
}

// expectLogin scripts the entry page and a challenge-free identifier submit.
func expectLogin(sess *mocks.MockSession) {
	sess.On("Navigate", mock.Anything, EntryURL).Return(nil).Once()
	sess.On("WaitVisible", mock.Anything, identifierInput, mock.Anything).Return(true)
	sess.On("Fill", mock.Anything, identifierInput, testAccount).Return(nil).Once()
	sess.On("IsVisible", mock.Anything, captchaInput).Return(false)
	sess.On("Click", mock.Anything, primaryButton).Return(nil)
	sess.On("IsVisible", mock.Anything, challengeError).Return(false)
}

// expectUnlockedAccount scripts an account page with neither marker.
func expectUnlockedAccount(sess *mocks.MockSession) {
	sess.On("IsVisible", mock.Anything, twoFactorMarker).Return(false)
	sess.On("IsVisible", mock.Anything, dateInput).Return(false)
}

// expectUnlockSequence scripts a locked account going through every unlock
// step successfully with two password fields.
func expectUnlockSequence(sess *mocks.MockSession) {
	sess.On("IsVisible", mock.Anything, twoFactorMarker).Return(false)
	sess.On("IsVisible", mock.Anything, dateInput).Return(true)

	sess.On("WaitVisible", mock.Anything, dateInput, mock.Anything).Return(true)
	sess.On("Fill", mock.Anything, dateInput, "01/02/1990").Return(nil)
	sess.On("PressEnter", mock.Anything).Return(nil)
	sess.On("IsVisible", mock.Anything, formError).Return(false)

	sess.On("WaitVisible", mock.Anything, questionPrompt, mock.Anything).Return(true)
	sess.On("Count", mock.Anything, questionPrompt).Return(2, nil)
	sess.On("ReadText", mock.Anything, questionPrompt.At(0)).Return("Please answer:母亲的名字?", nil)
	sess.On("ReadText", mock.Anything, questionPrompt.At(1)).Return("What was your first pet?", nil)
	sess.On("Fill", mock.Anything, answerInput.At(0), "Mary").Return(nil)
	sess.On("Fill", mock.Anything, answerInput.At(1), "Rex").Return(nil)

	sess.On("IsVisible", mock.Anything, passwordEntry).Return(true)
	sess.On("Click", mock.Anything, passwordEntry).Return(nil)
	sess.On("WaitVisible", mock.Anything, passwordInput, mock.Anything).Return(true)
	sess.On("Count", mock.Anything, passwordInput).Return(2, nil)
	sess.On("Fill", mock.Anything, passwordInput.At(0), mock.AnythingOfType("string")).Return(nil)
	sess.On("Fill", mock.Anything, passwordInput.At(1), mock.AnythingOfType("string")).Return(nil)
	sess.On("IsVisible", mock.Anything, passwordError).Return(false)
}
