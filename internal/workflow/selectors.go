// internal/workflow/selectors.go
package workflow

import "github.com/xkilldash9x/recovery-warden/api/schemas"

// Pages of the recovery flow.
const (
	EntryURL   = "https://iforgot.apple.com/password/verify/appleid?language=en_US"
	SignInURL  = "https://appleid.apple.com/sign-in"
	DevicesURL = "https://appleid.apple.com/account/manage/section/devices"
)

var (
	identifierInput = schemas.Locator{Selector: ".iforgot-apple-id"}
	captchaInput    = schemas.Locator{Selector: ".captcha-input"}
	captchaImage    = schemas.Locator{Selector: `img[src^="data:image"]`}
	challengeError  = schemas.Locator{Selector: "idms-error"}
	primaryButton   = schemas.Locator{Selector: ".button-primary"}

	twoFactorMarker = schemas.Locator{Selector: "#phoneNumber"}
	dateInput       = schemas.Locator{Selector: ".date-input"}
	formError       = schemas.Locator{Selector: ".form-message"}
	questionPrompt  = schemas.Locator{Selector: ".question"}
	answerInput     = schemas.Locator{Selector: ".generic-input-field"}
	passwordEntry   = schemas.Locator{Selector: ".pwdChange"}
	passwordInput   = schemas.Locator{Selector: ".form-textbox-input"}
	passwordError   = schemas.Locator{Selector: ".error-content"}

	// The sign-in form is rendered inside the first iframe of the page.
	signInAccount  = schemas.Locator{Frame: "iframe", Selector: "#account_name_text_field"}
	signInPassword = schemas.Locator{Frame: "iframe", Selector: "#password_text_field"}
	signInError    = schemas.Locator{Frame: "iframe", Selector: "#errMsg"}

	deviceExpand  = schemas.Locator{Selector: ".button-expand"}
	deviceConfirm = schemas.Locator{Selector: ".button-secondary"}
	dialogButton  = schemas.Locator{Selector: "button"}
)

const removeLabel = "Remove"
