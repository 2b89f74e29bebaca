// internal/workflow/answers.go
package workflow

import (
	"strings"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// answerPrompts resolves the rendered question prompts against the configured
// answers. ok is false when any prompt has no non-empty answer.
func answerPrompts(answers schemas.SecurityAnswerMap, prompts []string) (resolved []string, ok bool) {
	resolved = make([]string, len(prompts))
	ok = true
	for i, prompt := range prompts {
		resolved[i] = answers.Answer(strings.TrimSpace(prompt))
		if resolved[i] == "" {
			ok = false
		}
	}
	return resolved, ok
}
