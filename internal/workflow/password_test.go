// internal/workflow/password_test.go
package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]struct{})
	for range 500 {
		p := GeneratePassword()
		assert.Len(t, p, PasswordLength)
		assert.True(t, ValidPassword(p), p)
		for _, r := range p {
			assert.True(t, strings.ContainsRune(passwordPool, r), "unexpected rune %q", r)
		}
		seen[p] = struct{}{}
	}
	assert.Greater(t, len(seen), 495, "generated passwords should practically never repeat")
}

func TestValidPassword(t *testing.T) {
	tests := map[string]bool{
		"aB3aB3aB3a":  true,
		"abcdefghij":  false,
		"ABCDEFGHIJ":  false,
		"0123456789":  false,
		"aB3":         false,
		"aB3aB3aB3aB": false,
	}
	for p, want := range tests {
		assert.Equal(t, want, ValidPassword(p), p)
	}
}

func TestAnswerPrompts(t *testing.T) {
	answers := schemasAnswers()

	got, ok := answerPrompts(answers, []string{"Please answer:母亲的名字?", "  What was your first pet? "})
	assert.True(t, ok)
	assert.Equal(t, []string{"Mary", "Rex"}, got)

	got, ok = answerPrompts(answers, []string{"Please answer:母亲的名字?", "Favourite book?"})
	assert.False(t, ok)
	assert.Equal(t, []string{"Mary", ""}, got)
}
