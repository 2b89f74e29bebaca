// internal/workflow/password.go
package workflow

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

// PasswordLength is the length of every generated password.
const PasswordLength = 10

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
)

// The digits appear twice to weight the pool toward them.
var passwordPool = lowercase + uppercase + digits + digits

// GeneratePassword draws PasswordLength characters from the pool and rejects
// candidates until one carries a lowercase letter, an uppercase letter and a digit.
func GeneratePassword() string {
	for {
		candidate := randomString(passwordPool, PasswordLength)
		if ValidPassword(candidate) {
			return candidate
		}
	}
}

// ValidPassword reports whether p satisfies the composition rule.
func ValidPassword(p string) bool {
	if len(p) != PasswordLength {
		return false
	}
	var lower, upper, digit bool
	for _, r := range p {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

func randomString(pool string, n int) string {
	var b strings.Builder
	b.Grow(n)
	limit := big.NewInt(int64(len(pool)))
	for range n {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		b.WriteByte(pool[idx.Int64()])
	}
	return b.String()
}
