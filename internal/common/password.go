package common

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidPassword reports whether password has minLen to maxLen characters and no whitespace.
// Both the conversation and the rotator apply this rule.
func ValidPassword(password string, minLen, maxLen int) bool {
	n := utf8.RuneCountInString(password)
	if n < minLen || n > maxLen {
		return false
	}
	return strings.IndexFunc(password, unicode.IsSpace) < 0
}
