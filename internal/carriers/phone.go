package carriers

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var nonDigit = regexp.MustCompile(`\D`)

var phonePattern = regexp.MustCompile(`(?:\+?\d{1,3}[ .-]?)?(?:\d[ .-]?){9,12}`)

// NormalizePhone reduces a phone number to its last 9 digits, grouped in
// threes. Country codes are stripped as a consequence of keeping only the
// trailing digits. Inputs with fewer than 9 digits come back empty.
func NormalizePhone(raw string) string {
	digits := nonDigit.ReplaceAllString(raw, "")
	if len(digits) < 9 {
		return ""
	}
	digits = digits[len(digits)-9:]
	return digits[0:3] + " " + digits[3:6] + " " + digits[6:9]
}

// FindPhone locates the first phone-looking sequence in text and
// normalizes it. Digit runs glued onto alphanumeric tokens (tracking
// numbers like 3SBCD1234567890) are skipped.
func FindPhone(text string) string {
	for _, loc := range phonePattern.FindAllStringIndex(text, 5) {
		if loc[0] > 0 {
			prev := text[loc[0]-1]
			if (prev >= '0' && prev <= '9') || (prev >= 'A' && prev <= 'Z') || (prev >= 'a' && prev <= 'z') {
				continue
			}
		}
		if p := NormalizePhone(text[loc[0]:loc[1]]); p != "" {
			return p
		}
	}
	return ""
}

// firstMatch returns the first capture group of re in text, trimmed.
func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// containsAny reports whether lowercased s contains any of the needles.
// Needles are expected to be lowercase already.
func containsAny(s string, needles ...string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// head returns roughly the first n bytes of s, backing off to the
// nearest rune boundary so Polish diacritics are never split.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
