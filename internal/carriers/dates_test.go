package carriers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"dotted format passes through", "17.03.2024", "17.03.2024"},
		{"dashed format converted", "17-03-2024", "17.03.2024"},
		{"timestamp format converted", "2024-03-17 14:22:05", "17.03.2024"},
		{"date-only ISO converted", "2024-03-17", "17.03.2024"},
		{"free text kept as-is", "jutro do 20:00", "jutro do 20:00"},
		{"empty stays empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeDate(tc.input))
		})
	}
}

func TestFindDate(t *testing.T) {
	body := "Twoja paczka czeka.\nOdbierz ją do 21-03-2024 w punkcie."
	assert.Equal(t, "21.03.2024", FindDate(body))

	assert.Equal(t, "", FindDate("no dates here"))
}

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"nine digits grouped", "512345678", "512 345 678"},
		{"country code stripped", "+48 512 345 678", "512 345 678"},
		{"dashes and dots", "48-512.345-678", "512 345 678"},
		{"too short", "12345", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizePhone(tc.input))
		})
	}
}

func TestFindPhone(t *testing.T) {
	body := "Kurier zadzwoni pod numer +48 601 202 303 przed dostawą."
	assert.Equal(t, "601 202 303", FindPhone(body))
}

func TestHeadKeepsRuneBoundary(t *testing.T) {
	// "ż" is two bytes; a cut landing mid-rune must back off so the
	// truncated haystack stays valid UTF-8.
	s := strings.Repeat("a", 3) + "żółć"
	for n := 0; n <= len(s); n++ {
		assert.True(t, utf8.ValidString(head(s, n)), "cut at %d", n)
	}
	assert.Equal(t, s, head(s, len(s)+10))
	assert.Equal(t, "aaa", head(s, 4), "mid-rune cut backs off")
}
