package carriers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveUserKey(t *testing.T) {
	testCases := []struct {
		name     string
		email    string
		expected string
	}{
		{"plain address", "lunaewsx@gmail.com", "lunaewsx"},
		{"uppercase local part", "Luna.Ewsx@Gmail.com", "luna.ewsx"},
		{"surrounding whitespace", "  user@example.com  ", "user"},
		{"already a user key", "lunaewsx", "lunaewsx"},
		{"empty input", "", ""},
		{"only domain", "@gmail.com", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DeriveUserKey(tc.email))
		})
	}
}

func TestDeriveUserKeyIdempotent(t *testing.T) {
	emails := []string{"lunaewsx@gmail.com", "A.B@x.pl", "plain", ""}
	for _, e := range emails {
		once := DeriveUserKey(e)
		assert.Equal(t, once, DeriveUserKey(once), "derivation must be idempotent for %q", e)
	}
}

func TestShipmentUpdateUserKey(t *testing.T) {
	u := ShipmentUpdate{Email: "Someone@wp.pl"}
	assert.Equal(t, "someone", u.UserKey())
}
