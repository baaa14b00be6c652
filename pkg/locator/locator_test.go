package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	assert.Equal(t,
		"https://drop.example.org/#code=K7MR-P2XW",
		Build("https://drop.example.org", "K7MR-P2XW"))

	// Trailing slash on the origin must not double up.
	assert.Equal(t,
		"https://drop.example.org/#code=K7MR-P2XW",
		Build("https://drop.example.org/", "K7MR-P2XW"))
}

func TestBuildParse_RoundTrip(t *testing.T) {
	loc := Build("https://drop.example.org", "K7MR-P2XW")
	code, ok := Parse(loc)
	require.True(t, ok)
	assert.Equal(t, "K7MR-P2XW", code)
}

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"fragment form", "https://drop.example.org/#code=K7MR-P2XW", "K7MR-P2XW", true},
		{"query form", "https://drop.example.org/?code=K7MR-P2XW", "K7MR-P2XW", true},
		{"fragment wins over query", "https://x.org/?code=AAAA-AAAA#code=BBBB-BBBB", "BBBB-BBBB", true},
		{"bare code", "K7MR-P2XW", "K7MR-P2XW", true},
		{"bare code with spaces", "  K7MR-P2XW  ", "K7MR-P2XW", true},
		{"empty", "", "", false},
		{"url without code", "https://drop.example.org/about", "", false},
		{"fragment without code", "https://drop.example.org/#section", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, ok := Parse(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, code)
		})
	}
}
