package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLValidator(t *testing.T) {
	v, err := NewURLValidator("")
	require.NoError(t, err)

	tests := []struct {
		url   string
		valid bool
	}{
		{"https://github.com/acme/widget", true},
		{"https://github.com/acme/widget.go", true},
		{"https://github.com/a-b/c_d", true},
		{"https://github.com/acme", false},
		{"https://github.com/acme/", false},
		{"https://github.com//widget", false},
		{"https://github.com/acme/widget/", false},
		{"https://github.com/acme/widget/issues", false},
		{"http://github.com/acme/widget", false},
		{"ftp://github.com/acme/widget", false},
		{"https://gitlab.com/acme/widget", false},
		{"https://githubXcom/acme/widget", false},
		{"https://github.com/acme/wid\tget", false},
		{"https://github.com/acme/widget ", false},
		{"https://github.com/acme/wid\vget", false},
		{"https://github.com/acme/wid\u00a0get", false},
		{"https://github.com/acme/wid\u2003get", false},
		{"https://github.com/acme\u3000x/widget", false},
		{"https://github.com/acme/wid\u2028get", false},
		{"https://github.com/acme/widget\ufeff", false},
		{"https://github.com/acme/widgét", true},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, v.Valid(tt.url), "url %q", tt.url)
	}
}

func TestURLValidator_CustomHost(t *testing.T) {
	v, err := NewURLValidator("codeberg.org")
	require.NoError(t, err)

	assert.True(t, v.Valid("https://codeberg.org/forgejo/forgejo"))
	assert.False(t, v.Valid("https://github.com/acme/widget"))
	assert.Equal(t, "fallback", v.Normalize("https://github.com/acme/widget", "fallback"))
	assert.Equal(t, "https://codeberg.org/a/b", v.Normalize("https://codeberg.org/a/b", "fallback"))
}

func TestURLValidator_Host(t *testing.T) {
	v, err := NewURLValidator("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAllowedHost, v.Host())
}
