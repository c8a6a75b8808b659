package selector

import (
	"fmt"
	"regexp"
)

// DefaultAllowedHost is the code-hosting domain accepted in source URLs.
const DefaultAllowedHost = "github.com"

// URLValidator checks that a URL has the exact shape https://<host>/<owner>/<repo>.
// Segments reject all Unicode space and separator characters, plus \v and U+FEFF.
type URLValidator struct {
	host    string
	pattern *regexp.Regexp
}

// NewURLValidator builds a validator for the given host.
func NewURLValidator(host string) (*URLValidator, error) {
	if host == "" {
		host = DefaultAllowedHost
	}
	segment := `[^/\s\v\p{Z}\x{FEFF}]+`
	pattern, err := regexp.Compile(`^https://` + regexp.QuoteMeta(host) + `/` + segment + `/` + segment + `$`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile repo URL pattern for host %q: %w", host, err)
	}
	return &URLValidator{host: host, pattern: pattern}, nil
}

// Host returns the allowed host.
func (v *URLValidator) Host() string {
	return v.host
}

// Valid reports whether raw is an owner/repo URL on the allowed host.
func (v *URLValidator) Valid(raw string) bool {
	return v.pattern.MatchString(raw)
}

// Normalize returns raw when it is valid and fallback otherwise.
func (v *URLValidator) Normalize(raw, fallback string) string {
	if v.Valid(raw) {
		return raw
	}
	return fallback
}
