// Package badge renders the promotion badge SVG.
package badge

import (
	"html"
	"strings"
)

// FallbackName is shown when no repo name can be derived, and on any failure.
const FallbackName = "reboosty"

// Tagline is the static second line of every badge.
const Tagline = "Reboosty: Branch Out. Be Seen."

// ContentType is the media type of rendered badges.
const ContentType = "image/svg+xml"

const svgTemplate = `<svg xmlns="http://www.w3.org/2000/svg" width="320" height="100">` +
	`<defs><filter id="shadow" x="-10%" y="-10%" width="130%" height="130%">` +
	`<feDropShadow dx="0" dy="8" stdDeviation="4" flood-color="#000" flood-opacity=".15"/></filter></defs>` +
	`<rect x="10" y="10" width="300" height="80" rx="12" ry="12" fill="#E3F2FD" filter="url(#shadow)"/>` +
	`<g stroke="#0288D1" stroke-width="2" fill="#0288D1">` +
	`<circle cx="30" cy="70" r="2"/><circle cx="45" cy="63" r="2"/><circle cx="45" cy="77" r="2"/>` +
	`<line x1="30" y1="70" x2="45" y2="63"/><line x1="30" y1="70" x2="45" y2="77"/></g>` +
	`<text x="160" y="35" fill="#1E3A8A" font-family="monospace" font-weight="bold" font-size="18" ` +
	`text-anchor="middle" dominant-baseline="middle">{{name}}</text>` +
	`<text x="160" y="70" fill="#0288D1" font-family="monospace" font-style="italic" font-size="10" ` +
	`text-anchor="middle" dominant-baseline="middle" letter-spacing="1.5">{{tagline}}</text></svg>`

// RepoName returns the last path segment of a repo URL, or FallbackName.
func RepoName(repoURL string) string {
	name := repoURL[strings.LastIndex(repoURL, "/")+1:]
	if strings.TrimSpace(name) == "" {
		return FallbackName
	}
	return name
}

// Render returns the badge SVG for name. The name is XML-escaped.
func Render(name string) []byte {
	if name == "" {
		name = FallbackName
	}
	r := strings.NewReplacer(
		"{{name}}", html.EscapeString(name),
		"{{tagline}}", html.EscapeString(Tagline),
	)
	return []byte(r.Replace(svgTemplate))
}
