package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reboosty/internal/badge"
	"reboosty/internal/selector"
)

// mockResolver implements Resolver for testing
type mockResolver struct {
	mu       sync.Mutex
	resolved []string
	lookedUp []string

	resolve func(src string) selector.Resolution
	lookup  func(src string) selector.Resolution
}

func (m *mockResolver) Resolve(_ context.Context, src string) selector.Resolution {
	m.mu.Lock()
	m.resolved = append(m.resolved, src)
	m.mu.Unlock()
	return m.resolve(src)
}

func (m *mockResolver) Lookup(_ context.Context, src string) selector.Resolution {
	m.mu.Lock()
	m.lookedUp = append(m.lookedUp, src)
	m.mu.Unlock()
	return m.lookup(src)
}

func fixedResolver(selected string, outcome selector.Outcome) *mockResolver {
	res := func(src string) selector.Resolution {
		return selector.Resolution{SourceURL: src, SelectedURL: selected, Outcome: outcome}
	}
	return &mockResolver{resolve: res, lookup: res}
}

func serveBadge(t *testing.T, h *Handler, target, accept string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if accept != "" {
		req.Header.Set(echo.HeaderAccept, accept)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h.Badge(e.NewContext(req, rec)))
	return rec
}

func TestBadge_Image(t *testing.T) {
	resolver := fixedResolver("https://github.com/acme/widget", selector.OutcomeSelected)
	h := NewHandler(resolver, 3600)

	rec := serveBadge(t, h, "/?repo_url=https://github.com/me/project", "image/webp,*/*")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "default-src 'none'; style-src 'unsafe-inline'; img-src *; font-src *;", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, string(badge.Render("widget")), rec.Body.String())
	assert.Equal(t, []string{"https://github.com/me/project"}, resolver.resolved)
	assert.Empty(t, resolver.lookedUp)
}

func TestBadge_NoAcceptHeaderServesImage(t *testing.T) {
	resolver := fixedResolver("https://github.com/acme/widget", selector.OutcomeHit)
	h := NewHandler(resolver, 60)

	rec := serveBadge(t, h, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, []string{""}, resolver.resolved)
}

func TestBadge_ZeroMaxAge(t *testing.T) {
	h := NewHandler(fixedResolver("https://github.com/acme/widget", selector.OutcomeHit), 0)

	rec := serveBadge(t, h, "/", "")
	assert.Equal(t, "public, max-age=0", rec.Header().Get("Cache-Control"))
}

func TestBadge_BrowserRedirect(t *testing.T) {
	resolver := fixedResolver("https://github.com/acme/widget", selector.OutcomeHit)
	h := NewHandler(resolver, 3600)

	rec := serveBadge(t, h, "/?repo_url=https://github.com/me/project", "text/html,application/xhtml+xml")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://github.com/acme/widget", rec.Header().Get("Location"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Values("Vary"), "Accept")
	assert.Equal(t, []string{"https://github.com/me/project"}, resolver.lookedUp)
	assert.Empty(t, resolver.resolved, "redirects must not create selections")
}

func TestBadge_BrowserRedirectWithoutSelection(t *testing.T) {
	resolver := fixedResolver(selector.DefaultRepoURL, selector.OutcomeDefault)
	h := NewHandler(resolver, 3600)

	rec := serveBadge(t, h, "/?repo_url=https://github.com/never/seen", "text/html")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, selector.DefaultRepoURL, rec.Header().Get("Location"))
}

func TestBadge_DegradedServesUncachedFallback(t *testing.T) {
	h := NewHandler(fixedResolver(selector.DefaultRepoURL, selector.OutcomeDegraded), 3600)

	rec := serveBadge(t, h, "/?repo_url=https://github.com/me/project", "image/*")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, string(badge.Render(badge.FallbackName)), rec.Body.String())
}

func TestBadge_PanicServesFallback(t *testing.T) {
	resolver := &mockResolver{
		resolve: func(string) selector.Resolution { panic("boom") },
	}
	h := NewHandler(resolver, 3600)

	rec := serveBadge(t, h, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.True(t, strings.Contains(rec.Body.String(), ">reboosty<"))
}

func TestBadge_EscapesRepoName(t *testing.T) {
	h := NewHandler(fixedResolver(`https://github.com/acme/<script>`, selector.OutcomeHit), 3600)

	rec := serveBadge(t, h, "/", "")

	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestHealth(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, NewHandler(nil, 0).Health(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
