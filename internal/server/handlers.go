// Package server provides HTTP handlers and server setup for the badge service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"reboosty/internal/badge"
	"reboosty/internal/selector"
)

const (
	contentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; img-src *; font-src *;"
	noStore               = "no-store"
)

// Resolver maps a source repo URL to the repo its badge promotes.
// *selector.Selector implements it.
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) selector.Resolution
	Lookup(ctx context.Context, sourceURL string) selector.Resolution
}

// Handler holds the HTTP handlers
type Handler struct {
	resolver Resolver
	maxAge   int
}

// NewHandler creates a new handler with the given resolver. maxAge is the
// Cache-Control max-age, in seconds, of healthy badge images.
func NewHandler(resolver Resolver, maxAge int) *Handler {
	if maxAge < 0 {
		maxAge = 0
	}
	return &Handler{
		resolver: resolver,
		maxAge:   maxAge,
	}
}

// Badge handles GET / and GET /api.
//
// Browsers (Accept containing text/html) are redirected to the repo currently
// selected for ?repo_url without creating a selection. Everything else gets
// the SVG badge. The image path always answers 200, falling back to the
// default badge on store failures or panics.
func (h *Handler) Badge(c echo.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while serving badge",
				"panic", r,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			if c.Response().Committed {
				err = nil
				return
			}
			err = writeFallbackBadge(c)
		}
	}()

	req := c.Request()
	source := c.QueryParam("repo_url")
	header := c.Response().Header()
	addVary(header, echo.HeaderAccept)

	if wantsHTML(req) {
		res := h.resolver.Lookup(req.Context(), source)
		header.Set("Cache-Control", noStore)
		return c.Redirect(http.StatusFound, res.SelectedURL)
	}

	res := h.resolver.Resolve(req.Context(), source)
	if res.Degraded() {
		return writeFallbackBadge(c)
	}

	header.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", h.maxAge))
	setImageHeaders(header)
	return c.Blob(http.StatusOK, badge.ContentType, badge.Render(badge.RepoName(res.SelectedURL)))
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func writeFallbackBadge(c echo.Context) error {
	header := c.Response().Header()
	header.Set("Cache-Control", noStore)
	setImageHeaders(header)
	return c.Blob(http.StatusOK, badge.ContentType, badge.Render(badge.FallbackName))
}

// setImageHeaders sets the headers shared by every SVG response. Vary lists
// Accept-Encoding whether or not this response was compressed, so shared
// caches key both variants the same way.
func setImageHeaders(header http.Header) {
	addVary(header, echo.HeaderAcceptEncoding)
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	header.Set(echo.HeaderContentSecurityPolicy, contentSecurityPolicy)
}

func wantsHTML(req *http.Request) bool {
	return strings.Contains(req.Header.Get(echo.HeaderAccept), "text/html")
}
