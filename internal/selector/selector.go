// Package selector resolves a source repository URL to the promoted repository
// shown in its badge. Assignments are sticky for a TTL window and stored only in
// the key-value store, so any number of instances can serve the same traffic.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"reboosty/internal/kvstore"
)

// DefaultRepoURL is used when no default is configured.
const DefaultRepoURL = "https://github.com/reboosty/reboosty"

const (
	// DefaultSelectionTTL bounds how long a source keeps its selected repo.
	DefaultSelectionTTL = 60 * time.Minute

	// DefaultRegistryTTL bounds how long a registry snapshot is reused.
	DefaultRegistryTTL = 60 * time.Minute

	// DefaultStoreTimeout bounds each individual store call.
	DefaultStoreTimeout = 2 * time.Second
)

// Operation names the selector entry point that produced a Resolution.
type Operation string

const (
	OpResolve Operation = "resolve"
	OpLookup  Operation = "lookup"
)

// Outcome describes how a Resolution was reached.
type Outcome string

const (
	// OutcomeHit means an existing selection mapping was returned.
	OutcomeHit Outcome = "hit"
	// OutcomeSelected means a new repo was picked and written back.
	OutcomeSelected Outcome = "selected"
	// OutcomeDefault means no mapping exists and Lookup fell back to the default.
	OutcomeDefault Outcome = "default"
	// OutcomeDegraded means the store failed and the default was substituted.
	OutcomeDegraded Outcome = "degraded"
)

// Resolution is the result of resolving a source URL.
type Resolution struct {
	// SourceURL is the validated source URL (the default when the input was invalid).
	SourceURL string
	// SelectedURL is the promoted repository URL.
	SelectedURL string
	Outcome     Outcome
}

// Degraded reports whether the store failed while resolving.
func (r Resolution) Degraded() bool {
	return r.Outcome == OutcomeDegraded
}

// Config holds selector configuration.
type Config struct {
	DefaultRepoURL string
	AllowedHost    string
	SelectionTTL   time.Duration
	RegistryTTL    time.Duration
	StoreTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultRepoURL == "" {
		c.DefaultRepoURL = DefaultRepoURL
	}
	if c.AllowedHost == "" {
		c.AllowedHost = DefaultAllowedHost
	}
	if c.SelectionTTL <= 0 {
		c.SelectionTTL = DefaultSelectionTTL
	}
	if c.RegistryTTL <= 0 {
		c.RegistryTTL = DefaultRegistryTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	return c
}

// Rand is the random source used to pick among candidates.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// lockedRand makes a non thread-safe Rand usable from concurrent requests.
type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Option configures a Selector.
type Option func(*Selector)

// WithRand injects the random source, e.g. rand.New(rand.NewPCG(1, 2)) for
// reproducible picks. Access is serialized internally.
func WithRand(r Rand) Option {
	return func(s *Selector) {
		if r != nil {
			s.rand = &lockedRand{r: r}
		}
	}
}

// WithHooks registers event hooks.
func WithHooks(h Hooks) Option {
	return func(s *Selector) {
		if h != nil {
			s.hooks = h
		}
	}
}

// Selector assigns promoted repositories to source URLs.
// It keeps no state between requests beyond its configuration.
type Selector struct {
	store     kvstore.Store
	registry  *Registry
	validator *URLValidator
	cfg       Config
	rand      Rand
	hooks     Hooks
}

// New creates a Selector. The default repo URL must itself be a valid repo URL.
func New(store kvstore.Store, cfg Config, opts ...Option) (*Selector, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	cfg = cfg.withDefaults()

	validator, err := NewURLValidator(cfg.AllowedHost)
	if err != nil {
		return nil, err
	}
	if !validator.Valid(cfg.DefaultRepoURL) {
		return nil, fmt.Errorf("default repo URL %q must match https://%s/<owner>/<repo>", cfg.DefaultRepoURL, cfg.AllowedHost)
	}

	s := &Selector{
		store:     store,
		validator: validator,
		cfg:       cfg,
		rand:      globalRand{},
		hooks:     noopHooks{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = NewRegistry(store, cfg.DefaultRepoURL, cfg.RegistryTTL, cfg.StoreTimeout, s.hooks)

	return s, nil
}

// DefaultRepoURL returns the configured fallback URL.
func (s *Selector) DefaultRepoURL() string {
	return s.cfg.DefaultRepoURL
}

// Normalize validates a caller-supplied source URL, substituting the default.
func (s *Selector) Normalize(raw string) string {
	return s.validator.Normalize(raw, s.cfg.DefaultRepoURL)
}

// Resolve returns the selected repo for sourceURL, creating and storing a new
// selection when none exists. It never fails: store errors yield the default
// repo with OutcomeDegraded, and a degraded result is never written back.
func (s *Selector) Resolve(ctx context.Context, sourceURL string) Resolution {
	res := s.resolve(ctx, s.Normalize(sourceURL))
	s.hooks.Resolved(OpResolve, res)
	return res
}

func (s *Selector) resolve(ctx context.Context, source string) Resolution {
	key := SelectedPrefix + source

	selected, found, err := s.get(ctx, key)
	if err != nil {
		return s.degrade(source, "lookup", err)
	}
	if found && selected != "" {
		return Resolution{SourceURL: source, SelectedURL: selected, Outcome: OutcomeHit}
	}

	candidates, err := s.registry.Snapshot(ctx)
	if err != nil {
		return s.degrade(source, "registry", err)
	}

	selected = s.cfg.DefaultRepoURL
	if len(candidates) > 0 {
		selected = candidates[s.rand.IntN(len(candidates))]
	}

	// Concurrent misses for the same source may each write; last writer wins.
	err = storeCall(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		return s.store.SetWithExpiry(ctx, key, selected, s.cfg.SelectionTTL)
	})
	if err != nil {
		return s.degrade(source, "write-back", err)
	}

	slog.Debug("selected repo", "source", source, "selected", selected, "candidates", len(candidates))
	return Resolution{SourceURL: source, SelectedURL: selected, Outcome: OutcomeSelected}
}

// Lookup returns the existing selection for sourceURL without ever selecting
// or writing. A missing mapping or store error yields the default repo.
func (s *Selector) Lookup(ctx context.Context, sourceURL string) Resolution {
	source := s.Normalize(sourceURL)

	var res Resolution
	selected, found, err := s.get(ctx, SelectedPrefix+source)
	switch {
	case err != nil:
		res = s.degrade(source, "lookup", err)
	case found && selected != "":
		res = Resolution{SourceURL: source, SelectedURL: selected, Outcome: OutcomeHit}
	default:
		res = Resolution{SourceURL: source, SelectedURL: s.cfg.DefaultRepoURL, Outcome: OutcomeDefault}
	}

	s.hooks.Resolved(OpLookup, res)
	return res
}

func (s *Selector) get(ctx context.Context, key string) (value string, found bool, err error) {
	err = storeCall(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		value, found, err = s.store.Get(ctx, key)
		return err
	})
	return value, found, err
}

func (s *Selector) degrade(source, stage string, err error) Resolution {
	slog.Warn("store unavailable, using default repo",
		"stage", stage,
		"source", source,
		"error", err,
	)
	return Resolution{SourceURL: source, SelectedURL: s.cfg.DefaultRepoURL, Outcome: OutcomeDegraded}
}
