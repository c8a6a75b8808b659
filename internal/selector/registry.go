package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tidwall/gjson"

	"reboosty/internal/kvstore"
)

const (
	// SelectedPrefix namespaces selection mapping keys: selected_for:<source URL>.
	SelectedPrefix = "selected_for:"

	// RegistryKey holds the cached registry snapshot as a JSON array of URLs.
	RegistryKey = "all_repos_cache"
)

// Registry derives the set of promotable repositories from the selection mappings.
// The snapshot it caches is disposable: it can always be rebuilt from the
// selected_for:* values.
type Registry struct {
	store          kvstore.Store
	defaultRepoURL string
	ttl            time.Duration
	callTimeout    time.Duration
	hooks          Hooks
}

// NewRegistry creates a registry over store.
func NewRegistry(store kvstore.Store, defaultRepoURL string, ttl, callTimeout time.Duration, hooks Hooks) *Registry {
	if hooks == nil {
		hooks = noopHooks{}
	}
	return &Registry{
		store:          store,
		defaultRepoURL: defaultRepoURL,
		ttl:            ttl,
		callTimeout:    callTimeout,
		hooks:          hooks,
	}
}

// Snapshot returns the current candidate set, sorted.
// Any store error aborts the snapshot; the caller decides how to degrade.
func (r *Registry) Snapshot(ctx context.Context) ([]string, error) {
	var (
		raw string
		ok  bool
	)
	err := storeCall(ctx, r.callTimeout, func(ctx context.Context) (err error) {
		raw, ok, err = r.store.Get(ctx, RegistryKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read registry snapshot: %w", err)
	}
	if ok {
		if repos, valid := decodeSnapshot(raw); valid {
			return repos, nil
		}
		slog.Warn("discarding undecodable registry snapshot", "key", RegistryKey)
	}

	repos, err := r.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	r.hooks.RegistryRebuilt(len(repos))

	if len(repos) > 0 {
		data, err := json.Marshal(repos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal registry snapshot: %w", err)
		}
		err = storeCall(ctx, r.callTimeout, func(ctx context.Context) error {
			return r.store.SetWithExpiry(ctx, RegistryKey, string(data), r.ttl)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to write registry snapshot: %w", err)
		}
	}

	return repos, nil
}

// rebuild scans the selection mappings and resolves their values in one multi-get.
// Key names are source URLs; only the stored values are promotable targets.
func (r *Registry) rebuild(ctx context.Context) ([]string, error) {
	var keys []string
	err := storeCall(ctx, r.callTimeout, func(ctx context.Context) (err error) {
		keys, err = r.store.KeysByPrefix(ctx, SelectedPrefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list selection keys: %w", err)
	}

	var values []string
	if len(keys) > 0 {
		err = storeCall(ctx, r.callTimeout, func(ctx context.Context) (err error) {
			values, err = r.store.MultiGet(ctx, keys)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %d selection keys: %w", len(keys), err)
		}
	}

	seen := make(map[string]struct{}, len(values)+1)
	repos := make([]string, 0, len(values)+1)
	add := func(url string) {
		if url == "" {
			return
		}
		if _, dup := seen[url]; dup {
			return
		}
		seen[url] = struct{}{}
		repos = append(repos, url)
	}
	for _, v := range values {
		add(v)
	}
	add(r.defaultRepoURL)

	slices.Sort(repos)

	slog.Debug("registry snapshot rebuilt", "mappings", len(keys), "repos", len(repos))
	return repos, nil
}

// decodeSnapshot parses a JSON array of strings. Non-string and empty members
// are skipped; anything other than a non-empty array is reported invalid.
func decodeSnapshot(raw string) ([]string, bool) {
	if !gjson.Valid(raw) {
		return nil, false
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsArray() {
		return nil, false
	}

	var repos []string
	for _, item := range parsed.Array() {
		if item.Type == gjson.String && item.Str != "" {
			repos = append(repos, item.Str)
		}
	}
	if len(repos) == 0 {
		return nil, false
	}
	return repos, true
}

// storeCall runs one store operation under its own timeout. No retries: a
// failure is reported immediately.
func storeCall(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
