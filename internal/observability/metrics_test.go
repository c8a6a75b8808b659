package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reboosty/internal/kvstore"
	"reboosty/internal/selector"
)

type failingStore struct{ kvstore.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("boom")
}

func (failingStore) Close() error { return nil }

func TestHooks_CountResolutions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	store := kvstore.NewMemoryStore()
	sel, err := selector.New(store, selector.Config{}, selector.WithHooks(m.Hooks()))
	require.NoError(t, err)

	ctx := context.Background()
	sel.Resolve(ctx, "https://github.com/acme/widget") // selected
	sel.Resolve(ctx, "https://github.com/acme/widget") // hit
	sel.Lookup(ctx, "https://github.com/acme/other")   // default

	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("resolve", "selected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("resolve", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("lookup", "default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registryRebuilds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrySize))
}

func TestInstrumentStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	ctx := context.Background()

	store := m.InstrumentStore(kvstore.NewMemoryStore())
	require.NoError(t, store.SetWithExpiry(ctx, "k", "v", time.Minute))
	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	_, err = store.KeysByPrefix(ctx, "")
	require.NoError(t, err)
	_, err = store.MultiGet(ctx, []string{"k"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.Equal(t, 4, testutil.CollectAndCount(m.storeDuration))

	bad := m.InstrumentStore(failingStore{})
	_, _, err = bad.Get(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, 5, testutil.CollectAndCount(m.storeDuration), "errors get their own status label")
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	first.Hooks().RegistryRebuilt(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.registryRebuilds))
	assert.Equal(t, 3.0, testutil.ToFloat64(second.registrySize))
}

func TestDegradedResolutionsAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	sel, err := selector.New(m.InstrumentStore(failingStore{}), selector.Config{}, selector.WithHooks(m.Hooks()))
	require.NoError(t, err)

	res := sel.Resolve(context.Background(), "https://github.com/acme/widget")
	assert.True(t, res.Degraded())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("resolve", "degraded")))
}
