package settings_test

import (
	"context"
	"testing"

	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) (*settings.Registry, *kv.Store) {
	t.Helper()
	storage, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	store := kv.New(zaptest.NewLogger(t), storage)
	return settings.New(zaptest.NewLogger(t), store), store
}

func TestRegistry_LoadEmptyStoreReturnsDefaults(t *testing.T) {
	r, _ := newTestRegistry(t)

	loaded := r.Load(context.Background())
	assert.Equal(t, settings.Defaults().Keys(), loaded.Keys())
	assert.Equal(t, settings.Defaults().ToMap(), loaded.ToMap())
}

func TestRegistry_LoadAfterSaveContainsEveryDefaultKey(t *testing.T) {
	ctx := context.Background()
	defaults := settings.Defaults().Keys()

	// every prefix of the schema, plus an unknown key
	for n := 0; n <= len(defaults); n++ {
		r, _ := newTestRegistry(t)
		partial := settings.NewMap()
		for _, key := range defaults[:n] {
			partial.Set(key, "custom-"+key)
		}
		partial.Set("legacyKey", "kept")
		require.NoError(t, r.Save(ctx, partial))

		loaded := r.Load(ctx)
		for i, key := range defaults {
			v, ok := loaded.Get(key)
			require.True(t, ok, key)
			if i < n {
				assert.Equal(t, "custom-"+key, v)
			} else {
				def, _ := settings.Defaults().Get(key)
				assert.Equal(t, def, v)
			}
		}
		assert.Equal(t, append(defaults, "legacyKey"), loaded.Keys())
	}
}

func TestRegistry_GetFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	require.NoError(t, store.Set(ctx, kv.KeySettings, `{"storeName":"Corner Shop"}`))

	assert.EqualValues(t, 5, r.Get(ctx, "defaultGSTRate", nil))
	assert.Equal(t, "Corner Shop", r.Get(ctx, "storeName", nil))
	assert.Equal(t, "fallback", r.Get(ctx, "unknownKey", "fallback"))
}

func TestRegistry_LoadUnparsableSettings(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	require.NoError(t, store.Set(ctx, kv.KeySettings, `{"storeName":`))

	loaded := r.Load(ctx)
	assert.Equal(t, settings.Defaults().ToMap(), loaded.ToMap())
}

func TestRegistry_SaveSerializationFailureKeepsStoredValue(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	require.NoError(t, r.Save(ctx, settings.MapOf("storeName", "Before")))

	err := r.Save(ctx, settings.MapOf("storeName", "After", "hook", make(chan int)))
	require.Error(t, err)

	raw, ok, err := store.Get(ctx, kv.KeySettings)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"storeName":"Before"}`, raw)
	assert.Equal(t, "Before", r.Get(ctx, "storeName", nil))
}

func TestRegistry_UpdateResetsAbsentCheckboxes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	existing := r.Load(ctx)
	existing.Set("storeName", "Corner Shop")
	existing.Set("showSavings", true)
	existing.Set("autoPrint", true)
	existing.Set("legacyKey", "kept")
	require.NoError(t, r.Save(ctx, existing))

	updated, err := r.Update(ctx, settings.MapOf(
		"currencySymbol", "$",
		"defaultGSTRate", float64(12),
	))
	require.NoError(t, err)

	reloaded := r.Load(ctx)
	for _, m := range []*settings.Map{updated, reloaded} {
		v, _ := m.Get("showSavings")
		assert.Equal(t, false, v)
		v, _ = m.Get("autoPrint")
		assert.Equal(t, false, v)
		v, _ = m.Get("currencySymbol")
		assert.Equal(t, "$", v)
		v, _ = m.Get("defaultGSTRate")
		assert.EqualValues(t, 12, v)
		v, _ = m.Get("storeName")
		assert.Equal(t, "Corner Shop", v)
		v, _ = m.Get("legacyKey")
		assert.Equal(t, "kept", v)
	}
}

func TestRegistry_UpdateKeepsSubmittedCheckboxes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	updated, err := r.Update(ctx, settings.MapOf("autoPrint", true))
	require.NoError(t, err)

	v, _ := updated.Get("autoPrint")
	assert.Equal(t, true, v)
	v, _ = updated.Get("showSavings")
	assert.Equal(t, false, v)
	v, _ = updated.Get("storeName")
	assert.Equal(t, "My Store", v)
}

func TestRegistry_Reset(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	require.NoError(t, r.Save(ctx, settings.MapOf("storeName", "Corner Shop", "legacyKey", 1)))

	reset, err := r.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults().ToMap(), reset.ToMap())
	assert.Equal(t, settings.Defaults().ToMap(), r.Current().ToMap())

	raw, _, err := store.Get(ctx, kv.KeySettings)
	require.NoError(t, err)
	data, err := settings.Defaults().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(data), raw)
}

func TestRegistry_WithDefaults(t *testing.T) {
	storage, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	store := kv.New(zaptest.NewLogger(t), storage)
	r := settings.New(zaptest.NewLogger(t), store, settings.WithDefaults(settings.MapOf("theme", "dark")))

	assert.Equal(t, "dark", r.Get(context.Background(), "theme", nil))
	assert.Nil(t, r.Get(context.Background(), "storeName", nil))
}

func TestRegistry_ReplaceInMemoryCollection(t *testing.T) {
	r, _ := newTestRegistry(t)

	require.NoError(t, r.ReplaceInMemoryCollection(settings.MapOf("storeName", "Restored")))
	v, _ := r.Current().Get("storeName")
	assert.Equal(t, "Restored", v)
	assert.True(t, r.Current().Has("defaultGSTRate"))

	require.Error(t, r.ReplaceInMemoryCollection(map[string]any{"storeName": "x"}))
}

func TestMergeSubmission(t *testing.T) {
	defaults := settings.MapOf("name", "", "flag", true, "other", false)
	existing := settings.MapOf("name", "old", "flag", true, "other", true, "legacy", 1)

	merged := settings.MergeSubmission(defaults, existing, settings.MapOf("name", "new", "flag", true))
	assert.Equal(t, map[string]any{"name": "new", "flag": true, "other": false, "legacy": 1}, merged.ToMap())
	assert.Equal(t, []string{"name", "flag", "other", "legacy"}, merged.Keys())
}

func TestRegistry_InMemoryCollectionBeforeLoad(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	require.NoError(t, store.Set(ctx, kv.KeySettings, `{"storeName":"Corner Shop"}`))

	assert.False(t, r.Loaded())
	_, err := r.InMemoryCollection()
	require.ErrorIs(t, err, settings.ErrNotLoaded)

	r.Load(ctx)
	assert.True(t, r.Loaded())
	v, err := r.InMemoryCollection()
	require.NoError(t, err)
	m, ok := v.(*settings.Map)
	require.True(t, ok)
	storeName, _ := m.Get("storeName")
	assert.Equal(t, "Corner Shop", storeName)
}

func TestRegistry_SaveAndReplaceMarkLoaded(t *testing.T) {
	ctx := context.Background()

	r, _ := newTestRegistry(t)
	require.NoError(t, r.Save(ctx, settings.MapOf("storeName", "Saved")))
	assert.True(t, r.Loaded())

	r, _ = newTestRegistry(t)
	_, err := r.Reset(ctx)
	require.NoError(t, err)
	assert.True(t, r.Loaded())

	r, _ = newTestRegistry(t)
	require.NoError(t, r.ReplaceInMemoryCollection(settings.MapOf("storeName", "Restored")))
	assert.True(t, r.Loaded())
}
