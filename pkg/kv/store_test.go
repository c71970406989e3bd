package kv_test

import (
	"context"
	"testing"

	"github.com/foomo/posstore/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	storage, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	return kv.New(zaptest.NewLogger(t), storage)
}

func TestStore_GetMissingKey(t *testing.T) {
	s := newTestStore(t)

	value, ok, err := s.Get(context.Background(), kv.KeyProducts)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, kv.KeySettings, `{"storeName":"Corner Shop"}`))

	value, ok, err := s.Get(ctx, kv.KeySettings)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"storeName":"Corner Shop"}`, value)
}

func TestStore_SetEmptyValue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, kv.KeyUsers, ""))

	value, ok, err := s.Get(ctx, kv.KeyUsers)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, value)
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, kv.KeyBills, "[]"))
	require.NoError(t, s.Remove(ctx, kv.KeyBills))
	require.NoError(t, s.Remove(ctx, kv.KeyBills))

	_, ok, err := s.Get(ctx, kv.KeyBills)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_InvalidKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, key := range []string{"", "../etc", "a/b", `a\b`, ".."} {
		err := s.Set(ctx, key, "x")
		require.ErrorIs(t, err, kv.ErrInvalidKey, key)
		_, _, err = s.Get(ctx, key)
		require.ErrorIs(t, err, kv.ErrInvalidKey, key)
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, key := range append(kv.OwnedKeys, kv.KeyLastBackup) {
		require.NoError(t, s.Set(ctx, key, "value"))
	}
	require.NoError(t, s.Clear(ctx))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIsOwned(t *testing.T) {
	assert.True(t, kv.IsOwned(kv.KeyInventory))
	assert.False(t, kv.IsOwned(kv.KeyLastBackup))
	assert.False(t, kv.IsOwned("session"))
}

func TestIsCollection(t *testing.T) {
	for _, key := range []string{kv.KeyBills, kv.KeyProducts, kv.KeyInventory, kv.KeyUsers} {
		assert.True(t, kv.IsCollection(key), key)
		assert.True(t, kv.IsOwned(key), key)
	}
	for _, key := range []string{kv.KeySettings, kv.KeyLastBackup, "session", ""} {
		assert.False(t, kv.IsCollection(key), key)
	}
}
