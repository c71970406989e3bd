package storage_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/confirm"
	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/records"
	"github.com/foomo/posstore/pkg/settings"
	"github.com/foomo/posstore/pkg/storage"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func newTestFacade(t *testing.T, opts ...storage.Option) (*storage.Facade, kv.Storage, *backup.History) {
	t.Helper()
	l := zaptest.NewLogger(t)
	data, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	historyStorage, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	history, err := backup.NewHistory(l, backup.HistoryWithStorage(historyStorage))
	require.NoError(t, err)

	f := storage.New(l, data, append([]storage.Option{storage.WithHistory(history)}, opts...)...)
	t.Cleanup(func() {
		_ = f.Close(context.Background())
	})
	return f, data, history
}

func seed(t *testing.T, f *storage.Facade) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.SaveProducts(ctx, []records.Record{records.Record(`{"id":1,"name":"Rice"}`)}))
	require.NoError(t, f.SaveBills(ctx, []records.Record{records.Record(`{"billNo":"INV-1"}`)}))
	require.NoError(t, f.Save(ctx, kv.KeyInventory, []records.Record{records.Record(`{"productId":1,"qty":4}`)}))
	_, err := f.UpdateSettings(ctx, settings.MapOf("storeName", "Corner Shop"))
	require.NoError(t, err)
}

func snapshotStorage(t *testing.T, s kv.Storage) map[string]string {
	t.Helper()
	ctx := context.Background()
	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	values := map[string]string{}
	for _, key := range keys {
		data, err := s.Read(ctx, key)
		require.NoError(t, err)
		values[key] = string(data)
	}
	return values
}

// scripted answers the yes/no question and the phrase prompt with fixed values.
type scripted struct {
	yes    bool
	phrase string
	ok     bool
}

func (s scripted) Confirm(context.Context, string) bool {
	return s.yes
}

func (s scripted) Prompt(context.Context, string) (string, bool) {
	return s.phrase, s.ok
}

func TestFacade_SaveLoad(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFacade(t)
	seed(t, f)

	products := f.LoadProducts(ctx)
	require.Len(t, products, 1)
	assert.JSONEq(t, `{"id":1,"name":"Rice"}`, string(products[0]))
	assert.Len(t, f.Load(ctx, kv.KeyInventory), 1)
	assert.Empty(t, f.Load(ctx, kv.KeyUsers))
	assert.Equal(t, "Corner Shop", f.Setting(ctx, "storeName", nil))
	assert.Equal(t, float64(5), f.Setting(ctx, "defaultGSTRate", nil))
	assert.Equal(t, "fallback", f.Setting(ctx, "unknown", "fallback"))
}

func TestFacade_SaveRejectsNonCollections(t *testing.T) {
	ctx := context.Background()
	f, data, _ := newTestFacade(t)
	seed(t, f)
	before := snapshotStorage(t, data)

	for _, name := range []string{kv.KeySettings, kv.KeyLastBackup, "session"} {
		err := f.Save(ctx, name, []records.Record{records.Record(`{}`)})
		require.ErrorIs(t, err, kv.ErrInvalidKey, name)
	}
	assert.Equal(t, before, snapshotStorage(t, data))
	assert.Equal(t, "Corner Shop", f.Setting(ctx, "storeName", nil))
}

func TestFacade_ClearAllRequiresBothSteps(t *testing.T) {
	tests := []struct {
		name      string
		confirmer confirm.Confirmer
	}{
		{name: "nil", confirmer: nil},
		{name: "declined", confirmer: scripted{yes: false, phrase: confirm.Phrase, ok: true}},
		{name: "wrong phrase", confirmer: scripted{yes: true, phrase: "delete", ok: true}},
		{name: "empty phrase", confirmer: scripted{yes: true, phrase: "", ok: true}},
		{name: "cancelled prompt", confirmer: scripted{yes: true, phrase: confirm.Phrase, ok: false}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			f, data, _ := newTestFacade(t)
			seed(t, f)
			before := snapshotStorage(t, data)

			cleared, err := f.ClearAll(ctx, test.confirmer)
			require.NoError(t, err)
			assert.False(t, cleared)
			assert.Equal(t, before, snapshotStorage(t, data))
		})
	}
}

func TestFacade_ClearAll(t *testing.T) {
	ctx := context.Background()
	f, data, _ := newTestFacade(t)
	seed(t, f)

	cleared, err := f.ClearAll(ctx, confirm.Yes(confirm.Phrase))
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Empty(t, snapshotStorage(t, data))
	assert.Empty(t, f.Products().Items(ctx))
	assert.Equal(t, "My Store", f.Settings().Current().ToMap()["storeName"])
}

func TestFacade_EnsureRecentBackup(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	f, _, history := newTestFacade(t, storage.WithClock(c.Now))

	ran, err := f.EnsureRecentBackup(ctx)
	require.NoError(t, err)
	assert.True(t, ran, "missing backup date")

	c.now = c.now.Add(23 * time.Hour)
	ran, err = f.EnsureRecentBackup(ctx)
	require.NoError(t, err)
	assert.False(t, ran, "recent backup")

	c.now = c.now.Add(2 * time.Hour)
	ran, err = f.EnsureRecentBackup(ctx)
	require.NoError(t, err)
	assert.True(t, ran, "stale backup")

	files, err := history.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pos-backup-2024-06-02.json", "pos-backup-2024-06-01.json"}, files)
}

func TestFacade_EnsureRecentBackupWithUnparsableDate(t *testing.T) {
	ctx := context.Background()
	f, data, _ := newTestFacade(t)
	require.NoError(t, data.Write(ctx, kv.KeyLastBackup, []byte("last tuesday")))

	ran, err := f.EnsureRecentBackup(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
}

func latestSnapshot(t *testing.T, history *backup.History) *backup.Snapshot {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, history.GetCurrent(context.Background(), &buf))
	s, err := backup.DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	return s
}

func TestFacade_AutoBackupOnSave(t *testing.T) {
	ctx := context.Background()
	f, _, history := newTestFacade(t, storage.WithAutoBackup(backup.PolicyAlways, 0))

	require.NoError(t, f.SaveBills(ctx, []records.Record{records.Record(`{"billNo":"INV-7"}`)}))
	assert.JSONEq(t, `[{"billNo":"INV-7"}]`, string(latestSnapshot(t, history).Bills))

	require.NoError(t, f.SaveProducts(ctx, []records.Record{records.Record(`{"id":1}`)}))
	require.NoError(t, f.SaveProducts(ctx, []records.Record{records.Record(`{"id":2}`)}))
	s := latestSnapshot(t, history)
	assert.JSONEq(t, `[{"id":2}]`, string(s.Products))
	assert.JSONEq(t, `[{"billNo":"INV-7"}]`, string(s.Bills))

	files, err := history.Files(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	_, ok := f.Backup().LastExport(ctx)
	assert.True(t, ok)
}

func TestFacade_DebouncedAutoBackupExportsLastSave(t *testing.T) {
	ctx := context.Background()
	f, _, history := newTestFacade(t, storage.WithAutoBackup(backup.PolicyDebounce, 20*time.Millisecond))

	for i := 1; i <= 3; i++ {
		require.NoError(t, f.SaveProducts(ctx, []records.Record{records.Record(fmt.Sprintf(`{"id":%d}`, i))}))
	}

	assert.Eventually(t, func() bool {
		if _, ok := f.Backup().LastExport(ctx); !ok {
			return false
		}
		var buf bytes.Buffer
		if err := history.GetCurrent(ctx, &buf); err != nil {
			return false
		}
		s, err := backup.DecodeBytes(buf.Bytes())
		if err != nil {
			return false
		}
		var products []struct {
			ID int `json:"id"`
		}
		return jsoniter.Unmarshal(s.Products, &products) == nil && len(products) == 1 && products[0].ID == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFacade_ExportFromFreshFacadeKeepsPersistedSettings(t *testing.T) {
	ctx := context.Background()
	f, data, _ := newTestFacade(t)
	seed(t, f)

	l := zaptest.NewLogger(t)
	historyStorage, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	history, err := backup.NewHistory(l, backup.HistoryWithStorage(historyStorage))
	require.NoError(t, err)
	fresh := storage.New(l, data, storage.WithHistory(history))

	export, err := fresh.Export(ctx, "cli")
	require.NoError(t, err)
	m := settings.NewMap()
	require.NoError(t, m.UnmarshalJSON(export.Snapshot.Settings))
	storeName, _ := m.Get("storeName")
	assert.Equal(t, "Corner Shop", storeName)
	assert.JSONEq(t, `[{"id":1,"name":"Rice"}]`, string(export.Snapshot.Products))
}

func TestFacade_RestoreDoesNotTriggerAutoBackup(t *testing.T) {
	ctx := context.Background()
	f, data, _ := newTestFacade(t, storage.WithAutoBackup(backup.PolicyAlways, 0))

	report, err := f.Import(ctx, strings.NewReader(`{"products":[{"id":2}]}`), confirm.Yes(""))
	require.NoError(t, err)
	assert.Equal(t, []string{"products"}, report.Restored())
	assert.Len(t, f.Products().Items(ctx), 1)

	_, err = data.Read(ctx, kv.KeyLastBackup)
	assert.Error(t, err)
}

func TestFacade_ImportLatest(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newTestFacade(t)
	seed(t, f)

	_, err := f.Export(ctx, "test")
	require.NoError(t, err)
	require.NoError(t, f.SaveProducts(ctx, nil))

	report, err := f.ImportLatest(ctx, confirm.Yes(""))
	require.NoError(t, err)
	assert.Contains(t, report.Restored(), "products")
	assert.Len(t, f.LoadProducts(ctx), 1)
}

func TestFacade_StartRunsInitialCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f, _, _ := newTestFacade(t, storage.WithCheckInterval(time.Hour))
	loaded := make(chan struct{})
	f.OnLoaded(func() { close(loaded) })

	done := make(chan error, 1)
	go func() {
		done <- f.Start(ctx)
	}()

	select {
	case <-loaded:
	case <-time.After(5 * time.Second):
		t.Fatal("state not loaded")
	}
	assert.Eventually(t, func() bool {
		_, ok := f.Backup().LastExport(context.Background())
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, f.Loaded())

	cancel()
	require.NoError(t, <-done)
}
