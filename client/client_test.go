package client_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/foomo/posstore/client"
	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/handler"
	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/settings"
	"github.com/foomo/posstore/pkg/storage"
	"github.com/foomo/posstore/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const pathPosstore = "/posstore"

func TestInvalidHTTPClientInit(t *testing.T) {
	for _, server := range []string{"", "bogus", "htt:/notaurl", "htts://notaurl", "/path/segment/only", "http://"} {
		c, err := client.NewHTTPClient(server)
		assert.Nil(t, c, server)
		assert.Error(t, err, server)
	}
}

func newTestClient(t *testing.T) (*client.Client, *storage.Facade) {
	t.Helper()
	l := zaptest.NewLogger(t)
	data, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	historyStorage, err := kv.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	history, err := backup.NewHistory(l, backup.HistoryWithStorage(historyStorage))
	require.NoError(t, err)
	f := storage.New(l, data, storage.WithHistory(history))

	server := httptest.NewServer(handler.NewHTTP(l, f))
	c, err := client.NewHTTPClient(server.URL + pathPosstore)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.ShutDown()
		server.Close()
		_ = f.Close(context.Background())
	})
	return c, f
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	require.NoError(t, c.SaveCollection(ctx, kv.KeyProducts, []jsoniter.RawMessage{jsoniter.RawMessage(`{"id":1,"name":"Rice"}`)}))
	items, err := c.LoadCollection(ctx, kv.KeyProducts)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"id":1,"name":"Rice"}`, string(items[0]))

	require.NoError(t, c.SaveCollection(ctx, kv.KeyProducts, nil))
	items, err = c.LoadCollection(ctx, kv.KeyProducts)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	m, err := c.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults().Keys(), m.Keys())

	m, err = c.UpdateSettings(ctx, settings.MapOf("storeName", "Corner Shop", "theme", "dark"))
	require.NoError(t, err)
	v, _ := m.Get("theme")
	assert.Equal(t, "dark", v)
	v, _ = m.Get("roundOffTotals")
	assert.Equal(t, false, v)

	value, err := c.GetSetting(ctx, "storeName", nil)
	require.NoError(t, err)
	assert.Equal(t, "Corner Shop", value)

	value, err = c.GetSetting(ctx, "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)

	m, err = c.SaveSettings(ctx, settings.MapOf("storeName", "Saved"))
	require.NoError(t, err)
	v, _ = m.Get("storeName")
	assert.Equal(t, "Saved", v)

	m, err = c.ResetSettings(ctx)
	require.NoError(t, err)
	v, _ = m.Get("storeName")
	assert.Equal(t, "My Store", v)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	c, f := newTestClient(t)
	require.NoError(t, c.SaveCollection(ctx, kv.KeyBills, []jsoniter.RawMessage{jsoniter.RawMessage(`{"billNo":"INV-1"}`)}))

	name, data, err := c.Download(ctx, false)
	require.NoError(t, err)
	assert.Regexp(t, `^pos-backup-\d{4}-\d{2}-\d{2}\.json$`, name)

	require.NoError(t, c.SaveCollection(ctx, kv.KeyBills, nil))

	_, err = c.Import(ctx, data, false)
	var errReply *responses.Error
	require.ErrorAs(t, err, &errReply)
	assert.Equal(t, responses.CodeNotConfirmed, errReply.Code)
	assert.Empty(t, f.LoadBills(ctx))

	report, err := c.Import(ctx, data, true)
	require.NoError(t, err)
	assert.True(t, report.ReloadRequired)
	assert.Equal(t, backup.StatusRestored, report.Fields[backup.FieldBills].Status)
	assert.Len(t, f.LoadBills(ctx), 1)

	export, err := c.Export(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, string(backup.KindRaw), export.Kind)
	assert.NotEmpty(t, export.Backup)
}

func TestClearAndEnsureBackup(t *testing.T) {
	ctx := context.Background()
	c, f := newTestClient(t)
	require.NoError(t, c.SaveCollection(ctx, kv.KeyUsers, []jsoniter.RawMessage{jsoniter.RawMessage(`{"name":"admin"}`)}))

	response, err := c.EnsureBackup(ctx)
	require.NoError(t, err)
	assert.True(t, response.Created)
	assert.False(t, response.LastBackup.IsZero())

	response, err = c.EnsureBackup(ctx)
	require.NoError(t, err)
	assert.False(t, response.Created)

	cleared, err := c.Clear(ctx, false, "DELETE")
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.Len(t, f.Load(ctx, kv.KeyUsers), 1)

	cleared, err = c.Clear(ctx, true, "DELETE")
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Empty(t, f.Load(ctx, kv.KeyUsers))
}
