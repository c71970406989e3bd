package client

import (
	"context"
	"errors"

	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/handler"
	"github.com/foomo/posstore/pkg/settings"
	"github.com/foomo/posstore/pkg/utils"
	"github.com/foomo/posstore/requests"
	"github.com/foomo/posstore/responses"
	jsoniter "github.com/json-iterator/go"
)

// Client a posstore client
type Client struct {
	t transport
}

func NewHTTPClient(server string, opts ...HTTPTransportOption) (c *Client, err error) {
	if !utils.IsValidUrl(server) {
		return nil, errors.New("invalid server url: " + server)
	}
	return New(NewHTTPTransport(server, opts...)), nil
}

func New(t transport) *Client {
	return &Client{
		t: t,
	}
}

// LoadCollection get the records of a named collection
func (c *Client) LoadCollection(ctx context.Context, name string) ([]jsoniter.RawMessage, error) {
	response := &responses.Collection{}
	if err := c.t.call(ctx, handler.RouteLoadCollection, &requests.Collection{Name: name}, response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// SaveCollection replace the records of a named collection
func (c *Client) SaveCollection(ctx context.Context, name string, items []jsoniter.RawMessage) error {
	if items == nil {
		items = []jsoniter.RawMessage{}
	}
	return c.t.call(ctx, handler.RouteSaveCollection, &requests.Collection{Name: name, Items: items}, &responses.Collection{})
}

// GetSettings get all settings
func (c *Client) GetSettings(ctx context.Context) (*settings.Map, error) {
	response := settings.NewMap()
	if err := c.t.call(ctx, handler.RouteGetSettings, struct{}{}, response); err != nil {
		return nil, err
	}
	return response, nil
}

// GetSetting get a single setting or fallback
func (c *Client) GetSetting(ctx context.Context, key string, fallback any) (any, error) {
	response := &responses.Setting{}
	if err := c.t.call(ctx, handler.RouteGetSetting, &requests.Setting{Key: key, Fallback: fallback}, response); err != nil {
		return nil, err
	}
	return response.Value, nil
}

// SaveSettings store the settings as they are
func (c *Client) SaveSettings(ctx context.Context, m *settings.Map) (*settings.Map, error) {
	return c.settingsCall(ctx, handler.RouteSaveSettings, m)
}

// UpdateSettings submit a settings form, absent checkboxes turn false
func (c *Client) UpdateSettings(ctx context.Context, submitted *settings.Map) (*settings.Map, error) {
	return c.settingsCall(ctx, handler.RouteUpdateSettings, submitted)
}

// ResetSettings restore the default settings
func (c *Client) ResetSettings(ctx context.Context) (*settings.Map, error) {
	response := settings.NewMap()
	if err := c.t.call(ctx, handler.RouteResetSettings, struct{}{}, response); err != nil {
		return nil, err
	}
	return response, nil
}

// Export create a backup
func (c *Client) Export(ctx context.Context, raw bool) (*responses.Export, error) {
	response := &responses.Export{}
	if err := c.t.call(ctx, handler.RouteExport, &requests.Export{Raw: raw}, response); err != nil {
		return nil, err
	}
	return response, nil
}

// Download create a backup and return its file name and contents
func (c *Client) Download(ctx context.Context, raw bool) (string, []byte, error) {
	return c.t.download(ctx, handler.RouteDownload, &requests.Export{Raw: raw})
}

// Import restore a backup file
func (c *Client) Import(ctx context.Context, backupFile []byte, confirm bool) (*backup.Report, error) {
	response := &backup.Report{}
	if err := c.t.call(ctx, handler.RouteImport, &requests.Import{Backup: backupFile, Confirm: confirm}, response); err != nil {
		return nil, err
	}
	return response, nil
}

// Clear wipe all data, phrase must be DELETE
func (c *Client) Clear(ctx context.Context, confirm bool, phrase string) (bool, error) {
	response := &responses.Clear{}
	if err := c.t.call(ctx, handler.RouteClear, &requests.Clear{Confirm: confirm, Phrase: phrase}, response); err != nil {
		return false, err
	}
	return response.Cleared, nil
}

// EnsureBackup export when the last backup is too old
func (c *Client) EnsureBackup(ctx context.Context) (*responses.EnsureBackup, error) {
	response := &responses.EnsureBackup{}
	if err := c.t.call(ctx, handler.RouteEnsureBackup, &requests.EnsureBackup{}, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) ShutDown() {
	c.t.shutdown()
}

func (c *Client) settingsCall(ctx context.Context, route handler.Route, m *settings.Map) (*settings.Map, error) {
	response := settings.NewMap()
	if err := c.t.call(ctx, route, &requests.Settings{Settings: m}, response); err != nil {
		return nil, err
	}
	return response, nil
}
