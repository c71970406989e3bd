package handler

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Route type
type Route string

const (
	// RouteLoadCollection load a named collection
	RouteLoadCollection Route = "loadCollection"
	// RouteSaveCollection replace a named collection
	RouteSaveCollection Route = "saveCollection"
	// RouteGetSettings get the reconciled settings
	RouteGetSettings Route = "getSettings"
	// RouteGetSetting get a single setting
	RouteGetSetting Route = "getSetting"
	// RouteSaveSettings store settings as they are
	RouteSaveSettings Route = "saveSettings"
	// RouteUpdateSettings apply a settings form submission
	RouteUpdateSettings Route = "updateSettings"
	// RouteResetSettings restore the default settings
	RouteResetSettings Route = "resetSettings"
	// RouteExport create a backup and return it in the reply
	RouteExport Route = "export"
	// RouteDownload create a backup and return the bare file
	RouteDownload Route = "download"
	// RouteImport restore a backup
	RouteImport Route = "import"
	// RouteClear wipe all data
	RouteClear Route = "clear"
	// RouteEnsureBackup export when the last backup is too old
	RouteEnsureBackup Route = "ensureBackup"
)

const (
	sourceWebserver    = "webserver"
	sourceSocketServer = "socketserver"
	// TriggerAPI labels exports requested through the api
	TriggerAPI = "api"
)
