package requests

import (
	"github.com/foomo/posstore/pkg/settings"
	jsoniter "github.com/json-iterator/go"
)

// Collection - load or save a named collection (products, bills, inventory, users)
type Collection struct {
	Name string `json:"name"`
	// records to save, ignored when loading
	Items []jsoniter.RawMessage `json:"items,omitempty"`
}

// Setting - look up a single setting
type Setting struct {
	Key string `json:"key"`
	// returned when the key is neither persisted nor a default
	Fallback any `json:"fallback,omitempty"`
}

// Settings - save or update the settings, key order is kept
type Settings struct {
	Settings *settings.Map `json:"settings"`
}

// Export - create a backup
type Export struct {
	// dump every owned key undecoded instead of the typed snapshot
	Raw bool `json:"raw"`
}

// Import - restore a backup file
type Import struct {
	// the backup file
	Backup jsoniter.RawMessage `json:"backup"`
	// the user agreed to replace the current data
	Confirm bool `json:"confirm"`
}

// Clear - wipe all data, both steps must be answered
type Clear struct {
	Confirm bool   `json:"confirm"`
	Phrase  string `json:"phrase"`
}

// EnsureBackup - export when the last backup is older than the threshold
type EnsureBackup struct{}
