package responses

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Collection - the records of a named collection
type Collection struct {
	Name  string                `json:"name"`
	Items []jsoniter.RawMessage `json:"items"`
}

// Setting - a single resolved setting
type Setting struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Export - a created backup
type Export struct {
	// file name, e.g. pos-backup-2024-01-31.json
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	// the backup file
	Backup jsoniter.RawMessage `json:"backup"`
}

// Clear - outcome of a clear request
type Clear struct {
	Cleared bool `json:"cleared"`
}

// EnsureBackup - outcome of a backup age check
type EnsureBackup struct {
	Created bool `json:"created"`
	// zero when no backup was ever made
	LastBackup time.Time `json:"lastBackup"`
}
