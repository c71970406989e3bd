package backup

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Status of one snapshot field after a restore.
type Status string

const (
	StatusRestored Status = "restored"
	StatusSkipped  Status = "skipped"
	StatusAbsent   Status = "absent"
)

// FieldResult describes the outcome for one field or raw key.
type FieldResult struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	// MemorySync holds the error of the best-effort in-memory update, if any
	MemorySync string `json:"memorySync,omitempty"`
}

// Report is the structured result of applying a snapshot.
type Report struct {
	RunID   string                 `json:"runId"`
	Kind    Kind                   `json:"kind"`
	Version string                 `json:"version"`
	Fields  map[string]FieldResult `json:"fields"`
	// ReloadRequired tells the caller to reload the application state from scratch
	ReloadRequired bool `json:"reloadRequired"`
}

func newReport(runID string, s *Snapshot) *Report {
	return &Report{
		RunID:   runID,
		Kind:    s.Kind(),
		Version: s.Version,
		Fields:  map[string]FieldResult{},
	}
}

func (r *Report) restored(field string) {
	r.Fields[field] = FieldResult{Status: StatusRestored}
	r.ReloadRequired = true
}

func (r *Report) skipped(field, reason string) {
	r.Fields[field] = FieldResult{Status: StatusSkipped, Reason: reason}
}

func (r *Report) absent(field string) {
	r.Fields[field] = FieldResult{Status: StatusAbsent}
}

func (r *Report) memorySyncFailed(field string, err error) {
	result := r.Fields[field]
	result.MemorySync = err.Error()
	r.Fields[field] = result
}

// Restored lists the restored fields in alphabetical order.
func (r *Report) Restored() []string {
	return r.with(StatusRestored)
}

// Skipped lists the skipped fields in alphabetical order.
func (r *Report) Skipped() []string {
	return r.with(StatusSkipped)
}

// Err aggregates the reasons of all skipped fields, nil if none was skipped.
func (r *Report) Err() error {
	var err error
	for _, field := range r.Skipped() {
		err = multierr.Append(err, errors.Errorf("%s: %s", field, r.Fields[field].Reason))
	}
	return err
}

func (r *Report) with(status Status) []string {
	var fields []string
	for field, result := range r.Fields {
		if result.Status == status {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}
