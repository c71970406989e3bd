package backup

import (
	"bytes"
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	ErrInvalidSnapshot = errors.New("invalid backup file")
)

// Version of the snapshot format written by this package.
const Version = "1.0"

// Typed snapshot fields.
const (
	FieldProducts = "products"
	FieldBills    = "bills"
	FieldSettings = "settings"
)

// DefaultFilePrefix names exported backup files.
const DefaultFilePrefix = "pos-backup"

// timestampLayout matches ISO-8601 instants with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Kind distinguishes typed snapshots from raw whole-store dumps.
type Kind string

const (
	KindTyped Kind = "typed"
	KindRaw   Kind = "raw"
)

// Snapshot is a point-in-time bundle of the application state. Payloads stay
// undecoded until they are applied so that every field is validated on its own.
type Snapshot struct {
	Version   string
	Timestamp time.Time
	// typed payload
	Products jsoniter.RawMessage
	Bills    jsoniter.RawMessage
	Settings jsoniter.RawMessage
	// raw payload, key to JSON string or null
	Data map[string]jsoniter.RawMessage
}

type typedFile struct {
	Version   string              `json:"version"`
	Timestamp string              `json:"timestamp"`
	Products  jsoniter.RawMessage `json:"products,omitempty"`
	Bills     jsoniter.RawMessage `json:"bills,omitempty"`
	Settings  jsoniter.RawMessage `json:"settings,omitempty"`
}

type rawFile struct {
	Timestamp string                         `json:"timestamp"`
	Version   string                         `json:"version"`
	Data      map[string]jsoniter.RawMessage `json:"data"`
}

type anyFile struct {
	Version   jsoniter.RawMessage `json:"version"`
	Timestamp jsoniter.RawMessage `json:"timestamp"`
	Products  jsoniter.RawMessage `json:"products"`
	Bills     jsoniter.RawMessage `json:"bills"`
	Settings  jsoniter.RawMessage `json:"settings"`
	Data      jsoniter.RawMessage `json:"data"`
}

// Kind reports the payload shape.
func (s *Snapshot) Kind() Kind {
	if s.Data != nil {
		return KindRaw
	}
	return KindTyped
}

// FileName derives the export file name from the creation timestamp.
func (s *Snapshot) FileName(prefix string) string {
	return FileName(prefix, s.Timestamp)
}

// FileName returns prefix-YYYY-MM-DD.json for t in UTC.
func FileName(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	return prefix + "-" + t.UTC().Format(time.DateOnly) + ".json"
}

// Encode serializes the snapshot as indented JSON in its file format.
func Encode(s *Snapshot) ([]byte, error) {
	var v any
	timestamp := s.Timestamp.UTC().Format(timestampLayout)
	if s.Kind() == KindRaw {
		v = rawFile{
			Timestamp: timestamp,
			Version:   s.Version,
			Data:      s.Data,
		}
	} else {
		v = typedFile{
			Version:   s.Version,
			Timestamp: timestamp,
			Products:  s.Products,
			Bills:     s.Bills,
			Settings:  s.Settings,
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot")
	}
	return data, nil
}

// Decode parses a backup file. It only checks the envelope: the file must be
// a JSON object with at least one known payload field. Payload fields are
// validated when the snapshot is applied.
func Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read backup file")
	}
	return DecodeBytes(data)
}

func DecodeBytes(data []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.Wrap(ErrInvalidSnapshot, "not a JSON object")
	}

	var f anyFile
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "malformed JSON: %s", err)
	}

	s := &Snapshot{
		Version:   parseVersion(f.Version),
		Timestamp: parseTimestamp(f.Timestamp),
	}

	if present(f.Data) {
		data := map[string]jsoniter.RawMessage{}
		if err := json.Unmarshal(f.Data, &data); err != nil || data == nil {
			return nil, errors.Wrap(ErrInvalidSnapshot, "data must be an object of stored values")
		}
		s.Data = data
		return s, nil
	}

	if !present(f.Products) && !present(f.Bills) && !present(f.Settings) {
		return nil, errors.Wrap(ErrInvalidSnapshot, "no products, bills, settings or data found")
	}
	s.Products = nonNull(f.Products)
	s.Bills = nonNull(f.Bills)
	s.Settings = nonNull(f.Settings)
	return s, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

// parseVersion accepts "1.0" as well as a bare number 1.0.
func parseVersion(raw jsoniter.RawMessage) string {
	var value string
	if err := json.Unmarshal(raw, &value); err == nil {
		return value
	}
	var number jsoniter.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return number.String()
	}
	return ""
}

func parseTimestamp(raw jsoniter.RawMessage) time.Time {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func present(raw jsoniter.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func nonNull(raw jsoniter.RawMessage) jsoniter.RawMessage {
	if !present(raw) {
		return nil
	}
	return raw
}
