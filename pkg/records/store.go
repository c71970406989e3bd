package records

import (
	"context"
	"sync"

	"github.com/foomo/posstore/pkg/kv"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one opaque JSON value of a collection. The store never looks inside.
type Record = jsoniter.RawMessage

// SaveHook is notified after a collection was written successfully.
type SaveHook func(ctx context.Context, collection string)

type (
	// Store reads and writes named record collections.
	Store struct {
		l      *zap.Logger
		kv     *kv.Store
		hooks  []SaveHook
		hookMu sync.RWMutex
	}
	Option func(*Store)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithOnSave(v SaveHook) Option {
	return func(o *Store) {
		o.hooks = append(o.hooks, v)
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, store *kv.Store, opts ...Option) *Store {
	inst := &Store{
		l:  l.Named("records"),
		kv: store,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// OnSave registers an additional save hook.
func (s *Store) OnSave(fn SaveHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Save writes the collection and notifies the save hooks.
func (s *Store) Save(ctx context.Context, collection string, records []Record) error {
	if err := s.Replace(ctx, collection, records); err != nil {
		return err
	}
	s.notify(ctx, collection)
	return nil
}

// Replace writes the collection without notifying the save hooks.
func (s *Store) Replace(ctx context.Context, collection string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize collection %q", collection)
	} else if !json.Valid(data) {
		return errors.Errorf("collection %q contains invalid JSON records", collection)
	}
	if err := s.kv.Set(ctx, collection, string(data)); err != nil {
		return errors.Wrapf(err, "failed to write collection %q", collection)
	}
	s.l.Debug("collection written", zap.String("collection", collection), zap.Int("count", len(records)))
	return nil
}

// Load returns the stored collection, or an empty one when it is absent,
// unreadable or unparsable.
func (s *Store) Load(ctx context.Context, collection string) []Record {
	raw, ok, err := s.kv.Get(ctx, collection)
	if err != nil {
		s.l.Warn("failed to read collection", zap.String("collection", collection), zap.Error(err))
		return []Record{}
	} else if !ok {
		return []Record{}
	}

	records, err := Decode([]byte(raw))
	if err != nil {
		s.l.Warn("failed to parse collection", zap.String("collection", collection), zap.Error(err))
		return []Record{}
	}
	return records
}

// Clear removes the collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	return s.kv.Remove(ctx, collection)
}

// Decode parses a JSON array into records. null decodes to an empty collection.
func Decode(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "collection must be a JSON array")
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (s *Store) notify(ctx context.Context, collection string) {
	s.hookMu.RLock()
	hooks := append([]SaveHook(nil), s.hooks...)
	s.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, collection)
	}
}
