package backup

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/foomo/posstore/pkg/confirm"
	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/metrics"
	"github.com/foomo/posstore/pkg/records"
	"github.com/foomo/posstore/pkg/settings"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNotConfirmed = errors.New("restore not confirmed")

// Holder is implemented by domain managers that keep a collection in memory.
// Products and bills hold []records.Record, settings hold *settings.Map.
type Holder interface {
	InMemoryCollection() (any, error)
	ReplaceInMemoryCollection(v any) error
}

// Export is a serialized snapshot ready to be downloaded.
type Export struct {
	Name     string
	Data     []byte
	Snapshot *Snapshot
}

// ImportResult is delivered once by ImportAsync.
type ImportResult struct {
	Report *Report
	Err    error
}

type (
	Service struct {
		l          *zap.Logger
		kv         *kv.Store
		records    *records.Store
		settings   *settings.Registry
		holders    map[string]Holder
		history    *History
		filePrefix string
		now        func() time.Time
	}
	Option func(*Service)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// WithHolder registers the in-memory holder of field (products, bills, settings).
func WithHolder(field string, h Holder) Option {
	return func(o *Service) {
		o.holders[field] = h
	}
}

// WithHistory stores every export in h.
func WithHistory(h *History) Option {
	return func(o *Service) {
		o.history = h
	}
}

func WithFilePrefix(v string) Option {
	return func(o *Service) {
		o.filePrefix = v
	}
}

func WithClock(v func() time.Time) Option {
	return func(o *Service) {
		o.now = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, store *kv.Store, recordStore *records.Store, registry *settings.Registry, opts ...Option) *Service {
	inst := &Service{
		l:          l.Named("backup"),
		kv:         store,
		records:    recordStore,
		settings:   registry,
		holders:    map[string]Holder{},
		filePrefix: DefaultFilePrefix,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(inst)
	}

	if inst.history != nil && inst.filePrefix == DefaultFilePrefix {
		inst.filePrefix = inst.history.Prefix()
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Build creates a typed snapshot. Each domain is collected on its own: the
// in-memory holder is preferred and the persisted copy is used whenever the
// holder is missing, fails or holds an unexpected container.
func (s *Service) Build(ctx context.Context) *Snapshot {
	snapshot := &Snapshot{
		Version:   Version,
		Timestamp: s.now(),
		Products:  s.marshalField(FieldProducts, s.collectRecords(ctx, FieldProducts), "[]"),
		Bills:     s.marshalField(FieldBills, s.collectRecords(ctx, FieldBills), "[]"),
		Settings:  s.marshalField(FieldSettings, s.collectSettings(ctx), "{}"),
	}
	metrics.SnapshotsCreatedCounter.WithLabelValues(string(KindTyped)).Inc()
	return snapshot
}

// Dump creates a raw snapshot holding the undecoded contents of every owned key.
// Absent or unreadable keys are stored as null.
func (s *Service) Dump(ctx context.Context) *Snapshot {
	data := make(map[string]jsoniter.RawMessage, len(kv.OwnedKeys))
	for _, key := range kv.OwnedKeys {
		data[key] = jsoniter.RawMessage("null")
		value, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			s.l.Warn("failed to read key for dump", zap.String("key", key), zap.Error(err))
			continue
		} else if !ok {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			s.l.Warn("failed to encode key for dump", zap.String("key", key), zap.Error(err))
			continue
		}
		data[key] = encoded
	}
	metrics.SnapshotsCreatedCounter.WithLabelValues(string(KindRaw)).Inc()
	return &Snapshot{
		Version:   Version,
		Timestamp: s.now(),
		Data:      data,
	}
}

// Export builds a typed snapshot, encodes it and hands it to the history.
func (s *Service) Export(ctx context.Context, trigger string) (*Export, error) {
	return s.export(ctx, trigger, s.Build)
}

// ExportRaw is Export for a raw whole-store dump.
func (s *Service) ExportRaw(ctx context.Context, trigger string) (*Export, error) {
	return s.export(ctx, trigger, s.Dump)
}

// LastExport returns the time of the last successful export.
func (s *Service) LastExport(ctx context.Context) (time.Time, bool) {
	value, ok, err := s.kv.Get(ctx, kv.KeyLastBackup)
	if err != nil {
		s.l.Warn("failed to read last backup date", zap.Error(err))
		return time.Time{}, false
	} else if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		s.l.Warn("invalid last backup date", zap.String("value", value), zap.Error(err))
		return time.Time{}, false
	}
	return t, true
}

// Apply replaces the stored state with the snapshot once c confirms. Fields
// are restored independently; invalid ones are skipped and reported.
func (s *Service) Apply(ctx context.Context, snapshot *Snapshot, c confirm.Confirmer) (*Report, error) {
	if snapshot == nil {
		return nil, ErrInvalidSnapshot
	}
	message := fmt.Sprintf("Restore the backup from %s? This replaces all current data.", snapshot.Timestamp.Format(time.DateTime))
	if c == nil || !c.Confirm(ctx, message) {
		s.l.Info("restore declined")
		return nil, ErrNotConfirmed
	}

	report := newReport(uuid.New().String(), snapshot)
	l := s.l.With(zap.String("run_id", report.RunID), zap.String("kind", string(report.Kind)))
	if snapshot.Version != Version {
		l.Warn("unexpected snapshot version", zap.String("version", snapshot.Version))
	}

	l.Info("restore started")
	if snapshot.Kind() == KindRaw {
		s.applyRaw(ctx, l, snapshot, report)
	} else {
		s.applyTyped(ctx, l, snapshot, report)
	}

	for field, result := range report.Fields {
		metrics.RestoreFieldCounter.WithLabelValues(field, string(result.Status)).Inc()
	}
	l.Info("restore finished",
		zap.Strings("restored", report.Restored()),
		zap.Strings("skipped", report.Skipped()),
	)
	return report, nil
}

// Import decodes a backup file and applies it.
func (s *Service) Import(ctx context.Context, r io.Reader, c confirm.Confirmer) (*Report, error) {
	snapshot, err := Decode(r)
	if err != nil {
		s.l.Warn("rejected backup file", zap.Error(err))
		return nil, err
	}
	return s.Apply(ctx, snapshot, c)
}

// ImportAsync runs Import in the background. Concurrent imports are not
// serialized; the last write wins.
func (s *Service) ImportAsync(ctx context.Context, r io.Reader, c confirm.Confirmer) <-chan ImportResult {
	done := make(chan ImportResult, 1)
	go func() {
		defer close(done)
		report, err := s.Import(context.WithoutCancel(ctx), r, c)
		done <- ImportResult{Report: report, Err: err}
	}()
	return done
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (s *Service) export(ctx context.Context, trigger string, build func(context.Context) *Snapshot) (*Export, error) {
	start := time.Now()
	snapshot := build(ctx)
	l := s.l.With(zap.String("trigger", trigger), zap.String("kind", string(snapshot.Kind())))

	data, err := Encode(snapshot)
	if err != nil {
		metrics.ExportsFailedCounter.WithLabelValues(trigger).Inc()
		l.Error("failed to encode snapshot", zap.Error(err))
		return nil, err
	}

	export := &Export{
		Name:     snapshot.FileName(s.filePrefix),
		Data:     data,
		Snapshot: snapshot,
	}

	if s.history != nil {
		if err := s.history.Add(ctx, export.Name, data); err != nil {
			metrics.HistoryPersistFailedCounter.WithLabelValues().Inc()
			metrics.ExportsFailedCounter.WithLabelValues(trigger).Inc()
			l.Error("could not persist export in history", zap.Error(err))
			return nil, err
		}
	}

	if err := s.kv.Set(ctx, kv.KeyLastBackup, snapshot.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		l.Warn("failed to record last backup date", zap.Error(err))
	}

	metrics.ExportsCompletedCounter.WithLabelValues(string(snapshot.Kind()), trigger).Inc()
	metrics.ExportDuration.WithLabelValues(string(snapshot.Kind())).Observe(time.Since(start).Seconds())
	l.Info("export created", zap.String("name", export.Name), zap.Int("size", len(data)))
	return export, nil
}

func (s *Service) collectRecords(ctx context.Context, field string) []records.Record {
	if v, err := s.inMemory(field); err != nil {
		s.l.Debug("in-memory collection unavailable", zap.String("domain", field), zap.Error(err))
	} else if items, ok := v.([]records.Record); ok && items != nil {
		return items
	} else {
		s.l.Warn("unexpected in-memory container", zap.String("domain", field), zap.String("type", fmt.Sprintf("%T", v)))
	}
	metrics.FallbackReadCounter.WithLabelValues(field).Inc()
	return s.records.Load(ctx, field)
}

func (s *Service) collectSettings(ctx context.Context) *settings.Map {
	if v, err := s.inMemory(FieldSettings); err != nil {
		s.l.Debug("in-memory settings unavailable", zap.Error(err))
	} else if m, ok := v.(*settings.Map); ok && m != nil {
		return m
	} else {
		s.l.Warn("unexpected in-memory container", zap.String("domain", FieldSettings), zap.String("type", fmt.Sprintf("%T", v)))
	}
	metrics.FallbackReadCounter.WithLabelValues(FieldSettings).Inc()
	return s.settings.Load(ctx)
}

// inMemory asks the holder of field, converting a panic into an error.
func (s *Service) inMemory(field string) (v any, err error) {
	h, ok := s.holders[field]
	if !ok || h == nil {
		return nil, errors.New("no holder registered")
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, errors.Errorf("holder panicked: %v", r)
		}
	}()
	return h.InMemoryCollection()
}

// syncMemory hands a restored value to the holder of field, converting a
// panic into an error.
func (s *Service) syncMemory(field string, value any) (err error) {
	h, ok := s.holders[field]
	if !ok || h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("holder panicked: %v", r)
		}
	}()
	return h.ReplaceInMemoryCollection(value)
}

func (s *Service) marshalField(field string, v any, empty string) jsoniter.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		s.l.Error("failed to serialize domain, using empty value", zap.String("domain", field), zap.Error(err))
		return jsoniter.RawMessage(empty)
	}
	return data
}

func (s *Service) applyTyped(ctx context.Context, l *zap.Logger, snapshot *Snapshot, report *Report) {
	for _, field := range []string{FieldProducts, FieldBills} {
		raw := fieldPayload(snapshot, field)
		if raw == nil {
			report.absent(field)
			continue
		}
		items, err := records.Decode(raw)
		if err != nil {
			l.Warn("skipping invalid field", zap.String("field", field), zap.Error(err))
			report.skipped(field, "expected an array of records")
			continue
		}
		if err := s.records.Replace(ctx, field, items); err != nil {
			l.Error("failed to restore field", zap.String("field", field), zap.Error(err))
			report.skipped(field, err.Error())
			continue
		}
		report.restored(field)
		if err := s.syncMemory(field, items); err != nil {
			l.Warn("failed to update in-memory collection", zap.String("field", field), zap.Error(err))
			report.memorySyncFailed(field, err)
		}
	}

	if snapshot.Settings == nil {
		report.absent(FieldSettings)
		return
	}
	m := settings.NewMap()
	if err := m.UnmarshalJSON(snapshot.Settings); err != nil {
		l.Warn("skipping invalid field", zap.String("field", FieldSettings), zap.Error(err))
		report.skipped(FieldSettings, "expected an object of settings")
		return
	}
	if err := s.settings.Save(ctx, m); err != nil {
		l.Error("failed to restore field", zap.String("field", FieldSettings), zap.Error(err))
		report.skipped(FieldSettings, err.Error())
		return
	}
	report.restored(FieldSettings)
	if err := s.syncMemory(FieldSettings, m); err != nil {
		l.Warn("failed to update in-memory settings", zap.Error(err))
		report.memorySyncFailed(FieldSettings, err)
	}
}

func (s *Service) applyRaw(ctx context.Context, l *zap.Logger, snapshot *Snapshot, report *Report) {
	keys := make([]string, 0, len(snapshot.Data))
	for key := range snapshot.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !kv.IsOwned(key) {
			l.Warn("skipping unknown key", zap.String("key", key))
			report.skipped(key, "not an application key")
			continue
		}
		raw := snapshot.Data[key]
		if !present(raw) {
			if err := s.kv.Remove(ctx, key); err != nil {
				l.Error("failed to remove key", zap.String("key", key), zap.Error(err))
				report.skipped(key, err.Error())
				continue
			}
			report.restored(key)
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			l.Warn("skipping non-string value", zap.String("key", key), zap.Error(err))
			report.skipped(key, "expected a string or null")
			continue
		}
		if err := s.kv.Set(ctx, key, value); err != nil {
			l.Error("failed to restore key", zap.String("key", key), zap.Error(err))
			report.skipped(key, err.Error())
			continue
		}
		report.restored(key)
	}

	// refresh the holders from what is stored now
	for _, field := range []string{FieldProducts, FieldBills} {
		if report.Fields[field].Status != StatusRestored {
			continue
		}
		if err := s.syncMemory(field, s.records.Load(ctx, field)); err != nil {
			l.Warn("failed to update in-memory collection", zap.String("field", field), zap.Error(err))
			report.memorySyncFailed(field, err)
		}
	}
	if report.Fields[FieldSettings].Status == StatusRestored {
		if err := s.syncMemory(FieldSettings, s.settings.Load(ctx)); err != nil {
			l.Warn("failed to update in-memory settings", zap.Error(err))
			report.memorySyncFailed(FieldSettings, err)
		}
	}
}

func fieldPayload(snapshot *Snapshot, field string) jsoniter.RawMessage {
	switch field {
	case FieldProducts:
		return snapshot.Products
	case FieldBills:
		return snapshot.Bills
	default:
		return nil
	}
}
