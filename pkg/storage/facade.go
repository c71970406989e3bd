// Package storage is the single entry point domain code uses to persist and
// back up the point-of-sale state.
package storage

import (
	"bytes"
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/confirm"
	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/records"
	"github.com/foomo/posstore/pkg/settings"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// TriggerStale labels exports started because the last one got too old.
	TriggerStale = "stale"

	clearMessage = "This permanently deletes all products, bills, inventory, users and settings. Continue?"
)

type (
	Facade struct {
		l             *zap.Logger
		kv            *kv.Store
		records       *records.Store
		settings      *settings.Registry
		products      *records.Collection
		bills         *records.Collection
		backup        *backup.Service
		auto          *backup.AutoBackup
		history       *backup.History
		autoPolicy    backup.Policy
		autoDelay     time.Duration
		staleAfter    time.Duration
		checkInterval time.Duration
		defaults      *settings.Map
		filePrefix    string
		now           func() time.Time
		loaded        *atomic.Bool
		onLoaded      func()
	}
	Option func(*Facade)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// WithHistory keeps every export in h.
func WithHistory(h *backup.History) Option {
	return func(o *Facade) {
		o.history = h
	}
}

func WithAutoBackup(policy backup.Policy, delay time.Duration) Option {
	return func(o *Facade) {
		o.autoPolicy = policy
		o.autoDelay = delay
	}
}

// WithStaleAfter sets the age after which EnsureRecentBackup exports again.
func WithStaleAfter(v time.Duration) Option {
	return func(o *Facade) {
		o.staleAfter = v
	}
}

func WithCheckInterval(v time.Duration) Option {
	return func(o *Facade) {
		o.checkInterval = v
	}
}

func WithDefaults(v *settings.Map) Option {
	return func(o *Facade) {
		o.defaults = v
	}
}

func WithFilePrefix(v string) Option {
	return func(o *Facade) {
		o.filePrefix = v
	}
}

func WithClock(v func() time.Time) Option {
	return func(o *Facade) {
		o.now = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, storage kv.Storage, opts ...Option) *Facade {
	inst := &Facade{
		l:             l.Named("storage"),
		autoPolicy:    backup.PolicyOff,
		staleAfter:    24 * time.Hour,
		checkInterval: time.Hour,
		now:           time.Now,
		loaded:        &atomic.Bool{},
	}

	for _, opt := range opts {
		opt(inst)
	}

	inst.kv = kv.New(l, storage)
	inst.records = records.New(l, inst.kv)

	var settingsOpts []settings.Option
	if inst.defaults != nil {
		settingsOpts = append(settingsOpts, settings.WithDefaults(inst.defaults))
	}
	inst.settings = settings.New(l, inst.kv, settingsOpts...)
	inst.products = records.NewCollection(kv.KeyProducts, inst.records)
	inst.bills = records.NewCollection(kv.KeyBills, inst.records)

	backupOpts := []backup.Option{
		backup.WithHolder(backup.FieldProducts, inst.products),
		backup.WithHolder(backup.FieldBills, inst.bills),
		backup.WithHolder(backup.FieldSettings, inst.settings),
		backup.WithClock(inst.now),
	}
	if inst.history != nil {
		backupOpts = append(backupOpts, backup.WithHistory(inst.history))
	}
	if inst.filePrefix != "" {
		backupOpts = append(backupOpts, backup.WithFilePrefix(inst.filePrefix))
	}
	inst.backup = backup.New(l, inst.kv, inst.records, inst.settings, backupOpts...)

	inst.auto = backup.NewAutoBackup(l, inst.backup, inst.autoPolicy, inst.autoDelay)
	inst.records.OnSave(inst.auto.Trigger)

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (f *Facade) Loaded() bool {
	return f.loaded.Load()
}

// OnLoaded is called once the first Reload completed.
func (f *Facade) OnLoaded(fn func()) {
	f.onLoaded = fn
}

func (f *Facade) Products() *records.Collection {
	return f.products
}

func (f *Facade) Bills() *records.Collection {
	return f.bills
}

func (f *Facade) Settings() *settings.Registry {
	return f.settings
}

func (f *Facade) Backup() *backup.Service {
	return f.backup
}

func (f *Facade) History() *backup.History {
	return f.history
}

func (f *Facade) SaveProducts(ctx context.Context, items []records.Record) error {
	return f.products.Save(ctx, items)
}

func (f *Facade) LoadProducts(ctx context.Context) []records.Record {
	return f.products.Load(ctx)
}

func (f *Facade) SaveBills(ctx context.Context, items []records.Record) error {
	return f.bills.Save(ctx, items)
}

func (f *Facade) LoadBills(ctx context.Context) []records.Record {
	return f.bills.Load(ctx)
}

// Save writes a named collection, keeping the products and bills holders
// in sync. Names outside kv.CollectionKeys fail with kv.ErrInvalidKey.
func (f *Facade) Save(ctx context.Context, name string, items []records.Record) error {
	if !kv.IsCollection(name) {
		return errors.Wrapf(kv.ErrInvalidKey, "%q is not a collection", name)
	}
	if c := f.collection(name); c != nil {
		return c.Save(ctx, items)
	}
	return f.records.Save(ctx, name, items)
}

// Load reads any named collection.
func (f *Facade) Load(ctx context.Context, name string) []records.Record {
	if c := f.collection(name); c != nil {
		return c.Load(ctx)
	}
	return f.records.Load(ctx, name)
}

func (f *Facade) LoadSettings(ctx context.Context) *settings.Map {
	return f.settings.Load(ctx)
}

func (f *Facade) SaveSettings(ctx context.Context, m *settings.Map) error {
	return f.settings.Save(ctx, m)
}

func (f *Facade) UpdateSettings(ctx context.Context, submitted *settings.Map) (*settings.Map, error) {
	return f.settings.Update(ctx, submitted)
}

func (f *Facade) ResetSettings(ctx context.Context) (*settings.Map, error) {
	return f.settings.Reset(ctx)
}

func (f *Facade) Setting(ctx context.Context, key string, fallback any) any {
	return f.settings.Get(ctx, key, fallback)
}

func (f *Facade) Export(ctx context.Context, trigger string) (*backup.Export, error) {
	return f.backup.Export(ctx, trigger)
}

func (f *Facade) ExportRaw(ctx context.Context, trigger string) (*backup.Export, error) {
	return f.backup.ExportRaw(ctx, trigger)
}

func (f *Facade) Import(ctx context.Context, r io.Reader, c confirm.Confirmer) (*backup.Report, error) {
	return f.backup.Import(ctx, r, c)
}

func (f *Facade) ImportAsync(ctx context.Context, r io.Reader, c confirm.Confirmer) <-chan backup.ImportResult {
	return f.backup.ImportAsync(ctx, r, c)
}

// ImportLatest restores the most recent export kept in the history.
func (f *Facade) ImportLatest(ctx context.Context, c confirm.Confirmer) (*backup.Report, error) {
	if f.history == nil {
		return nil, errors.New("no backup history configured")
	}
	var buf bytes.Buffer
	if err := f.history.GetCurrent(ctx, &buf); err != nil {
		return nil, errors.Wrap(err, "failed to read latest backup")
	}
	return f.backup.Import(ctx, &buf, c)
}

// Reload refreshes every in-memory holder from storage.
func (f *Facade) Reload(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f.products.Load(gCtx)
		return nil
	})
	g.Go(func() error {
		f.bills.Load(gCtx)
		return nil
	})
	g.Go(func() error {
		f.settings.Load(gCtx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if !f.loaded.Swap(true) && f.onLoaded != nil {
		f.onLoaded()
	}
	return nil
}

// ClearAll wipes every stored key after the two step confirmation. It
// reports false and changes nothing when either step fails.
func (f *Facade) ClearAll(ctx context.Context, c confirm.Confirmer) (bool, error) {
	if !confirm.Destructive(ctx, c, clearMessage, confirm.Phrase) {
		f.l.Info("clear all cancelled")
		return false, nil
	}

	f.auto.Stop()
	if err := f.kv.Clear(context.WithoutCancel(ctx)); err != nil {
		f.l.Error("failed to clear storage", zap.Error(err))
		return false, err
	}
	f.l.Warn("all data cleared")
	return true, f.Reload(ctx)
}

// EnsureRecentBackup exports when the last export is missing or older than
// the stale threshold. It reports whether an export ran.
func (f *Facade) EnsureRecentBackup(ctx context.Context) (bool, error) {
	if last, ok := f.backup.LastExport(ctx); ok && f.now().Sub(last) < f.staleAfter {
		return false, nil
	}
	if _, err := f.backup.Export(ctx, TriggerStale); err != nil {
		return false, err
	}
	return true, nil
}

// BackupRoutine runs EnsureRecentBackup every check interval until ctx ends.
func (f *Facade) BackupRoutine(ctx context.Context) error {
	l := f.l.Named("routine.backup")
	ticker := time.NewTicker(f.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.Debug("routine canceled", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			f.ensureRecentBackup(ctx, l)
		}
	}
}

// Start loads the state, checks the backup age once and then keeps checking
// it until ctx ends.
func (f *Facade) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	l := f.l.Named("start")

	if err := f.Reload(gCtx); err != nil {
		return errors.Wrap(err, "failed to load initial state")
	}
	f.ensureRecentBackup(gCtx, l)

	g.Go(func() error {
		l.Debug("starting backup routine")
		return f.BackupRoutine(gCtx)
	})

	return g.Wait()
}

// Close runs a pending auto backup and releases the backends.
func (f *Facade) Close(ctx context.Context) error {
	f.auto.Flush(ctx)
	var err error
	if f.history != nil {
		err = multierr.Append(err, f.history.Close())
	}
	return multierr.Append(err, f.kv.Close())
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (f *Facade) collection(name string) *records.Collection {
	switch name {
	case kv.KeyProducts:
		return f.products
	case kv.KeyBills:
		return f.bills
	default:
		return nil
	}
}

func (f *Facade) ensureRecentBackup(ctx context.Context, l *zap.Logger) {
	if ok, err := f.EnsureRecentBackup(ctx); err != nil {
		l.Error("could not create backup", zap.Error(err))
	} else if ok {
		l.Info("created backup")
	}
}
