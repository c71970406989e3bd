package settings

import (
	"context"
	"sync"

	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotLoaded is returned for the in-memory settings before the first load.
var ErrNotLoaded = errors.New("settings not loaded")

type (
	// Registry owns the settings schema and the persisted settings.
	Registry struct {
		l        *zap.Logger
		kv       *kv.Store
		defaults *Map
		current  *Map
		loaded   bool
		mu       sync.RWMutex
	}
	Option func(*Registry)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithDefaults(v *Map) Option {
	return func(o *Registry) {
		o.defaults = v.Clone()
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, store *kv.Store, opts ...Option) *Registry {
	inst := &Registry{
		l:        l.Named("settings"),
		kv:       store,
		defaults: Defaults(),
	}

	for _, opt := range opts {
		opt(inst)
	}

	inst.current = inst.defaults.Clone()

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Defaults returns a fresh copy of the schema.
func (r *Registry) Defaults() *Map {
	return r.defaults.Clone()
}

// Current returns a copy of the settings held in memory.
func (r *Registry) Current() *Map {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Clone()
}

// Load reads the persisted settings, reconciles them with the schema and
// makes the result current. It never fails: unreadable settings count as empty.
func (r *Registry) Load(ctx context.Context) *Map {
	loaded := Reconcile(r.defaults, r.persisted(ctx))
	r.setCurrent(loaded)
	return loaded.Clone()
}

// Save persists m as is. On failure the stored settings are left untouched.
func (r *Registry) Save(ctx context.Context, m *Map) error {
	data, err := m.MarshalJSON()
	if err != nil {
		r.l.Error("failed to serialize settings", zap.Error(err))
		metrics.SettingsSaveFailedCounter.WithLabelValues().Inc()
		return err
	}
	if err := r.kv.Set(ctx, kv.KeySettings, string(data)); err != nil {
		r.l.Error("failed to persist settings", zap.Error(err))
		metrics.SettingsSaveFailedCounter.WithLabelValues().Inc()
		return err
	}
	r.setCurrent(Reconcile(r.defaults, m))
	return nil
}

// Get looks key up in the persisted settings, then in the defaults, and
// finally returns fallback.
func (r *Registry) Get(ctx context.Context, key string, fallback any) any {
	if v, ok := r.persisted(ctx).Get(key); ok {
		return v
	}
	if v, ok := r.defaults.Get(key); ok {
		return v
	}
	return fallback
}

// Reset replaces the settings with a fresh copy of the defaults.
func (r *Registry) Reset(ctx context.Context) (*Map, error) {
	fresh := r.Defaults()
	if err := r.Save(ctx, fresh); err != nil {
		return nil, errors.Wrap(err, "failed to reset settings")
	}
	r.l.Info("settings reset to defaults")
	return fresh, nil
}

// Update applies a submitted settings form, see MergeSubmission.
func (r *Registry) Update(ctx context.Context, submitted *Map) (*Map, error) {
	merged := MergeSubmission(r.defaults, r.Load(ctx), submitted)
	if err := r.Save(ctx, merged); err != nil {
		return nil, errors.Wrap(err, "failed to update settings")
	}
	return merged.Clone(), nil
}

func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// InMemoryCollection exposes the current settings to the backup service.
// Until settings were loaded, saved or restored it returns ErrNotLoaded.
func (r *Registry) InMemoryCollection() (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.loaded {
		return nil, ErrNotLoaded
	}
	return r.current.Clone(), nil
}

// ReplaceInMemoryCollection sets the current settings after a restore.
func (r *Registry) ReplaceInMemoryCollection(v any) error {
	m, ok := v.(*Map)
	if !ok || m == nil {
		return errors.Errorf("unexpected settings container %T", v)
	}
	r.setCurrent(Reconcile(r.defaults, m))
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (r *Registry) persisted(ctx context.Context) *Map {
	raw, ok, err := r.kv.Get(ctx, kv.KeySettings)
	if err != nil {
		r.l.Warn("failed to read settings, using defaults", zap.Error(err))
		return NewMap()
	} else if !ok {
		return NewMap()
	}
	m := NewMap()
	if err := m.UnmarshalJSON([]byte(raw)); err != nil {
		r.l.Warn("failed to parse settings, using defaults", zap.Error(err))
		return NewMap()
	}
	return m
}

func (r *Registry) setCurrent(m *Map) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = m.Clone()
	r.loaded = true
}
