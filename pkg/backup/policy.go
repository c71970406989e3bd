package backup

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Policy controls when a collection save triggers an export.
type Policy string

const (
	PolicyOff      Policy = "off"
	PolicyAlways   Policy = "always"
	PolicyDebounce Policy = "debounce"
)

// DefaultDebounceDelay is the quiet period before a debounced export runs.
const DefaultDebounceDelay = 30 * time.Second

// TriggerAutoBackup labels exports started by a collection save.
const TriggerAutoBackup = "auto"

var ErrUnknownPolicy = errors.New("unknown auto backup policy")

// ParsePolicy validates a policy name, an empty name is PolicyOff.
func ParsePolicy(v string) (Policy, error) {
	switch Policy(v) {
	case "", PolicyOff:
		return PolicyOff, nil
	case PolicyAlways, PolicyDebounce:
		return Policy(v), nil
	default:
		return "", errors.Wrapf(ErrUnknownPolicy, "%q", v)
	}
}

// AutoBackup exports a snapshot after collection saves. Failures are logged
// and never reach the caller of the save.
type AutoBackup struct {
	l       *zap.Logger
	service *Service
	policy  Policy
	delay   time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	wg      sync.WaitGroup
}

func NewAutoBackup(l *zap.Logger, service *Service, policy Policy, delay time.Duration) *AutoBackup {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &AutoBackup{
		l:       l.Named("autobackup"),
		service: service,
		policy:  policy,
		delay:   delay,
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

func (a *AutoBackup) Policy() Policy {
	return a.policy
}

// Trigger is called after a collection was saved.
func (a *AutoBackup) Trigger(ctx context.Context, collection string) {
	switch a.policy {
	case PolicyAlways:
		a.wg.Add(1)
		defer a.wg.Done()
		a.run(context.WithoutCancel(ctx), collection)
	case PolicyDebounce:
		a.mu.Lock()
		defer a.mu.Unlock()
		a.pending = true
		if a.timer != nil {
			a.timer.Reset(a.delay)
			return
		}
		a.timer = time.AfterFunc(a.delay, func() {
			a.fire(context.WithoutCancel(ctx), collection)
		})
	default:
	}
}

// Flush runs a pending debounced export right away.
func (a *AutoBackup) Flush(ctx context.Context) {
	a.mu.Lock()
	pending := a.pending
	a.pending = false
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	if pending {
		a.run(ctx, "flush")
	}
	a.wg.Wait()
}

// Stop cancels a pending debounced export without running it.
func (a *AutoBackup) Stop() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = false
	a.mu.Unlock()
	a.wg.Wait()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (a *AutoBackup) fire(ctx context.Context, collection string) {
	a.mu.Lock()
	if !a.pending {
		a.mu.Unlock()
		return
	}
	a.pending = false
	a.timer = nil
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()
	a.run(ctx, collection)
}

func (a *AutoBackup) run(ctx context.Context, collection string) {
	if _, err := a.service.Export(ctx, TriggerAutoBackup); err != nil {
		a.l.Error("auto backup failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	a.l.Debug("auto backup done", zap.String("collection", collection))
}
