package backup

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/foomo/posstore/pkg/kv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	historySuffix = ".json"
	latestSuffix  = "-latest" + historySuffix
)

type (
	// History keeps exported backup files in a storage backend: one file per
	// day plus a copy of the latest export.
	History struct {
		l            *zap.Logger
		storage      kv.Storage
		historyDir   string // directory used for default filesystem storage
		historyLimit int
		prefix       string
		mu           sync.RWMutex
	}
	HistoryOption func(*History)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func HistoryWithHistoryLimit(v int) HistoryOption {
	return func(o *History) {
		o.historyLimit = v
	}
}

func HistoryWithHistoryDir(v string) HistoryOption {
	return func(o *History) {
		o.historyDir = v
	}
}

func HistoryWithStorage(s kv.Storage) HistoryOption {
	return func(o *History) {
		o.storage = s
	}
}

func HistoryWithPrefix(v string) HistoryOption {
	return func(o *History) {
		o.prefix = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewHistory(l *zap.Logger, opts ...HistoryOption) (*History, error) {
	inst := &History{
		l:            l.Named("history"),
		historyDir:   "/var/lib/posstore/backups",
		historyLimit: 7,
		prefix:       DefaultFilePrefix,
	}

	for _, opt := range opts {
		opt(inst)
	}

	// If no storage provided, create a default filesystem storage
	if inst.storage == nil {
		storage, err := kv.NewFilesystemStorage(inst.historyDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create default filesystem storage: %w", err)
		}
		inst.storage = storage
	}

	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// LatestKey is the key of the copy of the most recent export.
func (h *History) LatestKey() string {
	return h.prefix + latestSuffix
}

// Prefix used for the exported file names.
func (h *History) Prefix() string {
	return h.prefix
}

// Add stores an export under name and as the latest export, then removes
// files beyond the history limit.
func (h *History) Add(ctx context.Context, name string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.storage.Write(ctx, name, data); err != nil {
		return errors.Wrap(err, "failed to write backup history file")
	}

	h.l.Debug("writing files",
		zap.String("backup", name),
		zap.String("latest", h.LatestKey()),
	)

	if err := h.storage.Write(ctx, h.LatestKey(), data); err != nil {
		return errors.Wrap(err, "failed to write latest backup")
	}

	if err := h.cleanup(ctx); err != nil {
		return errors.Wrap(err, "failed to clean up history")
	}

	return nil
}

// GetCurrent reads the latest export into the provided buffer.
func (h *History) GetCurrent(ctx context.Context, buf *bytes.Buffer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, err := h.storage.Read(ctx, h.LatestKey())
	if err != nil {
		return err
	}
	_, err = buf.Write(data)
	return err
}

// Files lists the dated exports, newest first.
func (h *History) Files(ctx context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.getHistory(ctx)
}

// Close releases resources held by the history storage.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.storage != nil {
		return h.storage.Close()
	}
	return nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (h *History) getHistory(ctx context.Context) (files []string, err error) {
	keys, err := h.storage.List(ctx, h.prefix+"-")
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if key != h.LatestKey() && strings.HasSuffix(key, historySuffix) {
			files = append(files, key)
		}
	}
	return files, nil
}

func (h *History) cleanup(ctx context.Context) error {
	if h.historyLimit <= 0 {
		return nil
	}

	files, err := h.getFilesForCleanup(ctx, h.historyLimit)
	if err != nil {
		return err
	}

	for _, f := range files {
		h.l.Debug("removing outdated backup", zap.String("file", f))
		if err := h.storage.Delete(ctx, f); err != nil {
			return fmt.Errorf("could not remove file %s: %w", f, err)
		}
	}

	return nil
}

func (h *History) getFilesForCleanup(ctx context.Context, historyVersions int) (files []string, err error) {
	contentFiles, err := h.getHistory(ctx)
	if err != nil {
		return nil, errors.New("could not generate file cleanup list: " + err.Error())
	}

	if len(contentFiles) > historyVersions {
		files = append(files, contentFiles[historyVersions:]...)
	}
	return files, nil
}
