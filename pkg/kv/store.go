package kv

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Keys owned by the application.
const (
	KeyBills     = "bills"
	KeyProducts  = "products"
	KeyInventory = "inventory"
	KeySettings  = "settings"
	KeyUsers     = "users"
	// KeyLastBackup holds the RFC 3339 timestamp of the last export
	KeyLastBackup = "lastBackupDate"
)

// OwnedKeys is the fixed set of data keys captured by a raw-mode dump.
var OwnedKeys = []string{KeyBills, KeyProducts, KeyInventory, KeySettings, KeyUsers}

// CollectionKeys are the owned keys holding record collections.
var CollectionKeys = []string{KeyBills, KeyProducts, KeyInventory, KeyUsers}

var ErrInvalidKey = errors.New("invalid key")

// IsOwned reports whether key is one of the OwnedKeys.
func IsOwned(key string) bool {
	return contains(OwnedKeys, key)
}

// IsCollection reports whether key is one of the CollectionKeys.
func IsCollection(key string) bool {
	return contains(CollectionKeys, key)
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Store maps string keys to string values on top of a Storage backend.
// The backend namespace (directory or bucket prefix) belongs to the application.
type Store struct {
	l       *zap.Logger
	storage Storage
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func New(l *zap.Logger, storage Storage) *Store {
	return &Store{
		l:       l.Named("kv"),
		storage: storage,
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Get returns the value for key. A missing key is reported with ok == false
// and a nil error.
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	data, err := s.storage.Read(ctx, key)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.Wrapf(err, "failed to read key %q", key)
	}
	return string(data), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.storage.Write(ctx, key, []byte(value)); err != nil {
		return errors.Wrapf(err, "failed to write key %q", key)
	}
	s.l.Debug("stored key", zap.String("key", key), zap.Int("length", len(value)))
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "failed to remove key %q", key)
	}
	return nil
}

// Keys lists every key currently stored.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.storage.List(ctx, "")
}

// Clear wipes every key in the application namespace. It is irreversible and
// does not ask for confirmation itself.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list keys")
	}
	for _, key := range keys {
		if errDelete := s.storage.Delete(ctx, key); errDelete != nil {
			err = multierr.Append(err, errors.Wrapf(errDelete, "failed to remove key %q", key))
		}
	}
	if err != nil {
		return err
	}
	s.l.Warn("cleared all keys", zap.Int("count", len(keys)))
	return nil
}

func (s *Store) Close() error {
	return s.storage.Close()
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return nil
}
