package cmd

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/foomo/posstore/pkg/backup"
	"github.com/foomo/posstore/pkg/kv"
	"github.com/foomo/posstore/pkg/storage"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// supportedBlobSchemes lists the URL schemes supported by blob storage
var supportedBlobSchemes = []string{"gs://", "s3://", "azblob://", "file://", "mem://"}

// newStorage wires the storage facade from the configuration.
func newStorage(ctx context.Context, v *viper.Viper, l *zap.Logger) (*storage.Facade, error) {
	policy, err := backup.ParsePolicy(autoBackupFlag(v))
	if err != nil {
		return nil, err
	}

	data, backups, err := createStorage(ctx, v, l)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	history, err := backup.NewHistory(l.Named("inst.history"),
		backup.HistoryWithStorage(backups),
		backup.HistoryWithHistoryDir(backupDirFlag(v)),
		backup.HistoryWithHistoryLimit(backupLimitFlag(v)),
		backup.HistoryWithPrefix(backupPrefixFlag(v)),
	)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to create history: %w", err), multierr.Append(data.Close(), backups.Close()))
	}

	return storage.New(l.Named("inst"),
		data,
		storage.WithHistory(history),
		storage.WithAutoBackup(policy, autoBackupDelayFlag(v)),
		storage.WithStaleAfter(backupStaleAfterFlag(v)),
		storage.WithCheckInterval(backupCheckIntervalFlag(v)),
		storage.WithFilePrefix(backupPrefixFlag(v)),
	), nil
}

// createStorage creates the data and backup backends based on the configuration
func createStorage(ctx context.Context, v *viper.Viper, l *zap.Logger) (data, backups kv.Storage, err error) {
	storageType := storageTypeFlag(v)
	blobBucket := storageBlobBucketFlag(v)
	blobPrefix := storageBlobPrefixFlag(v)

	// Warn about ignored blob config
	if storageType != "blob" && blobBucket != "" {
		l.Warn("blob storage flags are set but storage-type is not 'blob'; blob config will be ignored",
			zap.String("storage-type", storageType),
			zap.String("blob-bucket", blobBucket),
		)
	}

	l.Info("creating storage", zap.String("type", storageType))

	switch storageType {
	case "blob":
		if blobBucket == "" {
			return nil, nil, fmt.Errorf("blob bucket URL is required when storage-type is 'blob' (supported schemes: %s)", strings.Join(supportedBlobSchemes, ", "))
		}
		if !isValidBlobScheme(blobBucket) {
			return nil, nil, fmt.Errorf("unsupported blob storage URL scheme in %q; supported schemes: %s", blobBucket, strings.Join(supportedBlobSchemes, ", "))
		}
		l.Info("using blob storage",
			zap.String("bucket", blobBucket),
			zap.String("prefix", blobPrefix),
			zap.String("provider", detectBlobProvider(blobBucket)),
		)
		if data, err = kv.NewBlobStorage(ctx, blobBucket, path.Join(blobPrefix, "data")); err != nil {
			return nil, nil, err
		}
		if backups, err = kv.NewBlobStorage(ctx, blobBucket, path.Join(blobPrefix, "backups")); err != nil {
			return nil, nil, multierr.Append(err, data.Close())
		}
		return data, backups, nil
	case "filesystem", "":
		l.Info("using filesystem storage",
			zap.String("dir", dataDirFlag(v)),
			zap.String("backup_dir", backupDirFlag(v)),
		)
		if data, err = kv.NewFilesystemStorage(dataDirFlag(v)); err != nil {
			return nil, nil, err
		}
		if backups, err = kv.NewFilesystemStorage(backupDirFlag(v)); err != nil {
			return nil, nil, err
		}
		return data, backups, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type: %s (supported: filesystem, blob)", storageType)
	}
}

// isValidBlobScheme checks if the bucket URL has a supported scheme
func isValidBlobScheme(bucketURL string) bool {
	for _, scheme := range supportedBlobSchemes {
		if strings.HasPrefix(bucketURL, scheme) {
			return true
		}
	}
	return false
}

// detectBlobProvider returns a human-readable provider name from the URL scheme
func detectBlobProvider(bucketURL string) string {
	switch {
	case strings.HasPrefix(bucketURL, "gs://"):
		return "Google Cloud Storage"
	case strings.HasPrefix(bucketURL, "s3://"):
		return "AWS S3"
	case strings.HasPrefix(bucketURL, "azblob://"):
		return "Azure Blob Storage"
	case strings.HasPrefix(bucketURL, "file://"):
		return "Local directory"
	case strings.HasPrefix(bucketURL, "mem://"):
		return "In memory"
	default:
		return "unknown"
	}
}
