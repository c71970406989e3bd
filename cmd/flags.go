package cmd

import (
	"time"

	"github.com/foomo/posstore/pkg/backup"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func logLevelFlag(v *viper.Viper) string {
	return v.GetString("log.level")
}

func addLogLevelFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-level", "info", "log level")
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

func logFormatFlag(v *viper.Viper) string {
	return v.GetString("log.format")
}

func addLogFormatFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-format", "json", "log format")
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindEnv("log.format", "LOG_FORMAT")
}

func envFileFlag(v *viper.Viper) []string {
	return v.GetStringSlice("env_file")
}

func addEnvFileFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.StringSlice("env-file", nil, "Dotenv files to load before reading the configuration")
	_ = v.BindPFlag("env_file", flags.Lookup("env-file"))
}

func addressFlag(v *viper.Viper) string {
	return v.GetString("address")
}

func addAddressFlag(flags *pflag.FlagSet, v *viper.Viper, value string) {
	flags.String("address", value, "Address to bind to (host:port)")
	_ = v.BindPFlag("address", flags.Lookup("address"))
	_ = v.BindEnv("address", "POSSTORE_ADDRESS")
}

func basePathFlag(v *viper.Viper) string {
	return v.GetString("base_path")
}

func addBasePathFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("base-path", "/posstore", "Base path to export the webserver on")
	_ = v.BindPFlag("base_path", flags.Lookup("base-path"))
	_ = v.BindEnv("base_path", "POSSTORE_BASE_PATH")
}

func gzipLevelFlag(v *viper.Viper) int {
	return v.GetInt("gzip.level")
}

func addGzipLevelFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Int("gzip-level", 6, "GZip compression level of http replies")
	_ = v.BindPFlag("gzip.level", flags.Lookup("gzip-level"))
	_ = v.BindEnv("gzip.level", "POSSTORE_GZIP_LEVEL")
}

func storageTypeFlag(v *viper.Viper) string {
	return v.GetString("storage.type")
}

func addStorageTypeFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("storage-type", "filesystem", "Storage backend: filesystem or blob")
	_ = v.BindPFlag("storage.type", flags.Lookup("storage-type"))
	_ = v.BindEnv("storage.type", "POSSTORE_STORAGE_TYPE")
}

func dataDirFlag(v *viper.Viper) string {
	return v.GetString("storage.dir")
}

func addDataDirFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("data-dir", "/var/lib/posstore/data", "Where to put my data")
	_ = v.BindPFlag("storage.dir", flags.Lookup("data-dir"))
	_ = v.BindEnv("storage.dir", "POSSTORE_DATA_DIR")
}

func storageBlobBucketFlag(v *viper.Viper) string {
	return v.GetString("storage.blob.bucket")
}

func addStorageBlobBucketFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("storage-blob-bucket", "", "Bucket url for blob storage (gs://, s3://, azblob://, file://, mem://)")
	_ = v.BindPFlag("storage.blob.bucket", flags.Lookup("storage-blob-bucket"))
	_ = v.BindEnv("storage.blob.bucket", "POSSTORE_STORAGE_BLOB_BUCKET")
}

func storageBlobPrefixFlag(v *viper.Viper) string {
	return v.GetString("storage.blob.prefix")
}

func addStorageBlobPrefixFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("storage-blob-prefix", "posstore", "Key prefix inside the blob bucket")
	_ = v.BindPFlag("storage.blob.prefix", flags.Lookup("storage-blob-prefix"))
	_ = v.BindEnv("storage.blob.prefix", "POSSTORE_STORAGE_BLOB_PREFIX")
}

func backupDirFlag(v *viper.Viper) string {
	return v.GetString("backup.dir")
}

func addBackupDirFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backup-dir", "/var/lib/posstore/backups", "Where to keep exported backups")
	_ = v.BindPFlag("backup.dir", flags.Lookup("backup-dir"))
	_ = v.BindEnv("backup.dir", "POSSTORE_BACKUP_DIR")
}

func backupLimitFlag(v *viper.Viper) int {
	return v.GetInt("backup.limit")
}

func addBackupLimitFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Int("backup-limit", 7, "Number of dated backups to keep, 0 keeps all")
	_ = v.BindPFlag("backup.limit", flags.Lookup("backup-limit"))
	_ = v.BindEnv("backup.limit", "POSSTORE_BACKUP_LIMIT")
}

func backupPrefixFlag(v *viper.Viper) string {
	return v.GetString("backup.prefix")
}

func addBackupPrefixFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backup-prefix", backup.DefaultFilePrefix, "File name prefix of exported backups")
	_ = v.BindPFlag("backup.prefix", flags.Lookup("backup-prefix"))
	_ = v.BindEnv("backup.prefix", "POSSTORE_BACKUP_PREFIX")
}

func autoBackupFlag(v *viper.Viper) string {
	return v.GetString("backup.auto.policy")
}

func addAutoBackupFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("auto-backup", string(backup.PolicyOff), "Export after collection saves: off, always or debounce")
	_ = v.BindPFlag("backup.auto.policy", flags.Lookup("auto-backup"))
	_ = v.BindEnv("backup.auto.policy", "POSSTORE_AUTO_BACKUP")
}

func autoBackupDelayFlag(v *viper.Viper) time.Duration {
	return v.GetDuration("backup.auto.delay")
}

func addAutoBackupDelayFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Duration("auto-backup-delay", backup.DefaultDebounceDelay, "Quiet period before a debounced export")
	_ = v.BindPFlag("backup.auto.delay", flags.Lookup("auto-backup-delay"))
	_ = v.BindEnv("backup.auto.delay", "POSSTORE_AUTO_BACKUP_DELAY")
}

func backupStaleAfterFlag(v *viper.Viper) time.Duration {
	return v.GetDuration("backup.stale_after")
}

func addBackupStaleAfterFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Duration("backup-stale-after", 24*time.Hour, "Age after which a new backup is created")
	_ = v.BindPFlag("backup.stale_after", flags.Lookup("backup-stale-after"))
	_ = v.BindEnv("backup.stale_after", "POSSTORE_BACKUP_STALE_AFTER")
}

func backupCheckIntervalFlag(v *viper.Viper) time.Duration {
	return v.GetDuration("backup.check_interval")
}

func addBackupCheckIntervalFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Duration("backup-check-interval", time.Hour, "How often the backup age is checked")
	_ = v.BindPFlag("backup.check_interval", flags.Lookup("backup-check-interval"))
	_ = v.BindEnv("backup.check_interval", "POSSTORE_BACKUP_CHECK_INTERVAL")
}

func gracefulPeriodFlag(v *viper.Viper) time.Duration {
	return v.GetDuration("graceful_period")
}

func addGracefulPeriodFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Duration("graceful-period", 0, "Graceful period before shutting down")
	_ = v.BindPFlag("graceful_period", flags.Lookup("graceful-period"))
	_ = v.BindEnv("graceful_period", "POSSTORE_GRACEFUL_PERIOD")
}

func serviceHealthzEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.healthz.enabled")
}

func addServiceHealthzEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-healthz-enabled", false, "Enable healthz service")
	_ = v.BindPFlag("service.healthz.enabled", flags.Lookup("service-healthz-enabled"))
}

func servicePrometheusEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.prometheus.enabled")
}

func addServicePrometheusEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-prometheus-enabled", false, "Enable prometheus service")
	_ = v.BindPFlag("service.prometheus.enabled", flags.Lookup("service-prometheus-enabled"))
}

func servicePProfEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("service.pprof.enabled")
}

func addServicePProfEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("service-pprof-enabled", false, "Enable pprof service")
	_ = v.BindPFlag("service.pprof.enabled", flags.Lookup("service-pprof-enabled"))
}

func otelEnabledFlag(v *viper.Viper) bool {
	return v.GetBool("otel.enabled")
}

func addOtelEnabledFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("otel-enabled", false, "Enable otel service")
	_ = v.BindPFlag("otel.enabled", flags.Lookup("otel-enabled"))
	_ = v.BindEnv("otel.enabled", "OTEL_ENABLED")
}

func rawFlag(v *viper.Viper) bool {
	return v.GetBool("export.raw")
}

func addRawFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("raw", false, "Dump every stored key instead of the typed snapshot")
	_ = v.BindPFlag("export.raw", flags.Lookup("raw"))
}

func outFlag(v *viper.Viper) string {
	return v.GetString("export.out")
}

func addOutFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("out", ".", "Directory to write the backup file to")
	_ = v.BindPFlag("export.out", flags.Lookup("out"))
}

func latestFlag(v *viper.Viper) bool {
	return v.GetBool("import.latest")
}

func addLatestFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("latest", false, "Restore the most recent backup of the backup history")
	_ = v.BindPFlag("import.latest", flags.Lookup("latest"))
}

func yesFlag(v *viper.Viper) bool {
	return v.GetBool("import.yes")
}

func addYesFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.BoolP("yes", "y", false, "Restore without asking for confirmation")
	_ = v.BindPFlag("import.yes", flags.Lookup("yes"))
}

// addStorageFlags adds the flags every command opening the store needs.
func addStorageFlags(flags *pflag.FlagSet, v *viper.Viper) {
	addStorageTypeFlag(flags, v)
	addDataDirFlag(flags, v)
	addStorageBlobBucketFlag(flags, v)
	addStorageBlobPrefixFlag(flags, v)
	addBackupDirFlag(flags, v)
	addBackupLimitFlag(flags, v)
	addBackupPrefixFlag(flags, v)
	addAutoBackupFlag(flags, v)
	addAutoBackupDelayFlag(flags, v)
	addBackupStaleAfterFlag(flags, v)
	addBackupCheckIntervalFlag(flags, v)
}
