package ingest

import "time"

// Config contains configuration options that allow
// customization of how Stash detects and ingests files.
type Config struct {
	// The path to the directory the service should ingest from. This
	// may be overridden on the command line.
	IngestPath string `yaml:"ingest_path" env:"INGEST_PATH"`

	// Only files with one of these extensions (compared case-insensitively)
	// are considered for ingestion.
	Extensions []string `yaml:"extensions" env:"INGEST_EXTENSIONS" env-default:".mp4"`

	// When enabled, the content of each candidate file is sniffed and any
	// file which does not look like a video is ignored.
	VerifyMime bool `yaml:"verify_mime" env:"INGEST_VERIFY_MIME" env-default:"false"`

	// Whether files are tagged using the first directory beneath the
	// ingest path which contains them.
	DeriveTags bool `yaml:"derive_tags" env:"INGEST_DERIVE_TAGS" env-default:"true"`

	// Controls the number of workers that can hash and generate derivatives
	// concurrently. Registration of the results is always serialised.
	IngestionParallelism int `yaml:"parallelism" env:"INGEST_PARALLELISM" env-default:"2" validate:"min=1"`

	// In watch mode the service uses a directory watcher, but a 'force' sync
	// is performed on a regular interval to protect against the watcher failing.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"INGEST_FORCE_SYNC_SECONDS" env-default:"300" validate:"min=1"`

	// A newly detected file may still be being written to. Files are only
	// ingested once their modtime is at least this many seconds in the past.
	RequiredModTimeAgeSeconds int `yaml:"required_modtime_age_seconds" env:"INGEST_REQUIRED_MODTIME_AGE_SECONDS" env-default:"0" validate:"min=0"`

	HashChunkSizeMB         int `yaml:"hash_chunk_size_mb" env:"INGEST_HASH_CHUNK_SIZE_MB" env-default:"32" validate:"min=1"`
	ProgressIntervalSeconds int `yaml:"progress_interval_seconds" env:"INGEST_PROGRESS_INTERVAL_SECONDS" env-default:"5" validate:"min=1"`
}

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) ForceSyncDuration() time.Duration {
	return time.Duration(config.ForceSyncSeconds) * time.Second
}

func (config *Config) filter() Filter {
	return Filter{Extensions: config.Extensions, VerifyMime: config.VerifyMime}
}
