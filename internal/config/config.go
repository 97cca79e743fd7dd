// Package config loads the Stash configuration from a YAML file, with every
// value able to be overridden from the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/internal/ffmpeg"
	"github.com/hbomb79/Stash/internal/ingest"
	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const (
	DefaultPath     = "~/.config/stash/config.yaml"
	DefaultInstance = "default"
)

var (
	ErrUnknownInstance = errors.New("unknown database instance")
	ErrOverlappingPath = errors.New("overlapping paths")
)

// StashConfig is the struct used to contain the
// various user config supplied by file, or via
// the environment.
type StashConfig struct {
	// Databases holds each of the named database instances which the
	// tools may be pointed at. Only one is used per invocation.
	Databases map[string]database.DatabaseConfig `yaml:"databases" validate:"required,min=1,dive"`

	Ingest ingest.Config `yaml:"ingest"`
	Ffmpeg ffmpeg.Config `yaml:"ffmpeg"`
	Log    LogConfig     `yaml:"log"`

	StorePath   string `yaml:"store_path" env:"STASH_STORE_PATH" env-required:"true"`
	JournalPath string `yaml:"journal_path" env:"STASH_JOURNAL_PATH" env-default:"~/.local/share/stash/journal.db"`

	// Removed videos which are restored are moved here. Defaults to the
	// ingest path.
	PendingPath string `yaml:"pending_path" env:"STASH_PENDING_PATH"`
}

// Config is a loaded StashConfig, alongside the database instance selected
// for this invocation.
type Config struct {
	StashConfig

	Instance string
	Database database.DatabaseConfig
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=verbose trace debug info warn warning error"`

	logger.FileConfig `yaml:",inline"`
}

// Options control how a configuration is located.
type Options struct {
	Path     string
	Instance string
	Resolver Resolver
}

// Load reads the configuration file from the path provided in the options,
// expands any home-relative paths, validates the result, and then selects
// the requested database instance. Both the path and the instance are passed
// through the resolver first.
func Load(opts Options) (*Config, error) {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = IdentityResolver{}
	}

	path := opts.Path
	if path == "" {
		path = DefaultPath
	}
	path, err := homedir.Expand(resolver.ResolveConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	config := &Config{}
	if err := cleanenv.ReadConfig(path, &config.StashConfig); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}

	if err := config.expandPaths(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&config.StashConfig); err != nil {
		return nil, fmt.Errorf("configuration is invalid: %w", err)
	}

	if err := config.ValidatePaths(); err != nil {
		return nil, err
	}

	instance := opts.Instance
	if instance == "" {
		instance = DefaultInstance
	}
	if err := config.selectInstance(resolver, instance); err != nil {
		return nil, err
	}

	return config, nil
}

func (config *Config) selectInstance(resolver Resolver, instance string) error {
	instance, dbName := resolver.ResolveNames(instance, "")
	db, ok := config.Databases[instance]
	if !ok {
		known := make([]string, 0, len(config.Databases))
		for name := range config.Databases {
			known = append(known, name)
		}
		return fmt.Errorf("%w '%s' (configured: %s)", ErrUnknownInstance, instance, strings.Join(known, ", "))
	}

	if dbName != "" {
		db.Name = dbName
	}

	config.Instance = instance
	config.Database = db
	return nil
}

func (config *StashConfig) expandPaths() error {
	paths := []*string{
		&config.StorePath,
		&config.JournalPath,
		&config.PendingPath,
		&config.Ingest.IngestPath,
		&config.Ffmpeg.ScratchDir,
		&config.Log.Path,
	}
	for name, db := range config.Databases {
		db = db.WithDefaults()
		config.Databases[name] = db
		if db.Path != "" {
			expanded, err := homedir.Expand(db.Path)
			if err != nil {
				return fmt.Errorf("failed to expand path of database instance %s: %w", name, err)
			}
			db.Path = expanded
			config.Databases[name] = db
		}
	}

	for _, p := range paths {
		if *p == "" {
			continue
		}

		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}

	if config.PendingPath == "" {
		config.PendingPath = config.Ingest.IngestPath
	}

	return nil
}

// ValidatePaths ensures the scratch directory used for derivatives is not
// inside of the store or the ingest tree, and that the store is not inside
// the ingest tree (otherwise stored blobs would be re-discovered). This must
// be called again if any of the paths are changed after Load.
func (config *StashConfig) ValidatePaths() error {
	scratch := config.Ffmpeg.ScratchDir
	if overlaps(scratch, config.StorePath) {
		return fmt.Errorf("%w: scratch directory %s and store %s", ErrOverlappingPath, scratch, config.StorePath)
	}

	if ingestPath := config.Ingest.IngestPath; ingestPath != "" {
		if overlaps(scratch, ingestPath) {
			return fmt.Errorf("%w: scratch directory %s and ingest path %s", ErrOverlappingPath, scratch, ingestPath)
		}
		if overlaps(config.StorePath, ingestPath) {
			return fmt.Errorf("%w: store %s and ingest path %s", ErrOverlappingPath, config.StorePath, ingestPath)
		}
	}

	return nil
}

// overlaps returns true if either path is (or is inside) the other.
func overlaps(a string, b string) bool {
	return within(a, b) || within(b, a)
}

func within(child string, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
