package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/Stash/internal/config"
	"github.com/hbomb79/Stash/internal/database"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = `
databases:
  default:
    driver: sqlite
    path: ~/stash/stash.db
  prod:
    driver: postgres
    username: stash
    password: secret
    name: STASH_PROD
    host: db.internal
store_path: ~/stash/objects
journal_path: ~/stash/journal.db
ingest:
  ingest_path: ~/pending
ffmpeg:
  scratch_path: ~/stash/temp
  timeout: 30s
log:
  level: debug
  file: ~/stash/stash.log
`

func writeConfig(t *testing.T, content string) (string, string) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return home, path
}

func Test_Load(t *testing.T) {
	home, path := writeConfig(t, baseConfig)

	cfg, err := config.Load(config.Options{Path: path})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultInstance, cfg.Instance)
	assert.Equal(t, database.DriverSqlite, cfg.Database.Driver)
	assert.Equal(t, filepath.Join(home, "stash/stash.db"), cfg.Database.Path)

	assert.Equal(t, filepath.Join(home, "stash/objects"), cfg.StorePath)
	assert.Equal(t, filepath.Join(home, "stash/journal.db"), cfg.JournalPath)
	assert.Equal(t, filepath.Join(home, "pending"), cfg.Ingest.IngestPath)
	assert.Equal(t, cfg.Ingest.IngestPath, cfg.PendingPath, "pending path defaults to the ingest path")
	assert.Equal(t, filepath.Join(home, "stash/temp"), cfg.Ffmpeg.ScratchDir)
	assert.Equal(t, filepath.Join(home, "stash/stash.log"), cfg.Log.Path)

	// Defaults
	assert.Equal(t, []string{".mp4"}, cfg.Ingest.Extensions)
	assert.True(t, cfg.Ingest.DeriveTags)
	assert.Equal(t, 2, cfg.Ingest.IngestionParallelism)
	assert.Equal(t, "ffmpeg", cfg.Ffmpeg.FfmpegBinPath)
	assert.Equal(t, 30*time.Second, cfg.Ffmpeg.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func Test_Load_SelectsInstance(t *testing.T) {
	_, path := writeConfig(t, baseConfig)

	cfg, err := config.Load(config.Options{Path: path, Instance: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Instance)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "STASH_PROD", cfg.Database.Name)
}

func Test_Load_InstanceDefaults(t *testing.T) {
	_, path := writeConfig(t, `
databases:
  default:
    username: stash
    password: secret
  local:
    driver: sqlite
    path: ~/stash.db
store_path: ~/objects
ffmpeg:
  scratch_path: ~/temp
`)

	cfg, err := config.Load(config.Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, database.DatabaseConfig{
		Driver:   database.DriverPostgres,
		User:     "stash",
		Password: "secret",
		Name:     database.DefaultDatabaseName,
		Host:     database.DefaultHost,
		Port:     database.DefaultPort,
		SslMode:  database.DefaultSslMode,
	}, cfg.Database)

	cfg, err = config.Load(config.Options{Path: path, Instance: "local"})
	require.NoError(t, err)
	assert.Equal(t, database.DriverSqlite, cfg.Database.Driver)
	assert.Empty(t, cfg.Database.Host, "network defaults only apply to postgres")
}

func Test_Load_UnknownInstance(t *testing.T) {
	_, path := writeConfig(t, baseConfig)

	_, err := config.Load(config.Options{Path: path, Instance: "staging"})
	assert.ErrorIs(t, err, config.ErrUnknownInstance)
}

func Test_Load_MissingFile(t *testing.T) {
	_, err := config.Load(config.Options{Path: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func Test_Load_EnvironmentOverrides(t *testing.T) {
	home, path := writeConfig(t, baseConfig)
	t.Setenv("STASH_STORE_PATH", "~/elsewhere")
	t.Setenv("INGEST_PARALLELISM", "6")

	cfg, err := config.Load(config.Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "elsewhere"), cfg.StorePath)
	assert.Equal(t, 6, cfg.Ingest.IngestionParallelism)
}

func Test_Load_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{
			name: "postgres without username",
			config: `
databases:
  default:
    driver: postgres
store_path: /srv/objects
ffmpeg:
  scratch_path: /srv/temp
`,
		},
		{
			name: "unsupported driver",
			config: `
databases:
  default:
    driver: mysql
store_path: /srv/objects
ffmpeg:
  scratch_path: /srv/temp
`,
		},
		{
			name: "no databases",
			config: `
store_path: /srv/objects
ffmpeg:
  scratch_path: /srv/temp
`,
		},
		{
			name: "invalid log level",
			config: `
databases:
  default:
    driver: sqlite
    path: /srv/stash.db
store_path: /srv/objects
ffmpeg:
  scratch_path: /srv/temp
log:
  level: loud
`,
		},
		{
			name: "missing scratch path",
			config: `
databases:
  default:
    driver: sqlite
    path: /srv/stash.db
store_path: /srv/objects
`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, path := writeConfig(t, test.config)
			_, err := config.Load(config.Options{Path: path})
			assert.Error(t, err)
		})
	}
}

func Test_Load_RejectsOverlappingPaths(t *testing.T) {
	tests := []struct {
		name    string
		store   string
		scratch string
		ingest  string
	}{
		{"scratch inside store", "/srv/objects", "/srv/objects/temp", "/srv/pending"},
		{"store inside scratch", "/srv/temp/objects", "/srv/temp", "/srv/pending"},
		{"scratch inside ingest", "/srv/objects", "/srv/pending/temp", "/srv/pending"},
		{"store inside ingest", "/srv/pending/objects", "/srv/temp", "/srv/pending"},
		{"scratch is store", "/srv/objects", "/srv/objects", "/srv/pending"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, path := writeConfig(t, `
databases:
  default:
    driver: sqlite
    path: /srv/stash.db
store_path: `+test.store+`
ingest:
  ingest_path: `+test.ingest+`
ffmpeg:
  scratch_path: `+test.scratch+`
`)
			_, err := config.Load(config.Options{Path: path})
			assert.ErrorIs(t, err, config.ErrOverlappingPath)
		})
	}
}

func Test_Load_SiblingPathsAreNotOverlapping(t *testing.T) {
	_, path := writeConfig(t, `
databases:
  default:
    driver: sqlite
    path: /srv/stash.db
store_path: /srv/objects
ingest:
  ingest_path: /srv/objects-pending
ffmpeg:
  scratch_path: /srv/objects-temp
`)
	_, err := config.Load(config.Options{Path: path})
	assert.NoError(t, err)
}

func Test_Load_EnvironmentResolver(t *testing.T) {
	_, path := writeConfig(t, baseConfig)
	env := map[string]string{
		config.EnvInstance: "prod",
		config.EnvDatabase: "STASH_OVERRIDE",
		config.EnvConfig:   path,
	}
	resolver := config.EnvironmentResolver{Lookup: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}

	cfg, err := config.Load(config.Options{Path: "/does/not/exist.yaml", Instance: "default", Resolver: resolver})
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Instance)
	assert.Equal(t, "STASH_OVERRIDE", cfg.Database.Name)
}

func Test_Resolvers(t *testing.T) {
	instance, db := config.IdentityResolver{}.ResolveNames("a", "b")
	assert.Equal(t, "a", instance)
	assert.Equal(t, "b", db)
	assert.Equal(t, "/x.yaml", config.IdentityResolver{}.ResolveConfigPath("/x.yaml"))

	empty := config.EnvironmentResolver{Lookup: func(string) (string, bool) { return "", true }}
	instance, db = empty.ResolveNames("a", "b")
	assert.Equal(t, "a", instance, "empty variables are ignored")
	assert.Equal(t, "b", db)

	r, err := config.NewResolver(config.ResolverEnvironment)
	require.NoError(t, err)
	assert.IsType(t, config.EnvironmentResolver{}, r)

	r, err = config.NewResolver("")
	require.NoError(t, err)
	assert.IsType(t, config.IdentityResolver{}, r)

	_, err = config.NewResolver("magic")
	assert.Error(t, err)
}
