// Package cli implements the command-line interface for Stash.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hbomb79/Stash/internal/catalog"
	"github.com/hbomb79/Stash/internal/config"
	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/internal/journal"
	"github.com/hbomb79/Stash/internal/objectstore"
	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/spf13/cobra"
)

var log = logger.Get("Stash")

var (
	configPath   string
	instanceName string
	resolverName string
	verbose      bool
)

// cmdContext holds the resources shared by every command
type cmdContext struct {
	Config  *config.Config
	DB      *database.Manager
	Catalog *catalog.Store
	Objects *objectstore.Store
	Journal *journal.Journal
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Journal != nil {
		if err := c.Journal.Close(); err != nil {
			log.Emit(logger.WARNING, "Failed to close placement journal: %v\n", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Emit(logger.WARNING, "Failed to close database: %v\n", err)
		}
	}
	logger.Close()
}

// loadConfig loads the configuration selected by the global flags, and
// configures logging accordingly.
func loadConfig() (*config.Config, error) {
	resolver, err := config.NewResolver(resolverName)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.Options{Path: configPath, Instance: instanceName, Resolver: resolver})
	if err != nil {
		return nil, err
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if verbose {
		level = logger.VERBOSE
	}
	logger.SetMinLoggingLevel(level.Level())
	logger.EnableFileOutput(cfg.Log.FileConfig)

	return cfg, nil
}

// initContext connects to the selected database instance, and opens the
// object store and placement journal. The config may be modified by the
// calling command before being provided.
func initContext(cfg *config.Config) (*cmdContext, error) {
	c := &cmdContext{Config: cfg, Catalog: catalog.NewStore()}

	log.Emit(logger.INFO, "Using database instance '%s' (%s)\n", cfg.Instance, cfg.Database.Driver)
	c.DB = database.New()
	if err := c.DB.Connect(cfg.Database); err != nil {
		c.DB = nil
		c.Close()
		return nil, err
	}

	objects, err := objectstore.New(cfg.StorePath)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Objects = objects

	if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	if c.Journal, err = journal.Open(cfg.JournalPath); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

var rootCmd = &cobra.Command{
	Use:   "stash",
	Short: "Content-addressed video stash",
	Long: `Stash ingests video files in to a content-addressed object store,
registering each video (and a generated cover image) in a relational
catalog. Identical content is only ever stored once.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "instance", "i", config.DefaultInstance, "Name of the configured database instance to use")
	rootCmd.PersistentFlags().StringVar(&resolverName, "resolver", config.ResolverIdentity, "How the instance and config path are resolved (identity or environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(removeCmd)
}
