package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/hbomb79/Stash/internal/ffmpeg"
	"github.com/hbomb79/Stash/internal/ingest"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [root]",
	Short: "Ingest video files in to the store",
	Long: `Walk the ingest path (or the root provided) and ingest every video
found. Content which is already stored is skipped and left in place.

With --watch, Stash keeps running and ingests new files as they appear.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var (
	ingestWatch  bool
	ingestNoTags bool
)

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Keep running, ingesting files as they appear")
	ingestCmd.Flags().BoolVar(&ingestNoTags, "no-tags", false, "Do not derive tags from directory names")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		cfg.Ingest.IngestPath = root
	}
	if cfg.Ingest.IngestPath == "" {
		return fmt.Errorf("no ingest path provided, either configure 'ingest.ingest_path' or provide one as an argument")
	}
	if ingestNoTags {
		cfg.Ingest.DeriveTags = false
	}
	if err := cfg.ValidatePaths(); err != nil {
		return err
	}

	c, err := initContext(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	generator, err := ffmpeg.NewGenerator(cfg.Ffmpeg)
	if err != nil {
		return err
	}

	srv, err := ingest.New(cfg.Ingest, c.DB, c.Catalog, generator, c.Objects, c.Journal)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if ingestWatch {
		return srv.Watch(ctx, func(report *ingest.Report) { printReport(report) })
	}

	report, err := srv.Run(ctx)
	if err != nil {
		return err
	}

	printReport(report)
	if report.Unplaced > 0 {
		return fmt.Errorf("%d video(s) were committed but could not be placed in the store; run 'stash repair'", report.Unplaced)
	}

	return nil
}

func printReport(report *ingest.Report) {
	for _, item := range report.Items {
		switch item.State {
		case ingest.PLACED:
			color.New(color.FgGreen).Printf("  added    ")
			fmt.Printf("%s %s\n", shortID(item.Digest.ID), item.Path)
		case ingest.DUPLICATE_SKIPPED:
			color.New(color.FgYellow).Printf("  skipped  ")
			fmt.Printf("%s %s\n", shortID(item.Digest.ID), item.Path)
		default:
			color.New(color.FgRed).Printf("  failed   ")
			fmt.Printf("%s (%s)\n", item.Path, item.Trouble)
		}
	}

	fmt.Printf("%d discovered, %d ingested, %d skipped, %d failed, %d unplaced",
		report.Discovered, report.Ingested, report.Skipped, report.Troubled, report.Unplaced)
	if report.Held > 0 {
		fmt.Printf(", %d held (recently modified)", report.Held)
	}
	fmt.Println()
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
