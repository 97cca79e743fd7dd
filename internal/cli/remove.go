package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/hbomb79/Stash/internal/removal"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a video from the store",
	Long: `Remove the video with the given id from the catalog, and delete its
content from the store. With --restore, the content is instead moved to
the pending directory as '<id>-<filename>'. The cover is always kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

var (
	removeRestore bool
	removeYes     bool
)

func init() {
	removeCmd.Flags().BoolVarP(&removeRestore, "restore", "r", false, "Move the video back to the pending directory")
	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Do not ask for confirmation")
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := initContext(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var confirmer removal.Confirmer = &promptConfirmer{in: os.Stdin, out: os.Stdout}
	if removeYes {
		confirmer = autoConfirmer{}
	}

	srv := removal.New(c.DB, c.Catalog, c.Objects, confirmer, cfg.PendingPath)
	result, err := srv.Remove(cmd.Context(), args[0], removal.Options{Restore: removeRestore})
	if errors.Is(err, removal.ErrAborted) {
		fmt.Println("Aborted.")
		return nil
	} else if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("Removed %s (%s)\n", args[0], result.Object.Filename)
	if result.RestoredTo != "" {
		fmt.Printf("Restored to %s\n", result.RestoredTo)
	}
	if result.CoverShared > 0 {
		fmt.Printf("Cover %s kept (used by %d other video(s))\n", shortID(result.Video.CoverID), result.CoverShared)
	}

	return nil
}
