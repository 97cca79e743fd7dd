package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/hbomb79/Stash/internal/repair"
	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Complete placements left unfinished by a failed ingestion",
	Long: `Retry every placement recorded in the placement journal. Objects which
were committed are moved in to the store; entries belonging to registrations
which never committed are discarded.

With --audit, instead list every registered object whose blob is missing
from the store and which has no placement pending.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

var repairAudit bool

func init() {
	repairCmd.Flags().BoolVar(&repairAudit, "audit", false, "List registered objects missing from the store")
}

func runRepair(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := initContext(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := repair.New(c.DB, c.Catalog, c.Objects, c.Journal)
	if repairAudit {
		findings, err := srv.Audit(cmd.Context())
		if err != nil {
			return err
		}

		if len(findings) == 0 {
			color.New(color.FgGreen).Println("Every registered object is present in the store")
			return nil
		}

		red := color.New(color.FgRed)
		for _, finding := range findings {
			red.Printf("  missing  ")
			fmt.Printf("%s %s\n", finding.ID, finding.Filename)
		}
		return fmt.Errorf("%d object(s) are missing from the store", len(findings))
	}

	result, err := srv.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%d journaled, %d placed, %d dropped, %d failed\n", result.Scanned, result.Placed, result.Dropped, len(result.Failures))
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d placement(s) could not be completed", len(result.Failures))
	}

	return nil
}
