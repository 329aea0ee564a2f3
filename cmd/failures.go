package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/linkvault/internal/archive"
)

// newFailuresCmd creates the 'failures' subcommand, which lists the failure
// ledger so an operator can see what is cooling down or retired.
func newFailuresCmd() *cobra.Command {
	var (
		permanentOnly bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List the failure ledger",
		Long: `Prints every URL with failure history: its failure count, the
cooldown deadline, and whether it has been retired as permanently failed.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFailuresCommand(cmd, permanentOnly, asJSON)
		},
	}

	cmd.Flags().BoolVar(&permanentOnly, "permanent", false, "only show permanently failed URLs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}

func runFailuresCommand(cmd *cobra.Command, permanentOnly, asJSON bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	records := appInstance.Ledger().Records()
	if permanentOnly {
		filtered := make([]archive.FailureRecord, 0, len(records))
		for _, record := range records {
			if record.Permanent {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}

	if asJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(records); err != nil {
			return fmt.Errorf("encode failures: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARTICLE ID\tURL\tFAILURES\tCOOLDOWN UNTIL\tPERMANENT")
	now := appInstance.Clock().Now()
	for _, record := range records {
		cooldown := "-"
		if record.CooldownUntil != nil && record.CooldownUntil.After(now) {
			cooldown = record.CooldownUntil.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\n",
			record.ArticleID, record.URL, record.FailureCount, cooldown, record.Permanent)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}
	return nil
}
