package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goapidiscovery/internal/console"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize persisted discovery state",
	Long: `Status reads the scope's state file and field cache without contacting the
instance and prints known, verified and unknown counts followed by the first
--limit records.

Example:
  goapidiscovery status --state-dir .state --limit 20`,
	RunE: runStatus,
}

func init() {
	addTargetFlags(statusCmd)
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Maximum records to list (0 for all)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	report, err := a.pipeline.Status(currentTarget())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scope: %s\n", report.Scope)
	fmt.Fprintf(out, "State file: %s\n", report.StatePath)
	fmt.Fprintf(out, "Known: %d | Verified: %d | Unknown: %d | Cached dictionaries: %d\n",
		report.Known, report.Verified, report.Unknown, report.CachedTables)

	if len(report.Records) > 0 {
		fmt.Fprintln(out)
		tbl := console.NewTable("NAME", "KIND", "STATUS", "CONFIDENCE", "SOURCES")
		tbl.SetStyler(console.StatusStyler(2))
		for i, rec := range report.Records {
			if statusLimit > 0 && i >= statusLimit {
				break
			}
			status := "discovered"
			if rec.Verified {
				status = "verified"
			}
			confidence, sources := "", ""
			if rec.Evidence != nil {
				confidence = strconv.FormatFloat(rec.Evidence.Confidence, 'f', -1, 64)
				sources = strings.Join(rec.Evidence.Sources, ",")
			}
			tbl.AddRow(rec.Name, string(rec.Kind), status, confidence, sources)
		}
		if err := tbl.Render(out); err != nil {
			return err
		}
		if statusLimit > 0 && len(report.Records) > statusLimit {
			fmt.Fprintf(out, "... %d more\n", len(report.Records)-statusLimit)
		}
	}

	if len(report.UnknownNames) > 0 {
		fmt.Fprintf(out, "\n%s %s\n", console.Warn("Unknown:"), strings.Join(report.UnknownNames, ", "))
	}
	return nil
}
