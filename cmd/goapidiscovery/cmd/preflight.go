package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goapidiscovery/internal/console"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Validate configuration and run preflight checks",
	Long: `Preflight checks the configuration and runs read-only checks against the
instance before a discovery run.

Checks performed:
  - Configuration syntax and required fields
  - Credentials accepted by the instance
  - Read access to sys_db_object and sys_dictionary
  - Allowlisted tables exist on the instance
  - Catalog metadata access (warning only)

Example:
  goapidiscovery preflight --config discovery.yaml`,
	RunE: runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, stop := a.signalContext(cmd)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Preflight Checks ===\n")
	fmt.Fprintf(out, "Instance: %s\n", a.cfg.Instance.BaseURL)
	fmt.Fprintf(out, "Allowlist: %d tables\n\n", len(a.cfg.Filters.Allowlist))

	report, err := a.pipeline.Preflight(ctx)
	if report != nil {
		for _, check := range report.Passed {
			fmt.Fprintf(out, "%s %s\n", console.OK("PASS"), check)
		}
	}
	if err != nil {
		if a.interrupted(err, "Preflight") {
			return nil
		}
		fmt.Fprintf(out, "%s %v\n", console.Fail("FAIL"), err)
		return fmt.Errorf("preflight checks failed: %w", err)
	}

	for _, table := range report.CatalogWarnings {
		fmt.Fprintf(out, "%s %s not readable, catalog resolution will fall back\n", console.Warn("WARN"), table)
	}

	fmt.Fprintln(out, "\n=== Preflight Complete ===")
	return nil
}
