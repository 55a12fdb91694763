package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover tables and their field dictionaries",
	Long: `Discover enumerates the instance's tables from sys_db_object, applies the
allow/deny lists and fetches each table's field dictionary from sys_dictionary.
Results are cached per table and recorded in the scope's state file.

Example:
  goapidiscovery discover --config discovery.yaml --allowlist incident,problem --resume`,
	RunE: runDiscover,
}

func init() {
	addTargetFlags(discoverCmd)
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, stop := a.signalContext(cmd)
	defer stop()

	result, err := a.pipeline.Discover(ctx, currentTarget())
	if err != nil {
		if a.interrupted(err, "Discovery") {
			return nil
		}
		return fmt.Errorf("discovery failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Discovered tables: %d\n", len(result.Dictionaries))
	fmt.Fprintf(out, "Fetched: %d | Cache hits: %d | Failed: %d\n",
		result.Fetched, result.CacheHits, len(result.Failed))
	for _, name := range result.Failed {
		fmt.Fprintf(out, "  - failed: %s\n", name)
	}
	return nil
}
