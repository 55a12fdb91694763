package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goapidiscovery/internal/console"
	"github.com/dbsmedya/goapidiscovery/internal/pipeline"
)

var (
	catalogNamespace string
	catalogAPI       string
	crawlMaxSpecs    int
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Enumerate REST API namespaces, APIs and versions",
	Long: `Catalog resolves the instance's REST API catalog. Each level is resolved
through an ordered chain: authoritative metadata (sys_ws_definition), the
optional browser catalog file, the REST API Explorer page scrape, and finally
the built-in defaults (now/table/v1).`,
}

var listNamespacesCmd = &cobra.Command{
	Use:   "list-namespaces",
	Short: "List API namespaces",
	RunE:  runListNamespaces,
}

var listAPIsCmd = &cobra.Command{
	Use:   "list-apis",
	Short: "List APIs of a namespace",
	Long: `List-apis prints the APIs of one namespace.

Example:
  goapidiscovery catalog list-apis --namespace now`,
	RunE: runListAPIs,
}

var listVersionsCmd = &cobra.Command{
	Use:   "list-versions",
	Short: "List versions of an API",
	Long: `List-versions prints the versions of one API.

Example:
  goapidiscovery catalog list-versions --namespace now --api table`,
	RunE: runListVersions,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the full catalog and synthesize table API specs",
	Long: `Crawl enumerates every namespace, API and version, writes the catalog index
to <state-dir>/<platform>/_catalog.json, then discovers and synthesizes a
document for each table API entry, up to --max-specs valid documents.

Example:
  goapidiscovery catalog crawl --max-specs 20 --resume`,
	RunE: runCrawl,
}

func init() {
	listAPIsCmd.Flags().StringVar(&catalogNamespace, "namespace", "", "Namespace (required)")
	_ = listAPIsCmd.MarkFlagRequired("namespace")

	listVersionsCmd.Flags().StringVar(&catalogNamespace, "namespace", "", "Namespace (required)")
	listVersionsCmd.Flags().StringVar(&catalogAPI, "api", "", "API name (required)")
	_ = listVersionsCmd.MarkFlagRequired("namespace")
	_ = listVersionsCmd.MarkFlagRequired("api")

	crawlCmd.Flags().IntVar(&crawlMaxSpecs, "max-specs", pipeline.DefaultMaxSpecs,
		"Maximum number of specs to generate in this run")

	catalogCmd.AddCommand(listNamespacesCmd, listAPIsCmd, listVersionsCmd, crawlCmd)
	rootCmd.AddCommand(catalogCmd)
}

func printTokens(cmd *cobra.Command, tokens []string) {
	out := cmd.OutOrStdout()
	for _, t := range tokens {
		fmt.Fprintln(out, t)
	}
}

func runListNamespaces(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, stop := a.signalContext(cmd)
	defer stop()

	printTokens(cmd, a.resolver().Namespaces(ctx))
	return nil
}

func runListAPIs(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, stop := a.signalContext(cmd)
	defer stop()

	printTokens(cmd, a.resolver().APIs(ctx, catalogNamespace))
	return nil
}

func runListVersions(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, stop := a.signalContext(cmd)
	defer stop()

	printTokens(cmd, a.resolver().Versions(ctx, catalogNamespace, catalogAPI))
	return nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, stop := a.signalContext(cmd)
	defer stop()

	result, err := a.pipeline.Crawl(ctx, a.resolver(), crawlMaxSpecs)
	if err != nil {
		if a.interrupted(err, "Catalog crawl") {
			return nil
		}
		return fmt.Errorf("catalog crawl failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Catalog entries: %d\n", len(result.Entries))
	fmt.Fprintf(out, "Catalog index: %s\n\n", result.CatalogPath)

	tbl := console.NewTable("ENTRY", "STATUS", "DETAIL")
	tbl.SetStyler(console.StatusStyler(1))
	for _, path := range result.Generated {
		tbl.AddRow(path, "ok", "")
	}
	for _, label := range sortedKeys(result.Invalid) {
		tbl.AddRow(label, "invalid", result.Invalid[label])
	}
	for _, label := range sortedKeys(result.Failed) {
		tbl.AddRow(label, "failed", result.Failed[label])
	}
	if tbl.Len() > 0 {
		if err := tbl.Render(out); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\nGenerated: %d | Invalid: %d | Failed: %d | Skipped (not table API): %d\n",
		len(result.Generated), len(result.Invalid), len(result.Failed), result.Skipped)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
