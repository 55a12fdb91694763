package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goapidiscovery/internal/console"
	"github.com/dbsmedya/goapidiscovery/internal/verifier"
)

var specPath string

var validateSpecCmd = &cobra.Command{
	Use:   "validate-spec",
	Short: "Validate an OpenAPI document",
	Long: `Validate-spec parses an OpenAPI 3 JSON document and checks it for
structural conformance. Exit code 2 means the document is invalid.

Example:
  goapidiscovery validate-spec --path openapi_specs/servicenow_generated.json`,
	RunE: runValidateSpec,
}

func init() {
	validateSpecCmd.Flags().StringVar(&specPath, "path", "",
		"Path to OpenAPI spec JSON (required)")
	_ = validateSpecCmd.MarkFlagRequired("path")

	rootCmd.AddCommand(validateSpecCmd)
}

func runValidateSpec(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	ok, msg := verifier.ValidateSpec(fs, specPath)
	if !ok {
		fmt.Fprintf(out, "%s %s\n", console.Fail("Invalid spec:"), msg)
		return validationFailed(msg)
	}

	fmt.Fprintln(out, console.OK("Spec is valid"))
	return nil
}
