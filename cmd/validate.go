package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/proclat/internal/signature"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a signature table",
	Long: `Validate a signature table without analyzing any trace.

Every profile is checked and every pattern compiled. Without -f the
built-in table is validated.

Examples:
  proclat validate -f signatures.yml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(validateFile, cmd.OutOrStdout())
	},
}

var validateFile string

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "",
		"signature table to validate (default: built-in table)")
}

func runValidate(path string, out io.Writer) error {
	table, err := signature.Load(path)
	if err != nil {
		fmt.Fprintf(out, "INVALID: %v\n", err)
		return err
	}

	profiles := table.Profiles()
	signatures := 0
	for _, p := range profiles {
		signatures += len(p.Signatures)
	}
	fmt.Fprintf(out, "VALID: %d combination(s), %d signature(s)\n", len(profiles), signatures)
	return nil
}
