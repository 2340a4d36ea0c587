package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/proclat/internal/signature"
)

var signaturesCmd = &cobra.Command{
	Use:   "signatures",
	Short: "List the configured signature profiles",
	Long: `List every (function, variant, procedure) profile of the signature table
with its identity strategy, start policy and signatures.

Examples:
  proclat signatures
  proclat signatures -f signatures.yml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := signaturesFile
		if path == "" {
			path = globalConfig.Engine.Signatures
		}
		return runSignatures(path, cmd.OutOrStdout())
	},
}

var signaturesFile string

func init() {
	signaturesCmd.Flags().StringVarP(&signaturesFile, "file", "f", "",
		"signature table (default: engine.signatures)")
}

func runSignatures(path string, out io.Writer) error {
	table, err := signature.Load(path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FUNCTION\tVARIANT\tPROCEDURE\tDESCRIPTION\tIDENTITY\tSTART POLICY\tSIGNATURES")
	for _, p := range table.Profiles() {
		var names []string
		for _, s := range p.Signatures {
			names = append(names, fmt.Sprintf("%s:%s", s.Role, s.Label()))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			p.Function, p.Variant, p.Procedure, p.Procedure.DisplayName(), p.Identity, p.StartPolicy, names)
	}
	return tw.Flush()
}
