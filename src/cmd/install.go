package cmd

import (
	"github.com/spf13/cobra"

	"solv/src/internal/query"
)

var installCmd = &cobra.Command{
	Use:     "install <name|path.rpm|capability>...",
	Aliases: []string{"in"},
	Short:   "Resolve and install packages (spec.md §4.6/§4.7, verb=install)",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutatingVerb(query.Install, args)
	},
}

func init() {
	registerMutatingFlags(installCmd)
	rootCmd.AddCommand(installCmd)
}
