package cmd

import (
	"github.com/spf13/cobra"

	"solv/src/internal/query"
)

var eraseCmd = &cobra.Command{
	Use:     "erase <name>...",
	Aliases: []string{"rm"},
	Short:   "Resolve and remove installed packages (spec.md §4.6/§4.7, verb=erase)",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutatingVerb(query.Erase, args)
	},
}

func init() {
	registerMutatingFlags(eraseCmd)
	rootCmd.AddCommand(eraseCmd)
}
