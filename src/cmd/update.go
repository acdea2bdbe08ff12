package cmd

import (
	"github.com/spf13/cobra"

	"solv/src/internal/query"
)

var updateCmd = &cobra.Command{
	Use:     "update [name]...",
	Aliases: []string{"up"},
	Short:   "Resolve and apply updates, or update everything if no names are given (spec.md §4.6/§4.7, verb=update)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMutatingVerb(query.Update, args)
	},
}

func init() {
	registerMutatingFlags(updateCmd)
	rootCmd.AddCommand(updateCmd)
}
