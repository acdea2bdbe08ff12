package cmd

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"solv/src/internal/query"
)

var infoCmd = &cobra.Command{
	Use:   "info <name>...",
	Short: "Print full metadata for matching packages (spec.md §4.5, verb=info)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.close()

		jobs, err := s.compileJobs(query.Info, args)
		if err != nil {
			if nme, ok := err.(*query.NoMatchError); ok {
				pterm.Warning.Println(nme.Error())
				return nil
			}
			return err
		}

		for _, sv := range s.solvablesFor(jobs) {
			fmt.Printf("Name        : %s\n", sv.Name)
			fmt.Printf("Version     : %s\n", sv.EVR)
			fmt.Printf("Arch        : %s\n", sv.Arch)
			fmt.Printf("Repository  : %s\n", sv.RepoAlias)
			fmt.Printf("Installed   : %t\n", sv.Installed)
			if len(sv.Requires) > 0 {
				fmt.Printf("Requires    : %v\n", sv.Requires)
			}
			if len(sv.Provides) > 0 {
				fmt.Printf("Provides    : %v\n", sv.Provides)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	registerCommonFlags(infoCmd)
	rootCmd.AddCommand(infoCmd)
}
