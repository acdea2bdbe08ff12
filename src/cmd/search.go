package cmd

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"solv/src/internal/query"
)

var searchCmd = &cobra.Command{
	Use:     "search <name|glob|capability>...",
	Aliases: []string{"se"},
	Short:   "Search repository metadata for matching packages (spec.md §4.5, verb=search)",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.close()

		jobs, err := s.compileJobs(query.Search, args)
		if err != nil {
			if nme, ok := err.(*query.NoMatchError); ok {
				pterm.Warning.Println(nme.Error())
				return nil
			}
			return err
		}

		data := pterm.TableData{{"Name", "Version", "Arch", "Repository"}}
		for _, sv := range s.solvablesFor(jobs) {
			data = append(data, []string{sv.Name, sv.EVR, sv.Arch, sv.RepoAlias})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	registerCommonFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
