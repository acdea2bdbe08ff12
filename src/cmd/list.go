package cmd

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"solv/src/internal/query"
	"solv/src/internal/solvpool"
)

var listCmd = &cobra.Command{
	Use:     "list [name|glob]...",
	Aliases: []string{"li"},
	Short:   "List installed packages, optionally filtered (spec.md §4.5, verb=list)",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(context.Background())
		if err != nil {
			return err
		}
		defer s.close()

		var candidates []*solvpool.Solvable
		if len(args) == 0 {
			candidates = s.pool.InstalledSolvables()
		} else {
			jobs, err := s.compileJobs(query.List, args)
			if err != nil {
				if nme, ok := err.(*query.NoMatchError); ok {
					pterm.Warning.Println(nme.Error())
					return nil
				}
				return err
			}
			for _, sv := range s.solvablesFor(jobs) {
				if sv.Installed {
					candidates = append(candidates, sv)
				}
			}
		}

		data := pterm.TableData{{"Name", "Version", "Arch"}}
		for _, sv := range candidates {
			data = append(data, []string{sv.Name, sv.EVR, sv.Arch})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	registerCommonFlags(listCmd)
	rootCmd.AddCommand(listCmd)
}
