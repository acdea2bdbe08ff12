package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"solv/src/internal/blobcache"
	"solv/src/internal/fetch"
	"solv/src/internal/query"
	"solv/src/internal/solve"
	"solv/src/internal/solvpool"
	"solv/src/internal/txn"
)

var dryRun bool
var verboseSolver bool

func registerMutatingFlags(c *cobra.Command) {
	registerCommonFlags(c)
	c.Flags().BoolVar(&dryRun, "dry-run", false, "print the transaction summary and stop before downloading or committing")
	c.Flags().BoolVar(&verboseSolver, "verbose-solver", false, "forward solver debug verbosity (SPEC_FULL.md §4)")
}

// runMutatingVerb implements the shared tail of spec.md §4.6/§4.7 for
// install/erase/update: compile jobs, drive the Problem Loop to a clean
// transaction, print the summary, and — unless --dry-run — confirm,
// download, and commit.
func runMutatingVerb(verb query.Verb, args []string) error {
	s, err := openSession(context.Background())
	if err != nil {
		return err
	}
	defer s.close()

	jobs, err := solve.Jobs(s.pool, s.cmdline, s.fs, verb, args)
	if err != nil {
		if nme, ok := err.(*query.NoMatchError); ok {
			pterm.Warning.Println(nme.Error())
			return nil
		}
		return err
	}
	if len(jobs) == 0 {
		pterm.Info.Println("Nothing to do.")
		return nil
	}

	// The solver may propose uninstalls for erase only; install and update
	// never allow them.
	allowUninstall := verb == query.Erase

	newSolver := func() solvpool.Solver {
		solver := s.backend.NewSolver(s.pool)
		solver.SetVerbose(verboseSolver)
		return solver
	}

	transaction, sizeChange, err := solve.Run(s.pool, newSolver, jobs, allowUninstall, bufio.NewReader(os.Stdin), os.Stdout)
	if err != nil {
		if err == solve.ErrQuit {
			pterm.Info.Println("Aborted.")
			return nil
		}
		return err
	}

	summary := txn.Classify(transaction, sizeChange)
	txn.PrintSummary(os.Stdout, transaction, summary)
	if len(transaction.Steps) == 0 {
		return nil
	}
	if dryRun {
		return nil
	}

	ok, err := txn.Confirm(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if !ok {
		pterm.Info.Println("Aborted.")
		return nil
	}

	blobs, err := blobcache.New(cacheDirFlag + "/blobs")
	if err != nil {
		return fmt.Errorf("open blob cache: %w", err)
	}

	plan, err := txn.BuildDownloadPlan(
		context.Background(),
		func(path string) (io.ReadCloser, error) { return os.Open(path) },
		transaction.Steps,
		s.baseURLFor,
		fetch.Get,
		multiplexDeltaIndex{s},
		applydeltarpmPath(),
		blobs,
		os.Stdout,
	)
	if err != nil {
		return err
	}

	return txn.Commit(s.backend.OpenPackageDB(), "/", transaction.Steps, plan, os.Stdout)
}

func applydeltarpmPath() string {
	path, err := exec.LookPath("applydeltarpm")
	if err != nil {
		return ""
	}
	return path
}

// multiplexDeltaIndex adapts txn.DeltaIndex (one lookup per target
// solvable) onto the backend's per-alias delta catalogues: the target
// solvable already carries the repo alias it came from.
type multiplexDeltaIndex struct{ s *session }

func (m multiplexDeltaIndex) FindDelta(target *solvpool.Solvable, installedEVR string) (location, checksumHex, seq string, ok bool) {
	idx := m.s.deltaIndexFor(target.RepoAlias)
	if idx == nil {
		return "", "", "", false
	}
	return idx.FindDelta(target, installedEVR)
}
