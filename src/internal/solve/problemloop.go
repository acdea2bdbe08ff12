// Package solve implements the Problem Loop (spec.md §4.6, component C6):
// resolving verb→how job modifiers, then repeatedly asking the solver to
// solve the job set and walking the user through any problems it raises
// until either a clean solve or an explicit quit.
package solve

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"solv/src/internal/query"
	"solv/src/internal/solvpool"
)

// ErrQuit is returned when the user types "q" at a problem prompt.
var ErrQuit = fmt.Errorf("aborted by user")

// ruleLabel renders spec.md §4.6's fifteen root-rule-kind names.
func ruleLabel(k solvpool.RootRuleKind) string {
	switch k {
	case solvpool.RuleDistupgrade:
		return "distupgrade"
	case solvpool.RuleInfarch:
		return "infarch"
	case solvpool.RuleUpdate:
		return "update"
	case solvpool.RuleJob:
		return "job"
	case solvpool.RuleNothingProvidesDep:
		return "nothing-provides-dep"
	case solvpool.RuleRPM:
		return "rpm"
	case solvpool.RuleNotInstallable:
		return "not-installable"
	case solvpool.RuleNothingProvidesDepForSource:
		return "nothing-provides-dep-for-source"
	case solvpool.RuleSameName:
		return "same-name"
	case solvpool.RulePackageConflict:
		return "package-conflict"
	case solvpool.RulePackageObsoletes:
		return "package-obsoletes"
	case solvpool.RuleInstalledObsoletes:
		return "installed-obsoletes"
	case solvpool.RuleImplicitObsoletes:
		return "implicit-obsoletes"
	case solvpool.RulePackageRequires:
		return "package-requires"
	case solvpool.RuleSelfConflict:
		return "self-conflict"
	default:
		return "unknown"
	}
}

// Jobs builds the initial job set for one command invocation: compiling
// every raw argument through the Query Compiler, then applying this
// component's verb→how modifier rules (spec.md §4.6's opening paragraph).
// A bare "update" with no arguments becomes the single (SOLVABLE_ALL, 0) job.
func Jobs(pool *solvpool.Pool, cmdline solvpool.CommandlineHandle, fs afero.Fs, verb query.Verb, args []string) ([]solvpool.Job, error) {
	if verb == query.Update && len(args) == 0 {
		return []solvpool.Job{{Selector: solvpool.SelectorAll, What: solvpool.NoID, Mod: solvpool.ModUpdate}}, nil
	}

	var jobs []solvpool.Job
	for _, arg := range args {
		compiled, err := query.Compile(fs, pool, cmdline, verb, arg)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, compiled...)
	}
	return applyVerbModifiers(pool, verb, jobs), nil
}

func applyVerbModifiers(pool *solvpool.Pool, verb query.Verb, jobs []solvpool.Job) []solvpool.Job {
	out := make([]solvpool.Job, len(jobs))
	for i, j := range jobs {
		switch verb {
		case query.Install:
			j.Mod |= solvpool.ModInstall
		case query.Erase:
			j.Mod |= solvpool.ModErase
		case query.Update:
			if jobTargetsInstalled(pool, j) {
				j.Mod |= solvpool.ModUpdate
			} else {
				j.Mod |= solvpool.ModInstall
			}
		}
		out[i] = j
	}
	return out
}

func jobTargetsInstalled(pool *solvpool.Pool, j solvpool.Job) bool {
	switch j.Selector {
	case solvpool.SelectorAll:
		return true
	case solvpool.SelectorName, solvpool.SelectorProvides:
		// What is an interned name/capability here, not a solvable id.
		capability := pool.String(j.What)
		for _, s := range pool.WhatProvides(capability) {
			if s.Installed && (j.Selector == solvpool.SelectorProvides || s.Name == capability) {
				return true
			}
		}
		return false
	}
	ids := j.OneOf
	if j.Selector != solvpool.SelectorOneOf {
		ids = []solvpool.ID{j.What}
	}
	for _, id := range ids {
		if s, ok := pool.SolvableByID(id); ok && s.Installed {
			return true
		}
	}
	return false
}

// Run drives the outer loop of spec.md §4.6: create a solver, solve, and on
// failure walk every problem's solutions via in and out until the job set
// solves cleanly or the user quits.
func Run(pool *solvpool.Pool, newSolver func() solvpool.Solver, jobs []solvpool.Job, erase bool, in io.Reader, out io.Writer) (solvpool.Transaction, solvpool.InstallSizeChange, error) {
	scanner := bufio.NewScanner(in)

	for {
		solver := newSolver()
		solver.SetAllowUninstall(erase)
		solver.SetIgnoreAlreadyRecommended(true)

		problems := solver.Solve(jobs)
		if len(problems) == 0 {
			return solver.Transaction(), solver.InstallSizeChange(), nil
		}

		for _, p := range problems {
			fmt.Fprintf(out, "Problem: %s: %s\n", ruleLabel(p.Rule), p.Description)
			for i, sol := range p.Solutions {
				fmt.Fprintf(out, " %d) %s\n", i+1, sol.Description)
			}
			fmt.Fprint(out, "Solution (s=skip, q=quit): ")

			if !scanner.Scan() {
				return solvpool.Transaction{}, 0, ErrQuit
			}
			choice := strings.TrimSpace(scanner.Text())

			switch choice {
			case "q":
				return solvpool.Transaction{}, 0, ErrQuit
			case "s":
				continue
			default:
				n, err := strconv.Atoi(choice)
				if err != nil || n < 1 || n > len(p.Solutions) {
					fmt.Fprintf(out, "invalid choice %q, skipping problem\n", choice)
					continue
				}
				jobs = applySolution(jobs, p.Solutions[n-1])
			}
		}
	}
}

// applySolution implements spec.md §4.6 step 4's per-element rewrite.
func applySolution(jobs []solvpool.Job, sol solvpool.Solution) []solvpool.Job {
	for _, el := range sol.Elements {
		switch el.Kind {
		case solvpool.ElemRemoveJob:
			if el.JobIndex >= 0 && el.JobIndex < len(jobs) {
				jobs[el.JobIndex] = solvpool.Job{Selector: solvpool.SelectorAll, Mod: solvpool.ModNoop}
			}
		case solvpool.ElemAllowInfarch, solvpool.ElemAllowDistupgrade:
			if el.Solvable != nil {
				jobs = appendDeduped(jobs, solvpool.Job{Selector: solvpool.SelectorSolvable, What: el.Solvable.ID, Mod: solvpool.ModInstall})
			}
		case solvpool.ElemReplaceWith:
			if el.Replacement != nil {
				jobs = appendDeduped(jobs, solvpool.Job{Selector: solvpool.SelectorSolvable, What: el.Replacement.ID, Mod: solvpool.ModInstall})
			}
		case solvpool.ElemAllowDeinstall:
			if el.Solvable != nil {
				jobs = appendDeduped(jobs, solvpool.Job{Selector: solvpool.SelectorSolvable, What: el.Solvable.ID, Mod: solvpool.ModErase})
			}
		}
	}
	return jobs
}

func appendDeduped(jobs []solvpool.Job, j solvpool.Job) []solvpool.Job {
	if solvpool.ContainsJob(jobs, j) {
		return jobs
	}
	return append(jobs, j)
}
