package solvpool

import "sort"

// MemSolver is a reference, in-memory stand-in for the real SAT solver. It
// exists so the rest of the driver (Query Compiler, Problem Loop,
// Transaction Executor) can be built and unit-tested against the Solver
// contract without the native libsolv dependency — exactly the role
// spec.md §1 assigns to "the solver": an external collaborator consumed
// through its contract. It implements enough of the real solver's observable
// behavior (conflict detection, problem/solution surfacing, transaction
// classification) to drive the seed test scenarios of spec.md §8; it does
// not implement general dependency SAT solving.
type MemSolver struct {
	Pool                     *Pool
	allowUninstall           bool
	ignoreAlreadyRecommended bool
	verbose                  bool

	lastTransaction Transaction
	lastSizeChange  InstallSizeChange
}

func NewMemSolver(pool *Pool) *MemSolver {
	return &MemSolver{Pool: pool}
}

func (s *MemSolver) SetAllowUninstall(v bool)           { s.allowUninstall = v }
func (s *MemSolver) SetIgnoreAlreadyRecommended(v bool) { s.ignoreAlreadyRecommended = v }
func (s *MemSolver) SetVerbose(v bool)                  { s.verbose = v }

func (s *MemSolver) Transaction() Transaction             { return s.lastTransaction }
func (s *MemSolver) InstallSizeChange() InstallSizeChange { return s.lastSizeChange }

// resolve maps a single job to the solvable(s) it currently targets.
func (s *MemSolver) resolve(j Job) []*Solvable {
	switch j.Selector {
	case SelectorSolvable:
		for _, sv := range s.Pool.AllSolvables() {
			if sv.ID == j.What {
				return []*Solvable{sv}
			}
		}
		return nil
	case SelectorName:
		name := s.Pool.String(j.What)
		var pool []*Solvable
		if j.Mod.Has(ModErase) {
			for _, sv := range s.Pool.InstalledSolvables() {
				if sv.Name == name {
					pool = append(pool, sv)
				}
			}
		} else {
			for _, sv := range s.Pool.AllSolvables() {
				if sv.Name == name && !sv.Installed {
					pool = append(pool, sv)
				}
			}
			if len(pool) == 0 {
				// nothing installable under that name; fall back to an
				// already-installed candidate so reinstall/update jobs
				// against a name with no repo candidate still resolve.
				for _, sv := range s.Pool.InstalledSolvables() {
					if sv.Name == name {
						pool = append(pool, sv)
					}
				}
			}
		}
		return bestByEVR(pool)
	case SelectorProvides:
		cap := s.Pool.String(j.What)
		return bestByEVR(s.Pool.WhatProvides(cap))
	case SelectorOneOf:
		var out []*Solvable
		for _, id := range j.OneOf {
			for _, sv := range s.Pool.AllSolvables() {
				if sv.ID == id {
					out = append(out, sv)
					break
				}
			}
		}
		return out
	case SelectorAll:
		return s.Pool.InstalledSolvables()
	}
	return nil
}

func bestByEVR(candidates []*Solvable) []*Solvable {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.EVR > best.EVR {
			best = c
		}
	}
	return []*Solvable{best}
}

func conflicts(a, b *Solvable) bool {
	if a.Name == b.Name {
		return false
	}
	for _, c := range a.Conflicts {
		if c == b.Name {
			return true
		}
	}
	for _, c := range b.Conflicts {
		if c == a.Name {
			return true
		}
	}
	return false
}

// Solve implements the outer-loop contract of spec.md §4.6: it returns a
// non-empty problem list when jobs cannot be satisfied cleanly, and leaves
// Transaction()/InstallSizeChange() valid once it returns nil.
func (s *MemSolver) Solve(jobs []Job) []Problem {
	chosen := make([][]*Solvable, len(jobs))
	for i, j := range jobs {
		if j.Mod.Has(ModNoop) {
			continue
		}
		chosen[i] = s.resolve(j)
	}

	var problems []Problem

	// Ambiguous one-of selections: the compiler left the choice to the
	// solver (spec.md §4.5 item 1, "many matches").
	for i, j := range jobs {
		if j.Mod.Has(ModNoop) || j.Selector != SelectorOneOf {
			continue
		}
		if len(chosen[i]) > 1 {
			var sols []Solution
			for _, sv := range chosen[i] {
				sols = append(sols, Solution{
					Description: "install " + sv.Name + "-" + sv.EVR,
					Elements:    []Element{{Kind: ElemReplaceWith, Replacement: sv}},
				})
			}
			problems = append(problems, Problem{JobIndex: i, Rule: RuleJob, Description: "ambiguous selection for job", Solutions: sols})
		}
	}
	if len(problems) > 0 {
		return problems
	}

	// Missing candidate for a non-erase, non-all job.
	for i, j := range jobs {
		if j.Mod.Has(ModNoop) || j.Selector == SelectorAll || j.Mod.Has(ModErase) {
			continue
		}
		if len(chosen[i]) == 0 {
			problems = append(problems, Problem{
				JobIndex: i, Rule: RuleNotInstallable,
				Description: "nothing provides the requested package",
				Solutions: []Solution{{
					Description: "skip this request",
					Elements:    []Element{{Kind: ElemRemoveJob, JobIndex: i}},
				}},
			})
		}
	}
	if len(problems) > 0 {
		return problems
	}

	// Same-name collisions and capability conflicts across install jobs.
	for i := range jobs {
		for _, a := range chosen[i] {
			for k := i + 1; k < len(jobs); k++ {
				for _, b := range chosen[k] {
					if a.Name == b.Name && a.EVR != b.EVR {
						problems = append(problems, Problem{
							JobIndex: i, Rule: RuleSameName,
							Description: a.Name + " requested at two different versions",
							Solutions: []Solution{
								{Description: "keep " + a.Name + "-" + a.EVR + ", skip the other request",
									Elements: []Element{{Kind: ElemRemoveJob, JobIndex: k}}},
								{Description: "keep " + b.Name + "-" + b.EVR + ", skip the other request",
									Elements: []Element{{Kind: ElemRemoveJob, JobIndex: i}}},
							},
						})
					}
					if conflicts(a, b) {
						problems = append(problems, Problem{
							JobIndex: i, Rule: RulePackageConflict,
							Description: a.Name + " conflicts with " + b.Name,
							Solutions: []Solution{
								{Description: "do not install " + b.Name,
									Elements: []Element{{Kind: ElemRemoveJob, JobIndex: k}}},
								{Description: "deinstall " + a.Name + " instead",
									Elements: []Element{{Kind: ElemAllowDeinstall, Solvable: a}}},
							},
						})
					}
				}
			}
		}
	}
	if len(problems) > 0 {
		return problems
	}

	s.lastTransaction = s.buildTransaction(jobs, chosen)
	s.lastSizeChange = estimateSizeChange(s.lastTransaction)
	return nil
}

func (s *MemSolver) buildTransaction(jobs []Job, chosen [][]*Solvable) Transaction {
	var steps []Step
	installedByName := map[string]*Solvable{}
	for _, sv := range s.Pool.InstalledSolvables() {
		installedByName[sv.Name] = sv
	}

	seen := map[ID]bool{}
	for i, j := range jobs {
		if j.Mod.Has(ModNoop) {
			continue
		}
		for _, sv := range chosen[i] {
			if seen[sv.ID] {
				continue
			}
			seen[sv.ID] = true

			if j.Mod.Has(ModErase) {
				steps = append(steps, Step{Solvable: sv, Class: StepErase})
				continue
			}

			existing, wasInstalled := installedByName[sv.Name]
			switch {
			case !wasInstalled:
				steps = append(steps, Step{Solvable: sv, Class: StepInstall})
			case existing.Arch != sv.Arch:
				steps = append(steps, Step{Solvable: sv, Other: existing, Class: StepArchChange})
			case existing.EVR == sv.EVR:
				steps = append(steps, Step{Solvable: sv, Other: existing, Class: StepReinstalled})
			case existing.EVR < sv.EVR:
				steps = append(steps, Step{Solvable: sv, Other: existing, Class: StepUpgraded})
			default:
				steps = append(steps, Step{Solvable: sv, Other: existing, Class: StepDowngraded})
			}
		}
	}

	sort.SliceStable(steps, func(a, b int) bool { return steps[a].Solvable.Name < steps[b].Solvable.Name })
	return Transaction{Steps: steps}
}

func estimateSizeChange(t Transaction) InstallSizeChange {
	var delta InstallSizeChange
	for _, st := range t.Steps {
		switch st.Class {
		case StepErase:
			delta--
		case StepInstall, StepUpgraded, StepArchChange:
			delta++
		}
	}
	return delta
}
