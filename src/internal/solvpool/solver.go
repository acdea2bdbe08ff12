package solvpool

// RootRuleKind enumerates the root-rule kinds the Problem Loop (C6) must
// render one human string for, per spec.md §4.6 step 3.
type RootRuleKind int

const (
	RuleDistupgrade RootRuleKind = iota
	RuleInfarch
	RuleUpdate
	RuleJob
	RuleNothingProvidesDep
	RuleRPM
	RuleNotInstallable
	RuleNothingProvidesDepForSource
	RuleSameName
	RulePackageConflict
	RulePackageObsoletes
	RuleInstalledObsoletes
	RuleImplicitObsoletes
	RulePackageRequires
	RuleSelfConflict
)

// ElementKind enumerates the solution-element kinds of spec.md §3/§4.6.
type ElementKind int

const (
	ElemRemoveJob ElementKind = iota
	ElemAllowInfarch
	ElemAllowDistupgrade
	ElemReplaceWith
	ElemAllowDeinstall
)

// Element is one machine-applicable remedy within a Solution.
type Element struct {
	Kind        ElementKind
	JobIndex    int       // meaningful for ElemRemoveJob
	Solvable    *Solvable // meaningful for infarch/distupgrade/deinstall
	Replacement *Solvable // meaningful for ElemReplaceWith
}

// Solution is one of the proposed remedies for a Problem.
type Solution struct {
	Description string
	Elements    []Element
}

// Problem is an opaque handle obtained from the solver after a failed
// Solve(jobs); it always yields at least one Solution.
type Problem struct {
	JobIndex    int // which job (if any) triggered this; -1 if not job-specific
	Rule        RootRuleKind
	Description string
	Solutions   []Solution
}

// StepClass classifies a single transaction step, per spec.md §3.
type StepClass int

const (
	StepErase StepClass = iota
	StepInstall
	StepMultiInstall
	StepUpgraded
	StepDowngraded
	StepReinstalled
	StepChanged
	StepArchChange
	StepVendorChange
)

// RPMOnly reports whether class participates in the RPM_ONLY mask consumed
// by the Transaction Executor's commit step (spec.md §4.7 step 5): erase,
// install, and multi-install steps are the only ones that turn directly
// into an rpm transaction-set operation; the rest are summary-only
// reclassifications of an underlying install/erase pair.
func (c StepClass) RPMOnly() bool {
	switch c {
	case StepErase, StepInstall, StepMultiInstall:
		return true
	default:
		return false
	}
}

// Step is one entry of a committed Transaction.
type Step struct {
	Solvable *Solvable
	Other    *Solvable // "othersolvable": the replaced/replacing side, for upgrade/downgrade display
	Class    StepClass
}

// Transaction is the solver's ordered, classified output.
type Transaction struct {
	Steps []Step
}

// InstallSizeChange mirrors calc_installsizechange (spec.md §4.7 step 2): a
// signed estimate of the net change to installed size, in bytes. The actual
// value comes from the solver; the driver only threads it through.
type InstallSizeChange int64

// Solver is the external SAT solver contract (spec.md §1). A fresh Solver
// is created per outer-loop iteration of the Problem Loop (spec.md §4.6
// step 1).
type Solver interface {
	SetAllowUninstall(bool)
	SetIgnoreAlreadyRecommended(bool)
	// SetVerbose forwards pysolv's `-v`/`solver.set_flag` debug level
	// (SPEC_FULL.md §4's supplemented `--verbose-solver` flag).
	SetVerbose(bool)
	// Solve returns the problems blocking jobs, or nil once jobs solve
	// cleanly. After a nil return, Transaction and InstallSizeChange are
	// valid.
	Solve(jobs []Job) []Problem
	Transaction() Transaction
	InstallSizeChange() InstallSizeChange
}
