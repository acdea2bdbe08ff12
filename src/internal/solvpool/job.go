package solvpool

// Selector is the "how" half of a job's (how, what, [evr]) triple, per
// spec.md §3.
type Selector int

const (
	SelectorSolvable Selector = iota // by solvable-id (e.g. a @commandline rpm)
	SelectorName                     // SOLVABLE_NAME
	SelectorProvides                 // SOLVABLE_PROVIDES
	SelectorOneOf                    // SOLVABLE_ONE_OF
	SelectorAll                      // SOLVABLE_ALL
)

// Modifier bits, combined with a Selector to form the full "how".
type Modifier uint32

const (
	ModInstall Modifier = 1 << iota
	ModErase
	ModUpdate
	ModSetArch
	ModSetEVR
	ModSetEV
	ModNoAutoSet
	ModNoop
)

func (m Modifier) Has(bit Modifier) bool { return m&bit != 0 }

// RelFlags encode a relational operator for limitjobs/limitjobs_arch
// (spec.md §4.5).
type RelFlags int

const (
	RelLT RelFlags = 1 << iota
	RelEQ
	RelGT
	RelArch
)

// Job is the solver-facing request produced by the Query Compiler (C5) and
// consumed by the Problem Loop (C6).
type Job struct {
	Selector Selector
	What     ID   // meaningful for SelectorSolvable/SelectorName/SelectorProvides
	OneOf    []ID // meaningful for SelectorOneOf
	Mod      Modifier
	EVR      string
	Rel      RelFlags
	// Arch is set by limitjobs_arch (and the relational/plain form's
	// name.arch fallback) when a trailing ".arch" component was split off
	// and verified against isknownarch (spec.md §4.5).
	Arch string
}

// SameWhat implements the job-deduplication rule of spec.md §4.6 step 4:
// "Deduplicate against existing jobs (same how and what)".
func (j Job) SameWhat(other Job) bool {
	if j.Selector != other.Selector || j.Mod != other.Mod {
		return false
	}
	if j.Selector == SelectorOneOf {
		return idSliceEqual(j.OneOf, other.OneOf)
	}
	return j.What == other.What
}

func idSliceEqual(a, b []ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ContainsJob reports whether jobs already has an entry matching j by
// SameWhat, the dedup check applied before appending a new job in the
// Problem Loop (spec.md §4.6 step 4).
func ContainsJob(jobs []Job, j Job) bool {
	for _, existing := range jobs {
		if existing.SameWhat(j) {
			return true
		}
	}
	return false
}
