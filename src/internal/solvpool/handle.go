package solvpool

import "io"

// LoadFlags mirror the solv library's repo-load flags named in spec.md §4.1
// step 4 and §4.3's susetags two-phase load.
type LoadFlags uint32

const (
	FlagUseLoading LoadFlags = 1 << iota
	FlagExtendSolvables
	FlagLocalPool
	FlagNoStubs
	FlagRecordShares
	FlagReuseRepodata
	FlagNoInternalize
)

func (f LoadFlags) Has(bit LoadFlags) bool { return f&bit != 0 }

// RepoHandle is the pool-side repository object a spec.md §3 "Repository
// record" carries once loaded. It is the seam onto the opaque solv binary
// format and RPM/susetags/repomd parsers (spec.md §1): the driver never
// looks inside a serialized body, it only asks the handle to read/write
// one and reports back whether the in-memory repo became contiguous.
type RepoHandle interface {
	// WritePrimary serializes the whole repo (the C1 "primary write" path).
	WritePrimary(w io.Writer) error
	// WriteFirstRepodata serializes only the first repodata (the C1
	// "rewrite" path used after rewrite_repos, spec.md §4.4).
	WriteFirstRepodata(w io.Writer) error
	// LoadSolv ingests a solv-format body under the given flags (both the
	// C1 primary/extension read path and a fresh cache write's reopen step).
	LoadSolv(r io.Reader, flags LoadFlags) error
	// Contiguous reports whether the solver considers the in-memory repo
	// contiguous after a primary write, gating the reopen-and-swap
	// optimization of spec.md §4.1 step 5.
	Contiguous() bool
	// Internalize commits any pending repodata changes (used after
	// rewrite_repos merges new provides ids, and after the susetags
	// two-phase primary load).
	Internalize()
}

// ExtensionInfo is the opaque "extension repodata descriptor" spec.md §4.1
// step 3 calls `info`: its own WriterTo is the extension-write path, and it
// also carries enough to answer the load-callback dispatch of spec.md §4.4.
type ExtensionInfo interface {
	io.WriterTo
	Kind() string // "filelists" | "deltainfo" | susetags language tag
	Location() string
	ChecksumHex() string
}
