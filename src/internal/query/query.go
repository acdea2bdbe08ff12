// Package query implements the Query Compiler (spec.md §4.5, component C5):
// turning one command verb and one raw argument string into a list of
// solvpool.Job values by trying path-form, relational-form, and plain-form
// matching in order, backed by depglob/limitjobs/limitjobs_arch.
package query

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/afero"

	"solv/src/internal/evr"
	"solv/src/internal/solvpool"
)

// Verb is the command driving which modifier bits get attached to every
// job Compile produces.
type Verb string

const (
	Search  Verb = "search"
	List    Verb = "list"
	Info    Verb = "info"
	Install Verb = "install"
	Erase   Verb = "erase"
	Update  Verb = "update"
)

// NoMatchError is returned when no form matched anything; Suggestions holds
// the fuzzysearch "did you mean" candidates against the pool's interned
// names, per SPEC_FULL.md §2's fuzzysearch wiring.
type NoMatchError struct {
	Arg         string
	Suggestions []string
}

func (e *NoMatchError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("no package matched %q", e.Arg)
	}
	return fmt.Sprintf("no package matched %q, did you mean: %s", e.Arg, strings.Join(e.Suggestions, ", "))
}

var relOpRe = regexp.MustCompile(`^\s*(.+?)\s*(<=|>=|<>|<|=|>)\s*(.+?)\s*$`)
var nameArchRe = regexp.MustCompile(`^(.+)\.(.+?)$`)

func relFlagsFor(op string) solvpool.RelFlags {
	switch op {
	case "<":
		return solvpool.RelLT
	case "<=":
		return solvpool.RelLT | solvpool.RelEQ
	case "=":
		return solvpool.RelEQ
	case ">=":
		return solvpool.RelEQ | solvpool.RelGT
	case ">":
		return solvpool.RelGT
	case "<>":
		return solvpool.RelLT | solvpool.RelGT
	default:
		return 0
	}
}

func containsGlobMeta(s string) bool {
	return strings.ContainsAny(s, "[*?")
}

// baseKnownArches mirrors the small set of architectures zypper's rpm backend
// recognizes (spec.md §4.5's isknownarch), plus the pool's own arch.
var baseKnownArches = map[string]bool{
	"noarch": true, "x86_64": true, "i686": true, "i586": true, "i486": true,
	"i386": true, "aarch64": true, "armv7hl": true, "armv6hl": true,
	"ppc64le": true, "ppc64": true, "s390x": true, "riscv64": true,
}

func isKnownArch(pool *solvpool.Pool, arch string) bool {
	if baseKnownArches[arch] {
		return true
	}
	return arch == pool.Arch
}

// --- bloom pre-filter, rebuilt once per observed pool generation ---

var bloomCache sync.Map // *solvpool.Pool -> *cachedBloom

type cachedBloom struct {
	count  int
	filter *bloom.BloomFilter
}

func bloomForPool(pool *solvpool.Pool) *bloom.BloomFilter {
	solvables := pool.AllSolvables()
	if v, ok := bloomCache.Load(pool); ok {
		cb := v.(*cachedBloom)
		if cb.count == len(solvables) {
			return cb.filter
		}
	}
	f := bloom.NewWithEstimates(uint(len(solvables)*8+1), 0.01)
	for _, s := range solvables {
		// Index every prefix so a glob pattern's literal lead-in ("lib" out
		// of "lib*.so") can be bloom-tested directly: a miss here proves no
		// name can possibly match, a hit just falls through to the real scan.
		for i := 1; i <= len(s.Name); i++ {
			f.Add([]byte(s.Name[:i]))
		}
	}
	bloomCache.Store(pool, &cachedBloom{count: len(solvables), filter: f})
	return f
}

// mayContainName is the cheap negative pre-filter spec.md §2 describes:
// a bloom miss means no solvable can possibly carry this literal name, so
// the caller can skip the full glob scan entirely for non-glob fragments.
func mayContainName(pool *solvpool.Pool, literal string) bool {
	return bloomForPool(pool).Test([]byte(literal))
}

// globLiteralPrefix returns the portion of a glob pattern before its first
// meta-character, used to bloom-check before the expensive fnmatch scan.
func globLiteralPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "[*?"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// Depglob implements spec.md §4.5's depglob(name, globname, globdep).
func Depglob(pool *solvpool.Pool, name string, globName, globDep bool) ([]solvpool.Job, string) {
	if id, ok := pool.Lookup(name); ok {
		if pool.HasOwnName(name) {
			return []solvpool.Job{{Selector: solvpool.SelectorName, What: id}}, ""
		}
		if providers := pool.WhatProvides(name); len(providers) > 0 {
			return []solvpool.Job{{Selector: solvpool.SelectorProvides, What: id}},
				fmt.Sprintf("%q resolved via provides, not a package name", name)
		}
	}

	if !containsGlobMeta(name) {
		return nil, ""
	}

	prefix := globLiteralPrefix(name)
	if prefix != "" && !mayContainName(pool, prefix) && !globDep {
		// Pure glob-by-name search and the bloom filter rules out every
		// solvable name sharing this pattern's literal prefix.
		return nil, ""
	}

	var jobs []solvpool.Job

	if globName {
		hit := map[solvpool.ID]bool{}
		for _, s := range pool.AllSolvables() {
			if ok, _ := path.Match(name, s.Name); ok {
				if id, ok2 := pool.Lookup(s.Name); ok2 {
					hit[id] = true
				}
			}
		}
		ids := idsOf(hit)
		for _, id := range ids {
			jobs = append(jobs, solvpool.Job{Selector: solvpool.SelectorName, What: id})
		}
	}

	if globDep {
		hit := map[solvpool.ID]bool{}
		for _, s := range pool.AllSolvables() {
			for _, p := range s.Provides {
				if ok, _ := path.Match(name, p); ok {
					hit[pool.Intern(p)] = true
				}
			}
		}
		ids := idsOf(hit)
		for _, id := range ids {
			jobs = append(jobs, solvpool.Job{Selector: solvpool.SelectorProvides, What: id})
		}
	}

	return jobs, ""
}

func idsOf(m map[solvpool.ID]bool) []solvpool.ID {
	out := make([]solvpool.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Limitjobs implements spec.md §4.5's limitjobs(flags, evr).
func Limitjobs(jobs []solvpool.Job, flags solvpool.RelFlags, evrStr string) []solvpool.Job {
	out := make([]solvpool.Job, len(jobs))
	for i, j := range jobs {
		j.EVR = evrStr
		j.Rel = flags
		if flags == solvpool.RelArch {
			j.Mod |= solvpool.ModSetArch
		}
		if flags == solvpool.RelEQ && j.Selector == solvpool.SelectorName {
			if strings.Contains(evrStr, "-") {
				j.Mod |= solvpool.ModSetEVR
			} else {
				j.Mod |= solvpool.ModSetEV
			}
		}
		out[i] = j
	}
	return out
}

// setArch locks every job's architecture without disturbing any evr
// relation already applied, the "intersect with REL_ARCH" step of the
// relational-form's name.arch fallback.
func setArch(jobs []solvpool.Job, arch string) []solvpool.Job {
	out := make([]solvpool.Job, len(jobs))
	for i, j := range jobs {
		j.Arch = arch
		j.Mod |= solvpool.ModSetArch
		out[i] = j
	}
	return out
}

// LimitjobsArch implements spec.md §4.5's limitjobs_arch(flags, evr): split
// on the last '.', apply REL_ARCH first if the suffix is a known arch, then
// flags to the (possibly shortened) stem.
func LimitjobsArch(pool *solvpool.Pool, jobs []solvpool.Job, flags solvpool.RelFlags, evrStr string) []solvpool.Job {
	stem := evrStr
	arch := ""
	if idx := strings.LastIndex(evrStr, "."); idx > 0 {
		candidate := evrStr[idx+1:]
		if isKnownArch(pool, candidate) {
			arch = candidate
			stem = evrStr[:idx]
		}
	}
	jobs = Limitjobs(jobs, flags, stem)
	if arch != "" {
		jobs = setArch(jobs, arch)
	}
	return jobs
}

func matchPathForm(pool *solvpool.Pool, arg string, installedOnly bool) []solvpool.Job {
	var candidates []*solvpool.Solvable
	if installedOnly {
		candidates = pool.InstalledSolvables()
	} else {
		candidates = pool.AllSolvables()
	}
	useGlob := containsGlobMeta(arg)

	var matches []*solvpool.Solvable
	for _, s := range candidates {
		for _, f := range s.Files {
			var hit bool
			if useGlob {
				hit, _ = path.Match(arg, f)
			} else {
				hit = f == arg
			}
			if hit {
				matches = append(matches, s)
				break
			}
		}
	}
	if len(matches) == 0 {
		return nil
	}
	if len(matches) == 1 {
		return []solvpool.Job{{Selector: solvpool.SelectorSolvable, What: matches[0].ID, Mod: solvpool.ModNoAutoSet}}
	}
	ids := make([]solvpool.ID, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return []solvpool.Job{{Selector: solvpool.SelectorOneOf, OneOf: ids}}
}

func matchRelationalForm(pool *solvpool.Pool, arg string) []solvpool.Job {
	m := relOpRe.FindStringSubmatch(arg)
	if m == nil {
		return nil
	}
	name, op, evrStr := m[1], m[2], m[3]
	flags := relFlagsFor(op)

	jobs, _ := Depglob(pool, name, true, true)
	if len(jobs) > 0 {
		return Limitjobs(jobs, flags, evrStr)
	}

	am := nameArchRe.FindStringSubmatch(name)
	if am != nil && isKnownArch(pool, am[2]) {
		jobs, _ = Depglob(pool, am[1], true, true)
		if len(jobs) > 0 {
			jobs = Limitjobs(jobs, flags, evrStr)
			jobs = setArch(jobs, am[2])
		}
	}
	return jobs
}

func matchPlainForm(pool *solvpool.Pool, arg string) []solvpool.Job {
	if jobs, _ := Depglob(pool, arg, true, true); len(jobs) > 0 {
		return jobs
	}

	if am := nameArchRe.FindStringSubmatch(arg); am != nil && isKnownArch(pool, am[2]) {
		if jobs, _ := Depglob(pool, am[1], true, true); len(jobs) > 0 {
			return setArch(jobs, am[2])
		}
	}

	if name, evrStr, ok := evr.SplitNameEVR(arg); ok {
		if jobs, _ := Depglob(pool, name, true, false); len(jobs) > 0 {
			return LimitjobsArch(pool, jobs, solvpool.RelEQ, evrStr)
		}
	}

	if name, evrStr, ok := evr.SplitNameVerRel(arg); ok {
		if jobs, _ := Depglob(pool, name, true, false); len(jobs) > 0 {
			return LimitjobsArch(pool, jobs, solvpool.RelEQ, evrStr)
		}
	}

	return nil
}

// Suggest returns up to n fuzzysearch candidates against the pool's
// installable package names, for a plain-form argument that matched
// nothing and carries no glob metacharacters.
func Suggest(pool *solvpool.Pool, arg string, n int) []string {
	seen := map[string]bool{}
	var names []string
	for _, s := range pool.AllSolvables() {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	ranks := fuzzy.RankFindNormalizedFold(arg, names)
	sort.Sort(ranks)
	if len(ranks) > n {
		ranks = ranks[:n]
	}
	out := make([]string, len(ranks))
	for i, r := range ranks {
		out[i] = r.Target
	}
	return out
}

// tryCommandlinePackage implements spec.md §4.5's "Command-line packages":
// any argument ending in .rpm that names a readable file is added to the
// synthetic @commandline repo and matched directly.
func tryCommandlinePackage(fs afero.Fs, cmdline solvpool.CommandlineHandle, arg string) (solvpool.Job, bool, error) {
	if cmdline == nil || !strings.HasSuffix(arg, ".rpm") {
		return solvpool.Job{}, false, nil
	}
	info, err := fs.Stat(arg)
	if err != nil || info.IsDir() {
		return solvpool.Job{}, false, nil
	}
	id, err := cmdline.AddRPM(arg, solvpool.FlagReuseRepodata|solvpool.FlagNoInternalize)
	if err != nil {
		return solvpool.Job{}, false, err
	}
	return solvpool.Job{Selector: solvpool.SelectorSolvable, What: id}, true, nil
}

// Compile turns one command verb and raw argument into jobs, trying
// command-line-rpm detection, then path-form, relational-form, and
// plain-form in order (spec.md §4.5). cmdline may be nil when the caller
// knows arg cannot be a local .rpm path (e.g. search/list/info queries).
//
// Compile does not attach the install/erase/update "how" modifier: that
// verb→how resolution (in particular update's install-vs-update split on
// whether the target is already installed) is the Problem Loop's job
// (spec.md §4.6), not the Query Compiler's.
func Compile(fs afero.Fs, pool *solvpool.Pool, cmdline solvpool.CommandlineHandle, verb Verb, arg string) ([]solvpool.Job, error) {
	if job, ok, err := tryCommandlinePackage(fs, cmdline, arg); err != nil {
		return nil, err
	} else if ok {
		return []solvpool.Job{job}, nil
	}

	var jobs []solvpool.Job
	if strings.HasPrefix(arg, "/") {
		jobs = matchPathForm(pool, arg, verb == Erase)
	}
	if len(jobs) == 0 {
		jobs = matchRelationalForm(pool, arg)
	}
	if len(jobs) == 0 {
		jobs = matchPlainForm(pool, arg)
	}

	if len(jobs) == 0 {
		var suggestions []string
		if !containsGlobMeta(arg) {
			suggestions = Suggest(pool, arg, 3)
		}
		return nil, &NoMatchError{Arg: arg, Suggestions: suggestions}
	}

	return jobs, nil
}
