// Package solvpool declares the contracts the driver programs against for
// the SAT solver, its pool of interned identifiers/solvables, and the
// system RPM transaction set (spec.md §1: "The driver consumes their
// contracts; it does not re-implement them"). It also ships a reference
// in-memory implementation (memsolver.go) used by the rest of the driver's
// unit tests, the way the teacher repo stubs its own external collaborators
// (python.Manager, venv.Manager) rather than shelling out in tests.
package solvpool

import (
	"sync"

	"solv/src/internal/cookie"
)

// ID is an interned identifier: a name, a version-range, an architecture,
// or a dependency expression string, per spec.md §3.
type ID uint32

// NoID is the sentinel for "no identifier" (job.What for SOLVABLE_ALL, etc).
const NoID ID = 0

// Pool is the process-global set of solvables and interned identifiers.
// Exactly one installed-repository reference points into it at a time
// (spec.md §3).
type Pool struct {
	mu sync.RWMutex

	Arch string

	byString map[string]ID
	byID     []string // index 0 unused, so len(byID)-1 == highest ID

	repos     map[string]*Repo
	installed *Repo
}

// Repo mirrors spec.md §3's "Repository record": baseurl/priority/etc are
// owned by internal/repoconfig.RepoRecord; this struct is the pool-side
// handle a RepoRecord points to.
type Repo struct {
	Alias     string
	Priority  int
	Installed bool
	Solvables []*Solvable
}

// Solvable is a single versioned, architected package candidate.
type Solvable struct {
	ID        ID
	Name      string
	EVR       string
	Arch      string
	Provides  []string
	Requires  []string
	Obsoletes []string
	Conflicts []string
	Files     []string
	RepoAlias string
	Installed bool
	RPMDBID   uint64

	// Location is the package's path relative to its repo's baseurl (rpm-md)
	// or baseurl+datadir (susetags), the Transaction Executor's C2.fetch
	// target (spec.md §4.7 step 4).
	Location string
	// Checksum is the declared package checksum C2.fetch verifies against.
	Checksum cookie.Checksum
	// SourcePath is set only for @commandline solvables: the local path the
	// user named directly, opened without going through C2 (spec.md §4.7
	// step 4 "If from @commandline: open the given path directly").
	SourcePath string
}

func New(arch string) *Pool {
	return &Pool{
		Arch:     arch,
		byString: make(map[string]ID),
		byID:     []string{""}, // reserve index 0 for NoID
		repos:    make(map[string]*Repo),
	}
}

// Intern returns the ID for s, creating one if this is the first time s has
// been seen. Interning is idempotent: the same string always yields the
// same ID for the lifetime of the pool.
func (p *Pool) Intern(s string) ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.byString[s]; ok {
		return id
	}
	id := ID(len(p.byID))
	p.byID = append(p.byID, s)
	p.byString[s] = id
	return id
}

// Lookup returns the ID for s without creating one.
func (p *Pool) Lookup(s string) (ID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byString[s]
	return id, ok
}

// String returns the interned string for id, or "" for NoID / unknown ids.
func (p *Pool) String(id ID) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(id) <= 0 || int(id) >= len(p.byID) {
		return ""
	}
	return p.byID[id]
}

// AddRepo registers a pool-side repo handle for alias, or returns the
// existing one.
func (p *Pool) AddRepo(alias string, priority int) *Repo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.repos[alias]; ok {
		return r
	}
	r := &Repo{Alias: alias, Priority: priority}
	p.repos[alias] = r
	return r
}

// Repo returns the registered handle for alias.
func (p *Pool) Repo(alias string) (*Repo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.repos[alias]
	return r, ok
}

// Repos returns all registered repos in no particular order.
func (p *Pool) Repos() []*Repo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Repo, 0, len(p.repos))
	for _, r := range p.repos {
		out = append(out, r)
	}
	return out
}

// SetInstalled marks r as the single @System installed repository. Per
// spec.md §3: "only the @System record is marked installed".
func (p *Pool) SetInstalled(r *Repo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.installed != nil {
		p.installed.Installed = false
	}
	r.Installed = true
	p.installed = r
}

// Installed returns the @System repo, or nil if none has been set yet.
func (p *Pool) Installed() *Repo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.installed
}

// AddSolvable appends a solvable to r and interns its name plus every
// dependency string it carries (provides/requires/obsoletes/conflicts),
// mirroring the shared string/Id pool real solv maintains: a capability is
// addressable by id the moment any solvable declares it, whether or not it
// is also somebody's package name.
func (p *Pool) AddSolvable(r *Repo, s *Solvable) {
	s.RepoAlias = r.Alias
	s.Installed = r.Installed
	p.Intern(s.Name)
	for _, dep := range [][]string{s.Provides, s.Requires, s.Obsoletes, s.Conflicts} {
		for _, d := range dep {
			p.Intern(d)
		}
	}
	r.Solvables = append(r.Solvables, s)
}

// AllSolvables returns every solvable across every registered repo,
// installable and installed alike — the scope of the "path form" search in
// spec.md §4.5 item 1 for install/list/info.
func (p *Pool) AllSolvables() []*Solvable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*Solvable
	for _, r := range p.repos {
		out = append(out, r.Solvables...)
	}
	return out
}

// InstalledSolvables returns only the solvables of the @System repo.
func (p *Pool) InstalledSolvables() []*Solvable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.installed == nil {
		return nil
	}
	return append([]*Solvable(nil), p.installed.Solvables...)
}

// WhatProvides returns every solvable whose own name equals capability, or,
// failing that, whose Provides list contains capability — the "provider"
// relation spec.md §4.5's depglob and limitjobs reason about.
func (p *Pool) WhatProvides(capability string) []*Solvable {
	var out []*Solvable
	for _, s := range p.AllSolvables() {
		if s.Name == capability {
			out = append(out, s)
			continue
		}
		for _, prov := range s.Provides {
			if prov == capability {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// HasOwnName reports whether any provider of capability carries it as its
// own package name (a "pure name hit" in spec.md §4.5 depglob).
func (p *Pool) HasOwnName(capability string) bool {
	for _, s := range p.AllSolvables() {
		if s.Name == capability {
			return true
		}
	}
	return false
}

// SolvableByID finds the solvable carrying id, or false if none does. Used
// by the Problem Loop (C6) to decide whether an update-verb job targets an
// already-installed solvable (spec.md §4.6's install-vs-update split).
func (p *Pool) SolvableByID(id ID) (*Solvable, bool) {
	for _, s := range p.AllSolvables() {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}
