// Package backend is the driver's seam onto the external collaborators
// spec.md §1 names as out of scope: the SAT solver, the opaque solv binary
// format, and the RPM/susetags/repomd parsers. Rather than reimplement any
// of them, this package borrows database/sql's driver registry pattern: a
// real libsolv/librpm binding registers itself here (typically from a
// blank import's init()), and src/cmd looks it up by name instead of
// constructing solvpool handles directly.
package backend

import (
	"fmt"
	"sync"

	"solv/src/internal/solvpool"
	"solv/src/internal/txn"
)

// Backend constructs every pool-side object the driver treats as opaque:
// the pool itself, per-repo-kind ingestion handles, a fresh Solver per
// Problem Loop iteration, and the RPM transaction set.
type Backend interface {
	NewPool(arch string) *solvpool.Pool
	OpenSystemHandle(p *solvpool.Pool) (solvpool.SystemHandle, error)
	OpenRPMMDHandle(p *solvpool.Pool, alias string) (solvpool.RPMMDHandle, error)
	OpenSusetagsHandle(p *solvpool.Pool, alias string) (solvpool.SusetagsHandle, error)
	OpenCommandlineHandle(p *solvpool.Pool) (solvpool.CommandlineHandle, error)
	NewSolver(p *solvpool.Pool) solvpool.Solver
	OpenPackageDB() solvpool.PackageDB
	// DeltaIndex returns the delta-rpm catalogue for alias, or nil if the
	// repo never registered one (spec.md §4.4's deltainfo kind).
	DeltaIndex(alias string) txn.DeltaIndex
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register makes a Backend available under name. It panics on a duplicate
// registration, matching database/sql.Register, since that can only happen
// from a packaging mistake (two bindings claiming the same name), never
// from user input.
func Register(name string, b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		panic("backend: Register backend is nil")
	}
	if _, dup := backends[name]; dup {
		panic("backend: Register called twice for backend " + name)
	}
	backends[name] = b
}

// Open looks up a registered Backend by name. An unregistered name reports
// a clear error rather than a nil-pointer panic deep inside a command:
// this driver ships no libsolv/librpm binding of its own, so running any
// subcommand that touches the pool requires importing one.
func Open(name string) (Backend, error) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	if !ok {
		out := make([]string, 0, len(backends))
		for n := range backends {
			out = append(out, n)
		}
		return nil, fmt.Errorf("backend: unknown backend %q (no binding package imported); registered: %v", name, out)
	}
	return b, nil
}
