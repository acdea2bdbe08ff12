package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"solv/src/internal/backend"
	"solv/src/internal/cachestore"
	"solv/src/internal/extstub"
	"solv/src/internal/query"
	"solv/src/internal/repoconfig"
	"solv/src/internal/reposync"
	"solv/src/internal/solvpool"
	"solv/src/internal/txn"
)

// Default filesystem locations spec.md §3/§4.3 names directly.
const (
	defaultRepoDir    = "/etc/zypp/repos.d"
	defaultCacheDir   = "/var/cache/solv"
	defaultRPMDBPath  = "/var/lib/rpm/Packages"
	defaultProductDir = "/etc/products.d"
)

var (
	backendName  string
	archFlag     string
	repoDirFlag  string
	cacheDirFlag string
)

func registerCommonFlags(c *cobra.Command) {
	c.Flags().StringVar(&backendName, "backend", "libsolv", "registered solver/rpm backend to drive the pool with")
	c.Flags().StringVar(&archFlag, "arch", "x86_64", "pool architecture (SOLVABLE_ARCH)")
	c.Flags().StringVar(&repoDirFlag, "repo-dir", defaultRepoDir, "directory of *.repo INI files")
	c.Flags().StringVar(&cacheDirFlag, "cache-dir", defaultCacheDir, "cache store root")
}

// session bundles everything the C5/C6/C7 pipeline needs for one command
// invocation: the shared pool, the cache store behind it, and the backend
// that actually owns the SAT solver / RPM transaction set.
type session struct {
	fs       afero.Fs
	backend  backend.Backend
	pool     *solvpool.Pool
	store    *cachestore.Store
	registry *extstub.Registry
	loader   *reposync.Loader
	cmdline  solvpool.CommandlineHandle
	records  []*repoconfig.RepoRecord
}

// openSession parses repo config, bootstraps @System and @commandline, and
// refreshes every enabled repo that needs it (spec.md §4.2/§4.3). It is the
// one place every subcommand goes through before compiling a query.
func openSession(ctx context.Context) (*session, error) {
	be, err := backend.Open(backendName)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	pool := be.NewPool(archFlag)

	store, err := cachestore.New(fs, cacheDirFlag)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	registry, err := extstub.NewRegistry(store, 256)
	if err != nil {
		return nil, fmt.Errorf("open extension registry: %w", err)
	}
	loader := reposync.New(pool, store, registry)

	sysHandle, err := be.OpenSystemHandle(pool)
	if err != nil {
		return nil, fmt.Errorf("open system handle: %w", err)
	}
	sysRepo := pool.AddRepo(".System", 0)
	pool.SetInstalled(sysRepo)
	sysRec := repoconfig.NewSystemRecord(sysHandle)
	if err := loader.BootstrapSystem(fs, sysRec, sysHandle, defaultRPMDBPath, defaultProductDir); err != nil {
		return nil, fmt.Errorf("bootstrap system: %w", err)
	}

	records, err := repoconfig.ParseDir(fs, repoDirFlag)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", repoDirFlag, err)
	}

	var jobs []reposync.RefreshJob
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		pool.AddRepo(rec.Alias(), rec.Priority)

		job := reposync.RefreshJob{Record: rec}
		switch rec.Type {
		case repoconfig.TypeYaST2:
			h, err := be.OpenSusetagsHandle(pool, rec.Alias())
			if err != nil {
				return nil, fmt.Errorf("open susetags handle for %s: %w", rec.Alias(), err)
			}
			rec.SetHandle(h)
			job.Susetags = h
		default:
			h, err := be.OpenRPMMDHandle(pool, rec.Alias())
			if err != nil {
				return nil, fmt.Errorf("open rpm-md handle for %s: %w", rec.Alias(), err)
			}
			rec.SetHandle(h)
			job.RPMMD = h
		}
		jobs = append(jobs, job)
	}
	if err := loader.RefreshAll(ctx, fs, jobs, time.Now()); err != nil {
		return nil, fmt.Errorf("refresh repositories: %w", err)
	}

	cmdline, err := be.OpenCommandlineHandle(pool)
	if err != nil {
		return nil, fmt.Errorf("open commandline handle: %w", err)
	}
	pool.AddRepo("@commandline", 0)

	return &session{
		fs:       fs,
		backend:  be,
		pool:     pool,
		store:    store,
		registry: registry,
		loader:   loader,
		cmdline:  cmdline,
		records:  records,
	}, nil
}

func (s *session) close() {
	_ = s.store.Close()
}

// compileJobs is the thin C5 entry point shared by every verb: each raw
// argument is compiled independently and the results concatenated. No
// verb→how modifiers are applied here; install/erase/update callers get
// them from solve.Jobs, and the read-only verbs use the jobs as compiled.
func (s *session) compileJobs(verb query.Verb, args []string) ([]solvpool.Job, error) {
	var jobs []solvpool.Job
	for _, arg := range args {
		compiled, err := query.Compile(s.fs, s.pool, s.cmdline, verb, arg)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, compiled...)
	}
	return jobs, nil
}

// solvablesFor resolves the query-compiler output back into display
// candidates for the read-only verbs (search/list/info), which never reach
// the Problem Loop: a Job only carries interned ids, so this walks
// SelectorName/SelectorProvides/SelectorOneOf back to solvables the way
// the Problem Loop's jobTargetsInstalled helper does for its own purposes.
func (s *session) solvablesFor(jobs []solvpool.Job) []*solvpool.Solvable {
	seen := map[solvpool.ID]bool{}
	var out []*solvpool.Solvable
	add := func(id solvpool.ID) {
		if sv, ok := s.pool.SolvableByID(id); ok && !seen[sv.ID] {
			seen[sv.ID] = true
			out = append(out, sv)
		}
	}
	for _, j := range jobs {
		switch j.Selector {
		case solvpool.SelectorSolvable:
			add(j.What)
		case solvpool.SelectorName:
			name := s.pool.String(j.What)
			for _, sv := range s.pool.WhatProvides(name) {
				if sv.Name == name && !seen[sv.ID] {
					seen[sv.ID] = true
					out = append(out, sv)
				}
			}
		case solvpool.SelectorProvides:
			for _, sv := range s.pool.WhatProvides(s.pool.String(j.What)) {
				if !seen[sv.ID] {
					seen[sv.ID] = true
					out = append(out, sv)
				}
			}
		case solvpool.SelectorOneOf:
			for _, id := range j.OneOf {
				add(id)
			}
		case solvpool.SelectorAll:
			for _, sv := range s.pool.AllSolvables() {
				if !seen[sv.ID] {
					seen[sv.ID] = true
					out = append(out, sv)
				}
			}
		}
	}
	return out
}

// deltaIndexFor adapts the backend's per-repo delta catalogue to
// txn.DeltaIndex, or nil when the backend has none for alias.
func (s *session) deltaIndexFor(alias string) txn.DeltaIndex {
	return s.backend.DeltaIndex(alias)
}

// baseURLFor resolves a repo alias back to its configured baseurl, the way
// the Transaction Executor's C2.fetch calls need (spec.md §4.7 step 4).
func (s *session) baseURLFor(alias string) string {
	for _, rec := range s.records {
		if rec.Alias() == alias {
			return rec.BaseURL
		}
	}
	return ""
}
