// Package reposync implements the Repository Loader (spec.md §4.3,
// component C3): system bootstrap, per-repo refresh decisions, and the
// rpm-md / yast2 (susetags) ingestion paths, fanned out across repositories
// with github.com/sourcegraph/conc/pool the way the teacher's install
// pipeline fans out per-package work.
package reposync

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"solv/src/internal/cachestore"
	"solv/src/internal/cookie"
	"solv/src/internal/extstub"
	"solv/src/internal/fetch"
	"solv/src/internal/repoconfig"
	"solv/src/internal/solvpool"
	"solv/src/internal/telemetry"
)

// Loader drives C3 against a shared pool, cache store, and extension
// registry. It holds no repo-specific state itself; everything needed to
// refresh one repo is passed in per call, so refreshes can be fanned out
// safely (each goroutine touches only its own record/handle pair — the
// pool and store are the only shared objects, and both are documented as
// safe for this access pattern: solvpool.Pool serializes through its own
// mutex, cachestore.Store's manifest through bbolt's own transactions).
type Loader struct {
	Pool               *solvpool.Pool
	Store              *cachestore.Store
	Registry           *extstub.Registry
	MaxParallelRefresh int
}

func New(p *solvpool.Pool, store *cachestore.Store, registry *extstub.Registry) *Loader {
	return &Loader{Pool: p, Store: store, Registry: registry, MaxParallelRefresh: runtime.NumCPU()}
}

// BootstrapSystem implements spec.md §4.3 step 2: compute the @System
// stat-cookie from rpmPackagesPath, attempt a cache read, and on miss
// ingest products then the RPM database before writing the cache.
func (l *Loader) BootstrapSystem(fs afero.Fs, rec *repoconfig.RepoRecord, handle solvpool.SystemHandle, rpmPackagesPath, productsDir string) error {
	done := telemetry.StartSpan("reposync.bootstrap_system")
	info, err := fs.Stat(rpmPackagesPath)
	if err != nil {
		// No RPM database at all is not fatal to bootstrap: an empty
		// @System is a legitimate (if unusual) starting state.
		done("status", "ok", "reason", "no_rpmdb")
		return nil
	}
	statCookie, err := cookie.StatInfo(info)
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}

	result, err := l.Store.Read(rec, "", statCookie, true, false)
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	if result.Hit {
		done("status", "ok", "cache_hit", true)
		return nil
	}

	if err := handle.AddProducts(productsDir, solvpool.FlagNoInternalize); err != nil {
		done("status", "error", "error", err.Error())
		return errors.Annotate(err, "add system products")
	}
	if err := handle.AddRPMDB(0); err != nil {
		done("status", "error", "error", err.Error())
		return errors.Annotate(err, "add rpm database")
	}
	rec.SetCookie(statCookie)
	if err := l.Store.Write(rec, cachestore.WriteOptions{}); err != nil {
		done("status", "error", "error", err.Error())
		return errors.Annotate(err, "write system cache")
	}
	done("status", "ok", "cache_hit", false)
	return nil
}

// ShouldRefresh implements the refresh decision of spec.md §4.3: "refresh
// iff autorefresh is set AND the cache file's mtime is older than
// metadata_expire (or the cache is missing)". Per spec.md §9's design note
// on `dorefresh`, the zero value (no autorefresh) defaults to false.
func ShouldRefresh(fs afero.Fs, rec *repoconfig.RepoRecord, store *cachestore.Store, now time.Time) bool {
	if !rec.AutoRefresh {
		return false
	}
	info, err := fs.Stat(store.Path(rec.Alias(), ""))
	if err != nil {
		return true
	}
	age := now.Sub(info.ModTime())
	return age >= time.Duration(rec.MetadataExpire)*time.Second
}

// RefreshRPMMD implements spec.md §4.3's "rpm-md path".
func (l *Loader) RefreshRPMMD(ctx context.Context, rec *repoconfig.RepoRecord, handle solvpool.RPMMDHandle) error {
	done := telemetry.StartSpan("reposync.refresh_rpmmd", "alias", rec.Alias())
	rec.ResetBadChecksum()

	stream, result, err := fetch.Get(ctx, rec.BaseURL, "repodata/repomd.xml", fetch.Options{})
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	if !result.Present {
		done("status", "ok", "reason", "no_repomd")
		return nil
	}

	data, err := readAllClose(stream)
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	contentCookie, err := cookie.Content(bytes.NewReader(data))
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}

	readResult, err := l.Store.Read(rec, "", contentCookie, true, true)
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	if readResult.Hit {
		done("status", "ok", "cache_hit", true)
		return nil
	}

	if err := handle.AddRepomdIndex(bytes.NewReader(data)); err != nil {
		done("status", "error", "error", err.Error())
		return errors.Annotate(err, "ingest repomd index")
	}

	if loc, sum, ok := handle.Lookup("primary"); ok {
		if err := l.fetchAndIngest(ctx, rec, handle.AddPrimary, loc, sum, solvpool.FlagNoInternalize); err != nil {
			done("status", "error", "error", err.Error())
			return errors.Annotate(err, "ingest primary")
		}
	} else {
		done("status", "ok", "reason", "no_primary_index_entry")
		return nil
	}

	if loc, sum, ok := handle.Lookup("updateinfo"); ok {
		_ = l.fetchAndIngest(ctx, rec, handle.AddUpdateinfo, loc, sum, 0)
	}

	l.registerRPMMDExtensions(rec, handle)

	if !rec.BadChecksum {
		rec.SetCookie(contentCookie)
		if err := l.Store.Write(rec, cachestore.WriteOptions{}); err != nil {
			done("status", "error", "error", err.Error())
			return errors.Annotate(err, "write primary cache")
		}
	}
	done("status", "ok", "cache_hit", false, "bad_checksum", rec.BadChecksum)
	return nil
}

func (l *Loader) registerRPMMDExtensions(rec *repoconfig.RepoRecord, handle solvpool.RPMMDHandle) {
	if loc, sum, ok := handle.Lookup("deltainfo"); ok {
		l.Registry.Register(rec.Alias(), extstub.Descriptor{Kind: extstub.KindDeltaInfo, Location: loc, Checksum: cookie.Checksum{Hex: sum}})
	} else if loc, sum, ok := handle.Lookup("prestodelta"); ok {
		l.Registry.Register(rec.Alias(), extstub.Descriptor{Kind: extstub.KindDeltaInfo, Location: loc, Checksum: cookie.Checksum{Hex: sum}})
	}
	if loc, sum, ok := handle.Lookup("filelists"); ok {
		l.Registry.Register(rec.Alias(), extstub.Descriptor{Kind: extstub.KindFilelists, Location: loc, Checksum: cookie.Checksum{Hex: sum}})
	}
}

func (l *Loader) fetchAndIngest(ctx context.Context, rec *repoconfig.RepoRecord, ingest func(r io.Reader, flags solvpool.LoadFlags) error, loc, checksumHex string, flags solvpool.LoadFlags) error {
	stream, result, err := fetch.Get(ctx, rec.BaseURL, loc, fetch.Options{Uncompress: true, Checksum: cookie.Checksum{Hex: checksumHex}})
	if err != nil {
		return err
	}
	if result.BadChecksum {
		rec.MarkBadChecksum()
		return nil
	}
	if !result.Present {
		return nil
	}
	defer stream.Close()
	return ingest(stream, flags)
}

func readAllClose(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(r)
}

// ingestBundledDescrDir is the fallback for susetags mirrors that serve
// their whole descrdir as one tarball (suse/setup/descr.tar.gz) rather
// than packages[.gz]/packages.en[.gz] as separate files: fetch the
// tarball, unpack it with fetch.ExtractArchiveTo, and ingest the two
// expected member files the normal way.
func (l *Loader) ingestBundledDescrDir(ctx context.Context, rec *repoconfig.RepoRecord, handle solvpool.SusetagsHandle) error {
	stream, result, err := fetch.Get(ctx, rec.BaseURL, "suse/setup/descr.tar.gz", fetch.Options{})
	if err != nil {
		return err
	}
	if result.BadChecksum {
		rec.MarkBadChecksum()
		return nil
	}
	if !result.Present {
		return nil
	}
	defer stream.Close()

	scratch, err := os.MkdirTemp("", "solv-descr-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	if err := fetch.ExtractArchiveTo(ctx, stream, scratch); err != nil {
		return errors.Annotate(err, "extract descr.tar.gz")
	}

	if f, err := os.Open(filepath.Join(scratch, "packages")); err == nil {
		ingestErr := handle.AddPackages(f, solvpool.FlagNoInternalize|solvpool.FlagRecordShares)
		f.Close()
		if ingestErr != nil {
			return errors.Annotate(ingestErr, "ingest bundled packages")
		}
	}
	if f, err := os.Open(filepath.Join(scratch, "packages.en")); err == nil {
		_ = handle.AddPackagesLang(f, solvpool.FlagNoInternalize|solvpool.FlagReuseRepodata|solvpool.FlagExtendSolvables)
		f.Close()
	}
	return nil
}

// RefreshSusetags implements spec.md §4.3's "yast2 (susetags) path": index
// file `content`, a two-phase primary (`packages[.gz]` with
// NO_INTERNALIZE|RECORD_SHARES, then `packages.en[.gz]` with
// NO_INTERNALIZE|REUSE_REPODATA|EXTEND_SOLVABLES, then internalize), and
// extension discovery over every `packages.XX`/`packages.XX.*` index entry.
func (l *Loader) RefreshSusetags(ctx context.Context, rec *repoconfig.RepoRecord, handle solvpool.SusetagsHandle) error {
	done := telemetry.StartSpan("reposync.refresh_susetags", "alias", rec.Alias())
	rec.ResetBadChecksum()

	stream, result, err := fetch.Get(ctx, rec.BaseURL, "content", fetch.Options{})
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	if !result.Present {
		done("status", "ok", "reason", "no_content_index")
		return nil
	}

	data, err := readAllClose(stream)
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	contentCookie, err := cookie.Content(bytes.NewReader(data))
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}

	readResult, err := l.Store.Read(rec, "", contentCookie, true, true)
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	if readResult.Hit {
		done("status", "ok", "cache_hit", true)
		return nil
	}

	if err := handle.AddContentIndex(bytes.NewReader(data)); err != nil {
		done("status", "error", "error", err.Error())
		return errors.Annotate(err, "ingest content index")
	}

	packagesStream, packagesResult, err := fetch.Get(ctx, rec.BaseURL, "suse/setup/descr/packages.gz", fetch.Options{Uncompress: true})
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	switch {
	case packagesResult.BadChecksum:
		rec.MarkBadChecksum()
		fallthrough
	case !packagesResult.Present:
		// curl reports a missing packages.gz the same way it reports a
		// corrupt one (Get can't tell a 404 from a bad download), and some
		// mirrors bundle the whole descrdir as one tarball instead of
		// serving packages[.gz]/packages.en[.gz] individually — either way,
		// fall back to the bundled tarball before giving up on this repo.
		if err := l.ingestBundledDescrDir(ctx, rec, handle); err != nil {
			done("status", "error", "error", err.Error())
			return errors.Annotate(err, "ingest bundled descrdir")
		}
	default:
		ingestErr := handle.AddPackages(packagesStream, solvpool.FlagNoInternalize|solvpool.FlagRecordShares)
		packagesStream.Close()
		if ingestErr != nil {
			done("status", "error", "error", ingestErr.Error())
			return errors.Annotate(ingestErr, "ingest packages")
		}
		_ = l.fetchAndIngest(ctx, rec, handle.AddPackagesLang, "suse/setup/descr/packages.en.gz", "", solvpool.FlagNoInternalize|solvpool.FlagReuseRepodata|solvpool.FlagExtendSolvables)
	}
	handle.Internalize()

	l.registerSusetagsExtensions(rec, handle)

	if !rec.BadChecksum {
		rec.SetCookie(contentCookie)
		if err := l.Store.Write(rec, cachestore.WriteOptions{}); err != nil {
			done("status", "error", "error", err.Error())
			return errors.Annotate(err, "write primary cache")
		}
	}
	done("status", "ok", "cache_hit", false, "bad_checksum", rec.BadChecksum)
	return nil
}

// registerSusetagsExtensions implements the extension-discovery rule of
// spec.md §4.3: every index entry named "packages.XX" or "packages.XX.*",
// excluding "packages.gz" and the English base ("en"), contributes a
// 2-letter language extension tag.
func (l *Loader) registerSusetagsExtensions(rec *repoconfig.RepoRecord, handle solvpool.SusetagsHandle) {
	for _, name := range handle.IndexEntries() {
		if !strings.HasPrefix(name, "packages.") || name == "packages.gz" {
			continue
		}
		rest := strings.TrimPrefix(name, "packages.")
		if len(rest) < 2 {
			continue
		}
		lang := rest[:2]
		if lang == "en" {
			continue
		}
		if rest != lang && rest[2] != '.' {
			continue
		}
		l.Registry.Register(rec.Alias(), extstub.Descriptor{
			Kind:     extstub.KindLanguage,
			Lang:     lang,
			Location: "suse/setup/descr/" + name,
		})
	}
}

// RefreshJob pairs one repo record with its (already pool-side) handle for
// a parallel refresh pass.
type RefreshJob struct {
	Record   *repoconfig.RepoRecord
	RPMMD    solvpool.RPMMDHandle
	Susetags solvpool.SusetagsHandle
}

// RefreshAll fans RefreshRPMMD/RefreshSusetags out across jobs bounded by
// MaxParallelRefresh, collecting every error rather than failing fast: one
// repo's failure must not prevent the others from refreshing (spec.md §7:
// "Missing primary after refresh... Skip entire repo for this session").
func (l *Loader) RefreshAll(ctx context.Context, fs afero.Fs, jobs []RefreshJob, now time.Time) error {
	maxGoroutines := l.MaxParallelRefresh
	if maxGoroutines <= 0 {
		maxGoroutines = 1
	}
	p := pool.New().WithMaxGoroutines(maxGoroutines).WithErrors()

	for _, job := range jobs {
		job := job
		p.Go(func() error {
			if !ShouldRefresh(fs, job.Record, l.Store, now) {
				_, err := l.Store.Read(job.Record, "", cookie.Cookie{}, false, false)
				return err
			}
			switch {
			case job.RPMMD != nil:
				return l.RefreshRPMMD(ctx, job.Record, job.RPMMD)
			case job.Susetags != nil:
				return l.RefreshSusetags(ctx, job.Record, job.Susetags)
			default:
				return nil
			}
		})
	}
	return p.Wait()
}
