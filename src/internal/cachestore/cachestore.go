// Package cachestore implements the Cache Store (spec.md §4.1, component
// C1): reading, validating, and writing cached repository snapshots keyed
// by alias + extension, with the two-trailer cookie layout of spec.md §3
// and crash-safe atomic rewrite. Filesystem access goes through afero so
// the cookie-trailer and atomic-rename invariants (spec.md §8) are
// unit-testable against an in-memory filesystem.
package cachestore

import (
	"io"
	"regexp"
	"time"

	"github.com/spf13/afero"

	"solv/src/internal/cookie"
	"solv/src/internal/solvpool"
	"solv/src/internal/telemetry"
)

// Record is the minimal view of a spec.md §3 "Repository record" the cache
// store needs. internal/repoconfig.RepoRecord implements it; the interface
// lives here (rather than importing repoconfig) to avoid a cache<->config
// import cycle once internal/reposync wires both together.
type Record interface {
	Alias() string
	IsSystem() bool
	Cookie() (cookie.Cookie, bool)
	SetCookie(cookie.Cookie)
	ExtCookie() (cookie.Cookie, bool)
	SetExtCookie(cookie.Cookie)
	Handle() solvpool.RepoHandle
}

type Store struct {
	FS   afero.Fs
	Root string

	manifest *manifest
}

func New(fs afero.Fs, root string) (*Store, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	m, err := openManifest(root)
	if err != nil {
		// The manifest is an accelerator, never the source of truth
		// (spec.md §8's round-trip invariant is checked against the flat
		// file trailer) — a corrupt/unavailable bbolt file just disables
		// the fast path.
		m = nil
	}
	return &Store{FS: fs, Root: root, manifest: m}, nil
}

func (s *Store) Close() error {
	if s.manifest != nil {
		return s.manifest.close()
	}
	return nil
}

var leadingDot = regexp.MustCompile(`^\.`)
var slashes = regexp.MustCompile(`/`)

// Path implements spec.md §4.1's calccachepath / Sanitization rule:
// leading "." -> "_", "/" -> "_".
func (s *Store) Path(alias string, ext string) string {
	path := leadingDot.ReplaceAllString(alias, "_")
	if ext != "" {
		path += "_" + ext + ".solvx"
	} else {
		path += ".solv"
	}
	path = slashes.ReplaceAllString(path, "_")
	return s.Root + "/" + path
}

// ReadResult is the outcome of a cache Read attempt. A miss is reported via
// Hit=false with a nil error: per spec.md §9, a cache miss is an expected
// outcome, never a failure.
type ReadResult struct {
	Hit bool
}

// Read implements spec.md §4.1 read(R, E?, mark?).
func (s *Store) Read(rec Record, ext string, expected cookie.Cookie, expectCookie bool, mark bool) (ReadResult, error) {
	done := telemetry.StartSpan("cachestore.read", "alias", rec.Alias(), "ext", ext)
	path := s.Path(rec.Alias(), ext)

	if expectCookie && s.manifest != nil {
		if entry, found := s.manifest.get(rec.Alias(), ext); found {
			var known cookie.Cookie
			copy(known[:], entry.Cookie[:])
			if !known.Equal(expected) {
				// The manifest's cookie is kept in sync with every
				// successful Read/Write of this alias|ext; a mismatch here
				// means the flat file trailer would mismatch too, so skip
				// the open+stat+seek entirely.
				done("status", "ok", "hit", false, "reason", "manifest_cookie_mismatch")
				return ReadResult{}, nil
			}
		}
	}

	f, err := s.FS.Open(path)
	if err != nil {
		done("status", "ok", "hit", false, "reason", "absent")
		return ReadResult{}, nil
	}
	defer f.Close()

	info, statErr := f.Stat()
	if statErr != nil {
		done("status", "ok", "hit", false, "reason", "stat_failed")
		return ReadResult{}, nil
	}
	size := info.Size()
	if size < cookie.Size {
		done("status", "ok", "hit", false, "reason", "too_small")
		return ReadResult{}, nil
	}

	fcookie, err := readTrailer(f, size, cookie.Size)
	if err != nil {
		done("status", "ok", "hit", false, "reason", "trailer_read_failed")
		return ReadResult{}, nil
	}
	if expectCookie && !fcookie.Equal(expected) {
		done("status", "ok", "hit", false, "reason", "cookie_mismatch")
		return ReadResult{}, nil
	}

	var fextcookie cookie.Cookie
	haveExtCookie := false
	if !rec.IsSystem() && ext == "" {
		if size < 2*cookie.Size {
			done("status", "ok", "hit", false, "reason", "too_small_for_extcookie")
			return ReadResult{}, nil
		}
		fextcookie, err = readTrailer(f, size, 2*cookie.Size)
		if err != nil {
			done("status", "ok", "hit", false, "reason", "extcookie_read_failed")
			return ReadResult{}, nil
		}
		haveExtCookie = true
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		done("status", "ok", "hit", false, "reason", "seek_failed")
		return ReadResult{}, nil
	}

	var flags solvpool.LoadFlags
	if ext != "" {
		flags = solvpool.FlagUseLoading | solvpool.FlagExtendSolvables
		if ext != "DL" {
			flags |= solvpool.FlagLocalPool
		}
	}
	trailerLen := int64(cookie.Size)
	if haveExtCookie {
		trailerLen += cookie.Size
	}
	if err := rec.Handle().LoadSolv(io.LimitReader(f, size-trailerLen), flags); err != nil {
		done("status", "ok", "hit", false, "reason", "load_failed")
		return ReadResult{}, nil
	}

	if !rec.IsSystem() && ext == "" {
		rec.SetCookie(fcookie)
		if haveExtCookie {
			rec.SetExtCookie(fextcookie)
		}
	}

	if mark {
		_ = touch(s.FS, path)
	}

	if s.manifest != nil {
		_ = s.manifest.put(rec.Alias(), ext, fcookie, fextcookie, haveExtCookie)
	}

	done("status", "ok", "hit", true)
	return ReadResult{Hit: true}, nil
}

func readTrailer(f afero.File, size int64, fromEnd int64) (cookie.Cookie, error) {
	if _, err := f.Seek(-fromEnd, io.SeekEnd); err != nil {
		return cookie.Cookie{}, err
	}
	var buf [cookie.Size]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return cookie.Cookie{}, err
	}
	var c cookie.Cookie
	copy(c[:], buf[:])
	return c, nil
}

func touch(fs afero.Fs, path string) error {
	// best-effort mtime bump; errors are intentionally ignored per
	// spec.md §4.1 step 6 ("best-effort; ignore errors").
	now := time.Now()
	return fs.Chtimes(path, now, now)
}

// WriteOptions controls which of the three C1 write shapes is produced.
type WriteOptions struct {
	Ext     string                 // "" for primary
	Info    solvpool.ExtensionInfo // non-nil for an extension write
	Rewrite bool                   // true for the rewrite_repos "first repodata only" path
}

// Write implements spec.md §4.1 write(R, E?, info?).
func (s *Store) Write(rec Record, opts WriteOptions) error {
	done := telemetry.StartSpan("cachestore.write", "alias", rec.Alias(), "ext", opts.Ext, "rewrite", opts.Rewrite)

	if err := s.FS.MkdirAll(s.Root, 0755); err != nil {
		done("status", "error", "error", err.Error())
		return err
	}

	tmp, err := afero.TempFile(s.FS, s.Root, ".newsolv-")
	if err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	tmpName := tmp.Name()
	_ = s.FS.Chmod(tmpName, 0444)

	writeErr := s.serialize(rec, opts, tmp)
	if writeErr == nil {
		writeErr = s.appendTrailers(rec, opts, tmp)
	}
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = s.FS.Remove(tmpName)
		done("status", "error", "error", writeErr.Error())
		return writeErr
	}

	finalPath := s.Path(rec.Alias(), opts.Ext)
	if err := s.FS.Rename(tmpName, finalPath); err != nil {
		_ = s.FS.Remove(tmpName)
		done("status", "error", "error", err.Error())
		return err
	}

	if opts.Ext == "" && !opts.Rewrite {
		s.reopenIfContiguous(rec)
	}

	if s.manifest != nil {
		c, _ := rec.Cookie()
		ec, hasExt := rec.ExtCookie()
		_ = s.manifest.put(rec.Alias(), opts.Ext, c, ec, hasExt)
	}

	done("status", "ok")
	return nil
}

func (s *Store) serialize(rec Record, opts WriteOptions, w io.Writer) error {
	switch {
	case opts.Info != nil:
		_, err := opts.Info.WriteTo(w)
		return err
	case opts.Rewrite:
		return rec.Handle().WriteFirstRepodata(w)
	default:
		return rec.Handle().WritePrimary(w)
	}
}

func (s *Store) appendTrailers(rec Record, opts WriteOptions, w io.Writer) error {
	primary, hasPrimary := rec.Cookie()
	if !hasPrimary {
		return nil
	}
	if rec.IsSystem() {
		// @System ends in its primary (stat) cookie alone: no extcookie
		// is derived for it, and Read checks only the last 32 bytes.
		_, err := w.Write(primary[:])
		return err
	}
	switch {
	case opts.Info != nil:
		ext, hasExt := rec.ExtCookie()
		if !hasExt {
			return nil
		}
		_, err := w.Write(ext[:])
		return err
	default:
		// Both the plain primary write and the rewrite_repos "first
		// repodata only" write (opts.Rewrite) end in the same
		// extcookie+primary-cookie trailer: rewrite_repos only changes
		// what body precedes the trailer, not the trailer itself, and
		// Read always expects one.
		ext, hasExt := rec.ExtCookie()
		if !hasExt {
			statCookie, err := s.statCookieOfOpenFile(w)
			if err != nil {
				return err
			}
			ext = cookie.Ext(statCookie, primary)
			rec.SetExtCookie(ext)
		}
		if _, err := w.Write(ext[:]); err != nil {
			return err
		}
		_, err := w.Write(primary[:])
		return err
	}
}

func (s *Store) statCookieOfOpenFile(w io.Writer) (cookie.Cookie, error) {
	if f, ok := w.(afero.File); ok {
		info, err := f.Stat()
		if err != nil {
			return cookie.Cookie{}, err
		}
		return cookie.StatInfo(info)
	}
	return cookie.Cookie{}, nil
}

// reopenIfContiguous implements spec.md §4.1 step 5: an optimization, never
// allowed to change observable pool contents, so a failure here is
// swallowed rather than surfaced.
func (s *Store) reopenIfContiguous(rec Record) {
	if !rec.Handle().Contiguous() {
		return
	}
	path := s.Path(rec.Alias(), "")
	f, err := s.FS.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	_ = rec.Handle().LoadSolv(f, solvpool.FlagNoStubs)
}

// SanitizedAliasForTest exposes the leading-dot replacement that Path
// applies to aliases, for tests that have no full Record.
func SanitizedAliasForTest(alias string) string {
	return leadingDot.ReplaceAllString(alias, "_")
}
