// Package repoconfig implements the repository record half of the
// Repository Loader (spec.md §4.3, component C3): parsing
// /etc/zypp/repos.d/*.repo INI files into records, and the record type
// itself (spec.md §3 "Repository record").
//
// INI parsing is named in spec.md §1 as an external-interface concern
// ("INI configuration parsing... is out of scope"), not a core algorithm,
// so this reader stays on bufio rather than pulling in a general INI
// library — see DESIGN.md.
package repoconfig

import (
	"sync"

	"solv/src/internal/cookie"
	"solv/src/internal/solvpool"
)

// Type is the repository kind, spec.md §3.
type Type string

const (
	TypeRPMMD       Type = "rpm-md"
	TypeYaST2       Type = "yast2"
	TypeSystem      Type = "@System"
	TypeCommandline Type = "@commandline"
)

// MetadataExpireDefault is the driver-pinned refresh window; spec.md §6
// notes the INI's own metadata_expire value "is ignored (driver pins to
// 900s)".
const MetadataExpireDefault = 900

// RepoRecord is a "Repository record" (spec.md §3). It implements
// internal/cachestore.Record.
type RepoRecord struct {
	mu sync.Mutex

	alias          string
	BaseURL        string
	Priority       int
	AutoRefresh    bool
	Type           Type
	MetadataExpire int
	Enabled        bool

	cookie       cookie.Cookie
	hasCookie    bool
	extCookie    cookie.Cookie
	hasExtCookie bool

	handle solvpool.RepoHandle

	// BadChecksum is sticky for the lifetime of one refresh (spec.md §4.2):
	// once set, the loader must not C1.write this repo's primary cache for
	// the remainder of the current refresh pass.
	BadChecksum bool
}

func NewSystemRecord(handle solvpool.RepoHandle) *RepoRecord {
	return &RepoRecord{alias: ".System", Type: TypeSystem, handle: handle, Enabled: true}
}

func NewCommandlineRecord(handle solvpool.RepoHandle) *RepoRecord {
	return &RepoRecord{alias: "@commandline", Type: TypeCommandline, handle: handle, Enabled: true}
}

// NewRecordForTest builds a record with an explicit alias, for tests that
// need a record outside of ParseDir/NewSystemRecord/NewCommandlineRecord.
func NewRecordForTest(alias, baseURL string) *RepoRecord {
	return &RepoRecord{
		alias:          alias,
		BaseURL:        baseURL,
		Priority:       99,
		AutoRefresh:    true,
		Type:           TypeRPMMD,
		MetadataExpire: MetadataExpireDefault,
		Enabled:        true,
	}
}

func (r *RepoRecord) Alias() string  { return r.alias }
func (r *RepoRecord) IsSystem() bool { return r.Type == TypeSystem }

func (r *RepoRecord) Cookie() (cookie.Cookie, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cookie, r.hasCookie
}

func (r *RepoRecord) SetCookie(c cookie.Cookie) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cookie, r.hasCookie = c, true
}

func (r *RepoRecord) ExtCookie() (cookie.Cookie, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extCookie, r.hasExtCookie
}

func (r *RepoRecord) SetExtCookie(c cookie.Cookie) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extCookie, r.hasExtCookie = c, true
}

func (r *RepoRecord) Handle() solvpool.RepoHandle     { return r.handle }
func (r *RepoRecord) SetHandle(h solvpool.RepoHandle) { r.handle = h }

// MarkBadChecksum records a checksum/fetch failure for the remainder of
// this refresh pass; ResetBadChecksum is called at the start of each new
// refresh.
func (r *RepoRecord) MarkBadChecksum()  { r.BadChecksum = true }
func (r *RepoRecord) ResetBadChecksum() { r.BadChecksum = false }
