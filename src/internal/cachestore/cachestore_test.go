package cachestore

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"solv/src/internal/cookie"
	"solv/src/internal/solvpool"
)

type fakeHandle struct {
	body       []byte
	contiguous bool
	loaded     [][]byte
}

func (h *fakeHandle) WritePrimary(w io.Writer) error { _, err := w.Write(h.body); return err }
func (h *fakeHandle) WriteFirstRepodata(w io.Writer) error {
	_, err := w.Write(h.body[:len(h.body)/2])
	return err
}
func (h *fakeHandle) LoadSolv(r io.Reader, flags solvpool.LoadFlags) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	h.loaded = append(h.loaded, b)
	return nil
}
func (h *fakeHandle) Contiguous() bool { return h.contiguous }
func (h *fakeHandle) Internalize()     {}

type fakeRecord struct {
	alias     string
	system    bool
	cookie    cookie.Cookie
	hasCookie bool
	ext       cookie.Cookie
	hasExt    bool
	handle    *fakeHandle
}

func (r *fakeRecord) Alias() string                    { return r.alias }
func (r *fakeRecord) IsSystem() bool                   { return r.system }
func (r *fakeRecord) Cookie() (cookie.Cookie, bool)    { return r.cookie, r.hasCookie }
func (r *fakeRecord) SetCookie(c cookie.Cookie)        { r.cookie, r.hasCookie = c, true }
func (r *fakeRecord) ExtCookie() (cookie.Cookie, bool) { return r.ext, r.hasExt }
func (r *fakeRecord) SetExtCookie(c cookie.Cookie)     { r.ext, r.hasExt = c, true }
func (r *fakeRecord) Handle() solvpool.RepoHandle      { return r.handle }

func TestPathSanitizesAliasPerSpec(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/cache")
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, "/cache/_System.solv", s.Path(".System", ""))
	require.Equal(t, "/cache/repo_updates.solv", s.Path("repo/updates", ""))
	require.Equal(t, "/cache/oss_DL.solvx", s.Path("oss", "DL"))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/cache")
	require.NoError(t, err)
	defer s.Close()

	handle := &fakeHandle{body: []byte("solvable-bytes"), contiguous: false}
	rec := &fakeRecord{alias: "oss", handle: handle}
	primary, err := cookie.Content(bytes.NewReader(handle.body))
	require.NoError(t, err)
	rec.SetCookie(primary)

	require.NoError(t, s.Write(rec, WriteOptions{}))

	fresh := &fakeRecord{alias: "oss", handle: &fakeHandle{}}
	result, err := s.Read(fresh, "", primary, true, false)
	require.NoError(t, err)
	require.True(t, result.Hit)
	require.Len(t, fresh.handle.loaded, 1)
	require.Equal(t, handle.body, fresh.handle.loaded[0])

	freshCookie, ok := fresh.Cookie()
	require.True(t, ok)
	require.Equal(t, primary, freshCookie)

	_, hasExt := fresh.ExtCookie()
	require.True(t, hasExt)
}

func TestReadMissesOnCookieMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/cache")
	require.NoError(t, err)
	defer s.Close()

	handle := &fakeHandle{body: []byte("v1")}
	rec := &fakeRecord{alias: "oss", handle: handle}
	primary, _ := cookie.Content(bytes.NewReader(handle.body))
	rec.SetCookie(primary)
	require.NoError(t, s.Write(rec, WriteOptions{}))

	stale, _ := cookie.Content(bytes.NewReader([]byte("something-else")))
	fresh := &fakeRecord{alias: "oss", handle: &fakeHandle{}}
	result, err := s.Read(fresh, "", stale, true, false)
	require.NoError(t, err)
	require.False(t, result.Hit)
}

func TestReadMissesOnAbsentFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/cache")
	require.NoError(t, err)
	defer s.Close()

	fresh := &fakeRecord{alias: "never-written", handle: &fakeHandle{}}
	result, err := s.Read(fresh, "", cookie.Cookie{}, false, false)
	require.NoError(t, err)
	require.False(t, result.Hit)
}

func TestSystemRepoHasNoExtCookieTrailer(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/cache")
	require.NoError(t, err)
	defer s.Close()

	handle := &fakeHandle{body: []byte("installed-db")}
	rec := &fakeRecord{alias: ".System", system: true, handle: handle}
	require.NoError(t, s.Write(rec, WriteOptions{}))

	info, err := fs.Stat(s.Path(".System", ""))
	require.NoError(t, err)
	// @System never gets an extcookie; this record has no cookie set
	// either, so nothing follows the serialized body.
	require.Equal(t, int64(len(handle.body)), info.Size())
}

func TestExtensionWriteAppendsSingleExtCookieTrailer(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/cache")
	require.NoError(t, err)
	defer s.Close()

	handle := &fakeHandle{body: []byte("base")}
	rec := &fakeRecord{alias: "oss", handle: handle}
	primary, _ := cookie.Content(bytes.NewReader(handle.body))
	rec.SetCookie(primary)
	ext, _ := cookie.Content(bytes.NewReader([]byte("filelists-body")))
	rec.SetExtCookie(ext)

	info := &fakeExtensionInfo{kind: "filelists", body: []byte("filelists-body")}
	require.NoError(t, s.Write(rec, WriteOptions{Ext: "FL", Info: info}))

	f, err := fs.Open(s.Path("oss", "FL"))
	require.NoError(t, err)
	defer f.Close()
	stat, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(len(info.body)+cookie.Size), stat.Size())
}

type fakeExtensionInfo struct {
	kind string
	body []byte
}

func (i *fakeExtensionInfo) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(i.body)
	return int64(n), err
}
func (i *fakeExtensionInfo) Kind() string        { return i.kind }
func (i *fakeExtensionInfo) Location() string    { return i.kind }
func (i *fakeExtensionInfo) ChecksumHex() string { return "" }

func TestSanitizedAliasForTest(t *testing.T) {
	require.Equal(t, "_System", SanitizedAliasForTest(".System"))
	require.Equal(t, "oss", SanitizedAliasForTest("oss"))
}

func TestRewriteReposAppendsCookieTrailer(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/cache")
	require.NoError(t, err)
	defer s.Close()

	handle := &fakeHandle{body: []byte("full-primary-body")}
	rec := &fakeRecord{alias: "oss", handle: handle}
	primary, err := cookie.Content(bytes.NewReader(handle.body))
	require.NoError(t, err)
	rec.SetCookie(primary)

	require.NoError(t, s.Write(rec, WriteOptions{Rewrite: true}))

	info, err := fs.Stat(s.Path("oss", ""))
	require.NoError(t, err)
	// WriteFirstRepodata writes half of handle.body; a rewrite must still
	// end in the extcookie+primary-cookie trailer like a full primary write.
	require.Equal(t, int64(len(handle.body)/2)+2*cookie.Size, info.Size())

	fresh := &fakeRecord{alias: "oss", handle: &fakeHandle{}}
	result, err := s.Read(fresh, "", primary, true, false)
	require.NoError(t, err)
	require.True(t, result.Hit)
}

func TestReadShortCircuitsOnStaleManifestCookie(t *testing.T) {
	root := t.TempDir()
	fs := afero.NewOsFs()
	s, err := New(fs, root)
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, s.manifest, "bbolt manifest must open against a real directory")

	handle := &fakeHandle{body: []byte("solvable-bytes")}
	rec := &fakeRecord{alias: "oss", handle: handle}
	primary, err := cookie.Content(bytes.NewReader(handle.body))
	require.NoError(t, err)
	rec.SetCookie(primary)
	require.NoError(t, s.Write(rec, WriteOptions{}))

	// Poison the manifest with a cookie that disagrees with both the
	// caller's expectation and the (still perfectly valid) on-disk
	// trailer, proving the manifest lookup is consulted before the flat
	// file is ever opened rather than merely duplicating the trailer check.
	stale, err := cookie.Content(bytes.NewReader([]byte("something-else")))
	require.NoError(t, err)
	require.NoError(t, s.manifest.put("oss", "", stale, cookie.Cookie{}, false))

	fresh := &fakeRecord{alias: "oss", handle: &fakeHandle{}}
	result, err := s.Read(fresh, "", primary, true, false)
	require.NoError(t, err)
	require.False(t, result.Hit)
	require.Empty(t, fresh.handle.loaded, "stale manifest entry must prevent the flat file from being opened at all")
}
