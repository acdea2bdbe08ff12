package reposync

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"solv/src/internal/cachestore"
	"solv/src/internal/extstub"
	"solv/src/internal/repoconfig"
	"solv/src/internal/solvpool"
)

type fakeSystemHandle struct {
	productsDir string
	rpmdbAdded  bool
}

func (h *fakeSystemHandle) WritePrimary(w io.Writer) error {
	_, err := w.Write([]byte("sys"))
	return err
}
func (h *fakeSystemHandle) WriteFirstRepodata(w io.Writer) error { return h.WritePrimary(w) }
func (h *fakeSystemHandle) LoadSolv(r io.Reader, f solvpool.LoadFlags) error {
	_, err := io.ReadAll(r)
	return err
}
func (h *fakeSystemHandle) Contiguous() bool { return false }
func (h *fakeSystemHandle) Internalize()     {}
func (h *fakeSystemHandle) AddProducts(dir string, flags solvpool.LoadFlags) error {
	h.productsDir = dir
	return nil
}
func (h *fakeSystemHandle) AddRPMDB(flags solvpool.LoadFlags) error {
	h.rpmdbAdded = true
	return nil
}

func installFakeCurlWithBody(t *testing.T, body []byte) {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.bin")
	require.NoError(t, os.WriteFile(fixture, body, 0644))
	script := filepath.Join(dir, "curl")
	contents := "#!/bin/sh\nout=\"\"\nwhile [ \"$#\" -gt 0 ]; do\n  if [ \"$1\" = \"-o\" ]; then out=\"$2\"; shift; fi\n  shift\ndone\ncp \"" + fixture + "\" \"$out\"\n"
	require.NoError(t, os.WriteFile(script, []byte(contents), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestBootstrapSystemWritesCacheOnMiss(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	rpmPackages := filepath.Join(dir, "Packages")
	require.NoError(t, afero.WriteFile(fs, rpmPackages, []byte("rpmdb"), 0644))

	store, err := cachestore.New(fs, filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer store.Close()

	registry, err := extstub.NewRegistry(store, 16)
	require.NoError(t, err)

	loader := New(solvpool.New("x86_64"), store, registry)
	rec := repoconfig.NewSystemRecord(&fakeSystemHandle{})
	handle := &fakeSystemHandle{}
	rec.SetHandle(handle)

	require.NoError(t, loader.BootstrapSystem(fs, rec, handle, rpmPackages, "/etc/products.d"))
	require.True(t, handle.rpmdbAdded)
	require.Equal(t, "/etc/products.d", handle.productsDir)

	_, statErr := fs.Stat(store.Path(rec.Alias(), ""))
	require.NoError(t, statErr)
}

func TestBootstrapSystemSkipsIngestOnCacheHit(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	rpmPackages := filepath.Join(dir, "Packages")
	require.NoError(t, afero.WriteFile(fs, rpmPackages, []byte("rpmdb"), 0644))

	store, err := cachestore.New(fs, filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer store.Close()
	registry, err := extstub.NewRegistry(store, 16)
	require.NoError(t, err)
	loader := New(solvpool.New("x86_64"), store, registry)

	rec := repoconfig.NewSystemRecord(nil)
	handle := &fakeSystemHandle{}
	rec.SetHandle(handle)
	require.NoError(t, loader.BootstrapSystem(fs, rec, handle, rpmPackages, "/etc/products.d"))
	require.True(t, handle.rpmdbAdded)

	secondHandle := &fakeSystemHandle{}
	rec2 := repoconfig.NewSystemRecord(secondHandle)
	require.NoError(t, loader.BootstrapSystem(fs, rec2, secondHandle, rpmPackages, "/etc/products.d"))
	require.False(t, secondHandle.rpmdbAdded)
}

func TestShouldRefreshFalseWithoutAutorefresh(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	store, err := cachestore.New(fs, dir)
	require.NoError(t, err)
	defer store.Close()

	rec := &repoconfig.RepoRecord{BaseURL: "http://x", AutoRefresh: false, MetadataExpire: 900}
	require.False(t, ShouldRefresh(fs, rec, store, time.Now()))
}

func TestShouldRefreshTrueWhenCacheMissing(t *testing.T) {
	fs := afero.NewOsFs()
	dir := t.TempDir()
	store, err := cachestore.New(fs, dir)
	require.NoError(t, err)
	defer store.Close()

	rec := &repoconfig.RepoRecord{BaseURL: "http://x", AutoRefresh: true, MetadataExpire: 900}
	require.True(t, ShouldRefresh(fs, rec, store, time.Now()))
}

type fakeRPMMDHandle struct {
	index       map[string][2]string
	primaryBody []byte
	ingested    bool
}

func (h *fakeRPMMDHandle) WritePrimary(w io.Writer) error {
	_, err := w.Write([]byte("repo"))
	return err
}
func (h *fakeRPMMDHandle) WriteFirstRepodata(w io.Writer) error { return h.WritePrimary(w) }
func (h *fakeRPMMDHandle) LoadSolv(r io.Reader, f solvpool.LoadFlags) error {
	_, err := io.ReadAll(r)
	return err
}
func (h *fakeRPMMDHandle) Contiguous() bool { return false }
func (h *fakeRPMMDHandle) Internalize()     {}
func (h *fakeRPMMDHandle) AddRepomdIndex(r io.Reader) error {
	_, err := io.ReadAll(r)
	return err
}
func (h *fakeRPMMDHandle) Lookup(dataType string) (string, string, bool) {
	v, ok := h.index[dataType]
	if !ok {
		return "", "", false
	}
	return v[0], v[1], true
}
func (h *fakeRPMMDHandle) AddPrimary(r io.Reader, flags solvpool.LoadFlags) error {
	b, err := io.ReadAll(r)
	h.primaryBody = b
	h.ingested = true
	return err
}
func (h *fakeRPMMDHandle) AddUpdateinfo(r io.Reader, flags solvpool.LoadFlags) error {
	_, err := io.ReadAll(r)
	return err
}

type fakeSusetagsHandle struct {
	contentIndexed bool
	packagesBody   string
	packagesEnBody string
	indexEntries   []string
}

func (h *fakeSusetagsHandle) WritePrimary(w io.Writer) error {
	_, err := w.Write([]byte("sv"))
	return err
}
func (h *fakeSusetagsHandle) WriteFirstRepodata(w io.Writer) error { return h.WritePrimary(w) }
func (h *fakeSusetagsHandle) LoadSolv(r io.Reader, f solvpool.LoadFlags) error {
	_, err := io.ReadAll(r)
	return err
}
func (h *fakeSusetagsHandle) Contiguous() bool { return false }
func (h *fakeSusetagsHandle) Internalize()     {}
func (h *fakeSusetagsHandle) AddContentIndex(r io.Reader) error {
	h.contentIndexed = true
	_, err := io.ReadAll(r)
	return err
}
func (h *fakeSusetagsHandle) IndexEntries() []string { return h.indexEntries }
func (h *fakeSusetagsHandle) AddPackages(r io.Reader, flags solvpool.LoadFlags) error {
	b, err := io.ReadAll(r)
	h.packagesBody = string(b)
	return err
}
func (h *fakeSusetagsHandle) AddPackagesLang(r io.Reader, flags solvpool.LoadFlags) error {
	b, err := io.ReadAll(r)
	h.packagesEnBody = string(b)
	return err
}

func buildTarGz(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(body)), Mode: 0644}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	dir := t.TempDir()
	path := filepath.Join(dir, "descr.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// installFakeCurlRouter installs a fake curl that copies a fixture file
// keyed by the requested URL's suffix, and fails (curl -f's nonzero exit,
// i.e. fetch.Result{Present:false}) for anything unlisted — enough to
// simulate a mirror missing one file but serving another.
func installFakeCurlRouter(t *testing.T, routes map[string]string) {
	t.Helper()
	dir := t.TempDir()
	var b bytes.Buffer
	b.WriteString("#!/bin/sh\nout=\"\"\nurl=\"\"\nwhile [ \"$#\" -gt 0 ]; do\n  case \"$1\" in\n    -o) out=\"$2\"; shift ;;\n    http://*|https://*) url=\"$1\" ;;\n  esac\n  shift\ndone\ncase \"$url\" in\n")
	for suffix, fixture := range routes {
		b.WriteString("  *" + suffix + ") cp \"" + fixture + "\" \"$out\" ;;\n")
	}
	b.WriteString("  *) exit 22 ;;\nesac\n")
	script := filepath.Join(dir, "curl")
	require.NoError(t, os.WriteFile(script, b.Bytes(), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRefreshSusetagsFallsBackToBundledDescrDirWhenPackagesGzMissing(t *testing.T) {
	contentFixtureDir := t.TempDir()
	contentFixture := filepath.Join(contentFixtureDir, "content")
	require.NoError(t, os.WriteFile(contentFixture, []byte("CONTENT"), 0644))
	tarball := buildTarGz(t, map[string]string{"packages": "bundled-packages", "packages.en": "bundled-packages-en"})

	installFakeCurlRouter(t, map[string]string{
		"/content":        contentFixture,
		"/descr.tar.gz":   tarball,
		"/packages.en.gz": contentFixture, // unreachable: packages.gz missing skips this fetch
	})

	fs := afero.NewOsFs()
	dir := t.TempDir()
	store, err := cachestore.New(fs, filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer store.Close()
	registry, err := extstub.NewRegistry(store, 16)
	require.NoError(t, err)
	loader := New(solvpool.New("x86_64"), store, registry)

	rec := repoconfig.NewRecordForTest("oss", "http://mirror.invalid/oss")
	handle := &fakeSusetagsHandle{}
	rec.SetHandle(handle)

	err = loader.RefreshSusetags(context.Background(), rec, handle)
	require.NoError(t, err)
	require.True(t, handle.contentIndexed)
	require.Equal(t, "bundled-packages", handle.packagesBody)
	require.Equal(t, "bundled-packages-en", handle.packagesEnBody)
}

func TestRefreshRPMMDFetchesAndIngestsPrimary(t *testing.T) {
	installFakeCurlWithBody(t, []byte("<repomd/>"))

	fs := afero.NewOsFs()
	dir := t.TempDir()
	store, err := cachestore.New(fs, filepath.Join(dir, "cache"))
	require.NoError(t, err)
	defer store.Close()
	registry, err := extstub.NewRegistry(store, 16)
	require.NoError(t, err)
	loader := New(solvpool.New("x86_64"), store, registry)

	rec := repoconfig.NewRecordForTest("oss", "http://mirror.invalid/oss")
	handle := &fakeRPMMDHandle{index: map[string][2]string{"primary": {"repodata/primary.xml", ""}}}
	rec.SetHandle(handle)

	err = loader.RefreshRPMMD(context.Background(), rec, handle)
	require.NoError(t, err)
	require.True(t, handle.ingested)
}
