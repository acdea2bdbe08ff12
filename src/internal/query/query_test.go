package query

import (
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"solv/src/internal/solvpool"
)

func buildPool() *solvpool.Pool {
	p := solvpool.New("x86_64")
	oss := p.AddRepo("oss", 99)
	p.AddSolvable(oss, &solvpool.Solvable{
		Name: "vim", EVR: "2:9.0-1", Arch: "x86_64",
		Provides: []string{"vim", "editor"},
		Files:    []string{"/usr/bin/vim"},
	})
	p.AddSolvable(oss, &solvpool.Solvable{
		Name: "vim-enhanced", EVR: "2:9.0-1", Arch: "x86_64",
		Provides: []string{"vim-enhanced", "editor"},
		Files:    []string{"/usr/bin/vim-enhanced"},
	})
	p.AddSolvable(oss, &solvpool.Solvable{
		Name: "nano", EVR: "6.4-1", Arch: "x86_64",
		Provides: []string{"nano", "editor"},
	})

	sys := p.AddRepo(".System", 0)
	p.SetInstalled(sys)
	p.AddSolvable(sys, &solvpool.Solvable{
		Name: "nano", EVR: "6.3-1", Arch: "x86_64", Provides: []string{"nano"},
		Files: []string{"/usr/bin/nano"},
	})
	return p
}

func TestDepglobPureNameHit(t *testing.T) {
	p := buildPool()
	jobs, note := Depglob(p, "vim", true, true)
	require.Len(t, jobs, 1)
	require.Equal(t, solvpool.SelectorName, jobs[0].Selector)
	require.Empty(t, note)
}

func TestDepglobCapabilityHit(t *testing.T) {
	p := buildPool()
	jobs, note := Depglob(p, "editor", true, true)
	require.Len(t, jobs, 1)
	require.Equal(t, solvpool.SelectorProvides, jobs[0].Selector)
	require.NotEmpty(t, note)
}

func TestDepglobNoMetaCharsNoProviderIsEmpty(t *testing.T) {
	p := buildPool()
	jobs, _ := Depglob(p, "doesnotexist", true, true)
	require.Empty(t, jobs)
}

func TestDepglobGlobByName(t *testing.T) {
	p := buildPool()
	jobs, _ := Depglob(p, "vim*", true, false)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		require.Equal(t, solvpool.SelectorName, j.Selector)
	}
}

func TestLimitjobsSetsSetEVForEqualityOnName(t *testing.T) {
	jobs := []solvpool.Job{{Selector: solvpool.SelectorName, What: 1}}
	out := Limitjobs(jobs, solvpool.RelEQ, "9.0")
	require.True(t, out[0].Mod.Has(solvpool.ModSetEV))
	require.False(t, out[0].Mod.Has(solvpool.ModSetEVR))
}

func TestLimitjobsSetsSetEVRWhenDashPresent(t *testing.T) {
	jobs := []solvpool.Job{{Selector: solvpool.SelectorName, What: 1}}
	out := Limitjobs(jobs, solvpool.RelEQ, "9.0-1")
	require.True(t, out[0].Mod.Has(solvpool.ModSetEVR))
}

func TestLimitjobsArchSplitsKnownArch(t *testing.T) {
	p := buildPool()
	jobs := []solvpool.Job{{Selector: solvpool.SelectorName, What: 1}}
	out := LimitjobsArch(p, jobs, solvpool.RelEQ, "9.0-1.x86_64")
	require.Equal(t, "x86_64", out[0].Arch)
	require.Equal(t, "9.0-1", out[0].EVR)
	require.True(t, out[0].Mod.Has(solvpool.ModSetArch))
}

func TestLimitjobsArchLeavesUnknownSuffixAsEVR(t *testing.T) {
	p := buildPool()
	jobs := []solvpool.Job{{Selector: solvpool.SelectorName, What: 1}}
	out := LimitjobsArch(p, jobs, solvpool.RelEQ, "9.0.1")
	require.Empty(t, out[0].Arch)
	require.Equal(t, "9.0.1", out[0].EVR)
}

func TestCompilePlainFormNameEVR(t *testing.T) {
	p := buildPool()
	fs := afero.NewMemMapFs()
	jobs, err := Compile(fs, p, nil, Install, "nano-6.4-1")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, solvpool.RelEQ, jobs[0].Rel)
}

func TestCompileRelationalForm(t *testing.T) {
	p := buildPool()
	fs := afero.NewMemMapFs()
	jobs, err := Compile(fs, p, nil, Update, "nano >= 6.4")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, solvpool.RelEQ|solvpool.RelGT, jobs[0].Rel)
	require.Equal(t, "6.4", jobs[0].EVR)
}

func TestCompilePathFormSingleMatch(t *testing.T) {
	p := buildPool()
	fs := afero.NewMemMapFs()
	jobs, err := Compile(fs, p, nil, Info, "/usr/bin/vim")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, solvpool.SelectorSolvable, jobs[0].Selector)
}

func TestCompilePathFormEraseRestrictsToInstalled(t *testing.T) {
	p := buildPool()
	fs := afero.NewMemMapFs()
	// /usr/bin/vim is not installed, so erase should find nothing there.
	_, err := Compile(fs, p, nil, Erase, "/usr/bin/vim")
	require.Error(t, err)

	jobs, err := Compile(fs, p, nil, Erase, "/usr/bin/nano")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestCompileNoMatchReturnsSuggestions(t *testing.T) {
	p := buildPool()
	fs := afero.NewMemMapFs()
	_, err := Compile(fs, p, nil, Install, "vm")
	require.Error(t, err)
	var nme *NoMatchError
	require.ErrorAs(t, err, &nme)
	require.NotEmpty(t, nme.Suggestions)
}

type fakeCmdlineHandle struct {
	added []string
	next  solvpool.ID
}

func (h *fakeCmdlineHandle) WritePrimary(w io.Writer) error       { return nil }
func (h *fakeCmdlineHandle) WriteFirstRepodata(w io.Writer) error { return nil }
func (h *fakeCmdlineHandle) LoadSolv(r io.Reader, f solvpool.LoadFlags) error {
	_, err := io.ReadAll(r)
	return err
}
func (h *fakeCmdlineHandle) Contiguous() bool { return false }
func (h *fakeCmdlineHandle) Internalize()     {}
func (h *fakeCmdlineHandle) AddRPM(path string, flags solvpool.LoadFlags) (solvpool.ID, error) {
	h.next++
	h.added = append(h.added, path)
	return h.next, nil
}

func TestCompileCommandlineRPM(t *testing.T) {
	p := buildPool()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tmp/foo-1.0-1.x86_64.rpm", []byte("rpm"), 0644))

	handle := &fakeCmdlineHandle{}
	jobs, err := Compile(fs, p, handle, Install, "/tmp/foo-1.0-1.x86_64.rpm")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, solvpool.SelectorSolvable, jobs[0].Selector)
	require.Equal(t, []string{"/tmp/foo-1.0-1.x86_64.rpm"}, handle.added)
}
