// Package txn implements the Transaction Executor (spec.md §4.7, component
// C7): summarizing a clean solve's transaction, confirming with the user,
// downloading every newly-installed package, and committing the result
// through the RPM transaction set contract.
package txn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/schollz/progressbar/v3"

	"solv/src/internal/blobcache"
	"solv/src/internal/fetch"
	"solv/src/internal/solvpool"
)

// Summary is the printable classification of spec.md §4.7 step 2.
type Summary struct {
	Counts            map[solvpool.StepClass]int
	InstallSizeChange solvpool.InstallSizeChange
}

func Classify(t solvpool.Transaction, sizeChange solvpool.InstallSizeChange) Summary {
	counts := map[solvpool.StepClass]int{}
	for _, s := range t.Steps {
		counts[s.Class]++
	}
	return Summary{Counts: counts, InstallSizeChange: sizeChange}
}

var classLabels = map[solvpool.StepClass]string{
	solvpool.StepErase:        "erase",
	solvpool.StepInstall:      "install",
	solvpool.StepMultiInstall: "multi-install",
	solvpool.StepUpgraded:     "upgrade",
	solvpool.StepDowngraded:   "downgrade",
	solvpool.StepReinstalled:  "reinstall",
	solvpool.StepChanged:      "change",
	solvpool.StepArchChange:   "arch change",
	solvpool.StepVendorChange: "vendor change",
}

// PrintSummary writes the step-by-step plan and size-change estimate.
func PrintSummary(out io.Writer, t solvpool.Transaction, summary Summary) {
	if len(t.Steps) == 0 {
		fmt.Fprintln(out, "Nothing to do.")
		return
	}
	for _, s := range t.Steps {
		switch s.Class {
		case solvpool.StepUpgraded, solvpool.StepDowngraded, solvpool.StepArchChange, solvpool.StepVendorChange:
			old := "?"
			if s.Other != nil {
				old = s.Other.Name + "-" + s.Other.EVR
			}
			fmt.Fprintf(out, "  %s: %s -> %s-%s\n", classLabels[s.Class], old, s.Solvable.Name, s.Solvable.EVR)
		default:
			fmt.Fprintf(out, "  %s: %s-%s\n", classLabels[s.Class], s.Solvable.Name, s.Solvable.EVR)
		}
	}
	fmt.Fprintln(out, "Summary:")
	for class, n := range summary.Counts {
		fmt.Fprintf(out, "  %d %s\n", n, classLabels[class])
	}
	fmt.Fprintf(out, "Install size change: %+d bytes\n", summary.InstallSizeChange)
}

// Confirm reads a single y/n line from in; any other input is treated as no.
func Confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Continue? [y/n]: ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false, scanner.Err()
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes", nil
}

// DeltaIndex is the pluggable seam onto delta-rpm metadata: the driver
// treats the delta catalogue itself as an opaque, repo-supplied extension
// (spec.md §4.4's deltainfo kind), not something this package parses.
type DeltaIndex interface {
	// FindDelta looks up a delta producing target from an installed base
	// with the same name/arch, returning its relative location, checksum
	// hex, and sequence string for the applydeltarpm feasibility probe.
	FindDelta(target *solvpool.Solvable, installedEVR string) (location, checksumHex, seq string, ok bool)
}

// FetchFunc matches fetch.Get's signature, threaded through so callers can
// substitute a fake in tests without this package depending on a live curl.
type FetchFunc func(ctx context.Context, baseURL, relPath string, opts fetch.Options) (io.ReadCloser, fetch.Result, error)

// PlannedFetch is one resolved download: a ready-to-read stream plus the
// marker character spec.md §4.7 step 4 prints per package ("d" delta, "."
// direct).
type PlannedFetch struct {
	Step   solvpool.Step
	Stream io.ReadCloser
	Marker byte
}

// BuildDownloadPlan implements spec.md §4.7 step 4 for every install/
// multi-install step: @commandline packages are opened directly, delta-rpm
// reconstruction is attempted when both applydeltarpm and a DeltaIndex
// candidate are available, a blobcache hit is opened from disk, and
// everything else is fetched directly via C2 (and then cached).
// Any fetch failure at this stage is fatal, matching the spec's wording.
func BuildDownloadPlan(
	ctx context.Context,
	openLocal func(path string) (io.ReadCloser, error),
	steps []solvpool.Step,
	repoBaseURL func(alias string) string,
	fetchFn FetchFunc,
	deltaIndex DeltaIndex,
	applydeltarpmPath string,
	blobs *blobcache.Store,
	out io.Writer,
) ([]PlannedFetch, error) {
	bar := progressbar.NewOptions(len(steps), progressbar.OptionSetWriter(out), progressbar.OptionSetDescription("fetching"))

	var plan []PlannedFetch
	for _, step := range steps {
		if !step.Class.RPMOnly() || step.Class == solvpool.StepErase {
			continue
		}
		sv := step.Solvable

		if sv.RepoAlias == "@commandline" {
			stream, err := openLocal(sv.SourcePath)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", sv.SourcePath, err)
			}
			plan = append(plan, PlannedFetch{Step: step, Stream: stream, Marker: '.'})
			_ = bar.Add(1)
			continue
		}

		if deltaIndex != nil && applydeltarpmAvailable(applydeltarpmPath) && step.Other != nil {
			if loc, checksumHex, seq, ok := deltaIndex.FindDelta(sv, step.Other.EVR); ok {
				if stream, err := tryDelta(ctx, repoBaseURL(sv.RepoAlias), loc, checksumHex, seq, sv.Arch, applydeltarpmPath, fetchFn); err == nil && stream != nil {
					plan = append(plan, PlannedFetch{Step: step, Stream: stream, Marker: 'd'})
					_ = bar.Add(1)
					continue
				}
			}
		}

		if blobs != nil && sv.Checksum.Algo == "sha256" {
			if path, hit := blobs.Lookup(sv.Checksum.Hex); hit {
				f, err := os.Open(path)
				if err != nil {
					return nil, err
				}
				plan = append(plan, PlannedFetch{Step: step, Stream: f, Marker: '.'})
				_ = bar.Add(1)
				continue
			}
		}

		stream, res, err := fetchFn(ctx, repoBaseURL(sv.RepoAlias), sv.Location, fetch.Options{Checksum: sv.Checksum})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", sv.Name, err)
		}
		if !res.Present {
			return nil, fmt.Errorf("fetch %s: not present or checksum mismatch", sv.Name)
		}

		if blobs != nil {
			path, err := blobs.StoreFromReader(stream)
			stream.Close()
			if err != nil {
				return nil, fmt.Errorf("cache %s: %w", sv.Name, err)
			}
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			stream = f
		}

		plan = append(plan, PlannedFetch{Step: step, Stream: stream, Marker: '.'})
		_ = bar.Add(1)
	}
	return plan, nil
}

func applydeltarpmAvailable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode()&0111 != 0
}

// tryDelta probes delta feasibility with "-c -s <seq>" and, on success,
// fetches the delta body and reconstructs the full package by piping it
// through applydeltarpm. Any failure here is non-fatal: the caller falls
// through to a direct fetch.
func tryDelta(ctx context.Context, baseURL, location, checksumHex, seq, arch, applydeltarpmPath string, fetchFn FetchFunc) (io.ReadCloser, error) {
	probe := exec.CommandContext(ctx, applydeltarpmPath, "-c", "-s", seq)
	if err := probe.Run(); err != nil {
		return nil, err
	}

	deltaStream, res, err := fetchFn(ctx, baseURL, location, fetch.Options{})
	if err != nil || !res.Present {
		return nil, fmt.Errorf("delta fetch failed")
	}
	defer deltaStream.Close()

	deltaFile, err := os.CreateTemp("", "solv-delta-")
	if err != nil {
		return nil, err
	}
	deltaPath := deltaFile.Name()
	defer os.Remove(deltaPath)
	if _, err := io.Copy(deltaFile, deltaStream); err != nil {
		deltaFile.Close()
		return nil, err
	}
	deltaFile.Close()

	out, err := os.CreateTemp("", "solv-rebuilt-")
	if err != nil {
		return nil, err
	}
	outPath := out.Name()
	out.Close()

	cmd := exec.CommandContext(ctx, applydeltarpmPath, "-a", arch, deltaPath, outPath)
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return nil, err
	}

	f, err := os.Open(outPath)
	if err != nil {
		os.Remove(outPath)
		return nil, err
	}
	return &removeOnCloseFile{File: f, path: outPath}, nil
}

type removeOnCloseFile struct {
	*os.File
	path string
}

func (f *removeOnCloseFile) Close() error {
	err := f.File.Close()
	os.Remove(f.path)
	return err
}

// Commit implements spec.md §4.7 step 5: open the RPM transaction set,
// schedule every RPM-only step, check, order, and run with a callback
// backed by plan. out receives the per-step "install <name>"/"erase <name>"
// lines the callback contract fires (INST_START/UNINST_START); pass nil to
// suppress them.
func Commit(pdb solvpool.PackageDB, root string, steps []solvpool.Step, plan []PlannedFetch, out io.Writer) error {
	streamByID := map[solvpool.ID]io.ReadCloser{}
	for _, p := range plan {
		streamByID[p.Step.Solvable.ID] = p.Stream
	}

	if err := pdb.Open(root); err != nil {
		return err
	}
	defer pdb.Close()
	pdb.DisableSignatureChecks()

	for _, step := range steps {
		if !step.Class.RPMOnly() {
			continue
		}
		switch step.Class {
		case solvpool.StepErase:
			if step.Solvable.RPMDBID == 0 {
				return fmt.Errorf("erase %s: missing rpmdb id", step.Solvable.Name)
			}
			if err := pdb.AddErase(step.Solvable.RPMDBID); err != nil {
				return err
			}
		case solvpool.StepInstall:
			stream, ok := streamByID[step.Solvable.ID]
			if !ok {
				return fmt.Errorf("install %s: no downloaded stream", step.Solvable.Name)
			}
			if err := pdb.AddInstall(stream, solvpool.InstallModeUpgrade); err != nil {
				return err
			}
		case solvpool.StepMultiInstall:
			stream, ok := streamByID[step.Solvable.ID]
			if !ok {
				return fmt.Errorf("install %s: no downloaded stream", step.Solvable.Name)
			}
			if err := pdb.AddInstall(stream, solvpool.InstallModeAdd); err != nil {
				return err
			}
		}
	}

	if problems := pdb.Check(); len(problems) > 0 {
		return fmt.Errorf("transaction check failed: %s", strings.Join(problems, "; "))
	}
	if err := pdb.Order(); err != nil {
		return err
	}

	cb := &commitCallback{streamByID: streamByID, out: out}
	return pdb.Run(cb)
}

type commitCallback struct {
	streamByID map[solvpool.ID]io.ReadCloser
	out        io.Writer
}

func (c *commitCallback) OpenFile(step solvpool.Step) (io.ReadCloser, error) {
	stream, ok := c.streamByID[step.Solvable.ID]
	if !ok {
		return nil, fmt.Errorf("no precomputed stream for %s", step.Solvable.Name)
	}
	return stream, nil
}

func (c *commitCallback) OnInstallStart(name string) {
	if c.out != nil {
		fmt.Fprintf(c.out, "install %s\n", name)
	}
}

func (c *commitCallback) OnEraseStart(name string) {
	if c.out != nil {
		fmt.Fprintf(c.out, "erase %s\n", name)
	}
}
