// Package fetch implements the Fetcher (spec.md §4.2, component C2):
// retrieving one named file from a repository base URL, verifying its
// checksum, and optionally wrapping it in a transparent decompressor. The
// HTTP client itself is out of scope per spec.md §1 ("a process-exec to a
// URL fetcher is sufficient"); this package shells out to curl the way the
// teacher shells out to the system python/pip executables.
package fetch

import (
	"bytes"
	"compress/bzip2"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/h2non/filetype"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"solv/src/internal/cookie"
	"solv/src/internal/telemetry"
)

// Options controls one Get call.
type Options struct {
	// Uncompress requests transparent decompression, per spec.md §4.2;
	// decompress chooses the codec from a content sniff and relPath.
	Uncompress bool
	// Checksum is the expected checksum, if the caller has one. A zero
	// value means "no checksum expected".
	Checksum cookie.Checksum
	// CurlPath overrides the curl executable name; defaults to "curl".
	// Exposed so tests can point at a fake binary.
	CurlPath string
}

// Result reports the three outcomes spec.md §4.2 distinguishes: a genuine
// miss, a fetch that failed or mismatched its checksum (BadChecksum, which
// the caller must treat as sticky for the remainder of this repo's
// refresh), or a present stream.
type Result struct {
	Present     bool
	BadChecksum bool
}

// Get retrieves baseURL (trailing slash stripped) + "/" + relPath. A
// missing file is Result{Present:false}, nil, nil — spec.md §7: "Cookie
// mismatches are not errors"; the same policy applies to optional fetches.
// A non-nil error is reserved for conditions the spec does not model as
// expected outcomes (e.g. the caller's context being canceled).
func Get(ctx context.Context, baseURL, relPath string, opts Options) (io.ReadCloser, Result, error) {
	done := telemetry.StartSpan("fetch.get", "url", baseURL, "path", relPath)
	url := strings.TrimSuffix(baseURL, "/") + "/" + relPath

	tmp, err := os.CreateTemp("", "solv-fetch-")
	if err != nil {
		done("status", "error", "error", err.Error())
		return nil, Result{}, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	curlPath := opts.CurlPath
	if curlPath == "" {
		curlPath = "curl"
	}
	cmd := exec.CommandContext(ctx, curlPath, "-f", "-s", "-L", "-o", tmpPath, url)
	runErr := cmd.Run()

	info, statErr := os.Stat(tmpPath)
	empty := statErr != nil || info.Size() == 0

	if runErr != nil {
		done("status", "ok", "present", false, "bad_checksum", true, "reason", "curl_exit")
		return nil, Result{BadChecksum: true}, nil
	}
	if empty {
		if opts.Checksum.Empty() {
			done("status", "ok", "present", false, "reason", "empty_no_checksum_expected")
			return nil, Result{}, nil
		}
		done("status", "ok", "present", false, "bad_checksum", true, "reason", "empty_checksum_expected")
		return nil, Result{BadChecksum: true}, nil
	}

	if !opts.Checksum.Empty() {
		f, err := os.Open(tmpPath)
		if err != nil {
			done("status", "error", "error", err.Error())
			return nil, Result{}, err
		}
		match, err := opts.Checksum.Matches(f)
		f.Close()
		if err != nil {
			done("status", "error", "error", err.Error())
			return nil, Result{}, err
		}
		if !match {
			done("status", "ok", "present", false, "bad_checksum", true, "reason", "checksum_mismatch")
			return nil, Result{BadChecksum: true}, nil
		}
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		done("status", "error", "error", err.Error())
		return nil, Result{}, err
	}

	var stream io.ReadCloser = io.NopCloser(bytes.NewReader(data))
	if opts.Uncompress {
		stream, err = decompress(data, relPath)
		if err != nil {
			done("status", "error", "error", err.Error())
			return nil, Result{}, err
		}
	}

	done("status", "ok", "present", true)
	return stream, Result{Present: true}, nil
}

// decompress wraps raw in a transparent decompressor. Gzip is used when the
// content sniff (h2non/filetype) reports gzip or relPath ends in .gz, then
// xz likewise; bzip2 only for a .bz2 relPath. A gzip or xz body without
// the matching extension is still decompressed, but a .gz or .xz name
// selects that codec whatever the body is, so a plain body under such a
// name fails to open.
func decompress(raw []byte, relPath string) (io.ReadCloser, error) {
	kind, _ := filetype.Match(raw)
	switch {
	case kind.Extension == "gz" || strings.HasSuffix(relPath, ".gz"):
		r, err := kgzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		return r, nil
	case kind.Extension == "xz" || strings.HasSuffix(relPath, ".xz"):
		r, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		return io.NopCloser(r), nil
	case strings.HasSuffix(relPath, ".bz2"):
		return io.NopCloser(bzip2.NewReader(bytes.NewReader(raw))), nil
	default:
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
}
