package fetch

import (
	"context"
	"io"

	"github.com/codeclysm/extract/v3"

	"solv/src/internal/telemetry"
)

// ExtractArchiveTo unpacks a fetched archive stream (some susetags mirrors
// bundle their whole descrdir as a single tarball rather than individual
// gzip members) into destDir, the same way the teacher unpacks a fetched
// Python distribution with extract.Archive.
func ExtractArchiveTo(ctx context.Context, r io.Reader, destDir string) error {
	done := telemetry.StartSpan("fetch.extract_archive", "dest", destDir)
	if err := extract.Archive(ctx, r, destDir, nil); err != nil {
		done("status", "error", "error", err.Error())
		return err
	}
	done("status", "ok")
	return nil
}
