// Package cachesnapshot bundles the on-disk cache store (/var/cache/solv)
// into a single archive so it can be shipped to an offline host, and
// restores one back. It is not part of the core metadata lifecycle (C1-C7);
// it is an operational convenience carried over from the teacher's state
// backup/restore command.
package cachesnapshot

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Create zips cacheDir into <destDir>/<name>_<unix-ts>.zip and returns the
// archive path.
func Create(cacheDir, destDir, name string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	archivePath := filepath.Join(destDir, fmt.Sprintf("%s_%d.zip", name, time.Now().Unix()))
	if err := zipDirectory(cacheDir, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

// Restore unpacks archivePath into cacheDir, overwriting existing entries.
func Restore(archivePath, cacheDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}

	for _, f := range r.File {
		target := filepath.Join(cacheDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(cacheDir)+string(os.PathSeparator)) {
			return fmt.Errorf("invalid entry path in snapshot: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, rc)
	return err
}

func zipDirectory(source, target string) error {
	zipfile, err := os.Create(target)
	if err != nil {
		return err
	}
	defer zipfile.Close()

	archive := zip.NewWriter(zipfile)
	defer archive.Close()

	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name, err = filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}

		writer, err := archive.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
}
