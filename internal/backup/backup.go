// Package backup archives a database directory (every attached SQLite
// file plus the Databases catalog) into a single tar.xz snapshot, for
// the CLI's "backup" subcommand. Grounded in the teacher's tar/xz format
// handler, which reads the same container this package writes.
package backup

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/go-dbfacade/dbfacade/internal/logging"
)

// Archive writes every regular file under dir into a tar.xz stream at
// destPath, with paths stored relative to dir.
func Archive(dir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("backup: create %s: %w", destPath, err)
	}
	defer out.Close()

	xw, err := xz.NewWriter(out)
	if err != nil {
		return fmt.Errorf("backup: xz writer: %w", err)
	}
	defer xw.Close()

	tw := tar.NewWriter(xw)
	defer tw.Close()

	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("backup: header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("backup: write header for %s: %w", rel, err)
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("backup: open %s: %w", rel, err)
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("backup: copy %s: %w", rel, err)
		}
		logging.Info("backup: archived file", "path", rel, "size", header.Size)
		return nil
	})
	if err != nil {
		return err
	}

	logging.Info("backup: wrote archive", "dest", destPath, "source", dir)
	return nil
}

// safeJoin resolves name (a tar entry path, always slash-separated) under
// destDir and rejects any entry that would escape it via ".." segments or
// an absolute path (tar-slip).
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q escapes destination directory", name)
	}
	return target, nil
}

// Restore extracts a tar.xz archive produced by Archive into destDir,
// recreating the directory structure. destDir must be empty or absent;
// Restore never overwrites an existing file.
func Restore(archivePath, destDir string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", archivePath, err)
	}
	defer in.Close()

	xr, err := xz.NewReader(in)
	if err != nil {
		return fmt.Errorf("backup: xz reader: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("backup: mkdir %s: %w", destDir, err)
	}

	tr := tar.NewReader(xr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("backup: read tar entry: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("backup: refusing to overwrite existing file %s", target)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("backup: mkdir for %s: %w", target, err)
		}

		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, os.FileMode(header.Mode))
		if err != nil {
			return fmt.Errorf("backup: create %s: %w", target, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return fmt.Errorf("backup: write %s: %w", target, err)
		}
		f.Close()
		logging.Info("backup: restored file", "path", header.Name)
	}

	logging.Info("backup: restored archive", "source", archivePath, "dest", destDir)
	return nil
}
