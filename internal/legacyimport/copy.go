package legacyimport

import (
	"io"
	"os"
	"path/filepath"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// sqliteSidecarSuffixes are SQLite's WAL-mode sidecar files; a backup
// or copy of a database file that skips them risks losing
// not-yet-checkpointed writes.
var sqliteSidecarSuffixes = []string{"-wal", "-shm"}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: open source file")
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: create destination directory")
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: create destination file")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errs.Wrap(err, errs.Internal, "legacyimport: copy file content")
	}
	return out.Close()
}

// backupDBWithSidecars copies dbPath and any present WAL/SHM sidecars
// into destinationRoot, ahead of an in-place migration.
func backupDBWithSidecars(dbPath, destinationRoot string) error {
	if err := os.MkdirAll(destinationRoot, 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: create backup directory")
	}
	if err := copyFile(dbPath, filepath.Join(destinationRoot, filepath.Base(dbPath))); err != nil {
		return err
	}
	for _, suffix := range sqliteSidecarSuffixes {
		sidecar := dbPath + suffix
		if pathExists(sidecar) {
			if err := copyFile(sidecar, filepath.Join(destinationRoot, filepath.Base(sidecar))); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyDBWithSidecars copies the source database and its sidecars to
// targetDB, ahead of a copy-mode import.
func copyDBWithSidecars(sourceDB, targetDB string) error {
	if err := copyFile(sourceDB, targetDB); err != nil {
		return err
	}
	for _, suffix := range sqliteSidecarSuffixes {
		sourceSidecar := sourceDB + suffix
		if pathExists(sourceSidecar) {
			if err := copyFile(sourceSidecar, targetDB+suffix); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyDirRecursive copies src into dst, refusing symlinked directories
// and broken symlinks rather than silently following or skipping
// them, mirroring the attachment CAS's symlink policy.
func copyDirRecursive(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errs.Wrap(err, errs.InvalidArgument, "legacyimport: source directory does not exist")
	}
	if !info.IsDir() {
		return errs.New(errs.InvalidArgument, "legacyimport: source is not a directory: "+src)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: create target directory")
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: read source directory")
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		lstat, err := os.Lstat(srcPath)
		if err != nil {
			return errs.Wrap(err, errs.Internal, "legacyimport: stat source entry")
		}
		if lstat.Mode()&os.ModeSymlink != 0 {
			target, readErr := os.Readlink(srcPath)
			if readErr != nil {
				return errs.New(errs.InvalidArgument, "legacyimport: broken symlink: "+srcPath)
			}
			resolved := target
			if !filepath.IsAbs(target) {
				resolved = filepath.Join(filepath.Dir(srcPath), target)
			}
			targetInfo, statErr := os.Stat(resolved)
			if statErr != nil {
				return errs.New(errs.InvalidArgument, "legacyimport: broken symlink: "+srcPath)
			}
			if targetInfo.IsDir() {
				return errs.New(errs.InvalidArgument, "legacyimport: symlink to directory not allowed: "+srcPath)
			}
			if err := copyFile(resolved, dstPath); err != nil {
				return err
			}
			continue
		}

		if entry.IsDir() {
			if err := copyDirRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}
