package exportpipeline

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// zipEpoch is the fixed modification timestamp stamped on every entry
// of a deterministic export zip: spec.md §4.5's determinism
// requirement means two exports of identical inputs must hash
// identically, which rules out using the wall-clock time of the zip
// operation itself.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// zipBundleDeterministic packages bundleDir into outZipPath: entries
// are added in sorted path order with a fixed modification time and
// without the zip "extra" fields that some writers stamp with
// platform-specific data, so byte-identical inputs always produce a
// byte-identical archive (spec.md §4.5 stage 8).
func zipBundleDeterministic(bundleDir, outZipPath string) error {
	var relPaths []string
	err := filepath.WalkDir(bundleDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bundleDir, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: walk bundle directory for zipping")
	}
	sort.Strings(relPaths)

	if err := os.MkdirAll(filepath.Dir(outZipPath), 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: create zip output directory")
	}
	out, err := os.Create(outZipPath)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: create zip file")
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, rel := range relPaths {
		if err := addZipEntry(zw, bundleDir, rel); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: finalize zip")
	}
	return nil
}

func addZipEntry(zw *zip.Writer, bundleDir, rel string) error {
	path := filepath.Join(bundleDir, rel)
	info, err := os.Stat(path)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: stat zip entry")
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: build zip header")
	}
	header.Name = filepath.ToSlash(rel)
	header.Modified = zipEpoch
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: create zip entry")
	}

	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: open file for zipping")
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: write zip entry content")
	}
	return nil
}
