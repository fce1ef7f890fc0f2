package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// CAS is a content-addressed blob store rooted under
// <storageRoot>/<project>/attachments/cas. Attachments are deduplicated
// by SHA-256 content hash (spec.md §3): two identical files, even from
// different messages, occupy one blob.
type CAS struct {
	root string
}

// NewCAS returns a CAS rooted at root, creating it if absent.
func NewCAS(root string) (*CAS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.Wrap(err, errs.Internal, "archive: create CAS root")
	}
	return &CAS{root: root}, nil
}

// HashFile returns the lowercase hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.Wrap(err, errs.Internal, "archive: open file to hash")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.Wrap(err, errs.Internal, "archive: hash file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Path returns the on-disk path a blob with the given hash would
// occupy, sharded two levels deep to keep any one directory small.
func (c *CAS) Path(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(c.root, hash)
	}
	return filepath.Join(c.root, hash[:2], hash[2:4], hash)
}

// Has reports whether a blob with the given hash already exists.
func (c *CAS) Has(hash string) bool {
	_, err := os.Stat(c.Path(hash))
	return err == nil
}

// Put copies srcPath into the CAS under its content hash, returning
// the hash. If a blob with that hash already exists, the copy is
// skipped (content addressing's whole point: identical content is
// stored once).
func (c *CAS) Put(srcPath string) (hash string, err error) {
	hash, err = HashFile(srcPath)
	if err != nil {
		return "", err
	}
	if c.Has(hash) {
		return hash, nil
	}

	dst := c.Path(hash)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errs.Wrap(err, errs.Internal, "archive: create CAS shard dir")
	}

	if err := copyFileNoSymlinks(srcPath, dst); err != nil {
		return "", err
	}
	return hash, nil
}

// copyFileNoSymlinks copies src to dst, refusing a src that is a
// symlink (spec.md §4.2: "refuse symlinks-to-directories and broken
// symlinks in recursive copies").
func copyFileNoSymlinks(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "archive: stat source file")
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, readErr := os.Readlink(src)
		if readErr != nil {
			return errs.New(errs.InvalidArgument, "archive: broken symlink in attachment source: "+src)
		}
		resolved := target
		if !filepath.IsAbs(target) {
			resolved = filepath.Join(filepath.Dir(src), target)
		}
		targetInfo, statErr := os.Stat(resolved)
		if statErr != nil {
			return errs.New(errs.InvalidArgument, "archive: broken symlink in attachment source: "+src)
		}
		if targetInfo.IsDir() {
			return errs.New(errs.InvalidArgument, "archive: symlink to directory not allowed: "+src)
		}
		src = resolved
	}

	in, err := os.Open(src)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "archive: open attachment source")
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "archive: create attachment destination")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return errs.Wrap(err, errs.Internal, "archive: copy attachment content")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errs.Wrap(err, errs.Internal, "archive: finalize attachment destination")
	}
	if err := os.Rename(tmp, dst); err != nil {
		return errs.Wrap(err, errs.Internal, "archive: finalize attachment rename")
	}
	return nil
}
