package exportpipeline

import (
	"context"
	"encoding/base64"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/archive"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/pool"
)

// attachmentPlacement is how bundleAttachments chose to carry one
// attachment file into the export (spec.md §4.5 stage 5's
// inline/detach/middle-default split).
type attachmentPlacement string

const (
	placementInline attachmentPlacement = "inline"
	placementCopied attachmentPlacement = "copied"
	placementDetach attachmentPlacement = "detached"
)

// AttachmentManifestEntry records one attachment's placement decision
// in the bundle's attachment manifest.
type AttachmentManifestEntry struct {
	SourcePath   string              `json:"source_path"`
	SHA256       string              `json:"sha256"`
	SizeBytes    int64               `json:"size_bytes"`
	Placement    attachmentPlacement `json:"placement"`
	BundlePath   string              `json:"bundle_path,omitempty"`
	DetachedPath string              `json:"detached_path,omitempty"`
	InlineBase64 string              `json:"inline_base64,omitempty"`
}

// attachmentCandidate is one regular file discovered under the
// attachments tree, before its hash/placement is decided.
type attachmentCandidate struct {
	path      string
	relSource string
	size      int64
}

// bundleAttachments walks storageRoot/projectSlug/attachments and
// places each regular file according to the configured size
// thresholds: files at or under InlineThresholdBytes are embedded
// directly in the manifest, files at or over DetachThresholdBytes are
// copied to a directory alongside the bundle (with a relative pointer
// recorded in the manifest), and everything in between — the "middle
// sizes get a chosen default" case — is copied into the bundle's own
// attachments directory.
//
// The walk itself is sequential (required for deterministic error
// handling against a single directory tree), but the expensive part —
// hashing and copying each file's content — fans out across a bounded
// worker pool, since a project's attachments are independent of one
// another and export latency is dominated by this I/O.
func bundleAttachments(cfg config.ExportConfig, storageRoot, projectSlug, bundleDir string) ([]AttachmentManifestEntry, error) {
	root := filepath.Join(storageRoot, projectSlug, "attachments")
	detachedRoot := filepath.Join(filepath.Dir(bundleDir), "detached")
	copiedRoot := filepath.Join(bundleDir, "attachments")

	var candidates []attachmentCandidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		relSource, err := filepath.Rel(storageRoot, path)
		if err != nil {
			return err
		}
		candidates = append(candidates, attachmentCandidate{path: path, relSource: relSource, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "exportpipeline: walk attachments tree")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	workers := pool.DefaultGoroutinePoolConfig()
	workers.MaxWorkers = min(8, len(candidates))
	gp := pool.NewGoroutinePool(workers)
	defer gp.Close()

	results := make([]AttachmentManifestEntry, len(candidates))
	var firstErr error
	var errOnce sync.Once
	var wg sync.WaitGroup

	for i, cand := range candidates {
		i, cand := i, cand
		wg.Add(1)
		submitErr := gp.Submit(context.Background(), func(ctx context.Context) error {
			defer wg.Done()
			entry, err := placeAttachment(cfg, cand, detachedRoot, copiedRoot)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return err
			}
			results[i] = entry
			return nil
		})
		if submitErr != nil {
			wg.Done()
			errOnce.Do(func() { firstErr = submitErr })
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, errs.Wrap(firstErr, errs.Internal, "exportpipeline: place attachment")
	}

	sort.Slice(results, func(a, b int) bool { return results[a].SourcePath < results[b].SourcePath })
	return results, nil
}

// placeAttachment hashes one candidate file and carries it into the
// bundle per the configured size-threshold placement decision.
func placeAttachment(cfg config.ExportConfig, cand attachmentCandidate, detachedRoot, copiedRoot string) (AttachmentManifestEntry, error) {
	hash, err := archive.HashFile(cand.path)
	if err != nil {
		return AttachmentManifestEntry{}, err
	}

	entry := AttachmentManifestEntry{
		SourcePath: filepath.ToSlash(cand.relSource),
		SHA256:     hash,
		SizeBytes:  cand.size,
	}

	switch {
	case cfg.InlineThresholdBytes > 0 && cand.size <= cfg.InlineThresholdBytes:
		content, err := os.ReadFile(cand.path)
		if err != nil {
			return AttachmentManifestEntry{}, errs.Wrap(err, errs.Internal, "exportpipeline: read attachment for inline embed")
		}
		entry.Placement = placementInline
		entry.InlineBase64 = base64.StdEncoding.EncodeToString(content)
	case cfg.DetachThresholdBytes > 0 && cand.size >= cfg.DetachThresholdBytes:
		dst := filepath.Join(detachedRoot, hash)
		if err := copyRegularFile(cand.path, dst); err != nil {
			return AttachmentManifestEntry{}, err
		}
		entry.Placement = placementDetach
		entry.DetachedPath = filepath.ToSlash(filepath.Join("..", "detached", hash))
	default:
		dst := filepath.Join(copiedRoot, hash)
		if err := copyRegularFile(cand.path, dst); err != nil {
			return AttachmentManifestEntry{}, err
		}
		entry.Placement = placementCopied
		entry.BundlePath = filepath.ToSlash(filepath.Join("attachments", hash))
	}

	return entry, nil
}

// copyRegularFile copies src to dst, creating dst's parent directory
// first. Unlike internal/archive's copy helper this never encounters
// symlinks: callers only pass paths already filtered to regular files
// by filepath.WalkDir's fs.DirEntry.Type() check.
func copyRegularFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: create attachment destination dir")
	}
	in, err := os.Open(src)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: open attachment source")
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: create attachment destination")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return errs.Wrap(err, errs.Internal, "exportpipeline: copy attachment content")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errs.Wrap(err, errs.Internal, "exportpipeline: finalize attachment destination")
	}
	return os.Rename(tmp, dst)
}

// copyDBIntoBundle copies the finalized snapshot database into the
// bundle directory and returns its content hash (spec.md §4.5 stage
// 5: "copy the snapshot DB into the bundle; hash it").
func copyDBIntoBundle(snapshotDB, bundleDir, bundleFileName string) (dbHash string, bundleDBPath string, err error) {
	bundleDBPath = filepath.Join(bundleDir, bundleFileName)
	if err := copyRegularFile(snapshotDB, bundleDBPath); err != nil {
		return "", "", err
	}
	hash, err := archive.HashFile(bundleDBPath)
	if err != nil {
		return "", "", err
	}
	return hash, bundleDBPath, nil
}
