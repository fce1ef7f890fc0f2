package exportpipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/archive"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// ChunkManifestEntry describes one fixed-size slice of a chunked
// bundle database.
type ChunkManifestEntry struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// chunkDatabaseIfNeeded splits bundleDBPath into chunkSizeBytes-sized
// parts named "<base>.partNNN" when it exceeds chunkThresholdBytes
// (spec.md §4.5 stage 6), removing the single unchunked copy
// afterward. Returns a nil manifest and leaves the file untouched
// when no chunking is needed.
func chunkDatabaseIfNeeded(bundleDBPath string, chunkThresholdBytes, chunkSizeBytes int64) ([]ChunkManifestEntry, error) {
	info, err := os.Stat(bundleDBPath)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "exportpipeline: stat bundle database")
	}
	if chunkThresholdBytes <= 0 || info.Size() < chunkThresholdBytes {
		return nil, nil
	}
	if chunkSizeBytes <= 0 {
		return nil, errs.New(errs.InvalidArgument, "exportpipeline: chunk size must be positive when chunking is triggered")
	}

	src, err := os.Open(bundleDBPath)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "exportpipeline: open bundle database for chunking")
	}
	defer src.Close()

	var manifest []ChunkManifestEntry
	buf := make([]byte, chunkSizeBytes)
	for part := 0; ; part++ {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			chunkPath := fmt.Sprintf("%s.part%03d", bundleDBPath, part)
			if err := os.WriteFile(chunkPath, buf[:n], 0o644); err != nil {
				return nil, errs.Wrap(err, errs.Internal, "exportpipeline: write chunk")
			}
			hash, err := archive.HashFile(chunkPath)
			if err != nil {
				return nil, err
			}
			manifest = append(manifest, ChunkManifestEntry{
				Name:      fmt.Sprintf("%s.part%03d", filepath.Base(bundleDBPath), part),
				SizeBytes: int64(n),
				SHA256:    hash,
			})
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return nil, errs.Wrap(readErr, errs.Internal, "exportpipeline: read bundle database for chunking")
		}
	}

	if err := os.Remove(bundleDBPath); err != nil {
		return nil, errs.Wrap(err, errs.Internal, "exportpipeline: remove unchunked bundle database")
	}
	return manifest, nil
}
