package legacyimport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

func rfc3339Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

func fileTimestampNow() string {
	return time.Now().UTC().Format("20060102T150405Z")
}

// writeReceipt serializes receipt under
// <targetStorageRoot>/legacy_import_receipts/legacy_import_<timestamp>.json,
// appending a numeric suffix on collision rather than overwriting an
// existing receipt from the same second.
func writeReceipt(targetStorageRoot string, receipt *Receipt, timestamp string) error {
	dir := filepath.Join(targetStorageRoot, "legacy_import_receipts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: create receipts directory")
	}

	path := filepath.Join(dir, fmt.Sprintf("legacy_import_%s.json", timestamp))
	if pathExists(path) {
		for suffix := 1; ; suffix++ {
			candidate := filepath.Join(dir, fmt.Sprintf("legacy_import_%s_%d.json", timestamp, suffix))
			if !pathExists(candidate) {
				path = candidate
				break
			}
		}
	}

	content, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: serialize receipt")
	}
	if err := os.WriteFile(path, append(content, '\n'), 0o644); err != nil {
		return errs.Wrap(err, errs.Internal, "legacyimport: write receipt")
	}
	return nil
}

// Status summarizes the receipts already written under a storage
// root, for `am legacy status`-style callers.
type Status struct {
	StorageRoot   string
	ReceiptsDir   string
	ReceiptCount  int
	LatestReceipt *Receipt
}

// CollectStatus reads every receipt under storageRoot's
// legacy_import_receipts directory and reports the most recent.
// A missing receipts directory is not an error.
func CollectStatus(storageRoot string) (*Status, error) {
	dir := filepath.Join(storageRoot, "legacy_import_receipts")
	status := &Status{StorageRoot: storageRoot, ReceiptsDir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return status, nil
		}
		return nil, errs.Wrap(err, errs.Internal, "legacyimport: read receipts directory")
	}

	var latestName string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		status.ReceiptCount++
		if entry.Name() > latestName {
			latestName = entry.Name()
		}
	}
	if latestName == "" {
		return status, nil
	}

	content, err := os.ReadFile(filepath.Join(dir, latestName))
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "legacyimport: read latest receipt")
	}
	var receipt Receipt
	if err := json.Unmarshal(content, &receipt); err != nil {
		return nil, errs.Wrap(err, errs.Internal, "legacyimport: parse latest receipt")
	}
	status.LatestReceipt = &receipt
	return status, nil
}
