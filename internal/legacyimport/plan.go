package legacyimport

import (
	"os"
)

// ImportMode selects whether the import rewrites the source in place
// or migrates a copy, leaving the original untouched.
type ImportMode string

const (
	ModeInPlace ImportMode = "in_place"
	ModeCopy    ImportMode = "copy"
)

// ImportOptions configures a detection + plan + execute run.
type ImportOptions struct {
	// Auto requires that detection found a legacy installation;
	// without it, explicit DB/StorageRoot must be supplied.
	Auto              bool
	SearchRoot        string
	DB                string
	StorageRoot       string
	InPlace           bool
	Copy              bool
	TargetDB          string
	TargetStorageRoot string
	// Force permits proceeding when detection reports
	// ConfidenceAmbiguous. Required in that case; ignored otherwise.
	Force bool
}

// ImportPlan is the fully-resolved, validated set of operations an
// import will perform. Building a plan never mutates the filesystem.
type ImportPlan struct {
	Mode              ImportMode
	SearchRoot        string
	SourceDB          string
	SourceStorageRoot string
	TargetDB          string
	TargetStorageRoot string
	Operations        []string
}

// BuildImportPlan resolves and validates an import without performing
// any filesystem mutation, so callers can render a dry-run report.
func BuildImportPlan(opts ImportOptions) (*ImportPlan, error) {
	detect, err := Detect(opts.SearchRoot, opts.DB, opts.StorageRoot)
	if err != nil {
		return nil, err
	}
	if opts.Auto && !detect.Detected {
		return nil, legacyErr("no legacy installation detected; run Detect to inspect details")
	}
	if detect.Confidence == ConfidenceAmbiguous && !opts.Force {
		return nil, legacyErr("ambiguous legacy signal (migration table and legacy triggers both present); re-run with Force=true after manual review")
	}

	sourceDB := detect.Database.Path
	sourceStorage := detect.StorageRoot.Path
	if !pathExists(sourceDB) {
		return nil, legacyErr("source DB missing: " + sourceDB)
	}
	if info, statErr := os.Stat(sourceDB); statErr == nil && info.IsDir() {
		return nil, legacyErr("source DB must be a file path: " + sourceDB)
	}
	if !pathExists(sourceStorage) {
		return nil, legacyErr("source storage root missing: " + sourceStorage)
	}
	if info, statErr := os.Stat(sourceStorage); statErr != nil || !info.IsDir() {
		return nil, legacyErr("source storage root must be a directory: " + sourceStorage)
	}

	var mode ImportMode
	switch {
	case opts.InPlace && opts.Copy:
		return nil, legacyErr("InPlace and Copy are mutually exclusive")
	case opts.Copy:
		mode = ModeCopy
	default:
		mode = ModeInPlace
	}

	var targetDB, targetStorage string
	switch mode {
	case ModeInPlace:
		if opts.TargetDB != "" || opts.TargetStorageRoot != "" {
			return nil, legacyErr("TargetDB/TargetStorageRoot require Copy mode")
		}
		targetDB, targetStorage = sourceDB, sourceStorage
	case ModeCopy:
		targetDB = opts.TargetDB
		if targetDB == "" {
			targetDB = defaultCopyTargetDB(sourceDB)
		} else {
			targetDB = normalizeInputPath(targetDB, opts.SearchRoot)
		}
		targetStorage = opts.TargetStorageRoot
		if targetStorage == "" {
			targetStorage = defaultCopyTargetStorage(sourceStorage)
		} else {
			targetStorage = normalizeInputPath(targetStorage, opts.SearchRoot)
		}
	}

	if mode == ModeCopy {
		if sourceDB == targetDB {
			return nil, legacyErr("copy mode requires a target DB path different from the source DB")
		}
		if pathExists(targetDB) {
			return nil, legacyErr("copy mode requires a target DB path that does not already exist: " + targetDB)
		}
		if sourceStorage == targetStorage {
			return nil, legacyErr("copy mode requires a target storage root different from the source storage root")
		}
		if info, statErr := os.Stat(targetStorage); statErr == nil && !info.IsDir() {
			return nil, legacyErr("copy mode requires the target storage root to be a directory path: " + targetStorage)
		}
		if pathsOverlap(sourceStorage, targetStorage) {
			return nil, legacyErr("copy mode requires the target storage root to be outside the source storage root")
		}
	}

	operations := []string{
		"resolve source DB: " + sourceDB,
		"resolve source storage root: " + sourceStorage,
	}
	switch mode {
	case ModeInPlace:
		operations = append(operations,
			"create safety backup of source DB and storage root",
			"run schema migrations against source DB",
		)
	case ModeCopy:
		operations = append(operations,
			"copy source DB to target DB: "+targetDB,
			"copy source storage root to target storage root: "+targetStorage,
			"run schema migrations against target DB",
		)
	}
	operations = append(operations,
		"run integrity check and core-table sanity queries",
		"write JSON receipt under target storage root",
	)

	return &ImportPlan{
		Mode:              mode,
		SearchRoot:        opts.SearchRoot,
		SourceDB:          sourceDB,
		SourceStorageRoot: sourceStorage,
		TargetDB:          targetDB,
		TargetStorageRoot: targetStorage,
		Operations:        operations,
	}, nil
}

