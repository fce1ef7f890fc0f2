package store

import (
	"context"
	"strings"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// IntegrityReport is the result of one integrity check pass.
type IntegrityReport struct {
	OK              bool
	Problems        []string
	CoreTableCounts map[string]int64
}

// Integrity runs the store's three integrity gates (spec.md §4.1):
// a cheap quick check on startup, a full check on a user-configured
// interval, and a mandatory full check after a legacy import.
type Integrity struct {
	pool *Pool
}

// NewIntegrity builds an Integrity checker over pool.
func NewIntegrity(pool *Pool) *Integrity {
	return &Integrity{pool: pool}
}

// QuickCheck runs SQLite's `PRAGMA quick_check`, which validates page
// structure without the full B-tree content scan. Cheap enough to run
// on every process startup.
func (i *Integrity) QuickCheck(ctx context.Context) (*IntegrityReport, error) {
	return i.runPragmaCheck(ctx, "PRAGMA quick_check")
}

// FullCheck runs SQLite's `PRAGMA integrity_check` plus a foreign-key
// consistency scan. Expensive on a large database; intended for the
// user-configured interval and the mandatory post-legacy-import gate.
func (i *Integrity) FullCheck(ctx context.Context) (*IntegrityReport, error) {
	report, err := i.runPragmaCheck(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, err
	}

	db, err := i.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var fkViolations []struct {
		Table string
		Rowid int64
	}
	if err := db.Raw("PRAGMA foreign_key_check").Scan(&fkViolations).Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: foreign_key_check failed")
	}
	for _, v := range fkViolations {
		report.OK = false
		report.Problems = append(report.Problems, "foreign key violation in "+v.Table)
	}

	counts, err := i.coreTableCounts(ctx)
	if err != nil {
		return nil, err
	}
	report.CoreTableCounts = counts

	if !report.OK {
		return report, errs.New(errs.Integrity, "store: integrity check failed: "+strings.Join(report.Problems, "; "))
	}
	return report, nil
}

func (i *Integrity) runPragmaCheck(ctx context.Context, pragma string) (*IntegrityReport, error) {
	db, err := i.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var rows []string
	if err := db.Raw(pragma).Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: "+pragma+" failed")
	}

	report := &IntegrityReport{OK: true}
	for _, row := range rows {
		if row != "ok" {
			report.OK = false
			report.Problems = append(report.Problems, row)
		}
	}
	return report, nil
}

// coreTableCounts snapshots row counts for every core table, used both
// in full-check reports and in the legacy importer's migration receipt.
func (i *Integrity) coreTableCounts(ctx context.Context) (map[string]int64, error) {
	db, err := i.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(CoreTableNames()))
	for _, table := range CoreTableNames() {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			return nil, errs.Wrap(err, errs.Internal, "store: count "+table)
		}
		counts[table] = count
	}
	return counts, nil
}
