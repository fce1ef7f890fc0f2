package legacyimport

import (
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// legacyFTSTriggerStatements drops the predecessor's synchronous FTS
// maintenance triggers, detected by the same fixed names the signature
// inspector looks for.
var legacyFTSTriggerStatementNames = []string{"fts_messages_ai", "fts_messages_ad", "fts_messages_au"}

// clearLegacyCoreTables drops the predecessor's FTS triggers and
// renames any of its core tables aside (legacy_<name>) so the current
// schema's migrations can create fresh tables of the same name without
// a collision. The legacy Python schema's column layout is not part of
// this repository's retrieval pack (only table/trigger/column *names*
// used for signature detection are), so this step preserves the
// legacy rows under their renamed tables rather than attempting a
// row-by-row transplant into the new schema; see DESIGN.md.
func clearLegacyCoreTables(targetDB string) (renamedTables []string, err error) {
	db, err := openRawSQLite(targetDB)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	for _, trigger := range legacyFTSTriggerStatementNames {
		if _, err := db.Exec("DROP TRIGGER IF EXISTS " + trigger); err != nil {
			return nil, errs.Wrap(err, errs.Internal, "legacyimport: drop legacy trigger "+trigger)
		}
	}

	tableNames := map[string]bool{}
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table'")
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "legacyimport: list target tables")
	}
	for rows.Next() {
		var name string
		if rows.Scan(&name) == nil {
			tableNames[name] = true
		}
	}
	rows.Close()

	for _, table := range legacyCoreTables {
		if !tableNames[table] {
			continue
		}
		if _, err := db.Exec("ALTER TABLE " + table + " RENAME TO legacy_" + table); err != nil {
			return nil, errs.Wrap(err, errs.Internal, "legacyimport: rename legacy table "+table)
		}
		renamedTables = append(renamedTables, table)
	}
	return renamedTables, nil
}
