package legacyimport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLegacyFixtureDB(t *testing.T, path string, withTriggers bool) {
	t.Helper()
	db, err := openRawSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	ddl := []string{
		`CREATE TABLE projects (id INTEGER PRIMARY KEY, slug TEXT, created_ts TEXT)`,
		`CREATE TABLE agents (id INTEGER PRIMARY KEY, project_id INTEGER, name TEXT, inception_ts TEXT)`,
		`CREATE TABLE messages (id INTEGER PRIMARY KEY, project_id INTEGER, subject TEXT, body TEXT)`,
		`CREATE TABLE message_recipients (id INTEGER PRIMARY KEY, message_id INTEGER, agent_id INTEGER)`,
		`CREATE TABLE file_reservations (id INTEGER PRIMARY KEY, project_id INTEGER, expires_ts TEXT)`,
		`CREATE TABLE agent_links (id INTEGER PRIMARY KEY, a INTEGER, b INTEGER)`,
		`INSERT INTO projects (id, slug, created_ts) VALUES (1, 'demo', '2024-01-01 00:00:00')`,
		`INSERT INTO messages (id, project_id, subject, body) VALUES (1, 1, 'hello', 'world')`,
	}
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	if withTriggers {
		triggers := []string{
			`CREATE TRIGGER fts_messages_ai AFTER INSERT ON messages BEGIN SELECT 1; END`,
			`CREATE TRIGGER fts_messages_ad AFTER DELETE ON messages BEGIN SELECT 1; END`,
			`CREATE TRIGGER fts_messages_au AFTER UPDATE ON messages BEGIN SELECT 1; END`,
		}
		for _, stmt := range triggers {
			_, err := db.Exec(stmt)
			require.NoError(t, err)
		}
	}
}

func TestDetectScoresMarkersAndDBSignature(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"), []byte(`name = "mcp-agent-mail"`), 0o644))

	dbPath := filepath.Join(root, "storage.sqlite3")
	writeLegacyFixtureDB(t, dbPath, true)

	report, err := Detect(root, dbPath, "")
	require.NoError(t, err)

	assert.True(t, report.Detected)
	assert.Equal(t, ConfidenceHigh, report.Confidence)
	require.NotNil(t, report.DBSignature)
	assert.True(t, report.DBSignature.CoreTablesPresent)
	assert.Equal(t, 3, report.DBSignature.LegacyTriggerCount)
}

func TestDetectWithoutAnySignalReturnsNone(t *testing.T) {
	root := t.TempDir()
	report, err := Detect(root, filepath.Join(root, "missing.sqlite3"), filepath.Join(root, "missing-storage"))
	require.NoError(t, err)
	assert.False(t, report.Detected)
	assert.Equal(t, ConfidenceNone, report.Confidence)
}

func TestDetectAmbiguousRequiresForce(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "storage.sqlite3")
	writeLegacyFixtureDB(t, dbPath, true)

	db, err := openRawSQLite(dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE mcp_agent_mail_migrations (version INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	report, err := Detect(root, dbPath, "")
	require.NoError(t, err)
	assert.Equal(t, ConfidenceAmbiguous, report.Confidence)

	storageRoot := t.TempDir()
	_, planErr := BuildImportPlan(ImportOptions{
		SearchRoot: root, DB: dbPath, StorageRoot: storageRoot, Auto: false,
	})
	require.Error(t, planErr)

	plan, planErr := BuildImportPlan(ImportOptions{
		SearchRoot: root, DB: dbPath, StorageRoot: storageRoot, Auto: false, Force: true,
	})
	require.NoError(t, planErr)
	assert.Equal(t, ModeInPlace, plan.Mode)
}

func TestBuildImportPlanCopyModeRejectsOverlap(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "storage.sqlite3")
	writeLegacyFixtureDB(t, dbPath, true)
	storageRoot := filepath.Join(root, "legacy-storage")
	require.NoError(t, os.MkdirAll(storageRoot, 0o755))

	_, err := BuildImportPlan(ImportOptions{
		SearchRoot: root, DB: dbPath, StorageRoot: storageRoot,
		Copy: true, TargetStorageRoot: filepath.Join(storageRoot, "nested"),
	})
	require.Error(t, err)
}

func TestExecuteCopyModeMigratesAndWritesReceipt(t *testing.T) {
	root := t.TempDir()
	sourceDB := filepath.Join(root, "legacy_fixture.sqlite3")
	writeLegacyFixtureDB(t, sourceDB, true)

	sourceStorage := filepath.Join(root, "legacy-storage")
	require.NoError(t, os.MkdirAll(sourceStorage, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sourceStorage, ".placeholder"), []byte("x"), 0o644))

	targetDB := filepath.Join(root, "go_import.sqlite3")
	targetStorage := filepath.Join(root, "go-storage")

	plan, err := BuildImportPlan(ImportOptions{
		SearchRoot: root, DB: sourceDB, StorageRoot: sourceStorage,
		Copy: true, TargetDB: targetDB, TargetStorageRoot: targetStorage,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeCopy, plan.Mode)

	receipt, err := Execute(context.Background(), plan, nil, nil)
	require.NoError(t, err)
	assert.True(t, receipt.IntegrityCheckOK)
	assert.Contains(t, receipt.RenamedLegacyTables, "messages")
	assert.FileExists(t, targetDB)

	receiptsDir := filepath.Join(targetStorage, "legacy_import_receipts")
	entries, err := os.ReadDir(receiptsDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	status, err := CollectStatus(targetStorage)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ReceiptCount)
	require.NotNil(t, status.LatestReceipt)
	assert.True(t, status.LatestReceipt.IntegrityCheckOK)

	db, err := openRawSQLite(targetDB)
	require.NoError(t, err)
	defer db.Close()
	var legacyMessageCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM legacy_messages").Scan(&legacyMessageCount))
	assert.Equal(t, 1, legacyMessageCount)

	var triggerCount int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='trigger' AND name IN ('fts_messages_ai','fts_messages_ad','fts_messages_au')",
	).Scan(&triggerCount))
	assert.Zero(t, triggerCount)
}

func TestWriteReceiptAvoidsCollision(t *testing.T) {
	dir := t.TempDir()
	receipt := &Receipt{ReceiptVersion: 1, CoreTableCounts: map[string]int64{}}
	require.NoError(t, writeReceipt(dir, receipt, "20260101T000000Z"))
	require.NoError(t, writeReceipt(dir, receipt, "20260101T000000Z"))

	entries, err := os.ReadDir(filepath.Join(dir, "legacy_import_receipts"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPathsOverlap(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "storage")
	b := filepath.Join(root, "storage", "nested")
	c := filepath.Join(root, "other")
	require.NoError(t, os.MkdirAll(b, 0o755))
	require.NoError(t, os.MkdirAll(c, 0o755))

	assert.True(t, pathsOverlap(a, b))
	assert.True(t, pathsOverlap(a, a))
	assert.False(t, pathsOverlap(a, c))
}
