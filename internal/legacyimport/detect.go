// Package legacyimport detects a predecessor installation of the
// system and migrates its SQLite database and storage root into the
// current schema (spec.md §4.7), grounded on
// original_source/crates/mcp-agent-mail-cli/src/legacy.rs.
package legacyimport

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
)

// Confidence is the detector's verdict on whether a legacy
// installation is present.
type Confidence string

const (
	ConfidenceNone      Confidence = "none"
	ConfidenceLow       Confidence = "low"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceHigh      Confidence = "high"
	// ConfidenceAmbiguous means the signal set is contradictory (core
	// tables plus both a migration-tracking table and legacy
	// triggers): never returned as a basis for a silent import.
	ConfidenceAmbiguous Confidence = "ambiguous"
)

// MarkerSeverity weights a single detection marker's contribution to
// the overall score.
type MarkerSeverity int

const (
	SeverityLow MarkerSeverity = iota + 1
	SeverityMedium
	SeverityHigh
)

// Marker is one piece of detected evidence for a legacy installation.
type Marker struct {
	ID       string
	Severity MarkerSeverity
	Detail   string
	Path     string
}

// ResolvedSource records where a resolved path's value came from.
type ResolvedSource string

const (
	SourceExplicit   ResolvedSource = "explicit"
	SourceProcessEnv ResolvedSource = "env"
	SourceProjectEnv ResolvedSource = ".env"
	SourceUserEnv    ResolvedSource = "user-env"
	SourceDefault    ResolvedSource = "default"
)

// ResolvedPath is a filesystem path resolved from explicit input, an
// environment variable, a project or user .env file, or a built-in
// default, in that precedence order.
type ResolvedPath struct {
	Path     string
	Source   ResolvedSource
	Exists   bool
	RawValue string
}

// DBSignature summarizes what the detector found by opening the
// candidate database and inspecting its schema.
type DBSignature struct {
	OpenOK                  bool
	CoreTablesPresent       bool
	LegacyTriggerCount      int
	DatetimeLikeColumnCount int
	MigrationsTablePresent  bool
	Notes                   []string
}

// DetectReport is the full result of a detection pass.
type DetectReport struct {
	SearchRoot        string
	Detected          bool
	Confidence        Confidence
	Score             int
	Database          ResolvedPath
	StorageRoot       ResolvedPath
	Markers           []Marker
	DBSignature       *DBSignature
	RecommendedAction string
}

// legacyCoreTables are the table names the predecessor schema used;
// distinct from store.CoreTableNames, which names the current schema.
var legacyCoreTables = []string{
	"projects", "agents", "messages", "message_recipients",
	"file_reservations", "agent_links",
}

var legacyFTSTriggerNames = map[string]bool{
	"fts_messages_ai": true,
	"fts_messages_ad": true,
	"fts_messages_au": true,
}

var legacyTimestampColumns = map[string]bool{
	"created_at": true, "created_ts": true, "inception_ts": true,
	"last_active_ts": true, "updated_ts": true, "expires_ts": true,
	"released_ts": true, "confirmed_ts": true, "dismissed_ts": true,
	"evaluated_ts": true, "read_ts": true, "ack_ts": true,
}

// Detect builds a DetectReport for searchRoot. explicitDB and
// explicitStorageRoot override path resolution when non-empty.
func Detect(searchRoot, explicitDB, explicitStorageRoot string) (*DetectReport, error) {
	dbResolved, err := resolveDatabasePath(searchRoot, explicitDB)
	if err != nil {
		return nil, err
	}
	storageResolved := resolveStorageRoot(searchRoot, explicitStorageRoot)

	var markers []Marker
	if m := detectPyprojectMarker(searchRoot); m != nil {
		markers = append(markers, *m)
	}
	if m := detectLegacyScriptMarker(searchRoot); m != nil {
		markers = append(markers, *m)
	}
	if pathExists(filepath.Join(searchRoot, "uv.lock")) {
		markers = append(markers, Marker{
			ID: "uv_lock", Severity: SeverityLow,
			Detail: "uv.lock present (legacy Python packaging footprint)",
			Path:   filepath.Join(searchRoot, "uv.lock"),
		})
	}
	if pathExists(filepath.Join(searchRoot, ".venv")) {
		markers = append(markers, Marker{
			ID: "venv", Severity: SeverityLow,
			Detail: ".venv directory present",
			Path:   filepath.Join(searchRoot, ".venv"),
		})
	}
	if m := detectEnvMarker(searchRoot); m != nil {
		markers = append(markers, *m)
	}
	if dbResolved.Exists {
		markers = append(markers, Marker{
			ID: "db_exists", Severity: SeverityMedium,
			Detail: "resolved database file exists", Path: dbResolved.Path,
		})
	}
	if storageResolved.Exists {
		markers = append(markers, Marker{
			ID: "storage_exists", Severity: SeverityMedium,
			Detail: "resolved storage root exists", Path: storageResolved.Path,
		})
	}

	sig := inspectDBSignature(dbResolved.Path)
	if sig != nil {
		if sig.LegacyTriggerCount > 0 {
			markers = append(markers, Marker{
				ID: "legacy_fts_triggers", Severity: SeverityHigh,
				Detail: "legacy FTS triggers detected", Path: dbResolved.Path,
			})
		}
		if sig.DatetimeLikeColumnCount > 0 {
			markers = append(markers, Marker{
				ID: "datetime_columns", Severity: SeverityHigh,
				Detail: "legacy DATETIME/TEXT timestamp columns detected", Path: dbResolved.Path,
			})
		}
		if sig.CoreTablesPresent && !sig.MigrationsTablePresent {
			markers = append(markers, Marker{
				ID: "missing_migrations_table", Severity: SeverityMedium,
				Detail: "core tables present but migration tracking table missing", Path: dbResolved.Path,
			})
		}
	}

	score := 0
	for _, m := range markers {
		score += int(m.Severity)
	}

	strongSignal := sig != nil && sig.CoreTablesPresent &&
		(sig.LegacyTriggerCount > 0 || sig.DatetimeLikeColumnCount > 0)
	contradictory := sig != nil && sig.CoreTablesPresent &&
		sig.MigrationsTablePresent && sig.LegacyTriggerCount > 0

	confidence := classifyConfidence(score, strongSignal, contradictory)

	recommended := "no strong legacy markers detected; inspect `Markers` and `DBSignature` for details"
	switch confidence {
	case ConfidenceAmbiguous:
		recommended = "ambiguous signal set; re-run import with Force=true only after manual review"
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		recommended = "run the import with Auto=true"
	}

	return &DetectReport{
		SearchRoot:        searchRoot,
		Detected:          confidence != ConfidenceNone,
		Confidence:        confidence,
		Score:             score,
		Database:          dbResolved,
		StorageRoot:       storageResolved,
		Markers:           markers,
		DBSignature:       sig,
		RecommendedAction: recommended,
	}, nil
}

func classifyConfidence(score int, strongSignal, contradictory bool) Confidence {
	switch {
	case contradictory:
		return ConfidenceAmbiguous
	case strongSignal || score >= 9:
		return ConfidenceHigh
	case score >= 5:
		return ConfidenceMedium
	case score >= 2:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}

func detectPyprojectMarker(searchRoot string) *Marker {
	path := filepath.Join(searchRoot, "pyproject.toml")
	text, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	s := string(text)
	if strings.Contains(s, `name = "mcp-agent-mail"`) ||
		strings.Contains(s, `name='mcp-agent-mail'`) ||
		strings.Contains(s, "mcp_agent_mail") {
		return &Marker{
			ID: "pyproject_package", Severity: SeverityHigh,
			Detail: "pyproject.toml contains mcp-agent-mail package marker", Path: path,
		}
	}
	return nil
}

func detectLegacyScriptMarker(searchRoot string) *Marker {
	path := filepath.Join(searchRoot, "scripts", "run_server_with_token.sh")
	if !pathExists(path) {
		return nil
	}
	return &Marker{
		ID: "legacy_run_script", Severity: SeverityHigh,
		Detail: "legacy Python run helper script present", Path: path,
	}
}

func detectEnvMarker(searchRoot string) *Marker {
	path := filepath.Join(searchRoot, ".env")
	m, err := readEnvFileMap(path)
	if err != nil || m == nil {
		return nil
	}
	legacyDB := strings.Contains(m["DATABASE_URL"], "sqlite+aiosqlite:///")
	legacyStorage := strings.Contains(m["STORAGE_ROOT"], ".mcp_agent_mail_git_mailbox_repo")
	if legacyDB || legacyStorage {
		return &Marker{
			ID: "legacy_env_defaults", Severity: SeverityHigh,
			Detail: "project .env contains legacy DATABASE_URL/STORAGE_ROOT markers", Path: path,
		}
	}
	return nil
}

func resolveDatabasePath(searchRoot, explicit string) (ResolvedPath, error) {
	if explicit != "" {
		path := normalizeInputPath(explicit, searchRoot)
		return ResolvedPath{Path: path, Source: SourceExplicit, Exists: pathExists(path), RawValue: explicit}, nil
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		return parseDatabaseValue(v, searchRoot, SourceProcessEnv)
	}
	if m, _ := readEnvFileMap(filepath.Join(searchRoot, ".env")); m != nil {
		if v, ok := m["DATABASE_URL"]; ok {
			return parseDatabaseValue(v, searchRoot, SourceProjectEnv)
		}
	}
	if userEnv := discoverUserEnvFile(); userEnv != "" {
		if m, _ := readEnvFileMap(userEnv); m != nil {
			if v, ok := m["DATABASE_URL"]; ok {
				return parseDatabaseValue(v, searchRoot, SourceUserEnv)
			}
		}
	}
	return parseDatabaseValue("sqlite+aiosqlite:///./storage.sqlite3", searchRoot, SourceDefault)
}

func parseDatabaseValue(value, searchRoot string, source ResolvedSource) (ResolvedPath, error) {
	if config.IsSQLiteMemoryDatabaseURL(value) {
		return ResolvedPath{}, legacyErr("in-memory DATABASE_URL is not supported for legacy import")
	}
	dbPath := value
	if strings.Contains(value, "://") {
		p, ok := config.SQLiteFilePathFromDatabaseURL(value)
		if !ok {
			return ResolvedPath{}, legacyErr("unsupported DATABASE_URL scheme for import: " + value)
		}
		dbPath = p
	}
	path := dbPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(searchRoot, path)
	}
	return ResolvedPath{Path: path, Source: source, Exists: pathExists(path), RawValue: value}, nil
}

func resolveStorageRoot(searchRoot, explicit string) ResolvedPath {
	if explicit != "" {
		path := normalizeInputPath(explicit, searchRoot)
		return ResolvedPath{Path: path, Source: SourceExplicit, Exists: pathExists(path), RawValue: explicit}
	}
	if v, ok := os.LookupEnv("STORAGE_ROOT"); ok {
		path := normalizeInputPath(v, searchRoot)
		return ResolvedPath{Path: path, Source: SourceProcessEnv, Exists: pathExists(path), RawValue: v}
	}
	if m, _ := readEnvFileMap(filepath.Join(searchRoot, ".env")); m != nil {
		if v, ok := m["STORAGE_ROOT"]; ok {
			path := normalizeInputPath(v, searchRoot)
			return ResolvedPath{Path: path, Source: SourceProjectEnv, Exists: pathExists(path), RawValue: v}
		}
	}
	if userEnv := discoverUserEnvFile(); userEnv != "" {
		if m, _ := readEnvFileMap(userEnv); m != nil {
			if v, ok := m["STORAGE_ROOT"]; ok {
				path := normalizeInputPath(v, searchRoot)
				return ResolvedPath{Path: path, Source: SourceUserEnv, Exists: pathExists(path), RawValue: v}
			}
		}
	}
	value := "~/.mcp_agent_mail_git_mailbox_repo"
	path := normalizeInputPath(value, searchRoot)
	return ResolvedPath{Path: path, Source: SourceDefault, Exists: pathExists(path), RawValue: value}
}

func inspectDBSignature(path string) *DBSignature {
	if !pathExists(path) {
		return nil
	}
	db, err := openRawSQLite(path)
	if err != nil {
		return &DBSignature{OpenOK: false, Notes: []string{"failed to open sqlite database"}}
	}
	defer db.Close()

	tableNames := map[string]bool{}
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table'")
	if err == nil {
		for rows.Next() {
			var name string
			if rows.Scan(&name) == nil {
				tableNames[name] = true
			}
		}
		rows.Close()
	}

	coreTablesPresent := true
	for _, t := range legacyCoreTables {
		if !tableNames[t] {
			coreTablesPresent = false
			break
		}
	}
	migrationsTablePresent := tableNames["mcp_agent_mail_migrations"]

	legacyTriggerCount := 0
	triggerRows, err := db.Query("SELECT name FROM sqlite_master WHERE type='trigger'")
	if err == nil {
		for triggerRows.Next() {
			var name string
			if triggerRows.Scan(&name) == nil && legacyFTSTriggerNames[name] {
				legacyTriggerCount++
			}
		}
		triggerRows.Close()
	}

	datetimeLikeColumnCount := 0
	for _, table := range append(append([]string{}, legacyCoreTables...), "products", "product_project_links") {
		cols, err := db.Query("PRAGMA table_info(" + table + ")")
		if err != nil {
			continue
		}
		for cols.Next() {
			var cid int
			var name, colType string
			var notNull int
			var dflt any
			var pk int
			if cols.Scan(&cid, &name, &colType, &notNull, &dflt, &pk) != nil {
				continue
			}
			if legacyTimestampColumns[name] {
				upper := strings.ToUpper(colType)
				if strings.Contains(upper, "DATE") || strings.Contains(upper, "TEXT") {
					datetimeLikeColumnCount++
				}
			}
		}
		cols.Close()
	}

	var notes []string
	if coreTablesPresent {
		notes = append(notes, "core legacy tables present")
	}
	if legacyTriggerCount > 0 {
		notes = append(notes, "legacy FTS triggers present")
	}
	if datetimeLikeColumnCount > 0 {
		notes = append(notes, "legacy DATETIME/TEXT timestamp columns present")
	}

	return &DBSignature{
		OpenOK:                  true,
		CoreTablesPresent:       coreTablesPresent,
		LegacyTriggerCount:      legacyTriggerCount,
		DatetimeLikeColumnCount: datetimeLikeColumnCount,
		MigrationsTablePresent:  migrationsTablePresent,
		Notes:                   notes,
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
