package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

//go:embed migrations/sqlite/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"
const migrationsPath = "migrations/sqlite"

// MigrationStatus describes one migration's applied state.
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
}

// MigrationInfo summarizes the migrator's current position.
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Migrator applies schema migrations recorded in the `migrations`
// table (spec.md §4.1): on startup it determines the applied set,
// then applies pending migrations in order inside individual
// transactions, recording each id atomically with the change.
// Failure aborts before recording.
type Migrator struct {
	migrate *migrate.Migrate
}

// NewMigrator builds a Migrator over an already-open *sql.DB (the
// same connection the store's Pool uses). golang-migrate's sqlite3
// database driver only issues bookkeeping SQL (schema_migrations
// reads/writes, migration bodies) through the handle it is given; it
// never opens its own connection, so runtime access still goes
// through the glebarez/modernc driver GORM opened.
func NewMigrator(sqlDB *sql.DB) (*Migrator, error) {
	dbDriver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: create sqlite migration driver")
	}

	sourceDriver, err := iofs.New(migrationsFS, migrationsPath)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: open embedded migrations")
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: create migrate instance")
	}

	return &Migrator{migrate: m}, nil
}

func translateMigrateErr(err error, verb string) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return errs.Wrap(err, errs.Internal, fmt.Sprintf("store: migration %s failed", verb))
}

// Up applies all pending migrations, in order.
func (m *Migrator) Up(ctx context.Context) error {
	return translateMigrateErr(m.migrate.Up(), "up")
}

// Down rolls back the single most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	return translateMigrateErr(m.migrate.Steps(-1), "down")
}

// DownAll rolls back every applied migration.
func (m *Migrator) DownAll(ctx context.Context) error {
	return translateMigrateErr(m.migrate.Down(), "down-all")
}

// Steps applies (n>0) or rolls back (n<0) n migrations.
func (m *Migrator) Steps(ctx context.Context, n int) error {
	return translateMigrateErr(m.migrate.Steps(n), "steps")
}

// Goto migrates to exactly the given version.
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	return translateMigrateErr(m.migrate.Migrate(version), "goto")
}

// Force sets the recorded version without running any migration body.
// Used with explicit caller opt-in after manual repair of a dirty
// migration state; never invoked automatically.
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return errs.Wrap(err, errs.Internal, "store: force migration version")
	}
	return nil
}

// Version returns the currently recorded migration version.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, errs.Wrap(err, errs.Internal, "store: read migration version")
	}
	return version, dirty, nil
}

// Status reports every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, _, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations()
	if err != nil {
		return nil, err
	}
	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
		})
	}
	return statuses, nil
}

// Info summarizes the migrator's position for diagnostics.
func (m *Migrator) Info(ctx context.Context) (*MigrationInfo, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations()
	if err != nil {
		return nil, err
	}
	applied := 0
	for _, f := range files {
		if f.version <= current {
			applied++
		}
	}
	return &MigrationInfo{
		CurrentVersion:    current,
		Dirty:             dirty,
		TotalMigrations:   len(files),
		AppliedMigrations: applied,
		PendingMigrations: len(files) - applied,
	}, nil
}

// Close releases the source and database driver handles. It does not
// close the underlying *sql.DB, which the caller (the store's Pool)
// owns.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return errs.Wrap(sourceErr, errs.Internal, "store: close migration source")
	}
	if dbErr != nil {
		return errs.Wrap(dbErr, errs.Internal, "store: close migration db driver")
	}
	return nil
}

type migrationFile struct {
	version uint
	name    string
}

func availableMigrations() ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, migrationsPath)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: read embedded migrations dir")
	}

	seen := make(map[uint]bool)
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		if seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
