package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/glebarez/go-sqlite"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up":
		runUp(os.Args[2:])
	case "down":
		runDown(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		runVersion(os.Args[2:])
	case "goto":
		runGoto(os.Args[2:])
	case "force":
		runForce(os.Args[2:])
	case "reset":
		runReset(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`agentmail-migrate: apply and inspect schema migrations

Usage:
  agentmail-migrate <subcommand> [options]

Subcommands:
  up        apply all pending migrations
  down      roll back the single most recently applied migration
  status    list every known migration and whether it's applied
  version   show the currently recorded migration version
  goto      migrate to exactly the given version
  force     force-set the recorded version without running a body
  reset     roll back every applied migration
  help      show this message

Options (all subcommands):
  --db-url <url>       DATABASE_URL override (default: resolved from environment)
  --project-env <path> project-local env file
  --user-env <path>    user-global env file`)
}

// openMigrator resolves DATABASE_URL through the usual five-layer
// precedence, opens a bare *sql.DB against it (not through
// store.Open, which would auto-apply Up and leave no migrator handle
// to run down/goto/force against), and wraps it in a store.Migrator.
func openMigrator(fs *flag.FlagSet, args []string) (*store.Migrator, func(), error) {
	dbURL := fs.String("db-url", "", "DATABASE_URL override")
	projectEnv := fs.String("project-env", "", "project-local env file")
	userEnv := fs.String("user-env", "", "user-global env file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	loader := config.NewLoader()
	if *projectEnv != "" {
		loader = loader.WithProjectEnvFile(*projectEnv)
	}
	if *userEnv != "" {
		loader = loader.WithUserEnvFile(*userEnv)
	}
	if *dbURL != "" {
		loader = loader.WithOverride("DATABASE_URL", *dbURL)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	path, ok := config.SQLiteFilePathFromDatabaseURL(cfg.Store.DatabaseURL)
	if !ok {
		return nil, nil, fmt.Errorf("DATABASE_URL %q is not a file-backed sqlite URL", cfg.Store.DatabaseURL)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	migrator, err := store.NewMigrator(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = migrator.Close()
		_ = sqlDB.Close()
	}
	return migrator, cleanup, nil
}

func runUp(args []string) {
	m, cleanup, err := openMigrator(flag.NewFlagSet("up", flag.ExitOnError), args)
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	if err := m.Up(context.Background()); err != nil {
		fatal(err)
	}
	fmt.Println("migrations applied")
}

func runDown(args []string) {
	m, cleanup, err := openMigrator(flag.NewFlagSet("down", flag.ExitOnError), args)
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	if err := m.Down(context.Background()); err != nil {
		fatal(err)
	}
	fmt.Println("rolled back one migration")
}

func runStatus(args []string) {
	m, cleanup, err := openMigrator(flag.NewFlagSet("status", flag.ExitOnError), args)
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	statuses, err := m.Status(context.Background())
	if err != nil {
		fatal(err)
	}
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Printf("%4d  %-40s  %s\n", s.Version, s.Name, state)
	}
}

func runVersion(args []string) {
	m, cleanup, err := openMigrator(flag.NewFlagSet("version", flag.ExitOnError), args)
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	version, dirty, err := m.Version(context.Background())
	if err != nil {
		fatal(err)
	}
	fmt.Printf("version=%d dirty=%t\n", version, dirty)
}

func runGoto(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: agentmail-migrate goto <version>"))
	}
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fatal(fmt.Errorf("invalid version %q: %w", args[0], err))
	}
	m, cleanup, err := openMigrator(flag.NewFlagSet("goto", flag.ExitOnError), args[1:])
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	if err := m.Goto(context.Background(), uint(version)); err != nil {
		fatal(err)
	}
	fmt.Printf("migrated to version %d\n", version)
}

func runForce(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("usage: agentmail-migrate force <version>"))
	}
	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fatal(fmt.Errorf("invalid version %q: %w", args[0], err))
	}
	m, cleanup, err := openMigrator(flag.NewFlagSet("force", flag.ExitOnError), args[1:])
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	if err := m.Force(context.Background(), int(version)); err != nil {
		fatal(err)
	}
	fmt.Printf("forced version to %d\n", version)
}

func runReset(args []string) {
	m, cleanup, err := openMigrator(flag.NewFlagSet("reset", flag.ExitOnError), args)
	if err != nil {
		fatal(err)
	}
	defer cleanup()
	if err := m.DownAll(context.Background()); err != nil {
		fatal(err)
	}
	fmt.Println("rolled back all migrations")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
