package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// Store is the façade the write pipeline, search subsystem, and
// transport layer depend on: one pooled SQLite connection, its
// migrator, and the reservation/integrity repositories built on top.
type Store struct {
	Pool         *Pool
	Reservations *Reservations
	Integrity    *Integrity

	sqlDB *sql.DB
}

// Open opens databaseURL (any form accepted by config.ParseDatabaseURL;
// the caller resolves that first and passes the GORM-ready DSN here),
// applies pool settings, and runs every pending migration before
// returning. Opening twice against the same file is safe: migrations
// are idempotent.
func Open(ctx context.Context, dsn string, poolConfig PoolConfig, logger *zap.Logger) (*Store, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Silent)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, errs.Wrap(err, errs.Unavailable, "store: open database").WithRetryable(true)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: unwrap sql.DB")
	}
	// A single SQLite file is one writer: WAL lets readers proceed
	// concurrently with the one in-flight writer (spec.md §5's
	// single-writer-via-pool-and-WAL shared-resource policy).
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: enable WAL journal mode")
	}
	if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: enable foreign keys")
	}

	migrator, err := NewMigrator(sqlDB)
	if err != nil {
		return nil, err
	}
	if err := migrator.Up(ctx); err != nil {
		_ = migrator.Close()
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, err
	}

	pool, err := NewPool(db, poolConfig, logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		Pool:         pool,
		Reservations: NewReservations(pool),
		Integrity:    NewIntegrity(pool),
		sqlDB:        sqlDB,
	}, nil
}

// Close releases the pool and its underlying connection.
func (s *Store) Close() error {
	return s.Pool.Close()
}

// EnsureProject resolves a project by key, creating it if absent. Used
// by the write pipeline's step 1 ("resolve or create project and
// sender") and by every tool-call handler that addresses a project by
// its human-readable key.
func (s *Store) EnsureProject(ctx context.Context, key, slug string, nowUsec int64) (*Project, error) {
	db, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var project Project
	err = db.Where("key = ?", key).First(&project).Error
	if err == nil {
		return &project, nil
	}
	if !isRecordNotFound(err) {
		return nil, errs.Wrap(err, errs.Internal, "store: look up project")
	}

	project = Project{Key: key, Slug: slug, CreatedAt: time.UnixMicro(nowUsec)}
	if err := s.Pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		// Re-check inside the transaction: two concurrent callers can
		// both miss the row above and both attempt to create it.
		var existing Project
		innerErr := tx.Where("key = ?", key).First(&existing).Error
		if innerErr == nil {
			project = existing
			return nil
		}
		if !isRecordNotFound(innerErr) {
			return errs.Wrap(innerErr, errs.Internal, "store: re-check project")
		}
		if createErr := tx.Create(&project).Error; createErr != nil {
			return errs.Wrap(createErr, errs.Internal, "store: create project")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &project, nil
}

// EnsureAgent resolves an agent by (projectID, name), creating it on
// first reference and touching LastActiveUsec on every subsequent one.
func (s *Store) EnsureAgent(ctx context.Context, projectID int64, name, program, model, taskDescription string, nowUsec int64) (*Agent, error) {
	var agent Agent
	err := s.Pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		innerErr := tx.Where("project_id = ? AND name = ?", projectID, name).First(&agent).Error
		if innerErr == nil {
			agent.LastActiveUsec = nowUsec
			return tx.Model(&agent).Update("last_active_usec", nowUsec).Error
		}
		if !isRecordNotFound(innerErr) {
			return errs.Wrap(innerErr, errs.Internal, "store: look up agent")
		}

		agent = Agent{
			ProjectID:       projectID,
			Name:            name,
			Program:         program,
			Model:           model,
			TaskDescription: taskDescription,
			ContactPolicy:   "auto",
			AttachmentsPolicy: "automatic",
			InceptionUsec:   nowUsec,
			LastActiveUsec:  nowUsec,
		}
		return tx.Create(&agent).Error
	})
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// FindAgentByName looks up an existing agent by (projectID, name)
// without creating one, returning errs.NotFound if no such agent
// exists. Used to enforce spec.md §4.3 step 2's "otherwise reject"
// branch when auto-registration is disabled.
func (s *Store) FindAgentByName(ctx context.Context, projectID int64, name string) (*Agent, error) {
	db, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	var agent Agent
	if err := db.Where("project_id = ? AND name = ?", projectID, name).First(&agent).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, errs.Newf(errs.NotFound, "store: agent %q not found", name)
		}
		return nil, errs.Wrap(err, errs.Internal, "store: look up agent")
	}
	return &agent, nil
}

// InsertMessageWithRecipients performs step 4 of the write pipeline
// (spec.md §4.3): insert the message and every recipient edge inside
// one transaction. The FTS index updates synchronously via the
// triggers installed by migration 000002, so a caller observing commit
// success can search for the message immediately.
func (s *Store) InsertMessageWithRecipients(ctx context.Context, msg *Message, recipients []Recipient) error {
	if len(recipients) == 0 {
		return errs.New(errs.InvalidArgument, "store: message must have at least one recipient")
	}

	return s.Pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return errs.Wrap(err, errs.Internal, "store: insert message")
		}
		for i := range recipients {
			recipients[i].MessageID = msg.ID
		}
		if err := tx.Create(&recipients).Error; err != nil {
			return errs.Wrap(err, errs.Internal, "store: insert recipients")
		}
		return nil
	})
}

// MarshalAttachments is a small helper so callers building a Message
// don't each reimplement the JSON-encoding of its attachment
// descriptor list.
func MarshalAttachments(descriptors any) (string, error) {
	b, err := json.Marshal(descriptors)
	if err != nil {
		return "", errs.Wrap(err, errs.InvalidArgument, "store: marshal attachment descriptors")
	}
	return string(b), nil
}

func isRecordNotFound(err error) bool {
	return errs.Is(err, errs.NotFound) || err == gorm.ErrRecordNotFound
}
