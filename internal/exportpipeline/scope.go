package exportpipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
)

// applyScope deletes every row outside projectSlug's ownership tree
// from the snapshot opened at snapshotDB (spec.md §4.5 stage 2: scope
// work happens on the snapshot only, never on the live database). The
// delete order respects the foreign-key graph in internal/store/models.go
// — children before parents — so a foreign-key-enforcing SQLite
// connection never rejects an intermediate delete.
func applyScope(ctx context.Context, snapshotDB string, projectSlug string, logger *zap.Logger) error {
	st, err := store.Open(ctx, snapshotDB, store.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	db, err := st.Pool.Acquire(ctx)
	if err != nil {
		return err
	}

	var project store.Project
	if err := db.Where("slug = ?", projectSlug).First(&project).Error; err != nil {
		return errs.Wrap(err, errs.NotFound, "exportpipeline: scope project not found in snapshot: "+projectSlug)
	}

	// Recipients and embeddings reference messages; messages and
	// reservations reference the project directly; agent_links
	// reference agents, which in turn reference the project.
	if err := db.Exec(`DELETE FROM recipients WHERE message_id IN (SELECT id FROM messages WHERE project_id != ?)`, project.ID).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: scope delete out-of-scope recipients")
	}
	if err := db.Exec(`DELETE FROM message_embeddings WHERE message_id IN (SELECT id FROM messages WHERE project_id != ?)`, project.ID).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: scope delete out-of-scope embeddings")
	}
	if err := db.Exec(`DELETE FROM messages WHERE project_id != ?`, project.ID).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: scope delete out-of-scope messages")
	}
	if err := db.Exec(`DELETE FROM reservations WHERE project_id != ?`, project.ID).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: scope delete out-of-scope reservations")
	}
	if err := db.Exec(`
		DELETE FROM agent_links
		WHERE from_agent_id IN (SELECT id FROM agents WHERE project_id != ?)
		   OR to_agent_id IN (SELECT id FROM agents WHERE project_id != ?)
	`, project.ID, project.ID).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: scope delete out-of-scope agent links")
	}
	if err := db.Exec(`DELETE FROM agents WHERE project_id != ?`, project.ID).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: scope delete out-of-scope agents")
	}
	if err := db.Exec(`DELETE FROM projects WHERE id != ?`, project.ID).Error; err != nil {
		return errs.Wrap(err, errs.Internal, "exportpipeline: scope delete out-of-scope projects")
	}
	return nil
}

// applyScrub redacts secret patterns from every remaining message's
// subject and body, returning the per-pattern match counts (spec.md
// §4.5 stage 3).
func applyScrub(ctx context.Context, snapshotDB string, logger *zap.Logger) (map[string]int, error) {
	st, err := store.Open(ctx, snapshotDB, store.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	db, err := st.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID      int64
		Subject string
		Body    string
	}
	if err := db.Table("messages").Select("id, subject, body").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, errs.Internal, "exportpipeline: scrub load messages")
	}

	scrubber := NewScrubber()
	total := make(map[string]int)
	for _, row := range rows {
		scrubbedSubject, subjectCounts := scrubber.Scrub(row.Subject)
		scrubbedBody, bodyCounts := scrubber.Scrub(row.Body)
		mergeCounts(total, subjectCounts)
		mergeCounts(total, bodyCounts)
		if scrubbedSubject == row.Subject && scrubbedBody == row.Body {
			continue
		}
		if err := db.Exec(`UPDATE messages SET subject = ?, body = ? WHERE id = ?`, scrubbedSubject, scrubbedBody, row.ID).Error; err != nil {
			return nil, errs.Wrap(err, errs.Internal, "exportpipeline: scrub write redacted message")
		}
	}
	return total, nil
}

// finalizeSnapshot runs VACUUM on the snapshot and verifies FTS5's
// internal structure survived the scope/scrub deletes and updates
// (spec.md §4.5 stage 4).
func finalizeSnapshot(ctx context.Context, snapshotDB string, logger *zap.Logger) (ftsSurvived bool, err error) {
	st, err := store.Open(ctx, snapshotDB, store.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger)
	if err != nil {
		return false, err
	}
	defer st.Close()

	db, err := st.Pool.Acquire(ctx)
	if err != nil {
		return false, err
	}

	if err := db.Exec("VACUUM").Error; err != nil {
		return false, errs.Wrap(err, errs.Internal, "exportpipeline: finalize vacuum")
	}

	// FTS5's 'integrity-check' command scans the shadow tables and
	// returns an error if they are inconsistent with the content
	// table — the cheapest way to confirm the scope/scrub deletes and
	// updates kept messages_fts in sync via its triggers.
	ftsErr := db.Exec(`INSERT INTO messages_fts(messages_fts) VALUES('integrity-check')`).Error
	return ftsErr == nil, nil
}
