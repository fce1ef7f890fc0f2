// Package writepipeline implements the single entrypoint for message
// delivery (spec.md §4.3): "deliver message" resolves identities,
// validates bounds, commits the DB row, then best-effort processes
// markdown images and enqueues the archive bundle.
package writepipeline

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/archive"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/metrics"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/search"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/telemetry"
)

// Recipient is one addressee of an outgoing message.
type Recipient struct {
	Name string
	Kind store.RecipientKind
}

// DeliverMessageInput is everything the write pipeline needs from a
// caller (an MCP tool call, HTTP handler, or test).
type DeliverMessageInput struct {
	ProjectKey      string
	ProjectSlug     string
	SenderAgent     string
	SenderProgram   string
	SenderModel     string
	SenderTask      string
	ThreadID        string
	Subject         string
	Body            string
	Importance      store.Importance
	AckRequired     bool
	Recipients      []Recipient
	Attachments     []archive.AttachmentRef
	NowUsec         int64
}

// DeliverMessageResult is returned once the message has been durably
// committed to the database; Warnings covers best-effort steps 5/6
// that failed without invalidating the delivery itself.
type DeliverMessageResult struct {
	MessageID int64
	Warnings  []string
}

// Pipeline wires the store and archive together behind DeliverMessage.
type Pipeline struct {
	Store       *store.Store
	Archive     *archive.Archive
	Indexer     *search.Indexer // nil disables semantic indexing
	StorageRoot string
	Limits      config.LimitsConfig
	Metrics     *metrics.Collector // nil disables metric recording
}

// DeliverMessage runs the seven-step sequence from spec.md §4.3.
func (p *Pipeline) DeliverMessage(ctx context.Context, in DeliverMessageInput) (_ *DeliverMessageResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "writepipeline.DeliverMessage")
	start := time.Now()
	defer func() {
		if err == nil && p.Metrics != nil {
			p.Metrics.RecordMessageDelivered(string(in.Importance), time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("agentmail.project_slug", in.ProjectSlug),
		attribute.String("agentmail.sender_agent", in.SenderAgent),
		attribute.Int("agentmail.recipient_count", len(in.Recipients)),
	)

	if err := p.validateSize(in); err != nil {
		return nil, err
	}

	// Step 1: resolve/create project and sender.
	project, err := p.Store.EnsureProject(ctx, in.ProjectKey, in.ProjectSlug, in.NowUsec)
	if err != nil {
		return nil, err
	}
	sender, err := p.Store.EnsureAgent(ctx, project.ID, in.SenderAgent, in.SenderProgram, in.SenderModel, in.SenderTask, in.NowUsec)
	if err != nil {
		return nil, err
	}

	// Step 2: resolve recipients per Limits.AutoRegisterRecipients
	// (a recipient agent can't be checked against its own
	// ContactPolicy here, since it may not exist yet).
	recipients := make([]store.Recipient, 0, len(in.Recipients))
	recipientKinds := make(map[string]string, len(in.Recipients))
	for _, r := range in.Recipients {
		agent, err := p.resolveRecipient(ctx, project.ID, r.Name, in.NowUsec)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, store.Recipient{AgentID: agent.ID, Kind: r.Kind})
		recipientKinds[r.Name] = string(r.Kind)
	}
	if len(recipients) == 0 {
		return nil, errs.New(errs.InvalidArgument, "writepipeline: message must have at least one recipient")
	}

	attachmentsJSON, err := store.MarshalAttachments(attachmentDescriptors(in.Attachments))
	if err != nil {
		return nil, err
	}

	var threadID *string
	if in.ThreadID != "" {
		threadID = &in.ThreadID
	}

	msg := &store.Message{
		ProjectID:       project.ID,
		SenderAgentID:   sender.ID,
		ThreadID:        threadID,
		Subject:         in.Subject,
		Body:            in.Body,
		Importance:      in.Importance,
		AckRequired:     in.AckRequired,
		CreatedAtUsec:   in.NowUsec,
		AttachmentsJSON: attachmentsJSON,
	}

	// Step 4: atomic DB transaction (message + recipients + FTS
	// triggers). Any failure in steps 1-4 leaves no DB mutation behind.
	if err := p.Store.InsertMessageWithRecipients(ctx, msg, recipients); err != nil {
		return nil, err
	}

	result := &DeliverMessageResult{MessageID: msg.ID}

	// Steps 5 and 6 run concurrently: neither's failure should block
	// or be masked by the other, and neither can undo the already
	// -committed DB row. errgroup.Group is used here purely as a
	// panic-safe "wait for both" barrier; each goroutine records its
	// own failure as a warning rather than returning it from Go(), so
	// one failing never cancels the other via the group's context.
	var g errgroup.Group
	var mu sync.Mutex
	addWarning := func(w string) {
		mu.Lock()
		result.Warnings = append(result.Warnings, w)
		mu.Unlock()
	}

	g.Go(func() error {
		if err := p.processMarkdownImages(project.Slug, msg); err != nil {
			addWarning("image processing failed: " + err.Error())
		}
		return nil
	})

	g.Go(func() error {
		if err := p.Archive.WriteMessageBundle(ctx, project.Slug, archive.BundleInput{
			ProjectID:     project.ID,
			MessageID:     msg.ID,
			ThreadID:      in.ThreadID,
			Subject:       in.Subject,
			Body:          in.Body,
			SenderAgent:   in.SenderAgent,
			RecipientKind: recipientKinds,
			CreatedAtUsec: in.NowUsec,
			Attachments:   in.Attachments,
		}); err != nil {
			addWarning("archive enqueue failed: " + err.Error())
		}
		return nil
	})

	if p.Indexer != nil {
		g.Go(func() error {
			if err := p.Indexer.IndexMessage(ctx, msg.ID, in.Subject, in.Body); err != nil {
				addWarning("search indexing failed: " + err.Error())
			}
			return nil
		})
	}

	_ = g.Wait()

	return result, nil
}

// resolveRecipient implements spec.md §4.3 step 2: "resolve all
// recipients; if configured to auto-register, missing recipients
// become agents; otherwise reject." With auto-registration off, a
// recipient that doesn't already exist is an errs.NotFound rather than
// a silent EnsureAgent create.
func (p *Pipeline) resolveRecipient(ctx context.Context, projectID int64, name string, nowUsec int64) (*store.Agent, error) {
	if !p.Limits.AutoRegisterRecipients {
		return p.Store.FindAgentByName(ctx, projectID, name)
	}
	return p.Store.EnsureAgent(ctx, projectID, name, "", "", "", nowUsec)
}

func (p *Pipeline) validateSize(in DeliverMessageInput) error {
	if p.Limits.MaxSubjectBytes > 0 && int64(len(in.Subject)) > p.Limits.MaxSubjectBytes {
		return errs.New(errs.InvalidArgument, "writepipeline: subject exceeds maximum size")
	}
	if p.Limits.MaxMessageBodyBytes > 0 && int64(len(in.Body)) > p.Limits.MaxMessageBodyBytes {
		return errs.New(errs.InvalidArgument, "writepipeline: body exceeds maximum size")
	}

	var total int64 = int64(len(in.Subject)) + int64(len(in.Body))
	for _, att := range in.Attachments {
		size := int64(len(att.Inline))
		if att.FilePath != "" {
			if info, err := os.Stat(att.FilePath); err == nil {
				size = info.Size()
			}
		}
		if p.Limits.MaxAttachmentBytes > 0 && size > p.Limits.MaxAttachmentBytes {
			return errs.Newf(errs.InvalidArgument, "writepipeline: attachment %q exceeds maximum size", att.Name)
		}
		total += size
	}
	if p.Limits.MaxTotalMessageBytes > 0 && total > p.Limits.MaxTotalMessageBytes {
		return errs.New(errs.InvalidArgument, "writepipeline: total message size exceeds maximum")
	}
	return nil
}

func attachmentDescriptors(attachments []archive.AttachmentRef) []map[string]string {
	out := make([]map[string]string, 0, len(attachments))
	for _, a := range attachments {
		storage := "inline"
		if a.FilePath != "" {
			storage = "file"
		}
		out = append(out, map[string]string{"name": a.Name, "media_type": a.MediaType, "storage": storage})
	}
	return out
}

var markdownImageRef = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)

// processMarkdownImages resolves relative-path image references in a
// message body against the storage root, copying any that exist into
// the project's asset directory. It never mutates msg.Body: rewriting
// the stored body is a step-5 concern the spec leaves best-effort, so
// a failure here only ever produces a warning, never a pipeline error
// (spec.md §4.3's step-5 failure semantics).
func (p *Pipeline) processMarkdownImages(projectSlug string, msg *store.Message) error {
	matches := markdownImageRef.FindAllStringSubmatch(msg.Body, -1)
	if len(matches) == 0 {
		return nil
	}

	assetDir := filepath.Join(p.StorageRoot, projectSlug, "assets")
	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		return errs.Wrap(err, errs.Internal, "writepipeline: create asset dir")
	}

	for _, m := range matches {
		ref := strings.TrimSpace(m[1])
		if strings.Contains(ref, "://") || filepath.IsAbs(ref) {
			continue
		}
		src := filepath.Join(p.StorageRoot, ref)
		info, err := os.Lstat(src)
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		dst := filepath.Join(assetDir, filepath.Base(ref))
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return errs.Wrap(err, errs.Internal, "writepipeline: copy markdown image")
		}
	}
	return nil
}

// now returns the current time as microseconds since the epoch, the
// unit every timestamp column in the store uses.
func now() int64 {
	return time.Now().UnixMicro()
}
