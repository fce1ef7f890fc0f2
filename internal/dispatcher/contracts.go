package dispatcher

import (
	"context"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/archive"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/exportpipeline"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/search"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/writepipeline"
)

// Dispatcher wires the typed tool-call contracts below to the core
// components that actually do the work. A router in front of this
// type is responsible for: transport, authentication, JSON Schema
// validation of raw tool-call arguments into these structs, and
// consulting Policy before invoking a tool at all — none of that is
// this package's concern (spec.md §1).
type Dispatcher struct {
	Store      *store.Store
	Reservations *store.Reservations
	Archive    *archive.Archive
	Write      *writepipeline.Pipeline
	Searcher   *search.Searcher
	Export     *exportpipeline.Pipeline
	Pool       *store.Pool
	Policy     *FilterPolicy
}

// checkAllowed returns a Conflict-free, typed error if toolName is not
// exposed under d.Policy, and nil otherwise. A nil Policy allows
// everything, matching FilterPolicy's own zero-value behavior.
func (d *Dispatcher) checkAllowed(toolName string) error {
	if d.Policy != nil && !d.Policy.Allows(toolName) {
		return errs.Newf(errs.InvalidArgument, "dispatcher: tool %q is not exposed by the active filter policy", toolName)
	}
	return nil
}

// EnsureProjectRequest resolves or creates a project.
type EnsureProjectRequest struct {
	Key     string
	Slug    string
	NowUsec int64
}

type EnsureProjectResult struct {
	ProjectID int64
	Slug      string
}

func (d *Dispatcher) EnsureProject(ctx context.Context, req EnsureProjectRequest) (*EnsureProjectResult, error) {
	if err := d.checkAllowed(ToolEnsureProject); err != nil {
		return nil, err
	}
	project, err := d.Store.EnsureProject(ctx, req.Key, req.Slug, req.NowUsec)
	if err != nil {
		return nil, err
	}
	return &EnsureProjectResult{ProjectID: project.ID, Slug: project.Slug}, nil
}

// EnsureAgentRequest resolves or creates an agent within a project.
type EnsureAgentRequest struct {
	ProjectID       int64
	Name            string
	Program         string
	Model           string
	TaskDescription string
	NowUsec         int64
}

type EnsureAgentResult struct {
	AgentID int64
}

func (d *Dispatcher) EnsureAgent(ctx context.Context, req EnsureAgentRequest) (*EnsureAgentResult, error) {
	if err := d.checkAllowed(ToolEnsureAgent); err != nil {
		return nil, err
	}
	agent, err := d.Store.EnsureAgent(ctx, req.ProjectID, req.Name, req.Program, req.Model, req.TaskDescription, req.NowUsec)
	if err != nil {
		return nil, err
	}
	return &EnsureAgentResult{AgentID: agent.ID}, nil
}

// DeliverMessageRequest is the tool-call shape of
// writepipeline.DeliverMessageInput; kept as a distinct type so the
// writepipeline package never needs to know about the dispatcher's
// filter policy or tool names.
type DeliverMessageRequest struct {
	ProjectKey    string
	ProjectSlug   string
	SenderAgent   string
	SenderProgram string
	SenderModel   string
	SenderTask    string
	ThreadID      string
	Subject       string
	Body          string
	Importance    store.Importance
	AckRequired   bool
	Recipients    []writepipeline.Recipient
	Attachments   []archive.AttachmentRef
	NowUsec       int64
}

type DeliverMessageResult struct {
	MessageID int64
	Warnings  []string
}

func (d *Dispatcher) DeliverMessage(ctx context.Context, req DeliverMessageRequest) (*DeliverMessageResult, error) {
	if err := d.checkAllowed(ToolDeliverMessage); err != nil {
		return nil, err
	}
	res, err := d.Write.DeliverMessage(ctx, writepipeline.DeliverMessageInput{
		ProjectKey:    req.ProjectKey,
		ProjectSlug:   req.ProjectSlug,
		SenderAgent:   req.SenderAgent,
		SenderProgram: req.SenderProgram,
		SenderModel:   req.SenderModel,
		SenderTask:    req.SenderTask,
		ThreadID:      req.ThreadID,
		Subject:       req.Subject,
		Body:          req.Body,
		Importance:    req.Importance,
		AckRequired:   req.AckRequired,
		Recipients:    req.Recipients,
		Attachments:   req.Attachments,
		NowUsec:       req.NowUsec,
	})
	if err != nil {
		return nil, err
	}
	return &DeliverMessageResult{MessageID: res.MessageID, Warnings: res.Warnings}, nil
}

// InboxSnapshotRequest lists an agent's archived messages as of a
// point in time.
type InboxSnapshotRequest struct {
	ProjectSlug string
	Agent       string
	AsOfUsec    int64
}

func (d *Dispatcher) InboxSnapshot(ctx context.Context, req InboxSnapshotRequest) ([]archive.CommitSummary, error) {
	if err := d.checkAllowed(ToolInboxSnapshot); err != nil {
		return nil, err
	}
	return d.Archive.InboxSnapshot(req.ProjectSlug, req.Agent, req.AsOfUsec)
}

// CommunicationGraphRequest summarizes sender->recipient traffic for a
// project.
type CommunicationGraphRequest struct {
	ProjectSlug string
}

func (d *Dispatcher) CommunicationGraph(ctx context.Context, req CommunicationGraphRequest) ([]archive.CommunicationEdge, error) {
	if err := d.checkAllowed(ToolCommunicationGraph); err != nil {
		return nil, err
	}
	return d.Archive.CommunicationGraph(req.ProjectSlug)
}

// RecentCommitsRequest lists the n most recently archived message
// bundles for a project.
type RecentCommitsRequest struct {
	ProjectSlug string
	N           int
}

func (d *Dispatcher) RecentCommits(ctx context.Context, req RecentCommitsRequest) ([]archive.CommitSummary, error) {
	if err := d.checkAllowed(ToolRecentCommits); err != nil {
		return nil, err
	}
	return d.Archive.RecentCommits(req.ProjectSlug, req.N)
}

// TimelineRequest lists every archived message bundle for a project,
// oldest first.
type TimelineRequest struct {
	ProjectSlug string
}

func (d *Dispatcher) Timeline(ctx context.Context, req TimelineRequest) ([]archive.CommitSummary, error) {
	if err := d.checkAllowed(ToolTimeline); err != nil {
		return nil, err
	}
	return d.Archive.Timeline(req.ProjectSlug)
}

// DirectoryTreeRequest walks a project's archive directory tree
// rooted at RelPath ("" for the project root).
type DirectoryTreeRequest struct {
	ProjectSlug string
	RelPath     string
}

func (d *Dispatcher) DirectoryTree(ctx context.Context, req DirectoryTreeRequest) (*archive.TreeNode, error) {
	if err := d.checkAllowed(ToolDirectoryTree); err != nil {
		return nil, err
	}
	return d.Archive.DirectoryTree(req.ProjectSlug, req.RelPath)
}

// CreateReservationRequest reserves a file path pattern for an agent.
type CreateReservationRequest struct {
	ProjectID   int64
	AgentID     int64
	PathPattern string
	Exclusive   bool
	Reason      string
	NowUsec     int64
	ExpiresAtUsec int64
}

type CreateReservationResult struct {
	ReservationID int64
}

func (d *Dispatcher) CreateReservation(ctx context.Context, req CreateReservationRequest) (*CreateReservationResult, error) {
	if err := d.checkAllowed(ToolCreateReservation); err != nil {
		return nil, err
	}
	res := &store.Reservation{
		ProjectID:     req.ProjectID,
		AgentID:       req.AgentID,
		PathPattern:   req.PathPattern,
		Exclusive:     req.Exclusive,
		Reason:        req.Reason,
		CreatedAtUsec: req.NowUsec,
		ExpiresAtUsec: req.ExpiresAtUsec,
	}
	if err := d.Reservations.CreateReservation(ctx, res); err != nil {
		return nil, err
	}
	return &CreateReservationResult{ReservationID: res.ID}, nil
}

// ReleaseReservationRequest releases a previously created reservation.
type ReleaseReservationRequest struct {
	ReservationID int64
	NowUsec       int64
}

func (d *Dispatcher) ReleaseReservation(ctx context.Context, req ReleaseReservationRequest) error {
	if err := d.checkAllowed(ToolReleaseReservation); err != nil {
		return err
	}
	return d.Reservations.ReleaseReservation(ctx, req.ReservationID, req.NowUsec)
}

// ActiveReservationsRequest lists active reservations for a project.
type ActiveReservationsRequest struct {
	ProjectID int64
	NowUsec   int64
}

func (d *Dispatcher) ActiveReservations(ctx context.Context, req ActiveReservationsRequest) ([]store.Reservation, error) {
	if err := d.checkAllowed(ToolActiveReservations); err != nil {
		return nil, err
	}
	return d.Reservations.ActiveReservationsForProject(ctx, req.ProjectID, req.NowUsec)
}

// SearchRequest runs the progressive fast/quality search contract.
type SearchRequest struct {
	Query string
	K     int
}

func (d *Dispatcher) Search(ctx context.Context, req SearchRequest) ([]search.SearchPhase, error) {
	if err := d.checkAllowed(ToolSearch); err != nil {
		return nil, err
	}
	return d.Searcher.Search(ctx, req.Query, req.K)
}

// ExportProjectRequest produces a shareable export bundle.
type ExportProjectRequest struct {
	ProjectSlug string
	StorageRoot string
	OutputDir   string
}

func (d *Dispatcher) ExportProject(ctx context.Context, req ExportProjectRequest) (*exportpipeline.Result, error) {
	if err := d.checkAllowed(ToolExportProject); err != nil {
		return nil, err
	}
	return d.Export.Export(ctx, d.Pool, exportpipeline.Options{
		ProjectSlug: req.ProjectSlug,
		StorageRoot: req.StorageRoot,
		OutputDir:   req.OutputDir,
	})
}
