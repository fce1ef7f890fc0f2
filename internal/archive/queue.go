// Package archive implements the per-project append-only bundle log:
// canonical-JSON message bundles, content-addressed attachment
// storage, and the write-behind queue (WBQ) that commits them off the
// request path.
package archive

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/channel"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/metrics"
)

// CommitJob is one unit of WBQ work: persist a bundle that
// WriteMessageBundle already staged to disk.
type CommitJob struct {
	ProjectID int64
	Commit    func(ctx context.Context) error
}

// QueueConfig configures the WBQ's worker pool and commit batching.
type QueueConfig struct {
	Workers         int
	HighWaterMark   int
	BatchWindow     time.Duration
	PanicHandler    func(any)
}

// DefaultQueueConfig returns sensible defaults for a local archive.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Workers:       4,
		HighWaterMark: 1024,
		BatchWindow:   200 * time.Millisecond,
	}
}

// Queue is the write-behind bounded queue servicing archive commits
// (spec.md §9's WBQ glossary entry). Jobs for the same project are
// processed in enqueue order; cross-project order is unspecified,
// since each project's jobs are routed to a worker by a stable hash of
// ProjectID so one project's work never races itself.
//
// The queue never silently drops an enqueued job: Submit either
// enqueues (possibly after blocking for backpressure) or returns the
// caller's context-cancellation error. The only way to lose queued-but
// -uncommitted work is a process exit without calling
// FlushAsyncCommits first — a documented contract violation, not
// something the queue does on its own.
type Queue struct {
	config  QueueConfig
	logger  *zap.Logger
	workers []*channel.TunableChannel[CommitJob]
	metrics *metrics.Collector // nil disables metric recording

	pending  atomic.Int64
	inFlight sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// WithMetrics attaches a metrics.Collector that the queue reports
// commit outcomes to. Returns q for chaining.
func (q *Queue) WithMetrics(c *metrics.Collector) *Queue {
	q.metrics = c
	return q
}

// NewQueue starts config.Workers worker goroutines, each servicing its
// own tunable-capacity channel of pending commit jobs. The channel
// auto-tunes its buffer between perWorker/4 and perWorker*4 based on
// observed block rate and utilization, so a project that bursts far
// above its fair share of HighWaterMark doesn't force every other
// project's worker to run undersized too.
func NewQueue(config QueueConfig, logger *zap.Logger) *Queue {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	perWorker := config.HighWaterMark / config.Workers
	if perWorker <= 0 {
		perWorker = 1
	}

	q := &Queue{
		config:  config,
		logger:  logger.With(zap.String("component", "archive_queue")),
		workers: make([]*channel.TunableChannel[CommitJob], config.Workers),
		closed:  make(chan struct{}),
	}

	tunableCfg := channel.DefaultTunableConfig()
	tunableCfg.InitialSize = perWorker
	tunableCfg.MinSize = maxInt(1, perWorker/4)
	tunableCfg.MaxSize = perWorker * 4

	for i := range q.workers {
		ch := channel.NewTunableChannel[CommitJob](tunableCfg)
		q.workers[i] = ch
		go q.runWorker(ch)
	}

	return q
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (q *Queue) runWorker(ch *channel.TunableChannel[CommitJob]) {
	ctx := context.Background()
	for {
		job, err := ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return
			}
			continue
		}
		q.execute(job)
		ch.Tune()
	}
}

func (q *Queue) execute(job CommitJob) {
	defer func() {
		q.pending.Add(-1)
		q.inFlight.Done()
		if r := recover(); r != nil && q.config.PanicHandler != nil {
			q.config.PanicHandler(r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := job.Commit(ctx); err != nil {
		q.logger.Error("archive commit failed",
			zap.Int64("project_id", job.ProjectID),
			zap.Error(err),
		)
		if q.metrics != nil {
			q.metrics.RecordArchiveCommit("error")
		}
		return
	}
	if q.metrics != nil {
		q.metrics.RecordArchiveCommit("ok")
	}
}

// Submit enqueues job, blocking for backpressure if the project's
// worker channel is at its high-water mark, and returning the
// caller's context error instead if ctx is cancelled first.
func (q *Queue) Submit(ctx context.Context, job CommitJob) error {
	select {
	case <-q.closed:
		return errs.New(errs.Unavailable, "archive: queue is closed")
	default:
	}

	worker := q.workers[q.workerIndex(job.ProjectID)]

	q.pending.Add(1)
	q.inFlight.Add(1)

	if err := worker.Send(ctx, job); err != nil {
		q.pending.Add(-1)
		q.inFlight.Done()
		return errs.New(errs.Cancelled, "archive: submit cancelled while queue full").WithCause(err)
	}
	return nil
}

func (q *Queue) workerIndex(projectID int64) int {
	if projectID < 0 {
		projectID = -projectID
	}
	return int(projectID) % len(q.workers)
}

// Pending returns the number of jobs enqueued but not yet committed.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// FlushAsyncCommits blocks until every job enqueued before this call
// has committed (spec.md §4.2). It does not prevent new submissions
// from racing in concurrently; those are not covered by this call's
// guarantee, matching the spec's "jobs enqueued before the call"
// wording.
func (q *Queue) FlushAsyncCommits(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errs.New(errs.Cancelled, "archive: flush cancelled").WithCause(ctx.Err())
	}
}

// Close stops accepting new work and waits for in-flight jobs to
// drain from their channels, but does not itself call
// FlushAsyncCommits — callers that need the stronger guarantee should
// flush before closing.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
		for _, ch := range q.workers {
			ch.Close()
		}
	})
}
