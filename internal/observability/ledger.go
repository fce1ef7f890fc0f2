package observability

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/store"
)

// DecisionRecord is one entry in the evidence ledger: a tool or
// subsystem recording which action it chose and why (spec.md §4.8).
type DecisionRecord struct {
	ID            string
	DecisionPoint string
	ChosenAction  string
	Context       map[string]any
	Confidence    float64
	ModelID       string
	CreatedAtUsec int64
}

// Ledger is an append-only, in-memory, capacity-bounded queue of
// DecisionRecords, optionally mirrored into store.EvidenceLedgerRow
// for durability across restarts. IDs are ULIDs generated from a
// single monotonic source, so two records created in the same
// microsecond still sort in creation order — the "monotonically
// increasing identifier" spec.md §4.8 asks for.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	records  []DecisionRecord
	entropy  *ulid.MonotonicEntropy

	pool *store.Pool // nil disables persistence
}

// NewLedger builds a ledger from the observability config. pool may
// be nil, in which case records live only in memory.
func NewLedger(cfg config.ObservabilityConfig, pool *store.Pool) *Ledger {
	return &Ledger{
		capacity: cfg.LedgerCapacity,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		pool:     pool,
	}
}

// Record appends a decision to the ledger, persisting it if a pool is
// configured. A persistence failure is returned but the in-memory
// append still happened — recent()/query() remain queryable even if
// the database write failed.
func (l *Ledger) Record(ctx context.Context, decisionPoint, chosenAction string, decisionContext map[string]any, confidence float64, modelID string, nowUsec int64) (*DecisionRecord, error) {
	l.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.UnixMicro(nowUsec)), l.entropy)
	if err != nil {
		l.mu.Unlock()
		return nil, errs.Wrap(err, errs.Internal, "observability: generate ledger ulid")
	}

	record := DecisionRecord{
		ID:            id.String(),
		DecisionPoint: decisionPoint,
		ChosenAction:  chosenAction,
		Context:       decisionContext,
		Confidence:    confidence,
		ModelID:       modelID,
		CreatedAtUsec: nowUsec,
	}

	l.records = append(l.records, record)
	if l.capacity > 0 && len(l.records) > l.capacity {
		l.records = l.records[len(l.records)-l.capacity:]
	}
	l.mu.Unlock()

	if l.pool == nil {
		return &record, nil
	}

	contextJSON, err := json.Marshal(decisionContext)
	if err != nil {
		return &record, errs.Wrap(err, errs.InvalidArgument, "observability: marshal decision context")
	}

	db, err := l.pool.Acquire(ctx)
	if err != nil {
		return &record, err
	}
	row := store.EvidenceLedgerRow{
		ULID:          record.ID,
		DecisionPoint: decisionPoint,
		ChosenAction:  chosenAction,
		Confidence:    confidence,
		ContextJSON:   string(contextJSON),
		CreatedAtUsec: nowUsec,
		ModelID:       modelID,
	}
	if err := db.Create(&row).Error; err != nil {
		return &record, errs.Wrap(err, errs.Internal, "observability: persist decision record")
	}
	return &record, nil
}

// Recent returns the last n records (fewer if the ledger holds less),
// most recent last.
func (l *Ledger) Recent(n int) []DecisionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]DecisionRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Query returns the last n records for a specific decision point,
// most recent last.
func (l *Ledger) Query(decisionPoint string, n int) []DecisionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []DecisionRecord
	for _, r := range l.records {
		if r.DecisionPoint == decisionPoint {
			matched = append(matched, r)
		}
	}
	if n <= 0 || n > len(matched) {
		n = len(matched)
	}
	return matched[len(matched)-n:]
}
