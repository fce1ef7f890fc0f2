package store

import "time"

// Importance levels for a Message, per spec.md §3.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
	ImportanceUrgent Importance = "urgent"
)

// RecipientKind distinguishes primary from carbon-copy recipients.
type RecipientKind string

const (
	RecipientTo RecipientKind = "to"
	RecipientCC RecipientKind = "cc"
)

// AgentLinkStatus is the lifecycle of a cross-project agent link.
type AgentLinkStatus string

const (
	AgentLinkPending   AgentLinkStatus = "pending"
	AgentLinkConfirmed AgentLinkStatus = "confirmed"
	AgentLinkDismissed AgentLinkStatus = "dismissed"
)

// Project is the ownership root: everything else references exactly
// one project.
type Project struct {
	ID        int64     `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Slug      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Project) TableName() string { return "projects" }

// Agent is a named participant within a project. Created lazily on
// first reference; never deleted by normal operations.
type Agent struct {
	ID              int64     `gorm:"primaryKey"`
	ProjectID       int64     `gorm:"uniqueIndex:idx_agent_project_name;not null"`
	Name            string    `gorm:"uniqueIndex:idx_agent_project_name;not null"`
	Program         string
	Model           string
	TaskDescription string
	ContactPolicy   string `gorm:"not null;default:auto"` // auto|explicit
	AttachmentsPolicy string `gorm:"not null;default:automatic"`
	InceptionUsec   int64  `gorm:"not null"`
	LastActiveUsec  int64  `gorm:"not null"`
}

func (Agent) TableName() string { return "agents" }

// Message is created once by the write pipeline and never mutated
// (only recipient-edge columns evolve).
type Message struct {
	ID              int64  `gorm:"primaryKey"`
	ProjectID       int64  `gorm:"index;not null"`
	SenderAgentID   int64  `gorm:"index;not null"`
	ThreadID        *string `gorm:"index"`
	Subject         string `gorm:"not null"`
	Body            string `gorm:"not null"`
	Importance      Importance `gorm:"not null;default:normal"`
	AckRequired     bool       `gorm:"not null;default:false"`
	CreatedAtUsec   int64      `gorm:"index;not null"`
	AttachmentsJSON string     `gorm:"column:attachments_json;not null;default:'[]'"`
}

func (Message) TableName() string { return "messages" }

// Recipient is the (message, agent, kind) edge. Unique per (message, agent).
type Recipient struct {
	ID           int64         `gorm:"primaryKey"`
	MessageID    int64         `gorm:"uniqueIndex:idx_recipient_msg_agent;not null"`
	AgentID      int64         `gorm:"uniqueIndex:idx_recipient_msg_agent;index;not null"`
	Kind         RecipientKind `gorm:"not null"`
	ReadAtUsec   *int64
	AckAtUsec    *int64
}

func (Recipient) TableName() string { return "recipients" }

// Reservation is an advisory, glob-scoped exclusive or shared lock
// held by one agent over a path pattern within a project.
type Reservation struct {
	ID          int64  `gorm:"primaryKey"`
	ProjectID   int64  `gorm:"index;not null"`
	AgentID     int64  `gorm:"index;not null"`
	PathPattern string `gorm:"not null"`
	Exclusive   bool   `gorm:"not null"`
	Reason      string
	CreatedAtUsec  int64  `gorm:"not null"`
	ExpiresAtUsec  int64  `gorm:"index;not null"`
	ReleasedAtUsec *int64 `gorm:"index"`
}

func (Reservation) TableName() string { return "reservations" }

// IsActive reports whether the reservation is active at nowUsec:
// released is unset and expires is in the future.
func (r Reservation) IsActive(nowUsec int64) bool {
	return r.ReleasedAtUsec == nil && r.ExpiresAtUsec > nowUsec
}

// AgentLink is a directed relationship between two agents, possibly
// across projects.
type AgentLink struct {
	ID            int64           `gorm:"primaryKey"`
	FromAgentID   int64           `gorm:"index;not null"`
	ToAgentID     int64           `gorm:"index;not null"`
	Status        AgentLinkStatus `gorm:"not null;default:pending"`
	CreatedAtUsec int64           `gorm:"not null"`
	ExpiresAtUsec int64           `gorm:"not null"`
}

func (AgentLink) TableName() string { return "agent_links" }

// EmbeddingRow stores the two-tier semantic vectors for one message,
// as f32 blobs (half-precision quantization happens at the boundary
// to internal/search/embed; the store persists whatever width the
// embedder produced).
type EmbeddingRow struct {
	MessageID       int64  `gorm:"primaryKey"`
	FastEmbedding   []byte `gorm:"not null"`
	QualityEmbedding []byte
	HasQuality      bool `gorm:"not null;default:false"`
}

func (EmbeddingRow) TableName() string { return "message_embeddings" }

// EvidenceLedgerRow is the persisted form of an observability-core
// decision record (see internal/observability).
type EvidenceLedgerRow struct {
	ID             int64  `gorm:"primaryKey"`
	ULID           string `gorm:"uniqueIndex;not null"`
	DecisionPoint  string `gorm:"index;not null"`
	ChosenAction   string `gorm:"not null"`
	Confidence     float64 `gorm:"not null"`
	ContextJSON    string  `gorm:"not null"`
	CreatedAtUsec  int64   `gorm:"index;not null"`
	ModelID        string
}

func (EvidenceLedgerRow) TableName() string { return "evidence_ledger" }

// AllModels lists every model migrated via AutoMigrate-free raw SQL
// migrations; kept here so callers (integrity checks, legacy import
// table counts) have one source of truth for table names.
func AllModels() []any {
	return []any{
		&Project{}, &Agent{}, &Message{}, &Recipient{},
		&Reservation{}, &AgentLink{}, &EmbeddingRow{}, &EvidenceLedgerRow{},
	}
}

// CoreTableNames returns the table names used by the legacy importer's
// post-migration core-table count snapshot.
func CoreTableNames() []string {
	return []string{
		"projects", "agents", "messages", "recipients",
		"reservations", "agent_links", "message_embeddings", "evidence_ledger",
	}
}
