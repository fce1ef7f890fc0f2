package dispatcher

// ToolCluster groups related tools for the filter policy (spec.md §6).
type ToolCluster string

const (
	ClusterIdentity         ToolCluster = "identity"
	ClusterMessaging        ToolCluster = "messaging"
	ClusterFileReservations ToolCluster = "file-reservations"
	ClusterSearch           ToolCluster = "search"
	ClusterMacros           ToolCluster = "macros"
)

// ToolDefinition describes one tool's name, cluster, and schema for a
// caller that lists available tools before invoking one. InputSchema
// and OutputSchema are JSON Schema documents, left as map[string]any
// the way the rest of the pack's tool-calling surfaces represent them
// rather than generating typed schema structs nobody round-trips.
type ToolDefinition struct {
	Name         string
	Cluster      ToolCluster
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
}

// Tool names. These are the literal strings a dispatcher-router maps
// incoming tool-call names to; Registry below is the single source of
// truth for which cluster each belongs to.
const (
	ToolEnsureProject     = "ensure_project"
	ToolEnsureAgent       = "ensure_agent"
	ToolDeliverMessage    = "deliver_message"
	ToolInboxSnapshot     = "inbox_snapshot"
	ToolCommunicationGraph = "communication_graph"
	ToolRecentCommits     = "recent_commits"
	ToolTimeline          = "timeline"
	ToolDirectoryTree     = "directory_tree"
	ToolCreateReservation = "create_reservation"
	ToolReleaseReservation = "release_reservation"
	ToolActiveReservations = "active_reservations"
	ToolSearch            = "search"
	ToolExportProject     = "export_project"
)

// Registry lists every tool the core exposes, independent of any
// caller's filter policy. A dispatcher-router lists this (filtered by
// Evaluate) to advertise its tool-call surface.
var Registry = []ToolDefinition{
	{
		Name:        ToolEnsureProject,
		Cluster:     ClusterIdentity,
		Description: "Resolve or create a project by key, returning its canonical slug.",
	},
	{
		Name:        ToolEnsureAgent,
		Cluster:     ClusterIdentity,
		Description: "Resolve or create an agent within a project.",
	},
	{
		Name:        ToolDeliverMessage,
		Cluster:     ClusterMessaging,
		Description: "Deliver a message to one or more recipients, archiving and indexing it.",
	},
	{
		Name:        ToolInboxSnapshot,
		Cluster:     ClusterMessaging,
		Description: "List an agent's archived messages as of a point in time.",
	},
	{
		Name:        ToolCommunicationGraph,
		Cluster:     ClusterMessaging,
		Description: "Summarize sender->recipient message counts for a project.",
	},
	{
		Name:        ToolRecentCommits,
		Cluster:     ClusterMessaging,
		Description: "List the most recently archived message bundles for a project.",
	},
	{
		Name:        ToolTimeline,
		Cluster:     ClusterMessaging,
		Description: "List every archived message bundle for a project, oldest first.",
	},
	{
		Name:        ToolDirectoryTree,
		Cluster:     ClusterMessaging,
		Description: "Walk a project's archive directory tree.",
	},
	{
		Name:        ToolCreateReservation,
		Cluster:     ClusterFileReservations,
		Description: "Reserve a file path pattern, exclusively or shared, for an agent.",
	},
	{
		Name:        ToolReleaseReservation,
		Cluster:     ClusterFileReservations,
		Description: "Release a previously created reservation.",
	},
	{
		Name:        ToolActiveReservations,
		Cluster:     ClusterFileReservations,
		Description: "List active (unreleased, unexpired) reservations for a project.",
	},
	{
		Name:        ToolSearch,
		Cluster:     ClusterSearch,
		Description: "Run the progressive fast/quality search contract over archived messages.",
	},
	{
		Name:        ToolExportProject,
		Cluster:     ClusterMacros,
		Description: "Produce a self-contained, shareable export bundle for a project.",
	},
}

// ClusterOf looks up the cluster a tool name belongs to. The second
// return is false for an unrecognized name.
func ClusterOf(toolName string) (ToolCluster, bool) {
	for _, t := range Registry {
		if t.Name == toolName {
			return t.Cluster, true
		}
	}
	return "", false
}
