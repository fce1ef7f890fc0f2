package dispatcher

import (
	"github.com/Dicklesworthstone/mcp-agent-mail-go/config"
	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// coreClusters is the "core" profile: identity and messaging, the
// minimum surface an agent needs to send and receive mail.
var coreClusters = map[ToolCluster]bool{
	ClusterIdentity:  true,
	ClusterMessaging: true,
}

// minimalClusters is the "minimal" profile: identity plus the single
// deliver_message tool, nothing else.
var minimalTools = map[string]bool{
	ToolEnsureProject:  true,
	ToolEnsureAgent:    true,
	ToolDeliverMessage: true,
}

// FilterPolicy decides which tools a caller may see, built from
// config.ToolsConfig (spec.md §6's "filter policy driven by
// configuration"). A zero-value FilterPolicy (FilterEnabled false)
// allows every tool in Registry.
type FilterPolicy struct {
	enabled  bool
	profile  string
	mode     string // "include" or "exclude"
	clusters map[ToolCluster]bool
	tools    map[string]bool
}

// NewFilterPolicy builds a FilterPolicy from resolved configuration.
func NewFilterPolicy(cfg config.ToolsConfig) (*FilterPolicy, error) {
	p := &FilterPolicy{
		enabled:  cfg.FilterEnabled,
		profile:  cfg.FilterProfile,
		mode:     cfg.FilterMode,
		clusters: make(map[ToolCluster]bool, len(cfg.FilterClusters)),
		tools:    make(map[string]bool, len(cfg.FilterTools)),
	}
	for _, c := range cfg.FilterClusters {
		p.clusters[ToolCluster(c)] = true
	}
	for _, t := range cfg.FilterTools {
		p.tools[t] = true
	}
	if !p.enabled {
		return p, nil
	}
	switch p.profile {
	case "full", "core", "minimal", "messaging", "custom", "":
	default:
		return nil, errs.Newf(errs.InvalidArgument, "dispatcher: unknown tools.filter_profile %q", p.profile)
	}
	if p.profile == "custom" {
		switch p.mode {
		case "include", "exclude":
		default:
			return nil, errs.Newf(errs.InvalidArgument, "dispatcher: custom filter profile requires tools.filter_mode of include or exclude, got %q", p.mode)
		}
	}
	return p, nil
}

// Allows reports whether toolName is exposed under this policy.
// Unrecognized tool names are never allowed, regardless of policy.
func (p *FilterPolicy) Allows(toolName string) bool {
	cluster, known := ClusterOf(toolName)
	if !known {
		return false
	}
	if p == nil || !p.enabled {
		return true
	}

	switch p.profile {
	case "", "full":
		return true
	case "core":
		return coreClusters[cluster]
	case "minimal":
		return minimalTools[toolName]
	case "messaging":
		return cluster == ClusterMessaging
	case "custom":
		matched := p.clusters[cluster] || p.tools[toolName]
		if p.mode == "exclude" {
			return !matched
		}
		return matched
	default:
		return false
	}
}

// AllowedTools returns every Registry entry Allows permits, in
// Registry order.
func (p *FilterPolicy) AllowedTools() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(Registry))
	for _, t := range Registry {
		if p.Allows(t.Name) {
			out = append(out, t)
		}
	}
	return out
}
