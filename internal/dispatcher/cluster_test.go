package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterOfKnownTool(t *testing.T) {
	cluster, ok := ClusterOf(ToolDeliverMessage)
	assert.True(t, ok)
	assert.Equal(t, ClusterMessaging, cluster)
}

func TestClusterOfUnknownTool(t *testing.T) {
	_, ok := ClusterOf("not_a_real_tool")
	assert.False(t, ok)
}

func TestRegistryHasNoDuplicateNames(t *testing.T) {
	seen := make(map[string]bool, len(Registry))
	for _, t2 := range Registry {
		assert.False(t, seen[t2.Name], "duplicate tool name %q", t2.Name)
		seen[t2.Name] = true
	}
}

func TestRegistryEveryToolHasACluster(t *testing.T) {
	for _, def := range Registry {
		assert.NotEmpty(t, def.Cluster, "tool %q missing cluster", def.Name)
	}
}
