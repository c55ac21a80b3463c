package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestResolveOrderTopologicalSort(t *testing.T) {
	nodes := []depNode{
		{id: "tasks", version: "1.0.0", deps: []depEdge{{pluginID: "billing", constraint: ">=1.0.0"}}},
		{id: "billing", version: "1.0.0"},
	}

	order, skippedCycle, skippedUnmet := resolveOrder(nodes)
	require.Empty(t, skippedCycle)
	require.Empty(t, skippedUnmet)
	require.Len(t, order, 2)
	assert.Less(t, indexOf(order, "billing"), indexOf(order, "tasks"), "a dependency must initialize before its dependent")
}

func TestResolveOrderMissingDependencyIsUnmet(t *testing.T) {
	nodes := []depNode{
		{id: "tasks", deps: []depEdge{{pluginID: "ghost", constraint: ""}}},
	}

	order, _, skippedUnmet := resolveOrder(nodes)
	assert.Empty(t, order)
	assert.Contains(t, skippedUnmet["tasks"], "ghost")
}

func TestResolveOrderVersionMismatchIsUnmet(t *testing.T) {
	nodes := []depNode{
		{id: "tasks", deps: []depEdge{{pluginID: "billing", constraint: ">=2.0.0"}}},
		{id: "billing", version: "1.0.0"},
	}

	order, _, skippedUnmet := resolveOrder(nodes)
	require.Contains(t, skippedUnmet, "tasks")
	assert.Contains(t, order, "billing", "billing itself has no unmet deps and should still initialize")
}

func TestResolveOrderUnmetPropagatesTransitively(t *testing.T) {
	nodes := []depNode{
		{id: "reporting", deps: []depEdge{{pluginID: "tasks", constraint: ""}}},
		{id: "tasks", deps: []depEdge{{pluginID: "ghost", constraint: ""}}},
	}

	_, _, skippedUnmet := resolveOrder(nodes)
	assert.Contains(t, skippedUnmet, "tasks")
	assert.Contains(t, skippedUnmet, "reporting")
}

func TestResolveOrderDetectsDirectCycle(t *testing.T) {
	nodes := []depNode{
		{id: "a", version: "1.0.0", deps: []depEdge{{pluginID: "b"}}},
		{id: "b", version: "1.0.0", deps: []depEdge{{pluginID: "a"}}},
	}

	order, skippedCycle, skippedUnmet := resolveOrder(nodes)
	assert.Empty(t, order)
	assert.True(t, skippedCycle["a"])
	assert.True(t, skippedCycle["b"])
	assert.Empty(t, skippedUnmet)
}

func TestResolveOrderCycleDoesNotBlockUnrelatedPlugins(t *testing.T) {
	nodes := []depNode{
		{id: "a", version: "1.0.0", deps: []depEdge{{pluginID: "b"}}},
		{id: "b", version: "1.0.0", deps: []depEdge{{pluginID: "a"}}},
		{id: "standalone", version: "1.0.0"},
	}

	order, skippedCycle, _ := resolveOrder(nodes)
	assert.True(t, skippedCycle["a"])
	assert.True(t, skippedCycle["b"])
	assert.Equal(t, []string{"standalone"}, order)
}

func TestSatisfiesCaretConstraint(t *testing.T) {
	ok, reason := satisfies("1.2.3", "^1.0.0")
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = satisfies("2.0.0", "^1.0.0")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestSatisfiesInvalidVersion(t *testing.T) {
	ok, reason := satisfies("not-a-version", ">=1.0.0")
	assert.False(t, ok)
	assert.Contains(t, reason, "invalid version")
}
