package orchestrator

import "github.com/Masterminds/semver/v3"

// resolveOrder computes an initialization order over plugins: an edge
// runs from a plugin to each of its declared dependencies, missing or version-incompatible
// dependencies produce SkippedUnmet for their dependents, and every
// plugin on a dependency cycle is SkippedCycle. Everything else comes
// back in topological order (dependencies before dependents).
type depNode struct {
	id      string
	version string
	deps    []depEdge
}

type depEdge struct {
	pluginID   string
	constraint string
}

// resolveOrder returns, in order: pluginIDs ready to initialize
// (topologically sorted), and maps of pluginID to failure reason for
// plugins that were skipped before ever reaching Initializing.
func resolveOrder(nodes []depNode) (order []string, skippedCycle map[string]bool, skippedUnmet map[string]string) {
	byID := make(map[string]depNode, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}

	skippedUnmet = make(map[string]string)
	skippedCycle = make(map[string]bool)

	// First pass: any plugin depending on a missing or version-mismatched
	// dependency is unmet. This must be computed before cycle detection
	// so an unmet edge doesn't also get blamed as part of a cycle.
	unmetReason := make(map[string]string)
	for _, n := range nodes {
		for _, e := range n.deps {
			dep, ok := byID[e.pluginID]
			if !ok {
				unmetReason[n.id] = "missing dependency " + e.pluginID
				continue
			}
			if e.constraint == "" {
				continue
			}
			ok, reason := satisfies(dep.version, e.constraint)
			if !ok {
				unmetReason[n.id] = reason
			}
		}
	}
	for id, reason := range unmetReason {
		skippedUnmet[id] = reason
	}

	// Propagate unmet status transitively: a plugin depending (directly
	// or transitively) on an unmet plugin is itself unmet.
	changed := true
	for changed {
		changed = false
		for _, n := range nodes {
			if _, already := skippedUnmet[n.id]; already {
				continue
			}
			for _, e := range n.deps {
				if reason, unmet := skippedUnmet[e.pluginID]; unmet {
					skippedUnmet[n.id] = "depends on unmet plugin " + e.pluginID + ": " + reason
					changed = true
					break
				}
			}
		}
	}

	// Tarjan-style DFS cycle detection + topo order over the remaining
	// (non-unmet) nodes.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))
	var visiting []string
	inCycle := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		if skippedUnmet[id] != "" {
			return
		}
		switch color[id] {
		case black:
			return
		case gray:
			// Found a back-edge: everything on the current stack from
			// this node forward is part of a cycle.
			for i := len(visiting) - 1; i >= 0; i-- {
				inCycle[visiting[i]] = true
				if visiting[i] == id {
					break
				}
			}
			return
		}
		color[id] = gray
		visiting = append(visiting, id)
		n := byID[id]
		for _, e := range n.deps {
			if skippedUnmet[e.pluginID] != "" {
				continue
			}
			visit(e.pluginID)
		}
		visiting = visiting[:len(visiting)-1]
		color[id] = black
		if !inCycle[id] {
			order = append(order, id)
		}
	}

	for _, n := range nodes {
		if color[n.id] == white {
			visit(n.id)
		}
	}

	for id := range inCycle {
		skippedCycle[id] = true
		delete(skippedUnmet, id)
	}

	return order, skippedCycle, skippedUnmet
}

// satisfies evaluates a dependency version constraint
// (">=X.Y.Z", "=X.Y.Z", "<X.Y.Z", "^X.Y.Z", and comma-separated
// combinations) against a candidate version.
func satisfies(version, constraint string) (bool, string) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, "dependency has invalid version " + version
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, "invalid version constraint " + constraint
	}
	if !c.Check(v) {
		return false, "version " + version + " does not satisfy " + constraint
	}
	return true, ""
}
