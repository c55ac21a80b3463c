// Package orchestrator is the Orchestrator (C6): it resolves the
// dependency graph, drives each plugin through initialize in
// topological order, routes command dispatches, and coordinates
// shutdown in reverse order, the way goatflow's plugin.Manager drives
// registration/call/shutdown over its own plugin set.
package orchestrator

import "time"

// State is one plugin's position in its lifecycle state machine.
type State string

const (
	StateDiscovered            State = "discovered"
	StateDependenciesSatisfied State = "dependencies_satisfied"
	StateInitializing         State = "initializing"
	StateLoaded               State = "loaded"
	StateInvoking             State = "invoking"
	StateShutdown             State = "shutdown"
	StateDestroyed            State = "destroyed"

	StateFailed         State = "failed"
	StateSkippedCycle   State = "skipped_cycle"
	StateSkippedUnmet   State = "skipped_unmet"
	StateDisabled       State = "disabled"
)

// terminal reports whether a state has no further host-driven
// transitions other than via explicit re-discovery.
func (s State) terminal() bool {
	switch s {
	case StateFailed, StateSkippedCycle, StateSkippedUnmet, StateDestroyed:
		return true
	default:
		return false
	}
}

// FailureReason names why a plugin landed in a terminal failure state.
type FailureReason string

const (
	ReasonInitError           FailureReason = "init_error"
	ReasonTimeout             FailureReason = "timeout"
	ReasonCycle               FailureReason = "cycle"
	ReasonUnmetDependency     FailureReason = "unmet_dependency"
	ReasonVersionIncompatible FailureReason = "version_incompatible"
	ReasonLoadFailed          FailureReason = "load_failed"
)

// FailedPlugin records one plugin that never reached Loaded, or that
// later left it terminally. Grounded on the teacher pack's
// failedPlugin bookkeeping struct (solaius-kf-reg's catalog plugin
// server), generalized with an explicit reason code and timestamp since
// this host surfaces both to an admin list with status, reason, and
// the manifest.
type FailedPlugin struct {
	PluginID string
	Reason   FailureReason
	Detail   string
	FailedAt time.Time
}

// Snapshot is one plugin's externally-visible status.
type Snapshot struct {
	PluginID string
	State    State
	Manifest ManifestView
}

// ManifestView is the subset of a manifest worth surfacing in a status
// listing.
type ManifestView struct {
	ID          string
	DisplayName string
	Version     string
	Author      string
}
