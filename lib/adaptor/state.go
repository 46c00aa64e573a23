// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package adaptor is the render-farm side of a sticky render session:
// it launches the worker process (which hosts Blender), streams the
// worker's output through the scan table, drives the command channel,
// and exposes the session lifecycle to the CLI entrypoints.
package adaptor

// State is the lifecycle state of a render session.
type State int

const (
	// StateNotStarted is the state before Start.
	StateNotStarted State = iota
	// StateStarting covers worker launch, readiness wait, and the init
	// command sequence.
	StateStarting
	// StateReady means the scene is open and the session accepts tasks.
	StateReady
	// StateRendering means a task is in flight. Tasks are strictly
	// sequential; Run in this state is refused.
	StateRendering
	// StateIdle follows a completed task; the session accepts the next.
	StateIdle
	// StateStopping covers graceful shutdown.
	StateStopping
	// StateStopped is the terminal state of a clean shutdown.
	StateStopped
	// StateFailed is the terminal state after a fatal error, crash, or
	// startup timeout. Retrying belongs to the farm scheduler, not the
	// adaptor.
	StateFailed
)

// String returns the state name for logs and errors.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRendering:
		return "rendering"
	case StateIdle:
		return "idle"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// acceptsTask reports whether Run may begin a task in this state.
func (s State) acceptsTask() bool {
	return s == StateReady || s == StateIdle
}
