// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package blender holds the domain types shared by the adaptor, the
// worker, and the submitter: render engines, output formats, and the
// per-session (init) and per-task (run) data files.
package blender

import "fmt"

// Engine is a closed enumeration of the render engines the adaptor
// supports. The engine is fixed for the lifetime of a session: it is
// parsed once from init data and never reassigned.
type Engine string

const (
	// EngineEevee is Blender's realtime rasterizer (the default).
	EngineEevee Engine = "eevee"
	// EngineWorkbench is the viewport preview engine. It emits no
	// per-sample progress output.
	EngineWorkbench Engine = "workbench"
	// EngineCycles is the path tracer.
	EngineCycles Engine = "cycles"
)

// UnsupportedEngineError is returned when init data names a render
// engine outside the supported enumeration. Session startup fails with
// this error before any render command is issued.
type UnsupportedEngineError struct {
	Engine string
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("unsupported render engine %q (supported: eevee, workbench, cycles)", e.Engine)
}

// ParseEngine validates an engine identifier from init data.
func ParseEngine(name string) (Engine, error) {
	switch Engine(name) {
	case EngineEevee, EngineWorkbench, EngineCycles:
		return Engine(name), nil
	}
	return "", &UnsupportedEngineError{Engine: name}
}

// BlenderIdentifier returns the engine name as Blender's Python API
// spells it (bpy scene.render.engine).
func (e Engine) BlenderIdentifier() string {
	switch e {
	case EngineWorkbench:
		return "BLENDER_WORKBENCH"
	case EngineCycles:
		return "CYCLES"
	default:
		return "BLENDER_EEVEE"
	}
}
