// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"

	"github.com/renderbeam/renderbeam/lib/blender"
	"github.com/renderbeam/renderbeam/lib/hostbridge"
)

// RenderDefaults are the engine's default render settings, applied
// when init data leaves them unset.
type RenderDefaults struct {
	// OutputFormat is the format used when no output_format command
	// arrives.
	OutputFormat blender.OutputFormat

	// EmitsProgress reports whether the engine prints per-sample
	// progress lines the output scanner can turn into percentages.
	EmitsProgress bool
}

// RenderHandler carries the per-engine behavior behind the render
// commands. The handler is selected exactly once per session, by the
// first render_engine command, and never replaced.
type RenderHandler interface {
	// Engine identifies the handler.
	Engine() blender.Engine

	// PrepareOptions applies the engine selection and its
	// engine-specific pre-render options to the host. Runs at
	// selection and again after the scene is opened, since opening a
	// file resets scene state.
	PrepareOptions(ctx context.Context, host hostbridge.Host) error

	// RenderDefaults returns the engine's default render settings.
	RenderDefaults() RenderDefaults
}

// HandlerFor returns the render handler for an engine identifier.
func HandlerFor(name string) (RenderHandler, error) {
	engine, err := blender.ParseEngine(name)
	if err != nil {
		return nil, err
	}
	switch engine {
	case blender.EngineCycles:
		return cyclesHandler{}, nil
	default:
		return rasterHandler{engine: engine}, nil
	}
}

// rasterHandler drives the realtime engines (eevee, workbench). Eevee
// reports per-frame progress via "Rendering N / M samples" log lines;
// workbench emits none at all.
type rasterHandler struct {
	engine blender.Engine
}

func (h rasterHandler) Engine() blender.Engine { return h.engine }

func (h rasterHandler) PrepareOptions(ctx context.Context, host hostbridge.Host) error {
	return host.SetEngine(ctx, h.engine)
}

func (h rasterHandler) RenderDefaults() RenderDefaults {
	return RenderDefaults{
		OutputFormat:  blender.FormatPNG,
		EmitsProgress: h.engine == blender.EngineEevee,
	}
}

// cyclesHandler drives the path tracer, whose progress appears as
// "Sample N/M" log lines.
type cyclesHandler struct{}

func (cyclesHandler) Engine() blender.Engine { return blender.EngineCycles }

func (cyclesHandler) PrepareOptions(ctx context.Context, host hostbridge.Host) error {
	return host.SetEngine(ctx, blender.EngineCycles)
}

func (cyclesHandler) RenderDefaults() RenderDefaults {
	return RenderDefaults{OutputFormat: blender.FormatPNG, EmitsProgress: true}
}
