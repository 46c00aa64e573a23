// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostbridge drives a long-lived Blender process through its
// embedded Python interpreter.
//
// The worker launches Blender once per session in background mode with
// a small bridge script and keeps it alive across tasks (sticky
// rendering: the scene is loaded once, then rendered many times). The
// bridge protocol is JSON lines on the Blender process's stdin/stdout:
// JSON because Blender's bundled Python only ships the stdlib codec.
// Protocol lines are marked with a sentinel prefix; everything else
// Blender prints (render progress, saved-file notices) passes through
// untouched so the adaptor's output scanner sees it.
package hostbridge

import (
	"context"

	"github.com/renderbeam/renderbeam/lib/blender"
)

// Host is the fixed surface of the host application the command
// handlers mutate. The production implementation is *Bridge; tests
// use *Fake.
type Host interface {
	// Version reports the host application's version string.
	Version(ctx context.Context) (string, error)

	// OpenScene loads a scene file. Called at most once per session.
	OpenScene(ctx context.Context, path string) error

	// SetRenderScene selects the named scene inside the open file.
	SetRenderScene(ctx context.Context, scene string) error

	// SetViewLayer enables exactly the named view layer for render.
	SetViewLayer(ctx context.Context, layer string) error

	// SetCamera selects the render camera. Fails if the camera does
	// not exist in the scene or is hidden from rendering.
	SetCamera(ctx context.Context, camera string) error

	// SetEngine selects the render engine.
	SetEngine(ctx context.Context, engine blender.Engine) error

	// SetOutputFormat selects the output image format.
	SetOutputFormat(ctx context.Context, format blender.OutputFormat) error

	// SetOutputPath sets the render output file path for the next
	// frame (after frame-token expansion).
	SetOutputPath(ctx context.Context, path string) error

	// RenderFrame renders one frame synchronously.
	RenderFrame(ctx context.Context, frame int) error

	// Close asks the host application to quit.
	Close(ctx context.Context) error
}
