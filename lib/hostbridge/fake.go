// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package hostbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/renderbeam/renderbeam/lib/blender"
)

// Fake is an in-memory Host for tests. It records every call in order
// and can be told to fail specific operations.
type Fake struct {
	mu sync.Mutex

	// Calls records each operation as "op" or "op:argument".
	Calls []string

	// FailOn maps an operation name to the error it returns.
	FailOn map[string]error

	// VersionString is returned by Version. Defaults to "4.2.1".
	VersionString string

	// Cameras, if non-nil, is the set of cameras SetCamera accepts.
	Cameras map[string]bool

	closed bool
}

// NewFake returns a Fake with no configured failures.
func NewFake() *Fake {
	return &Fake{FailOn: map[string]error{}, VersionString: "4.2.1"}
}

func (f *Fake) record(op string, argument string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if argument == "" {
		f.Calls = append(f.Calls, op)
	} else {
		f.Calls = append(f.Calls, op+":"+argument)
	}
	return f.FailOn[op]
}

// CallNames returns a copy of the recorded call list.
func (f *Fake) CallNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// CountCalls reports how many recorded calls are for the given op.
func (f *Fake) CountCalls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.Calls {
		if call == op || len(call) > len(op) && call[:len(op)+1] == op+":" {
			count++
		}
	}
	return count
}

// Closed reports whether Close has been called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Version(ctx context.Context) (string, error) {
	if err := f.record("version", ""); err != nil {
		return "", err
	}
	return f.VersionString, nil
}

func (f *Fake) OpenScene(ctx context.Context, path string) error {
	return f.record("open_scene", path)
}

func (f *Fake) SetRenderScene(ctx context.Context, scene string) error {
	return f.record("set_render_scene", scene)
}

func (f *Fake) SetViewLayer(ctx context.Context, layer string) error {
	return f.record("set_view_layer", layer)
}

func (f *Fake) SetCamera(ctx context.Context, camera string) error {
	if err := f.record("set_camera", camera); err != nil {
		return err
	}
	if f.Cameras != nil && !f.Cameras[camera] {
		return fmt.Errorf("camera %q does not exist", camera)
	}
	return nil
}

func (f *Fake) SetEngine(ctx context.Context, engine blender.Engine) error {
	return f.record("set_engine", engine.BlenderIdentifier())
}

func (f *Fake) SetOutputFormat(ctx context.Context, format blender.OutputFormat) error {
	return f.record("set_output_format", string(format))
}

func (f *Fake) SetOutputPath(ctx context.Context, path string) error {
	return f.record("set_output_path", path)
}

func (f *Fake) RenderFrame(ctx context.Context, frame int) error {
	return f.record("render_frame", fmt.Sprintf("%d", frame))
}

func (f *Fake) Close(ctx context.Context) error {
	err := f.record("close", "")
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return err
}
