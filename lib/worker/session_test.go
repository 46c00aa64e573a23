// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/renderbeam/renderbeam/lib/hostbridge"
	"github.com/renderbeam/renderbeam/lib/ipc"
)

func testSession(t *testing.T) (*Session, *hostbridge.Fake, *bytes.Buffer) {
	t.Helper()
	host := hostbridge.NewFake()
	sentinels := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSession(host, sentinels, logger), host, sentinels
}

func dispatch(t *testing.T, session *Session, name string, args map[string]any) ipc.Result {
	t.Helper()
	result := session.Dispatch(context.Background(), ipc.Command{ID: 1, Name: name, Args: args})
	if !result.OK {
		t.Fatalf("command %q failed: %s", name, result.Error)
	}
	return result
}

func dispatchExpectFailure(t *testing.T, session *Session, name string, args map[string]any) ipc.Result {
	t.Helper()
	result := session.Dispatch(context.Background(), ipc.Command{ID: 1, Name: name, Args: args})
	if result.OK {
		t.Fatalf("command %q succeeded, want failure", name)
	}
	return result
}

func TestSessionCommandSequence(t *testing.T) {
	session, host, sentinels := testSession(t)

	dispatch(t, session, "render_engine", map[string]any{"render_engine": "cycles"})
	dispatch(t, session, "scene_file", map[string]any{"scene_file": "/scenes/shot010.blend"})
	dispatch(t, session, "render_scene", map[string]any{"render_scene": "Scene"})
	dispatch(t, session, "view_layer", map[string]any{"view_layer": "ViewLayer"})
	dispatch(t, session, "camera", map[string]any{"camera": "Camera.001"})
	dispatch(t, session, "output_dir", map[string]any{"output_dir": "/out"})
	dispatch(t, session, "output_file_name", map[string]any{"output_file_name": "beauty_####"})
	dispatch(t, session, "output_format", map[string]any{"output_format": "PNG"})
	dispatch(t, session, "start_render", map[string]any{"frame": 12})

	calls := host.CallNames()
	want := []string{
		"set_engine:CYCLES",
		"open_scene:/scenes/shot010.blend",
		"set_engine:CYCLES",
		"set_output_format:PNG",
		"set_render_scene:Scene",
		"set_view_layer:ViewLayer",
		"set_camera:Camera.001",
		"set_output_format:PNG",
		"set_output_path:" + filepath.Join("/out", "beauty_0012.png"),
		"render_frame:12",
	}
	if len(calls) != len(want) {
		t.Fatalf("host calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("host call %d = %q, want %q", i, calls[i], want[i])
		}
	}

	if !strings.Contains(sentinels.String(), "BlenderWorker: finished rendering frame 12") {
		t.Errorf("frame sentinel missing: %q", sentinels.String())
	}
}

func TestSessionEngineSelectedOnce(t *testing.T) {
	session, _, _ := testSession(t)

	dispatch(t, session, "render_engine", map[string]any{"render_engine": "eevee"})
	result := dispatchExpectFailure(t, session, "render_engine", map[string]any{"render_engine": "cycles"})
	if !strings.Contains(result.Error, "already selected") {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestSessionSceneOpenedOnce(t *testing.T) {
	session, host, _ := testSession(t)

	dispatch(t, session, "render_engine", map[string]any{"render_engine": "eevee"})
	dispatch(t, session, "scene_file", map[string]any{"scene_file": "/a.blend"})
	result := dispatchExpectFailure(t, session, "scene_file", map[string]any{"scene_file": "/b.blend"})
	if !strings.Contains(result.Error, "already opened") {
		t.Fatalf("error = %q", result.Error)
	}
	if host.CountCalls("open_scene") != 1 {
		t.Fatalf("open_scene called %d times", host.CountCalls("open_scene"))
	}
}

func TestSessionOrderingEnforced(t *testing.T) {
	session, _, _ := testSession(t)

	// Scene before engine.
	dispatchExpectFailure(t, session, "scene_file", map[string]any{"scene_file": "/a.blend"})

	// Render before scene.
	dispatch(t, session, "render_engine", map[string]any{"render_engine": "eevee"})
	dispatchExpectFailure(t, session, "start_render", map[string]any{"frame": 1})

	// Render before output_dir.
	dispatch(t, session, "scene_file", map[string]any{"scene_file": "/a.blend"})
	result := dispatchExpectFailure(t, session, "start_render", map[string]any{"frame": 1})
	if !strings.Contains(result.Error, "output directory") {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestSessionUnsupportedEngine(t *testing.T) {
	session, host, _ := testSession(t)

	result := dispatchExpectFailure(t, session, "render_engine", map[string]any{"render_engine": "renderman"})
	if !strings.Contains(result.Error, "unsupported render engine") {
		t.Fatalf("error = %q", result.Error)
	}
	if len(host.CallNames()) != 0 {
		t.Fatalf("host touched despite unsupported engine: %v", host.CallNames())
	}
}

func TestSessionUnknownCommand(t *testing.T) {
	session, _, _ := testSession(t)

	result := dispatchExpectFailure(t, session, "resolution", map[string]any{"x": 1920})
	if !strings.Contains(result.Error, `unknown command "resolution"`) {
		t.Fatalf("error = %q", result.Error)
	}
}

func TestSessionOutputPathWithoutPattern(t *testing.T) {
	session, host, _ := testSession(t)

	dispatch(t, session, "render_engine", map[string]any{"render_engine": "workbench"})
	dispatch(t, session, "scene_file", map[string]any{"scene_file": "/a.blend"})
	dispatch(t, session, "output_dir", map[string]any{"output_dir": "/out"})
	dispatch(t, session, "start_render", map[string]any{"frame": 3})

	// No explicit pattern or format: frame number plus the engine's
	// default format extension.
	wantPath := "set_output_path:" + filepath.Join("/out", "0003.png")
	found := false
	for _, call := range host.CallNames() {
		if call == wantPath {
			found = true
		}
	}
	if !found {
		t.Fatalf("output path call missing, calls = %v", host.CallNames())
	}
}

func TestDispatcherPanicContained(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := NewDispatcher(logger)
	dispatcher.Handle("explode", func(ctx context.Context, args map[string]any) (any, error) {
		panic("boom")
	})

	result := dispatcher.Dispatch(context.Background(), ipc.Command{ID: 9, Name: "explode"})
	if result.OK {
		t.Fatal("panicking handler reported success")
	}
	if !strings.Contains(result.Error, "panicked") {
		t.Fatalf("error = %q", result.Error)
	}
	if result.ID != 9 {
		t.Fatalf("result id = %d", result.ID)
	}
}

func TestStartRenderResultCarriesOutputPath(t *testing.T) {
	session, _, _ := testSession(t)

	dispatch(t, session, "render_engine", map[string]any{"render_engine": "eevee"})
	dispatch(t, session, "scene_file", map[string]any{"scene_file": "/a.blend"})
	dispatch(t, session, "output_dir", map[string]any{"output_dir": "/out"})
	dispatch(t, session, "output_file_name", map[string]any{"output_file_name": "f_###"})
	dispatch(t, session, "output_format", map[string]any{"output_format": "OPEN_EXR"})
	result := dispatch(t, session, "start_render", map[string]any{"frame": 7})

	if len(result.Data) == 0 {
		t.Fatal("start_render returned no data")
	}
}
