// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package hostbridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// fakeScriptHost speaks the bridge protocol over pipes, standing in
// for the Python side. It answers every request and can interleave
// render-log lines before a response.
type fakeScriptHost struct {
	stdin  io.Reader
	stdout io.WriteCloser

	// logLinesBefore maps op name to lines printed before the
	// response, mimicking Blender's render output.
	logLinesBefore map[string][]string

	// failOps answer ok=false with this message.
	failOps map[string]string
}

func (h *fakeScriptHost) run() {
	defer h.stdout.Close()
	scanner := bufio.NewScanner(h.stdin)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		for _, line := range h.logLinesBefore[req.Op] {
			io.WriteString(h.stdout, line+"\n")
		}
		resp := response{ID: req.ID, OK: true}
		if message, fails := h.failOps[req.Op]; fails {
			resp = response{ID: req.ID, OK: false, Error: message}
		} else if req.Op == "version" {
			resp.Result = json.RawMessage(`{"version":"4.2.1"}`)
		}
		encoded, _ := json.Marshal(resp)
		io.WriteString(h.stdout, marker+string(encoded)+"\n")
		if req.Op == "close" {
			return
		}
	}
}

// syncBuffer is a goroutine-safe passthrough sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startFakeHost(t *testing.T, script *fakeScriptHost) (*Bridge, *syncBuffer) {
	t.Helper()
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	script.stdin = stdinReader
	script.stdout = stdoutWriter
	go script.run()

	passthrough := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newPipeBridge(stdinWriter, stdoutReader, passthrough, logger), passthrough
}

func TestBridgeVersionRoundTrip(t *testing.T) {
	bridge, _ := startFakeHost(t, &fakeScriptHost{})

	version, err := bridge.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "4.2.1" {
		t.Fatalf("version = %q", version)
	}
}

func TestBridgePassthroughPreservesRenderLog(t *testing.T) {
	script := &fakeScriptHost{
		logLinesBefore: map[string][]string{
			"render_frame": {
				"Fra:12 Mem:128.00M | Sample 64/128",
				"Saved: '/out/beauty_0012.png'",
			},
		},
	}
	bridge, passthrough := startFakeHost(t, script)

	if err := bridge.RenderFrame(context.Background(), 12); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	logged := passthrough.String()
	if !strings.Contains(logged, "Sample 64/128") {
		t.Fatalf("render progress missing from passthrough: %q", logged)
	}
	if strings.Contains(logged, marker) {
		t.Fatalf("protocol line leaked into passthrough: %q", logged)
	}
}

func TestBridgeFailureCarriesTraceback(t *testing.T) {
	script := &fakeScriptHost{
		failOps: map[string]string{
			"set_camera": "RuntimeError: camera 'Camera.004' does not exist",
		},
	}
	bridge, _ := startFakeHost(t, script)

	err := bridge.SetCamera(context.Background(), "Camera.004")
	var bridgeError *BridgeError
	if !errors.As(err, &bridgeError) {
		t.Fatalf("err = %v, want BridgeError", err)
	}
	if bridgeError.Op != "set_camera" {
		t.Fatalf("error names op %q", bridgeError.Op)
	}
	if !strings.Contains(bridgeError.Message, "Camera.004") {
		t.Fatalf("traceback lost: %q", bridgeError.Message)
	}
}

func TestBridgeHostExit(t *testing.T) {
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bridge := newPipeBridge(stdinWriter, stdoutReader, &syncBuffer{}, logger)

	// Host dies without answering.
	go func() {
		scanner := bufio.NewScanner(stdinReader)
		scanner.Scan()
		stdoutWriter.Close()
	}()

	err := bridge.OpenScene(context.Background(), "/scenes/shot010.blend")
	var exited *HostExitedError
	if !errors.As(err, &exited) {
		t.Fatalf("err = %v, want HostExitedError", err)
	}
}

func TestBridgeCloseAfterExitSucceeds(t *testing.T) {
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bridge := newPipeBridge(stdinWriter, stdoutReader, &syncBuffer{}, logger)

	go func() {
		bufio.NewScanner(stdinReader).Scan()
		stdoutWriter.Close()
	}()

	if err := bridge.Close(context.Background()); err != nil {
		t.Fatalf("Close after host exit: %v", err)
	}
}
