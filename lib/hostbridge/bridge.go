// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package hostbridge

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/renderbeam/renderbeam/lib/blender"
)

//go:embed bridge.py
var bridgeScript []byte

// marker prefixes protocol response lines on the host's stdout. Must
// match MARKER in bridge.py.
const marker = "@renderbeam-bridge "

// maxLogLine bounds a single host output line. Render logs are short;
// anything longer is almost certainly binary garbage.
const maxLogLine = 1 << 20

// HostExitedError reports that the host application exited while a
// request was outstanding or before one could be sent.
type HostExitedError struct {
	Err error
}

func (e *HostExitedError) Error() string {
	if e.Err == nil {
		return "host application exited"
	}
	return fmt.Sprintf("host application exited: %s", e.Err)
}

func (e *HostExitedError) Unwrap() error { return e.Err }

// BridgeError reports a failed operation inside the host application,
// carrying the bridge script's traceback text.
type BridgeError struct {
	Op      string
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("host operation %q failed: %s", e.Op, strings.TrimSpace(e.Message))
}

type request struct {
	ID     uint64         `json:"id"`
	Op     string         `json:"op"`
	Params map[string]any `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StartOptions configures a host application launch.
type StartOptions struct {
	// Executable is the host binary. Defaults to "blender".
	Executable string

	// ExtraArgs are appended after the standard background arguments,
	// before the script separator.
	ExtraArgs []string

	// Passthrough receives every host output line that is not a
	// protocol response, one line at a time. The worker points this at
	// its own stdout so the adaptor's scanner sees render progress.
	// Defaults to os.Stdout.
	Passthrough io.Writer

	// Dir is where the bridge script is materialized. Defaults to a
	// fresh temp directory removed when the bridge closes.
	Dir string

	Logger *slog.Logger
}

// Bridge is the production Host: one long-lived Blender process in
// background mode running the embedded bridge script.
type Bridge struct {
	logger      *slog.Logger
	stdin       io.WriteCloser
	passthrough io.Writer
	process     *exec.Cmd
	cleanup     func()

	// responses carries decoded protocol lines from the reader
	// goroutine. Closed on host stdout EOF.
	responses chan response
	readerErr error

	mu     sync.Mutex
	nextID uint64

	waitOnce sync.Once
	waitErr  error
}

// Start launches the host application and waits for the bridge script
// to come up (its first protocol response, to the version request,
// proves the loop is running). The returned Bridge is ready for
// commands.
func Start(ctx context.Context, opts StartOptions) (*Bridge, error) {
	executable := opts.Executable
	if executable == "" {
		executable = "blender"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	passthrough := opts.Passthrough
	if passthrough == nil {
		passthrough = os.Stdout
	}

	dir := opts.Dir
	cleanup := func() {}
	if dir == "" {
		tempDir, err := os.MkdirTemp("", "renderbeam-bridge")
		if err != nil {
			return nil, fmt.Errorf("creating bridge script directory: %w", err)
		}
		dir = tempDir
		cleanup = func() { os.RemoveAll(tempDir) }
	}

	scriptPath := filepath.Join(dir, "bridge.py")
	if err := os.WriteFile(scriptPath, bridgeScript, 0o600); err != nil {
		cleanup()
		return nil, fmt.Errorf("writing bridge script: %w", err)
	}

	args := []string{"--background"}
	args = append(args, opts.ExtraArgs...)
	args = append(args, "--python-use-system-env", "--python", scriptPath)

	process := exec.CommandContext(ctx, executable, args...)
	stdin, err := process.StdinPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("opening host stdin: %w", err)
	}
	stdout, err := process.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("opening host stdout: %w", err)
	}
	process.Stderr = passthrough

	if err := process.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("starting %s: %w", executable, err)
	}
	logger.Info("host application started", "executable", executable, "pid", process.Process.Pid)

	bridge := &Bridge{
		logger:      logger,
		stdin:       stdin,
		passthrough: passthrough,
		process:     process,
		cleanup:     cleanup,
		responses:   make(chan response, 1),
	}
	go bridge.readOutput(stdout)
	return bridge, nil
}

// newPipeBridge attaches a bridge to raw pipes. Used by tests to speak
// the protocol without a real host process.
func newPipeBridge(stdin io.WriteCloser, stdout io.Reader, passthrough io.Writer, logger *slog.Logger) *Bridge {
	bridge := &Bridge{
		logger:      logger,
		stdin:       stdin,
		passthrough: passthrough,
		responses:   make(chan response, 1),
	}
	go bridge.readOutput(stdout)
	return bridge
}

// readOutput splits host stdout into protocol responses and
// passthrough log lines.
func (b *Bridge) readOutput(stdout io.Reader) {
	defer close(b.responses)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)
	for scanner.Scan() {
		line := scanner.Text()
		body, isProtocol := strings.CutPrefix(line, marker)
		if !isProtocol {
			fmt.Fprintln(b.passthrough, line)
			continue
		}
		var decoded response
		if err := json.Unmarshal([]byte(body), &decoded); err != nil {
			b.logger.Warn("undecodable bridge response", "error", err)
			continue
		}
		b.responses <- decoded
	}
	b.readerErr = scanner.Err()
}

// call sends one request and blocks for its response. Calls are
// serialized: the bridge script is single-threaded.
func (b *Bridge) call(ctx context.Context, op string, params map[string]any, result any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	encoded, err := json.Marshal(request{ID: b.nextID, Op: op, Params: params})
	if err != nil {
		return fmt.Errorf("encoding %q request: %w", op, err)
	}
	if _, err := b.stdin.Write(append(encoded, '\n')); err != nil {
		return &HostExitedError{Err: err}
	}

	for {
		select {
		case decoded, open := <-b.responses:
			if !open {
				return &HostExitedError{Err: b.readerErr}
			}
			if decoded.ID != b.nextID {
				b.logger.Warn("bridge response id mismatch", "got", decoded.ID, "want", b.nextID)
				continue
			}
			if !decoded.OK {
				return &BridgeError{Op: op, Message: decoded.Error}
			}
			if result != nil && len(decoded.Result) > 0 {
				if err := json.Unmarshal(decoded.Result, result); err != nil {
					return fmt.Errorf("decoding %q result: %w", op, err)
				}
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Version implements Host.
func (b *Bridge) Version(ctx context.Context) (string, error) {
	var result struct {
		Version string `json:"version"`
	}
	if err := b.call(ctx, "version", nil, &result); err != nil {
		return "", err
	}
	return result.Version, nil
}

// OpenScene implements Host.
func (b *Bridge) OpenScene(ctx context.Context, path string) error {
	return b.call(ctx, "open_scene", map[string]any{"path": path}, nil)
}

// SetRenderScene implements Host.
func (b *Bridge) SetRenderScene(ctx context.Context, scene string) error {
	return b.call(ctx, "set_render_scene", map[string]any{"scene": scene}, nil)
}

// SetViewLayer implements Host.
func (b *Bridge) SetViewLayer(ctx context.Context, layer string) error {
	return b.call(ctx, "set_view_layer", map[string]any{"layer": layer}, nil)
}

// SetCamera implements Host.
func (b *Bridge) SetCamera(ctx context.Context, camera string) error {
	return b.call(ctx, "set_camera", map[string]any{"camera": camera}, nil)
}

// SetEngine implements Host.
func (b *Bridge) SetEngine(ctx context.Context, engine blender.Engine) error {
	return b.call(ctx, "set_engine", map[string]any{"engine": engine.BlenderIdentifier()}, nil)
}

// SetOutputFormat implements Host.
func (b *Bridge) SetOutputFormat(ctx context.Context, format blender.OutputFormat) error {
	return b.call(ctx, "set_output_format", map[string]any{"format": string(format)}, nil)
}

// SetOutputPath implements Host.
func (b *Bridge) SetOutputPath(ctx context.Context, path string) error {
	return b.call(ctx, "set_output_path", map[string]any{"path": path}, nil)
}

// RenderFrame implements Host.
func (b *Bridge) RenderFrame(ctx context.Context, frame int) error {
	return b.call(ctx, "render_frame", map[string]any{"frame": frame}, nil)
}

// Close implements Host. The close op makes the bridge script exit its
// loop and quit the host; the process reaping happens in Wait.
func (b *Bridge) Close(ctx context.Context) error {
	err := b.call(ctx, "close", nil, nil)
	b.stdin.Close()
	if b.cleanup != nil {
		b.cleanup()
	}
	// A host that already exited is a successful close.
	var exited *HostExitedError
	if err != nil && !errors.As(err, &exited) {
		return err
	}
	return nil
}

// Wait reaps the host process. Safe to call more than once.
func (b *Bridge) Wait() error {
	b.waitOnce.Do(func() {
		if b.process != nil {
			b.waitErr = b.process.Wait()
		}
	})
	return b.waitErr
}

// Kill forcibly terminates the host process.
func (b *Bridge) Kill() error {
	if b.process == nil || b.process.Process == nil {
		return nil
	}
	return b.process.Process.Kill()
}

// PID reports the host process id, or 0 before launch.
func (b *Bridge) PID() int {
	if b.process == nil || b.process.Process == nil {
		return 0
	}
	return b.process.Process.Pid
}
