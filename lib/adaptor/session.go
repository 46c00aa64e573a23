// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package adaptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/renderbeam/renderbeam/lib/blender"
	"github.com/renderbeam/renderbeam/lib/clock"
	"github.com/renderbeam/renderbeam/lib/codec"
	"github.com/renderbeam/renderbeam/lib/ipc"
	"github.com/renderbeam/renderbeam/lib/manifest"
	"github.com/renderbeam/renderbeam/lib/scan"
)

const (
	// DefaultStartupTimeout bounds worker launch plus scene open. Large
	// scenes over network storage legitimately take a long time.
	DefaultStartupTimeout = time.Hour

	// DefaultStopGrace is how long Stop waits after the close command
	// before force-killing the worker.
	DefaultStopGrace = 30 * time.Second

	// ManifestFileName is written into the output directory at stop.
	ManifestFileName = "render_manifest.yaml"

	// recentLineCount is how many output lines are kept for attaching
	// to fatal errors.
	recentLineCount = 10
)

// Options configures a Session.
type Options struct {
	Init *blender.InitData

	// ChannelSocket is the Unix socket path for the command channel.
	ChannelSocket string

	Launcher Launcher
	Clock    clock.Clock
	Logger   *slog.Logger
	Reporter StatusReporter

	// StartupTimeout bounds Start; zero means DefaultStartupTimeout.
	StartupTimeout time.Duration

	// TaskTimeout bounds a single Run via context deadline; zero means
	// unbounded.
	TaskTimeout time.Duration

	// StopGrace bounds graceful shutdown; zero means DefaultStopGrace.
	StopGrace time.Duration
}

// Session is one sticky render session from the farm's side: one
// worker process (hence one Blender instance and one opened scene)
// serving sequential render tasks.
type Session struct {
	init     *blender.InitData
	launcher Launcher
	clk      clock.Clock
	logger   *slog.Logger
	reporter StatusReporter

	channelSocket  string
	startupTimeout time.Duration
	taskTimeout    time.Duration
	stopGrace      time.Duration

	channel     *ipc.ChannelServer
	serveCancel context.CancelFunc
	serveDone   chan struct{}
	scanDone    chan struct{}
	output      *io.PipeWriter

	process     Process
	processExit *processExit

	// fatal is closed by the event pump on the first fatal-classified
	// output line.
	fatal     chan struct{}
	fatalOnce sync.Once

	outputs *manifest.Builder

	mu             sync.Mutex
	state          State
	fatalLine      string
	recentLines    []string
	hostVersion    string
	warnings       int
	framesRendered int
}

// processExit lets multiple waiters observe the worker's exit.
type processExit struct {
	done chan struct{}
	err  error
}

// New creates a session. Init data must already be validated.
func New(opts Options) (*Session, error) {
	if opts.Init == nil {
		return nil, fmt.Errorf("adaptor: init data is required")
	}
	if err := opts.Init.Validate(); err != nil {
		return nil, fmt.Errorf("adaptor: %w", err)
	}
	if opts.ChannelSocket == "" {
		return nil, fmt.Errorf("adaptor: channel socket path is required")
	}
	if opts.Launcher == nil {
		return nil, fmt.Errorf("adaptor: launcher is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}
	startupTimeout := opts.StartupTimeout
	if startupTimeout == 0 {
		startupTimeout = DefaultStartupTimeout
	}
	stopGrace := opts.StopGrace
	if stopGrace == 0 {
		stopGrace = DefaultStopGrace
	}

	return &Session{
		init:           opts.Init,
		launcher:       opts.Launcher,
		clk:            clk,
		logger:         logger,
		reporter:       reporter,
		channelSocket:  opts.ChannelSocket,
		startupTimeout: startupTimeout,
		taskTimeout:    opts.TaskTimeout,
		stopGrace:      stopGrace,
		serveDone:      make(chan struct{}),
		scanDone:       make(chan struct{}),
		fatal:          make(chan struct{}),
		outputs:        manifest.NewBuilder(clk),
		state:          StateNotStarted,
	}, nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	previous := s.state
	s.state = next
	s.mu.Unlock()
	if previous != next {
		s.logger.Info("session state changed", "from", previous, "to", next)
	}
}

// Start launches the worker, waits for readiness, and sends the init
// command sequence. On return the session is Ready, or terminally
// Failed with the returned error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		state := s.state
		s.mu.Unlock()
		return &StateError{Op: "start", State: state}
	}
	s.state = StateStarting
	s.mu.Unlock()
	s.logger.Info("session state changed", "from", StateNotStarted, "to", StateStarting)
	s.reporter.Status("starting host application")

	if err := s.startPlumbing(ctx); err != nil {
		s.setState(StateFailed)
		return err
	}

	// Readiness: worker connected (hello) and scene opened by the init
	// sequence below. The timeout covers both.
	ready := s.clk.After(s.startupTimeout)
	select {
	case <-s.channel.Ready():
	case <-ready:
		s.failStartup()
		return &StartupTimeoutError{Timeout: s.startupTimeout}
	case <-s.processExit.done:
		s.failStartup()
		return &HostProcessCrashError{Err: s.processExit.err}
	case <-ctx.Done():
		s.failStartup()
		return ctx.Err()
	}

	s.reporter.Status("configuring render session")
	if err := s.sendInitSequence(ctx, ready); err != nil {
		s.failStartup()
		return err
	}

	if err := s.checkFatal(); err != nil {
		s.failStartup()
		return err
	}

	s.setState(StateReady)
	s.reporter.Status("session ready")
	return nil
}

// startPlumbing brings up the channel server, the output scanner, and
// the worker process.
func (s *Session) startPlumbing(ctx context.Context) error {
	serveCtx, cancel := context.WithCancel(context.Background())
	s.serveCancel = cancel

	s.channel = ipc.NewChannelServer(s.channelSocket, s.logger)
	go func() {
		defer close(s.serveDone)
		if err := s.channel.Serve(serveCtx); err != nil {
			s.logger.Error("channel server failed", "error", err)
		}
	}()

	select {
	case <-s.channel.Listening():
	case <-s.serveDone:
		return fmt.Errorf("channel server exited before listening on %s", s.channelSocket)
	case <-ctx.Done():
		return ctx.Err()
	}

	reader, writer := io.Pipe()
	s.output = writer
	events := make(chan scan.Event, 64)
	scanner := scan.New(scan.BlenderRules(), s.init.StrictErrorChecking)
	go func() {
		if err := scanner.Run(serveCtx, reader, events); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("output scanner failed", "error", err)
		}
		close(events)
	}()
	go s.pumpEvents(events)

	process, err := s.launcher.Launch(ctx, s.channelSocket, writer)
	if err != nil {
		return fmt.Errorf("launching worker: %w", err)
	}
	s.process = process
	s.processExit = &processExit{done: make(chan struct{})}
	go func(exit *processExit) {
		exit.err = process.Wait()
		close(exit.done)
	}(s.processExit)
	return nil
}

// sendInitSequence pushes the session configuration to the worker in
// the fixed order: engine first (handler selection), scene second,
// then the optional keys.
func (s *Session) sendInitSequence(ctx context.Context, deadline <-chan time.Time) error {
	commands := []struct {
		name  string
		value string
		send  bool
	}{
		{"render_engine", s.init.RenderEngine, true},
		{"scene_file", s.init.SceneFile, true},
		{"render_scene", s.init.RenderScene, s.init.RenderScene != ""},
		{"view_layer", s.init.ViewLayer, s.init.ViewLayer != ""},
		{"camera", s.init.Camera, s.init.Camera != ""},
		{"output_dir", s.init.OutputDir, true},
		{"output_file_name", s.init.OutputFileName, s.init.OutputFileName != ""},
		{"output_format", s.init.OutputFormat, s.init.OutputFormat != ""},
	}

	for _, command := range commands {
		if !command.send {
			continue
		}
		if err := s.sendWithDeadline(ctx, deadline, command.name, map[string]any{command.name: command.value}); err != nil {
			return fmt.Errorf("init command %q: %w", command.name, err)
		}
	}
	return nil
}

// sendWithDeadline issues one command, also honoring the startup
// deadline channel and worker crash.
func (s *Session) sendWithDeadline(ctx context.Context, deadline <-chan time.Time, name string, args map[string]any) error {
	done := make(chan error, 1)
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, err := s.channel.SendCommand(sendCtx, name, args)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-deadline:
		cancel()
		return &StartupTimeoutError{Timeout: s.startupTimeout}
	case <-s.processExit.done:
		cancel()
		return &HostProcessCrashError{Err: s.processExit.err}
	case <-s.fatal:
		cancel()
		return s.scannedFatal()
	}
}

// Run executes one render task: the camera override (when configured)
// followed by start_render, blocking until the worker reports the
// frame done, a fatal output line, a worker crash, or the per-task
// timeout.
func (s *Session) Run(ctx context.Context, run *blender.RunData) error {
	s.mu.Lock()
	if !s.state.acceptsTask() {
		state := s.state
		s.mu.Unlock()
		return &StateError{Op: "run task", State: state}
	}
	s.state = StateRendering
	s.mu.Unlock()
	s.logger.Info("session state changed", "to", StateRendering, "frame", run.Frame)

	err := s.runTask(ctx, run)
	switch {
	case err == nil:
		s.setState(StateIdle)
	case isSessionFatal(err):
		s.setState(StateFailed)
	default:
		// The task failed but the session survives (e.g. a bad camera
		// name from run data).
		s.setState(StateIdle)
	}
	return err
}

func (s *Session) runTask(ctx context.Context, run *blender.RunData) error {
	if s.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.taskTimeout)
		defer cancel()
	}

	s.reporter.Progress(0)
	s.reporter.Status(fmt.Sprintf("rendering frame %d", run.Frame))

	if s.init.Camera != "" {
		if err := s.sendTaskCommand(ctx, "camera", map[string]any{"camera": s.init.Camera}, nil); err != nil {
			return fmt.Errorf("camera command: %w", err)
		}
	}

	var result struct {
		Frame  int    `cbor:"frame"`
		Output string `cbor:"output"`
	}
	if err := s.sendTaskCommand(ctx, "start_render", map[string]any{"frame": run.Frame}, &result); err != nil {
		return fmt.Errorf("rendering frame %d: %w", run.Frame, err)
	}

	s.mu.Lock()
	s.framesRendered++
	s.mu.Unlock()
	if result.Output != "" {
		s.outputs.Record(result.Frame, result.Output)
	}
	s.reporter.Progress(100)
	s.reporter.Status(fmt.Sprintf("frame %d complete", run.Frame))
	return nil
}

// sendTaskCommand issues one task command, racing it against fatal
// output lines and worker crash.
func (s *Session) sendTaskCommand(ctx context.Context, name string, args map[string]any, result any) error {
	type outcome struct {
		data codec.RawMessage
		err  error
	}
	done := make(chan outcome, 1)
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		data, err := s.channel.SendCommand(sendCtx, name, args)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return out.err
		}
		if result != nil && len(out.data) > 0 {
			if err := codec.Unmarshal(out.data, result); err != nil {
				return fmt.Errorf("decoding %q result: %w", name, err)
			}
		}
		return nil
	case <-s.fatal:
		cancel()
		return s.scannedFatal()
	case <-s.processExit.done:
		cancel()
		return &HostProcessCrashError{Err: s.processExit.err}
	}
}

// Stop shuts the session down: close command, grace period, then force
// kill. Also writes the output manifest and logs the session summary.
// Safe to call after failure; idempotent.
func (s *Session) Stop(ctx context.Context) error {
	return s.shutdown(ctx, s.stopGrace)
}

// Cancel is Stop without patience: the worker is killed immediately.
func (s *Session) Cancel() {
	s.shutdown(context.Background(), 0)
}

func (s *Session) shutdown(ctx context.Context, grace time.Duration) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateStopping:
		s.mu.Unlock()
		return nil
	case StateNotStarted:
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	wasFailed := s.state == StateFailed
	s.state = StateStopping
	s.mu.Unlock()
	s.logger.Info("session state changed", "to", StateStopping)
	s.reporter.Status("stopping host application")

	if s.process != nil {
		exited := false
		select {
		case <-s.processExit.done:
			exited = true
		default:
		}

		if !exited && grace > 0 {
			closeCtx, cancel := context.WithTimeout(ctx, grace)
			if _, err := s.channel.SendCommand(closeCtx, "close", nil); err != nil {
				s.logger.Warn("close command failed", "error", err)
			}
			cancel()
		}

		if !exited {
			select {
			case <-s.processExit.done:
			case <-s.clk.After(grace):
				s.logger.Warn("worker did not exit in time, killing", "pid", s.process.PID())
				if err := s.process.Kill(); err != nil {
					s.logger.Error("killing worker failed", "error", err)
				}
				<-s.processExit.done
			}
		}
	}

	if s.serveCancel != nil {
		s.serveCancel()
		<-s.serveDone
	}
	if s.output != nil {
		s.output.Close()
		<-s.scanDone
	}

	s.writeManifest()
	s.logSummary()

	if wasFailed {
		s.setState(StateFailed)
	} else {
		s.setState(StateStopped)
	}
	return nil
}

// writeManifest records what the session produced. Failure to write it
// never fails the stop: the frames themselves are already on disk.
func (s *Session) writeManifest() {
	if s.outputs.Len() == 0 {
		return
	}
	path := filepath.Join(s.init.OutputDir, ManifestFileName)
	if err := s.outputs.Write(path); err != nil {
		s.logger.Error("writing output manifest failed", "path", path, "error", err)
		return
	}
	s.logger.Info("output manifest written", "path", path, "frames", s.outputs.Len())
}

func (s *Session) logSummary() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("session summary",
		"frames_rendered", s.framesRendered,
		"warnings", s.warnings,
		"host_version", s.hostVersion)
}

// Warnings reports how many warning-class lines were scanned
// (non-strict sessions only; strict sessions fail on the first).
func (s *Session) Warnings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warnings
}

// HostVersion reports the Blender version scanned from the worker's
// output, or empty before the version line appears.
func (s *Session) HostVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostVersion
}

// FramesRendered reports completed task count.
func (s *Session) FramesRendered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesRendered
}

// pumpEvents consumes scanner events until the events channel closes.
func (s *Session) pumpEvents(events <-chan scan.Event) {
	defer close(s.scanDone)
	for event := range events {
		s.mu.Lock()
		s.recentLines = append(s.recentLines, event.Line)
		if len(s.recentLines) > recentLineCount {
			s.recentLines = s.recentLines[1:]
		}
		s.mu.Unlock()

		switch event.Kind {
		case scan.KindProgress:
			s.reporter.Progress(event.Percent)
		case scan.KindFrameComplete:
			s.logger.Info("frame complete", "frame", event.Frame)
		case scan.KindWarning:
			s.mu.Lock()
			s.warnings++
			s.mu.Unlock()
			s.logger.Warn("warning in render output", "line", event.Line)
		case scan.KindFatal:
			s.logger.Error("fatal line in render output", "line", event.Line)
			s.mu.Lock()
			if s.fatalLine == "" {
				s.fatalLine = event.Line
			}
			s.mu.Unlock()
			s.fatalOnce.Do(func() { close(s.fatal) })
		case scan.KindVersion:
			s.mu.Lock()
			s.hostVersion = event.Version
			s.mu.Unlock()
			s.logger.Info("host application version", "version", event.Version)
		default:
			s.logger.Debug("host output", "line", event.Line)
		}
	}
}

// checkFatal returns the scanned fatal error if one arrived.
func (s *Session) checkFatal() error {
	select {
	case <-s.fatal:
		return s.scannedFatal()
	default:
		return nil
	}
}

func (s *Session) scannedFatal() *ScannedFatalError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &ScannedFatalError{
		Line:   s.fatalLine,
		Recent: append([]string(nil), s.recentLines...),
	}
}

// failStartup tears down plumbing after a failed Start.
func (s *Session) failStartup() {
	if s.process != nil {
		s.process.Kill()
		<-s.processExit.done
	}
	if s.serveCancel != nil {
		s.serveCancel()
		<-s.serveDone
	}
	if s.output != nil {
		s.output.Close()
		<-s.scanDone
	}
	s.setState(StateFailed)
}

// isSessionFatal reports whether a task error ends the session.
func isSessionFatal(err error) bool {
	var scanned *ScannedFatalError
	var crashed *HostProcessCrashError
	var timedOut *ipc.ChannelTimeoutError
	return errors.As(err, &scanned) || errors.As(err, &crashed) || errors.As(err, &timedOut)
}
