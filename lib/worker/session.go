// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/renderbeam/renderbeam/lib/blender"
	"github.com/renderbeam/renderbeam/lib/hostbridge"
	"github.com/renderbeam/renderbeam/lib/ipc"
	"github.com/renderbeam/renderbeam/lib/scan"
)

// Session is one sticky render session: a single host application
// instance serving a sequence of commands from the adaptor. The render
// engine is selected once, the scene is opened once, and every
// subsequent task reuses both.
type Session struct {
	logger     *slog.Logger
	host       hostbridge.Host
	dispatcher *Dispatcher

	// sentinelOut receives the scan sentinels (version, frame
	// complete). The worker binary points this at its stdout, which the
	// adaptor pipes through its output scanner.
	sentinelOut io.Writer

	mu          sync.Mutex
	handler     RenderHandler
	sceneOpened bool
	output      blender.InitData
}

// NewSession wires a session around a host. sentinelOut is where scan
// sentinels are printed.
func NewSession(host hostbridge.Host, sentinelOut io.Writer, logger *slog.Logger) *Session {
	session := &Session{
		logger:      logger,
		host:        host,
		dispatcher:  NewDispatcher(logger),
		sentinelOut: sentinelOut,
	}
	session.dispatcher.Handle("render_engine", session.handleRenderEngine)
	session.dispatcher.Handle("scene_file", session.handleSceneFile)
	session.dispatcher.Handle("render_scene", session.handleRenderScene)
	session.dispatcher.Handle("view_layer", session.handleViewLayer)
	session.dispatcher.Handle("camera", session.handleCamera)
	session.dispatcher.Handle("output_dir", session.handleOutputDir)
	session.dispatcher.Handle("output_file_name", session.handleOutputFileName)
	session.dispatcher.Handle("output_format", session.handleOutputFormat)
	session.dispatcher.Handle("start_render", session.handleStartRender)
	session.dispatcher.Handle("close", session.handleClose)
	return session
}

// Dispatch routes one command. Exposed for the serve loop and tests.
func (s *Session) Dispatch(ctx context.Context, command ipc.Command) ipc.Result {
	return s.dispatcher.Dispatch(ctx, command)
}

// Serve announces the worker to the adaptor, prints the host version
// sentinel, then polls for commands until close or failure.
func (s *Session) Serve(ctx context.Context, client *ipc.ChannelClient) error {
	if err := client.Hello(ctx, os.Getpid()); err != nil {
		return fmt.Errorf("announcing worker: %w", err)
	}

	version, err := s.host.Version(ctx)
	if err != nil {
		return fmt.Errorf("querying host version: %w", err)
	}
	fmt.Fprintf(s.sentinelOut, scan.VersionSentinel+"\n", version)
	s.logger.Info("session started", "host_version", version)

	for {
		command, err := client.NextCommand(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("polling for command: %w", err)
		}
		if command == nil {
			continue
		}

		s.logger.Debug("executing command", "command", command.Name, "id", command.ID)
		result := s.Dispatch(ctx, *command)
		if err := client.PostResult(ctx, result); err != nil {
			return fmt.Errorf("posting result for %q: %w", command.Name, err)
		}
		if command.Name == "close" && result.OK {
			return nil
		}
	}
}

func (s *Session) handleRenderEngine(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "render_engine")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	selected := s.handler
	s.mu.Unlock()
	if selected != nil {
		return nil, fmt.Errorf("render engine already selected (%s); the engine is fixed for the session", selected.Engine())
	}

	handler, err := HandlerFor(name)
	if err != nil {
		return nil, err
	}
	if err := handler.PrepareOptions(ctx, s.host); err != nil {
		return nil, err
	}
	s.logger.Info("render engine selected",
		"engine", handler.Engine(),
		"emits_progress", handler.RenderDefaults().EmitsProgress)

	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
	return nil, nil
}

func (s *Session) handleSceneFile(ctx context.Context, args map[string]any) (any, error) {
	path, err := stringArg(args, "scene_file")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	handler, opened := s.handler, s.sceneOpened
	s.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("render engine must be selected before opening a scene")
	}
	if opened {
		return nil, fmt.Errorf("scene already opened; a session renders a single scene file")
	}

	if err := s.host.OpenScene(ctx, path); err != nil {
		return nil, err
	}

	// Opening a file resets scene state, so the engine selection must
	// be reapplied.
	if err := handler.PrepareOptions(ctx, s.host); err != nil {
		return nil, err
	}

	// Engine defaults apply now; a later output_format command
	// overrides them.
	defaults := handler.RenderDefaults()
	if err := s.host.SetOutputFormat(ctx, defaults.OutputFormat); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sceneOpened = true
	if s.output.OutputFormat == "" {
		s.output.OutputFormat = string(defaults.OutputFormat)
	}
	s.mu.Unlock()
	return nil, nil
}

func (s *Session) handleRenderScene(ctx context.Context, args map[string]any) (any, error) {
	scene, err := stringArg(args, "render_scene")
	if err != nil {
		return nil, err
	}
	return nil, s.host.SetRenderScene(ctx, scene)
}

func (s *Session) handleViewLayer(ctx context.Context, args map[string]any) (any, error) {
	layer, err := stringArg(args, "view_layer")
	if err != nil {
		return nil, err
	}
	return nil, s.host.SetViewLayer(ctx, layer)
}

func (s *Session) handleCamera(ctx context.Context, args map[string]any) (any, error) {
	camera, err := stringArg(args, "camera")
	if err != nil {
		return nil, err
	}
	return nil, s.host.SetCamera(ctx, camera)
}

func (s *Session) handleOutputDir(ctx context.Context, args map[string]any) (any, error) {
	dir, err := stringArg(args, "output_dir")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.output.OutputDir = dir
	s.mu.Unlock()
	return nil, nil
}

func (s *Session) handleOutputFileName(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "output_file_name")
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.output.OutputFileName = name
	s.mu.Unlock()
	return nil, nil
}

func (s *Session) handleOutputFormat(ctx context.Context, args map[string]any) (any, error) {
	name, err := stringArg(args, "output_format")
	if err != nil {
		return nil, err
	}
	format, err := blender.ParseOutputFormat(name)
	if err != nil {
		return nil, err
	}
	if err := s.host.SetOutputFormat(ctx, format); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.output.OutputFormat = string(format)
	s.mu.Unlock()
	return nil, nil
}

// renderResult is the start_render result payload: the frame and where
// it landed, for the adaptor's output manifest.
type renderResult struct {
	Frame  int    `cbor:"frame"`
	Output string `cbor:"output"`
}

func (s *Session) handleStartRender(ctx context.Context, args map[string]any) (any, error) {
	frame, err := intArg(args, "frame")
	if err != nil {
		return nil, err
	}
	if frame < 0 {
		return nil, fmt.Errorf("frame %d is negative", frame)
	}

	s.mu.Lock()
	handler, opened, output := s.handler, s.sceneOpened, s.output
	s.mu.Unlock()
	if handler == nil {
		return nil, fmt.Errorf("render engine not selected")
	}
	if !opened {
		return nil, fmt.Errorf("no scene opened")
	}
	if output.OutputDir == "" {
		return nil, fmt.Errorf("output directory not configured")
	}

	outputPath := output.OutputPath(frame)
	if err := s.host.SetOutputPath(ctx, outputPath); err != nil {
		return nil, err
	}
	if err := s.host.RenderFrame(ctx, frame); err != nil {
		return nil, err
	}

	fmt.Fprintf(s.sentinelOut, scan.FrameCompleteSentinel+"\n", frame)
	s.logger.Info("frame rendered", "frame", frame, "output", outputPath)
	return renderResult{Frame: frame, Output: outputPath}, nil
}

func (s *Session) handleClose(ctx context.Context, args map[string]any) (any, error) {
	return nil, s.host.Close(ctx)
}
