// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package adaptor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/renderbeam/renderbeam/lib/blender"
	"github.com/renderbeam/renderbeam/lib/codec"
	"github.com/renderbeam/renderbeam/lib/ipc"
)

// PingStatus is the control socket's ping response.
type PingStatus struct {
	State          string `cbor:"state"`
	PID            int    `cbor:"pid"`
	HostVersion    string `cbor:"host_version,omitempty"`
	FramesRendered int    `cbor:"frames_rendered"`
}

// RunStatus is the control socket's run response.
type RunStatus struct {
	Frame int    `cbor:"frame"`
	State string `cbor:"state"`
}

// ControlServer exposes a running session on the daemon's control
// socket (the one the connection file describes): ping for liveness,
// run to execute a task, stop to request shutdown.
type ControlServer struct {
	session *Session
	server  *ipc.SocketServer
	logger  *slog.Logger

	stopOnce      sync.Once
	stopRequested chan struct{}
}

// NewControlServer creates the control server for a session.
func NewControlServer(socketPath string, session *Session, logger *slog.Logger) *ControlServer {
	control := &ControlServer{
		session:       session,
		server:        ipc.NewSocketServer(socketPath, logger),
		logger:        logger,
		stopRequested: make(chan struct{}),
	}
	control.server.Handle("ping", control.handlePing)
	control.server.Handle("run", control.handleRun)
	control.server.Handle("stop", control.handleStop)
	return control
}

// Serve runs the control socket until ctx is cancelled.
func (c *ControlServer) Serve(ctx context.Context) error {
	return c.server.Serve(ctx)
}

// Listening is closed once the control socket is bound.
func (c *ControlServer) Listening() <-chan struct{} {
	return c.server.Listening()
}

// StopRequested is closed when a stop action arrives. The daemon's
// main loop stops the session and exits when it fires.
func (c *ControlServer) StopRequested() <-chan struct{} {
	return c.stopRequested
}

func (c *ControlServer) handlePing(ctx context.Context, raw []byte) (any, error) {
	return PingStatus{
		State:          c.session.State().String(),
		PID:            os.Getpid(),
		HostVersion:    c.session.HostVersion(),
		FramesRendered: c.session.FramesRendered(),
	}, nil
}

func (c *ControlServer) handleRun(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Frame int `cbor:"frame"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding run request: %w", err)
	}
	if request.Frame < 0 {
		return nil, fmt.Errorf("frame %d is negative", request.Frame)
	}

	if err := c.session.Run(ctx, &blender.RunData{Frame: request.Frame}); err != nil {
		return nil, err
	}
	return RunStatus{Frame: request.Frame, State: c.session.State().String()}, nil
}

func (c *ControlServer) handleStop(ctx context.Context, raw []byte) (any, error) {
	c.logger.Info("stop requested over control socket")
	c.stopOnce.Do(func() { close(c.stopRequested) })
	return nil, nil
}

// ControlClient is the frontend side of the control socket, resolved
// from a connection file.
type ControlClient struct {
	client *ipc.Client
}

// NewControlClient creates a client for the daemon whose control
// socket the connection file describes.
func NewControlClient(connectionFilePath string) (*ControlClient, error) {
	connection, err := ipc.ReadConnectionFile(connectionFilePath)
	if err != nil {
		return nil, err
	}
	return &ControlClient{client: ipc.NewClient(connection.Socket)}, nil
}

// Ping queries the daemon's state.
func (c *ControlClient) Ping(ctx context.Context) (*PingStatus, error) {
	var status PingStatus
	if err := c.client.Call(ctx, "ping", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RunFrame executes one render task on the daemon, blocking until it
// completes. Callers should set a generous ctx deadline; renders can
// take hours.
func (c *ControlClient) RunFrame(ctx context.Context, frame int) (*RunStatus, error) {
	var status RunStatus
	if err := c.client.Call(ctx, "run", map[string]any{"frame": frame}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Stop asks the daemon to shut down.
func (c *ControlClient) Stop(ctx context.Context) error {
	return c.client.Call(ctx, "stop", nil, nil)
}
