// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/renderbeam/renderbeam/lib/codec"
)

// pollHold is how long a next-command request is held open waiting
// for a command before the server answers "none" and the worker polls
// again. Kept well under the client's response read timeout.
const pollHold = 10 * time.Second

// ChannelServer is the adaptor's end of the command channel. The
// worker long-polls "next-command" and posts "command-result"; the
// adaptor calls SendCommand, which blocks until the matching result
// arrives.
//
// Exactly one command is in flight at a time: the lifecycle controller
// serializes tasks, and SendCommand additionally serializes under a
// mutex so a misuse cannot interleave results.
type ChannelServer struct {
	server *SocketServer
	logger *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}

	// sendMu enforces the one-command-in-flight contract.
	sendMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	queue   chan Command
	pending map[uint64]chan Result
}

// NewChannelServer creates the channel server for the given socket
// path. Call Serve to start it.
func NewChannelServer(socketPath string, logger *slog.Logger) *ChannelServer {
	channel := &ChannelServer{
		server:  NewSocketServer(socketPath, logger),
		logger:  logger,
		ready:   make(chan struct{}),
		queue:   make(chan Command, 1),
		pending: make(map[uint64]chan Result),
	}
	channel.server.Handle("hello", channel.handleHello)
	channel.server.Handle("next-command", channel.handleNextCommand)
	channel.server.Handle("command-result", channel.handleCommandResult)
	return channel
}

// Serve runs the underlying socket server until ctx is cancelled.
func (c *ChannelServer) Serve(ctx context.Context) error {
	return c.server.Serve(ctx)
}

// Listening is closed once the channel socket is bound.
func (c *ChannelServer) Listening() <-chan struct{} {
	return c.server.Listening()
}

// Ready is closed when the worker has sent its hello, i.e. the
// companion process is connected and polling. The adaptor's startup
// phase blocks on this (with a timeout) before declaring the session
// ready.
func (c *ChannelServer) Ready() <-chan struct{} {
	return c.ready
}

// SendCommand queues a command for the worker and blocks until its
// result, the context deadline, or cancellation. A worker failure
// result returns *CommandError; a deadline hit returns
// *ChannelTimeoutError.
func (c *ChannelServer) SendCommand(ctx context.Context, name string, args map[string]any) (codec.RawMessage, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	c.nextID++
	command := Command{ID: c.nextID, Name: name, Args: args}
	resultChannel := make(chan Result, 1)
	c.pending[command.ID] = resultChannel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, command.ID)
		c.mu.Unlock()
	}()

	select {
	case c.queue <- command:
	case <-ctx.Done():
		return nil, c.deadlineError(ctx, name)
	}

	select {
	case result := <-resultChannel:
		if !result.OK {
			return nil, &CommandError{Name: name, Message: result.Error}
		}
		return result.Data, nil
	case <-ctx.Done():
		return nil, c.deadlineError(ctx, name)
	}
}

// deadlineError maps context expiry to the channel error taxonomy:
// a deadline is a channel timeout, an explicit cancellation is passed
// through so shutdown paths can distinguish it.
func (c *ChannelServer) deadlineError(ctx context.Context, name string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &ChannelTimeoutError{Name: name}
	}
	return ctx.Err()
}

// handleHello marks the worker as connected.
func (c *ChannelServer) handleHello(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		PID int `cbor:"pid"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding hello: %w", err)
	}
	c.logger.Info("worker connected", "worker_pid", request.PID)
	c.readyOnce.Do(func() { close(c.ready) })
	return nil, nil
}

// pollResponse is the next-command response body. None reports an
// empty poll; the worker immediately polls again.
type pollResponse struct {
	None    bool     `cbor:"none,omitempty"`
	Command *Command `cbor:"command,omitempty"`
}

// handleNextCommand holds the request open until a command is queued
// or the poll hold elapses.
func (c *ChannelServer) handleNextCommand(ctx context.Context, raw []byte) (any, error) {
	select {
	case command := <-c.queue:
		c.logger.Debug("dispatching command to worker", "command", command.Name, "id", command.ID)
		return pollResponse{Command: &command}, nil
	case <-time.After(pollHold):
		return pollResponse{None: true}, nil
	case <-ctx.Done():
		return pollResponse{None: true}, nil
	}
}

// handleCommandResult delivers a worker result to the blocked
// SendCommand call.
func (c *ChannelServer) handleCommandResult(ctx context.Context, raw []byte) (any, error) {
	var result Result
	if err := codec.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding command result: %w", err)
	}

	c.mu.Lock()
	resultChannel, exists := c.pending[result.ID]
	c.mu.Unlock()

	if !exists {
		// The sender gave up (timeout) before the result arrived.
		// Log and drop: the session is already failing over.
		c.logger.Warn("result for unknown command id", "id", result.ID, "ok", result.OK)
		return nil, nil
	}

	resultChannel <- result
	return nil, nil
}

// ChannelClient is the worker's end of the command channel.
type ChannelClient struct {
	client *Client
}

// NewChannelClient creates a client for the channel socket.
func NewChannelClient(socketPath string) *ChannelClient {
	return &ChannelClient{client: NewClient(socketPath)}
}

// Hello announces the worker to the adaptor. The adaptor's startup
// phase waits for this before sending commands.
func (c *ChannelClient) Hello(ctx context.Context, pid int) error {
	return c.client.Call(ctx, "hello", map[string]any{"pid": pid}, nil)
}

// NextCommand polls for the next command. Returns (nil, nil) on an
// empty poll; the caller loops.
func (c *ChannelClient) NextCommand(ctx context.Context) (*Command, error) {
	var response pollResponse
	if err := c.client.Call(ctx, "next-command", nil, &response); err != nil {
		return nil, err
	}
	if response.None || response.Command == nil {
		return nil, nil
	}
	return response.Command, nil
}

// PostResult reports a command's outcome back to the adaptor.
func (c *ChannelClient) PostResult(ctx context.Context, result Result) error {
	fields := map[string]any{
		"id": result.ID,
		"ok": result.OK,
	}
	if result.Error != "" {
		fields["error"] = result.Error
	}
	if len(result.Data) > 0 {
		fields["data"] = result.Data
	}
	return c.client.Call(ctx, "command-result", fields, nil)
}
