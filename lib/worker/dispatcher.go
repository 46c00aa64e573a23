// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker implements the in-application companion: it polls the
// adaptor's command channel, applies each command to the host
// application through the host bridge, and prints the scan sentinels
// the adaptor's output scanner keys on.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/renderbeam/renderbeam/lib/codec"
	"github.com/renderbeam/renderbeam/lib/ipc"
)

// UnknownCommandError reports a command name with no registered
// handler.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// HandlerFunc executes one command. The returned value, if non-nil, is
// encoded into the result's data field.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Dispatcher routes commands to handlers and converts their outcomes
// into channel results. A handler panic is contained and reported as a
// failed result rather than killing the worker.
type Dispatcher struct {
	logger   *slog.Logger
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger, handlers: map[string]HandlerFunc{}}
}

// Handle registers a handler for a command name. Registering the same
// name twice is a programming error and panics.
func (d *Dispatcher) Handle(name string, handler HandlerFunc) {
	if _, exists := d.handlers[name]; exists {
		panic(fmt.Sprintf("worker: duplicate handler for command %q", name))
	}
	d.handlers[name] = handler
}

// Dispatch runs the command and builds its result.
func (d *Dispatcher) Dispatch(ctx context.Context, command ipc.Command) ipc.Result {
	handler, exists := d.handlers[command.Name]
	if !exists {
		err := &UnknownCommandError{Name: command.Name}
		d.logger.Error("command rejected", "command", command.Name, "error", err)
		return ipc.Result{ID: command.ID, OK: false, Error: err.Error()}
	}

	value, err := d.run(ctx, command, handler)
	if err != nil {
		d.logger.Error("command failed", "command", command.Name, "error", err)
		return ipc.Result{ID: command.ID, OK: false, Error: err.Error()}
	}

	result := ipc.Result{ID: command.ID, OK: true}
	if value != nil {
		encoded, err := codec.Marshal(value)
		if err != nil {
			d.logger.Error("command result encoding failed", "command", command.Name, "error", err)
			return ipc.Result{ID: command.ID, OK: false, Error: fmt.Sprintf("encoding result: %s", err)}
		}
		result.Data = encoded
	}
	return result
}

func (d *Dispatcher) run(ctx context.Context, command ipc.Command, handler HandlerFunc) (value any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("command handler panicked",
				"command", command.Name,
				"panic", recovered,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("command %q panicked: %v", command.Name, recovered)
		}
	}()
	return handler(ctx, command.Args)
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	value, exists := args[key]
	if !exists {
		return "", fmt.Errorf("missing argument %q", key)
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("argument %q is not a string (got %T)", key, value)
	}
	return text, nil
}

// intArg extracts a required integer argument. CBOR decoding can
// surface numbers as any integer width, and map literals in tests use
// plain int.
func intArg(args map[string]any, key string) (int, error) {
	value, exists := args[key]
	if !exists {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch number := value.(type) {
	case int:
		return number, nil
	case int64:
		return int(number), nil
	case uint64:
		return int(number), nil
	case float64:
		return int(number), nil
	}
	return 0, fmt.Errorf("argument %q is not an integer (got %T)", key, value)
}
