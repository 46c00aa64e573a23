// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc implements the local transport between the adaptor and
// its companion processes: a CBOR request/response protocol over Unix
// sockets, the connection file that describes the daemon's control
// endpoint, and the command channel the worker polls for render
// commands.
package ipc

import (
	"fmt"

	"github.com/renderbeam/renderbeam/lib/codec"
)

// Command is a named action with an argument mapping, sent from the
// adaptor to the worker over the command channel. Request/response
// pairing is synchronous: the adaptor blocks until the result with
// the matching ID arrives.
type Command struct {
	ID   uint64         `cbor:"id"`
	Name string         `cbor:"name"`
	Args map[string]any `cbor:"args,omitempty"`
}

// Result is the worker's response to a Command. A handler failure is
// carried as OK=false with a message; the channel never sees an
// unhandled fault.
type Result struct {
	ID    uint64           `cbor:"id"`
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// CommandError is returned by SendCommand when the worker reports a
// structured failure for a command.
type CommandError struct {
	Name    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed: %s", e.Name, e.Message)
}

// ChannelTimeoutError is returned when no result arrives within the
// caller's deadline. The adaptor treats it as crash-equivalent: the
// worker holds the only open scene, and a worker that stopped
// responding cannot be trusted with further tasks.
type ChannelTimeoutError struct {
	Name string
}

func (e *ChannelTimeoutError) Error() string {
	return fmt.Sprintf("no response for command %q within deadline", e.Name)
}
