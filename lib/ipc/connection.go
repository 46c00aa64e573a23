// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// ConnectionFile describes the daemon adaptor's control endpoint. The
// frontend CLI (`daemon run`, `daemon stop`) reads it to find the
// control socket; its existence marks a live (or crashed) session.
type ConnectionFile struct {
	// Socket is the path of the control Unix socket.
	Socket string `json:"socket"`

	// PID is the daemon adaptor process.
	PID int `json:"pid"`

	// StartedAt is when the daemon wrote the file, RFC 3339.
	StartedAt time.Time `json:"started_at"`
}

// ConnectionFileExistsError is returned when `daemon start` finds a
// connection file already present at the requested path.
type ConnectionFileExistsError struct {
	Path string
}

func (e *ConnectionFileExistsError) Error() string {
	return fmt.Sprintf("connection file %s already exists (another session is using it; stop that session or remove the stale file)", e.Path)
}

// WriteConnectionFile creates the connection file. Creation is
// exclusive: if the file already exists the write fails with
// *ConnectionFileExistsError, enforcing the one-session-per-
// connection-file invariant.
func WriteConnectionFile(path string, file ConnectionFile) error {
	handle, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &ConnectionFileExistsError{Path: path}
		}
		return fmt.Errorf("creating connection file: %w", err)
	}
	defer handle.Close()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding connection file: %w", err)
	}
	if _, err := handle.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing connection file %s: %w", path, err)
	}
	return nil
}

// ReadConnectionFile reads and decodes a connection file. Comments
// and trailing commas are tolerated so operators can annotate a file
// while debugging a stuck session.
func ReadConnectionFile(path string) (*ConnectionFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connection file: %w", err)
	}
	var file ConnectionFile
	if err := json.Unmarshal(jsonc.ToJSON(raw), &file); err != nil {
		return nil, fmt.Errorf("parsing connection file %s: %w", path, err)
	}
	if file.Socket == "" {
		return nil, fmt.Errorf("connection file %s has no socket path", path)
	}
	return &file, nil
}

// RemoveConnectionFile deletes the connection file at session end. A
// missing file is not an error: stop must be idempotent.
func RemoveConnectionFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing connection file %s: %w", path, err)
	}
	return nil
}
