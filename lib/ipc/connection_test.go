// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConnectionFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	original := ConnectionFile{
		Socket:    "/run/renderbeam/control.sock",
		PID:       4321,
		StartedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	if err := WriteConnectionFile(path, original); err != nil {
		t.Fatalf("WriteConnectionFile: %v", err)
	}

	read, err := ReadConnectionFile(path)
	if err != nil {
		t.Fatalf("ReadConnectionFile: %v", err)
	}
	if read.Socket != original.Socket || read.PID != original.PID {
		t.Fatalf("round trip mismatch: %+v", read)
	}
}

func TestConnectionFileExclusiveCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	file := ConnectionFile{Socket: "/tmp/a.sock", PID: 1, StartedAt: time.Now()}

	if err := WriteConnectionFile(path, file); err != nil {
		t.Fatalf("first write: %v", err)
	}

	err := WriteConnectionFile(path, file)
	var exists *ConnectionFileExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("second write err = %v, want ConnectionFileExistsError", err)
	}
	if exists.Path != path {
		t.Fatalf("error names path %q, want %q", exists.Path, path)
	}
}

func TestReadConnectionFileToleratesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	content := `{
  // control endpoint for shot010 session
  "socket": "/run/renderbeam/control.sock",
  "pid": 99,
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	read, err := ReadConnectionFile(path)
	if err != nil {
		t.Fatalf("ReadConnectionFile: %v", err)
	}
	if read.Socket != "/run/renderbeam/control.sock" || read.PID != 99 {
		t.Fatalf("parsed %+v", read)
	}
}

func TestRemoveConnectionFileIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connection.json")
	if err := WriteConnectionFile(path, ConnectionFile{Socket: "/tmp/a.sock"}); err != nil {
		t.Fatalf("WriteConnectionFile: %v", err)
	}
	if err := RemoveConnectionFile(path); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := RemoveConnectionFile(path); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
}
