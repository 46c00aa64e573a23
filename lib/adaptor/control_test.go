// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package adaptor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/renderbeam/renderbeam/lib/hostbridge"
	"github.com/renderbeam/renderbeam/lib/ipc"
	"github.com/renderbeam/renderbeam/lib/testutil"
)

func startControl(t *testing.T, session *Session) (*ControlClient, *ControlServer) {
	t.Helper()
	dir, err := os.MkdirTemp("", "rbctl")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	socketPath := filepath.Join(dir, "ctl.sock")
	control := NewControlServer(socketPath, session, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := control.Serve(ctx); err != nil {
			t.Errorf("control Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "control shutdown")
	})
	testutil.RequireClosed(t, control.Listening(), 5*time.Second, "control listening")

	connectionPath := filepath.Join(dir, "connection.json")
	file := ipc.ConnectionFile{Socket: socketPath, PID: os.Getpid(), StartedAt: time.Now()}
	if err := ipc.WriteConnectionFile(connectionPath, file); err != nil {
		t.Fatalf("WriteConnectionFile: %v", err)
	}

	client, err := NewControlClient(connectionPath)
	if err != nil {
		t.Fatalf("NewControlClient: %v", err)
	}
	return client, control
}

func TestControlPingRunStop(t *testing.T) {
	host := &renderHost{Fake: hostbridge.NewFake()}
	launcher := &fakeLauncher{host: host, logger: testLogger()}
	session := newTestSession(t, testInit(t.TempDir()), launcher, nil)

	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Stop(ctx)

	client, control := startControl(t, session)

	status, err := client.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if status.State != "ready" {
		t.Errorf("ping state = %q", status.State)
	}
	if status.PID != os.Getpid() {
		t.Errorf("ping pid = %d", status.PID)
	}

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	run, err := client.RunFrame(runCtx, 4)
	if err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if run.Frame != 4 || run.State != "idle" {
		t.Errorf("run status = %+v", run)
	}
	if host.CountCalls("render_frame") != 1 {
		t.Errorf("render_frame calls = %d", host.CountCalls("render_frame"))
	}

	select {
	case <-control.StopRequested():
		t.Fatal("stop requested before stop call")
	default:
	}
	if err := client.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	testutil.RequireClosed(t, control.StopRequested(), 5*time.Second, "stop requested")
}

func TestControlRunFailureSurfacesError(t *testing.T) {
	host := &renderHost{Fake: hostbridge.NewFake()}
	launcher := &fakeLauncher{host: host, logger: testLogger()}
	session := newTestSession(t, testInit(t.TempDir()), launcher, nil)

	// Session never started: run must fail with the state error.
	client, _ := startControl(t, session)

	_, err := client.RunFrame(context.Background(), 1)
	if err == nil {
		t.Fatal("RunFrame on unstarted session succeeded")
	}
}
