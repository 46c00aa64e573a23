// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/renderbeam/renderbeam/lib/adaptor"
	"github.com/renderbeam/renderbeam/lib/blender"
)

// channelSocketPath picks a socket path for the command channel, kept
// short for the Unix sun_path limit.
func channelSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("renderbeam-%d.sock", os.Getpid()))
}

// newSession assembles a session from CLI inputs.
func newSession(initPath, workerExe, blenderExe string, logger *slog.Logger) (*adaptor.Session, error) {
	init, err := blender.LoadInitData(initPath)
	if err != nil {
		return nil, err
	}

	return adaptor.New(adaptor.Options{
		Init:          init,
		ChannelSocket: channelSocketPath(),
		Launcher: &adaptor.ExecLauncher{
			Executable:        workerExe,
			BlenderExecutable: blenderExe,
			Logger:            logger,
		},
		Logger: logger,
	})
}

// loadRunFrame reads a run-data file and returns its frame.
func loadRunFrame(path string) (int, error) {
	runData, err := blender.LoadRunData(path)
	if err != nil {
		return 0, err
	}
	return runData.Frame, nil
}

// runOneShot executes the run subcommand: one session, every run-data
// frame in order, then a clean stop. The session is stopped even when
// a task fails so the worker never outlives the adaptor.
func runOneShot(initPath string, runPaths []string, workerExe, blenderExe string, logger *slog.Logger) error {
	session, err := newSession(initPath, workerExe, blenderExe, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		session.Cancel()
		return err
	}

	var taskErr error
	for _, runPath := range runPaths {
		runData, err := blender.LoadRunData(runPath)
		if err != nil {
			taskErr = err
			break
		}
		if err := session.Run(ctx, runData); err != nil {
			taskErr = fmt.Errorf("task %s: %w", runPath, err)
			break
		}
	}

	if err := session.Stop(ctx); err != nil {
		logger.Error("session stop failed", "error", err)
	}
	return taskErr
}
