// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package adaptor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// ChannelSocketEnv names the environment variable carrying the command
// channel socket path to the worker process.
const ChannelSocketEnv = "RENDERBEAM_CHANNEL_SOCKET"

// BlenderExecutableEnv names the environment variable carrying the
// Blender binary path to the worker process.
const BlenderExecutableEnv = "RENDERBEAM_BLENDER"

// Process is a launched worker. The production implementation wraps
// exec.Cmd; tests substitute in-process fakes.
type Process interface {
	// Wait blocks until the process exits.
	Wait() error

	// Kill forcibly terminates the process.
	Kill() error

	// PID reports the process id.
	PID() int
}

// Launcher starts the worker process for a session. output receives
// the worker's combined stdout and stderr, which the adaptor feeds
// through its output scanner.
type Launcher interface {
	Launch(ctx context.Context, channelSocket string, output io.Writer) (Process, error)
}

// ExecLauncher launches the real worker binary.
type ExecLauncher struct {
	// Executable is the worker binary path or name. Defaults to
	// "renderbeam-blender-worker" resolved on PATH.
	Executable string

	// BlenderExecutable is forwarded to the worker; empty means the
	// worker's default.
	BlenderExecutable string

	Logger *slog.Logger
}

func (l *ExecLauncher) Launch(ctx context.Context, channelSocket string, output io.Writer) (Process, error) {
	executable := l.Executable
	if executable == "" {
		executable = "renderbeam-blender-worker"
	}

	command := exec.CommandContext(ctx, executable)
	command.Stdout = output
	command.Stderr = output
	command.Env = append(os.Environ(), ChannelSocketEnv+"="+channelSocket)
	if l.BlenderExecutable != "" {
		command.Env = append(command.Env, BlenderExecutableEnv+"="+l.BlenderExecutable)
	}

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %s: %w", executable, err)
	}
	if l.Logger != nil {
		l.Logger.Info("worker process started", "executable", executable, "pid", command.Process.Pid)
	}
	return &execProcess{command: command}, nil
}

type execProcess struct {
	command *exec.Cmd
}

func (p *execProcess) Wait() error { return p.command.Wait() }

func (p *execProcess) Kill() error {
	if p.command.Process == nil {
		return nil
	}
	return p.command.Process.Kill()
}

func (p *execProcess) PID() int {
	if p.command.Process == nil {
		return 0
	}
	return p.command.Process.Pid
}
