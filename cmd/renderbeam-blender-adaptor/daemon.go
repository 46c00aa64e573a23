// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/renderbeam/renderbeam/lib/adaptor"
	"github.com/renderbeam/renderbeam/lib/cli"
	"github.com/renderbeam/renderbeam/lib/ipc"
)

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:    "daemon",
		Summary: "manage a long-lived render session",
		Description: `Daemon mode keeps one Blender session alive between tasks. The farm
calls start once per session, run once per frame, and stop at the end;
the scene file is opened exactly once no matter how many frames run.`,
		Subcommands: []*cli.Command{
			daemonStartCommand(),
			daemonRunCommand(),
			daemonServeCommand(),
			daemonStopCommand(),
		},
	}
}

// daemonStartCommand spawns a detached daemon and waits for readiness.
func daemonStartCommand() *cli.Command {
	flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
	initPath := flags.String("init-data", "", "path to the session init-data file")
	connectionPath := flags.String("connection-file", "", "where to write the connection file")
	workerExe := flags.String("worker-exe", "", "worker binary (default: renderbeam-blender-worker on PATH)")
	blenderExe := flags.String("blender-exe", "", "Blender binary forwarded to the worker")
	waitTimeout := flags.Duration("wait-timeout", time.Hour, "how long to wait for the session to become ready")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")

	return &cli.Command{
		Name:    "start",
		Summary: "spawn a background session and wait for readiness",
		Usage:   "renderbeam-blender-adaptor daemon start --init-data <path> --connection-file <path>",
		Flags:   func() *pflag.FlagSet { return flags },
		Run: func(args []string) error {
			if *initPath == "" || *connectionPath == "" {
				return fmt.Errorf("--init-data and --connection-file are required")
			}
			return startDetached(*initPath, *connectionPath, *workerExe, *blenderExe, *waitTimeout, *verbose)
		},
	}
}

// daemonServeCommand is the foreground daemon process spawned by
// start. It is also usable directly for supervised deployments.
func daemonServeCommand() *cli.Command {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	initPath := flags.String("init-data", "", "path to the session init-data file")
	connectionPath := flags.String("connection-file", "", "where to write the connection file")
	workerExe := flags.String("worker-exe", "", "worker binary (default: renderbeam-blender-worker on PATH)")
	blenderExe := flags.String("blender-exe", "", "Blender binary forwarded to the worker")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")

	return &cli.Command{
		Name:    "serve",
		Summary: "run the session in the foreground",
		Usage:   "renderbeam-blender-adaptor daemon serve --init-data <path> --connection-file <path>",
		Flags:   func() *pflag.FlagSet { return flags },
		Run: func(args []string) error {
			if *initPath == "" || *connectionPath == "" {
				return fmt.Errorf("--init-data and --connection-file are required")
			}
			return serveDaemon(*initPath, *connectionPath, *workerExe, *blenderExe, newLogger(*verbose))
		},
	}
}

// daemonRunCommand executes one task on a running daemon.
func daemonRunCommand() *cli.Command {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	connectionPath := flags.String("connection-file", "", "connection file of the running daemon")
	runPath := flags.String("run-data", "", "path to the run-data file")
	taskTimeout := flags.Duration("task-timeout", 24*time.Hour, "upper bound for one render task")

	return &cli.Command{
		Name:    "run",
		Summary: "render one frame on the running session",
		Usage:   "renderbeam-blender-adaptor daemon run --connection-file <path> --run-data <path>",
		Flags:   func() *pflag.FlagSet { return flags },
		Run: func(args []string) error {
			if *connectionPath == "" || *runPath == "" {
				return fmt.Errorf("--connection-file and --run-data are required")
			}
			return runOnDaemon(*connectionPath, *runPath, *taskTimeout)
		},
	}
}

// daemonStopCommand gracefully stops a running daemon.
func daemonStopCommand() *cli.Command {
	flags := pflag.NewFlagSet("stop", pflag.ContinueOnError)
	connectionPath := flags.String("connection-file", "", "connection file of the running daemon")
	stopTimeout := flags.Duration("stop-timeout", 2*time.Minute, "how long to wait for the daemon to exit")

	return &cli.Command{
		Name:    "stop",
		Summary: "stop the running session",
		Usage:   "renderbeam-blender-adaptor daemon stop --connection-file <path>",
		Flags:   func() *pflag.FlagSet { return flags },
		Run: func(args []string) error {
			if *connectionPath == "" {
				return fmt.Errorf("--connection-file is required")
			}
			return stopDaemon(*connectionPath, *stopTimeout)
		},
	}
}

// startDetached spawns "daemon serve" detached from the terminal and
// waits until the session reports ready. The connection-file conflict
// is checked here for a fast failure; the spawned daemon's exclusive
// create is the authoritative guard.
func startDetached(initPath, connectionPath, workerExe, blenderExe string, waitTimeout time.Duration, verbose bool) error {
	if _, err := os.Stat(connectionPath); err == nil {
		return &ipc.ConnectionFileExistsError{Path: connectionPath}
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own executable: %w", err)
	}

	logPath := connectionPath + ".log"
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening daemon log %s: %w", logPath, err)
	}
	defer logFile.Close()

	daemonArgs := []string{"daemon", "serve",
		"--init-data", initPath,
		"--connection-file", connectionPath,
	}
	if workerExe != "" {
		daemonArgs = append(daemonArgs, "--worker-exe", workerExe)
	}
	if blenderExe != "" {
		daemonArgs = append(daemonArgs, "--blender-exe", blenderExe)
	}
	if verbose {
		daemonArgs = append(daemonArgs, "--verbose")
	}

	command := exec.Command(executable, daemonArgs...)
	command.Stdout = logFile
	command.Stderr = logFile
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := command.Start(); err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}
	pid := command.Process.Pid

	// Reap the daemon if it dies during startup so the readiness poll
	// can distinguish "still starting" from "already dead".
	exited := make(chan error, 1)
	go func() { exited <- command.Wait() }()

	deadline := time.Now().Add(waitTimeout)
	for {
		select {
		case err := <-exited:
			return fmt.Errorf("daemon exited during startup (see %s): %w", logPath, err)
		default:
		}

		if state, pingErr := pingState(connectionPath); pingErr == nil {
			switch state {
			case "ready", "idle", "rendering":
				fmt.Printf("session ready (pid %d, connection file %s)\n", pid, connectionPath)
				command.Process.Release()
				return nil
			case "failed", "stopped":
				return fmt.Errorf("session entered state %q during startup (see %s)", state, logPath)
			}
		}

		if time.Now().After(deadline) {
			command.Process.Kill()
			return fmt.Errorf("session not ready after %s (see %s)", waitTimeout, logPath)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func pingState(connectionPath string) (string, error) {
	client, err := adaptor.NewControlClient(connectionPath)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := client.Ping(ctx)
	if err != nil {
		return "", err
	}
	return status.State, nil
}

// serveDaemon is the daemon body: control socket, connection file,
// session, and a wait for stop (via control socket or signal).
func serveDaemon(initPath, connectionPath, workerExe, blenderExe string, logger *slog.Logger) error {
	session, err := newSession(initPath, workerExe, blenderExe, logger)
	if err != nil {
		return err
	}

	controlSocket := channelSocketPath() + ".ctl"
	control := adaptor.NewControlServer(controlSocket, session, logger)

	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()
	serveDone := make(chan error, 1)
	go func() { serveDone <- control.Serve(serveCtx) }()
	select {
	case <-control.Listening():
	case err := <-serveDone:
		return fmt.Errorf("control socket failed to start: %w", err)
	}

	connection := ipc.ConnectionFile{
		Socket:    controlSocket,
		PID:       os.Getpid(),
		StartedAt: time.Now().UTC(),
	}
	if err := ipc.WriteConnectionFile(connectionPath, connection); err != nil {
		var exists *ipc.ConnectionFileExistsError
		if errors.As(err, &exists) {
			return fmt.Errorf("a session already owns this connection file: %w", err)
		}
		return err
	}
	defer func() {
		if err := ipc.RemoveConnectionFile(connectionPath); err != nil {
			logger.Error("removing connection file failed", "error", err)
		}
	}()

	if err := session.Start(context.Background()); err != nil {
		session.Cancel()
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case <-control.StopRequested():
		logger.Info("stop requested, shutting down")
	case received := <-signals:
		logger.Info("signal received, shutting down", "signal", received.String())
	}

	return session.Stop(context.Background())
}

// runOnDaemon executes one frame on the running daemon.
func runOnDaemon(connectionPath, runPath string, taskTimeout time.Duration) error {
	runData, err := loadRunFrame(runPath)
	if err != nil {
		return err
	}

	client, err := adaptor.NewControlClient(connectionPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()
	status, err := client.RunFrame(ctx, runData)
	if err != nil {
		return err
	}
	fmt.Printf("frame %d rendered (session %s)\n", status.Frame, status.State)
	return nil
}

// stopDaemon requests a graceful stop and waits for the daemon to go
// away.
func stopDaemon(connectionPath string, stopTimeout time.Duration) error {
	client, err := adaptor.NewControlClient(connectionPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Stop(ctx); err != nil {
		return err
	}

	deadline := time.Now().Add(stopTimeout)
	for {
		if _, err := os.Stat(connectionPath); os.IsNotExist(err) {
			fmt.Println("session stopped")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not exit within %s", stopTimeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
