// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// renderbeam-blender-worker is the adaptor's companion process. It is
// launched by the adaptor (never by hand), hosts the Blender process
// through the bridge script, and executes the commands it polls from
// the adaptor's channel socket. Its stdout carries Blender's render
// log plus the scan sentinels the adaptor's output scanner keys on.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/renderbeam/renderbeam/lib/adaptor"
	"github.com/renderbeam/renderbeam/lib/hostbridge"
	"github.com/renderbeam/renderbeam/lib/ipc"
	"github.com/renderbeam/renderbeam/lib/process"
	"github.com/renderbeam/renderbeam/lib/worker"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	channelSocket := os.Getenv(adaptor.ChannelSocketEnv)
	if channelSocket == "" {
		return fmt.Errorf("%s is not set; this binary is launched by renderbeam-blender-adaptor", adaptor.ChannelSocketEnv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, err := hostbridge.Start(ctx, hostbridge.StartOptions{
		Executable:  os.Getenv(adaptor.BlenderExecutableEnv),
		Passthrough: os.Stdout,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	session := worker.NewSession(bridge, os.Stdout, logger)
	client := ipc.NewChannelClient(channelSocket)
	serveErr := session.Serve(ctx, client)
	if serveErr != nil {
		// The serve loop failed; make sure Blender does not linger.
		bridge.Kill()
	}
	if err := bridge.Wait(); err != nil && serveErr == nil {
		return fmt.Errorf("host process exit: %w", err)
	}
	return serveErr
}
