// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// renderbeam-blender-adaptor executes Blender render tasks for a
// render farm. One-shot mode (run) starts a session, renders, and
// stops; daemon mode keeps the session alive between tasks so the
// scene is opened only once.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/renderbeam/renderbeam/lib/cli"
	"github.com/renderbeam/renderbeam/lib/process"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	root := &cli.Command{
		Name:    "renderbeam-blender-adaptor",
		Summary: "execute Blender render tasks for a render farm",
		Description: `The adaptor drives a long-lived Blender process through a worker
companion. A session opens the scene file once and renders any number
of frames against it ("sticky rendering").`,
		Subcommands: []*cli.Command{
			runCommand(),
			daemonCommand(),
		},
	}
	return root.Execute(args)
}

// newLogger builds the adaptor's structured logger.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runCommand is the one-shot mode: start, render every run-data frame,
// stop.
func runCommand() *cli.Command {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	initPath := flags.String("init-data", "", "path to the session init-data file (YAML or JSON)")
	runPaths := flags.StringArray("run-data", nil, "path to a run-data file; repeat for multiple frames")
	workerExe := flags.String("worker-exe", "", "worker binary (default: renderbeam-blender-worker on PATH)")
	blenderExe := flags.String("blender-exe", "", "Blender binary forwarded to the worker")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")

	return &cli.Command{
		Name:    "run",
		Summary: "start a session, render, and stop",
		Usage:   "renderbeam-blender-adaptor run --init-data <path> --run-data <path> [--run-data <path> ...]",
		Examples: []cli.Example{
			{
				Description: "render one frame",
				Command:     "renderbeam-blender-adaptor run --init-data init.yaml --run-data frame12.yaml",
			},
		},
		Flags: func() *pflag.FlagSet { return flags },
		Run: func(args []string) error {
			if *initPath == "" {
				return fmt.Errorf("--init-data is required")
			}
			if len(*runPaths) == 0 {
				return fmt.Errorf("at least one --run-data is required")
			}
			return runOneShot(*initPath, *runPaths, *workerExe, *blenderExe, newLogger(*verbose))
		},
	}
}
