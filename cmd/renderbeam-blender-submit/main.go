// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// renderbeam-blender-submit builds render-farm job bundles for Blender
// scenes: a job template, parameter values, and asset references,
// ready for a scheduler to ingest.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/renderbeam/renderbeam/lib/blender"
	"github.com/renderbeam/renderbeam/lib/cli"
	"github.com/renderbeam/renderbeam/lib/jobtemplate"
	"github.com/renderbeam/renderbeam/lib/process"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	root := &cli.Command{
		Name:    "renderbeam-blender-submit",
		Summary: "build render-farm job bundles for Blender scenes",
		Subcommands: []*cli.Command{
			submitCommand(),
		},
	}
	return root.Execute(args)
}

func submitCommand() *cli.Command {
	flags := pflag.NewFlagSet("submit", pflag.ContinueOnError)
	scene := flags.String("scene", "", "path to the .blend scene file")
	frames := flags.String("frames", "", "frame range (e.g. 1-100, 1-100:5, 1,5,9)")
	engine := flags.String("engine", string(blender.EngineEevee), "render engine: eevee, workbench, cycles")
	outputDir := flags.String("output-dir", "", "directory for rendered frames")
	outputFileName := flags.String("output-file-name", "", "output name pattern, # runs pad the frame number")
	outputFormat := flags.String("output-format", "", "image format (PNG, JPEG, BMP, TIFF, OPEN_EXR, TGA, IRIS)")
	camera := flags.String("camera", "", "camera object to render through")
	viewLayer := flags.String("view-layer", "", "view layer to render")
	renderScene := flags.String("render-scene", "", "named scene inside the file")
	strict := flags.Bool("strict-error-checking", false, "escalate warning-class output to task failures")
	name := flags.String("name", "", "job name (default: scene file base name)")
	attachments := flags.StringArray("attach", nil, "extra input file the scene depends on; repeatable")
	bundleDir := flags.String("bundle-dir", "", "directory to write the job bundle into")

	return &cli.Command{
		Name:    "submit",
		Summary: "write a job bundle for a scene",
		Usage:   "renderbeam-blender-submit submit --scene <file> --frames <range> --output-dir <dir> --bundle-dir <dir>",
		Examples: []cli.Example{
			{
				Description: "every 5th frame of a cycles shot",
				Command: "renderbeam-blender-submit submit --scene shot010.blend --engine cycles " +
					"--frames 1-200:5 --output-dir /mnt/renders/shot010 --bundle-dir ./bundle",
			},
		},
		Flags: func() *pflag.FlagSet { return flags },
		Run: func(args []string) error {
			if *scene == "" || *frames == "" || *outputDir == "" || *bundleDir == "" {
				return fmt.Errorf("--scene, --frames, --output-dir, and --bundle-dir are required")
			}

			job := jobtemplate.Job{
				Name:                *name,
				SceneFile:           *scene,
				Engine:              blender.Engine(*engine),
				RenderScene:         *renderScene,
				ViewLayer:           *viewLayer,
				Camera:              *camera,
				Frames:              *frames,
				OutputDir:           *outputDir,
				OutputFileName:      *outputFileName,
				OutputFormat:        blender.OutputFormat(*outputFormat),
				StrictErrorChecking: *strict,
				Attachments:         *attachments,
			}
			if err := jobtemplate.WriteBundle(*bundleDir, job); err != nil {
				return err
			}

			expanded, err := jobtemplate.ParseFrameRange(*frames)
			if err != nil {
				return err
			}
			fmt.Printf("job bundle written to %s (%d tasks)\n", *bundleDir, len(expanded))
			return nil
		},
	}
}
