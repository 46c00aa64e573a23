// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package blender

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitData is the one-time session configuration for a sticky render
// session. It is loaded once at session start and is immutable for the
// lifetime of the Blender process.
type InitData struct {
	// SceneFile is the .blend file to open. Opened at most once per
	// session, regardless of how many tasks the session executes.
	SceneFile string `yaml:"scene_file"`

	// RenderEngine is one of eevee, workbench, cycles.
	RenderEngine string `yaml:"render_engine"`

	// RenderScene is the named scene inside the file to render. Blender
	// files can hold several scenes; empty means the file's active one.
	RenderScene string `yaml:"render_scene,omitempty"`

	// ViewLayer restricts rendering to one view layer. Empty renders
	// the layers enabled in the scene file.
	ViewLayer string `yaml:"view_layer,omitempty"`

	// Camera is the camera object to render through.
	Camera string `yaml:"camera,omitempty"`

	// OutputDir is the directory rendered frames are written to.
	OutputDir string `yaml:"output_dir"`

	// OutputFileName is the output name pattern. Runs of '#' are
	// replaced with the zero-padded frame number.
	OutputFileName string `yaml:"output_file_name,omitempty"`

	// OutputFormat is one of the supported image format identifiers.
	OutputFormat string `yaml:"output_format,omitempty"`

	// StrictErrorChecking escalates warning-class output matches to
	// fatal errors.
	StrictErrorChecking bool `yaml:"strict_error_checking,omitempty"`
}

// RunData is the per-task input: the single frame to render. Created
// fresh per task and consumed by exactly one render invocation.
type RunData struct {
	Frame int `yaml:"frame"`
}

// LoadInitData reads and validates an init-data file. YAML and JSON
// are both accepted (yaml.v3 parses JSON as a subset). A file:// URL
// is accepted in place of a plain path; job templates reference their
// embedded data files that way.
func LoadInitData(path string) (*InitData, error) {
	raw, err := os.ReadFile(stripFileScheme(path))
	if err != nil {
		return nil, fmt.Errorf("reading init data: %w", err)
	}
	var data InitData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing init data %s: %w", path, err)
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("validating init data %s: %w", path, err)
	}
	return &data, nil
}

// LoadRunData reads and validates a run-data file. Accepts a file://
// URL like LoadInitData.
func LoadRunData(path string) (*RunData, error) {
	raw, err := os.ReadFile(stripFileScheme(path))
	if err != nil {
		return nil, fmt.Errorf("reading run data: %w", err)
	}
	var data RunData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing run data %s: %w", path, err)
	}
	if data.Frame < 0 {
		return nil, fmt.Errorf("run data %s: frame %d is negative", path, data.Frame)
	}
	return &data, nil
}

func stripFileScheme(path string) string {
	return strings.TrimPrefix(path, "file://")
}

// Validate checks the required fields and enumerations. The engine
// check runs here so that an unsupported engine fails session startup
// before any command reaches the worker.
func (d *InitData) Validate() error {
	if d.SceneFile == "" {
		return fmt.Errorf("scene_file is required")
	}
	if _, err := ParseEngine(d.RenderEngine); err != nil {
		return err
	}
	if d.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if d.OutputFormat != "" {
		if _, err := ParseOutputFormat(d.OutputFormat); err != nil {
			return err
		}
	}
	return nil
}

// Engine returns the validated engine. Call only after Validate.
func (d *InitData) Engine() Engine {
	engine, err := ParseEngine(d.RenderEngine)
	if err != nil {
		// Validate runs at load time; an invalid engine here is a
		// programming error.
		panic(err)
	}
	return engine
}

// OutputPath resolves the output file path for a frame: the output
// directory joined with the file name pattern after frame
// substitution. The format extension is appended when the pattern
// does not already carry it (Blender appends it the same way).
func (d *InitData) OutputPath(frame int) string {
	name := ExpandFrameToken(d.OutputFileName, frame)
	if d.OutputFormat != "" {
		extension := OutputFormat(d.OutputFormat).Extension()
		if extension != "" && !strings.HasSuffix(strings.ToLower(name), extension) {
			name += extension
		}
	}
	return filepath.Join(d.OutputDir, name)
}

// ExpandFrameToken substitutes the frame number into a file name
// pattern. Each run of '#' becomes the frame zero-padded to the run's
// width (Blender's padding convention). A pattern without '#' gets
// the frame appended zero-padded to four digits, matching Blender's
// behavior for extension-less output paths.
func ExpandFrameToken(pattern string, frame int) string {
	if pattern == "" {
		return fmt.Sprintf("%04d", frame)
	}
	if !strings.Contains(pattern, "#") {
		return fmt.Sprintf("%s%04d", pattern, frame)
	}

	var builder strings.Builder
	for i := 0; i < len(pattern); {
		if pattern[i] != '#' {
			builder.WriteByte(pattern[i])
			i++
			continue
		}
		width := 0
		for i < len(pattern) && pattern[i] == '#' {
			width++
			i++
		}
		fmt.Fprintf(&builder, "%0*d", width, frame)
	}
	return builder.String()
}
