// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package jobtemplate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/renderbeam/renderbeam/lib/blender"
)

// specificationVersion is the job template dialect the bundle files
// declare.
const specificationVersion = "jobtemplate-2023-09"

// Job describes one render submission. WriteBundle turns it into a
// bundle directory a scheduler can ingest.
type Job struct {
	// Name labels the job. Defaults to the scene file's base name.
	Name string

	// SceneFile is the .blend file to render.
	SceneFile string

	Engine      blender.Engine
	RenderScene string
	ViewLayer   string
	Camera      string

	// Frames is a frame-range expression, see ParseFrameRange.
	Frames string

	OutputDir      string
	OutputFileName string
	OutputFormat   blender.OutputFormat

	StrictErrorChecking bool

	// Attachments are extra input files the scene depends on
	// (textures, caches, linked libraries).
	Attachments []string
}

// Validate checks the job before bundle generation. The frame range
// is parsed in full so a bad expression fails at submit time, not on
// the farm.
func (j *Job) Validate() error {
	if j.SceneFile == "" {
		return fmt.Errorf("job: scene file is required")
	}
	if _, err := os.Stat(j.SceneFile); err != nil {
		return fmt.Errorf("job: scene file: %w", err)
	}
	if _, err := blender.ParseEngine(string(j.Engine)); err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if j.Frames == "" {
		return fmt.Errorf("job: frame range is required")
	}
	if _, err := ParseFrameRange(j.Frames); err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if j.OutputDir == "" {
		return fmt.Errorf("job: output directory is required")
	}
	if j.OutputFormat != "" {
		if _, err := blender.ParseOutputFormat(string(j.OutputFormat)); err != nil {
			return fmt.Errorf("job: %w", err)
		}
	}
	for _, attachment := range j.Attachments {
		if _, err := os.Stat(attachment); err != nil {
			return fmt.Errorf("job: attachment: %w", err)
		}
	}
	return nil
}

func (j *Job) name() string {
	if j.Name != "" {
		return j.Name
	}
	base := filepath.Base(j.SceneFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type parameterDefinition struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	ObjectType    string   `yaml:"objectType,omitempty"`
	DataFlow      string   `yaml:"dataFlow,omitempty"`
	AllowedValues []string `yaml:"allowedValues,omitempty"`
	Default       string   `yaml:"default,omitempty"`
}

type taskParameterDefinition struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Range string `yaml:"range"`
}

type parameterSpace struct {
	TaskParameterDefinitions []taskParameterDefinition `yaml:"taskParameterDefinitions"`
}

type embeddedFile struct {
	Name     string `yaml:"name"`
	Filename string `yaml:"filename"`
	Type     string `yaml:"type"`
	Data     string `yaml:"data"`
}

type action struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type stepScript struct {
	EmbeddedFiles []embeddedFile    `yaml:"embeddedFiles"`
	Actions       map[string]action `yaml:"actions"`
}

type stepDefinition struct {
	Name           string         `yaml:"name"`
	ParameterSpace parameterSpace `yaml:"parameterSpace"`
	Script         stepScript     `yaml:"script"`
}

type templateDocument struct {
	SpecificationVersion string                `yaml:"specificationVersion"`
	Name                 string                `yaml:"name"`
	ParameterDefinitions []parameterDefinition `yaml:"parameterDefinitions"`
	Steps                []stepDefinition      `yaml:"steps"`
}

type parameterValue struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type parameterValuesDocument struct {
	ParameterValues []parameterValue `yaml:"parameterValues"`
}

type assetPaths struct {
	Filenames   []string `yaml:"filenames,omitempty"`
	Directories []string `yaml:"directories,omitempty"`
}

type assetReferencesDocument struct {
	AssetReferences struct {
		Inputs  assetPaths `yaml:"inputs"`
		Outputs assetPaths `yaml:"outputs"`
	} `yaml:"assetReferences"`
}

// WriteBundle validates the job and writes template.yaml,
// parameter_values.yaml, and asset_references.yaml into dir, creating
// it if needed.
func WriteBundle(dir string, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}

	files := map[string]any{
		"template.yaml":         buildTemplate(job),
		"parameter_values.yaml": buildParameterValues(job),
		"asset_references.yaml": buildAssetReferences(job),
	}
	for name, document := range files {
		encoded, err := yaml.Marshal(document)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), encoded, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

func buildTemplate(job Job) templateDocument {
	initData := &strings.Builder{}
	fmt.Fprintln(initData, "render_engine: '{{Param.RenderEngine}}'")
	fmt.Fprintln(initData, "scene_file: '{{Param.BlenderFile}}'")
	fmt.Fprintln(initData, "output_dir: '{{Param.OutputDir}}'")
	fmt.Fprintln(initData, "strict_error_checking: {{Param.StrictErrorChecking}}")
	if job.RenderScene != "" {
		fmt.Fprintln(initData, "render_scene: '{{Param.RenderScene}}'")
	}
	if job.ViewLayer != "" {
		fmt.Fprintln(initData, "view_layer: '{{Param.ViewLayer}}'")
	}
	if job.Camera != "" {
		fmt.Fprintln(initData, "camera: '{{Param.Camera}}'")
	}
	if job.OutputFileName != "" {
		fmt.Fprintln(initData, "output_file_name: '{{Param.OutputFileName}}'")
	}
	if job.OutputFormat != "" {
		fmt.Fprintln(initData, "output_format: '{{Param.OutputFormat}}'")
	}

	parameters := []parameterDefinition{
		{Name: "BlenderFile", Type: "PATH", ObjectType: "FILE", DataFlow: "IN"},
		{Name: "RenderEngine", Type: "STRING", AllowedValues: engineNames()},
		{Name: "Frames", Type: "STRING"},
		{Name: "OutputDir", Type: "PATH", ObjectType: "DIRECTORY", DataFlow: "OUT"},
		{Name: "StrictErrorChecking", Type: "STRING", AllowedValues: []string{"true", "false"}, Default: "true"},
	}
	if job.RenderScene != "" {
		parameters = append(parameters, parameterDefinition{Name: "RenderScene", Type: "STRING"})
	}
	if job.ViewLayer != "" {
		parameters = append(parameters, parameterDefinition{Name: "ViewLayer", Type: "STRING"})
	}
	if job.Camera != "" {
		parameters = append(parameters, parameterDefinition{Name: "Camera", Type: "STRING"})
	}
	if job.OutputFileName != "" {
		parameters = append(parameters, parameterDefinition{Name: "OutputFileName", Type: "STRING"})
	}
	if job.OutputFormat != "" {
		parameters = append(parameters, parameterDefinition{Name: "OutputFormat", Type: "STRING", AllowedValues: blender.OutputFormatNames()})
	}

	return templateDocument{
		SpecificationVersion: specificationVersion,
		Name:                 job.name(),
		ParameterDefinitions: parameters,
		Steps: []stepDefinition{{
			Name: "RenderBlender",
			ParameterSpace: parameterSpace{
				TaskParameterDefinitions: []taskParameterDefinition{
					{Name: "Frame", Type: "INT", Range: "{{Param.Frames}}"},
				},
			},
			Script: stepScript{
				EmbeddedFiles: []embeddedFile{
					{
						Name:     "initData",
						Filename: "init-data.yaml",
						Type:     "TEXT",
						Data:     initData.String(),
					},
					{
						Name:     "runData",
						Filename: "run-data.yaml",
						Type:     "TEXT",
						Data:     "frame: {{Task.Param.Frame}}\n",
					},
				},
				Actions: map[string]action{
					"onRun": {
						Command: "renderbeam-blender-adaptor",
						Args: []string{
							"run",
							"--init-data", "file://{{Task.File.initData}}",
							"--run-data", "file://{{Task.File.runData}}",
						},
					},
				},
			},
		}},
	}
}

func buildParameterValues(job Job) parameterValuesDocument {
	values := []parameterValue{
		{Name: "BlenderFile", Value: job.SceneFile},
		{Name: "RenderEngine", Value: string(job.Engine)},
		{Name: "Frames", Value: job.Frames},
		{Name: "OutputDir", Value: job.OutputDir},
		{Name: "StrictErrorChecking", Value: fmt.Sprintf("%t", job.StrictErrorChecking)},
	}
	if job.RenderScene != "" {
		values = append(values, parameterValue{Name: "RenderScene", Value: job.RenderScene})
	}
	if job.ViewLayer != "" {
		values = append(values, parameterValue{Name: "ViewLayer", Value: job.ViewLayer})
	}
	if job.Camera != "" {
		values = append(values, parameterValue{Name: "Camera", Value: job.Camera})
	}
	if job.OutputFileName != "" {
		values = append(values, parameterValue{Name: "OutputFileName", Value: job.OutputFileName})
	}
	if job.OutputFormat != "" {
		values = append(values, parameterValue{Name: "OutputFormat", Value: string(job.OutputFormat)})
	}
	return parameterValuesDocument{ParameterValues: values}
}

func buildAssetReferences(job Job) assetReferencesDocument {
	var document assetReferencesDocument
	document.AssetReferences.Inputs.Filenames = append([]string{job.SceneFile}, job.Attachments...)
	document.AssetReferences.Outputs.Directories = []string{job.OutputDir}
	return document
}

func engineNames() []string {
	return []string{
		string(blender.EngineEevee),
		string(blender.EngineWorkbench),
		string(blender.EngineCycles),
	}
}
