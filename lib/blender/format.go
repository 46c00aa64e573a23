// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package blender

import "fmt"

// OutputFormat is the image format Blender writes rendered frames in.
// The enumeration matches the submitter's supported subset of
// Blender's image format identifiers.
type OutputFormat string

const (
	FormatPNG     OutputFormat = "PNG"
	FormatJPEG    OutputFormat = "JPEG"
	FormatBMP     OutputFormat = "BMP"
	FormatTIFF    OutputFormat = "TIFF"
	FormatOpenEXR OutputFormat = "OPEN_EXR"
	FormatTGA     OutputFormat = "TGA"
	FormatIris    OutputFormat = "IRIS"
)

// outputFormats maps each supported format to its file extension
// (with dot), as Blender appends it to the render output path.
var outputFormats = map[OutputFormat]string{
	FormatPNG:     ".png",
	FormatJPEG:    ".jpg",
	FormatBMP:     ".bmp",
	FormatTIFF:    ".tif",
	FormatOpenEXR: ".exr",
	FormatTGA:     ".tga",
	FormatIris:    ".rgb",
}

// ParseOutputFormat validates an output format identifier.
func ParseOutputFormat(name string) (OutputFormat, error) {
	format := OutputFormat(name)
	if _, ok := outputFormats[format]; !ok {
		return "", fmt.Errorf("unsupported output format %q", name)
	}
	return format, nil
}

// Extension returns the file extension (including the dot) Blender
// uses for this format.
func (f OutputFormat) Extension() string {
	return outputFormats[f]
}

// OutputFormatNames lists the supported format identifiers in a fixed
// order, for template enumerations and help text.
func OutputFormatNames() []string {
	return []string{
		string(FormatPNG),
		string(FormatJPEG),
		string(FormatBMP),
		string(FormatTIFF),
		string(FormatOpenEXR),
		string(FormatTGA),
		string(FormatIris),
	}
}
