// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package scan

// Sentinel lines printed by the worker around the host application's
// own output. The worker prints these exactly; the patterns below and
// the worker must stay in sync.
const (
	// FrameCompleteSentinel is the format the worker prints after a
	// frame renders successfully. The trailing %d is the frame number.
	FrameCompleteSentinel = "BlenderWorker: finished rendering frame %d"

	// VersionSentinel is the format the worker prints once at startup
	// with Blender's version string.
	VersionSentinel = "BlenderWorker: blender version %s"
)

// BlenderRules returns the default pattern table for Blender output.
//
// Order matters: the worker's sentinel lines are checked before the
// broad warning-class rule, so a sentinel containing the word "frame"
// can never be misclassified, and progress lines win over the
// warning rule even when a sample line mentions "Error" in a field
// name. Workbench emits no per-sample progress output, so workbench
// sessions only see frame-complete events.
func BlenderRules() []Rule {
	return []Rule{
		MustRule("frame-complete",
			`^BlenderWorker: finished rendering frame ([0-9]+)$`,
			KindFrameComplete),
		MustRule("cycles-progress",
			`^Fra:.*Sample (\d+)/(\d+)$`,
			KindProgress),
		MustRule("eevee-progress",
			`^Fra:.*Rendering (\d+) / (\d+) samples$`,
			KindProgress),
		MustRule("blender-version",
			`^BlenderWorker: blender version ([0-9]+\.[0-9]+\.[0-9]+)`,
			KindVersion),
		MustRule("warning-class",
			`Exception:|Error:|Warning`,
			KindWarning),
	}
}
