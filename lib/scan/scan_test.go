// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/renderbeam/renderbeam/lib/testutil"
)

func TestBlenderRulesClassification(t *testing.T) {
	scanner := New(BlenderRules(), false)

	cases := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "frame complete",
			line: "BlenderWorker: finished rendering frame 12",
			want: Event{Kind: KindFrameComplete, Frame: 12},
		},
		{
			name: "cycles progress",
			line: "Fra:12 Mem:128.00M (Peak 130.00M) | Time:00:01.50 | Sample 64/128",
			want: Event{Kind: KindProgress, Percent: 50},
		},
		{
			name: "eevee progress",
			line: "Fra:3 Mem:64.00M | Rendering 25 / 100 samples",
			want: Event{Kind: KindProgress, Percent: 25},
		},
		{
			name: "version",
			line: "BlenderWorker: blender version 4.2.1",
			want: Event{Kind: KindVersion, Version: "4.2.1"},
		},
		{
			name: "warning class error",
			line: "Error: Cannot read file /scenes/missing.blend",
			want: Event{Kind: KindWarning},
		},
		{
			name: "warning class exception",
			line: "Traceback Exception: boom",
			want: Event{Kind: KindWarning},
		},
		{
			name: "unmatched passes through raw",
			line: "Saved: '/out/frame_0001.png'",
			want: Event{Kind: KindRaw},
		},
	}

	for _, c := range cases {
		got := scanner.ScanLine(c.line)
		if got.Kind != c.want.Kind {
			t.Errorf("%s: kind = %v, want %v", c.name, got.Kind, c.want.Kind)
			continue
		}
		if got.Percent != c.want.Percent {
			t.Errorf("%s: percent = %d, want %d", c.name, got.Percent, c.want.Percent)
		}
		if got.Frame != c.want.Frame {
			t.Errorf("%s: frame = %d, want %d", c.name, got.Frame, c.want.Frame)
		}
		if got.Version != c.want.Version {
			t.Errorf("%s: version = %q, want %q", c.name, got.Version, c.want.Version)
		}
		if got.Line != c.line {
			t.Errorf("%s: original line not preserved", c.name)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	// A cycles sample line that also contains the warning-class token
	// "Error" fires only the earlier progress rule.
	scanner := New(BlenderRules(), false)
	event := scanner.ScanLine("Fra:1 Mem:1.00M ErrorBudget | Sample 10/100")
	if event.Kind != KindProgress {
		t.Fatalf("kind = %v, want progress (first match wins)", event.Kind)
	}
	if event.Percent != 10 {
		t.Fatalf("percent = %d, want 10", event.Percent)
	}
}

func TestStrictEscalatesWarnings(t *testing.T) {
	line := "Warning: Dependency cycle detected"

	relaxed := New(BlenderRules(), false)
	if got := relaxed.ScanLine(line).Kind; got != KindWarning {
		t.Fatalf("non-strict kind = %v, want warning", got)
	}
	// Idempotent: scanning the same line again yields the same kind.
	if got := relaxed.ScanLine(line).Kind; got != KindWarning {
		t.Fatalf("repeated non-strict scan changed kind to %v", got)
	}

	strict := New(BlenderRules(), true)
	if got := strict.ScanLine(line).Kind; got != KindFatal {
		t.Fatalf("strict kind = %v, want fatal", got)
	}
	if got := strict.ScanLine(line).Kind; got != KindFatal {
		t.Fatalf("repeated strict scan changed kind to %v", got)
	}
}

func TestProgressFloor(t *testing.T) {
	scanner := New(BlenderRules(), false)
	event := scanner.ScanLine("Fra:1 | Sample 1/3")
	if event.Percent != 33 {
		t.Fatalf("percent = %d, want 33 (floored)", event.Percent)
	}
}

func TestMalformedProgressDegradesToRaw(t *testing.T) {
	rules := []Rule{MustRule("broken", `^Sample (\d+)$`, KindProgress)}
	scanner := New(rules, false)
	if got := scanner.ScanLine("Sample 5").Kind; got != KindRaw {
		t.Fatalf("kind = %v, want raw for rule missing a total group", got)
	}
}

func TestRunDrainsReader(t *testing.T) {
	input := strings.Join([]string{
		"BlenderWorker: blender version 4.2.1",
		"Fra:1 | Sample 50/100",
		"Saved: '/out/frame_0001.png'",
		"BlenderWorker: finished rendering frame 1",
	}, "\n")

	scanner := New(BlenderRules(), false)
	events := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := scanner.Run(context.Background(), strings.NewReader(input), events); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	wantKinds := []Kind{KindVersion, KindProgress, KindRaw, KindFrameComplete}
	for i, want := range wantKinds {
		event := testutil.RequireReceive(t, events, 5*time.Second, "event %d", i)
		if event.Kind != want {
			t.Fatalf("event %d kind = %v, want %v", i, event.Kind, want)
		}
	}
	testutil.RequireClosed(t, done, 5*time.Second, "scanner finished")
}

func TestCompileRuleRejectsBadPattern(t *testing.T) {
	if _, err := CompileRule("bad", "(", KindWarning); err == nil {
		t.Fatal("invalid pattern accepted")
	}
}
