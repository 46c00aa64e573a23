// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/renderbeam/renderbeam/lib/clock"
)

func writeFrame(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestBuilderOrdersAndHashes(t *testing.T) {
	dir := t.TempDir()
	frame3 := writeFrame(t, dir, "f_0003.png", "frame three")
	frame1 := writeFrame(t, dir, "f_0001.png", "frame one")
	frame1Copy := writeFrame(t, dir, "copy.png", "frame one")

	epoch := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.Fake(epoch)
	builder := NewBuilder(fake)
	builder.Record(3, frame3)
	builder.Record(1, frame1)

	built, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !built.GeneratedAt.Equal(epoch) {
		t.Errorf("GeneratedAt = %v", built.GeneratedAt)
	}
	if len(built.Frames) != 2 {
		t.Fatalf("frames = %d", len(built.Frames))
	}
	if built.Frames[0].Frame != 1 || built.Frames[1].Frame != 3 {
		t.Errorf("frame order = %d, %d", built.Frames[0].Frame, built.Frames[1].Frame)
	}
	if built.Frames[0].Size != int64(len("frame one")) {
		t.Errorf("size = %d", built.Frames[0].Size)
	}
	if len(built.Frames[0].BLAKE3) != 64 {
		t.Errorf("digest length = %d", len(built.Frames[0].BLAKE3))
	}
	if built.Frames[0].BLAKE3 == built.Frames[1].BLAKE3 {
		t.Error("distinct contents share a digest")
	}

	copyDigest, _, err := HashFile(frame1Copy)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if copyDigest != built.Frames[0].BLAKE3 {
		t.Error("identical contents hash differently")
	}
}

func TestBuilderLatestPathWins(t *testing.T) {
	dir := t.TempDir()
	first := writeFrame(t, dir, "first.png", "a")
	second := writeFrame(t, dir, "second.png", "b")

	builder := NewBuilder(clock.Fake(time.Now()))
	builder.Record(5, first)
	builder.Record(5, second)

	built, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(built.Frames) != 1 || built.Frames[0].Path != second {
		t.Fatalf("frames = %+v", built.Frames)
	}
}

func TestBuilderMissingOutputFails(t *testing.T) {
	builder := NewBuilder(clock.Fake(time.Now()))
	builder.Record(1, filepath.Join(t.TempDir(), "never-rendered.png"))

	if _, err := builder.Build(); err == nil {
		t.Fatal("missing output accepted")
	}
}

func TestWriteLoadVerify(t *testing.T) {
	dir := t.TempDir()
	frame := writeFrame(t, dir, "f_0001.png", "pixels")

	builder := NewBuilder(clock.Fake(time.Now()))
	builder.Record(1, frame)

	manifestPath := filepath.Join(dir, "manifest.yaml")
	if err := builder.Write(manifestPath); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(manifestPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bad := loaded.Verify(); len(bad) != 0 {
		t.Fatalf("Verify flagged %v on untouched outputs", bad)
	}

	// Corrupt the frame; verification must flag it.
	if err := os.WriteFile(frame, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tampering: %v", err)
	}
	if bad := loaded.Verify(); len(bad) != 1 || bad[0] != 1 {
		t.Fatalf("Verify = %v, want [1]", bad)
	}
}
