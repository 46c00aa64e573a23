// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest records what a render session produced: one entry
// per rendered frame with the output file's size and BLAKE3 digest.
// The manifest is written at session stop next to the rendered frames
// so downstream tooling can verify transfers.
package manifest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/renderbeam/renderbeam/lib/clock"
)

// Entry describes one rendered frame.
type Entry struct {
	Frame  int    `yaml:"frame"`
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	BLAKE3 string `yaml:"blake3"`
}

// Manifest is the session output record.
type Manifest struct {
	GeneratedAt time.Time `yaml:"generated_at"`
	Frames      []Entry   `yaml:"frames"`
}

// HashFile computes the hex BLAKE3 digest and size of a file.
func HashFile(path string) (digest string, size int64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	size, err = io.Copy(hasher, file)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// Builder accumulates frame outputs during a session. Safe for
// concurrent Record calls; a frame recorded twice keeps the latest
// path.
type Builder struct {
	clock clock.Clock

	mu     sync.Mutex
	frames map[int]string
}

// NewBuilder creates an empty builder stamping manifests with the
// given clock.
func NewBuilder(clk clock.Clock) *Builder {
	return &Builder{clock: clk, frames: map[int]string{}}
}

// Record notes where a frame's output landed.
func (b *Builder) Record(frame int, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames[frame] = path
}

// Len reports how many frames have been recorded.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Build hashes every recorded output and assembles the manifest,
// frames in ascending order. A missing output file fails the build:
// a frame the session claimed to render must exist on disk.
func (b *Builder) Build() (*Manifest, error) {
	b.mu.Lock()
	frames := make(map[int]string, len(b.frames))
	for frame, path := range b.frames {
		frames[frame] = path
	}
	b.mu.Unlock()

	order := make([]int, 0, len(frames))
	for frame := range frames {
		order = append(order, frame)
	}
	sort.Ints(order)

	built := &Manifest{GeneratedAt: b.clock.Now().UTC()}
	for _, frame := range order {
		path := frames[frame]
		digest, size, err := HashFile(path)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame, err)
		}
		built.Frames = append(built.Frames, Entry{
			Frame:  frame,
			Path:   path,
			Size:   size,
			BLAKE3: digest,
		})
	}
	return built, nil
}

// Write builds the manifest and writes it as YAML.
func (b *Builder) Write(path string) error {
	built, err := b.Build()
	if err != nil {
		return err
	}
	encoded, err := yaml.Marshal(built)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var loaded Manifest
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &loaded, nil
}

// Verify re-hashes every entry and reports the frames whose files are
// missing or whose digests no longer match.
func (m *Manifest) Verify() (bad []int) {
	for _, entry := range m.Frames {
		digest, size, err := HashFile(entry.Path)
		if err != nil || digest != entry.BLAKE3 || size != entry.Size {
			bad = append(bad, entry.Frame)
		}
	}
	return bad
}
