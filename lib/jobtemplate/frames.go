// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobtemplate builds render-farm job bundles: a job template,
// its parameter values, and the asset references a scheduler needs to
// ship a Blender scene to workers.
package jobtemplate

import (
	"fmt"
	"strconv"
	"strings"
)

// FrameRangeError reports an unparseable or inconsistent frame-range
// expression.
type FrameRangeError struct {
	Expression string
	Reason     string
}

func (e *FrameRangeError) Error() string {
	return fmt.Sprintf("invalid frame range %q: %s", e.Expression, e.Reason)
}

// ParseFrameRange expands a frame-range expression into the ordered
// frame list it denotes. The grammar is comma-separated terms, each
// one of:
//
//	N      a single frame
//	A-B    every frame from A through B inclusive
//	A-B:S  every S-th frame from A through B inclusive
//
// Duplicates across terms are dropped, first occurrence wins. Order
// follows the expression, not numeric order.
func ParseFrameRange(expression string) ([]int, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, &FrameRangeError{Expression: expression, Reason: "empty expression"}
	}

	var frames []int
	seen := map[int]bool{}
	for _, term := range strings.Split(trimmed, ",") {
		expanded, err := parseTerm(strings.TrimSpace(term))
		if err != nil {
			return nil, err
		}
		for _, frame := range expanded {
			if seen[frame] {
				continue
			}
			seen[frame] = true
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

func parseTerm(term string) ([]int, error) {
	if term == "" {
		return nil, &FrameRangeError{Expression: term, Reason: "empty term"}
	}

	rangePart := term
	step := 1
	if start, stepText, hasStep := strings.Cut(term, ":"); hasStep {
		parsed, err := strconv.Atoi(strings.TrimSpace(stepText))
		if err != nil {
			return nil, &FrameRangeError{Expression: term, Reason: "step is not an integer"}
		}
		if parsed <= 0 {
			return nil, &FrameRangeError{Expression: term, Reason: "step must be positive"}
		}
		step = parsed
		rangePart = strings.TrimSpace(start)
	}

	first, last, isRange := strings.Cut(rangePart, "-")
	if !isRange {
		frame, err := strconv.Atoi(rangePart)
		if err != nil {
			return nil, &FrameRangeError{Expression: term, Reason: "frame is not an integer"}
		}
		if frame < 0 {
			return nil, &FrameRangeError{Expression: term, Reason: "frame must be non-negative"}
		}
		if step != 1 {
			return nil, &FrameRangeError{Expression: term, Reason: "step requires a range"}
		}
		return []int{frame}, nil
	}

	from, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return nil, &FrameRangeError{Expression: term, Reason: "range start is not an integer"}
	}
	to, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return nil, &FrameRangeError{Expression: term, Reason: "range end is not an integer"}
	}
	if from < 0 {
		return nil, &FrameRangeError{Expression: term, Reason: "frames must be non-negative"}
	}
	if to < from {
		return nil, &FrameRangeError{Expression: term, Reason: "range end precedes start"}
	}

	var frames []int
	for frame := from; frame <= to; frame += step {
		frames = append(frames, frame)
	}
	return frames, nil
}

// FormatFrameRange is the inverse of ParseFrameRange for the common
// case: it renders a sorted, contiguous run as "A-B" and anything else
// as an explicit comma list.
func FormatFrameRange(frames []int) string {
	if len(frames) == 0 {
		return ""
	}
	contiguous := true
	for i := 1; i < len(frames); i++ {
		if frames[i] != frames[i-1]+1 {
			contiguous = false
			break
		}
	}
	if contiguous && len(frames) > 1 {
		return fmt.Sprintf("%d-%d", frames[0], frames[len(frames)-1])
	}
	parts := make([]string, len(frames))
	for i, frame := range frames {
		parts[i] = strconv.Itoa(frame)
	}
	return strings.Join(parts, ",")
}
