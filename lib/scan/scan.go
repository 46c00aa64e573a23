// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

// Package scan classifies the host process's output lines into
// structured render events.
//
// The classifier is an ordered table of pattern→kind rules. For each
// line, the first matching rule fires and scanning stops; lines that
// match no rule pass through as raw diagnostic events. The table is
// plain data so it can be tested and versioned independently of the
// process plumbing that feeds it.
package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
)

// Kind identifies what a scanned line means to the lifecycle
// controller.
type Kind int

const (
	// KindRaw is a line that matched no rule; passed through for
	// diagnostics.
	KindRaw Kind = iota
	// KindProgress carries a render progress percentage.
	KindProgress
	// KindFrameComplete signals that the current frame finished.
	KindFrameComplete
	// KindWarning is a recognized warning-class line. Under strict
	// error checking it is escalated to KindFatal at emit time.
	KindWarning
	// KindFatal is a recognized fatal error line; it fails the
	// current task.
	KindFatal
	// KindVersion carries the host application's version string.
	KindVersion
)

// String returns the kind name for logs and test failure messages.
func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindFrameComplete:
		return "frame-complete"
	case KindWarning:
		return "warning"
	case KindFatal:
		return "fatal"
	case KindVersion:
		return "version"
	default:
		return "raw"
	}
}

// Event is one classified output line.
type Event struct {
	Kind Kind

	// Line is the full original line, kept for diagnostics and for
	// attaching context to task failures.
	Line string

	// Percent is set for KindProgress (0-100, floored).
	Percent int

	// Frame is set for KindFrameComplete.
	Frame int

	// Version is set for KindVersion.
	Version string
}

// Rule is one entry of the pattern table. Kind determines how the
// pattern's capture groups are interpreted:
//
//   - KindProgress: two integer groups, current and total; the event
//     percent is floor(current/total*100).
//   - KindFrameComplete: one integer group, the frame number.
//   - KindVersion: one group, the version string.
//   - KindWarning, KindFatal: no groups required.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Kind    Kind
}

// Scanner applies an ordered rule table to output lines.
type Scanner struct {
	rules  []Rule
	strict bool
}

// New creates a Scanner over the given rule table. When strict is
// true, warning-class matches are escalated to fatal events; when
// false they stay warnings (logged and counted, never failing the
// task).
func New(rules []Rule, strict bool) *Scanner {
	return &Scanner{rules: rules, strict: strict}
}

// ScanLine classifies one line. First match wins: a line matching two
// rules fires only the earlier one.
func (s *Scanner) ScanLine(line string) Event {
	for _, rule := range s.rules {
		match := rule.Pattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		return s.eventFromMatch(rule, match, line)
	}
	return Event{Kind: KindRaw, Line: line}
}

// Run drains reader line by line, sending one event per line until
// EOF or context cancellation. The events channel is not closed; the
// caller owns it. This runs on its own goroutine so the host process
// never blocks on a full stdout buffer while the adaptor waits on a
// pending command.
func (s *Scanner) Run(ctx context.Context, reader io.Reader, events chan<- Event) error {
	lineScanner := bufio.NewScanner(reader)
	lineScanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for lineScanner.Scan() {
		select {
		case events <- s.ScanLine(lineScanner.Text()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lineScanner.Err()
}

// eventFromMatch builds the event for a fired rule, interpreting
// capture groups per the rule kind. A rule whose groups fail to parse
// degrades to a raw event rather than halting the scan: the pattern
// table is configuration, and bad configuration must not take down a
// render session.
func (s *Scanner) eventFromMatch(rule Rule, match []string, line string) Event {
	switch rule.Kind {
	case KindProgress:
		if len(match) < 3 {
			return Event{Kind: KindRaw, Line: line}
		}
		current, errCurrent := strconv.Atoi(match[1])
		total, errTotal := strconv.Atoi(match[2])
		if errCurrent != nil || errTotal != nil || total <= 0 {
			return Event{Kind: KindRaw, Line: line}
		}
		return Event{
			Kind:    KindProgress,
			Line:    line,
			Percent: current * 100 / total,
		}

	case KindFrameComplete:
		if len(match) < 2 {
			return Event{Kind: KindRaw, Line: line}
		}
		frame, err := strconv.Atoi(match[1])
		if err != nil {
			return Event{Kind: KindRaw, Line: line}
		}
		return Event{Kind: KindFrameComplete, Line: line, Frame: frame}

	case KindVersion:
		if len(match) < 2 {
			return Event{Kind: KindRaw, Line: line}
		}
		return Event{Kind: KindVersion, Line: line, Version: match[1]}

	case KindWarning:
		if s.strict {
			return Event{Kind: KindFatal, Line: line}
		}
		return Event{Kind: KindWarning, Line: line}

	case KindFatal:
		return Event{Kind: KindFatal, Line: line}

	default:
		return Event{Kind: KindRaw, Line: line}
	}
}

// MustRule compiles a rule or panics. The default table is static; a
// pattern that does not compile is a programming error caught at init.
func MustRule(name, pattern string, kind Kind) Rule {
	return Rule{
		Name:    name,
		Pattern: regexp.MustCompile(pattern),
		Kind:    kind,
	}
}

// CompileRule compiles a rule from configuration data.
func CompileRule(name, pattern string, kind Kind) (Rule, error) {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compiling rule %q: %w", name, err)
	}
	return Rule{Name: name, Pattern: compiled, Kind: kind}, nil
}
