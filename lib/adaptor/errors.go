// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package adaptor

import (
	"fmt"
	"strings"
	"time"
)

// StartupTimeoutError is returned when the worker does not reach
// readiness within the configured startup timeout. The session is
// terminally failed; retries belong to the farm scheduler.
type StartupTimeoutError struct {
	Timeout time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("host application not ready after %s", e.Timeout)
}

// ScannedFatalError is returned when the output scanner classifies a
// line as fatal (directly, or a warning escalated under strict error
// checking). Recent holds the output lines leading up to it.
type ScannedFatalError struct {
	Line   string
	Recent []string
}

func (e *ScannedFatalError) Error() string {
	if len(e.Recent) == 0 {
		return fmt.Sprintf("fatal error in render output: %s", e.Line)
	}
	return fmt.Sprintf("fatal error in render output: %s\nrecent output:\n  %s",
		e.Line, strings.Join(e.Recent, "\n  "))
}

// HostProcessCrashError is returned when the worker process exits
// while the session still needs it. The scene state is lost with the
// process; the session is terminally failed.
type HostProcessCrashError struct {
	Err error
}

func (e *HostProcessCrashError) Error() string {
	if e.Err == nil {
		return "host process exited unexpectedly"
	}
	return fmt.Sprintf("host process exited unexpectedly: %s", e.Err)
}

func (e *HostProcessCrashError) Unwrap() error { return e.Err }

// StateError is returned when an operation is invalid in the session's
// current state (Run while rendering, Start twice).
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Op, e.State)
}
