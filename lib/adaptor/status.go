// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package adaptor

import "log/slog"

// StatusReporter receives render progress and human-readable status
// messages. Progress is last-write-wins; duplicate percentages are
// expected and tolerated.
type StatusReporter interface {
	Progress(percent int)
	Status(message string)
}

// LogReporter reports status through structured logging.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter that logs progress and status.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Progress(percent int) {
	r.logger.Info("render progress", "percent", percent)
}

func (r *LogReporter) Status(message string) {
	r.logger.Info("session status", "message", message)
}
