// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry provides utilities for setting up and configuring
// application observability, including logging, tracing, and metrics.
// This file handles structured logging in the Cloud Logging JSON format, with
// the trace of the current request attached to every record.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"go.opentelemetry.io/otel/trace"
)

// Cloud Logging special payload fields.
// See: https://cloud.google.com/logging/docs/structured-logging#special-payload-fields
const (
	traceKey        = "logging.googleapis.com/trace"
	spanIdKey       = "logging.googleapis.com/spanId"
	traceSampledKey = "logging.googleapis.com/trace_sampled"
)

// spanContextLogHandler wraps another handler and adds the trace and span ids
// of the record's context, so log lines and Cloud Trace spans correlate.
type spanContextLogHandler struct {
	slog.Handler
}

// Handle adds the span context attributes, when there is a valid span.
func (h *spanContextLogHandler) Handle(ctx context.Context, record slog.Record) error {
	if s := trace.SpanContextFromContext(ctx); s.IsValid() {
		record.AddAttrs(
			slog.String(traceKey, s.TraceID().String()),
			slog.String(spanIdKey, s.SpanID().String()),
			slog.Bool(traceSampledKey, s.TraceFlags().IsSampled()),
		)
	}
	return h.Handler.Handle(ctx, record)
}

// WithAttrs keeps the span context injection on derived loggers.
func (h *spanContextLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanContextLogHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup keeps the span context injection on derived loggers.
func (h *spanContextLogHandler) WithGroup(name string) slog.Handler {
	return &spanContextLogHandler{Handler: h.Handler.WithGroup(name)}
}

// replacer renames the slog keys to the ones Cloud Logging reads
// ("severity", "timestamp", "message") and maps WARN to WARNING.
// https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry#LogSeverity
func replacer(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		if level, ok := a.Value.Any().(slog.Level); ok && level == slog.LevelWarn {
			a.Value = slog.StringValue("WARNING")
		}
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// ParseLevel maps a configured level name to a slog.Level. An empty name is Info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// NewLogHandler builds the JSON handler used by the application, writing to w.
func NewLogHandler(w io.Writer, level slog.Level) slog.Handler {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replacer,
	})
	return &spanContextLogHandler{Handler: jsonHandler}
}

// SetupLogging installs the default slog logger. Output of the standard `log`
// package goes through the same handler.
//
// Inputs:
//   - config: The telemetry section. LogFile, when set, receives a copy of
//     every line written to stdout; the file is appended to.
//
// Outputs:
//   - func() error: Closes the log file, if any. Safe to call when none was opened.
//   - error: An invalid level or an unwritable log file.
func SetupLogging(config cloud.Telemetry) (func() error, error) {
	level, err := ParseLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	closeLog := func() error { return nil }
	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closeLog = file.Close
	}

	// Also routes the standard log package through the handler, at Info.
	slog.SetDefault(slog.New(NewLogHandler(out, level)))
	return closeLog, nil
}
