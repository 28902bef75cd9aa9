// Package notify delivers pipeline messages to actors and staff.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/ui"
)

// Logger writes every message to a structured logger.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Notify(ctx context.Context, actor, message string, severity deploytypes.Severity) error {
	level := slog.LevelInfo
	if severity == deploytypes.SeverityError {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, message, "actor", actor, "severity", string(severity))
	return nil
}

// Terminal prints messages for the CLI.
type Terminal struct{}

func (Terminal) Notify(_ context.Context, _ string, message string, severity deploytypes.Severity) error {
	message = plainText(message)
	switch severity {
	case deploytypes.SeveritySuccess:
		ui.Success("%s", message)
	case deploytypes.SeverityError:
		ui.Error("%s", message)
	default:
		ui.Info("%s", message)
	}
	return nil
}

// plainText drops the bold markers messages are written with.
func plainText(s string) string {
	return strings.ReplaceAll(s, "*", "")
}

// Multi sends every message to all sinks. A failing sink does not stop the
// others; failures are logged and returned joined.
type Multi struct {
	sinks  []deploytypes.NotificationSink
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...deploytypes.NotificationSink) *Multi {
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, actor, message string, severity deploytypes.Severity) error {
	var errs []error
	for _, s := range m.sinks {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, actor, message, severity); err != nil {
			m.logger.Error("failed to deliver notification", "actor", actor, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(context.Context, string, string, deploytypes.Severity) error { return nil }

// StaffMessage is sent to staff when a command fails unexpectedly.
func StaffMessage(actor, command string, cause error, staff []string) string {
	msg := fmt.Sprintf("@%s had an issue while running the '%s' command: %v", actor, command, cause)
	if len(staff) > 0 {
		mentions := make([]string, len(staff))
		for i, s := range staff {
			mentions[i] = "@" + s
		}
		msg += "\ncc " + strings.Join(mentions, " ")
	}
	return msg
}
