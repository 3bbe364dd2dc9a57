// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors and warnings
}

// eventLogWriter turns log lines into event log entries. Entries are dropped
// while the TUI is not keeping up, so logging never blocks the bridge.
type eventLogWriter struct {
	entries chan logEntry
}

func newEventLogWriter() *eventLogWriter {
	return &eventLogWriter{entries: make(chan logEntry, 256)}
}

func (w *eventLogWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}
	entry := logEntry{
		timestamp: time.Now(),
		message:   line,
		isError:   strings.HasPrefix(line, "ERR") || strings.HasPrefix(line, "WRN"),
	}
	select {
	case w.entries <- entry:
	default:
	}
	return len(p), nil
}

// logger returns a console logger writing into the event log
func (w *eventLogWriter) logger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}).With().Timestamp().Logger()
}

// statusStyle colours a host status for the header
func statusStyle(status host.Status) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch status {
	case host.StatusOk:
		return style.Foreground(lipgloss.Color("10"))
	case host.StatusConnecting:
		return style.Foreground(lipgloss.Color("11"))
	case host.StatusDisconnected:
		return style.Foreground(lipgloss.Color("241"))
	default:
		return style.Foreground(lipgloss.Color("9"))
	}
}

// formatElapsed formats a duration to a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
