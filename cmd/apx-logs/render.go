// Copyright 2026 The Apx Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/apx-tools/apx/lib/applog"
)

// severityStyles maps severity names to display styles. Unknown
// severities (the "SEV<n>" forms) render unstyled.
var severityStyles = map[string]lipgloss.Style{
	"TRACE": lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	"DEBUG": lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	"INFO":  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	"ERROR": lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	"FATAL": lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
}

var faintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

// renderer formats records for output. One renderer serves the whole
// run; it carries no per-record state.
type renderer struct {
	jsonOutput bool
	noColor    bool
}

func newRenderer(jsonOutput, noColor bool) *renderer {
	return &renderer{jsonOutput: jsonOutput, noColor: noColor}
}

func (r *renderer) Render(record *applog.Record) string {
	if r.jsonOutput {
		data, err := json.Marshal(toJSONRecord(record))
		if err != nil {
			// Stored fields are all strings and integers; this cannot
			// fail in practice, but a record must never vanish silently.
			return fmt.Sprintf(`{"id":%d,"error":%q}`, record.ID, err.Error())
		}
		return string(data)
	}
	return r.renderText(record)
}

func (r *renderer) renderText(record *applog.Record) string {
	timestamp := formatTimestamp(record.EffectiveTimestamp())
	severity := applog.SeverityName(record.SeverityNumber)

	line := fmt.Sprintf("%s %s", timestamp, r.styleSeverity(severity))

	if record.ServiceName != "" {
		line += " " + r.faint(record.ServiceName)
	}
	if record.AppPath != "" {
		line += " " + r.faint("("+record.AppPath+")")
	}
	if record.Body != "" {
		line += " " + record.Body
	}
	if record.LogAttributes != "" {
		line += " " + r.faint(record.LogAttributes)
	}
	if record.TraceID != "" {
		line += " " + r.faint("trace="+record.TraceID)
	}
	return line
}

// styleSeverity pads the severity to a fixed width so bodies align,
// then applies the severity color.
func (r *renderer) styleSeverity(severity string) string {
	padded := fmt.Sprintf("%-5s", severity)
	if r.noColor {
		return padded
	}
	style, ok := severityStyles[severity]
	if !ok {
		return padded
	}
	return style.Render(padded)
}

func (r *renderer) faint(text string) string {
	if r.noColor {
		return text
	}
	return faintStyle.Render(text)
}

// formatTimestamp renders Unix nanoseconds as local time with
// millisecond precision. Zero means the record carried no usable
// timestamp at all.
func formatTimestamp(nanoseconds int64) string {
	if nanoseconds == 0 {
		return "-"
	}
	return time.Unix(0, nanoseconds).Local().Format("2006-01-02T15:04:05.000")
}
