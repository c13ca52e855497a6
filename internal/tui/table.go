// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// DeploymentsTable renders deployment history, newest first as given.
func DeploymentsTable(ds []model.Deployment) string {
	t := newTable(
		i18n.T("table.id"),
		i18n.T("table.service"),
		i18n.T("table.status"),
		i18n.T("table.manifest"),
		i18n.T("table.created"),
		i18n.T("table.error"),
	)
	for _, d := range ds {
		t.Row(
			shortID(d.ID),
			d.Service,
			statusStyle(string(d.Status)).Render(string(d.Status)),
			d.ManifestFingerprint,
			formatTime(d.CreatedAt),
			truncate(d.Error, 48),
		)
	}
	return t.String()
}

// BuildsTable renders build records.
func BuildsTable(bs []model.Build) string {
	t := newTable(
		i18n.T("table.id"),
		i18n.T("table.service"),
		i18n.T("table.status"),
		i18n.T("table.manifest"),
		i18n.T("table.runtime"),
		i18n.T("table.created"),
	)
	for _, b := range bs {
		t.Row(
			fmt.Sprint(b.ID),
			b.Service,
			statusStyle(string(b.Status)).Render(string(b.Status)),
			b.Fingerprint,
			b.RuntimeVersion,
			formatTime(b.CreatedAt),
		)
	}
	return t.String()
}

// AuditTable renders audit log entries.
func AuditTable(entries []model.AuditLogEntry) string {
	t := newTable(
		i18n.T("table.timestamp"),
		i18n.T("table.user"),
		i18n.T("table.action"),
		i18n.T("table.details"),
	)
	for _, e := range entries {
		t.Row(e.Timestamp, e.Username, e.Action, e.Details)
	}
	return t.String()
}

// ServiceSummary renders the validated view of one service: its topology,
// health path, environment sources and pinned dependencies.
func ServiceSummary(svc model.Service, top model.Topology, m *model.Manifest) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(svc.Name))
	b.WriteString("\n")

	t := newTable(i18n.T("table.setting"), i18n.T("table.value"))
	t.Row(i18n.T("table.type"), svc.Type)
	if svc.Plan != "" {
		t.Row(i18n.T("table.plan"), svc.Plan)
	}
	t.Row(i18n.T("table.workers"), fmt.Sprint(top.Workers))
	t.Row(i18n.T("table.threads"), fmt.Sprint(top.Threads))
	t.Row(i18n.T("table.capacity"), fmt.Sprint(top.Capacity()))
	t.Row(i18n.T("table.timeout"), top.Timeout.String())
	t.Row(i18n.T("table.bind"), top.Bind)
	health := svc.HealthCheckPath
	if health == "" {
		health = "/"
	}
	t.Row(i18n.T("table.health"), health)
	b.WriteString(t.String())
	b.WriteString("\n")

	env := newTable(i18n.T("table.variable"), i18n.T("table.source"))
	for _, ev := range svc.EnvVars {
		src := string(ev.Source())
		if ev.Source() == model.EnvLiteral {
			src += " (" + ev.Value + ")"
		}
		env.Row(ev.Key, src)
	}
	b.WriteString(env.String())

	if m != nil && len(m.Dependencies) > 0 {
		deps := append([]model.Dependency(nil), m.Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return strings.ToLower(deps[i].Name) < strings.ToLower(deps[j].Name) })
		dt := newTable(i18n.T("table.package"), i18n.T("table.version"))
		for _, d := range deps {
			name := d.Name
			if len(d.Extras) > 0 {
				name += "[" + strings.Join(d.Extras, ",") + "]"
			}
			dt.Row(name, d.Version)
		}
		b.WriteString("\n")
		b.WriteString(dt.String())
	}
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
