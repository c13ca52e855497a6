// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/toeirei/launchpad/internal/deploy"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/model"
)

// DeployFunc runs a deployment, reporting progress to obs.
type DeployFunc func(ctx context.Context, obs deploy.Observer) (*deploy.Result, error)

// eventMsg carries a deployment event into the program.
type eventMsg deploy.Event

// deployDoneMsg signals that the deployment returned.
type deployDoneMsg struct {
	res *deploy.Result
	err error
}

type progressModel struct {
	spinner   spinner.Model
	service   string
	events    []deploy.Event
	done      bool
	cancelled bool
	res       *deploy.Result
	err       error
	cancel    context.CancelFunc
}

func newProgressModel(service string, cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return progressModel{spinner: s, service: service, cancel: cancel}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		e := deploy.Event(msg)
		m.events = append(m.events, e)
		if m.service == "" {
			m.service = e.Service
		}
		return m, nil
	case deployDoneMsg:
		m.done = true
		m.res, m.err = msg.res, msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// The deployment is cancelled; its failure is still recorded.
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(i18n.T("tui.deploy_title", m.service)))
	b.WriteString("\n\n")

	for i, e := range m.events {
		current := i == len(m.events)-1 && !m.done
		var icon string
		switch {
		case e.Err != nil || e.Stage == model.DeploymentFailed:
			icon = errorStyle.Render("✗")
		case current:
			icon = m.spinner.View()
		default:
			icon = successStyle.Render("✓")
		}
		stage := statusStyle(string(e.Stage)).Render(fmt.Sprintf("%-9s", e.Stage))
		line := fmt.Sprintf("%s %s %s", icon, stage, e.Message)
		b.WriteString(line)
		b.WriteString("\n")
		if e.Err != nil {
			b.WriteString("  ")
			b.WriteString(errorStyle.Render(e.Err.Error()))
			b.WriteString("\n")
		}
	}
	if len(m.events) == 0 && !m.done {
		b.WriteString(m.spinner.View() + " " + i18n.T("tui.waiting") + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.done && m.err == nil && m.res != nil && m.res.Instance != nil:
		b.WriteString(successStyle.Render(i18n.T("tui.live", m.res.Instance.URL())))
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render(i18n.T("tui.failed")))
	case m.cancelled:
		b.WriteString(specialStyle.Render(i18n.T("tui.cancelling")))
	default:
		b.WriteString(helpStyle.Render(i18n.T("tui.help_cancel")))
	}
	b.WriteString("\n")
	return b.String()
}

// RunDeploy runs fn while rendering its progress to out. Pressing ctrl+c
// cancels the context passed to fn; RunDeploy always waits for fn to return.
func RunDeploy(ctx context.Context, in io.Reader, out io.Writer, service string, fn DeployFunc) (*deploy.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A nil in disables keyboard input.
	p := tea.NewProgram(newProgressModel(service, cancel), tea.WithOutput(out), tea.WithInput(in))

	type outcome struct {
		res *deploy.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(ctx, deploy.ObserverFunc(func(e deploy.Event) { p.Send(eventMsg(e)) }))
		done <- outcome{res, err}
		p.Send(deployDoneMsg{res: res, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		o := <-done
		if o.err == nil {
			o.err = err
		}
		return o.res, o.err
	}
	o := <-done
	return o.res, o.err
}

// RunPlain runs fn reporting progress through the logger, for output that is
// not a terminal.
func RunPlain(ctx context.Context, fn DeployFunc) (*deploy.Result, error) {
	return fn(ctx, deploy.LogObserver{})
}
