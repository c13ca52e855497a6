package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/toeirei/launchpad/internal/deploy"
	"github.com/toeirei/launchpad/internal/i18n"
	"github.com/toeirei/launchpad/internal/model"
)

func init() { i18n.Init("en") }

func TestProgressModel_TracksEvents(t *testing.T) {
	cancelled := false
	m := newProgressModel("voice-auth", func() { cancelled = true })

	next, _ := m.Update(eventMsg{Service: "voice-auth", Stage: model.DeploymentPending, Message: "created"})
	next, _ = next.Update(eventMsg{Service: "voice-auth", Stage: model.DeploymentBuilding, Message: "building 4 dependencies"})
	pm := next.(progressModel)
	if len(pm.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pm.events))
	}
	view := pm.View()
	if !strings.Contains(view, "voice-auth") || !strings.Contains(view, "building 4 dependencies") {
		t.Fatalf("view misses progress:\n%s", view)
	}

	next, _ = pm.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	pm = next.(progressModel)
	if !cancelled || !pm.cancelled {
		t.Fatal("ctrl+c should cancel the deployment")
	}
}

func TestProgressModel_DoneQuits(t *testing.T) {
	m := newProgressModel("svc", nil)
	next, cmd := m.Update(deployDoneMsg{err: errors.New("boom")})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	pm := next.(progressModel)
	if !pm.done || pm.err == nil {
		t.Fatalf("unexpected model: %+v", pm)
	}
}

func TestProgressModel_FailedEventShowsError(t *testing.T) {
	m := newProgressModel("svc", nil)
	next, _ := m.Update(eventMsg{Stage: model.DeploymentFailed, Message: "deployment failed", Err: errors.New("OPENAI_API_KEY not set")})
	view := next.(progressModel).View()
	if !strings.Contains(view, "OPENAI_API_KEY not set") {
		t.Fatalf("error should be shown:\n%s", view)
	}
}

func TestRunDeploy_ReturnsResult(t *testing.T) {
	var out bytes.Buffer
	want := &deploy.Result{Deployment: model.Deployment{ID: "abc", Status: model.DeploymentFailed}}
	res, err := RunDeploy(context.Background(), nil, &out, "svc", func(_ context.Context, obs deploy.Observer) (*deploy.Result, error) {
		obs.Observe(deploy.Event{Stage: model.DeploymentPending, Message: "created", At: time.Now()})
		return want, errors.New("build failed")
	})
	if err == nil || err.Error() != "build failed" {
		t.Fatalf("expected the deploy error, got %v", err)
	}
	if res != want {
		t.Fatalf("expected the deploy result, got %+v", res)
	}
}

func TestRunPlain(t *testing.T) {
	called := false
	_, err := RunPlain(context.Background(), func(_ context.Context, obs deploy.Observer) (*deploy.Result, error) {
		called = true
		obs.Observe(deploy.Event{Stage: model.DeploymentLive, Message: "live"})
		return nil, nil
	})
	if err != nil || !called {
		t.Fatalf("RunPlain: called=%v err=%v", called, err)
	}
}

func TestDeploymentsTable(t *testing.T) {
	out := DeploymentsTable([]model.Deployment{
		{ID: "0123456789abcdef", Service: "voice-auth", Status: model.DeploymentLive, ManifestFingerprint: "feedface", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ID: "short", Service: "voice-auth", Status: model.DeploymentFailed, Error: "line 1\nline 2"},
	})
	for _, want := range []string{"01234567", "voice-auth", "live", "failed", "feedface", "line 1 line 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table misses %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Fatalf("ids should be shortened:\n%s", out)
	}
}

func TestServiceSummary(t *testing.T) {
	noSync := false
	svc := model.Service{
		Type: "web", Name: "voice-auth", Plan: "free",
		EnvVars: []model.EnvVarDecl{
			{Key: "OPENAI_API_KEY", Sync: &noSync},
			{Key: "SECRET_KEY", GenerateValue: true},
			{Key: "PYTHON_VERSION", Value: "3.11.0"},
		},
	}
	top := model.Topology{Workers: 2, Threads: 2, Timeout: 60 * time.Second, Bind: "0.0.0.0:10000"}
	m := &model.Manifest{Dependencies: []model.Dependency{{Name: "psycopg", Version: "3.1.12", Extras: []string{"binary"}}, {Name: "Flask", Version: "3.0.0"}}}

	out := ServiceSummary(svc, top, m)
	for _, want := range []string{"voice-auth", "free", "1m0s", "0.0.0.0:10000", "external", "generate", "3.11.0", "psycopg[binary]", "Flask"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary misses %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Flask") > strings.Index(out, "psycopg") {
		t.Fatalf("dependencies should be sorted:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
