package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/go-authgate/session-cli/apiclient"
)

func update(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModel_RefreshLifecycle(t *testing.T) {
	m := update(NewModel(),
		MsgRequesting{Method: "GET", Path: "/missions"},
		MsgRefreshing{Started: time.Now()},
	)
	if m.state != stateRefreshing {
		t.Fatalf("state = %d, want refreshing", m.state)
	}
	if !strings.Contains(m.viewMain(), "Refreshing access token") {
		t.Errorf("main view does not show the refresh")
	}

	m = update(m, MsgRefreshOK{}, MsgResponse{Body: "{}"}, MsgStats{Stats: apiclient.Stats{Refreshes: 1, Queued: 4}}, MsgDone{})
	if m.state != stateSuccess {
		t.Fatalf("state = %d, want success", m.state)
	}
	if !strings.Contains(m.viewSuccess(), "queued 4") {
		t.Errorf("success view missing stats: %q", m.viewSuccess())
	}
}

func TestModel_Fatal(t *testing.T) {
	m := update(NewModel(), MsgSessionExpired{}, MsgFatal{Err: errors.New("Your session has expired")})
	if m.state != stateError {
		t.Fatalf("state = %d, want error", m.state)
	}
	view := m.viewError()
	if !strings.Contains(view, "Your session has expired") || !strings.Contains(view, "run 'login' again") {
		t.Errorf("error view = %q", view)
	}
}

func TestPlainDisplayer_Status(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)
	d.Status(StatusInfo{Store: "tokens.json", HasAccess: true, Expiry: time.Now().Add(90 * time.Second)})

	out := buf.String()
	for _, want := range []string{"tokens.json", "Access token:  present", "Refresh token: missing", "in 1m"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestPreview(t *testing.T) {
	if got := preview("a\nb\nc\n", 5); got != "a\nb\nc" {
		t.Errorf("preview() = %q", got)
	}
	if got := preview("a\nb\nc", 2); got != "a\nb\n… 1 more lines" {
		t.Errorf("preview() = %q", got)
	}
}
