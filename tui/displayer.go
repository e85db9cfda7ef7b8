package tui

import (
	"fmt"
	"io"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/common-nighthawk/go-figure"

	"github.com/go-authgate/session-cli/apiclient"
)

// StatusInfo summarizes the stored session for the status command.
type StatusInfo struct {
	Store      string
	HasAccess  bool
	HasRefresh bool
	// Expiry is the access token's exp claim, zero when unknown.
	Expiry time.Time
}

// Displayer abstracts all output from a CLI command.
type Displayer interface {
	Banner()
	Requesting(method, path string)
	Refreshing()
	RefreshOK()
	RefreshFailed(err error)
	SessionExpired()
	SessionSaved(target string)
	SessionCleared()
	Response(body string)
	RequestFailed(err error)
	BurstResult(index int, err error)
	Stats(s apiclient.Stats)
	Status(info StatusInfo)
	Done()
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprintln(p.w, figure.NewFigure("session-cli", "cybermedium", true).String())
}

func (p *PlainDisplayer) Requesting(method, path string) {
	fmt.Fprintf(p.w, "%s %s\n", method, path)
}

func (p *PlainDisplayer) Refreshing() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) RefreshOK() {
	fmt.Fprintln(p.w, "Token refreshed, replaying queued requests...")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) SessionExpired() {
	fmt.Fprintln(p.w, "Session cleared, run 'login' again.")
}

func (p *PlainDisplayer) SessionSaved(target string) {
	fmt.Fprintf(p.w, "Tokens saved to %s\n", target)
}

func (p *PlainDisplayer) SessionCleared() {
	fmt.Fprintln(p.w, "Logged out, tokens removed.")
}

func (p *PlainDisplayer) Response(body string) {
	fmt.Fprintf(p.w, "Request OK (%d bytes)\n", len(body))
}

func (p *PlainDisplayer) RequestFailed(err error) {
	fmt.Fprintf(p.w, "Request failed: %v\n", err)
}

func (p *PlainDisplayer) BurstResult(index int, err error) {
	if err != nil {
		fmt.Fprintf(p.w, "  #%d failed: %v\n", index, err)
		return
	}
	fmt.Fprintf(p.w, "  #%d ok\n", index)
}

func (p *PlainDisplayer) Stats(s apiclient.Stats) {
	fmt.Fprintf(p.w, "requests=%d refreshes=%d failures=%d queued=%d replays=%d\n",
		s.Requests, s.Refreshes, s.RefreshFailures, s.Queued, s.Replays)
}

func (p *PlainDisplayer) Status(info StatusInfo) {
	fmt.Fprintf(p.w, "Store:         %s\n", info.Store)
	fmt.Fprintf(p.w, "Access token:  %s\n", presence(info.HasAccess))
	fmt.Fprintf(p.w, "Refresh token: %s\n", presence(info.HasRefresh))
	if !info.Expiry.IsZero() {
		fmt.Fprintf(p.w, "Expires:       %s (%s)\n",
			info.Expiry.Local().Format(time.RFC3339), expiryText(info.Expiry))
	}
}

func (p *PlainDisplayer) Done() {}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}

func expiryText(exp time.Time) string {
	d := time.Until(exp)
	if d <= 0 {
		return "expired " + formatDuration(-d) + " ago"
	}
	return "in " + formatDuration(d)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                    {}
func (NoopDisplayer) Requesting(_, _ string)     {}
func (NoopDisplayer) Refreshing()                {}
func (NoopDisplayer) RefreshOK()                 {}
func (NoopDisplayer) RefreshFailed(_ error)      {}
func (NoopDisplayer) SessionExpired()            {}
func (NoopDisplayer) SessionSaved(_ string)      {}
func (NoopDisplayer) SessionCleared()            {}
func (NoopDisplayer) Response(_ string)          {}
func (NoopDisplayer) RequestFailed(_ error)      {}
func (NoopDisplayer) BurstResult(_ int, _ error) {}
func (NoopDisplayer) Stats(_ apiclient.Stats)    {}
func (NoopDisplayer) Status(_ StatusInfo)        {}
func (NoopDisplayer) Done()                      {}
func (NoopDisplayer) Fatal(_ error)              {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) Requesting(method, path string) {
	t.p.Send(MsgRequesting{Method: method, Path: path})
}

func (t *ProgramDisplayer) Refreshing() {
	t.p.Send(MsgRefreshing{Started: time.Now()})
}

func (t *ProgramDisplayer) RefreshOK() {
	t.p.Send(MsgRefreshOK{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) SessionExpired() {
	t.p.Send(MsgSessionExpired{})
}

func (t *ProgramDisplayer) SessionSaved(target string) {
	t.p.Send(MsgSessionSaved{Target: target})
}

func (t *ProgramDisplayer) SessionCleared() {
	t.p.Send(MsgSessionCleared{})
}

func (t *ProgramDisplayer) Response(body string) {
	t.p.Send(MsgResponse{Body: body})
}

func (t *ProgramDisplayer) RequestFailed(err error) {
	t.p.Send(MsgRequestFailed{Err: err})
}

func (t *ProgramDisplayer) BurstResult(index int, err error) {
	t.p.Send(MsgBurstResult{Index: index, Err: err})
}

func (t *ProgramDisplayer) Stats(s apiclient.Stats) {
	t.p.Send(MsgStats{Stats: s})
}

func (t *ProgramDisplayer) Status(info StatusInfo) {
	t.p.Send(MsgStatus{Info: info})
}

func (t *ProgramDisplayer) Done() {
	t.p.Send(MsgDone{})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
