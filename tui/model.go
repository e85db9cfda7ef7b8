package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/go-authgate/session-cli/apiclient"
)

// tickMsg is fired every second while a refresh is in flight.
type tickMsg time.Time

// state represents the current phase of a command.
type state int

const (
	stateInit       state = iota
	stateRequesting       // request in flight
	stateRefreshing       // refresh in flight, requests queued behind it
	stateSuccess          // all done
	stateError            // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model for the session CLI.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	method string
	path   string

	refreshStarted time.Time
	elapsed        time.Duration

	body    string
	stats   *apiclient.Stats
	session *StatusInfo
	errMsg  string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateInit,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.state != stateRefreshing {
			return m, nil
		}
		m.elapsed = time.Since(m.refreshStarted)
		return m, tickAfterSecond()

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case MsgBanner:
		return m, nil

	case MsgRequesting:
		m.method = msg.Method
		m.path = msg.Path
		if m.state == stateInit {
			m.state = stateRequesting
		}
		return m, nil

	case MsgRefreshing:
		m.state = stateRefreshing
		m.refreshStarted = msg.Started
		m.elapsed = 0
		m.addStatus(statusWarn, "Access token rejected (401), refreshing...")
		return m, tickAfterSecond()

	case MsgRefreshOK:
		m.state = stateRequesting
		m.addStatus(statusOK, "Token refreshed, replaying queued requests")
		return m, nil

	case MsgRefreshFailed:
		m.state = stateRequesting
		m.addStatus(statusWarn, fmt.Sprintf("Refresh failed: %v", msg.Err))
		return m, nil

	case MsgSessionExpired:
		m.addStatus(statusWarn, "Session cleared, run 'login' again")
		return m, nil

	case MsgSessionSaved:
		m.addStatus(statusOK, "Tokens saved to "+msg.Target)
		return m, nil

	case MsgSessionCleared:
		m.addStatus(statusOK, "Logged out, tokens removed")
		return m, nil

	case MsgResponse:
		m.body = msg.Body
		return m, nil

	case MsgRequestFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Request failed: %v", msg.Err))
		return m, nil

	case MsgBurstResult:
		if msg.Err != nil {
			m.addStatus(statusWarn, fmt.Sprintf("#%d failed: %v", msg.Index, msg.Err))
		} else {
			m.addStatus(statusOK, fmt.Sprintf("#%d ok", msg.Index))
		}
		return m, nil

	case MsgStats:
		s := msg.Stats
		m.stats = &s
		return m, nil

	case MsgStatus:
		info := msg.Info
		m.session = &info
		return m, nil

	case MsgDone:
		m.state = stateSuccess
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	switch m.state {
	case stateSuccess:
		return tea.NewView(m.viewSuccess())
	case stateError:
		return tea.NewView(m.viewError())
	default:
		return tea.NewView(m.viewMain())
	}
}

// viewMain is shown while requests or a refresh are in flight.
func (m Model) viewMain() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  Session CLI  "))
	b.WriteString("\n\n")

	switch m.state {
	case stateRefreshing:
		b.WriteString(m.spinner.View())
		b.WriteString(" Refreshing access token...  ")
		b.WriteString(styleDim.Render(formatDuration(m.elapsed) + " elapsed"))
		b.WriteString("\n")

	case stateRequesting:
		b.WriteString(m.spinner.View())
		b.WriteString(" " + m.method + " " + m.path + "\n")

	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" Initializing...\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewSuccess is shown once the command completed.
func (m Model) viewSuccess() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleOK.Render("  ✓ Done"))
	b.WriteString("\n\n")

	if m.session != nil {
		b.WriteString(styleBold.Render("Store:         "))
		b.WriteString(m.session.Store + "\n")
		b.WriteString(styleBold.Render("Access token:  "))
		b.WriteString(presence(m.session.HasAccess) + "\n")
		b.WriteString(styleBold.Render("Refresh token: "))
		b.WriteString(presence(m.session.HasRefresh) + "\n")
		if !m.session.Expiry.IsZero() {
			b.WriteString(styleBold.Render("Expires:       "))
			b.WriteString(expiryText(m.session.Expiry) + "\n")
		}
	}

	if m.body != "" {
		b.WriteString(styleDim.Render(preview(m.body, 8)))
		b.WriteString("\n")
	}

	if m.stats != nil {
		b.WriteString(styleDim.Render(fmt.Sprintf(
			"requests %d · refreshes %d · queued %d · replays %d",
			m.stats.Requests, m.stats.Refreshes, m.stats.Queued, m.stats.Replays,
		)))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewError is shown when a fatal error occurs.
func (m Model) viewError() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleErr.Render("  ✗ Request failed"))
	b.WriteString("\n\n")
	b.WriteString(styleDim.Render("  " + m.errMsg))
	b.WriteString("\n")

	b.WriteString(m.viewStatusLog())
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}

// preview returns the first n lines of s.
func preview(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-n)
}

// tickAfterSecond returns a command that fires tickMsg after one second.
func tickAfterSecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// formatDuration formats a duration as "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
