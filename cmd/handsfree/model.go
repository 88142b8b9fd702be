package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/muesli/reflow/wordwrap"
)

const (
	availabilityInterval = 30 * time.Second
	requestTimeout       = 10 * time.Second
	maxLogEntries        = 200
	defaultWidth         = 80
)

// controller is what the model drives. It is implemented by [duet].
type controller interface {
	Toggle(target conversations.Speaker) error
	Recording() (conversations.Speaker, bool)
	Sending() []conversations.Speaker
	HandsFreeEnabled() bool
	SetHandsFree(enabled bool)
	NextTarget() (conversations.Speaker, bool)
	SetAvailability(availability map[conversations.Speaker]bool)
	Availability(ctx context.Context) (map[conversations.Speaker]bool, error)
	Reset(ctx context.Context) error
}

type (
	snippetMsg orchestration.SnippetInfo
	turnMsg    orchestration.TurnOutcome

	availabilityMsg struct {
		availability map[conversations.Speaker]bool
		err          error
	}
	resetMsg        struct{ err error }
	audioStoppedMsg struct{ err error }
	refreshTickMsg  time.Time
)

type logEntry struct {
	speaker string
	text    string
	isError bool
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true)

	speakerStyles = map[string]lipgloss.Style{
		conversations.SpeakerHuman.Label():  lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		conversations.SpeakerCoHost.Label(): lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		conversations.SpeakerGuest.Label():  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
)

type model struct {
	ctl       controller
	sessionID string
	mode      string

	spinner spinner.Model
	width   int

	recording    conversations.Speaker
	sending      []conversations.Speaker
	availability map[conversations.Speaker]bool
	entries      []logEntry
	status       string
}

func newModel(ctl controller, sessionID, mode string) *model {
	return &model{
		ctl:          ctl,
		sessionID:    sessionID,
		mode:         mode,
		spinner:      spinner.New(spinner.WithSpinner(spinner.MiniDot)),
		width:        defaultWidth,
		availability: map[conversations.Speaker]bool{},
		status:       "Checking which targets are available…",
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refreshAvailability)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snippetMsg:
		m.syncState()
		return m, nil

	case turnMsg:
		m.syncState()
		m.handleOutcome(orchestration.TurnOutcome(msg))
		return m, nil

	case availabilityMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Health check failed: %v", msg.err)
		} else {
			m.availability = msg.availability
			m.ctl.SetAvailability(msg.availability)
			m.status = m.availabilityStatus()
		}
		return m, tea.Tick(availabilityInterval, func(t time.Time) tea.Msg { return refreshTickMsg(t) })

	case audioStoppedMsg:
		m.status = fmt.Sprintf("Audio stopped: %v", msg.err)
		return m, nil

	case refreshTickMsg:
		return m, m.refreshAvailability

	case resetMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Reset failed: %v", msg.err)
		} else {
			m.entries = nil
			m.status = "Session reset."
		}
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "c":
		m.toggle(conversations.SpeakerCoHost)
	case "g":
		m.toggle(conversations.SpeakerGuest)

	case "h":
		enabled := !m.ctl.HandsFreeEnabled()
		m.ctl.SetHandsFree(enabled)
		if enabled {
			m.status = "Hands-free on, start talking."
		} else {
			m.status = "Hands-free off."
		}

	case "r":
		m.status = "Resetting session…"
		return m, m.reset
	}
	return m, nil
}

func (m *model) toggle(target conversations.Speaker) {
	if !m.availability[target] {
		m.status = fmt.Sprintf("%s is not available.", target.Label())
		return
	}
	if err := m.ctl.Toggle(target); err != nil {
		m.status = fmt.Sprintf("%s: %v", target.Label(), err)
	}
	m.syncState()
}

// syncState reads the recording and sending state from the controller, so
// notifications arriving out of order cannot leave the view stale.
func (m *model) syncState() {
	m.recording, _ = m.ctl.Recording()
	m.sending = m.ctl.Sending()
}

func (m *model) handleOutcome(outcome orchestration.TurnOutcome) {
	target := outcome.Snippet.Target
	if outcome.Err != nil {
		m.appendEntry(logEntry{speaker: target.Label(), text: outcome.Err.Error(), isError: true})
		m.status = fmt.Sprintf("%s turn failed.", target.Label())
		return
	}

	m.appendEntry(logEntry{speaker: conversations.SpeakerHuman.Label(), text: outcome.Result.Transcript})
	m.appendEntry(logEntry{speaker: target.Label(), text: outcome.Result.ResponseText})
	m.status = fmt.Sprintf("%s responded in %s.", target.Label(), outcome.Result.Timings.Total.Round(100*time.Millisecond))
}

func (m *model) appendEntry(entry logEntry) {
	m.entries = append(m.entries, entry)
	if overflow := len(m.entries) - maxLogEntries; overflow > 0 {
		m.entries = slices.Clone(m.entries[overflow:])
	}
}

func (m *model) refreshAvailability() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	availability, err := m.ctl.Availability(ctx)
	return availabilityMsg{availability: availability, err: err}
}

func (m *model) reset() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return resetMsg{err: m.ctl.Reset(ctx)}
}

func (m *model) availabilityStatus() string {
	available := []string{}
	for _, target := range conversations.Targets {
		if m.availability[target] {
			available = append(available, target.Label())
		}
	}
	switch len(available) {
	case 0:
		return "No targets are available, check the server configuration."
	case 1:
		return fmt.Sprintf("Only %s is available, hands-free will always address it.", available[0])
	}
	return "Ready."
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ema duet"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  session %s · %s", m.sessionID, m.mode)))
	b.WriteString("\n\n")

	for _, target := range conversations.Targets {
		b.WriteString(m.targetLine(target))
		b.WriteString("\n")
	}

	handsFree := "off"
	if m.ctl.HandsFreeEnabled() {
		handsFree = activeStyle.Render("on")
		if next, ok := m.ctl.NextTarget(); ok {
			handsFree += dimStyle.Render(" · next: " + next.Label())
		}
	}
	b.WriteString(labelStyle.Render("Hands-free: ") + handsFree + "\n\n")

	wrapWidth := max(m.width-2, 20)
	for _, entry := range m.entries {
		style, ok := speakerStyles[entry.speaker]
		if !ok {
			style = labelStyle
		}
		text := entry.text
		if entry.isError {
			style = errorStyle
		}
		b.WriteString(wordwrap.String(style.Render(entry.speaker+":")+" "+text, wrapWidth))
		b.WriteString("\n")
	}
	if len(m.entries) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(wordwrap.String(m.status, wrapWidth))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("c co-host · g guest · h hands-free · r reset · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *model) targetLine(target conversations.Speaker) string {
	name := labelStyle.Render(fmt.Sprintf("%-8s", target.Label()))
	if !m.availability[target] {
		return name + offlineStyle.Render("unavailable")
	}

	state := dimStyle.Render("idle")
	switch {
	case m.recording == target:
		state = activeStyle.Render("● recording")
	case slices.Contains(m.sending, target):
		state = m.spinner.View() + " thinking"
	}
	return name + state
}
