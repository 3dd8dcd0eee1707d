package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages sent into the live run view from run observer callbacks.
type (
	// PromptMsg carries the expanded prompt text.
	PromptMsg struct{ Prompt string }

	// SlotMsg reports a variant applied to a slot.
	SlotMsg struct {
		Slot    int
		Variant string
		ID      string
	}

	// StreamErrMsg carries a non-fatal stream error message.
	StreamErrMsg struct{ Message string }

	// OutcomeMsg reports the final run outcome and ends the view.
	OutcomeMsg struct {
		Outcome string
		Message string
	}
)

// slotState tracks the variants seen for one result slot.
type slotState struct {
	id       string
	variants []string
}

// LiveModel is a Bubble Tea model showing a generation run as it streams.
type LiveModel struct {
	theme    string
	rtype    string
	runID    string
	spinner  spinner.Model
	prompt   string
	slots    []slotState
	errs     []string
	outcome  string
	message  string
	done     bool
	quitting bool
	cancel   func()
}

// NewLiveModel creates a live run model. cancel is invoked when the user
// quits before the run finishes; it may be nil.
func NewLiveModel(theme, rtype, runID string, cancel func()) LiveModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle
	return LiveModel{
		theme:   theme,
		rtype:   rtype,
		runID:   runID,
		spinner: sp,
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m LiveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case PromptMsg:
		m.prompt = msg.Prompt
		return m, nil

	case SlotMsg:
		for len(m.slots) <= msg.Slot {
			m.slots = append(m.slots, slotState{})
		}
		s := &m.slots[msg.Slot]
		if s.id == "" {
			s.id = msg.ID
		}
		s.variants = append(s.variants, msg.Variant)
		return m, nil

	case StreamErrMsg:
		m.errs = append(m.errs, msg.Message)
		return m, nil

	case OutcomeMsg:
		m.outcome = msg.Outcome
		m.message = msg.Message
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m LiveModel) View() string {
	if m.quitting && !m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Generating %s / %s", m.theme, m.rtype)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Run ID:"), ValueStyle.Render(m.runID)))

	if m.prompt != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Prompt:"), PromptStyle.Render(m.prompt)))
	}

	b.WriteString("\n")
	if len(m.slots) == 0 {
		b.WriteString(HelpStyle.Render("waiting for results..."))
		b.WriteString("\n")
	}
	for i, s := range m.slots {
		label := LabelStyle.Render(fmt.Sprintf("Slot %d:", i+1))
		detail := fmt.Sprintf("%d variant(s)", len(s.variants))
		if len(s.variants) > 0 {
			detail = fmt.Sprintf("%s, latest %s", detail, s.variants[len(s.variants)-1])
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, ValueStyle.Render(detail)))
	}

	for _, e := range m.errs {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Error:"), ErrorStyle.Render(e)))
	}

	b.WriteString("\n")
	if m.done {
		status := OutcomeStyle(m.outcome).Render(m.outcome)
		b.WriteString(fmt.Sprintf("%s %s", LabelStyle.Render("Outcome:"), status))
		if m.message != "" {
			b.WriteString(" " + HelpStyle.Render(m.message))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(fmt.Sprintf("%s streaming\n", m.spinner.View()))
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("up/k", "move up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("down/j", "move down"),
	),
}

// RunLiveTUI starts the live run program and returns the running program
// so observer callbacks can Send messages into it.
func RunLiveTUI(model LiveModel) *tea.Program {
	return tea.NewProgram(model, tea.WithAltScreen())
}
