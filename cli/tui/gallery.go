package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/imagine/types"
)

// GalleryModel is a Bubble Tea model for browsing gallery items.
type GalleryModel struct {
	title    string
	items    []types.GalleryItem
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewGalleryModel creates a gallery browser over the given items.
func NewGalleryModel(title string, items []types.GalleryItem) GalleryModel {
	return GalleryModel{title: title, items: items}
}

// Init implements tea.Model.
func (m GalleryModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m GalleryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m GalleryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(HelpStyle.Render("(no items)"))
		b.WriteString("\n")
	}

	for i, item := range m.items {
		line := fmt.Sprintf("%s  %s/%s", item.ID, item.Theme, item.Type)
		if i == m.cursor {
			b.WriteString(SelectedStyle.Render("> " + line))
		} else {
			b.WriteString(ValueStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if len(m.items) > 0 {
		sel := m.items[m.cursor]
		b.WriteString("\n")
		b.WriteString(renderItemDetail(sel))
	}

	help := HelpStyle.Render("up/k, down/j to move, q to quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

// renderItemDetail shows the selection attributes of the highlighted item.
func renderItemDetail(item types.GalleryItem) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("Selections"))
	b.WriteString("\n")

	sels := item.Combo.Selections()
	if len(sels) == 0 {
		b.WriteString(HelpStyle.Render("  (defaults)"))
		b.WriteString("\n")
		return b.String()
	}
	for k, v := range sels {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("  "+k+":"), ValueStyle.Render(v)))
	}
	return b.String()
}

// RunGalleryTUI runs the gallery browser.
func RunGalleryTUI(title string, items []types.GalleryItem) error {
	p := tea.NewProgram(NewGalleryModel(title, items), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
