// Package tui provides terminal UI components.
package tui

import (
	"fmt"
	"io"
	"os"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// ConfirmResult represents the outcome of a confirmation dialog.
type ConfirmResult int

const (
	ConfirmYes ConfirmResult = iota
	ConfirmNo
	ConfirmCancelled
)

// ConfirmOptions configures the confirm dialog.
type ConfirmOptions struct {
	Prompt      string    // The question to ask
	Affirmative string    // Text for yes button (default "Yes")
	Negative    string    // Text for no button (default "No")
	Default     bool      // Default selection (true = affirmative)
	Input       io.Reader // Where keys come from (default os.Stdin)
	Output      io.Writer // Where to write output (default os.Stdout)
}

// Confirm displays an interactive confirmation dialog and returns the result.
func Confirm(opts ConfirmOptions) (ConfirmResult, error) {
	if opts.Affirmative == "" {
		opts.Affirmative = "Yes"
	}
	if opts.Negative == "" {
		opts.Negative = "No"
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	p := tea.NewProgram(newConfirmModel(opts), tea.WithInput(opts.Input), tea.WithOutput(opts.Output))
	finalModel, err := p.Run()
	if err != nil {
		return ConfirmCancelled, err
	}
	return finalModel.(confirmModel).result, nil
}

type confirmModel struct {
	prompt      string
	affirmative string
	negative    string
	selection   bool // true = affirmative selected
	result      ConfirmResult
	quitting    bool
	keys        confirmKeyMap

	promptStyle     lipgloss.Style
	selectedStyle   lipgloss.Style
	unselectedStyle lipgloss.Style
}

type confirmKeyMap struct {
	Toggle      key.Binding
	Submit      key.Binding
	Affirmative key.Binding
	Negative    key.Binding
	Quit        key.Binding
	Abort       key.Binding
}

func defaultConfirmKeyMap(affirmative, negative string) confirmKeyMap {
	return confirmKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys("left", "right", "h", "l", "tab", "shift+tab"),
			key.WithHelp("←/→", "toggle"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		Affirmative: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", affirmative),
		),
		Negative: key.NewBinding(
			key.WithKeys("n", "N"),
			key.WithHelp("n", negative),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("esc", "cancel"),
		),
		Abort: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "abort"),
		),
	}
}

func newConfirmModel(opts ConfirmOptions) confirmModel {
	return confirmModel{
		prompt:      opts.Prompt,
		affirmative: opts.Affirmative,
		negative:    opts.Negative,
		selection:   opts.Default,
		result:      ConfirmCancelled,
		keys:        defaultConfirmKeyMap(opts.Affirmative, opts.Negative),

		promptStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("#9d7aff")).
			Padding(0, 2),
		unselectedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("247")).
			Padding(0, 2),
	}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) finish(r ConfirmResult, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.result = r
	m.quitting = true
	return m, cmd
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, m.keys.Abort):
		return m.finish(ConfirmCancelled, tea.Interrupt)
	case key.Matches(km, m.keys.Quit):
		return m.finish(ConfirmCancelled, tea.Quit)
	case key.Matches(km, m.keys.Affirmative):
		return m.finish(ConfirmYes, tea.Quit)
	case key.Matches(km, m.keys.Negative):
		return m.finish(ConfirmNo, tea.Quit)
	case key.Matches(km, m.keys.Toggle):
		m.selection = !m.selection
	case key.Matches(km, m.keys.Submit):
		if m.selection {
			return m.finish(ConfirmYes, tea.Quit)
		}
		return m.finish(ConfirmNo, tea.Quit)
	}
	return m, nil
}

func (m confirmModel) View() tea.View {
	if m.quitting {
		return tea.NewView("")
	}

	aff := m.unselectedStyle.Render(m.affirmative)
	neg := m.selectedStyle.Render(m.negative)
	if m.selection {
		aff = m.selectedStyle.Render(m.affirmative)
		neg = m.unselectedStyle.Render(m.negative)
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Center, aff, "  ", neg)

	return tea.NewView(fmt.Sprintf("\n%s\n\n%s\n", m.promptStyle.Render(m.prompt), buttons))
}
