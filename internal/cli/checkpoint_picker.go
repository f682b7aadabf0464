package cli

import (
	"errors"
	"fmt"
	"sort"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/dustin/go-humanize"

	"github.com/wethinkt/go-glkcli/internal/checkpoint"
	apperrors "github.com/wethinkt/go-glkcli/internal/errors"
	"github.com/wethinkt/go-glkcli/internal/playtime"
)

// ErrNoSelection is returned when the picker is closed without a choice.
var ErrNoSelection = errors.New("no checkpoint selected")

// CheckpointPickerItem represents a selectable checkpoint in the picker.
type CheckpointPickerItem struct {
	Checkpoint checkpoint.Checkpoint
}

func (i CheckpointPickerItem) Title() string {
	return i.Checkpoint.Name
}

func (i CheckpointPickerItem) Description() string {
	return fmt.Sprintf("%s | %s | %s | %s",
		i.Checkpoint.CreatedAt.Local().Format("2006-01-02 15:04"),
		playtime.Format(i.Checkpoint.Playtime()),
		humanize.IBytes(uint64(i.Checkpoint.SizeBytes)),
		ShortID(i.Checkpoint.ID))
}

func (i CheckpointPickerItem) FilterValue() string {
	return i.Checkpoint.Name + " " + i.Checkpoint.ID
}

type checkpointPickerModel struct {
	list     list.Model
	selected *CheckpointPickerItem
	quitting bool
}

// newCheckpointPickerModel lists cps newest first.
func newCheckpointPickerModel(title string, cps []checkpoint.Checkpoint) checkpointPickerModel {
	sorted := append([]checkpoint.Checkpoint(nil), cps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	items := make([]list.Item, len(sorted))
	for i, cp := range sorted {
		items[i] = CheckpointPickerItem{Checkpoint: cp}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("#9d7aff")).
		Bold(true)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(lipgloss.Color("#666666"))

	l := list.New(items, delegate, 80, 20)
	l.SetShowTitle(true)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetShowHelp(true)
	l.SetFilteringEnabled(true)

	return checkpointPickerModel{list: l}
}

func (m checkpointPickerModel) Init() tea.Cmd {
	return nil
}

func (m checkpointPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && !m.list.SettingFilter() {
		switch km.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(CheckpointPickerItem); ok {
				m.selected = &item
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m checkpointPickerModel) View() tea.View {
	if m.quitting && m.selected == nil {
		return tea.NewView("Cancelled.\n")
	}
	if m.selected != nil {
		return tea.NewView("")
	}
	return tea.NewView(m.list.View())
}

// PickCheckpointInteractive lets the user choose one of gameID's
// checkpoints. It fails with CodeNotFound when there are none and with
// ErrNoSelection when the picker is closed without a choice.
func PickCheckpointInteractive(store *checkpoint.Store, gameID string) (checkpoint.Checkpoint, error) {
	cps, err := store.List(gameID)
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	if len(cps) == 0 {
		return checkpoint.Checkpoint{}, apperrors.WithMetadata(apperrors.CodeNotFound, "no checkpoints for this game",
			map[string]string{"game": gameID})
	}

	p := tea.NewProgram(newCheckpointPickerModel(
		fmt.Sprintf("Checkpoints for %s (enter: restore, /: search, esc: close)", gameID), cps))
	finalModel, err := p.Run()
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}

	m := finalModel.(checkpointPickerModel)
	if m.selected == nil {
		return checkpoint.Checkpoint{}, ErrNoSelection
	}
	return m.selected.Checkpoint, nil
}
