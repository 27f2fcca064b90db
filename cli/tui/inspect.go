package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/msgfmt/cli/reader"
)

// chromeHeight is the number of lines around the case table.
const chromeHeight = 10

// InspectModel is a Bubble Tea model for a run timeline.
// The case table is navigable; enter toggles the step list of the
// selected case.
type InspectModel struct {
	timeline  *reader.Timeline
	table     table.Model
	showSteps bool
	width     int
	height    int
	quitting  bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(tl *reader.Timeline) InspectModel {
	columns := []table.Column{
		{Title: "Test Case", Width: 16},
		{Title: "Name", Width: 32},
		{Title: "Status", Width: 12},
		{Title: "Steps", Width: 6},
		{Title: "Duration", Width: 10},
	}
	rows := make([]table.Row, 0, len(tl.Cases))
	for _, r := range tl.Rows() {
		rows = append(rows, table.Row{
			r.TestCaseID,
			r.Name,
			r.Status,
			fmt.Sprintf("%d", r.Steps),
			fmt.Sprintf("%dms", r.DurationMs),
		})
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(mutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(primaryColor)

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+1, 12)),
		table.WithStyles(styles),
	)

	return InspectModel{timeline: tl, table: t}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(3, msg.Height-chromeHeight))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			m.showSteps = !m.showSteps
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := "Run"
	if m.timeline.RunID != "" {
		title += " " + m.timeline.RunID
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.renderSummary())
	b.WriteString("\n\n")

	if len(m.timeline.Cases) == 0 {
		b.WriteString(HelpStyle.Render("(no test cases)"))
	} else {
		b.WriteString(BoxStyle.Padding(0, 1).Render(m.table.View()))
	}

	if m.showSteps {
		if c, ok := m.selected(); ok {
			b.WriteString("\n")
			b.WriteString(renderSteps(c))
		}
	}

	if n := len(m.timeline.Issues); n > 0 {
		b.WriteString("\n")
		b.WriteString(WarningStyle.Render(fmt.Sprintf("%d unresolved reference(s); see --format json", n)))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("↑/↓ move • enter steps • q quit"))
	return b.String()
}

func (m InspectModel) selected() (reader.CaseView, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.timeline.Cases) {
		return reader.CaseView{}, false
	}
	return m.timeline.Cases[i], true
}

func (m InspectModel) renderSummary() string {
	s := m.timeline.Summary
	parts := []string{
		fmt.Sprintf("%s %d", LabelStyle.Width(0).Render("cases"), s.TestCases),
		fmt.Sprintf("%s %d", LabelStyle.Width(0).Render("started"), s.Started),
		fmt.Sprintf("%s %d", LabelStyle.Width(0).Render("finished"), s.Finished),
		fmt.Sprintf("%s %d", LabelStyle.Width(0).Render("messages"), m.timeline.Messages),
	}
	return strings.Join(parts, "  ")
}

func renderSteps(c reader.CaseView) string {
	var b strings.Builder
	b.WriteString(TitleStyle.MarginBottom(0).Render(c.TestCaseID + " steps"))
	b.WriteString("\n")
	for _, s := range c.Steps {
		text := s.Text
		if s.Kind == reader.StepKindHook {
			text = "hook: " + text
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			StatusStyle(s.Status).Width(10).Render(s.Status),
			ValueStyle.Render(text),
			HelpStyle.MarginTop(0).Render(fmt.Sprintf("%dms", s.DurationMs))))
		if s.Message != "" {
			b.WriteString("           " + ErrorStyle.Render(s.Message) + "\n")
		}
	}
	return BoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// keyMap defines key bindings.
type keyMap struct {
	Quit   key.Binding
	Toggle key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "steps"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(data any) error {
	tl, ok := data.(*reader.Timeline)
	if !ok {
		return fmt.Errorf("inspect TUI: unexpected data type %T", data)
	}
	p := tea.NewProgram(NewInspectModel(tl), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders a timeline without running a program.
func RenderInspectStatic(tl *reader.Timeline) string {
	m := NewInspectModel(tl)
	m.width = 80
	m.height = 24
	m.showSteps = true
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
