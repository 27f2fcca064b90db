package tui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/msgfmt/cli/reader"
)

// StatsModel is a Bubble Tea model for a run's metrics.
type StatsModel struct {
	snap     *reader.MetricsSnapshot
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(snap *reader.MetricsSnapshot) StatsModel {
	return StatsModel{snap: snap}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.snap

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Metrics " + s.RunID))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Recorded:"), ValueStyle.Render(s.Ts)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Output:"), ValueStyle.Render(s.Output)))
	if s.StorageBackend != "" {
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Storage:"), ValueStyle.Render(s.StorageBackend)))
	}
	b.WriteString("\n")

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Events", s.EventsReceived, highlightColor),
		renderStatBox("Messages", s.MessagesEmitted, successColor),
		renderStatBox("Passthrough", s.Passthrough, primaryColor),
	))
	b.WriteString("\n")

	failures := s.FrameDecodeErrors + s.CorrelationFailures + s.ResolverFailures + s.SinkWriteFailure
	failColor := successColor
	if failures > 0 {
		failColor = errorColor
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderStatBox("Correlations", s.CorrelationEntries, highlightColor),
		renderStatBox("Failures", failures, failColor),
		renderStatBox("Runs Failed", s.RunsFailed, failColor),
	))

	if len(s.MessagesByType) > 0 {
		b.WriteString("\n\n")
		b.WriteString(TitleStyle.Render("Messages by type"))
		b.WriteString("\n")
		for _, k := range slices.Sorted(maps.Keys(s.MessagesByType)) {
			b.WriteString(fmt.Sprintf("%s %d\n", LabelStyle.Width(20).Render(k), s.MessagesByType[k]))
		}
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(data any) error {
	snap, ok := data.(*reader.MetricsSnapshot)
	if !ok {
		return fmt.Errorf("stats TUI: unexpected data type %T", data)
	}
	p := tea.NewProgram(NewStatsModel(snap), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders metrics without running a program.
func RenderStatsStatic(snap *reader.MetricsSnapshot) string {
	m := NewStatsModel(snap)
	m.width = 80
	m.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
