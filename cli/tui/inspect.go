package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ostorc/msbuild/cli/reader"
)

// defaultEventRows is the event list height before a WindowSizeMsg arrives.
const defaultEventRows = 10

// InspectModel browses the resolutions of one archived build.
type InspectModel struct {
	build    *reader.InspectBuildResponse
	selected int // resolution index
	offset   int // first visible event
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates an inspect model.
func NewInspectModel(build *reader.InspectBuildResponse) InspectModel {
	return InspectModel{build: build}
}

type keyMap struct {
	Quit key.Binding
	Next key.Binding
	Prev key.Binding
	Down key.Binding
	Up   key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Next: key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next node")),
	Prev: key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev node")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "scroll")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "scroll")),
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
		m.offset = min(m.offset, m.maxOffset())

	case tea.KeyMsg:
		n := len(m.build.Resolutions)
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Next) && n > 0:
			m.selected = (m.selected + 1) % n
			m.offset = 0
		case key.Matches(msg, keys.Prev) && n > 0:
			m.selected = (m.selected + n - 1) % n
			m.offset = 0
		case key.Matches(msg, keys.Down):
			m.offset = min(m.offset+1, m.maxOffset())
		case key.Matches(msg, keys.Up):
			m.offset = max(m.offset-1, 0)
		}
	}
	return m, nil
}

func (m InspectModel) current() *reader.ResolutionView {
	if len(m.build.Resolutions) == 0 {
		return nil
	}
	return m.build.Resolutions[m.selected]
}

func (m InspectModel) eventRows() int {
	if m.height <= 0 {
		return defaultEventRows
	}
	// Header, tabs, details and help take roughly 20 lines.
	return max(m.height-20, 3)
}

func (m InspectModel) maxOffset() int {
	res := m.current()
	if res == nil {
		return 0
	}
	return max(len(res.Events)-m.eventRows(), 0)
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Build " + m.build.BuildID))
	b.WriteString("\n\n")

	res := m.current()
	if res == nil {
		b.WriteString(MutedStyle.Render("(no resolutions archived)"))
		return BoxStyle.Render(b.String()) + "\n" + HelpStyle.Render("q quit")
	}

	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")
	b.WriteString(m.renderDetails(res))
	b.WriteString("\n")
	b.WriteString(m.renderEvents(res))

	help := HelpStyle.Render("tab/shift+tab switch node • ↑/↓ scroll events • q quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

func (m InspectModel) renderTabs() string {
	tabs := make([]string, 0, len(m.build.Resolutions))
	for i, res := range m.build.Resolutions {
		label := fmt.Sprintf("node %d", res.NodeID)
		if i == m.selected {
			tabs = append(tabs, ActiveTabStyle.Render(label))
		} else {
			tabs = append(tabs, TabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m InspectModel) renderDetails(res *reader.ResolutionView) string {
	rows := [][2]string{
		{"Outcome", OutcomeStyle(res.Outcome).Render(res.Outcome)},
		{"Exit Code", fmt.Sprintf("%d", res.ExitCode)},
		{"Duration", fmt.Sprintf("%dms", res.DurationMs)},
		{"Completed", res.CompletedAt},
		{"Resolved", fmt.Sprintf("%d files", len(res.ResolvedFiles))},
		{"Copy Local", fmt.Sprintf("%d files", len(res.CopyLocal))},
		{"Events", fmt.Sprintf("%d reported, %d dropped", res.EventCount, res.EventsDropped)},
	}
	if res.Message != "" {
		rows = append(rows, [2]string{"Message", res.Message})
	}

	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render(row[0]+":"), row[1])
	}
	return b.String()
}

func (m InspectModel) renderEvents(res *reader.ResolutionView) string {
	if len(res.Events) == 0 {
		return MutedStyle.Render("(no events)")
	}

	end := min(m.offset+m.eventRows(), len(res.Events))
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Events %d-%d of %d", m.offset+1, end, len(res.Events))))
	b.WriteString("\n")
	for _, ev := range res.Events[m.offset:end] {
		line := ev.Message
		if ev.Code != "" {
			line = ev.Code + ": " + line
		}
		fmt.Fprintf(&b, "%3d %s %s\n", ev.Seq, CategoryStyle(ev.Category).Render(fmt.Sprintf("%-7s", ev.Category)), line)
	}
	return b.String()
}

// RunInspectTUI runs the inspect TUI until the user quits.
func RunInspectTUI(build *reader.InspectBuildResponse) error {
	p := tea.NewProgram(NewInspectModel(build), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders the first resolution without a terminal program.
func RenderInspectStatic(build *reader.InspectBuildResponse) string {
	model := NewInspectModel(build)
	model.width = 80
	model.height = 24 + defaultEventRows
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
