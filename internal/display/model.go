package display

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

type itemsMsg []scheduler.ItemSnapshot

// finishMsg carries the final rendering mode and quits the program.
type finishMsg RenderWhen

// model renders the status block inline, repainting whenever a new
// snapshot arrives.
type model struct {
	items []scheduler.ItemSnapshot
	when  RenderWhen
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case itemsMsg:
		m.items = msg
	case finishMsg:
		m.when = RenderWhen(msg)
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if len(m.items) == 0 {
		return ""
	}
	return renderItems(m.items, m.when)
}
