package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/owtaylor/flatpak-module-tools/internal/scheduler"
)

const separator = "--------------------------------------------"

var (
	doneStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	buildingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	warnStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	neutralStyle  = lipgloss.NewStyle().Bold(true)
)

// itemLine picks the style and status text for one item under the
// given rendering mode.
func itemLine(item scheduler.ItemSnapshot, when RenderWhen) string {
	style := neutralStyle
	status := item.Status

	switch item.State {
	case scheduler.StateDone:
		style = doneStyle
	case scheduler.StateFailed:
		style = failedStyle
	case scheduler.StateBuilding:
		switch when {
		case RenderException:
			style = failedStyle
		case RenderInterrupted:
			style = warnStyle
			status = "Interrupted"
		default:
			style = buildingStyle
		}
	}
	return style.Render(item.Name+": ") + status
}

func renderItems(items []scheduler.ItemSnapshot, when RenderWhen) string {
	var sb strings.Builder
	sb.WriteString(separator)
	sb.WriteByte('\n')
	for _, item := range items {
		sb.WriteString(itemLine(item, when))
		sb.WriteByte('\n')
		if item.State == scheduler.StateDone {
			continue
		}
		for _, logFile := range item.LogFiles {
			fmt.Fprintf(&sb, "    %s\n", logFile)
		}
		if item.Task != "" {
			fmt.Fprintf(&sb, "    %s\n", item.Task)
		}
		for _, child := range item.TaskChildren {
			fmt.Fprintf(&sb, "        %s\n", child)
		}
		for _, msg := range item.DebugMessages {
			fmt.Fprintf(&sb, "    %s\n", msg)
		}
	}
	return sb.String()
}

// Render writes the full status block to w.
func Render(w io.Writer, items []scheduler.ItemSnapshot, when RenderWhen) {
	io.WriteString(w, renderItems(items, when))
}
