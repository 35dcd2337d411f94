package koji

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

var (
	failedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	closedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	openStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	plainStyle  = lipgloss.NewStyle().Bold(true)
)

// FormatLink wraps text in an OSC 8 hyperlink escape so terminals
// that support it make the text clickable.
func FormatLink(href, text string) string {
	const osc = "\033]"
	const st = "\033\\"
	return osc + "8;;" + href + st + text + osc + "8;;" + st
}

// TaskURL returns the web UI page for a task.
func TaskURL(webURL string, taskID int) string {
	return fmt.Sprintf("%s/taskinfo?taskID=%d", webURL, taskID)
}

func stateStyle(state TaskState) lipgloss.Style {
	switch state {
	case TaskFailed, TaskCanceled:
		return failedStyle
	case TaskClosed:
		return closedStyle
	case TaskOpen:
		return openStyle
	default:
		return plainStyle
	}
}

// FormatTask renders one task line: a linked task id, its label, and
// a color-coded state.
func FormatTask(webURL string, info TaskInfo) string {
	link := FormatLink(TaskURL(webURL, info.ID), strconv.Itoa(info.ID))
	state := stateStyle(info.State).Render(info.State.String())
	return fmt.Sprintf("%s %s: %s", link, info.Label, state)
}
