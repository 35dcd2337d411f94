package koji

import (
	"strings"
	"testing"
)

func TestFormatLink(t *testing.T) {
	got := FormatLink("https://koji.example.com/taskinfo?taskID=7", "7")
	want := "\033]8;;https://koji.example.com/taskinfo?taskID=7\033\\7\033]8;;\033\\"
	if got != want {
		t.Errorf("FormatLink = %q, want %q", got, want)
	}
}

func TestFormatTask(t *testing.T) {
	got := FormatTask("https://koji.example.com/koji", TaskInfo{
		ID:    4321,
		State: TaskClosed,
		Label: "buildArch (x86_64)",
	})
	if !strings.Contains(got, "taskinfo?taskID=4321") {
		t.Errorf("FormatTask = %q, want task link", got)
	}
	if !strings.Contains(got, "buildArch (x86_64): ") {
		t.Errorf("FormatTask = %q, want label before state", got)
	}
	if !strings.Contains(got, "closed") {
		t.Errorf("FormatTask = %q, want state name", got)
	}
}

func TestTaskStateString(t *testing.T) {
	cases := map[TaskState]string{
		TaskFree:      "free",
		TaskOpen:      "open",
		TaskClosed:    "closed",
		TaskCanceled:  "canceled",
		TaskAssigned:  "assigned",
		TaskFailed:    "failed",
		TaskState(99): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("TaskState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
