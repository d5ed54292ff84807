package engine

// Flow identifies one multi-step dialogue.
type Flow int

const (
	FlowAddTask Flow = iota
	FlowEditTask
	FlowPomodoro
	FlowConfirm
)

func (f Flow) String() string {
	switch f {
	case FlowAddTask:
		return "add_task"
	case FlowEditTask:
		return "edit_task"
	case FlowPomodoro:
		return "pomodoro"
	case FlowConfirm:
		return "confirm"
	}
	return "unknown"
}

// Draft accumulates the fields collected so far in one flow. Each flow has
// its own draft type so steps cannot read another flow's fields.
type Draft interface {
	Flow() Flow
}

type AddTaskDraft struct {
	Title       string
	Description string
}

func (*AddTaskDraft) Flow() Flow { return FlowAddTask }

type EditTaskDraft struct {
	TaskID    string
	TaskTitle string
	Field     string
}

func (*EditTaskDraft) Flow() Flow { return FlowEditTask }

type PomodoroDraft struct {
	TaskID       string // empty when the user picked "other"
	TaskTitle    string
	Sessions     int
	WorkMinutes  int
	BreakMinutes int
}

func (*PomodoroDraft) Flow() Flow { return FlowPomodoro }

type ConfirmDraft struct {
	TaskID    string
	TaskTitle string
}

func (*ConfirmDraft) Flow() Flow { return FlowConfirm }
