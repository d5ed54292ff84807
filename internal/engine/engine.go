// Package engine drives the per-user conversation state machine. Every
// inbound event is resolved against the user's current state and handled to
// completion before the next one, so per-user handling is serialized.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zhun1s/TomatoBot/internal/models"
	"github.com/Zhun1s/TomatoBot/internal/pomodoro"
	"github.com/Zhun1s/TomatoBot/internal/storage"
	"github.com/Zhun1s/TomatoBot/internal/transport"
)

// State is the position of a user inside a flow.
type State int

const (
	StateIdle State = iota
	StateAddTitle
	StateAddDescription
	StateAddDueDate
	StateEditSelectTask
	StateEditSelectField
	StateEditNewValue
	StatePomodoroSelectTask
	StatePomodoroSessions
	StatePomodoroWork
	StatePomodoroBreak
	StateConfirmCompletion
)

func (s State) String() string {
	names := map[State]string{
		StateIdle:               "idle",
		StateAddTitle:           "add_title",
		StateAddDescription:     "add_description",
		StateAddDueDate:         "add_due_date",
		StateEditSelectTask:     "edit_select_task",
		StateEditSelectField:    "edit_select_field",
		StateEditNewValue:       "edit_new_value",
		StatePomodoroSelectTask: "pomodoro_select_task",
		StatePomodoroSessions:   "pomodoro_sessions",
		StatePomodoroWork:       "pomodoro_work",
		StatePomodoroBreak:      "pomodoro_break",
		StateConfirmCompletion:  "confirm_completion",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return "unknown"
}

const dateLayout = "2006-01-02"

// Button payload prefixes understood by the engine.
const (
	PayloadEditTask  = "edit_task_"
	PayloadEditField = "edit_field_"
	PayloadPomoTask  = "pomo_task_"
	PayloadPomoOther = "pomo_task_other"
)

// RunStarter is the session scheduler surface the engine hands a finished
// pomodoro draft to. Implemented by pomodoro.Scheduler.
type RunStarter interface {
	Start(ctx context.Context, userID string, chatID int64, taskID, taskTitle string, sessions, workMinutes, breakMinutes int) error
	Active(userID string) bool
}

type session struct {
	state  State
	draft  Draft
	chatID int64
}

// Engine maps (user, state, event) to (state, side effect).
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*session

	store  storage.Store
	sender transport.Sender
	runs   RunStarter
	log    *zap.Logger
}

func New(store storage.Store, sender transport.Sender, runs RunStarter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		sessions: make(map[string]*session),
		store:    store,
		sender:   sender,
		runs:     runs,
		log:      log,
	}
}

// InFlow reports whether the user has a dialogue in progress.
func (e *Engine) InFlow(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[userID]
	return ok
}

// enter replaces the user's draft with a fresh one for the given flow.
// A draft of the same flow is not silently discarded: the caller is told to
// cancel first.
func (e *Engine) enter(userID string, chatID int64, state State, draft Draft) bool {
	if existing, ok := e.sessions[userID]; ok && existing.draft.Flow() == draft.Flow() {
		return false
	}
	e.sessions[userID] = &session{state: state, draft: draft, chatID: chatID}
	return true
}

func (e *Engine) clear(userID string) {
	delete(e.sessions, userID)
}

func (e *Engine) reply(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) {
	if err := e.sender.SendMessage(ctx, chatID, text, buttons); err != nil {
		e.log.Error("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// ===== flow entry points =====

// StartAddTask begins the add-task dialogue.
func (e *Engine) StartAddTask(ctx context.Context, ev transport.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enter(ev.UserID, ev.ChatID, StateAddTitle, &AddTaskDraft{}) {
		e.reply(ctx, ev.ChatID, "You are already adding a task. Finish it or use /cancel first.", nil)
		return
	}
	e.reply(ctx, ev.ChatID, "Please enter the task title:", nil)
}

// StartEditTask begins the edit dialogue by offering the pending tasks as
// buttons.
func (e *Engine) StartEditTask(ctx context.Context, ev transport.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasks, err := e.store.PendingTasks(ctx, ev.UserID)
	if err != nil {
		e.logFailure(ev.UserID, FlowEditTask, StateEditSelectTask, err)
		e.reply(ctx, ev.ChatID, "Could not load your tasks, please try again.", nil)
		return
	}
	if len(tasks) == 0 {
		e.reply(ctx, ev.ChatID, "You have no pending tasks to edit.", nil)
		return
	}
	if !e.enter(ev.UserID, ev.ChatID, StateEditSelectTask, &EditTaskDraft{}) {
		e.reply(ctx, ev.ChatID, "You are already editing a task. Finish it or use /cancel first.", nil)
		return
	}
	e.reply(ctx, ev.ChatID, "✏️ Select a task to edit:", taskButtons(tasks, PayloadEditTask, false))
}

// StartPomodoro begins the pomodoro setup dialogue. Rejected while a run is
// active for the user.
func (e *Engine) StartPomodoro(ctx context.Context, ev transport.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runs.Active(ev.UserID) {
		e.reply(ctx, ev.ChatID, "You already have a pomodoro session running! Use /stop to end it.", nil)
		return
	}
	tasks, err := e.store.PendingTasks(ctx, ev.UserID)
	if err != nil {
		e.logFailure(ev.UserID, FlowPomodoro, StatePomodoroSelectTask, err)
		e.reply(ctx, ev.ChatID, "Could not load your tasks, please try again.", nil)
		return
	}
	if !e.enter(ev.UserID, ev.ChatID, StatePomodoroSelectTask, &PomodoroDraft{}) {
		e.reply(ctx, ev.ChatID, "You are already setting up a pomodoro. Finish it or use /cancel first.", nil)
		return
	}
	e.reply(ctx, ev.ChatID, "🍅 Pick a task to focus on:", taskButtons(tasks, PayloadPomoTask, true))
}

// Cancel discards the in-progress draft, whatever the flow.
func (e *Engine) Cancel(ctx context.Context, ev transport.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[ev.UserID]; !ok {
		e.reply(ctx, ev.ChatID, "Nothing to cancel.", nil)
		return
	}
	e.clear(ev.UserID)
	e.reply(ctx, ev.ChatID, "Cancelled.", nil)
}

// Skip advances past the optional description step.
func (e *Engine) Skip(ctx context.Context, ev transport.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[ev.UserID]
	if !ok || sess.state != StateAddDescription {
		e.reply(ctx, ev.ChatID, "Nothing to skip here.", nil)
		return
	}
	sess.draft.(*AddTaskDraft).Description = ""
	sess.state = StateAddDueDate
	e.reply(ctx, ev.ChatID, "Enter due date (YYYY-MM-DD):", nil)
}

// BeginConfirmation puts the user into the post-session confirmation state.
// Called by the session scheduler after a run completes naturally.
func (e *Engine) BeginConfirmation(ctx context.Context, userID string, chatID int64, taskID, taskTitle string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions[userID] = &session{
		state:  StateConfirmCompletion,
		draft:  &ConfirmDraft{TaskID: taskID, TaskTitle: taskTitle},
		chatID: chatID,
	}
	e.reply(ctx, chatID, fmt.Sprintf("Did you complete \"%s\"? (yes/no)", taskTitle), nil)
}

// ===== event dispatch =====

// HandleText advances the current flow with a plain text message. Returns
// false when the user has no flow in progress.
func (e *Engine) HandleText(ctx context.Context, ev transport.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[ev.UserID]
	if !ok {
		return false
	}

	text := strings.TrimSpace(ev.Text)
	switch sess.state {
	case StateAddTitle:
		sess.draft.(*AddTaskDraft).Title = text
		sess.state = StateAddDescription
		e.reply(ctx, ev.ChatID, "Enter task description (or /skip):", nil)
	case StateAddDescription:
		sess.draft.(*AddTaskDraft).Description = text
		sess.state = StateAddDueDate
		e.reply(ctx, ev.ChatID, "Enter due date (YYYY-MM-DD):", nil)
	case StateAddDueDate:
		e.finishAddTask(ctx, ev, sess, text)
	case StateEditNewValue:
		e.finishEditTask(ctx, ev, sess, text)
	case StatePomodoroSessions:
		e.pomodoroNumber(ctx, ev, sess, text, "sessions")
	case StatePomodoroWork:
		e.pomodoroNumber(ctx, ev, sess, text, "work")
	case StatePomodoroBreak:
		e.pomodoroNumber(ctx, ev, sess, text, "break")
	case StateConfirmCompletion:
		e.finishConfirmation(ctx, ev, sess, text)
	default:
		// waiting for a button press
		e.reply(ctx, ev.ChatID, "Please pick one of the options above, or /cancel.", nil)
	}
	return true
}

// HandleButton advances the current flow with a button press. Returns false
// when the payload is not addressed to the engine.
func (e *Engine) HandleButton(ctx context.Context, ev transport.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[ev.UserID]
	if !ok {
		return false
	}

	switch sess.state {
	case StateEditSelectTask:
		if !strings.HasPrefix(ev.Payload, PayloadEditTask) {
			return false
		}
		e.editSelectTask(ctx, ev, sess, strings.TrimPrefix(ev.Payload, PayloadEditTask))
	case StateEditSelectField:
		if !strings.HasPrefix(ev.Payload, PayloadEditField) {
			return false
		}
		e.editSelectField(ctx, ev, sess, strings.TrimPrefix(ev.Payload, PayloadEditField))
	case StatePomodoroSelectTask:
		if !strings.HasPrefix(ev.Payload, PayloadPomoTask) {
			return false
		}
		e.pomodoroSelectTask(ctx, ev, sess, strings.TrimPrefix(ev.Payload, PayloadPomoTask))
	default:
		return false
	}
	return true
}

// ===== add-task flow =====

func (e *Engine) finishAddTask(ctx context.Context, ev transport.Event, sess *session, text string) {
	due, err := time.Parse(dateLayout, text)
	if err != nil {
		e.reply(ctx, ev.ChatID, "Invalid date format. Please use YYYY-MM-DD", nil)
		return
	}

	draft := sess.draft.(*AddTaskDraft)
	task := &models.Task{
		ID:          uuid.NewString(),
		UserID:      ev.UserID,
		Title:       draft.Title,
		Description: draft.Description,
		DueDate:     due,
		Status:      models.StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := e.store.InsertTask(ctx, task); err != nil {
		e.logFailure(ev.UserID, FlowAddTask, sess.state, err)
		e.reply(ctx, ev.ChatID, "Could not save the task, please try again.", nil)
		return
	}
	e.clear(ev.UserID)
	e.reply(ctx, ev.ChatID, "✅ Task added successfully!", nil)
}

// ===== edit-task flow =====

func (e *Engine) editSelectTask(ctx context.Context, ev transport.Event, sess *session, taskID string) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		e.logFailure(ev.UserID, FlowEditTask, sess.state, err)
		e.reply(ctx, ev.ChatID, "That task is no longer available.", nil)
		return
	}
	draft := sess.draft.(*EditTaskDraft)
	draft.TaskID = task.ID
	draft.TaskTitle = task.Title
	sess.state = StateEditSelectField

	buttons := [][]transport.Button{
		{{Label: "Title", Payload: PayloadEditField + models.FieldTitle}},
		{{Label: "Description", Payload: PayloadEditField + models.FieldDescription}},
		{{Label: "Due date", Payload: PayloadEditField + models.FieldDueDate}},
	}
	e.reply(ctx, ev.ChatID, fmt.Sprintf("Editing \"%s\". What do you want to change?", task.Title), buttons)
}

func (e *Engine) editSelectField(ctx context.Context, ev transport.Event, sess *session, field string) {
	switch field {
	case models.FieldTitle, models.FieldDescription, models.FieldDueDate:
	default:
		e.reply(ctx, ev.ChatID, "Please pick one of the options above, or /cancel.", nil)
		return
	}
	sess.draft.(*EditTaskDraft).Field = field
	sess.state = StateEditNewValue

	prompt := "Enter the new value:"
	if field == models.FieldDueDate {
		prompt = "Enter the new due date (YYYY-MM-DD):"
	}
	e.reply(ctx, ev.ChatID, prompt, nil)
}

func (e *Engine) finishEditTask(ctx context.Context, ev transport.Event, sess *session, text string) {
	draft := sess.draft.(*EditTaskDraft)

	var value interface{} = text
	if draft.Field == models.FieldDueDate {
		due, err := time.Parse(dateLayout, text)
		if err != nil {
			e.reply(ctx, ev.ChatID, "Invalid date format. Please use YYYY-MM-DD", nil)
			return
		}
		value = due
	}

	fields := map[string]interface{}{draft.Field: value}
	if err := e.store.UpdateTaskFields(ctx, draft.TaskID, fields); err != nil {
		e.logFailure(ev.UserID, FlowEditTask, sess.state, err)
		e.reply(ctx, ev.ChatID, "Could not update the task, please try again.", nil)
		return
	}
	e.clear(ev.UserID)
	e.reply(ctx, ev.ChatID, "✅ Task updated!", nil)
}

// ===== pomodoro setup flow =====

func (e *Engine) pomodoroSelectTask(ctx context.Context, ev transport.Event, sess *session, taskID string) {
	draft := sess.draft.(*PomodoroDraft)
	if taskID == "other" {
		draft.TaskID = ""
		draft.TaskTitle = "focus time"
	} else {
		task, err := e.store.GetTask(ctx, taskID)
		if err != nil {
			e.logFailure(ev.UserID, FlowPomodoro, sess.state, err)
			e.reply(ctx, ev.ChatID, "That task is no longer available.", nil)
			return
		}
		draft.TaskID = task.ID
		draft.TaskTitle = task.Title
	}
	sess.state = StatePomodoroSessions
	e.reply(ctx, ev.ChatID, "How many work sessions? (e.g. 4)", nil)
}

func (e *Engine) pomodoroNumber(ctx context.Context, ev transport.Event, sess *session, text, step string) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 {
		e.reply(ctx, ev.ChatID, "Please enter a positive number.", nil)
		return
	}

	draft := sess.draft.(*PomodoroDraft)
	switch step {
	case "sessions":
		draft.Sessions = n
		sess.state = StatePomodoroWork
		e.reply(ctx, ev.ChatID, "Work minutes per session? (e.g. 25)", nil)
	case "work":
		draft.WorkMinutes = n
		sess.state = StatePomodoroBreak
		e.reply(ctx, ev.ChatID, "Break minutes between sessions? (e.g. 5)", nil)
	case "break":
		draft.BreakMinutes = n
		e.handoff(ctx, ev, draft)
	}
}

// handoff transfers the finished draft to the scheduler. The flow ends here;
// the engine does not wait for the run.
func (e *Engine) handoff(ctx context.Context, ev transport.Event, draft *PomodoroDraft) {
	e.clear(ev.UserID)
	err := e.runs.Start(ctx, ev.UserID, ev.ChatID, draft.TaskID, draft.TaskTitle,
		draft.Sessions, draft.WorkMinutes, draft.BreakMinutes)
	if errors.Is(err, pomodoro.ErrRunActive) {
		e.reply(ctx, ev.ChatID, "You already have a pomodoro session running! Use /stop to end it.", nil)
		return
	}
	if err != nil {
		e.logFailure(ev.UserID, FlowPomodoro, StatePomodoroBreak, err)
		e.reply(ctx, ev.ChatID, "Could not start the pomodoro session, please try again.", nil)
	}
}

// ===== post-session confirmation =====

func (e *Engine) finishConfirmation(ctx context.Context, ev transport.Event, sess *session, text string) {
	draft := sess.draft.(*ConfirmDraft)

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes":
		// Best effort: the task may have been deleted or completed during
		// the run, which is fine.
		updated, err := e.store.MarkTaskCompleted(ctx, draft.TaskID, ev.UserID)
		if err != nil {
			e.logFailure(ev.UserID, FlowConfirm, sess.state, err)
			e.reply(ctx, ev.ChatID, "Could not update the task, please try again.", nil)
			return
		}
		if updated {
			if err := e.store.IncrementStat(ctx, ev.UserID, models.StatCompletedTasks, 1); err != nil {
				e.logFailure(ev.UserID, FlowConfirm, sess.state, err)
			}
		}
		e.clear(ev.UserID)
		e.reply(ctx, ev.ChatID, fmt.Sprintf("🎉 \"%s\" marked as completed!", draft.TaskTitle), nil)
	case "no":
		e.clear(ev.UserID)
		e.reply(ctx, ev.ChatID, "👍 Keeping it pending. You can finish it later.", nil)
	default:
		e.reply(ctx, ev.ChatID, "Please answer yes or no.", nil)
	}
}

// ===== helpers =====

func taskButtons(tasks []models.Task, prefix string, withOther bool) [][]transport.Button {
	buttons := make([][]transport.Button, 0, len(tasks)+1)
	for _, task := range tasks {
		label := fmt.Sprintf("%s — %s", task.Title, task.DueDate.Format(dateLayout))
		buttons = append(buttons, []transport.Button{{Label: label, Payload: prefix + task.ID}})
	}
	if withOther {
		buttons = append(buttons, []transport.Button{{Label: "Other", Payload: PayloadPomoOther}})
	}
	return buttons
}

func (e *Engine) logFailure(userID string, flow Flow, state State, err error) {
	e.log.Error("flow operation failed",
		zap.String("user_id", userID),
		zap.String("flow", flow.String()),
		zap.String("state", state.String()),
		zap.Error(err),
	)
}
