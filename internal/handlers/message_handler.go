// Package handlers routes inbound transport events to the conversation
// engine, the pomodoro scheduler, and the store-backed commands.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Zhun1s/TomatoBot/internal/engine"
	"github.com/Zhun1s/TomatoBot/internal/models"
	"github.com/Zhun1s/TomatoBot/internal/pomodoro"
	"github.com/Zhun1s/TomatoBot/internal/storage"
	"github.com/Zhun1s/TomatoBot/internal/transport"
)

const (
	payloadDone           = "done_"
	payloadToggleNotifs   = "settings_toggle"
	dateLayout            = "2006-01-02"
	maxListedTasksPerPage = 50
)

type Handler struct {
	store     storage.Store
	sender    transport.Sender
	engine    *engine.Engine
	scheduler *pomodoro.Scheduler
	log       *zap.Logger
}

func New(store storage.Store, sender transport.Sender, eng *engine.Engine, scheduler *pomodoro.Scheduler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:     store,
		sender:    sender,
		engine:    eng,
		scheduler: scheduler,
		log:       log,
	}
}

// HandleEvent processes one inbound event to completion.
func (h *Handler) HandleEvent(ctx context.Context, ev transport.Event) {
	h.registerUser(ctx, ev)

	switch ev.Kind {
	case transport.KindCommand:
		h.handleCommand(ctx, ev)
	case transport.KindText:
		if !h.engine.HandleText(ctx, ev) {
			h.reply(ctx, ev.ChatID, "🤔 I didn't catch that. Try /start to see what I can do.")
		}
	case transport.KindButton:
		h.handleButton(ctx, ev)
	}
}

// registerUser creates or refreshes the user record on every contact.
func (h *Handler) registerUser(ctx context.Context, ev transport.Event) {
	user := &models.User{
		ID:        ev.UserID,
		ChatID:    ev.ChatID,
		FirstName: ev.FirstName,
		Username:  ev.Username,
		JoinedAt:  time.Now(),
	}
	if err := h.store.SaveUser(ctx, user); err != nil {
		h.log.Error("user upsert failed", zap.String("user_id", ev.UserID), zap.Error(err))
	}
}

func (h *Handler) handleCommand(ctx context.Context, ev transport.Event) {
	command := strings.ToLower(strings.TrimSpace(ev.Text))
	if i := strings.IndexAny(command, " @"); i > 0 {
		command = command[:i]
	}

	switch command {
	case "/start":
		h.reply(ctx, ev.ChatID, welcomeMessage(ev.FirstName))
	case "/addtask":
		h.engine.StartAddTask(ctx, ev)
	case "/tasks":
		h.listTasks(ctx, ev, models.StatusPending)
	case "/completed":
		h.listTasks(ctx, ev, models.StatusCompleted)
	case "/edittask":
		h.engine.StartEditTask(ctx, ev)
	case "/done":
		h.markDoneMenu(ctx, ev)
	case "/pomodoro":
		h.engine.StartPomodoro(ctx, ev)
	case "/stop":
		h.stopPomodoro(ctx, ev)
	case "/stats":
		h.showStats(ctx, ev)
	case "/settings":
		h.showSettings(ctx, ev)
	case "/cancel":
		h.engine.Cancel(ctx, ev)
	case "/skip":
		h.engine.Skip(ctx, ev)
	default:
		h.reply(ctx, ev.ChatID, "Unknown command. Try /start to see what I can do.")
	}
}

func (h *Handler) handleButton(ctx context.Context, ev transport.Event) {
	if h.engine.HandleButton(ctx, ev) {
		return
	}

	switch {
	case strings.HasPrefix(ev.Payload, payloadDone):
		h.markDone(ctx, ev, strings.TrimPrefix(ev.Payload, payloadDone))
	case ev.Payload == payloadToggleNotifs:
		h.toggleNotifications(ctx, ev)
	}
}

// ===== task listing =====

func (h *Handler) listTasks(ctx context.Context, ev transport.Event, status string) {
	var (
		tasks []models.Task
		err   error
	)
	if status == models.StatusPending {
		tasks, err = h.store.PendingTasks(ctx, ev.UserID)
	} else {
		tasks, err = h.store.CompletedTasks(ctx, ev.UserID)
	}
	if err != nil {
		h.log.Error("task list failed", zap.String("user_id", ev.UserID), zap.Error(err))
		h.reply(ctx, ev.ChatID, "Could not load your tasks, please try again.")
		return
	}

	if len(tasks) == 0 {
		if status == models.StatusPending {
			h.reply(ctx, ev.ChatID, "You have no pending tasks! Add one with /addtask.")
		} else {
			h.reply(ctx, ev.ChatID, "You have no completed tasks yet.")
		}
		return
	}

	var b strings.Builder
	if status == models.StatusPending {
		b.WriteString("📋 Your tasks:\n")
	} else {
		b.WriteString("✅ Completed tasks:\n")
	}
	for i, task := range tasks {
		if i == maxListedTasksPerPage {
			b.WriteString("…\n")
			break
		}
		b.WriteString(fmt.Sprintf("• %s (due %s)", task.Title, task.DueDate.Format(dateLayout)))
		if task.Description != "" {
			b.WriteString(" — " + task.Description)
		}
		b.WriteString("\n")
	}
	h.reply(ctx, ev.ChatID, b.String())
}

// ===== mark done =====

func (h *Handler) markDoneMenu(ctx context.Context, ev transport.Event) {
	tasks, err := h.store.PendingTasks(ctx, ev.UserID)
	if err != nil {
		h.log.Error("task list failed", zap.String("user_id", ev.UserID), zap.Error(err))
		h.reply(ctx, ev.ChatID, "Could not load your tasks, please try again.")
		return
	}
	if len(tasks) == 0 {
		h.reply(ctx, ev.ChatID, "You have no pending tasks to mark as done!")
		return
	}

	buttons := make([][]transport.Button, 0, len(tasks))
	for _, task := range tasks {
		label := fmt.Sprintf("%s — %s", task.Title, task.DueDate.Format(dateLayout))
		buttons = append(buttons, []transport.Button{{Label: label, Payload: payloadDone + task.ID}})
	}
	if err := h.sender.SendMessage(ctx, ev.ChatID, "✅ Select a task to mark as completed:", buttons); err != nil {
		h.log.Error("send failed", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
	}
}

func (h *Handler) markDone(ctx context.Context, ev transport.Event, taskID string) {
	updated, err := h.store.MarkTaskCompleted(ctx, taskID, ev.UserID)
	if err != nil {
		h.log.Error("mark done failed",
			zap.String("user_id", ev.UserID),
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		h.reply(ctx, ev.ChatID, "Could not update the task, please try again.")
		return
	}

	text := "⚠️ Task not found or already completed."
	if updated {
		text = "✅ Task marked as completed!"
		if err := h.store.IncrementStat(ctx, ev.UserID, models.StatCompletedTasks, 1); err != nil {
			h.log.Error("stat update failed", zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}

	// replace the button menu when we can, otherwise send a fresh message
	if ev.MessageSeq != 0 {
		if err := h.sender.EditMessage(ctx, ev.MessageSeq, text); err == nil {
			return
		}
	}
	h.reply(ctx, ev.ChatID, text)
}

// ===== pomodoro =====

func (h *Handler) stopPomodoro(ctx context.Context, ev transport.Event) {
	cycles, err := h.scheduler.Stop(ctx, ev.UserID)
	if errors.Is(err, pomodoro.ErrNoActiveRun) {
		h.reply(ctx, ev.ChatID, "You have no active pomodoro session.")
		return
	}
	if err != nil {
		h.log.Error("stop failed", zap.String("user_id", ev.UserID), zap.Error(err))
		h.reply(ctx, ev.ChatID, "Could not stop the session, please try again.")
		return
	}
	h.reply(ctx, ev.ChatID, fmt.Sprintf("🛑 Pomodoro stopped. Progress saved: %d full work+break cycles.", cycles))
}

// ===== stats =====

func (h *Handler) showStats(ctx context.Context, ev transport.Event) {
	stats, err := h.store.GetStats(ctx, ev.UserID)
	if err != nil {
		h.log.Error("stats load failed", zap.String("user_id", ev.UserID), zap.Error(err))
		h.reply(ctx, ev.ChatID, "Could not load your stats, please try again.")
		return
	}

	current := "none"
	if status, ok := h.scheduler.Query(ev.UserID); ok {
		current = fmt.Sprintf("%d/%d sessions on \"%s\"",
			status.SessionsDone, status.PlannedSessions, status.TaskTitle)
	}

	text := fmt.Sprintf(`📊 Your productivity:
• Pomodoro sessions: %d
• Focus time: %d min
• Sessions today: %d
• Tasks completed: %d
• Active session: %s`,
		stats.TotalSessions,
		stats.TotalFocusMinutes,
		stats.DailySessions,
		stats.CompletedTasks,
		current,
	)
	h.reply(ctx, ev.ChatID, text)
}

// ===== settings =====

func (h *Handler) showSettings(ctx context.Context, ev transport.Event) {
	settings, err := h.store.GetOrCreateSettings(ctx, ev.UserID)
	if err != nil {
		h.log.Error("settings load failed", zap.String("user_id", ev.UserID), zap.Error(err))
		h.reply(ctx, ev.ChatID, "Could not load your settings, please try again.")
		return
	}

	state := "off"
	if settings.Notifications {
		state = "on"
	}
	buttons := [][]transport.Button{
		{{Label: "Toggle notifications", Payload: payloadToggleNotifs}},
	}
	text := fmt.Sprintf("⚙️ Settings\n• Due-date reminders: %s", state)
	if err := h.sender.SendMessage(ctx, ev.ChatID, text, buttons); err != nil {
		h.log.Error("send failed", zap.Int64("chat_id", ev.ChatID), zap.Error(err))
	}
}

func (h *Handler) toggleNotifications(ctx context.Context, ev transport.Event) {
	settings, err := h.store.ToggleNotifications(ctx, ev.UserID)
	if err != nil {
		h.log.Error("settings toggle failed", zap.String("user_id", ev.UserID), zap.Error(err))
		h.reply(ctx, ev.ChatID, "Could not update your settings, please try again.")
		return
	}
	if settings.Notifications {
		h.reply(ctx, ev.ChatID, "🔔 Due-date reminders are now on.")
	} else {
		h.reply(ctx, ev.ChatID, "🔕 Due-date reminders are now off.")
	}
}

// ===== misc =====

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.sender.SendMessage(ctx, chatID, text, nil); err != nil {
		h.log.Error("send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func welcomeMessage(name string) string {
	greeting := "📝 Task Manager Bot"
	if name != "" {
		greeting = fmt.Sprintf("📝 Hi %s! I'm your task manager.", name)
	}
	return greeting + `

Available commands:
/addtask - Create a new task
/tasks - List pending tasks
/completed - List completed tasks
/edittask - Edit a task
/done - Mark a task as completed
/pomodoro - Start a focus session
/stop - Stop the focus session
/stats - Your productivity stats
/settings - Reminder settings
/cancel - Cancel the current dialogue`
}
