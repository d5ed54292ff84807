package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhun1s/TomatoBot/internal/models"
)

func newTask(userID, title string, due time.Time) *models.Task {
	return &models.Task{
		ID:      uuid.NewString(),
		UserID:  userID,
		Title:   title,
		DueDate: due,
		Status:  models.StatusPending,
	}
}

func TestSaveUserUpsert(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", ChatID: 100, FirstName: "Ann"}))
	first, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, first.JoinedAt.IsZero())

	// second save refreshes metadata but keeps the join date
	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", ChatID: 101, FirstName: "Anna"}))
	second, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", second.FirstName)
	assert.Equal(t, int64(101), second.ChatID)
	assert.Equal(t, first.JoinedAt, second.JoinedAt)
}

func TestGetUserNotFound(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingTasksSortedByDueDate(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertTask(ctx, newTask("u1", "later", base.AddDate(0, 0, 10))))
	require.NoError(t, s.InsertTask(ctx, newTask("u1", "sooner", base)))
	require.NoError(t, s.InsertTask(ctx, newTask("u2", "other user", base)))

	tasks, err := s.PendingTasks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "sooner", tasks[0].Title)
	assert.Equal(t, "later", tasks[1].Title)
}

func TestMarkTaskCompleted(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	task := newTask("u1", "report", time.Now())
	require.NoError(t, s.InsertTask(ctx, task))

	updated, err := s.MarkTaskCompleted(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.True(t, updated)

	// second completion and wrong owner are no-ops
	updated, err = s.MarkTaskCompleted(ctx, task.ID, "u1")
	require.NoError(t, err)
	assert.False(t, updated)

	other := newTask("u2", "theirs", time.Now())
	require.NoError(t, s.InsertTask(ctx, other))
	updated, err = s.MarkTaskCompleted(ctx, other.ID, "u1")
	require.NoError(t, err)
	assert.False(t, updated)

	completed, err := s.CompletedTasks(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}

func TestUpdateTaskFieldsPartial(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	task := newTask("u1", "draft", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	task.Description = "keep me"
	require.NoError(t, s.InsertTask(ctx, task))

	err := s.UpdateTaskFields(ctx, task.ID, map[string]interface{}{models.FieldTitle: "final"})
	require.NoError(t, err)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, "keep me", got.Description)
	assert.Equal(t, task.DueDate, got.DueDate)

	err = s.UpdateTaskFields(ctx, "missing", map[string]interface{}{models.FieldTitle: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTasksDueWithinWindow(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	now := time.Now()

	inside := newTask("u1", "due soon", now.Add(2*time.Hour))
	outside := newTask("u1", "due later", now.Add(72*time.Hour))
	done := newTask("u1", "already done", now.Add(time.Hour))
	done.Status = models.StatusCompleted
	for _, task := range []*models.Task{inside, outside, done} {
		require.NoError(t, s.InsertTask(ctx, task))
	}

	due, err := s.TasksDueWithin(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due soon", due[0].Title)
}

func TestToggleNotificationsRoundTrip(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	settings, err := s.GetOrCreateSettings(ctx, "u1")
	require.NoError(t, err)
	original := settings.Notifications
	assert.True(t, original) // notifications default on

	toggled, err := s.ToggleNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, !original, toggled.Notifications)

	back, err := s.ToggleNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, original, back.Notifications)
}

func TestIncrementStat(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, s.IncrementStat(ctx, "u1", models.StatTotalSessions, 2))
	require.NoError(t, s.IncrementStat(ctx, "u1", models.StatTotalFocusMinutes, 50))
	require.NoError(t, s.IncrementStat(ctx, "u1", models.StatDailySessions, 2))

	stats, err := s.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 50, stats.TotalFocusMinutes)
	assert.Equal(t, 2, stats.DailySessions)
	assert.False(t, stats.LastUpdated.IsZero())

	// unknown user reads as zeroed stats, not an error
	empty, err := s.GetStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSessions)
}

func TestAppendSessionLog(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, s.AppendSessionLog(ctx, &models.SessionLog{
		ID: uuid.NewString(), UserID: "u1", SessionsCompleted: 3, TotalSessions: 3, Completed: true,
	}))
	require.NoError(t, s.AppendSessionLog(ctx, &models.SessionLog{
		ID: uuid.NewString(), UserID: "u1", SessionsCompleted: 1, TotalSessions: 4, Completed: false,
	}))

	logs, err := s.SessionLogs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].Completed)
	assert.False(t, logs[1].Completed)
}
