package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Zhun1s/TomatoBot/internal/models"
)

var ErrNotFound = errors.New("storage: not found")

// Store is the persistence surface the bot depends on. Implemented by the
// Mongo-backed store in production and the in-memory store in tests.
type Store interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)

	InsertTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	PendingTasks(ctx context.Context, userID string) ([]models.Task, error)
	CompletedTasks(ctx context.Context, userID string) ([]models.Task, error)
	UpdateTaskFields(ctx context.Context, taskID string, fields map[string]interface{}) error
	// MarkTaskCompleted reports whether a pending task was actually updated;
	// a missing or already-completed task is not an error.
	MarkTaskCompleted(ctx context.Context, taskID, userID string) (bool, error)
	TasksDueWithin(ctx context.Context, window time.Duration) ([]models.Task, error)

	GetOrCreateSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	ToggleNotifications(ctx context.Context, userID string) (*models.UserSettings, error)

	GetStats(ctx context.Context, userID string) (*models.Stats, error)
	IncrementStat(ctx context.Context, userID, field string, delta int) error

	AppendSessionLog(ctx context.Context, log *models.SessionLog) error
	SessionLogs(ctx context.Context, userID string) ([]models.SessionLog, error)
}
