package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Zhun1s/TomatoBot/internal/models"
)

// MemoryStorage keeps everything in process. Used by tests and as a fallback
// when no Mongo URI is configured.
type MemoryStorage struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	tasks       map[string]*models.Task // taskID -> task
	settings    map[string]*models.UserSettings
	stats       map[string]*models.Stats
	sessionLogs map[string][]models.SessionLog // userID -> logs
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:       make(map[string]*models.User),
		tasks:       make(map[string]*models.Task),
		settings:    make(map[string]*models.UserSettings),
		stats:       make(map[string]*models.Stats),
		sessionLogs: make(map[string][]models.SessionLog),
	}
}

// User methods

func (s *MemoryStorage) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		existing.ChatID = user.ChatID
		existing.FirstName = user.FirstName
		existing.Username = user.Username
		return nil
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now()
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

// Task methods

func (s *MemoryStorage) InsertTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *MemoryStorage) PendingTasks(_ context.Context, userID string) ([]models.Task, error) {
	return s.tasksByStatus(userID, models.StatusPending), nil
}

func (s *MemoryStorage) CompletedTasks(_ context.Context, userID string) ([]models.Task, error) {
	return s.tasksByStatus(userID, models.StatusCompleted), nil
}

func (s *MemoryStorage) tasksByStatus(userID, status string) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := []models.Task{}
	for _, task := range s.tasks {
		if task.UserID == userID && task.Status == status {
			tasks = append(tasks, *task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].DueDate.Before(tasks[j].DueDate)
	})
	return tasks
}

func (s *MemoryStorage) UpdateTaskFields(_ context.Context, taskID string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	for field, value := range fields {
		switch field {
		case models.FieldTitle:
			task.Title, _ = value.(string)
		case models.FieldDescription:
			task.Description, _ = value.(string)
		case models.FieldDueDate:
			if due, ok := value.(time.Time); ok {
				task.DueDate = due
			}
		case "status":
			task.Status, _ = value.(string)
		}
	}
	return nil
}

func (s *MemoryStorage) MarkTaskCompleted(_ context.Context, taskID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok || task.UserID != userID || task.Status != models.StatusPending {
		return false, nil
	}
	task.Status = models.StatusCompleted
	return true, nil
}

func (s *MemoryStorage) TasksDueWithin(_ context.Context, window time.Duration) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deadline := time.Now().Add(window)
	tasks := []models.Task{}
	for _, task := range s.tasks {
		if task.Status == models.StatusPending && !task.DueDate.After(deadline) {
			tasks = append(tasks, *task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].DueDate.Before(tasks[j].DueDate)
	})
	return tasks, nil
}

// Settings methods

func (s *MemoryStorage) GetOrCreateSettings(_ context.Context, userID string) (*models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[userID]
	if !ok {
		settings = &models.UserSettings{UserID: userID, Notifications: true}
		s.settings[userID] = settings
	}
	cp := *settings
	return &cp, nil
}

func (s *MemoryStorage) ToggleNotifications(_ context.Context, userID string) (*models.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.settings[userID]
	if !ok {
		settings = &models.UserSettings{UserID: userID, Notifications: true}
		s.settings[userID] = settings
	}
	settings.Notifications = !settings.Notifications
	cp := *settings
	return &cp, nil
}

// Stats methods

func (s *MemoryStorage) GetStats(_ context.Context, userID string) (*models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[userID]
	if !ok {
		return &models.Stats{UserID: userID}, nil
	}
	cp := *stats
	return &cp, nil
}

func (s *MemoryStorage) IncrementStat(_ context.Context, userID, field string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[userID]
	if !ok {
		stats = &models.Stats{UserID: userID}
		s.stats[userID] = stats
	}
	now := time.Now()
	// daily_sessions counts within a single UTC day.
	if !sameDay(stats.LastUpdated, now) {
		stats.DailySessions = 0
	}
	switch field {
	case models.StatTotalSessions:
		stats.TotalSessions += delta
	case models.StatTotalFocusMinutes:
		stats.TotalFocusMinutes += delta
	case models.StatCompletedTasks:
		stats.CompletedTasks += delta
	case models.StatDailySessions:
		stats.DailySessions += delta
	}
	stats.LastUpdated = now
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Session log methods

func (s *MemoryStorage) AppendSessionLog(_ context.Context, log *models.SessionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionLogs[log.UserID] = append(s.sessionLogs[log.UserID], *log)
	return nil
}

func (s *MemoryStorage) SessionLogs(_ context.Context, userID string) ([]models.SessionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs, ok := s.sessionLogs[userID]
	if !ok {
		return []models.SessionLog{}, nil
	}
	out := make([]models.SessionLog, len(logs))
	copy(out, logs)
	return out, nil
}
