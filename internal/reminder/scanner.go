// Package reminder periodically scans for tasks nearing their due date and
// notifies owners who have notifications enabled. The scanner shares nothing
// with the conversation engine or the scheduler except the store.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Zhun1s/TomatoBot/internal/models"
	"github.com/Zhun1s/TomatoBot/internal/storage"
	"github.com/Zhun1s/TomatoBot/internal/transport"
)

// ChatResolver maps a user to the chat reminders should be delivered to.
type ChatResolver func(ctx context.Context, userID string) (int64, bool)

// Config controls scan frequency and how far ahead due dates are matched.
type Config struct {
	Interval  time.Duration
	Lookahead time.Duration
}

// Scanner runs the periodic due-task scan.
type Scanner struct {
	store   storage.Store
	sender  transport.Sender
	resolve ChatResolver
	log     *zap.Logger
	cron    *cron.Cron
	cfg     Config
}

func New(store storage.Store, sender transport.Sender, resolve ChatResolver, log *zap.Logger, cfg Config) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}

	sc := &Scanner{
		store:   store,
		sender:  sender,
		resolve: resolve,
		log:     log,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = sc.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := sc.Scan(ctx); err != nil {
			sc.log.Error("reminder scan failed", zap.Error(err))
		}
	})

	return sc
}

// Start launches the cron scheduler.
func (sc *Scanner) Start() {
	sc.cron.Start()
	sc.log.Info("reminder scanner started",
		zap.Duration("interval", sc.cfg.Interval),
		zap.Duration("lookahead", sc.cfg.Lookahead),
	)
}

// Stop gracefully stops the scheduler, waiting for an in-flight scan.
func (sc *Scanner) Stop(ctx context.Context) {
	stopCtx := sc.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	sc.log.Info("reminder scanner stopped")
}

// Scan performs one pass: every pending task due within the lookahead window
// produces one reminder, if the owner has notifications on. There is no
// suppression across scans; a task stays eligible until completed or out of
// the window.
func (sc *Scanner) Scan(ctx context.Context) error {
	tasks, err := sc.store.TasksDueWithin(ctx, sc.cfg.Lookahead)
	if err != nil {
		return fmt.Errorf("due-task query: %w", err)
	}

	for _, task := range tasks {
		settings, err := sc.store.GetOrCreateSettings(ctx, task.UserID)
		if err != nil {
			sc.log.Error("settings lookup failed",
				zap.String("user_id", task.UserID),
				zap.Error(err),
			)
			continue
		}
		if !settings.Notifications {
			continue
		}
		chatID, ok := sc.resolve(ctx, task.UserID)
		if !ok {
			continue
		}
		text := reminderText(task)
		if err := sc.sender.SendMessage(ctx, chatID, text, nil); err != nil {
			sc.log.Error("reminder delivery failed",
				zap.String("user_id", task.UserID),
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func reminderText(task models.Task) string {
	return fmt.Sprintf("⏰ Reminder: \"%s\" is due %s.", task.Title, task.DueDate.Format("2006-01-02"))
}
