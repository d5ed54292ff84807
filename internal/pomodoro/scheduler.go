// Package pomodoro runs timed work/break sequences, one active run per user.
// Runs execute on their own goroutines and are cancelled cooperatively at
// phase boundaries.
package pomodoro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zhun1s/TomatoBot/internal/models"
	"github.com/Zhun1s/TomatoBot/internal/storage"
	"github.com/Zhun1s/TomatoBot/internal/transport"
)

var (
	ErrRunActive   = errors.New("pomodoro: session already running")
	ErrNoActiveRun = errors.New("pomodoro: no active session")
	ErrBadConfig   = errors.New("pomodoro: sessions, work and break must be at least 1")
)

// Confirmer re-enters the conversation engine once a run completes
// naturally. Implemented by engine.Engine.
type Confirmer interface {
	BeginConfirmation(ctx context.Context, userID string, chatID int64, taskID, taskTitle string)
}

// Status is a read-only snapshot of an active run.
type Status struct {
	TaskTitle       string
	PlannedSessions int
	SessionsDone    int
	WorkMinutes     int
	BreakMinutes    int
	StartTime       time.Time
}

type run struct {
	userID    string
	chatID    int64
	taskID    string
	taskTitle string

	plannedSessions int
	workMinutes     int
	breakMinutes    int

	startTime time.Time
	cancel    context.CancelFunc

	// guarded by Scheduler.mu
	cyclesDone int // full work+break cycles elapsed
	workDone   int // work phases elapsed, for stats on stop
}

// Scheduler owns the active-run registry: one slot per user, checked and set
// atomically so two near-simultaneous starts cannot both win.
type Scheduler struct {
	mu   sync.Mutex
	runs map[string]*run

	store   storage.Store
	sender  transport.Sender
	confirm Confirmer
	log     *zap.Logger

	// minute is the wall-clock length of one configured minute. Tests
	// shrink it so runs complete in milliseconds.
	minute time.Duration
}

func New(store storage.Store, sender transport.Sender, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		runs:   make(map[string]*run),
		store:  store,
		sender: sender,
		log:    log,
		minute: time.Minute,
	}
}

// SetConfirmer wires the engine in after construction; the engine and the
// scheduler reference each other.
func (s *Scheduler) SetConfirmer(c Confirmer) {
	s.confirm = c
}

// Active reports whether the user currently has a run.
func (s *Scheduler) Active(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[userID]
	return ok
}

// Query returns a snapshot of the user's active run, if any.
func (s *Scheduler) Query(userID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[userID]
	if !ok {
		return Status{}, false
	}
	return Status{
		TaskTitle:       r.taskTitle,
		PlannedSessions: r.plannedSessions,
		SessionsDone:    r.cyclesDone,
		WorkMinutes:     r.workMinutes,
		BreakMinutes:    r.breakMinutes,
		StartTime:       r.startTime,
	}, true
}

// Start registers a run for the user and launches it asynchronously.
// Returns ErrRunActive when the user already has one.
func (s *Scheduler) Start(_ context.Context, userID string, chatID int64, taskID, taskTitle string, sessions, workMinutes, breakMinutes int) error {
	if sessions < 1 || workMinutes < 1 || breakMinutes < 1 {
		return ErrBadConfig
	}

	// Run lifetime is detached from the inbound event: the run outlives the
	// message that started it and ends only via StopRun or completion.
	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		userID:          userID,
		chatID:          chatID,
		taskID:          taskID,
		taskTitle:       taskTitle,
		plannedSessions: sessions,
		workMinutes:     workMinutes,
		breakMinutes:    breakMinutes,
		startTime:       time.Now(),
		cancel:          cancel,
	}

	s.mu.Lock()
	if _, exists := s.runs[userID]; exists {
		s.mu.Unlock()
		cancel()
		return ErrRunActive
	}
	s.runs[userID] = r
	s.mu.Unlock()

	s.log.Info("pomodoro run started",
		zap.String("user_id", userID),
		zap.String("task_id", taskID),
		zap.Int("sessions", sessions),
		zap.Int("work_minutes", workMinutes),
		zap.Int("break_minutes", breakMinutes),
	)

	go s.execute(runCtx, r)
	return nil
}

// Stop cancels the user's run at the next phase boundary and finalizes its
// bookkeeping. Returns the number of full cycles completed.
func (s *Scheduler) Stop(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	r, ok := s.runs[userID]
	if !ok {
		s.mu.Unlock()
		return 0, ErrNoActiveRun
	}
	r.cancel()
	cycles := r.cyclesDone
	workDone := r.workDone
	delete(s.runs, userID)
	s.mu.Unlock()

	s.appendLog(ctx, r, cycles, false)
	s.recordStats(ctx, r, workDone)

	s.log.Info("pomodoro run stopped",
		zap.String("user_id", userID),
		zap.Int("sessions_completed", cycles),
	)
	return cycles, nil
}

// execute runs the phase sequence. Every wait is a cancellation point; once
// the run is stopped the loop exits without further messages, the stop path
// owns finalization.
func (s *Scheduler) execute(ctx context.Context, r *run) {
	for i := 1; i <= r.plannedSessions; i++ {
		s.notify(ctx, r, fmt.Sprintf("🍅 Session %d/%d started! Focus for %d minutes.", i, r.plannedSessions, r.workMinutes))
		if !s.wait(ctx, r.workMinutes) {
			return
		}
		s.phaseDone(r, i == r.plannedSessions)

		if i == r.plannedSessions {
			// no break after the final session
			break
		}

		s.notify(ctx, r, fmt.Sprintf("⏳ Time's up! Take a %d-minute break.", r.breakMinutes))
		if !s.wait(ctx, r.breakMinutes) {
			return
		}
		s.cycleDone(r)
		s.notify(ctx, r, "🚀 Break over! Back to work.")
	}

	s.finish(ctx, r)
}

// wait suspends for the given number of configured minutes. Returns false
// when the run was cancelled during the interval.
func (s *Scheduler) wait(ctx context.Context, minutes int) bool {
	timer := time.NewTimer(time.Duration(minutes) * s.minute)
	defer timer.Stop()

	select {
	case <-timer.C:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) phaseDone(r *run, final bool) {
	s.mu.Lock()
	r.workDone++
	if final {
		// the final session counts as a full cycle, its break is skipped
		r.cyclesDone = r.plannedSessions
	}
	s.mu.Unlock()
}

func (s *Scheduler) cycleDone(r *run) {
	s.mu.Lock()
	r.cyclesDone++
	s.mu.Unlock()
}

// finish handles natural completion. If a Stop raced us out of the registry
// it already finalized and we do nothing.
func (s *Scheduler) finish(ctx context.Context, r *run) {
	s.mu.Lock()
	current, ok := s.runs[r.userID]
	if !ok || current != r {
		s.mu.Unlock()
		return
	}
	delete(s.runs, r.userID)
	s.mu.Unlock()
	defer r.cancel()

	s.notify(ctx, r, fmt.Sprintf("✅ Pomodoro complete! You finished all %d sessions. 🎉", r.plannedSessions))
	s.appendLog(ctx, r, r.plannedSessions, true)
	s.recordStats(ctx, r, r.plannedSessions)

	s.log.Info("pomodoro run completed",
		zap.String("user_id", r.userID),
		zap.Int("sessions", r.plannedSessions),
	)

	if r.taskID != "" && s.confirm != nil {
		s.confirm.BeginConfirmation(ctx, r.userID, r.chatID, r.taskID, r.taskTitle)
	}
}

func (s *Scheduler) appendLog(ctx context.Context, r *run, sessionsCompleted int, completed bool) {
	record := &models.SessionLog{
		ID:                uuid.NewString(),
		UserID:            r.userID,
		TaskID:            r.taskID,
		StartTime:         r.startTime,
		EndTime:           time.Now(),
		WorkMinutes:       r.workMinutes,
		BreakMinutes:      r.breakMinutes,
		SessionsCompleted: sessionsCompleted,
		TotalSessions:     r.plannedSessions,
		Completed:         completed,
	}
	if err := s.store.AppendSessionLog(ctx, record); err != nil {
		s.log.Error("session log write failed",
			zap.String("user_id", r.userID),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) recordStats(ctx context.Context, r *run, workPhases int) {
	if workPhases == 0 {
		return
	}
	increments := map[string]int{
		models.StatTotalSessions:     workPhases,
		models.StatDailySessions:     workPhases,
		models.StatTotalFocusMinutes: workPhases * r.workMinutes,
	}
	for field, delta := range increments {
		if err := s.store.IncrementStat(ctx, r.userID, field, delta); err != nil {
			s.log.Error("stat update failed",
				zap.String("user_id", r.userID),
				zap.String("field", field),
				zap.Error(err),
			)
		}
	}
}

func (s *Scheduler) notify(ctx context.Context, r *run, text string) {
	if err := s.sender.SendMessage(ctx, r.chatID, text, nil); err != nil {
		s.log.Error("pomodoro notification failed",
			zap.String("user_id", r.userID),
			zap.Error(err),
		)
	}
}
