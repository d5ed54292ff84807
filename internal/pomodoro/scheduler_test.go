package pomodoro

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhun1s/TomatoBot/internal/storage"
	"github.com/Zhun1s/TomatoBot/internal/transport"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeSender) SendMessage(_ context.Context, _ int64, text string, _ [][]transport.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSender) EditMessage(context.Context, int64, string) error { return nil }

func (f *fakeSender) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	copy(out, f.messages)
	return out
}

type fakeConfirmer struct {
	mu    sync.Mutex
	calls []string // task ids
}

func (f *fakeConfirmer) BeginConfirmation(_ context.Context, _ string, _ int64, taskID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, taskID)
}

func (f *fakeConfirmer) taskIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestScheduler(t *testing.T, minute time.Duration) (*Scheduler, *storage.MemoryStorage, *fakeSender, *fakeConfirmer) {
	t.Helper()
	store := storage.NewMemoryStorage()
	sender := &fakeSender{}
	confirm := &fakeConfirmer{}
	s := New(store, sender, nil)
	s.SetConfirmer(confirm)
	s.minute = minute
	return s, store, sender, confirm
}

func TestRunCompletesNaturally(t *testing.T) {
	s, store, sender, confirm := newTestScheduler(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "u1", 100, "task-1", "Thesis", 3, 1, 1))

	require.Eventually(t, func() bool {
		logs, err := store.SessionLogs(ctx, "u1")
		return err == nil && len(logs) == 1
	}, 2*time.Second, time.Millisecond)

	logs, err := store.SessionLogs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Completed)
	assert.Equal(t, 3, logs[0].SessionsCompleted)
	assert.Equal(t, 3, logs[0].TotalSessions)
	assert.Equal(t, "task-1", logs[0].TaskID)

	require.Eventually(t, func() bool {
		return len(confirm.taskIDs()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"task-1"}, confirm.taskIDs())

	assert.False(t, s.Active("u1"))

	stats, err := store.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 3, stats.TotalFocusMinutes)
	assert.Equal(t, 3, stats.DailySessions)

	messages := sender.all()
	assert.Contains(t, messages, "🍅 Session 1/3 started! Focus for 1 minutes.")
	assert.Contains(t, messages, "🍅 Session 3/3 started! Focus for 1 minutes.")
	assert.Contains(t, messages, "✅ Pomodoro complete! You finished all 3 sessions. 🎉")
	// no break announcement after the final session
	breaks := 0
	for _, msg := range messages {
		if msg == "⏳ Time's up! Take a 1-minute break." {
			breaks++
		}
	}
	assert.Equal(t, 2, breaks)
}

func TestConcurrentStartsOnlyOneWins(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, time.Hour)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Start(ctx, "u1", 100, "", "focus time", 2, 25, 5)
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrRunActive)
		}
	}
	assert.Equal(t, 1, wins)
	assert.True(t, s.Active("u1"))

	_, err := s.Stop(ctx, "u1")
	require.NoError(t, err)
}

func TestStopWithoutRun(t *testing.T) {
	s, store, _, _ := newTestScheduler(t, time.Millisecond)
	ctx := context.Background()

	_, err := s.Stop(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoActiveRun)

	logs, err := store.SessionLogs(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestStopAfterOneFullCycle(t *testing.T) {
	// work phases are long relative to breaks so the stop lands reliably
	// inside the second work phase
	s, store, _, _ := newTestScheduler(t, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "u1", 100, "task-1", "Thesis", 2, 25, 1))

	require.Eventually(t, func() bool {
		status, ok := s.Query("u1")
		return ok && status.SessionsDone == 1
	}, 5*time.Second, time.Millisecond)

	cycles, err := s.Stop(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, cycles)
	assert.False(t, s.Active("u1"))

	logs, err := store.SessionLogs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Completed)
	assert.Equal(t, 1, logs[0].SessionsCompleted)
	assert.Equal(t, 2, logs[0].TotalSessions)

	// no second log shows up later from the cancelled goroutine
	time.Sleep(300 * time.Millisecond)
	logs, err = store.SessionLogs(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestStopRecordsElapsedWorkStats(t *testing.T) {
	s, store, _, _ := newTestScheduler(t, 20*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "u1", 100, "", "focus time", 3, 25, 1))

	require.Eventually(t, func() bool {
		status, ok := s.Query("u1")
		return ok && status.SessionsDone >= 1
	}, 5*time.Second, time.Millisecond)

	_, err := s.Stop(ctx, "u1")
	require.NoError(t, err)

	stats, err := store.GetStats(ctx, "u1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalSessions, 1)
	assert.Equal(t, stats.TotalSessions*25, stats.TotalFocusMinutes)
}

func TestTasklessRunSkipsConfirmation(t *testing.T) {
	s, store, _, confirm := newTestScheduler(t, time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "u1", 100, "", "focus time", 1, 1, 1))

	require.Eventually(t, func() bool {
		logs, err := store.SessionLogs(ctx, "u1")
		return err == nil && len(logs) == 1
	}, 2*time.Second, time.Millisecond)

	assert.Empty(t, confirm.taskIDs())
}

func TestStartValidatesConfig(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, time.Millisecond)
	ctx := context.Background()

	for _, tc := range []struct{ sessions, work, brk int }{
		{0, 25, 5},
		{4, 0, 5},
		{4, 25, 0},
		{-1, 25, 5},
	} {
		err := s.Start(ctx, "u1", 100, "", "focus time", tc.sessions, tc.work, tc.brk)
		assert.ErrorIs(t, err, ErrBadConfig)
	}
	assert.False(t, s.Active("u1"))
}

func TestStopDoesNotTouchOtherUsers(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, "u1", 100, "", "focus time", 2, 25, 5))
	require.NoError(t, s.Start(ctx, "u2", 200, "", "focus time", 2, 25, 5))

	_, err := s.Stop(ctx, "u1")
	require.NoError(t, err)

	assert.False(t, s.Active("u1"))
	assert.True(t, s.Active("u2"))

	_, err = s.Stop(ctx, "u2")
	require.NoError(t, err)
}
