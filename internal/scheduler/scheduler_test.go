package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvicenti/botical-sub000/internal/store"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runnerCall
	err    error
	block  chan struct{}
	nextID int
}

type runnerCall struct {
	workflowID string
	input      map[string]any
}

func (f *fakeRunner) Execute(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, runnerCall{workflowID: workflowID, input: input})
	f.nextID++
	id := f.nextID
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return "", f.err
	}
	return "exec-" + string(rune('0'+id)), nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func seedSchedule(t *testing.T, s store.Store, id string, nextRunAt *time.Time, enabled bool) {
	t.Helper()
	require.NoError(t, s.CreateScheduledRun(context.Background(), &store.ScheduledRun{
		ID:             id,
		WorkflowID:     "wf-1",
		ProjectID:      "proj-1",
		CronExpression: "*/5 * * * *",
		Input:          json.RawMessage(`{"env":"prod"}`),
		Enabled:        enabled,
		NextRunAt:      nextRunAt,
	}))
}

func TestTickRunsDueSchedules(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{}
	sched := NewScheduler(s, runner, quietLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	seedSchedule(t, s, "due", &past, true)
	seedSchedule(t, s, "not-due", &future, true)
	seedSchedule(t, s, "disabled", &past, false)

	sched.tick(ctx)

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, "wf-1", runner.calls[0].workflowID)
	assert.Equal(t, map[string]any{"env": "prod"}, runner.calls[0].input)

	// Timestamps advance so the schedule is not due again.
	run, err := s.GetScheduledRun(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, "started", run.LastRunStatus)
	require.NotNil(t, run.NextRunAt)
	assert.True(t, run.NextRunAt.After(time.Now().UTC()))

	sched.tick(ctx)
	assert.Equal(t, 1, runner.callCount())
}

func TestTickRunsScheduleWithNilNextRun(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{}
	sched := NewScheduler(s, runner, quietLogger())

	seedSchedule(t, s, "fresh", nil, true)

	sched.tick(context.Background())
	assert.Equal(t, 1, runner.callCount())
}

func TestTickRecordsRunnerError(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{err: errors.New("engine unavailable")}
	sched := NewScheduler(s, runner, quietLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	seedSchedule(t, s, "failing", &past, true)

	sched.tick(ctx)

	run, err := s.GetScheduledRun(ctx, "failing")
	require.NoError(t, err)
	assert.Equal(t, "error", run.LastRunStatus)
	require.NotNil(t, run.NextRunAt)
}

func TestInflightDedup(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{block: make(chan struct{})}
	sched := NewScheduler(s, runner, quietLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	seedSchedule(t, s, "slow", &past, true)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.tick(ctx)
	}()

	require.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// A concurrent tick must skip the in-flight schedule.
	sched.tick(ctx)
	assert.Equal(t, 1, runner.callCount())

	close(runner.block)
	wg.Wait()
}

func TestCalculateNextRun(t *testing.T) {
	sched := NewScheduler(newTestStore(t), &fakeRunner{}, quietLogger())

	from := time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)
	next, err := sched.CalculateNextRun("*/5 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), next)

	_, err = sched.CalculateNextRun("not a cron", from)
	require.Error(t, err)
}

func TestRecoverMissed(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{}
	sched := NewScheduler(s, runner, quietLogger())
	ctx := context.Background()

	missed := time.Now().UTC().Add(-2 * time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	seedSchedule(t, s, "missed", &missed, true)
	seedSchedule(t, s, "upcoming", &future, true)

	require.NoError(t, sched.RecoverMissed(ctx))
	assert.Equal(t, 1, runner.callCount())

	run, err := s.GetScheduledRun(ctx, "missed")
	require.NoError(t, err)
	require.NotNil(t, run.NextRunAt)
	assert.True(t, run.NextRunAt.After(time.Now().UTC()))
}

func TestStartStop(t *testing.T) {
	s := newTestStore(t)
	runner := &fakeRunner{}
	sched := NewScheduler(s, runner, quietLogger())
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	seedSchedule(t, s, "due", &past, true)

	require.NoError(t, sched.Start(ctx))
	require.Error(t, sched.Start(ctx), "double start must fail")

	// The initial tick fires immediately.
	require.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop(), "stop is idempotent")
}
