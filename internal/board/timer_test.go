package board

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/evanschultz/kantime/internal/domain"
	"github.com/google/go-cmp/cmp"
)

type timerFixture struct {
	engine  *TimerEngine
	clock   *fakeClock
	store   *memStore
	mutator *fakeMutator
}

func newTimerFixture(t *testing.T, store *memStore) timerFixture {
	t.Helper()
	if store == nil {
		store = &memStore{}
	}
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	mutator := newFakeMutator()
	engine := NewTimerEngine(TimerConfig{
		ProjectID: "p1",
		Store:     store,
		Reporter:  mutator,
		Clock:     clock.Now,
		NewTicker: newIdleTicker,
	})
	t.Cleanup(engine.Close)
	return timerFixture{engine: engine, clock: clock, store: store, mutator: mutator}
}

func (f timerFixture) tick(t *testing.T, taskID string) {
	t.Helper()
	f.engine.mu.Lock()
	rt, ok := f.engine.running[taskID]
	f.engine.mu.Unlock()
	if !ok {
		t.Fatalf("no running timer for %q", taskID)
	}
	f.engine.tick(rt)
}

func TestTimerStopReportsFlooredMinutes(t *testing.T) {
	f := newTimerFixture(t, nil)
	task := testTask("t1", domain.StatusInProgress, 0, f.clock.Now())

	f.engine.Start(task)
	f.engine.Start(task)
	if got := f.engine.RunningIDs(); !slices.Equal(got, []string{"t1"}) {
		t.Fatalf("expected a single running timer, got %v", got)
	}

	f.clock.Advance(150 * time.Second)
	f.engine.Stop(context.Background(), "t1")

	want := []reportCall{{TaskID: "t1", Minutes: 2}}
	if diff := cmp.Diff(want, f.mutator.reportCalls()); diff != "" {
		t.Fatalf("reports mismatch (-want +got):\n%s", diff)
	}
	if f.engine.Running("t1") {
		t.Fatal("expected timer stopped")
	}
	if got := f.store.ids(); len(got) != 0 {
		t.Fatalf("expected durable record removed, got %v", got)
	}

	f.engine.Stop(context.Background(), "t1")
	if got := len(f.mutator.reportCalls()); got != 1 {
		t.Fatalf("second stop must be a no-op, got %d reports", got)
	}
}

// stopHookTicker never fires and runs onStop when its goroutine winds down.
type stopHookTicker struct {
	idleTicker
	onStop func()
}

func (t stopHookTicker) Stop() {
	if t.onStop != nil {
		t.onStop()
	}
}

func TestTimerStopCountsTickDuringShutdown(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	mutator := newFakeMutator()
	var onStop func()
	engine := NewTimerEngine(TimerConfig{
		ProjectID: "p1",
		Store:     &memStore{},
		Reporter:  mutator,
		Clock:     clock.Now,
		NewTicker: func(time.Duration) Ticker {
			return stopHookTicker{idleTicker: idleTicker{ch: make(chan time.Time)}, onStop: func() { onStop() }}
		},
	})
	t.Cleanup(engine.Close)

	engine.Start(testTask("t1", domain.StatusInProgress, 0, clock.Now()))
	engine.mu.Lock()
	rt := engine.running["t1"]
	engine.mu.Unlock()

	// A tick lands while Stop is tearing the goroutine down, then more time
	// passes before the goroutine exits.
	onStop = func() {
		clock.Advance(3*time.Minute + 10*time.Second)
		engine.tick(rt)
		clock.Advance(50 * time.Second)
	}
	clock.Advance(150 * time.Second)
	engine.Stop(context.Background(), "t1")

	total := 0
	for _, call := range mutator.reportCalls() {
		if call.Minutes <= 0 {
			t.Fatalf("unexpected non-positive report %#v", call)
		}
		total += call.Minutes
	}
	// 150s + 190s + 50s = 6m30s since start.
	if total != 6 {
		t.Fatalf("reported %d minutes, want 6 (floor of elapsed at stop)", total)
	}
}

func TestTimerTicksReportDeltas(t *testing.T) {
	f := newTimerFixture(t, nil)
	f.engine.Start(testTask("t1", domain.StatusInProgress, 0, f.clock.Now()))

	f.clock.Advance(30 * time.Second)
	f.tick(t, "t1")
	f.clock.Advance(45 * time.Second)
	f.tick(t, "t1")
	f.clock.Advance(60 * time.Second)
	f.tick(t, "t1")
	f.clock.Advance(20 * time.Second)
	f.engine.Stop(context.Background(), "t1")

	want := []reportCall{{TaskID: "t1", Minutes: 1}, {TaskID: "t1", Minutes: 1}}
	if diff := cmp.Diff(want, f.mutator.reportCalls()); diff != "" {
		t.Fatalf("reports mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerFailedTickIsRetried(t *testing.T) {
	f := newTimerFixture(t, nil)
	f.engine.Start(testTask("t1", domain.StatusInProgress, 0, f.clock.Now()))

	f.mutator.fail["report"] = errors.New("offline")
	f.clock.Advance(2 * time.Minute)
	f.tick(t, "t1")
	delete(f.mutator.fail, "report")
	f.engine.Stop(context.Background(), "t1")

	want := []reportCall{{TaskID: "t1", Minutes: 2}}
	if diff := cmp.Diff(want, f.mutator.reportCalls()); diff != "" {
		t.Fatalf("reports mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerRestoreKeepsOnlyInProgressTasks(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := &memStore{timers: []domain.ActiveTimer{
		{TaskID: "x", ProjectID: "p1", TaskTitle: "X", StartTime: start},
		{TaskID: "y", ProjectID: "p1", TaskTitle: "Y", StartTime: start, ReportedMinutes: 10},
		{TaskID: "z", ProjectID: "p2", TaskTitle: "Z", StartTime: start},
	}}
	f := newTimerFixture(t, store)
	tasks := []domain.Task{
		testTask("x", domain.StatusCompleted, 0, start),
		testTask("y", domain.StatusInProgress, 0, start),
	}

	resumed := f.engine.Restore(tasks)
	if got := taskIDsOfTimers(resumed); !slices.Equal(got, []string{"y"}) {
		t.Fatalf("Restore() resumed %v, want [y]", got)
	}
	if got := f.engine.RunningIDs(); !slices.Equal(got, []string{"y"}) {
		t.Fatalf("running = %v", got)
	}
	if got := taskIDsOfTimers(f.engine.Restored()); !slices.Equal(got, []string{"y"}) {
		t.Fatalf("Restored() = %v", got)
	}
	if got := f.engine.Elapsed("y"); got != time.Hour {
		t.Fatalf("restored timer should keep its original start, elapsed = %v", got)
	}
	if got := f.store.ids(); !slices.Equal(got, []string{"y", "z"}) {
		t.Fatalf("store after restore = %v, want stale x dropped and p2 kept", got)
	}

	f.engine.Stop(context.Background(), "y")
	want := []reportCall{{TaskID: "y", Minutes: 50}}
	if diff := cmp.Diff(want, f.mutator.reportCalls()); diff != "" {
		t.Fatalf("restored stop should only report unreported minutes (-want +got):\n%s", diff)
	}
}

func TestTimerStartClearsRestoredEntry(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	store := &memStore{timers: []domain.ActiveTimer{{TaskID: "y", ProjectID: "p1", StartTime: start}}}
	f := newTimerFixture(t, store)
	task := testTask("y", domain.StatusInProgress, 0, start)
	f.engine.Restore([]domain.Task{task})

	f.engine.Start(task)
	if got := f.engine.Restored(); len(got) != 0 {
		t.Fatalf("expected restored entry cleared, got %v", got)
	}
	if got := f.engine.Elapsed("y"); got != 30*time.Minute {
		t.Fatalf("Start on a running timer must not reset it, elapsed = %v", got)
	}

	f.engine.Restore([]domain.Task{task})
	if got := f.engine.Restored(); len(got) != 0 {
		t.Fatalf("already running timers are not restored again, got %v", got)
	}
}

func TestTimerStoreIsolationAcrossProjects(t *testing.T) {
	other := domain.ActiveTimer{TaskID: "other", ProjectID: "p2", TaskTitle: "Other", StartTime: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	store := &memStore{timers: []domain.ActiveTimer{other}}
	f := newTimerFixture(t, store)

	f.engine.Start(testTask("a", domain.StatusInProgress, 0, f.clock.Now()))
	f.engine.Start(testTask("b", domain.StatusInProgress, 0, f.clock.Now()))
	if got := f.store.ids(); !slices.Equal(got, []string{"a", "b", "other"}) {
		t.Fatalf("store = %v", got)
	}
	f.engine.Stop(context.Background(), "a")
	if got := f.store.ids(); !slices.Equal(got, []string{"b", "other"}) {
		t.Fatalf("store after stop = %v", got)
	}

	snapshot := f.store.snapshot()
	idx := slices.IndexFunc(snapshot, func(t domain.ActiveTimer) bool { return t.TaskID == "other" })
	if diff := cmp.Diff(other, snapshot[idx]); diff != "" {
		t.Fatalf("other project's timer changed (-want +got):\n%s", diff)
	}
}

func TestTimerSetTasksStopsAndDrops(t *testing.T) {
	f := newTimerFixture(t, nil)
	a := testTask("a", domain.StatusInProgress, 0, f.clock.Now())
	b := testTask("b", domain.StatusInProgress, 1, f.clock.Now())
	f.engine.SetTasks(context.Background(), []domain.Task{a, b})
	f.engine.Start(a)
	f.engine.Start(b)
	f.clock.Advance(3 * time.Minute)

	a.Status = domain.StatusCompleted
	f.engine.SetTasks(context.Background(), []domain.Task{a})

	if got := f.engine.RunningIDs(); len(got) != 0 {
		t.Fatalf("expected no running timers, got %v", got)
	}
	want := []reportCall{{TaskID: "a", Minutes: 3}}
	if diff := cmp.Diff(want, f.mutator.reportCalls()); diff != "" {
		t.Fatalf("only the moved task should be reported (-want +got):\n%s", diff)
	}
	if got := f.store.ids(); len(got) != 0 {
		t.Fatalf("store = %v", got)
	}
}

func TestTimerStorageFailureDegradesToMemory(t *testing.T) {
	store := &memStore{failAll: true}
	f := newTimerFixture(t, store)
	task := testTask("t1", domain.StatusInProgress, 0, f.clock.Now())

	if got := f.engine.Restore([]domain.Task{task}); len(got) != 0 {
		t.Fatalf("failed store should restore nothing, got %v", got)
	}
	f.engine.Start(task)
	f.clock.Advance(5 * time.Minute)
	f.engine.Stop(context.Background(), "t1")
	want := []reportCall{{TaskID: "t1", Minutes: 5}}
	if diff := cmp.Diff(want, f.mutator.reportCalls()); diff != "" {
		t.Fatalf("reports mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerCloseKeepsDurableRecords(t *testing.T) {
	f := newTimerFixture(t, nil)
	f.engine.Start(testTask("t1", domain.StatusInProgress, 0, f.clock.Now()))
	f.engine.Close()

	if got := f.engine.RunningIDs(); len(got) != 0 {
		t.Fatalf("expected ticks cancelled, got %v", got)
	}
	if got := f.store.ids(); !slices.Equal(got, []string{"t1"}) {
		t.Fatalf("expected durable record kept for restore, got %v", got)
	}
	f.engine.Start(testTask("t2", domain.StatusInProgress, 0, f.clock.Now()))
	if f.engine.Running("t2") {
		t.Fatal("closed engine must not start timers")
	}
	if got := len(f.mutator.reportCalls()); got != 0 {
		t.Fatalf("close must not report time, got %d reports", got)
	}
}

func TestTimerTickGoroutineReports(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	mutator := newFakeMutator()
	ticks := make(chan time.Time)
	engine := NewTimerEngine(TimerConfig{
		ProjectID: "p1",
		Reporter:  mutator,
		Clock:     clock.Now,
		NewTicker: func(time.Duration) Ticker { return idleTicker{ch: ticks} },
	})
	defer engine.Close()

	engine.Start(testTask("t1", domain.StatusInProgress, 0, clock.Now()))
	clock.Advance(61 * time.Second)
	ticks <- clock.Now()
	// A second send only completes once the first tick has been handled.
	ticks <- clock.Now()

	want := []reportCall{{TaskID: "t1", Minutes: 1}}
	if diff := cmp.Diff(want, mutator.reportCalls()); diff != "" {
		t.Fatalf("reports mismatch (-want +got):\n%s", diff)
	}
}

func taskIDsOfTimers(timers []domain.ActiveTimer) []string {
	out := make([]string, 0, len(timers))
	for _, timer := range timers {
		out = append(out, timer.TaskID)
	}
	slices.Sort(out)
	return out
}
