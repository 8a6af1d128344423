package board

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/evanschultz/kantime/internal/domain"
)

// DefaultTickInterval is how often running timers report accrued minutes.
const DefaultTickInterval = time.Minute

// TimeReporter receives accrued whole minutes for a task.
type TimeReporter interface {
	ReportTimeSpent(context.Context, string, int) error
}

// TimerConfig configures a TimerEngine.
type TimerConfig struct {
	ProjectID    string
	Store        TimerStore
	Reporter     TimeReporter
	Clock        Clock
	TickInterval time.Duration
	NewTicker    TickerFactory
	Logger       *log.Logger
}

// TimerEngine owns the running timers for one project. Every running timer has
// exactly one ticking goroutine, registered by task id and cancelled on Stop or Close.
type TimerEngine struct {
	mu        sync.Mutex
	syncMu    sync.Mutex
	projectID string
	store     TimerStore
	reporter  TimeReporter
	clock     Clock
	interval  time.Duration
	newTicker TickerFactory
	logger    *log.Logger

	running  map[string]*runningTimer
	restored map[string]domain.ActiveTimer
	statuses map[string]domain.Status
	closed   bool
	wg       sync.WaitGroup
}

type runningTimer struct {
	timer domain.ActiveTimer
	stop  chan struct{}
	done  chan struct{}
}

// NewTimerEngine constructs a timer engine. Store may be nil for memory-only timers.
func NewTimerEngine(cfg TimerConfig) *TimerEngine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewRealTicker
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &TimerEngine{
		projectID: strings.TrimSpace(cfg.ProjectID),
		store:     cfg.Store,
		reporter:  cfg.Reporter,
		clock:     cfg.Clock,
		interval:  cfg.TickInterval,
		newTicker: cfg.NewTicker,
		logger:    cfg.Logger.With("component", "timers"),
		running:   map[string]*runningTimer{},
		restored:  map[string]domain.ActiveTimer{},
		statuses:  map[string]domain.Status{},
	}
}

// Start begins timing task. It is a no-op when a timer is already running for it.
func (e *TimerEngine) Start(task domain.Task) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	delete(e.restored, task.ID)
	if _, ok := e.running[task.ID]; ok {
		e.mu.Unlock()
		return
	}
	e.statuses[task.ID] = domain.StatusInProgress
	e.launchLocked(domain.ActiveTimer{
		TaskID:    task.ID,
		ProjectID: e.projectID,
		TaskTitle: task.Title,
		StartTime: e.clock().UTC(),
	})
	e.mu.Unlock()

	e.logger.Debug("timer started", "task_id", task.ID)
	e.sync()
}

// Stop ends timing taskID and reports any minutes not yet reported.
func (e *TimerEngine) Stop(ctx context.Context, taskID string) {
	e.mu.Lock()
	rt, ok := e.running[taskID]
	if ok {
		delete(e.running, taskID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	close(rt.stop)
	<-rt.done

	// Read the clock only once no tick can still run.
	now := e.clock()
	e.mu.Lock()
	minutes := rt.timer.ElapsedMinutes(now) - rt.timer.ReportedMinutes
	rt.timer.ReportedMinutes += max(minutes, 0)
	e.mu.Unlock()

	if minutes > 0 {
		e.report(ctx, taskID, minutes)
	}
	e.logger.Debug("timer stopped", "task_id", taskID, "minutes", minutes)
	e.sync()
}

// Restore resumes stored timers for this project whose task is still in
// progress, keeping their original start time. Resumed timers are surfaced by
// Restored until dismissed or started again.
func (e *TimerEngine) Restore(tasks []domain.Task) []domain.ActiveTimer {
	stored := e.listStored()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.setStatusesLocked(tasks)
	var resumed []domain.ActiveTimer
	for _, timer := range stored {
		if timer.ProjectID != e.projectID || !timer.Valid() {
			continue
		}
		if e.statuses[timer.TaskID] != domain.StatusInProgress {
			continue
		}
		if _, ok := e.running[timer.TaskID]; ok {
			continue
		}
		timer.StartTime = timer.StartTime.UTC()
		e.launchLocked(timer)
		e.restored[timer.TaskID] = timer
		resumed = append(resumed, timer)
	}
	e.mu.Unlock()

	if len(resumed) > 0 {
		e.logger.Info("timers restored", "count", len(resumed))
	}
	e.sync()
	return resumed
}

// Restored returns timers resumed from storage that the user has not dismissed.
func (e *TimerEngine) Restored() []domain.ActiveTimer {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ActiveTimer, 0, len(e.restored))
	for _, timer := range e.restored {
		out = append(out, timer)
	}
	slices.SortFunc(out, func(a, b domain.ActiveTimer) int { return strings.Compare(a.TaskID, b.TaskID) })
	return out
}

// DismissRestored hides the restored notice for every task. The timers keep running.
func (e *TimerEngine) DismissRestored() {
	e.mu.Lock()
	e.restored = map[string]domain.ActiveTimer{}
	e.mu.Unlock()
}

// SetTasks refreshes the status snapshot. Timers whose task left in_progress
// are stopped with a final report; timers whose task disappeared are dropped.
func (e *TimerEngine) SetTasks(ctx context.Context, tasks []domain.Task) {
	e.mu.Lock()
	e.setStatusesLocked(tasks)
	var stop, drop []string
	for id := range e.running {
		status, ok := e.statuses[id]
		switch {
		case !ok:
			drop = append(drop, id)
		case status != domain.StatusInProgress:
			stop = append(stop, id)
		}
	}
	var dropped []*runningTimer
	for _, id := range drop {
		dropped = append(dropped, e.running[id])
		delete(e.running, id)
	}
	for id := range e.restored {
		if e.statuses[id] != domain.StatusInProgress {
			delete(e.restored, id)
		}
	}
	e.mu.Unlock()

	for _, rt := range dropped {
		close(rt.stop)
		<-rt.done
	}
	for _, id := range stop {
		e.Stop(ctx, id)
	}
	if len(dropped) > 0 {
		e.sync()
	}
}

// Running reports whether taskID has a running timer.
func (e *TimerEngine) Running(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[taskID]
	return ok
}

// RunningIDs returns the ids of every running timer, sorted.
func (e *TimerEngine) RunningIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.running))
	for id := range e.running {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Elapsed returns how long taskID's timer has been running, or zero.
func (e *TimerEngine) Elapsed(taskID string) time.Duration {
	now := e.clock()
	e.mu.Lock()
	defer e.mu.Unlock()
	rt, ok := e.running[taskID]
	if !ok {
		return 0
	}
	return max(now.Sub(rt.timer.StartTime), 0)
}

// Close cancels every tick and waits for the tick goroutines to exit. Durable
// records are kept so the timers can be restored on the next start.
func (e *TimerEngine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for id, rt := range e.running {
		close(rt.stop)
		delete(e.running, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// launchLocked registers timer and starts its tick goroutine. e.mu must be held.
func (e *TimerEngine) launchLocked(timer domain.ActiveTimer) {
	rt := &runningTimer{
		timer: timer,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.running[timer.TaskID] = rt
	ticker := e.newTicker(e.interval)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(rt.done)
		defer ticker.Stop()
		for {
			select {
			case <-rt.stop:
				return
			case <-ticker.C():
				e.tick(rt)
			}
		}
	}()
}

// tick reports whole minutes accrued since the last report.
func (e *TimerEngine) tick(rt *runningTimer) {
	now := e.clock()
	e.mu.Lock()
	minutes := rt.timer.ElapsedMinutes(now) - rt.timer.ReportedMinutes
	if minutes <= 0 {
		e.mu.Unlock()
		return
	}
	rt.timer.ReportedMinutes += minutes
	taskID := rt.timer.TaskID
	e.mu.Unlock()

	if !e.report(context.Background(), taskID, minutes) {
		e.mu.Lock()
		rt.timer.ReportedMinutes -= minutes
		e.mu.Unlock()
		return
	}
	e.sync()
}

func (e *TimerEngine) report(ctx context.Context, taskID string, minutes int) bool {
	if e.reporter == nil {
		return true
	}
	if err := e.reporter.ReportTimeSpent(context.WithoutCancel(ctx), taskID, minutes); err != nil {
		e.logger.Error("report time spent failed", "task_id", taskID, "minutes", minutes, "err", err)
		return false
	}
	return true
}

func (e *TimerEngine) setStatusesLocked(tasks []domain.Task) {
	statuses := make(map[string]domain.Status, len(tasks))
	for _, task := range tasks {
		statuses[task.ID] = task.Status
	}
	e.statuses = statuses
}

func (e *TimerEngine) listStored() []domain.ActiveTimer {
	if e.store == nil {
		return nil
	}
	timers, err := e.store.ListActiveTimers()
	if err != nil {
		e.logger.Warn("read timer store failed", "err", err)
		return nil
	}
	return timers
}

// sync rewrites the durable store from scratch: other projects' entries are
// kept, this project's running in-progress timers are written, and everything
// else is dropped.
func (e *TimerEngine) sync() {
	if e.store == nil {
		return
	}
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	stored, err := e.store.ListActiveTimers()
	if err != nil {
		e.logger.Warn("read timer store failed; skipping rewrite", "err", err)
		return
	}

	e.mu.Lock()
	next := make([]domain.ActiveTimer, 0, len(stored)+len(e.running))
	for _, timer := range stored {
		if timer.ProjectID != e.projectID {
			next = append(next, timer)
		}
	}
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		if e.statuses[id] == domain.StatusInProgress {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	for _, id := range ids {
		next = append(next, e.running[id].timer)
	}
	e.mu.Unlock()

	if replacer, ok := e.store.(timerReplacer); ok {
		if err := replacer.ReplaceActiveTimers(next); err != nil {
			e.logger.Warn("write timer store failed", "err", err)
		}
		return
	}
	if err := e.store.ClearActiveTimers(); err != nil {
		e.logger.Warn("clear timer store failed", "err", err)
		return
	}
	for _, timer := range next {
		if err := e.store.SaveActiveTimer(timer); err != nil {
			e.logger.Warn("save timer failed", "task_id", timer.TaskID, "err", err)
		}
	}
}
