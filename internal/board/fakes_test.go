package board

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/evanschultz/kantime/internal/domain"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// idleTicker never fires; tests drive ticks directly.
type idleTicker struct {
	ch chan time.Time
}

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

func newIdleTicker(time.Duration) Ticker {
	return idleTicker{ch: make(chan time.Time)}
}

type updateCall struct {
	TaskID string
	Patch  domain.TaskPatch
}

type reportCall struct {
	TaskID  string
	Minutes int
}

type fakeMutator struct {
	mu      sync.Mutex
	updates []updateCall
	deletes []string
	reports []reportCall
	creates []domain.TaskInput
	fail    map[string]error
	block   chan struct{}
	started chan struct{}
	nextID  int
}

func newFakeMutator() *fakeMutator {
	return &fakeMutator{fail: map[string]error{}}
}

func (m *fakeMutator) wait() {
	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
}

func (m *fakeMutator) CreateTask(_ context.Context, in domain.TaskInput) (domain.Task, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["create"]; err != nil {
		return domain.Task{}, err
	}
	m.creates = append(m.creates, in)
	m.nextID++
	in.ID = "new-" + strconv.Itoa(m.nextID)
	return domain.NewTask(in, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func (m *fakeMutator) UpdateTask(_ context.Context, id string, patch domain.TaskPatch) error {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[id]; err != nil {
		return err
	}
	m.updates = append(m.updates, updateCall{TaskID: id, Patch: patch})
	return nil
}

func (m *fakeMutator) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[id]; err != nil {
		return err
	}
	m.deletes = append(m.deletes, id)
	return nil
}

func (m *fakeMutator) ReportTimeSpent(_ context.Context, id string, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["report"]; err != nil {
		return err
	}
	m.reports = append(m.reports, reportCall{TaskID: id, Minutes: minutes})
	return nil
}

func (m *fakeMutator) updateCalls() []updateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.updates)
}

func (m *fakeMutator) reportCalls() []reportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.reports)
}

// memStore is an in-memory TimerStore without ReplaceActiveTimers.
type memStore struct {
	mu      sync.Mutex
	timers  []domain.ActiveTimer
	failAll bool
}

func (s *memStore) ListActiveTimers() ([]domain.ActiveTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errStoreDown
	}
	return slices.Clone(s.timers), nil
}

func (s *memStore) SaveActiveTimer(timer domain.ActiveTimer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	s.timers = slices.DeleteFunc(s.timers, func(t domain.ActiveTimer) bool { return t.TaskID == timer.TaskID })
	s.timers = append(s.timers, timer)
	return nil
}

func (s *memStore) RemoveActiveTimer(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	s.timers = slices.DeleteFunc(s.timers, func(t domain.ActiveTimer) bool { return t.TaskID == taskID })
	return nil
}

func (s *memStore) ClearActiveTimers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	s.timers = nil
	return nil
}

func (s *memStore) snapshot() []domain.ActiveTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.timers)
}

func (s *memStore) ids() []string {
	out := []string{}
	for _, timer := range s.snapshot() {
		out = append(out, timer.TaskID)
	}
	slices.Sort(out)
	return out
}

func testTask(id string, status domain.Status, position int, created time.Time) domain.Task {
	return domain.Task{
		ID:        id,
		ProjectID: "p1",
		Title:     "Task " + id,
		Status:    status,
		Priority:  domain.PriorityMedium,
		Position:  position,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

type boardFixture struct {
	board   *Board
	mutator *fakeMutator
	store   *memStore
	clock   *fakeClock
}

func newBoardFixture(tasks ...domain.Task) boardFixture {
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	mutator := newFakeMutator()
	store := &memStore{}
	b := New(Config{
		ProjectID: "p1",
		Mutator:   mutator,
		Clock:     clock.Now,
		Timers: TimerConfig{
			Store:     store,
			NewTicker: newIdleTicker,
		},
	})
	b.SetTasks(context.Background(), tasks)
	return boardFixture{board: b, mutator: mutator, store: store, clock: clock}
}
