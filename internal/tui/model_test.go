package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/evanschultz/kantime/internal/adapters/storage/timerfile"
	"github.com/evanschultz/kantime/internal/board"
	"github.com/evanschultz/kantime/internal/domain"
)

// fakeService backs both the board's Mutator and the model's Service.
type fakeService struct {
	mu      sync.Mutex
	tasks   []domain.Task
	events  []domain.ChangeEvent
	nextID  int
	failID  string
	started chan struct{}
	block   chan struct{}
	listErr error
}

func newFakeService(tasks ...domain.Task) *fakeService {
	return &fakeService{tasks: tasks}
}

func (f *fakeService) ListTasks(context.Context, string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.tasks), nil
}

func (f *fakeService) ListProjectChangeEvents(_ context.Context, _ string, limit int) ([]domain.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := slices.Clone(f.events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (f *fakeService) CreateTask(_ context.Context, in domain.TaskInput) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	in.ID = fmt.Sprintf("new-%d", f.nextID)
	task, err := domain.NewTask(in, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		return domain.Task{}, err
	}
	f.tasks = append(f.tasks, task)
	return task, nil
}

func (f *fakeService) UpdateTask(_ context.Context, id string, patch domain.TaskPatch) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failID {
		return errors.New("store unavailable")
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return f.tasks[i].ApplyPatch(patch, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
		}
	}
	return board.ErrTaskNotFound
}

func (f *fakeService) DeleteTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = slices.DeleteFunc(f.tasks, func(t domain.Task) bool { return t.ID == id })
	return nil
}

func (f *fakeService) ReportTimeSpent(_ context.Context, id string, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].TimeSpentMinutes += minutes
		}
	}
	return nil
}

func (f *fakeService) task(id string) (domain.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, task := range f.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return domain.Task{}, false
}

// idleTicker never fires.
type idleTicker struct{ ch chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.ch }
func (t idleTicker) Stop()               {}

func newIdleTicker(time.Duration) board.Ticker { return idleTicker{ch: make(chan time.Time)} }

func sampleTask(id, title string, status domain.Status, position int) domain.Task {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(position) * time.Minute)
	return domain.Task{
		ID:        id,
		ProjectID: "p1",
		Title:     title,
		Status:    status,
		Priority:  domain.PriorityMedium,
		Position:  position,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

type modelFixture struct {
	svc    *fakeService
	board  *board.Board
	store  *timerfile.Store
	copied *[]string
}

func newModelFixture(t *testing.T, tasks ...domain.Task) (Model, modelFixture) {
	t.Helper()
	store, err := timerfile.New(filepath.Join(t.TempDir(), "active-timers.json"))
	if err != nil {
		t.Fatalf("timerfile.New() error = %v", err)
	}
	return newModelFixtureWithStore(t, store, tasks...)
}

func newModelFixtureWithStore(t *testing.T, store *timerfile.Store, tasks ...domain.Task) (Model, modelFixture) {
	t.Helper()
	svc := newFakeService(tasks...)
	b := board.New(board.Config{
		ProjectID: "p1",
		Mutator:   svc,
		Clock:     func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) },
		Timers:    board.TimerConfig{Store: store, NewTicker: newIdleTicker},
	})
	t.Cleanup(b.Close)
	copied := []string{}
	m := NewModel(svc, b, domain.Project{ID: "p1", Name: "Inbox"},
		WithRefreshInterval(0),
		WithClipboard(func(s string) error {
			copied = append(copied, s)
			return nil
		}),
	)
	return m, modelFixture{svc: svc, board: b, store: store, copied: &copied}
}

func loadReadyModel(t *testing.T, m Model) Model {
	t.Helper()
	return applyMsg(t, applyCmd(t, m, m.Init()), tea.WindowSizeMsg{Width: 120, Height: 40})
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return applyCmd(t, out, cmd)
}

func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	currentCmd := cmd
	for i := 0; i < 6 && currentCmd != nil; i++ {
		msg := currentCmd()
		updated, nextCmd := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		out = casted
		currentCmd = nextCmd
	}
	return out
}

// sendMsg applies msg and drops the returned command, for text-input keys whose
// commands only drive cursor blinking.
func sendMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return out
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = sendMsg(t, m, keyRune(r))
	}
	return m
}

func keyRune(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}

func viewContent(m Model) string {
	return m.render()
}

// TestModelLoadsBoard verifies the initial load fills the three columns.
func TestModelLoadsBoard(t *testing.T) {
	m, fx := newModelFixture(t,
		sampleTask("a", "Write docs", domain.StatusTodo, 0),
		sampleTask("b", "Fix parser", domain.StatusInProgress, 0),
		sampleTask("c", "Ship release", domain.StatusCompleted, 0),
	)
	m = loadReadyModel(t, m)

	if !m.mounted {
		t.Fatal("expected model to be mounted after first load")
	}
	cols := fx.board.Columns()
	for i, col := range cols {
		if col.Len() != 1 {
			t.Fatalf("column %d len = %d, want 1", i, col.Len())
		}
	}
	out := viewContent(m)
	for _, want := range []string{"kantime", "Inbox", "To Do (1)", "In Progress (1)", "Completed (1)", "Write docs", "Fix parser", "Ship release"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected view to contain %q\n%s", want, out)
		}
	}
}

// TestModelLoadErrorShowsRetry verifies list failures surface in the view.
func TestModelLoadErrorShowsRetry(t *testing.T) {
	m, fx := newModelFixture(t)
	fx.svc.listErr = errors.New("disk gone")
	m = loadReadyModel(t, m)
	if m.err == nil {
		t.Fatal("expected load error")
	}
	if out := viewContent(m); !strings.Contains(out, "disk gone") {
		t.Fatalf("expected error in view, got %q", out)
	}
}

// TestModelKeyboardMoveStartsTimer verifies 1/2/3 move the focused task and timers follow.
func TestModelKeyboardMoveStartsTimer(t *testing.T) {
	m, fx := newModelFixture(t,
		sampleTask("a", "Write docs", domain.StatusTodo, 0),
		sampleTask("b", "Fix parser", domain.StatusTodo, 1),
	)
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	if got := fx.board.Mode(); got != board.ModeKeyboard {
		t.Fatalf("mode = %v, want keyboard", got)
	}
	if got := fx.board.Focus().TaskID; got != "a" {
		t.Fatalf("focus = %q, want a", got)
	}

	m = applyMsg(t, m, keyRune('2'))
	task, _ := fx.svc.task("a")
	if task.Status != domain.StatusInProgress {
		t.Fatalf("status = %q, want in_progress", task.Status)
	}
	if task.StartedAt == nil {
		t.Fatal("expected started_at on entering in progress")
	}
	if !fx.board.Timers().Running("a") {
		t.Fatal("expected timer to run for a")
	}
	stored, err := fx.store.ListActiveTimers()
	if err != nil {
		t.Fatalf("ListActiveTimers() error = %v", err)
	}
	if len(stored) != 1 || stored[0].TaskID != "a" {
		t.Fatalf("stored timers = %#v, want a", stored)
	}
	if !strings.Contains(m.status, "In Progress") {
		t.Fatalf("status = %q, want move confirmation", m.status)
	}

	m = applyMsg(t, m, keyRune('3'))
	if fx.board.Timers().Running("a") {
		t.Fatal("expected timer to stop after completing a")
	}
	task, _ = fx.svc.task("a")
	if task.Status != domain.StatusCompleted || task.CompletedAt == nil {
		t.Fatalf("task = %#v, want completed with completed_at", task)
	}
}

// TestModelMoveFailureShowsNotice verifies collaborator failures leave the task in place.
func TestModelMoveFailureShowsNotice(t *testing.T) {
	m, fx := newModelFixture(t, sampleTask("a", "Write docs", domain.StatusTodo, 0))
	fx.svc.failID = "a"
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	m = applyMsg(t, m, keyRune('2'))

	if task, _ := fx.board.Task("a"); task.Status != domain.StatusTodo {
		t.Fatalf("status = %q, want todo", task.Status)
	}
	if fx.board.Timers().Running("a") {
		t.Fatal("timer must not start when the update fails")
	}
	if _, ok := fx.board.Notice(); !ok {
		t.Fatal("expected a failure notice")
	}
	if out := viewContent(m); !strings.Contains(out, "Could not move task") {
		t.Fatalf("expected notice in view\n%s", out)
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if _, ok := fx.board.Notice(); ok {
		t.Fatal("expected esc to dismiss the notice")
	}
}

// TestModelEnterOpensTaskInfo verifies the select intent opens the detail overlay.
func TestModelEnterOpensTaskInfo(t *testing.T) {
	task := sampleTask("a", "Write docs", domain.StatusTodo, 0)
	task.Description = "Cover the **timer** rules"
	m, fx := newModelFixture(t, task)
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.mode != modeTaskInfo || m.taskInfoID != "a" {
		t.Fatalf("mode = %v task = %q, want task info for a", m.mode, m.taskInfoID)
	}
	if out := viewContent(m); !strings.Contains(out, "timer") {
		t.Fatalf("expected rendered description\n%s", out)
	}

	m = applyMsg(t, m, keyRune('y'))
	if got := *fx.copied; len(got) != 1 || got[0] != "Write docs" {
		t.Fatalf("copied = %#v, want title", got)
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.mode != modeNone {
		t.Fatalf("mode = %v, want none", m.mode)
	}
}

// TestModelSelectionModeBulkMove verifies pointer toggling and bulk status changes.
func TestModelSelectionModeBulkMove(t *testing.T) {
	m, fx := newModelFixture(t,
		sampleTask("a", "Write docs", domain.StatusTodo, 0),
		sampleTask("b", "Fix parser", domain.StatusTodo, 1),
		sampleTask("c", "Tidy", domain.StatusTodo, 2),
	)
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, keyRune('v'))
	if fx.board.Mode() != board.ModeSelecting {
		t.Fatalf("mode = %v, want selecting", fx.board.Mode())
	}
	first, ok := m.pointerTask()
	if !ok {
		t.Fatal("expected pointer task")
	}
	m = applyMsg(t, m, keyRune(' '))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	second, _ := m.pointerTask()
	m = applyMsg(t, m, keyRune(' '))
	if got := len(fx.board.SelectedIDs()); got != 2 {
		t.Fatalf("selected = %d, want 2", got)
	}

	m = applyMsg(t, m, keyRune('3'))
	for _, id := range []string{first.ID, second.ID} {
		task, _ := fx.svc.task(id)
		if task.Status != domain.StatusCompleted {
			t.Fatalf("task %s status = %q, want completed", id, task.Status)
		}
	}
	if !strings.Contains(m.status, "2 done") {
		t.Fatalf("status = %q, want batch summary", m.status)
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if fx.board.Mode() != board.ModeNormal || len(fx.board.SelectedIDs()) != 0 {
		t.Fatal("expected esc to leave selection mode and clear the selection")
	}
}

// TestModelBulkDeleteAsksFirst verifies x requires confirmation.
func TestModelBulkDeleteAsksFirst(t *testing.T) {
	m, fx := newModelFixture(t,
		sampleTask("a", "Write docs", domain.StatusTodo, 0),
		sampleTask("b", "Fix parser", domain.StatusInProgress, 0),
	)
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, keyRune('v'))
	m = applyMsg(t, m, keyRune('a'))
	m = applyMsg(t, m, keyRune('x'))
	if m.mode != modeConfirmDelete {
		t.Fatalf("mode = %v, want confirm delete", m.mode)
	}
	m = applyMsg(t, m, keyRune('n'))
	if len(fx.board.Tasks()) != 2 {
		t.Fatal("expected cancel to keep tasks")
	}

	m = applyMsg(t, m, keyRune('x'))
	m = applyMsg(t, m, keyRune('y'))
	if got := len(fx.board.Tasks()); got != 0 {
		t.Fatalf("tasks after delete = %d, want 0", got)
	}
	if got, _ := fx.svc.ListTasks(context.Background(), "p1"); len(got) != 0 {
		t.Fatalf("service tasks = %d, want 0", len(got))
	}
}

// TestModelBulkPriorityCycles verifies p assigns priorities in cycle order.
func TestModelBulkPriorityCycles(t *testing.T) {
	m, fx := newModelFixture(t, sampleTask("a", "Write docs", domain.StatusTodo, 0))
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, keyRune('v'))
	m = applyMsg(t, m, keyRune(' '))
	m = applyMsg(t, m, keyRune('p'))
	if task, _ := fx.svc.task("a"); task.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %q, want high", task.Priority)
	}
	if got := fx.board.SelectedIDs(); len(got) != 0 {
		t.Fatalf("selection after bulk priority = %v, want empty", got)
	}

	m = applyMsg(t, m, keyRune('p'))
	if task, _ := fx.svc.task("a"); task.Priority != domain.PriorityHigh {
		t.Fatalf("priority with nothing selected = %q, want high", task.Priority)
	}

	m = applyMsg(t, m, keyRune(' '))
	m = applyMsg(t, m, keyRune('p'))
	if task, _ := fx.svc.task("a"); task.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %q, want medium", task.Priority)
	}
	_ = m
}

// TestModelCreateTaskForm verifies the form validates and creates tasks.
func TestModelCreateTaskForm(t *testing.T) {
	m, fx := newModelFixture(t)
	m = loadReadyModel(t, m)

	m = sendMsg(t, m, keyRune('n'))
	if m.mode != modeAddTask {
		t.Fatalf("mode = %v, want add task", m.mode)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.mode != modeAddTask || !strings.Contains(m.formErr, "title") {
		t.Fatalf("expected title validation error, mode=%v err=%q", m.mode, m.formErr)
	}

	m = typeText(t, m, "Plan sprint")
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m = typeText(t, m, "2.5")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.mode != modeNone {
		t.Fatalf("mode = %v, want none after create (err %q)", m.mode, m.formErr)
	}
	tasks := fx.board.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "Plan sprint" {
		t.Fatalf("tasks = %#v, want created task", tasks)
	}
	if tasks[0].EstimatedHours == nil || *tasks[0].EstimatedHours != 2.5 {
		t.Fatalf("estimate = %v, want 2.5", tasks[0].EstimatedHours)
	}
}

// TestModelCreateTaskRejectsBadPriority verifies local priority parsing.
func TestModelCreateTaskRejectsBadPriority(t *testing.T) {
	m, fx := newModelFixture(t)
	m = loadReadyModel(t, m)

	m = sendMsg(t, m, keyRune('n'))
	m = typeText(t, m, "Plan")
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyTab})
	m.formInputs[taskFieldPriority].SetValue("urgent")
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if !strings.Contains(m.formErr, "priority") {
		t.Fatalf("formErr = %q, want priority error", m.formErr)
	}
	if len(fx.board.Tasks()) != 0 {
		t.Fatal("expected no task to be created")
	}
}

// TestModelSearchFiltersLive verifies search applies while typing and esc restores.
func TestModelSearchFiltersLive(t *testing.T) {
	m, fx := newModelFixture(t,
		sampleTask("a", "Write docs", domain.StatusTodo, 0),
		sampleTask("b", "Fix parser bug", domain.StatusTodo, 1),
	)
	m = loadReadyModel(t, m)

	m = sendMsg(t, m, keyRune('/'))
	m = typeText(t, m, "bug")
	if got := fx.board.Visible(); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("visible = %#v, want only b", got)
	}
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if got := fx.board.Visible(); len(got) != 2 {
		t.Fatalf("visible after esc = %d, want 2", len(got))
	}

	m = sendMsg(t, m, keyRune('/'))
	m = typeText(t, m, "docs")
	m = sendMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.mode != modeNone || fx.board.Filter().Search != "docs" {
		t.Fatalf("mode = %v search = %q, want applied search", m.mode, fx.board.Filter().Search)
	}
}

// TestModelFilterAndSortKeys verifies filter cycling and clearing.
func TestModelFilterAndSortKeys(t *testing.T) {
	high := sampleTask("a", "Urgent", domain.StatusTodo, 0)
	high.Priority = domain.PriorityHigh
	m, fx := newModelFixture(t, high, sampleTask("b", "Later", domain.StatusCompleted, 0))
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, keyRune('f'))
	if got := fx.board.Filter().Priority; got != string(domain.PriorityHigh) {
		t.Fatalf("priority filter = %q, want high", got)
	}
	if got := fx.board.Visible(); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("visible = %#v, want a", got)
	}
	m = applyMsg(t, m, keyRune('s'))
	if got := fx.board.Filter().Status; got != string(domain.StatusTodo) {
		t.Fatalf("status filter = %q, want todo", got)
	}
	m = applyMsg(t, m, keyRune('o'))
	if got := fx.board.Filter().SortBy; got != board.SortUpdated {
		t.Fatalf("sort = %q, want updated", got)
	}
	m = applyMsg(t, m, keyRune('O'))
	if got := fx.board.Filter().SortOrder; got != board.SortAsc {
		t.Fatalf("order = %q, want asc", got)
	}
	m = applyMsg(t, m, keyRune('c'))
	if got := fx.board.Filter(); got != board.DefaultFilter() {
		t.Fatalf("filter = %#v, want default", got)
	}
	if out := viewContent(m); !strings.Contains(out, "2/2 shown") {
		t.Fatalf("expected filter summary\n%s", out)
	}
}

// TestModelQuitConfirmsWhileSaving verifies quitting mid-write asks first.
func TestModelQuitConfirmsWhileSaving(t *testing.T) {
	m, fx := newModelFixture(t, sampleTask("a", "Write docs", domain.StatusTodo, 0))
	m = loadReadyModel(t, m)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})

	fx.svc.started = make(chan struct{})
	fx.svc.block = make(chan struct{})
	updated, cmd := m.Update(keyRune('2'))
	m = updated.(Model)
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	<-fx.svc.started

	m = applyMsg(t, m, keyRune('q'))
	if m.mode != modeConfirmQuit {
		t.Fatalf("mode = %v, want confirm quit", m.mode)
	}
	if out := viewContent(m); !strings.Contains(out, "saving") {
		t.Fatalf("expected saving indicator\n%s", out)
	}
	updated, quitCmd := m.Update(keyRune('y'))
	if quitCmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := quitCmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
	_ = updated

	close(fx.svc.block)
	<-done
}

// TestModelQuitWithoutPendingWrite verifies q quits immediately when idle.
func TestModelQuitWithoutPendingWrite(t *testing.T) {
	m, _ := newModelFixture(t)
	m = loadReadyModel(t, m)
	_, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

// TestModelMouseDragMovesTask verifies press and release across columns moves a card.
func TestModelMouseDragMovesTask(t *testing.T) {
	m, fx := newModelFixture(t,
		sampleTask("a", "Write docs", domain.StatusTodo, 0),
		sampleTask("b", "Fix parser", domain.StatusInProgress, 0),
	)
	m = loadReadyModel(t, m)
	outer := m.columnOuterWidth()

	m = applyMsg(t, m, tea.MouseClickMsg{X: 2, Y: rowsTop, Button: tea.MouseLeft})
	if m.drag == nil || m.drag.taskID != "a" {
		t.Fatalf("drag = %#v, want drag of a", m.drag)
	}
	m = applyMsg(t, m, tea.MouseReleaseMsg{X: outer + 2, Y: rowsTop, Button: tea.MouseLeft})
	if m.drag != nil {
		t.Fatal("expected drag to end on release")
	}
	task, _ := fx.svc.task("a")
	if task.Status != domain.StatusInProgress || task.Position != 0 {
		t.Fatalf("task = %#v, want in_progress at 0", task)
	}
	if !fx.board.Timers().Running("a") {
		t.Fatal("expected timer after dropping into in progress")
	}
}

// TestModelMouseDropOutsideCancels verifies releases off the board do nothing.
func TestModelMouseDropOutsideCancels(t *testing.T) {
	m, fx := newModelFixture(t, sampleTask("a", "Write docs", domain.StatusTodo, 0))
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, tea.MouseClickMsg{X: 2, Y: rowsTop, Button: tea.MouseLeft})
	m = applyMsg(t, m, tea.MouseReleaseMsg{X: 2, Y: 0, Button: tea.MouseLeft})
	if task, _ := fx.svc.task("a"); task.Status != domain.StatusTodo {
		t.Fatalf("status = %q, want todo", task.Status)
	}
	if m.drag != nil {
		t.Fatal("expected drag cleared")
	}
}

// TestModelMouseMotionLeavesKeyboardMode verifies pointer motion ends keyboard focus.
func TestModelMouseMotionLeavesKeyboardMode(t *testing.T) {
	m, fx := newModelFixture(t, sampleTask("a", "Write docs", domain.StatusTodo, 0))
	m = loadReadyModel(t, m)
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyDown})
	if fx.board.Mode() != board.ModeKeyboard {
		t.Fatal("expected keyboard mode")
	}
	m = applyMsg(t, m, tea.MouseMotionMsg{X: 5, Y: 5})
	if fx.board.Mode() != board.ModeNormal {
		t.Fatalf("mode = %v, want normal", fx.board.Mode())
	}
	_ = m
}

// TestModelMouseClickTogglesInSelectionMode verifies clicks select rows.
func TestModelMouseClickTogglesInSelectionMode(t *testing.T) {
	m, fx := newModelFixture(t, sampleTask("a", "Write docs", domain.StatusTodo, 0))
	m = loadReadyModel(t, m)
	m = applyMsg(t, m, keyRune('v'))
	m = applyMsg(t, m, tea.MouseClickMsg{X: 2, Y: rowsTop, Button: tea.MouseLeft})
	if got := fx.board.SelectedIDs(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("selected = %#v, want a", got)
	}
	if m.drag != nil {
		t.Fatal("selection clicks must not start a drag")
	}
}

// TestModelResumesPersistedTimers verifies the first load restores timers and esc dismisses the banner.
func TestModelResumesPersistedTimers(t *testing.T) {
	store, err := timerfile.New(filepath.Join(t.TempDir(), "active-timers.json"))
	if err != nil {
		t.Fatalf("timerfile.New() error = %v", err)
	}
	if err := store.SaveActiveTimer(domain.ActiveTimer{
		TaskID:    "b",
		ProjectID: "p1",
		TaskTitle: "Fix parser",
		StartTime: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("SaveActiveTimer() error = %v", err)
	}
	m, fx := newModelFixtureWithStore(t, store, sampleTask("b", "Fix parser", domain.StatusInProgress, 0))
	m = loadReadyModel(t, m)

	if !fx.board.Timers().Running("b") {
		t.Fatal("expected restored timer to run")
	}
	if !strings.Contains(m.status, "resumed 1") {
		t.Fatalf("status = %q, want resume notice", m.status)
	}
	if out := viewContent(m); !strings.Contains(out, "resumed 1 timer(s): Fix parser") {
		t.Fatalf("expected resume banner\n%s", out)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if got := fx.board.Timers().Restored(); len(got) != 0 {
		t.Fatalf("restored = %#v, want dismissed", got)
	}
	_ = m
}

// TestModelActivityOverlay verifies g loads and renders change events.
func TestModelActivityOverlay(t *testing.T) {
	m, fx := newModelFixture(t, sampleTask("a", "Write docs", domain.StatusInProgress, 0))
	fx.svc.events = []domain.ChangeEvent{
		{ID: 2, ProjectID: "p1", TaskID: "a", Operation: domain.ChangeOperationTime, ActorType: domain.ActorTypeSystem, Metadata: map[string]string{"minutes": "3"}, OccurredAt: time.Now()},
		{ID: 1, ProjectID: "p1", TaskID: "a", Operation: domain.ChangeOperationMove, ActorType: domain.ActorTypeUser, Metadata: map[string]string{"from_status": "todo", "to_status": "in_progress"}, OccurredAt: time.Now()},
	}
	m = loadReadyModel(t, m)

	m = applyMsg(t, m, keyRune('g'))
	if m.mode != modeActivityLog || len(m.activity) != 2 {
		t.Fatalf("mode = %v events = %d, want activity with 2 events", m.mode, len(m.activity))
	}
	out := viewContent(m)
	for _, want := range []string{"Activity", "+3m", "todo → in_progress"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in activity overlay\n%s", want, out)
		}
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.mode != modeNone {
		t.Fatalf("mode = %v, want none", m.mode)
	}
}

// TestModelViewModes verifies the view enables mouse motion and the alt screen.
func TestModelViewModes(t *testing.T) {
	m, _ := newModelFixture(t)
	v := m.View()
	if v.Content == nil || v.MouseMode != tea.MouseModeAllMotion || !v.AltScreen {
		t.Fatal("expected loading view with mouse motion and alt screen")
	}
	if got := viewContent(m); got != "loading..." {
		t.Fatalf("render() = %q, want loading", got)
	}
}

// TestModelHelpToggle verifies ? opens and esc closes the help overlay.
func TestModelHelpToggle(t *testing.T) {
	m, _ := newModelFixture(t)
	m = loadReadyModel(t, m)
	m = applyMsg(t, m, keyRune('?'))
	if !m.help.ShowAll {
		t.Fatal("expected help overlay")
	}
	if out := viewContent(m); !strings.Contains(out, "kantime help") {
		t.Fatalf("expected help overlay content\n%s", out)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.help.ShowAll {
		t.Fatal("expected esc to close help")
	}
}

// TestBoardKey verifies terminal keys map onto navigator keys.
func TestBoardKey(t *testing.T) {
	cases := []struct {
		msg  tea.KeyPressMsg
		want board.Key
	}{
		{tea.KeyPressMsg{Code: tea.KeyUp}, board.KeyUp},
		{tea.KeyPressMsg{Code: tea.KeyDown}, board.KeyDown},
		{tea.KeyPressMsg{Code: tea.KeyLeft}, board.KeyLeft},
		{tea.KeyPressMsg{Code: tea.KeyRight}, board.KeyRight},
		{tea.KeyPressMsg{Code: tea.KeyTab}, board.KeyTab},
		{tea.KeyPressMsg{Code: tea.KeyTab, Mod: tea.ModShift}, board.KeyShiftTab},
		{tea.KeyPressMsg{Code: tea.KeyEnter}, board.KeyEnter},
		{tea.KeyPressMsg{Code: tea.KeyEscape}, board.KeyEscape},
		{keyRune(' '), board.KeySpace},
		{keyRune('1'), board.Key1},
		{keyRune('3'), board.Key3},
		{keyRune('z'), board.KeyNone},
	}
	for _, tc := range cases {
		if got := boardKey(tc.msg); got != tc.want {
			t.Fatalf("boardKey(%q) = %v, want %v", tc.msg.String(), got, tc.want)
		}
	}
}

// TestFormatters verifies duration and estimate rendering.
func TestFormatters(t *testing.T) {
	if got := formatMinutes(45); got != "45m" {
		t.Fatalf("formatMinutes(45) = %q", got)
	}
	if got := formatMinutes(125); got != "2h 05m" {
		t.Fatalf("formatMinutes(125) = %q", got)
	}
	if got := formatElapsed(90 * time.Second); got != "01:30" {
		t.Fatalf("formatElapsed(90s) = %q", got)
	}
	if got := formatElapsed(time.Hour + 2*time.Minute + 3*time.Second); got != "1:02:03" {
		t.Fatalf("formatElapsed(1h2m3s) = %q", got)
	}
	if got := formatHours(2.5); got != "2.5h" {
		t.Fatalf("formatHours(2.5) = %q", got)
	}
	if got := formatHours(3); got != "3h" {
		t.Fatalf("formatHours(3) = %q", got)
	}
}
