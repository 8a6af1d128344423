package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/evanschultz/kantime/internal/domain"
	"golang.org/x/sync/errgroup"
)

// maxBatchConcurrency bounds concurrent collaborator calls in one bulk operation.
const maxBatchConcurrency = 8

// Config configures a Board.
type Config struct {
	ProjectID string
	Mutator   Mutator
	Filter    FilterState
	Clock     Clock
	Logger    *log.Logger
	// Timers configures the timer engine. ProjectID, Clock, Logger and
	// Reporter default to the board's own values.
	Timers TimerConfig
}

// Notice is a dismissible failure message for the host to show.
type Notice struct {
	Message string
	Err     error
	At      time.Time
}

// BatchResult reports the per-task outcome of a bulk operation.
type BatchResult struct {
	Succeeded []string
	Skipped   []string
	Failed    map[string]error
}

// Err joins every per-task failure in id order, or returns nil.
func (r BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, id := range slices.Sorted(maps.Keys(r.Failed)) {
		errs = append(errs, fmt.Errorf("task %s: %w", id, r.Failed[id]))
	}
	return errors.Join(errs...)
}

// TaskDraft is unvalidated form input for a new task.
type TaskDraft struct {
	Title          string
	Description    string
	Status         domain.Status
	Priority       domain.Priority
	EstimatedHours string
}

// Board composes the filter, selection, navigator, transition and timer
// engines behind one mutation surface. It works on a snapshot of tasks
// supplied by its parent and never owns the source of truth.
type Board struct {
	mu        sync.Mutex
	projectID string
	mutator   Mutator
	clock     Clock
	logger    *log.Logger
	timers    *TimerEngine

	tasks     []domain.Task
	filter    FilterState
	cache     FilterCache
	selection *Selection
	nav       *Navigator
	mode      InteractionMode
	updating  bool
	notice    *Notice
}

// New constructs a board for one project.
func New(cfg Config) *Board {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.Filter == (FilterState{}) {
		cfg.Filter = DefaultFilter()
	}
	timerCfg := cfg.Timers
	if timerCfg.ProjectID == "" {
		timerCfg.ProjectID = cfg.ProjectID
	}
	if timerCfg.Clock == nil {
		timerCfg.Clock = cfg.Clock
	}
	if timerCfg.Logger == nil {
		timerCfg.Logger = cfg.Logger
	}
	if timerCfg.Reporter == nil && cfg.Mutator != nil {
		timerCfg.Reporter = cfg.Mutator
	}
	return &Board{
		projectID: cfg.ProjectID,
		mutator:   cfg.Mutator,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "board"),
		timers:    NewTimerEngine(timerCfg),
		filter:    cfg.Filter,
		selection: NewSelection(),
		nav:       NewNavigator(),
	}
}

// Timers returns the board's timer engine.
func (b *Board) Timers() *TimerEngine {
	return b.timers
}

// Mount restores timers from the durable store against the current tasks.
func (b *Board) Mount() []domain.ActiveTimer {
	return b.timers.Restore(b.Tasks())
}

// Close cancels every timer tick.
func (b *Board) Close() {
	b.timers.Close()
}

// SetTasks replaces the task snapshot. Focus and selection are re-derived
// against the new list and timers follow status changes.
func (b *Board) SetTasks(ctx context.Context, tasks []domain.Task) {
	b.mu.Lock()
	b.tasks = slices.Clone(tasks)
	b.resyncLocked()
	snapshot := slices.Clone(b.tasks)
	b.mu.Unlock()
	b.timers.SetTasks(ctx, snapshot)
}

// Tasks returns a copy of the snapshot.
func (b *Board) Tasks() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.tasks)
}

// Task returns the snapshot entry for id.
func (b *Board) Task(id string) (domain.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.indexLocked(id)
	if idx < 0 {
		return domain.Task{}, false
	}
	return b.tasks[idx], true
}

// Filter returns the active filter.
func (b *Board) Filter() FilterState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// SetFilter replaces the active filter.
func (b *Board) SetFilter(f FilterState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = f
	b.resyncLocked()
}

// Visible returns the filtered and sorted tasks.
func (b *Board) Visible() []domain.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.visibleLocked())
}

// Columns builds the render model for the three status columns.
func (b *Board) Columns() []Column {
	b.mu.Lock()
	grouped := GroupByStatus(b.visibleLocked())
	focus := b.nav.Focus()
	mode := b.mode
	disabled := b.updating
	selected := maps.Clone(b.selection.ids)
	b.mu.Unlock()

	cols := make([]Column, len(domain.Statuses))
	for i, status := range domain.Statuses {
		rows := make([]Row, 0, len(grouped[i]))
		for _, task := range grouped[i] {
			_, isSelected := selected[task.ID]
			rows = append(rows, Row{
				Task:          task,
				Selected:      isSelected,
				SelectionMode: mode == ModeSelecting,
				Focused:       mode == ModeKeyboard && focus.TaskID == task.ID,
				TimerRunning:  b.timers.Running(task.ID),
				Elapsed:       b.timers.Elapsed(task.ID),
				Disabled:      disabled,
			})
		}
		cols[i] = Column{Status: status, Rows: rows}
	}
	return cols
}

// Mode returns the current interaction mode.
func (b *Board) Mode() InteractionMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Focus returns the keyboard cursor.
func (b *Board) Focus() FocusState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nav.Focus()
}

// Updating reports whether a mutation is in flight.
func (b *Board) Updating() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.updating
}

// ConfirmLeave reports whether leaving now would abandon a pending write.
func (b *Board) ConfirmLeave() bool {
	return b.Updating()
}

// Notice returns the current failure notice, if any.
func (b *Board) Notice() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.notice == nil {
		return Notice{}, false
	}
	return *b.notice, true
}

// DismissNotice clears the failure notice.
func (b *Board) DismissNotice() {
	b.mu.Lock()
	b.notice = nil
	b.mu.Unlock()
}

// DragEnd applies a finished drag. Cancelled drags and drops onto the
// starting slot do nothing.
func (b *Board) DragEnd(ctx context.Context, ev DragEvent) error {
	if ev.isNoop() {
		return nil
	}
	b.mu.Lock()
	position := b.dropPositionLocked(ev.TaskID, *ev.Destination)
	b.mu.Unlock()
	return b.move(ctx, ev.TaskID, ev.Destination.Column, position)
}

// dropPositionLocked maps an index in the rendered destination column to
// the task's final index in the full column. The task lands in front of the
// row it is dropped on, or right after the last row. Tasks hidden by the
// filter keep their place.
func (b *Board) dropPositionLocked(taskID string, dest Location) int {
	col := dest.Column.Index()
	if col < 0 || dest.Index < 0 {
		return dest.Index
	}
	without := func(t domain.Task) bool { return t.ID == taskID }
	full := slices.DeleteFunc(GroupByStatus(b.tasks)[col], without)
	rows := slices.DeleteFunc(GroupByStatus(b.visibleLocked())[col], without)
	indexOf := func(id string) int {
		return slices.IndexFunc(full, func(t domain.Task) bool { return t.ID == id })
	}
	switch {
	case dest.Index < len(rows):
		return indexOf(rows[dest.Index].ID)
	case len(rows) > 0:
		return indexOf(rows[len(rows)-1].ID) + 1
	default:
		return len(full)
	}
}

// MoveTask appends taskID to the end of the target column.
func (b *Board) MoveTask(ctx context.Context, taskID string, target domain.Status) error {
	b.mu.Lock()
	position := appendPosition(b.tasks, taskID, target)
	b.mu.Unlock()
	return b.move(ctx, taskID, target, position)
}

func (b *Board) move(ctx context.Context, taskID string, target domain.Status, position int) error {
	if !target.Valid() {
		return domain.ErrInvalidStatus
	}
	if position < 0 {
		return domain.ErrInvalidPosition
	}
	b.mu.Lock()
	if b.updating {
		b.mu.Unlock()
		return ErrBoardBusy
	}
	idx := b.indexLocked(taskID)
	if idx < 0 {
		b.mu.Unlock()
		return ErrTaskNotFound
	}
	now := b.clock()
	tr := PlanTransition(b.tasks[idx], target, position, now)
	if tr.Noop {
		b.mu.Unlock()
		return nil
	}
	b.updating = true
	b.mu.Unlock()

	err := b.mutator.UpdateTask(context.WithoutCancel(ctx), taskID, tr.Patch)

	b.mu.Lock()
	b.updating = false
	if err != nil {
		b.setNoticeLocked("Could not move task", err)
		b.mu.Unlock()
		b.logger.Error("move task failed", "task_id", taskID, "to", target, "err", err)
		return fmt.Errorf("move task %s: %w", taskID, err)
	}
	task, _ := b.applyLocked(taskID, tr.Patch, now)
	b.compactLocked(taskID)
	b.resyncLocked()
	b.mu.Unlock()

	b.logger.Debug("task moved", "task_id", taskID, "from", tr.From, "to", tr.To, "position", position, "timer", tr.Timer)
	b.signalTimer(ctx, tr.Timer, task)
	return nil
}

// HandleKey feeds one key press to the keyboard navigator. Keys are ignored
// in selection mode. A move intent is carried out before returning; a select
// intent is returned for the host to interpret.
func (b *Board) HandleKey(ctx context.Context, ev KeyEvent) (Intent, error) {
	b.mu.Lock()
	if b.mode == ModeSelecting {
		b.mu.Unlock()
		return Intent{}, nil
	}
	intent, active := b.nav.Handle(ev, b.mode == ModeKeyboard)
	if active {
		b.mode = ModeKeyboard
	} else {
		b.mode = ModeNormal
	}
	b.mu.Unlock()

	if intent.Kind == IntentMove {
		if err := b.MoveTask(ctx, intent.TaskID, intent.Target); err != nil {
			return intent, err
		}
	}
	return intent, nil
}

// MouseMoved leaves keyboard mode.
func (b *Board) MouseMoved() {
	b.mu.Lock()
	if b.mode == ModeKeyboard {
		b.mode = ModeNormal
	}
	b.mu.Unlock()
}

// EnterSelectionMode switches to selection mode, leaving keyboard mode.
func (b *Board) EnterSelectionMode() {
	b.mu.Lock()
	b.mode = ModeSelecting
	b.mu.Unlock()
}

// ExitSelectionMode returns to normal mode and clears the selection.
func (b *Board) ExitSelectionMode() {
	b.mu.Lock()
	if b.mode == ModeSelecting {
		b.mode = ModeNormal
	}
	b.selection.UnselectAll()
	b.mu.Unlock()
}

// ToggleSelectionMode flips selection mode.
func (b *Board) ToggleSelectionMode() {
	if b.Mode() == ModeSelecting {
		b.ExitSelectionMode()
		return
	}
	b.EnterSelectionMode()
}

// ToggleSelected flips membership of id. Outside selection mode it does nothing.
func (b *Board) ToggleSelected(id string) {
	b.withSelection(func(s *Selection, _ []domain.Task) { s.Toggle(id) })
}

// Select adds id to the selection.
func (b *Board) Select(id string) {
	b.withSelection(func(s *Selection, _ []domain.Task) { s.Select(id) })
}

// Unselect removes id from the selection.
func (b *Board) Unselect(id string) {
	b.withSelection(func(s *Selection, _ []domain.Task) { s.Unselect(id) })
}

// SelectAll selects every visible task.
func (b *Board) SelectAll() {
	b.withSelection(func(s *Selection, visible []domain.Task) { s.SelectAll(visible) })
}

// UnselectAll clears the selection.
func (b *Board) UnselectAll() {
	b.withSelection(func(s *Selection, _ []domain.Task) { s.UnselectAll() })
}

// ToggleSelectAll selects every visible task, or clears when all are selected.
func (b *Board) ToggleSelectAll() {
	b.withSelection(func(s *Selection, visible []domain.Task) { s.ToggleSelectAll(visible) })
}

// SelectedIDs returns the selection in id order.
func (b *Board) SelectedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection.IDs()
}

func (b *Board) withSelection(fn func(*Selection, []domain.Task)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode != ModeSelecting {
		return
	}
	fn(b.selection, b.visibleLocked())
}

// batchOp is one task's share of a bulk operation.
type batchOp struct {
	taskID string
	call   func(context.Context) error
	tr     Transition
	delete bool
}

// BulkUpdateStatus moves every selected task to status, keeping positions.
func (b *Board) BulkUpdateStatus(ctx context.Context, status domain.Status) (BatchResult, error) {
	if !status.Valid() {
		return BatchResult{}, domain.ErrInvalidStatus
	}
	now := b.clock()
	return b.runBatch(ctx, "update status", func(task domain.Task) (batchOp, bool) {
		tr := PlanTransition(task, status, task.Position, now)
		if tr.Noop {
			return batchOp{}, false
		}
		return batchOp{
			taskID: task.ID,
			tr:     tr,
			call: func(ctx context.Context) error {
				return b.mutator.UpdateTask(ctx, task.ID, tr.Patch)
			},
		}, true
	})
}

// BulkUpdatePriority sets priority on every selected task.
func (b *Board) BulkUpdatePriority(ctx context.Context, priority domain.Priority) (BatchResult, error) {
	if priority.Rank() == 0 {
		return BatchResult{}, domain.ErrInvalidPriority
	}
	return b.runBatch(ctx, "update priority", func(task domain.Task) (batchOp, bool) {
		if task.Priority == priority {
			return batchOp{}, false
		}
		p := priority
		patch := domain.TaskPatch{Priority: &p}
		return batchOp{
			taskID: task.ID,
			tr:     Transition{TaskID: task.ID, From: task.Status, To: task.Status, Patch: patch},
			call: func(ctx context.Context) error {
				return b.mutator.UpdateTask(ctx, task.ID, patch)
			},
		}, true
	})
}

// BulkDelete deletes every selected task.
func (b *Board) BulkDelete(ctx context.Context) (BatchResult, error) {
	return b.runBatch(ctx, "delete", func(task domain.Task) (batchOp, bool) {
		return batchOp{
			taskID: task.ID,
			delete: true,
			call: func(ctx context.Context) error {
				return b.mutator.DeleteTask(ctx, task.ID)
			},
		}, true
	})
}

// runBatch dispatches one call per selected task concurrently and waits for
// all of them. Successful calls stay applied even when others fail; the
// selection is cleared once every call has settled.
func (b *Board) runBatch(ctx context.Context, label string, plan func(domain.Task) (batchOp, bool)) (BatchResult, error) {
	b.mu.Lock()
	if b.updating {
		b.mu.Unlock()
		return BatchResult{}, ErrBoardBusy
	}
	if b.mode != ModeSelecting || b.selection.Len() == 0 {
		b.mu.Unlock()
		return BatchResult{}, nil
	}
	var (
		ops    []batchOp
		result = BatchResult{Failed: map[string]error{}}
	)
	for _, id := range b.selection.IDs() {
		idx := b.indexLocked(id)
		if idx < 0 {
			continue
		}
		op, ok := plan(b.tasks[idx])
		if !ok {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		ops = append(ops, op)
	}
	b.updating = true
	b.mu.Unlock()

	errs := make([]error, len(ops))
	callCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(maxBatchConcurrency)
	for i, op := range ops {
		g.Go(func() error {
			errs[i] = op.call(callCtx)
			return nil
		})
	}
	_ = g.Wait()

	now := b.clock()
	var signals []Transition
	var signalTasks []domain.Task
	b.mu.Lock()
	b.updating = false
	for i, op := range ops {
		if errs[i] != nil {
			result.Failed[op.taskID] = errs[i]
			continue
		}
		result.Succeeded = append(result.Succeeded, op.taskID)
		if op.delete {
			b.removeLocked(op.taskID)
			continue
		}
		task, ok := b.applyLocked(op.taskID, op.tr.Patch, now)
		if ok && op.tr.Timer != TimerNone {
			signals = append(signals, op.tr)
			signalTasks = append(signalTasks, task)
		}
	}
	b.compactLocked("")
	b.selection.UnselectAll()
	err := result.Err()
	if err != nil {
		b.setNoticeLocked(fmt.Sprintf("Bulk %s: %d of %d failed", label, len(result.Failed), len(ops)), err)
	}
	b.resyncLocked()
	snapshot := slices.Clone(b.tasks)
	b.mu.Unlock()

	for i, tr := range signals {
		b.signalTimer(ctx, tr.Timer, signalTasks[i])
	}
	b.timers.SetTasks(ctx, snapshot)
	if err != nil {
		b.logger.Error("bulk operation partially failed", "op", label, "failed", len(result.Failed), "succeeded", len(result.Succeeded), "err", err)
		return result, fmt.Errorf("bulk %s: %w", label, err)
	}
	b.logger.Debug("bulk operation done", "op", label, "succeeded", len(result.Succeeded))
	return result, nil
}

// CreateTask validates draft and asks the collaborator to create it at the
// end of its column. Invalid drafts never reach the collaborator.
func (b *Board) CreateTask(ctx context.Context, draft TaskDraft) (domain.Task, error) {
	in, err := draft.input(b.projectID)
	if err != nil {
		return domain.Task{}, err
	}

	b.mu.Lock()
	if b.updating {
		b.mu.Unlock()
		return domain.Task{}, ErrBoardBusy
	}
	in.Position = appendPosition(b.tasks, "", in.Status)
	b.updating = true
	b.mu.Unlock()

	task, err := b.mutator.CreateTask(context.WithoutCancel(ctx), in)

	b.mu.Lock()
	b.updating = false
	if err != nil {
		b.setNoticeLocked("Could not create task", err)
		b.mu.Unlock()
		b.logger.Error("create task failed", "title", in.Title, "err", err)
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	b.tasks = append(b.tasks, task)
	b.resyncLocked()
	b.mu.Unlock()

	if task.Status == domain.StatusInProgress {
		b.timers.Start(task)
	}
	return task, nil
}

func (d TaskDraft) input(projectID string) (domain.TaskInput, error) {
	in := domain.TaskInput{
		ProjectID:   projectID,
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		Priority:    d.Priority,
	}
	if in.Status == "" {
		in.Status = domain.StatusTodo
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	if raw := strings.TrimSpace(d.EstimatedHours); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.TaskInput{}, &domain.ValidationError{Field: "estimated_hours", Err: domain.ErrInvalidEstimate}
		}
		in.EstimatedHours = &hours
	}
	if err := domain.ValidateTaskInput(&in); err != nil {
		return domain.TaskInput{}, err
	}
	return in, nil
}

func (b *Board) signalTimer(ctx context.Context, signal TimerSignal, task domain.Task) {
	switch signal {
	case TimerStart:
		b.timers.Start(task)
	case TimerStop:
		b.timers.Stop(ctx, task.ID)
	}
}

func (b *Board) visibleLocked() []domain.Task {
	return b.cache.Apply(b.tasks, b.filter)
}

// resyncLocked drops focus and selection that point at tasks no longer visible.
func (b *Board) resyncLocked() {
	visible := b.visibleLocked()
	grouped := GroupByStatus(visible)
	var ids [3][]string
	for i, tasks := range grouped {
		ids[i] = make([]string, 0, len(tasks))
		for _, task := range tasks {
			ids[i] = append(ids[i], task.ID)
		}
	}
	b.nav.Sync(ids)

	live := make(map[string]struct{}, len(visible))
	for _, task := range visible {
		live[task.ID] = struct{}{}
	}
	b.selection.Retain(live)
}

func (b *Board) indexLocked(id string) int {
	return slices.IndexFunc(b.tasks, func(t domain.Task) bool { return t.ID == id })
}

// applyLocked patches the snapshot copy of id. The slice is replaced so
// callers holding the previous snapshot are not affected.
func (b *Board) applyLocked(id string, patch domain.TaskPatch, now time.Time) (domain.Task, bool) {
	idx := b.indexLocked(id)
	if idx < 0 {
		return domain.Task{}, false
	}
	tasks := slices.Clone(b.tasks)
	if err := tasks[idx].ApplyPatch(patch, now); err != nil {
		b.logger.Warn("apply local patch failed", "task_id", id, "err", err)
		return b.tasks[idx], true
	}
	b.tasks = tasks
	return tasks[idx], true
}

// compactLocked renumbers the snapshot's columns the way storage does after
// a move or delete.
func (b *Board) compactLocked(movedID string) {
	tasks := slices.Clone(b.tasks)
	if len(domain.CompactPositions(tasks, movedID)) > 0 {
		b.tasks = tasks
	}
}

func (b *Board) removeLocked(id string) {
	idx := b.indexLocked(id)
	if idx < 0 {
		return
	}
	b.tasks = slices.Delete(slices.Clone(b.tasks), idx, idx+1)
}

func (b *Board) setNoticeLocked(message string, err error) {
	b.notice = &Notice{Message: message, Err: err, At: b.clock()}
}
