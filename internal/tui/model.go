package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/atotto/clipboard"
	"github.com/evanschultz/kantime/internal/board"
	"github.com/evanschultz/kantime/internal/domain"
)

// Service is the read side the model needs; writes go through the board's Mutator.
type Service interface {
	ListTasks(context.Context, string) ([]domain.Task, error)
	ListProjectChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}

// inputMode is the modal layer on top of the board.
type inputMode int

// modeNone and related constants define the modal layers.
const (
	modeNone inputMode = iota
	modeAddTask
	modeSearch
	modeTaskInfo
	modeActivityLog
	modeConfirmQuit
	modeConfirmDelete
)

// task-form field indexes.
const (
	taskFieldTitle = iota
	taskFieldDescription
	taskFieldPriority
	taskFieldEstimate
)

// defaults for timing and list sizes.
const (
	defaultRefreshInterval = 15 * time.Second
	defaultActivityLimit   = 50
)

// priorityFilterCycle is the order the priority filter steps through.
var priorityFilterCycle = []string{board.FilterAll, string(domain.PriorityHigh), string(domain.PriorityMedium), string(domain.PriorityLow)}

// statusFilterCycle is the order the status filter steps through.
var statusFilterCycle = []string{board.FilterAll, string(domain.StatusTodo), string(domain.StatusInProgress), string(domain.StatusCompleted)}

// bulkPriorityCycle is the order bulk priority assignment steps through.
var bulkPriorityCycle = []domain.Priority{domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow}

// pointer is the row cursor used outside keyboard mode (selection mode and mouse).
type pointer struct {
	col int
	row int
}

// dragState tracks a mouse press that may become a drag.
type dragState struct {
	taskID string
	source board.Location
}

// Model is the bubbletea host for one project's board.
type Model struct {
	svc     Service
	board   *board.Board
	project domain.Project

	ready   bool
	mounted bool
	width   int
	height  int
	err     error
	status  string

	help help.Model
	keys keyMap

	mode          inputMode
	pointer       pointer
	drag          *dragState
	defaultFilter board.FilterState

	searchInput  textinput.Model
	searchBefore string

	formInputs []textinput.Model
	formFocus  int
	formStatus domain.Status
	formErr    string

	taskInfoID    string
	activity      []domain.ChangeEvent
	activityLimit int

	bulkPriorityIdx int

	confirmQuitPending bool
	refreshInterval    time.Duration
	refreshing         bool
	copyText           func(string) error
	markdown           *markdownRenderer
}

// loadedMsg reports a finished task reload; the board already holds the tasks.
type loadedMsg struct {
	count    int
	restored []domain.ActiveTimer
	mounted  bool
	err      error
}

// actionMsg reports the outcome of a single board mutation.
type actionMsg struct {
	status string
	err    error
	reload bool
}

// taskCreatedMsg reports the outcome of the new-task form.
type taskCreatedMsg struct {
	task domain.Task
	err  error
}

// bulkMsg reports the outcome of a bulk operation.
type bulkMsg struct {
	label  string
	result board.BatchResult
	err    error
}

// activityLoadedMsg carries recent change events for the overlay.
type activityLoadedMsg struct {
	events []domain.ChangeEvent
	err    error
}

// refreshMsg fires while timers run so elapsed time and accrued minutes stay current.
type refreshMsg time.Time

// NewModel constructs a model over b for project.
func NewModel(svc Service, b *board.Board, project domain.Project, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:                svc,
		board:              b,
		project:            project,
		status:             "loading...",
		help:               h,
		keys:               newKeyMap(),
		defaultFilter:      b.Filter(),
		searchInput:        newModalInput("/ ", "title or description", "", 120),
		activityLimit:      defaultActivityLimit,
		confirmQuitPending: true,
		refreshInterval:    defaultRefreshInterval,
		copyText:           clipboard.WriteAll,
		markdown:           &markdownRenderer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init loads tasks and restores persisted timers.
func (m Model) Init() tea.Cmd {
	return m.loadTasksCmd(true)
}

// Update routes messages to the board and the modal layers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		if msg.mounted {
			m.mounted = true
			if n := len(msg.restored); n > 0 {
				m.status = fmt.Sprintf("resumed %d timer(s)", n)
			}
		}
		if m.status == "" || m.status == "loading..." {
			m.status = "ready"
		}
		m.clampPointer()
		return m, m.scheduleRefresh()

	case refreshMsg:
		m.refreshing = false
		return m, m.loadTasksCmd(false)

	case actionMsg:
		if msg.err != nil {
			m.status = describeActionErr(msg.err)
		} else if msg.status != "" {
			m.status = msg.status
		}
		if msg.reload {
			return m, m.loadTasksCmd(false)
		}
		return m, nil

	case taskCreatedMsg:
		if msg.err != nil {
			if m.mode == modeAddTask {
				m.formErr = describeActionErr(msg.err)
			} else {
				m.status = describeActionErr(msg.err)
			}
			return m, nil
		}
		if m.mode == modeAddTask {
			m.closeForm()
		}
		m.status = "created " + truncate(msg.task.Title, 40)
		return m, m.loadTasksCmd(false)

	case bulkMsg:
		m.status = describeBatch(msg.label, msg.result, msg.err)
		return m, m.loadTasksCmd(false)

	case activityLoadedMsg:
		if msg.err != nil {
			m.status = "activity unavailable: " + msg.err.Error()
			if m.mode == modeActivityLog {
				m.mode = modeNone
			}
			return m, nil
		}
		m.activity = msg.events
		return m, nil

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleInputModeKey(msg)
		}
		return m.handleBoardKey(msg)

	case tea.MouseMotionMsg:
		m.board.MouseMoved()
		return m, nil

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	case tea.MouseReleaseMsg:
		return m.handleMouseRelease(msg)

	default:
		return m, nil
	}
}

// handleBoardKey handles keys when no modal layer is open.
func (m Model) handleBoardKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m.requestQuit()
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	if m.help.ShowAll {
		if msg.Code == tea.KeyEscape || msg.String() == "esc" {
			m.help.ShowAll = false
		}
		return m, nil
	}
	if nav := boardKey(msg); nav != board.KeyNone {
		return m.handleNavKey(nav)
	}

	selecting := m.board.Mode() == board.ModeSelecting
	switch {
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadTasksCmd(false)
	case key.Matches(msg, m.keys.selectionMode):
		m.board.ToggleSelectionMode()
		if m.board.Mode() == board.ModeSelecting {
			m.status = "selection mode"
		} else {
			m.status = "selection cleared"
		}
		m.clampPointer()
		return m, nil
	case selecting && key.Matches(msg, m.keys.selectAll):
		m.board.ToggleSelectAll()
		m.status = fmt.Sprintf("%d selected", len(m.board.SelectedIDs()))
		return m, nil
	case selecting && key.Matches(msg, m.keys.bulkPriority):
		if len(m.board.SelectedIDs()) == 0 {
			m.status = "nothing selected"
			return m, nil
		}
		priority := bulkPriorityCycle[m.bulkPriorityIdx%len(bulkPriorityCycle)]
		m.bulkPriorityIdx++
		m.status = "setting priority " + string(priority) + "..."
		return m, m.bulkCmd("priority "+string(priority), func(ctx context.Context) (board.BatchResult, error) {
			return m.board.BulkUpdatePriority(ctx, priority)
		})
	case selecting && key.Matches(msg, m.keys.bulkDelete):
		n := len(m.board.SelectedIDs())
		if n == 0 {
			m.status = "nothing selected"
			return m, nil
		}
		m.mode = modeConfirmDelete
		m.status = fmt.Sprintf("delete %d task(s)? y/n", n)
		return m, nil
	case key.Matches(msg, m.keys.addTask):
		return m, m.startTaskForm()
	case key.Matches(msg, m.keys.search):
		return m, m.startSearch()
	case key.Matches(msg, m.keys.sortKey):
		f := m.board.Filter()
		f.SortBy = nextSortKey(f.SortBy)
		m.board.SetFilter(f)
		m.status = "sort: " + string(f.SortBy)
		return m, nil
	case key.Matches(msg, m.keys.sortOrder):
		f := m.board.Filter()
		if f.SortOrder == board.SortAsc {
			f.SortOrder = board.SortDesc
		} else {
			f.SortOrder = board.SortAsc
		}
		m.board.SetFilter(f)
		m.status = "order: " + string(f.SortOrder)
		return m, nil
	case key.Matches(msg, m.keys.priority):
		f := m.board.Filter()
		f.Priority = nextInCycle(priorityFilterCycle, f.Priority)
		m.board.SetFilter(f)
		m.clampPointer()
		m.status = "priority: " + f.Priority
		return m, nil
	case key.Matches(msg, m.keys.status):
		f := m.board.Filter()
		f.Status = nextInCycle(statusFilterCycle, f.Status)
		m.board.SetFilter(f)
		m.clampPointer()
		m.status = "status: " + f.Status
		return m, nil
	case key.Matches(msg, m.keys.clearFilter):
		m.board.SetFilter(m.defaultFilter)
		m.clampPointer()
		m.status = "filters cleared"
		return m, nil
	case key.Matches(msg, m.keys.copyTitle):
		task, ok := m.currentTask()
		if !ok {
			m.status = "no task to copy"
			return m, nil
		}
		if err := m.copyText(task.Title); err != nil {
			m.status = "copy failed: " + err.Error()
			return m, nil
		}
		m.status = "copied " + truncate(task.Title, 40)
		return m, nil
	case key.Matches(msg, m.keys.activityLog):
		m.mode = modeActivityLog
		m.activity = nil
		return m, m.loadActivityCmd()
	}
	return m, nil
}

// handleNavKey routes navigation keys to the board, or to the pointer in selection mode.
func (m Model) handleNavKey(nav board.Key) (tea.Model, tea.Cmd) {
	if m.board.Mode() == board.ModeSelecting {
		switch nav {
		case board.KeyUp:
			m.movePointer(0, -1)
		case board.KeyDown:
			m.movePointer(0, 1)
		case board.KeyLeft, board.KeyShiftTab:
			m.movePointer(-1, 0)
		case board.KeyRight, board.KeyTab:
			m.movePointer(1, 0)
		case board.KeySpace:
			if task, ok := m.pointerTask(); ok {
				m.board.ToggleSelected(task.ID)
				m.status = fmt.Sprintf("%d selected", len(m.board.SelectedIDs()))
			}
		case board.KeyEnter:
			if task, ok := m.pointerTask(); ok {
				m.openTaskInfo(task.ID)
			}
		case board.KeyEscape:
			m.board.ExitSelectionMode()
			m.status = "selection cleared"
		case board.Key1, board.Key2, board.Key3:
			status := domain.Statuses[nav-board.Key1]
			if len(m.board.SelectedIDs()) == 0 {
				m.status = "nothing selected"
				return m, nil
			}
			m.status = "moving selection to " + status.Label() + "..."
			return m, m.bulkCmd("move to "+status.Label(), func(ctx context.Context) (board.BatchResult, error) {
				return m.board.BulkUpdateStatus(ctx, status)
			})
		}
		return m, nil
	}

	if nav == board.KeyEscape {
		m.board.DismissNotice()
		m.board.Timers().DismissRestored()
	}
	if isMoveKey(nav) && m.board.Mode() == board.ModeKeyboard {
		return m, m.keyMoveCmd(nav)
	}
	intent, err := m.board.HandleKey(context.Background(), board.KeyEvent{Key: nav})
	if err != nil {
		m.status = describeActionErr(err)
		return m, nil
	}
	if intent.Kind == board.IntentSelect {
		m.openTaskInfo(intent.TaskID)
	}
	return m, nil
}

// handleInputModeKey handles keys while a modal layer is open.
func (m Model) handleInputModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	isEsc := msg.Code == tea.KeyEscape || msg.String() == "esc"
	switch m.mode {
	case modeConfirmQuit:
		if msg.String() == "y" || msg.String() == "Y" {
			return m, tea.Quit
		}
		m.mode = modeNone
		m.status = "quit cancelled"
		return m, nil

	case modeConfirmDelete:
		if msg.String() == "y" || msg.String() == "Y" {
			m.mode = modeNone
			m.status = "deleting..."
			return m, m.bulkCmd("delete", m.board.BulkDelete)
		}
		m.mode = modeNone
		m.status = "delete cancelled"
		return m, nil

	case modeTaskInfo:
		switch {
		case isEsc || msg.Code == tea.KeyEnter || msg.String() == "q":
			m.mode = modeNone
			m.taskInfoID = ""
		case key.Matches(msg, m.keys.copyTitle):
			if task, ok := m.board.Task(m.taskInfoID); ok {
				if err := m.copyText(task.Title); err != nil {
					m.status = "copy failed: " + err.Error()
				} else {
					m.status = "copied " + truncate(task.Title, 40)
				}
			}
		}
		return m, nil

	case modeActivityLog:
		if isEsc || msg.String() == "q" || key.Matches(msg, m.keys.activityLog) {
			m.mode = modeNone
		}
		return m, nil

	case modeSearch:
		switch {
		case isEsc:
			f := m.board.Filter()
			f.Search = m.searchBefore
			m.board.SetFilter(f)
			m.searchInput.Blur()
			m.mode = modeNone
			m.status = "search cancelled"
			return m, nil
		case msg.Code == tea.KeyEnter:
			m.searchInput.Blur()
			m.mode = modeNone
			m.status = fmt.Sprintf("%d visible", len(m.board.Visible()))
			return m, nil
		}
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		f := m.board.Filter()
		f.Search = m.searchInput.Value()
		m.board.SetFilter(f)
		m.clampPointer()
		return m, cmd

	case modeAddTask:
		switch {
		case isEsc:
			m.closeForm()
			m.status = "new task cancelled"
			return m, nil
		case msg.Code == tea.KeyEnter:
			return m.submitTaskForm()
		case msg.String() == "tab" || msg.String() == "down":
			return m, m.focusFormField(m.formFocus + 1)
		case msg.String() == "shift+tab" || msg.String() == "up":
			return m, m.focusFormField(m.formFocus - 1)
		}
		var cmd tea.Cmd
		m.formInputs[m.formFocus], cmd = m.formInputs[m.formFocus].Update(msg)
		m.formErr = ""
		return m, cmd
	}
	return m, nil
}

// requestQuit quits, asking first while a write is pending.
func (m Model) requestQuit() (tea.Model, tea.Cmd) {
	if m.confirmQuitPending && m.board.ConfirmLeave() {
		m.mode = modeConfirmQuit
		m.status = "a change is still saving; quit anyway? y/n"
		return m, nil
	}
	return m, tea.Quit
}

// startTaskForm opens the new-task form for the current column.
func (m *Model) startTaskForm() tea.Cmd {
	m.mode = modeAddTask
	m.formErr = ""
	m.formStatus = m.currentColumn()
	m.formInputs = []textinput.Model{
		newModalInput("title: ", "required, up to 100 characters", "", 100),
		newModalInput("description: ", "optional markdown, up to 500 characters", "", 500),
		newModalInput("priority: ", "low | medium | high", string(domain.PriorityMedium), 16),
		newModalInput("estimate: ", "hours, optional", "", 16),
	}
	m.status = "new task in " + m.formStatus.Label()
	return m.focusFormField(taskFieldTitle)
}

// focusFormField focuses one form input, wrapping around.
func (m *Model) focusFormField(idx int) tea.Cmd {
	if len(m.formInputs) == 0 {
		return nil
	}
	idx = (idx + len(m.formInputs)) % len(m.formInputs)
	m.formFocus = idx
	for i := range m.formInputs {
		m.formInputs[i].Blur()
	}
	return m.formInputs[idx].Focus()
}

// closeForm discards the form state.
func (m *Model) closeForm() {
	m.mode = modeNone
	m.formInputs = nil
	m.formFocus = 0
	m.formErr = ""
}

// submitTaskForm validates the priority field locally and dispatches the draft.
func (m Model) submitTaskForm() (tea.Model, tea.Cmd) {
	priority := domain.PriorityMedium
	if raw := strings.TrimSpace(m.formInputs[taskFieldPriority].Value()); raw != "" {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			m.formErr = (&domain.ValidationError{Field: "priority", Err: err}).Error()
			return m, m.focusFormField(taskFieldPriority)
		}
		priority = p
	}
	draft := board.TaskDraft{
		Title:          m.formInputs[taskFieldTitle].Value(),
		Description:    m.formInputs[taskFieldDescription].Value(),
		Status:         m.formStatus,
		Priority:       priority,
		EstimatedHours: m.formInputs[taskFieldEstimate].Value(),
	}
	b := m.board
	return m, func() tea.Msg {
		task, err := b.CreateTask(context.Background(), draft)
		return taskCreatedMsg{task: task, err: err}
	}
}

// startSearch opens the search input over the current query.
func (m *Model) startSearch() tea.Cmd {
	m.mode = modeSearch
	m.searchBefore = m.board.Filter().Search
	m.searchInput.SetValue(m.searchBefore)
	m.searchInput.CursorEnd()
	m.status = "search"
	return m.searchInput.Focus()
}

// openTaskInfo shows the detail overlay for taskID.
func (m *Model) openTaskInfo(taskID string) {
	if _, ok := m.board.Task(taskID); !ok {
		return
	}
	m.mode = modeTaskInfo
	m.taskInfoID = taskID
}

// handleMouseClick starts a drag, or toggles the row in selection mode.
func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeNone || m.help.ShowAll || msg.Button != tea.MouseLeft {
		return m, nil
	}
	loc, col, ok := m.hitTest(msg.X, msg.Y)
	if !ok {
		return m, nil
	}
	rows := m.board.Columns()[col].Rows
	if loc.Index >= len(rows) {
		return m, nil
	}
	task := rows[loc.Index].Task
	m.pointer = pointer{col: col, row: loc.Index}
	if m.board.Mode() == board.ModeSelecting {
		m.board.ToggleSelected(task.ID)
		return m, nil
	}
	m.drag = &dragState{taskID: task.ID, source: loc}
	return m, nil
}

// handleMouseRelease finishes a drag at the release position.
func (m Model) handleMouseRelease(msg tea.MouseReleaseMsg) (tea.Model, tea.Cmd) {
	if m.drag == nil {
		return m, nil
	}
	drag := *m.drag
	m.drag = nil
	ev := board.DragEvent{TaskID: drag.taskID, Source: drag.source}
	if loc, col, ok := m.hitTest(msg.X, msg.Y); ok {
		n := len(m.board.Columns()[col].Rows)
		if loc.Column == drag.source.Column {
			n--
		}
		loc.Index = clamp(loc.Index, 0, max(n, 0))
		ev.Destination = &loc
		m.pointer = pointer{col: col, row: loc.Index}
	}
	if ev.Destination == nil || *ev.Destination == ev.Source {
		return m, nil
	}
	b := m.board
	return m, func() tea.Msg {
		if err := b.DragEnd(context.Background(), ev); err != nil {
			return actionMsg{err: err, reload: true}
		}
		return actionMsg{status: "moved to " + ev.Destination.Column.Label(), reload: true}
	}
}

// keyMoveCmd runs a keyboard move intent; the collaborator call blocks.
func (m Model) keyMoveCmd(nav board.Key) tea.Cmd {
	b := m.board
	return func() tea.Msg {
		intent, err := b.HandleKey(context.Background(), board.KeyEvent{Key: nav})
		if err != nil {
			return actionMsg{err: err, reload: true}
		}
		if intent.Kind != board.IntentMove {
			return actionMsg{}
		}
		return actionMsg{status: "moved to " + intent.Target.Label(), reload: true}
	}
}

// bulkCmd runs one bulk operation off the update loop.
func (m Model) bulkCmd(label string, run func(context.Context) (board.BatchResult, error)) tea.Cmd {
	return func() tea.Msg {
		result, err := run(context.Background())
		return bulkMsg{label: label, result: result, err: err}
	}
}

// loadTasksCmd reloads tasks into the board; the first load also restores timers.
func (m Model) loadTasksCmd(mount bool) tea.Cmd {
	svc, b, projectID := m.svc, m.board, m.project.ID
	return func() tea.Msg {
		ctx := context.Background()
		tasks, err := svc.ListTasks(ctx, projectID)
		if err != nil {
			return loadedMsg{err: err}
		}
		b.SetTasks(ctx, tasks)
		msg := loadedMsg{count: len(tasks), mounted: mount}
		if mount {
			msg.restored = b.Mount()
		}
		return msg
	}
}

// loadActivityCmd fetches recent change events for the project.
func (m Model) loadActivityCmd() tea.Cmd {
	svc, projectID, limit := m.svc, m.project.ID, m.activityLimit
	return func() tea.Msg {
		events, err := svc.ListProjectChangeEvents(context.Background(), projectID, limit)
		return activityLoadedMsg{events: events, err: err}
	}
}

// scheduleRefresh arms one refresh tick while timers are running.
func (m *Model) scheduleRefresh() tea.Cmd {
	if m.refreshInterval <= 0 || m.refreshing || len(m.board.Timers().RunningIDs()) == 0 {
		return nil
	}
	m.refreshing = true
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// currentColumn is the column keyboard focus or the pointer is in.
func (m Model) currentColumn() domain.Status {
	if m.board.Mode() == board.ModeKeyboard {
		return m.board.Focus().Column
	}
	return domain.Statuses[clamp(m.pointer.col, 0, len(domain.Statuses)-1)]
}

// currentTask is the keyboard-focused task, or the pointer task outside keyboard mode.
func (m Model) currentTask() (domain.Task, bool) {
	if m.board.Mode() == board.ModeKeyboard {
		id := m.board.Focus().TaskID
		if id == "" {
			return domain.Task{}, false
		}
		return m.board.Task(id)
	}
	return m.pointerTask()
}

// pointerTask returns the task under the pointer.
func (m Model) pointerTask() (domain.Task, bool) {
	cols := m.board.Columns()
	col := clamp(m.pointer.col, 0, len(cols)-1)
	rows := cols[col].Rows
	if m.pointer.row < 0 || m.pointer.row >= len(rows) {
		return domain.Task{}, false
	}
	return rows[m.pointer.row].Task, true
}

// movePointer moves the pointer, clamping like the keyboard navigator.
func (m *Model) movePointer(dCol, dRow int) {
	m.pointer.col = clamp(m.pointer.col+dCol, 0, len(domain.Statuses)-1)
	m.pointer.row += dRow
	m.clampPointer()
}

// clampPointer keeps the pointer inside its column.
func (m *Model) clampPointer() {
	cols := m.board.Columns()
	m.pointer.col = clamp(m.pointer.col, 0, len(cols)-1)
	m.pointer.row = clamp(m.pointer.row, 0, max(len(cols[m.pointer.col].Rows)-1, 0))
}

// boardKey maps a key press onto the navigator's key set.
func boardKey(msg tea.KeyPressMsg) board.Key {
	switch msg.String() {
	case "up":
		return board.KeyUp
	case "down":
		return board.KeyDown
	case "left":
		return board.KeyLeft
	case "right":
		return board.KeyRight
	case "tab":
		return board.KeyTab
	case "shift+tab":
		return board.KeyShiftTab
	case "enter":
		return board.KeyEnter
	case "space", " ":
		return board.KeySpace
	case "esc":
		return board.KeyEscape
	case "1":
		return board.Key1
	case "2":
		return board.Key2
	case "3":
		return board.Key3
	}
	return board.KeyNone
}

func isMoveKey(k board.Key) bool {
	return k == board.Key1 || k == board.Key2 || k == board.Key3
}

// nextSortKey steps through board.SortKeys.
func nextSortKey(current board.SortKey) board.SortKey {
	for i, k := range board.SortKeys {
		if k == current {
			return board.SortKeys[(i+1)%len(board.SortKeys)]
		}
	}
	return board.SortKeys[0]
}

// nextInCycle returns the value after current, starting over at the first.
func nextInCycle(cycle []string, current string) string {
	for i, v := range cycle {
		if strings.EqualFold(v, current) {
			return cycle[(i+1)%len(cycle)]
		}
	}
	return cycle[0]
}

// describeActionErr turns board and validation errors into status text.
func describeActionErr(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, board.ErrBoardBusy):
		return "busy: another change is still saving"
	case errors.As(err, &verr):
		return verr.Error()
	default:
		return "error: " + err.Error()
	}
}

// describeBatch summarizes a bulk result for the status line.
func describeBatch(label string, result board.BatchResult, err error) string {
	if errors.Is(err, board.ErrBoardBusy) {
		return describeActionErr(err)
	}
	parts := []string{fmt.Sprintf("%s: %d done", label, len(result.Succeeded))}
	if n := len(result.Skipped); n > 0 {
		parts = append(parts, fmt.Sprintf("%d unchanged", n))
	}
	if n := len(result.Failed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}
	return strings.Join(parts, ", ")
}

// newModalInput constructs a text input for forms and search.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	if value != "" {
		in.SetValue(value)
	}
	return in
}
