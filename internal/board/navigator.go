package board

import "github.com/evanschultz/kantime/internal/domain"

// Key is a navigation key understood by the Navigator.
type Key int

// Key values.
const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyTab
	KeyShiftTab
	KeyEnter
	KeySpace
	KeyEscape
	Key1
	Key2
	Key3
)

// KeyEvent is one key press. InTextInput marks presses aimed at a text field.
type KeyEvent struct {
	Key         Key
	InTextInput bool
}

// IntentKind identifies what a key press asks the board to do.
type IntentKind int

// IntentKind values.
const (
	IntentNone IntentKind = iota
	IntentSelect
	IntentMove
)

// Intent is the navigator's output for one key press.
type Intent struct {
	Kind   IntentKind
	TaskID string
	Target domain.Status
}

// FocusState is the keyboard cursor.
type FocusState struct {
	TaskID string
	Column domain.Status
}

// Navigator is the keyboard focus state machine over three ordered columns of task ids.
type Navigator struct {
	focus   FocusState
	columns [3][]string
}

// NewNavigator returns a navigator focused on the todo column.
func NewNavigator() *Navigator {
	return &Navigator{focus: FocusState{Column: domain.StatusTodo}}
}

// Focus returns the current cursor.
func (n *Navigator) Focus() FocusState {
	return n.focus
}

// Sync replaces the column contents. A focused task that is gone loses focus;
// one that moved columns keeps it and the column follows.
func (n *Navigator) Sync(columns [3][]string) {
	n.columns = columns
	if n.focus.TaskID == "" {
		return
	}
	for i, ids := range columns {
		for _, id := range ids {
			if id == n.focus.TaskID {
				n.focus.Column = domain.Statuses[i]
				return
			}
		}
	}
	n.focus.TaskID = ""
}

// Reset clears task focus and returns to the todo column.
func (n *Navigator) Reset() {
	n.focus = FocusState{Column: domain.StatusTodo}
}

// Handle processes one key. active is whether keyboard mode is on before the
// press; the returned bool is whether it is on after.
func (n *Navigator) Handle(ev KeyEvent, active bool) (Intent, bool) {
	if ev.InTextInput {
		return Intent{}, active
	}
	if ev.Key == KeyEscape {
		return Intent{}, false
	}
	if !active {
		switch ev.Key {
		case KeyUp, KeyDown, KeyLeft, KeyRight, KeyTab, KeyShiftTab:
			n.activate()
			return Intent{}, true
		default:
			return Intent{}, false
		}
	}

	switch ev.Key {
	case KeyUp:
		n.moveWithin(-1)
	case KeyDown:
		n.moveWithin(1)
	case KeyLeft, KeyShiftTab:
		n.moveColumn(-1)
	case KeyRight, KeyTab:
		n.moveColumn(1)
	case KeyEnter, KeySpace:
		if n.focus.TaskID != "" {
			return Intent{Kind: IntentSelect, TaskID: n.focus.TaskID}, true
		}
	case Key1, Key2, Key3:
		if n.focus.TaskID != "" {
			target := domain.Statuses[int(ev.Key-Key1)]
			return Intent{Kind: IntentMove, TaskID: n.focus.TaskID, Target: target}, true
		}
	}
	return Intent{}, true
}

func (n *Navigator) activate() {
	if n.focus.Column.Index() < 0 {
		n.focus.Column = domain.StatusTodo
	}
	ids := n.columns[n.focus.Column.Index()]
	if n.focus.TaskID != "" && n.indexOf(n.focus.TaskID) >= 0 {
		return
	}
	n.focus.TaskID = ""
	if len(ids) > 0 {
		n.focus.TaskID = ids[0]
	}
}

func (n *Navigator) moveWithin(delta int) {
	ids := n.columns[n.focus.Column.Index()]
	if len(ids) == 0 {
		n.focus.TaskID = ""
		return
	}
	idx := n.indexOf(n.focus.TaskID)
	if idx < 0 {
		n.focus.TaskID = ids[0]
		return
	}
	n.focus.TaskID = ids[clamp(idx+delta, 0, len(ids)-1)]
}

func (n *Navigator) moveColumn(delta int) {
	col := n.focus.Column.Index()
	idx := max(n.indexOf(n.focus.TaskID), 0)
	next := clamp(col+delta, 0, len(domain.Statuses)-1)
	n.focus.Column = domain.Statuses[next]
	ids := n.columns[next]
	if len(ids) == 0 {
		n.focus.TaskID = ""
		return
	}
	n.focus.TaskID = ids[clamp(idx, 0, len(ids)-1)]
}

// indexOf returns id's index within the focused column or -1.
func (n *Navigator) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, candidate := range n.columns[n.focus.Column.Index()] {
		if candidate == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
