package board

import (
	"testing"

	"github.com/evanschultz/kantime/internal/domain"
)

func press(t *testing.T, n *Navigator, active bool, keys ...Key) (Intent, bool) {
	t.Helper()
	var intent Intent
	for _, key := range keys {
		intent, active = n.Handle(KeyEvent{Key: key}, active)
	}
	return intent, active
}

func TestNavigatorActivationAndClamping(t *testing.T) {
	n := NewNavigator()
	n.Sync([3][]string{{"a", "b", "c"}, {"d"}, {}})

	if _, active := press(t, n, false, KeyEnter); active {
		t.Fatal("Enter must not activate keyboard mode")
	}
	_, active := press(t, n, false, KeyDown)
	if !active {
		t.Fatal("expected first arrow press to activate")
	}
	if got := n.Focus(); got.TaskID != "a" || got.Column != domain.StatusTodo {
		t.Fatalf("activation focus = %#v", got)
	}

	_, active = press(t, n, active, KeyDown, KeyDown, KeyDown, KeyDown, KeyDown)
	if got := n.Focus().TaskID; got != "c" {
		t.Fatalf("ArrowDown should clamp at last task, got %q", got)
	}
	press(t, n, active, KeyUp, KeyUp, KeyUp, KeyUp)
	if got := n.Focus().TaskID; got != "a" {
		t.Fatalf("ArrowUp should clamp at first task, got %q", got)
	}
}

func TestNavigatorColumnMoves(t *testing.T) {
	n := NewNavigator()
	n.Sync([3][]string{{"a", "b", "c"}, {"d"}, {}})
	_, active := press(t, n, false, KeyTab)
	press(t, n, active, KeyDown, KeyDown)

	press(t, n, active, KeyRight)
	if got := n.Focus(); got.Column != domain.StatusInProgress || got.TaskID != "d" {
		t.Fatalf("expected index clamped into in_progress, got %#v", got)
	}
	press(t, n, active, KeyTab)
	if got := n.Focus(); got.Column != domain.StatusCompleted || got.TaskID != "" {
		t.Fatalf("empty column should clear task focus, got %#v", got)
	}
	press(t, n, active, KeyTab)
	if got := n.Focus().Column; got != domain.StatusCompleted {
		t.Fatalf("Tab should clamp at the last column, got %q", got)
	}
	press(t, n, active, KeyShiftTab, KeyLeft, KeyLeft)
	if got := n.Focus(); got.Column != domain.StatusTodo || got.TaskID != "a" {
		t.Fatalf("expected todo column first task, got %#v", got)
	}
}

func TestNavigatorIntents(t *testing.T) {
	n := NewNavigator()
	n.Sync([3][]string{{"a"}, {}, {}})
	_, active := press(t, n, false, KeyDown)

	intent, _ := press(t, n, active, KeySpace)
	if intent.Kind != IntentSelect || intent.TaskID != "a" {
		t.Fatalf("Space intent = %#v", intent)
	}
	intent, _ = press(t, n, active, Key3)
	if intent.Kind != IntentMove || intent.Target != domain.StatusCompleted || intent.TaskID != "a" {
		t.Fatalf("3 intent = %#v", intent)
	}

	intent, stillActive := n.Handle(KeyEvent{Key: KeyDown, InTextInput: true}, active)
	if intent.Kind != IntentNone || !stillActive {
		t.Fatalf("text input keys must be ignored, got %#v active=%v", intent, stillActive)
	}
	if _, active = press(t, n, active, KeyEscape); active {
		t.Fatal("Escape should deactivate keyboard mode")
	}
}

func TestNavigatorSyncInvalidatesMissingFocus(t *testing.T) {
	n := NewNavigator()
	n.Sync([3][]string{{"a", "b"}, {}, {}})
	press(t, n, false, KeyDown)
	press(t, n, true, KeyDown)

	n.Sync([3][]string{{"a"}, {"b"}, {}})
	if got := n.Focus(); got.TaskID != "b" || got.Column != domain.StatusInProgress {
		t.Fatalf("focus should follow a moved task, got %#v", got)
	}
	n.Sync([3][]string{{"a"}, {}, {}})
	if got := n.Focus(); got.TaskID != "" {
		t.Fatalf("focus should clear when task disappears, got %#v", got)
	}
	intent, _ := press(t, n, true, KeyEnter)
	if intent.Kind != IntentNone {
		t.Fatalf("Enter without focus should do nothing, got %#v", intent)
	}
}
