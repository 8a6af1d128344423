package tui

import (
	"testing"

	"charm.land/bubbles/v2/key"
)

// TestKeyMapHelpCoversBindings verifies every binding appears in the full help.
func TestKeyMapHelpCoversBindings(t *testing.T) {
	km := newKeyMap()
	seen := map[string]bool{}
	for _, group := range km.FullHelp() {
		for _, b := range group {
			seen[b.Help().Key] = true
		}
	}
	for _, b := range []key.Binding{
		km.quit, km.reload, km.toggleHelp, km.navigate, km.nextColumn, km.openTask,
		km.moveTask, km.leave, km.selectionMode, km.toggleRow, km.selectAll,
		km.bulkPriority, km.bulkDelete, km.addTask, km.search, km.sortKey,
		km.sortOrder, km.priority, km.status, km.clearFilter, km.copyTitle, km.activityLog,
	} {
		if !seen[b.Help().Key] {
			t.Fatalf("binding %q missing from full help", b.Help().Key)
		}
	}
	if len(km.ShortHelp()) == 0 {
		t.Fatal("expected short help bindings")
	}
}

// TestKeyMapBindingsDoNotCollide verifies board commands never shadow navigation keys.
func TestKeyMapBindingsDoNotCollide(t *testing.T) {
	km := newKeyMap()
	nav := map[string]bool{}
	for _, b := range []key.Binding{km.navigate, km.nextColumn, km.openTask, km.moveTask, km.leave, km.toggleRow} {
		for _, k := range b.Keys() {
			nav[k] = true
		}
	}
	owner := map[string]string{}
	for _, b := range []key.Binding{
		km.quit, km.reload, km.toggleHelp, km.selectionMode, km.selectAll, km.bulkPriority,
		km.bulkDelete, km.addTask, km.search, km.sortKey, km.sortOrder, km.priority,
		km.status, km.clearFilter, km.copyTitle, km.activityLog,
	} {
		for _, k := range b.Keys() {
			if nav[k] {
				t.Fatalf("key %q is bound to %q and to navigation", k, b.Help().Desc)
			}
			if prev, ok := owner[k]; ok {
				t.Fatalf("key %q bound to both %q and %q", k, prev, b.Help().Desc)
			}
			owner[k] = b.Help().Desc
		}
	}
}
