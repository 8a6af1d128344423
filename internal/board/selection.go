package board

import (
	"slices"

	"github.com/evanschultz/kantime/internal/domain"
)

// Selection is the bulk-selection set. Membership changes are idempotent.
// Whether selection mode is on is tracked by the board's InteractionMode.
type Selection struct {
	ids map[string]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{ids: map[string]struct{}{}}
}

// Has reports whether id is selected.
func (s *Selection) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	return len(s.ids)
}

// Toggle flips membership of id.
func (s *Selection) Toggle(id string) {
	if s.Has(id) {
		delete(s.ids, id)
		return
	}
	s.Select(id)
}

// Select adds id.
func (s *Selection) Select(id string) {
	if id == "" {
		return
	}
	if s.ids == nil {
		s.ids = map[string]struct{}{}
	}
	s.ids[id] = struct{}{}
}

// Unselect removes id.
func (s *Selection) Unselect(id string) {
	delete(s.ids, id)
}

// SelectAll replaces the set with every visible task id.
func (s *Selection) SelectAll(visible []domain.Task) {
	ids := make(map[string]struct{}, len(visible))
	for _, task := range visible {
		ids[task.ID] = struct{}{}
	}
	s.ids = ids
}

// UnselectAll empties the set.
func (s *Selection) UnselectAll() {
	s.ids = map[string]struct{}{}
}

// AllSelected reports whether every visible task is selected. An empty list is never all-selected.
func (s *Selection) AllSelected(visible []domain.Task) bool {
	if len(visible) == 0 {
		return false
	}
	for _, task := range visible {
		if !s.Has(task.ID) {
			return false
		}
	}
	return true
}

// ToggleSelectAll clears the set when every visible task is selected and selects all visible otherwise.
func (s *Selection) ToggleSelectAll(visible []domain.Task) {
	if s.AllSelected(visible) {
		s.UnselectAll()
		return
	}
	s.SelectAll(visible)
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Retain drops ids that are not in live.
func (s *Selection) Retain(live map[string]struct{}) {
	for id := range s.ids {
		if _, ok := live[id]; !ok {
			delete(s.ids, id)
		}
	}
}
