package board

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kantime/internal/domain"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// FilterAll disables the priority or status filter.
const FilterAll = "all"

// SortKey selects the field tasks are ordered by.
type SortKey string

// SortKey values.
const (
	SortCreated   SortKey = "created"
	SortUpdated   SortKey = "updated"
	SortPriority  SortKey = "priority"
	SortTimeSpent SortKey = "timeSpent"
	SortTitle     SortKey = "title"
)

// SortKeys lists every sort key in cycle order.
var SortKeys = []SortKey{SortCreated, SortUpdated, SortPriority, SortTimeSpent, SortTitle}

// SortOrder is the sort direction.
type SortOrder string

// SortOrder values.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortKey accepts the canonical keys case-insensitively.
func ParseSortKey(raw string) (SortKey, error) {
	raw = strings.TrimSpace(raw)
	for _, key := range SortKeys {
		if strings.EqualFold(raw, string(key)) {
			return key, nil
		}
	}
	if strings.EqualFold(raw, "time_spent") {
		return SortTimeSpent, nil
	}
	return "", fmt.Errorf("unknown sort key %q", raw)
}

// ParseSortOrder accepts asc or desc.
func ParseSortOrder(raw string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case SortAsc:
		return SortAsc, nil
	case SortDesc:
		return SortDesc, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", raw)
	}
}

// FilterState is the full description of which tasks are shown and in what order.
type FilterState struct {
	Search      string
	Priority    string
	Status      string
	SortBy      SortKey
	SortOrder   SortOrder
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// DefaultFilter shows everything, newest first.
func DefaultFilter() FilterState {
	return FilterState{
		Priority:  FilterAll,
		Status:    FilterAll,
		SortBy:    SortCreated,
		SortOrder: SortDesc,
	}
}

// Apply filters and sorts tasks. The input slice is never modified.
func Apply(tasks []domain.Task, f FilterState) []domain.Task {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if !matches(task, f, search) {
			continue
		}
		out = append(out, task)
	}

	compare := comparatorFor(f.SortBy)
	desc := f.SortOrder != SortAsc
	slices.SortStableFunc(out, func(a, b domain.Task) int {
		c := safeCompare(compare, a, b)
		if desc {
			return -c
		}
		return c
	})
	return out
}

func matches(task domain.Task, f FilterState, search string) bool {
	if search != "" &&
		!strings.Contains(strings.ToLower(task.Title), search) &&
		!strings.Contains(strings.ToLower(task.Description), search) {
		return false
	}
	if p := strings.TrimSpace(f.Priority); p != "" && p != FilterAll && string(task.Priority) != p {
		return false
	}
	if s := strings.TrimSpace(f.Status); s != "" && s != FilterAll && string(task.Status) != s {
		return false
	}
	// Missing or unparseable creation dates are kept rather than hidden.
	if !task.CreatedAt.IsZero() {
		if !f.CreatedFrom.IsZero() && task.CreatedAt.Before(f.CreatedFrom) {
			return false
		}
		if !f.CreatedTo.IsZero() && task.CreatedAt.After(f.CreatedTo) {
			return false
		}
	}
	return true
}

type comparator func(a, b domain.Task) int

func comparatorFor(key SortKey) comparator {
	switch key {
	case SortUpdated:
		return func(a, b domain.Task) int { return compareInt64(millis(a.UpdatedAt), millis(b.UpdatedAt)) }
	case SortPriority:
		return func(a, b domain.Task) int { return compareInt64(int64(a.Priority.Rank()), int64(b.Priority.Rank())) }
	case SortTimeSpent:
		return func(a, b domain.Task) int { return compareInt64(int64(a.TimeSpentMinutes), int64(b.TimeSpentMinutes)) }
	case SortTitle:
		col := collate.New(language.English)
		return func(a, b domain.Task) int { return col.CompareString(a.Title, b.Title) }
	default:
		return func(a, b domain.Task) int { return compareInt64(millis(a.CreatedAt), millis(b.CreatedAt)) }
	}
}

// safeCompare treats a panicking comparison as equal so one bad record cannot break the sort.
func safeCompare(compare comparator, a, b domain.Task) (out int) {
	defer func() {
		if recover() != nil {
			out = 0
		}
	}()
	return compare(a, b)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// GroupByStatus splits a filtered task list into the three board columns.
// Each column is ordered by position; tasks sharing a position keep the
// order of the input.
func GroupByStatus(tasks []domain.Task) [3][]domain.Task {
	var cols [3][]domain.Task
	for _, task := range tasks {
		idx := task.Status.Index()
		if idx < 0 {
			continue
		}
		cols[idx] = append(cols[idx], task)
	}
	for i := range cols {
		slices.SortStableFunc(cols[i], func(a, b domain.Task) int {
			return cmp.Compare(a.Position, b.Position)
		})
	}
	return cols
}

// FilterCache memoizes Apply for callers that re-render with unchanged inputs.
type FilterCache struct {
	tasks  []domain.Task
	filter FilterState
	out    []domain.Task
	valid  bool
}

// Apply returns the cached result when tasks is the same slice and f is unchanged.
func (c *FilterCache) Apply(tasks []domain.Task, f FilterState) []domain.Task {
	if c.valid && sameSlice(c.tasks, tasks) && c.filter == f {
		return c.out
	}
	c.tasks = tasks
	c.filter = f
	c.out = Apply(tasks, f)
	c.valid = true
	return c.out
}

// Reset drops the cached result.
func (c *FilterCache) Reset() {
	*c = FilterCache{}
}

func sameSlice(a, b []domain.Task) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
