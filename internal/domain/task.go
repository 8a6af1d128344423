package domain

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits enforced before a task reaches persistence.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
)

// Status is the lifecycle column a task belongs to.
type Status string

// Status values, in board column order.
const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every status in column order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

// ParseStatus normalizes user input into a Status.
func ParseStatus(raw string) (Status, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_") {
	case "todo", "to_do":
		return StatusTodo, nil
	case "in_progress", "progress", "doing":
		return StatusInProgress, nil
	case "completed", "complete", "done":
		return StatusCompleted, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Index returns the column index of s, or -1.
func (s Status) Index() int {
	return slices.Index(Statuses, s)
}

// Label returns the column heading for s.
func (s Status) Label() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

// Priority ranks task urgency.
type Priority string

// Priority values.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// ParsePriority normalizes user input into a Priority.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(raw)))
	if !slices.Contains(Priorities, p) {
		return "", ErrInvalidPriority
	}
	return p, nil
}

// Rank maps a priority to its ordinal (low=1, medium=2, high=3); unknown is 0.
func (p Priority) Rank() int {
	return slices.Index(Priorities, p) + 1
}

// Task is one unit of work on the board.
type Task struct {
	ID               string
	ProjectID        string
	Title            string
	Description      string
	Status           Status
	Priority         Priority
	EstimatedHours   *float64
	TimeSpentMinutes int
	Position         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// TaskInput holds the values a new task is created from.
type TaskInput struct {
	ID             string
	ProjectID      string
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	EstimatedHours *float64
	Position       int
}

// NewTask validates in and returns a task stamped with now.
func NewTask(in TaskInput, now time.Time) (Task, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ID == "" || in.ProjectID == "" {
		return Task{}, ErrInvalidID
	}
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if err := ValidateTaskInput(&in); err != nil {
		return Task{}, err
	}
	if in.Position < 0 {
		return Task{}, ErrInvalidPosition
	}

	ts := now.UTC()
	task := Task{
		ID:             in.ID,
		ProjectID:      in.ProjectID,
		Title:          in.Title,
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		EstimatedHours: in.EstimatedHours,
		Position:       in.Position,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	switch task.Status {
	case StatusInProgress:
		task.StartedAt = &ts
	case StatusCompleted:
		task.CompletedAt = &ts
	}
	return task, nil
}

// ValidateTaskInput trims in and checks the user-editable fields.
func ValidateTaskInput(in *TaskInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	if err := validateEstimate(in.EstimatedHours); err != nil {
		return err
	}
	if in.Status != "" && !in.Status.Valid() {
		return invalidField("status", ErrInvalidStatus)
	}
	if in.Priority != "" && !slices.Contains(Priorities, in.Priority) {
		return invalidField("priority", ErrInvalidPriority)
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return invalidField("title", ErrInvalidTitle)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return invalidField("title", ErrTitleTooLong)
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return invalidField("description", ErrDescriptionTooLong)
	}
	return nil
}

func validateEstimate(hours *float64) error {
	if hours == nil {
		return nil
	}
	if math.IsNaN(*hours) || math.IsInf(*hours, 0) || *hours <= 0 {
		return invalidField("estimated_hours", ErrInvalidEstimate)
	}
	return nil
}

// TaskPatch is a partial task update. Nil fields are left unchanged.
type TaskPatch struct {
	Title            *string
	Description      *string
	Status           *Status
	Priority         *Priority
	EstimatedHours   *float64
	Position         *int
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ClearCompletedAt bool
	ResetTimeSpent   bool
}

// IsEmpty reports whether p changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p == TaskPatch{}
}

// ApplyPatch validates p against t and applies it.
func (t *Task) ApplyPatch(p TaskPatch, now time.Time) error {
	next := *t
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if err := validateTitle(title); err != nil {
			return err
		}
		next.Title = title
	}
	if p.Description != nil {
		description := strings.TrimSpace(*p.Description)
		if err := validateDescription(description); err != nil {
			return err
		}
		next.Description = description
	}
	if p.EstimatedHours != nil {
		if err := validateEstimate(p.EstimatedHours); err != nil {
			return err
		}
		hours := *p.EstimatedHours
		next.EstimatedHours = &hours
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return invalidField("status", ErrInvalidStatus)
		}
		next.Status = *p.Status
	}
	if p.Priority != nil {
		if !slices.Contains(Priorities, *p.Priority) {
			return invalidField("priority", ErrInvalidPriority)
		}
		next.Priority = *p.Priority
	}
	if p.Position != nil {
		if *p.Position < 0 {
			return ErrInvalidPosition
		}
		next.Position = *p.Position
	}
	if p.StartedAt != nil {
		ts := p.StartedAt.UTC()
		next.StartedAt = &ts
	}
	if p.ClearCompletedAt {
		next.CompletedAt = nil
	} else if p.CompletedAt != nil {
		ts := p.CompletedAt.UTC()
		next.CompletedAt = &ts
	}
	if p.ResetTimeSpent {
		next.TimeSpentMinutes = 0
	}
	next.UpdatedAt = now.UTC()
	*t = next
	return nil
}

// AddTimeSpent accrues minutes of tracked work.
func (t *Task) AddTimeSpent(minutes int, now time.Time) error {
	if minutes < 0 {
		return ErrInvalidTimeSpent
	}
	t.TimeSpentMinutes += minutes
	t.UpdatedAt = now.UTC()
	return nil
}

// CompactPositions renumbers each status column of tasks to 0..n-1 in
// place. Tasks keep their relative order by position, then creation time.
// movedID, when set, is taken out of its column and reinserted at the index
// its Position names, clamped to the column. It returns the ids whose
// position changed.
func CompactPositions(tasks []Task, movedID string) []string {
	columns := make(map[Status][]int, len(Statuses))
	moved := -1
	for i, task := range tasks {
		if movedID != "" && task.ID == movedID {
			moved = i
			continue
		}
		columns[task.Status] = append(columns[task.Status], i)
	}
	for status, idx := range columns {
		slices.SortStableFunc(idx, func(i, j int) int {
			a, b := tasks[i], tasks[j]
			if c := cmp.Compare(a.Position, b.Position); c != 0 {
				return c
			}
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		columns[status] = idx
	}
	if moved >= 0 {
		status := tasks[moved].Status
		idx := columns[status]
		at := min(max(tasks[moved].Position, 0), len(idx))
		columns[status] = slices.Insert(idx, at, moved)
	}

	var changed []string
	for _, idx := range columns {
		for pos, i := range idx {
			if tasks[i].Position != pos {
				tasks[i].Position = pos
				changed = append(changed, tasks[i].ID)
			}
		}
	}
	slices.Sort(changed)
	return changed
}
