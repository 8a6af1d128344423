// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/evanschultz/kantime/internal/domain"
)

// DefaultActivityLimit caps activity reads when the caller gives no limit.
const DefaultActivityLimit = 50

// MaxActivityLimit is the largest accepted activity limit.
const MaxActivityLimit = 500

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrUnavailable reports a surface whose backing service is not configured.
var ErrUnavailable = errors.New("surface unavailable")

// ListTasksRequest selects one project's tasks with the board's filter and sort.
type ListTasksRequest struct {
	Project   string
	Search    string
	Priority  string
	Status    string
	SortBy    string
	SortOrder string
}

// CreateTaskRequest describes one new task appended to the To Do column.
type CreateTaskRequest struct {
	Project        string   `json:"project,omitempty"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

// ListActivityRequest selects recent change events for one project.
type ListActivityRequest struct {
	Project string
	Limit   int
}

// Project is the transport shape of one project.
type Project struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task is the transport shape of one task.
type Task struct {
	ID               string     `json:"id"`
	ProjectID        string     `json:"project_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	EstimatedHours   *float64   `json:"estimated_hours,omitempty"`
	TimeSpentMinutes int        `json:"time_spent_minutes"`
	Position         int        `json:"position"`
	TimerRunning     bool       `json:"timer_running"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// TaskFilter echoes the normalized filter a task list was built with.
type TaskFilter struct {
	Search    string `json:"search,omitempty"`
	Priority  string `json:"priority"`
	Status    string `json:"status"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

// TaskList is one filtered, sorted task listing.
type TaskList struct {
	Project Project    `json:"project"`
	Filter  TaskFilter `json:"filter"`
	Total   int        `json:"total"`
	Tasks   []Task     `json:"tasks"`
}

// Timer is the transport shape of one persisted running timer.
type Timer struct {
	TaskID          string    `json:"task_id"`
	ProjectID       string    `json:"project_id"`
	TaskTitle       string    `json:"task_title"`
	StartTime       time.Time `json:"start_time"`
	ElapsedSeconds  int64     `json:"elapsed_seconds"`
	ReportedMinutes int       `json:"reported_minutes"`
}

// ActivityEvent is the transport shape of one change-log entry.
type ActivityEvent struct {
	ID         int64             `json:"id"`
	TaskID     string            `json:"task_id"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id"`
	ActorType  string            `json:"actor_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// BoardReader serves the read-only board surface.
type BoardReader interface {
	ListProjects(context.Context) ([]Project, error)
	ListTasks(context.Context, ListTasksRequest) (TaskList, error)
	ListTimers(ctx context.Context, project string) ([]Timer, error)
	ListActivity(context.Context, ListActivityRequest) ([]ActivityEvent, error)
}

// TaskCreator is the optional write surface for new tasks.
type TaskCreator interface {
	CreateTask(context.Context, CreateTaskRequest) (Task, error)
}

// TimerLister reads persisted running timers.
type TimerLister interface {
	ListActiveTimers() ([]domain.ActiveTimer, error)
}
