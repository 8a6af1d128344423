package common

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kantime/internal/app"
	"github.com/evanschultz/kantime/internal/board"
	"github.com/evanschultz/kantime/internal/domain"
)

// ServeActorID attributes tasks created through the server surfaces.
const ServeActorID = "kantime-serve"

// AppServiceAdapter maps transport contracts onto app.Service and the timer store.
type AppServiceAdapter struct {
	service *app.Service
	timers  TimerLister
	clock   func() time.Time
}

// NewAppServiceAdapter builds one common adapter. timers may be nil, in
// which case no timer is ever reported as running.
func NewAppServiceAdapter(service *app.Service, timers TimerLister, clock func() time.Time) *AppServiceAdapter {
	if clock == nil {
		clock = time.Now
	}
	return &AppServiceAdapter{service: service, timers: timers, clock: clock}
}

// ListProjects lists every project.
func (a *AppServiceAdapter) ListProjects(ctx context.Context) ([]Project, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	projects, err := a.service.ListProjects(ctx)
	if err != nil {
		return nil, mapAppError("list projects", err)
	}
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, mapProject(p))
	}
	return out, nil
}

// ListTasks lists one project's tasks through the board's filter and sort.
func (a *AppServiceAdapter) ListTasks(ctx context.Context, in ListTasksRequest) (TaskList, error) {
	if a == nil || a.service == nil {
		return TaskList{}, fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	filter, err := normalizeTaskFilter(in)
	if err != nil {
		return TaskList{}, err
	}
	project, err := a.service.ResolveProject(ctx, in.Project)
	if err != nil {
		return TaskList{}, mapAppError("resolve project", err)
	}
	tasks, err := a.service.ListTasks(ctx, project.ID)
	if err != nil {
		return TaskList{}, mapAppError("list tasks", err)
	}
	running, err := a.runningTaskIDs()
	if err != nil {
		return TaskList{}, err
	}

	visible := board.Apply(tasks, filter)
	out := TaskList{
		Project: mapProject(project),
		Filter: TaskFilter{
			Search:    filter.Search,
			Priority:  filter.Priority,
			Status:    filter.Status,
			SortBy:    string(filter.SortBy),
			SortOrder: string(filter.SortOrder),
		},
		Total: len(tasks),
		Tasks: make([]Task, 0, len(visible)),
	}
	for _, t := range visible {
		_, isRunning := running[t.ID]
		out.Tasks = append(out.Tasks, mapTask(t, isRunning))
	}
	return out, nil
}

// ListTimers lists persisted running timers, optionally for one project.
func (a *AppServiceAdapter) ListTimers(ctx context.Context, project string) ([]Timer, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	if a.timers == nil {
		return []Timer{}, nil
	}
	projectID := ""
	if strings.TrimSpace(project) != "" {
		p, err := a.service.ResolveProject(ctx, project)
		if err != nil {
			return nil, mapAppError("resolve project", err)
		}
		projectID = p.ID
	}
	stored, err := a.timers.ListActiveTimers()
	if err != nil {
		return nil, fmt.Errorf("list active timers: %w", err)
	}

	now := a.clock()
	out := make([]Timer, 0, len(stored))
	for _, timer := range stored {
		if projectID != "" && timer.ProjectID != projectID {
			continue
		}
		elapsed := max(now.Sub(timer.StartTime), 0)
		out = append(out, Timer{
			TaskID:          timer.TaskID,
			ProjectID:       timer.ProjectID,
			TaskTitle:       timer.TaskTitle,
			StartTime:       timer.StartTime.UTC(),
			ElapsedSeconds:  int64(elapsed / time.Second),
			ReportedMinutes: timer.ReportedMinutes,
		})
	}
	slices.SortFunc(out, func(x, y Timer) int { return x.StartTime.Compare(y.StartTime) })
	return out, nil
}

// ListActivity lists recent change events for one project, newest first.
func (a *AppServiceAdapter) ListActivity(ctx context.Context, in ListActivityRequest) ([]ActivityEvent, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	limit, err := normalizeActivityLimit(in.Limit)
	if err != nil {
		return nil, err
	}
	project, err := a.service.ResolveProject(ctx, in.Project)
	if err != nil {
		return nil, mapAppError("resolve project", err)
	}
	events, err := a.service.ListProjectChangeEvents(ctx, project.ID, limit)
	if err != nil {
		return nil, mapAppError("list activity", err)
	}
	out := make([]ActivityEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ActivityEvent{
			ID:         ev.ID,
			TaskID:     ev.TaskID,
			Operation:  string(ev.Operation),
			ActorID:    ev.ActorID,
			ActorType:  string(ev.ActorType),
			Metadata:   ev.Metadata,
			OccurredAt: ev.OccurredAt.UTC(),
		})
	}
	return out, nil
}

// CreateTask appends one task to the To Do column of the requested project.
func (a *AppServiceAdapter) CreateTask(ctx context.Context, in CreateTaskRequest) (Task, error) {
	if a == nil || a.service == nil {
		return Task{}, fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	priority := domain.PriorityMedium
	if raw := strings.TrimSpace(in.Priority); raw != "" {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			return Task{}, fmt.Errorf("priority %q: %w", raw, errors.Join(ErrInvalidRequest, err))
		}
		priority = p
	}
	project, err := a.service.ResolveProject(ctx, in.Project)
	if err != nil {
		return Task{}, mapAppError("resolve project", err)
	}
	existing, err := a.service.ListTasks(ctx, project.ID)
	if err != nil {
		return Task{}, mapAppError("list tasks", err)
	}
	position := 0
	for _, t := range existing {
		if t.Status == domain.StatusTodo {
			position++
		}
	}

	ctx = app.WithMutationActor(ctx, app.MutationActor{ActorID: ServeActorID, ActorType: domain.ActorTypeUser})
	task, err := a.service.CreateTask(ctx, domain.TaskInput{
		ProjectID:      project.ID,
		Title:          in.Title,
		Description:    in.Description,
		Status:         domain.StatusTodo,
		Priority:       priority,
		EstimatedHours: in.EstimatedHours,
		Position:       position,
	})
	if err != nil {
		return Task{}, mapAppError("create task", err)
	}
	return mapTask(task, false), nil
}

// runningTaskIDs returns the ids of every task with a persisted timer.
func (a *AppServiceAdapter) runningTaskIDs() (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if a.timers == nil {
		return out, nil
	}
	stored, err := a.timers.ListActiveTimers()
	if err != nil {
		return nil, fmt.Errorf("list active timers: %w", err)
	}
	for _, timer := range stored {
		out[timer.TaskID] = struct{}{}
	}
	return out, nil
}

// normalizeTaskFilter validates list filters against the board's vocabulary.
func normalizeTaskFilter(in ListTasksRequest) (board.FilterState, error) {
	filter := board.DefaultFilter()
	filter.Search = strings.TrimSpace(in.Search)
	if raw := strings.TrimSpace(in.Priority); raw != "" && !strings.EqualFold(raw, board.FilterAll) {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			return board.FilterState{}, fmt.Errorf("priority %q: %w", raw, errors.Join(ErrInvalidRequest, err))
		}
		filter.Priority = string(p)
	}
	if raw := strings.TrimSpace(in.Status); raw != "" && !strings.EqualFold(raw, board.FilterAll) {
		s, err := domain.ParseStatus(raw)
		if err != nil {
			return board.FilterState{}, fmt.Errorf("status %q: %w", raw, errors.Join(ErrInvalidRequest, err))
		}
		filter.Status = string(s)
	}
	if raw := strings.TrimSpace(in.SortBy); raw != "" {
		key, err := board.ParseSortKey(raw)
		if err != nil {
			return board.FilterState{}, errors.Join(ErrInvalidRequest, err)
		}
		filter.SortBy = key
	}
	if raw := strings.TrimSpace(in.SortOrder); raw != "" {
		order, err := board.ParseSortOrder(raw)
		if err != nil {
			return board.FilterState{}, errors.Join(ErrInvalidRequest, err)
		}
		filter.SortOrder = order
	}
	return filter, nil
}

// normalizeActivityLimit applies the default and rejects out-of-range limits.
func normalizeActivityLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultActivityLimit, nil
	case limit < 0 || limit > MaxActivityLimit:
		return 0, fmt.Errorf("limit must be between 1 and %d: %w", MaxActivityLimit, ErrInvalidRequest)
	default:
		return limit, nil
	}
}

func mapProject(p domain.Project) Project {
	return Project{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func mapTask(t domain.Task, running bool) Task {
	return Task{
		ID:               t.ID,
		ProjectID:        t.ProjectID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           string(t.Status),
		Priority:         string(t.Priority),
		EstimatedHours:   t.EstimatedHours,
		TimeSpentMinutes: t.TimeSpentMinutes,
		Position:         t.Position,
		TimerRunning:     running,
		CreatedAt:        t.CreatedAt.UTC(),
		UpdatedAt:        t.UpdatedAt.UTC(),
		StartedAt:        t.StartedAt,
		CompletedAt:      t.CompletedAt,
	}
}

// mapAppError maps app and domain failures onto transport error classes.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.As(err, &verr),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrTitleTooLong),
		errors.Is(err, domain.ErrDescriptionTooLong),
		errors.Is(err, domain.ErrInvalidEstimate),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidPriority):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
