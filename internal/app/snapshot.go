package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evanschultz/kantime/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "kantime.snapshot.v1"

// Snapshot is a portable JSON export of every project and task.
type Snapshot struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Projects   []SnapshotProject `json:"projects"`
	Tasks      []SnapshotTask    `json:"tasks"`
}

// SnapshotProject represents snapshot project data used by this package.
type SnapshotProject struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SnapshotTask represents snapshot task data used by this package.
type SnapshotTask struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Status           domain.Status   `json:"status"`
	Priority         domain.Priority `json:"priority"`
	EstimatedHours   *float64        `json:"estimated_hours,omitempty"`
	TimeSpentMinutes int             `json:"time_spent_minutes"`
	Position         int             `json:"position"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// ExportSnapshot collects every project and task into a sorted snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Projects:   make([]SnapshotProject, 0, len(projects)),
		Tasks:      make([]SnapshotTask, 0),
	}
	for _, project := range projects {
		snap.Projects = append(snap.Projects, snapshotProjectFromDomain(project))
		tasks, listErr := s.repo.ListTasks(ctx, project.ID)
		if listErr != nil {
			return Snapshot{}, listErr
		}
		for _, task := range tasks {
			snap.Tasks = append(snap.Tasks, snapshotTaskFromDomain(task))
		}
	}

	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every project and task in snap. Time spent on an
// existing task only ever grows.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, project := range snap.Projects {
		if err := s.upsertProject(ctx, project.toDomain()); err != nil {
			return err
		}
	}
	for _, task := range snap.Tasks {
		dt := task.toDomain()
		existing, err := s.repo.GetTask(ctx, dt.ID)
		if errors.Is(err, ErrNotFound) {
			if err := s.repo.CreateTask(ctx, dt); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := s.repo.UpdateTask(ctx, dt); err != nil {
			return err
		}
		if delta := dt.TimeSpentMinutes - existing.TimeSpentMinutes; delta > 0 {
			if err := s.repo.AddTimeSpent(ctx, dt.ID, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks references and required fields before an import.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}

	projectIDs := map[string]struct{}{}
	for i, p := range s.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: projects[%d].id is required", ErrInvalidSnapshot, i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("%w: projects[%d].name is required", ErrInvalidSnapshot, i)
		}
		if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
			return fmt.Errorf("%w: projects[%d] timestamps are required", ErrInvalidSnapshot, i)
		}
		if _, exists := projectIDs[p.ID]; exists {
			return fmt.Errorf("%w: duplicate project id %q", ErrInvalidSnapshot, p.ID)
		}
		projectIDs[p.ID] = struct{}{}
	}

	taskIDs := map[string]struct{}{}
	for i, t := range s.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: tasks[%d].id is required", ErrInvalidSnapshot, i)
		}
		if _, ok := projectIDs[t.ProjectID]; !ok {
			return fmt.Errorf("%w: tasks[%d] references unknown project_id %q", ErrInvalidSnapshot, i, t.ProjectID)
		}
		if t.Status == "" {
			s.Tasks[i].Status = domain.StatusTodo
		}
		if t.Priority == "" {
			s.Tasks[i].Priority = domain.PriorityMedium
		}
		in := domain.TaskInput{
			Title:          t.Title,
			Description:    t.Description,
			Status:         s.Tasks[i].Status,
			Priority:       s.Tasks[i].Priority,
			EstimatedHours: t.EstimatedHours,
		}
		if err := domain.ValidateTaskInput(&in); err != nil {
			return fmt.Errorf("%w: tasks[%d]: %w", ErrInvalidSnapshot, i, err)
		}
		if t.Position < 0 || t.TimeSpentMinutes < 0 {
			return fmt.Errorf("%w: tasks[%d] position and time spent must be >= 0", ErrInvalidSnapshot, i)
		}
		if t.CreatedAt.IsZero() || t.UpdatedAt.IsZero() {
			return fmt.Errorf("%w: tasks[%d] timestamps are required", ErrInvalidSnapshot, i)
		}
		if _, exists := taskIDs[t.ID]; exists {
			return fmt.Errorf("%w: duplicate task id %q", ErrInvalidSnapshot, t.ID)
		}
		taskIDs[t.ID] = struct{}{}
	}
	return nil
}

// upsertProject creates p or overwrites the existing row.
func (s *Service) upsertProject(ctx context.Context, p domain.Project) error {
	if _, err := s.repo.GetProject(ctx, p.ID); err == nil {
		return s.repo.UpdateProject(ctx, p)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateProject(ctx, p)
}

func (s *Snapshot) sort() {
	sort.Slice(s.Projects, func(i, j int) bool {
		return s.Projects[i].ID < s.Projects[j].ID
	})
	sort.Slice(s.Tasks, func(i, j int) bool {
		a := s.Tasks[i]
		b := s.Tasks[j]
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		if a.Status != b.Status {
			return a.Status.Index() < b.Status.Index()
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
}

func snapshotProjectFromDomain(p domain.Project) SnapshotProject {
	return SnapshotProject{
		ID:          p.ID,
		Slug:        p.Slug,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func snapshotTaskFromDomain(t domain.Task) SnapshotTask {
	return SnapshotTask{
		ID:               t.ID,
		ProjectID:        t.ProjectID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		Priority:         t.Priority,
		EstimatedHours:   copyFloatPtr(t.EstimatedHours),
		TimeSpentMinutes: t.TimeSpentMinutes,
		Position:         t.Position,
		CreatedAt:        t.CreatedAt.UTC(),
		UpdatedAt:        t.UpdatedAt.UTC(),
		StartedAt:        copyTimePtr(t.StartedAt),
		CompletedAt:      copyTimePtr(t.CompletedAt),
	}
}

func (p SnapshotProject) toDomain() domain.Project {
	slug := strings.TrimSpace(p.Slug)
	if slug == "" {
		slug = fallbackSlug(p.Name)
	}
	return domain.Project{
		ID:          strings.TrimSpace(p.ID),
		Slug:        slug,
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (t SnapshotTask) toDomain() domain.Task {
	return domain.Task{
		ID:               strings.TrimSpace(t.ID),
		ProjectID:        strings.TrimSpace(t.ProjectID),
		Title:            strings.TrimSpace(t.Title),
		Description:      strings.TrimSpace(t.Description),
		Status:           t.Status,
		Priority:         t.Priority,
		EstimatedHours:   copyFloatPtr(t.EstimatedHours),
		TimeSpentMinutes: t.TimeSpentMinutes,
		Position:         t.Position,
		CreatedAt:        t.CreatedAt.UTC(),
		UpdatedAt:        t.UpdatedAt.UTC(),
		StartedAt:        copyTimePtr(t.StartedAt),
		CompletedAt:      copyTimePtr(t.CompletedAt),
	}
}

// fallbackSlug derives a slug through the domain normalizer.
func fallbackSlug(name string) string {
	p, err := domain.NewProject("snapshot", name, "", time.Unix(0, 0))
	if err != nil {
		return ""
	}
	return p.Slug
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	v := in.UTC()
	return &v
}

func copyFloatPtr(in *float64) *float64 {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}
