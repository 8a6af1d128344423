package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/evanschultz/kantime/internal/domain"
)

// TimerActorID attributes accrued time reported by running timers.
const TimerActorID = "kantime-timer"

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultProjectName        string
	DefaultProjectDescription string
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service is the persistence collaborator behind the board: it validates and
// stamps changes and writes them through the Repository port.
type Service struct {
	repo        Repository
	idGen       IDGenerator
	clock       Clock
	projectName string
	projectDesc string
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if strings.TrimSpace(cfg.DefaultProjectName) == "" {
		cfg.DefaultProjectName = "Inbox"
	}
	if strings.TrimSpace(cfg.DefaultProjectDescription) == "" {
		cfg.DefaultProjectDescription = "Default project"
	}
	return &Service{
		repo:        repo,
		idGen:       idGen,
		clock:       clock,
		projectName: cfg.DefaultProjectName,
		projectDesc: cfg.DefaultProjectDescription,
	}
}

// EnsureDefaultProject returns the oldest project, creating the default one on first run.
func (s *Service) EnsureDefaultProject(ctx context.Context) (domain.Project, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) > 0 {
		return projects[0], nil
	}
	return s.CreateProject(ctx, s.projectName, s.projectDesc)
}

// CreateProject creates project.
func (s *Service) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	project, err := domain.NewProject(s.idGen(), name, description, s.clock())
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// RenameProject renames a project and refreshes its slug.
func (s *Service) RenameProject(ctx context.Context, projectID, name string) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if err := project.Rename(name, s.clock()); err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	return project, nil
}

// ResolveProject finds a project by id, slug or name. An empty ref resolves
// to the default project.
func (s *Service) ResolveProject(ctx context.Context, ref string) (domain.Project, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return s.EnsureDefaultProject(ctx)
	}
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	for _, p := range projects {
		if p.ID == ref || p.Slug == ref || strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return domain.Project{}, fmt.Errorf("project %q: %w", ref, ErrNotFound)
}

// ListProjects lists projects.
func (s *Service) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.repo.ListProjects(ctx)
}

// CreateTask validates in, assigns an id and persists the task.
func (s *Service) CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	if strings.TrimSpace(in.ID) == "" {
		in.ID = s.idGen()
	}
	if _, err := s.repo.GetProject(ctx, in.ProjectID); err != nil {
		return domain.Task{}, err
	}
	task, err := domain.NewTask(in, s.clock())
	if err != nil {
		return domain.Task{}, err
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask applies a partial update to one task.
func (s *Service) UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch) error {
	if patch.IsEmpty() {
		return ErrEmptyPatch
	}
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := task.ApplyPatch(patch, s.clock()); err != nil {
		return err
	}
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return err
	}
	if patch.ResetTimeSpent {
		return s.repo.ResetTimeSpent(ctx, taskID)
	}
	return nil
}

// DeleteTask deletes task.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	return s.repo.DeleteTask(ctx, taskID)
}

// ReportTimeSpent adds accrued minutes to a task. Reports without an actor
// are attributed to the timer.
func (s *Service) ReportTimeSpent(ctx context.Context, taskID string, minutes int) error {
	if minutes < 0 {
		return domain.ErrInvalidTimeSpent
	}
	if minutes == 0 {
		return nil
	}
	if _, ok := MutationActorFromContext(ctx); !ok {
		ctx = WithMutationActor(ctx, MutationActor{ActorID: TimerActorID, ActorType: domain.ActorTypeSystem})
	}
	return s.repo.AddTimeSpent(ctx, taskID, minutes)
}

// GetTask returns task.
func (s *Service) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	return s.repo.GetTask(ctx, taskID)
}

// ListTasks lists a project's tasks by column, then position.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(tasks, func(a, b domain.Task) int {
		if a.Status != b.Status {
			return a.Status.Index() - b.Status.Index()
		}
		return a.Position - b.Position
	})
	return tasks, nil
}

// ListProjectChangeEvents lists recent change events for a project.
func (s *Service) ListProjectChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListProjectChangeEvents(ctx, projectID, limit)
}
