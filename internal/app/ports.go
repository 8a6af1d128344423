package app

import (
	"context"

	"github.com/evanschultz/kantime/internal/domain"
)

// Repository represents repository data used by this package.
type Repository interface {
	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context) ([]domain.Project, error)

	CreateTask(context.Context, domain.Task) error
	UpdateTask(context.Context, domain.Task) error
	GetTask(context.Context, string) (domain.Task, error)
	ListTasks(context.Context, string) ([]domain.Task, error)
	DeleteTask(context.Context, string) error
	AddTimeSpent(context.Context, string, int) error
	ResetTimeSpent(context.Context, string) error
	ListProjectChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}
