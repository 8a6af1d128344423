package domain

import "time"

// ChangeOperation describes a persisted activity operation for a task.
type ChangeOperation string

// ChangeOperation values used by the local activity ledger.
const (
	ChangeOperationCreate ChangeOperation = "create"
	ChangeOperationUpdate ChangeOperation = "update"
	ChangeOperationMove   ChangeOperation = "move"
	ChangeOperationTime   ChangeOperation = "time"
	ChangeOperationDelete ChangeOperation = "delete"
)

// ActorType identifies who caused a change.
type ActorType string

// ActorType values.
const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// ChangeEvent represents a single activity-log entry for a project task.
type ChangeEvent struct {
	ID         int64
	ProjectID  string
	TaskID     string
	Operation  ChangeOperation
	ActorID    string
	ActorType  ActorType
	Metadata   map[string]string
	OccurredAt time.Time
}
