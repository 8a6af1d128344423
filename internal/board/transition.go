package board

import (
	"time"

	"github.com/evanschultz/kantime/internal/domain"
)

// TimerSignal tells the orchestrator what a transition means for the task's timer.
type TimerSignal int

// TimerSignal values.
const (
	TimerNone TimerSignal = iota
	TimerStart
	TimerStop
)

// String returns a log-friendly name.
func (s TimerSignal) String() string {
	switch s {
	case TimerStart:
		return "start"
	case TimerStop:
		return "stop"
	default:
		return "none"
	}
}

// Transition is the planned effect of moving one task.
type Transition struct {
	TaskID string
	From   domain.Status
	To     domain.Status
	Patch  domain.TaskPatch
	Timer  TimerSignal
	Noop   bool
}

// PlanTransition computes the patch and timer side effect of moving task to
// targetStatus at targetPosition. Every trigger (drag, keyboard, bulk) goes
// through here so the side effects stay identical.
func PlanTransition(task domain.Task, targetStatus domain.Status, targetPosition int, now time.Time) Transition {
	tr := Transition{
		TaskID: task.ID,
		From:   task.Status,
		To:     targetStatus,
	}
	if targetStatus == task.Status && targetPosition == task.Position {
		tr.Noop = true
		return tr
	}

	status := targetStatus
	position := targetPosition
	tr.Patch.Status = &status
	tr.Patch.Position = &position

	ts := now.UTC()
	switch targetStatus {
	case domain.StatusInProgress:
		if task.Status != domain.StatusInProgress {
			tr.Patch.StartedAt = &ts
			tr.Timer = TimerStart
		}
	case domain.StatusCompleted:
		if task.Status != domain.StatusCompleted {
			tr.Patch.CompletedAt = &ts
			tr.Timer = TimerStop
		}
	case domain.StatusTodo:
		switch task.Status {
		case domain.StatusInProgress:
			tr.Timer = TimerStop
		case domain.StatusCompleted:
			tr.Patch.ClearCompletedAt = true
		}
	}
	return tr
}

// appendPosition returns the index a task lands on when appended to status's column.
func appendPosition(tasks []domain.Task, taskID string, status domain.Status) int {
	n := 0
	for _, t := range tasks {
		if t.Status == status && t.ID != taskID {
			n++
		}
	}
	return n
}
