package domain

import (
	"strings"
	"time"
)

// ActiveTimer is one running time-tracking session, persisted so it survives restarts.
type ActiveTimer struct {
	TaskID          string    `json:"taskId"`
	ProjectID       string    `json:"projectId"`
	TaskTitle       string    `json:"taskTitle"`
	StartTime       time.Time `json:"startTime"`
	ReportedMinutes int       `json:"reportedMinutes,omitempty"`
}

// Valid reports whether the timer carries the fields needed to resume it.
func (a ActiveTimer) Valid() bool {
	return strings.TrimSpace(a.TaskID) != "" && strings.TrimSpace(a.ProjectID) != "" && !a.StartTime.IsZero()
}

// ElapsedMinutes returns whole minutes between StartTime and now, never negative.
func (a ActiveTimer) ElapsedMinutes(now time.Time) int {
	elapsed := now.Sub(a.StartTime)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / time.Minute)
}
