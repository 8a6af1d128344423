package board

import (
	"time"

	"github.com/evanschultz/kantime/internal/domain"
)

// Row is everything a renderer needs for one task card.
type Row struct {
	Task          domain.Task
	Selected      bool
	SelectionMode bool
	Focused       bool
	TimerRunning  bool
	Elapsed       time.Duration
	Disabled      bool
}

// Column is one status column in render order.
type Column struct {
	Status domain.Status
	Rows   []Row
}

// Len returns the number of rows.
func (c Column) Len() int {
	return len(c.Rows)
}

// IndexOf returns the row index of taskID or -1.
func (c Column) IndexOf(taskID string) int {
	for i, row := range c.Rows {
		if row.Task.ID == taskID {
			return i
		}
	}
	return -1
}
