// Package board is the interaction and state engine behind the task board:
// transition rules, drag handling, timers, bulk selection, keyboard focus,
// and filtering. It derives views from a supplied task list and pushes
// mutations out through the Mutator port; it never owns task data.
package board

import (
	"context"
	"errors"
	"time"

	"github.com/evanschultz/kantime/internal/domain"
)

// ErrBoardBusy and related errors describe engine-level failures.
var (
	ErrBoardBusy    = errors.New("board is updating")
	ErrTaskNotFound = errors.New("task not found")
)

// Mutator is the persistence collaborator the engine pushes mutations to.
type Mutator interface {
	CreateTask(context.Context, domain.TaskInput) (domain.Task, error)
	UpdateTask(context.Context, string, domain.TaskPatch) error
	DeleteTask(context.Context, string) error
	ReportTimeSpent(context.Context, string, int) error
}

// TimerStore is the durable local key-value store for active timers.
type TimerStore interface {
	ListActiveTimers() ([]domain.ActiveTimer, error)
	SaveActiveTimer(domain.ActiveTimer) error
	RemoveActiveTimer(taskID string) error
	ClearActiveTimers() error
}

// timerReplacer is implemented by stores that can rewrite every entry in one write.
type timerReplacer interface {
	ReplaceActiveTimers([]domain.ActiveTimer) error
}

// Clock returns the current time.
type Clock func() time.Time

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a ticker for the given interval.
type TickerFactory func(time.Duration) Ticker

// realTicker adapts time.Ticker.
type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker returns a Ticker backed by time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
