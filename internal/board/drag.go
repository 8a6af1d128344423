package board

import "github.com/evanschultz/kantime/internal/domain"

// Location is a column and index on the board.
type Location struct {
	Column domain.Status
	Index  int
}

// DragEvent describes a finished drag. A nil Destination means the drag was cancelled.
type DragEvent struct {
	TaskID      string
	Source      Location
	Destination *Location
}

// isNoop reports whether the drag ends where it started.
func (e DragEvent) isNoop() bool {
	if e.Destination == nil {
		return true
	}
	return e.Destination.Column == e.Source.Column && e.Destination.Index == e.Source.Index
}
