package tui

import "time"

// Option configures a Model.
type Option func(*Model)

// WithConfirmQuitPending asks before quitting while a write is in flight.
func WithConfirmQuitPending(enabled bool) Option {
	return func(m *Model) {
		m.confirmQuitPending = enabled
	}
}

// WithRefreshInterval sets how often the board reloads while timers run.
// Zero disables the refresh loop.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Model) {
		m.refreshInterval = max(d, 0)
	}
}

// WithClipboard replaces the clipboard writer used by the copy binding.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}

// WithActivityLimit caps how many change events the activity overlay loads.
func WithActivityLimit(limit int) Option {
	return func(m *Model) {
		if limit > 0 {
			m.activityLimit = limit
		}
	}
}
