// Package timerfile persists active timers as one JSON document shared by
// every project, so running timers survive a restart.
package timerfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/evanschultz/kantime/internal/domain"
	"github.com/natefinch/atomic"
)

// filePerms and dirPerms are applied to the store file and its directory.
const (
	filePerms = 0o600
	dirPerms  = 0o755
)

// Store is a file-backed timer store. Every write replaces the whole file.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store at path. The file is created on first write.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("timer store path is required")
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ListActiveTimers returns every stored timer. A missing file is an empty store.
func (s *Store) ListActiveTimers() ([]domain.ActiveTimer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// SaveActiveTimer inserts or replaces the timer for timer.TaskID.
func (s *Store) SaveActiveTimer(timer domain.ActiveTimer) error {
	if !timer.Valid() {
		return fmt.Errorf("save active timer %q: invalid timer", timer.TaskID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	timers, err := s.readLocked()
	if err != nil {
		return err
	}
	timers = slices.DeleteFunc(timers, func(t domain.ActiveTimer) bool { return t.TaskID == timer.TaskID })
	return s.writeLocked(append(timers, timer))
}

// RemoveActiveTimer deletes the timer for taskID, if any.
func (s *Store) RemoveActiveTimer(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers, err := s.readLocked()
	if err != nil {
		return err
	}
	next := slices.DeleteFunc(timers, func(t domain.ActiveTimer) bool { return t.TaskID == taskID })
	return s.writeLocked(next)
}

// ClearActiveTimers empties the store.
func (s *Store) ClearActiveTimers() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(nil)
}

// ReplaceActiveTimers overwrites the store with timers in one atomic write.
func (s *Store) ReplaceActiveTimers(timers []domain.ActiveTimer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(timers)
}

func (s *Store) readLocked() ([]domain.ActiveTimer, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.ActiveTimer{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read timer store: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []domain.ActiveTimer{}, nil
	}
	var timers []domain.ActiveTimer
	if err := json.Unmarshal(raw, &timers); err != nil {
		return nil, fmt.Errorf("decode timer store %s: %w", s.path, err)
	}
	// Entries written by older builds or edited by hand may be partial.
	return slices.DeleteFunc(timers, func(t domain.ActiveTimer) bool { return !t.Valid() }), nil
}

func (s *Store) writeLocked(timers []domain.ActiveTimer) error {
	if timers == nil {
		timers = []domain.ActiveTimer{}
	}
	timers = dedupe(timers)
	buf, err := json.MarshalIndent(timers, "", "  ")
	if err != nil {
		return fmt.Errorf("encode timer store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerms); err != nil {
		return fmt.Errorf("create timer store dir: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(append(buf, '\n'))); err != nil {
		return fmt.Errorf("write timer store: %w", err)
	}
	// atomic.WriteFile keeps the temp file's mode on new files.
	if err := os.Chmod(s.path, filePerms); err != nil {
		return fmt.Errorf("chmod timer store: %w", err)
	}
	return nil
}

// dedupe keeps the last timer per task id, preserving first-seen order.
func dedupe(timers []domain.ActiveTimer) []domain.ActiveTimer {
	index := make(map[string]int, len(timers))
	out := make([]domain.ActiveTimer, 0, len(timers))
	for _, timer := range timers {
		if i, ok := index[timer.TaskID]; ok {
			out[i] = timer
			continue
		}
		index[timer.TaskID] = len(out)
		out = append(out, timer)
	}
	return out
}
