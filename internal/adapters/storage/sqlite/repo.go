package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/evanschultz/kantime/internal/app"
	"github.com/evanschultz/kantime/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores projects, tasks and the change-event ledger in SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) the database at path.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

// newRepository pins the pool to one connection so timer accrual and bulk
// updates serialize in the driver and per-connection pragmas stick.
func newRepository(db *sql.DB) (*Repository, error) {
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo',
			priority TEXT NOT NULL DEFAULT 'medium',
			estimated_hours REAL,
			time_spent_minutes INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT 'kantime-user',
			actor_type TEXT NOT NULL DEFAULT 'user',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_status_position ON tasks(project_id, status, position);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_project_created_at ON change_events(project_id, created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateProject creates project.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects(id, slug, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.Slug, p.Name, p.Description, ts(p.CreatedAt), ts(p.UpdatedAt))
	return err
}

// UpdateProject updates state for the requested operation.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE projects
		SET slug = ?, name = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, p.Slug, p.Name, p.Description, ts(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetProject returns project.
func (r *Repository) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, description, created_at, updated_at
		FROM projects
		WHERE id = ?
	`, id)
	return scanProject(row)
}

// ListProjects lists projects, oldest first.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slug, name, description, created_at, updated_at
		FROM projects
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateTask inserts a task and records a create event.
func (r *Repository) CreateTask(ctx context.Context, t domain.Task) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks(
			id, project_id, title, description, status, priority, estimated_hours, time_spent_minutes, position,
			created_at, updated_at, started_at, completed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.ProjectID,
		t.Title,
		t.Description,
		string(t.Status),
		string(t.Priority),
		nullableFloat(t.EstimatedHours),
		t.TimeSpentMinutes,
		t.Position,
		ts(t.CreatedAt),
		ts(t.UpdatedAt),
		nullableTS(t.StartedAt),
		nullableTS(t.CompletedAt),
	)
	if err != nil {
		return err
	}

	err = insertTaskChangeEvent(ctx, tx, domain.ChangeEvent{
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		Operation: domain.ChangeOperationCreate,
		Metadata: map[string]string{
			"status":   string(t.Status),
			"position": strconv.Itoa(t.Position),
			"title":    t.Title,
		},
		OccurredAt: t.CreatedAt,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateTask writes every editable field except time spent, which only moves
// through AddTimeSpent and ResetTimeSpent.
func (r *Repository) UpdateTask(ctx context.Context, t domain.Task) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := getTaskByID(ctx, tx, t.ID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, priority = ?, estimated_hours = ?, position = ?,
		    updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`,
		t.Title,
		t.Description,
		string(t.Status),
		string(t.Priority),
		nullableFloat(t.EstimatedHours),
		t.Position,
		ts(t.UpdatedAt),
		nullableTS(t.StartedAt),
		nullableTS(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	if prev.Status != t.Status || prev.Position != t.Position {
		if err = compactTaskPositions(ctx, tx, t.ProjectID, t.ID); err != nil {
			return err
		}
	}

	op, metadata := classifyTaskTransition(prev, t)
	err = insertTaskChangeEvent(ctx, tx, domain.ChangeEvent{
		ProjectID:  t.ProjectID,
		TaskID:     t.ID,
		Operation:  op,
		Metadata:   metadata,
		OccurredAt: t.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// AddTimeSpent atomically accrues minutes on a task.
func (r *Repository) AddTimeSpent(ctx context.Context, id string, minutes int) error {
	if minutes < 0 {
		return domain.ErrInvalidTimeSpent
	}
	return r.setTimeSpent(ctx, id, `time_spent_minutes + ?`, []any{minutes}, map[string]string{
		"minutes": strconv.Itoa(minutes),
	})
}

// ResetTimeSpent zeroes a task's accrued time.
func (r *Repository) ResetTimeSpent(ctx context.Context, id string) error {
	return r.setTimeSpent(ctx, id, `0`, nil, map[string]string{"reset": "true"})
}

// setTimeSpent assigns time_spent_minutes from expr and records a time event.
func (r *Repository) setTimeSpent(ctx context.Context, id, expr string, exprArgs []any, metadata map[string]string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	task, err := getTaskByID(ctx, tx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	args := append(exprArgs, ts(now), id)
	res, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET time_spent_minutes = `+expr+`, updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	err = insertTaskChangeEvent(ctx, tx, domain.ChangeEvent{
		ProjectID:  task.ProjectID,
		TaskID:     task.ID,
		Operation:  domain.ChangeOperationTime,
		Metadata:   metadata,
		OccurredAt: now,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetTask returns task.
func (r *Repository) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTaskByID(ctx, r.db, id)
}

// ListTasks lists a project's tasks.
func (r *Repository) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = ?
		ORDER BY status ASC, position ASC, created_at ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// DeleteTask deletes task.
func (r *Repository) DeleteTask(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	task, err := getTaskByID(ctx, tx, id)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if err = compactTaskPositions(ctx, tx, task.ProjectID, ""); err != nil {
		return err
	}

	err = insertTaskChangeEvent(ctx, tx, domain.ChangeEvent{
		ProjectID: task.ProjectID,
		TaskID:    task.ID,
		Operation: domain.ChangeOperationDelete,
		Metadata: map[string]string{
			"status":   string(task.Status),
			"position": strconv.Itoa(task.Position),
			"title":    task.Title,
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListProjectChangeEvents returns a project's newest events first.
func (r *Repository) ListProjectChangeEvents(ctx context.Context, projectID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, task_id, operation, actor_id, actor_type, metadata_json, created_at
		FROM change_events
		WHERE project_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			opRaw       string
			actorType   string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.ProjectID, &event.TaskID, &opRaw, &event.ActorID, &actorType, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = normalizeChangeOperation(opRaw)
		event.ActorType = normalizeActorType(domain.ActorType(actorType))
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// taskColumns is the canonical select list for scanTask.
const taskColumns = `id, project_id, title, description, status, priority, estimated_hours, time_spent_minutes, position,
	created_at, updated_at, started_at, completed_at`

// queryRower represents a query-only DB contract used by DB and Tx implementations.
type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// compactTaskPositions renumbers every column of a project to 0..n-1.
// movedID sorts ahead of siblings that share its position.
func compactTaskPositions(ctx context.Context, tx *sql.Tx, projectID, movedID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = ?
		ORDER BY status ASC, position ASC, created_at ASC
	`, projectID)
	if err != nil {
		return err
	}
	var tasks []domain.Task
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			_ = rows.Close()
			return scanErr
		}
		tasks = append(tasks, task)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, id := range domain.CompactPositions(tasks, movedID) {
		idx := slices.IndexFunc(tasks, func(t domain.Task) bool { return t.ID == id })
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET position = ? WHERE id = ?`, tasks[idx].Position, id); err != nil {
			return fmt.Errorf("compact task positions: %w", err)
		}
	}
	return nil
}

// getTaskByID returns one task row.
func getTaskByID(ctx context.Context, q queryRower, id string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertTaskChangeEvent inserts a change-event ledger record attributed to
// the actor carried by ctx.
func insertTaskChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	actor := app.ActorFromContext(ctx)
	if event.ActorID == "" {
		event.ActorID = actor.ActorID
		event.ActorType = actor.ActorType
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(project_id, task_id, operation, actor_id, actor_type, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.ProjectID,
		event.TaskID,
		string(event.Operation),
		event.ActorID,
		string(normalizeActorType(event.ActorType)),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// classifyTaskTransition derives the best operation category and metadata for a task update.
func classifyTaskTransition(prev, next domain.Task) (domain.ChangeOperation, map[string]string) {
	if prev.Status != next.Status || prev.Position != next.Position {
		return domain.ChangeOperationMove, map[string]string{
			"from_status":   string(prev.Status),
			"to_status":     string(next.Status),
			"from_position": strconv.Itoa(prev.Position),
			"to_position":   strconv.Itoa(next.Position),
		}
	}
	fields := changedTaskFields(prev, next)
	metadata := map[string]string{}
	if len(fields) > 0 {
		metadata["changed_fields"] = strings.Join(fields, ",")
	}
	return domain.ChangeOperationUpdate, metadata
}

// changedTaskFields identifies a deterministic set of meaningful changes for metadata.
func changedTaskFields(prev, next domain.Task) []string {
	changed := make([]string, 0)
	if prev.Title != next.Title {
		changed = append(changed, "title")
	}
	if prev.Description != next.Description {
		changed = append(changed, "description")
	}
	if prev.Priority != next.Priority {
		changed = append(changed, "priority")
	}
	if !equalNullableFloats(prev.EstimatedHours, next.EstimatedHours) {
		changed = append(changed, "estimated_hours")
	}
	if !equalNullableTimes(prev.StartedAt, next.StartedAt) {
		changed = append(changed, "started_at")
	}
	if !equalNullableTimes(prev.CompletedAt, next.CompletedAt) {
		changed = append(changed, "completed_at")
	}
	return changed
}

func equalNullableTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalNullableFloats(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// normalizeActorType applies a default when actor type is unset or unsupported.
func normalizeActorType(actorType domain.ActorType) domain.ActorType {
	switch strings.TrimSpace(strings.ToLower(string(actorType))) {
	case string(domain.ActorTypeSystem):
		return domain.ActorTypeSystem
	default:
		return domain.ActorTypeUser
	}
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	switch op := domain.ChangeOperation(strings.TrimSpace(strings.ToLower(raw))); op {
	case domain.ChangeOperationCreate, domain.ChangeOperationUpdate, domain.ChangeOperationMove,
		domain.ChangeOperationTime, domain.ChangeOperationDelete:
		return op
	default:
		return domain.ChangeOperationUpdate
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (domain.Project, error) {
	var (
		p          domain.Project
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Project{}, app.ErrNotFound
		}
		return domain.Project{}, err
	}
	p.CreatedAt = parseTS(createdRaw)
	p.UpdatedAt = parseTS(updatedRaw)
	return p, nil
}

func scanTask(s scanner) (domain.Task, error) {
	var (
		t            domain.Task
		status       string
		priority     string
		estimated    sql.NullFloat64
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := s.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&status,
		&priority,
		&estimated,
		&t.TimeSpentMinutes,
		&t.Position,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Task{}, app.ErrNotFound
		}
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	if estimated.Valid {
		hours := estimated.Float64
		t.EstimatedHours = &hours
	}
	t.CreatedAt = parseTS(createdRaw)
	t.UpdatedAt = parseTS(updatedRaw)
	t.StartedAt = parseNullTS(startedRaw)
	t.CompletedAt = parseNullTS(completedRaw)
	return t, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// parseTS returns the zero time for unparseable values.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
