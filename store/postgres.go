package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/annoq/annoq/pipeline"
)

const (
	pgTasksTable       = "tasks"
	pgAnnotationsTable = "annotations"
)

// PostgresStore implements TaskStore and AnnotationStore backed by Postgres.
// Claim exclusivity uses a conditional UPDATE over a SKIP LOCKED selection,
// so concurrent claimers never receive the same row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Compile-time interface checks.
var (
	_ TaskStore       = (*PostgresStore)(nil)
	_ AnnotationStore = (*PostgresStore)(nil)
)

// NewPostgresStore creates a Postgres-backed store from an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to Postgres and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tasks and annotations tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + pgTasksTable + ` (
    id             TEXT PRIMARY KEY,
    batch_id       TEXT NOT NULL,
    pipeline_stage TEXT NOT NULL,
    status         TEXT NOT NULL,
    claimed_by     TEXT NOT NULL DEFAULT '',
    content        JSONB NOT NULL DEFAULT 'null',
    created_at     TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS tasks_status_created_idx ON ` + pgTasksTable + ` (status, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS tasks_claimed_by_idx ON ` + pgTasksTable + ` (claimed_by) WHERE claimed_by <> ''`,
		`CREATE TABLE IF NOT EXISTS ` + pgAnnotationsTable + ` (
    id             TEXT PRIMARY KEY,
    task_id        TEXT NOT NULL REFERENCES ` + pgTasksTable + `(id),
    pipeline_stage TEXT NOT NULL,
    annotator_id   TEXT NOT NULL,
    response       JSONB NOT NULL DEFAULT 'null',
    created_at     TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS annotations_task_idx ON ` + pgAnnotationsTable + ` (task_id, created_at, id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const taskColumns = "id, batch_id, pipeline_stage, status, claimed_by, content, created_at"

// Create stores a new task.
func (s *PostgresStore) Create(ctx context.Context, task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgTasksTable+` (`+taskColumns+`)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (id) DO NOTHING`,
		task.ID, task.BatchID, task.PipelineStage, task.Status,
		task.ClaimedBy, task.Content, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskExists
	}
	return nil
}

// Get retrieves a task by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM `+pgTasksTable+` WHERE id = $1`, id)
	return scanTask(row)
}

// ClaimOldestPending atomically claims the oldest pending task for actorID.
// The inner SELECT takes a row lock with SKIP LOCKED so racing claimers
// each land on a different row; the conditional status check means a row
// already flipped by another transaction is never claimed twice.
func (s *PostgresStore) ClaimOldestPending(ctx context.Context, actorID string) (*Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE `+pgTasksTable+` SET status = $1, claimed_by = $2
         WHERE id = (
             SELECT id FROM `+pgTasksTable+`
             WHERE status = $3
             ORDER BY created_at, id
             LIMIT 1
             FOR UPDATE SKIP LOCKED
         ) AND status = $3
         RETURNING `+taskColumns,
		pipeline.StatusClaimed, actorID, pipeline.StatusPending)

	task, err := scanTask(row)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateFrom writes the task only if its stored status still equals from
// and its stored claimant still equals claimant.
func (s *PostgresStore) UpdateFrom(ctx context.Context, task *Task, from pipeline.Status, claimant string) error {
	if err := task.Validate(); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgTasksTable+`
         SET batch_id = $2, pipeline_stage = $3, status = $4, claimed_by = $5, content = $6
         WHERE id = $1 AND status = $7 AND claimed_by = $8`,
		task.ID, task.BatchID, task.PipelineStage, task.Status,
		task.ClaimedBy, task.Content, from, claimant)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale status or a moved claim.
		current, gerr := s.Get(ctx, task.ID)
		if errors.Is(gerr, ErrTaskNotFound) {
			return ErrTaskNotFound
		}
		if gerr != nil {
			return gerr
		}
		if current.Status != from {
			return ErrStaleStatus
		}
		return ErrStaleClaim
	}
	return nil
}

// ListByClaimant returns tasks currently claimed by actorID.
func (s *PostgresStore) ListByClaimant(ctx context.Context, actorID string) ([]*Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM `+pgTasksTable+`
         WHERE claimed_by = $1 AND status = $2
         ORDER BY created_at, id`,
		actorID, pipeline.StatusClaimed)
	if err != nil {
		return nil, fmt.Errorf("list by claimant: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListByStatus returns tasks in the given status, oldest first.
func (s *PostgresStore) ListByStatus(ctx context.Context, status pipeline.Status) ([]*Task, error) {
	return s.List(ctx, ListFilter{Status: status})
}

// List returns tasks matching the filter.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Task, error) {
	dir := "ASC"
	if filter.Descending {
		dir = "DESC"
	}
	// Direction applies per column so descending flips the whole
	// ordering, not just the id tiebreak.
	order := "created_at " + dir + ", id " + dir
	if filter.SortBy == SortByID {
		order = "id " + dir
	}

	query := `SELECT ` + taskColumns + ` FROM ` + pgTasksTable
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY ` + order

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// Append records a new annotation.
func (s *PostgresStore) Append(ctx context.Context, ann *Annotation) error {
	if err := ann.Validate(); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgAnnotationsTable+` (id, task_id, pipeline_stage, annotator_id, response, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		ann.ID, ann.TaskID, ann.PipelineStage, ann.AnnotatorID, ann.Response, ann.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

// ListByTask returns all annotations for a task, oldest first.
func (s *PostgresStore) ListByTask(ctx context.Context, taskID string) ([]*Annotation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, pipeline_stage, annotator_id, response, created_at
         FROM `+pgAnnotationsTable+`
         WHERE task_id = $1
         ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	anns := make([]*Annotation, 0)
	for rows.Next() {
		var ann Annotation
		if err := rows.Scan(&ann.ID, &ann.TaskID, &ann.PipelineStage,
			&ann.AnnotatorID, &ann.Response, &ann.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		anns = append(anns, &ann)
	}
	return anns, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanTask(row pgRow) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.BatchID, &t.PipelineStage, &t.Status,
		&t.ClaimedBy, &t.Content, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*Task, error) {
	tasks := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
