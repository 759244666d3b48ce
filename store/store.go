package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/annoq/annoq/pipeline"
)

// Common errors.
var (
	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists indicates a task with the same ID already exists.
	ErrTaskExists = errors.New("task already exists")

	// ErrNoTask indicates no pending task is available to claim.
	// This is a normal outcome of claiming, not a failure.
	ErrNoTask = errors.New("no task available")

	// ErrStaleStatus indicates a conditional update found the task in a
	// different status than expected. The caller's view is stale.
	ErrStaleStatus = errors.New("task status changed concurrently")

	// ErrStaleClaim indicates a conditional update found the task held by
	// a different claimant than expected. The claim moved between the
	// caller's read and its write.
	ErrStaleClaim = errors.New("task claim changed concurrently")

	// ErrInvalidTask indicates the task is missing required fields.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidAnnotation indicates the annotation is missing required fields.
	ErrInvalidAnnotation = errors.New("invalid annotation")

	// ErrStoreClosed indicates the underlying store has been closed.
	ErrStoreClosed = errors.New("store closed")
)

// Task is a unit of work moving through the annotation pipeline.
type Task struct {
	// ID is the unique, immutable task identifier.
	ID string `json:"id"`

	// BatchID is the owning batch. Batch lifecycle is managed elsewhere;
	// the pipeline treats it as an opaque reference.
	BatchID string `json:"batch_id"`

	// PipelineStage is the stage the task currently sits at.
	PipelineStage pipeline.Stage `json:"pipeline_stage"`

	// Status is the task's position in the status machine.
	Status pipeline.Status `json:"status"`

	// ClaimedBy is the actor holding the claim. Empty exactly when the
	// status is pending or done.
	ClaimedBy string `json:"claimed_by_id,omitempty"`

	// Content is the opaque payload to be annotated. Never interpreted here.
	Content json.RawMessage `json:"content"`

	// CreatedAt orders the pending queue (FIFO).
	CreatedAt time.Time `json:"created_at"`
}

// Clone creates a deep copy of the task.
func (t *Task) Clone() *Task {
	clone := &Task{
		ID:            t.ID,
		BatchID:       t.BatchID,
		PipelineStage: t.PipelineStage,
		Status:        t.Status,
		ClaimedBy:     t.ClaimedBy,
		CreatedAt:     t.CreatedAt,
	}
	if t.Content != nil {
		clone.Content = make(json.RawMessage, len(t.Content))
		copy(clone.Content, t.Content)
	}
	return clone
}

// Validate checks required task fields.
func (t *Task) Validate() error {
	if t.ID == "" || t.BatchID == "" || t.PipelineStage == "" {
		return ErrInvalidTask
	}
	if !t.Status.Valid() {
		return ErrInvalidTask
	}
	return nil
}

// Annotation is one recorded judgment for one task at one stage.
// Annotations are append-only: edits create new rows, never mutations.
type Annotation struct {
	// ID is the unique annotation identifier.
	ID string `json:"id"`

	// TaskID is the owning task.
	TaskID string `json:"task_id"`

	// PipelineStage is the stage at which this annotation was produced.
	PipelineStage pipeline.Stage `json:"pipeline_stage"`

	// AnnotatorID is the actor who produced it.
	AnnotatorID string `json:"annotator_id"`

	// Response is the opaque judgment payload.
	Response json.RawMessage `json:"response"`

	// CreatedAt is when the annotation was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Clone creates a deep copy of the annotation.
func (a *Annotation) Clone() *Annotation {
	clone := &Annotation{
		ID:            a.ID,
		TaskID:        a.TaskID,
		PipelineStage: a.PipelineStage,
		AnnotatorID:   a.AnnotatorID,
		CreatedAt:     a.CreatedAt,
	}
	if a.Response != nil {
		clone.Response = make(json.RawMessage, len(a.Response))
		copy(clone.Response, a.Response)
	}
	return clone
}

// Validate checks required annotation fields.
func (a *Annotation) Validate() error {
	if a.ID == "" || a.TaskID == "" || a.PipelineStage == "" || a.AnnotatorID == "" {
		return ErrInvalidAnnotation
	}
	return nil
}

// SortField selects the ordering column for task listings.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByID        SortField = "id"
)

// ListFilter narrows and orders task listings.
type ListFilter struct {
	// Status filters by task status. Empty matches all.
	Status pipeline.Status

	// SortBy orders results. Defaults to created_at.
	SortBy SortField

	// Descending reverses the sort order.
	Descending bool
}

// TaskStore is the durable record of tasks. It is the only shared mutable
// resource in the pipeline; implementations must make ClaimOldestPending
// and UpdateFrom safe under concurrent callers.
type TaskStore interface {
	// Create stores a new task. Returns ErrTaskExists on an ID collision.
	Create(ctx context.Context, task *Task) error

	// Get retrieves a task by ID. Returns ErrTaskNotFound if absent.
	Get(ctx context.Context, id string) (*Task, error)

	// ClaimOldestPending atomically selects the oldest pending task
	// (created_at ascending, ties by id ascending) and transitions it to
	// claimed by actorID. The select-and-mark is a single atomic step: no
	// two concurrent calls can claim the same task. Returns ErrNoTask when
	// the pending queue is empty.
	ClaimOldestPending(ctx context.Context, actorID string) (*Task, error)

	// UpdateFrom writes the task's new state only if its stored status
	// still equals from and its stored claimant still equals claimant.
	// Returns ErrStaleStatus on a status mismatch, ErrStaleClaim when the
	// claim moved to someone else, ErrTaskNotFound if the task is gone.
	UpdateFrom(ctx context.Context, task *Task, from pipeline.Status, claimant string) error

	// ListByClaimant returns tasks currently claimed by actorID.
	ListByClaimant(ctx context.Context, actorID string) ([]*Task, error)

	// ListByStatus returns tasks in the given status, created_at ascending.
	ListByStatus(ctx context.Context, status pipeline.Status) ([]*Task, error)

	// List returns tasks matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Task, error)

	// Close releases resources held by the store.
	Close() error
}

// AnnotationStore is the append-only record of responses. Inserts never
// conflict, so no update exclusivity is needed.
type AnnotationStore interface {
	// Append records a new annotation. Annotations are immutable once
	// written.
	Append(ctx context.Context, ann *Annotation) error

	// ListByTask returns all annotations for a task, oldest first.
	// Returns an empty slice for a task with no annotations.
	ListByTask(ctx context.Context, taskID string) ([]*Annotation, error)

	// Close releases resources held by the store.
	Close() error
}

// claimOrder reports whether task a precedes task b in the pending queue:
// strict FIFO by creation time, ties broken by ID for determinism.
func claimOrder(a, b *Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
