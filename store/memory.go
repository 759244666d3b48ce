package store

import (
	"context"
	"sort"
	"sync"

	"github.com/annoq/annoq/pipeline"
)

// MemoryStore implements TaskStore and AnnotationStore using in-memory maps.
// Useful for testing and single-process scenarios. All mutating task
// operations run under one write lock, which makes the select-and-mark in
// ClaimOldestPending a single atomic step.
type MemoryStore struct {
	mu          sync.RWMutex
	tasks       map[string]*Task
	annotations map[string][]*Annotation // task ID -> annotations, append order
	closed      bool                     // guarded by mu
}

// Compile-time interface checks.
var (
	_ TaskStore       = (*MemoryStore)(nil)
	_ AnnotationStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:       make(map[string]*Task),
		annotations: make(map[string][]*Annotation),
	}
}

// Create stores a new task.
func (s *MemoryStore) Create(ctx context.Context, task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.tasks[task.ID]; exists {
		return ErrTaskExists
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Get retrieves a task by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	task, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// ClaimOldestPending atomically claims the oldest pending task for actorID.
func (s *MemoryStore) ClaimOldestPending(ctx context.Context, actorID string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var oldest *Task
	for _, task := range s.tasks {
		if task.Status != pipeline.StatusPending {
			continue
		}
		if oldest == nil || claimOrder(task, oldest) {
			oldest = task
		}
	}
	if oldest == nil {
		return nil, ErrNoTask
	}

	// Mark while still holding the write lock: no other claimer can
	// observe the task as pending between select and mark.
	oldest.Status = pipeline.StatusClaimed
	oldest.ClaimedBy = actorID
	return oldest.Clone(), nil
}

// UpdateFrom writes the task only if its stored status still equals from
// and its stored claimant still equals claimant.
func (s *MemoryStore) UpdateFrom(ctx context.Context, task *Task, from pipeline.Status, claimant string) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	current, ok := s.tasks[task.ID]
	if !ok {
		return ErrTaskNotFound
	}
	if current.Status != from {
		return ErrStaleStatus
	}
	if current.ClaimedBy != claimant {
		return ErrStaleClaim
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// ListByClaimant returns tasks currently claimed by actorID.
func (s *MemoryStore) ListByClaimant(ctx context.Context, actorID string) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var tasks []*Task
	for _, task := range s.tasks {
		if task.ClaimedBy == actorID && task.Status == pipeline.StatusClaimed {
			tasks = append(tasks, task.Clone())
		}
	}
	sortTasks(tasks, SortByCreatedAt, false)
	return tasks, nil
}

// ListByStatus returns tasks in the given status, oldest first.
func (s *MemoryStore) ListByStatus(ctx context.Context, status pipeline.Status) ([]*Task, error) {
	return s.List(ctx, ListFilter{Status: status})
}

// List returns tasks matching the filter.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var tasks []*Task
	for _, task := range s.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		tasks = append(tasks, task.Clone())
	}
	sortTasks(tasks, filter.SortBy, filter.Descending)
	return tasks, nil
}

// Append records a new annotation.
func (s *MemoryStore) Append(ctx context.Context, ann *Annotation) error {
	if err := ann.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.annotations[ann.TaskID] = append(s.annotations[ann.TaskID], ann.Clone())
	return nil
}

// ListByTask returns all annotations for a task, oldest first.
func (s *MemoryStore) ListByTask(ctx context.Context, taskID string) ([]*Annotation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	anns := s.annotations[taskID]
	result := make([]*Annotation, 0, len(anns))
	for _, ann := range anns {
		result = append(result, ann.Clone())
	}
	return result, nil
}

// Close shuts down the store. The closed flag flips under the same lock
// the accessors hold, so an in-flight write either completes before the
// maps are released or observes ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.tasks = nil
	s.annotations = nil
	return nil
}

// sortTasks orders tasks in place for listings.
func sortTasks(tasks []*Task, by SortField, descending bool) {
	less := func(i, j int) bool {
		return claimOrder(tasks[i], tasks[j])
	}
	if by == SortByID {
		less = func(i, j int) bool {
			return tasks[i].ID < tasks[j].ID
		}
	}
	if descending {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.Slice(tasks, less)
}
