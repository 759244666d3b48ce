package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/annoq/annoq/pipeline"
)

// Bucket names.
var (
	tasksBucket       = []byte("tasks")
	annotationsBucket = []byte("annotations")
)

// BoltStore implements TaskStore and AnnotationStore on a bbolt file.
// bbolt serializes write transactions, so the select-and-mark inside
// ClaimOldestPending is atomic without extra locking.
type BoltStore struct {
	db *bolt.DB
}

// Compile-time interface checks.
var (
	_ TaskStore       = (*BoltStore)(nil)
	_ AnnotationStore = (*BoltStore)(nil)
)

// OpenBolt opens (creating if needed) a bolt-backed store at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(tasksBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(annotationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Create stores a new task.
func (s *BoltStore) Create(ctx context.Context, task *Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tasksBucket)
		if b.Get([]byte(task.ID)) != nil {
			return ErrTaskExists
		}
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

// Get retrieves a task by ID.
func (s *BoltStore) Get(ctx context.Context, id string) (*Task, error) {
	var task *Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(tasksBucket).Get([]byte(id))
		if data == nil {
			return ErrTaskNotFound
		}
		t, err := decodeTask(data)
		if err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ClaimOldestPending atomically claims the oldest pending task for actorID.
// The whole scan-select-mark runs in one write transaction.
func (s *BoltStore) ClaimOldestPending(ctx context.Context, actorID string) (*Task, error) {
	var claimed *Task
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tasksBucket)

		var oldest *Task
		err := b.ForEach(func(_, data []byte) error {
			t, err := decodeTask(data)
			if err != nil {
				return err
			}
			if t.Status != pipeline.StatusPending {
				return nil
			}
			if oldest == nil || claimOrder(t, oldest) {
				oldest = t
			}
			return nil
		})
		if err != nil {
			return err
		}
		if oldest == nil {
			return ErrNoTask
		}

		oldest.Status = pipeline.StatusClaimed
		oldest.ClaimedBy = actorID
		data, err := json.Marshal(oldest)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(oldest.ID), data); err != nil {
			return err
		}
		claimed = oldest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateFrom writes the task only if its stored status still equals from
// and its stored claimant still equals claimant.
func (s *BoltStore) UpdateFrom(ctx context.Context, task *Task, from pipeline.Status, claimant string) error {
	if err := task.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tasksBucket)
		data := b.Get([]byte(task.ID))
		if data == nil {
			return ErrTaskNotFound
		}
		current, err := decodeTask(data)
		if err != nil {
			return err
		}
		if current.Status != from {
			return ErrStaleStatus
		}
		if current.ClaimedBy != claimant {
			return ErrStaleClaim
		}
		updated, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), updated)
	})
}

// ListByClaimant returns tasks currently claimed by actorID.
func (s *BoltStore) ListByClaimant(ctx context.Context, actorID string) ([]*Task, error) {
	var tasks []*Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tasksBucket).ForEach(func(_, data []byte) error {
			t, err := decodeTask(data)
			if err != nil {
				return err
			}
			if t.ClaimedBy == actorID && t.Status == pipeline.StatusClaimed {
				tasks = append(tasks, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortTasks(tasks, SortByCreatedAt, false)
	return tasks, nil
}

// ListByStatus returns tasks in the given status, oldest first.
func (s *BoltStore) ListByStatus(ctx context.Context, status pipeline.Status) ([]*Task, error) {
	return s.List(ctx, ListFilter{Status: status})
}

// List returns tasks matching the filter.
func (s *BoltStore) List(ctx context.Context, filter ListFilter) ([]*Task, error) {
	var tasks []*Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(tasksBucket).ForEach(func(_, data []byte) error {
			t, err := decodeTask(data)
			if err != nil {
				return err
			}
			if filter.Status != "" && t.Status != filter.Status {
				return nil
			}
			tasks = append(tasks, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortTasks(tasks, filter.SortBy, filter.Descending)
	return tasks, nil
}

// Append records a new annotation under the task's nested bucket, keyed by
// a monotonic sequence so listing preserves append order.
func (s *BoltStore) Append(ctx context.Context, ann *Annotation) error {
	if err := ann.Validate(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(annotationsBucket)
		b, err := parent.CreateBucketIfNotExists([]byte(ann.TaskID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(ann)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// ListByTask returns all annotations for a task, oldest first.
func (s *BoltStore) ListByTask(ctx context.Context, taskID string) ([]*Annotation, error) {
	anns := make([]*Annotation, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(annotationsBucket).Bucket([]byte(taskID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, data []byte) error {
			var ann Annotation
			if err := json.Unmarshal(data, &ann); err != nil {
				return fmt.Errorf("decode annotation: %w", err)
			}
			anns = append(anns, &ann)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return anns, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func decodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}
