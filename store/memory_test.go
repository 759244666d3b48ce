package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/annoq/annoq/pipeline"
)

func newTask(id, batch string, createdAt time.Time) *Task {
	return &Task{
		ID:            id,
		BatchID:       batch,
		PipelineStage: "L1",
		Status:        pipeline.StatusPending,
		Content:       json.RawMessage(`{"text":"annotate me"}`),
		CreatedAt:     createdAt,
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	task := newTask("t1", "b1", time.Now())
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != pipeline.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.BatchID != "b1" {
		t.Errorf("BatchID = %s, want b1", got.BatchID)
	}

	// Duplicate ID rejected
	if err := s.Create(ctx, newTask("t1", "b1", time.Now())); !errors.Is(err, ErrTaskExists) {
		t.Errorf("duplicate Create = %v, want ErrTaskExists", err)
	}

	// Unknown ID
	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Get(nope) = %v, want ErrTaskNotFound", err)
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Create(ctx, newTask("t1", "b1", time.Now())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, _ := s.Get(ctx, "t1")
	got.Status = pipeline.StatusDone
	got.Content[2] = 'X'

	again, _ := s.Get(ctx, "t1")
	if again.Status != pipeline.StatusPending {
		t.Error("mutating a returned task must not affect the store")
	}
	if string(again.Content) != `{"text":"annotate me"}` {
		t.Error("mutating returned content must not affect the store")
	}
}

func TestMemoryClaimFIFO(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	base := time.Now()
	// Insert out of order; claim order must follow created_at.
	if err := s.Create(ctx, newTask("t-new", "b1", base.Add(time.Minute))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, newTask("t-old", "b1", base)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first, err := s.ClaimOldestPending(ctx, "rater-a")
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if first.ID != "t-old" {
		t.Errorf("first claim = %s, want t-old", first.ID)
	}
	if first.Status != pipeline.StatusClaimed || first.ClaimedBy != "rater-a" {
		t.Errorf("claimed task = %s/%s, want claimed/rater-a", first.Status, first.ClaimedBy)
	}

	second, err := s.ClaimOldestPending(ctx, "rater-a")
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if second.ID != "t-new" {
		t.Errorf("second claim = %s, want t-new", second.ID)
	}

	// Queue empty: sentinel, not a failure
	if _, err := s.ClaimOldestPending(ctx, "rater-a"); !errors.Is(err, ErrNoTask) {
		t.Errorf("empty claim = %v, want ErrNoTask", err)
	}
}

func TestMemoryClaimTieBreakByID(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	at := time.Now()
	for _, id := range []string{"t-b", "t-a", "t-c"} {
		if err := s.Create(ctx, newTask(id, "b1", at)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	got, err := s.ClaimOldestPending(ctx, "rater-a")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if got.ID != "t-a" {
		t.Errorf("tie-break claim = %s, want t-a (id ascending)", got.ID)
	}
}

func TestMemoryClaimExclusivity(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	const tasks = 20
	const claimers = 50

	base := time.Now()
	for i := 0; i < tasks; i++ {
		if err := s.Create(ctx, newTask(fmt.Sprintf("t%03d", i), "b1", base.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	results := make(chan string, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(actor int) {
			defer wg.Done()
			task, err := s.ClaimOldestPending(ctx, fmt.Sprintf("actor-%d", actor))
			if errors.Is(err, ErrNoTask) {
				return
			}
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			results <- task.ID
		}(i)
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("task %s claimed by more than one actor", id)
		}
		seen[id] = true
	}
	if len(seen) != tasks {
		t.Errorf("claimed %d tasks, want %d (min of tasks and claimers)", len(seen), tasks)
	}
}

func TestMemoryUpdateFrom(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Create(ctx, newTask("t1", "b1", time.Now())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	claimed, err := s.ClaimOldestPending(ctx, "rater-a")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	claimed.Status = pipeline.StatusInReview
	if err := s.UpdateFrom(ctx, claimed, pipeline.StatusClaimed, "rater-a"); err != nil {
		t.Fatalf("UpdateFrom failed: %v", err)
	}

	// A second writer still holding the old view loses the race.
	stale := claimed.Clone()
	stale.Status = pipeline.StatusInReview
	if err := s.UpdateFrom(ctx, stale, pipeline.StatusClaimed, "rater-a"); !errors.Is(err, ErrStaleStatus) {
		t.Errorf("stale UpdateFrom = %v, want ErrStaleStatus", err)
	}

	claimed.ID = "ghost"
	if err := s.UpdateFrom(ctx, claimed, pipeline.StatusInReview, "rater-a"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("missing UpdateFrom = %v, want ErrTaskNotFound", err)
	}
}

func TestMemoryUpdateFromClaimMismatch(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Create(ctx, newTask("t1", "b1", time.Now())); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	claimed, err := s.ClaimOldestPending(ctx, "rater-a")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	// Status matches but the expected claimant does not: the write is
	// rejected and the stored task keeps its current claimant.
	claimed.Status = pipeline.StatusInReview
	if err := s.UpdateFrom(ctx, claimed, pipeline.StatusClaimed, "rater-b"); !errors.Is(err, ErrStaleClaim) {
		t.Errorf("mismatched UpdateFrom = %v, want ErrStaleClaim", err)
	}
	got, err := s.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != pipeline.StatusClaimed || got.ClaimedBy != "rater-a" {
		t.Errorf("task = %s/%s, want claimed/rater-a", got.Status, got.ClaimedBy)
	}
}

func TestMemoryListByClaimant(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Create(ctx, newTask(fmt.Sprintf("t%d", i), "b1", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := s.ClaimOldestPending(ctx, "rater-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := s.ClaimOldestPending(ctx, "rater-b"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	mine, err := s.ListByClaimant(ctx, "rater-a")
	if err != nil {
		t.Fatalf("ListByClaimant failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "t0" {
		t.Errorf("ListByClaimant(rater-a) = %v, want [t0]", taskIDs(mine))
	}

	none, err := s.ListByClaimant(ctx, "rater-z")
	if err != nil {
		t.Fatalf("ListByClaimant failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ListByClaimant(rater-z) = %v, want empty", taskIDs(none))
	}
}

func TestMemoryListFilterAndSort(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Create(ctx, newTask(fmt.Sprintf("t%d", i), "b1", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	if _, err := s.ClaimOldestPending(ctx, "rater-a"); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	pending, err := s.List(ctx, ListFilter{Status: pipeline.StatusPending})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending count = %d, want 2", len(pending))
	}

	all, err := s.List(ctx, ListFilter{SortBy: SortByID, Descending: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t2" || all[2].ID != "t0" {
		t.Errorf("descending by id = %v, want [t2 t1 t0]", taskIDs(all))
	}
}

func TestMemoryAnnotationsAppendOnly(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	first := &Annotation{
		ID: "a1", TaskID: "t1", PipelineStage: "L1", AnnotatorID: "rater-a",
		Response: json.RawMessage(`{"sentiment":"positive"}`), CreatedAt: now,
	}
	second := &Annotation{
		ID: "a2", TaskID: "t1", PipelineStage: "L1", AnnotatorID: "rev-1",
		Response: json.RawMessage(`{"sentiment":"neutral"}`), CreatedAt: now.Add(time.Second),
	}

	if err := s.Append(ctx, first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(ctx, second); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	anns, err := s.ListByTask(ctx, "t1")
	if err != nil {
		t.Fatalf("ListByTask failed: %v", err)
	}
	if len(anns) != 2 {
		t.Fatalf("annotation count = %d, want 2", len(anns))
	}
	if anns[0].ID != "a1" || anns[1].ID != "a2" {
		t.Errorf("annotation order = [%s %s], want [a1 a2]", anns[0].ID, anns[1].ID)
	}

	// Returned copies don't alias stored records
	anns[0].Response[2] = 'X'
	again, _ := s.ListByTask(ctx, "t1")
	if string(again[0].Response) != `{"sentiment":"positive"}` {
		t.Error("mutating a returned annotation must not affect the store")
	}

	empty, err := s.ListByTask(ctx, "t-none")
	if err != nil {
		t.Fatalf("ListByTask failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("annotations for unknown task = %d, want 0", len(empty))
	}
}

func TestMemoryValidation(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	if err := s.Create(ctx, &Task{ID: "t1"}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("Create(incomplete) = %v, want ErrInvalidTask", err)
	}
	if err := s.Append(ctx, &Annotation{ID: "a1"}); !errors.Is(err, ErrInvalidAnnotation) {
		t.Errorf("Append(incomplete) = %v, want ErrInvalidAnnotation", err)
	}
}

func TestMemoryClosed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()
	ctx := context.Background()

	if err := s.Create(ctx, newTask("t1", "b1", time.Now())); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Create after Close = %v, want ErrStoreClosed", err)
	}
	if _, err := s.ClaimOldestPending(ctx, "a"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Claim after Close = %v, want ErrStoreClosed", err)
	}
	// Double close is a no-op
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

// Writers racing Close must either complete or observe ErrStoreClosed,
// never write into the released maps.
func TestMemoryCloseDuringWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("t-%d-%d", n, j)
				err := s.Create(ctx, newTask(id, "b1", time.Now()))
				if err != nil && !errors.Is(err, ErrStoreClosed) {
					t.Errorf("Create(%s) = %v, want nil or ErrStoreClosed", id, err)
					return
				}
			}
		}(i)
	}
	close(start)
	s.Close()
	wg.Wait()
}

func taskIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
