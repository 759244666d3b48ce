package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/annoq/annoq/errors"
	"github.com/annoq/annoq/events"
	"github.com/annoq/annoq/logging"
	"github.com/annoq/annoq/pipeline"
	"github.com/annoq/annoq/store"
)

// ErrNoTask is the sentinel for an empty pending queue. It re-exports the
// store sentinel so callers don't reach into the storage layer; it is a
// normal outcome of claiming, not a failure.
var ErrNoTask = store.ErrNoTask

// StageResolver returns the ordered stage list for a batch. Batches and
// projects are managed outside the pipeline; the resolver is the seam
// through which their configuration arrives.
type StageResolver func(batchID string) pipeline.Stages

// FixedStages returns a resolver that uses the same stage list for every
// batch.
func FixedStages(stages pipeline.Stages) StageResolver {
	return func(string) pipeline.Stages { return stages }
}

// Service orchestrates claiming, submission, and review. It owns every
// write to task status: the stores persist, the pipeline engine decides
// transitions, and role checks happen at the transport boundary so the
// state machine stays role-agnostic.
type Service struct {
	tasks       store.TaskStore
	annotations store.AnnotationStore
	stages      StageResolver
	bus         events.Bus
	log         *logging.Logger
	idGen       func() string
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBus sets the lifecycle event bus. Without it events are dropped.
func WithBus(bus events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l.WithComponent("queue") }
}

// WithIDGenerator sets a custom ID generator function.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.idGen = gen }
}

// WithClock sets a custom time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the task queue service.
func NewService(tasks store.TaskStore, annotations store.AnnotationStore, stages StageResolver, opts ...Option) *Service {
	s := &Service{
		tasks:       tasks,
		annotations: annotations,
		stages:      stages,
		log:         logging.New().WithComponent("queue"),
		idGen:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest creates a new task, pending at the batch's first configured
// stage. Batch ingestion is an ops concern; raters never create tasks.
func (s *Service) Ingest(ctx context.Context, batchID string, content json.RawMessage) (*store.Task, error) {
	if batchID == "" {
		return nil, errors.InvalidInput("batch_id is required")
	}
	stages := s.stages(batchID)
	if err := stages.Validate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "no valid stage list for batch "+batchID)
	}
	if content == nil {
		content = json.RawMessage("null")
	}

	task := &store.Task{
		ID:            s.idGen(),
		BatchID:       batchID,
		PipelineStage: stages.First(),
		Status:        pipeline.StatusPending,
		Content:       content,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, errors.Wrap(err, "creating task")
	}

	s.publish(events.Event{
		Subject: events.SubjectCreated,
		TaskID:  task.ID,
		BatchID: task.BatchID,
		Stage:   task.PipelineStage,
		Status:  task.Status,
	})
	return task, nil
}

// ClaimNext atomically claims the oldest pending task for the actor.
// Returns ErrNoTask when the pending queue is empty.
func (s *Service) ClaimNext(ctx context.Context, actorID string) (*store.Task, error) {
	if actorID == "" {
		return nil, errors.InvalidInput("actor id is required")
	}

	task, err := s.tasks.ClaimOldestPending(ctx, actorID)
	if stderrors.Is(err, store.ErrNoTask) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, errors.Wrap(err, "claiming next task", errors.WithActorID(actorID))
	}

	s.log.Claimed(task.ID, actorID)
	s.publish(events.Event{
		Subject: events.SubjectClaimed,
		TaskID:  task.ID,
		BatchID: task.BatchID,
		Stage:   task.PipelineStage,
		Status:  task.Status,
		ActorID: actorID,
	})
	return task, nil
}

// MyTasks returns the tasks currently claimed by the actor.
func (s *Service) MyTasks(ctx context.Context, actorID string) ([]*store.Task, error) {
	tasks, err := s.tasks.ListByClaimant(ctx, actorID)
	if err != nil {
		return nil, errors.Wrap(err, "listing claimed tasks", errors.WithActorID(actorID))
	}
	return tasks, nil
}

// Submit records the claimant's response for a claimed task and moves it
// to in_review. Only the current claimant may submit. Returns the updated
// task alongside the recorded annotation.
func (s *Service) Submit(ctx context.Context, taskID, actorID string, response json.RawMessage) (*store.Task, *store.Annotation, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	if task.Status != pipeline.StatusClaimed {
		return nil, nil, errors.InvalidState(taskID, "submit requires a claimed task, status is "+task.Status.String())
	}
	if task.ClaimedBy != actorID {
		return nil, nil, errors.NotClaimant(taskID, actorID)
	}

	tr, err := s.transition(task, pipeline.OutcomeSubmit)
	if err != nil {
		return nil, nil, err
	}

	updated := s.applyTransition(task, tr)
	if err := s.updateFrom(ctx, updated, pipeline.StatusClaimed, actorID); err != nil {
		// The claim moved between the ownership check and the write:
		// the actor is no longer the claimant.
		if stderrors.Is(err, store.ErrStaleClaim) {
			return nil, nil, errors.NotClaimant(taskID, actorID)
		}
		return nil, nil, err
	}

	ann, err := s.appendAnnotation(ctx, task, actorID, response)
	if err != nil {
		return nil, nil, err
	}

	s.log.Transition(taskID, pipeline.StatusClaimed.String(), updated.Status.String(), actorID)
	s.publish(events.Event{
		Subject: events.SubjectSubmitted,
		TaskID:  updated.ID,
		BatchID: updated.BatchID,
		Stage:   updated.PipelineStage,
		Status:  updated.Status,
		ActorID: actorID,
	})
	return updated, ann, nil
}

// Approve accepts the response under review. The rater's annotation
// stands as the record for the stage; no new annotation is created. At
// the final stage the task terminates at done, otherwise it returns to
// pending at the next stage and becomes claimable again.
func (s *Service) Approve(ctx context.Context, taskID, actorID string) (*store.Task, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status != pipeline.StatusInReview {
		return nil, errors.InvalidState(taskID, "approve requires a task in review, status is "+task.Status.String())
	}

	tr, err := s.transition(task, pipeline.OutcomeApprove)
	if err != nil {
		return nil, err
	}

	updated := s.applyTransition(task, tr)
	if err := s.updateFrom(ctx, updated, pipeline.StatusInReview, task.ClaimedBy); err != nil {
		return nil, err
	}

	s.log.Transition(taskID, pipeline.StatusInReview.String(), updated.Status.String(), actorID)
	s.publishApproval(updated, actorID)
	return updated, nil
}

// SubmitWithEdits records the reviewer's edited response as a new
// annotation, then applies the approve transition. The rater's original
// annotation remains in the trail untouched. Returns the updated task
// alongside the reviewer's annotation.
func (s *Service) SubmitWithEdits(ctx context.Context, taskID, actorID string, response json.RawMessage) (*store.Task, *store.Annotation, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	if task.Status != pipeline.StatusInReview {
		return nil, nil, errors.InvalidState(taskID, "review submit requires a task in review, status is "+task.Status.String())
	}

	tr, err := s.transition(task, pipeline.OutcomeApprove)
	if err != nil {
		return nil, nil, err
	}

	updated := s.applyTransition(task, tr)
	if err := s.updateFrom(ctx, updated, pipeline.StatusInReview, task.ClaimedBy); err != nil {
		return nil, nil, err
	}

	// The annotation is stamped with the stage the review happened at,
	// not the stage the task advanced to.
	ann, err := s.appendAnnotation(ctx, task, actorID, response)
	if err != nil {
		return nil, nil, err
	}

	s.log.Transition(taskID, pipeline.StatusInReview.String(), updated.Status.String(), actorID)
	s.publishApproval(updated, actorID)
	return updated, ann, nil
}

// Release manually returns an abandoned claim to the pending queue at the
// same stage. No automatic lease expiry exists; release is an ops action.
func (s *Service) Release(ctx context.Context, taskID, actorID string) (*store.Task, error) {
	task, err := s.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if task.Status != pipeline.StatusClaimed {
		return nil, errors.InvalidState(taskID, "release requires a claimed task, status is "+task.Status.String())
	}

	updated := task.Clone()
	updated.Status = pipeline.StatusPending
	updated.ClaimedBy = ""
	if err := s.updateFrom(ctx, updated, pipeline.StatusClaimed, task.ClaimedBy); err != nil {
		return nil, err
	}

	s.log.Transition(taskID, pipeline.StatusClaimed.String(), updated.Status.String(), actorID)
	s.publish(events.Event{
		Subject: events.SubjectReleased,
		TaskID:  updated.ID,
		BatchID: updated.BatchID,
		Stage:   updated.PipelineStage,
		Status:  updated.Status,
		ActorID: actorID,
	})
	return updated, nil
}

// ReviewQueue returns all tasks awaiting review, oldest first.
func (s *Service) ReviewQueue(ctx context.Context) ([]*store.Task, error) {
	tasks, err := s.tasks.ListByStatus(ctx, pipeline.StatusInReview)
	if err != nil {
		return nil, errors.Wrap(err, "listing review queue")
	}
	return tasks, nil
}

// List returns tasks matching the filter.
func (s *Service) List(ctx context.Context, filter store.ListFilter) ([]*store.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.InvalidInput("unknown status " + filter.Status.String())
	}
	switch filter.SortBy {
	case "", store.SortByCreatedAt, store.SortByID:
	default:
		return nil, errors.InvalidInput("unknown sort field " + string(filter.SortBy))
	}

	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "listing tasks")
	}
	return tasks, nil
}

// Annotations returns the annotation trail for a task, oldest first.
func (s *Service) Annotations(ctx context.Context, taskID string) ([]*store.Annotation, error) {
	if _, err := s.getTask(ctx, taskID); err != nil {
		return nil, err
	}

	anns, err := s.annotations.ListByTask(ctx, taskID)
	if err != nil {
		return nil, errors.Wrap(err, "listing annotations", errors.WithTaskID(taskID))
	}
	return anns, nil
}

// --- internals ---

func (s *Service) getTask(ctx context.Context, taskID string) (*store.Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if stderrors.Is(err, store.ErrTaskNotFound) {
		return nil, errors.NotFound("task "+taskID+" not found", errors.WithTaskID(taskID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading task", errors.WithTaskID(taskID))
	}
	return task, nil
}

func (s *Service) transition(task *store.Task, outcome pipeline.Outcome) (pipeline.Transition, error) {
	stages := s.stages(task.BatchID)
	tr, err := pipeline.Next(stages, task.PipelineStage, task.Status, outcome)
	if err != nil {
		return pipeline.Transition{}, errors.WrapWithCode(err, errors.ErrCodeInvalidState,
			"computing transition", errors.WithTaskID(task.ID))
	}
	return tr, nil
}

func (s *Service) applyTransition(task *store.Task, tr pipeline.Transition) *store.Task {
	updated := task.Clone()
	updated.Status = tr.Status
	updated.PipelineStage = tr.Stage
	if tr.ClearClaim {
		updated.ClaimedBy = ""
	}
	return updated
}

// updateFrom persists a transition with a compare-and-swap on status and
// claimant. A lost race surfaces as INVALID_STATE. The returned error
// keeps the store sentinel in its chain so Submit can map a moved claim
// to FORBIDDEN.
func (s *Service) updateFrom(ctx context.Context, task *store.Task, from pipeline.Status, claimant string) error {
	err := s.tasks.UpdateFrom(ctx, task, from, claimant)
	if stderrors.Is(err, store.ErrStaleStatus) {
		return errors.InvalidState(task.ID, "task status changed concurrently")
	}
	if stderrors.Is(err, store.ErrStaleClaim) {
		return errors.InvalidState(task.ID, "task claim changed concurrently", errors.WithCause(err))
	}
	if stderrors.Is(err, store.ErrTaskNotFound) {
		return errors.NotFound("task "+task.ID+" not found", errors.WithTaskID(task.ID))
	}
	if err != nil {
		return errors.Wrap(err, "updating task", errors.WithTaskID(task.ID))
	}
	return nil
}

func (s *Service) appendAnnotation(ctx context.Context, task *store.Task, actorID string, response json.RawMessage) (*store.Annotation, error) {
	if response == nil {
		response = json.RawMessage("null")
	}
	ann := &store.Annotation{
		ID:            s.idGen(),
		TaskID:        task.ID,
		PipelineStage: task.PipelineStage,
		AnnotatorID:   actorID,
		Response:      response,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.annotations.Append(ctx, ann); err != nil {
		return nil, errors.Wrap(err, "recording annotation", errors.WithTaskID(task.ID), errors.WithActorID(actorID))
	}
	return ann, nil
}

func (s *Service) publishApproval(task *store.Task, actorID string) {
	s.publish(events.Event{
		Subject: events.SubjectApproved,
		TaskID:  task.ID,
		BatchID: task.BatchID,
		Stage:   task.PipelineStage,
		Status:  task.Status,
		ActorID: actorID,
	})

	subject := events.SubjectAdvanced
	if task.Status == pipeline.StatusDone {
		subject = events.SubjectDone
	}
	s.publish(events.Event{
		Subject: subject,
		TaskID:  task.ID,
		BatchID: task.BatchID,
		Stage:   task.PipelineStage,
		Status:  task.Status,
		ActorID: actorID,
	})
}

// publish emits a lifecycle event. Best effort: the stores are the source
// of truth and a bus failure never fails the operation.
func (s *Service) publish(e events.Event) {
	if s.bus == nil {
		return
	}
	if err := events.Publish(s.bus, e); err != nil {
		s.log.Warn("event publish failed", map[string]interface{}{
			"subject": e.Subject,
			"task":    e.TaskID,
			"error":   err.Error(),
		})
	}
}
