// Package queue orchestrates the annotation task lifecycle: claiming
// pending tasks, recording submissions, and moving tasks through review.
//
// The service composes the leaf packages. Stores persist tasks and
// annotations, the pipeline engine computes transitions, and the event
// bus announces what happened. Status writes go through a
// compare-and-swap on the prior status so racing callers lose cleanly
// with an invalid-state error instead of corrupting the task.
//
// The service checks ownership and state, not roles. Which actor may
// call which operation is decided at the API boundary, keeping the
// lifecycle rules independent of the role model.
package queue
