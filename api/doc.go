// Package api exposes the annotation queue over REST.
//
// Every route except /healthz requires Authorization: Bearer <token>;
// the Role Guard maps tokens to actors and the router enforces which
// role may call which endpoint. The queue service applies the remaining
// rules (ownership, task state), so a rater hitting a reviewer route
// fails here with 403 while a rater submitting someone else's task
// fails in the service with the same code.
//
// Routes:
//
//	GET  /queue/next                     rater     claim oldest pending (null when empty)
//	GET  /queue/my-tasks                 rater     tasks I hold
//	POST /queue/tasks/:id/submit         rater     submit response
//	POST /queue/tasks/:id/release        ops       return abandoned claim to queue
//	GET  /queue/review                   reviewer  tasks awaiting review
//	POST /queue/review/:id/approve       reviewer  accept response
//	POST /queue/review/:id/submit        reviewer  accept with edits
//	GET  /tasks                          ops       list/filter all tasks
//	POST /tasks                          ops       ingest a task into a batch
//	GET  /tasks/:id/annotations          any       annotation trail
//
// Errors render as the structured error JSON with the code's mapped
// HTTP status; claim polling past the actor's budget yields 429.
package api
