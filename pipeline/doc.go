// Package pipeline defines the stage state machine for annotation tasks.
//
// A project configures an ordered list of stages (e.g. [L1, L2]). A task
// enters the pipeline pending at the first stage and moves through a fixed
// status cycle at each stage:
//
//	pending -> claimed -> in_review
//
// Approving a task under review either advances it to pending at the next
// stage (claimant cleared, task claimable again) or, at the last stage,
// terminates it at done. Stages never regress and nothing transitions out
// of done.
//
// The transition engine is a pure function with no I/O:
//
//	tr, err := pipeline.Next(stages, task.PipelineStage, task.Status, pipeline.OutcomeApprove)
//
// Persistence and ownership checks live in the queue and store packages.
package pipeline
