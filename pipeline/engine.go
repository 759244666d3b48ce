package pipeline

import "fmt"

// Outcome is the action applied to a task by the queue service.
type Outcome int

const (
	// OutcomeSubmit is a rater submitting a response for a claimed task.
	OutcomeSubmit Outcome = iota

	// OutcomeApprove is a reviewer accepting the response under review.
	// Submit-with-edits uses the same transition; the extra annotation is
	// the caller's concern.
	OutcomeApprove
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSubmit:
		return "submit"
	case OutcomeApprove:
		return "approve"
	default:
		return "unknown"
	}
}

// Transition is the computed next state for a task.
type Transition struct {
	// Status is the task's next status.
	Status Status

	// Stage is the task's next pipeline stage.
	Stage Stage

	// ClearClaim indicates the claimant must be reset to null.
	ClearClaim bool
}

// Next computes the task state that follows applying outcome to a task at
// the given status and stage. It is a pure function: no I/O, deterministic,
// and the only authority on the status machine:
//
//	pending -> claimed -> in_review -> pending (next stage) | done (last stage)
//
// Stages never regress. Returns ErrUnknownStage if current is not in stages
// and ErrInvalidTransition if the status does not permit the outcome.
func Next(stages Stages, current Stage, status Status, outcome Outcome) (Transition, error) {
	if err := stages.Validate(); err != nil {
		return Transition{}, err
	}
	if !stages.Contains(current) {
		return Transition{}, fmt.Errorf("%w: %q", ErrUnknownStage, current)
	}

	switch outcome {
	case OutcomeSubmit:
		if status != StatusClaimed {
			return Transition{}, fmt.Errorf("%w: submit requires claimed, task is %s", ErrInvalidTransition, status)
		}
		return Transition{Status: StatusInReview, Stage: current}, nil

	case OutcomeApprove:
		if status != StatusInReview {
			return Transition{}, fmt.Errorf("%w: approve requires in_review, task is %s", ErrInvalidTransition, status)
		}
		if stages.IsLast(current) {
			return Transition{Status: StatusDone, Stage: current, ClearClaim: true}, nil
		}
		next, _ := stages.After(current)
		return Transition{Status: StatusPending, Stage: next, ClearClaim: true}, nil

	default:
		return Transition{}, fmt.Errorf("%w: unknown outcome %d", ErrInvalidTransition, outcome)
	}
}
