package pipeline

import (
	"errors"
	"testing"
)

func TestStagesValidate(t *testing.T) {
	tests := []struct {
		name    string
		stages  Stages
		wantErr error
	}{
		{"single", Stages{"L1"}, nil},
		{"two", Stages{"L1", "L2"}, nil},
		{"empty list", Stages{}, ErrNoStages},
		{"blank label", Stages{"L1", ""}, ErrEmptyStage},
		{"duplicate", Stages{"L1", "L2", "L1"}, ErrDuplicateStage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stages.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStagesNavigation(t *testing.T) {
	stages := Stages{"L1", "L2", "L3"}

	if stages.First() != "L1" {
		t.Errorf("First() = %s, want L1", stages.First())
	}
	if !stages.IsLast("L3") {
		t.Error("IsLast(L3) should be true")
	}
	if stages.IsLast("L1") {
		t.Error("IsLast(L1) should be false")
	}
	if stages.IsLast("L9") {
		t.Error("IsLast of unknown stage should be false")
	}

	next, ok := stages.After("L1")
	if !ok || next != "L2" {
		t.Errorf("After(L1) = %s, %v; want L2, true", next, ok)
	}
	if _, ok := stages.After("L3"); ok {
		t.Error("After(last) should report not ok")
	}
	if _, ok := stages.After("L9"); ok {
		t.Error("After(unknown) should report not ok")
	}
}

func TestNextSubmit(t *testing.T) {
	stages := Stages{"L1", "L2"}

	tr, err := Next(stages, "L1", StatusClaimed, OutcomeSubmit)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if tr.Status != StatusInReview {
		t.Errorf("Status = %s, want in_review", tr.Status)
	}
	if tr.Stage != "L1" {
		t.Errorf("Stage = %s, want L1 (unchanged)", tr.Stage)
	}
	if tr.ClearClaim {
		t.Error("submit should keep the claimant")
	}
}

func TestNextSubmitWrongStatus(t *testing.T) {
	stages := Stages{"L1"}
	for _, status := range []Status{StatusPending, StatusInReview, StatusDone} {
		_, err := Next(stages, "L1", status, OutcomeSubmit)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("submit from %s: err = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestNextApproveAdvancesStage(t *testing.T) {
	stages := Stages{"L1", "L2"}

	tr, err := Next(stages, "L1", StatusInReview, OutcomeApprove)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if tr.Status != StatusPending {
		t.Errorf("Status = %s, want pending (more stages remain)", tr.Status)
	}
	if tr.Stage != "L2" {
		t.Errorf("Stage = %s, want L2", tr.Stage)
	}
	if !tr.ClearClaim {
		t.Error("advancing must clear the claimant")
	}
}

func TestNextApproveLastStage(t *testing.T) {
	stages := Stages{"L1", "L2"}

	tr, err := Next(stages, "L2", StatusInReview, OutcomeApprove)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if tr.Status != StatusDone {
		t.Errorf("Status = %s, want done", tr.Status)
	}
	if tr.Stage != "L2" {
		t.Errorf("Stage = %s, want L2", tr.Stage)
	}
	if !tr.ClearClaim {
		t.Error("completion must clear the claimant")
	}
}

func TestNextApproveWrongStatus(t *testing.T) {
	stages := Stages{"L1"}
	for _, status := range []Status{StatusPending, StatusClaimed, StatusDone} {
		_, err := Next(stages, "L1", status, OutcomeApprove)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("approve from %s: err = %v, want ErrInvalidTransition", status, err)
		}
	}
}

func TestNextUnknownStage(t *testing.T) {
	_, err := Next(Stages{"L1", "L2"}, "L9", StatusClaimed, OutcomeSubmit)
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("err = %v, want ErrUnknownStage", err)
	}
}

func TestNextInvalidStageList(t *testing.T) {
	_, err := Next(Stages{}, "L1", StatusClaimed, OutcomeSubmit)
	if !errors.Is(err, ErrNoStages) {
		t.Errorf("err = %v, want ErrNoStages", err)
	}
}

func TestSingleStageFullCycle(t *testing.T) {
	stages := Stages{"L1"}

	tr, err := Next(stages, "L1", StatusClaimed, OutcomeSubmit)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	tr, err = Next(stages, tr.Stage, tr.Status, OutcomeApprove)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if tr.Status != StatusDone {
		t.Errorf("single-stage approve should reach done, got %s", tr.Status)
	}
}
