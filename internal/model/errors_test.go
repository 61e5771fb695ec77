package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestJobErrorClassification(t *testing.T) {
	err := fmt.Errorf("job clip: %w", NewJobError(StageExtracting, ReasonNoFrames, true, ErrEmptyCatalog))
	if !IsPermanent(err) {
		t.Fatal("expected wrapped empty-catalog error to be permanent")
	}
	if !errors.Is(err, ErrEmptyCatalog) {
		t.Fatal("expected errors.Is to reach ErrEmptyCatalog")
	}
	if got := ReasonOf(err); got != ReasonNoFrames {
		t.Fatalf("unexpected reason: got %q want %q", got, ReasonNoFrames)
	}

	resumable := NewJobError(StageReassembling, ReasonReassembleFailed, false, errors.New("ffmpeg exit 1"))
	if IsPermanent(resumable) {
		t.Fatal("reassembly failure must stay resumable")
	}
	if IsPermanent(errors.New("plain")) {
		t.Fatal("plain errors are not permanent")
	}
}

func TestFrameStatsAdd(t *testing.T) {
	var s FrameStats
	s.Add(FrameOutcome{Kind: OutcomeSuccess})
	s.Add(FrameOutcome{Kind: OutcomeSuccess, UsedFallback: true})
	s.Add(FrameOutcome{Kind: OutcomeSkipped})
	s.Add(FrameOutcome{Kind: OutcomeToolFailure})
	s.Add(FrameOutcome{Kind: OutcomeTimeout, UsedFallback: true})

	if s.Succeeded != 2 || s.Skipped != 1 || s.Failed != 1 || s.TimedOut != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.Fallbacks != 2 {
		t.Fatalf("expected two fallbacks, got %d", s.Fallbacks)
	}
	if s.Unproduced() != 2 {
		t.Fatalf("expected two unproduced frames, got %d", s.Unproduced())
	}
}
