package model

import "testing"

func TestCanTransition_AllowsPipelineOrder(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StageExtracting},
		{"", StageEnhancing},
		{"", StageArchiving},
		{StageExtracting, StageEnhancing},
		{StageEnhancing, StageReassembling},
		{StageReassembling, StageArchiving},
		{StageArchiving, StageDone},
		{StageExtracting, StageFailed},
		{StageEnhancing, StageFailed},
		{StageReassembling, StageFailed},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StageExtracting, StageReassembling},
		{StageEnhancing, StageExtracting},
		{StageArchiving, StageFailed},
		{StageDone, StageExtracting},
		{StageFailed, StageEnhancing},
		{"not_a_stage", StageEnhancing},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJobStage(t *testing.T) {
	job := Job{Name: "clip"}
	if err := TransitionJobStage(&job, StageEnhancing); err != nil {
		t.Fatalf("unexpected transition error: %v", err)
	}
	if err := TransitionJobStage(&job, StageDone); err == nil {
		t.Fatal("expected enhancing -> done to fail")
	}
	if job.Stage != StageEnhancing {
		t.Fatalf("stage should be unchanged after rejected transition, got %q", job.Stage)
	}
	if IsTerminalStage(job.Stage) {
		t.Fatal("enhancing must not be terminal")
	}
}
