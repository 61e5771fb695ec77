package model

import "fmt"

const (
	StageExtracting   = "extracting"
	StageEnhancing    = "enhancing"
	StageReassembling = "reassembling"
	StageArchiving    = "archiving"
	StageDone         = "done"
	StageFailed       = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StageExtracting:   true,
		StageEnhancing:    true,
		StageReassembling: true,
		StageArchiving:    true, // final video already present
		StageFailed:       true,
	},
	StageExtracting: {
		StageEnhancing: true,
		StageFailed:    true,
	},
	StageEnhancing: {
		StageReassembling: true,
		StageFailed:       true,
	},
	StageReassembling: {
		StageArchiving: true,
		StageFailed:    true,
	},
	StageArchiving: {
		StageDone: true, // archive move failures do not revert the job
	},
	StageDone:   {},
	StageFailed: {},
}

func IsKnownStage(stage string) bool {
	_, ok := allowedTransitions[stage]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func IsTerminalStage(stage string) bool {
	return stage == StageDone || stage == StageFailed
}

func TransitionJobStage(job *Job, to string) error {
	from := job.Stage
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid job stage transition: %q -> %q (job=%s)", from, to, job.Name)
	}
	job.Stage = to
	return nil
}
