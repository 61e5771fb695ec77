package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCatalog = errors.New("no frames found")
	ErrInterrupted  = errors.New("interrupted by shutdown request")
)

const (
	ReasonNoFrames             = "no_frames"
	ReasonExtractFailed        = "extract_failed"
	ReasonNoOutputs            = "no_outputs"
	ReasonFailureRatioExceeded = "failure_ratio_exceeded"
	ReasonReassembleFailed     = "reassemble_failed"
	ReasonInterrupted          = "interrupted"
	ReasonStorage              = "storage"
)

// JobError aborts a single job. Permanent errors are never retried
// automatically; everything else is picked up again on the next pass.
type JobError struct {
	Stage     string
	Reason    string
	Permanent bool
	Err       error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed (%s)", e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Reason, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func NewJobError(stage, reason string, permanent bool, err error) *JobError {
	return &JobError{Stage: stage, Reason: reason, Permanent: permanent, Err: err}
}

func IsPermanent(err error) bool {
	var je *JobError
	if errors.As(err, &je) {
		return je.Permanent
	}
	return false
}

func ReasonOf(err error) string {
	var je *JobError
	if errors.As(err, &je) {
		return je.Reason
	}
	return ""
}
