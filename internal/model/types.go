package model

import "time"

// Job is one source video moving through the pipeline.
type Job struct {
	Name       string
	SourcePath string
	WorkDir    string
	Stage      string
	Frames     int
	FrameRate  string
}

// Frame is one numbered still extracted from a job's source.
type Frame struct {
	Index  int // 1-based position in the catalog
	Number int // number embedded in the file name
	Name   string
	Path   string
}

const (
	OutcomeSuccess     = "success"
	OutcomeToolFailure = "tool_failure"
	OutcomeTimeout     = "timeout"
	OutcomeSkipped     = "skipped"
)

type FrameOutcome struct {
	Kind         string
	Message      string
	Duration     time.Duration
	UsedFallback bool
}

func (o FrameOutcome) Produced() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeSkipped
}

// JobMeta is the informational job.json record kept in each job directory.
// Stage is re-derived from artifacts on every run; this file only reports.
type JobMeta struct {
	Name        string `json:"name"`
	SourcePath  string `json:"source_path"`
	RunID       string `json:"run_id"`
	StartedAt   string `json:"started_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	Stage       string `json:"stage"`
	FrameRate   string `json:"frame_rate,omitempty"`
	TotalFrames int    `json:"total_frames"`
	Succeeded   int    `json:"succeeded"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	TimedOut    int    `json:"timed_out"`
	Fallbacks   int    `json:"fallbacks"`
	FinalPath   string `json:"final_path,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Permanent   bool   `json:"permanent,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type JobResult struct {
	Name      string
	Stage     string
	Resumable bool
	Stats     FrameStats
	FinalPath string
	Archived  bool
}

type FrameStats struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	TimedOut  int
	Fallbacks int
}

func (s *FrameStats) Add(o FrameOutcome) {
	switch o.Kind {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeToolFailure:
		s.Failed++
	case OutcomeTimeout:
		s.TimedOut++
	}
	if o.UsedFallback {
		s.Fallbacks++
	}
}

func (s FrameStats) Unproduced() int {
	return s.Failed + s.TimedOut
}
