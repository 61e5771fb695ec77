package discovery

import (
	"path/filepath"
	"sort"

	"upscale-manager/internal/catalog"
	"upscale-manager/internal/model"
	"upscale-manager/internal/runstore"
)

const (
	StateQueued          = "queued"
	StateFailedPermanent = "failed_permanent"
	StateNeedsRetry      = "needs_retry"
)

type StatusOptions struct {
	InputDir    string
	OutputRoot  string
	Container   string
	Extensions  []string
	Pattern     catalog.Pattern
	Checkpoints runstore.CheckpointStore
}

type StatusResult struct {
	OutputRoot string      `json:"output_root"`
	Rows       []JobStatus `json:"jobs"`
	Totals     StatusTotal `json:"totals"`
}

// JobStatus is derived from the artifacts in a job directory. job.json only
// contributes the last error and run id.
type JobStatus struct {
	Job        string `json:"job"`
	Stage      string `json:"stage"`
	Frames     int    `json:"frames"`
	Upscaled   int    `json:"upscaled"`
	Checkpoint int    `json:"checkpoint"`
	Audio      bool   `json:"audio"`
	Final      bool   `json:"final"`
	Permanent  bool   `json:"permanent,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

type StatusTotal struct {
	Jobs       int `json:"jobs"`
	Done       int `json:"done"`
	Queued     int `json:"queued"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	Frames     int `json:"frames"`
	Upscaled   int `json:"upscaled"`
}

// Percent is the share of frames with an enhanced output, 0..1.
func (s JobStatus) Percent() float64 {
	if s.Final {
		return 1
	}
	if s.Frames == 0 {
		return 0
	}
	return float64(s.Upscaled) / float64(s.Frames)
}

func Status(opts StatusOptions) (StatusResult, error) {
	if opts.Pattern.Prefix == "" {
		opts.Pattern = catalog.DefaultPattern()
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = runstore.FileCheckpoints{}
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}

	dirs, err := runstore.ListJobDirs(opts.OutputRoot)
	if err != nil {
		return StatusResult{}, err
	}
	seen := make(map[string]bool, len(dirs))
	rows := make([]JobStatus, 0, len(dirs))
	for _, dir := range dirs {
		name := filepath.Base(dir)
		seen[name] = true
		rows = append(rows, buildJobStatus(opts, name))
	}

	if opts.InputDir != "" {
		candidates, err := ListCandidates(opts.InputDir, opts.Extensions)
		if err != nil {
			return StatusResult{}, err
		}
		for _, src := range candidates {
			name := runstore.JobName(src)
			if seen[name] {
				continue
			}
			seen[name] = true
			rows = append(rows, JobStatus{Job: name, Stage: StateQueued})
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Job < rows[j].Job
	})

	totals := StatusTotal{}
	for _, r := range rows {
		totals.Jobs++
		totals.Frames += r.Frames
		totals.Upscaled += r.Upscaled
		switch r.Stage {
		case model.StageDone:
			totals.Done++
		case StateQueued:
			totals.Queued++
		case StateFailedPermanent, StateNeedsRetry:
			totals.Failed++
		default:
			totals.InProgress++
		}
	}
	return StatusResult{OutputRoot: opts.OutputRoot, Rows: rows, Totals: totals}, nil
}

func buildJobStatus(opts StatusOptions, name string) JobStatus {
	layout := runstore.NewJobLayout(opts.OutputRoot, name, opts.Container)
	row := JobStatus{
		Job:   name,
		Audio: runstore.Exists(layout.AudioPath()),
		Final: runstore.Exists(layout.FinalPath()),
	}
	row.Checkpoint = opts.Checkpoints.For(layout).Load()
	if frames, err := catalog.Load(layout.FramesDir(), opts.Pattern); err == nil {
		row.Frames = len(frames)
		if outputs, err := catalog.ListOutputs(layout.UpscaledDir()); err == nil {
			row.Upscaled = outputs.Count(frames)
		}
	}
	meta, hasMeta := runstore.ReadJobMeta(layout.Root)
	if hasMeta {
		row.RunID = meta.RunID
		row.UpdatedAt = meta.UpdatedAt
		row.Permanent = meta.Permanent
		row.LastError = meta.LastError
	}
	row.Stage = deriveStage(row, hasMeta && meta.Stage == model.StageFailed)
	return row
}

func deriveStage(row JobStatus, lastRunFailed bool) string {
	switch {
	case row.Final:
		return model.StageDone
	case row.Permanent:
		return StateFailedPermanent
	case lastRunFailed:
		return StateNeedsRetry
	case row.Frames == 0:
		return model.StageExtracting
	case row.Upscaled < row.Frames:
		return model.StageEnhancing
	default:
		return model.StageReassembling
	}
}
