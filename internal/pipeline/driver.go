package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"upscale-manager/internal/catalog"
	"upscale-manager/internal/ffmpeg"
	"upscale-manager/internal/metrics"
	"upscale-manager/internal/model"
	"upscale-manager/internal/runstore"
)

type Options struct {
	OutputRoot      string
	Container       string
	Pattern         catalog.Pattern
	Executor        ExecutorOptions
	MaxFailureRatio float64
	Checkpoints     runstore.CheckpointStore
	Progress        io.Writer
	LiveProgress    bool
	Logger          *slog.Logger
}

// Driver runs one job at a time through extract, enhance, reassemble and
// archive. Where a job stands is re-derived from the artifacts on disk
// every time Run is called.
type Driver struct {
	opts     Options
	media    Media
	enhancer Enhancer
	now      func() time.Time
}

func NewDriver(opts Options, media Media, enhancer Enhancer) *Driver {
	if opts.Pattern.Prefix == "" {
		opts.Pattern = catalog.DefaultPattern()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = runstore.FileCheckpoints{Log: opts.Logger}
	}
	return &Driver{
		opts:     opts,
		media:    media,
		enhancer: enhancer,
		now:      time.Now,
	}
}

func (d *Driver) Layout(sourcePath string) runstore.JobLayout {
	return runstore.NewJobLayout(d.opts.OutputRoot, runstore.JobName(sourcePath), d.opts.Container)
}

type jobRun struct {
	job    model.Job
	layout runstore.JobLayout
	meta   model.JobMeta
	res    model.JobResult
	log    *slog.Logger
}

func (d *Driver) Run(ctx context.Context, sourcePath string) (model.JobResult, error) {
	layout := d.Layout(sourcePath)
	runID := uuid.NewString()
	r := &jobRun{
		job: model.Job{
			Name:       layout.Name,
			SourcePath: sourcePath,
			WorkDir:    layout.Root,
		},
		layout: layout,
		res:    model.JobResult{Name: layout.Name},
		log:    d.opts.Logger.With("job", layout.Name, "run_id", runID),
	}
	prev, _ := runstore.ReadJobMeta(layout.Root)
	r.meta = model.JobMeta{
		Name:        layout.Name,
		SourcePath:  sourcePath,
		RunID:       runID,
		StartedAt:   d.now().UTC().Format(time.RFC3339),
		FrameRate:   prev.FrameRate,
		TotalFrames: prev.TotalFrames,
	}
	defer metrics.ForgetJob(layout.Name)

	if runstore.Exists(layout.FinalPath()) {
		r.log.Info("final video already present", "path", layout.FinalPath())
		r.res.FinalPath = layout.FinalPath()
		return d.finish(r)
	}

	if err := runstore.Mkdir(layout.Root); err != nil {
		return d.fail(r, model.NewJobError(model.StageExtracting, model.ReasonStorage, false, err))
	}

	if catalog.HasFrames(layout.FramesDir(), d.opts.Pattern) {
		r.log.Info("frames already extracted, skipping extraction")
	} else {
		if err := d.enter(r, model.StageExtracting); err != nil {
			return r.res, err
		}
		if err := d.extractFrames(ctx, r); err != nil {
			return d.fail(r, err)
		}
	}
	d.extractAudio(ctx, r)
	d.probeFrameRate(ctx, r)

	frames, err := catalog.Load(layout.FramesDir(), d.opts.Pattern)
	if err != nil {
		permanent := errors.Is(err, model.ErrEmptyCatalog)
		reason := model.ReasonNoFrames
		if !permanent {
			reason = model.ReasonStorage
		}
		return d.fail(r, model.NewJobError(model.StageExtracting, reason, permanent, err))
	}
	r.job.Frames = len(frames)
	r.meta.TotalFrames = len(frames)
	r.res.Stats.Total = len(frames)

	if err := d.enter(r, model.StageEnhancing); err != nil {
		return r.res, err
	}
	if err := d.enhance(ctx, r, frames); err != nil {
		return d.fail(r, err)
	}
	if ctx.Err() != nil {
		return d.fail(r, model.NewJobError(model.StageEnhancing, model.ReasonInterrupted, false, model.ErrInterrupted))
	}
	if err := d.checkOutputs(r, frames); err != nil {
		return d.fail(r, err)
	}

	if err := d.enter(r, model.StageReassembling); err != nil {
		return r.res, err
	}
	if err := d.reassemble(ctx, r, frames); err != nil {
		return d.fail(r, err)
	}
	r.res.FinalPath = layout.FinalPath()
	r.meta.FinalPath = layout.FinalPath()
	return d.finish(r)
}

func (d *Driver) enter(r *jobRun, stage string) error {
	if err := model.TransitionJobStage(&r.job, stage); err != nil {
		return err
	}
	r.res.Stage = stage
	r.meta.Stage = stage
	metrics.StageTransitions.WithLabelValues(stage).Inc()
	r.log.Info("stage", "stage", stage)
	d.saveMeta(r)
	return nil
}

func (d *Driver) saveMeta(r *jobRun) {
	if !runstore.Exists(r.layout.Root) {
		return
	}
	if err := runstore.SaveJobMeta(r.layout.Root, r.meta); err != nil {
		r.log.Warn("write job meta failed", "error", err)
	}
}

func (d *Driver) fail(r *jobRun, err error) (model.JobResult, error) {
	var je *model.JobError
	if !errors.As(err, &je) {
		je = model.NewJobError(r.job.Stage, model.ReasonStorage, false, err)
	}
	if tErr := model.TransitionJobStage(&r.job, model.StageFailed); tErr != nil {
		r.log.Warn("unexpected failure transition", "error", tErr)
		r.job.Stage = model.StageFailed
	}
	r.res.Stage = model.StageFailed
	r.res.Resumable = !je.Permanent
	r.meta.Stage = model.StageFailed
	r.meta.LastError = truncate(je.Error(), 1000)
	r.meta.Reason = je.Reason
	r.meta.Permanent = je.Permanent
	r.meta = withStats(r.meta, r.res.Stats)
	d.saveMeta(r)

	result := "failed"
	switch {
	case errors.Is(err, model.ErrInterrupted):
		result = "interrupted"
		r.log.Warn("job interrupted, progress saved", "stage", je.Stage)
	case je.Permanent:
		result = "failed_permanent"
		r.log.Error("job failed permanently", "stage", je.Stage, "reason", je.Reason, "error", je.Err)
	default:
		r.log.Error("job failed, will resume on a later pass", "stage", je.Stage, "reason", je.Reason, "error", je.Err)
	}
	metrics.JobsTotal.WithLabelValues(result).Inc()
	return r.res, je
}

func (d *Driver) finish(r *jobRun) (model.JobResult, error) {
	if err := d.enter(r, model.StageArchiving); err != nil {
		return r.res, err
	}
	r.res.Archived = d.archiveSource(r)

	if err := d.enter(r, model.StageDone); err != nil {
		return r.res, err
	}
	r.meta = withStats(r.meta, r.res.Stats)
	r.meta.LastError = ""
	r.meta.Reason = ""
	r.meta.Permanent = false
	r.meta.CompletedAt = d.now().UTC().Format(time.RFC3339)
	d.saveMeta(r)
	metrics.JobsTotal.WithLabelValues("done").Inc()
	r.log.Info("job done",
		"final", r.res.FinalPath,
		"succeeded", r.res.Stats.Succeeded,
		"skipped", r.res.Stats.Skipped,
		"failed", r.res.Stats.Unproduced(),
	)
	return r.res, nil
}

func (d *Driver) extractFrames(ctx context.Context, r *jobRun) error {
	partial := r.layout.PartialFramesDir()
	if err := os.RemoveAll(partial); err != nil {
		return model.NewJobError(model.StageExtracting, model.ReasonStorage, false, err)
	}
	r.log.Info("extracting frames", "source", r.job.SourcePath)
	if err := d.media.ExtractFrames(ctx, r.job.SourcePath, partial, d.opts.Pattern.Template()); err != nil {
		_ = os.RemoveAll(partial)
		return model.NewJobError(model.StageExtracting, model.ReasonExtractFailed, false, err)
	}
	if err := os.RemoveAll(r.layout.FramesDir()); err != nil {
		return model.NewJobError(model.StageExtracting, model.ReasonStorage, false, err)
	}
	if err := os.Rename(partial, r.layout.FramesDir()); err != nil {
		return model.NewJobError(model.StageExtracting, model.ReasonStorage, false, err)
	}
	return nil
}

// extractAudio never fails the job; without an audio artifact the final
// video is muxed video-only.
func (d *Driver) extractAudio(ctx context.Context, r *jobRun) {
	if runstore.Exists(r.layout.AudioPath()) {
		return
	}
	partial := r.layout.PartialAudioPath()
	_ = os.Remove(partial)
	if err := d.media.ExtractAudio(ctx, r.job.SourcePath, partial); err != nil {
		_ = os.Remove(partial)
		r.log.Warn("audio extraction failed, continuing without audio", "error", err)
		return
	}
	if err := os.Rename(partial, r.layout.AudioPath()); err != nil {
		r.log.Warn("audio extraction failed, continuing without audio", "error", err)
	}
}

func (d *Driver) probeFrameRate(ctx context.Context, r *jobRun) {
	rate, err := d.media.ProbeFrameRate(ctx, r.job.SourcePath)
	switch {
	case err == nil:
		r.job.FrameRate = rate
	case r.meta.FrameRate != "":
		r.job.FrameRate = r.meta.FrameRate
		r.log.Warn("frame rate probe failed, reusing recorded rate", "frame_rate", r.job.FrameRate, "error", err)
	default:
		r.job.FrameRate = ffmpeg.DefaultFrameRate
		r.log.Warn("frame rate probe failed, using default", "frame_rate", r.job.FrameRate, "error", err)
	}
	r.meta.FrameRate = r.job.FrameRate
}

func (d *Driver) enhance(ctx context.Context, r *jobRun, frames []model.Frame) error {
	layout := r.layout
	if err := os.RemoveAll(layout.InflightDir()); err != nil {
		return model.NewJobError(model.StageEnhancing, model.ReasonStorage, false, err)
	}
	if err := runstore.Mkdir(layout.InflightDir()); err != nil {
		return model.NewJobError(model.StageEnhancing, model.ReasonStorage, false, err)
	}

	cp := observedCheckpoint{Checkpoint: d.opts.Checkpoints.For(layout), job: layout.Name}
	loaded := cp.Load()
	outputs, err := catalog.ListOutputs(layout.UpscaledDir())
	if err != nil {
		return model.NewJobError(model.StageEnhancing, model.ReasonStorage, false, err)
	}
	total := len(frames)
	start := runstore.ClampStart(loaded, total)
	if first := outputs.FirstMissing(frames); first < start {
		r.log.Info("earlier frames are missing outputs, resuming from the first gap", "checkpoint", loaded, "from", first)
		start = first
	}
	r.log.Info("enhancing frames", "total", total, "from", start, "done", outputs.Count(frames))

	logFile, err := os.OpenFile(filepath.Join(layout.Root, "upscayl.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return model.NewJobError(model.StageEnhancing, model.ReasonStorage, false, err)
	}
	defer logFile.Close()

	exec := NewExecutor(d.enhancer, d.opts.Executor, layout, logFile)
	exec.now = d.now
	est := NewEstimator(defaultEstimatorWindow, d.now)
	remain := ""

	for i := start; i <= total; i++ {
		if ctx.Err() != nil {
			if err := cp.Save(i); err != nil {
				r.log.Warn("saving checkpoint on shutdown failed", "error", err)
			}
			return model.NewJobError(model.StageEnhancing, model.ReasonInterrupted, false, model.ErrInterrupted)
		}

		frame := frames[i-1]
		prog := newFrameProgress(d.opts.Progress, d.opts.LiveProgress, i, total, frame.Name, remain, d.now)
		prog.Start()
		outcome, err := exec.Execute(ctx, frame, cp, prog.SetPhase)
		if err != nil {
			prog.Stop(renderFrameLine(frameLine{Index: i, Total: total, Name: frame.Name, Outcome: model.FrameOutcome{Kind: model.OutcomeToolFailure, Message: err.Error()}}))
			return model.NewJobError(model.StageEnhancing, model.ReasonStorage, false, err)
		}

		r.res.Stats.Add(outcome)
		metrics.FramesTotal.WithLabelValues(outcome.Kind).Inc()
		if outcome.UsedFallback {
			metrics.FallbacksTotal.Inc()
		}
		if outcome.Kind != model.OutcomeSkipped {
			est.Record(outcome.Duration)
			metrics.FrameDuration.Observe(outcome.Duration.Seconds())
		}
		remaining := est.Remaining(total - i)
		metrics.JobETA.WithLabelValues(layout.Name).Set(remaining.Seconds())
		if est.Samples() > 0 {
			remain = FormatClock(remaining)
		}

		prog.Stop(renderFrameLine(frameLine{
			Index:     i,
			Total:     total,
			Name:      frame.Name,
			Outcome:   outcome,
			Elapsed:   est.Elapsed(),
			Remaining: remaining,
			Median:    est.Median(),
		}))
		if !outcome.Produced() {
			r.log.Warn("frame not produced", "frame", frame.Name, "outcome", outcome.Kind, "fallback", outcome.UsedFallback, "error", outcome.Message)
		}
	}
	return nil
}

func (d *Driver) checkOutputs(r *jobRun, frames []model.Frame) error {
	outputs, err := catalog.ListOutputs(r.layout.UpscaledDir())
	if err != nil {
		return model.NewJobError(model.StageEnhancing, model.ReasonStorage, false, err)
	}
	produced := outputs.Count(frames)
	if produced == 0 {
		return model.NewJobError(model.StageEnhancing, model.ReasonNoOutputs, false, errors.New("no frame was enhanced"))
	}
	missing := len(frames) - produced
	ratio := float64(missing) / float64(len(frames))
	if d.opts.MaxFailureRatio >= 0 && ratio > d.opts.MaxFailureRatio {
		return model.NewJobError(model.StageEnhancing, model.ReasonFailureRatioExceeded, false,
			fmt.Errorf("%d of %d frames missing (%.1f%% > %.1f%% allowed)", missing, len(frames), ratio*100, d.opts.MaxFailureRatio*100))
	}
	if missing > 0 {
		r.log.Warn("reassembling with missing frames", "missing", missing, "total", len(frames))
	}
	return nil
}

func (d *Driver) reassemble(ctx context.Context, r *jobRun, frames []model.Frame) error {
	layout := r.layout
	outputs, err := catalog.ListOutputs(layout.UpscaledDir())
	if err != nil {
		return model.NewJobError(model.StageReassembling, model.ReasonStorage, false, err)
	}
	slots := make([]ffmpeg.ConcatFrame, 0, len(frames))
	for _, f := range frames {
		slots = append(slots, ffmpeg.ConcatFrame{
			Path:     filepath.Join(runstore.UpscaledDirName, f.Name),
			Produced: outputs[f.Name],
		})
	}
	list, err := ffmpeg.BuildConcatList(slots, r.job.FrameRate)
	if err != nil {
		return model.NewJobError(model.StageReassembling, model.ReasonReassembleFailed, false, err)
	}
	if err := runstore.WriteBytes(layout.ConcatListPath(), []byte(list)); err != nil {
		return model.NewJobError(model.StageReassembling, model.ReasonStorage, false, err)
	}

	r.log.Info("encoding lossless intermediate", "frame_rate", r.job.FrameRate)
	if err := d.media.EncodeLossless(ctx, layout.ConcatListPath(), r.job.FrameRate, layout.LosslessPath()); err != nil {
		return model.NewJobError(model.StageReassembling, model.ReasonReassembleFailed, false, err)
	}

	audio := ""
	if runstore.Exists(layout.AudioPath()) {
		audio = layout.AudioPath()
	}
	partial := layout.PartialFinalPath()
	_ = os.Remove(partial)
	r.log.Info("muxing final video", "with_audio", audio != "")
	if err := d.media.Mux(ctx, layout.LosslessPath(), audio, partial); err != nil {
		_ = os.Remove(partial)
		return model.NewJobError(model.StageReassembling, model.ReasonReassembleFailed, false, err)
	}
	if err := os.Rename(partial, layout.FinalPath()); err != nil {
		return model.NewJobError(model.StageReassembling, model.ReasonStorage, false, err)
	}
	_ = os.Remove(layout.LosslessPath())
	_ = os.Remove(layout.ConcatListPath())
	return nil
}

// archiveSource moves the source into processed_videos. Failure leaves the
// source in place and is only logged; the final video is already valid.
func (d *Driver) archiveSource(r *jobRun) bool {
	src := r.job.SourcePath
	if !runstore.Exists(src) {
		return false
	}
	dst := filepath.Join(runstore.ArchiveDir(d.opts.OutputRoot), filepath.Base(src))
	if err := runstore.MoveFile(src, dst); err != nil {
		r.log.Warn("archiving source failed", "source", src, "error", err)
		return false
	}
	r.log.Info("source archived", "path", dst)
	return true
}

func withStats(meta model.JobMeta, s model.FrameStats) model.JobMeta {
	meta.Succeeded = s.Succeeded
	meta.Skipped = s.Skipped
	meta.Failed = s.Failed
	meta.TimedOut = s.TimedOut
	meta.Fallbacks = s.Fallbacks
	return meta
}

// observedCheckpoint mirrors every persisted value into the checkpoint gauge.
type observedCheckpoint struct {
	runstore.Checkpoint
	job string
}

func (c observedCheckpoint) Save(next int) error {
	if err := c.Checkpoint.Save(next); err != nil {
		return err
	}
	metrics.JobCheckpoint.WithLabelValues(c.job).Set(float64(next))
	return nil
}
