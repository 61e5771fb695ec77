package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"upscale-manager/internal/model"
	"upscale-manager/internal/runstore"
)

// JobRunner drives one source file to completion.
type JobRunner interface {
	Run(ctx context.Context, sourcePath string) (model.JobResult, error)
}

type LoopOptions struct {
	InputDir        string
	OutputRoot      string
	Container       string
	Extensions      []string
	PollBusy        time.Duration
	PollIdle        time.Duration
	FailureCooldown time.Duration
	Once            bool
	Logger          *slog.Logger
}

// Loop polls the input directory and hands every new or unfinished source to
// the runner, one at a time.
type Loop struct {
	opts   LoopOptions
	runner JobRunner
	log    *slog.Logger
	now    func() time.Time

	processed map[string]bool
	cooldown  map[string]time.Time
	reported  map[string]bool
}

func NewLoop(opts LoopOptions, runner JobRunner) *Loop {
	if opts.PollBusy <= 0 {
		opts.PollBusy = DefaultPollBusy
	}
	if opts.PollIdle <= 0 {
		opts.PollIdle = DefaultPollIdle
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	opts.Extensions = normalizeExtensions(opts.Extensions)
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{
		opts:      opts,
		runner:    runner,
		log:       log,
		now:       time.Now,
		processed: map[string]bool{},
		cooldown:  map[string]time.Time{},
		reported:  map[string]bool{},
	}
}

// Run blocks until ctx is cancelled, or after one pass in Once mode.
// Job failures are logged and never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	wake := l.watch(ctx)
	l.log.Info("watching for videos", "input", l.opts.InputDir, "output", l.opts.OutputRoot)
	for {
		if ctx.Err() != nil {
			return nil
		}
		dispatched, err := l.Pass(ctx)
		if l.opts.Once {
			return err
		}
		if err != nil {
			l.log.Warn("discovery pass failed", "error", err)
		}
		delay := l.opts.PollIdle
		if dispatched > 0 {
			delay = l.opts.PollBusy
		}
		if !sleepOrWake(ctx, delay, wake) {
			return nil
		}
	}
}

// Pass runs every eligible candidate once and reports how many it started.
func (l *Loop) Pass(ctx context.Context) (int, error) {
	candidates, err := ListCandidates(l.opts.InputDir, l.opts.Extensions)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, src := range candidates {
		if ctx.Err() != nil {
			return dispatched, nil
		}
		if !l.eligible(src) {
			continue
		}
		dispatched++
		l.dispatch(ctx, src)
	}
	return dispatched, nil
}

func (l *Loop) eligible(src string) bool {
	if l.processed[src] {
		return false
	}
	layout := runstore.NewJobLayout(l.opts.OutputRoot, runstore.JobName(src), l.opts.Container)
	meta, hasMeta := runstore.ReadJobMeta(layout.Root)
	if runstore.Exists(layout.FinalPath()) {
		if hasMeta && sameSource(meta.SourcePath, src) {
			l.processed[src] = true
			l.archiveLeftover(src, layout.Name)
			return false
		}
		if !l.reported[src] {
			l.reported[src] = true
			l.log.Warn("final video belongs to another source, leaving this one in place",
				"job", layout.Name, "source", src, "recorded_source", meta.SourcePath, "final", layout.FinalPath())
		}
		return false
	}
	if hasMeta && meta.Permanent {
		if !l.reported[src] {
			l.reported[src] = true
			l.log.Warn("skipping permanently failed job", "job", layout.Name, "reason", meta.Reason, "error", meta.LastError)
		}
		return false
	}
	if until, ok := l.cooldown[src]; ok {
		if l.now().Before(until) {
			return false
		}
		delete(l.cooldown, src)
	}
	return true
}

func (l *Loop) dispatch(ctx context.Context, src string) {
	name := runstore.JobName(src)
	state := "NEW"
	if runstore.Exists(filepath.Join(l.opts.OutputRoot, name)) {
		state = "RESUMING"
	}
	l.log.Info(state, "job", name, "source", src)

	res, err := l.runner.Run(ctx, src)
	switch {
	case err == nil:
		l.processed[src] = true
	case errors.Is(err, model.ErrInterrupted) || ctx.Err() != nil:
		// Resumes on the next start.
	case model.IsPermanent(err):
		l.reported[src] = true
	default:
		l.cooldown[src] = l.now().Add(l.opts.FailureCooldown)
		l.log.Warn("job will be retried", "job", name, "stage", res.Stage, "after", l.opts.FailureCooldown)
	}
}

// archiveLeftover moves a source whose final video already exists out of
// the input directory. Only called when job.json records src as the job's
// source.
func (l *Loop) archiveLeftover(src, name string) {
	dst := filepath.Join(runstore.ArchiveDir(l.opts.OutputRoot), filepath.Base(src))
	if err := runstore.MoveFile(src, dst); err != nil {
		l.log.Warn("final video exists but archiving the source failed", "job", name, "error", err)
		return
	}
	l.log.Info("final video exists, archived leftover source", "job", name, "path", dst)
}

func sameSource(recorded, src string) bool {
	if recorded == "" {
		return false
	}
	a, errA := filepath.Abs(recorded)
	b, errB := filepath.Abs(src)
	if errA != nil || errB != nil {
		return filepath.Clean(recorded) == filepath.Clean(src)
	}
	return a == b
}

// watch wakes the idle sleep on new or changed input files. Without a
// watcher the loop still polls.
func (l *Loop) watch(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	if l.opts.Once {
		return wake
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		l.log.Warn("file watcher unavailable, polling only", "error", err)
		return wake
	}
	if err := w.Add(l.opts.InputDir); err != nil {
		_ = w.Close()
		l.log.Warn("cannot watch input directory, polling only", "input", l.opts.InputDir, "error", err)
		return wake
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if !HasAcceptedExtension(ev.Name, l.opts.Extensions) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Debug("file watcher error", "error", err)
			}
		}
	}()
	return wake
}

func sleepOrWake(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
	case <-wake:
	}
	return true
}

// ListCandidates returns the accepted source files in inputDir, sorted by
// name. A missing directory has no candidates.
func ListCandidates(inputDir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read input directory %s: %w", inputDir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !HasAcceptedExtension(e.Name(), exts) {
			continue
		}
		out = append(out, filepath.Join(inputDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func HasAcceptedExtension(name string, exts []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}
	return false
}
