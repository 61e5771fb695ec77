package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"upscale-manager/internal/catalog"
	"upscale-manager/internal/model"
	"upscale-manager/internal/runstore"
	"upscale-manager/internal/upscayl"
)

type ExecutorOptions struct {
	Device          string
	FallbackDevice  string
	Timeout         time.Duration
	FallbackTimeout time.Duration
}

func (o ExecutorOptions) withDefaults() ExecutorOptions {
	if strings.TrimSpace(o.Device) == "" {
		o.Device = upscayl.DefaultDevice
	}
	if strings.TrimSpace(o.FallbackDevice) == "" {
		o.FallbackDevice = upscayl.CPUDevice
	}
	if o.Timeout <= 0 {
		o.Timeout = upscayl.DefaultTimeout
	}
	if o.FallbackTimeout <= 0 {
		o.FallbackTimeout = upscayl.DefaultCPUTimeout
	}
	return o
}

// Executor enhances single frames. The output image on disk is the only
// proof a frame is done; the checkpoint just saves rescanning.
type Executor struct {
	enhancer    Enhancer
	opts        ExecutorOptions
	upscaledDir string
	inflightDir string
	logWriter   io.Writer
	now         func() time.Time
}

func NewExecutor(enhancer Enhancer, opts ExecutorOptions, layout runstore.JobLayout, logWriter io.Writer) *Executor {
	return &Executor{
		enhancer:    enhancer,
		opts:        opts.withDefaults(),
		upscaledDir: layout.UpscaledDir(),
		inflightDir: layout.InflightDir(),
		logWriter:   logWriter,
		now:         time.Now,
	}
}

// Execute processes one frame. The returned error is reserved for
// checkpoint storage failures; tool problems are reported in the outcome.
//
// The tool invocation is detached from ctx cancellation: a shutdown request
// lets the in-flight frame finish or reach its own deadline.
func (e *Executor) Execute(ctx context.Context, frame model.Frame, cp runstore.Checkpoint, onPhase func(string)) (model.FrameOutcome, error) {
	if onPhase == nil {
		onPhase = func(string) {}
	}
	out := catalog.OutputPath(frame, e.upscaledDir)
	if runstore.Exists(out) {
		if err := cp.Save(frame.Index + 1); err != nil {
			return model.FrameOutcome{}, err
		}
		return model.FrameOutcome{Kind: model.OutcomeSkipped}, nil
	}

	if err := cp.Save(frame.Index); err != nil {
		return model.FrameOutcome{}, err
	}

	started := e.now()
	workCtx := context.WithoutCancel(ctx)
	inflight := filepath.Join(e.inflightDir, frame.Name)

	onPhase("upscaling (device " + e.opts.Device + ")")
	err := e.attempt(workCtx, frame, inflight, e.opts.Device, e.opts.Timeout)
	outcome := model.FrameOutcome{}
	if upscayl.IsTimeout(err) {
		onPhase("cpu fallback (device " + e.opts.FallbackDevice + ")")
		outcome.UsedFallback = true
		err = e.attempt(workCtx, frame, inflight, e.opts.FallbackDevice, e.opts.FallbackTimeout)
	}
	if err == nil {
		err = os.Rename(inflight, out)
		if err != nil {
			err = fmt.Errorf("publish output %s: %w", out, err)
		}
	}
	outcome.Duration = e.now().Sub(started)

	switch {
	case err == nil:
		outcome.Kind = model.OutcomeSuccess
		if saveErr := cp.Save(frame.Index + 1); saveErr != nil {
			return outcome, saveErr
		}
	case upscayl.IsTimeout(err):
		outcome.Kind = model.OutcomeTimeout
		outcome.Message = truncate(err.Error(), 500)
	default:
		outcome.Kind = model.OutcomeToolFailure
		outcome.Message = truncate(err.Error(), 500)
	}
	if err != nil {
		_ = os.Remove(inflight)
	}
	return outcome, nil
}

func (e *Executor) attempt(ctx context.Context, frame model.Frame, inflight, device string, timeout time.Duration) error {
	_ = os.Remove(inflight)
	return e.enhancer.Enhance(ctx, upscayl.Request{
		Input:     frame.Path,
		Output:    inflight,
		Device:    device,
		Timeout:   timeout,
		LogWriter: e.logWriter,
	})
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
