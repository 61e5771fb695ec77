package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"upscale-manager/internal/model"
	"upscale-manager/internal/runstore"
	"upscale-manager/internal/upscayl"
)

func newTestExecutor(t *testing.T, enh Enhancer) (*Executor, runstore.JobLayout) {
	t.Helper()
	layout := runstore.NewJobLayout(t.TempDir(), "clip", "mp4")
	return NewExecutor(enh, ExecutorOptions{}, layout, nil), layout
}

func TestExecuteSuccessSavesBeforeAndAfter(t *testing.T) {
	enh := &fakeEnhancer{}
	exec, layout := newTestExecutor(t, enh)
	frames := makeFrames(t, layout, 3)
	cp := &memCheckpoint{}

	outcome, err := exec.Execute(context.Background(), frames[1], cp, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Kind != model.OutcomeSuccess || outcome.UsedFallback {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if !reflect.DeepEqual(cp.saves, []int{2, 3}) {
		t.Fatalf("expected checkpoint writes [2 3], got %v", cp.saves)
	}
	data, err := os.ReadFile(filepath.Join(layout.UpscaledDir(), frames[1].Name))
	if err != nil {
		t.Fatalf("output not published: %v", err)
	}
	if string(data) != "up:"+frames[1].Name {
		t.Fatalf("unexpected output content %q", data)
	}
	if _, err := os.Stat(filepath.Join(layout.InflightDir(), frames[1].Name)); !os.IsNotExist(err) {
		t.Fatalf("inflight file should be gone, stat err=%v", err)
	}
	if calls := enh.callsFor(frames[1].Name); len(calls) != 1 || calls[0].Device != upscayl.DefaultDevice {
		t.Fatalf("expected one primary call, got %+v", calls)
	}
}

func TestExecuteSkipsExistingOutput(t *testing.T) {
	enh := &fakeEnhancer{}
	exec, layout := newTestExecutor(t, enh)
	frames := makeFrames(t, layout, 2)
	if err := os.WriteFile(filepath.Join(layout.UpscaledDir(), frames[0].Name), []byte("done"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}
	cp := &memCheckpoint{}

	outcome, err := exec.Execute(context.Background(), frames[0], cp, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Kind != model.OutcomeSkipped {
		t.Fatalf("expected skip, got %+v", outcome)
	}
	if enh.callCount() != 0 {
		t.Fatalf("enhancer must not run for an existing output")
	}
	if !reflect.DeepEqual(cp.saves, []int{2}) {
		t.Fatalf("expected checkpoint [2], got %v", cp.saves)
	}
}

func TestExecuteFallsBackOnceAfterTimeout(t *testing.T) {
	enh := &fakeEnhancer{gpuSlow: map[string]bool{"thumb0001.png": true}}
	exec, layout := newTestExecutor(t, enh)
	frames := makeFrames(t, layout, 1)
	cp := &memCheckpoint{}

	outcome, err := exec.Execute(context.Background(), frames[0], cp, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Kind != model.OutcomeSuccess || !outcome.UsedFallback {
		t.Fatalf("expected fallback success, got %+v", outcome)
	}
	calls := enh.callsFor(frames[0].Name)
	if len(calls) != 2 || calls[0].Device != upscayl.DefaultDevice || calls[1].Device != upscayl.CPUDevice {
		t.Fatalf("expected primary then cpu call, got %+v", calls)
	}
	if !reflect.DeepEqual(cp.saves, []int{1, 2}) {
		t.Fatalf("expected checkpoint [1 2], got %v", cp.saves)
	}
}

func TestExecuteDoubleTimeoutStopsAfterFallback(t *testing.T) {
	enh := &fakeEnhancer{timeout: map[string]bool{"thumb0001.png": true}}
	exec, layout := newTestExecutor(t, enh)
	frames := makeFrames(t, layout, 1)
	cp := &memCheckpoint{}

	outcome, err := exec.Execute(context.Background(), frames[0], cp, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Kind != model.OutcomeTimeout || !outcome.UsedFallback {
		t.Fatalf("expected timeout after fallback, got %+v", outcome)
	}
	if n := enh.callCount(); n != 2 {
		t.Fatalf("expected exactly 2 invocations, got %d", n)
	}
	if !reflect.DeepEqual(cp.saves, []int{1}) {
		t.Fatalf("failed frame must not advance the checkpoint, got %v", cp.saves)
	}
	if runstore.Exists(filepath.Join(layout.UpscaledDir(), frames[0].Name)) {
		t.Fatalf("no output expected after double timeout")
	}
}

func TestExecuteToolFailureHasNoFallback(t *testing.T) {
	enh := &fakeEnhancer{fail: map[string]bool{"thumb0001.png": true}}
	exec, layout := newTestExecutor(t, enh)
	frames := makeFrames(t, layout, 1)
	cp := &memCheckpoint{}

	outcome, err := exec.Execute(context.Background(), frames[0], cp, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Kind != model.OutcomeToolFailure || outcome.UsedFallback {
		t.Fatalf("expected plain tool failure, got %+v", outcome)
	}
	if outcome.Message == "" {
		t.Fatalf("expected failure message")
	}
	if n := enh.callCount(); n != 1 {
		t.Fatalf("expected one invocation, got %d", n)
	}
	if cp.value != 1 {
		t.Fatalf("checkpoint should stay at the failed frame, got %d", cp.value)
	}
}

func TestExecuteIgnoresCancellationForInflightFrame(t *testing.T) {
	enh := &fakeEnhancer{}
	exec, layout := newTestExecutor(t, enh)
	frames := makeFrames(t, layout, 1)
	ctx, cancel := context.WithCancel(context.Background())
	enh.onEnter = func(upscayl.Request) { cancel() }

	outcome, err := exec.Execute(ctx, frames[0], &memCheckpoint{}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Kind != model.OutcomeSuccess {
		t.Fatalf("in-flight frame should finish after cancel, got %+v", outcome)
	}
}
