package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"upscale-manager/internal/model"
	"upscale-manager/internal/runstore"
	"upscale-manager/internal/upscayl"
)

type enhanceCall struct {
	Input  string
	Device string
}

// fakeEnhancer writes a small output file unless the input's base name is
// listed in fail or timeout.
type fakeEnhancer struct {
	mu      sync.Mutex
	calls   []enhanceCall
	fail    map[string]bool
	timeout map[string]bool
	gpuSlow map[string]bool
	onEnter func(req upscayl.Request)
}

func (f *fakeEnhancer) Enhance(ctx context.Context, req upscayl.Request) error {
	f.mu.Lock()
	f.calls = append(f.calls, enhanceCall{Input: req.Input, Device: req.Device})
	hook := f.onEnter
	f.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.Base(req.Input)
	switch {
	case f.fail[name]:
		return errors.New("upscayl-bin failed: exit status 1")
	case f.timeout[name]:
		return fmt.Errorf("upscayl-bin: %w", upscayl.ErrTimeout)
	case f.gpuSlow[name] && req.Device != upscayl.CPUDevice:
		return fmt.Errorf("upscayl-bin: %w", upscayl.ErrTimeout)
	}
	return os.WriteFile(req.Output, []byte("up:"+name), 0o644)
}

func (f *fakeEnhancer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEnhancer) callsFor(name string) []enhanceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enhanceCall
	for _, c := range f.calls {
		if filepath.Base(c.Input) == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeMedia struct {
	frames      int
	noAudio     bool
	extractErr  error
	encodeErr   error
	extractRuns int
	encodeRuns  int
	concatList  string
}

func (m *fakeMedia) ExtractFrames(_ context.Context, _, dir, template string) error {
	m.extractRuns++
	if m.extractErr != nil {
		return m.extractErr
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := 1; i <= m.frames; i++ {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf(template, i)), []byte("frame"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (m *fakeMedia) ExtractAudio(_ context.Context, _, dst string) error {
	if m.noAudio {
		return errors.New("stream map '0:a:0' matches no streams")
	}
	return os.WriteFile(dst, []byte("audio"), 0o644)
}

func (m *fakeMedia) ProbeFrameRate(context.Context, string) (string, error) {
	return "30", nil
}

func (m *fakeMedia) EncodeLossless(_ context.Context, listPath, _ string, dst string) error {
	m.encodeRuns++
	if m.encodeErr != nil {
		return m.encodeErr
	}
	data, err := os.ReadFile(listPath)
	if err != nil {
		return err
	}
	m.concatList = string(data)
	return os.WriteFile(dst, []byte("lossless"), 0o644)
}

func (m *fakeMedia) Mux(_ context.Context, _, _ string, dst string) error {
	return os.WriteFile(dst, []byte("final"), 0o644)
}

// recordingStore keeps the file checkpoint behaviour and remembers every
// value written.
type recordingStore struct {
	mu    sync.Mutex
	saves []int
}

func (s *recordingStore) For(layout runstore.JobLayout) runstore.Checkpoint {
	return recordingCheckpoint{inner: runstore.FileCheckpoint{Path: layout.CheckpointPath()}, store: s}
}

func (s *recordingStore) Reset(layout runstore.JobLayout) error {
	return runstore.FileCheckpoints{}.Reset(layout)
}

func (s *recordingStore) Close() error { return nil }

func (s *recordingStore) values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.saves...)
}

type recordingCheckpoint struct {
	inner runstore.Checkpoint
	store *recordingStore
}

func (c recordingCheckpoint) Load() int { return c.inner.Load() }

func (c recordingCheckpoint) Save(next int) error {
	c.store.mu.Lock()
	c.store.saves = append(c.store.saves, next)
	c.store.mu.Unlock()
	return c.inner.Save(next)
}

type memCheckpoint struct {
	value int
	saves []int
}

func (c *memCheckpoint) Load() int {
	if c.value < 1 {
		return 1
	}
	return c.value
}

func (c *memCheckpoint) Save(next int) error {
	c.value = next
	c.saves = append(c.saves, next)
	return nil
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "input")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func frameName(n int) string {
	return fmt.Sprintf("thumb%04d.png", n)
}

func makeFrames(t *testing.T, layout runstore.JobLayout, n int) []model.Frame {
	t.Helper()
	if err := os.MkdirAll(layout.FramesDir(), 0o755); err != nil {
		t.Fatalf("mkdir frames: %v", err)
	}
	if err := os.MkdirAll(layout.InflightDir(), 0o755); err != nil {
		t.Fatalf("mkdir inflight: %v", err)
	}
	frames := make([]model.Frame, 0, n)
	for i := 1; i <= n; i++ {
		path := filepath.Join(layout.FramesDir(), frameName(i))
		if err := os.WriteFile(path, []byte("frame"), 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
		frames = append(frames, model.Frame{Index: i, Number: i, Name: frameName(i), Path: path})
	}
	return frames
}
