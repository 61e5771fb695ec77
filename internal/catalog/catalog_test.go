package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"upscale-manager/internal/model"
)

func writeFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoad_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	p := DefaultPattern()
	// Written in lexical-hostile order on purpose.
	for _, n := range []int{10, 2, 12, 1, 11, 3, 9, 4, 8, 5, 7, 6} {
		writeFrames(t, dir, p.Name(n))
	}
	writeFrames(t, dir, "notes.txt", "thumb0001.jpg", "other0003.png")

	frames, err := Load(dir, p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(frames) != 12 {
		t.Fatalf("expected 12 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Number != i+1 || f.Index != i+1 {
			t.Fatalf("frame %d out of order: %+v", i, f)
		}
	}
	if frames[9].Name != "thumb0010.png" {
		t.Fatalf("expected thumb0010.png at position 10, got %s", frames[9].Name)
	}
}

func TestLoad_NumberWiderThanPadding(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, "thumb10000.png", "thumb9999.png", "thumb0001.png")

	frames, err := Load(dir, DefaultPattern())
	if err != nil {
		t.Fatal(err)
	}
	got := []int{frames[0].Number, frames[1].Number, frames[2].Number}
	want := []int{1, 9999, 10000}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: got %v want %v", got, want)
		}
	}
}

func TestLoad_EmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, DefaultPattern()); !errors.Is(err, model.ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog for empty dir, got %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing"), DefaultPattern()); !errors.Is(err, model.ErrEmptyCatalog) {
		t.Fatalf("expected ErrEmptyCatalog for missing dir, got %v", err)
	}
	if HasFrames(dir, DefaultPattern()) {
		t.Fatal("empty dir has no frames")
	}
}

func TestPatternTemplate(t *testing.T) {
	p := DefaultPattern()
	if got := p.Template(); got != "thumb%04d.png" {
		t.Fatalf("unexpected template %q", got)
	}
	if got := p.Name(57); got != "thumb0057.png" {
		t.Fatalf("unexpected name %q", got)
	}
	custom := Pattern{Prefix: "f_", Ext: ".jpg", Width: 6}
	if got := custom.Template(); got != "f_%06d.jpg" {
		t.Fatalf("unexpected custom template %q", got)
	}
}

func TestOutputs(t *testing.T) {
	frameDir := filepath.Join(t.TempDir(), "frames")
	upDir := filepath.Join(t.TempDir(), "upscaled")
	p := DefaultPattern()
	for n := 1; n <= 5; n++ {
		writeFrames(t, frameDir, p.Name(n))
	}
	writeFrames(t, upDir, p.Name(1), p.Name(2), p.Name(4))
	if err := os.MkdirAll(filepath.Join(upDir, ".inflight"), 0o755); err != nil {
		t.Fatal(err)
	}

	frames, err := Load(frameDir, p)
	if err != nil {
		t.Fatal(err)
	}
	outputs, err := ListOutputs(upDir)
	if err != nil {
		t.Fatal(err)
	}
	if got := outputs.Count(frames); got != 3 {
		t.Fatalf("expected 3 outputs, got %d", got)
	}
	if got := outputs.FirstMissing(frames); got != 3 {
		t.Fatalf("expected first missing index 3, got %d", got)
	}
	if missing := outputs.Missing(frames); len(missing) != 2 || missing[1].Number != 5 {
		t.Fatalf("unexpected missing frames: %+v", missing)
	}

	none, err := ListOutputs(filepath.Join(upDir, "absent"))
	if err != nil {
		t.Fatal(err)
	}
	if got := none.FirstMissing(frames); got != 1 {
		t.Fatalf("expected first missing 1 without outputs, got %d", got)
	}
}
