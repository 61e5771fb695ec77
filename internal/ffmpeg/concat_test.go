package ffmpeg

import (
	"strings"
	"testing"
)

func TestBuildConcatList_FillsGapsWithPreviousFrame(t *testing.T) {
	slots := []ConcatFrame{
		{Path: "upscaled/thumb0001.png", Produced: true},
		{Path: "upscaled/thumb0002.png", Produced: true},
		{Path: "upscaled/thumb0003.png", Produced: false},
		{Path: "upscaled/thumb0004.png", Produced: true},
	}
	got, err := BuildConcatList(slots, "25")
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"ffconcat version 1.0",
		"file 'upscaled/thumb0001.png'",
		"duration 0.040000",
		"file 'upscaled/thumb0002.png'",
		"duration 0.080000",
		"file 'upscaled/thumb0004.png'",
		"duration 0.040000",
		"file 'upscaled/thumb0004.png'",
		"",
	}, "\n")
	if got != want {
		t.Fatalf("unexpected concat list:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildConcatList_LeadingGapAndQuoting(t *testing.T) {
	slots := []ConcatFrame{
		{Path: "a.png", Produced: false},
		{Path: "it's.png", Produced: true},
	}
	got, err := BuildConcatList(slots, "10")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `file 'it'\''s.png'`) {
		t.Fatalf("expected quoted path, got:\n%s", got)
	}
	if !strings.Contains(got, "duration 0.200000") {
		t.Fatalf("leading gap should extend the first frame, got:\n%s", got)
	}
}

func TestBuildConcatList_Errors(t *testing.T) {
	if _, err := BuildConcatList([]ConcatFrame{{Path: "a", Produced: false}}, "30"); err == nil {
		t.Fatal("expected error without produced frames")
	}
	if _, err := BuildConcatList([]ConcatFrame{{Path: "a", Produced: true}}, "zero"); err == nil {
		t.Fatal("expected error for bad frame rate")
	}
}
