package pipeline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"upscale-manager/internal/model"
)

func TestRenderFrameLine(t *testing.T) {
	line := renderFrameLine(frameLine{
		Index:     57,
		Total:     100,
		Name:      "thumb0057.png",
		Outcome:   model.FrameOutcome{Kind: model.OutcomeSuccess, Duration: 7 * time.Second, UsedFallback: true},
		Elapsed:   400 * time.Second,
		Remaining: 301 * time.Second,
		Median:    7 * time.Second,
	})
	for _, want := range []string{"[0057/0100]", "ok+cpu", "00:07", "elapsed 06:40", "remain 05:01", "thumb0057.png"} {
		if !strings.Contains(line, want) {
			t.Fatalf("frame line %q missing %q", line, want)
		}
	}

	failed := renderFrameLine(frameLine{
		Index:   3,
		Total:   12000,
		Name:    "thumb0003.png",
		Outcome: model.FrameOutcome{Kind: model.OutcomeToolFailure, Message: "exit status 1\nvk error"},
	})
	if !strings.Contains(failed, "[00003/12000]") {
		t.Fatalf("counter should widen to total digits: %q", failed)
	}
	if !strings.Contains(failed, "fail") || !strings.Contains(failed, "exit status 1 vk error") {
		t.Fatalf("unexpected failure line %q", failed)
	}
}

func TestFrameProgress_NonLivePrintsFinalLineOnly(t *testing.T) {
	var buf bytes.Buffer
	p := newFrameProgress(&buf, false, 1, 10, "thumb0001.png", "", nil)
	p.Start()
	p.SetPhase("upscaling")
	p.Stop("[0001/0010] ok")
	if got := buf.String(); got != "[0001/0010] ok\n" {
		t.Fatalf("unexpected non-live output %q", got)
	}
}
