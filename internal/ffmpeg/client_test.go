package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func installFakeTools(t *testing.T, scripts map[string]string) string {
	t.Helper()
	fakeBin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range scripts {
		script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body
		if err := os.WriteFile(filepath.Join(fakeBin, name), []byte(script), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
	return fakeBin
}

func TestParseFrameRate(t *testing.T) {
	cases := map[string]string{
		"30/1\n":       "30",
		"30000/1001":   "29.97",
		"24000/1001":   "23.98",
		"25":           "25",
		"60/1\n60/1\n": "60",
	}
	for raw, want := range cases {
		got, ok := ParseFrameRate(raw)
		if !ok || got != want {
			t.Fatalf("ParseFrameRate(%q): got %q,%v want %q", raw, got, ok, want)
		}
	}
	for _, bad := range []string{"", "0/0", "abc", "-5", "30/0"} {
		if _, ok := ParseFrameRate(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestProbeFrameRate(t *testing.T) {
	installFakeTools(t, map[string]string{
		"ffprobe": `echo "30000/1001"` + "\n",
	})
	got, err := New(Options{}).ProbeFrameRate(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got != "29.97" {
		t.Fatalf("unexpected frame rate %q", got)
	}
}

func TestExtractFramesAndMuxArgs(t *testing.T) {
	argLog := filepath.Join(t.TempDir(), "args.log")
	t.Setenv("FAKE_FFMPEG_ARGS", argLog)
	installFakeTools(t, map[string]string{
		"ffmpeg": `echo "$*" >> "$FAKE_FFMPEG_ARGS"` + "\n",
	})
	c := New(Options{})
	dir := filepath.Join(t.TempDir(), "frames")
	if err := c.ExtractFrames(context.Background(), "clip.mp4", dir, "thumb%04d.png"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if err := c.Mux(context.Background(), "temp_lossless.mkv", "audio.mka", "final.mp4"); err != nil {
		t.Fatalf("mux with audio: %v", err)
	}
	if err := c.Mux(context.Background(), "temp_lossless.mkv", "", "final.mp4"); err != nil {
		t.Fatalf("mux video only: %v", err)
	}

	data, err := os.ReadFile(argLog)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 invocations, got %d: %q", len(lines), lines)
	}
	if !strings.HasSuffix(lines[0], "-i clip.mp4 "+filepath.Join(dir, "thumb%04d.png")) {
		t.Fatalf("unexpected extract args: %s", lines[0])
	}
	if !strings.Contains(lines[1], "-c:a aac -b:a 192k -shortest final.mp4") {
		t.Fatalf("unexpected audio mux args: %s", lines[1])
	}
	if !strings.HasSuffix(lines[2], "-i temp_lossless.mkv -c:v copy final.mp4") {
		t.Fatalf("unexpected video-only mux args: %s", lines[2])
	}
}

func TestExtractAudioFailureRemovesPartial(t *testing.T) {
	installFakeTools(t, map[string]string{
		"ffmpeg": `
for last in "$@"; do :; done
echo partial > "$last"
echo "Stream map '0:a:0' matches no streams." >&2
exit 1
`,
	})
	dst := filepath.Join(t.TempDir(), "audio.partial.mka")
	if err := New(Options{}).ExtractAudio(context.Background(), "clip.mp4", dst); err == nil {
		t.Fatal("expected audio extraction failure")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("partial audio should be removed, stat err=%v", err)
	}
}

func TestDependencyStatus(t *testing.T) {
	fakeBin := installFakeTools(t, map[string]string{
		"ffmpeg": "exit 0\n",
	})
	rep := DependencyStatus("", "definitely-not-ffprobe")
	if !rep.FFmpegFound || rep.FFmpegPath != filepath.Join(fakeBin, "ffmpeg") {
		t.Fatalf("unexpected ffmpeg status: %+v", rep)
	}
	if rep.FFprobeFound {
		t.Fatalf("expected ffprobe to be missing: %+v", rep)
	}
}
