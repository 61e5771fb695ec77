package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"upscale-manager/internal/toolexec"
)

// UnmeasuredQP stands in for a pass that did not report an average QP, so
// the search treats it as "far too low a bitrate".
const UnmeasuredQP = 999.0

var reAvgQP = regexp.MustCompile(`Avg QP:\s*([0-9.]+)`)

func ParseAvgQP(line string) (float64, bool) {
	m := reAvgQP.FindStringSubmatch(line)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimRight(m[1], "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// QPMeasurer runs first-pass libx265 encodes of Input and reports the
// encoder's average QP.
type QPMeasurer struct {
	Client   *Client
	Input    string
	Preset   string
	WorkDir  string
	Progress func(line string)
}

func (m QPMeasurer) MeasureQP(ctx context.Context, bitrateK int) (float64, error) {
	workDir := m.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "upscale-manager-qp-*")
		if err != nil {
			return 0, fmt.Errorf("create qp work dir: %w", err)
		}
		defer os.RemoveAll(dir)
		workDir = dir
	}
	preset := m.Preset
	if preset == "" {
		preset = "veryfast"
	}
	probeOut := filepath.Join(workDir, "qp-probe.mp4")
	defer os.Remove(probeOut)

	var mu sync.Mutex
	qp, found := 0.0, false
	_, err := toolexec.Run(ctx, toolexec.Command{
		Name: m.Client.opts.Binary,
		Args: []string{
			"-hide_banner", "-y",
			"-i", m.Input,
			"-c:v", "libx265",
			"-preset", preset,
			"-b:v", fmt.Sprintf("%dk", bitrateK),
			"-x265-params", "pass=1:stats=" + filepath.Join(workDir, "x265.log"),
			"-an",
			probeOut,
		},
		LogWriter: m.Client.opts.LogWriter,
		Progress: func(_ toolexec.OutputStream, line string) {
			if v, ok := ParseAvgQP(line); ok {
				mu.Lock()
				qp, found = v, true
				mu.Unlock()
			}
			if m.Progress != nil {
				m.Progress(line)
			}
		},
	})
	if err != nil {
		return 0, fmt.Errorf("measure qp at %dk: %w", bitrateK, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !found {
		return UnmeasuredQP, nil
	}
	return qp, nil
}

// TwoPassEncode produces the final libx265 encode at bitrateK.
func (c *Client) TwoPassEncode(ctx context.Context, src, dst string, bitrateK int, preset string) error {
	if preset == "" {
		preset = "veryslow"
	}
	dir, err := os.MkdirTemp("", "upscale-manager-2pass-*")
	if err != nil {
		return fmt.Errorf("create two-pass work dir: %w", err)
	}
	defer os.RemoveAll(dir)
	stats := filepath.Join(dir, "x265.log")
	bitrate := fmt.Sprintf("%dk", bitrateK)

	if _, err := c.run(ctx,
		"-i", src,
		"-c:v", "libx265", "-preset", preset, "-b:v", bitrate,
		"-x265-params", "pass=1:stats="+stats,
		"-an", "-f", "null", os.DevNull,
	); err != nil {
		return fmt.Errorf("two-pass encode pass 1: %w", err)
	}
	if _, err := c.run(ctx,
		"-i", src,
		"-c:v", "libx265", "-preset", preset, "-b:v", bitrate,
		"-x265-params", "pass=2:stats="+stats,
		"-c:a", "aac", "-b:a", c.opts.AudioBitrate,
		dst,
	); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("two-pass encode pass 2: %w", err)
	}
	return nil
}
