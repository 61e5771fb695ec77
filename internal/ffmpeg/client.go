package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"upscale-manager/internal/toolexec"
)

const (
	DefaultBinary       = "ffmpeg"
	DefaultProbeBinary  = "ffprobe"
	DefaultFrameRate    = "30"
	DefaultX264Preset   = "veryslow"
	DefaultAudioBitrate = "192k"
)

type Options struct {
	Binary       string
	ProbeBinary  string
	X264Preset   string
	AudioBitrate string
	LogWriter    io.Writer
}

// Client drives ffmpeg and ffprobe for extraction, probing and reassembly.
type Client struct {
	opts Options
}

type DependencyReport struct {
	FFmpegFound  bool   `json:"ffmpeg_found"`
	FFmpegPath   string `json:"ffmpeg_path,omitempty"`
	FFprobeFound bool   `json:"ffprobe_found"`
	FFprobePath  string `json:"ffprobe_path,omitempty"`
}

func New(opts Options) *Client {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = DefaultBinary
	}
	if strings.TrimSpace(opts.ProbeBinary) == "" {
		opts.ProbeBinary = DefaultProbeBinary
	}
	if strings.TrimSpace(opts.X264Preset) == "" {
		opts.X264Preset = DefaultX264Preset
	}
	if strings.TrimSpace(opts.AudioBitrate) == "" {
		opts.AudioBitrate = DefaultAudioBitrate
	}
	return &Client{opts: opts}
}

func (c *Client) run(ctx context.Context, args ...string) (toolexec.Result, error) {
	base := []string{"-hide_banner", "-loglevel", "error", "-y"}
	return toolexec.Run(ctx, toolexec.Command{
		Name:      c.opts.Binary,
		Args:      append(base, args...),
		LogWriter: c.opts.LogWriter,
	})
}

// ExtractFrames writes every frame of src into dir using the numbered
// filename template (for example thumb%04d.png).
func (c *Client) ExtractFrames(ctx context.Context, src, dir, template string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create frames directory %s: %w", dir, err)
	}
	_, err := c.run(ctx, "-i", src, dir+string(os.PathSeparator)+template)
	if err != nil {
		return fmt.Errorf("extract frames from %s: %w", src, err)
	}
	return nil
}

// ExtractAudio stream-copies the first audio track of src into dst.
func (c *Client) ExtractAudio(ctx context.Context, src, dst string) error {
	_, err := c.run(ctx, "-i", src, "-vn", "-sn", "-dn", "-map", "0:a:0", "-c:a", "copy", dst)
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("extract audio from %s: %w", src, err)
	}
	return nil
}

// ProbeFrameRate reports the source's r_frame_rate as a decimal string,
// e.g. "30" or "29.97".
func (c *Client) ProbeFrameRate(ctx context.Context, src string) (string, error) {
	res, err := toolexec.Run(ctx, toolexec.Command{
		Name: c.opts.ProbeBinary,
		Args: []string{
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=r_frame_rate",
			"-of", "default=noprint_wrappers=1:nokey=1",
			src,
		},
	})
	if err != nil {
		return "", fmt.Errorf("probe frame rate of %s: %w", src, err)
	}
	rate, ok := ParseFrameRate(res.Stdout)
	if !ok {
		return "", fmt.Errorf("probe frame rate of %s: unexpected output %q", src, strings.TrimSpace(res.Stdout))
	}
	return rate, nil
}

// ParseFrameRate turns "30000/1001" or "25" into a decimal string rounded
// to two places.
func ParseFrameRate(raw string) (string, bool) {
	line := strings.TrimSpace(raw)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return "", false
	}
	var value float64
	if num, den, found := strings.Cut(line, "/"); found {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || d == 0 {
			return "", false
		}
		value = n / d
	} else {
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return "", false
		}
		value = v
	}
	if value <= 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return "", false
	}
	value = math.Round(value*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64), true
}

// EncodeLossless renders the concat list of upscaled frames into a
// lossless x264 intermediate at a constant frame rate.
func (c *Client) EncodeLossless(ctx context.Context, listPath, frameRate, dst string) error {
	_, err := c.run(ctx,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-fps_mode", "cfr",
		"-r", frameRate,
		"-c:v", "libx264",
		"-preset", c.opts.X264Preset,
		"-crf", "0",
		"-pix_fmt", "yuv420p",
		dst,
	)
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("encode lossless intermediate: %w", err)
	}
	return nil
}

// Mux copies the video stream of video into dst, adding audio re-encoded
// to AAC when audio is non-empty.
func (c *Client) Mux(ctx context.Context, video, audio, dst string) error {
	args := []string{"-i", video}
	if strings.TrimSpace(audio) != "" {
		args = append(args,
			"-i", audio,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:v", "copy",
			"-c:a", "aac",
			"-b:a", c.opts.AudioBitrate,
			"-shortest",
		)
	} else {
		args = append(args, "-c:v", "copy")
	}
	args = append(args, dst)
	if _, err := c.run(ctx, args...); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("mux final video: %w", err)
	}
	return nil
}

func DependencyStatus(ffmpegBin, ffprobeBin string) DependencyReport {
	if strings.TrimSpace(ffmpegBin) == "" {
		ffmpegBin = DefaultBinary
	}
	if strings.TrimSpace(ffprobeBin) == "" {
		ffprobeBin = DefaultProbeBinary
	}
	report := DependencyReport{}
	report.FFmpegPath, report.FFmpegFound = toolexec.LookPath(ffmpegBin)
	report.FFprobePath, report.FFprobeFound = toolexec.LookPath(ffprobeBin)
	return report
}
