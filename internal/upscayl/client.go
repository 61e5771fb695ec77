package upscayl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"upscale-manager/internal/toolexec"
)

const (
	DefaultBinary     = "upscayl-bin"
	DefaultModel      = "realesrgan-x4plus"
	DefaultFormat     = "png"
	DefaultDevice     = "0"
	CPUDevice         = "-1"
	DefaultTimeout    = 300 * time.Second
	DefaultCPUTimeout = 600 * time.Second
)

// ErrTimeout marks an invocation that was killed at its deadline.
var ErrTimeout = toolexec.ErrTimeout

type Options struct {
	Binary     string
	ModelsPath string
	Model      string
	Format     string
}

type Request struct {
	Input     string
	Output    string
	Device    string
	Timeout   time.Duration
	LogWriter io.Writer
	Progress  func(stream toolexec.OutputStream, line string)
}

type Client struct {
	opts Options
}

type DependencyReport struct {
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

func New(opts Options) *Client {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = DefaultBinary
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if strings.TrimSpace(opts.Format) == "" {
		opts.Format = DefaultFormat
	}
	return &Client{opts: opts}
}

func (c *Client) Binary() string {
	return c.opts.Binary
}

func (c *Client) Args(req Request) []string {
	device := strings.TrimSpace(req.Device)
	if device == "" {
		device = DefaultDevice
	}
	args := []string{"-i", req.Input, "-o", req.Output}
	if strings.TrimSpace(c.opts.ModelsPath) != "" {
		args = append(args, "-m", c.opts.ModelsPath)
	}
	args = append(args,
		"-n", c.opts.Model,
		"-f", c.opts.Format,
		"-g", device,
	)
	return args
}

// Enhance runs one upscale invocation and waits for it. The deadline is
// req.Timeout measured from now; ctx only carries values and parent
// deadlines, callers detach it from shutdown cancellation themselves.
func (c *Client) Enhance(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Input) == "" {
		return fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(req.Output) == "" {
		return fmt.Errorf("output path is required")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := toolexec.Run(runCtx, toolexec.Command{
		Name:      c.opts.Binary,
		Args:      c.Args(req),
		LogWriter: req.LogWriter,
		Progress:  req.Progress,
	})
	if err != nil {
		return err
	}
	info, err := os.Stat(req.Output)
	if err != nil {
		return fmt.Errorf("%s exited cleanly but wrote no output: %w", c.opts.Binary, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s wrote an empty output file %s", c.opts.Binary, req.Output)
	}
	return nil
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func DependencyStatus(binary string) DependencyReport {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	path, ok := toolexec.LookPath(binary)
	return DependencyReport{Found: ok, Path: path}
}

func CheckDependencies(binary string) error {
	if !DependencyStatus(binary).Found {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", binary)
	}
	return nil
}
