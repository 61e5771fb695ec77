package toolexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

var ErrTimeout = errors.New("command timed out")

type Command struct {
	Name      string
	Args      []string
	Dir       string
	LogWriter io.Writer
	Progress  func(stream OutputStream, line string)
}

type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Run executes the command and waits for it. Cancelling ctx (or hitting its
// deadline) kills the command's whole process group.
func Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = 5 * time.Second
	configureProcess(cmd)

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var outBuf strings.Builder
	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			if c.LogWriter != nil {
				_, _ = io.WriteString(c.LogWriter, line+"\n")
			}
			mu.Unlock()

			if c.Progress != nil {
				c.Progress(stream, line)
			}
		}
		_, _ = io.Copy(io.Discard, r)
	}

	wg.Add(2)
	go read(StreamStdout, stdoutR)
	go read(StreamStderr, stderrR)

	started := time.Now()
	err := cmd.Start()
	if err == nil {
		err = cmd.Wait()
	}
	_ = stdoutW.Close()
	_ = stderrW.Close()
	wg.Wait()

	mu.Lock()
	res := Result{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: time.Since(started),
	}
	mu.Unlock()

	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%s: %w after %s", c.Name, ErrTimeout, res.Duration.Round(time.Millisecond))
		}
		return res, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	return res, fmt.Errorf("%s failed: %w\n%s", c.Name, err, strings.TrimSpace(res.Stderr))
}

func LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	const maxKeep = 8192
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	if len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
