package platform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Runner defaults
const (
	DefaultKillWaitDelay = 5 * time.Second
	MaxLineLength        = 1024 * 1024
	ExitCodeUnknown      = -1
)

// LineFunc receives one line of helper output, without the line terminator
type LineFunc func(line string)

// ProcessRunner launches helper executables and streams their merged
// stdout/stderr line by line. Cancelling the context kills the whole
// process tree and stops delivery of further lines.
type ProcessRunner struct {
	waitDelay time.Duration
}

// NewProcessRunner creates a runner with default settings
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{waitDelay: DefaultKillWaitDelay}
}

// Run starts name with args and calls onLine for every output line in
// arrival order. It returns the exit code once output is exhausted and the
// process has been waited on. When ctx is cancelled the returned error
// wraps ctx.Err() and the exit code is whatever the killed process reported.
func (r *ProcessRunner) Run(ctx context.Context, name string, args []string, onLine LineFunc) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	cmd.Cancel = func() error {
		return KillProcessTree(cmd.Process.Pid)
	}
	cmd.WaitDelay = r.waitDelay

	reader, writer, err := os.Pipe()
	if err != nil {
		return ExitCodeUnknown, fmt.Errorf("failed to create output pipe: %w", err)
	}
	defer reader.Close()

	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		writer.Close()
		return ExitCodeUnknown, fmt.Errorf("failed to start %s: %w", name, err)
	}
	// the child holds its own copy; ours must go so EOF arrives on exit
	writer.Close()

	// an orphaned grandchild may keep the pipe open after the kill
	stopReading := context.AfterFunc(ctx, func() { reader.Close() })
	defer stopReading()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLength)
	scanner.Split(ScanLinesOrCR)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	if scanner.Err() != nil && ctx.Err() == nil {
		// keep the pipe flowing so the child cannot block on a full buffer
		_, _ = io.Copy(io.Discard, reader)
	}

	waitErr := cmd.Wait()
	code := exitCode(cmd, waitErr)

	if ctx.Err() != nil {
		return code, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return code, fmt.Errorf("failed to wait for %s: %w", name, waitErr)
	}

	return code, nil
}

// Output runs a short-lived command and returns its trimmed combined output
func (r *ProcessRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	var lines []string
	code, err := r.Run(ctx, name, args, func(line string) {
		lines = append(lines, line)
	})
	out := strings.TrimSpace(strings.Join(lines, "\n"))
	if err != nil {
		return out, err
	}
	if code != 0 {
		return out, fmt.Errorf("%s exited with code %d", name, code)
	}
	return out, nil
}

// KillProcessTree kills pid and all of its descendants, children first.
// yt-dlp spawns ffmpeg for merging and extraction; killing only the parent
// would leave the child writing to our pipe.
func KillProcessTree(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	killDescendants(p)
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func killDescendants(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killDescendants(child)
		_ = child.Kill()
	}
}

// ScanLinesOrCR splits on \n, \r\n or a bare \r so that carriage-return
// progress updates arrive as separate lines.
func ScanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// need one more byte to tell \r from \r\n
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitCodeUnknown
}
