// Package process runs one external measurement tool and streams its stdout
// and stderr back to the caller line by line.
package process

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/logging"
)

// Stream identifies which pipe a line was read from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineLength     = 1024 * 1024
)

// Command describes a subprocess invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env entries are appended to the current environment.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quoteArg(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// LineFunc receives one line of output. It is called concurrently from the
// stdout and stderr readers; calls for a single stream arrive in order.
type LineFunc func(stream Stream, line string)

// ExitStatus is recorded once the process has exited and both pipes are drained.
type ExitStatus struct {
	Code int
	// Killed is set when Kill was called before the process was reaped.
	Killed bool
}

// Handle owns one running subprocess.
type Handle struct {
	cmd     *exec.Cmd
	name    string
	readers sync.WaitGroup

	mu     sync.Mutex
	exited bool
	killed bool

	waitOnce sync.Once
	status   ExitStatus
	waitErr  error
}

// Start resolves and launches the command. Both pipes are drained by
// independent goroutines so a full buffer on one never stalls the other.
// A missing or unlaunchable executable yields a spawn error.
func Start(c Command, onLine LineFunc) (*Handle, error) {
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, rperrors.WrapStartError(c.Path, err)
	}

	cmd := exec.Command(path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	configureProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, rperrors.NewSpawnError(c.Path, false, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, rperrors.NewSpawnError(c.Path, false, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, rperrors.WrapStartError(c.Path, err)
	}

	h := &Handle{cmd: cmd, name: c.Path}
	if onLine == nil {
		onLine = func(Stream, string) {}
	}

	h.readers.Add(2)
	go h.read(StreamStdout, stdout, onLine)
	go h.read(StreamStderr, stderr, onLine)

	logging.Debug("process started", "cmd", c.String(), "pid", cmd.Process.Pid)
	return h, nil
}

func (h *Handle) read(stream Stream, r io.Reader, onLine LineFunc) {
	defer h.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineLength)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		onLine(stream, scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		logging.Warn("output reader stopped early", "cmd", h.name, "stream", string(stream), "error", err)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

// Wait blocks until both pipes reach EOF and the process has exited.
// A nonzero exit code is reported in the status, not as an error; the
// error is only set when the process could not be waited on at all.
func (h *Handle) Wait() (ExitStatus, error) {
	h.waitOnce.Do(func() {
		h.readers.Wait()
		err := h.cmd.Wait()

		h.mu.Lock()
		h.exited = true
		h.status.Killed = h.killed
		h.mu.Unlock()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			h.status.Code = 0
		case errors.As(err, &exitErr):
			h.status.Code = exitErr.ExitCode()
		default:
			h.status.Code = -1
			h.waitErr = rperrors.NewCommandWaitError(h.name, err)
		}
		logging.Debug("process exited", "cmd", h.name, "code", h.status.Code, "killed", h.status.Killed)
	})
	return h.status, h.waitErr
}

// Kill terminates the process. It is idempotent and a no-op once the
// process has been reaped; failures of the kill call itself are logged.
func (h *Handle) Kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited || h.killed {
		return
	}
	h.killed = true

	if err := killProcess(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logging.Warn("failed to kill process", "cmd", h.name, "pid", h.cmd.Process.Pid, "error", err)
	}
}

// Pid returns the operating system process ID.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// splitByNewlineOrCR splits on \n, \r\n and bare \r. FFmpeg redraws its
// progress line with \r only. Empty lines are dropped.
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
