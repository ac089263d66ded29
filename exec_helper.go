package warden

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// limitedWriter caps the bytes written to an in-memory buffer. Writes past
// the cap are counted but discarded; the writer never errors, so the child
// keeps running until its own limits stop it.
type limitedWriter struct {
	mu        sync.Mutex
	buf       []byte
	limit     int64
	written   int64
	truncated bool
}

func newLimitedWriter(limit int64) *limitedWriter {
	return &limitedWriter{limit: limit}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.written += int64(len(p))
	if w.limit <= 0 || int64(len(w.buf)) >= w.limit {
		if w.limit > 0 {
			w.truncated = true
		}
		return len(p), nil
	}

	remaining := w.limit - int64(len(w.buf))
	if int64(len(p)) > remaining {
		w.buf = append(w.buf, p[:remaining]...)
		w.truncated = true
	} else {
		w.buf = append(w.buf, p...)
	}
	return len(p), nil
}

func (w *limitedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}

func (w *limitedWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}

// runPrepared starts a fully prepared command, waits for it, and folds the
// outcome into the result. Timeouts surface as a ResourceExceeded on the
// result rather than an error: hitting a ceiling is an expected outcome.
func runPrepared(ctx context.Context, cmd *exec.Cmd, res *ExecResult, stdout, stderr *limitedWriter, timeout time.Duration) error {
	start := time.Now()

	err := cmd.Run()

	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	res.ExitCode = exitCodeOf(cmd, err)

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Exceeded = &ResourceExceeded{
			Kind:    "timeout",
			Limit:   int64(timeout / time.Second),
			Elapsed: res.Duration,
		}
		return nil
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// Start-level failure: binary missing, enforcement wrapper broke.
		return &EnforcementError{Stage: "start", Err: err}
	}
	return nil
}

// exitCodeOf extracts the exit status from a finished command. -1 means
// the process never exited normally (killed, or never started).
func exitCodeOf(cmd *exec.Cmd, runErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if runErr != nil {
		return -1
	}
	return 0
}
