package warden

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidPolicy indicates a sandbox policy could not be built from
	// the given mode and paths.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrProxyUnsupported indicates the network policy "proxy" was
	// requested. The value is recognized so configs naming it fail loudly
	// instead of silently running with full network access.
	ErrProxyUnsupported = errors.New("network policy \"proxy\" is not implemented")

	// ErrEmptyCommand indicates Run was called with an empty command line.
	ErrEmptyCommand = errors.New("empty command")
)

// EnforcementError reports a failure while installing sandbox rules, as
// opposed to a failure of the target command itself. Setup faults abort
// the invocation; they are never silently degraded to a gap.
type EnforcementError struct {
	Stage string // "prepare", "start", "scratch"
	Err   error
}

func (e *EnforcementError) Error() string {
	return fmt.Sprintf("sandbox enforcement failed at %s: %v", e.Stage, e.Err)
}

func (e *EnforcementError) Unwrap() error { return e.Err }

// ResourceExceeded describes a resource ceiling hit by the sandboxed
// command. It is carried on the ExecResult: hitting a ceiling is a
// bounded, expected outcome, not an invocation error.
type ResourceExceeded struct {
	Kind    string        // "timeout" or "output"
	Limit   int64         // the configured ceiling (seconds or bytes)
	Elapsed time.Duration // wall time at termination
}

func (r *ResourceExceeded) String() string {
	switch r.Kind {
	case "timeout":
		return fmt.Sprintf("timeout after %ds", r.Limit)
	case "output":
		return fmt.Sprintf("output capped at %d bytes", r.Limit)
	}
	return "resource limit exceeded"
}
