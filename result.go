package warden

import (
	"time"

	"github.com/wardenhq/warden/platform"
)

// ExecResult is the outcome of one sandboxed command invocation.
type ExecResult struct {
	// ExitCode is the command's exit status. -1 when the command was
	// killed before exiting (timeout, signal).
	ExitCode int

	// Stdout and Stderr hold captured output, truncated at the output cap.
	Stdout string
	Stderr string

	// Truncated is true when either stream hit the output cap.
	Truncated bool

	// Exceeded is set when a resource ceiling terminated the command.
	// A ceiling hit is a bounded outcome, not an invocation error.
	Exceeded *ResourceExceeded

	// Sandboxed reports whether kernel enforcement was active. False when
	// the policy mode is full-access, sandboxing is disabled, or the tier
	// is none.
	Sandboxed bool

	// Tier is the capability tier the command ran under.
	Tier platform.Tier

	// Gaps lists protections the policy requested but the tier could not
	// provide. Callers surface these as warnings.
	Gaps []platform.Gap

	// Duration is the wall time from start to exit.
	Duration time.Duration
}

// Success reports whether the command exited zero without hitting a
// resource ceiling.
func (r *ExecResult) Success() bool {
	return r != nil && r.ExitCode == 0 && r.Exceeded == nil
}
