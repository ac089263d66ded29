// Command warden runs shell commands under kernel-enforced sandboxes and
// manages the signed workspace policy document.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/wardenhq/warden"
	"github.com/wardenhq/warden/audit"
	"github.com/wardenhq/warden/trust"
)

// Exit codes. Policy and config problems are distinguished from trust
// verification failures so wrappers can react differently.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitVerify  = 3
)

func main() {
	// Must run before anything else: when this process is the re-exec
	// sandbox child, init applies the policy and execs the target.
	warden.MaybeSandboxInit()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var ec *exitError
	if errors.As(err, &ec) {
		return ec.code
	}
	switch {
	case errors.Is(err, warden.ErrInvalidConfig),
		errors.Is(err, warden.ErrInvalidPolicy),
		errors.Is(err, warden.ErrProxyUnsupported):
		return exitConfig
	case errors.Is(err, trust.ErrStrictVerification),
		errors.Is(err, audit.ErrChainBroken):
		return exitVerify
	}
	return exitFailure
}

// exitError carries an explicit exit code through cobra's error return.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitWith(code int, format string, args ...any) error {
	return &exitError{code: code, msg: fmt.Sprintf(format, args...)}
}
