//go:build linux

package warden

import (
	"github.com/wardenhq/warden/platform"
	"github.com/wardenhq/warden/platform/linux"
)

// newPlatformEnforcer returns the Linux enforcer (Landlock + seccomp +
// namespaces). Kernel features are probed once, at construction.
func newPlatformEnforcer() platform.Enforcer {
	return linux.New()
}

// MaybeSandboxInit checks whether this process was spawned as a re-exec
// sandbox child and, if so, applies the policy and execs the target. It
// never returns in that case. Call it first thing in main(), before any
// flag parsing or file descriptor use.
func MaybeSandboxInit() bool {
	return linux.MaybeSandboxInit()
}
