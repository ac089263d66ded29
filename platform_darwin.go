//go:build darwin

package warden

import (
	"github.com/wardenhq/warden/platform"
	"github.com/wardenhq/warden/platform/darwin"
)

// newPlatformEnforcer returns the Seatbelt enforcer. macOS enforcement
// wraps the command in sandbox-exec, so no re-exec protocol is needed.
func newPlatformEnforcer() platform.Enforcer {
	return darwin.New()
}

// MaybeSandboxInit is a no-op on macOS: Seatbelt confines the child via
// sandbox-exec instead of a re-exec init step.
func MaybeSandboxInit() bool {
	return false
}
