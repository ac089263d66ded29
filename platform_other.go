//go:build !linux && !darwin

package warden

import "github.com/wardenhq/warden/platform"

// newPlatformEnforcer returns the no-op enforcer. Unsupported platforms
// run at TierNone: resource ceilings only, every requested protection
// reported as a gap.
func newPlatformEnforcer() platform.Enforcer {
	return platform.NewNoopEnforcer()
}

// MaybeSandboxInit is a no-op without a kernel enforcement layer.
func MaybeSandboxInit() bool {
	return false
}
