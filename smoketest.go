package warden

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardenhq/warden/platform"
)

// ProbeNetBlockedExit is the exit code the hidden probe-net subcommand
// uses to report a refused dial. It is distinct from the shell's exec
// failures (126/127) and generic errors, so the self-test can tell a
// blocked connection from a probe that never ran.
const ProbeNetBlockedExit = 9

// SmokeCheck is the outcome of one self-test probe.
type SmokeCheck struct {
	Name    string
	Passed  bool
	Skipped bool
	Detail  string
}

// SmokeTest runs a battery of live probes against the active enforcement:
// writes inside and outside the workspace, a denied-prefix write, a
// network attempt, and the timeout ceiling. Probes whose protection the
// effective tier cannot provide are reported as skipped, not failed.
func (e *Executor) SmokeTest(ctx context.Context, workspaceRoot string) ([]SmokeCheck, error) {
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, workspaceRoot, nil, nil)
	if err != nil {
		return nil, err
	}

	tier := e.Tier()
	fsEnforced := tier >= platform.TierStandard
	netEnforced := tier >= platform.TierMinimal && pol.Network == NetworkDeny

	var checks []SmokeCheck

	checks = append(checks, e.checkWriteInside(ctx, pol, workspaceRoot))
	checks = append(checks, e.checkWriteOutside(ctx, pol, fsEnforced))
	checks = append(checks, e.checkDeniedPrefix(ctx, pol, fsEnforced))
	checks = append(checks, e.checkNetworkDenied(ctx, pol, netEnforced))
	checks = append(checks, e.checkTimeout(ctx, pol))

	return checks, nil
}

func (e *Executor) checkWriteInside(ctx context.Context, pol *Policy, workspaceRoot string) SmokeCheck {
	c := SmokeCheck{Name: "write-inside-workspace"}

	probe := filepath.Join(workspaceRoot, ".warden-smoke")
	defer os.Remove(probe)

	res, err := e.Run(ctx, fmt.Sprintf("echo ok > %q", probe), pol)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if !res.Success() {
		c.Detail = fmt.Sprintf("write failed (exit %d): %s", res.ExitCode, res.Stderr)
		return c
	}
	c.Passed = true
	c.Detail = "workspace is writable"
	return c
}

func (e *Executor) checkWriteOutside(ctx context.Context, pol *Policy, fsEnforced bool) SmokeCheck {
	c := SmokeCheck{Name: "write-outside-workspace"}
	if !fsEnforced {
		c.Skipped = true
		c.Detail = "filesystem isolation not available at this tier"
		return c
	}

	home, err := os.UserHomeDir()
	if err != nil {
		c.Skipped = true
		c.Detail = "no home directory to probe"
		return c
	}
	probe := filepath.Join(home, ".warden-smoke-escape")
	defer os.Remove(probe)

	res, err := e.Run(ctx, fmt.Sprintf("echo escape > %q", probe), pol)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if res.Success() {
		c.Detail = "write outside the workspace succeeded; isolation is not binding"
		return c
	}
	c.Passed = true
	c.Detail = "write outside the workspace was blocked"
	return c
}

func (e *Executor) checkDeniedPrefix(ctx context.Context, pol *Policy, fsEnforced bool) SmokeCheck {
	c := SmokeCheck{Name: "denied-prefix-read"}
	if !fsEnforced {
		c.Skipped = true
		c.Detail = "filesystem isolation not available at this tier"
		return c
	}
	if len(pol.DenyPaths) == 0 {
		c.Skipped = true
		c.Detail = "policy has no deny prefixes"
		return c
	}

	res, err := e.Run(ctx, fmt.Sprintf("ls %q", pol.DenyPaths[0]), pol)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if res.Success() {
		c.Detail = fmt.Sprintf("denied prefix %s was readable", pol.DenyPaths[0])
		return c
	}
	c.Passed = true
	c.Detail = "denied prefix was blocked"
	return c
}

func (e *Executor) checkNetworkDenied(ctx context.Context, pol *Policy, netEnforced bool) SmokeCheck {
	c := SmokeCheck{Name: "network-denied"}
	if !netEnforced {
		c.Skipped = true
		c.Detail = "network denial not available at this tier"
		return c
	}

	self, err := os.Executable()
	if err != nil {
		c.Skipped = true
		c.Detail = "cannot resolve own executable for the probe"
		return c
	}

	// The probe subcommand attempts an outbound TCP dial: exit zero on a
	// connection, ProbeNetBlockedExit on a refused dial.
	res, err := e.Run(ctx, fmt.Sprintf("%q sandbox probe-net", self), pol)
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	c.Passed, c.Detail = classifyNetProbe(res)
	return c
}

// classifyNetProbe interprets the probe-net exit. Any exit other than the
// two the probe itself produces means the probe never ran (the binary may
// not be readable or executable under the policy), which must not count
// as a pass.
func classifyNetProbe(res *ExecResult) (passed bool, detail string) {
	switch {
	case res.Success():
		return false, "outbound connection succeeded; network denial is not binding"
	case res.ExitCode == ProbeNetBlockedExit:
		return true, "outbound connection was blocked"
	default:
		return false, fmt.Sprintf("probe did not run (exit %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
}

func (e *Executor) checkTimeout(ctx context.Context, pol *Policy) SmokeCheck {
	c := SmokeCheck{Name: "timeout-ceiling"}

	res, err := e.Run(ctx, "sleep 10", pol, WithTimeout(1))
	if err != nil {
		c.Detail = err.Error()
		return c
	}
	if res.Exceeded == nil || res.Exceeded.Kind != "timeout" {
		c.Detail = "command outlived its timeout"
		return c
	}
	c.Passed = true
	c.Detail = "timeout terminated the process tree"
	return c
}
