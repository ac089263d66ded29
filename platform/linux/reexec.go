//go:build linux

package linux

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"syscall"

	"github.com/wardenhq/warden/platform"
)

// InitArg is the program-identity argument that marks a process as the
// re-exec sandbox child. The serialized policy follows it on the command
// line, then the target program and its arguments.
const InitArg = "sandbox-init"

// Function variables for dependency injection in tests.
var (
	hardenProcessFn    = hardenProcess
	applyLandlockFn    = applyLandlock
	applyResourceLimFn = applyResourceLimits
	applyNetworkDenyFn = ApplyNetworkDeny
	syscallExecFn      = syscall.Exec
	osExitFn           = os.Exit
)

// MaybeSandboxInit checks whether the current process was spawned as the
// re-exec sandbox child. If so it applies the serialized policy to itself,
// execs the target program, and never returns (the process exits on any
// failure). Call it first thing in main().
func MaybeSandboxInit() bool {
	if len(os.Args) < 4 || os.Args[1] != InitArg {
		return false
	}
	osExitFn(sandboxInit(os.Args[2], os.Args[3:]))
	return true // unreachable, satisfies the compiler
}

// EncodeSpec serializes a Spec for transport on the re-exec command line.
func EncodeSpec(spec *platform.Spec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode sandbox spec: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodeSpec is the inverse of EncodeSpec.
func decodeSpec(payload string) (*platform.Spec, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode sandbox spec: %w", err)
	}
	var spec platform.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("unmarshal sandbox spec: %w", err)
	}
	return &spec, nil
}

// sandboxInit applies the policy to the current (freshly exec'd) process
// and replaces it with the target program. Enforcement order is fixed:
// hardening, resource ceilings, filesystem restriction, network denial —
// the filesystem mechanism must be installed before the syscall filter so
// the filter can never interfere with Landlock's own setup calls. Any
// failure exits non-zero before the target program is ever reached.
func sandboxInit(payload string, target []string) int {
	// Landlock, seccomp, and prctl are per-thread operations. This is the
	// re-exec child, so lock and never unlock; the process execs or exits.
	runtime.LockOSThread()

	spec, err := decodeSpec(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		return 1
	}

	if err := hardenProcessFn(); err != nil {
		fmt.Fprintf(os.Stderr, "warden: harden: %v\n", err)
		return 1
	}

	if err := applyResourceLimFn(spec.Limits); err != nil {
		fmt.Fprintf(os.Stderr, "warden: resource limits: %v\n", err)
		return 1
	}

	// Filesystem isolation requires TierStandard or better. On lower tiers
	// the rule is skipped; the parent has already surfaced the gap.
	if spec.Tier >= platform.TierStandard {
		if err := applyLandlockFn(spec); err != nil {
			fmt.Fprintf(os.Stderr, "warden: landlock: %v\n", err)
			return 1
		}
	}

	// Network denial via seccomp is applied on every tier that supports it,
	// including TierFull where the network namespace already isolates the
	// child: the filter also blocks ptrace/mount and costs nothing extra.
	if spec.DenyNetwork && spec.Tier >= platform.TierMinimal {
		if err := applyNetworkDenyFn(); err != nil {
			fmt.Fprintf(os.Stderr, "warden: seccomp: %v\n", err)
			return 1
		}
	}

	if len(target) == 0 {
		fmt.Fprintf(os.Stderr, "warden: no command to exec\n")
		return 1
	}

	if err := syscallExecFn(target[0], target, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "warden: exec %s: %v\n", target[0], err)
		return 1
	}

	return 0 // unreachable
}
