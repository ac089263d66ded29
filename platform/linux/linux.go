//go:build linux

package linux

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/wardenhq/warden/internal/pathutil"
	"github.com/wardenhq/warden/platform"
)

// Enforcer implements platform.Enforcer using Landlock filesystem rules,
// seccomp BPF network denial, and (on TierFull) user/mount/PID namespaces.
type Enforcer struct {
	kernelVersion KernelVersion
	landlock      LandlockInfo
	userns        bool
	seccomp       bool
}

// New creates the Linux enforcer, probing kernel features at construction
// time. Probing never fails; absent features lower the reported tier.
func New() *Enforcer {
	// DetectKernelVersion may fail in restricted environments (e.g. /proc
	// not mounted). A zero KernelVersion disables version-gated features.
	kv, _ := DetectKernelVersion()
	return &Enforcer{
		kernelVersion: kv,
		landlock:      DetectLandlock(),
		userns:        DetectUserNamespaces(),
		seccomp:       DetectSeccomp(),
	}
}

// Name returns the enforcer identifier.
func (e *Enforcer) Name() string {
	return "linux-landlock"
}

// Capabilities reports the isolation primitives available on this kernel.
func (e *Enforcer) Capabilities() platform.Capabilities {
	return platform.Capabilities{
		FilesystemIsolation: e.landlock.Supported,
		NetworkDeny:         e.seccomp,
		PIDIsolation:        e.userns,
		MountIsolation:      e.userns,
		ProcessHarden:       true,
	}
}

// Prepare rewrites cmd to re-execute the current binary as a sandbox-init
// child carrying the serialized spec. The child is a brand-new process
// image, not a fork of the caller's live state, so no caller-held file
// descriptors or resources leak into it. Rules the spec's tier cannot
// support are skipped and returned as gaps.
func (e *Enforcer) Prepare(cmd *exec.Cmd, spec *platform.Spec) ([]platform.Gap, error) {
	if spec == nil {
		spec = &platform.Spec{}
	}

	gaps := e.tierGaps(spec)
	if spec.Tier >= platform.TierStandard {
		gaps = append(gaps, nestedDenyGaps(spec)...)
	}

	payload, err := EncodeSpec(spec)
	if err != nil {
		return gaps, err
	}

	self, err := os.Executable()
	if err != nil {
		return gaps, fmt.Errorf("resolve own executable: %w", err)
	}

	if cmd.Path == "" {
		return gaps, fmt.Errorf("linux-landlock: cmd.Path is empty")
	}
	target := make([]string, len(cmd.Args))
	copy(target, cmd.Args)
	if len(target) == 0 {
		target = []string{cmd.Path}
	}
	// Exec in the child needs an absolute path; cmd.Path is already
	// resolved by os/exec.
	target[0] = cmd.Path

	cmd.Path = self
	cmd.Args = append([]string{"warden", InitArg, payload}, target...)

	// PID and mount isolation need user namespaces, available only on
	// TierFull. The network namespace doubles the seccomp denial there.
	if spec.Tier >= platform.TierFull {
		configureNamespaces(cmd, spec.DenyNetwork)
	}

	return gaps, nil
}

// tierGaps reports the protections the spec requests but its tier cannot
// provide. Gaps are degradations, never errors.
func (e *Enforcer) tierGaps(spec *platform.Spec) []platform.Gap {
	var gaps []platform.Gap

	wantsFS := len(spec.ReadPaths) > 0 || len(spec.WritePaths) > 0 || len(spec.DenyPaths) > 0
	if wantsFS && spec.Tier < platform.TierStandard {
		detail := "landlock unavailable"
		if !e.landlock.Supported {
			detail = fmt.Sprintf("landlock unsupported on kernel %s (requires >= 5.13)", e.kernelVersion)
		}
		gaps = append(gaps, platform.Gap{Rule: "filesystem-isolation", Detail: detail})
	}

	if spec.DenyNetwork && spec.Tier < platform.TierMinimal {
		gaps = append(gaps, platform.Gap{Rule: "network-deny", Detail: "seccomp unavailable"})
	}

	if spec.Tier < platform.TierFull {
		gaps = append(gaps, platform.Gap{
			Rule:   "pid-mount-isolation",
			Detail: "user namespaces unavailable or tier capped below full",
		})
	}

	return gaps
}

// nestedDenyGaps reports deny paths sitting strictly beneath a granted
// prefix. Landlock rules are purely additive: a rule on the parent grants
// the whole subtree, and exclusion from the ruleset only bites when a
// denied path matches a grant exactly. Nested denies are enforced by
// policy evaluation, not the kernel, so they surface as gaps.
func nestedDenyGaps(spec *platform.Spec) []platform.Gap {
	var gaps []platform.Gap
	grants := make([]string, 0, len(spec.ReadPaths)+len(spec.WritePaths))
	grants = append(grants, spec.ReadPaths...)
	grants = append(grants, spec.WritePaths...)

	for _, deny := range spec.DenyPaths {
		for _, grant := range grants {
			if deny != grant && pathutil.HasPathPrefix(deny, grant) {
				gaps = append(gaps, platform.Gap{
					Rule:   "filesystem-isolation",
					Detail: fmt.Sprintf("deny path %s is nested under granted prefix %s and is not kernel-enforced", deny, grant),
				})
				break
			}
		}
	}
	return gaps
}

// configureNamespaces sets up namespace isolation on the re-exec child:
// user, mount, PID, IPC, and UTS namespaces, plus a network namespace when
// the network policy is deny. The current user maps to root inside the
// user namespace.
func configureNamespaces(cmd *exec.Cmd, denyNetwork bool) {
	// CLONE_NEWIPC and CLONE_NEWUTS are absent from some syscall packages.
	const (
		cloneNewIPC = 0x08000000
		cloneNewUTS = 0x04000000
	)
	flags := syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | cloneNewIPC | cloneNewUTS
	if denyNetwork {
		flags |= syscall.CLONE_NEWNET
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Cloneflags = uintptr(flags)

	cmd.SysProcAttr.UidMappings = []syscall.SysProcIDMap{
		{ContainerID: 0, HostID: os.Getuid(), Size: 1},
	}
	cmd.SysProcAttr.GidMappings = []syscall.SysProcIDMap{
		{ContainerID: 0, HostID: os.Getgid(), Size: 1},
	}
}
