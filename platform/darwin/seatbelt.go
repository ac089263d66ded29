//go:build darwin

package darwin

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/wardenhq/warden/platform"
)

// sandboxExecPath is the path to the macOS sandbox-exec binary. It is a var
// so tests can simulate a missing loader.
var sandboxExecPath = "/usr/bin/sandbox-exec"

// buildProfile builds an SBPL profile from a Spec. Package-level variable
// so tests can override it to simulate generation errors.
var buildProfile = func(spec *platform.Spec) (string, error) {
	return newProfileBuilder().Build(spec)
}

// Enforcer implements platform.Enforcer using the Seatbelt profile loader
// (sandbox-exec). The generated SBPL profile is the declarative equivalent
// of the Linux enforcer's Landlock + seccomp rules.
type Enforcer struct{}

// New returns a new Seatbelt enforcer.
func New() *Enforcer {
	return &Enforcer{}
}

// Name returns the enforcer identifier.
func (e *Enforcer) Name() string {
	return "darwin-seatbelt"
}

// Capabilities reports Seatbelt's isolation features. macOS has no
// PID/mount namespace equivalent, so the tier caps at standard.
func (e *Enforcer) Capabilities() platform.Capabilities {
	if _, err := os.Stat(sandboxExecPath); err != nil {
		return platform.Capabilities{}
	}
	return platform.Capabilities{
		FilesystemIsolation: true,
		NetworkDeny:         true,
		ProcessHarden:       true,
	}
}

// Prepare rewrites cmd to run under sandbox-exec with a profile generated
// from the spec. Resource ceilings are applied with ulimit inside the
// wrapped shell so they bind the child, never the caller. DYLD_* and LD_*
// environment variables are stripped to prevent library injection.
func (e *Enforcer) Prepare(cmd *exec.Cmd, spec *platform.Spec) ([]platform.Gap, error) {
	if spec == nil {
		spec = &platform.Spec{}
	}

	var gaps []platform.Gap
	if spec.Tier >= platform.TierFull {
		// Unreachable via detection; guard against forced configs.
		spec = cloneSpecWithTier(spec, platform.TierStandard)
	}
	gaps = append(gaps, platform.Gap{
		Rule:   "pid-mount-isolation",
		Detail: "not available on macOS",
	})

	if cmd.Path == "" {
		return gaps, fmt.Errorf("darwin-seatbelt: cmd.Path is empty")
	}

	origPath := cmd.Path
	origArgs := make([]string, len(cmd.Args))
	copy(origArgs, cmd.Args)
	if len(origArgs) == 0 {
		origArgs = []string{origPath}
	}

	ulimits := buildUlimitCommands(spec.Limits)
	shellCmd := buildShellCommand(ulimits, origPath, origArgs)

	if spec.Tier < platform.TierStandard {
		// No Seatbelt below standard: keep only the ulimit ceilings.
		gaps = append(gaps,
			platform.Gap{Rule: "filesystem-isolation", Detail: "sandbox-exec unavailable"},
		)
		if spec.DenyNetwork {
			gaps = append(gaps, platform.Gap{Rule: "network-deny", Detail: "sandbox-exec unavailable"})
		}
		if ulimits != "" {
			cmd.Path = "/bin/sh"
			cmd.Args = []string{"/bin/sh", "-c", shellCmd}
		}
		cmd.Env = sanitizeEnv(cmdEnviron(cmd))
		return gaps, nil
	}

	profile, err := buildProfile(spec)
	if err != nil {
		return gaps, fmt.Errorf("darwin-seatbelt: build profile: %w", err)
	}

	cmd.Path = sandboxExecPath
	cmd.Args = []string{"sandbox-exec", "-p", profile, "--", "/bin/sh", "-c", shellCmd}
	cmd.Env = sanitizeEnv(cmdEnviron(cmd))

	return gaps, nil
}

// cloneSpecWithTier returns a shallow copy of spec with a capped tier.
func cloneSpecWithTier(spec *platform.Spec, tier platform.Tier) *platform.Spec {
	cp := *spec
	cp.Tier = tier
	return &cp
}

// cmdEnviron returns the command's environment, falling back to the
// process environment.
func cmdEnviron(cmd *exec.Cmd) []string {
	if cmd.Env != nil {
		return cmd.Env
	}
	return os.Environ()
}

// sanitizeEnv removes DYLD_* and LD_* variables to prevent dynamic library
// injection into the sandboxed process.
func sanitizeEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, "DYLD_") || strings.HasPrefix(kv, "LD_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// buildUlimitCommands generates ulimit shell commands from the resource
// ceilings. Running them inside the wrapped shell avoids the race of
// setting rlimits on the parent. Returns "" when nothing is configured.
func buildUlimitCommands(limits *platform.Limits) string {
	if limits == nil {
		return ""
	}

	var cmds []string
	if limits.MaxFileSizeBytes > 0 {
		// ulimit -f takes 512-byte blocks.
		blocks := limits.MaxFileSizeBytes / 512
		if blocks == 0 {
			blocks = 1
		}
		cmds = append(cmds, fmt.Sprintf("ulimit -f %d", blocks))
	}
	if limits.MaxProcesses > 0 {
		cmds = append(cmds, fmt.Sprintf("ulimit -u %d", limits.MaxProcesses))
	}

	return strings.Join(cmds, "; ")
}

// buildShellCommand constructs the shell line that applies ulimits and then
// execs the target with its original arguments, quoted against injection.
func buildShellCommand(ulimits, origPath string, origArgs []string) string {
	var b strings.Builder
	if ulimits != "" {
		b.WriteString(ulimits)
		b.WriteString("; ")
	}
	b.WriteString("exec ")

	args := origArgs
	if len(args) == 0 {
		args = []string{origPath}
	}
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(shellQuote(arg))
	}
	return b.String()
}

// shellQuote returns a single-quoted shell-safe representation of s.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!#&|;(){}[]<>?*~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
