package warden

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wardenhq/warden/internal/pathutil"
	"github.com/wardenhq/warden/platform"
)

// Mode selects the filesystem posture of a sandbox policy.
type Mode int

const (
	// ModeWorkspaceWrite grants read/write inside the workspace root and a
	// per-invocation scratch directory, read-only access to system paths,
	// and denies everything else. This is the default posture.
	ModeWorkspaceWrite Mode = iota

	// ModeReadOnly grants read-only access to the workspace and system
	// paths with no writable paths beyond scratch space.
	ModeReadOnly

	// ModeFullAccess disables filesystem and network restriction entirely.
	// Resource ceilings still apply.
	ModeFullAccess
)

func (m Mode) String() string {
	switch m {
	case ModeWorkspaceWrite:
		return "workspace-write"
	case ModeReadOnly:
		return "read-only"
	case ModeFullAccess:
		return "full-access"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "workspace-write":
		return ModeWorkspaceWrite, nil
	case "read-only":
		return ModeReadOnly, nil
	case "full-access":
		return ModeFullAccess, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, s)
}

// NetworkPolicy selects the network posture of a sandbox policy.
type NetworkPolicy int

const (
	// NetworkDeny blocks all outbound network access.
	NetworkDeny NetworkPolicy = iota

	// NetworkProxy would route traffic through a filtering proxy. The
	// value parses, but building a policy with it fails with
	// ErrProxyUnsupported.
	NetworkProxy
)

func (n NetworkPolicy) String() string {
	switch n {
	case NetworkDeny:
		return "deny"
	case NetworkProxy:
		return "proxy"
	}
	return fmt.Sprintf("network(%d)", int(n))
}

// ParseNetworkPolicy converts a network policy name into a NetworkPolicy.
func ParseNetworkPolicy(s string) (NetworkPolicy, error) {
	switch s {
	case "deny":
		return NetworkDeny, nil
	case "proxy":
		return NetworkProxy, nil
	}
	return 0, fmt.Errorf("%w: unknown network policy %q", ErrInvalidPolicy, s)
}

// Access is the outcome of evaluating a path against a policy.
type Access int

const (
	// AccessNone means the path matches no rule; the kernel layer will
	// refuse it because grants are allow-listed.
	AccessNone Access = iota

	// AccessReadOnly permits reads.
	AccessReadOnly

	// AccessReadWrite permits reads and writes.
	AccessReadWrite

	// AccessDenied means a deny rule matched. Deny always wins, even when
	// the same path also matches a read or write grant.
	AccessDenied
)

func (a Access) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessReadOnly:
		return "read-only"
	case AccessReadWrite:
		return "read-write"
	case AccessDenied:
		return "denied"
	}
	return fmt.Sprintf("access(%d)", int(a))
}

// Policy is an immutable description of what a sandboxed command may
// touch. Build one with BuildPolicy; the zero value denies everything.
type Policy struct {
	Mode          Mode
	Network       NetworkPolicy
	WorkspaceRoot string

	// ReadPaths, WritePaths, and DenyPaths hold absolute, cleaned path
	// prefixes. DenyPaths take precedence over both grant lists.
	ReadPaths  []string
	WritePaths []string
	DenyPaths  []string

	Limits platform.Limits
}

// systemReadPaths are the prefixes every command needs readable to run a
// toolchain at all.
var systemReadPaths = []string{
	"/usr",
	"/bin",
	"/sbin",
	"/lib",
	"/lib64",
	"/etc",
	"/opt",
	"/System",
	"/Library",
}

// deviceReadWritePaths are pseudo-devices commands expect to open.
var deviceReadWritePaths = []string{
	"/dev/null",
	"/dev/zero",
	"/dev/urandom",
	"/dev/random",
	"/dev/tty",
}

// credentialDenyPaths are deny prefixes relative to the home directory.
// They guard cloud, VCS, and package-manager credentials and override any
// read or write grant, including a workspace root placed inside them.
var credentialDenyPaths = []string{
	".ssh",
	".aws",
	".gnupg",
	".kube",
	".docker",
	".config/gcloud",
	".netrc",
	".npmrc",
	".pypirc",
	".git-credentials",
}

// BuildPolicy constructs a policy for the given mode rooted at
// workspaceRoot. Extra read and write prefixes extend the grants;
// credential paths and the warden state directory are always denied.
// Building is deterministic and performs no I/O beyond path normalization.
func BuildPolicy(mode Mode, workspaceRoot string, extraRead, extraWrite []string, network NetworkPolicy, limits platform.Limits) (*Policy, error) {
	if network == NetworkProxy {
		return nil, ErrProxyUnsupported
	}

	p := &Policy{
		Mode:    mode,
		Network: network,
		Limits:  limits,
	}

	if mode == ModeFullAccess {
		return p, nil
	}

	root, err := pathutil.NormalizeAbs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: workspace root: %v", ErrInvalidPolicy, err)
	}
	p.WorkspaceRoot = root

	p.ReadPaths = append(p.ReadPaths, existingPrefixes(systemReadPaths)...)
	p.ReadPaths = append(p.ReadPaths, deviceReadWritePaths...)

	switch mode {
	case ModeWorkspaceWrite:
		p.WritePaths = append(p.WritePaths, root)
		p.WritePaths = append(p.WritePaths, deviceReadWritePaths...)
	case ModeReadOnly:
		p.ReadPaths = append(p.ReadPaths, root)
	}

	for _, extra := range extraRead {
		abs, err := pathutil.NormalizeAbs(extra)
		if err != nil {
			return nil, fmt.Errorf("%w: read path: %v", ErrInvalidPolicy, err)
		}
		p.ReadPaths = append(p.ReadPaths, abs)
	}
	for _, extra := range extraWrite {
		abs, err := pathutil.NormalizeAbs(extra)
		if err != nil {
			return nil, fmt.Errorf("%w: write path: %v", ErrInvalidPolicy, err)
		}
		if mode == ModeReadOnly {
			return nil, fmt.Errorf("%w: write path %q conflicts with read-only mode", ErrInvalidPolicy, abs)
		}
		p.WritePaths = append(p.WritePaths, abs)
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, rel := range credentialDenyPaths {
			p.DenyPaths = append(p.DenyPaths, filepath.Join(home, rel))
		}
		// Warden's own state: the device key, the signed manifest's audit
		// trail, and the config must never be writable by a sandboxed
		// command.
		p.DenyPaths = append(p.DenyPaths, filepath.Join(home, ".warden"))
	}

	return p, nil
}

// existingPrefixes filters out prefixes absent on this system so the
// kernel layer isn't asked to open paths that don't exist.
func existingPrefixes(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Evaluate reports the access a path would receive under this policy.
// Deny rules win over both grant lists on any overlap.
func (p *Policy) Evaluate(path string) Access {
	if p.Mode == ModeFullAccess {
		return AccessReadWrite
	}

	abs, err := pathutil.NormalizeAbs(path)
	if err != nil {
		return AccessNone
	}

	for _, deny := range p.DenyPaths {
		if pathutil.HasPathPrefix(abs, deny) {
			return AccessDenied
		}
	}
	for _, w := range p.WritePaths {
		if pathutil.HasPathPrefix(abs, w) {
			return AccessReadWrite
		}
	}
	for _, r := range p.ReadPaths {
		if pathutil.HasPathPrefix(abs, r) {
			return AccessReadOnly
		}
	}
	return AccessNone
}

// spec lowers the policy into the platform-neutral form the enforcers
// consume. The per-invocation scratch directory, when present, is granted
// read/write alongside the policy's own writable prefixes.
func (p *Policy) spec(tier platform.Tier, scratchDir string) *platform.Spec {
	s := &platform.Spec{
		ReadPaths:   append([]string(nil), p.ReadPaths...),
		WritePaths:  append([]string(nil), p.WritePaths...),
		DenyPaths:   append([]string(nil), p.DenyPaths...),
		DenyNetwork: p.Network == NetworkDeny,
		Limits:      &p.Limits,
		Tier:        tier,
	}
	if scratchDir != "" {
		s.WritePaths = append(s.WritePaths, scratchDir)
	}
	return s
}
