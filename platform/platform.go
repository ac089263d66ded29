// Package platform provides OS-specific sandbox enforcement.
//
// Each supported operating system contributes one Enforcer implementation
// (Landlock + namespaces + seccomp on Linux, Seatbelt on macOS) plus a no-op
// fallback for everything else. The Enforcer for the current host is chosen
// exactly once, at process start, based on the detected capability tier;
// selection never happens via runtime type inspection.
package platform

import "os/exec"

// Tier is the capability tier detected on the current host. It names which
// isolation primitives are actually enforceable. Tiers are totally ordered:
// None < Minimal < Standard < Full.
type Tier int

const (
	// TierNone provides no kernel isolation; only resource limits apply.
	TierNone Tier = iota

	// TierMinimal provides network denial but no filesystem isolation.
	TierMinimal

	// TierStandard provides filesystem isolation and network denial.
	TierStandard

	// TierFull provides filesystem isolation, network denial, and
	// PID/mount isolation via namespaces.
	TierFull
)

// String returns the string representation of a Tier.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierMinimal:
		return "minimal"
	case TierStandard:
		return "standard"
	case TierFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseTier parses a tier name as used by the sandbox.level config key.
// The special value "auto" is not a tier; callers handle it before parsing.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "none":
		return TierNone, true
	case "minimal":
		return TierMinimal, true
	case "standard":
		return TierStandard, true
	case "full":
		return TierFull, true
	default:
		return TierNone, false
	}
}

// Capabilities describes which isolation primitives an enforcer can apply
// on the current host.
type Capabilities struct {
	// FilesystemIsolation indicates path allow-listing is enforceable.
	FilesystemIsolation bool

	// NetworkDeny indicates all network access can be blocked.
	NetworkDeny bool

	// PIDIsolation indicates the process tree can get its own PID namespace.
	PIDIsolation bool

	// MountIsolation indicates a private mount namespace is available.
	MountIsolation bool

	// ProcessHarden indicates hardening (no-new-privs, non-dumpable) applies.
	ProcessHarden bool
}

// Tier maps a capability set onto the strongest tier whose prerequisites
// are all present. The mapping is a total order; an unsupported tier is
// never selected.
func (c Capabilities) Tier() Tier {
	switch {
	case c.FilesystemIsolation && c.NetworkDeny && c.PIDIsolation && c.MountIsolation:
		return TierFull
	case c.FilesystemIsolation && c.NetworkDeny:
		return TierStandard
	case c.NetworkDeny:
		return TierMinimal
	default:
		return TierNone
	}
}

// Spec is the platform-neutral sandbox policy handed to an Enforcer for a
// single command execution. It is produced fresh per invocation and never
// mutated after construction.
type Spec struct {
	// ReadPaths lists path prefixes the child may read.
	ReadPaths []string `json:"read_paths,omitempty"`

	// WritePaths lists path prefixes the child may read and write.
	WritePaths []string `json:"write_paths,omitempty"`

	// DenyPaths lists path prefixes that are denied regardless of any
	// overlapping read or write grant.
	DenyPaths []string `json:"deny_paths,omitempty"`

	// DenyNetwork requests that all network access be blocked.
	DenyNetwork bool `json:"deny_network,omitempty"`

	// Limits holds the resource ceilings applied before enforcement.
	Limits *Limits `json:"limits,omitempty"`

	// Tier is the capability tier the enforcer may assume. Rules above
	// this tier are skipped and reported, never errored.
	Tier Tier `json:"tier"`
}

// Limits specifies resource ceilings for a sandboxed process tree.
// Timeout and output capping are enforced by the caller even on TierNone;
// the remaining ceilings are OS rlimits applied inside the child.
type Limits struct {
	// TimeoutSecs is the wall-clock ceiling for the whole process tree.
	TimeoutSecs int `json:"timeout_secs,omitempty"`

	// MaxOutputBytes caps combined captured stdout+stderr.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`

	// MaxFileSizeBytes caps any single file written by the child (RLIMIT_FSIZE).
	MaxFileSizeBytes int64 `json:"max_file_size_bytes,omitempty"`

	// MaxProcesses caps concurrent processes in the subtree (RLIMIT_NPROC).
	MaxProcesses int `json:"max_processes,omitempty"`
}

// DefaultLimits returns the default resource ceilings.
func DefaultLimits() *Limits {
	return &Limits{
		TimeoutSecs:      120,
		MaxOutputBytes:   1 << 20,  // 1 MiB
		MaxFileSizeBytes: 50 << 20, // 50 MiB
		MaxProcesses:     64,
	}
}

// Gap describes a rule that was requested by a Spec but skipped because the
// active tier does not support it. Gaps are degradation signals, not errors.
type Gap struct {
	// Rule names the skipped protection (e.g. "filesystem-isolation").
	Rule string

	// Detail explains what is missing on this host.
	Detail string
}

// Enforcer translates a Spec into native enforcement on a child process.
// Implementations must be safe for concurrent use by multiple goroutines.
type Enforcer interface {
	// Name returns a human-readable identifier (e.g. "linux-landlock",
	// "darwin-seatbelt", "noop").
	Name() string

	// Capabilities reports which isolation primitives this enforcer can
	// apply on the current host. Probing must never fail; absent features
	// degrade the resulting tier.
	Capabilities() Capabilities

	// Prepare rewrites cmd in-place so that the spec is applied to the
	// freshly spawned child before the target program runs. It returns the
	// list of protections skipped due to the spec's tier. An error is
	// returned only for setup-level faults, never for "feature unavailable".
	Prepare(cmd *exec.Cmd, spec *Spec) ([]Gap, error)
}
