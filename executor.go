package warden

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/wardenhq/warden/platform"
)

// Executor runs shell commands under sandbox policies. It is safe for
// concurrent use; the capability tier is detected once at construction
// and cached for the life of the process.
type Executor struct {
	cfg      *Config
	enforcer platform.Enforcer
	logger   *slog.Logger
	shell    string

	tierOnce sync.Once
	tier     platform.Tier
}

// NewExecutor builds an executor from the given configuration. A nil
// config uses the defaults.
func NewExecutor(cfg *Config, opts ...Option) (*Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Executor{
		cfg:      cfg,
		enforcer: newPlatformEnforcer(),
		logger:   slog.Default(),
		shell:    "/bin/sh",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Tier returns the effective capability tier: the strongest tier the
// platform supports, clamped down by sandbox.level. Configuration can
// lower the tier but never raise it above what the kernel provides.
func (e *Executor) Tier() platform.Tier {
	e.tierOnce.Do(func() {
		detected := e.enforcer.Capabilities().Tier()
		e.tier = detected

		if e.cfg.Sandbox.Level != "auto" {
			if requested, ok := platform.ParseTier(e.cfg.Sandbox.Level); ok && requested < detected {
				e.tier = requested
			}
		}
		if !e.cfg.Sandbox.Enabled {
			e.tier = platform.TierNone
		}

		e.logger.Info("sandbox tier detected",
			"enforcer", e.enforcer.Name(),
			"detected", detected.String(),
			"effective", e.tier.String(),
			"level", e.cfg.Sandbox.Level,
		)
	})
	return e.tier
}

// EnforcerName returns the active enforcer's identifier.
func (e *Executor) EnforcerName() string {
	return e.enforcer.Name()
}

// Capabilities returns the raw capability probe results.
func (e *Executor) Capabilities() platform.Capabilities {
	return e.enforcer.Capabilities()
}

// BuildPolicy constructs a policy using the executor's configured limits
// and network posture plus its allow_paths grants.
func (e *Executor) BuildPolicy(mode Mode, workspaceRoot string, extraRead, extraWrite []string) (*Policy, error) {
	network, err := e.cfg.NetworkPolicy()
	if err != nil {
		return nil, err
	}
	read := append(append([]string(nil), e.cfg.Sandbox.AllowPaths.Read...), extraRead...)
	write := append(append([]string(nil), e.cfg.Sandbox.AllowPaths.Write...), extraWrite...)
	return BuildPolicy(mode, workspaceRoot, read, write, network, e.cfg.Limits())
}

// Run executes command (a shell line) under the given policy and returns
// its outcome. Resource ceilings bind on every tier, including TierNone
// and full-access mode. An error return means the invocation itself
// failed; a command that exits non-zero or hits a ceiling returns a
// result and a nil error.
func (e *Executor) Run(ctx context.Context, command string, pol *Policy, opts ...RunOption) (*ExecResult, error) {
	if command == "" {
		return nil, ErrEmptyCommand
	}
	if pol == nil {
		return nil, fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}

	rc := &runConfig{timeoutSecs: pol.Limits.TimeoutSecs}
	for _, opt := range opts {
		opt(rc)
	}

	tier := e.Tier()
	sandboxed := e.cfg.Sandbox.Enabled && pol.Mode != ModeFullAccess && tier > platform.TierNone

	timeout := time.Duration(rc.timeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(platform.DefaultLimits().TimeoutSecs) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	if rc.dir != "" {
		cmd.Dir = rc.dir
	} else if pol.WorkspaceRoot != "" {
		cmd.Dir = pol.WorkspaceRoot
	}
	if rc.env != nil {
		cmd.Env = rc.env
	}
	cmd.Stdin = rc.stdin

	stdout := newLimitedWriter(pol.Limits.MaxOutputBytes)
	stderr := newLimitedWriter(pol.Limits.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	configureProcessGroup(cmd)

	res := &ExecResult{
		Sandboxed: sandboxed,
		Tier:      tier,
	}

	if sandboxed {
		scratch, cleanup, err := makeScratchDir()
		if err != nil {
			return nil, &EnforcementError{Stage: "scratch", Err: err}
		}
		defer cleanup()

		spec := pol.spec(tier, scratch)
		gaps, err := e.enforcer.Prepare(cmd, spec)
		if err != nil {
			return nil, &EnforcementError{Stage: "prepare", Err: err}
		}
		res.Gaps = gaps
		for _, g := range gaps {
			e.logger.Warn("sandbox protection unavailable",
				"rule", g.Rule,
				"detail", g.Detail,
				"tier", tier.String(),
			)
		}
	} else {
		res.Tier = platform.TierNone
		e.logger.Debug("running without kernel enforcement",
			"mode", pol.Mode.String(),
			"enabled", e.cfg.Sandbox.Enabled,
		)
	}

	if err := runPrepared(ctx, cmd, res, stdout, stderr, timeout); err != nil {
		return nil, err
	}

	if res.Exceeded != nil {
		e.logger.Warn("command hit resource ceiling",
			"kind", res.Exceeded.Kind,
			"limit", res.Exceeded.Limit,
			"elapsed", res.Duration.String(),
		)
	}
	if res.Truncated && res.Exceeded == nil {
		res.Exceeded = &ResourceExceeded{
			Kind:    "output",
			Limit:   pol.Limits.MaxOutputBytes,
			Elapsed: res.Duration,
		}
	}

	return res, nil
}

// makeScratchDir creates the per-invocation scratch directory. It is
// always writable inside the sandbox and removed after the command exits.
func makeScratchDir() (string, func(), error) {
	dir, err := os.MkdirTemp("", "warden-scratch-*")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}
