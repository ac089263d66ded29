package warden

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/wardenhq/warden/platform"
)

// fakeEnforcer records Prepare calls without touching the command, so
// executor tests run real processes unconfined.
type fakeEnforcer struct {
	caps       platform.Capabilities
	gaps       []platform.Gap
	prepareErr error

	prepared  bool
	lastSpec  *platform.Spec
	specPaths []string
}

func (f *fakeEnforcer) Name() string                        { return "fake" }
func (f *fakeEnforcer) Capabilities() platform.Capabilities { return f.caps }

func (f *fakeEnforcer) Prepare(cmd *exec.Cmd, spec *platform.Spec) ([]platform.Gap, error) {
	f.prepared = true
	f.lastSpec = spec
	f.specPaths = append(f.specPaths, spec.WritePaths...)
	return f.gaps, f.prepareErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func standardCaps() platform.Capabilities {
	return platform.Capabilities{FilesystemIsolation: true, NetworkDeny: true, ProcessHarden: true}
}

func newTestExecutor(t *testing.T, cfg *Config, enf platform.Enforcer) *Executor {
	t.Helper()
	e, err := NewExecutor(cfg, WithEnforcer(enf), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestTierClampNeverRaises(t *testing.T) {
	cases := []struct {
		level    string
		detected platform.Capabilities
		want     platform.Tier
	}{
		{"auto", standardCaps(), platform.TierStandard},
		{"minimal", standardCaps(), platform.TierMinimal},
		{"full", standardCaps(), platform.TierStandard}, // cannot raise
		{"none", standardCaps(), platform.TierNone},
		{"auto", platform.Capabilities{}, platform.TierNone},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		cfg.Sandbox.Level = c.level
		e := newTestExecutor(t, cfg, &fakeEnforcer{caps: c.detected})
		if got := e.Tier(); got != c.want {
			t.Errorf("level=%s detected=%v: tier = %v, want %v", c.level, c.detected.Tier(), got, c.want)
		}
	}
}

func TestTierCachedAcrossCalls(t *testing.T) {
	enf := &fakeEnforcer{caps: standardCaps()}
	e := newTestExecutor(t, DefaultConfig(), enf)
	first := e.Tier()
	// Mutating the probe result after the first call must not change the
	// cached tier.
	enf.caps = platform.Capabilities{}
	if got := e.Tier(); got != first {
		t.Errorf("tier changed across calls: %v -> %v", first, got)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	e := newTestExecutor(t, DefaultConfig(), &fakeEnforcer{caps: standardCaps()})
	if _, err := e.Run(context.Background(), "", &Policy{}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("got %v, want ErrEmptyCommand", err)
	}
}

func TestRunCapturesOutputAndExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	e := newTestExecutor(t, DefaultConfig(), &fakeEnforcer{caps: standardCaps()})
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), "echo out; echo err >&2; exit 3", pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "out" || strings.TrimSpace(res.Stderr) != "err" {
		t.Errorf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if !res.Sandboxed {
		t.Error("expected sandboxed run")
	}
}

func TestRunTimeoutReportsExceeded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	e := newTestExecutor(t, DefaultConfig(), &fakeEnforcer{caps: standardCaps()})
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), "sleep 10", pol, WithTimeout(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Exceeded == nil || res.Exceeded.Kind != "timeout" {
		t.Fatalf("exceeded = %+v, want timeout", res.Exceeded)
	}
	if res.Success() {
		t.Error("timed-out run reported success")
	}
}

func TestRunOutputCapReportsExceeded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	cfg := DefaultConfig()
	cfg.Sandbox.MaxOutputBytes = 64
	e := newTestExecutor(t, cfg, &fakeEnforcer{caps: standardCaps()})
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), "head -c 4096 /dev/zero", pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated {
		t.Error("output not truncated")
	}
	if res.Exceeded == nil || res.Exceeded.Kind != "output" {
		t.Errorf("exceeded = %+v, want output", res.Exceeded)
	}
	if len(res.Stdout) > 64 {
		t.Errorf("captured %d bytes, cap is 64", len(res.Stdout))
	}
}

func TestRunSurfacesGaps(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	enf := &fakeEnforcer{
		caps: standardCaps(),
		gaps: []platform.Gap{{Rule: "pid-mount-isolation", Detail: "capped"}},
	}
	e := newTestExecutor(t, DefaultConfig(), enf)
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), "true", pol)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Gaps) != 1 || res.Gaps[0].Rule != "pid-mount-isolation" {
		t.Errorf("gaps = %+v", res.Gaps)
	}
}

func TestRunPrepareFailureIsEnforcementError(t *testing.T) {
	enf := &fakeEnforcer{caps: standardCaps(), prepareErr: errors.New("boom")}
	e := newTestExecutor(t, DefaultConfig(), enf)
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Run(context.Background(), "true", pol)
	var ee *EnforcementError
	if !errors.As(err, &ee) || ee.Stage != "prepare" {
		t.Fatalf("got %v, want EnforcementError at prepare", err)
	}
}

func TestFullAccessSkipsEnforcement(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	enf := &fakeEnforcer{caps: standardCaps()}
	e := newTestExecutor(t, DefaultConfig(), enf)
	pol, err := e.BuildPolicy(ModeFullAccess, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), "true", pol)
	if err != nil {
		t.Fatal(err)
	}
	if enf.prepared {
		t.Error("full-access run went through the enforcer")
	}
	if res.Sandboxed {
		t.Error("full-access run reported as sandboxed")
	}
}

func TestDisabledSandboxStillAppliesCeilings(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	cfg := DefaultConfig()
	cfg.Sandbox.Enabled = false
	e := newTestExecutor(t, cfg, &fakeEnforcer{caps: standardCaps()})
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Run(context.Background(), "sleep 10", pol, WithTimeout(1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Sandboxed {
		t.Error("disabled sandbox reported as sandboxed")
	}
	if res.Exceeded == nil || res.Exceeded.Kind != "timeout" {
		t.Error("timeout ceiling did not bind with sandbox disabled")
	}
}

func TestScratchDirGrantedToChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	enf := &fakeEnforcer{caps: standardCaps()}
	e := newTestExecutor(t, DefaultConfig(), enf)
	pol, err := e.BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.Run(context.Background(), "true", pol); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, p := range enf.specPaths {
		if strings.Contains(p, "warden-scratch-") {
			found = true
		}
	}
	if !found {
		t.Error("scratch dir not granted in the spec")
	}
}
