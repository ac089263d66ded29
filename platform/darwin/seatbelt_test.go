//go:build darwin

package darwin

import (
	"os/exec"
	"strings"
	"testing"

	"github.com/wardenhq/warden/platform"
)

func TestPrepareWrapsInSandboxExec(t *testing.T) {
	e := New()
	cmd := exec.Command("/bin/sh", "-c", "echo hi")
	spec := &platform.Spec{
		WritePaths:  []string{"/ws"},
		DenyNetwork: true,
		Tier:        platform.TierStandard,
	}

	gaps, err := e.Prepare(cmd, spec)
	if err != nil {
		t.Fatal(err)
	}

	if cmd.Path != sandboxExecPath {
		t.Errorf("path = %q, want sandbox-exec", cmd.Path)
	}
	if cmd.Args[0] != "sandbox-exec" || cmd.Args[1] != "-p" {
		t.Errorf("args = %v", cmd.Args)
	}
	if !strings.Contains(cmd.Args[2], "(deny default)") {
		t.Error("profile missing from args")
	}

	// macOS has no namespace equivalent; the gap is always reported.
	found := false
	for _, g := range gaps {
		if g.Rule == "pid-mount-isolation" {
			found = true
		}
	}
	if !found {
		t.Errorf("gaps = %+v, want pid-mount-isolation", gaps)
	}
}

func TestPrepareCapsTierAtStandard(t *testing.T) {
	e := New()
	cmd := exec.Command("/bin/true")

	var builtTier platform.Tier
	orig := buildProfile
	defer func() { buildProfile = orig }()
	buildProfile = func(spec *platform.Spec) (string, error) {
		builtTier = spec.Tier
		return "(version 1)\n(deny default)\n", nil
	}

	spec := &platform.Spec{WritePaths: []string{"/ws"}, Tier: platform.TierFull}
	if _, err := e.Prepare(cmd, spec); err != nil {
		t.Fatal(err)
	}
	if builtTier != platform.TierStandard {
		t.Errorf("tier handed to profile = %v, want standard", builtTier)
	}
}

func TestPrepareBelowStandardKeepsUlimitsOnly(t *testing.T) {
	e := New()
	cmd := exec.Command("/bin/sh", "-c", "true")
	spec := &platform.Spec{
		WritePaths:  []string{"/ws"},
		DenyNetwork: true,
		Limits:      &platform.Limits{MaxProcesses: 8},
		Tier:        platform.TierNone,
	}

	gaps, err := e.Prepare(cmd, spec)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Path == sandboxExecPath {
		t.Error("sandbox-exec used below TierStandard")
	}
	joined := strings.Join(cmd.Args, " ")
	if !strings.Contains(joined, "ulimit -u 8") {
		t.Errorf("ulimit wrapper missing: %v", cmd.Args)
	}

	var fsGap, netGap bool
	for _, g := range gaps {
		switch g.Rule {
		case "filesystem-isolation":
			fsGap = true
		case "network-deny":
			netGap = true
		}
	}
	if !fsGap || !netGap {
		t.Errorf("gaps = %+v, want filesystem and network", gaps)
	}
}

func TestSanitizeEnvStripsInjectionVars(t *testing.T) {
	env := []string{
		"PATH=/usr/bin",
		"DYLD_INSERT_LIBRARIES=/evil.dylib",
		"LD_PRELOAD=/evil.so",
		"HOME=/Users/u",
	}
	got := sanitizeEnv(env)
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	for _, kv := range got {
		if strings.HasPrefix(kv, "DYLD_") || strings.HasPrefix(kv, "LD_") {
			t.Errorf("injection var survived: %s", kv)
		}
	}
}

func TestBuildUlimitCommands(t *testing.T) {
	if got := buildUlimitCommands(nil); got != "" {
		t.Errorf("nil limits: %q", got)
	}

	limits := &platform.Limits{MaxFileSizeBytes: 50 << 20, MaxProcesses: 64}
	got := buildUlimitCommands(limits)
	if !strings.Contains(got, "ulimit -f 102400") { // 50 MiB / 512
		t.Errorf("file-size ulimit wrong: %q", got)
	}
	if !strings.Contains(got, "ulimit -u 64") {
		t.Errorf("process ulimit wrong: %q", got)
	}
}

func TestShellQuote(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"", "''"},
		{"has space", "'has space'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, c := range cases {
		if got := shellQuote(c.in); got != c.want {
			t.Errorf("shellQuote(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
