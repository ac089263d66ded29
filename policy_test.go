package warden

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/wardenhq/warden/platform"
)

func testLimits() platform.Limits {
	return *platform.DefaultLimits()
}

func TestBuildPolicyWorkspaceWrite(t *testing.T) {
	ws := t.TempDir()
	pol, err := BuildPolicy(ModeWorkspaceWrite, ws, nil, nil, NetworkDeny, testLimits())
	if err != nil {
		t.Fatal(err)
	}

	if got := pol.Evaluate(filepath.Join(ws, "src", "main.go")); got != AccessReadWrite {
		t.Errorf("workspace file: got %v, want read-write", got)
	}
	if got := pol.Evaluate("/nonexistent/elsewhere"); got != AccessNone {
		t.Errorf("unrelated path: got %v, want none", got)
	}
}

func TestBuildPolicyReadOnly(t *testing.T) {
	ws := t.TempDir()
	pol, err := BuildPolicy(ModeReadOnly, ws, nil, nil, NetworkDeny, testLimits())
	if err != nil {
		t.Fatal(err)
	}

	if got := pol.Evaluate(filepath.Join(ws, "file")); got != AccessReadOnly {
		t.Errorf("workspace file: got %v, want read-only", got)
	}

	if _, err := BuildPolicy(ModeReadOnly, ws, nil, []string{"/tmp/extra"}, NetworkDeny, testLimits()); err == nil {
		t.Error("write grant under read-only mode should fail")
	}
}

func TestDenyWinsOverGrants(t *testing.T) {
	ws := t.TempDir()
	pol, err := BuildPolicy(ModeWorkspaceWrite, ws, nil, nil, NetworkDeny, testLimits())
	if err != nil {
		t.Fatal(err)
	}

	// Force an overlap: deny a subtree of the writable workspace.
	secret := filepath.Join(ws, "secrets")
	pol.DenyPaths = append(pol.DenyPaths, secret)

	if got := pol.Evaluate(filepath.Join(secret, "token")); got != AccessDenied {
		t.Errorf("denied subtree of writable root: got %v, want denied", got)
	}
	if got := pol.Evaluate(filepath.Join(ws, "ok")); got != AccessReadWrite {
		t.Errorf("sibling path: got %v, want read-write", got)
	}
}

func TestCredentialPathsAlwaysDenied(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	// Workspace deliberately placed at the home root so the grants and
	// deny prefixes overlap.
	pol, err := BuildPolicy(ModeWorkspaceWrite, home, nil, nil, NetworkDeny, testLimits())
	if err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{".ssh/id_ed25519", ".aws/credentials", ".warden/device.key"} {
		if got := pol.Evaluate(filepath.Join(home, rel)); got != AccessDenied {
			t.Errorf("%s: got %v, want denied", rel, got)
		}
	}
}

func TestProxyRejectedAtBuild(t *testing.T) {
	_, err := BuildPolicy(ModeWorkspaceWrite, t.TempDir(), nil, nil, NetworkProxy, testLimits())
	if !errors.Is(err, ErrProxyUnsupported) {
		t.Fatalf("got %v, want ErrProxyUnsupported", err)
	}
}

func TestFullAccessEvaluatesReadWrite(t *testing.T) {
	pol, err := BuildPolicy(ModeFullAccess, "", nil, nil, NetworkDeny, testLimits())
	if err != nil {
		t.Fatal(err)
	}
	if got := pol.Evaluate("/etc/shadow"); got != AccessReadWrite {
		t.Errorf("full access: got %v, want read-write", got)
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"workspace-write", ModeWorkspaceWrite, true},
		{"read-only", ModeReadOnly, true},
		{"full-access", ModeFullAccess, true},
		{"yolo", 0, false},
	}
	for _, c := range cases {
		got, err := ParseMode(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseMode(%q) = %v, %v", c.in, got, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseMode(%q) should fail", c.in)
		}
	}
}

func TestSpecIncludesScratchDir(t *testing.T) {
	ws := t.TempDir()
	pol, err := BuildPolicy(ModeWorkspaceWrite, ws, nil, nil, NetworkDeny, testLimits())
	if err != nil {
		t.Fatal(err)
	}

	s := pol.spec(platform.TierStandard, "/tmp/warden-scratch-x")
	found := false
	for _, w := range s.WritePaths {
		if w == "/tmp/warden-scratch-x" {
			found = true
		}
	}
	if !found {
		t.Error("scratch dir missing from write paths")
	}
	if !s.DenyNetwork {
		t.Error("deny policy not lowered into spec")
	}
	if s.Tier != platform.TierStandard {
		t.Errorf("tier = %v, want standard", s.Tier)
	}
}
