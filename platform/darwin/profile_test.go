//go:build darwin

package darwin

import (
	"strings"
	"testing"

	"github.com/wardenhq/warden/platform"
)

func buildTestProfile(t *testing.T, spec *platform.Spec) string {
	t.Helper()
	profile, err := newProfileBuilder().Build(spec)
	if err != nil {
		t.Fatal(err)
	}
	return profile
}

func TestProfileDeniesByDefault(t *testing.T) {
	profile := buildTestProfile(t, &platform.Spec{})
	if !strings.HasPrefix(profile, "(version 1)\n(deny default)\n") {
		t.Errorf("profile must open with version and deny default:\n%s", profile)
	}
}

func TestProfileGrantsPolicyPaths(t *testing.T) {
	spec := &platform.Spec{
		ReadPaths:  []string{"/usr"},
		WritePaths: []string{"/ws/project"},
	}
	profile := buildTestProfile(t, spec)

	if !strings.Contains(profile, `(allow file-read* (subpath "/usr"))`) {
		t.Error("read grant missing")
	}
	if !strings.Contains(profile, `(allow file-write* (subpath "/ws/project"))`) {
		t.Error("write grant missing")
	}
	// Writable paths are readable too.
	if !strings.Contains(profile, `(allow file-read* (subpath "/ws/project"))`) {
		t.Error("write path not granted read")
	}
}

func TestProfileDenyRulesComeLast(t *testing.T) {
	spec := &platform.Spec{
		WritePaths: []string{"/home/u"},
		DenyPaths:  []string{"/home/u/.ssh"},
	}
	profile := buildTestProfile(t, spec)

	allowIdx := strings.Index(profile, `(allow file-write* (subpath "/home/u"))`)
	denyIdx := strings.Index(profile, `(deny file-write* (subpath "/home/u/.ssh"))`)
	if allowIdx < 0 || denyIdx < 0 {
		t.Fatalf("rules missing from profile:\n%s", profile)
	}
	// SBPL gives precedence to later rules within an operation; the denies
	// must follow every allow to win on overlap.
	if denyIdx < allowIdx {
		t.Error("deny rules must be emitted after allow rules")
	}
	if !strings.Contains(profile, `(deny file-read* (subpath "/home/u/.ssh"))`) {
		t.Error("denied prefix still readable")
	}
}

func TestProfileNetworkRules(t *testing.T) {
	denied := buildTestProfile(t, &platform.Spec{DenyNetwork: true})
	if !strings.Contains(denied, "(deny network*)") {
		t.Error("network deny rule missing")
	}
	if !strings.Contains(denied, `(allow network* (local udp "localhost:*"))`) {
		t.Error("localhost UDP carve-out missing")
	}

	open := buildTestProfile(t, &platform.Spec{DenyNetwork: false})
	if !strings.Contains(open, "(allow network*)") || strings.Contains(open, "(deny network*)") {
		t.Error("open network policy wrong")
	}
}

func TestProfileEscapesPaths(t *testing.T) {
	spec := &platform.Spec{WritePaths: []string{`/ws/we"ird`}}
	profile := buildTestProfile(t, spec)
	if strings.Contains(profile, `/ws/we"ird"))`) {
		t.Error("quote not escaped in SBPL literal")
	}
	if !strings.Contains(profile, `we\"ird`) {
		t.Error("escaped form missing")
	}
}

func TestEscapeForSBPL(t *testing.T) {
	cases := []struct{ in, want string }{
		{`/plain/path`, `/plain/path`},
		{`/with"quote`, `/with\"quote`},
		{`/with\backslash`, `/with\\backslash`},
	}
	for _, c := range cases {
		if got := escapeForSBPL(c.in); got != c.want {
			t.Errorf("escapeForSBPL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAncestorDirectories(t *testing.T) {
	got := ancestorDirectories("/a/b/c/d")
	want := []string{"/a/b/c", "/a/b", "/a"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ancestor[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
