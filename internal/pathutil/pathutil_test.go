package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHasPathPrefix(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"/home/user/project", "/home/user", true},
		{"/home/user", "/home/user", true},
		{"/home/user2", "/home/user", false},
		{"/home/user/../other", "/home/user", false},
		{"/anything", "/", true},
		{"/home/user/a/b/c", "/home/user/a", true},
		{"/home", "/home/user", false},
	}
	for _, c := range cases {
		if got := HasPathPrefix(c.path, c.prefix); got != c.want {
			t.Errorf("HasPathPrefix(%q, %q) = %v, want %v", c.path, c.prefix, got, c.want)
		}
	}
}

func TestNormalizeAbs(t *testing.T) {
	got, err := NormalizeAbs("/a/b/../c")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/a/c" {
		t.Errorf("got %q, want /a/c", got)
	}

	if _, err := NormalizeAbs(""); err == nil {
		t.Error("empty path should fail")
	}
	if _, err := NormalizeAbs("/a\x00b"); err == nil {
		t.Error("null byte should fail")
	}
}

func TestContainsNullByte(t *testing.T) {
	if ContainsNullByte("/plain/path") {
		t.Error("false positive")
	}
	if !ContainsNullByte("/pa\x00th") {
		t.Error("missed null byte")
	}
}

func TestIsSymlinkOutsideBoundary(t *testing.T) {
	if IsSymlinkOutsideBoundary("/home/user/link", "/home/user/target") {
		t.Error("sibling resolution flagged as escape")
	}
	if !IsSymlinkOutsideBoundary("/home/user/link", "/etc/passwd") {
		t.Error("escape not flagged")
	}
}

func TestResolveWithBoundaryCheck(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := ResolveWithBoundaryCheck(link); err != nil {
		t.Errorf("in-boundary symlink rejected: %v", err)
	}

	outside := filepath.Join(t.TempDir(), "outside")
	if err := os.WriteFile(outside, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	escape := filepath.Join(dir, "escape")
	if err := os.Symlink(outside, escape); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveWithBoundaryCheck(escape); err == nil {
		t.Error("escaping symlink accepted")
	}
}
