//go:build linux

package linux

import (
	"errors"
	"syscall"
	"testing"
)

func TestParseKernelVersion(t *testing.T) {
	cases := []struct {
		in   string
		want KernelVersion
		ok   bool
	}{
		{"6.8.0-generic", KernelVersion{6, 8, 0}, true},
		{"5.13.19", KernelVersion{5, 13, 19}, true},
		{"5.15", KernelVersion{5, 15, 0}, true},
		{"6.1.0-rc3 extra", KernelVersion{6, 1, 0}, true},
		{"banana", KernelVersion{}, false},
		{"6", KernelVersion{}, false},
		{"6.x.0", KernelVersion{}, false},
	}
	for _, c := range cases {
		got, err := ParseKernelVersion(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseKernelVersion(%q) = %+v, %v; want %+v", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseKernelVersion(%q) should fail", c.in)
		}
	}
}

func TestKernelVersionAtLeast(t *testing.T) {
	v := KernelVersion{Major: 5, Minor: 13, Patch: 4}
	cases := []struct {
		major, minor int
		want         bool
	}{
		{5, 13, true},
		{5, 12, true},
		{5, 14, false},
		{4, 20, true},
		{6, 0, false},
	}
	for _, c := range cases {
		if got := v.AtLeast(c.major, c.minor); got != c.want {
			t.Errorf("%s.AtLeast(%d, %d) = %v, want %v", v, c.major, c.minor, got, c.want)
		}
	}
}

func TestDetectKernelVersionParsesProcVersion(t *testing.T) {
	orig := readProcVersion
	defer func() { readProcVersion = orig }()

	readProcVersion = func() ([]byte, error) {
		return []byte("Linux version 6.8.0-45-generic (buildd@host) ..."), nil
	}
	v, err := DetectKernelVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != (KernelVersion{6, 8, 0}) {
		t.Errorf("got %+v", v)
	}

	readProcVersion = func() ([]byte, error) { return nil, errors.New("no proc") }
	if _, err := DetectKernelVersion(); err == nil {
		t.Error("read failure should propagate")
	}
}

func TestDetectUserNamespacesSysctl(t *testing.T) {
	if syscall.Geteuid() == 0 {
		t.Skip("root always has user namespaces")
	}
	orig := readUsernsSysctl
	defer func() { readUsernsSysctl = orig }()

	readUsernsSysctl = func() ([]byte, error) { return []byte("0\n"), nil }
	if DetectUserNamespaces() {
		t.Error("sysctl 0 should disable user namespaces")
	}

	readUsernsSysctl = func() ([]byte, error) { return []byte("1\n"), nil }
	if !DetectUserNamespaces() {
		t.Error("sysctl 1 should enable user namespaces")
	}

	// Absent sysctl means the kernel default (enabled) applies.
	readUsernsSysctl = func() ([]byte, error) { return nil, errors.New("ENOENT") }
	if !DetectUserNamespaces() {
		t.Error("absent sysctl should default to enabled")
	}
}

func TestDetectSeccomp(t *testing.T) {
	orig := seccompProbeFn
	defer func() { seccompProbeFn = orig }()

	seccompProbeFn = func() (uintptr, uintptr, syscall.Errno) { return 0, 0, 0 }
	if !DetectSeccomp() {
		t.Error("clean probe should report support")
	}

	seccompProbeFn = func() (uintptr, uintptr, syscall.Errno) { return 0, 0, syscall.EINVAL }
	if DetectSeccomp() {
		t.Error("EINVAL probe should report no support")
	}
}

func TestDetectLandlockVersionProbe(t *testing.T) {
	orig := landlockCreateRulesetFn
	defer func() { landlockCreateRulesetFn = orig }()

	landlockCreateRulesetFn = func(attr, size, flags uintptr) (uintptr, uintptr, syscall.Errno) {
		if flags != 1 {
			t.Errorf("probe must use LANDLOCK_CREATE_RULESET_VERSION, got flags=%d", flags)
		}
		return 3, 0, 0
	}
	info := DetectLandlock()
	if !info.Supported || info.ABIVersion != 3 {
		t.Errorf("got %+v", info)
	}

	landlockCreateRulesetFn = func(attr, size, flags uintptr) (uintptr, uintptr, syscall.Errno) {
		return 0, 0, syscall.ENOSYS
	}
	if DetectLandlock().Supported {
		t.Error("ENOSYS should report unsupported")
	}
}
