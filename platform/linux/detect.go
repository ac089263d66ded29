//go:build linux

package linux

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// KernelVersion represents a parsed Linux kernel version.
type KernelVersion struct {
	Major, Minor, Patch int
}

// readProcVersion is a function variable for reading /proc/version,
// overridden in tests to simulate errors.
var readProcVersion = func() ([]byte, error) {
	return os.ReadFile("/proc/version")
}

// DetectKernelVersion reads and parses the running kernel version from
// /proc/version.
func DetectKernelVersion() (KernelVersion, error) {
	data, err := readProcVersion()
	if err != nil {
		return KernelVersion{}, fmt.Errorf("read /proc/version: %w", err)
	}
	// /proc/version format: "Linux version X.Y.Z-... (...)"
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return KernelVersion{}, errors.New("unexpected /proc/version format")
	}
	return ParseKernelVersion(fields[2])
}

// ParseKernelVersion parses a kernel version string like "6.8.0-generic".
// Only major.minor.patch are extracted; any suffix is ignored.
func ParseKernelVersion(s string) (KernelVersion, error) {
	if idx := strings.IndexAny(s, "- "); idx != -1 {
		s = s[:idx]
	}
	parts := strings.SplitN(s, ".", 3)
	if len(parts) < 2 {
		return KernelVersion{}, fmt.Errorf("invalid kernel version: %q", s)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return KernelVersion{}, fmt.Errorf("invalid major version in %q: %w", s, err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return KernelVersion{}, fmt.Errorf("invalid minor version in %q: %w", s, err)
	}

	var patch int
	if len(parts) == 3 && parts[2] != "" {
		patch, err = strconv.Atoi(parts[2])
		if err != nil {
			return KernelVersion{}, fmt.Errorf("invalid patch version in %q: %w", s, err)
		}
	}

	return KernelVersion{Major: major, Minor: minor, Patch: patch}, nil
}

// AtLeast reports whether v is at least major.minor.
func (v KernelVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// String returns the version in "major.minor.patch" format.
func (v KernelVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// readUsernsSysctl is a function variable for reading the unprivileged
// user-namespace sysctl, overridden in tests.
var readUsernsSysctl = func() ([]byte, error) {
	return os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
}

// DetectUserNamespaces reports whether unprivileged user namespaces are
// usable. Root can always create them; for other users the Debian-style
// sysctl is consulted when present (absence means the kernel default of
// allowing them applies).
func DetectUserNamespaces() bool {
	if os.Geteuid() == 0 {
		return true
	}
	data, err := readUsernsSysctl()
	if err != nil {
		// Sysctl absent on most distributions; user namespaces default on.
		return true
	}
	return strings.TrimSpace(string(data)) != "0"
}

// seccompProbeFn is a function variable for the prctl probe, overridden in
// tests.
var seccompProbeFn = func() (uintptr, uintptr, syscall.Errno) {
	return syscall.Syscall(syscall.SYS_PRCTL, syscall.PR_GET_SECCOMP, 0, 0)
}

// DetectSeccomp reports whether the kernel supports seccomp filtering.
// PR_GET_SECCOMP fails with EINVAL on kernels built without seccomp.
func DetectSeccomp() bool {
	_, _, errno := seccompProbeFn()
	return errno != syscall.EINVAL
}
