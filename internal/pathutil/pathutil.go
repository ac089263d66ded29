// Package pathutil provides path helpers for sandbox policy construction:
// normalization, prefix containment, and symlink boundary checking.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ContainsNullByte reports whether s contains a NUL byte. Paths with
// embedded NULs are rejected outright because they truncate at the
// syscall boundary.
func ContainsNullByte(s string) bool {
	return strings.ContainsRune(s, 0)
}

// NormalizeAbs cleans p and resolves it to an absolute path.
func NormalizeAbs(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("pathutil: empty path")
	}
	if ContainsNullByte(p) {
		return "", fmt.Errorf("pathutil: path %q contains null byte", p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("pathutil: cannot resolve %q: %w", p, err)
	}
	return filepath.Clean(abs), nil
}

// HasPathPrefix reports whether path is prefix itself or lies beneath it.
// The check respects path separators: /home/user2 is not under /home/user.
func HasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)
	if path == prefix {
		return true
	}
	if prefix == string(filepath.Separator) {
		return strings.HasPrefix(path, string(filepath.Separator))
	}
	return strings.HasPrefix(path, prefix+string(filepath.Separator))
}

// IsSymlinkOutsideBoundary checks whether resolving a symlink broadened
// access scope. The boundary is the directory containing the original
// path; a resolved path outside it is an escape.
func IsSymlinkOutsideBoundary(originalPath, resolvedPath string) bool {
	boundary := filepath.Dir(filepath.Clean(originalPath))
	resolved := filepath.Clean(resolvedPath)
	if resolved == boundary {
		return false
	}
	if boundary == string(filepath.Separator) {
		return !strings.HasPrefix(resolved, string(filepath.Separator))
	}
	return !strings.HasPrefix(resolved, boundary+string(filepath.Separator))
}

// ResolveWithBoundaryCheck resolves symlinks in path and verifies the
// resolution stays within the directory containing the original path.
func ResolveWithBoundaryCheck(path string) (string, error) {
	abs, err := NormalizeAbs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("pathutil: cannot resolve symlinks: %w", err)
	}
	if IsSymlinkOutsideBoundary(abs, resolved) {
		return "", fmt.Errorf("pathutil: resolved path %q escapes boundary of %q", resolved, filepath.Dir(abs))
	}
	return resolved, nil
}
