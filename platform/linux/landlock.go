//go:build linux

package linux

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/wardenhq/warden/platform"
)

// Landlock syscall numbers (stable across architectures).
const (
	sysLandlockCreateRuleset = 444
	sysLandlockAddRule       = 445
	sysLandlockRestrictSelf  = 446
)

// Function variables for Landlock syscalls, overridden in tests.
var landlockCreateRulesetFn = func(attr, size, flags uintptr) (uintptr, uintptr, syscall.Errno) {
	return syscall.Syscall(uintptr(sysLandlockCreateRuleset), attr, size, flags)
}

var landlockAddRuleFn = func(rulesetFd, ruleType, ruleAttr, flags uintptr) (uintptr, uintptr, syscall.Errno) {
	return syscall.Syscall6(uintptr(sysLandlockAddRule), rulesetFd, ruleType, ruleAttr, flags, 0, 0)
}

var landlockRestrictSelfFn = func(rulesetFd, flags uintptr) (uintptr, uintptr, syscall.Errno) {
	return syscall.Syscall(uintptr(sysLandlockRestrictSelf), rulesetFd, flags, 0)
}

var (
	openPathFn  = syscall.Open
	closePathFn = syscall.Close
)

// Landlock filesystem access rights.
const (
	accessFSExecute    = 1 << 0
	accessFSWriteFile  = 1 << 1
	accessFSReadFile   = 1 << 2
	accessFSReadDir    = 1 << 3
	accessFSRemoveDir  = 1 << 4
	accessFSRemoveFile = 1 << 5
	accessFSMakeChar   = 1 << 6
	accessFSMakeDir    = 1 << 7
	accessFSMakeReg    = 1 << 8
	accessFSMakeSock   = 1 << 9
	accessFSMakeFifo   = 1 << 10
	accessFSMakeBlock  = 1 << 11
	accessFSMakeSym    = 1 << 12
	accessFSRefer      = 1 << 13 // ABI v2
	accessFSTruncate   = 1 << 14 // ABI v3
)

// landlockRulesetAttr is the attribute structure for landlock_create_ruleset.
type landlockRulesetAttr struct {
	handledAccessFS uint64
}

// landlockPathBeneathAttr is the attribute structure for LANDLOCK_RULE_PATH_BENEATH.
type landlockPathBeneathAttr struct {
	allowedAccess uint64
	parentFd      int32
	_             [4]byte // padding
}

// LandlockInfo describes Landlock support on the current kernel.
type LandlockInfo struct {
	// Supported indicates whether Landlock is available.
	Supported bool

	// ABIVersion is the Landlock ABI version supported by the kernel.
	ABIVersion int
}

// DetectLandlock queries the Landlock ABI version without creating a
// ruleset (LANDLOCK_CREATE_RULESET_VERSION). Never fails; an errno means
// the feature is absent.
func DetectLandlock() LandlockInfo {
	version, _, errno := landlockCreateRulesetFn(0, 0, 1)
	if errno != 0 {
		return LandlockInfo{}
	}
	return LandlockInfo{Supported: true, ABIVersion: int(version)}
}

// applyLandlock installs deny-by-default filesystem rules scoped to the
// spec's allow paths and restricts the current process. A denied path that
// matches a grant exactly is excluded from the ruleset; a deny nested
// beneath a granted prefix is beyond Landlock's additive rule model and is
// reported as a gap by the enforcer instead.
func applyLandlock(spec *platform.Spec) error {
	info := DetectLandlock()
	if !info.Supported {
		return fmt.Errorf("landlock unavailable: requires kernel >= 5.13")
	}

	handledAccess := uint64(accessFSExecute | accessFSWriteFile | accessFSReadFile |
		accessFSReadDir | accessFSRemoveDir | accessFSRemoveFile |
		accessFSMakeChar | accessFSMakeDir | accessFSMakeReg |
		accessFSMakeSock | accessFSMakeFifo | accessFSMakeBlock |
		accessFSMakeSym)
	if info.ABIVersion >= 2 {
		handledAccess |= accessFSRefer
	}
	if info.ABIVersion >= 3 {
		handledAccess |= accessFSTruncate
	}

	attr := landlockRulesetAttr{handledAccessFS: handledAccess}
	rulesetFd, _, errno := landlockCreateRulesetFn(
		uintptr(unsafe.Pointer(&attr)),
		unsafe.Sizeof(attr),
		0,
	)
	if errno != 0 {
		return fmt.Errorf("landlock_create_ruleset: %w", errno)
	}
	defer func() { _ = closePathFn(int(rulesetFd)) }()

	writeAccess := uint64(accessFSWriteFile | accessFSReadFile | accessFSReadDir |
		accessFSRemoveDir | accessFSRemoveFile | accessFSMakeDir |
		accessFSMakeReg | accessFSMakeSym | accessFSExecute)
	if info.ABIVersion >= 2 {
		writeAccess |= accessFSRefer
	}
	if info.ABIVersion >= 3 {
		writeAccess |= accessFSTruncate
	}

	readAccess := uint64(accessFSExecute | accessFSReadFile | accessFSReadDir)

	denied := make(map[string]bool, len(spec.DenyPaths))
	for _, p := range spec.DenyPaths {
		denied[p] = true
	}

	for _, path := range spec.WritePaths {
		if denied[path] {
			continue
		}
		if err := landlockAddPathRule(int(rulesetFd), path, writeAccess); err != nil {
			return fmt.Errorf("landlock writable rule %q: %w", path, err)
		}
	}

	for _, path := range spec.ReadPaths {
		if denied[path] {
			continue
		}
		// Read paths commonly include optional system directories that do
		// not exist on every distribution; skip those silently.
		if err := landlockAddPathRule(int(rulesetFd), path, readAccess); err != nil {
			continue
		}
	}

	// A deny path beneath an allowed prefix still inherits the parent
	// grant: Landlock cannot express subtractive rules. The enforcer
	// reports such denies as gaps and policy evaluation covers them.
	_, _, errno = landlockRestrictSelfFn(rulesetFd, 0)
	if errno != 0 {
		return fmt.Errorf("landlock_restrict_self: %w", errno)
	}

	return nil
}

// landlockAddPathRule adds a path-beneath rule to the given ruleset.
func landlockAddPathRule(rulesetFd int, path string, allowedAccess uint64) error {
	// O_PATH is not defined in the syscall package on all platforms.
	const oPath = 0x200000
	fd, err := openPathFn(path, oPath|syscall.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer func() { _ = closePathFn(fd) }()

	pathAttr := landlockPathBeneathAttr{
		allowedAccess: allowedAccess,
		parentFd:      int32(fd),
	}

	_, _, errno := landlockAddRuleFn(
		uintptr(rulesetFd),
		1, // LANDLOCK_RULE_PATH_BENEATH
		uintptr(unsafe.Pointer(&pathAttr)),
		0,
	)
	if errno != 0 {
		return fmt.Errorf("landlock_add_rule: %w", errno)
	}

	return nil
}
