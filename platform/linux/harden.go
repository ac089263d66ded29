//go:build linux

package linux

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wardenhq/warden/platform"
)

// prctl constants not available in all Go syscall packages.
const (
	prSetNoNewPrivs = 38
	prSetDumpable   = 4
)

// prctlFunc is a function variable for the prctl syscall, overridden in tests.
var prctlFunc = func(option, arg2, arg3, arg4, arg5, arg6 uintptr) (uintptr, uintptr, syscall.Errno) {
	return syscall.Syscall6(syscall.SYS_PRCTL, option, arg2, arg3, arg4, arg5, arg6)
}

// setrlimitFunc is a function variable for setrlimit, overridden in tests.
var setrlimitFunc = unix.Setrlimit

// hardenProcess applies process hardening to the current process:
//   - PR_SET_NO_NEW_PRIVS: required for seccomp and Landlock without
//     CAP_SYS_ADMIN, and prevents setuid escalation.
//   - PR_SET_DUMPABLE = 0: prevents core dumps and ptrace attachment.
//   - RLIMIT_CORE = 0: ensures no core dump files are written.
func hardenProcess() error {
	if _, _, errno := prctlFunc(prSetNoNewPrivs, 1, 0, 0, 0, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", errno)
	}

	if _, _, errno := prctlFunc(prSetDumpable, 0, 0, 0, 0, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_DUMPABLE): %w", errno)
	}

	rlimit := unix.Rlimit{Cur: 0, Max: 0}
	if err := setrlimitFunc(unix.RLIMIT_CORE, &rlimit); err != nil {
		return fmt.Errorf("setrlimit(RLIMIT_CORE): %w", err)
	}

	return nil
}

// rlimitEntry pairs a resource type with its limit value.
type rlimitEntry struct {
	resource int
	rlimit   unix.Rlimit
}

// applyResourceLimits sets rlimit ceilings on the current process. It runs
// in the re-exec child before enforcement so the parent is never affected.
// File-size and process-count ceilings work on every tier, including None.
func applyResourceLimits(limits *platform.Limits) error {
	if limits == nil {
		return nil
	}

	var entries []rlimitEntry

	if limits.MaxProcesses > 0 {
		v := uint64(limits.MaxProcesses)
		entries = append(entries, rlimitEntry{
			resource: unix.RLIMIT_NPROC,
			rlimit:   unix.Rlimit{Cur: v, Max: v},
		})
	}

	if limits.MaxFileSizeBytes > 0 {
		v := uint64(limits.MaxFileSizeBytes)
		entries = append(entries, rlimitEntry{
			resource: unix.RLIMIT_FSIZE,
			rlimit:   unix.Rlimit{Cur: v, Max: v},
		})
	}

	for _, e := range entries {
		if err := setrlimitFunc(e.resource, &e.rlimit); err != nil {
			return fmt.Errorf("setrlimit resource %d: %w", e.resource, err)
		}
	}

	return nil
}
