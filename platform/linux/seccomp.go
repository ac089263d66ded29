//go:build linux

package linux

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"
)

// BPF instruction constants for the seccomp filter.
const (
	bpfLD  = 0x00
	bpfJMP = 0x05
	bpfRET = 0x06
	bpfW   = 0x00
	bpfABS = 0x20
	bpfJEQ = 0x10
	bpfK   = 0x00

	seccompSetModeFilter = 2 // SECCOMP_MODE_FILTER
	seccompRetAllow      = 0x7fff0000
	seccompRetErrno      = 0x00050000 // SECCOMP_RET_ERRNO
	seccompRetKill       = 0x00000000 // SECCOMP_RET_KILL

	auditArchX86_64  = 0xc000003e
	auditArchAarch64 = 0xc00000b7

	// Offset of the arch field in struct seccomp_data.
	seccompDataArchOffset = 4

	afUnix = 1
)

// sockFprog is the BPF program structure for seccomp.
type sockFprog struct {
	len    uint16
	_      [6]byte // padding
	filter unsafe.Pointer
}

// sockFilter is a single BPF instruction.
type sockFilter struct {
	code uint16
	jt   uint8
	jf   uint8
	k    uint32
}

// seccompSyscalls holds architecture-specific syscall numbers used by the
// filter.
type seccompSyscalls struct {
	auditArch  uint32
	sysSocket  uint32
	sysPtrace  uint32
	sysMount   uint32
	sysUmount2 uint32
	sysReboot  uint32
	sysSwapon  uint32
	sysSwapoff uint32
}

// seccompSyscallsFor returns the syscall numbers for the given GOARCH.
func seccompSyscallsFor(goarch string) (seccompSyscalls, error) {
	switch goarch {
	case "amd64":
		return seccompSyscalls{
			auditArch:  auditArchX86_64,
			sysSocket:  41,
			sysPtrace:  101,
			sysMount:   165,
			sysUmount2: 166,
			sysReboot:  169,
			sysSwapon:  167,
			sysSwapoff: 168,
		}, nil
	case "arm64":
		return seccompSyscalls{
			auditArch:  auditArchAarch64,
			sysSocket:  198,
			sysPtrace:  117,
			sysMount:   40,
			sysUmount2: 39,
			sysReboot:  142,
			sysSwapon:  224,
			sysSwapoff: 225,
		}, nil
	default:
		return seccompSyscalls{}, fmt.Errorf("unsupported architecture for seccomp: %s", goarch)
	}
}

// seccompSyscallsFn is a function variable for syscall lookup, overridden
// in tests.
var seccompSyscallsFn = func() (seccompSyscalls, error) {
	return seccompSyscallsFor(runtime.GOARCH)
}

// seccompPrctlFn is a function variable for the prctl syscall used to apply
// the filter. Tests override this to avoid irreversible process changes.
var seccompPrctlFn = syscall.Syscall

// buildNetworkDenyFilter constructs the BPF filter enforcing the network
// policy. socket(2) fails with EPERM for every domain except AF_UNIX (local
// IPC stays usable so shells and build tools keep working); ptrace, mount,
// umount2, reboot, swapon, and swapoff are blocked unconditionally.
func buildNetworkDenyFilter(sc seccompSyscalls) []sockFilter {
	blocked := []uint32{
		sc.sysPtrace,
		sc.sysMount,
		sc.sysUmount2,
		sc.sysReboot,
		sc.sysSwapon,
		sc.sysSwapoff,
	}

	n := len(blocked)
	// Layout:
	//   [0]        load arch
	//   [1]        arch mismatch → KILL
	//   [2]        load syscall nr
	//   [3]        if SYS_socket → domain check
	//   [4..4+n-1] blocked syscalls → EPERM
	//   [4+n]      ALLOW (fall-through)
	//   [4+n+1]    load args[0] (socket domain)
	//   [4+n+2]    if AF_UNIX → ALLOW, else fall to EPERM
	//   [4+n+3]    ALLOW
	//   [4+n+4]    EPERM
	//   [4+n+5]    KILL
	epermIdx := 4 + n + 4
	killIdx := 4 + n + 5
	domainIdx := 4 + n + 1

	filter := make([]sockFilter, 0, 4+n+6)

	filter = append(filter, sockFilter{code: bpfLD | bpfW | bpfABS, k: seccompDataArchOffset})
	filter = append(filter, sockFilter{code: bpfJMP | bpfJEQ | bpfK, jt: 0, jf: uint8(killIdx - 2), k: sc.auditArch})
	filter = append(filter, sockFilter{code: bpfLD | bpfW | bpfABS, k: 0})
	filter = append(filter, sockFilter{code: bpfJMP | bpfJEQ | bpfK, jt: uint8(domainIdx - 4), jf: 0, k: sc.sysSocket})
	for i, nr := range blocked {
		idx := 4 + i
		filter = append(filter, sockFilter{code: bpfJMP | bpfJEQ | bpfK, jt: uint8(epermIdx - idx - 1), jf: 0, k: nr})
	}
	filter = append(filter, sockFilter{code: bpfRET | bpfK, k: seccompRetAllow})
	filter = append(filter, sockFilter{code: bpfLD | bpfW | bpfABS, k: 16})
	filter = append(filter, sockFilter{code: bpfJMP | bpfJEQ | bpfK, jt: 0, jf: 1, k: afUnix})
	filter = append(filter, sockFilter{code: bpfRET | bpfK, k: seccompRetAllow})
	filter = append(filter, sockFilter{code: bpfRET | bpfK, k: seccompRetErrno | uint32(syscall.EPERM)})
	filter = append(filter, sockFilter{code: bpfRET | bpfK, k: seccompRetKill})

	return filter
}

// ApplyNetworkDeny installs the seccomp BPF filter denying network socket
// creation. It must run after Landlock restriction: seccomp would not block
// the landlock setup calls, but keeping the order fixed means the filesystem
// mechanism never races the syscall filter it runs under.
func ApplyNetworkDeny() error {
	sc, err := seccompSyscallsFn()
	if err != nil {
		return fmt.Errorf("seccomp: %w", err)
	}

	filter := buildNetworkDenyFilter(sc)

	prog := sockFprog{
		len:    uint16(len(filter)),
		filter: unsafe.Pointer(&filter[0]),
	}

	_, _, errno := seccompPrctlFn(
		syscall.SYS_PRCTL,
		syscall.PR_SET_SECCOMP,
		uintptr(seccompSetModeFilter),
		uintptr(unsafe.Pointer(&prog)),
	)
	if errno != 0 {
		return errno
	}

	return nil
}
