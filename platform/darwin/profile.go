//go:build darwin

package darwin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wardenhq/warden/platform"
)

// profileBuilder constructs an SBPL (Sandbox Profile Language) profile from
// a platform.Spec. SBPL is a Scheme-like S-expression language; within one
// operation, later rules win, so deny rules for the policy's deny paths are
// always emitted last.
type profileBuilder struct {
	buf strings.Builder
}

func newProfileBuilder() *profileBuilder {
	return &profileBuilder{}
}

// Build generates the SBPL profile for the given spec.
func (b *profileBuilder) Build(spec *platform.Spec) (string, error) {
	b.buf.Reset()

	b.writeBase()
	b.writeFileRead(spec)
	b.writeFileWrite(spec)
	b.writeDenyOverrides(spec)
	b.writeNetwork(spec)
	b.writePTY()

	return b.buf.String(), nil
}

// writeBase emits the version header and the process/IPC permissions a
// shell needs to start at all under (deny default).
func (b *profileBuilder) writeBase() {
	b.line("(version 1)")
	b.line("(deny default)")
	b.blank()
	b.comment("Basic process operations")
	b.line("(allow process-fork)")
	b.line("(allow process-exec)")
	b.line("(allow signal (target self))")
	b.line("(allow process-info* (target same-sandbox))")
	b.comment("Sysctl reads commonly issued by libc and shells")
	b.line("(allow sysctl-read")
	b.line(`  (sysctl-name "hw.activecpu")`)
	b.line(`  (sysctl-name "hw.logicalcpu")`)
	b.line(`  (sysctl-name "hw.logicalcpu_max")`)
	b.line(`  (sysctl-name "hw.machine")`)
	b.line(`  (sysctl-name "hw.memsize")`)
	b.line(`  (sysctl-name "hw.ncpu")`)
	b.line(`  (sysctl-name "hw.pagesize")`)
	b.line(`  (sysctl-name "hw.physicalcpu")`)
	b.line(`  (sysctl-name "hw.physicalcpu_max")`)
	b.line(`  (sysctl-name "kern.argmax")`)
	b.line(`  (sysctl-name "kern.hostname")`)
	b.line(`  (sysctl-name "kern.maxfilesperproc")`)
	b.line(`  (sysctl-name "kern.osproductversion")`)
	b.line(`  (sysctl-name "kern.osrelease")`)
	b.line(`  (sysctl-name "kern.ostype")`)
	b.line(`  (sysctl-name "kern.osversion")`)
	b.line(`  (sysctl-name "kern.usrstack64")`)
	b.line(`  (sysctl-name "kern.version")`)
	b.line(`  (sysctl-name-prefix "kern.proc.pid.")`)
	b.line(`  (sysctl-name-prefix "machdep.cpu.")`)
	b.line(")")
	b.comment("POSIX IPC for shared memory and semaphores")
	b.line("(allow ipc-posix-shm)")
	b.line("(allow ipc-posix-sem)")
	b.comment("Mach IPC for essential system services")
	b.line("(allow mach-lookup")
	b.line(`  (global-name "com.apple.logd")`)
	b.line(`  (global-name "com.apple.lsd.mapdb")`)
	b.line(`  (global-name "com.apple.system.logger")`)
	b.line(`  (global-name "com.apple.system.notification_center")`)
	b.line(`  (global-name "com.apple.system.opendirectoryd.libinfo")`)
	b.line(`  (global-name "com.apple.system.opendirectoryd.membership")`)
	b.line(`  (global-name "com.apple.bsd.dirhelper")`)
	b.line(`  (global-name "com.apple.coreservices.launchservicesd")`)
	b.line(`  (global-name "com.apple.SecurityServer")`)
	b.line(")")
	b.line("(allow mach-per-user-lookup)")
	b.blank()
}

// writeFileRead emits read rules for the policy's read and write prefixes.
// Reads are deny-by-default; only listed prefixes are granted.
func (b *profileBuilder) writeFileRead(spec *platform.Spec) {
	b.comment("File read: deny by default, allow policy prefixes")
	for _, p := range spec.ReadPaths {
		b.linef("(allow file-read* (subpath \"%s\"))", escapeForSBPL(canonicalizePath(p)))
	}
	for _, p := range spec.WritePaths {
		b.linef("(allow file-read* (subpath \"%s\"))", escapeForSBPL(canonicalizePath(p)))
	}
	// Metadata reads on ancestor directories so path resolution works.
	b.line("(allow file-read-metadata)")
	b.blank()
}

// writeFileWrite emits write rules for the policy's writable prefixes plus
// the temp directories every shell expects.
func (b *profileBuilder) writeFileWrite(spec *platform.Spec) {
	b.comment("File write: deny by default, allow policy prefixes")
	for _, d := range tmpdirParents() {
		b.linef("(allow file-write* (subpath \"%s\"))", escapeForSBPL(d))
	}
	for _, p := range spec.WritePaths {
		b.linef("(allow file-write* (subpath \"%s\"))", escapeForSBPL(canonicalizePath(p)))
	}
	b.blank()
}

// writeDenyOverrides emits deny rules for the policy's deny paths. They
// come after every allow so they win on any overlap, and file-write-unlink
// is denied on ancestors to block bypass via moving a parent directory.
func (b *profileBuilder) writeDenyOverrides(spec *platform.Spec) {
	if len(spec.DenyPaths) == 0 {
		return
	}
	b.comment("Denied prefixes override every allow above")
	seen := make(map[string]bool)
	for _, p := range spec.DenyPaths {
		cp := canonicalizePath(p)
		escaped := escapeForSBPL(cp)
		b.linef("(deny file-read* (subpath \"%s\"))", escaped)
		b.linef("(deny file-write* (subpath \"%s\"))", escaped)
		b.linef(`(deny file-write-unlink (subpath "%s"))`, escaped)
		for _, ancestor := range ancestorDirectories(cp) {
			if !seen[ancestor] {
				seen[ancestor] = true
				b.linef(`(deny file-write-unlink (literal "%s"))`, escapeForSBPL(ancestor))
			}
		}
	}
	b.blank()
}

// writeNetwork emits the network rules. The only supported policy is deny;
// local UDP stays open for DNS-over-localhost resolvers that some tools
// insist on probing even when offline.
func (b *profileBuilder) writeNetwork(spec *platform.Spec) {
	if !spec.DenyNetwork {
		b.comment("Network: no restrictions")
		b.line("(allow network*)")
		b.blank()
		return
	}
	b.comment("Network: deny all")
	b.line("(deny network*)")
	b.line(`(allow network* (local udp "localhost:*"))`)
	b.blank()
}

// writePTY allows TTY access so interactive tools don't wedge.
func (b *profileBuilder) writePTY() {
	b.comment("Terminal devices")
	b.line(`(allow file-read* file-write* (literal "/dev/tty"))`)
	b.line(`(allow file-read* file-write* (regex #"^/dev/ttys[0-9]+$"))`)
	b.line(`(allow file-ioctl (literal "/dev/tty"))`)
	b.line(`(allow file-ioctl (regex #"^/dev/ttys[0-9]+$"))`)
}

func (b *profileBuilder) line(s string) {
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) linef(format string, args ...any) {
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) comment(s string) {
	b.buf.WriteString("; ")
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

func (b *profileBuilder) blank() {
	b.buf.WriteByte('\n')
}

// canonicalizePath resolves symlinks so SBPL subpath rules match the real
// filesystem layout (/tmp is a symlink to /private/tmp on macOS).
func canonicalizePath(p string) string {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return resolved
}

// tmpdirParents returns the temp directories a shell needs writable.
func tmpdirParents() []string {
	dirs := []string{"/private/tmp", "/private/var/tmp"}
	if td := os.TempDir(); td != "" {
		dirs = append(dirs, canonicalizePath(td))
	}
	return dirs
}

// ancestorDirectories returns all parent directories of p, excluding "/".
func ancestorDirectories(p string) []string {
	var ancestors []string
	current := filepath.Dir(p)
	for current != "/" && current != "." {
		ancestors = append(ancestors, current)
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return ancestors
}

// escapeForSBPL escapes backslashes and double quotes for embedding a path
// in an SBPL string literal.
func escapeForSBPL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
