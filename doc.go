// Package warden executes untrusted shell commands under kernel-enforced
// sandboxes and maintains a signed, auditable trust boundary around the
// workspace policy document.
//
// The sandbox half builds per-invocation policies (filesystem grants, a
// network posture, and resource ceilings), lowers them to the strongest
// capability tier the host supports, and enforces them with Landlock,
// seccomp, and namespaces on Linux or Seatbelt on macOS. Enforcement
// degrades tier by tier when kernel features are missing; every skipped
// protection is surfaced to the caller as a gap, never hidden.
//
// The trust half lives in the trust and audit subpackages: a per-device
// key signs the workspace policy document, verification runs at session
// start, and every signing, verification, and tamper event lands in a
// hash-chained audit log.
//
// Binaries embedding this package must call MaybeSandboxInit first thing
// in main(): on Linux the sandboxed child is this same binary re-executed
// with a policy payload, and the init step must run before anything else
// touches the process state.
package warden
