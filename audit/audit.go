// Package audit maintains an append-only, hash-chained audit log of trust
// events. Each entry carries the hash of its predecessor, so truncating or
// editing any line breaks verification of every entry after it.
package audit

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Kind classifies an audit entry.
type Kind string

const (
	// KindSign records a policy document signing.
	KindSign Kind = "sign"

	// KindVerify records a verification run and its outcome.
	KindVerify Kind = "verify"

	// KindTamperDetected records a verification that found the document
	// or its manifest altered.
	KindTamperDetected Kind = "tamper_detected"

	// KindBlockedWrite records a refused write to a protected trust file.
	KindBlockedWrite Kind = "blocked_write"
)

// genesisSeed anchors the chain. The first entry's prev_hash is the hash
// of this constant, so an empty log has exactly one valid continuation.
const genesisSeed = "warden-audit-genesis-v1"

// Entry is one line of the audit log. Field order is fixed by the struct
// so hashing is deterministic; Payload keys are sorted by json.Marshal.
type Entry struct {
	Timestamp string            `json:"timestamp"`
	Kind      Kind              `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
}

// computeHash returns the entry's chain hash: BLAKE3 over the canonical
// serialization of every field except Hash itself.
func (e *Entry) computeHash() (string, error) {
	shadow := struct {
		Timestamp string            `json:"timestamp"`
		Kind      Kind              `json:"kind"`
		Payload   map[string]string `json:"payload,omitempty"`
		PrevHash  string            `json:"prev_hash"`
	}{e.Timestamp, e.Kind, e.Payload, e.PrevHash}

	data, err := json.Marshal(shadow)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// genesisHash returns the prev_hash of the first entry.
func genesisHash() string {
	sum := blake3.Sum256([]byte(genesisSeed))
	return hex.EncodeToString(sum[:])
}

// ErrChainBroken indicates the log failed chain verification.
var ErrChainBroken = errors.New("audit chain broken")

// BreakError reports where and why verification failed.
type BreakError struct {
	Index  int // zero-based line number of the first bad entry
	Reason string
}

func (b *BreakError) Error() string {
	return fmt.Sprintf("audit chain broken at entry %d: %s", b.Index, b.Reason)
}

func (b *BreakError) Unwrap() error { return ErrChainBroken }

// Chain is an append-only audit log backed by a JSONL file. A process-wide
// mutex serializes appends within the process; an advisory file lock
// serializes them across processes. The chain head is re-read under that
// lock on every append, so separate handles (and separate processes)
// writing to the same log always link to the entry that actually precedes
// them.
type Chain struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open prepares the chain at path, creating the log directory if absent
// and checking that an existing log parses. Open does not verify the
// whole chain (use Verify for that).
func Open(path string) (*Chain, error) {
	c := &Chain{path: path, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create log directory: %w", err)
	}
	if _, err := c.readAll(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the log file location.
func (c *Chain) Path() string { return c.path }

// Append writes a new entry linked to the current chain head. The head is
// read under the same exclusive file lock that covers the write, so no
// other writer can slip an entry in between. A transient failure is
// retried once; a second failure is returned to the caller, who must
// treat it as an integrity event.
func (c *Chain) Append(kind Kind, payload map[string]string) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.appendLocked(kind, payload)
	if err != nil {
		// One retry covers transient contention; anything persistent is
		// escalated rather than dropped.
		if entry, err = c.appendLocked(kind, payload); err != nil {
			return nil, fmt.Errorf("audit: append failed after retry: %w", err)
		}
	}
	return entry, nil
}

// appendLocked takes the file lock, reads the chain head, and writes one
// entry linked to it.
func (c *Chain) appendLocked(kind Kind, payload map[string]string) (*Entry, error) {
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return nil, fmt.Errorf("lock %s: %w", c.path, err)
	}
	defer unlockFile(f)

	head, err := c.headHash()
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Timestamp: c.now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		Payload:   payload,
		PrevHash:  head,
	}
	hash, err := entry.computeHash()
	if err != nil {
		return nil, err
	}
	entry.Hash = hash

	line, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}
	return entry, nil
}

// headHash returns the stored hash of the last entry, or the genesis hash
// for an empty log. Callers must hold the file lock.
func (c *Chain) headHash() (string, error) {
	entries, err := c.readAll()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return genesisHash(), nil
	}
	return entries[len(entries)-1].Hash, nil
}

// Entries returns all log entries, optionally filtered by kind (empty
// kind returns everything).
func (c *Chain) Entries(kind Kind) ([]Entry, error) {
	entries, err := c.readAll()
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return entries, nil
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.Kind == kind {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Verify walks the whole chain and recomputes every link. It returns nil
// when the log is intact and a *BreakError naming the first bad entry
// otherwise. Verification has no side effects and is idempotent.
func (c *Chain) Verify() error {
	entries, err := c.readAll()
	if err != nil {
		return err
	}

	prev := genesisHash()
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prev {
			return &BreakError{Index: i, Reason: "prev_hash does not match preceding entry"}
		}
		computed, err := e.computeHash()
		if err != nil {
			return &BreakError{Index: i, Reason: err.Error()}
		}
		if computed != e.Hash {
			return &BreakError{Index: i, Reason: "hash does not match entry contents"}
		}
		prev = e.Hash
	}
	return nil
}

// readAll parses the log file. A missing file is an empty chain.
func (c *Chain) readAll() ([]Entry, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, &BreakError{Index: lineNo - 1, Reason: fmt.Sprintf("malformed entry: %v", err)}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	return entries, nil
}
