package trust

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wardenhq/warden/audit"
)

// PolicyDocName is the workspace policy document filename.
const PolicyDocName = "WARDEN.md"

// ErrStrictVerification indicates session start was aborted because the
// policy document failed verification under strict_policy.
var ErrStrictVerification = errors.New("policy document failed verification")

// SecurityContext bundles the trust state for one workspace: the device
// key, the audit chain, and the document/manifest locations. It is an
// explicit value threaded through callers; there is no package-level
// singleton, so tests and multi-workspace embedders get isolated state.
type SecurityContext struct {
	Key   *DeviceKey
	Chain *audit.Chain

	// DocPath is the workspace policy document; ManifestPath its detached
	// signature.
	DocPath      string
	ManifestPath string

	// Strict aborts session start on verification failure instead of
	// degrading to the built-in suffix alone.
	Strict bool

	Inject InjectOptions
}

// NewSecurityContext assembles a context for the workspace rooted at
// workspaceRoot, loading (or creating) the device key at keyPath and the
// audit chain at auditPath.
func NewSecurityContext(workspaceRoot, keyPath, auditPath string) (*SecurityContext, error) {
	key, err := LoadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}
	chain, err := audit.Open(auditPath)
	if err != nil {
		return nil, err
	}
	doc := filepath.Join(workspaceRoot, PolicyDocName)
	return &SecurityContext{
		Key:          key,
		Chain:        chain,
		DocPath:      doc,
		ManifestPath: doc + ManifestSuffix,
	}, nil
}

// SignDocument signs the current policy document, writes its manifest,
// and records the signing in the audit chain.
func (sc *SecurityContext) SignDocument() (*Manifest, error) {
	doc, err := os.ReadFile(sc.DocPath)
	if err != nil {
		return nil, fmt.Errorf("read policy document: %w", err)
	}

	m, err := Sign(sc.Key, doc)
	if err != nil {
		return nil, err
	}
	if err := WriteManifest(sc.ManifestPath, m); err != nil {
		return nil, err
	}

	if _, err := sc.Chain.Append(audit.KindSign, map[string]string{
		"document":     sc.DocPath,
		"content_hash": m.ContentHash,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// VerifyDocument checks the policy document against its manifest and
// records the outcome. A tampered result additionally records a
// tamper_detected entry; detection happens only when verification runs,
// never retroactively.
func (sc *SecurityContext) VerifyDocument() (VerifyStatus, error) {
	status := sc.verify()

	if _, err := sc.Chain.Append(audit.KindVerify, map[string]string{
		"document": sc.DocPath,
		"result":   status.String(),
	}); err != nil {
		return status, err
	}
	if status == StatusTampered {
		if _, err := sc.Chain.Append(audit.KindTamperDetected, map[string]string{
			"document": sc.DocPath,
		}); err != nil {
			return status, err
		}
	}
	return status, nil
}

func (sc *SecurityContext) verify() VerifyStatus {
	doc, err := os.ReadFile(sc.DocPath)
	if errors.Is(err, os.ErrNotExist) {
		// No document: nothing to verify, nothing to trust.
		return StatusMissing
	}
	if err != nil {
		return StatusTampered
	}

	manifest, err := ReadManifest(sc.ManifestPath)
	if err != nil {
		// A manifest that exists but does not parse was altered.
		return StatusTampered
	}
	return Verify(sc.Key, doc, manifest)
}

// SessionBlock verifies the policy document and composes the security
// block for a new session. A valid document contributes its content as
// the policy layer; a missing or tampered one is dropped (with the
// outcome recorded), leaving the built-in suffix. Under Strict, a
// tampered document aborts instead.
func (sc *SecurityContext) SessionBlock() (string, VerifyStatus, error) {
	status, err := sc.VerifyDocument()
	if err != nil {
		return "", status, err
	}

	if status == StatusTampered && sc.Strict {
		return "", status, fmt.Errorf("%w: %s", ErrStrictVerification, sc.DocPath)
	}

	var policyDoc string
	if status == StatusValid {
		data, err := os.ReadFile(sc.DocPath)
		if err != nil {
			return "", status, fmt.Errorf("read policy document: %w", err)
		}
		policyDoc = string(data)
	}

	return ComposeBlock(policyDoc, sc.Inject), status, nil
}

// VerifyAuditChain verifies the audit log's hash chain. A broken chain is
// itself recorded as a tamper_detected entry (the append links to the
// stored head, so later verification still pinpoints the original break).
func (sc *SecurityContext) VerifyAuditChain() error {
	err := sc.Chain.Verify()
	if err == nil {
		return nil
	}
	var be *audit.BreakError
	if errors.As(err, &be) {
		payload := map[string]string{
			"target": "audit_log",
			"entry":  strconv.Itoa(be.Index),
		}
		if _, appendErr := sc.Chain.Append(audit.KindTamperDetected, payload); appendErr != nil {
			return fmt.Errorf("%w (recording failed: %v)", err, appendErr)
		}
	}
	return err
}

// RecordBlockedWrite logs a refused write to a protected trust file. The
// sandbox denies the write itself; callers that observe the refusal (the
// file-tool layer of an embedding agent) report it here.
func (sc *SecurityContext) RecordBlockedWrite(path, reason string) error {
	_, err := sc.Chain.Append(audit.KindBlockedWrite, map[string]string{
		"path":   path,
		"reason": reason,
	})
	return err
}
