package trust

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// ManifestSuffix is appended to the policy document's filename to form
// its manifest path (WARDEN.md -> WARDEN.md.sig.json).
const ManifestSuffix = ".sig.json"

// Manifest is the detached signature stored next to the policy document.
type Manifest struct {
	// ContentHash is the hex BLAKE3 hash of the document bytes.
	ContentHash string `json:"content_hash"`

	// Signature is the hex keyed-BLAKE3 MAC over the content hash,
	// keyed with the device key.
	Signature string `json:"signature"`

	// SignedAt records when the manifest was produced.
	SignedAt time.Time `json:"signed_at"`
}

// VerifyStatus is the outcome of verifying a document against its manifest.
type VerifyStatus int

const (
	// StatusValid means the document matches its manifest and the
	// signature verifies under this device's key.
	StatusValid VerifyStatus = iota

	// StatusTampered means the document bytes, the manifest, or both were
	// altered since signing, or the manifest was produced by another key.
	StatusTampered

	// StatusMissing means no manifest exists for the document.
	StatusMissing
)

func (s VerifyStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusTampered:
		return "tampered"
	case StatusMissing:
		return "missing"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// contentHash returns the hex BLAKE3 hash of the document bytes.
func contentHash(doc []byte) string {
	sum := blake3.Sum256(doc)
	return hex.EncodeToString(sum[:])
}

// signHash MACs the content hash with the device key using keyed BLAKE3.
func signHash(key *DeviceKey, hash string) (string, error) {
	h, err := blake3.NewKeyed(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("init keyed hash: %w", err)
	}
	h.Write([]byte(hash))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sign produces a manifest binding doc to this device's key.
func Sign(key *DeviceKey, doc []byte) (*Manifest, error) {
	ch := contentHash(doc)
	sig, err := signHash(key, ch)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		ContentHash: ch,
		Signature:   sig,
		SignedAt:    time.Now().UTC(),
	}, nil
}

// Verify checks doc against manifest under the device key. A nil manifest
// is StatusMissing. The signature comparison is constant-time.
func Verify(key *DeviceKey, doc []byte, manifest *Manifest) VerifyStatus {
	if manifest == nil {
		return StatusMissing
	}
	if contentHash(doc) != manifest.ContentHash {
		return StatusTampered
	}
	expected, err := signHash(key, manifest.ContentHash)
	if err != nil {
		return StatusTampered
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(manifest.Signature)) != 1 {
		return StatusTampered
	}
	return StatusValid
}

// WriteManifest persists a manifest next to the document.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest. A missing file returns (nil, nil); a
// malformed file is treated by callers as tampering, so the parse error
// is returned distinctly.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
