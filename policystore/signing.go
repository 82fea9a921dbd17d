// Signed documents give tamper evidence to policy changes: a
// Document's canonical bytes are hashed and the hash is signed under a
// KeyOracle-held asymmetric key, stored alongside the document at a
// parallel parameter path. The signing key is addressed only through
// the abstract KeyOracle handle, never a vendor-specific client.
package policystore

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/trustfabric/vaultcore/keyoracle"
)

// Parameter path prefixes for documents and their signatures in SSM
// Parameter Store.
const (
	DocumentParameterPrefix  = "/vaultcore/policies/"
	SignatureParameterPrefix = "/vaultcore/signatures/"
)

// SignatureMetadata describes a Document signature for verification and
// auditing without requiring a KeyOracle round trip to check staleness.
type SignatureMetadata struct {
	KeyHandle    keyoracle.Handle `json:"key_handle"`
	SignedAt     time.Time        `json:"signed_at"`
	DocumentHash string           `json:"document_hash"` // hex SHA-256 of the document YAML
}

// SignedDocument combines a Document with its signature and metadata.
type SignedDocument struct {
	Document  *Document         `json:"document"`
	Signature []byte            `json:"signature"`
	Metadata  SignatureMetadata `json:"metadata"`
}

// SignatureParameterName converts a document parameter path to its
// corresponding signature parameter path.
func SignatureParameterName(docParam string) string {
	if !strings.HasPrefix(docParam, DocumentParameterPrefix) {
		return SignatureParameterPrefix + strings.TrimPrefix(docParam, "/")
	}
	return SignatureParameterPrefix + strings.TrimPrefix(docParam, DocumentParameterPrefix)
}

// ComputeDocumentHash hashes raw document YAML bytes to a hex string.
func ComputeDocumentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Validate checks that m has all required fields.
func (m SignatureMetadata) Validate() error {
	if m.KeyHandle == "" {
		return errors.New("policystore: signature metadata missing key_handle")
	}
	if m.SignedAt.IsZero() {
		return errors.New("policystore: signature metadata missing signed_at")
	}
	if m.DocumentHash == "" {
		return errors.New("policystore: signature metadata missing document_hash")
	}
	return nil
}

// MatchesHash reports, in constant time, whether m.DocumentHash matches
// the hash of raw. A match detects drift between the document and its
// recorded signature; it does not prove the signature itself verifies,
// which requires checking Signature against the oracle-held key out of
// band.
func (m SignatureMetadata) MatchesHash(raw []byte) bool {
	if m.DocumentHash == "" {
		return false
	}
	computed := ComputeDocumentHash(raw)
	return subtle.ConstantTimeCompare([]byte(m.DocumentHash), []byte(computed)) == 1
}

// Signer signs Document bytes under a KeyOracle-held asymmetric key.
type Signer struct {
	oracle keyoracle.KeyOracle
	handle keyoracle.Handle
}

// NewSigner binds a Signer to an already-generated asymmetric handle.
func NewSigner(oracle keyoracle.KeyOracle, handle keyoracle.Handle) *Signer {
	return &Signer{oracle: oracle, handle: handle}
}

// Sign produces a SignedDocument for doc's raw YAML bytes.
func (s *Signer) Sign(ctx context.Context, doc *Document, raw []byte) (*SignedDocument, error) {
	hash := sha256.Sum256(raw)
	sig, err := s.oracle.Sign(ctx, s.handle, hash[:])
	if err != nil {
		return nil, err
	}
	return &SignedDocument{
		Document:  doc,
		Signature: sig,
		Metadata: SignatureMetadata{
			KeyHandle:    s.handle,
			SignedAt:     time.Now().UTC(),
			DocumentHash: ComputeDocumentHash(raw),
		},
	}, nil
}
