package approval

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"errors"
	"fmt"
)

// ErrUnsupportedAlgorithm is returned when a signature names an Algorithm
// this package does not implement.
var ErrUnsupportedAlgorithm = errors.New("approval: unsupported signature algorithm")

// VerifySignature verifies sig over digest under the algorithm and public
// key it names. Verification itself is constant-time
// with respect to signature bytes (the underlying stdlib primitives are);
// the final accept/reject decision is still a boolean, which is
// unavoidable at a digest-verification boundary.
func VerifySignature(digest [32]byte, sig ApprovalSignature) (bool, error) {
	switch sig.Algorithm {
	case AlgorithmEd25519:
		if len(sig.SignerPublicKey) != ed25519.PublicKeySize {
			return false, fmt.Errorf("approval: ed25519 public key must be %d bytes", ed25519.PublicKeySize)
		}
		return ed25519.Verify(ed25519.PublicKey(sig.SignerPublicKey), digest[:], sig.SignatureBytes), nil

	case AlgorithmRSAPSSSHA256:
		pub, err := x509.ParsePKIXPublicKey(sig.SignerPublicKey)
		if err != nil {
			return false, fmt.Errorf("approval: parse rsa public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false, errors.New("approval: public key is not RSA")
		}
		err = rsa.VerifyPSS(rsaPub, crypto.SHA256, digest[:], sig.SignatureBytes, nil)
		return err == nil, nil

	case AlgorithmECDSAP256SHA256:
		pub, err := x509.ParsePKIXPublicKey(sig.SignerPublicKey)
		if err != nil {
			return false, fmt.Errorf("approval: parse ecdsa public key: %w", err)
		}
		ecdsaPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false, errors.New("approval: public key is not ECDSA")
		}
		return ecdsa.VerifyASN1(ecdsaPub, digest[:], sig.SignatureBytes), nil

	default:
		return false, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, sig.Algorithm)
	}
}

// SignEd25519 produces an ApprovalSignature over r's canonical digest using a
// test/tooling-only helper for Ed25519 keys; RSA/ECDSA signers are
// expected to sign out-of-process (e.g. via KeyOracle.Sign) and populate
// ApprovalSignature directly.
func SignEd25519(r *Request, signerID string, priv ed25519.PrivateKey, pub ed25519.PublicKey) (ApprovalSignature, error) {
	digest := Digest(r)
	sig := ed25519.Sign(priv, digest[:])
	return ApprovalSignature{
		SignerID:          signerID,
		SignatureBytes:    sig,
		SignerPublicKey:   append([]byte(nil), pub...),
		Algorithm:         AlgorithmEd25519,
		SignedMessageHash: append([]byte(nil), digest[:]...),
	}, nil
}

// digestEqual compares two digests in constant time, used when replaying
// a stored SignedMessageHash against a freshly recomputed digest.
func digestEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
