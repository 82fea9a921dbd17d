package logging

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"
)

// MinKeyLength is the minimum required length for HMAC-SHA256 secret keys.
// 32 bytes (256 bits) matches the SHA-256 output size.
const MinKeyLength = 32

// ErrKeyTooShort is returned when the secret key is shorter than MinKeyLength.
var ErrKeyTooShort = errors.New("logging: secret key must be at least 32 bytes")

// SignatureConfig holds configuration for log signing.
type SignatureConfig struct {
	KeyID     string // identifier for the signing key (for key rotation)
	SecretKey []byte // HMAC-SHA256 secret key (32 bytes recommended)
}

// Validate checks that the configuration is usable.
func (c *SignatureConfig) Validate() error {
	if len(c.SecretKey) < MinKeyLength {
		return ErrKeyTooShort
	}
	return nil
}

// SignedEntry wraps a log entry with its cryptographic signature. Entry is
// stored as json.RawMessage to preserve the exact bytes that were signed.
type SignedEntry struct {
	Entry     json.RawMessage `json:"entry"`
	Signature string          `json:"signature"`
	KeyID     string          `json:"key_id"`
	Timestamp string          `json:"timestamp"`
}

// ComputeSignature computes HMAC-SHA256 over the JSON representation of v,
// returning a hex-encoded signature.
func ComputeSignature(v any, secretKey []byte) (string, error) {
	if len(secretKey) < MinKeyLength {
		return "", ErrKeyTooShort
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// NewSignedEntry creates a signed entry with the current UTC timestamp.
func NewSignedEntry(v any, config *SignatureConfig) (*SignedEntry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	entryJSON, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	signed := &SignedEntry{
		Entry:     entryJSON,
		KeyID:     config.KeyID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	sig, err := signed.computeSignature(config.SecretKey)
	if err != nil {
		return nil, err
	}
	signed.Signature = sig
	return signed, nil
}

func (s *SignedEntry) computeSignature(secretKey []byte) (string, error) {
	wrapper := struct {
		Entry     json.RawMessage `json:"entry"`
		Timestamp string          `json:"timestamp"`
		KeyID     string          `json:"key_id"`
	}{Entry: s.Entry, Timestamp: s.Timestamp, KeyID: s.KeyID}

	return ComputeSignature(wrapper, secretKey)
}

// Verify checks the signature of a SignedEntry in constant time.
func (s *SignedEntry) Verify(secretKey []byte) (bool, error) {
	expected, err := s.computeSignature(secretKey)
	if err != nil {
		return false, err
	}

	providedBytes, err := hex.DecodeString(s.Signature)
	if err != nil {
		return false, nil
	}
	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(providedBytes, expectedBytes) == 1, nil
}
