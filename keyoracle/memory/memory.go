// Package memory implements an in-process keyoracle.KeyOracle for tests
// and local development. It is never wired into a production code path.
package memory

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/trustfabric/vaultcore/keyoracle"
	"github.com/trustfabric/vaultcore/vaulterrors"
)

type key struct {
	spec      keyoracle.KeySpec
	aesKey    []byte
	edPriv    ed25519.PrivateKey
	createdAt time.Time
	destroyed bool
}

// Oracle is a thread-safe in-memory KeyOracle.
type Oracle struct {
	mu   sync.Mutex
	keys map[keyoracle.Handle]*key
	seq  int
}

// New creates an empty in-memory Oracle.
func New() *Oracle {
	return &Oracle{keys: make(map[keyoracle.Handle]*key)}
}

func (o *Oracle) GenerateKey(_ context.Context, spec keyoracle.KeySpec) (keyoracle.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	handle := keyoracle.Handle(fmt.Sprintf("mem-key-%d", o.seq))
	k := &key{spec: spec, createdAt: time.Now().UTC()}

	switch spec {
	case keyoracle.KeySpecAES256:
		k.aesKey = make([]byte, 32)
		if _, err := rand.Read(k.aesKey); err != nil {
			return "", err
		}
	case keyoracle.KeySpecEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", err
		}
		k.edPriv = priv
	default:
		return "", vaulterrors.New(vaulterrors.ErrCodeInputInvalid, "unsupported key spec", "use AES_256 or ED25519", nil)
	}

	o.keys[handle] = k
	return handle, nil
}

func (o *Oracle) lookup(handle keyoracle.Handle) (*key, error) {
	k, ok := o.keys[handle]
	if !ok {
		return nil, vaulterrors.New(vaulterrors.ErrCodeKeyOracleFailure, "unknown key handle", "verify the handle was returned by GenerateKey", nil)
	}
	if k.destroyed {
		return nil, vaulterrors.New(vaulterrors.ErrCodeKeyOracleFailure, "key handle destroyed", "generate a new key", nil)
	}
	return k, nil
}

func (o *Oracle) Encrypt(_ context.Context, handle keyoracle.Handle, plaintext, aad []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k, err := o.lookup(handle)
	if err != nil {
		return nil, err
	}
	if k.spec != keyoracle.KeySpecAES256 {
		return nil, vaulterrors.New(vaulterrors.ErrCodeKeyOracleFailure, "handle is not an encryption key", "", nil)
	}

	block, err := aes.NewCipher(k.aesKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

func (o *Oracle) Decrypt(_ context.Context, handle keyoracle.Handle, ciphertext, aad []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k, err := o.lookup(handle)
	if err != nil {
		return nil, err
	}
	if k.spec != keyoracle.KeySpecAES256 {
		return nil, vaulterrors.New(vaulterrors.ErrCodeKeyOracleFailure, "handle is not an encryption key", "", nil)
	}

	block, err := aes.NewCipher(k.aesKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, vaulterrors.New(vaulterrors.ErrCodeCiphertextTampered, "ciphertext too short", "", nil)
	}
	nonce, ct := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, vaulterrors.New(vaulterrors.ErrCodeCiphertextTampered, "authenticated decryption failed", "verify ciphertext and associated data were not altered", err)
	}
	return plaintext, nil
}

func (o *Oracle) Sign(_ context.Context, handle keyoracle.Handle, digest []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k, err := o.lookup(handle)
	if err != nil {
		return nil, err
	}
	if k.spec != keyoracle.KeySpecEd25519 {
		return nil, vaulterrors.New(vaulterrors.ErrCodeKeyOracleFailure, "handle is not a signing key", "", nil)
	}
	return ed25519.Sign(k.edPriv, digest), nil
}

func (o *Oracle) Describe(_ context.Context, handle keyoracle.Handle) (keyoracle.KeyMetadata, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k, ok := o.keys[handle]
	if !ok {
		return keyoracle.KeyMetadata{}, vaulterrors.New(vaulterrors.ErrCodeKeyOracleFailure, "unknown key handle", "", nil)
	}
	return keyoracle.KeyMetadata{Handle: handle, Spec: k.spec, CreatedAt: k.createdAt, Destroyed: k.destroyed}, nil
}

func (o *Oracle) Destroy(_ context.Context, handle keyoracle.Handle) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	k, ok := o.keys[handle]
	if !ok {
		return vaulterrors.New(vaulterrors.ErrCodeKeyOracleFailure, "unknown key handle", "", nil)
	}
	k.destroyed = true
	k.aesKey = nil
	k.edPriv = nil
	return nil
}
