package escrow

import (
	"context"

	"github.com/trustfabric/vaultcore/keyoracle"
)

// seal generates a fresh data-encryption key under oracle and encrypts
// plaintext with it, binding aad as additional authenticated data. The
// data key itself is never returned to the caller; only the ciphertext
// and the oracle's opaque handle are retained. The
// plaintext data key never exists outside the KeyOracle boundary, which
// is a stronger guarantee than generating it locally and zeroizing it.
func seal(ctx context.Context, oracle keyoracle.KeyOracle, plaintext, aad []byte) (keyoracle.Handle, []byte, error) {
	handle, err := oracle.GenerateKey(ctx, keyoracle.KeySpecAES256)
	if err != nil {
		return "", nil, err
	}
	ciphertext, err := oracle.Encrypt(ctx, handle, plaintext, aad)
	if err != nil {
		return "", nil, err
	}
	return handle, ciphertext, nil
}

// unseal decrypts ciphertext under handle, verifying aad. A mismatched
// aad or a destroyed handle surfaces as the oracle's own error; callers
// map errors that are not already a VaultError to
// vaulterrors.ErrCodeCiphertextTampered.
func unseal(ctx context.Context, oracle keyoracle.KeyOracle, handle keyoracle.Handle, ciphertext, aad []byte) ([]byte, error) {
	return oracle.Decrypt(ctx, handle, ciphertext, aad)
}

// escrowAAD binds ciphertext to the specific escrow record it belongs
// to, so a ciphertext blob copied onto a different escrow_id fails
// authenticated decryption instead of silently decrypting.
func escrowAAD(escrowID, credentialID string) []byte {
	return []byte("escrow:" + escrowID + ":" + credentialID)
}
