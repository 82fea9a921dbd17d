package shamir

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"
)

func testSecret(t *testing.T) []byte {
	t.Helper()
	secret := make([]byte, 32)
	secret[0] = 0x01
	secret[31] = 0x20
	for i := 1; i < 31; i++ {
		secret[i] = byte(i + 1)
	}
	return secret
}

func TestSplitCombine_RoundTrip(t *testing.T) {
	secret := testSecret(t)

	shares, err := Split(secret, 3, 5)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("Split() returned %d shares, want 5", len(shares))
	}

	// Any 3 of the 5 shares must reconstruct the secret.
	subsets := [][]int{{0, 1, 2}, {0, 2, 4}, {1, 3, 4}, {2, 3, 4}}
	for _, subset := range subsets {
		chosen := make([]Share, 0, 3)
		for _, idx := range subset {
			chosen = append(chosen, shares[idx])
		}
		got, err := Combine(chosen, 3)
		if err != nil {
			t.Fatalf("Combine(%v) error = %v", subset, err)
		}
		if !bytes.Equal(padLeft(got, MaxSecretBytes), secret) {
			t.Errorf("Combine(%v) = %x, want %x", subset, got, secret)
		}
	}
}

func TestCombine_InsufficientShares(t *testing.T) {
	secret := testSecret(t)
	shares, err := Split(secret, 3, 5)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	_, err = Combine(shares[:2], 3)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("Combine() with 2 of 3 required error = %v, want ErrInsufficientShares", err)
	}
}

func TestCombine_DuplicateShareIndex(t *testing.T) {
	secret := testSecret(t)
	shares, err := Split(secret, 3, 5)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	dup := []Share{shares[0], shares[0], shares[1]}
	_, err = Combine(dup, 3)
	if !errors.Is(err, ErrDuplicateShareIndex) {
		t.Errorf("Combine() with duplicate index error = %v, want ErrDuplicateShareIndex", err)
	}
}

func TestSplit_ThresholdOutOfRange(t *testing.T) {
	secret := testSecret(t)

	testCases := []struct {
		name string
		k, n int
	}{
		{name: "k > n", k: 6, n: 5},
		{name: "k = 0", k: 0, n: 5},
		{name: "k negative", k: -1, n: 5},
		{name: "n over 255", k: 2, n: 256},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split(secret, tc.k, tc.n)
			if !errors.Is(err, ErrThresholdOutOfRange) {
				t.Errorf("Split(k=%d, n=%d) error = %v, want ErrThresholdOutOfRange", tc.k, tc.n, err)
			}
		})
	}
}

func TestSplit_SecretTooWide(t *testing.T) {
	secret := make([]byte, MaxSecretBytes+1)
	secret[0] = 1

	_, err := Split(secret, 2, 3)
	if !errors.Is(err, ErrSecretTooWide) {
		t.Errorf("Split() with 33-byte secret error = %v, want ErrSecretTooWide", err)
	}
}

func TestSplit_NoShareAtZero(t *testing.T) {
	secret := testSecret(t)
	shares, err := Split(secret, 2, 10)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for _, s := range shares {
		if s.Index == 0 {
			t.Fatal("Split() produced a share at x = 0")
		}
	}
}

func TestCombine_WrongShareDoesNotError(t *testing.T) {
	// Substituting an adversarial share that is not on the true polynomial
	// must not be detected by Combine (shares do not verify themselves per
	// spec); it silently yields a value different from the original secret.
	secret := testSecret(t)
	shares, err := Split(secret, 3, 5)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	forgedValue := new(big.Int).Add(shares[2].Value, big.NewInt(1))
	forgedValue.Mod(forgedValue, prime)
	forged := Share{Index: shares[2].Index, Value: forgedValue}

	tampered := []Share{shares[0], shares[1], forged}
	got, err := Combine(tampered, 3)
	if err != nil {
		t.Fatalf("Combine() with forged share unexpectedly errored: %v", err)
	}
	if bytes.Equal(padLeft(got, MaxSecretBytes), secret) {
		t.Error("Combine() with forged share reconstructed the original secret; want a different value")
	}
}

func TestSanityCheck(t *testing.T) {
	secret := testSecret(t)
	shares, err := Split(secret, 3, 5)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if err := SanityCheck(shares, 3, secret); err != nil {
		t.Errorf("SanityCheck() error = %v, want nil", err)
	}
}

func TestSplitCombine_StatisticalIndependenceBelowThreshold(t *testing.T) {
	// Any k-1 shares must not determine the secret: combining two
	// different (k-1)-subsets padded with independently random guesses at
	// the missing share should not converge on the same wrong answer twice
	// in a way that reveals structure. This is a coarse smoke test, not a
	// statistical proof.
	secret := testSecret(t)
	shares, err := Split(secret, 3, 5)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		guess := make([]byte, MaxSecretBytes)
		if _, err := rand.Read(guess); err != nil {
			t.Fatalf("rand.Read() error = %v", err)
		}
		forged := Share{Index: shares[2].Index, Value: new(big.Int).SetBytes(guess)}
		got, err := Combine([]Share{shares[0], shares[1], forged}, 3)
		if err != nil {
			t.Fatalf("Combine() error = %v", err)
		}
		if bytes.Equal(padLeft(got, MaxSecretBytes), secret) {
			t.Error("Combine() with random forged share reconstructed the real secret; astronomically unlikely")
		}
	}
}
