// Package shamir implements Shamir's Secret Sharing over a 256-bit prime
// field: splitting a secret into n shares such that any k reconstruct it,
// while any fewer reveal nothing about it.
package shamir

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

// MaxSecretBytes is the widest secret a single split/combine call accepts.
// Wider secrets must be chunked by the caller (spec explicitly reserves,
// but does not require, multi-chunk splitting).
const MaxSecretBytes = 32

// prime is the finite field modulus, p = 2^256 - 189.
var prime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 256)
	p.Sub(p, big.NewInt(189))
	return p
}()

// Prime returns the field modulus used for all split/combine arithmetic.
func Prime() *big.Int { return new(big.Int).Set(prime) }

// Errors returned by Split and Combine.
var (
	ErrThresholdOutOfRange    = errors.New("shamir: threshold out of range")
	ErrSecretTooWide          = fmt.Errorf("shamir: secret exceeds %d bytes", MaxSecretBytes)
	ErrDuplicateShareIndex    = errors.New("shamir: duplicate share index")
	ErrInsufficientShares     = errors.New("shamir: insufficient shares")
	ErrSecretTooLargeForField = errors.New("shamir: secret value is not less than the field prime")
)

// Share is one point (x, f(x) mod p) on the secret polynomial.
type Share struct {
	Index int      // x-coordinate, in [1, 255]
	Value *big.Int // f(x) mod p
}

// Bytes returns the share's y-value as a fixed 32-byte big-endian encoding,
// suitable for storage alongside its Index.
func (s Share) Bytes() []byte {
	out := make([]byte, MaxSecretBytes)
	s.Value.FillBytes(out)
	return out
}

// ShareFromBytes reconstructs a Share from an index and its 32-byte
// big-endian value encoding.
func ShareFromBytes(index int, value []byte) Share {
	return Share{Index: index, Value: new(big.Int).SetBytes(value)}
}

// Split divides secret into n shares such that any k reconstruct it via
// Combine, while k-1 reveal nothing. Coefficients are drawn from
// crypto/rand; no share is ever evaluated at x = 0.
func Split(secret []byte, k, n int) ([]Share, error) {
	if k < 1 || k > n || n > 255 {
		return nil, fmt.Errorf("%w: k=%d n=%d", ErrThresholdOutOfRange, k, n)
	}
	if len(secret) > MaxSecretBytes {
		return nil, ErrSecretTooWide
	}

	secretInt := new(big.Int).SetBytes(secret)
	if secretInt.Cmp(prime) >= 0 {
		return nil, ErrSecretTooLargeForField
	}

	coefficients := make([]*big.Int, k)
	coefficients[0] = secretInt
	for i := 1; i < k; i++ {
		c, err := randFieldElement()
		if err != nil {
			return nil, fmt.Errorf("generate coefficient: %w", err)
		}
		coefficients[i] = c
	}

	shares := make([]Share, n)
	for i := 1; i <= n; i++ {
		x := big.NewInt(int64(i))
		shares[i-1] = Share{Index: i, Value: evaluatePolynomial(coefficients, x)}
	}
	return shares, nil
}

// Combine reconstructs the secret from at least k of the shares produced by
// a matching Split call, via Lagrange interpolation at x = 0. It rejects
// duplicate x-coordinates. The caller is responsible for using exactly the
// shares it trusts; a maliciously substituted share yields a value
// indistinguishable from random rather than an error (per the field's
// information-theoretic guarantee), so this function does not and cannot
// detect that case.
func Combine(shares []Share, k int) ([]byte, error) {
	if len(shares) < k {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(shares), k)
	}
	shares = shares[:k]

	seen := make(map[int]struct{}, k)
	for _, s := range shares {
		if _, dup := seen[s.Index]; dup {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateShareIndex, s.Index)
		}
		seen[s.Index] = struct{}{}
	}

	secretInt, err := lagrangeInterpolateAtZero(shares)
	if err != nil {
		return nil, err
	}

	out := make([]byte, MaxSecretBytes)
	secretInt.FillBytes(out)
	return trimLeadingZeros(out), nil
}

// evaluatePolynomial computes f(x) mod p using Horner's method, walking the
// coefficients from highest degree to the constant term (a0 = secret).
func evaluatePolynomial(coefficients []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int)
	for i := len(coefficients) - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coefficients[i])
		result.Mod(result, prime)
	}
	return result
}

// lagrangeInterpolateAtZero recovers f(0) from k distinct points. Every
// share goes through the same sequence of modular operations; the
// math/big arithmetic behind them is not constant-time.
func lagrangeInterpolateAtZero(shares []Share) (*big.Int, error) {
	result := new(big.Int)

	for i, si := range shares {
		numerator := big.NewInt(1)
		denominator := big.NewInt(1)

		for j, sj := range shares {
			if i == j {
				continue
			}
			xi := big.NewInt(int64(si.Index))
			xj := big.NewInt(int64(sj.Index))

			negXj := new(big.Int).Neg(xj)
			negXj.Mod(negXj, prime)
			numerator.Mul(numerator, negXj)
			numerator.Mod(numerator, prime)

			diff := new(big.Int).Sub(xi, xj)
			diff.Mod(diff, prime)
			denominator.Mul(denominator, diff)
			denominator.Mod(denominator, prime)
		}

		denominatorInv := new(big.Int).ModInverse(denominator, prime)
		if denominatorInv == nil {
			return nil, fmt.Errorf("%w: non-invertible denominator for index %d", ErrDuplicateShareIndex, si.Index)
		}

		coefficient := new(big.Int).Mul(numerator, denominatorInv)
		coefficient.Mod(coefficient, prime)

		term := new(big.Int).Mul(si.Value, coefficient)
		term.Mod(term, prime)

		result.Add(result, term)
		result.Mod(result, prime)
	}

	return result, nil
}

func randFieldElement() (*big.Int, error) {
	return rand.Int(rand.Reader, prime)
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

// SanityCheck verifies that the first k shares reconstruct want, a
// self-test run after Split to catch implementation regressions before
// shares are ever distributed. Other k-subsets are not checked.
func SanityCheck(shares []Share, k int, want []byte) error {
	if len(shares) < k {
		return ErrInsufficientShares
	}
	got, err := Combine(append([]Share(nil), shares[:k]...), k)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(padLeft(got, MaxSecretBytes), padLeft(want, MaxSecretBytes)) != 1 {
		return errors.New("shamir: reconstructed secret does not match original")
	}
	return nil
}

func padLeft(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
