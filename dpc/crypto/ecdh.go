// Package crypto provides the record-encryption primitives: an ECDH key
// agreement over the BN254 twisted Edwards curve, a Sapling-style KDF, and
// a ChaCha20-Poly1305 AEAD.
package crypto

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"golang.org/x/crypto/blake2s"
)

// NewEphemeralKey samples an ephemeral ECDH scalar and its public point
// epk = r * G.
func NewEphemeralKey(rng io.Reader) (*big.Int, tedwards.PointAffine, error) {
	curve := tedwards.GetEdwardsCurve()
	r, err := crand.Int(rng, &curve.Order)
	if err != nil {
		return nil, tedwards.PointAffine{}, fmt.Errorf("failed to sample ephemeral scalar: %w", err)
	}
	var epk tedwards.PointAffine
	epk.ScalarMultiplication(&curve.Base, r)
	return r, epk, nil
}

// SharedSecret computes the ECDH shared secret scalar * point and hashes its
// x-coordinate with BLAKE2s.
func SharedSecret(scalar *big.Int, point *tedwards.PointAffine) ([]byte, error) {
	if !point.IsOnCurve() {
		return nil, errors.New("ECDH point is not on curve")
	}

	var shared tedwards.PointAffine
	shared.ScalarMultiplication(point, scalar)
	if !shared.IsOnCurve() {
		return nil, errors.New("computed shared secret is not on curve")
	}

	hasher, err := blake2s.New256(nil)
	if err != nil {
		return nil, err
	}
	x := shared.X.Bytes()
	hasher.Write(x[:])
	return hasher.Sum(nil), nil
}

// SaplingKDF derives a key stream of the requested length from a 32-byte
// shared secret using BLAKE2s, following the PRF^expand construction of the
// Zcash Sapling specification.
func SaplingKDF(sharedSecret []byte, outputLen int) ([]byte, error) {
	if len(sharedSecret) != 32 {
		return nil, fmt.Errorf("sharedSecret must be 32 bytes")
	}

	personalization := []byte("Zcash_ExpandSeed")

	var keyStream []byte
	var counter byte = 1 // The counter must start at 1.
	for len(keyStream) < outputLen {
		h, err := blake2s.New256(personalization)
		if err != nil {
			return nil, fmt.Errorf("failed to create blake2s hash: %w", err)
		}
		h.Write(sharedSecret)
		h.Write([]byte{counter})
		keyStream = append(keyStream, h.Sum(nil)...)

		counter++
		if counter == 0 {
			return nil, errors.New("KDF counter overflow")
		}
	}

	return keyStream[:outputLen], nil
}
