// Package account implements the key hierarchy of the ledger: a private key
// made of two secret scalars, the compute key (pk_sig, pr_sig) derived from
// it, and the public address used as the spend/receive identity.
package account

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"

	"github.com/kysee/dpc/utils"
)

const SeedSize = 32

var (
	skSigDomain = []byte("dpc.account.sk_sig")
	rSigDomain  = []byte("dpc.account.r_sig")
)

func curveOrder() *big.Int {
	curve := tedwards.GetEdwardsCurve()
	return &curve.Order
}

func basePoint() *tedwards.PointAffine {
	curve := tedwards.GetEdwardsCurve()
	return &curve.Base
}

// HashToScalar derives a scalar from a sequence of field elements by hashing
// their canonical encodings and reducing the digest modulo the subgroup
// order. An empty preimage is rejected.
func HashToScalar(preimage []fr.Element) (*big.Int, error) {
	if len(preimage) == 0 {
		return nil, errors.New("cannot hash an empty preimage to a scalar")
	}
	digest := utils.HashFields(preimage)
	return new(big.Int).Mod(new(big.Int).SetBytes(digest), curveOrder()), nil
}

// PrivateKey holds the two secret scalars controlling a compute key.
// It is never serialized to the ledger.
type PrivateKey struct {
	Seed  []byte
	skSig *big.Int
	rSig  *big.Int
}

// NewPrivateKey samples a private key from the given randomness source.
func NewPrivateKey(rng io.Reader) (*PrivateKey, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rng, seed); err != nil {
		return nil, fmt.Errorf("failed to sample private key seed: %w", err)
	}
	return PrivateKeyFromSeed(seed), nil
}

// PrivateKeyFromSeed deterministically derives a private key from a seed.
func PrivateKeyFromSeed(seed []byte) *PrivateKey {
	skSig := new(big.Int).Mod(new(big.Int).SetBytes(utils.MiMCHash(skSigDomain, seed)), curveOrder())
	rSig := new(big.Int).Mod(new(big.Int).SetBytes(utils.MiMCHash(rSigDomain, seed)), curveOrder())
	return &PrivateKey{Seed: seed, skSig: skSig, rSig: rSig}
}

// ComputeKey returns the compute key pair (pk_sig, pr_sig) of this private
// key. The derivation is deterministic and one-to-one with the private key.
func (sk *PrivateKey) ComputeKey() *ComputeKey {
	var ck ComputeKey
	ck.PkSig.ScalarMultiplication(basePoint(), sk.skSig)
	ck.PrSig.ScalarMultiplication(basePoint(), sk.rSig)
	return &ck
}

// Address derives the public address directly from the private key as
// (sk_sig + r_sig)*G. It agrees with ComputeKey().Address() for every key.
func (sk *PrivateKey) Address() Address {
	s := new(big.Int).Mod(new(big.Int).Add(sk.skSig, sk.rSig), curveOrder())
	var a Address
	a.pt.ScalarMultiplication(basePoint(), s)
	return a
}

// ViewScalar returns the discrete log of the address point. It is the
// decryption half of the record key agreement and must never leave the
// owner's process.
func (sk *PrivateKey) ViewScalar() *big.Int {
	return new(big.Int).Mod(new(big.Int).Add(sk.skSig, sk.rSig), curveOrder())
}

// ComputeKey is the derived key pair used by signing and verification.
type ComputeKey struct {
	PkSig tedwards.PointAffine
	PrSig tedwards.PointAffine
}

// Address derives the public address pk_sig + pr_sig from the compute key.
// It fails if either component is not a valid group element.
func (ck *ComputeKey) Address() (Address, error) {
	if !ck.PkSig.IsOnCurve() || !ck.PrSig.IsOnCurve() {
		return Address{}, errors.New("compute key component is not on the curve")
	}
	var a Address
	a.pt.Add(&ck.PkSig, &ck.PrSig)
	return a, nil
}

// Address is a group element identifying a spender or receiver.
type Address struct {
	pt tedwards.PointAffine
}

// Point returns the underlying group element.
func (a *Address) Point() tedwards.PointAffine {
	return a.pt
}

// XCoordinate returns the x-coordinate used in hash preimages.
func (a *Address) XCoordinate() fr.Element {
	return a.pt.X
}

// Bytes returns the compressed encoding of the address point.
func (a *Address) Bytes() []byte {
	return a.pt.Marshal()
}

// SetBytes decodes a compressed address point.
func (a *Address) SetBytes(bz []byte) error {
	if err := a.pt.Unmarshal(bz); err != nil {
		return err
	}
	if !a.pt.IsOnCurve() {
		return errors.New("address is not on the curve")
	}
	return nil
}

func (a *Address) Equal(other *Address) bool {
	return a.pt.Equal(&other.pt)
}

func (a *Address) String() string {
	return EncodeAddress(a.Bytes())
}

var (
	noopOnce sync.Once
	noopKey  *PrivateKey
)

// NoopPrivateKey returns the network-fixed private key used to sign the
// noop input slots of a state transition. It does not control any funds.
func NoopPrivateKey() *PrivateKey {
	noopOnce.Do(func() {
		noopKey = PrivateKeyFromSeed(make([]byte, SeedSize))
	})
	return noopKey
}

// randomScalar samples a uniform nonzero scalar.
func randomScalar(rng io.Reader) (*big.Int, error) {
	for {
		s, err := crand.Int(rng, curveOrder())
		if err != nil {
			return nil, fmt.Errorf("failed to sample scalar: %w", err)
		}
		if s.Sign() != 0 {
			return s, nil
		}
	}
}
