package types

import (
	"fmt"
	"io"
	"math/big"

	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/dpc/crypto"
	"github.com/kysee/dpc/utils"
)

// EncryptedRecord is a record ciphertext addressed to the record owner.
// The ephemeral public key is the sender half of the ECDH key agreement.
type EncryptedRecord struct {
	EphemeralPublicKey tedwards.PointAffine
	Ciphertext         []byte
}

// recordPlaintext is the RLP layout of the encrypted record body. The owner
// and program are not carried: the recipient knows its own address and the
// program id is bound publicly through the ciphertext identifier.
type recordPlaintext struct {
	Value             *big.Int
	Payload           []byte
	ProgramID         []byte
	SerialNumberNonce []byte
	Randomness        []byte
}

// EncryptRecord encrypts the record under a freshly sampled randomizer.
// It returns the ciphertext and the ephemeral scalar, which becomes an
// inner-proof private witness.
func EncryptRecord(r *Record, rng io.Reader) (*EncryptedRecord, *big.Int, error) {
	randomizer, epk, err := crypto.NewEphemeralKey(rng)
	if err != nil {
		return nil, nil, err
	}

	ownerPt := r.Owner.Point()
	shared, err := crypto.SharedSecret(randomizer, &ownerPt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to agree on a record key: %w", err)
	}
	stream, err := crypto.SaplingKDF(shared, crypto.KeySize+crypto.NonceSize)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := rlp.EncodeToBytes(&recordPlaintext{
		Value:             r.Value.ToBig(),
		Payload:           r.Payload,
		ProgramID:         r.ProgramID,
		SerialNumberNonce: r.SerialNumberNonce,
		Randomness:        r.Randomness,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode record plaintext: %w", err)
	}

	ciphertext, err := crypto.Seal(stream[:crypto.KeySize], stream[crypto.KeySize:], plaintext, epk.Marshal())
	if err != nil {
		return nil, nil, err
	}

	return &EncryptedRecord{EphemeralPublicKey: epk, Ciphertext: ciphertext}, randomizer, nil
}

// Decrypt recovers the record using the owner's private key.
func (er *EncryptedRecord) Decrypt(owner *account.PrivateKey) (*Record, error) {
	shared, err := crypto.SharedSecret(owner.ViewScalar(), &er.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to agree on a record key: %w", err)
	}
	stream, err := crypto.SaplingKDF(shared, crypto.KeySize+crypto.NonceSize)
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.Open(stream[:crypto.KeySize], stream[crypto.KeySize:], er.Ciphertext, er.EphemeralPublicKey.Marshal())
	if err != nil {
		return nil, err
	}

	var pt recordPlaintext
	if err := rlp.DecodeBytes(plaintext, &pt); err != nil {
		return nil, fmt.Errorf("failed to decode record plaintext: %w", err)
	}
	value, overflow := uint256.FromBig(pt.Value)
	if overflow {
		return nil, fmt.Errorf("record value overflows uint256")
	}

	return &Record{
		Owner:             owner.Address(),
		Value:             value,
		Payload:           pt.Payload,
		ProgramID:         pt.ProgramID,
		SerialNumberNonce: pt.SerialNumberNonce,
		Randomness:        pt.Randomness,
	}, nil
}

// ID derives the public ciphertext identifier binding the ciphertext to the
// committed record. The same derivation is enforced inside the inner circuit.
func (er *EncryptedRecord) ID(commitment []byte) []byte {
	return utils.MiMCHash(commitment, er.EphemeralPublicKey.X.Marshal())
}
