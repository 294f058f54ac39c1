// Package types defines the data model of the transaction core: records,
// the transaction kernel, state transitions, authorizations, transactions,
// and the inner/outer circuits with their proving parameters.
package types

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/utils"
)

var (
	noopProgramOnce sync.Once
	noopProgramID   []byte
)

// NoopProgramID is the program identifier of records that carry no program.
func NoopProgramID() []byte {
	noopProgramOnce.Do(func() {
		noopProgramID = utils.MiMCHash([]byte("dpc.program.noop"))
	})
	ret := make([]byte, len(noopProgramID))
	copy(ret, noopProgramID)
	return ret
}

// Record is a private ledger record: an owned value with an attached
// program, a serial-number nonce and the commitment randomness.
type Record struct {
	Owner             account.Address
	Value             *uint256.Int
	Payload           []byte
	ProgramID         []byte
	SerialNumberNonce []byte
	Randomness        []byte
}

// NewRecord builds a record for the given owner, sampling the serial-number
// nonce and commitment randomness from rng.
func NewRecord(owner account.Address, value *uint256.Int, payload, programID []byte, rng io.Reader) (*Record, error) {
	nonce, err := randomFieldBytes(rng)
	if err != nil {
		return nil, err
	}
	randomness, err := randomFieldBytes(rng)
	if err != nil {
		return nil, err
	}
	return &Record{
		Owner:             owner,
		Value:             value,
		Payload:           payload,
		ProgramID:         programID,
		SerialNumberNonce: nonce,
		Randomness:        randomness,
	}, nil
}

// NewNoopRecord builds a zero-valued placeholder record owned by the
// network noop key.
func NewNoopRecord(rng io.Reader) (*Record, error) {
	return NewRecord(account.NoopPrivateKey().Address(), uint256.NewInt(0), nil, NoopProgramID(), rng)
}

// IsDummy reports whether this record represents no real value.
func (r *Record) IsDummy() bool {
	return r.Value.IsZero() && len(r.Payload) == 0
}

// PayloadDigest hashes the record payload to a single field-sized value.
func (r *Record) PayloadDigest() []byte {
	return utils.MiMCHash(r.Payload)
}

// Commitment commits to the full record opening. The layout matches the
// in-circuit recomputation field for field.
func (r *Record) Commitment() []byte {
	ownerX := r.Owner.XCoordinate()
	return utils.MiMCHash(
		ownerX.Marshal(),
		value32(r.Value),
		r.PayloadDigest(),
		r.ProgramID,
		r.SerialNumberNonce,
		r.Randomness,
	)
}

// SerialNumber derives the double-spend tag of this record.
func (r *Record) SerialNumber() []byte {
	return utils.MiMCHash(r.Commitment(), r.SerialNumberNonce)
}

func value32(v *uint256.Int) []byte {
	bz := v.Bytes32()
	return bz[:]
}

// randomFieldBytes samples 32 bytes from rng and reduces them to the
// canonical encoding of a field element, so the value round-trips through
// witness assignment unchanged.
func randomFieldBytes(rng io.Reader) ([]byte, error) {
	bz := make([]byte, fr.Bytes)
	if _, err := io.ReadFull(rng, bz); err != nil {
		return nil, fmt.Errorf("failed to sample record randomness: %w", err)
	}
	var elem fr.Element
	elem.SetBytes(bz)
	return elem.Marshal(), nil
}

// fieldFromBytes interprets a canonical 32-byte digest as a field element.
func fieldFromBytes(bz []byte) fr.Element {
	var elem fr.Element
	elem.SetBytes(bz)
	return elem
}

var errNilRecord = errors.New("record is nil")
