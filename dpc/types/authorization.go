package types

import (
	"fmt"
	"io"
	"math/big"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/utils"
)

// TransactionAuthorization binds a state transition to one signature per
// input-record slot, in slot order.
type TransactionAuthorization struct {
	Kernel        *TransactionKernel
	InputRecords  [network.NumInputRecords]*Record
	OutputRecords [network.NumOutputRecords]*Record
	Signatures    [network.NumInputRecords]*account.Signature
}

// NewTransactionAuthorization assembles an authorization from a transition
// and its slot signatures.
func NewTransactionAuthorization(
	transition *StateTransition,
	signatures [network.NumInputRecords]*account.Signature,
) *TransactionAuthorization {
	return &TransactionAuthorization{
		Kernel:        transition.Kernel(),
		InputRecords:  transition.InputRecords(),
		OutputRecords: transition.OutputRecords(),
		Signatures:    signatures,
	}
}

// ToTransactionID derives the canonical transaction identifier from the
// kernel and the output record commitments.
func (a *TransactionAuthorization) ToTransactionID() ([]byte, error) {
	kernelDigest, err := a.Kernel.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to derive transaction id: %w", err)
	}
	ins := make([][]byte, 0, 1+network.NumOutputRecords)
	ins = append(ins, kernelDigest)
	for i := range a.Kernel.Commitments {
		ins = append(ins, a.Kernel.Commitments[i])
	}
	return utils.MiMCHash(ins...), nil
}

// ToEncryptedRecords encrypts every output record under a fresh randomizer.
// It returns the ciphertexts, their public identifiers, and the randomizers
// that become inner-proof private witnesses.
func (a *TransactionAuthorization) ToEncryptedRecords(rng io.Reader) (
	[network.NumOutputRecords]*EncryptedRecord,
	[network.NumOutputRecords][]byte,
	[network.NumOutputRecords]*big.Int,
	error,
) {
	var encRecords [network.NumOutputRecords]*EncryptedRecord
	var encIDs [network.NumOutputRecords][]byte
	var randomizers [network.NumOutputRecords]*big.Int

	for i, r := range a.OutputRecords {
		if r == nil {
			return encRecords, encIDs, randomizers, errNilRecord
		}
		enc, randomizer, err := EncryptRecord(r, rng)
		if err != nil {
			return encRecords, encIDs, randomizers, fmt.Errorf("failed to encrypt output record %d: %w", i, err)
		}
		encRecords[i] = enc
		encIDs[i] = enc.ID(a.Kernel.Commitments[i])
		randomizers[i] = randomizer
	}
	return encRecords, encIDs, randomizers, nil
}
