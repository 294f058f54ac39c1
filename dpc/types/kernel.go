package types

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/utils"
)

// TransactionKernel is the declared economic intent of a transition: the
// input serial numbers, the output record commitments, the value balance
// (fee when positive, minting when negative) and a memo.
type TransactionKernel struct {
	NetworkID     byte
	SerialNumbers [network.NumInputRecords][]byte
	Commitments   [network.NumOutputRecords][]byte
	ValueBalance  int64
	Memo          [network.MemoSize]byte
}

// headerBytes encodes the scalar kernel fields: network id, value balance
// (two's complement, big-endian) and the memo.
func (k *TransactionKernel) headerBytes() []byte {
	bz := make([]byte, 0, 9+network.MemoSize)
	bz = append(bz, k.NetworkID)
	bz = binary.BigEndian.AppendUint64(bz, uint64(k.ValueBalance))
	bz = append(bz, k.Memo[:]...)
	return bz
}

// ToSignatureMessage derives the canonical signature message of the kernel:
// the packed header fields followed by the serial numbers and commitments.
// Every slot must be populated.
func (k *TransactionKernel) ToSignatureMessage() ([]fr.Element, error) {
	fields, err := utils.BytesToFields(k.headerBytes())
	if err != nil {
		return nil, fmt.Errorf("failed to pack kernel header: %w", err)
	}
	for i, sn := range k.SerialNumbers {
		if len(sn) != fr.Bytes {
			return nil, fmt.Errorf("serial number %d is malformed", i)
		}
		fields = append(fields, fieldFromBytes(sn))
	}
	for i, cm := range k.Commitments {
		if len(cm) != fr.Bytes {
			return nil, fmt.Errorf("commitment %d is malformed", i)
		}
		fields = append(fields, fieldFromBytes(cm))
	}
	if len(fields) > network.MaxDataSizeInFields {
		return nil, fmt.Errorf("kernel signature message exceeds %d fields", network.MaxDataSizeInFields)
	}
	return fields, nil
}

// Digest hashes the canonical signature message to a single field value.
func (k *TransactionKernel) Digest() ([]byte, error) {
	msg, err := k.ToSignatureMessage()
	if err != nil {
		return nil, err
	}
	return utils.HashFields(msg), nil
}

// HeaderFieldCount is the number of packed header fields in the signature
// message, fixed by the header layout.
const HeaderFieldCount = (((9 + network.MemoSize) * 8) + utils.DataBitsPerField - 1) / utils.DataBitsPerField

// headerFields returns only the packed header part of the signature message.
func (k *TransactionKernel) headerFields() ([]fr.Element, error) {
	fields, err := utils.BytesToFields(k.headerBytes())
	if err != nil {
		return nil, err
	}
	if len(fields) != HeaderFieldCount {
		return nil, fmt.Errorf("unexpected kernel header field count: %d", len(fields))
	}
	return fields, nil
}

// feeSplit decomposes the value balance into the non-negative fee and
// minted amounts used by the conservation constraint.
func (k *TransactionKernel) feeSplit() (fee, minted *big.Int) {
	if k.ValueBalance >= 0 {
		return big.NewInt(k.ValueBalance), big.NewInt(0)
	}
	return big.NewInt(0), new(big.Int).Neg(big.NewInt(k.ValueBalance))
}
