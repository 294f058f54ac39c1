package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kysee/dpc/dpc/network"
)

// TransactionMetadata is the public context of a transaction: the ledger
// block it was built against, the inner-circuit identifier its proof
// composes over, the program it ran, and the composition digest committing
// to the (private) execution trace the outer proof was built with.
type TransactionMetadata struct {
	BlockHash         []byte
	InnerCircuitID    []byte
	ProgramID         []byte
	CompositionDigest []byte
}

// Transaction is the final artifact: publicly verifiable with only the
// proving parameters, immutable once assembled. The inner proof is carried
// alongside the outer proof; both are checked by verifiers.
type Transaction struct {
	Kernel           *TransactionKernel
	Metadata         TransactionMetadata
	EncryptedRecords [network.NumOutputRecords]*EncryptedRecord
	InnerProof       []byte
	Proof            []byte
}

// ToTransactionID recomputes the canonical identifier from public data.
func (tx *Transaction) ToTransactionID() ([]byte, error) {
	a := &TransactionAuthorization{Kernel: tx.Kernel}
	return a.ToTransactionID()
}

// EncryptedRecordIDs recomputes the public ciphertext identifiers.
func (tx *Transaction) EncryptedRecordIDs() ([network.NumOutputRecords][]byte, error) {
	var ids [network.NumOutputRecords][]byte
	for i, er := range tx.EncryptedRecords {
		if er == nil {
			return ids, fmt.Errorf("missing encrypted record %d", i)
		}
		ids[i] = er.ID(tx.Kernel.Commitments[i])
	}
	return ids, nil
}

// txWire is the RLP layout of a serialized transaction.
type txWire struct {
	NetworkID         byte
	SerialNumbers     [][]byte
	Commitments       [][]byte
	ValueBalance      uint64 // two's complement
	Memo              []byte
	BlockHash         []byte
	InnerCircuitID    []byte
	ProgramID         []byte
	CompositionDigest []byte
	EphemeralKeys     [][]byte
	Ciphertexts       [][]byte
	InnerProof        []byte
	Proof             []byte
}

// Bytes serializes the transaction.
func (tx *Transaction) Bytes() ([]byte, error) {
	w := &txWire{
		NetworkID:         tx.Kernel.NetworkID,
		ValueBalance:      uint64(tx.Kernel.ValueBalance),
		Memo:              tx.Kernel.Memo[:],
		BlockHash:         tx.Metadata.BlockHash,
		InnerCircuitID:    tx.Metadata.InnerCircuitID,
		ProgramID:         tx.Metadata.ProgramID,
		CompositionDigest: tx.Metadata.CompositionDigest,
		InnerProof:        tx.InnerProof,
		Proof:             tx.Proof,
	}
	for _, sn := range tx.Kernel.SerialNumbers {
		w.SerialNumbers = append(w.SerialNumbers, sn)
	}
	for _, cm := range tx.Kernel.Commitments {
		w.Commitments = append(w.Commitments, cm)
	}
	for _, er := range tx.EncryptedRecords {
		w.EphemeralKeys = append(w.EphemeralKeys, er.EphemeralPublicKey.Marshal())
		w.Ciphertexts = append(w.Ciphertexts, er.Ciphertext)
	}
	return rlp.EncodeToBytes(w)
}

// TransactionFromBytes deserializes a transaction produced by Bytes.
func TransactionFromBytes(bz []byte) (*Transaction, error) {
	var w txWire
	if err := rlp.DecodeBytes(bz, &w); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if len(w.SerialNumbers) != network.NumInputRecords ||
		len(w.Commitments) != network.NumOutputRecords ||
		len(w.EphemeralKeys) != network.NumOutputRecords ||
		len(w.Ciphertexts) != network.NumOutputRecords ||
		len(w.Memo) != network.MemoSize {
		return nil, fmt.Errorf("wrong transaction shape")
	}

	tx := &Transaction{
		Kernel: &TransactionKernel{
			NetworkID:    w.NetworkID,
			ValueBalance: int64(w.ValueBalance),
		},
		Metadata: TransactionMetadata{
			BlockHash:         w.BlockHash,
			InnerCircuitID:    w.InnerCircuitID,
			ProgramID:         w.ProgramID,
			CompositionDigest: w.CompositionDigest,
		},
		InnerProof: w.InnerProof,
		Proof:      w.Proof,
	}
	copy(tx.Kernel.Memo[:], w.Memo)
	for i := 0; i < network.NumInputRecords; i++ {
		tx.Kernel.SerialNumbers[i] = w.SerialNumbers[i]
	}
	for i := 0; i < network.NumOutputRecords; i++ {
		tx.Kernel.Commitments[i] = w.Commitments[i]
		er := &EncryptedRecord{Ciphertext: w.Ciphertexts[i]}
		if err := er.EphemeralPublicKey.Unmarshal(w.EphemeralKeys[i]); err != nil {
			return nil, fmt.Errorf("failed to decode ephemeral key %d: %w", i, err)
		}
		tx.EncryptedRecords[i] = er
	}
	return tx, nil
}
