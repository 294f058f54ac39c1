package types

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark/backend/plonk"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/dpc/network"
)

// InnerPublicVariables is the public input split of the inner proof.
type InnerPublicVariables struct {
	TransactionID      []byte
	BlockHash          []byte
	EncryptedRecordIDs [network.NumOutputRecords][]byte
	ProgramID          []byte
}

func NewInnerPublicVariables(
	transactionID, blockHash []byte,
	encryptedRecordIDs [network.NumOutputRecords][]byte,
	programID []byte,
) (*InnerPublicVariables, error) {
	if len(transactionID) == 0 || len(blockHash) == 0 || len(programID) == 0 {
		return nil, errors.New("incomplete inner public variables")
	}
	return &InnerPublicVariables{
		TransactionID:      transactionID,
		BlockHash:          blockHash,
		EncryptedRecordIDs: encryptedRecordIDs,
		ProgramID:          programID,
	}, nil
}

// InnerPrivateVariables carries the inner-proof witnesses: the kernel, the
// record openings, the ledger proof, the slot signatures and the
// record-encryption artifacts.
type InnerPrivateVariables struct {
	Kernel           *TransactionKernel
	InputRecords     [network.NumInputRecords]*Record
	LedgerProof      *LedgerProof
	Signatures       [network.NumInputRecords]*account.Signature
	OutputRecords    [network.NumOutputRecords]*Record
	EncryptedRecords [network.NumOutputRecords]*EncryptedRecord
	Randomizers      [network.NumOutputRecords]*big.Int
}

func NewInnerPrivateVariables(
	kernel *TransactionKernel,
	inputRecords [network.NumInputRecords]*Record,
	ledgerProof *LedgerProof,
	signatures [network.NumInputRecords]*account.Signature,
	outputRecords [network.NumOutputRecords]*Record,
	encryptedRecords [network.NumOutputRecords]*EncryptedRecord,
	randomizers [network.NumOutputRecords]*big.Int,
) (*InnerPrivateVariables, error) {
	if kernel == nil || ledgerProof == nil {
		return nil, errors.New("incomplete inner private variables")
	}
	return &InnerPrivateVariables{
		Kernel:           kernel,
		InputRecords:     inputRecords,
		LedgerProof:      ledgerProof,
		Signatures:       signatures,
		OutputRecords:    outputRecords,
		EncryptedRecords: encryptedRecords,
		Randomizers:      randomizers,
	}, nil
}

// OuterPublicVariables wraps the inner public variables with the fixed
// inner-circuit identifier, the digest of the composed inner proof and the
// composition digest. This is the composition boundary: a verifier
// recomputes the inner proof digest from the published inner proof and
// takes the composition digest from the transaction metadata.
type OuterPublicVariables struct {
	Inner             *InnerPublicVariables
	InnerCircuitID    []byte
	InnerProofDigest  []byte
	CompositionDigest []byte
}

func NewOuterPublicVariables(
	inner *InnerPublicVariables, innerCircuitID, innerProofDigest, compositionDigest []byte,
) (*OuterPublicVariables, error) {
	if len(innerCircuitID) == 0 || len(innerProofDigest) == 0 || len(compositionDigest) == 0 {
		return nil, errors.New("incomplete outer public variables")
	}
	return &OuterPublicVariables{
		Inner:             inner,
		InnerCircuitID:    innerCircuitID,
		InnerProofDigest:  innerProofDigest,
		CompositionDigest: compositionDigest,
	}, nil
}

// OuterPrivateVariables carries the inner verifying key and the program
// execution trace.
type OuterPrivateVariables struct {
	InnerVerifyingKey plonk.VerifyingKey
	Execution         *Execution
}

func NewOuterPrivateVariables(innerVk plonk.VerifyingKey, execution *Execution) *OuterPrivateVariables {
	return &OuterPrivateVariables{
		InnerVerifyingKey: innerVk,
		Execution:         execution,
	}
}
