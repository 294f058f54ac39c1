// Package dpc drives the transaction core: authorizing a state transition
// with per-slot signatures, and executing an authorization into a publicly
// verifiable transaction by composing the inner and outer proofs.
package dpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/dpc/ledger"
	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/dpc/types"
	"github.com/kysee/dpc/utils"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Str("module", "dpc").Logger()

// ErrInternalFault marks a failure of the post-proving self-check. It is a
// proving-backend or variable-assembly bug, never a consequence of bad user
// input, and must not be retried.
var ErrInternalFault = errors.New("internal fault: inner proof failed self-verification")

// Authorize signs a state transition into a transaction authorization.
//
// Input slots are walked in fixed order: noop slots are signed with the
// network noop key, every other slot consumes the next caller-supplied
// private key. The association is positional: callers must supply keys in
// the same order as their non-noop input records.
func Authorize(
	privateKeys []*account.PrivateKey,
	transition *types.StateTransition,
	rng io.Reader,
) (*types.TransactionAuthorization, error) {
	// Keep a cursor for the private keys.
	index := 0

	signatureMessage, err := transition.Kernel().ToSignatureMessage()
	if err != nil {
		return nil, err
	}

	var signatures [network.NumInputRecords]*account.Signature
	for i, noopPrivateKey := range transition.NoopPrivateKeys() {
		privateKey := noopPrivateKey
		if privateKey == nil {
			if index >= len(privateKeys) {
				return nil, fmt.Errorf(
					"not enough private keys: %d supplied, input slot %d needs one", len(privateKeys), i)
			}
			privateKey = privateKeys[index]
			index++
		}

		signature, err := privateKey.Sign(signatureMessage, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to sign input slot %d: %w", i, err)
		}
		signatures[i] = signature
	}

	return types.NewTransactionAuthorization(transition, signatures), nil
}

// Execute runs an authorized state transition into a transaction. The
// stages are strictly sequential; any failure aborts the whole operation
// and no partial transaction is returned.
func Execute(
	authorization *types.TransactionAuthorization,
	executable types.Executable,
	ledgerProof *types.LedgerProof,
	rng io.Reader,
) (*types.Transaction, error) {
	params, err := types.LoadParameters()
	if err != nil {
		return nil, fmt.Errorf("failed to load proving parameters: %w", err)
	}

	blockHash := ledgerProof.BlockHash()

	transactionID, err := authorization.ToTransactionID()
	if err != nil {
		return nil, err
	}
	logger.Debug().Hex("txid", transactionID).Msg("executing state transition")

	// Check the authorization signatures against the input record owners.
	signatureMessage, err := authorization.Kernel.ToSignatureMessage()
	if err != nil {
		return nil, err
	}
	for i, r := range authorization.InputRecords {
		if r == nil {
			return nil, fmt.Errorf("missing input record %d", i)
		}
		sig := authorization.Signatures[i]
		if sig == nil || !sig.Verify(&r.Owner, signatureMessage) {
			return nil, fmt.Errorf("invalid authorization signature for input slot %d", i)
		}
	}

	// Ensure the ledger proof covers every real input record: the proven
	// leaf must be this record's commitment, not just any ledger leaf.
	for i, r := range authorization.InputRecords {
		if r.IsDummy() {
			continue
		}
		if !ledger.VerifyRecordProof(ledgerProof.Root, ledgerProof.RecordProofs[i], r.Commitment()) {
			return nil, fmt.Errorf("ledger proof does not cover input record %d", i)
		}
	}

	// Run the program circuit.
	execution, err := executable.Execute(types.PublicVariables{TransactionID: transactionID})
	if err != nil {
		return nil, fmt.Errorf("program execution rejected: %w", err)
	}

	// Encrypt the output records.
	encryptedRecords, encryptedRecordIDs, randomizers, err := authorization.ToEncryptedRecords(rng)
	if err != nil {
		return nil, err
	}

	// Assemble the inner circuit variables.
	innerPublic, err := types.NewInnerPublicVariables(
		transactionID, blockHash, encryptedRecordIDs, executable.ProgramID())
	if err != nil {
		return nil, err
	}
	innerPrivate, err := types.NewInnerPrivateVariables(
		authorization.Kernel,
		authorization.InputRecords,
		ledgerProof,
		authorization.Signatures,
		authorization.OutputRecords,
		encryptedRecords,
		randomizers,
	)
	if err != nil {
		return nil, err
	}

	// Compute the inner proof.
	innerProof, err := proveInner(params, innerPublic, innerPrivate)
	if err != nil {
		return nil, fmt.Errorf("inner proving failed: %w", err)
	}

	// Verify that the fresh inner proof passes against its own public
	// variables. A failure here is a backend fault, not a validation error.
	if err := verifyInner(params, innerPublic, innerProof); err != nil {
		logger.Error().Err(err).Hex("txid", transactionID).Msg("inner proof self-check failed")
		return nil, fmt.Errorf("%w: %s", ErrInternalFault, err)
	}

	// Compute the outer proof over the inner proof digest and the
	// execution trace.
	innerProofDigest := utils.MiMCHash(innerProof)
	compositionDigest := types.CompositionDigest(innerPublic, innerProofDigest, execution.Digest)
	outerPublic, err := types.NewOuterPublicVariables(
		innerPublic, params.InnerCircuitID, innerProofDigest, compositionDigest)
	if err != nil {
		return nil, err
	}
	outerPrivate := types.NewOuterPrivateVariables(params.InnerVk, execution)

	outerProof, err := proveOuter(params, outerPublic, outerPrivate)
	if err != nil {
		return nil, fmt.Errorf("outer proving failed: %w", err)
	}
	logger.Debug().Hex("txid", transactionID).Msg("proof composition complete")

	return &types.Transaction{
		Kernel: authorization.Kernel,
		Metadata: types.TransactionMetadata{
			BlockHash:         blockHash,
			InnerCircuitID:    params.InnerCircuitID,
			ProgramID:         executable.ProgramID(),
			CompositionDigest: compositionDigest,
		},
		EncryptedRecords: encryptedRecords,
		InnerProof:       innerProof,
		Proof:            outerProof,
	}, nil
}

func proveInner(params *types.Parameters, pub *types.InnerPublicVariables, priv *types.InnerPrivateVariables) ([]byte, error) {
	assignment, err := types.BuildInnerAssignment(pub, priv)
	if err != nil {
		return nil, err
	}
	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	proof, err := plonk.Prove(params.InnerCCS, params.InnerPk, wtn)
	if err != nil {
		return nil, err
	}
	return types.ProofToBytes(proof)
}

func verifyInner(params *types.Parameters, pub *types.InnerPublicVariables, proofBytes []byte) error {
	proof, err := types.ProofFromBytes(proofBytes)
	if err != nil {
		return err
	}
	pubWtn, err := frontend.NewWitness(types.BuildInnerPublicAssignment(pub), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}
	return plonk.Verify(proof, params.InnerVk, pubWtn)
}

func proveOuter(params *types.Parameters, pub *types.OuterPublicVariables, priv *types.OuterPrivateVariables) ([]byte, error) {
	assignment, err := types.BuildOuterAssignment(pub, priv)
	if err != nil {
		return nil, err
	}
	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	proof, err := plonk.Prove(params.OuterCCS, params.OuterPk, wtn)
	if err != nil {
		return nil, err
	}
	return types.ProofToBytes(proof)
}

// VerifyTransaction checks a transaction using only public data: the inner
// proof is verified against the recomputed inner public variables, and the
// outer proof against those variables plus the inner proof digest and the
// composition digest.
func VerifyTransaction(tx *types.Transaction) error {
	params, err := types.LoadParameters()
	if err != nil {
		return fmt.Errorf("failed to load proving parameters: %w", err)
	}
	if !bytes.Equal(tx.Metadata.InnerCircuitID, params.InnerCircuitID) {
		return errors.New("unknown inner circuit id")
	}

	transactionID, err := tx.ToTransactionID()
	if err != nil {
		return err
	}
	encryptedRecordIDs, err := tx.EncryptedRecordIDs()
	if err != nil {
		return err
	}

	innerPublic, err := types.NewInnerPublicVariables(
		transactionID, tx.Metadata.BlockHash, encryptedRecordIDs, tx.Metadata.ProgramID)
	if err != nil {
		return err
	}
	if err := verifyInner(params, innerPublic, tx.InnerProof); err != nil {
		return fmt.Errorf("inner proof verification failed: %w", err)
	}

	innerProofDigest := utils.MiMCHash(tx.InnerProof)
	outerPublic, err := types.NewOuterPublicVariables(
		innerPublic, tx.Metadata.InnerCircuitID, innerProofDigest, tx.Metadata.CompositionDigest)
	if err != nil {
		return err
	}

	proof, err := types.ProofFromBytes(tx.Proof)
	if err != nil {
		return fmt.Errorf("failed to decode transaction proof: %w", err)
	}
	pubWtn, err := frontend.NewWitness(types.BuildOuterPublicAssignment(outerPublic), ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}
	return plonk.Verify(proof, params.OuterVk, pubWtn)
}
