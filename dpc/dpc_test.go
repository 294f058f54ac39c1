package dpc

import (
	crand "crypto/rand"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/dpc/ledger"
	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/dpc/types"
	"github.com/kysee/dpc/utils"
)

// stampProgram accepts any transaction and stamps its own trace digest,
// exercising executables whose traces differ from the noop one.
type stampProgram struct{}

func (stampProgram) ProgramID() []byte {
	return types.NoopProgramID()
}

func (p stampProgram) Execute(public types.PublicVariables) (*types.Execution, error) {
	return &types.Execution{
		ProgramID: p.ProgramID(),
		Digest:    utils.MiMCHash([]byte("program.stamp"), public.TransactionID),
	}, nil
}

func TestCoinbaseAndTransfer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proof composition in short mode")
	}

	l := ledger.New()

	alice, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)
	bob, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	// Mint 100 to alice. All input slots are noop, so no caller keys.
	coinbase, err := types.NewCoinbase(alice.Address(), uint256.NewInt(100), crand.Reader)
	require.NoError(t, err)

	auth, err := Authorize(nil, coinbase, crand.Reader)
	require.NoError(t, err)
	msg, err := auth.Kernel.ToSignatureMessage()
	require.NoError(t, err)
	noopAddr := account.NoopPrivateKey().Address()
	for _, sig := range auth.Signatures {
		require.NotNil(t, sig)
		require.True(t, sig.Verify(&noopAddr, msg))
	}

	lp, err := l.ProveTransition(coinbase.InputRecords())
	require.NoError(t, err)

	coinbaseTx, err := Execute(auth, types.NoopExecutable{}, lp, crand.Reader)
	require.NoError(t, err)
	require.NoError(t, VerifyTransaction(coinbaseTx))
	require.NoError(t, l.CommitTransaction(coinbaseTx))

	// Alice scans the chain and recovers her minted record.
	minted := scanForRecord(t, coinbaseTx, alice, uint256.NewInt(100))

	// Alice sends 30 to bob and pays a fee of 5.
	transfer, err := types.NewTransfer(
		[]*types.Record{minted}, bob.Address(), alice.Address(),
		uint256.NewInt(30), uint256.NewInt(5), crand.Reader)
	require.NoError(t, err)

	auth, err = Authorize([]*account.PrivateKey{alice}, transfer, crand.Reader)
	require.NoError(t, err)

	lp, err = l.ProveTransition(transfer.InputRecords())
	require.NoError(t, err)

	// The transfer runs under a program with its own trace digest.
	transferTx, err := Execute(auth, stampProgram{}, lp, crand.Reader)
	require.NoError(t, err)
	require.NoError(t, VerifyTransaction(transferTx))

	// A corrupted outer proof must not verify.
	corrupted := *transferTx
	corrupted.Proof = append([]byte(nil), transferTx.Proof...)
	corrupted.Proof[len(corrupted.Proof)/2] ^= 0x01
	require.Error(t, VerifyTransaction(&corrupted))

	// Tampering with the inner proof must break verification even though
	// the outer proof is intact.
	tampered := *transferTx
	tampered.InnerProof = append([]byte(nil), transferTx.InnerProof...)
	tampered.InnerProof[len(tampered.InnerProof)/2] ^= 0x01
	require.ErrorContains(t, VerifyTransaction(&tampered), "inner proof verification failed")

	require.NoError(t, l.CommitTransaction(transferTx))
	require.ErrorContains(t, l.CommitTransaction(transferTx), "serial number already exists")

	// Bob and alice recover their outputs.
	scanForRecord(t, transferTx, bob, uint256.NewInt(30))
	scanForRecord(t, transferTx, alice, uint256.NewInt(65))
}

func TestAuthorizeNeedsKeyPerRealSlot(t *testing.T) {
	alice, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	input, err := types.NewRecord(alice.Address(), uint256.NewInt(50), nil, types.NoopProgramID(), crand.Reader)
	require.NoError(t, err)
	transfer, err := types.NewTransfer(
		[]*types.Record{input}, alice.Address(), alice.Address(),
		uint256.NewInt(10), uint256.NewInt(0), crand.Reader)
	require.NoError(t, err)

	_, err = Authorize(nil, transfer, crand.Reader)
	require.ErrorContains(t, err, "not enough private keys")

	auth, err := Authorize([]*account.PrivateKey{alice}, transfer, crand.Reader)
	require.NoError(t, err)

	msg, err := auth.Kernel.ToSignatureMessage()
	require.NoError(t, err)
	addr := alice.Address()
	slotAddr, err := auth.Signatures[0].ComputeKey.Address()
	require.NoError(t, err)
	require.True(t, slotAddr.Equal(&addr), "the real slot is signed by the owner key")
	for i, sig := range auth.Signatures {
		owner := transfer.InputRecords()[i].Owner
		require.True(t, sig.Verify(&owner, msg))
	}
}

// A transaction assembled without ever running the inner prover must be
// rejected, even when its outer proof is genuine over the fabricated data.
func TestVerifyRejectsForgedComposition(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proof composition in short mode")
	}
	params := mustParams(t)

	recipient, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)
	st, err := types.NewCoinbase(recipient.Address(), uint256.NewInt(999), crand.Reader)
	require.NoError(t, err)
	auth, err := Authorize(nil, st, crand.Reader)
	require.NoError(t, err)
	encRecords, encryptedRecordIDs, _, err := auth.ToEncryptedRecords(crand.Reader)
	require.NoError(t, err)
	txid, err := auth.ToTransactionID()
	require.NoError(t, err)

	blockHash := utils.MiMCHash([]byte("no such block"))
	innerPublic, err := types.NewInnerPublicVariables(
		txid, blockHash, encryptedRecordIDs, types.NoopProgramID())
	require.NoError(t, err)

	// Fabricate the inner proof bytes and prove only the outer circuit.
	forgedInner := []byte{0x01}
	innerProofDigest := utils.MiMCHash(forgedInner)
	trace := &types.Execution{
		ProgramID: types.NoopProgramID(),
		Digest:    utils.MiMCHash([]byte("forged trace")),
	}
	compositionDigest := types.CompositionDigest(innerPublic, innerProofDigest, trace.Digest)
	outerPublic, err := types.NewOuterPublicVariables(
		innerPublic, params.InnerCircuitID, innerProofDigest, compositionDigest)
	require.NoError(t, err)
	outerProof, err := proveOuter(params, outerPublic, types.NewOuterPrivateVariables(params.InnerVk, trace))
	require.NoError(t, err)

	forged := &types.Transaction{
		Kernel: auth.Kernel,
		Metadata: types.TransactionMetadata{
			BlockHash:         blockHash,
			InnerCircuitID:    params.InnerCircuitID,
			ProgramID:         types.NoopProgramID(),
			CompositionDigest: compositionDigest,
		},
		EncryptedRecords: encRecords,
		InnerProof:       forgedInner,
		Proof:            outerProof,
	}
	require.ErrorContains(t, VerifyTransaction(forged), "inner proof verification failed")
}

// A membership proof for a different committed record must not authorize
// spending a record the ledger never saw.
func TestExecuteRejectsForeignLedgerProof(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proving setup in short mode")
	}

	l := ledger.New()
	alice, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	decoy, err := types.NewRecord(alice.Address(), uint256.NewInt(5), nil, types.NoopProgramID(), crand.Reader)
	require.NoError(t, err)
	l.AddCommitment(decoy.Commitment())

	phantom, err := types.NewRecord(alice.Address(), uint256.NewInt(100), nil, types.NoopProgramID(), crand.Reader)
	require.NoError(t, err)
	transfer, err := types.NewTransfer(
		[]*types.Record{phantom}, alice.Address(), alice.Address(),
		uint256.NewInt(10), uint256.NewInt(0), crand.Reader)
	require.NoError(t, err)
	auth, err := Authorize([]*account.PrivateKey{alice}, transfer, crand.Reader)
	require.NoError(t, err)

	// The ledger proof covers the decoy, not the phantom input.
	inputs := transfer.InputRecords()
	lp, err := l.ProveTransition([network.NumInputRecords]*types.Record{decoy, inputs[1]})
	require.NoError(t, err)

	_, err = Execute(auth, types.NoopExecutable{}, lp, crand.Reader)
	require.ErrorContains(t, err, "ledger proof does not cover input record 0")
}

// A witness whose fee and mint amounts balance the records but contradict
// the declared kernel value balance must not prove.
func TestInnerProvingRejectsMisdeclaredBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proving setup in short mode")
	}
	params := mustParams(t)

	recipient, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)
	st, err := types.NewCoinbase(recipient.Address(), uint256.NewInt(10), crand.Reader)
	require.NoError(t, err)
	// Declare a fee in the kernel while the records actually mint.
	st.Kernel().ValueBalance = 5

	assignment := innerAssignmentFor(t, st)
	assignment.FeeOut = big.NewInt(5)
	assignment.Minted = big.NewInt(15)

	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	require.NoError(t, err)
	_, err = plonk.Prove(params.InnerCCS, params.InnerPk, wtn)
	require.Error(t, err)
}

// An encryption key not derived from the witnessed randomizer must not
// prove: the published key would be undecryptable by the record owner.
func TestInnerProvingRejectsForeignEncryptionKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proving setup in short mode")
	}
	params := mustParams(t)

	recipient, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)
	st, err := types.NewCoinbase(recipient.Address(), uint256.NewInt(10), crand.Reader)
	require.NoError(t, err)

	assignment := innerAssignmentFor(t, st)
	assignment.EncryptionRandomizers[0] = big.NewInt(12345)

	wtn, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	require.NoError(t, err)
	_, err = plonk.Prove(params.InnerCCS, params.InnerPk, wtn)
	require.Error(t, err)
}

func mustParams(t *testing.T) *types.Parameters {
	t.Helper()
	params, err := types.LoadParameters()
	require.NoError(t, err)
	return params
}

// innerAssignmentFor authorizes the transition against a fresh ledger and
// builds the full inner witness for it.
func innerAssignmentFor(t *testing.T, st *types.StateTransition) *types.InnerCircuit {
	t.Helper()
	auth, err := Authorize(nil, st, crand.Reader)
	require.NoError(t, err)
	lp, err := ledger.New().ProveTransition(st.InputRecords())
	require.NoError(t, err)
	txid, err := auth.ToTransactionID()
	require.NoError(t, err)
	encRecords, encryptedRecordIDs, randomizers, err := auth.ToEncryptedRecords(crand.Reader)
	require.NoError(t, err)
	pub, err := types.NewInnerPublicVariables(txid, lp.BlockHash(), encryptedRecordIDs, types.NoopProgramID())
	require.NoError(t, err)
	priv, err := types.NewInnerPrivateVariables(
		auth.Kernel, auth.InputRecords, lp, auth.Signatures,
		auth.OutputRecords, encRecords, randomizers)
	require.NoError(t, err)
	assignment, err := types.BuildInnerAssignment(pub, priv)
	require.NoError(t, err)
	return assignment
}

// scanForRecord decrypts the transaction's output records with the given
// key and returns the one holding the expected value.
func scanForRecord(t *testing.T, tx *types.Transaction, owner *account.PrivateKey, value *uint256.Int) *types.Record {
	t.Helper()
	for i, enc := range tx.EncryptedRecords {
		r, err := enc.Decrypt(owner)
		if err != nil {
			continue
		}
		require.Equal(t, tx.Kernel.Commitments[i], r.Commitment())
		if r.Value.Eq(value) {
			return r
		}
	}
	t.Fatalf("no output record with value %s decryptable by the key", value.Dec())
	return nil
}
