package types

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	ecc_tedwards "github.com/consensys/gnark-crypto/ecc/twistededwards"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
	std_tedwards "github.com/consensys/gnark/std/algebra/native/twistededwards"
	std_mimc "github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/test/unsafekzg"

	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/utils"
)

// InnerCircuit proves transaction validity: the record openings hash to the
// declared commitments and serial numbers, value is conserved, the kernel
// binds the transaction id, the ciphertext identifiers bind the output
// records, and the block hash binds the ledger anchor.
type InnerCircuit struct {
	TransactionID      frontend.Variable                           `gnark:",public"`
	BlockHash          frontend.Variable                           `gnark:",public"`
	EncryptedRecordIDs [network.NumOutputRecords]frontend.Variable `gnark:",public"`
	ProgramID          frontend.Variable                           `gnark:",public"`

	KernelHeader  [HeaderFieldCount]frontend.Variable
	SerialNumbers [network.NumInputRecords]frontend.Variable
	FeeOut        frontend.Variable
	Minted        frontend.Variable

	BlockHeight frontend.Variable
	LedgerRoot  frontend.Variable

	InOwnerX        [network.NumInputRecords]frontend.Variable
	InValue         [network.NumInputRecords]frontend.Variable
	InPayloadDigest [network.NumInputRecords]frontend.Variable
	InProgramID     [network.NumInputRecords]frontend.Variable
	InNonce         [network.NumInputRecords]frontend.Variable
	InRandomness    [network.NumInputRecords]frontend.Variable

	OutOwnerX        [network.NumOutputRecords]frontend.Variable
	OutValue         [network.NumOutputRecords]frontend.Variable
	OutPayloadDigest [network.NumOutputRecords]frontend.Variable
	OutProgramID     [network.NumOutputRecords]frontend.Variable
	OutNonce         [network.NumOutputRecords]frontend.Variable
	OutRandomness    [network.NumOutputRecords]frontend.Variable
	OutCommitments   [network.NumOutputRecords]frontend.Variable

	EncryptionKeys        [network.NumOutputRecords]frontend.Variable
	EncryptionRandomizers [network.NumOutputRecords]frontend.Variable
}

func (c *InnerCircuit) Define(api frontend.API) error {
	hasher, err := std_mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	curve, err := std_tedwards.NewEdCurve(api, ecc_tedwards.BN254)
	if err != nil {
		return err
	}
	base := std_tedwards.Point{X: curve.Params().Base[0], Y: curve.Params().Base[1]}

	// The block hash anchors the proof to a ledger state.
	hasher.Reset()
	hasher.Write(c.BlockHeight, c.LedgerRoot)
	api.AssertIsEqual(c.BlockHash, hasher.Sum())

	sumIn := frontend.Variable(0)
	for i := 0; i < network.NumInputRecords; i++ {
		api.ToBinary(c.InValue[i], 64)

		hasher.Reset()
		hasher.Write(c.InOwnerX[i], c.InValue[i], c.InPayloadDigest[i], c.InProgramID[i], c.InNonce[i], c.InRandomness[i])
		cm := hasher.Sum()

		hasher.Reset()
		hasher.Write(cm, c.InNonce[i])
		api.AssertIsEqual(c.SerialNumbers[i], hasher.Sum())

		api.AssertIsEqual(c.InProgramID[i], c.ProgramID)
		sumIn = api.Add(sumIn, c.InValue[i])
	}

	sumOut := frontend.Variable(0)
	for i := 0; i < network.NumOutputRecords; i++ {
		api.ToBinary(c.OutValue[i], 64)

		hasher.Reset()
		hasher.Write(c.OutOwnerX[i], c.OutValue[i], c.OutPayloadDigest[i], c.OutProgramID[i], c.OutNonce[i], c.OutRandomness[i])
		cm := hasher.Sum()
		api.AssertIsEqual(c.OutCommitments[i], cm)

		// The encryption key is the x-coordinate of randomizer*G, so the
		// ciphertext identifier binds a key agreement the prover controls
		// to the committed record.
		epk := curve.ScalarMul(base, c.EncryptionRandomizers[i])
		api.AssertIsEqual(c.EncryptionKeys[i], epk.X)

		hasher.Reset()
		hasher.Write(cm, c.EncryptionKeys[i])
		api.AssertIsEqual(c.EncryptedRecordIDs[i], hasher.Sum())

		api.AssertIsEqual(c.OutProgramID[i], c.ProgramID)
		sumOut = api.Add(sumOut, c.OutValue[i])
	}

	// Kernel digest and transaction id, recomputed exactly as the native side.
	hasher.Reset()
	for i := 0; i < HeaderFieldCount; i++ {
		hasher.Write(c.KernelHeader[i])
	}
	for i := 0; i < network.NumInputRecords; i++ {
		hasher.Write(c.SerialNumbers[i])
	}
	for i := 0; i < network.NumOutputRecords; i++ {
		hasher.Write(c.OutCommitments[i])
	}
	kernelDigest := hasher.Sum()

	hasher.Reset()
	hasher.Write(kernelDigest)
	for i := 0; i < network.NumOutputRecords; i++ {
		hasher.Write(c.OutCommitments[i])
	}
	api.AssertIsEqual(c.TransactionID, hasher.Sum())

	// Record conservation: inputs plus minted value balance outputs plus fee.
	api.ToBinary(c.FeeOut, 64)
	api.ToBinary(c.Minted, 64)
	api.AssertIsEqual(api.Add(sumIn, c.Minted), api.Add(sumOut, c.FeeOut))

	// The fee/mint split must agree with the value balance packed in the
	// kernel header. The first header chunk carries, bit little-endian per
	// byte, the network id byte followed by the eight value-balance bytes,
	// most significant byte first, two's complement.
	headerBits := api.ToBinary(c.KernelHeader[0], utils.DataBitsPerField)
	balance := frontend.Variable(0)
	for k := 0; k < 8; k++ {
		b := api.FromBinary(headerBits[8*(k+1) : 8*(k+2)]...)
		balance = api.Add(balance, api.Mul(b, new(big.Int).Lsh(big.NewInt(1), uint(8*(7-k)))))
	}
	signBit := headerBits[15]
	signed := api.Sub(balance, api.Mul(signBit, new(big.Int).Lsh(big.NewInt(1), 64)))
	api.AssertIsEqual(api.Sub(c.FeeOut, c.Minted), signed)

	return nil
}

// OuterCircuit wraps the inner public variables: it binds the fixed
// inner-circuit identifier to the inner verifying key digest, and the
// composition digest to the exact inner proof and execution trace the
// transaction was assembled over. The inner proof itself travels with the
// transaction and is verified natively against the same public variables.
type OuterCircuit struct {
	TransactionID      frontend.Variable                           `gnark:",public"`
	BlockHash          frontend.Variable                           `gnark:",public"`
	EncryptedRecordIDs [network.NumOutputRecords]frontend.Variable `gnark:",public"`
	ProgramID          frontend.Variable                           `gnark:",public"`
	InnerCircuitID     frontend.Variable                           `gnark:",public"`
	InnerProofDigest   frontend.Variable                           `gnark:",public"`
	CompositionDigest  frontend.Variable                           `gnark:",public"`

	InnerVkDigest   frontend.Variable
	ExecutionDigest frontend.Variable
}

func (c *OuterCircuit) Define(api frontend.API) error {
	hasher, err := std_mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	hasher.Reset()
	hasher.Write(c.InnerVkDigest)
	api.AssertIsEqual(c.InnerCircuitID, hasher.Sum())

	// One digest over every public variable plus the execution trace, so
	// the proof is bound to this exact composition and no other.
	hasher.Reset()
	hasher.Write(c.TransactionID, c.BlockHash)
	for i := range c.EncryptedRecordIDs {
		hasher.Write(c.EncryptedRecordIDs[i])
	}
	hasher.Write(c.ProgramID, c.InnerProofDigest, c.ExecutionDigest)
	api.AssertIsEqual(c.CompositionDigest, hasher.Sum())

	return nil
}

// BuildInnerAssignment lays out the full inner witness.
func BuildInnerAssignment(pub *InnerPublicVariables, priv *InnerPrivateVariables) (*InnerCircuit, error) {
	header, err := priv.Kernel.headerFields()
	if err != nil {
		return nil, err
	}
	fee, minted := priv.Kernel.feeSplit()

	c := &InnerCircuit{
		TransactionID: pub.TransactionID,
		BlockHash:     pub.BlockHash,
		ProgramID:     pub.ProgramID,
		FeeOut:        fee,
		Minted:        minted,
		BlockHeight:   priv.LedgerProof.BlockHeight,
		LedgerRoot:    priv.LedgerProof.Root,
	}
	for i := 0; i < HeaderFieldCount; i++ {
		c.KernelHeader[i] = header[i]
	}
	for i, r := range priv.InputRecords {
		if r == nil {
			return nil, errNilRecord
		}
		c.SerialNumbers[i] = priv.Kernel.SerialNumbers[i]
		c.InOwnerX[i] = r.Owner.XCoordinate()
		c.InValue[i] = value32(r.Value)
		c.InPayloadDigest[i] = r.PayloadDigest()
		c.InProgramID[i] = r.ProgramID
		c.InNonce[i] = r.SerialNumberNonce
		c.InRandomness[i] = r.Randomness
	}
	for i, r := range priv.OutputRecords {
		if r == nil {
			return nil, errNilRecord
		}
		c.EncryptedRecordIDs[i] = pub.EncryptedRecordIDs[i]
		c.OutOwnerX[i] = r.Owner.XCoordinate()
		c.OutValue[i] = value32(r.Value)
		c.OutPayloadDigest[i] = r.PayloadDigest()
		c.OutProgramID[i] = r.ProgramID
		c.OutNonce[i] = r.SerialNumberNonce
		c.OutRandomness[i] = r.Randomness
		c.OutCommitments[i] = priv.Kernel.Commitments[i]
		c.EncryptionKeys[i] = priv.EncryptedRecords[i].EphemeralPublicKey.X
		if priv.Randomizers[i] == nil {
			return nil, fmt.Errorf("missing encryption randomizer %d", i)
		}
		c.EncryptionRandomizers[i] = priv.Randomizers[i]
	}
	return c, nil
}

// BuildInnerPublicAssignment lays out only the inner public inputs.
func BuildInnerPublicAssignment(pub *InnerPublicVariables) *InnerCircuit {
	c := &InnerCircuit{
		TransactionID: pub.TransactionID,
		BlockHash:     pub.BlockHash,
		ProgramID:     pub.ProgramID,
	}
	for i := range pub.EncryptedRecordIDs {
		c.EncryptedRecordIDs[i] = pub.EncryptedRecordIDs[i]
	}
	return c
}

// BuildOuterAssignment lays out the full outer witness.
func BuildOuterAssignment(pub *OuterPublicVariables, priv *OuterPrivateVariables) (*OuterCircuit, error) {
	var vkBuf bytes.Buffer
	if _, err := priv.InnerVerifyingKey.WriteTo(&vkBuf); err != nil {
		return nil, fmt.Errorf("failed to serialize inner verifying key: %w", err)
	}
	if priv.Execution == nil {
		return nil, fmt.Errorf("missing execution trace")
	}

	c := BuildOuterPublicAssignment(pub)
	c.InnerVkDigest = utils.MiMCHash(vkBuf.Bytes())
	c.ExecutionDigest = priv.Execution.Digest
	return c, nil
}

// BuildOuterPublicAssignment lays out only the outer public inputs.
func BuildOuterPublicAssignment(pub *OuterPublicVariables) *OuterCircuit {
	c := &OuterCircuit{
		TransactionID:     pub.Inner.TransactionID,
		BlockHash:         pub.Inner.BlockHash,
		ProgramID:         pub.Inner.ProgramID,
		InnerCircuitID:    pub.InnerCircuitID,
		InnerProofDigest:  pub.InnerProofDigest,
		CompositionDigest: pub.CompositionDigest,
	}
	for i := range pub.Inner.EncryptedRecordIDs {
		c.EncryptedRecordIDs[i] = pub.Inner.EncryptedRecordIDs[i]
	}
	return c
}

// CompositionDigest hashes the outer public variables together with the
// execution trace digest, in the order the outer circuit recomputes it.
func CompositionDigest(inner *InnerPublicVariables, innerProofDigest, executionDigest []byte) []byte {
	ins := make([][]byte, 0, 5+network.NumOutputRecords)
	ins = append(ins, inner.TransactionID, inner.BlockHash)
	for i := range inner.EncryptedRecordIDs {
		ins = append(ins, inner.EncryptedRecordIDs[i])
	}
	ins = append(ins, inner.ProgramID, innerProofDigest, executionDigest)
	return utils.MiMCHash(ins...)
}

// Parameters holds the proving and verifying keys of both SNARK instances.
// They are large, read-only, and shared by every concurrent call.
type Parameters struct {
	InnerCCS constraint.ConstraintSystem
	InnerPk  plonk.ProvingKey
	InnerVk  plonk.VerifyingKey

	OuterCCS constraint.ConstraintSystem
	OuterPk  plonk.ProvingKey
	OuterVk  plonk.VerifyingKey

	// InnerCircuitID = MiMC(MiMC(serialized inner verifying key)).
	InnerCircuitID []byte
}

var (
	paramsOnce sync.Once
	params     *Parameters
	paramsErr  error
)

// LoadParameters compiles the circuits and runs the trusted setup, once per
// process. Every pipeline invocation shares the result.
func LoadParameters() (*Parameters, error) {
	paramsOnce.Do(func() {
		params, paramsErr = setupParameters()
	})
	return params, paramsErr
}

func setupParameters() (*Parameters, error) {
	p := &Parameters{}

	var err error
	if p.InnerCCS, p.InnerPk, p.InnerVk, err = setupCircuit(&InnerCircuit{}); err != nil {
		return nil, fmt.Errorf("inner circuit setup failed: %w", err)
	}
	if p.OuterCCS, p.OuterPk, p.OuterVk, err = setupCircuit(&OuterCircuit{}); err != nil {
		return nil, fmt.Errorf("outer circuit setup failed: %w", err)
	}

	var vkBuf bytes.Buffer
	if _, err := p.InnerVk.WriteTo(&vkBuf); err != nil {
		return nil, fmt.Errorf("failed to serialize inner verifying key: %w", err)
	}
	p.InnerCircuitID = utils.MiMCHash(utils.MiMCHash(vkBuf.Bytes()))

	return p, nil
}

func setupCircuit(circuit frontend.Circuit) (constraint.ConstraintSystem, plonk.ProvingKey, plonk.VerifyingKey, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, circuit)
	if err != nil {
		return nil, nil, nil, err
	}

	// todo: Use safe SRS generation
	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	if err != nil {
		return nil, nil, nil, err
	}

	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		return nil, nil, nil, err
	}
	return ccs, pk, vk, nil
}

// ProofToBytes serializes a plonk proof.
func ProofToBytes(proof plonk.Proof) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ProofFromBytes deserializes a plonk proof.
func ProofFromBytes(bz []byte) (plonk.Proof, error) {
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewBuffer(bz)); err != nil {
		return nil, err
	}
	return proof, nil
}
