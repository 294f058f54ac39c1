package types

import (
	"bytes"
	crand "crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2s"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/dpc/network"
)

// detRng is a deterministic randomness source built from a BLAKE2s chain,
// used to check determinism-modulo-randomness properties.
type detRng struct {
	seed    []byte
	counter uint64
	buf     []byte
}

func newDetRng(seed string) *detRng {
	return &detRng{seed: []byte(seed)}
}

func (r *detRng) Read(p []byte) (int, error) {
	for len(r.buf) < len(p) {
		h, err := blake2s.New256(nil)
		if err != nil {
			return 0, err
		}
		h.Write(r.seed)
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], r.counter)
		h.Write(ctr[:])
		r.buf = append(r.buf, h.Sum(nil)...)
		r.counter++
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func TestRecordCommitmentDeterministic(t *testing.T) {
	sk, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	r, err := NewRecord(sk.Address(), uint256.NewInt(42), []byte("payload"), NoopProgramID(), crand.Reader)
	require.NoError(t, err)

	require.Equal(t, r.Commitment(), r.Commitment())
	require.Equal(t, r.SerialNumber(), r.SerialNumber())
	require.False(t, r.IsDummy())

	noop, err := NewNoopRecord(crand.Reader)
	require.NoError(t, err)
	require.True(t, noop.IsDummy())
	require.NotEqual(t, r.Commitment(), noop.Commitment())
}

func TestRecordEncryptDecrypt(t *testing.T) {
	owner, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	r, err := NewRecord(owner.Address(), uint256.NewInt(77), []byte("hello"), NoopProgramID(), crand.Reader)
	require.NoError(t, err)

	enc, randomizer, err := EncryptRecord(r, crand.Reader)
	require.NoError(t, err)
	require.NotNil(t, randomizer)

	dec, err := enc.Decrypt(owner)
	require.NoError(t, err)
	require.Equal(t, r.Commitment(), dec.Commitment())
	require.Equal(t, r.Value, dec.Value)
	require.Equal(t, r.Payload, dec.Payload)

	// A different key cannot open the ciphertext.
	other, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)
	_, err = enc.Decrypt(other)
	require.Error(t, err)
}

func TestCoinbaseTransition(t *testing.T) {
	recipient, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	st, err := NewCoinbase(recipient.Address(), uint256.NewInt(10), crand.Reader)
	require.NoError(t, err)

	require.EqualValues(t, -10, st.Kernel().ValueBalance)
	for i, noopKey := range st.NoopPrivateKeys() {
		require.NotNil(t, noopKey, "coinbase input slot %d must be noop", i)
		require.True(t, st.InputRecords()[i].IsDummy())
	}
	for i := range st.Kernel().Commitments {
		require.Equal(t, st.OutputRecords()[i].Commitment(), st.Kernel().Commitments[i])
	}
	addr := recipient.Address()
	require.True(t, st.OutputRecords()[0].Owner.Equal(&addr))
}

func TestTransferTransition(t *testing.T) {
	sender, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)
	receiver, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	input, err := NewRecord(sender.Address(), uint256.NewInt(100), nil, NoopProgramID(), crand.Reader)
	require.NoError(t, err)

	st, err := NewTransfer([]*Record{input}, receiver.Address(), sender.Address(),
		uint256.NewInt(30), uint256.NewInt(5), crand.Reader)
	require.NoError(t, err)

	require.EqualValues(t, 5, st.Kernel().ValueBalance)
	require.Nil(t, st.NoopPrivateKeys()[0], "the real spend slot must need a caller key")
	require.NotNil(t, st.NoopPrivateKeys()[1])
	require.Equal(t, uint256.NewInt(30), st.OutputRecords()[0].Value)
	require.Equal(t, uint256.NewInt(65), st.OutputRecords()[1].Value)

	// Spending more than the balance is rejected.
	_, err = NewTransfer([]*Record{input}, receiver.Address(), sender.Address(),
		uint256.NewInt(100), uint256.NewInt(5), crand.Reader)
	require.ErrorContains(t, err, "insufficient balance")
}

func TestKernelSignatureMessage(t *testing.T) {
	recipient, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	st, err := NewCoinbase(recipient.Address(), uint256.NewInt(10), crand.Reader)
	require.NoError(t, err)

	msg, err := st.Kernel().ToSignatureMessage()
	require.NoError(t, err)
	require.Equal(t, HeaderFieldCount+network.NumInputRecords+network.NumOutputRecords, len(msg))
	require.LessOrEqual(t, len(msg), network.MaxDataSizeInFields)

	d1, err := st.Kernel().Digest()
	require.NoError(t, err)
	d2, err := st.Kernel().Digest()
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestAuthorizationArtifactsDeterministic(t *testing.T) {
	recipient, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	st1, err := NewCoinbase(recipient.Address(), uint256.NewInt(10), newDetRng("transition"))
	require.NoError(t, err)
	st2, err := NewCoinbase(recipient.Address(), uint256.NewInt(10), newDetRng("transition"))
	require.NoError(t, err)
	require.Equal(t, st1.Kernel(), st2.Kernel())

	a1 := &TransactionAuthorization{Kernel: st1.Kernel(), InputRecords: st1.InputRecords(), OutputRecords: st1.OutputRecords()}
	a2 := &TransactionAuthorization{Kernel: st2.Kernel(), InputRecords: st2.InputRecords(), OutputRecords: st2.OutputRecords()}

	id1, err := a1.ToTransactionID()
	require.NoError(t, err)
	id2, err := a2.ToTransactionID()
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	enc1, ids1, _, err := a1.ToEncryptedRecords(newDetRng("enc"))
	require.NoError(t, err)
	enc2, ids2, _, err := a2.ToEncryptedRecords(newDetRng("enc"))
	require.NoError(t, err)
	require.Equal(t, ids1, ids2)
	for i := range enc1 {
		require.True(t, bytes.Equal(enc1[i].Ciphertext, enc2[i].Ciphertext))
	}
}

func TestTransactionCodec(t *testing.T) {
	recipient, err := account.NewPrivateKey(crand.Reader)
	require.NoError(t, err)

	st, err := NewCoinbase(recipient.Address(), uint256.NewInt(10), crand.Reader)
	require.NoError(t, err)

	auth := &TransactionAuthorization{Kernel: st.Kernel(), InputRecords: st.InputRecords(), OutputRecords: st.OutputRecords()}
	encRecords, _, _, err := auth.ToEncryptedRecords(crand.Reader)
	require.NoError(t, err)

	tx := &Transaction{
		Kernel: st.Kernel(),
		Metadata: TransactionMetadata{
			BlockHash:      bytes.Repeat([]byte{0x01}, 32),
			InnerCircuitID: bytes.Repeat([]byte{0x02}, 32),
			ProgramID:      NoopProgramID(),
		},
		EncryptedRecords: encRecords,
		Proof:            []byte("opaque proof bytes"),
	}

	bz, err := tx.Bytes()
	require.NoError(t, err)

	decoded, err := TransactionFromBytes(bz)
	require.NoError(t, err)
	require.Equal(t, tx.Kernel, decoded.Kernel)
	require.Equal(t, tx.Metadata, decoded.Metadata)
	require.Equal(t, tx.Proof, decoded.Proof)

	wantID, err := tx.ToTransactionID()
	require.NoError(t, err)
	gotID, err := decoded.ToTransactionID()
	require.NoError(t, err)
	require.Equal(t, wantID, gotID)

	wantEncIDs, err := tx.EncryptedRecordIDs()
	require.NoError(t, err)
	gotEncIDs, err := decoded.EncryptedRecordIDs()
	require.NoError(t, err)
	require.Equal(t, wantEncIDs, gotEncIDs)
}
