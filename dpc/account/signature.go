package account

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	tedwards "github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/rs/zerolog"

	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/utils"
)

var sigLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Signature is a Schnorr-style signature over a sequence of field elements.
// Validity is a pure function of (signature, address, message).
type Signature struct {
	Challenge  *big.Int
	Response   *big.Int
	ComputeKey ComputeKey
}

// Sign produces (challenge, response, compute_key) over the message such
// that Verify holds for the signer's address.
func (sk *PrivateKey) Sign(message []fr.Element, rng io.Reader) (*Signature, error) {
	if len(message) > network.MaxDataSizeInFields {
		return nil, fmt.Errorf("message exceeds maximum size: got(%d), max(%d)",
			len(message), network.MaxDataSizeInFields)
	}

	nonce, err := randomScalar(rng)
	if err != nil {
		return nil, err
	}

	// Commit g_r := nonce * G.
	var gr tedwards.PointAffine
	gr.ScalarMultiplication(basePoint(), nonce)

	ck := sk.ComputeKey()
	addr := sk.Address()

	challenge, err := HashToScalar(challengePreimage(&gr, ck, &addr, message))
	if err != nil {
		return nil, fmt.Errorf("failed to derive challenge: %w", err)
	}

	// response := nonce - challenge * sk_sig (mod subgroup order).
	response := new(big.Int).Mul(challenge, sk.skSig)
	response.Sub(nonce, response)
	response.Mod(response, curveOrder())

	return &Signature{Challenge: challenge, Response: response, ComputeKey: *ck}, nil
}

// SignBytes signs a raw byte message after packing it into field elements.
func (sk *PrivateKey) SignBytes(message []byte, rng io.Reader) (*Signature, error) {
	return sk.SignBits(utils.BytesToBitsLE(message), rng)
}

// SignBits signs a bit message after packing it into field elements.
func (sk *PrivateKey) SignBits(message []bool, rng io.Reader) (*Signature, error) {
	fields, err := utils.BitsToFields(message)
	if err != nil {
		return nil, err
	}
	return sk.Sign(fields, rng)
}

// Verify checks (challenge == challenge') && (address == address') where
// challenge' := HashToScalar(response*G + challenge*pk_sig, pk_sig, pr_sig, address, message).
// Malformed input yields false, never an error.
func (sig *Signature) Verify(address *Address, message []fr.Element) bool {
	if len(message) > network.MaxDataSizeInFields {
		sigLogger.Error().Int("fields", len(message)).
			Msg("cannot verify the signature: the signed message exceeds maximum allowed size")
		return false
	}
	if !canonicalScalar(sig.Challenge) || !canonicalScalar(sig.Response) {
		return false
	}

	pkSig := sig.ComputeKey.PkSig
	prSig := sig.ComputeKey.PrSig
	if !pkSig.IsOnCurve() || !prSig.IsOnCurve() {
		return false
	}

	// Recompute g_r := (response * G) + (challenge * pk_sig).
	var gr, tmp tedwards.PointAffine
	gr.ScalarMultiplication(basePoint(), sig.Response)
	tmp.ScalarMultiplication(&pkSig, sig.Challenge)
	gr.Add(&gr, &tmp)

	candidateChallenge, err := HashToScalar(challengePreimage(&gr, &sig.ComputeKey, address, message))
	if err != nil {
		return false
	}

	candidateAddress, err := sig.ComputeKey.Address()
	if err != nil {
		return false
	}

	return sig.Challenge.Cmp(candidateChallenge) == 0 && address.Equal(&candidateAddress)
}

// VerifyBytes verifies a signature over a raw byte message.
func (sig *Signature) VerifyBytes(address *Address, message []byte) bool {
	return sig.VerifyBits(address, utils.BytesToBitsLE(message))
}

// VerifyBits verifies a signature over a bit message. A packing failure is
// a verification failure, not a propagated error.
func (sig *Signature) VerifyBits(address *Address, message []bool) bool {
	fields, err := utils.BitsToFields(message)
	if err != nil {
		sigLogger.Error().Err(err).Msg("failed to verify signature")
		return false
	}
	return sig.Verify(address, fields)
}

// challengePreimage lays out the hash input as the x-coordinates of
// (g_r, pk_sig, pr_sig, address) followed by the message.
func challengePreimage(gr *tedwards.PointAffine, ck *ComputeKey, address *Address, message []fr.Element) []fr.Element {
	preimage := make([]fr.Element, 0, 4+len(message))
	preimage = append(preimage, gr.X, ck.PkSig.X, ck.PrSig.X, address.XCoordinate())
	preimage = append(preimage, message...)
	return preimage
}

// Bytes returns a canonical encoding of the signature.
func (sig *Signature) Bytes() []byte {
	out := make([]byte, 0, 2*fr.Bytes+64)
	out = append(out, padScalar(sig.Challenge)...)
	out = append(out, padScalar(sig.Response)...)
	out = append(out, sig.ComputeKey.PkSig.Marshal()...)
	out = append(out, sig.ComputeKey.PrSig.Marshal()...)
	return out
}

// SetBytes decodes a signature produced by Bytes. Scalars at or above the
// subgroup order are rejected, so every signature has a single encoding.
func (sig *Signature) SetBytes(bz []byte) error {
	if len(bz) != 128 {
		return errors.New("wrong signature length")
	}
	challenge := new(big.Int).SetBytes(bz[:32])
	response := new(big.Int).SetBytes(bz[32:64])
	if !canonicalScalar(challenge) || !canonicalScalar(response) {
		return errors.New("non-canonical signature scalar")
	}
	sig.Challenge = challenge
	sig.Response = response
	if err := sig.ComputeKey.PkSig.Unmarshal(bz[64:96]); err != nil {
		return err
	}
	return sig.ComputeKey.PrSig.Unmarshal(bz[96:128])
}

// canonicalScalar reports whether s is in [0, order).
func canonicalScalar(s *big.Int) bool {
	return s != nil && s.Sign() >= 0 && s.Cmp(curveOrder()) < 0
}

func padScalar(s *big.Int) []byte {
	return s.FillBytes(make([]byte, 32))
}
