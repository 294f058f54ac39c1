package account

import (
	crand "crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressDerivationAgrees(t *testing.T) {
	for i := 0; i < 10; i++ {
		privateKey, err := NewPrivateKey(crand.Reader)
		require.NoError(t, err)

		direct := privateKey.Address()
		viaComputeKey, err := privateKey.ComputeKey().Address()
		require.NoError(t, err)
		require.True(t, direct.Equal(&viaComputeKey))
	}
}

func TestPrivateKeyFromSeedDeterministic(t *testing.T) {
	seed := make([]byte, SeedSize)
	_, err := crand.Read(seed)
	require.NoError(t, err)

	a := PrivateKeyFromSeed(seed).Address()
	b := PrivateKeyFromSeed(seed).Address()
	require.True(t, a.Equal(&b))
}

func TestNoopPrivateKeyFixed(t *testing.T) {
	a := NoopPrivateKey().Address()
	b := NoopPrivateKey().Address()
	require.True(t, a.Equal(&b))
}

func TestAddressCodec(t *testing.T) {
	privateKey, err := NewPrivateKey(crand.Reader)
	require.NoError(t, err)
	addr := privateKey.Address()

	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, "pv"))

	decoded, err := ParseAddress(encoded)
	require.NoError(t, err)
	require.True(t, addr.Equal(&decoded))

	// wrong prefix
	_, err = ParseAddress("cz" + encoded[2:])
	require.ErrorContains(t, err, "wrong prefix")
}
