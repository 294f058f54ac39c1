package utils

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"
)

func TestBytesToFieldsRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 31, 32, 33, 64, 73, 256} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 7)
		}
		fields, err := BytesToFields(data)
		require.NoError(t, err)

		back := FieldsToBytes(fields)
		require.GreaterOrEqual(t, len(back), len(data))
		require.Equal(t, data, back[:len(data)])
		for _, b := range back[len(data):] {
			require.Zero(t, b)
		}
	}
}

func TestBitsToFieldsRejectsOverflow(t *testing.T) {
	// fr.Bits ones do not fit in a single canonical element.
	bits := make([]bool, fr.Bits)
	for i := range bits {
		bits[i] = true
	}
	_, err := BitsToFields(bits)
	require.Error(t, err)

	// One chunk of DataBitsPerField ones always fits.
	fields, err := BitsToFields(bits[:DataBitsPerField])
	require.NoError(t, err)
	require.Len(t, fields, 1)
}

func TestMiMCHashMatchesFieldHash(t *testing.T) {
	var a, b fr.Element
	a.SetUint64(7)
	b.SetUint64(11)

	ab := a.Bytes()
	bb := b.Bytes()
	require.Equal(t, HashFields([]fr.Element{a, b}), MiMCHash(ab[:], bb[:]))
	require.NotEqual(t, MiMCHash(ab[:]), MiMCHash(bb[:]))
}
