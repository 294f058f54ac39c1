package utils

import (
	"fmt"
	"hash"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	_ "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	gnark_hash "github.com/consensys/gnark-crypto/hash"
)

// DataBitsPerField is the number of message bits that always fit in a
// single BN254 scalar field element.
const DataBitsPerField = fr.Bits - 1

func MiMCHasher() hash.Hash {
	return gnark_hash.MIMC_BN254.New()
}

// MiMCHash hashes the given byte strings with MiMC over the BN254 scalar
// field. Inputs are consumed in field-sized chunks; full chunks are reduced
// to canonical form first so the hasher never rejects an input.
func MiMCHash(ins ...[]byte) []byte {
	hasher := MiMCHasher()

	blockSize := hasher.Size()

	hasher.Reset()
	for _, in := range ins {
		for i := 0; i < len(in); i += blockSize {
			end := i + blockSize
			if end > len(in) {
				end = len(in)
			}
			chunk := in[i:end]

			if len(chunk) == blockSize {
				// this value may be greater than the modulus; convert to fr.Element
				var elem fr.Element
				elem.SetBytes(chunk)
				// canonical form
				chunk = elem.Marshal()
			}
			if _, err := hasher.Write(chunk); err != nil {
				panic(err)
			}
		}
	}
	return hasher.Sum(nil)
}

// HashFields hashes a sequence of field elements in their canonical
// big-endian encoding.
func HashFields(fields []fr.Element) []byte {
	hasher := MiMCHasher()
	for i := range fields {
		_, _ = hasher.Write(fields[i].Marshal())
	}
	return hasher.Sum(nil)
}

// FieldsToBytes concatenates the canonical encodings of the given elements.
func FieldsToBytes(fields []fr.Element) []byte {
	out := make([]byte, 0, len(fields)*fr.Bytes)
	for i := range fields {
		out = append(out, fields[i].Marshal()...)
	}
	return out
}

// BytesToBitsLE unpacks bytes into bits, least significant bit first.
func BytesToBitsLE(bz []byte) []bool {
	bits := make([]bool, 0, len(bz)*8)
	for _, b := range bz {
		for i := 0; i < 8; i++ {
			bits = append(bits, (b>>uint(i))&1 == 1)
		}
	}
	return bits
}

// BitsToFields packs bits little-endian into field elements, DataBitsPerField
// bits per element. An error is returned if a chunk does not fit in the
// field, so callers can treat malformed input as a rejection.
func BitsToFields(bits []bool) ([]fr.Element, error) {
	fields := make([]fr.Element, 0, (len(bits)+DataBitsPerField-1)/DataBitsPerField)
	for i := 0; i < len(bits); i += DataBitsPerField {
		end := i + DataBitsPerField
		if end > len(bits) {
			end = len(bits)
		}

		v := new(big.Int)
		for j, bit := range bits[i:end] {
			if bit {
				v.SetBit(v, j, 1)
			}
		}
		if v.Cmp(fr.Modulus()) >= 0 {
			return nil, fmt.Errorf("bit chunk does not fit in the scalar field")
		}

		var elem fr.Element
		elem.SetBigInt(v)
		fields = append(fields, elem)
	}
	return fields, nil
}

// BytesToFields packs bytes little-endian into field elements.
func BytesToFields(bz []byte) ([]fr.Element, error) {
	return BitsToFields(BytesToBitsLE(bz))
}
