// Package network holds the fixed parameters of the private ledger network.
package network

const (
	// ID distinguishes transactions of this network from other deployments.
	ID = byte(0x01)

	// NumInputRecords is the fixed number of input-record slots of a state
	// transition. Slots without a real spend are padded with noop records.
	NumInputRecords = 2

	// NumOutputRecords is the fixed number of output records of a state
	// transition.
	NumOutputRecords = 2

	// MaxDataSizeInFields bounds the length, in field elements, of a message
	// accepted by the signature scheme.
	MaxDataSizeInFields = 32

	// MemoSize is the byte length of a transaction kernel memo.
	MemoSize = 64
)
