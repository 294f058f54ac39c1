package types

import (
	"fmt"
	"io"

	"github.com/holiman/uint256"

	"github.com/kysee/dpc/dpc/account"
	"github.com/kysee/dpc/dpc/network"
)

// StateTransition declares a spend: a kernel plus the fixed input and
// output record slots. Slots not backed by a real spend hold noop records
// and carry the network noop private key for authorization.
type StateTransition struct {
	kernel        *TransactionKernel
	inputRecords  [network.NumInputRecords]*Record
	outputRecords [network.NumOutputRecords]*Record
	noopKeys      [network.NumInputRecords]*account.PrivateKey
}

func (st *StateTransition) Kernel() *TransactionKernel {
	return st.kernel
}

func (st *StateTransition) InputRecords() [network.NumInputRecords]*Record {
	return st.inputRecords
}

func (st *StateTransition) OutputRecords() [network.NumOutputRecords]*Record {
	return st.outputRecords
}

// NoopPrivateKeys returns, per input slot, the network noop key for noop
// slots and nil for slots that require a caller-supplied key.
func (st *StateTransition) NoopPrivateKeys() [network.NumInputRecords]*account.PrivateKey {
	return st.noopKeys
}

// NewCoinbase builds a transition minting the given amount to the
// recipient: all input slots are noop, the value balance is negative.
func NewCoinbase(recipient account.Address, amount *uint256.Int, rng io.Reader) (*StateTransition, error) {
	if !amount.IsUint64() {
		return nil, fmt.Errorf("coinbase amount out of range")
	}
	output, err := NewRecord(recipient, amount, nil, NoopProgramID(), rng)
	if err != nil {
		return nil, err
	}
	return newStateTransition(nil, []*Record{output}, -int64(amount.Uint64()), rng)
}

// NewTransfer builds a transition spending the given records: one output to
// the recipient and one change output back to the change address.
func NewTransfer(
	inputs []*Record, recipient account.Address, change account.Address,
	amount, fee *uint256.Int, rng io.Reader,
) (*StateTransition, error) {
	if len(inputs) == 0 || len(inputs) > network.NumInputRecords {
		return nil, fmt.Errorf("wrong input record count: got(%d)", len(inputs))
	}

	balance := uint256.NewInt(0)
	for _, in := range inputs {
		balance.Add(balance, in.Value)
	}
	needed := new(uint256.Int).Add(amount, fee)
	if balance.Cmp(needed) < 0 {
		return nil, fmt.Errorf("insufficient balance: have(%s), need(%s)", balance.Dec(), needed.Dec())
	}
	if !fee.IsUint64() {
		return nil, fmt.Errorf("fee out of range")
	}

	outRecord, err := NewRecord(recipient, amount, nil, NoopProgramID(), rng)
	if err != nil {
		return nil, err
	}
	changeRecord, err := NewRecord(change, new(uint256.Int).Sub(balance, needed), nil, NoopProgramID(), rng)
	if err != nil {
		return nil, err
	}

	return newStateTransition(inputs, []*Record{outRecord, changeRecord}, int64(fee.Uint64()), rng)
}

// newStateTransition pads the declared records with noops, derives the
// serial numbers and commitments, and assembles the kernel. The memo is
// sampled from rng.
func newStateTransition(inputs, outputs []*Record, valueBalance int64, rng io.Reader) (*StateTransition, error) {
	if len(inputs) > network.NumInputRecords || len(outputs) > network.NumOutputRecords {
		return nil, fmt.Errorf("too many declared records")
	}

	st := &StateTransition{
		kernel: &TransactionKernel{
			NetworkID:    network.ID,
			ValueBalance: valueBalance,
		},
	}
	if _, err := io.ReadFull(rng, st.kernel.Memo[:]); err != nil {
		return nil, fmt.Errorf("failed to sample memo: %w", err)
	}

	for i := 0; i < network.NumInputRecords; i++ {
		if i < len(inputs) {
			if inputs[i] == nil {
				return nil, errNilRecord
			}
			st.inputRecords[i] = inputs[i]
		} else {
			noop, err := NewNoopRecord(rng)
			if err != nil {
				return nil, err
			}
			st.inputRecords[i] = noop
			st.noopKeys[i] = account.NoopPrivateKey()
		}
		st.kernel.SerialNumbers[i] = st.inputRecords[i].SerialNumber()
	}

	for i := 0; i < network.NumOutputRecords; i++ {
		if i < len(outputs) {
			if outputs[i] == nil {
				return nil, errNilRecord
			}
			st.outputRecords[i] = outputs[i]
		} else {
			noop, err := NewNoopRecord(rng)
			if err != nil {
				return nil, err
			}
			st.outputRecords[i] = noop
		}
		st.kernel.Commitments[i] = st.outputRecords[i].Commitment()
	}

	return st, nil
}
