// Package ledger provides the in-memory ledger backing the pipeline: the
// record-commitment tree with membership proofs, the serial-number set, and
// the block, program and transaction stores.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/accumulator/merkletree"

	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/dpc/types"
	"github.com/kysee/dpc/utils"
)

// Ledger tracks the commitment tree and the stores. All methods are safe
// for concurrent use.
type Ledger struct {
	mu sync.RWMutex

	height          uint64
	commitmentsTree *merkletree.Tree
	commitmentsRoot []byte
	commitments     [][]byte
	serialNumbers   map[string]struct{}

	transactions map[string]*types.Transaction
	programs     map[string][]byte
}

func New() *Ledger {
	l := &Ledger{
		commitmentsTree: merkletree.New(utils.MiMCHasher()),
		serialNumbers:   make(map[string]struct{}),
		transactions:    make(map[string]*types.Transaction),
		programs:        make(map[string][]byte),
	}
	// A genesis leaf keeps the tree root well-defined before the first
	// record is committed.
	l.addCommitment(utils.MiMCHash([]byte("dpc.ledger.genesis")))
	l.RegisterProgram(types.NoopProgramID())
	return l
}

// AddCommitment appends a record commitment to the tree and returns its
// leaf index.
func (l *Ledger) AddCommitment(commitment []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addCommitment(commitment)
}

func (l *Ledger) addCommitment(commitment []byte) int {
	cm := make([]byte, len(commitment))
	copy(cm, commitment)
	l.commitments = append(l.commitments, cm)
	l.commitmentsTree.Push(cm)
	l.commitmentsRoot = l.commitmentsTree.Root()
	return len(l.commitments) - 1
}

// Root returns the current commitment tree root.
func (l *Ledger) Root() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := make([]byte, len(l.commitmentsRoot))
	copy(ret, l.commitmentsRoot)
	return ret
}

func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// ContainsSerialNumber reports whether a record was already spent.
func (l *Ledger) ContainsSerialNumber(sn []byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.serialNumbers[string(sn)]
	return ok
}

// ProveTransition builds a LedgerProof for the input records of a
// transition. Noop (dummy) records need no membership proof; every real
// record must already be committed to the ledger.
func (l *Ledger) ProveTransition(inputRecords [network.NumInputRecords]*types.Record) (*types.LedgerProof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	lp := &types.LedgerProof{
		BlockHeight: l.height,
		Root:        l.proofRoot(),
	}
	for i, r := range inputRecords {
		if r == nil {
			return nil, fmt.Errorf("missing input record %d", i)
		}
		if r.IsDummy() {
			continue
		}
		rp, err := l.proveCommitment(r.Commitment())
		if err != nil {
			return nil, fmt.Errorf("input record %d is not in the ledger: %w", i, err)
		}
		lp.RecordProofs[i] = rp
	}
	return lp, nil
}

func (l *Ledger) proofRoot() []byte {
	ret := make([]byte, len(l.commitmentsRoot))
	copy(ret, l.commitmentsRoot)
	return ret
}

func (l *Ledger) proveCommitment(commitment []byte) (*types.RecordProof, error) {
	var buf bytes.Buffer
	idx := uint64(0)
	found := false
	for i, c := range l.commitments {
		if bytes.Equal(c, commitment) {
			idx = uint64(i)
			found = true
		}
		buf.Write(c)
	}
	if !found {
		return nil, errors.New("commitment not found")
	}

	root, proofSet, numLeaves, err := merkletree.BuildReaderProof(
		&buf,
		utils.MiMCHasher(),
		utils.MiMCHasher().Size(),
		idx,
	)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(root, l.commitmentsRoot) {
		return nil, errors.New("commitment tree root mismatch")
	}
	return &types.RecordProof{Path: proofSet, Index: idx, NumLeaves: numLeaves}, nil
}

// VerifyRecordProof checks a membership proof against a root and the leaf
// it is claimed for. The first proof-set entry is the proven leaf data, so
// a proof of some other leaf does not pass for this one.
func VerifyRecordProof(root []byte, rp *types.RecordProof, leaf []byte) bool {
	if rp == nil || len(rp.Path) == 0 || !bytes.Equal(rp.Path[0], leaf) {
		return false
	}
	return merkletree.VerifyProof(utils.MiMCHasher(), root, rp.Path, rp.Index, rp.NumLeaves)
}

// CommitTransaction applies an executed transaction: its serial numbers are
// marked spent, its output commitments join the tree, the ledger height
// advances, and the transaction is stored by id.
func (l *Ledger) CommitTransaction(tx *types.Transaction) error {
	txid, err := tx.ToTransactionID()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sn := range tx.Kernel.SerialNumbers {
		if _, ok := l.serialNumbers[string(sn)]; ok {
			return fmt.Errorf("serial number already exists: %x", sn)
		}
	}
	for _, sn := range tx.Kernel.SerialNumbers {
		l.serialNumbers[string(sn)] = struct{}{}
	}
	for _, cm := range tx.Kernel.Commitments {
		l.addCommitment(cm)
	}
	l.height++
	l.transactions[string(txid)] = tx
	return nil
}

// Transaction returns a stored transaction by id.
func (l *Ledger) Transaction(txid []byte) *types.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.transactions[string(txid)]
}

// RegisterProgram stores a program id; Program reports whether it is known.
func (l *Ledger) RegisterProgram(programID []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[string(programID)] = programID
}

func (l *Ledger) Program(programID []byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.programs[string(programID)]
	return ok
}
