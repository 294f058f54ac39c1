package types

import (
	"math/big"

	"github.com/kysee/dpc/dpc/network"
	"github.com/kysee/dpc/utils"
)

// RecordProof is a merkle membership proof of one record commitment in the
// ledger's commitment tree.
type RecordProof struct {
	Path      [][]byte
	Index     uint64
	NumLeaves uint64
}

// LedgerProof attests that the referenced input records exist in the ledger
// at a given block. Noop input slots carry no record proof.
type LedgerProof struct {
	BlockHeight  uint64
	Root         []byte
	RecordProofs [network.NumInputRecords]*RecordProof
}

// BlockHash derives the block hash binding the height and commitment root.
func (lp *LedgerProof) BlockHash() []byte {
	height := new(big.Int).SetUint64(lp.BlockHeight).FillBytes(make([]byte, 32))
	return utils.MiMCHash(height, lp.Root)
}
