package fri

import (
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// Proof is the opening argument for one batch of commitment rounds: the
// commit-phase roots, the final folded constant, the grinding witness, and
// one opening bundle per query.
type Proof struct {
	CommitPhaseRoots []commit.Commitment
	FinalValue       ext.E4
	PowWitness       fr.Element
	Queries          []QueryProof
}

// QueryProof answers one query index: a batch opening per input round and a
// pair opening per commit-phase layer.
type QueryProof struct {
	InputOpenings       []BatchOpening
	CommitPhaseOpenings []LayerOpening
}

// BatchOpening opens every matrix of one committed batch at the query row.
// Rows are listed in commit order.
type BatchOpening struct {
	Rows [][]fr.Element
	Path []Digest
}

// LayerOpening opens one commit-phase pair row.
type LayerOpening struct {
	Pair [2]ext.E4
	Path []Digest
}

// Digest is a 32-byte tree node.
type Digest = [32]byte

// layerLeafRow flattens a folding pair into the base row committed in the
// layer tree.
func layerLeafRow(pair [2]ext.E4) []fr.Element {
	row := make([]fr.Element, 0, 2*utils.ExtDegree)
	for i := range pair {
		limbs := utils.Flatten(&pair[i])
		row = append(row, limbs[:]...)
	}
	return row
}
