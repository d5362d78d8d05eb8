package stark

import (
	"github.com/consensys/go-stark/commit"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// Proof is the envelope produced by the prover for one batch of AIRs.
type Proof struct {
	Commitments Commitments
	Opening     Opening
	PerAir      []AirProofData
}

// Commitments are the roots bound into the transcript, in commit order.
type Commitments struct {
	// Preprocessed holds one commitment per AIR with a preprocessed
	// trace, in AIR order. The verifying key carries the same roots; the
	// verifier rejects a proof whose copies differ.
	Preprocessed []commit.Commitment

	// MainTrace holds the cached commitments first, then the common
	// commitment covering every non-cached main trace.
	MainTrace []commit.Commitment

	// AfterChallenge holds the permutation-trace commitment of each
	// challenge phase. At most one phase is supported.
	AfterChallenge []commit.Commitment

	Quotient commit.Commitment
}

// Opening carries the claimed evaluations and the pcs proof backing them.
type Opening struct {
	Values OpenedValues
	Proof  commit.OpeningProof
}

// AirProofData is the per-AIR metadata the verifier replays into the
// transcript.
type AirProofData struct {
	// AirID is the AIR's index in the verifying key. Proofs list AIRs in
	// key order, so entry i must carry AirID i.
	AirID int

	// Degree is the trace height.
	Degree int

	PublicValues []fr.Element

	// ExposedValuesAfterChallenge holds, per challenge phase, the values
	// the AIR exposes from its permutation trace. With interactions this
	// is one phase with a single cumulative sum; without, no phases.
	ExposedValuesAfterChallenge [][]ext.E4
}

// AirOpenedValues are the evaluations of one matrix at the out-of-domain
// point and at its next-row shift.
type AirOpenedValues struct {
	Local []ext.E4
	Next  []ext.E4
}

// OpenedValues collects every claimed evaluation, indexed the way the
// matrices were committed.
type OpenedValues struct {
	// Preprocessed is indexed by AIR; AIRs without a preprocessed trace
	// hold empty rows.
	Preprocessed []AirOpenedValues

	// Main is indexed by commitment group, then by matrix within the
	// group.
	Main [][]AirOpenedValues

	// AfterChallenge is indexed by challenge phase, then by AIR among
	// those with interactions.
	AfterChallenge [][]AirOpenedValues

	// Quotient is indexed by AIR, then by chunk; each chunk opens to one
	// extension element per base-field limb.
	Quotient [][][]ext.E4
}
