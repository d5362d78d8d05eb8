package prover

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/keygen"
	"github.com/consensys/go-stark/matrix"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

type stubData struct{}

func (stubData) Commitment() commit.Commitment { return commit.Commitment{} }

func TestPhaseOrder(t *testing.T) {
	assert := require.New(t)

	r := &run{}

	// skipping a phase is rejected
	err := r.advance(phaseObservedMain)
	assert.ErrorIs(err, ErrPhaseError)
	assert.Contains(err.Error(), "ObserveMain")
	assert.Contains(err.Error(), "Init")

	assert.NoError(r.advance(phaseObservedPreprocessed))

	// repeating the current phase is rejected
	err = r.advance(phaseObservedPreprocessed)
	assert.ErrorIs(err, ErrPhaseError)

	// going backwards is rejected
	err = r.advance(phaseInit)
	assert.ErrorIs(err, ErrPhaseError)

	// the strict forward walk succeeds
	for ph := phaseObservedMain; ph <= phaseEmitted; ph++ {
		assert.NoError(r.advance(ph))
	}
}

func TestAssembleMain(t *testing.T) {
	assert := require.New(t)

	el := func(v uint64) fr.Element { return fr.NewElement(v) }

	cached := matrix.NewDense(2, 2)
	cached.Set(0, 0, el(1))
	cached.Set(0, 1, el(2))
	cached.Set(1, 0, el(5))
	cached.Set(1, 1, el(6))
	common := matrix.NewDense(1, 2)
	common.Set(0, 0, el(3))
	common.Set(1, 0, el(7))

	in := &AirProofInput{
		CachedMains: []commit.CachedTraceData{{Trace: cached, Data: stubData{}}},
		CommonMain:  common,
	}
	full := assembleMain(in, 3)
	assert.Equal([]fr.Element{el(1), el(2), el(3)}, full.Row(0))
	assert.Equal([]fr.Element{el(5), el(6), el(7)}, full.Row(1))

	// without cached partitions the common matrix passes through unchanged
	in = &AirProofInput{CommonMain: common}
	assert.Same(common, assembleMain(in, 1))
}

func TestValidateInput(t *testing.T) {
	assert := require.New(t)

	cs := air.NewBuilder(0, 2, 1).System()
	avk := &keygen.AirVerifyingKey{Name: "t", ConstraintSystem: cs}

	good := AirProofInput{
		CommonMain:   matrix.NewDense(2, 4),
		PublicValues: []fr.Element{{}},
	}
	assert.NoError(validateInput(0, avk, &good))

	bad := good
	bad.CommonMain = nil
	assert.Error(validateInput(0, avk, &bad))

	bad = good
	bad.CommonMain = matrix.NewDense(2, 1)
	assert.Error(validateInput(0, avk, &bad))

	bad = good
	bad.CommonMain = matrix.NewDense(2, 6)
	assert.Error(validateInput(0, avk, &bad))

	bad = good
	bad.CommonMain = matrix.NewDense(3, 4)
	assert.Error(validateInput(0, avk, &bad))

	bad = good
	bad.PublicValues = nil
	assert.Error(validateInput(0, avk, &bad))

	// preprocessed traces pin the height
	pinned := *avk
	pinned.PreprocessedCommit = &commit.Commitment{}
	pinned.PreprocessedHeight = 8
	assert.Error(validateInput(0, &pinned, &good))
}

func TestValidateInputCachedPartitions(t *testing.T) {
	assert := require.New(t)

	cs := air.NewBuilder(0, 2, 0).System()
	avk := &keygen.AirVerifyingKey{
		Name:             "t",
		ConstraintSystem: cs,
		CachedMainWidths: []int{1},
	}

	good := AirProofInput{
		CachedMains: []commit.CachedTraceData{{Trace: matrix.NewDense(1, 4), Data: stubData{}}},
		CommonMain:  matrix.NewDense(1, 4),
	}
	assert.NoError(validateInput(0, avk, &good))

	// partition never committed
	bad := good
	bad.CachedMains = []commit.CachedTraceData{{Trace: matrix.NewDense(1, 4)}}
	assert.Error(validateInput(0, avk, &bad))

	// partition count mismatch
	bad = good
	bad.CachedMains = nil
	assert.Error(validateInput(0, avk, &bad))

	// partition width mismatch
	bad = good
	bad.CachedMains = []commit.CachedTraceData{{Trace: matrix.NewDense(2, 4), Data: stubData{}}}
	assert.Error(validateInput(0, avk, &bad))

	// common main height disagrees with the partitions
	bad = good
	bad.CommonMain = matrix.NewDense(1, 8)
	assert.Error(validateInput(0, avk, &bad))

	// common main missing while the key expects one column
	bad = good
	bad.CommonMain = nil
	assert.Error(validateInput(0, avk, &bad))
}
