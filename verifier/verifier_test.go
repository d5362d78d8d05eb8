package verifier_test

import (
	"testing"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/keygen"
	"github.com/consensys/go-stark/matrix"
	"github.com/consensys/go-stark/prover"
	"github.com/consensys/go-stark/test"
	"github.com/consensys/go-stark/verifier"
)

// addAir constrains column 2 to the sum of columns 0 and 1.
type addAir struct{}

func (addAir) Name() string { return "add" }
func (addAir) Width() int   { return 3 }
func (addAir) Eval(b *air.Builder) {
	b.AssertEq(b.Add(b.Main(0, 0), b.Main(1, 0)), b.Main(2, 0))
}

func addChip(height int) *test.StaticChip {
	m := matrix.NewDense(3, height)
	for i := 0; i < height; i++ {
		m.Set(i, 0, fr.NewElement(uint64(i)))
		m.Set(i, 1, fr.NewElement(uint64(2*i)))
		m.Set(i, 2, fr.NewElement(uint64(3*i)))
	}
	return &test.StaticChip{A: addAir{}, Input: prover.AirProofInput{CommonMain: m}}
}

// sendAir pushes column 0 onto the bus once per row.
type sendAir struct{ bus uint16 }

func (sendAir) Name() string { return "send" }
func (sendAir) Width() int   { return 1 }
func (a sendAir) Eval(b *air.Builder) {
	b.PushSend(a.bus, []air.Expr{b.Main(0, 0)}, b.One())
}

func sendChip(a air.Air, vals ...uint64) *test.StaticChip {
	m := matrix.NewDense(1, len(vals))
	for i, v := range vals {
		m.Set(i, 0, fr.NewElement(v))
	}
	return &test.StaticChip{A: a, Input: prover.AirProofInput{CommonMain: m}}
}

// recvAir receives column 0 from the bus with the multiplicity in column 1.
type recvAir struct{ bus uint16 }

func (recvAir) Name() string { return "recv" }
func (recvAir) Width() int   { return 2 }
func (a recvAir) Eval(b *air.Builder) {
	b.PushReceive(a.bus, []air.Expr{b.Main(0, 0)}, b.Main(1, 0))
}

func recvChip(a air.Air, rows ...[2]uint64) *test.StaticChip {
	m := matrix.NewDense(2, len(rows))
	for i, r := range rows {
		m.Set(i, 0, fr.NewElement(r[0]))
		m.Set(i, 1, fr.NewElement(r[1]))
	}
	return &test.StaticChip{A: a, Input: prover.AirProofInput{CommonMain: m}}
}

// shuffleAir sends column 0 and receives column 1 on the same bus, so its
// trace satisfies the bus argument exactly when the two columns hold the
// same multiset.
type shuffleAir struct{ bus uint16 }

func (shuffleAir) Name() string { return "shuffle" }
func (shuffleAir) Width() int   { return 2 }
func (a shuffleAir) Eval(b *air.Builder) {
	b.PushSend(a.bus, []air.Expr{b.Main(0, 0)}, b.One())
	b.PushReceive(a.bus, []air.Expr{b.Main(1, 0)}, b.One())
}

func shuffleChip(a air.Air, left, right []uint64) *test.StaticChip {
	m := matrix.NewDense(2, len(left))
	for i := range left {
		m.Set(i, 0, fr.NewElement(left[i]))
		m.Set(i, 1, fr.NewElement(right[i]))
	}
	return &test.StaticChip{A: a, Input: prover.AirProofInput{CommonMain: m}}
}

// pubFirstAir pins the first row of column 0 to the public value.
type pubFirstAir struct{}

func (pubFirstAir) Name() string         { return "pub-first" }
func (pubFirstAir) Width() int           { return 1 }
func (pubFirstAir) NumPublicValues() int { return 1 }
func (pubFirstAir) Eval(b *air.Builder) {
	b.AssertZeroWhen(b.IsFirstRow(), b.Sub(b.Main(0, 0), b.Public(0)))
}

func pubFirstChip(first uint64, height int, public uint64) *test.StaticChip {
	m := matrix.NewDense(1, height)
	m.Set(0, 0, fr.NewElement(first))
	for i := 1; i < height; i++ {
		m.Set(i, 0, fr.NewElement(uint64(i)))
	}
	return &test.StaticChip{A: pubFirstAir{}, Input: prover.AirProofInput{
		CommonMain:   m,
		PublicValues: []fr.Element{fr.NewElement(public)},
	}}
}

// prepSquareAir constrains column 0 to the square of its preprocessed
// column.
type prepSquareAir struct{ height int }

func (prepSquareAir) Name() string { return "prep-square" }
func (prepSquareAir) Width() int   { return 1 }
func (a prepSquareAir) PreprocessedTrace() *matrix.Dense {
	m := matrix.NewDense(1, a.height)
	for i := 0; i < a.height; i++ {
		m.Set(i, 0, fr.NewElement(uint64(i)))
	}
	return m
}
func (prepSquareAir) Eval(b *air.Builder) {
	p := b.Preprocessed(0, 0)
	b.AssertEq(b.Main(0, 0), b.Mul(p, p))
}

func prepSquareChip(height int) *test.StaticChip {
	m := matrix.NewDense(1, height)
	for i := 0; i < height; i++ {
		m.Set(i, 0, fr.NewElement(uint64(i*i)))
	}
	return &test.StaticChip{A: prepSquareAir{height: height}, Input: prover.AirProofInput{CommonMain: m}}
}

// doubleCachedAir reads column 0 from a cached partition and constrains the
// common column to its double.
type doubleCachedAir struct{}

func (doubleCachedAir) Name() string            { return "double-cached" }
func (doubleCachedAir) Width() int              { return 2 }
func (doubleCachedAir) CachedMainWidths() []int { return []int{1} }
func (doubleCachedAir) Eval(b *air.Builder) {
	b.AssertEq(b.Main(1, 0), b.Add(b.Main(0, 0), b.Main(0, 0)))
}

func TestSingleAir(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	proof := assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
		return []prover.Chip{addChip(8)}
	})
	assert.Len(proof.Commitments.MainTrace, 1)
	assert.Empty(proof.Commitments.AfterChallenge)
	assert.Empty(proof.PerAir[0].ExposedValuesAfterChallenge)
}

func TestMinimumHeight(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
		return []prover.Chip{addChip(2)}
	})
}

func TestMixedHeights(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	proof := assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
		return []prover.Chip{addChip(4), addChip(16), addChip(2)}
	})
	assert.Equal(4, proof.PerAir[0].Degree)
	assert.Equal(16, proof.PerAir[1].Degree)
	assert.Equal(2, proof.PerAir[2].Degree)
	// Heights differ, yet all three traces share one commitment.
	assert.Len(proof.Commitments.MainTrace, 1)
}

func TestBusBalanced(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	assert.Run(func(assert *test.Assert) {
		proof := assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
			bus := b.BusAllocator().NewBus(1)
			return []prover.Chip{
				sendChip(sendAir{bus}, 3, 1, 4, 1),
				recvChip(recvAir{bus}, [2]uint64{1, 2}, [2]uint64{3, 1}, [2]uint64{4, 1}, [2]uint64{9, 0}),
			}
		})
		assert.Len(proof.Commitments.AfterChallenge, 1)

		var sum ext.E4
		for i := range proof.PerAir {
			exposed := proof.PerAir[i].ExposedValuesAfterChallenge
			assert.Len(exposed, 1)
			assert.Len(exposed[0], 1)
			sum.Add(&sum, &exposed[0][0])
		}
		assert.True(sum.IsZero(), "cumulative sums do not cancel")
	}, "lookup")

	assert.Run(func(assert *test.Assert) {
		assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
			bus := b.BusAllocator().NewBus(1)
			return []prover.Chip{
				sendChip(sendAir{bus}, 5, 6, 7, 8),
				recvChip(recvAir{bus}, [2]uint64{8, 1}, [2]uint64{6, 1}, [2]uint64{7, 1}, [2]uint64{5, 1}),
			}
		})
	}, "permutation")

	assert.Run(func(assert *test.Assert) {
		proof := assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
			bus := b.BusAllocator().NewBus(1)
			return []prover.Chip{
				shuffleChip(shuffleAir{bus}, []uint64{2, 7, 1, 8}, []uint64{8, 1, 7, 2}),
			}
		})
		assert.Len(proof.Commitments.AfterChallenge, 1)
		assert.True(proof.PerAir[0].ExposedValuesAfterChallenge[0][0].IsZero())
	}, "single air shuffle")
}

func TestBusUnbalanced(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	assert.Run(func(assert *test.Assert) {
		assert.ProofRejected(cfg, verifier.ErrNonZeroCumulativeSum, func(b *keygen.Builder) []prover.Chip {
			bus := b.BusAllocator().NewBus(1)
			return []prover.Chip{
				sendChip(sendAir{bus}, 3, 1, 4, 1),
				// 5 was never sent.
				recvChip(recvAir{bus}, [2]uint64{1, 2}, [2]uint64{3, 1}, [2]uint64{4, 1}, [2]uint64{5, 1}),
			}
		})
	}, "unsent value received")

	assert.Run(func(assert *test.Assert) {
		assert.ProofRejected(cfg, verifier.ErrNonZeroCumulativeSum, func(b *keygen.Builder) []prover.Chip {
			bus := b.BusAllocator().NewBus(1)
			return []prover.Chip{
				sendChip(sendAir{bus}, 1, 2, 3, 4),
				recvChip(recvAir{bus}, [2]uint64{1, 1}, [2]uint64{2, 1}, [2]uint64{3, 1}, [2]uint64{4, 2}),
			}
		})
	}, "multiplicity off by one")

	assert.Run(func(assert *test.Assert) {
		assert.ProofRejected(cfg, verifier.ErrNonZeroCumulativeSum, func(b *keygen.Builder) []prover.Chip {
			bus := b.BusAllocator().NewBus(1)
			return []prover.Chip{
				shuffleChip(shuffleAir{bus}, []uint64{2, 7, 1, 8}, []uint64{8, 1, 7, 3}),
			}
		})
	}, "shuffle is not a permutation")
}

func TestUnsatisfiedConstraints(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	chip := addChip(8)
	chip.Input.CommonMain.Set(5, 2, fr.NewElement(99))

	assert.ProofRejected(cfg, verifier.ErrOodEvaluationMismatch, func(b *keygen.Builder) []prover.Chip {
		return []prover.Chip{chip}
	})
}

func TestPublicValues(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	assert.Run(func(assert *test.Assert) {
		assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
			return []prover.Chip{pubFirstChip(7, 8, 7)}
		})
	}, "bound")

	assert.Run(func(assert *test.Assert) {
		assert.ProofRejected(cfg, verifier.ErrOodEvaluationMismatch, func(b *keygen.Builder) []prover.Chip {
			return []prover.Chip{pubFirstChip(7, 8, 8)}
		})
	}, "trace disagrees with public value")
}

// counterAir counts up by one per row and exposes the first and last values
// as public values, the handoff surface between consecutive segments.
type counterAir struct{}

func (counterAir) Name() string         { return "counter" }
func (counterAir) Width() int           { return 1 }
func (counterAir) NumPublicValues() int { return 2 }
func (counterAir) Eval(b *air.Builder) {
	b.AssertZeroWhen(b.IsFirstRow(), b.Sub(b.Main(0, 0), b.Public(0)))
	b.AssertZeroWhen(b.IsLastRow(), b.Sub(b.Main(0, 0), b.Public(1)))
	b.AssertZeroWhen(b.IsTransition(), b.Sub(b.Main(0, 1), b.Add(b.Main(0, 0), b.One())))
}

func counterChip(start uint64, height int) *test.StaticChip {
	m := matrix.NewDense(1, height)
	for i := 0; i < height; i++ {
		m.Set(i, 0, fr.NewElement(start+uint64(i)))
	}
	end := start + uint64(height) - 1
	return &test.StaticChip{A: counterAir{}, Input: prover.AirProofInput{
		CommonMain:   m,
		PublicValues: []fr.Element{fr.NewElement(start), fr.NewElement(end)},
	}}
}

func TestSegmentContinuity(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	setup := func(start uint64, height int) func(b *keygen.Builder) []prover.Chip {
		return func(b *keygen.Builder) []prover.Chip {
			return []prover.Chip{counterChip(start, height)}
		}
	}

	// the second segment resumes at the value the first one stopped at
	first := assert.ProofSucceeded(cfg, setup(3, 8))
	second := assert.ProofSucceeded(cfg, setup(10, 16))
	assert.Equal(first.PerAir[0].PublicValues[1], second.PerAir[0].PublicValues[0])

	// a segment claiming a different start cannot prove continuity
	assert.ProofRejected(cfg, verifier.ErrOodEvaluationMismatch, func(b *keygen.Builder) []prover.Chip {
		chip := counterChip(10, 16)
		chip.Input.PublicValues[0] = fr.NewElement(11)
		return []prover.Chip{chip}
	})
}

func TestPreprocessed(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	setup := func(b *keygen.Builder) []prover.Chip {
		return []prover.Chip{prepSquareChip(8)}
	}

	assert.Run(func(assert *test.Assert) {
		proof := assert.ProofSucceeded(cfg, setup)
		assert.Len(proof.Commitments.Preprocessed, 1)
	}, "valid")

	assert.Run(func(assert *test.Assert) {
		proof, vk := assert.Prove(cfg, setup)
		proof.Commitments.Preprocessed[0][0] ^= 1
		err := verifier.Verify(cfg, vk, proof)
		assert.ErrorIs(err, verifier.ErrInvalidProofShape)
	}, "commitment differs from key")
}

func TestCachedPartition(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	cached := matrix.NewDense(1, 8)
	common := matrix.NewDense(1, 8)
	for i := 0; i < 8; i++ {
		cached.Set(i, 0, fr.NewElement(uint64(i)))
		common.Set(i, 0, fr.NewElement(uint64(2*i)))
	}
	data, err := commit.NewCommitter(cfg.Pcs).CommitCached(cached)
	assert.NoError(err)

	proof := assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
		return []prover.Chip{&test.StaticChip{A: doubleCachedAir{}, Input: prover.AirProofInput{
			CachedMains: []commit.CachedTraceData{data},
			CommonMain:  common,
		}}}
	})
	// One cached group plus the common group.
	assert.Len(proof.Commitments.MainTrace, 2)
	assert.Equal(data.Data.Commitment(), proof.Commitments.MainTrace[0])
}

func TestMixedBatch(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	proof := assert.ProofSucceeded(cfg, func(b *keygen.Builder) []prover.Chip {
		bus := b.BusAllocator().NewBus(1)
		return []prover.Chip{
			addChip(4),
			shuffleChip(shuffleAir{bus}, []uint64{2, 7, 1, 8, 0, 0, 3, 2}, []uint64{8, 1, 7, 2, 3, 0, 0, 2}),
			pubFirstChip(11, 16, 11),
			prepSquareChip(8),
		}
	})
	assert.Len(proof.Commitments.AfterChallenge, 1)
	assert.Len(proof.Opening.Values.AfterChallenge, 1)
	// Only the shuffle AIR commits a permutation trace.
	assert.Len(proof.Opening.Values.AfterChallenge[0], 1)
}

func TestProofTampering(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	setup := func(b *keygen.Builder) []prover.Chip {
		return []prover.Chip{addChip(4), addChip(8)}
	}

	cases := []struct {
		name   string
		mutate func(p *stark.Proof)
		want   error
	}{
		{
			name:   "truncated per-air data",
			mutate: func(p *stark.Proof) { p.PerAir = p.PerAir[:1] },
			want:   verifier.ErrInvalidProofShape,
		},
		{
			name:   "air id out of order",
			mutate: func(p *stark.Proof) { p.PerAir[1].AirID = 0 },
			want:   verifier.ErrInvalidProofShape,
		},
		{
			name:   "degree not a power of two",
			mutate: func(p *stark.Proof) { p.PerAir[0].Degree = 3 },
			want:   verifier.ErrInvalidProofShape,
		},
		{
			name:   "public values invented",
			mutate: func(p *stark.Proof) { p.PerAir[0].PublicValues = []fr.Element{fr.NewElement(1)} },
			want:   verifier.ErrInvalidProofShape,
		},
		{
			name:   "missing quotient chunks",
			mutate: func(p *stark.Proof) { p.Opening.Values.Quotient[0] = nil },
			want:   verifier.ErrInvalidProofShape,
		},
		{
			name: "exposed values on a bus-free air",
			mutate: func(p *stark.Proof) {
				var one ext.E4
				one.SetOne()
				p.PerAir[0].ExposedValuesAfterChallenge = [][]ext.E4{{one}}
			},
			want: verifier.ErrChallengePhaseError,
		},
		{
			name: "challenge-phase commitment on a bus-free batch",
			mutate: func(p *stark.Proof) {
				p.Commitments.AfterChallenge = []commit.Commitment{{1}}
			},
			want: verifier.ErrChallengePhaseError,
		},
		{
			name:   "tampered main commitment",
			mutate: func(p *stark.Proof) { p.Commitments.MainTrace[0][0] ^= 1 },
			want:   commit.ErrInvalidOpeningArgument,
		},
		{
			name:   "tampered quotient commitment",
			mutate: func(p *stark.Proof) { p.Commitments.Quotient[0] ^= 1 },
			want:   commit.ErrInvalidOpeningArgument,
		},
		{
			name: "tampered opened value",
			mutate: func(p *stark.Proof) {
				var one ext.E4
				one.SetOne()
				v := &p.Opening.Values.Main[0][0].Local[0]
				v.Add(v, &one)
			},
			want: commit.ErrInvalidOpeningArgument,
		},
	}

	for _, tc := range cases {
		assert.Run(func(assert *test.Assert) {
			proof, vk := assert.Prove(cfg, setup)
			tc.mutate(proof)
			err := verifier.Verify(cfg, vk, proof)
			assert.ErrorIs(err, tc.want)
		}, tc.name)
	}
}

func TestTamperedCumulativeSum(t *testing.T) {
	assert := test.NewAssert(t)
	cfg := test.QuickConfig(t)

	// Moving the claimed cumulative sum diverges the transcript, so the
	// opening argument fails before the bus check is reached.
	proof, vk := assert.Prove(cfg, func(b *keygen.Builder) []prover.Chip {
		bus := b.BusAllocator().NewBus(1)
		return []prover.Chip{
			shuffleChip(shuffleAir{bus}, []uint64{2, 7, 1, 8}, []uint64{8, 1, 7, 2}),
		}
	})
	var one ext.E4
	one.SetOne()
	cum := &proof.PerAir[0].ExposedValuesAfterChallenge[0][0]
	cum.Add(cum, &one)
	err := verifier.Verify(cfg, vk, proof)
	assert.ErrorIs(err, commit.ErrInvalidOpeningArgument)
}
