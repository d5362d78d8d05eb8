package fri

import (
	"fmt"
	"math/big"

	"github.com/consensys/go-stark/challenger"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/internal/fft"
	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

func shapeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", commit.ErrInvalidOpeningArgument, fmt.Sprintf(format, args...))
}

func (p *TwoAdicPcs) Verify(rounds []commit.VerifyRound, proof commit.OpeningProof, ch *challenger.Duplex) error {
	pr, ok := proof.(*Proof)
	if !ok {
		return shapeErr("unexpected proof type %T", proof)
	}

	// derive the extension heights the claims imply
	roundLogMax := make([]int, len(rounds))
	logMax := 0
	for r, round := range rounds {
		if len(round.Matrices) == 0 {
			return shapeErr("round %d has no matrices", r)
		}
		for mi, mc := range round.Matrices {
			if len(mc.Openings) == 0 {
				return shapeErr("round %d matrix %d has no openings", r, mi)
			}
			width := len(mc.Openings[0].Values)
			for _, op := range mc.Openings {
				if len(op.Values) != width {
					return shapeErr("round %d matrix %d has ragged opening widths", r, mi)
				}
			}
			logLde := mc.Domain.LogN + p.cfg.LogBlowup
			if logLde > fft.MaxLogCardinality {
				return shapeErr("round %d matrix %d exceeds the two-adicity", r, mi)
			}
			if logLde > roundLogMax[r] {
				roundLogMax[r] = logLde
			}
		}
		if roundLogMax[r] > logMax {
			logMax = roundLogMax[r]
		}
	}
	numLayers := logMax - p.cfg.LogBlowup
	if len(pr.CommitPhaseRoots) != numLayers {
		return shapeErr("%d commit phase roots, want %d", len(pr.CommitPhaseRoots), numLayers)
	}
	if len(pr.Queries) != p.cfg.NumQueries {
		return shapeErr("%d queries, want %d", len(pr.Queries), p.cfg.NumQueries)
	}

	alpha := ch.SampleExt()
	betas := make([]ext.E4, numLayers)
	for l := range betas {
		ch.ObserveDigest(pr.CommitPhaseRoots[l])
		betas[l] = ch.SampleExt()
	}
	ch.ObserveExt(&pr.FinalValue)
	if !ch.CheckWitness(p.cfg.PowBits, pr.PowWitness) {
		return shapeErr("proof of work witness rejected")
	}

	var inv2 fr.Element
	inv2.SetUint64(2)
	inv2.Inverse(&inv2)

	for qi := range pr.Queries {
		q := &pr.Queries[qi]
		idx := int(ch.SampleBits(logMax))
		if len(q.InputOpenings) != len(rounds) {
			return shapeErr("query %d has %d input openings, want %d", qi, len(q.InputOpenings), len(rounds))
		}
		if len(q.CommitPhaseOpenings) != numLayers {
			return shapeErr("query %d has %d layer openings, want %d", qi, len(q.CommitPhaseOpenings), numLayers)
		}

		// reduced openings per height at this query
		roAtQ := make(map[int]ext.E4)
		var alphaPow ext.E4
		alphaPow.SetOne()
		for r := range rounds {
			round := &rounds[r]
			bo := &q.InputOpenings[r]
			if len(bo.Rows) != len(round.Matrices) {
				return shapeErr("query %d round %d opens %d rows, want %d", qi, r, len(bo.Rows), len(round.Matrices))
			}

			// replay the batch tree: tallest group as leaf, the rest
			// injected at their levels
			byHeight := make(map[int][][]fr.Element)
			for mi, mc := range round.Matrices {
				logLde := mc.Domain.LogN + p.cfg.LogBlowup
				width := len(mc.Openings[0].Values)
				if len(bo.Rows[mi]) != width {
					return shapeErr("query %d round %d matrix %d row width %d, want %d",
						qi, r, mi, len(bo.Rows[mi]), width)
				}
				byHeight[logLde] = append(byHeight[logLde], bo.Rows[mi])
			}
			leaf := hashRows(byHeight[roundLogMax[r]]...)
			inject := make(map[int]digest)
			for logLde, rows := range byHeight {
				if logLde != roundLogMax[r] {
					inject[logLde] = hashRows(rows...)
				}
			}
			tIdx := idx >> (logMax - roundLogMax[r])
			if err := verifyPath(digest(round.Commitment), roundLogMax[r], tIdx, leaf, inject, bo.Path); err != nil {
				return shapeErr("query %d round %d: %v", qi, r, err)
			}

			for mi := range round.Matrices {
				mc := &round.Matrices[mi]
				logLde := mc.Domain.LogN + p.cfg.LogBlowup
				row := bo.Rows[mi]
				width := len(row)

				nodeIdx := idx >> (logMax - logLde)
				rowBits := utils.ReverseBits(uint64(nodeIdx), logLde)
				g := fft.RootOfUnity(logLde)
				var gPow fr.Element
				gPow.Exp(g, big.NewInt(int64(rowBits)))
				x := ldeShiftFor(mc.Domain)
				x.Mul(&x, &gPow)

				for pi := range mc.Openings {
					op := &mc.Openings[pi]
					var combRow, combClaim, t ext.E4
					for c := 0; c < width; c++ {
						t.MulByElement(&alphaPow, &row[c])
						combRow.Add(&combRow, &t)
						t.Mul(&alphaPow, &op.Values[c])
						combClaim.Add(&combClaim, &t)
						alphaPow.Mul(&alphaPow, &alpha)
					}
					denom := utils.FromBase(x)
					denom.Sub(&denom, &op.Point)
					denom.Inverse(&denom)
					combRow.Sub(&combRow, &combClaim)
					combRow.Mul(&combRow, &denom)
					acc := roAtQ[logLde]
					acc.Add(&acc, &combRow)
					roAtQ[logLde] = acc
				}
			}
		}

		// fold replay down to the final constant
		v := roAtQ[logMax]
		j := idx
		for l := 0; l < numLayers; l++ {
			lo := &q.CommitPhaseOpenings[l]
			logS := logMax - l
			pi := j >> 1
			if lo.Pair[j&1] != v {
				return shapeErr("query %d layer %d: folded value mismatch", qi, l)
			}
			leaf := hashRows(layerLeafRow(lo.Pair))
			if err := verifyPath(digest(pr.CommitPhaseRoots[l]), logS-1, pi, leaf, nil, lo.Path); err != nil {
				return shapeErr("query %d layer %d: %v", qi, l, err)
			}

			e := utils.ReverseBits(uint64(pi), logS-1)
			gInv := fft.RootOfUnity(logS)
			gInv.Inverse(&gInv)
			var uInv fr.Element
			uInv.Exp(gInv, big.NewInt(int64(e)))

			var sum, diff ext.E4
			sum.Add(&lo.Pair[0], &lo.Pair[1])
			sum.MulByElement(&sum, &inv2)
			diff.Sub(&lo.Pair[0], &lo.Pair[1])
			diff.MulByElement(&diff, &inv2)
			diff.MulByElement(&diff, &uInv)
			diff.Mul(&diff, &betas[l])
			v.Add(&sum, &diff)

			j = pi
			if contribution, ok := roAtQ[logS-1]; ok {
				v.Add(&v, &contribution)
			}
		}
		if v != pr.FinalValue {
			return shapeErr("query %d: final value mismatch", qi)
		}
	}
	return nil
}
