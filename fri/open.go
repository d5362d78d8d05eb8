package fri

import (
	"errors"
	"fmt"

	"github.com/consensys/go-stark/challenger"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/internal/fft"
	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

type layerData struct {
	vec  []ext.E4
	tree *tree
}

type denomKey struct {
	logLde int
	shift  fr.Element
	point  ext.E4
}

// evalAt evaluates every column polynomial of a committed matrix at an
// out-of-domain point.
func evalAt(cm *committedMatrix, z ext.E4) []ext.E4 {
	out := make([]ext.E4, len(cm.coeffs))
	utils.Parallelize(len(cm.coeffs), func(start, end int) {
		for col := start; col < end; col++ {
			coeffs := cm.coeffs[col]
			var acc ext.E4
			for i := len(coeffs) - 1; i >= 0; i-- {
				acc.Mul(&acc, &z)
				t := utils.FromBase(coeffs[i])
				acc.Add(&acc, &t)
			}
			out[col] = acc
		}
	})
	return out
}

// invDenominators returns 1/(x_i - z) over the extension coset of a
// committed matrix, in natural order.
func invDenominators(cm *committedMatrix, z ext.E4) []ext.E4 {
	size := 1 << cm.logLde
	denoms := make([]ext.E4, size)
	g := fft.RootOfUnity(cm.logLde)
	x := cm.ldeShift
	for i := 0; i < size; i++ {
		d := utils.FromBase(x)
		d.Sub(&d, &z)
		denoms[i] = d
		x.Mul(&x, &g)
	}
	return utils.BatchInvertE4(denoms)
}

func bitReverseExt(v []ext.E4) {
	logN := utils.Log2Strict(len(v))
	for i := range v {
		r := int(utils.ReverseBits(uint64(i), logN))
		if r > i {
			v[i], v[r] = v[r], v[i]
		}
	}
}

func (p *TwoAdicPcs) Open(rounds []commit.OpenRound, ch *challenger.Duplex) (commit.OpenedValues, commit.OpeningProof, error) {
	datas := make([]*proverData, len(rounds))
	logMax := 0
	for r, round := range rounds {
		d, ok := round.Data.(*proverData)
		if !ok {
			return nil, nil, errors.New("fri: foreign prover data")
		}
		if len(round.Points) != len(d.matrices) {
			return nil, nil, fmt.Errorf("fri: round %d has %d point lists for %d matrices",
				r, len(round.Points), len(d.matrices))
		}
		datas[r] = d
		if d.logMax > logMax {
			logMax = d.logMax
		}
	}

	// claimed evaluations
	opened := make(commit.OpenedValues, len(rounds))
	for r, round := range rounds {
		opened[r] = make([][][]ext.E4, len(datas[r].matrices))
		for mi := range datas[r].matrices {
			cm := &datas[r].matrices[mi]
			opened[r][mi] = make([][]ext.E4, len(round.Points[mi]))
			for pi, z := range round.Points[mi] {
				opened[r][mi][pi] = evalAt(cm, z)
			}
		}
	}

	alpha := ch.SampleExt()

	// reduced openings per extension height, natural order
	ro := make(map[int][]ext.E4)
	denomCache := make(map[denomKey][]ext.E4)
	var alphaPow ext.E4
	alphaPow.SetOne()
	for r, round := range rounds {
		for mi := range datas[r].matrices {
			cm := &datas[r].matrices[mi]
			size := 1 << cm.logLde
			if ro[cm.logLde] == nil {
				ro[cm.logLde] = make([]ext.E4, size)
			}
			rv := ro[cm.logLde]
			width := cm.lde.Width()
			for pi, z := range round.Points[mi] {
				key := denomKey{logLde: cm.logLde, shift: cm.ldeShift, point: z}
				invD, ok := denomCache[key]
				if !ok {
					invD = invDenominators(cm, z)
					denomCache[key] = invD
				}

				weights := make([]ext.E4, width)
				for c := 0; c < width; c++ {
					weights[c] = alphaPow
					alphaPow.Mul(&alphaPow, &alpha)
				}
				var claimComb ext.E4
				claims := opened[r][mi][pi]
				for c := 0; c < width; c++ {
					var t ext.E4
					t.Mul(&weights[c], &claims[c])
					claimComb.Add(&claimComb, &t)
				}

				lde := cm.lde
				utils.Parallelize(size, func(start, end int) {
					for i := start; i < end; i++ {
						row := lde.Row(i)
						var num, t ext.E4
						for c := 0; c < width; c++ {
							t.MulByElement(&weights[c], &row[c])
							num.Add(&num, &t)
						}
						num.Sub(&num, &claimComb)
						num.Mul(&num, &invD[i])
						rv[i].Add(&rv[i], &num)
					}
				})
			}
		}
	}

	for _, rv := range ro {
		bitReverseExt(rv)
	}

	// commit phase: fold from the tallest height down to the blowup size
	var inv2 fr.Element
	inv2.SetUint64(2)
	inv2.Inverse(&inv2)

	current := ro[logMax]
	var layers []layerData
	var roots []commit.Commitment
	for logCur := logMax; logCur > p.cfg.LogBlowup; logCur-- {
		m := 1 << (logCur - 1)
		leaves := make([]digest, m)
		utils.Parallelize(m, func(start, end int) {
			for i := start; i < end; i++ {
				leaves[i] = hashRows(layerLeafRow([2]ext.E4{current[2*i], current[2*i+1]}))
			}
		})
		ltree := newTree(leaves, nil)
		root := commit.Commitment(ltree.root())
		roots = append(roots, root)
		ch.ObserveDigest(root)
		beta := ch.SampleExt()
		layers = append(layers, layerData{vec: current, tree: ltree})

		// halving pairs are adjacent in bit-reversed order; the odd
		// component sits at -u for u = w^{rev(i)}
		gInv := fft.RootOfUnity(logCur)
		gInv.Inverse(&gInv)
		invPows := utils.Powers(gInv, m)

		next := make([]ext.E4, m)
		utils.Parallelize(m, func(start, end int) {
			for i := start; i < end; i++ {
				a := current[2*i]
				b := current[2*i+1]
				var sum, diff ext.E4
				sum.Add(&a, &b)
				sum.MulByElement(&sum, &inv2)
				diff.Sub(&a, &b)
				diff.MulByElement(&diff, &inv2)
				e := int(utils.ReverseBits(uint64(i), logCur-1))
				diff.MulByElement(&diff, &invPows[e])
				diff.Mul(&diff, &beta)
				next[i].Add(&sum, &diff)
			}
		})
		current = next
		if rv, ok := ro[logCur-1]; ok {
			for i := range current {
				current[i].Add(&current[i], &rv[i])
			}
		}
	}

	finalValue := current[0]
	ch.ObserveExt(&finalValue)
	powWitness := ch.Grind(p.cfg.PowBits)

	proof := &Proof{
		CommitPhaseRoots: roots,
		FinalValue:       finalValue,
		PowWitness:       powWitness,
	}
	for qi := 0; qi < p.cfg.NumQueries; qi++ {
		idx := int(ch.SampleBits(logMax))
		var q QueryProof
		for _, d := range datas {
			q.InputOpenings = append(q.InputOpenings, openBatch(d, idx>>(logMax-d.logMax)))
		}
		j := idx
		for _, layer := range layers {
			pi := j >> 1
			q.CommitPhaseOpenings = append(q.CommitPhaseOpenings, LayerOpening{
				Pair: [2]ext.E4{layer.vec[2*pi], layer.vec[2*pi+1]},
				Path: layer.tree.path(pi),
			})
			j = pi
		}
		proof.Queries = append(proof.Queries, q)
	}
	return opened, proof, nil
}

// openBatch opens every matrix of one committed batch at a tree index.
func openBatch(d *proverData, treeIndex int) BatchOpening {
	rows := make([][]fr.Element, len(d.matrices))
	for mi := range d.matrices {
		cm := &d.matrices[mi]
		nodeIdx := treeIndex >> (d.logMax - cm.logLde)
		r := int(utils.ReverseBits(uint64(nodeIdx), cm.logLde))
		rows[mi] = append([]fr.Element(nil), cm.lde.Row(r)...)
	}
	return BatchOpening{Rows: rows, Path: d.tree.path(treeIndex)}
}
