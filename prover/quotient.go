package prover

import (
	"math/big"

	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/interaction"
	"github.com/consensys/go-stark/internal/utils"
	"github.com/consensys/go-stark/matrix"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// quotientChunks evaluates one AIR's folded constraint polynomial over a
// coset disjoint from its trace domain, divides out the trace vanishing
// polynomial and splits the result into the committed chunk matrices.
//
// The quotient domain enumerates the same coset the pcs extended the traces
// onto, so every committed segment is read back through
// GetEvaluationsOnDomain without re-extending.
func (r *run) quotientChunks(i int) ([]commit.DomainMatrix, error) {
	avk := &r.pk.Vk.PerAir[i]
	cs := avk.ConstraintSystem
	trace := r.domains[i]
	n := trace.Size()
	qDeg := avk.QuotientDegree
	quot := trace.CreateDisjointDomain(n * qDeg)
	size := quot.Size()
	// rows one trace step apart sit qDeg rows apart on the quotient coset
	step := qDeg

	var prep matrix.Strided
	hasPrep := r.prepRefs[i].data != nil
	if hasPrep {
		var err error
		prep, err = r.cfg.Pcs.GetEvaluationsOnDomain(r.prepRefs[i].data, r.prepRefs[i].index, quot)
		if err != nil {
			return nil, err
		}
	}
	mains := make([]matrix.Strided, len(r.mainRefs[i]))
	for j, ref := range r.mainRefs[i] {
		var err error
		mains[j], err = r.cfg.Pcs.GetEvaluationsOnDomain(ref.data, ref.index, quot)
		if err != nil {
			return nil, err
		}
	}
	var perm matrix.Strided
	hasPerm := r.permRefs[i].data != nil
	if hasPerm {
		var err error
		perm, err = r.cfg.Pcs.GetEvaluationsOnDomain(r.permRefs[i].data, r.permRefs[i].index, quot)
		if err != nil {
			return nil, err
		}
	}

	// On the quotient coset the trace vanishing polynomial u^n - 1
	// cycles with period qDeg, so only qDeg values exist. The selector
	// denominators u - 1 and u - 1/g vary per row; everything is
	// inverted in a single batch.
	gQ := quot.Generator()
	var shiftInv fr.Element
	shiftInv.Inverse(&trace.Shift)
	var u0 fr.Element
	u0.Mul(&quot.Shift, &shiftInv)

	var one fr.Element
	one.SetOne()
	gInv := trace.Generator()
	gInv.Inverse(&gInv)

	denoms := make([]fr.Element, step+2*size)
	zh := denoms[:step]
	var zc, wq fr.Element
	zc.Exp(u0, big.NewInt(int64(n)))
	wq.Exp(gQ, big.NewInt(int64(n)))
	for j := range zh {
		zh[j].Sub(&zc, &one)
		zc.Mul(&zc, &wq)
	}
	firstDen := denoms[step : step+size]
	lastDen := denoms[step+size:]
	u := u0
	for j := 0; j < size; j++ {
		firstDen[j].Sub(&u, &one)
		lastDen[j].Sub(&u, &gInv)
		u.Mul(&u, &gQ)
	}
	invs := fr.BatchInvert(denoms)
	zhInv := invs[:step]
	invFirst := invs[step : step+size]
	invLast := invs[step+size:]

	permWidth := interaction.PermutationWidth(cs)
	publics := utils.LiftSlice(r.inputs[i].PublicValues)
	var challenges, exposed []ext.E4
	if cs.HasInteractions() {
		challenges = []ext.E4{r.beta, r.gamma}
		exposed = []ext.E4{r.cumulative[i]}
	}

	flat := matrix.NewDense(utils.ExtDegree, size)
	utils.Parallelize(size, func(start, end int) {
		ev := air.NewEvaluator(cs)
		in := &air.EvalInput{
			MainLocal:  make([]ext.E4, cs.MainWidth),
			MainNext:   make([]ext.E4, cs.MainWidth),
			Publics:    publics,
			Challenges: challenges,
			Exposed:    exposed,
		}
		if hasPrep {
			in.PreprocessedLocal = make([]ext.E4, cs.PreprocessedWidth)
			in.PreprocessedNext = make([]ext.E4, cs.PreprocessedWidth)
		}
		if hasPerm {
			in.PermLocal = make([]ext.E4, permWidth)
			in.PermNext = make([]ext.E4, permWidth)
		}
		for j := start; j < end; j++ {
			next := j + step
			if next >= size {
				next -= size
			}

			var sf, sl fr.Element
			sf.Mul(&zh[j%step], &invFirst[j])
			sl.Mul(&zh[j%step], &invLast[j])
			in.IsFirst = utils.FromBase(sf)
			in.IsLast = utils.FromBase(sl)
			in.IsTransition = utils.FromBase(lastDen[j])

			if hasPrep {
				utils.Lift(in.PreprocessedLocal, prep.Row(j))
				utils.Lift(in.PreprocessedNext, prep.Row(next))
			}
			liftParts(in.MainLocal, mains, j)
			liftParts(in.MainNext, mains, next)
			if hasPerm {
				unflattenRow(in.PermLocal, perm.Row(j))
				unflattenRow(in.PermNext, perm.Row(next))
			}

			cons := ev.ConstraintValues(in)
			var acc ext.E4
			for k := range cons {
				acc.Mul(&acc, &r.alpha)
				acc.Add(&acc, &cons[k])
			}
			acc.MulByElement(&acc, &zhInv[j%step])
			limbs := utils.Flatten(&acc)
			copy(flat.Row(j), limbs[:])
		}
	})

	chunkDoms := quot.SplitDomains(qDeg)
	r.chunkDomains[i] = chunkDoms
	out := make([]commit.DomainMatrix, qDeg)
	for t := 0; t < qDeg; t++ {
		chunk := matrix.NewDense(utils.ExtDegree, n)
		for row := 0; row < n; row++ {
			copy(chunk.Row(row), flat.Row(t+row*qDeg))
		}
		out[t] = commit.DomainMatrix{Domain: chunkDoms[t], Matrix: chunk}
	}
	return out, nil
}

// liftParts writes the concatenated partition rows into dst as extension
// values.
func liftParts(dst []ext.E4, parts []matrix.Strided, row int) {
	off := 0
	for _, p := range parts {
		src := p.Row(row)
		utils.Lift(dst[off:off+len(src)], src)
		off += len(src)
	}
}

// unflattenRow reassembles the extension columns of a flattened permutation
// row.
func unflattenRow(dst []ext.E4, row []fr.Element) {
	for k := range dst {
		var limbs [utils.ExtDegree]fr.Element
		copy(limbs[:], row[k*utils.ExtDegree:(k+1)*utils.ExtDegree])
		dst[k] = utils.Unflatten(limbs)
	}
}
