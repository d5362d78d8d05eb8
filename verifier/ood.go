package verifier

import (
	"fmt"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/internal/utils"

	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// checkOodEvaluations re-evaluates every AIR's folded constraints on the
// opened rows and compares against the quotient reconstructed from its
// chunk openings. AIRs flagged with broken challenge-phase data are
// skipped; their verdict is the deferred phase error.
func checkOodEvaluations(v *view, proof *stark.Proof, domains []commit.Domain, chs challenges, broken []bool) error {
	vals := &proof.Opening.Values
	for i := range v.vk.PerAir {
		if broken[i] {
			continue
		}
		avk := &v.vk.PerAir[i]
		cs := avk.ConstraintSystem
		sel := domains[i].SelectorsAtPoint(chs.zeta)

		in := &air.EvalInput{
			Publics:      utils.LiftSlice(proof.PerAir[i].PublicValues),
			IsFirst:      sel.IsFirst,
			IsLast:       sel.IsLast,
			IsTransition: sel.IsTransition,
		}
		if cs.PreprocessedWidth > 0 {
			in.PreprocessedLocal = vals.Preprocessed[i].Local
			in.PreprocessedNext = vals.Preprocessed[i].Next
		}
		in.MainLocal, in.MainNext = assembleMainOpening(v, vals, i)
		if mi := v.permIndex[i]; mi >= 0 {
			in.PermLocal = recombineExt(vals.AfterChallenge[0][mi].Local)
			in.PermNext = recombineExt(vals.AfterChallenge[0][mi].Next)
			in.Challenges = []ext.E4{chs.beta, chs.gamma}
			in.Exposed = []ext.E4{proof.PerAir[i].ExposedValuesAfterChallenge[0][0]}
		}

		ev := air.NewEvaluator(cs)
		cons := ev.ConstraintValues(in)
		var folded ext.E4
		for k := range cons {
			folded.Mul(&folded, &chs.alpha)
			folded.Add(&folded, &cons[k])
		}

		q := quotientAtZeta(domains[i], avk.QuotientDegree, vals.Quotient[i], chs.zeta)
		var lhs ext.E4
		lhs.Mul(&folded, &sel.InvVanishing)
		if lhs != q {
			return fmt.Errorf("%w: air %d (%s)", ErrOodEvaluationMismatch, i, avk.Name)
		}
	}
	return nil
}

// assembleMainOpening concatenates the opened main partitions of one AIR
// into the full rows the constraint system reads.
func assembleMainOpening(v *view, vals *stark.OpenedValues, i int) (local, next []ext.E4) {
	if len(v.mainParts[i]) == 1 {
		ov := &vals.Main[v.mainParts[i][0].group][v.mainParts[i][0].index]
		return ov.Local, ov.Next
	}
	for _, ref := range v.mainParts[i] {
		ov := &vals.Main[ref.group][ref.index]
		local = append(local, ov.Local...)
		next = append(next, ov.Next...)
	}
	return local, next
}

// recombineExt folds base-limb column openings back into extension columns.
func recombineExt(limbs []ext.E4) []ext.E4 {
	out := make([]ext.E4, len(limbs)/utils.ExtDegree)
	for j := range out {
		var acc ext.E4
		for l := 0; l < utils.ExtDegree; l++ {
			m := utils.Monomial(l)
			m.Mul(&m, &limbs[j*utils.ExtDegree+l])
			acc.Add(&acc, &m)
		}
		out[j] = acc
	}
	return out
}

// quotientAtZeta rebuilds q(zeta) from the chunk openings. Chunk j is
// weighted by the vanishing polynomials of every other chunk domain,
// normalized to 1 on its own domain.
func quotientAtZeta(trace commit.Domain, qDeg int, chunks [][]ext.E4, zeta ext.E4) ext.E4 {
	doms := quotientChunkDomains(trace, qDeg)

	nums := make([]ext.E4, qDeg)
	dens := make([]ext.E4, qDeg)
	for t := range doms {
		nums[t].SetOne()
		dens[t].SetOne()
		first := utils.FromBase(doms[t].FirstPoint())
		for k := range doms {
			if k == t {
				continue
			}
			zx := doms[k].VanishingAtPoint(zeta)
			nums[t].Mul(&nums[t], &zx)
			zf := doms[k].VanishingAtPoint(first)
			dens[t].Mul(&dens[t], &zf)
		}
	}
	invs := utils.BatchInvertE4(dens)

	var q ext.E4
	for t := range doms {
		var term ext.E4
		term.Mul(&nums[t], &invs[t])
		chunk := recombineExt(chunks[t])
		term.Mul(&term, &chunk[0])
		q.Add(&q, &term)
	}
	return q
}
