package interaction

import (
	"github.com/consensys/go-stark/air"
)

// The bus argument samples two challenges, the fingerprint bases beta and
// gamma, and exposes one value per AIR, the cumulative sum.
const (
	NumChallenges    = 2
	NumExposedValues = 1
)

// PermutationWidth returns the number of extension field columns the bus
// argument adds to an AIR: one reciprocal per interaction plus the running
// sum.
func PermutationWidth(cs *air.ConstraintSystem) int {
	if len(cs.Interactions) == 0 {
		return 0
	}
	return len(cs.Interactions) + 1
}

// AppendConstraints extends an AIR's constraint system with the permutation
// columns of the bus argument and the constraints binding them: each
// reciprocal column inverts its message fingerprint, and the running sum
// accumulates the reciprocals up to the exposed cumulative sum.
//
// It must run after the AIR's own Eval. AIRs without interactions are left
// untouched.
func AppendConstraints(b *air.Builder) {
	interactions := b.System().Interactions
	m := len(interactions)
	if m == 0 {
		return
	}

	beta := b.Challenge(0)
	gamma := b.Challenge(1)
	phiLocal := b.Permutation(m, 0)
	phiNext := b.Permutation(m, 1)

	sumLocal := b.Zero()
	sumNext := b.Zero()
	for k, itx := range interactions {
		recipLocal := b.Permutation(k, 0)
		recipNext := b.Permutation(k, 1)

		// fingerprint: beta^{bus+1} - sum_j gamma^j * field_j
		betaPow := beta
		for e := 0; e < int(itx.Bus); e++ {
			betaPow = b.Mul(betaPow, beta)
		}
		fp := itx.Fields[0]
		gammaPow := b.One()
		for j := 1; j < len(itx.Fields); j++ {
			gammaPow = b.Mul(gammaPow, gamma)
			fp = b.Add(fp, b.Mul(gammaPow, itx.Fields[j]))
		}
		denom := b.Sub(betaPow, fp)

		signed := itx.Count
		if itx.Direction == air.Receive {
			signed = b.Neg(signed)
		}
		b.AssertZero(b.Sub(b.Mul(recipLocal, denom), signed))

		sumLocal = b.Add(sumLocal, recipLocal)
		sumNext = b.Add(sumNext, recipNext)
	}

	b.AssertZeroWhen(b.IsFirstRow(), b.Sub(phiLocal, sumLocal))
	b.AssertZeroWhen(b.IsTransition(), b.Sub(b.Sub(phiNext, phiLocal), sumNext))
	b.AssertZeroWhen(b.IsLastRow(), b.Sub(phiLocal, b.Exposed(0)))
}
