package commit

import (
	"testing"

	"github.com/consensys/go-stark/internal/utils"
	"github.com/stretchr/testify/require"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

func domainPoints(d Domain) []fr.Element {
	pts := make([]fr.Element, d.Size())
	x := d.FirstPoint()
	for i := range pts {
		pts[i] = x
		x = d.NextPoint(x)
	}
	return pts
}

func TestNaturalDomain(t *testing.T) {
	assert := require.New(t)

	d := NaturalDomain(3)
	assert.Equal(8, d.Size())
	one := fr.One()
	assert.Equal(one, d.FirstPoint())

	g := d.Generator()
	var acc fr.Element
	acc.SetOne()
	for i := 0; i < 8; i++ {
		if i > 0 {
			assert.False(acc.IsOne(), "generator order divides %d", i)
		}
		acc.Mul(&acc, &g)
	}
	assert.True(acc.IsOne())

	pts := domainPoints(d)
	assert.Equal(pts[0], d.NextPoint(pts[len(pts)-1]))
}

func TestDisjointDomain(t *testing.T) {
	assert := require.New(t)

	trace := NaturalDomain(3)
	quot := trace.CreateDisjointDomain(16)
	assert.Equal(4, quot.LogN)
	gen := fr.NewElement(3)
	assert.Equal(gen, quot.Shift)

	// the trace vanishing polynomial must not vanish anywhere on the
	// disjoint coset
	for _, x := range domainPoints(quot) {
		z := trace.VanishingAtPoint(utils.FromBase(x))
		assert.False(z.IsZero())
	}
	// and must vanish on the trace domain itself
	for _, x := range domainPoints(trace) {
		z := trace.VanishingAtPoint(utils.FromBase(x))
		assert.True(z.IsZero())
	}
}

func TestSplitDomains(t *testing.T) {
	assert := require.New(t)

	d := Domain{LogN: 5, Shift: fr.NewElement(3)}
	chunks := d.SplitDomains(4)
	assert.Len(chunks, 4)

	all := domainPoints(d)
	for j, chunk := range chunks {
		assert.Equal(3, chunk.LogN)
		got := domainPoints(chunk)
		// chunk j holds the points of d at indices j, j+4, j+8, ...
		for t2, x := range got {
			assert.Equal(all[j+4*t2], x, "chunk %d point %d", j, t2)
		}
	}
}

func TestSelectorsAtPoint(t *testing.T) {
	assert := require.New(t)

	d := NaturalDomain(4)
	var zeta ext.E4
	zeta.MustSetRandom()

	sel := d.SelectorsAtPoint(zeta)
	zH := d.VanishingAtPoint(zeta)

	var shiftInv fr.Element
	shiftInv.Inverse(&d.Shift)
	var u ext.E4
	u.MulByElement(&zeta, &shiftInv)
	var one ext.E4
	one.SetOne()

	// is_first * (u - 1) == zH
	var lhs, uMinusOne ext.E4
	uMinusOne.Sub(&u, &one)
	lhs.Mul(&sel.IsFirst, &uMinusOne)
	assert.Equal(zH, lhs)

	// is_last * (u - g^{-1}) == zH
	gInv := d.Generator()
	gInv.Inverse(&gInv)
	var uMinusGInv ext.E4
	gInvE4 := utils.FromBase(gInv)
	uMinusGInv.Sub(&u, &gInvE4)
	lhs.Mul(&sel.IsLast, &uMinusGInv)
	assert.Equal(zH, lhs)

	assert.Equal(uMinusGInv, sel.IsTransition)

	lhs.Mul(&sel.InvVanishing, &zH)
	assert.Equal(one, lhs)
}

func TestVanishingPeriodicity(t *testing.T) {
	assert := require.New(t)

	// on a disjoint domain of q times the trace size, the trace vanishing
	// values repeat with period q
	trace := NaturalDomain(3)
	quot := trace.CreateDisjointDomain(32)
	q := quot.Size() / trace.Size()

	pts := domainPoints(quot)
	var vals []ext.E4
	for _, x := range pts {
		vals = append(vals, trace.VanishingAtPoint(utils.FromBase(x)))
	}
	for i := q; i < len(vals); i++ {
		assert.Equal(vals[i-q], vals[i])
	}
}
