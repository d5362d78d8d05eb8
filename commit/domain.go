// Package commit defines the polynomial commitment abstraction the proving
// pipeline is written against: evaluation domains, the Pcs interface, and
// the trace committer that schedules multi-matrix commitments.
package commit

import (
	"github.com/consensys/go-stark/internal/fft"
	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// Domain is a multiplicative coset shift * <g> with g a root of unity of
// order 2^LogN. Trace domains have shift 1; quotient domains are shifted off
// the subgroup.
type Domain struct {
	LogN  int
	Shift fr.Element
}

// NaturalDomain returns the unshifted domain of the given log size.
func NaturalDomain(logN int) Domain {
	return Domain{LogN: logN, Shift: fr.One()}
}

// Size returns the number of points in the domain.
func (d Domain) Size() int { return 1 << d.LogN }

// Generator returns the subgroup generator.
func (d Domain) Generator() fr.Element {
	return fft.RootOfUnity(d.LogN)
}

// FirstPoint returns the canonical first point of the coset.
func (d Domain) FirstPoint() fr.Element { return d.Shift }

// NextPoint advances x by one domain step.
func (d Domain) NextPoint(x fr.Element) fr.Element {
	g := d.Generator()
	x.Mul(&x, &g)
	return x
}

// NextPointExt advances an extension point by one domain step.
func (d Domain) NextPointExt(x ext.E4) ext.E4 {
	g := d.Generator()
	x.MulByElement(&x, &g)
	return x
}

// CreateDisjointDomain returns a domain of at least minSize points disjoint
// from d, obtained by shifting with the full group generator.
func (d Domain) CreateDisjointDomain(minSize int) Domain {
	shift := d.Shift
	gen := fft.GeneratorFullMultiplicativeGroup()
	shift.Mul(&shift, &gen)
	return Domain{LogN: utils.Log2Ceil(minSize), Shift: shift}
}

// SplitDomains splits d into numChunks equal sub-cosets. Chunk j collects
// the points of d whose index is congruent to j modulo numChunks.
func (d Domain) SplitDomains(numChunks int) []Domain {
	logChunks := utils.Log2Strict(numChunks)
	g := d.Generator()
	chunks := make([]Domain, numChunks)
	shift := d.Shift
	for j := range chunks {
		chunks[j] = Domain{LogN: d.LogN - logChunks, Shift: shift}
		shift.Mul(&shift, &g)
	}
	return chunks
}

// VanishingAtPoint evaluates the domain's vanishing polynomial
// (x/shift)^size - 1 at an extension point.
func (d Domain) VanishingAtPoint(x ext.E4) ext.E4 {
	var shiftInv fr.Element
	shiftInv.Inverse(&d.Shift)
	var u ext.E4
	u.MulByElement(&x, &shiftInv)
	z := utils.ExpE4(u, uint64(d.Size()))
	var one ext.E4
	one.SetOne()
	z.Sub(&z, &one)
	return z
}

// Selectors holds the row selector values of a trace domain at one point.
type Selectors struct {
	IsFirst      ext.E4
	IsLast       ext.E4
	IsTransition ext.E4
	InvVanishing ext.E4
}

// SelectorsAtPoint evaluates the selectors of a trace domain at an
// out-of-domain extension point.
func (d Domain) SelectorsAtPoint(x ext.E4) Selectors {
	var shiftInv fr.Element
	shiftInv.Inverse(&d.Shift)
	var u ext.E4
	u.MulByElement(&x, &shiftInv)

	var one ext.E4
	one.SetOne()
	z := utils.ExpE4(u, uint64(d.Size()))
	z.Sub(&z, &one)

	gInv := d.Generator()
	gInv.Inverse(&gInv)

	var uMinusOne, uMinusGInv ext.E4
	uMinusOne.Sub(&u, &one)
	gInvE4 := utils.FromBase(gInv)
	uMinusGInv.Sub(&u, &gInvE4)

	var sel Selectors
	var inv ext.E4
	inv.Inverse(&uMinusOne)
	sel.IsFirst.Mul(&z, &inv)
	inv.Inverse(&uMinusGInv)
	sel.IsLast.Mul(&z, &inv)
	sel.IsTransition = uMinusGInv
	sel.InvVanishing.Inverse(&z)
	return sel
}
