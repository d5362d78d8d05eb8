package utils

import (
	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// ExtDegree is the degree of the challenge field extension over the base field.
const ExtDegree = 4

// FromBase lifts a base field element into the extension field.
func FromBase(v fr.Element) ext.E4 {
	var e ext.E4
	e.B0.A0.Set(&v)
	return e
}

// Monomial returns the i-th element of the monomial basis {1, u, v, u*v}
// of the extension field over the base field.
func Monomial(i int) ext.E4 {
	var e ext.E4
	switch i {
	case 0:
		e.B0.A0.SetOne()
	case 1:
		e.B0.A1.SetOne()
	case 2:
		e.B1.A0.SetOne()
	case 3:
		e.B1.A1.SetOne()
	default:
		panic("monomial index out of range")
	}
	return e
}

// Flatten returns the base field limbs of e in monomial basis order.
func Flatten(e *ext.E4) [ExtDegree]fr.Element {
	return [ExtDegree]fr.Element{e.B0.A0, e.B0.A1, e.B1.A0, e.B1.A1}
}

// Unflatten reassembles an extension element from its base field limbs.
func Unflatten(limbs [ExtDegree]fr.Element) ext.E4 {
	var e ext.E4
	e.B0.A0 = limbs[0]
	e.B0.A1 = limbs[1]
	e.B1.A0 = limbs[2]
	e.B1.A1 = limbs[3]
	return e
}

// Powers returns [1, x, x^2, ..., x^(n-1)].
func Powers(x fr.Element, n int) []fr.Element {
	res := make([]fr.Element, n)
	if n == 0 {
		return res
	}
	res[0].SetOne()
	for i := 1; i < n; i++ {
		res[i].Mul(&res[i-1], &x)
	}
	return res
}

// PowersE4 returns [1, x, x^2, ..., x^(n-1)] over the extension field.
func PowersE4(x ext.E4, n int) []ext.E4 {
	res := make([]ext.E4, n)
	if n == 0 {
		return res
	}
	res[0].SetOne()
	for i := 1; i < n; i++ {
		res[i].Mul(&res[i-1], &x)
	}
	return res
}

// ExpE4 returns x^k by square and multiply.
func ExpE4(x ext.E4, k uint64) ext.E4 {
	var res ext.E4
	res.SetOne()
	if k == 0 {
		return res
	}
	for i := Log2Floor(k); i >= 0; i-- {
		res.Mul(&res, &res)
		if (k>>uint(i))&1 == 1 {
			res.Mul(&res, &x)
		}
	}
	return res
}

// BatchInvertE4 inverts the elements of a in a single pass, using one field
// inversion and 3(n-1) multiplications (Montgomery batch trick). Zero entries
// stay zero, as in fr.BatchInvert.
func BatchInvertE4(a []ext.E4) []ext.E4 {
	res := make([]ext.E4, len(a))
	if len(a) == 0 {
		return res
	}

	zeroes := make([]bool, len(a))
	var accumulator ext.E4
	accumulator.SetOne()

	for i := range a {
		if a[i].IsZero() {
			zeroes[i] = true
			continue
		}
		res[i] = accumulator
		accumulator.Mul(&accumulator, &a[i])
	}

	accumulator.Inverse(&accumulator)

	for i := len(a) - 1; i >= 0; i-- {
		if zeroes[i] {
			continue
		}
		res[i].Mul(&res[i], &accumulator)
		accumulator.Mul(&accumulator, &a[i])
	}

	return res
}

// Lift writes the elements of src into dst as extension field values.
// dst must be at least as long as src.
func Lift(dst []ext.E4, src []fr.Element) {
	for i := range src {
		dst[i] = FromBase(src[i])
	}
}

// LiftSlice returns a fresh extension field copy of src.
func LiftSlice(src []fr.Element) []ext.E4 {
	dst := make([]ext.E4, len(src))
	Lift(dst, src)
	return dst
}
