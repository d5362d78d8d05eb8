package fft

import (
	"math/bits"

	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

// FFT computes the discrete Fourier transform of a in place: on input the
// coefficients of a polynomial of degree < len(a), on output its evaluations
// over the subgroup generated by d.Generator, in natural order.
// len(a) must equal d.Cardinality.
func (d *Domain) FFT(a []fr.Element) {
	d.checkLen(a)
	d.butterflies(a, d.twiddles)
}

// FFTInverse is the inverse transform of FFT: evaluations in, coefficients out.
func (d *Domain) FFTInverse(a []fr.Element) {
	d.checkLen(a)
	d.butterflies(a, d.twiddlesInv)
	for i := range a {
		a[i].Mul(&a[i], &d.CardinalityInv)
	}
}

// CosetFFT evaluates the polynomial with coefficients a over the coset
// shift·⟨d.Generator⟩, in natural order.
func (d *Domain) CosetFFT(a []fr.Element, shift fr.Element) {
	d.checkLen(a)
	var s fr.Element
	s.SetOne()
	for i := 1; i < len(a); i++ {
		s.Mul(&s, &shift)
		a[i].Mul(&a[i], &s)
	}
	d.FFT(a)
}

// CosetFFTInverse interpolates the evaluations a over the coset
// shift·⟨d.Generator⟩ back into coefficients.
func (d *Domain) CosetFFTInverse(a []fr.Element, shift fr.Element) {
	d.checkLen(a)
	d.FFTInverse(a)
	var sInv, s fr.Element
	sInv.Inverse(&shift)
	s.SetOne()
	for i := 1; i < len(a); i++ {
		s.Mul(&s, &sInv)
		a[i].Mul(&a[i], &s)
	}
}

func (d *Domain) checkLen(a []fr.Element) {
	if uint64(len(a)) != d.Cardinality {
		panic("fft: slice length does not match domain cardinality")
	}
}

// butterflies runs an iterative radix-2 Cooley-Tukey transform, natural order
// in and out. twiddles holds the powers of the (inverse) generator.
func (d *Domain) butterflies(a []fr.Element, twiddles []fr.Element) {
	n := len(a)
	if n == 1 {
		return
	}
	BitReverse(a)

	var t fr.Element
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for start := 0; start < n; start += size {
			twiddleIdx := 0
			for k := start; k < start+half; k++ {
				w := twiddles[twiddleIdx]
				twiddleIdx += step
				t.Mul(&a[k+half], &w)
				a[k+half].Sub(&a[k], &t)
				a[k].Add(&a[k], &t)
			}
		}
	}
}

// BitReverse applies the bit-reversal permutation to v in place.
// len(v) must be a power of 2.
func BitReverse(v []fr.Element) {
	n := uint64(len(v))
	nn := uint64(64 - utils.Log2Strict(n))

	for i := uint64(0); i < n; i++ {
		irev := bits.Reverse64(i) >> nn
		if irev > i {
			v[i], v[irev] = v[irev], v[i]
		}
	}
}
