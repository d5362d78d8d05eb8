// Package fft provides radix-2 discrete Fourier transforms over the koalabear
// field, following the layout of gnark-crypto's fft domains. The modulus has
// two-adicity 24, which caps the supported domain size at 2^24.
package fft

import (
	"math/big"

	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

// MaxLogCardinality is the two-adicity of the koalabear modulus.
const MaxLogCardinality = 24

// Domain with a power of 2 cardinality; compute a field element of order 2^x;
// used for fft.
type Domain struct {
	Cardinality            uint64
	CardinalityInv         fr.Element
	Generator              fr.Element
	GeneratorInv           fr.Element
	FrMultiplicativeGen    fr.Element // generator of the full multiplicative group
	FrMultiplicativeGenInv fr.Element

	// powers of Generator (resp. GeneratorInv), up to Cardinality/2
	twiddles    []fr.Element
	twiddlesInv []fr.Element
}

// GeneratorFullMultiplicativeGroup returns a generator of the full
// multiplicative group of the field, i.e. an element of order p-1.
func GeneratorFullMultiplicativeGroup() fr.Element {
	return fr.NewElement(3)
}

// RootOfUnity returns an element of order 2^logN.
// It panics if logN exceeds the two-adicity of the field.
func RootOfUnity(logN int) fr.Element {
	if logN < 0 || logN > MaxLogCardinality {
		panic("fft: order exceeds two-adicity of the field")
	}
	// (p-1) / 2^logN
	var exp big.Int
	exp.Rsh(fr.Modulus().Sub(fr.Modulus(), big.NewInt(1)), uint(logN))
	g := GeneratorFullMultiplicativeGroup()
	var w fr.Element
	w.Exp(g, &exp)
	return w
}

// NewDomain returns a subgroup with a power of 2 cardinality.
// It panics if m is not a power of two or exceeds 2^24.
func NewDomain(m uint64) *Domain {
	logN := utils.Log2Strict(m)

	d := &Domain{
		Cardinality: m,
	}
	d.CardinalityInv.SetUint64(m).Inverse(&d.CardinalityInv)
	d.Generator = RootOfUnity(logN)
	d.GeneratorInv.Inverse(&d.Generator)
	d.FrMultiplicativeGen = GeneratorFullMultiplicativeGroup()
	d.FrMultiplicativeGenInv.Inverse(&d.FrMultiplicativeGen)

	d.twiddles = utils.Powers(d.Generator, int(m)/2)
	d.twiddlesInv = utils.Powers(d.GeneratorInv, int(m)/2)
	if m == 1 {
		d.twiddles = []fr.Element{}
		d.twiddlesInv = []fr.Element{}
	}

	return d
}
