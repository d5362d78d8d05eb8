// Package challenger implements the Fiat-Shamir transcript as a duplex
// sponge over the koalabear field.
//
// The sponge is strictly sequential: observations and samples must come from
// a single goroutine, and their order is part of the proving protocol.
package challenger

import (
	"encoding/binary"

	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

const (
	// Width is the sponge state size, in field elements.
	Width = 24
	// Rate is the number of state elements absorbed or squeezed per
	// permutation call.
	Rate = 16
)

// Permutation scrambles the whole sponge state in place.
type Permutation interface {
	Permute(state *[Width]fr.Element)
}

// Duplex is a duplex sponge: absorbed inputs overwrite the state prefix, and
// samples are squeezed from the rate portion after a permutation.
type Duplex struct {
	perm   Permutation
	state  [Width]fr.Element
	input  []fr.Element // pending observations, always < Rate
	output []fr.Element // squeezed elements not yet consumed
}

// New returns a duplex sponge backed by the SHAKE128 permutation.
func New() *Duplex {
	return NewWithPermutation(shakePermutation{})
}

// NewWithPermutation returns a duplex sponge over a caller-provided
// permutation.
func NewWithPermutation(perm Permutation) *Duplex {
	return &Duplex{
		perm:  perm,
		input: make([]fr.Element, 0, Rate),
	}
}

// Clone returns an independent copy of the transcript state.
func (c *Duplex) Clone() *Duplex {
	clone := &Duplex{
		perm:  c.perm,
		state: c.state,
		input: make([]fr.Element, len(c.input), Rate),
	}
	copy(clone.input, c.input)
	if len(c.output) > 0 {
		clone.output = make([]fr.Element, len(c.output))
		copy(clone.output, c.output)
	}
	return clone
}

func (c *Duplex) duplexing() {
	copy(c.state[:len(c.input)], c.input)
	c.input = c.input[:0]
	c.perm.Permute(&c.state)
	c.output = make([]fr.Element, Rate)
	copy(c.output, c.state[:Rate])
}

// Observe absorbs one field element into the transcript.
func (c *Duplex) Observe(x fr.Element) {
	// any pending squeezed output is invalidated by a new observation
	c.output = nil
	c.input = append(c.input, x)
	if len(c.input) == Rate {
		c.duplexing()
	}
}

// ObserveSlice absorbs the elements of xs in order.
func (c *Duplex) ObserveSlice(xs []fr.Element) {
	for _, x := range xs {
		c.Observe(x)
	}
}

// ObserveExt absorbs an extension element as its base field limbs.
func (c *Duplex) ObserveExt(x *ext.E4) {
	limbs := utils.Flatten(x)
	c.ObserveSlice(limbs[:])
}

// ObserveDigest absorbs a 32-byte commitment digest as 8 field elements,
// each the reduction of a 4-byte little-endian chunk.
func (c *Duplex) ObserveDigest(digest [32]byte) {
	for i := 0; i < len(digest); i += 4 {
		var x fr.Element
		x.SetUint64(uint64(binary.LittleEndian.Uint32(digest[i:])))
		c.Observe(x)
	}
}

// Sample squeezes one field element out of the transcript.
func (c *Duplex) Sample() fr.Element {
	if len(c.input) > 0 || len(c.output) == 0 {
		c.duplexing()
	}
	x := c.output[0]
	c.output = c.output[1:]
	return x
}

// SampleExt squeezes an extension field element, assembling 4 samples in
// monomial basis order.
func (c *Duplex) SampleExt() ext.E4 {
	var limbs [utils.ExtDegree]fr.Element
	for i := range limbs {
		limbs[i] = c.Sample()
	}
	return utils.Unflatten(limbs)
}

// SampleBits squeezes one element and returns its low n bits. n must be at
// most 27 so the bits stay statistically close to uniform for the 31-bit
// modulus.
func (c *Duplex) SampleBits(n int) uint64 {
	if n < 0 || n > 27 {
		panic("challenger: bit count out of range")
	}
	v := c.Sample()
	return v.Uint64() & ((1 << uint(n)) - 1)
}

// CheckWitness absorbs a proof-of-work witness and reports whether the next
// n sampled bits are all zero.
func (c *Duplex) CheckWitness(nBits int, witness fr.Element) bool {
	c.Observe(witness)
	return c.SampleBits(nBits) == 0
}

// Grind searches for a witness passing CheckWitness(nBits) and absorbs it,
// leaving the transcript in the same state a verifying CheckWitness call
// produces.
func (c *Duplex) Grind(nBits int) fr.Element {
	for w := uint64(0); ; w++ {
		witness := fr.NewElement(w)
		if c.Clone().CheckWitness(nBits, witness) {
			c.CheckWitness(nBits, witness)
			return witness
		}
	}
}
