package challenger

import (
	"testing"

	"github.com/consensys/go-stark/internal/utils"
	"github.com/stretchr/testify/require"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

func TestDeterminism(t *testing.T) {
	assert := require.New(t)

	run := func() []fr.Element {
		c := New()
		for i := 0; i < 3*Rate+5; i++ {
			c.Observe(fr.NewElement(uint64(i * i)))
		}
		var digest [32]byte
		for i := range digest {
			digest[i] = byte(i)
		}
		c.ObserveDigest(digest)
		out := make([]fr.Element, 0, Rate+3)
		for i := 0; i < Rate+3; i++ {
			out = append(out, c.Sample())
		}
		return out
	}

	first := run()
	second := run()
	assert.Equal(first, second)
}

func TestObservationChangesSamples(t *testing.T) {
	assert := require.New(t)

	a := New()
	b := New()
	a.Observe(fr.NewElement(1))
	b.Observe(fr.NewElement(2))
	sa := a.Sample()
	sb := b.Sample()
	assert.False(sa.Equal(&sb), "distinct observations must diverge")
}

func TestObservationInvalidatesOutput(t *testing.T) {
	assert := require.New(t)

	a := New()
	a.Observe(fr.NewElement(7))
	_ = a.Sample()
	a.Observe(fr.NewElement(8))

	// same observations, no interleaved sample
	b := New()
	b.Observe(fr.NewElement(7))
	b.Observe(fr.NewElement(8))

	// the interleaved sample must not shift what comes after the second
	// observation
	sa := a.Sample()
	sb := b.Sample()
	assert.True(sa.Equal(&sb))
}

func TestSampleExtMatchesLimbOrder(t *testing.T) {
	assert := require.New(t)

	a := New()
	b := New()
	a.Observe(fr.NewElement(42))
	b.Observe(fr.NewElement(42))

	x := a.SampleExt()
	var limbs [utils.ExtDegree]fr.Element
	for i := range limbs {
		limbs[i] = b.Sample()
	}
	want := utils.Unflatten(limbs)
	assert.Equal(want, x)
}

func TestObserveExtMatchesLimbOrder(t *testing.T) {
	assert := require.New(t)

	var x = utils.FromBase(fr.NewElement(99))
	x.B1.A0.SetUint64(123456)

	a := New()
	a.ObserveExt(&x)
	limbs := utils.Flatten(&x)
	b := New()
	b.ObserveSlice(limbs[:])

	sa := a.Sample()
	sb := b.Sample()
	assert.True(sa.Equal(&sb))
}

func TestSampleBitsRange(t *testing.T) {
	assert := require.New(t)

	c := New()
	c.Observe(fr.NewElement(3))
	for n := 0; n <= 27; n++ {
		v := c.SampleBits(n)
		assert.Less(v, uint64(1)<<uint(n)+1)
		assert.Zero(v>>uint(n), "bits above n must be masked off")
	}
	assert.Panics(func() { c.SampleBits(28) })
}

func TestCheckWitnessZeroBits(t *testing.T) {
	assert := require.New(t)

	c := New()
	c.Observe(fr.NewElement(5))
	assert.True(c.CheckWitness(0, fr.NewElement(17)))
}

func TestGrind(t *testing.T) {
	assert := require.New(t)

	prover := New()
	prover.Observe(fr.NewElement(11))
	verifier := prover.Clone()

	witness := prover.Grind(6)
	assert.True(verifier.CheckWitness(6, witness))

	// both transcripts must agree afterwards
	sp := prover.Sample()
	sv := verifier.Sample()
	assert.True(sp.Equal(&sv))
}

func TestCloneIndependence(t *testing.T) {
	assert := require.New(t)

	c := New()
	c.Observe(fr.NewElement(1))
	clone := c.Clone()

	// mutating the clone must not disturb the original
	clone.Observe(fr.NewElement(2))
	_ = clone.Sample()

	other := New()
	other.Observe(fr.NewElement(1))
	sc := c.Sample()
	so := other.Sample()
	assert.True(sc.Equal(&so))
}

func TestDigestChunking(t *testing.T) {
	assert := require.New(t)

	var digest [32]byte
	digest[0] = 0xFF
	digest[31] = 0x01

	a := New()
	a.ObserveDigest(digest)

	var other [32]byte
	other[0] = 0xFE
	other[31] = 0x01
	b := New()
	b.ObserveDigest(other)

	sa := a.Sample()
	sb := b.Sample()
	assert.False(sa.Equal(&sb))
}
