package prover_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/keygen"
	"github.com/consensys/go-stark/matrix"
	"github.com/consensys/go-stark/prover"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

// addAir constrains column 2 to be the sum of columns 0 and 1.
type addAir struct{}

func (addAir) Name() string { return "add" }
func (addAir) Width() int   { return 3 }

func (addAir) Eval(b *air.Builder) {
	b.AssertEq(b.Add(b.Main(0, 0), b.Main(1, 0)), b.Main(2, 0))
}

// busSendAir sends its single column on a bus, once per row.
type busSendAir struct{ bus uint16 }

func (busSendAir) Name() string { return "bus-send" }
func (busSendAir) Width() int   { return 1 }

func (a busSendAir) Eval(b *air.Builder) {
	b.PushSend(a.bus, []air.Expr{b.Main(0, 0)}, b.One())
}

// busRecvAir receives column 0 with the multiplicity in column 1.
type busRecvAir struct{ bus uint16 }

func (busRecvAir) Name() string { return "bus-recv" }
func (busRecvAir) Width() int   { return 2 }

func (a busRecvAir) Eval(b *air.Builder) {
	b.PushReceive(a.bus, []air.Expr{b.Main(0, 0)}, b.Main(1, 0))
}

// tableChip replays a prebuilt input.
type tableChip struct {
	air            air.Air
	input          prover.AirProofInput
	declaredHeight int
}

func (c *tableChip) Air() air.Air { return c.air }

func (c *tableChip) CurrentTraceHeight() int {
	if c.declaredHeight > 0 {
		return c.declaredHeight
	}
	if len(c.input.CachedMains) > 0 {
		return c.input.CachedMains[0].Trace.Height()
	}
	if c.input.CommonMain != nil {
		return c.input.CommonMain.Height()
	}
	return 0
}

func (c *tableChip) TraceWidth() int { return c.air.Width() }

func (c *tableChip) GenerateAirProofInput() prover.AirProofInput { return c.input }

func testConfig(t *testing.T) *stark.Config {
	t.Helper()
	cfg, err := stark.NewConfig()
	require.NoError(t, err)
	return cfg
}

func keygenFor(t *testing.T, cfg *stark.Config, airs ...air.Air) *keygen.ProvingKey {
	t.Helper()
	b, err := keygen.NewBuilder(cfg)
	require.NoError(t, err)
	for _, a := range airs {
		b.AddAir(a)
	}
	pk, _, err := b.Keygen()
	require.NoError(t, err)
	return pk
}

func addTrace(rows int) *matrix.Dense {
	m := matrix.NewDense(3, rows)
	for i := 0; i < rows; i++ {
		m.Set(i, 0, fr.NewElement(uint64(i)))
		m.Set(i, 1, fr.NewElement(uint64(2*i)))
		m.Set(i, 2, fr.NewElement(uint64(3*i)))
	}
	return m
}

func TestProveInputChecks(t *testing.T) {
	assert := require.New(t)

	cfg := testConfig(t)
	pk := keygenFor(t, cfg, addAir{})
	p, err := prover.New(cfg)
	assert.NoError(err)

	// chip count must match the key
	_, err = p.Prove(pk, nil)
	assert.Error(err)

	// a chip for a different AIR is rejected by name
	_, err = p.Prove(pk, []prover.Chip{&tableChip{
		air:   busSendAir{},
		input: prover.AirProofInput{CommonMain: matrix.NewDense(1, 4)},
	}})
	assert.Error(err)
	assert.Contains(err.Error(), "bus-send")

	// declared and generated heights must agree
	_, err = p.Prove(pk, []prover.Chip{&tableChip{
		air:            addAir{},
		input:          prover.AirProofInput{CommonMain: addTrace(4)},
		declaredHeight: 8,
	}})
	assert.Error(err)

	// non power of two trace height
	_, err = p.Prove(pk, []prover.Chip{&tableChip{
		air:   addAir{},
		input: prover.AirProofInput{CommonMain: addTrace(6)},
	}})
	assert.Error(err)
}

func TestDebugConstraints(t *testing.T) {
	assert := require.New(t)

	pk := keygenFor(t, testConfig(t), addAir{})

	good := addTrace(4)
	assert.NoError(prover.DebugConstraints(pk, []prover.AirProofInput{{CommonMain: good}}))

	bad := good.Clone()
	bad.Set(2, 2, fr.NewElement(99))
	err := prover.DebugConstraints(pk, []prover.AirProofInput{{CommonMain: bad}})
	assert.Error(err)
	assert.Contains(err.Error(), "row 2")
}

func TestDebugConstraintsBusBalance(t *testing.T) {
	assert := require.New(t)

	cfg := testConfig(t)
	b, err := keygen.NewBuilder(cfg)
	assert.NoError(err)
	bus := b.BusAllocator().NewBus(1)
	b.AddAir(busSendAir{bus: bus})
	b.AddAir(busRecvAir{bus: bus})
	pk, _, err := b.Keygen()
	assert.NoError(err)

	// the sender emits 1..4, the receiver consumes each value once
	send := matrix.NewDense(1, 4)
	recv := matrix.NewDense(2, 4)
	for i := 0; i < 4; i++ {
		send.Set(i, 0, fr.NewElement(uint64(i+1)))
		recv.Set(i, 0, fr.NewElement(uint64(i+1)))
		recv.Set(i, 1, fr.NewElement(1))
	}
	inputs := []prover.AirProofInput{{CommonMain: send}, {CommonMain: recv}}
	assert.NoError(prover.DebugConstraints(pk, inputs))

	// receiving 5 instead of 4 leaves two messages unbalanced
	recv.Set(3, 0, fr.NewElement(5))
	err = prover.DebugConstraints(pk, inputs)
	assert.Error(err)
	assert.Contains(err.Error(), "bus")
}
