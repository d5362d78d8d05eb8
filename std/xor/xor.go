// Package xor provides an 8-bit XOR lookup chip.
//
// The preprocessed trace enumerates every (x, y, x^y) triple, one row per
// operand pair; callers send the triples they rely on and the chip proves
// the accumulated multiplicities. The trace height is fixed at 2^16.
package xor

import (
	"errors"
	"sync/atomic"

	fr "github.com/consensys/gnark-crypto/field/koalabear"

	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/interaction"
	"github.com/consensys/go-stark/matrix"
	"github.com/consensys/go-stark/prover"
)

const numPairs = 1 << 16

type xorAir struct {
	bus uint16
}

func (xorAir) Name() string { return "xor-8" }
func (xorAir) Width() int   { return 1 }

func (xorAir) PreprocessedTrace() *matrix.Dense {
	m := matrix.NewDense(3, numPairs)
	for i := 0; i < numPairs; i++ {
		x := uint64(i >> 8)
		y := uint64(i & 0xff)
		m.Set(i, 0, fr.NewElement(x))
		m.Set(i, 1, fr.NewElement(y))
		m.Set(i, 2, fr.NewElement(x^y))
	}
	return m
}

func (a xorAir) Eval(b *air.Builder) {
	fields := []air.Expr{b.Preprocessed(0, 0), b.Preprocessed(1, 0), b.Preprocessed(2, 0)}
	b.PushReceive(a.bus, fields, b.Main(0, 0))
}

// Chip counts XOR lookups and proves the multiplicities. AddCount is safe
// for concurrent use; trace generation consumes the counters.
type Chip struct {
	air    xorAir
	counts []atomic.Uint32
	done   atomic.Bool
}

// New allocates a bus for (x, y, x^y) lookups and returns the chip serving
// it.
func New(buses *interaction.BusAllocator) *Chip {
	return &Chip{
		air:    xorAir{bus: buses.NewBus(3)},
		counts: make([]atomic.Uint32, numPairs),
	}
}

// Bus returns the bus callers send their (x, y, x^y) triples on.
func (c *Chip) Bus() uint16 { return c.air.bus }

// AddCount records one lookup of x^y. It fails once the trace has been
// generated.
func (c *Chip) AddCount(x, y uint8) error {
	if c.done.Load() {
		return errors.New("xor: trace already generated")
	}
	c.counts[uint32(x)<<8|uint32(y)].Add(1)
	return nil
}

func (c *Chip) Air() air.Air            { return c.air }
func (c *Chip) CurrentTraceHeight() int { return numPairs }
func (c *Chip) TraceWidth() int         { return 1 }

// GenerateAirProofInput snapshots the counters into the multiplicity
// column. The chip rejects further AddCount calls; counting must have
// stopped before this point.
func (c *Chip) GenerateAirProofInput() prover.AirProofInput {
	c.done.Store(true)
	m := matrix.NewDense(1, numPairs)
	for i := range c.counts {
		if n := c.counts[i].Load(); n != 0 {
			m.Set(i, 0, fr.NewElement(uint64(n)))
		}
	}
	return prover.AirProofInput{CommonMain: m}
}

// Lookup returns x^y after counting the lookup, convenient for trace
// generators that materialize the result column.
func (c *Chip) Lookup(x, y uint8) (uint8, error) {
	if err := c.AddCount(x, y); err != nil {
		return 0, err
	}
	return x ^ y, nil
}
