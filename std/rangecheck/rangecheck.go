// Package rangecheck provides a lookup chip proving values lie in [0, 2^k).
//
// The chip owns a bus: other AIRs send the values they need checked, the
// chip receives every alphabet entry with the multiplicity its callers
// accumulated. Its preprocessed column is the alphabet itself, so the trace
// height is fixed at key generation.
package rangecheck

import (
	"errors"
	"fmt"
	"sync/atomic"

	fr "github.com/consensys/gnark-crypto/field/koalabear"

	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/interaction"
	"github.com/consensys/go-stark/matrix"
	"github.com/consensys/go-stark/prover"
)

type rangeAir struct {
	bus    uint16
	logMax int
}

func (a rangeAir) Name() string { return fmt.Sprintf("range-check-%d", a.logMax) }
func (a rangeAir) Width() int   { return 1 }

func (a rangeAir) PreprocessedTrace() *matrix.Dense {
	n := 1 << a.logMax
	m := matrix.NewDense(1, n)
	for i := 0; i < n; i++ {
		m.Set(i, 0, fr.NewElement(uint64(i)))
	}
	return m
}

func (a rangeAir) Eval(b *air.Builder) {
	b.PushReceive(a.bus, []air.Expr{b.Preprocessed(0, 0)}, b.Main(0, 0))
}

// Chip counts range-checked values and proves the multiplicities. AddCount
// is safe for concurrent use; trace generation consumes the counters.
type Chip struct {
	air    rangeAir
	counts []atomic.Uint32
	done   atomic.Bool
}

// New allocates a bus for single-value lookups and returns the chip serving
// it. Values are checked against [0, 2^logMax); logMax must be in [1, 24].
func New(buses *interaction.BusAllocator, logMax int) (*Chip, error) {
	if logMax < 1 || logMax > 24 {
		return nil, fmt.Errorf("rangecheck: logMax %d outside [1, 24]", logMax)
	}
	c := &Chip{
		air:    rangeAir{bus: buses.NewBus(1), logMax: logMax},
		counts: make([]atomic.Uint32, 1<<logMax),
	}
	return c, nil
}

// Bus returns the bus callers send their values on, with multiplicity per
// occurrence.
func (c *Chip) Bus() uint16 { return c.air.bus }

// AddCount records one occurrence of v. It fails when v is out of range or
// the trace has already been generated.
func (c *Chip) AddCount(v uint32) error {
	if c.done.Load() {
		return errors.New("rangecheck: trace already generated")
	}
	if int(v) >= len(c.counts) {
		return fmt.Errorf("rangecheck: value %d outside [0, %d)", v, len(c.counts))
	}
	c.counts[v].Add(1)
	return nil
}

func (c *Chip) Air() air.Air            { return c.air }
func (c *Chip) CurrentTraceHeight() int { return len(c.counts) }
func (c *Chip) TraceWidth() int         { return 1 }

// GenerateAirProofInput snapshots the counters into the multiplicity
// column. The chip rejects further AddCount calls; counting must have
// stopped before this point.
func (c *Chip) GenerateAirProofInput() prover.AirProofInput {
	c.done.Store(true)
	m := matrix.NewDense(1, len(c.counts))
	for i := range c.counts {
		m.Set(i, 0, fr.NewElement(uint64(c.counts[i].Load())))
	}
	return prover.AirProofInput{CommonMain: m}
}
