package test

import (
	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/prover"
)

// StaticChip wraps a prebuilt proof input so fixed traces can be proved
// without a trace generator.
type StaticChip struct {
	A     air.Air
	Input prover.AirProofInput
}

func (c *StaticChip) Air() air.Air { return c.A }

func (c *StaticChip) CurrentTraceHeight() int {
	if c.Input.CommonMain != nil {
		return c.Input.CommonMain.Height()
	}
	return c.Input.CachedMains[0].Trace.Height()
}

func (c *StaticChip) TraceWidth() int {
	w := 0
	for i := range c.Input.CachedMains {
		w += c.Input.CachedMains[i].Trace.Width()
	}
	if c.Input.CommonMain != nil {
		w += c.Input.CommonMain.Width()
	}
	return w
}

// GenerateAirProofInput returns the wrapped input. Unlike a real chip, a
// StaticChip survives proving and can be reused.
func (c *StaticChip) GenerateAirProofInput() prover.AirProofInput {
	return c.Input
}
