// Package air defines algebraic intermediate representations: the interface
// an AIR implements to declare its constraints, and the symbolic expression
// arena those constraints are recorded into.
//
// Expressions form an append-only arena of nodes. A node's operands always
// precede it, so every consumer (degree accounting, quotient evaluation,
// out-of-domain checks) walks the arena once, in order, without recursion.
package air

import (
	"github.com/consensys/go-stark/matrix"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

// Air declares the constraints of a single chip over a two-row window.
type Air interface {
	// Name identifies the AIR in logs and debug output.
	Name() string
	// Width is the number of main trace columns.
	Width() int
	// Eval records the AIR's constraints and interactions on the builder.
	Eval(b *Builder)
}

// PreprocessedAir is implemented by AIRs that carry a preprocessed trace,
// committed once at key generation.
type PreprocessedAir interface {
	Air
	PreprocessedTrace() *matrix.Dense
}

// AirWithPublicValues is implemented by AIRs that consume public values.
type AirWithPublicValues interface {
	Air
	NumPublicValues() int
}

// PartitionedAir is implemented by AIRs whose main trace splits into
// separately committed partitions: the cached matrices first, then the
// common matrix holding the remaining columns. Constraints see the
// concatenation as one main trace.
type PartitionedAir interface {
	Air
	// CachedMainWidths returns the column count of each cached
	// partition, in commit order.
	CachedMainWidths() []int
}

// Expr is a handle into the expression arena.
type Expr int32

// Op is the kind of an arena node.
type Op uint8

const (
	OpConst Op = iota
	OpVar
	OpFirstRow
	OpLastRow
	OpTransition
	OpAdd
	OpSub
	OpMul
	OpNeg
)

// Entry names the trace segment a variable reads from.
type Entry uint8

const (
	EntryPreprocessed Entry = iota
	EntryMain
	EntryPermutation
	EntryPublic
	EntryChallenge
	EntryExposed
)

// Node is one arena entry. A and B index earlier nodes; Const, Entry, Offset
// and Index are payload for leaf kinds.
type Node struct {
	Op     Op         `cbor:"1,keyasint"`
	A      Expr       `cbor:"2,keyasint"`
	B      Expr       `cbor:"3,keyasint"`
	Const  fr.Element `cbor:"4,keyasint"`
	Entry  Entry      `cbor:"5,keyasint"`
	Offset uint8      `cbor:"6,keyasint"`
	Index  uint32     `cbor:"7,keyasint"`
	Degree uint32     `cbor:"8,keyasint"`
}

// Direction tells whether an interaction contributes or consumes
// multiplicity on its bus.
type Direction uint8

const (
	Send Direction = iota
	Receive
)

// Interaction is one message an AIR puts on a bus: a tuple of field
// expressions weighted by a multiplicity expression.
type Interaction struct {
	Bus       uint16    `cbor:"1,keyasint"`
	Fields    []Expr    `cbor:"2,keyasint"`
	Count     Expr      `cbor:"3,keyasint"`
	Direction Direction `cbor:"4,keyasint"`
}

// ConstraintSystem is the finalized symbolic description of one AIR: the
// expression arena, the zero-asserted constraints, and the recorded
// interactions. It is stored in proving and verifying keys.
type ConstraintSystem struct {
	Nodes        []Node        `cbor:"1,keyasint"`
	Constraints  []Expr        `cbor:"2,keyasint"`
	Interactions []Interaction `cbor:"3,keyasint"`

	PreprocessedWidth int `cbor:"4,keyasint"`
	MainWidth         int `cbor:"5,keyasint"`
	// PermutationWidth counts extension field columns.
	PermutationWidth int `cbor:"6,keyasint"`
	NumPublicValues  int `cbor:"7,keyasint"`
	NumChallenges    int `cbor:"8,keyasint"`
	NumExposed       int `cbor:"9,keyasint"`
}

// Degree returns the degree multiple of an expression: the constraint degree
// counted in multiples of the trace degree.
func (cs *ConstraintSystem) Degree(e Expr) uint32 {
	return cs.Nodes[e].Degree
}

// MaxConstraintDegree returns the largest degree multiple over all recorded
// constraints, or 0 if there are none.
func (cs *ConstraintSystem) MaxConstraintDegree() uint32 {
	var max uint32
	for _, c := range cs.Constraints {
		if d := cs.Nodes[c].Degree; d > max {
			max = d
		}
	}
	return max
}

// NumConstraints returns the number of zero-asserted constraints.
func (cs *ConstraintSystem) NumConstraints() int {
	return len(cs.Constraints)
}

// HasInteractions reports whether the AIR participates in any bus.
func (cs *ConstraintSystem) HasInteractions() bool {
	return len(cs.Interactions) > 0
}
