package air

import (
	"errors"
	"fmt"

	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

func (e Entry) String() string {
	switch e {
	case EntryPreprocessed:
		return "preprocessed"
	case EntryMain:
		return "main"
	case EntryPermutation:
		return "permutation"
	case EntryPublic:
		return "public"
	case EntryChallenge:
		return "challenge"
	case EntryExposed:
		return "exposed"
	default:
		return "unknown"
	}
}

// EvalInput is the view of one evaluation point: the two-row window of every
// trace segment, lifted to the extension field, plus the selector values.
type EvalInput struct {
	PreprocessedLocal []ext.E4
	PreprocessedNext  []ext.E4
	MainLocal         []ext.E4
	MainNext          []ext.E4
	PermLocal         []ext.E4
	PermNext          []ext.E4
	Publics           []ext.E4
	Challenges        []ext.E4
	Exposed           []ext.E4

	IsFirst      ext.E4
	IsLast       ext.E4
	IsTransition ext.E4
}

// Evaluator interprets the arena over extension field values. It keeps
// per-node scratch, so one Evaluator serves one goroutine.
type Evaluator struct {
	cs     *ConstraintSystem
	values []ext.E4
	out    []ext.E4
}

func NewEvaluator(cs *ConstraintSystem) *Evaluator {
	return &Evaluator{
		cs:     cs,
		values: make([]ext.E4, len(cs.Nodes)),
		out:    make([]ext.E4, len(cs.Constraints)),
	}
}

// ConstraintValues evaluates every recorded constraint at one point. The
// returned slice is reused by the next call.
func (e *Evaluator) ConstraintValues(in *EvalInput) []ext.E4 {
	vals := e.values
	for i := range e.cs.Nodes {
		n := &e.cs.Nodes[i]
		switch n.Op {
		case OpConst:
			vals[i] = utils.FromBase(n.Const)
		case OpVar:
			vals[i] = in.lookup(n)
		case OpFirstRow:
			vals[i] = in.IsFirst
		case OpLastRow:
			vals[i] = in.IsLast
		case OpTransition:
			vals[i] = in.IsTransition
		case OpAdd:
			vals[i].Add(&vals[n.A], &vals[n.B])
		case OpSub:
			vals[i].Sub(&vals[n.A], &vals[n.B])
		case OpMul:
			vals[i].Mul(&vals[n.A], &vals[n.B])
		case OpNeg:
			var zero ext.E4
			vals[i].Sub(&zero, &vals[n.A])
		}
	}
	for i, c := range e.cs.Constraints {
		e.out[i] = vals[c]
	}
	return e.out
}

func (in *EvalInput) lookup(n *Node) ext.E4 {
	var row []ext.E4
	switch n.Entry {
	case EntryPreprocessed:
		row = in.PreprocessedLocal
		if n.Offset == 1 {
			row = in.PreprocessedNext
		}
	case EntryMain:
		row = in.MainLocal
		if n.Offset == 1 {
			row = in.MainNext
		}
	case EntryPermutation:
		row = in.PermLocal
		if n.Offset == 1 {
			row = in.PermNext
		}
	case EntryPublic:
		row = in.Publics
	case EntryChallenge:
		row = in.Challenges
	case EntryExposed:
		row = in.Exposed
	}
	return row[n.Index]
}

// BaseRow is the base-field view of one trace row used when evaluating
// interaction expressions.
type BaseRow struct {
	PreprocessedLocal []fr.Element
	PreprocessedNext  []fr.Element
	MainLocal         []fr.Element
	MainNext          []fr.Element
	Publics           []fr.Element
}

// BaseEvaluator evaluates interaction expressions over base field rows.
// Interaction expressions may only read preprocessed, main and public
// entries; the constructor rejects anything else.
type BaseEvaluator struct {
	cs     *ConstraintSystem
	order  []Expr
	values []fr.Element
}

func NewBaseEvaluator(cs *ConstraintSystem) (*BaseEvaluator, error) {
	reachable := make([]bool, len(cs.Nodes))
	var stack []Expr
	for _, itx := range cs.Interactions {
		stack = append(stack, itx.Count)
		stack = append(stack, itx.Fields...)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		n := &cs.Nodes[id]
		switch n.Op {
		case OpAdd, OpSub, OpMul:
			stack = append(stack, n.A, n.B)
		case OpNeg:
			stack = append(stack, n.A)
		case OpVar:
			switch n.Entry {
			case EntryPreprocessed, EntryMain, EntryPublic:
			default:
				return nil, fmt.Errorf("air: interaction expression reads a %s entry", n.Entry)
			}
		case OpConst:
		default:
			return nil, errors.New("air: interaction expression uses a row selector")
		}
	}
	var order []Expr
	for i, ok := range reachable {
		if ok {
			order = append(order, Expr(i))
		}
	}
	return &BaseEvaluator{
		cs:     cs,
		order:  order,
		values: make([]fr.Element, len(cs.Nodes)),
	}, nil
}

// EvalRow computes every reachable node for one row. Read results off with
// Value.
func (e *BaseEvaluator) EvalRow(row *BaseRow) {
	vals := e.values
	for _, id := range e.order {
		n := &e.cs.Nodes[id]
		switch n.Op {
		case OpConst:
			vals[id] = n.Const
		case OpVar:
			var src []fr.Element
			switch n.Entry {
			case EntryPreprocessed:
				src = row.PreprocessedLocal
				if n.Offset == 1 {
					src = row.PreprocessedNext
				}
			case EntryMain:
				src = row.MainLocal
				if n.Offset == 1 {
					src = row.MainNext
				}
			case EntryPublic:
				src = row.Publics
			}
			vals[id] = src[n.Index]
		case OpAdd:
			vals[id].Add(&vals[n.A], &vals[n.B])
		case OpSub:
			vals[id].Sub(&vals[n.A], &vals[n.B])
		case OpMul:
			vals[id].Mul(&vals[n.A], &vals[n.B])
		case OpNeg:
			vals[id].Neg(&vals[n.A])
		}
	}
}

// Value returns the row value of x computed by the last EvalRow call.
func (e *BaseEvaluator) Value(x Expr) fr.Element {
	return e.values[x]
}
