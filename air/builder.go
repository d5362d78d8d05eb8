package air

import (
	"fmt"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

type varKey struct {
	entry  Entry
	offset uint8
	index  uint32
}

// Builder records symbolic constraints into an arena. The zero Builder is
// not usable; construct with NewBuilder.
type Builder struct {
	cs ConstraintSystem

	constDedup map[fr.Element]Expr
	varDedup   map[varKey]Expr

	isFirst      Expr
	isLast       Expr
	isTransition Expr
}

// NewBuilder returns a builder for an AIR with the given trace shape.
func NewBuilder(preprocessedWidth, mainWidth, numPublicValues int) *Builder {
	b := &Builder{
		constDedup:   make(map[fr.Element]Expr),
		varDedup:     make(map[varKey]Expr),
		isFirst:      -1,
		isLast:       -1,
		isTransition: -1,
	}
	b.cs.PreprocessedWidth = preprocessedWidth
	b.cs.MainWidth = mainWidth
	b.cs.NumPublicValues = numPublicValues
	return b
}

// System returns the constraint system recorded so far.
func (b *Builder) System() *ConstraintSystem {
	return &b.cs
}

func (b *Builder) push(n Node) Expr {
	id := Expr(len(b.cs.Nodes))
	b.cs.Nodes = append(b.cs.Nodes, n)
	return id
}

// Const returns the expression holding a constant.
func (b *Builder) Const(c fr.Element) Expr {
	if id, ok := b.constDedup[c]; ok {
		return id
	}
	id := b.push(Node{Op: OpConst, Const: c})
	b.constDedup[c] = id
	return id
}

// ConstUint64 returns the expression holding the reduction of v.
func (b *Builder) ConstUint64(v uint64) Expr {
	return b.Const(fr.NewElement(v))
}

// Zero returns the constant 0.
func (b *Builder) Zero() Expr { return b.ConstUint64(0) }

// One returns the constant 1.
func (b *Builder) One() Expr { return b.ConstUint64(1) }

func (b *Builder) variable(entry Entry, offset uint8, index uint32, width int, degree uint32) Expr {
	if offset > 1 {
		panic("air: row offset must be 0 or 1")
	}
	if int(index) >= width {
		panic(fmt.Sprintf("air: column %d out of range (width %d)", index, width))
	}
	key := varKey{entry: entry, offset: offset, index: index}
	if id, ok := b.varDedup[key]; ok {
		return id
	}
	id := b.push(Node{Op: OpVar, Entry: entry, Offset: offset, Index: index, Degree: degree})
	b.varDedup[key] = id
	return id
}

// Preprocessed reads preprocessed column col at row offset 0 (local) or 1
// (next).
func (b *Builder) Preprocessed(col, offset int) Expr {
	return b.variable(EntryPreprocessed, uint8(offset), uint32(col), b.cs.PreprocessedWidth, 1)
}

// Main reads main trace column col at row offset 0 (local) or 1 (next).
func (b *Builder) Main(col, offset int) Expr {
	return b.variable(EntryMain, uint8(offset), uint32(col), b.cs.MainWidth, 1)
}

// Permutation reads extension column col of the after-challenge trace.
func (b *Builder) Permutation(col, offset int) Expr {
	if col >= b.cs.PermutationWidth {
		b.cs.PermutationWidth = col + 1
	}
	return b.variable(EntryPermutation, uint8(offset), uint32(col), b.cs.PermutationWidth, 1)
}

// Public reads public value i.
func (b *Builder) Public(i int) Expr {
	return b.variable(EntryPublic, 0, uint32(i), b.cs.NumPublicValues, 0)
}

// Challenge reads verifier challenge i.
func (b *Builder) Challenge(i int) Expr {
	if i >= b.cs.NumChallenges {
		b.cs.NumChallenges = i + 1
	}
	return b.variable(EntryChallenge, 0, uint32(i), b.cs.NumChallenges, 0)
}

// Exposed reads exposed value i of the after-challenge phase.
func (b *Builder) Exposed(i int) Expr {
	if i >= b.cs.NumExposed {
		b.cs.NumExposed = i + 1
	}
	return b.variable(EntryExposed, 0, uint32(i), b.cs.NumExposed, 0)
}

// IsFirstRow is the selector that is 1 on the first trace row and 0
// elsewhere.
func (b *Builder) IsFirstRow() Expr {
	if b.isFirst < 0 {
		b.isFirst = b.push(Node{Op: OpFirstRow, Degree: 1})
	}
	return b.isFirst
}

// IsLastRow is the selector that is 1 on the last trace row and 0 elsewhere.
func (b *Builder) IsLastRow() Expr {
	if b.isLast < 0 {
		b.isLast = b.push(Node{Op: OpLastRow, Degree: 1})
	}
	return b.isLast
}

// IsTransition is the selector that is 1 on every row but the last. It does
// not raise constraint degree.
func (b *Builder) IsTransition() Expr {
	if b.isTransition < 0 {
		b.isTransition = b.push(Node{Op: OpTransition, Degree: 0})
	}
	return b.isTransition
}

// Add returns x + y.
func (b *Builder) Add(x, y Expr) Expr {
	return b.push(Node{Op: OpAdd, A: x, B: y, Degree: max(b.cs.Nodes[x].Degree, b.cs.Nodes[y].Degree)})
}

// Sub returns x - y.
func (b *Builder) Sub(x, y Expr) Expr {
	return b.push(Node{Op: OpSub, A: x, B: y, Degree: max(b.cs.Nodes[x].Degree, b.cs.Nodes[y].Degree)})
}

// Mul returns x * y.
func (b *Builder) Mul(x, y Expr) Expr {
	return b.push(Node{Op: OpMul, A: x, B: y, Degree: b.cs.Nodes[x].Degree + b.cs.Nodes[y].Degree})
}

// Neg returns -x.
func (b *Builder) Neg(x Expr) Expr {
	return b.push(Node{Op: OpNeg, A: x, Degree: b.cs.Nodes[x].Degree})
}

// AssertZero constrains e to vanish on every row.
func (b *Builder) AssertZero(e Expr) {
	b.cs.Constraints = append(b.cs.Constraints, e)
}

// AssertEq constrains x == y on every row.
func (b *Builder) AssertEq(x, y Expr) {
	b.AssertZero(b.Sub(x, y))
}

// AssertBool constrains e to be 0 or 1 on every row.
func (b *Builder) AssertBool(e Expr) {
	b.AssertZero(b.Mul(e, b.Sub(e, b.One())))
}

// AssertZeroWhen constrains cond * e to vanish on every row.
func (b *Builder) AssertZeroWhen(cond, e Expr) {
	b.AssertZero(b.Mul(cond, e))
}

// PushSend records a message sent on a bus with the given multiplicity.
func (b *Builder) PushSend(bus uint16, fields []Expr, count Expr) {
	b.pushInteraction(bus, fields, count, Send)
}

// PushReceive records a message received from a bus with the given
// multiplicity.
func (b *Builder) PushReceive(bus uint16, fields []Expr, count Expr) {
	b.pushInteraction(bus, fields, count, Receive)
}

func (b *Builder) pushInteraction(bus uint16, fields []Expr, count Expr, dir Direction) {
	if len(fields) == 0 {
		panic("air: interaction needs at least one field")
	}
	b.cs.Interactions = append(b.cs.Interactions, Interaction{
		Bus:       bus,
		Fields:    append([]Expr(nil), fields...),
		Count:     count,
		Direction: dir,
	})
}
