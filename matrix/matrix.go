// Package matrix implements the dense row-major matrices used for trace and
// quotient data, over the base field and over its degree-4 extension.
package matrix

import (
	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// Dense is a width x height row-major matrix of base field elements.
type Dense struct {
	values []fr.Element
	width  int
}

// NewDense returns a zero-initialized width x height matrix.
func NewDense(width, height int) *Dense {
	return &Dense{
		values: make([]fr.Element, width*height),
		width:  width,
	}
}

// FromSlice wraps values (row-major) into a matrix of the given width,
// taking ownership of the slice. len(values) must be a multiple of width.
func FromSlice(width int, values []fr.Element) *Dense {
	if width <= 0 || len(values)%width != 0 {
		panic("matrix: values length is not a multiple of width")
	}
	return &Dense{values: values, width: width}
}

func (m *Dense) Width() int  { return m.width }
func (m *Dense) Height() int { return len(m.values) / m.width }

// Row returns the i-th row as a subslice of the backing storage.
func (m *Dense) Row(i int) []fr.Element {
	return m.values[i*m.width : (i+1)*m.width]
}

func (m *Dense) At(i, j int) fr.Element {
	return m.values[i*m.width+j]
}

func (m *Dense) Set(i, j int, v fr.Element) {
	m.values[i*m.width+j] = v
}

// Column returns a copy of the j-th column.
func (m *Dense) Column(j int) []fr.Element {
	h := m.Height()
	col := make([]fr.Element, h)
	for i := 0; i < h; i++ {
		col[i] = m.values[i*m.width+j]
	}
	return col
}

// SetColumn overwrites the j-th column.
func (m *Dense) SetColumn(j int, col []fr.Element) {
	if len(col) != m.Height() {
		panic("matrix: column length mismatch")
	}
	for i := range col {
		m.values[i*m.width+j] = col[i]
	}
}

func (m *Dense) Clone() *Dense {
	values := make([]fr.Element, len(m.values))
	copy(values, m.values)
	return &Dense{values: values, width: m.width}
}

// Strided is a read-only view of every stride-th row of a matrix.
type Strided struct {
	m      *Dense
	stride int
}

// NewStrided returns a view selecting rows 0, stride, 2*stride, ... of m.
func NewStrided(m *Dense, stride int) Strided {
	if stride <= 0 || m.Height()%stride != 0 {
		panic("matrix: stride does not divide height")
	}
	return Strided{m: m, stride: stride}
}

func (s Strided) Width() int  { return s.m.Width() }
func (s Strided) Height() int { return s.m.Height() / s.stride }

func (s Strided) Row(i int) []fr.Element {
	return s.m.Row(i * s.stride)
}

// DenseExt is a width x height row-major matrix of extension field elements.
type DenseExt struct {
	values []ext.E4
	width  int
}

// NewDenseExt returns a zero-initialized width x height extension matrix.
func NewDenseExt(width, height int) *DenseExt {
	return &DenseExt{
		values: make([]ext.E4, width*height),
		width:  width,
	}
}

func (m *DenseExt) Width() int  { return m.width }
func (m *DenseExt) Height() int { return len(m.values) / m.width }

// Row returns the i-th row as a subslice of the backing storage.
func (m *DenseExt) Row(i int) []ext.E4 {
	return m.values[i*m.width : (i+1)*m.width]
}

func (m *DenseExt) At(i, j int) ext.E4 {
	return m.values[i*m.width+j]
}

func (m *DenseExt) Set(i, j int, v ext.E4) {
	m.values[i*m.width+j] = v
}

// FlattenToBase expands each extension column into its 4 base field limb
// columns, in monomial basis order.
func (m *DenseExt) FlattenToBase() *Dense {
	h := m.Height()
	out := NewDense(m.width*utils.ExtDegree, h)
	for i := 0; i < h; i++ {
		src := m.Row(i)
		dst := out.Row(i)
		for j := range src {
			limbs := utils.Flatten(&src[j])
			copy(dst[j*utils.ExtDegree:(j+1)*utils.ExtDegree], limbs[:])
		}
	}
	return out
}
