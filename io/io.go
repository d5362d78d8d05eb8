// Package io implements the little-endian wire encoding shared by proofs
// and verifying keys.
//
// Every quantity is fixed width: lengths and counts are uint32, base-field
// elements are the 4 canonical bytes of their value, extension elements are
// their 4 base limbs in ascending basis order, commitments are raw 32-byte
// digests. Readers reject non-canonical field elements and oversized
// lengths.
package io

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// maxSliceLen caps decoded length prefixes so corrupt input cannot drive
// allocations. Proof and key slices stay far below it.
const maxSliceLen = 1 << 20

var ErrNonCanonical = errors.New("io: non-canonical field element")

// Writer encodes values to an underlying io.Writer. Errors stick: after the
// first failure every call is a no-op and Err returns the failure.
type Writer struct {
	w   io.Writer
	n   int64
	err error
	buf [32]byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// N returns the number of bytes written so far.
func (w *Writer) N() int64 { return w.n }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(b)
	w.n += int64(n)
	w.err = err
}

func (w *Writer) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

// WriteLen writes a slice length. Negative or overflowing lengths poison the
// writer.
func (w *Writer) WriteLen(n int) {
	if n < 0 || n > maxSliceLen {
		if w.err == nil {
			w.err = fmt.Errorf("io: length %d out of range", n)
		}
		return
	}
	w.WriteUint32(uint32(n))
}

func (w *Writer) WriteElement(e fr.Element) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(e.Uint64()))
	w.write(w.buf[:4])
}

func (w *Writer) WriteElements(es []fr.Element) {
	w.WriteLen(len(es))
	for i := range es {
		w.WriteElement(es[i])
	}
}

func (w *Writer) WriteExt(e ext.E4) {
	limbs := utils.Flatten(&e)
	for i := range limbs {
		w.WriteElement(limbs[i])
	}
}

func (w *Writer) WriteExts(es []ext.E4) {
	w.WriteLen(len(es))
	for i := range es {
		w.WriteExt(es[i])
	}
}

func (w *Writer) WriteDigest(d [32]byte) {
	w.write(d[:])
}

func (w *Writer) WriteDigests(ds [][32]byte) {
	w.WriteLen(len(ds))
	for i := range ds {
		w.WriteDigest(ds[i])
	}
}

// Reader decodes values from an underlying io.Reader, mirroring Writer.
// Errors stick; decoded values after a failure are zero.
type Reader struct {
	r   io.Reader
	n   int64
	err error
	q   uint64
	buf [32]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, q: fr.Modulus().Uint64()}
}

// N returns the number of bytes read so far.
func (r *Reader) N() int64 { return r.n }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

func (r *Reader) read(b []byte) {
	if r.err != nil {
		return
	}
	n, err := io.ReadFull(r.r, b)
	r.n += int64(n)
	r.err = err
}

func (r *Reader) ReadUint32() uint32 {
	r.read(r.buf[:4])
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[:4])
}

// ReadLen reads a slice length and rejects prefixes beyond the allocation
// cap.
func (r *Reader) ReadLen() int {
	v := r.ReadUint32()
	if r.err != nil {
		return 0
	}
	if v > maxSliceLen {
		r.err = fmt.Errorf("io: length %d out of range", v)
		return 0
	}
	return int(v)
}

func (r *Reader) ReadElement() fr.Element {
	var e fr.Element
	r.read(r.buf[:4])
	if r.err != nil {
		return e
	}
	v := uint64(binary.LittleEndian.Uint32(r.buf[:4]))
	if v >= r.q {
		r.err = ErrNonCanonical
		return e
	}
	e.SetUint64(v)
	return e
}

func (r *Reader) ReadElements() []fr.Element {
	n := r.ReadLen()
	if r.err != nil {
		return nil
	}
	es := make([]fr.Element, n)
	for i := range es {
		es[i] = r.ReadElement()
	}
	return es
}

func (r *Reader) ReadExt() ext.E4 {
	var limbs [utils.ExtDegree]fr.Element
	for i := range limbs {
		limbs[i] = r.ReadElement()
	}
	return utils.Unflatten(limbs)
}

func (r *Reader) ReadExts() []ext.E4 {
	n := r.ReadLen()
	if r.err != nil {
		return nil
	}
	es := make([]ext.E4, n)
	for i := range es {
		es[i] = r.ReadExt()
	}
	return es
}

func (r *Reader) ReadDigest() [32]byte {
	r.read(r.buf[:32])
	var d [32]byte
	if r.err == nil {
		copy(d[:], r.buf[:32])
	}
	return d
}

func (r *Reader) ReadDigests() [][32]byte {
	n := r.ReadLen()
	if r.err != nil {
		return nil
	}
	ds := make([][32]byte, n)
	for i := range ds {
		ds[i] = r.ReadDigest()
	}
	return ds
}
