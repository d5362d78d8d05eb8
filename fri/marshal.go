package fri

import (
	"io"

	"github.com/consensys/go-stark/commit"
	starkio "github.com/consensys/go-stark/io"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

// WriteTo serializes the proof in the little-endian wire format.
func (p *Proof) WriteTo(w io.Writer) (int64, error) {
	enc := starkio.NewWriter(w)
	enc.WriteLen(len(p.CommitPhaseRoots))
	for _, root := range p.CommitPhaseRoots {
		enc.WriteDigest(root)
	}
	enc.WriteExt(p.FinalValue)
	enc.WriteElement(p.PowWitness)
	enc.WriteLen(len(p.Queries))
	for i := range p.Queries {
		writeQuery(enc, &p.Queries[i])
	}
	return enc.N(), enc.Err()
}

func writeQuery(enc *starkio.Writer, q *QueryProof) {
	enc.WriteLen(len(q.InputOpenings))
	for i := range q.InputOpenings {
		bo := &q.InputOpenings[i]
		enc.WriteLen(len(bo.Rows))
		for _, row := range bo.Rows {
			enc.WriteElements(row)
		}
		enc.WriteDigests(bo.Path)
	}
	enc.WriteLen(len(q.CommitPhaseOpenings))
	for i := range q.CommitPhaseOpenings {
		lo := &q.CommitPhaseOpenings[i]
		enc.WriteExt(lo.Pair[0])
		enc.WriteExt(lo.Pair[1])
		enc.WriteDigests(lo.Path)
	}
}

// ReadFrom deserializes a proof written by WriteTo. The result is only
// structurally sound; Verify decides whether it proves anything.
func (p *Proof) ReadFrom(r io.Reader) (int64, error) {
	dec := starkio.NewReader(r)
	nRoots := dec.ReadLen()
	if dec.Err() != nil {
		return dec.N(), dec.Err()
	}
	p.CommitPhaseRoots = make([]commit.Commitment, nRoots)
	for i := range p.CommitPhaseRoots {
		p.CommitPhaseRoots[i] = dec.ReadDigest()
	}
	p.FinalValue = dec.ReadExt()
	p.PowWitness = dec.ReadElement()
	nQueries := dec.ReadLen()
	if dec.Err() != nil {
		return dec.N(), dec.Err()
	}
	p.Queries = make([]QueryProof, nQueries)
	for i := range p.Queries {
		readQuery(dec, &p.Queries[i])
	}
	return dec.N(), dec.Err()
}

func readQuery(dec *starkio.Reader, q *QueryProof) {
	nInputs := dec.ReadLen()
	if dec.Err() != nil {
		return
	}
	q.InputOpenings = make([]BatchOpening, nInputs)
	for i := range q.InputOpenings {
		bo := &q.InputOpenings[i]
		nRows := dec.ReadLen()
		if dec.Err() != nil {
			return
		}
		bo.Rows = make([][]fr.Element, nRows)
		for j := range bo.Rows {
			bo.Rows[j] = dec.ReadElements()
		}
		bo.Path = dec.ReadDigests()
	}
	nLayers := dec.ReadLen()
	if dec.Err() != nil {
		return
	}
	q.CommitPhaseOpenings = make([]LayerOpening, nLayers)
	for i := range q.CommitPhaseOpenings {
		lo := &q.CommitPhaseOpenings[i]
		lo.Pair[0] = dec.ReadExt()
		lo.Pair[1] = dec.ReadExt()
		lo.Path = dec.ReadDigests()
	}
}
