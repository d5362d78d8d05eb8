package stark

import (
	"errors"
	"fmt"
	"io"

	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/fri"
	starkio "github.com/consensys/go-stark/io"

	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// WriteTo serializes the proof in the little-endian wire format: per-AIR
// metadata, commitments, opened values, then the pcs proof. The pcs proof
// must implement io.WriterTo; the two-adic FRI proof does.
func (p *Proof) WriteTo(w io.Writer) (int64, error) {
	pcsProof, ok := p.Opening.Proof.(io.WriterTo)
	if !ok {
		return 0, errors.New("stark: opening proof is not serializable")
	}

	enc := starkio.NewWriter(w)

	enc.WriteLen(len(p.PerAir))
	for i := range p.PerAir {
		a := &p.PerAir[i]
		enc.WriteUint32(uint32(a.AirID))
		enc.WriteUint32(uint32(a.Degree))
		enc.WriteElements(a.PublicValues)
		enc.WriteLen(len(a.ExposedValuesAfterChallenge))
		for _, phase := range a.ExposedValuesAfterChallenge {
			enc.WriteExts(phase)
		}
	}

	writeCommitments(enc, p.Commitments.Preprocessed)
	writeCommitments(enc, p.Commitments.MainTrace)
	writeCommitments(enc, p.Commitments.AfterChallenge)
	enc.WriteDigest(p.Commitments.Quotient)

	v := &p.Opening.Values
	writeAirOpenings(enc, v.Preprocessed)
	enc.WriteLen(len(v.Main))
	for _, group := range v.Main {
		writeAirOpenings(enc, group)
	}
	enc.WriteLen(len(v.AfterChallenge))
	for _, phase := range v.AfterChallenge {
		writeAirOpenings(enc, phase)
	}
	enc.WriteLen(len(v.Quotient))
	for _, chunks := range v.Quotient {
		enc.WriteLen(len(chunks))
		for _, chunk := range chunks {
			enc.WriteExts(chunk)
		}
	}

	if err := enc.Err(); err != nil {
		return enc.N(), err
	}
	n, err := pcsProof.WriteTo(w)
	return enc.N() + n, err
}

// ReadFrom deserializes a proof written by WriteTo. The pcs proof decodes as
// a two-adic FRI proof.
func (p *Proof) ReadFrom(r io.Reader) (int64, error) {
	dec := starkio.NewReader(r)

	nAirs := dec.ReadLen()
	if dec.Err() != nil {
		return dec.N(), dec.Err()
	}
	p.PerAir = make([]AirProofData, nAirs)
	for i := range p.PerAir {
		a := &p.PerAir[i]
		a.AirID = int(dec.ReadUint32())
		a.Degree = int(dec.ReadUint32())
		a.PublicValues = dec.ReadElements()
		nPhases := dec.ReadLen()
		if dec.Err() != nil {
			return dec.N(), dec.Err()
		}
		a.ExposedValuesAfterChallenge = make([][]ext.E4, nPhases)
		for j := range a.ExposedValuesAfterChallenge {
			a.ExposedValuesAfterChallenge[j] = dec.ReadExts()
		}
	}

	p.Commitments.Preprocessed = readCommitments(dec)
	p.Commitments.MainTrace = readCommitments(dec)
	p.Commitments.AfterChallenge = readCommitments(dec)
	p.Commitments.Quotient = dec.ReadDigest()

	v := &p.Opening.Values
	v.Preprocessed = readAirOpenings(dec)
	nGroups := dec.ReadLen()
	if dec.Err() != nil {
		return dec.N(), dec.Err()
	}
	v.Main = make([][]AirOpenedValues, nGroups)
	for i := range v.Main {
		v.Main[i] = readAirOpenings(dec)
	}
	nPhases := dec.ReadLen()
	if dec.Err() != nil {
		return dec.N(), dec.Err()
	}
	v.AfterChallenge = make([][]AirOpenedValues, nPhases)
	for i := range v.AfterChallenge {
		v.AfterChallenge[i] = readAirOpenings(dec)
	}
	nQuotient := dec.ReadLen()
	if dec.Err() != nil {
		return dec.N(), dec.Err()
	}
	v.Quotient = make([][][]ext.E4, nQuotient)
	for i := range v.Quotient {
		nChunks := dec.ReadLen()
		if dec.Err() != nil {
			return dec.N(), dec.Err()
		}
		v.Quotient[i] = make([][]ext.E4, nChunks)
		for j := range v.Quotient[i] {
			v.Quotient[i][j] = dec.ReadExts()
		}
	}

	if err := dec.Err(); err != nil {
		return dec.N(), err
	}

	var pcsProof fri.Proof
	n, err := pcsProof.ReadFrom(r)
	if err != nil {
		return dec.N() + n, fmt.Errorf("stark: pcs proof: %w", err)
	}
	p.Opening.Proof = &pcsProof
	return dec.N() + n, nil
}

func writeCommitments(enc *starkio.Writer, cs []commit.Commitment) {
	enc.WriteLen(len(cs))
	for _, c := range cs {
		enc.WriteDigest(c)
	}
}

func readCommitments(dec *starkio.Reader) []commit.Commitment {
	n := dec.ReadLen()
	if dec.Err() != nil {
		return nil
	}
	cs := make([]commit.Commitment, n)
	for i := range cs {
		cs[i] = dec.ReadDigest()
	}
	return cs
}

func writeAirOpenings(enc *starkio.Writer, vs []AirOpenedValues) {
	enc.WriteLen(len(vs))
	for i := range vs {
		enc.WriteExts(vs[i].Local)
		enc.WriteExts(vs[i].Next)
	}
}

func readAirOpenings(dec *starkio.Reader) []AirOpenedValues {
	n := dec.ReadLen()
	if dec.Err() != nil {
		return nil
	}
	vs := make([]AirOpenedValues, n)
	for i := range vs {
		vs[i].Local = dec.ReadExts()
		vs[i].Next = dec.ReadExts()
	}
	return vs
}
