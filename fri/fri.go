// Package fri implements the two-adic FRI polynomial commitment scheme
// behind the commit.Pcs interface: matrices are low-degree extended onto a
// shifted coset, committed in a mixed-height hash tree, and opened at
// out-of-domain points through a batched quotient argument folded down by
// the FRI protocol.
//
// Committed evaluations are stored in natural index order; the hash tree and
// the folding phase address rows in bit-reversed order, where halving pairs
// sit adjacent.
package fri

import (
	"errors"
	"fmt"

	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/internal/fft"
	"github.com/consensys/go-stark/internal/utils"
	"github.com/consensys/go-stark/matrix"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
)

// Config fixes the FRI parameters of a proving system instance.
type Config struct {
	// LogBlowup is the log of the ratio between LDE and trace size.
	LogBlowup int
	// NumQueries is the number of FRI query rounds.
	NumQueries int
	// PowBits is the proof-of-work grinding strength.
	PowBits int
}

// TwoAdicPcs is the FRI-based implementation of commit.Pcs.
type TwoAdicPcs struct {
	cfg Config
}

func NewTwoAdicPcs(cfg Config) *TwoAdicPcs {
	if cfg.LogBlowup < 1 {
		panic("fri: blowup must be at least 2")
	}
	return &TwoAdicPcs{cfg: cfg}
}

// Config returns the scheme parameters.
func (p *TwoAdicPcs) Config() Config { return p.cfg }

// LogBlowup returns the log2 of the low-degree extension factor.
func (p *TwoAdicPcs) LogBlowup() int { return p.cfg.LogBlowup }

func (p *TwoAdicPcs) NaturalDomainForDegree(degree int) commit.Domain {
	return commit.NaturalDomain(utils.Log2Strict(degree))
}

type committedMatrix struct {
	domain   commit.Domain
	lde      *matrix.Dense
	coeffs   [][]fr.Element
	logLde   int
	ldeShift fr.Element
}

type proverData struct {
	matrices []committedMatrix
	tree     *tree
	root     commit.Commitment
	logMax   int
}

func (d *proverData) Commitment() commit.Commitment { return d.root }

// ldeShiftFor returns the coset shift evaluations are extended onto: the
// source shift moved by the full group generator, so the extension avoids
// the source domain.
func ldeShiftFor(d commit.Domain) fr.Element {
	g := fft.GeneratorFullMultiplicativeGroup()
	var s fr.Element
	s.Mul(&d.Shift, &g)
	return s
}

func (p *TwoAdicPcs) Commit(evaluations []commit.DomainMatrix) (commit.ProverData, error) {
	if len(evaluations) == 0 {
		return nil, errors.New("fri: empty commit batch")
	}
	data := &proverData{}
	for _, dm := range evaluations {
		if dm.Matrix.Height() != dm.Domain.Size() {
			return nil, fmt.Errorf("fri: matrix height %d does not match domain size %d",
				dm.Matrix.Height(), dm.Domain.Size())
		}
		logLde := dm.Domain.LogN + p.cfg.LogBlowup
		if logLde > fft.MaxLogCardinality {
			return nil, fmt.Errorf("fri: extension size 2^%d exceeds the two-adicity", logLde)
		}
		cm := committedMatrix{
			domain:   dm.Domain,
			logLde:   logLde,
			ldeShift: ldeShiftFor(dm.Domain),
			lde:      matrix.NewDense(dm.Matrix.Width(), 1<<logLde),
			coeffs:   make([][]fr.Element, dm.Matrix.Width()),
		}
		source := fft.NewDomain(uint64(dm.Domain.Size()))
		target := fft.NewDomain(uint64(1) << logLde)
		src := dm.Matrix
		utils.Parallelize(src.Width(), func(start, end int) {
			for col := start; col < end; col++ {
				c := src.Column(col)
				source.CosetFFTInverse(c, dm.Domain.Shift)
				cm.coeffs[col] = c
				padded := make([]fr.Element, 1<<logLde)
				copy(padded, c)
				target.CosetFFT(padded, cm.ldeShift)
				cm.lde.SetColumn(col, padded)
			}
		})
		data.matrices = append(data.matrices, cm)
		if logLde > data.logMax {
			data.logMax = logLde
		}
	}

	data.tree = p.buildTree(data.matrices, data.logMax)
	data.root = commit.Commitment(data.tree.root())
	return data, nil
}

// buildTree hashes every matrix into one batch tree. Leaf and injected row
// digests address rows in bit-reversed order.
func (p *TwoAdicPcs) buildTree(matrices []committedMatrix, logMax int) *tree {
	byHeight := make(map[int][]*matrix.Dense)
	for i := range matrices {
		byHeight[matrices[i].logLde] = append(byHeight[matrices[i].logLde], matrices[i].lde)
	}

	rowDigests := func(logSize int) []digest {
		group := byHeight[logSize]
		out := make([]digest, 1<<logSize)
		utils.Parallelize(len(out), func(start, end int) {
			rows := make([][]fr.Element, len(group))
			for j := start; j < end; j++ {
				r := int(utils.ReverseBits(uint64(j), logSize))
				for gi, m := range group {
					rows[gi] = m.Row(r)
				}
				out[j] = hashRows(rows...)
			}
		})
		return out
	}

	leaves := rowDigests(logMax)
	inject := make(map[int][]digest)
	for logSize := range byHeight {
		if logSize != logMax {
			inject[logSize] = rowDigests(logSize)
		}
	}
	return newTree(leaves, inject)
}

func (p *TwoAdicPcs) GetEvaluationsOnDomain(data commit.ProverData, matrixIndex int, domain commit.Domain) (matrix.Strided, error) {
	d, ok := data.(*proverData)
	if !ok {
		return matrix.Strided{}, errors.New("fri: foreign prover data")
	}
	if matrixIndex < 0 || matrixIndex >= len(d.matrices) {
		return matrix.Strided{}, fmt.Errorf("fri: matrix index %d out of range", matrixIndex)
	}
	m := &d.matrices[matrixIndex]
	if domain.LogN > m.logLde {
		return matrix.Strided{}, fmt.Errorf("fri: domain 2^%d larger than extension 2^%d", domain.LogN, m.logLde)
	}
	if !domain.Shift.Equal(&m.ldeShift) {
		return matrix.Strided{}, errors.New("fri: domain shift not covered by the extension")
	}
	return matrix.NewStrided(m.lde, 1<<(m.logLde-domain.LogN)), nil
}
