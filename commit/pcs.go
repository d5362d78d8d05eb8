package commit

import (
	"errors"

	"github.com/consensys/go-stark/challenger"
	"github.com/consensys/go-stark/matrix"

	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// ErrInvalidOpeningArgument reports an opening proof whose shape or query
// answers do not match the claimed commitments.
var ErrInvalidOpeningArgument = errors.New("invalid opening argument")

// Commitment is a binding digest over one batch of committed matrices.
type Commitment [32]byte

// ProverData is the prover-side state of one commitment: the low-degree
// extensions and the hash tree over them.
type ProverData interface {
	Commitment() Commitment
}

// OpeningProof is produced by Pcs.Open and consumed by Pcs.Verify. Its
// concrete type belongs to the scheme implementation.
type OpeningProof interface{}

// DomainMatrix pairs a trace matrix with the domain its rows evaluate over.
type DomainMatrix struct {
	Domain Domain
	Matrix *matrix.Dense
}

// OpenRound asks for openings of one committed batch: Points[i] lists the
// out-of-domain points at which matrix i is opened.
type OpenRound struct {
	Data   ProverData
	Points [][]ext.E4
}

// ClaimedOpening is one claimed evaluation row: every column of the matrix
// evaluated at Point.
type ClaimedOpening struct {
	Point  ext.E4
	Values []ext.E4
}

// MatrixClaim carries the claimed openings of one matrix in a batch.
type MatrixClaim struct {
	Domain   Domain
	Openings []ClaimedOpening
}

// VerifyRound is the verifier-side counterpart of OpenRound.
type VerifyRound struct {
	Commitment Commitment
	Matrices   []MatrixClaim
}

// OpenedValues is indexed round, matrix, point, column.
type OpenedValues [][][][]ext.E4

// Pcs is a multi-matrix polynomial commitment scheme over two-adic domains.
type Pcs interface {
	// NaturalDomainForDegree returns the domain trace matrices of the
	// given height are committed over.
	NaturalDomainForDegree(degree int) Domain

	// Commit low-degree extends every matrix over its domain and commits
	// to the batch.
	Commit(evaluations []DomainMatrix) (ProverData, error)

	// GetEvaluationsOnDomain returns the committed evaluations of matrix
	// matrixIndex restricted to the given domain, which must be covered
	// by the commitment's extension.
	GetEvaluationsOnDomain(data ProverData, matrixIndex int, domain Domain) (matrix.Strided, error)

	// Open proves evaluations of every committed matrix in every round at
	// the requested points. Sampling flows through the challenger.
	Open(rounds []OpenRound, ch *challenger.Duplex) (OpenedValues, OpeningProof, error)

	// Verify checks an opening proof against claimed evaluations. It
	// returns ErrInvalidOpeningArgument (possibly wrapped) on any
	// mismatch.
	Verify(rounds []VerifyRound, proof OpeningProof, ch *challenger.Duplex) error
}

// CachedTraceData is a trace committed once and reused across proofs,
// typically a program trace fixed at deployment.
type CachedTraceData struct {
	Trace *matrix.Dense
	Data  ProverData
}

// Committer schedules trace commitments for one proof: cached commitments
// are registered in order, loaded traces are batched into the next group
// commitment.
type Committer struct {
	pcs     Pcs
	pending []DomainMatrix
	groups  []ProverData
}

func NewCommitter(pcs Pcs) *Committer {
	return &Committer{pcs: pcs}
}

// CommitCached commits a single trace outside any proof so it can be reused
// via LoadCached.
func (c *Committer) CommitCached(trace *matrix.Dense) (CachedTraceData, error) {
	domain := c.pcs.NaturalDomainForDegree(trace.Height())
	data, err := c.pcs.Commit([]DomainMatrix{{Domain: domain, Matrix: trace}})
	if err != nil {
		return CachedTraceData{}, err
	}
	return CachedTraceData{Trace: trace, Data: data}, nil
}

// LoadCached registers an already committed trace as the next group.
func (c *Committer) LoadCached(d CachedTraceData) {
	c.groups = append(c.groups, d.Data)
}

// Load queues a trace for the next CommitCurrent call.
func (c *Committer) Load(trace *matrix.Dense) {
	domain := c.pcs.NaturalDomainForDegree(trace.Height())
	c.pending = append(c.pending, DomainMatrix{Domain: domain, Matrix: trace})
}

// CommitCurrent commits every trace loaded since the last commit as one
// group.
func (c *Committer) CommitCurrent() (ProverData, error) {
	if len(c.pending) == 0 {
		return nil, errors.New("commit: no traces loaded")
	}
	data, err := c.pcs.Commit(c.pending)
	if err != nil {
		return nil, err
	}
	c.pending = nil
	c.groups = append(c.groups, data)
	return data, nil
}

// Groups returns every commitment registered so far, in order.
func (c *Committer) Groups() []ProverData {
	return c.groups
}
