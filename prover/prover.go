// Package prover turns chip traces into STARK proofs.
//
// A proof covers one batch of AIRs frozen at key generation. The prover
// collects every chip's trace, commits trace groups through the pcs, runs
// the logUp challenge phase, evaluates the folded constraint quotient on a
// disjoint coset and opens everything at one out-of-domain point. All
// transcript traffic flows through a single duplex sponge; its observation
// order is fixed by the phase machine below and mirrored by the verifier.
package prover

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/challenger"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/debug"
	"github.com/consensys/go-stark/interaction"
	"github.com/consensys/go-stark/keygen"
	"github.com/consensys/go-stark/logger"
	"github.com/consensys/go-stark/matrix"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// ErrPhaseError reports a phase executed out of order. It indicates a
// programming bug in the proving pipeline, not bad input.
var ErrPhaseError = errors.New("prover: phase order violation")

// Chip produces the trace of one AIR. Chips are matched positionally with
// the AIRs registered at key generation.
type Chip interface {
	// Air returns the AIR the chip proves.
	Air() air.Air

	// CurrentTraceHeight is the height the chip's trace has if generated
	// now, after power-of-two padding.
	CurrentTraceHeight() int

	// TraceWidth is the total number of main columns, cached partitions
	// included.
	TraceWidth() int

	// GenerateAirProofInput consumes the chip's records and produces its
	// trace. The chip must not be reused afterwards.
	GenerateAirProofInput() AirProofInput
}

// AirProofInput is one AIR's contribution to a proof.
type AirProofInput struct {
	// CachedMains are precommitted main partitions, in partition order.
	// Their commitments are reused without recommitting.
	CachedMains []commit.CachedTraceData

	// CommonMain holds the main columns outside the cached partitions,
	// or nil when every column is cached.
	CommonMain *matrix.Dense

	PublicValues []fr.Element
}

// Prover generates proofs for batches of chips under one configuration.
type Prover struct {
	cfg      *stark.Config
	log      zerolog.Logger
	debugRun bool
}

// Option modifies a Prover at construction time.
type Option func(*Prover) error

// WithDebugConstraints makes every Prove call check the raw traces against
// the constraint systems before committing anything. Slow; test use only.
func WithDebugConstraints() Option {
	return func(p *Prover) error {
		p.debugRun = true
		return nil
	}
}

// WithLogger overrides the prover's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Prover) error {
		p.log = l
		return nil
	}
}

func New(cfg *stark.Config, opts ...Option) (*Prover, error) {
	p := &Prover{
		cfg: cfg,
		log: logger.Logger().With().Str("component", "prover").Logger(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Prove generates a proof that every chip's trace satisfies its AIR and
// that all bus interactions balance. Chips are consumed.
func (p *Prover) Prove(pk *keygen.ProvingKey, chips []Chip) (*stark.Proof, error) {
	start := time.Now()
	vk := pk.Vk
	log := p.log.With().Int("airs", len(chips)).Logger()

	if len(chips) != vk.NumAirs() {
		return nil, fmt.Errorf("prover: %d chips for %d airs", len(chips), vk.NumAirs())
	}

	inputs := make([]AirProofInput, len(chips))
	g := new(errgroup.Group)
	for i := range chips {
		g.Go(func() error {
			avk := &vk.PerAir[i]
			if name := chips[i].Air().Name(); name != avk.Name {
				return fmt.Errorf("prover: air %d is %q, key was generated for %q", i, name, avk.Name)
			}
			height := chips[i].CurrentTraceHeight()
			width := chips[i].TraceWidth()
			inputs[i] = chips[i].GenerateAirProofInput()
			if h := mainHeight(&inputs[i]); h != height {
				return fmt.Errorf("prover: air %d (%s): generated height %d, chip declared %d", i, avk.Name, h, height)
			}
			if width != avk.ConstraintSystem.MainWidth {
				return fmt.Errorf("prover: air %d (%s): chip width %d, key has %d", i, avk.Name, width, avk.ConstraintSystem.MainWidth)
			}
			return validateInput(i, avk, &inputs[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.debugRun || debug.Debug {
		if err := DebugConstraints(pk, inputs); err != nil {
			return nil, err
		}
	}

	r := newRun(p.cfg, pk, inputs, log)
	phases := []struct {
		msg string
		f   func() error
	}{
		{"observed preprocessed traces", r.observePreprocessed},
		{"committed main traces", r.observeMain},
		{"sampled rap challenges", r.sampleRapChallenges},
		{"committed permutation traces", r.commitPermutation},
		{"observed permutation commitment", r.observePermutation},
		{"sampled alpha", r.sampleAlpha},
		{"committed quotient", r.commitQuotient},
		{"observed quotient commitment", r.observeQuotient},
		{"sampled zeta", r.sampleZeta},
		{"opened commitments", r.open},
	}
	for _, ph := range phases {
		phStart := time.Now()
		if err := ph.f(); err != nil {
			return nil, err
		}
		log.Debug().Dur("took", time.Since(phStart)).Msg(ph.msg)
	}

	proof, err := r.emit()
	if err != nil {
		return nil, err
	}
	log.Debug().Dur("took", time.Since(start)).Msg("prover done")
	return proof, nil
}

// mainHeight returns the trace height of an input, or 0 when it carries no
// matrix at all.
func mainHeight(in *AirProofInput) int {
	if len(in.CachedMains) > 0 {
		return in.CachedMains[0].Trace.Height()
	}
	if in.CommonMain != nil {
		return in.CommonMain.Height()
	}
	return 0
}

func validateInput(id int, avk *keygen.AirVerifyingKey, in *AirProofInput) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("prover: air %d (%s): %s", id, avk.Name, fmt.Sprintf(format, args...))
	}

	h := mainHeight(in)
	if h == 0 {
		return fail("no trace matrix")
	}
	if h < 2 || h&(h-1) != 0 {
		return fail("trace height %d is not a power of two >= 2", h)
	}
	if avk.HasPreprocessed() && h != avk.PreprocessedHeight {
		return fail("trace height %d, preprocessed trace has %d", h, avk.PreprocessedHeight)
	}

	if len(in.CachedMains) != len(avk.CachedMainWidths) {
		return fail("%d cached partitions, key has %d", len(in.CachedMains), len(avk.CachedMainWidths))
	}
	for j, cached := range in.CachedMains {
		if cached.Data == nil || cached.Trace == nil {
			return fail("cached partition %d was never committed", j)
		}
		if cached.Trace.Height() != h {
			return fail("cached partition %d has height %d, want %d", j, cached.Trace.Height(), h)
		}
		if w := cached.Trace.Width(); w != avk.CachedMainWidths[j] {
			return fail("cached partition %d has width %d, key has %d", j, w, avk.CachedMainWidths[j])
		}
	}
	commonWidth := avk.CommonMainWidth()
	if in.CommonMain == nil {
		if commonWidth != 0 {
			return fail("missing common main trace of width %d", commonWidth)
		}
	} else {
		if in.CommonMain.Height() != h {
			return fail("common main height %d, cached partitions have %d", in.CommonMain.Height(), h)
		}
		if w := in.CommonMain.Width(); w != commonWidth {
			return fail("common main width %d, key has %d", w, commonWidth)
		}
	}

	if len(in.PublicValues) != avk.ConstraintSystem.NumPublicValues {
		return fail("%d public values, key has %d", len(in.PublicValues), avk.ConstraintSystem.NumPublicValues)
	}
	return nil
}

// assembleMain concatenates an input's partitions into the full main trace
// the constraint system reads. Without cached partitions the common matrix
// is returned as is.
func assembleMain(in *AirProofInput, width int) *matrix.Dense {
	if len(in.CachedMains) == 0 {
		return in.CommonMain
	}
	h := mainHeight(in)
	full := matrix.NewDense(width, h)
	for r := 0; r < h; r++ {
		dst := full.Row(r)
		off := 0
		for _, cached := range in.CachedMains {
			src := cached.Trace.Row(r)
			copy(dst[off:], src)
			off += len(src)
		}
		if in.CommonMain != nil {
			copy(dst[off:], in.CommonMain.Row(r))
		}
	}
	return full
}

// phase enumerates the prover protocol states, in execution order.
type phase uint8

const (
	phaseInit phase = iota
	phaseObservedPreprocessed
	phaseObservedMain
	phaseSampledRapChallenges
	phaseCommittedPermutation
	phaseObservedPermutation
	phaseSampledAlpha
	phaseCommittedQuotient
	phaseObservedQuotient
	phaseSampledZeta
	phaseOpened
	phaseEmitted
)

func (ph phase) String() string {
	switch ph {
	case phaseInit:
		return "Init"
	case phaseObservedPreprocessed:
		return "ObservePreprocessed"
	case phaseObservedMain:
		return "ObserveMain"
	case phaseSampledRapChallenges:
		return "SampleRapChallenges"
	case phaseCommittedPermutation:
		return "CommitPermutation"
	case phaseObservedPermutation:
		return "ObservePermutation"
	case phaseSampledAlpha:
		return "SampleAlpha"
	case phaseCommittedQuotient:
		return "CommitQuotient"
	case phaseObservedQuotient:
		return "ObserveQuotient"
	case phaseSampledZeta:
		return "SampleZeta"
	case phaseOpened:
		return "Open"
	case phaseEmitted:
		return "Emit"
	default:
		return "unknown"
	}
}

// traceRef locates one committed matrix: the group's prover data and the
// matrix index within the group. A nil data means the segment is absent.
type traceRef struct {
	data  commit.ProverData
	index int
}

// run is the state of one proof generation.
type run struct {
	cfg       *stark.Config
	pk        *keygen.ProvingKey
	inputs    []AirProofInput
	ch        *challenger.Duplex
	committer *commit.Committer
	log       zerolog.Logger
	phase     phase

	// domains holds each AIR's trace domain.
	domains []commit.Domain

	// per-AIR locations of the committed trace segments
	prepRefs []traceRef
	mainRefs [][]traceRef
	permRefs []traceRef

	// groupAirs records, per committer group, the AIR owning each matrix.
	// The opening schedule derives its point lists from it.
	groupAirs [][]int

	prepAirs   []int
	commonAirs []int
	permAirs   []int

	mainCommitments []commit.Commitment

	beta, gamma ext.E4
	permTraces  []*matrix.DenseExt
	cumulative  []ext.E4
	permData    commit.ProverData

	alpha        ext.E4
	chunkDomains [][]commit.Domain
	quotientData commit.ProverData

	zeta ext.E4

	opened   commit.OpenedValues
	pcsProof commit.OpeningProof
}

func newRun(cfg *stark.Config, pk *keygen.ProvingKey, inputs []AirProofInput, log zerolog.Logger) *run {
	n := len(inputs)
	r := &run{
		cfg:          cfg,
		pk:           pk,
		inputs:       inputs,
		ch:           cfg.NewChallenger(),
		committer:    commit.NewCommitter(cfg.Pcs),
		log:          log,
		domains:      make([]commit.Domain, n),
		prepRefs:     make([]traceRef, n),
		mainRefs:     make([][]traceRef, n),
		permRefs:     make([]traceRef, n),
		permTraces:   make([]*matrix.DenseExt, n),
		cumulative:   make([]ext.E4, n),
		chunkDomains: make([][]commit.Domain, n),
	}
	for i := range inputs {
		r.domains[i] = cfg.Pcs.NaturalDomainForDegree(mainHeight(&inputs[i]))
		if pk.Vk.PerAir[i].ConstraintSystem.HasInteractions() {
			r.permAirs = append(r.permAirs, i)
		}
	}
	return r
}

// advance moves the run to the next phase. Phases are strictly linear.
func (r *run) advance(to phase) error {
	if to != r.phase+1 {
		if debug.Debug {
			return fmt.Errorf("%w: %s requested in phase %s\n%s", ErrPhaseError, to, r.phase, debug.Stack())
		}
		return fmt.Errorf("%w: %s requested in phase %s", ErrPhaseError, to, r.phase)
	}
	r.phase = to
	return nil
}

// observePreprocessed registers the preprocessed commitments from the key
// and binds them, then the public values, into the transcript.
func (r *run) observePreprocessed() error {
	if err := r.advance(phaseObservedPreprocessed); err != nil {
		return err
	}
	for i := range r.pk.PerAir {
		apk := &r.pk.PerAir[i]
		if apk.PreprocessedData == nil {
			continue
		}
		r.prepRefs[i] = traceRef{data: apk.PreprocessedData}
		r.prepAirs = append(r.prepAirs, i)
		r.committer.LoadCached(commit.CachedTraceData{Trace: apk.PreprocessedTrace, Data: apk.PreprocessedData})
		r.groupAirs = append(r.groupAirs, []int{i})
		r.ch.ObserveDigest(apk.PreprocessedData.Commitment())
	}
	for i := range r.inputs {
		r.ch.ObserveSlice(r.inputs[i].PublicValues)
	}
	return nil
}

// observeMain registers the cached main partitions, commits the common
// group, and binds every main commitment plus each AIR's log2 degree.
func (r *run) observeMain() error {
	if err := r.advance(phaseObservedMain); err != nil {
		return err
	}
	for i := range r.inputs {
		for _, cached := range r.inputs[i].CachedMains {
			r.committer.LoadCached(cached)
			r.groupAirs = append(r.groupAirs, []int{i})
			r.mainRefs[i] = append(r.mainRefs[i], traceRef{data: cached.Data})
			c := cached.Data.Commitment()
			r.mainCommitments = append(r.mainCommitments, c)
			r.ch.ObserveDigest(c)
		}
	}
	for i := range r.inputs {
		if r.inputs[i].CommonMain == nil {
			continue
		}
		r.committer.Load(r.inputs[i].CommonMain)
		r.commonAirs = append(r.commonAirs, i)
	}
	if len(r.commonAirs) > 0 {
		data, err := r.committer.CommitCurrent()
		if err != nil {
			return err
		}
		for mi, i := range r.commonAirs {
			r.mainRefs[i] = append(r.mainRefs[i], traceRef{data: data, index: mi})
		}
		r.groupAirs = append(r.groupAirs, r.commonAirs)
		c := data.Commitment()
		r.mainCommitments = append(r.mainCommitments, c)
		r.ch.ObserveDigest(c)
	}
	for i := range r.inputs {
		r.ch.Observe(fr.NewElement(uint64(r.domains[i].LogN)))
	}
	return nil
}

// sampleRapChallenges draws the logUp fingerprint challenges. AIR batches
// without interactions skip the whole challenge phase.
func (r *run) sampleRapChallenges() error {
	if err := r.advance(phaseSampledRapChallenges); err != nil {
		return err
	}
	if len(r.permAirs) == 0 {
		return nil
	}
	r.beta = r.ch.SampleExt()
	r.gamma = r.ch.SampleExt()
	return nil
}

// commitPermutation generates every interactive AIR's permutation trace,
// binds the cumulative sums and commits the flattened traces as one group.
func (r *run) commitPermutation() error {
	if err := r.advance(phaseCommittedPermutation); err != nil {
		return err
	}
	if len(r.permAirs) == 0 {
		return nil
	}

	g := new(errgroup.Group)
	for _, i := range r.permAirs {
		g.Go(func() error {
			avk := &r.pk.Vk.PerAir[i]
			full := assembleMain(&r.inputs[i], avk.ConstraintSystem.MainWidth)
			perm, cum, err := interaction.GenerateTrace(
				avk.ConstraintSystem,
				r.pk.PerAir[i].PreprocessedTrace,
				full,
				r.inputs[i].PublicValues,
				r.beta, r.gamma,
			)
			if err != nil {
				return fmt.Errorf("prover: air %d (%s): %w", i, avk.Name, err)
			}
			r.permTraces[i] = perm
			r.cumulative[i] = cum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for mi, i := range r.permAirs {
		r.ch.ObserveExt(&r.cumulative[i])
		r.committer.Load(r.permTraces[i].FlattenToBase())
		r.permRefs[i] = traceRef{index: mi}
	}
	data, err := r.committer.CommitCurrent()
	if err != nil {
		return err
	}
	r.permData = data
	for _, i := range r.permAirs {
		r.permRefs[i].data = data
	}
	r.groupAirs = append(r.groupAirs, r.permAirs)
	return nil
}

func (r *run) observePermutation() error {
	if err := r.advance(phaseObservedPermutation); err != nil {
		return err
	}
	if r.permData == nil {
		return nil
	}
	r.ch.ObserveDigest(r.permData.Commitment())
	return nil
}

func (r *run) sampleAlpha() error {
	if err := r.advance(phaseSampledAlpha); err != nil {
		return err
	}
	r.alpha = r.ch.SampleExt()
	return nil
}

// commitQuotient evaluates every AIR's folded constraint quotient over a
// disjoint coset and commits all chunks as one group. Chunk domains are
// shifted sub-cosets, so the group bypasses the committer's natural-domain
// scheduling and goes to the pcs directly.
func (r *run) commitQuotient() error {
	if err := r.advance(phaseCommittedQuotient); err != nil {
		return err
	}
	chunks := make([][]commit.DomainMatrix, len(r.inputs))
	g := new(errgroup.Group)
	for i := range r.inputs {
		g.Go(func() error {
			dms, err := r.quotientChunks(i)
			if err != nil {
				return fmt.Errorf("prover: air %d (%s): %w", i, r.pk.Vk.PerAir[i].Name, err)
			}
			chunks[i] = dms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all []commit.DomainMatrix
	for i := range chunks {
		all = append(all, chunks[i]...)
	}
	data, err := r.cfg.Pcs.Commit(all)
	if err != nil {
		return err
	}
	r.quotientData = data
	return nil
}

func (r *run) observeQuotient() error {
	if err := r.advance(phaseObservedQuotient); err != nil {
		return err
	}
	r.ch.ObserveDigest(r.quotientData.Commitment())
	return nil
}

func (r *run) sampleZeta() error {
	if err := r.advance(phaseSampledZeta); err != nil {
		return err
	}
	r.zeta = r.ch.SampleExt()
	return nil
}
