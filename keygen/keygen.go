// Package keygen freezes a batch of AIRs into proving and verifying keys.
//
// Key generation records every AIR's constraints symbolically, appends the
// bus argument's permutation constraints, checks interactions against the
// bus registry, sizes the quotient, and commits preprocessed traces so
// later proofs can reuse them.
package keygen

import (
	"errors"
	"fmt"
	"time"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/interaction"
	"github.com/consensys/go-stark/internal/utils"
	"github.com/consensys/go-stark/logger"
	"github.com/consensys/go-stark/matrix"
)

var (
	// ErrArityMismatch reports an interaction whose field count differs
	// from its bus's registered arity, or a bus that was never
	// registered.
	ErrArityMismatch = errors.New("keygen: interaction arity mismatch")

	// ErrMaxConstraintDegreeExceeded reports a constraint system whose
	// degree breaks the configured bound or whose quotient does not fit
	// in the pcs blowup.
	ErrMaxConstraintDegreeExceeded = errors.New("keygen: max constraint degree exceeded")
)

// Builder accumulates AIRs and bus registrations ahead of key generation.
// The bus registry is scoped to one builder; a fresh builder starts a fresh
// bus numbering.
type Builder struct {
	cfg       *stark.Config
	buses     *interaction.BusAllocator
	airs      []air.Air
	maxDegree int
}

// Option modifies a Builder at construction time.
type Option func(*Builder) error

// WithMaxConstraintDegree overrides the configured degree bound for this
// builder only.
func WithMaxConstraintDegree(d int) Option {
	return func(b *Builder) error {
		if d < 2 {
			return errors.New("keygen: max constraint degree must be at least 2")
		}
		b.maxDegree = d
		return nil
	}
}

func NewBuilder(cfg *stark.Config, opts ...Option) (*Builder, error) {
	b := &Builder{
		cfg:       cfg,
		buses:     interaction.NewBusAllocator(),
		maxDegree: cfg.MaxConstraintDegree,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// BusAllocator returns the registry AIR constructors allocate their buses
// from.
func (b *Builder) BusAllocator() *interaction.BusAllocator {
	return b.buses
}

// AddAir registers an AIR and returns its id. Keys and proofs index their
// per-AIR slices by it.
func (b *Builder) AddAir(a air.Air) int {
	b.airs = append(b.airs, a)
	return len(b.airs) - 1
}

// ldeFactor is implemented by commitment schemes that extend polynomials by
// a fixed blowup, which bounds how many quotient chunks fit in one domain.
type ldeFactor interface {
	LogBlowup() int
}

// Keygen freezes the registered AIRs into a key pair. The builder stays
// usable; calling Keygen again regenerates keys over the same batch.
func (b *Builder) Keygen() (*ProvingKey, *VerifyingKey, error) {
	start := time.Now()
	log := logger.Logger().With().Str("component", "keygen").Int("airs", len(b.airs)).Logger()

	if len(b.airs) == 0 {
		return nil, nil, errors.New("keygen: no airs registered")
	}

	logBlowup := -1
	if p, ok := b.cfg.Pcs.(ldeFactor); ok {
		logBlowup = p.LogBlowup()
	}

	vk := &VerifyingKey{
		Version:             stark.Version.String(),
		LogBlowup:           logBlowup,
		MaxConstraintDegree: b.maxDegree,
		PerAir:              make([]AirVerifyingKey, 0, len(b.airs)),
	}
	pk := &ProvingKey{
		Vk:     vk,
		PerAir: make([]AirProvingKey, 0, len(b.airs)),
	}

	for id, a := range b.airs {
		avk, apk, err := b.keygenAir(a, logBlowup)
		if err != nil {
			return nil, nil, fmt.Errorf("keygen: air %d (%s): %w", id, a.Name(), err)
		}
		vk.PerAir = append(vk.PerAir, avk)
		pk.PerAir = append(pk.PerAir, apk)
	}

	log.Debug().Dur("took", time.Since(start)).Msg("keygen done")
	return pk, vk, nil
}

func (b *Builder) keygenAir(a air.Air, logBlowup int) (AirVerifyingKey, AirProvingKey, error) {
	var avk AirVerifyingKey
	var apk AirProvingKey

	var preprocessed *matrix.Dense
	preprocessedWidth := 0
	if pa, ok := a.(air.PreprocessedAir); ok {
		preprocessed = pa.PreprocessedTrace()
	}
	if preprocessed != nil {
		h := preprocessed.Height()
		if h < 2 || !utils.IsPowerOfTwo(uint64(h)) {
			return avk, apk, fmt.Errorf("preprocessed trace height %d is not a power of two >= 2", h)
		}
		preprocessedWidth = preprocessed.Width()
	}

	numPublic := 0
	if pva, ok := a.(air.AirWithPublicValues); ok {
		numPublic = pva.NumPublicValues()
	}

	var cachedWidths []int
	if pa, ok := a.(air.PartitionedAir); ok {
		cachedWidths = append(cachedWidths, pa.CachedMainWidths()...)
		total := 0
		for _, w := range cachedWidths {
			if w <= 0 {
				return avk, apk, fmt.Errorf("cached main partition width %d is not positive", w)
			}
			total += w
		}
		if total > a.Width() {
			return avk, apk, fmt.Errorf("cached main partitions cover %d columns, air width is %d", total, a.Width())
		}
	}

	builder := air.NewBuilder(preprocessedWidth, a.Width(), numPublic)
	a.Eval(builder)
	interaction.AppendConstraints(builder)
	cs := builder.System()

	for _, itx := range cs.Interactions {
		arity, err := b.buses.Arity(itx.Bus)
		if err != nil {
			return avk, apk, fmt.Errorf("%w: %v", ErrArityMismatch, err)
		}
		if len(itx.Fields) != arity {
			return avk, apk, fmt.Errorf("%w: bus %d carries %d fields, interaction sends %d",
				ErrArityMismatch, itx.Bus, arity, len(itx.Fields))
		}
	}
	if cs.HasInteractions() {
		// Interactions must be evaluable over base rows alone; the
		// permutation trace is generated from them.
		if _, err := air.NewBaseEvaluator(cs); err != nil {
			return avk, apk, err
		}
	} else if cs.NumChallenges > 0 || cs.NumExposed > 0 {
		return avk, apk, errors.New("air reads challenge phase entries without interactions")
	}
	if cs.NumChallenges > interaction.NumChallenges || cs.NumExposed > interaction.NumExposedValues {
		return avk, apk, fmt.Errorf("air reads %d challenges and %d exposed values, the bus argument supplies %d and %d",
			cs.NumChallenges, cs.NumExposed, interaction.NumChallenges, interaction.NumExposedValues)
	}

	d := int(cs.MaxConstraintDegree())
	if d > b.maxDegree {
		return avk, apk, fmt.Errorf("%w: constraint degree %d, configured bound %d",
			ErrMaxConstraintDegreeExceeded, d, b.maxDegree)
	}
	quotientDegree := 1 << utils.Log2Ceil(uint64(max(d, 2)-1))
	if logBlowup >= 0 && quotientDegree > 1<<logBlowup {
		return avk, apk, fmt.Errorf("%w: %d quotient chunks exceed blowup 2^%d",
			ErrMaxConstraintDegreeExceeded, quotientDegree, logBlowup)
	}

	avk = AirVerifyingKey{
		Name:             a.Name(),
		ConstraintSystem: cs,
		QuotientDegree:   quotientDegree,
		CachedMainWidths: cachedWidths,
	}
	apk = AirProvingKey{Air: a}

	if preprocessed != nil {
		domain := b.cfg.Pcs.NaturalDomainForDegree(preprocessed.Height())
		data, err := b.cfg.Pcs.Commit([]commit.DomainMatrix{{Domain: domain, Matrix: preprocessed}})
		if err != nil {
			return avk, apk, fmt.Errorf("committing preprocessed trace: %w", err)
		}
		c := data.Commitment()
		avk.PreprocessedCommit = &c
		avk.PreprocessedHeight = preprocessed.Height()
		apk.PreprocessedTrace = preprocessed
		apk.PreprocessedData = data
	}

	return avk, apk, nil
}
