package stark

import (
	"errors"

	"github.com/consensys/go-stark/challenger"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/fri"
)

// DefaultFriConfig is the production FRI parameterization: blowup factor 2,
// 100 queries and 16 bits of proof-of-work grinding.
var DefaultFriConfig = fri.Config{
	LogBlowup:  1,
	NumQueries: 100,
	PowBits:    16,
}

// Config collects the parameters shared by keygen, prover and verifier. All
// three must run with identical configurations; a proof produced under one
// configuration does not verify under another.
type Config struct {
	// Pcs commits to trace matrices and opens them at out-of-domain points.
	Pcs commit.Pcs

	// NewChallenger returns a fresh Fiat-Shamir transcript. Prover and
	// verifier derive all protocol randomness from it.
	NewChallenger func() *challenger.Duplex

	// MaxConstraintDegree bounds the degree of constraints accepted at
	// keygen. A degree-d constraint set spreads its quotient over
	// 2^ceil(log2(d-1)) chunks, all of which must fit inside the pcs
	// blowup.
	MaxConstraintDegree int
}

// Option modifies a Config at construction time.
type Option func(*Config) error

// NewConfig returns the default configuration with the given options
// applied: the two-adic FRI scheme under DefaultFriConfig, a koalabear
// duplex sponge challenger, and constraints up to degree 3.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		Pcs:                 fri.NewTwoAdicPcs(DefaultFriConfig),
		NewChallenger:       challenger.New,
		MaxConstraintDegree: 3,
	}
	for _, option := range opts {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithFriConfig replaces the pcs with a two-adic FRI scheme under the given
// parameters.
func WithFriConfig(friCfg fri.Config) Option {
	return func(cfg *Config) error {
		if friCfg.LogBlowup < 1 {
			return errors.New("stark: fri blowup must be at least 2")
		}
		if friCfg.NumQueries < 1 {
			return errors.New("stark: fri needs at least one query")
		}
		cfg.Pcs = fri.NewTwoAdicPcs(friCfg)
		return nil
	}
}

// WithPcs sets the polynomial commitment scheme.
func WithPcs(pcs commit.Pcs) Option {
	return func(cfg *Config) error {
		if pcs == nil {
			return errors.New("stark: nil pcs")
		}
		cfg.Pcs = pcs
		return nil
	}
}

// WithChallenger sets the transcript constructor.
func WithChallenger(newChallenger func() *challenger.Duplex) Option {
	return func(cfg *Config) error {
		if newChallenger == nil {
			return errors.New("stark: nil challenger constructor")
		}
		cfg.NewChallenger = newChallenger
		return nil
	}
}

// WithMaxConstraintDegree sets the keygen degree bound.
func WithMaxConstraintDegree(d int) Option {
	return func(cfg *Config) error {
		if d < 2 {
			return errors.New("stark: max constraint degree must be at least 2")
		}
		cfg.MaxConstraintDegree = d
		return nil
	}
}
