// Package verifier checks STARK proofs against a verifying key.
//
// Verification replays the prover's transcript from the proof's commitments
// and metadata, delegates the opening argument to the pcs, and re-evaluates
// every AIR's folded constraints at the out-of-domain point. The bus
// argument is settled last by summing the exposed cumulative sums.
package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/challenger"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/internal/utils"
	"github.com/consensys/go-stark/keygen"
	"github.com/consensys/go-stark/logger"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

var (
	// ErrInvalidProofShape reports a proof whose structure does not match
	// the verifying key.
	ErrInvalidProofShape = errors.New("verifier: invalid proof shape")

	// ErrOodEvaluationMismatch reports an AIR whose folded constraints do
	// not match the quotient at the out-of-domain point.
	ErrOodEvaluationMismatch = errors.New("verifier: out-of-domain evaluation mismatch")

	// ErrNonZeroCumulativeSum reports an unbalanced bus argument.
	ErrNonZeroCumulativeSum = errors.New("verifier: non-zero cumulative sum")

	// ErrChallengePhaseError reports challenge-phase data inconsistent with
	// the key. It is ranked below ErrOodEvaluationMismatch so that broken
	// phase metadata cannot mask an invalid quotient.
	ErrChallengePhaseError = errors.New("verifier: malformed challenge phase")
)

func shapeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProofShape, fmt.Sprintf(format, args...))
}

// matRef locates one main partition inside the opened main groups.
type matRef struct {
	group, index int
}

// view is the per-proof bookkeeping derived from the verifying key alone:
// which AIRs carry preprocessed traces, which participate in the bus, and
// where each main partition sits in the commitment schedule.
type view struct {
	vk          *keygen.VerifyingKey
	interactive *bitset.BitSet

	prepAirs   []int
	commonAirs []int
	permAirs   []int

	// permIndex maps an AIR to its rank among the interactive AIRs, -1
	// otherwise.
	permIndex []int

	// mainParts lists, per AIR, the opened-value location of every main
	// partition: cached partitions first, then the common matrix.
	mainParts     [][]matRef
	numMainGroups int
}

func newView(vk *keygen.VerifyingKey) *view {
	n := vk.NumAirs()
	v := &view{
		vk:          vk,
		interactive: bitset.New(uint(n)),
		permIndex:   make([]int, n),
		mainParts:   make([][]matRef, n),
	}
	group := 0
	for i := range vk.PerAir {
		avk := &vk.PerAir[i]
		v.permIndex[i] = -1
		if avk.HasPreprocessed() {
			v.prepAirs = append(v.prepAirs, i)
		}
		if avk.ConstraintSystem.HasInteractions() {
			v.interactive.Set(uint(i))
			v.permIndex[i] = len(v.permAirs)
			v.permAirs = append(v.permAirs, i)
		}
		for range avk.CachedMainWidths {
			v.mainParts[i] = append(v.mainParts[i], matRef{group: group})
			group++
		}
	}
	for i := range vk.PerAir {
		if vk.PerAir[i].CommonMainWidth() > 0 {
			v.mainParts[i] = append(v.mainParts[i], matRef{group: group, index: len(v.commonAirs)})
			v.commonAirs = append(v.commonAirs, i)
		}
	}
	v.numMainGroups = group
	if len(v.commonAirs) > 0 {
		v.numMainGroups++
	}
	return v
}

// partWidths returns the column count of each main partition of one AIR, in
// commit order.
func partWidths(avk *keygen.AirVerifyingKey) []int {
	widths := append([]int(nil), avk.CachedMainWidths...)
	if w := avk.CommonMainWidth(); w > 0 {
		widths = append(widths, w)
	}
	return widths
}

// challenges holds the protocol randomness recovered from the transcript
// replay.
type challenges struct {
	beta, gamma ext.E4
	alpha, zeta ext.E4
}

// Verify checks a proof against the verifying key. It returns nil exactly
// when the proof convinces the verifier; the error identifies the first
// failure in verification order.
func Verify(cfg *stark.Config, vk *keygen.VerifyingKey, proof *stark.Proof) error {
	start := time.Now()
	log := logger.Logger().With().Str("component", "verifier").Int("airs", vk.NumAirs()).Logger()

	v := newView(vk)
	domains, err := checkShape(cfg, v, proof)
	if err != nil {
		return err
	}

	// Challenge-phase structure problems are recorded here but surfaced
	// only after the opening and quotient checks, so they cannot mask an
	// invalid proof.
	broken, phaseErr := checkChallengePhase(v, proof)

	ch, chs := replayTranscript(cfg, v, proof, domains)
	rounds := buildRounds(v, proof, domains, chs.zeta)
	if err := cfg.Pcs.Verify(rounds, proof.Opening.Proof, ch); err != nil {
		return err
	}
	if err := checkOodEvaluations(v, proof, domains, chs, broken); err != nil {
		return err
	}
	if phaseErr != nil {
		return phaseErr
	}

	var sum ext.E4
	for _, i := range v.permAirs {
		sum.Add(&sum, &proof.PerAir[i].ExposedValuesAfterChallenge[0][0])
	}
	if !sum.IsZero() {
		return ErrNonZeroCumulativeSum
	}

	log.Debug().Dur("took", time.Since(start)).Msg("verifier done")
	return nil
}

func checkShape(cfg *stark.Config, v *view, proof *stark.Proof) ([]commit.Domain, error) {
	vk := v.vk
	n := vk.NumAirs()
	if len(proof.PerAir) != n {
		return nil, shapeErr("%d airs in proof, key has %d", len(proof.PerAir), n)
	}

	domains := make([]commit.Domain, n)
	for i := range proof.PerAir {
		pa := &proof.PerAir[i]
		avk := &vk.PerAir[i]
		if pa.AirID != i {
			return nil, shapeErr("air %d carries id %d", i, pa.AirID)
		}
		d := pa.Degree
		if d < 2 || d&(d-1) != 0 {
			return nil, shapeErr("air %d: degree %d is not a power of two >= 2", i, d)
		}
		if avk.HasPreprocessed() && d != avk.PreprocessedHeight {
			return nil, shapeErr("air %d: degree %d, preprocessed trace has %d", i, d, avk.PreprocessedHeight)
		}
		if len(pa.PublicValues) != avk.ConstraintSystem.NumPublicValues {
			return nil, shapeErr("air %d: %d public values, key has %d", i, len(pa.PublicValues), avk.ConstraintSystem.NumPublicValues)
		}
		domains[i] = cfg.Pcs.NaturalDomainForDegree(d)
	}

	if len(proof.Commitments.Preprocessed) != len(v.prepAirs) {
		return nil, shapeErr("%d preprocessed commitments, key has %d", len(proof.Commitments.Preprocessed), len(v.prepAirs))
	}
	for pi, i := range v.prepAirs {
		if proof.Commitments.Preprocessed[pi] != *vk.PerAir[i].PreprocessedCommit {
			return nil, shapeErr("air %d: preprocessed commitment differs from key", i)
		}
	}
	if len(proof.Opening.Values.Preprocessed) != n {
		return nil, shapeErr("preprocessed openings cover %d airs, want %d", len(proof.Opening.Values.Preprocessed), n)
	}
	for i := range vk.PerAir {
		w := vk.PerAir[i].ConstraintSystem.PreprocessedWidth
		ov := &proof.Opening.Values.Preprocessed[i]
		if len(ov.Local) != w || len(ov.Next) != w {
			return nil, shapeErr("air %d: preprocessed opening width %d, want %d", i, len(ov.Local), w)
		}
	}

	if len(proof.Commitments.MainTrace) != v.numMainGroups {
		return nil, shapeErr("%d main commitments, key implies %d", len(proof.Commitments.MainTrace), v.numMainGroups)
	}
	if len(proof.Opening.Values.Main) != v.numMainGroups {
		return nil, shapeErr("%d main opening groups, key implies %d", len(proof.Opening.Values.Main), v.numMainGroups)
	}
	for g, group := range proof.Opening.Values.Main {
		want := 1
		if len(v.commonAirs) > 0 && g == v.numMainGroups-1 {
			want = len(v.commonAirs)
		}
		if len(group) != want {
			return nil, shapeErr("main group %d opens %d matrices, want %d", g, len(group), want)
		}
	}
	for i := range vk.PerAir {
		widths := partWidths(&vk.PerAir[i])
		for pi, ref := range v.mainParts[i] {
			ov := &proof.Opening.Values.Main[ref.group][ref.index]
			if len(ov.Local) != widths[pi] || len(ov.Next) != widths[pi] {
				return nil, shapeErr("air %d: main partition %d opening width %d, want %d", i, pi, len(ov.Local), widths[pi])
			}
		}
	}

	if len(proof.Opening.Values.Quotient) != n {
		return nil, shapeErr("quotient openings cover %d airs, want %d", len(proof.Opening.Values.Quotient), n)
	}
	for i := range vk.PerAir {
		chunks := proof.Opening.Values.Quotient[i]
		if len(chunks) != vk.PerAir[i].QuotientDegree {
			return nil, shapeErr("air %d: %d quotient chunks, key has %d", i, len(chunks), vk.PerAir[i].QuotientDegree)
		}
		for t := range chunks {
			if len(chunks[t]) != utils.ExtDegree {
				return nil, shapeErr("air %d: quotient chunk %d opens %d values, want %d", i, t, len(chunks[t]), utils.ExtDegree)
			}
		}
	}
	return domains, nil
}

// checkChallengePhase validates the challenge-phase structure against the
// key. Problems are deferred: the returned per-AIR flags make the
// out-of-domain check skip AIRs whose phase data cannot be interpreted.
func checkChallengePhase(v *view, proof *stark.Proof) ([]bool, error) {
	broken := make([]bool, v.vk.NumAirs())
	var firstErr error
	flag := func(i int, format string, args ...any) {
		if i >= 0 {
			broken[i] = true
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: %s", ErrChallengePhaseError, fmt.Sprintf(format, args...))
		}
	}

	for i := range proof.PerAir {
		exposed := proof.PerAir[i].ExposedValuesAfterChallenge
		if v.interactive.Test(uint(i)) {
			if len(exposed) != 1 || len(exposed[0]) != 1 {
				flag(i, "air %d must expose one cumulative sum in one challenge phase", i)
			}
		} else if len(exposed) != 0 {
			flag(i, "air %d exposes challenge-phase values without interactions", i)
		}
	}

	after := proof.Opening.Values.AfterChallenge
	if numPerm := len(v.permAirs); numPerm > 0 {
		if len(proof.Commitments.AfterChallenge) != 1 {
			flag(-1, "%d challenge-phase commitments, want 1", len(proof.Commitments.AfterChallenge))
		}
		if len(after) != 1 || len(after[0]) != numPerm {
			flag(-1, "challenge-phase openings do not cover the %d interactive airs", numPerm)
			for _, i := range v.permAirs {
				broken[i] = true
			}
		} else {
			for mi, i := range v.permAirs {
				w := utils.ExtDegree * v.vk.PerAir[i].ConstraintSystem.PermutationWidth
				if len(after[0][mi].Local) != w || len(after[0][mi].Next) != w {
					flag(i, "air %d: permutation opening width %d, want %d", i, len(after[0][mi].Local), w)
				}
			}
		}
	} else if len(proof.Commitments.AfterChallenge) != 0 || len(after) != 0 {
		flag(-1, "challenge-phase data on a batch without interactions")
	}
	return broken, firstErr
}

// replayTranscript drives a fresh challenger through the observation order
// of the proving pipeline, recovering every sampled challenge. Challenge
// phase values are observed as far as they are present; a structurally
// broken proof diverges from any honest transcript and fails the opening
// argument.
func replayTranscript(cfg *stark.Config, v *view, proof *stark.Proof, domains []commit.Domain) (*challenger.Duplex, challenges) {
	var chs challenges
	ch := cfg.NewChallenger()

	for _, i := range v.prepAirs {
		ch.ObserveDigest(*v.vk.PerAir[i].PreprocessedCommit)
	}
	for i := range proof.PerAir {
		ch.ObserveSlice(proof.PerAir[i].PublicValues)
	}
	for _, c := range proof.Commitments.MainTrace {
		ch.ObserveDigest(c)
	}
	for i := range proof.PerAir {
		ch.Observe(fr.NewElement(uint64(domains[i].LogN)))
	}

	if len(v.permAirs) > 0 {
		chs.beta = ch.SampleExt()
		chs.gamma = ch.SampleExt()
		for _, i := range v.permAirs {
			exposed := proof.PerAir[i].ExposedValuesAfterChallenge
			if len(exposed) == 1 && len(exposed[0]) == 1 {
				cum := exposed[0][0]
				ch.ObserveExt(&cum)
			}
		}
		if len(proof.Commitments.AfterChallenge) == 1 {
			ch.ObserveDigest(proof.Commitments.AfterChallenge[0])
		}
	}

	chs.alpha = ch.SampleExt()
	ch.ObserveDigest(proof.Commitments.Quotient)
	chs.zeta = ch.SampleExt()
	return ch, chs
}

// buildRounds assembles the pcs claims in the commitment order of the
// proving pipeline: preprocessed groups, cached main groups, the common
// main group, the permutation group, then all quotient chunks.
func buildRounds(v *view, proof *stark.Proof, domains []commit.Domain, zeta ext.E4) []commit.VerifyRound {
	vals := &proof.Opening.Values

	twoPoint := func(d commit.Domain, ov *stark.AirOpenedValues) commit.MatrixClaim {
		return commit.MatrixClaim{
			Domain: d,
			Openings: []commit.ClaimedOpening{
				{Point: zeta, Values: ov.Local},
				{Point: d.NextPointExt(zeta), Values: ov.Next},
			},
		}
	}

	rounds := make([]commit.VerifyRound, 0, len(v.prepAirs)+v.numMainGroups+2)
	for pi, i := range v.prepAirs {
		rounds = append(rounds, commit.VerifyRound{
			Commitment: proof.Commitments.Preprocessed[pi],
			Matrices:   []commit.MatrixClaim{twoPoint(domains[i], &vals.Preprocessed[i])},
		})
	}

	g := 0
	for i := range v.vk.PerAir {
		for range v.vk.PerAir[i].CachedMainWidths {
			rounds = append(rounds, commit.VerifyRound{
				Commitment: proof.Commitments.MainTrace[g],
				Matrices:   []commit.MatrixClaim{twoPoint(domains[i], &vals.Main[g][0])},
			})
			g++
		}
	}
	if len(v.commonAirs) > 0 {
		claims := make([]commit.MatrixClaim, len(v.commonAirs))
		for mi, i := range v.commonAirs {
			claims[mi] = twoPoint(domains[i], &vals.Main[g][mi])
		}
		rounds = append(rounds, commit.VerifyRound{Commitment: proof.Commitments.MainTrace[g], Matrices: claims})
	}

	if len(v.permAirs) > 0 && len(proof.Commitments.AfterChallenge) == 1 &&
		len(vals.AfterChallenge) == 1 && len(vals.AfterChallenge[0]) == len(v.permAirs) {
		claims := make([]commit.MatrixClaim, len(v.permAirs))
		for mi, i := range v.permAirs {
			claims[mi] = twoPoint(domains[i], &vals.AfterChallenge[0][mi])
		}
		rounds = append(rounds, commit.VerifyRound{Commitment: proof.Commitments.AfterChallenge[0], Matrices: claims})
	}

	var qClaims []commit.MatrixClaim
	for i := range v.vk.PerAir {
		chunkDoms := quotientChunkDomains(domains[i], v.vk.PerAir[i].QuotientDegree)
		for t, d := range chunkDoms {
			qClaims = append(qClaims, commit.MatrixClaim{
				Domain:   d,
				Openings: []commit.ClaimedOpening{{Point: zeta, Values: vals.Quotient[i][t]}},
			})
		}
	}
	rounds = append(rounds, commit.VerifyRound{Commitment: proof.Commitments.Quotient, Matrices: qClaims})
	return rounds
}

// quotientChunkDomains returns the committed sub-cosets of one AIR's
// quotient evaluations.
func quotientChunkDomains(trace commit.Domain, qDeg int) []commit.Domain {
	quot := trace.CreateDisjointDomain(trace.Size() * qDeg)
	return quot.SplitDomains(qDeg)
}
