package prover

import (
	"errors"
	"fmt"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/commit"

	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// open builds the opening schedule and runs the pcs opening argument. Each
// trace matrix is opened at zeta and at zeta advanced by one step of its
// owning AIR's domain; quotient chunks are opened at zeta only.
func (r *run) open() error {
	if err := r.advance(phaseOpened); err != nil {
		return err
	}

	groups := r.committer.Groups()
	if len(groups) != len(r.groupAirs) {
		return fmt.Errorf("prover: %d commitment groups, %d scheduled", len(groups), len(r.groupAirs))
	}
	rounds := make([]commit.OpenRound, 0, len(groups)+1)
	for gi, data := range groups {
		airs := r.groupAirs[gi]
		points := make([][]ext.E4, len(airs))
		for mi, id := range airs {
			points[mi] = []ext.E4{r.zeta, r.domains[id].NextPointExt(r.zeta)}
		}
		rounds = append(rounds, commit.OpenRound{Data: data, Points: points})
	}

	var chunkPoints [][]ext.E4
	for i := range r.inputs {
		for range r.chunkDomains[i] {
			chunkPoints = append(chunkPoints, []ext.E4{r.zeta})
		}
	}
	rounds = append(rounds, commit.OpenRound{Data: r.quotientData, Points: chunkPoints})

	values, pcsProof, err := r.cfg.Pcs.Open(rounds, r.ch)
	if err != nil {
		return err
	}
	r.opened = values
	r.pcsProof = pcsProof
	return nil
}

// emit routes the opened values into the proof envelope, indexed the way
// the verifier consumes them.
func (r *run) emit() (*stark.Proof, error) {
	if err := r.advance(phaseEmitted); err != nil {
		return nil, err
	}
	vk := r.pk.Vk
	n := len(r.inputs)

	round := 0
	nextRound := func() ([][][]ext.E4, error) {
		if round >= len(r.opened) {
			return nil, errors.New("prover: opened values exhausted")
		}
		vals := r.opened[round]
		round++
		return vals, nil
	}

	prep := make([]stark.AirOpenedValues, n)
	prepCommits := make([]commit.Commitment, 0, len(r.prepAirs))
	for _, i := range r.prepAirs {
		vals, err := nextRound()
		if err != nil {
			return nil, err
		}
		prep[i] = twoPointOpening(vals[0])
		prepCommits = append(prepCommits, *vk.PerAir[i].PreprocessedCommit)
	}

	main := make([][]stark.AirOpenedValues, 0, len(r.mainCommitments))
	for g := 0; g < len(r.mainCommitments); g++ {
		vals, err := nextRound()
		if err != nil {
			return nil, err
		}
		group := make([]stark.AirOpenedValues, len(vals))
		for mi := range vals {
			group[mi] = twoPointOpening(vals[mi])
		}
		main = append(main, group)
	}

	after := [][]stark.AirOpenedValues{}
	afterCommits := []commit.Commitment{}
	if r.permData != nil {
		vals, err := nextRound()
		if err != nil {
			return nil, err
		}
		phase0 := make([]stark.AirOpenedValues, len(vals))
		for mi := range vals {
			phase0[mi] = twoPointOpening(vals[mi])
		}
		after = append(after, phase0)
		afterCommits = append(afterCommits, r.permData.Commitment())
	}

	qvals, err := nextRound()
	if err != nil {
		return nil, err
	}
	quotient := make([][][]ext.E4, n)
	qi := 0
	for i := range r.inputs {
		chunks := make([][]ext.E4, len(r.chunkDomains[i]))
		for t := range chunks {
			chunks[t] = qvals[qi][0]
			qi++
		}
		quotient[i] = chunks
	}

	perAir := make([]stark.AirProofData, n)
	for i := range perAir {
		exposed := [][]ext.E4{}
		if vk.PerAir[i].ConstraintSystem.HasInteractions() {
			exposed = [][]ext.E4{{r.cumulative[i]}}
		}
		perAir[i] = stark.AirProofData{
			AirID:                       i,
			Degree:                      r.domains[i].Size(),
			PublicValues:                r.inputs[i].PublicValues,
			ExposedValuesAfterChallenge: exposed,
		}
	}

	return &stark.Proof{
		Commitments: stark.Commitments{
			Preprocessed:   prepCommits,
			MainTrace:      r.mainCommitments,
			AfterChallenge: afterCommits,
			Quotient:       r.quotientData.Commitment(),
		},
		Opening: stark.Opening{
			Values: stark.OpenedValues{
				Preprocessed:   prep,
				Main:           main,
				AfterChallenge: after,
				Quotient:       quotient,
			},
			Proof: r.pcsProof,
		},
		PerAir: perAir,
	}, nil
}

func twoPointOpening(vals [][]ext.E4) stark.AirOpenedValues {
	return stark.AirOpenedValues{Local: vals[0], Next: vals[1]}
}
