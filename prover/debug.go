package prover

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/keygen"
	"github.com/consensys/go-stark/logger"
	"github.com/consensys/go-stark/matrix"
	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// DebugConstraints checks raw traces against their AIRs before any
// commitment work: every constraint is evaluated on every row with the
// next-row window wrapping at the boundary, and bus interactions are
// tallied per message so an unbalanced bus names the offending tuple
// instead of surfacing as a failed proof.
//
// Row selectors take their indicator values, so the check covers exactly
// the rows the quotient argument constrains. Permutation columns are
// challenge-dependent and proved by the protocol itself; here the bus
// argument is checked directly on the multiset of messages.
func DebugConstraints(pk *keygen.ProvingKey, inputs []AirProofInput) error {
	log := logger.Logger().With().Str("component", "debug").Logger()
	if len(inputs) != len(pk.PerAir) {
		return fmt.Errorf("debug: %d inputs for %d airs", len(inputs), len(pk.PerAir))
	}

	buses := make(map[uint16]map[string]fr.Element)
	for i := range inputs {
		avk := &pk.Vk.PerAir[i]
		a := pk.PerAir[i].Air

		// the AIR's own constraints, without the appended bus argument
		builder := air.NewBuilder(avk.ConstraintSystem.PreprocessedWidth, a.Width(), avk.ConstraintSystem.NumPublicValues)
		a.Eval(builder)
		cs := builder.System()

		full := assembleMain(&inputs[i], cs.MainWidth)
		if err := checkAirConstraints(avk.Name, cs, pk.PerAir[i].PreprocessedTrace, full, inputs[i].PublicValues, log); err != nil {
			return fmt.Errorf("debug: air %d: %w", i, err)
		}
		if cs.HasInteractions() {
			if err := tallyInteractions(buses, cs, pk.PerAir[i].PreprocessedTrace, full, inputs[i].PublicValues); err != nil {
				return fmt.Errorf("debug: air %d (%s): %w", i, avk.Name, err)
			}
		}
	}

	for bus, msgs := range buses {
		for key, net := range msgs {
			if !net.IsZero() {
				log.Error().Uint16("bus", bus).Str("message", key).Str("net", net.String()).Msg("unbalanced bus message")
				return fmt.Errorf("debug: bus %d message (%s) has net multiplicity %s", bus, key, net.String())
			}
		}
	}
	return nil
}

// checkAirConstraints evaluates every constraint on every row and reports
// the first violation with its row and constraint index.
func checkAirConstraints(name string, cs *air.ConstraintSystem, prep, main *matrix.Dense, publics []fr.Element, log zerolog.Logger) error {
	n := main.Height()
	ev := air.NewEvaluator(cs)
	in := &air.EvalInput{
		Publics:    utils.LiftSlice(publics),
		Challenges: make([]ext.E4, cs.NumChallenges),
		Exposed:    make([]ext.E4, cs.NumExposed),
	}

	var one ext.E4
	one.SetOne()
	for r := 0; r < n; r++ {
		next := r + 1
		if next == n {
			next = 0
		}
		in.MainLocal = utils.LiftSlice(main.Row(r))
		in.MainNext = utils.LiftSlice(main.Row(next))
		if prep != nil {
			in.PreprocessedLocal = utils.LiftSlice(prep.Row(r))
			in.PreprocessedNext = utils.LiftSlice(prep.Row(next))
		}
		in.IsFirst = ext.E4{}
		in.IsLast = ext.E4{}
		in.IsTransition = ext.E4{}
		if r == 0 {
			in.IsFirst = one
		}
		if r == n-1 {
			in.IsLast = one
		} else {
			in.IsTransition = one
		}

		for k, v := range ev.ConstraintValues(in) {
			if !v.IsZero() {
				log.Error().Str("air", name).Int("constraint", k).Int("row", r).Msg("constraint violated")
				return fmt.Errorf("air %s: constraint %d violated at row %d", name, k, r)
			}
		}
	}
	return nil
}

// tallyInteractions adds every message of one AIR into the per-bus
// multiset, sends counting positive and receives negative.
func tallyInteractions(buses map[uint16]map[string]fr.Element, cs *air.ConstraintSystem, prep, main *matrix.Dense, publics []fr.Element) error {
	ev, err := air.NewBaseEvaluator(cs)
	if err != nil {
		return err
	}
	n := main.Height()
	row := &air.BaseRow{Publics: publics}
	for r := 0; r < n; r++ {
		next := r + 1
		if next == n {
			next = 0
		}
		row.MainLocal = main.Row(r)
		row.MainNext = main.Row(next)
		if prep != nil {
			row.PreprocessedLocal = prep.Row(r)
			row.PreprocessedNext = prep.Row(next)
		}
		ev.EvalRow(row)

		for _, itx := range cs.Interactions {
			count := ev.Value(itx.Count)
			if count.IsZero() {
				continue
			}
			if itx.Direction == air.Receive {
				count.Neg(&count)
			}
			var key strings.Builder
			for fi, f := range itx.Fields {
				if fi > 0 {
					key.WriteByte(',')
				}
				v := ev.Value(f)
				key.WriteString(v.String())
			}
			msgs := buses[itx.Bus]
			if msgs == nil {
				msgs = make(map[string]fr.Element)
				buses[itx.Bus] = msgs
			}
			net := msgs[key.String()]
			net.Add(&net, &count)
			msgs[key.String()] = net
		}
	}
	return nil
}
