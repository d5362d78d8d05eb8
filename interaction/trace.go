package interaction

import (
	"errors"

	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/internal/utils"
	"github.com/consensys/go-stark/matrix"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

// GenerateTrace builds the permutation trace of an AIR for one challenge
// pair. Column k holds the signed reciprocal of interaction k's fingerprint,
// the final column the running sum of all reciprocals. The second return is
// the AIR's cumulative sum, the running sum at the last row.
//
// The next-row window wraps: offset-1 reads on the last row see row 0.
func GenerateTrace(cs *air.ConstraintSystem, preprocessed, main *matrix.Dense, publics []fr.Element, beta, gamma ext.E4) (*matrix.DenseExt, ext.E4, error) {
	m := len(cs.Interactions)
	if m == 0 {
		return nil, ext.E4{}, nil
	}
	if _, err := air.NewBaseEvaluator(cs); err != nil {
		return nil, ext.E4{}, err
	}
	n := main.Height()

	maxFields, maxBus := 0, 0
	for _, itx := range cs.Interactions {
		if len(itx.Fields) > maxFields {
			maxFields = len(itx.Fields)
		}
		if int(itx.Bus) > maxBus {
			maxBus = int(itx.Bus)
		}
	}
	betaPows := utils.PowersE4(beta, maxBus+2)
	gammaPows := utils.PowersE4(gamma, maxFields)

	denoms := make([]ext.E4, n*m)
	counts := make([]fr.Element, n*m)

	utils.Parallelize(n, func(start, end int) {
		ev, _ := air.NewBaseEvaluator(cs)
		row := &air.BaseRow{Publics: publics}
		for i := start; i < end; i++ {
			next := i + 1
			if next == n {
				next = 0
			}
			row.MainLocal = main.Row(i)
			row.MainNext = main.Row(next)
			if preprocessed != nil {
				row.PreprocessedLocal = preprocessed.Row(i)
				row.PreprocessedNext = preprocessed.Row(next)
			}
			ev.EvalRow(row)

			for k, itx := range cs.Interactions {
				var fp ext.E4
				for j, f := range itx.Fields {
					v := ev.Value(f)
					var term ext.E4
					term.MulByElement(&gammaPows[j], &v)
					fp.Add(&fp, &term)
				}
				var denom ext.E4
				denom.Sub(&betaPows[itx.Bus+1], &fp)
				denoms[i*m+k] = denom

				c := ev.Value(itx.Count)
				if itx.Direction == air.Receive {
					c.Neg(&c)
				}
				counts[i*m+k] = c
			}
		}
	})

	for i := range denoms {
		if denoms[i].IsZero() {
			return nil, ext.E4{}, errors.New("interaction: zero fingerprint denominator")
		}
	}
	invs := utils.BatchInvertE4(denoms)

	perm := matrix.NewDenseExt(m+1, n)
	utils.Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			row := perm.Row(i)
			for k := 0; k < m; k++ {
				row[k].MulByElement(&invs[i*m+k], &counts[i*m+k])
			}
		}
	})

	var running ext.E4
	for i := 0; i < n; i++ {
		row := perm.Row(i)
		for k := 0; k < m; k++ {
			running.Add(&running, &row[k])
		}
		row[m] = running
	}
	return perm, running, nil
}
