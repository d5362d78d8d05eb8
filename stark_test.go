package stark

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/fri"
	"github.com/consensys/go-stark/internal/utils"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	ext "github.com/consensys/gnark-crypto/field/koalabear/extensions"
)

func TestNewConfigDefaults(t *testing.T) {
	assert := require.New(t)

	cfg, err := NewConfig()
	assert.NoError(err)
	assert.NotNil(cfg.Pcs)
	assert.NotNil(cfg.NewChallenger)
	assert.Equal(3, cfg.MaxConstraintDegree)

	pcs, ok := cfg.Pcs.(*fri.TwoAdicPcs)
	assert.True(ok)
	assert.Equal(DefaultFriConfig, pcs.Config())
}

func TestConfigOptions(t *testing.T) {
	assert := require.New(t)

	pcs := fri.NewTwoAdicPcs(fri.Config{LogBlowup: 2, NumQueries: 40, PowBits: 4})
	cfg, err := NewConfig(WithPcs(pcs), WithMaxConstraintDegree(5))
	assert.NoError(err)
	assert.Same(pcs, cfg.Pcs)
	assert.Equal(5, cfg.MaxConstraintDegree)

	_, err = NewConfig(WithMaxConstraintDegree(1))
	assert.Error(err)
	_, err = NewConfig(WithPcs(nil))
	assert.Error(err)
	_, err = NewConfig(WithChallenger(nil))
	assert.Error(err)
}

func TestWithFriConfig(t *testing.T) {
	assert := require.New(t)

	friCfg := fri.Config{LogBlowup: 2, NumQueries: 30, PowBits: 2}
	cfg, err := NewConfig(WithFriConfig(friCfg))
	assert.NoError(err)
	pcs, ok := cfg.Pcs.(*fri.TwoAdicPcs)
	assert.True(ok)
	assert.Equal(friCfg, pcs.Config())

	_, err = NewConfig(WithFriConfig(fri.Config{LogBlowup: 0, NumQueries: 30}))
	assert.Error(err)
	_, err = NewConfig(WithFriConfig(fri.Config{LogBlowup: 1, NumQueries: 0}))
	assert.Error(err)
}

func randExts(n int) []ext.E4 {
	es := make([]ext.E4, n)
	for i := range es {
		es[i].MustSetRandom()
	}
	return es
}

// sampleProof builds an envelope with the shape of a two-AIR proof: one AIR
// with a preprocessed trace and interactions, one without.
func sampleProof() *Proof {
	var pow fr.Element
	pow.SetUint64(42)

	var final ext.E4
	final.MustSetRandom()

	pcsProof := &fri.Proof{
		CommitPhaseRoots: []commit.Commitment{{1}, {2}},
		FinalValue:       final,
		PowWitness:       pow,
		Queries: []fri.QueryProof{
			{
				InputOpenings: []fri.BatchOpening{
					{
						Rows: [][]fr.Element{
							{fr.NewElement(7), fr.NewElement(8)},
							{fr.NewElement(9)},
						},
						Path: []fri.Digest{{3}, {4}},
					},
				},
				CommitPhaseOpenings: []fri.LayerOpening{
					{Pair: [2]ext.E4{randExts(1)[0], randExts(1)[0]}, Path: []fri.Digest{{5}}},
				},
			},
		},
	}

	return &Proof{
		Commitments: Commitments{
			Preprocessed:   []commit.Commitment{{10}},
			MainTrace:      []commit.Commitment{{11}, {12}},
			AfterChallenge: []commit.Commitment{{13}},
			Quotient:       commit.Commitment{14},
		},
		Opening: Opening{
			Values: OpenedValues{
				Preprocessed: []AirOpenedValues{
					{Local: randExts(2), Next: randExts(2)},
					{Local: []ext.E4{}, Next: []ext.E4{}},
				},
				Main: [][]AirOpenedValues{
					{{Local: randExts(1), Next: randExts(1)}},
					{{Local: randExts(3), Next: randExts(3)}, {Local: randExts(2), Next: randExts(2)}},
				},
				AfterChallenge: [][]AirOpenedValues{
					{{Local: randExts(4), Next: randExts(4)}},
				},
				Quotient: [][][]ext.E4{
					{randExts(4), randExts(4)},
					{randExts(4)},
				},
			},
			Proof: pcsProof,
		},
		PerAir: []AirProofData{
			{
				AirID:        0,
				Degree:       8,
				PublicValues: []fr.Element{fr.NewElement(1), fr.NewElement(2)},
				ExposedValuesAfterChallenge: [][]ext.E4{
					randExts(1),
				},
			},
			{
				AirID:                       1,
				Degree:                      4,
				PublicValues:                []fr.Element{},
				ExposedValuesAfterChallenge: [][]ext.E4{},
			},
		},
	}
}

func TestProofRoundTrip(t *testing.T) {
	assert := require.New(t)

	proof := sampleProof()

	var buf bytes.Buffer
	n, err := proof.WriteTo(&buf)
	assert.NoError(err)
	assert.Equal(int64(buf.Len()), n)

	var back Proof
	m, err := back.ReadFrom(bytes.NewReader(buf.Bytes()))
	assert.NoError(err)
	assert.Equal(n, m)

	assert.Equal(proof.Commitments, back.Commitments)
	assert.Equal(proof.PerAir, back.PerAir)
	assert.Equal(proof.Opening.Values, back.Opening.Values)
	assert.Equal(proof.Opening.Proof, back.Opening.Proof)
}

func TestProofRoundTripIsIdentityOnBytes(t *testing.T) {
	assert := require.New(t)

	var buf bytes.Buffer
	_, err := sampleProof().WriteTo(&buf)
	assert.NoError(err)

	var back Proof
	_, err = back.ReadFrom(bytes.NewReader(buf.Bytes()))
	assert.NoError(err)

	var again bytes.Buffer
	_, err = back.WriteTo(&again)
	assert.NoError(err)
	assert.Equal(buf.Bytes(), again.Bytes())
}

func extFromLimbs(a, b, c, d uint64) ext.E4 {
	return utils.Unflatten([4]fr.Element{
		fr.NewElement(a), fr.NewElement(b), fr.NewElement(c), fr.NewElement(d),
	})
}

// TestProofGoldenBytes pins the wire format of a minimal envelope. A byte
// moving here is a breaking protocol change.
func TestProofGoldenBytes(t *testing.T) {
	assert := require.New(t)

	proof := &Proof{
		Commitments: Commitments{
			MainTrace: []commit.Commitment{{0x11}},
			Quotient:  commit.Commitment{0x22},
		},
		Opening: Opening{
			Values: OpenedValues{
				Main: [][]AirOpenedValues{{{
					Local: []ext.E4{extFromLimbs(5, 6, 7, 8)},
					Next:  []ext.E4{extFromLimbs(9, 10, 11, 12)},
				}}},
				Quotient: [][][]ext.E4{{{extFromLimbs(13, 14, 15, 16)}}},
			},
			Proof: &fri.Proof{
				FinalValue: extFromLimbs(17, 18, 19, 20),
				PowWitness: fr.NewElement(21),
			},
		},
		PerAir: []AirProofData{{
			AirID:                       0,
			Degree:                      4,
			PublicValues:                []fr.Element{fr.NewElement(7)},
			ExposedValuesAfterChallenge: [][]ext.E4{{extFromLimbs(1, 2, 3, 4)}},
		}},
	}

	var buf bytes.Buffer
	_, err := proof.WriteTo(&buf)
	assert.NoError(err)

	pad := strings.Repeat("00", 31)
	want := "01000000" + // one AIR
		"00000000" + "04000000" + // id 0, degree 4
		"0100000007000000" + // one public value, 7
		"01000000" + "0100000001000000020000000300000004000000" + // one phase, one exposed value
		"00000000" + // no preprocessed commitments
		"01000000" + "11" + pad + // one main commitment
		"00000000" + // no after-challenge commitments
		"22" + pad + // quotient commitment
		"00000000" + // no preprocessed openings
		"01000000" + "01000000" + // one main group, one matrix
		"0100000005000000060000000700000008000000" + // local values
		"01000000090000000a0000000b0000000c000000" + // next values
		"00000000" + // no after-challenge openings
		"01000000" + "01000000" + // one quotient air, one chunk
		"010000000d0000000e0000000f00000010000000" + // chunk values
		"00000000" + // no commit-phase roots
		"11000000120000001300000014000000" + // final value
		"15000000" + // pow witness
		"00000000" // no queries
	assert.Equal(want, hex.EncodeToString(buf.Bytes()))
}

func TestProofReadFromTruncated(t *testing.T) {
	assert := require.New(t)

	var buf bytes.Buffer
	_, err := sampleProof().WriteTo(&buf)
	assert.NoError(err)

	raw := buf.Bytes()
	for _, cut := range []int{0, 1, 4, len(raw) / 2, len(raw) - 1} {
		var back Proof
		_, err := back.ReadFrom(bytes.NewReader(raw[:cut]))
		assert.Error(err, "cut at %d", cut)
	}
}

func TestProofWriteToRejectsOpaquePcsProof(t *testing.T) {
	assert := require.New(t)

	proof := sampleProof()
	proof.Opening.Proof = struct{}{}

	var buf bytes.Buffer
	_, err := proof.WriteTo(&buf)
	assert.Error(err)
}
