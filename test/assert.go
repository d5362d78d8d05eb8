// Package test provides helpers to exercise AIRs end to end: key
// generation, proving, verification and serialization round trips behind a
// single call.
package test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/keygen"
	"github.com/consensys/go-stark/prover"
	"github.com/consensys/go-stark/verifier"
)

// Assert is a helper to test AIRs.
type Assert struct {
	t *testing.T
	*require.Assertions
}

// NewAssert returns an Assert helper embedding a testify/require object for
// convenience.
func NewAssert(t *testing.T) *Assert {
	return &Assert{t: t, Assertions: require.New(t)}
}

// Run runs the test function fn as a subtest. The subtest is parametrized
// by the description strings descs.
func (assert *Assert) Run(fn func(assert *Assert), descs ...string) {
	desc := strings.Join(descs, "/")
	assert.t.Run(desc, func(t *testing.T) {
		t.Parallel()
		fn(&Assert{t, require.New(t)})
	})
}

// Log logs using the test instance logger.
func (assert *Assert) Log(v ...any) {
	assert.t.Log(v...)
}

// Prove freezes the chips returned by setup into keys, proves their traces
// and returns the proof with its verifying key. Verification is left to
// the caller. The setup function receives the builder so chips can
// allocate buses before registration; chips are registered in the order
// returned.
func (assert *Assert) Prove(cfg *stark.Config, setup func(b *keygen.Builder) []prover.Chip, opts ...prover.Option) (*stark.Proof, *keygen.VerifyingKey) {
	b, err := keygen.NewBuilder(cfg)
	assert.NoError(err)

	chips := setup(b)
	for _, chip := range chips {
		b.AddAir(chip.Air())
	}
	pk, vk, err := b.Keygen()
	assert.NoError(err, "key generation failed")

	p, err := prover.New(cfg, opts...)
	assert.NoError(err)
	proof, err := p.Prove(pk, chips)
	assert.NoError(err, "proving failed")
	return proof, vk
}

// ProofSucceeded proves the chips returned by setup and requires the proof
// to verify. The raw traces are checked against the constraint systems
// before proving, and both the proof and the verifying key must survive a
// serialization round trip. The proof is returned for further inspection.
func (assert *Assert) ProofSucceeded(cfg *stark.Config, setup func(b *keygen.Builder) []prover.Chip) *stark.Proof {
	proof, vk := assert.Prove(cfg, setup, prover.WithDebugConstraints())
	assert.NoError(verifier.Verify(cfg, vk, proof), "verification failed")
	assert.proofRoundTrip(proof)
	assert.vkRoundTrip(vk)
	return proof
}

// ProofRejected proves the chips returned by setup and requires
// verification to fail with the target error. The raw-trace debug check is
// skipped so that unsatisfiable traces still produce a proof.
func (assert *Assert) ProofRejected(cfg *stark.Config, target error, setup func(b *keygen.Builder) []prover.Chip) {
	proof, vk := assert.Prove(cfg, setup)
	err := verifier.Verify(cfg, vk, proof)
	assert.Error(err, "invalid proof verified")
	assert.ErrorIs(err, target)
}

// proofRoundTrip serializes the proof, deserializes it and requires the
// copy to match, both structurally and when re-serialized.
func (assert *Assert) proofRoundTrip(proof *stark.Proof) {
	var buf bytes.Buffer
	n, err := proof.WriteTo(&buf)
	assert.NoError(err)
	assert.EqualValues(buf.Len(), n)

	var back stark.Proof
	m, err := back.ReadFrom(bytes.NewReader(buf.Bytes()))
	assert.NoError(err)
	assert.Equal(n, m)

	// The wire format does not distinguish nil from empty slices.
	opts := cmpopts.EquateEmpty()
	assert.Empty(cmp.Diff(proof.PerAir, back.PerAir, opts), "per-air data changed across serialization")
	assert.Empty(cmp.Diff(proof.Commitments, back.Commitments, opts), "commitments changed across serialization")
	assert.Empty(cmp.Diff(proof.Opening.Values, back.Opening.Values, opts), "opened values changed across serialization")

	var again bytes.Buffer
	_, err = back.WriteTo(&again)
	assert.NoError(err)
	assert.True(bytes.Equal(buf.Bytes(), again.Bytes()), "serialization is not stable across a round trip")
}

// vkRoundTrip serializes the verifying key and requires the deserialized
// copy to re-serialize to the same bytes. The encoding is deterministic,
// so byte equality implies key equality.
func (assert *Assert) vkRoundTrip(vk *keygen.VerifyingKey) {
	var buf bytes.Buffer
	_, err := vk.WriteTo(&buf)
	assert.NoError(err)

	var back keygen.VerifyingKey
	_, err = back.ReadFrom(bytes.NewReader(buf.Bytes()))
	assert.NoError(err)

	var again bytes.Buffer
	_, err = back.WriteTo(&again)
	assert.NoError(err)
	assert.True(bytes.Equal(buf.Bytes(), again.Bytes()), "verifying key changed across serialization")
}
