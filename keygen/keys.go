package keygen

import (
	"fmt"
	"io"
	"math"

	"github.com/blang/semver/v4"
	"github.com/fxamacker/cbor/v2"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/air"
	"github.com/consensys/go-stark/commit"
	"github.com/consensys/go-stark/logger"
	"github.com/consensys/go-stark/matrix"
)

// AirVerifyingKey is the per-AIR half of the verifying key.
type AirVerifyingKey struct {
	Name             string                `cbor:"1,keyasint"`
	ConstraintSystem *air.ConstraintSystem `cbor:"2,keyasint"`

	// PreprocessedCommit is nil for AIRs without a preprocessed trace.
	PreprocessedCommit *commit.Commitment `cbor:"3,keyasint,omitempty"`

	// PreprocessedHeight pins the trace height of AIRs with a
	// preprocessed trace; zero otherwise.
	PreprocessedHeight int `cbor:"4,keyasint,omitempty"`

	// QuotientDegree is the number of quotient chunks.
	QuotientDegree int `cbor:"5,keyasint"`

	// CachedMainWidths lists the column count of each cached main
	// partition; empty for AIRs with a single main matrix.
	CachedMainWidths []int `cbor:"6,keyasint,omitempty"`
}

// HasPreprocessed reports whether the AIR carries a preprocessed trace.
func (avk *AirVerifyingKey) HasPreprocessed() bool {
	return avk.PreprocessedCommit != nil
}

// CommonMainWidth returns the number of main columns outside the cached
// partitions.
func (avk *AirVerifyingKey) CommonMainWidth() int {
	w := avk.ConstraintSystem.MainWidth
	for _, cw := range avk.CachedMainWidths {
		w -= cw
	}
	return w
}

// VerifyingKey verifies proofs for one frozen batch of AIRs.
type VerifyingKey struct {
	Version string `cbor:"1,keyasint"`

	// LogBlowup is the pcs extension factor keys were generated against,
	// or -1 when the scheme did not report one.
	LogBlowup int `cbor:"2,keyasint"`

	MaxConstraintDegree int `cbor:"3,keyasint"`

	PerAir []AirVerifyingKey `cbor:"4,keyasint"`
}

// NumAirs returns the number of AIRs in the batch.
func (vk *VerifyingKey) NumAirs() int { return len(vk.PerAir) }

// NumInteractiveAirs returns how many AIRs put messages on a bus.
func (vk *VerifyingKey) NumInteractiveAirs() int {
	n := 0
	for i := range vk.PerAir {
		if vk.PerAir[i].ConstraintSystem.HasInteractions() {
			n++
		}
	}
	return n
}

// AirProvingKey is the per-AIR half of the proving key. It is not
// serializable; proving keys are regenerated from the AIRs.
type AirProvingKey struct {
	Air               air.Air
	PreprocessedTrace *matrix.Dense
	PreprocessedData  commit.ProverData
}

// ProvingKey drives proof generation for one frozen batch of AIRs.
type ProvingKey struct {
	Vk     *VerifyingKey
	PerAir []AirProvingKey
}

// WriteTo serializes the verifying key as a single deterministic CBOR item.
func (vk *VerifyingKey) WriteTo(w io.Writer) (int64, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return 0, err
	}
	data, err := em.Marshal(vk)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFrom deserializes a verifying key written by WriteTo. It consumes the
// reader. Keys from a different major version are rejected; other version
// skews log a warning.
func (vk *VerifyingKey) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	dm, err := cbor.DecOptions{
		MaxArrayElements: math.MaxInt32,
		MaxMapPairs:      math.MaxInt32,
	}.DecMode()
	if err != nil {
		return int64(len(data)), err
	}
	if err := dm.Unmarshal(data, vk); err != nil {
		return int64(len(data)), err
	}
	if err := vk.checkVersion(); err != nil {
		return int64(len(data)), err
	}
	return int64(len(data)), nil
}

func (vk *VerifyingKey) checkVersion() error {
	objectVersion, err := semver.Parse(vk.Version)
	if err != nil {
		return fmt.Errorf("keygen: parsing key version: %w", err)
	}
	if objectVersion.Major != stark.Version.Major {
		return fmt.Errorf("keygen: incompatible key version %s (binary %s)", objectVersion, stark.Version)
	}
	if !objectVersion.Equals(stark.Version) {
		log := logger.Logger()
		log.Warn().Str("binary", stark.Version.String()).Str("object", objectVersion.String()).Msg("verifying key version mismatch with binary")
	}
	return nil
}
