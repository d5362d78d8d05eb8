// Package stark implements a multi-matrix STARK proving system over the
// koalabear field.
//
// A proof covers a batch of AIRs committed together. Each AIR contributes
// row-local constraints over its own trace and, optionally, interactions on
// shared buses; a logUp permutation argument ties the buses together so that
// every value sent is received with matching multiplicity across the whole
// batch.
//
// The package layout follows the proving pipeline:
//   - air: constraint systems and their symbolic builder
//   - interaction: the logUp bus argument (constraints and witness traces)
//   - challenger: the Fiat-Shamir duplex sponge
//   - commit, fri: the two-adic polynomial commitment scheme
//   - keygen: per-AIR proving and verifying keys
//   - prover, verifier: proof generation and checking
//
// This root package holds the configuration shared by all stages and the
// proof envelope with its wire encoding.
package stark

import (
	"github.com/blang/semver/v4"
)

// Version of the proving system. Serialized keys embed it; readers reject
// versions whose major differs from their own.
var Version = semver.MustParse("0.1.0")
