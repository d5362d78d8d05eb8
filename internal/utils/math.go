package utils

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Log2Floor returns the floor of log2(n). It panics for n <= 0.
func Log2Floor[T constraints.Integer](n T) int {
	if n <= 0 {
		panic("log2 of non-positive value")
	}
	return bits.Len64(uint64(n)) - 1
}

// Log2Ceil returns the ceiling of log2(n). It panics for n <= 0.
func Log2Ceil[T constraints.Integer](n T) int {
	r := Log2Floor(n)
	if n&(n-1) != 0 {
		r++
	}
	return r
}

// Log2Strict returns log2(n) and panics if n is not a power of two.
func Log2Strict[T constraints.Integer](n T) int {
	if !IsPowerOfTwo(n) {
		panic("value is not a power of two")
	}
	return Log2Floor(n)
}

// IsPowerOfTwo returns true if n is a (positive) power of two.
func IsPowerOfTwo[T constraints.Integer](n T) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo[T constraints.Integer](n T) T {
	if n <= 1 {
		return 1
	}
	return T(1) << Log2Ceil(n)
}

// ReverseBits returns v with its low nbBits bits reversed.
func ReverseBits(v uint64, nbBits int) uint64 {
	return bits.Reverse64(v) >> (64 - uint(nbBits))
}
