// Package interaction implements the logUp bus argument: chips exchange
// messages over shared buses, and a permutation trace of fingerprint
// reciprocals proves that every message sent is received with matching
// multiplicity.
package interaction

import "fmt"

// BusAllocator hands out bus indices and records the arity declared for
// each. It is scoped to one key generation and is not safe for concurrent
// use.
type BusAllocator struct {
	arities []int
}

func NewBusAllocator() *BusAllocator {
	return &BusAllocator{}
}

// NewBus allocates the next bus index for messages of the given arity.
func (a *BusAllocator) NewBus(arity int) uint16 {
	if arity <= 0 {
		panic("interaction: bus arity must be positive")
	}
	if len(a.arities) >= 1<<16 {
		panic("interaction: bus index space exhausted")
	}
	a.arities = append(a.arities, arity)
	return uint16(len(a.arities) - 1)
}

// Arity returns the declared arity of a bus.
func (a *BusAllocator) Arity(bus uint16) (int, error) {
	if int(bus) >= len(a.arities) {
		return 0, fmt.Errorf("interaction: bus %d was never allocated", bus)
	}
	return a.arities[bus], nil
}

// NumBuses returns the number of allocated buses.
func (a *BusAllocator) NumBuses() int {
	return len(a.arities)
}
