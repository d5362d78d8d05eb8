package challenger

import (
	"encoding/binary"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	"golang.org/x/crypto/sha3"
)

// shakePermutation scrambles the sponge state through SHAKE128: the state is
// serialized in canonical form, hashed, and refilled from the output stream.
type shakePermutation struct{}

func (shakePermutation) Permute(state *[Width]fr.Element) {
	var buf [Width * 4]byte
	for i := range state {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(state[i].Uint64()))
	}
	h := sha3.NewShake128()
	h.Write(buf[:])
	var chunk [8]byte
	for i := range state {
		h.Read(chunk[:])
		state[i].SetUint64(binary.LittleEndian.Uint64(chunk[:]))
	}
}
