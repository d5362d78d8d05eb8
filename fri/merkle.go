package fri

import (
	"encoding/binary"
	"fmt"

	fr "github.com/consensys/gnark-crypto/field/koalabear"
	"golang.org/x/crypto/sha3"
)

// The batch tree commits matrices of mixed heights: the tallest group forms
// the leaves, and each shorter group is folded in at the level whose node
// count matches its height, as node = H(node || rowDigest).

type digest = [32]byte

func appendRow(buf []byte, row []fr.Element) []byte {
	for i := range row {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(row[i].Uint64()))
	}
	return buf
}

// hashRows digests the concatenation of several rows.
func hashRows(rows ...[]fr.Element) digest {
	var buf []byte
	for _, row := range rows {
		buf = appendRow(buf, row)
	}
	return sha3.Sum256(buf)
}

func compress(left, right digest) digest {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return sha3.Sum256(buf[:])
}

func injectDigest(node, rows digest) digest {
	return compress(node, rows)
}

// tree is a binary hash tree over 2^logMax leaves with optional injected row
// digests at lower levels. levels[k] holds the nodes of size 2^(logMax-k),
// after injection at that size.
type tree struct {
	logMax int
	levels [][]digest
}

// newTree builds the tree. inject maps a log size to the per-node row
// digests folded in at that size.
func newTree(leaves []digest, inject map[int][]digest) *tree {
	logMax := 0
	for 1<<logMax < len(leaves) {
		logMax++
	}
	if 1<<logMax != len(leaves) {
		panic("fri: leaf count must be a power of two")
	}
	t := &tree{logMax: logMax}
	nodes := leaves
	t.levels = append(t.levels, nodes)
	for s := logMax; s > 0; s-- {
		next := make([]digest, len(nodes)/2)
		for i := range next {
			next[i] = compress(nodes[2*i], nodes[2*i+1])
		}
		if rows, ok := inject[s-1]; ok {
			for i := range next {
				next[i] = injectDigest(next[i], rows[i])
			}
		}
		nodes = next
		t.levels = append(t.levels, nodes)
	}
	return t
}

func (t *tree) root() digest {
	return t.levels[len(t.levels)-1][0]
}

// path returns the sibling digests of leaf index, from the leaf level up.
func (t *tree) path(index int) []digest {
	path := make([]digest, 0, t.logMax)
	for k := 0; k < t.logMax; k++ {
		nodes := t.levels[k]
		path = append(path, nodes[index^1])
		index >>= 1
	}
	return path
}

// verifyPath replays a leaf digest up to the root. inject maps a log size to
// the row digest folded in at that size.
func verifyPath(root digest, logMax, index int, leaf digest, inject map[int]digest, path []digest) error {
	if len(path) != logMax {
		return fmt.Errorf("fri: path length %d, want %d", len(path), logMax)
	}
	cur := leaf
	for s := logMax; s > 0; s-- {
		sib := path[logMax-s]
		if index&1 == 1 {
			cur = compress(sib, cur)
		} else {
			cur = compress(cur, sib)
		}
		index >>= 1
		if rows, ok := inject[s-1]; ok {
			cur = injectDigest(cur, rows)
		}
	}
	if cur != root {
		return fmt.Errorf("fri: root mismatch")
	}
	return nil
}
