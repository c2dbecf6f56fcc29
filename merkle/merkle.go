// Package merkle builds binary sha256 Merkle trees over a fixed list of leaves.
// Internal nodes hash the concatenation of their children. A level with an odd
// number of nodes pairs its last node with itself.
package merkle

import (
	"errors"
	"fmt"

	"github.com/btcl2/l2node/common/types"
)

// ErrIndexOutOfRange is returned by Proof for an index without a leaf.
var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// EmptyRoot is the root of a tree without leaves.
var EmptyRoot = types.CalcHash32()

// Side tells on which side of the running hash a proof sibling goes.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Step is one sibling on the path from a leaf to the root.
type Step struct {
	Hash types.Hash32 `json:"hash"`
	Side Side         `json:"side"`
}

// Proof is the authentication path of a leaf, leaf level first.
type Proof struct {
	Index uint64 `json:"index"`
	Steps []Step `json:"steps"`
}

// Tree keeps every level so proofs can be produced without rehashing.
type Tree struct {
	levels [][]types.Hash32
}

// New builds the tree. leaves is not retained.
func New(leaves []types.Hash32) *Tree {
	level := append([]types.Hash32(nil), leaves...)
	t := &Tree{levels: [][]types.Hash32{level}}
	for len(level) > 1 {
		next := make([]types.Hash32, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, parent(level[i], right))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

func parent(left, right types.Hash32) types.Hash32 {
	return types.CalcHash32(left[:], right[:])
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.levels[0])
}

// Root returns EmptyRoot for an empty tree and the leaf itself for a single
// leaf tree.
func (t *Tree) Root() types.Hash32 {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return EmptyRoot
	}
	return top[0]
}

// Proof returns the path of leaf i.
func (t *Tree) Proof(i int) (Proof, error) {
	if i < 0 || i >= t.Len() {
		return Proof{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, t.Len())
	}
	proof := Proof{Index: uint64(i)}
	idx := i
	for _, level := range t.levels[:len(t.levels)-1] {
		var step Step
		if idx%2 == 0 {
			step.Side = Right
			step.Hash = level[idx]
			if idx+1 < len(level) {
				step.Hash = level[idx+1]
			}
		} else {
			step.Side = Left
			step.Hash = level[idx-1]
		}
		proof.Steps = append(proof.Steps, step)
		idx /= 2
	}
	return proof, nil
}

// Root recomputes the root committed to by the proof for leaf.
func (p Proof) Root(leaf types.Hash32) types.Hash32 {
	acc := leaf
	for _, step := range p.Steps {
		if step.Side == Left {
			acc = parent(step.Hash, acc)
		} else {
			acc = parent(acc, step.Hash)
		}
	}
	return acc
}

// Verify checks that leaf is committed to by root through proof.
func Verify(leaf types.Hash32, proof Proof, root types.Hash32) bool {
	return proof.Root(leaf) == root
}

// Root is a shortcut for New(leaves).Root().
func Root(leaves []types.Hash32) types.Hash32 {
	return New(leaves).Root()
}
