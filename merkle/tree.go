package merkle

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrLeafIndex is returned when a proof is requested for a leaf that does
// not exist.
var ErrLeafIndex = errors.New("leaf index out of range")

// Root computes the merkle root of leaves the way Bitcoin does, duplicating
// the last node of odd sized levels. mutated is true when two equal
// adjacent nodes were hashed together anywhere in the tree, which means
// another leaf list produces the same root. The root of no leaves is the
// zero hash.
func Root(leaves []chainhash.Hash) (root chainhash.Hash, mutated bool) {
	if len(leaves) == 0 {
		return chainhash.Hash{}, false
	}

	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		for i := 0; i+1 < len(level); i += 2 {
			if level[i] == level[i+1] {
				mutated = true
			}
		}

		level = nextLevel(level)
	}

	return level[0], mutated
}

// BuildProof returns the path proving leaves[index]. Leaves whose path
// needs a node paired with itself, the last leaf of an odd sized level or a
// duplicated leaf, cannot be proven and yield ErrMalformedProof.
func BuildProof(leaves []chainhash.Hash, index int) (*Proof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("%w: %d of %d", ErrLeafIndex, index,
			len(leaves))
	}

	level := make([]chainhash.Hash, len(leaves))
	copy(level, leaves)

	proof := &Proof{}
	for depth := 0; len(level) > 1; depth++ {
		sibling := index ^ 1
		if sibling >= len(level) || level[sibling] == level[index] {
			return nil, fmt.Errorf("%w: leaf %d pairs with itself "+
				"at level %d", ErrMalformedProof, index, depth)
		}

		proof.Steps = append(proof.Steps, Step{
			Sibling:        level[sibling],
			SiblingIsRight: index%2 == 0,
		})

		level = nextLevel(level)
		index /= 2
	}

	return proof, nil
}

// nextLevel hashes a tree level into its parent level, pairing a trailing
// odd node with itself.
func nextLevel(level []chainhash.Hash) []chainhash.Hash {
	if len(level)%2 == 1 {
		level = append(level, level[len(level)-1])
	}

	next := make([]chainhash.Hash, len(level)/2)
	for i := range next {
		next[i] = HashPair(&level[2*i], &level[2*i+1])
	}

	return next
}
