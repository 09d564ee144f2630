package merkle

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MaxProofDepth is the deepest proof accepted. A block cannot hold more
// than 2^32 transactions, so no valid path is longer.
const MaxProofDepth = 32

// ErrMalformedProof is returned for proofs that can never be valid: proofs
// deeper than MaxProofDepth and proofs in which a node is paired with
// itself.
//
// Bitcoin duplicates the last node of an odd sized level when building a
// merkle tree. That makes a tree over [.., a, b, c] and one over
// [.., a, b, c, c] share a root (CVE-2012-2459), so any proof step whose
// sibling equals the running hash is refused outright.
var ErrMalformedProof = errors.New("malformed merkle proof")

// Step is one level of a merkle path.
type Step struct {
	// Sibling is the hash combined with the running hash at this level.
	Sibling chainhash.Hash

	// SiblingIsRight is true when Sibling is the right operand of the
	// combination.
	SiblingIsRight bool
}

// Proof is a merkle path from a leaf up to the root, leaf level first.
type Proof struct {
	Steps []Step
}

// HashPair returns the parent of two merkle nodes, the double SHA-256 of
// their concatenation.
func HashPair(left, right *chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])

	return chainhash.DoubleHashH(buf[:])
}

// Verify folds leaf up the proof and reports whether the result equals
// root. A structurally invalid proof yields ErrMalformedProof instead of a
// plain mismatch.
func Verify(leaf chainhash.Hash, proof *Proof,
	root chainhash.Hash) (bool, error) {

	if proof == nil {
		return false, fmt.Errorf("%w: missing proof", ErrMalformedProof)
	}

	if len(proof.Steps) > MaxProofDepth {
		return false, fmt.Errorf("%w: depth %d exceeds %d",
			ErrMalformedProof, len(proof.Steps), MaxProofDepth)
	}

	current := leaf
	for level, step := range proof.Steps {
		if step.Sibling == current {
			return false, fmt.Errorf("%w: node %v paired with "+
				"itself at level %d", ErrMalformedProof,
				current, level)
		}

		if step.SiblingIsRight {
			current = HashPair(&current, &step.Sibling)
		} else {
			current = HashPair(&step.Sibling, &current)
		}
	}

	return current == root, nil
}
