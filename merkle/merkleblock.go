package merkle

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// maxBlockTransactions bounds the transaction count a merkleblock may
// claim: the maximum block weight divided by the smallest transaction
// weight.
const maxBlockTransactions = 4_000_000 / 240

// ErrBadMerkleBlock is returned when a BIP 37 partial merkle tree is
// inconsistent with itself or with its header.
var ErrBadMerkleBlock = errors.New("bad merkleblock")

// Match is a transaction proven by a merkleblock.
type Match struct {
	// TxID is the matched transaction hash.
	TxID chainhash.Hash

	// Index is the transaction's position in the block.
	Index uint32

	// Proof links TxID to the block's merkle root.
	Proof *Proof
}

// BlockMatches holds the transactions a merkleblock proves.
type BlockMatches struct {
	// BlockHash is the hash of the merkleblock's header.
	BlockHash chainhash.Hash

	// Matches are the matched transactions that have a proof.
	Matches []Match

	// Unprovable are matched transactions whose path pairs a node with
	// itself. They are committed to by the header but Verify refuses
	// such paths.
	Unprovable []chainhash.Hash
}

// nodePos addresses a node of the partial tree, height 0 being the
// leaves.
type nodePos struct {
	height uint32
	pos    uint32
}

// partialTree walks the depth first encoding of a BIP 37 partial merkle
// tree.
type partialTree struct {
	numTx  uint32
	hashes []*chainhash.Hash
	flags  []byte

	bitsUsed   int
	hashesUsed int

	// nodes keeps every hash seen or computed, so proofs can be read
	// back after the walk.
	nodes   map[nodePos]chainhash.Hash
	matches []nodePos
}

func (t *partialTree) width(height uint32) uint32 {
	return uint32((uint64(t.numTx) + (1 << height) - 1) >> height)
}

func (t *partialTree) nextBit() (bool, error) {
	if t.bitsUsed >= len(t.flags)*8 {
		return false, fmt.Errorf("%w: ran out of flag bits",
			ErrBadMerkleBlock)
	}

	bit := t.flags[t.bitsUsed/8]&(1<<(t.bitsUsed%8)) != 0
	t.bitsUsed++

	return bit, nil
}

func (t *partialTree) nextHash() (chainhash.Hash, error) {
	if t.hashesUsed >= len(t.hashes) {
		return chainhash.Hash{}, fmt.Errorf("%w: ran out of hashes",
			ErrBadMerkleBlock)
	}

	hash := *t.hashes[t.hashesUsed]
	t.hashesUsed++

	return hash, nil
}

// traverse returns the hash of the node at (height, pos), consuming flag
// bits and hashes in depth first order.
func (t *partialTree) traverse(height, pos uint32) (chainhash.Hash, error) {
	parentOfMatch, err := t.nextBit()
	if err != nil {
		return chainhash.Hash{}, err
	}

	at := nodePos{height: height, pos: pos}

	// Pruned subtrees and leaves carry their hash directly.
	if height == 0 || !parentOfMatch {
		hash, err := t.nextHash()
		if err != nil {
			return chainhash.Hash{}, err
		}
		if height == 0 && parentOfMatch {
			t.matches = append(t.matches, at)
		}
		t.nodes[at] = hash

		return hash, nil
	}

	left, err := t.traverse(height-1, pos*2)
	if err != nil {
		return chainhash.Hash{}, err
	}

	right := left
	if pos*2+1 < t.width(height-1) {
		right, err = t.traverse(height-1, pos*2+1)
		if err != nil {
			return chainhash.Hash{}, err
		}

		if right == left {
			return chainhash.Hash{}, fmt.Errorf("%w: duplicate "+
				"right child at height %d", ErrBadMerkleBlock,
				height-1)
		}
	}

	hash := HashPair(&left, &right)
	t.nodes[at] = hash

	return hash, nil
}

// proof reads back the path of a matched leaf. ok is false when the path
// pairs a node with itself.
func (t *partialTree) proof(leaf nodePos, treeHeight uint32) (*Proof, bool) {
	proof := &Proof{}

	pos := leaf.pos
	for height := uint32(0); height < treeHeight; height++ {
		siblingPos := pos ^ 1
		if siblingPos >= t.width(height) {
			return nil, false
		}

		sibling, ok := t.nodes[nodePos{height: height, pos: siblingPos}]
		if !ok {
			return nil, false
		}

		proof.Steps = append(proof.Steps, Step{
			Sibling:        sibling,
			SiblingIsRight: pos%2 == 0,
		})
		pos >>= 1
	}

	return proof, true
}

// ExtractProofs validates the partial merkle tree of a BIP 37 merkleblock
// against its header and returns a proof for every matched transaction.
// The header itself is not validated; callers check it through the chain.
func ExtractProofs(mb *wire.MsgMerkleBlock) (*BlockMatches, error) {
	switch {
	case mb.Transactions == 0:
		return nil, fmt.Errorf("%w: no transactions", ErrBadMerkleBlock)

	case mb.Transactions > maxBlockTransactions:
		return nil, fmt.Errorf("%w: %d transactions exceeds %d",
			ErrBadMerkleBlock, mb.Transactions,
			maxBlockTransactions)

	case uint32(len(mb.Hashes)) > mb.Transactions:
		return nil, fmt.Errorf("%w: %d hashes for %d transactions",
			ErrBadMerkleBlock, len(mb.Hashes), mb.Transactions)

	case len(mb.Flags)*8 < len(mb.Hashes):
		return nil, fmt.Errorf("%w: %d flag bytes for %d hashes",
			ErrBadMerkleBlock, len(mb.Flags), len(mb.Hashes))
	}

	t := &partialTree{
		numTx:  mb.Transactions,
		hashes: mb.Hashes,
		flags:  mb.Flags,
		nodes:  make(map[nodePos]chainhash.Hash),
	}

	var treeHeight uint32
	for t.width(treeHeight) > 1 {
		treeHeight++
	}

	root, err := t.traverse(treeHeight, 0)
	if err != nil {
		return nil, err
	}

	switch {
	case t.hashesUsed != len(t.hashes):
		return nil, fmt.Errorf("%w: %d of %d hashes unused",
			ErrBadMerkleBlock, len(t.hashes)-t.hashesUsed,
			len(t.hashes))

	case (t.bitsUsed+7)/8 != len(t.flags):
		return nil, fmt.Errorf("%w: unused flag bytes",
			ErrBadMerkleBlock)

	case root != mb.Header.MerkleRoot:
		return nil, fmt.Errorf("%w: computed root %v, header commits "+
			"to %v", ErrBadMerkleBlock, root, mb.Header.MerkleRoot)
	}

	matches := &BlockMatches{BlockHash: mb.Header.BlockHash()}
	for _, leaf := range t.matches {
		txid := t.nodes[leaf]

		proof, ok := t.proof(leaf, treeHeight)
		if !ok {
			matches.Unprovable = append(matches.Unprovable, txid)
			continue
		}

		matches.Matches = append(matches.Matches, Match{
			TxID:  txid,
			Index: leaf.pos,
			Proof: proof,
		})
	}

	log.Debugf("Merkleblock %v proves %d transactions, %d unprovable",
		matches.BlockHash, len(matches.Matches),
		len(matches.Unprovable))

	return matches, nil
}
