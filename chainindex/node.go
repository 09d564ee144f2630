package chainindex

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/chainwork"
	"github.com/lightninglabs/spvchain/retarget"
)

// noParent marks the genesis node in the arena.
const noParent = -1

// Node is a read-only snapshot of an indexed header.
type Node struct {
	// Hash is the header's block hash.
	Hash chainhash.Hash

	// Header is the decoded header.
	Header blockheader.Header

	// Height is the number of ancestors of the header.
	Height uint32

	// Work is the cumulative work from genesis up to and including this
	// header.
	Work chainwork.Work
}

// node is an arena entry. Parents are referenced by arena position so that
// the index owns all nodes and no node points into another.
type node struct {
	hash   chainhash.Hash
	header blockheader.Header
	height uint32
	work   chainwork.Work
	parent int

	// seq is the insertion order of the node, lower is seen first.
	seq uint64
}

func (n *node) view() Node {
	return Node{
		Hash:   n.hash,
		Header: n.header,
		Height: n.height,
		Work:   n.work,
	}
}

// nodeCtx exposes an arena node to the retargeter.
type nodeCtx struct {
	idx *Index
	pos int
}

// A compile-time check to ensure nodeCtx implements retarget.HeaderCtx.
var _ retarget.HeaderCtx = (*nodeCtx)(nil)

func (c *nodeCtx) node() *node {
	return &c.idx.nodes[c.pos]
}

// Height returns the height of the node.
func (c *nodeCtx) Height() uint32 {
	return c.node().height
}

// Bits returns the node's declared compact target.
func (c *nodeCtx) Bits() uint32 {
	return c.node().header.Bits
}

// Timestamp returns the node's header time.
func (c *nodeCtx) Timestamp() uint32 {
	return c.node().header.Timestamp
}

// Parent returns the node's parent or nil at genesis.
func (c *nodeCtx) Parent() retarget.HeaderCtx {
	parent := c.node().parent
	if parent == noParent {
		return nil
	}

	return &nodeCtx{idx: c.idx, pos: parent}
}

// RelativeAncestorCtx returns the ancestor distance blocks back. Once the
// walk reaches the best chain it jumps straight to the target height.
func (c *nodeCtx) RelativeAncestorCtx(distance uint32) retarget.HeaderCtx {
	n := c.node()
	if distance > n.height {
		return nil
	}
	target := n.height - distance

	pos := c.pos
	for c.idx.nodes[pos].height > target {
		if c.idx.onBestChain(pos) {
			pos = c.idx.best[target]
			break
		}
		pos = c.idx.nodes[pos].parent
	}

	return &nodeCtx{idx: c.idx, pos: pos}
}
