package chainindex

import (
	"github.com/lightninglabs/spvchain/build"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Reorg describes a switch of the best chain to a branch that does not
// contain the previous tip.
type Reorg struct {
	// Fork is the last header shared by the old and the new best chain.
	Fork Node

	// Disconnected lists the headers leaving the best chain, from the
	// old tip down to the header just above Fork.
	Disconnected []Node

	// Connected lists the headers joining the best chain, from the
	// header just above Fork up to the new tip.
	Connected []Node
}

// Depth returns the number of headers that left the best chain.
func (r *Reorg) Depth() int {
	return len(r.Disconnected)
}

// setTip makes the node at pos the tip of the best chain, replacing the
// best chain above the fork point.
func (idx *Index) setTip(pos int) {
	var branch []int
	for !idx.onBestChain(pos) {
		branch = append(branch, pos)
		pos = idx.nodes[pos].parent
	}

	idx.best = idx.best[:idx.nodes[pos].height+1]
	for i := len(branch) - 1; i >= 0; i-- {
		idx.best = append(idx.best, branch[i])
	}
}

// findFork returns the arena position of the last common ancestor of a and
// b.
func (idx *Index) findFork(a, b int) int {
	for idx.nodes[a].height > idx.nodes[b].height {
		a = idx.nodes[a].parent
	}
	for idx.nodes[b].height > idx.nodes[a].height {
		b = idx.nodes[b].parent
	}

	for a != b {
		a = idx.nodes[a].parent
		b = idx.nodes[b].parent
	}

	return a
}

// reorgBetween describes the move of the tip from oldTip to newTip. A plain
// extension, where oldTip is an ancestor of newTip, is not a reorg.
func (idx *Index) reorgBetween(oldTip, newTip int) fn.Option[Reorg] {
	fork := idx.findFork(oldTip, newTip)
	if fork == oldTip {
		return fn.None[Reorg]()
	}

	reorg := Reorg{Fork: idx.nodes[fork].view()}
	for pos := oldTip; pos != fork; pos = idx.nodes[pos].parent {
		reorg.Disconnected = append(
			reorg.Disconnected, idx.nodes[pos].view(),
		)
	}

	var connected []Node
	for pos := newTip; pos != fork; pos = idx.nodes[pos].parent {
		connected = append(connected, idx.nodes[pos].view())
	}
	for i := len(connected) - 1; i >= 0; i-- {
		reorg.Connected = append(reorg.Connected, connected[i])
	}

	log.Infof("Chain reorganization at fork %v (height %d): %d headers "+
		"disconnected, %d connected, new tip %v", reorg.Fork.Hash,
		reorg.Fork.Height, len(reorg.Disconnected),
		len(reorg.Connected), idx.nodes[newTip].hash)
	log.Tracef("Reorg details: %v", build.SpewLogClosure(reorg))

	return fn.Some(reorg)
}
