package chainindex

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/chainwork"
	"github.com/lightninglabs/spvchain/netparams"
	"github.com/lightninglabs/spvchain/pow"
	"github.com/lightninglabs/spvchain/retarget"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrInvalidDifficultyTransition is returned when a header declares bits
// other than the ones the difficulty rules require at its height.
var ErrInvalidDifficultyTransition = errors.New("invalid difficulty " +
	"transition")

// Status describes what happened to a processed header.
type Status uint8

const (
	// StatusAccepted means the header was connected to the index.
	StatusAccepted Status = iota

	// StatusOrphaned means the header's parent is unknown and the
	// header waits in the orphan pool.
	StatusOrphaned

	// StatusDuplicate means the header was already indexed. Nothing
	// changed.
	StatusDuplicate
)

// String returns a human readable status.
func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusOrphaned:
		return "orphaned"
	case StatusDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Promotion records the fate of an orphan whose parent became known.
type Promotion struct {
	// Hash is the orphan's block hash.
	Hash chainhash.Hash

	// Node is set when the orphan was connected.
	Node fn.Option[Node]

	// Err is set when the orphan failed validation. The orphan and any
	// orphans building on it are dropped.
	Err error
}

// Result is the outcome of ProcessHeader.
type Result struct {
	// Status tells whether the header was accepted, orphaned or already
	// known.
	Status Status

	// Hash is the processed header's hash.
	Hash chainhash.Hash

	// Node is the indexed header. It is only set for accepted and
	// duplicate headers.
	Node fn.Option[Node]

	// TipChanged is true if the best chain tip moved during the call,
	// either because of this header or a promoted orphan.
	TipChanged bool

	// Reorg is set when the tip moved to a branch that does not contain
	// the previous tip.
	Reorg fn.Option[Reorg]

	// Promoted lists the orphans processed because of this header, in
	// the order they were connected or rejected.
	Promoted []Promotion
}

// Index is a tree of validated headers rooted at the network's genesis,
// plus a pool of headers whose parents have not been seen yet. The best
// chain is the branch with the most cumulative work; among equal work
// branches the one whose tip was connected first wins.
//
// Index is not safe for concurrent use.
type Index struct {
	params *netparams.Params

	// nodes is the arena owning every indexed header. Entries are never
	// removed.
	nodes  []node
	byHash map[chainhash.Hash]int

	// best holds the arena position of the best chain header at each
	// height. Its last entry is the tip.
	best []int

	orphans     map[chainhash.Hash]*orphan
	prevOrphans map[chainhash.Hash][]*orphan

	seq uint64
}

// New creates an index holding only the network's genesis header. The
// genesis must satisfy its own proof of work.
func New(params *netparams.Params) (*Index, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	genesis := params.Genesis
	target, err := blockheader.CompactToTarget(genesis.Bits)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	if err := pow.CheckProofOfWork(&genesis, target); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	work, err := chainwork.CalcWork(target)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	idx := &Index{
		params:      params.Copy(),
		byHash:      make(map[chainhash.Hash]int),
		orphans:     make(map[chainhash.Hash]*orphan),
		prevOrphans: make(map[chainhash.Hash][]*orphan),
	}
	idx.addNode(node{
		hash:   params.GenesisHash,
		header: genesis,
		work:   work,
		parent: noParent,
	})
	idx.best = []int{0}

	log.Infof("Header index initialized for %s with genesis %v",
		params.Name, params.GenesisHash)

	return idx, nil
}

// ProcessHeader validates h and either connects it, parks it as an orphan
// or reports it as already known. A header failing validation leaves the
// index untouched and the error is returned.
//
// Connecting a header also connects every orphan that now has an indexed
// parent. Those orphans are validated in turn and their outcome is listed
// in the result.
func (idx *Index) ProcessHeader(h *blockheader.Header) (*Result, error) {
	hash := h.BlockHash()

	if pos, ok := idx.byHash[hash]; ok {
		return &Result{
			Status: StatusDuplicate,
			Hash:   hash,
			Node:   fn.Some(idx.nodes[pos].view()),
		}, nil
	}

	if _, ok := idx.orphans[hash]; ok {
		return &Result{Status: StatusOrphaned, Hash: hash}, nil
	}

	if _, err := blockheader.CompactToTarget(h.Bits); err != nil {
		return nil, err
	}

	parentPos, ok := idx.byHash[h.PrevBlock]
	if !ok {
		idx.addOrphan(h, hash)

		return &Result{Status: StatusOrphaned, Hash: hash}, nil
	}

	oldTip := idx.tipPos()

	pos, err := idx.connect(parentPos, h, hash)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Status:   StatusAccepted,
		Hash:     hash,
		Node:     fn.Some(idx.nodes[pos].view()),
		Promoted: idx.processOrphans(hash),
	}

	if newTip := idx.tipPos(); newTip != oldTip {
		res.TipChanged = true
		res.Reorg = idx.reorgBetween(oldTip, newTip)
	}

	return res, nil
}

// connect validates h against its indexed parent and adds it to the arena.
// Nothing is modified unless every check passes.
func (idx *Index) connect(parentPos int, h *blockheader.Header,
	hash chainhash.Hash) (int, error) {

	parent := &idx.nodes[parentPos]
	height := parent.height + 1

	expectedBits, err := retarget.CalcNextRequiredBits(
		&nodeCtx{idx: idx, pos: parentPos}, h.Timestamp,
		&idx.params.Retarget,
	)
	if err != nil {
		return 0, fmt.Errorf("unable to compute bits for height %d: %w",
			height, err)
	}
	if h.Bits != expectedBits {
		return 0, fmt.Errorf("%w: header %v at height %d has bits "+
			"%08x, expected %08x", ErrInvalidDifficultyTransition,
			hash, height, h.Bits, expectedBits)
	}

	target, err := blockheader.CompactToTarget(h.Bits)
	if err != nil {
		return 0, err
	}
	if err := pow.CheckProofOfWork(h, target); err != nil {
		return 0, fmt.Errorf("header %v at height %d: %w", hash,
			height, err)
	}

	work, err := chainwork.CalcWork(target)
	if err != nil {
		return 0, err
	}
	cumWork, err := parent.work.Add(work)
	if err != nil {
		return 0, fmt.Errorf("header %v at height %d: %w", hash,
			height, err)
	}

	pos := idx.addNode(node{
		hash:   hash,
		header: *h,
		height: height,
		work:   cumWork,
		parent: parentPos,
	})

	log.Debugf("Connected header %v at height %d, work %v", hash,
		height, cumWork)

	// Only strictly more work moves the tip, so an equal work branch
	// never displaces the one seen first.
	if idx.nodes[idx.tipPos()].work.Less(cumWork) {
		idx.setTip(pos)
	}

	return pos, nil
}

func (idx *Index) addNode(n node) int {
	n.seq = idx.nextSeq()
	idx.nodes = append(idx.nodes, n)

	pos := len(idx.nodes) - 1
	idx.byHash[n.hash] = pos

	return pos
}

func (idx *Index) nextSeq() uint64 {
	seq := idx.seq
	idx.seq++

	return seq
}

func (idx *Index) tipPos() int {
	return idx.best[len(idx.best)-1]
}

func (idx *Index) onBestChain(pos int) bool {
	height := idx.nodes[pos].height

	return int(height) < len(idx.best) && idx.best[height] == pos
}

// Params returns the network parameters the index validates against.
func (idx *Index) Params() *netparams.Params {
	return idx.params
}

// Tip returns the head of the best chain.
func (idx *Index) Tip() Node {
	return idx.nodes[idx.tipPos()].view()
}

// Genesis returns the root of the index.
func (idx *Index) Genesis() Node {
	return idx.nodes[0].view()
}

// LookupNode returns the indexed header with the given hash, on any branch.
func (idx *Index) LookupNode(hash chainhash.Hash) fn.Option[Node] {
	pos, ok := idx.byHash[hash]
	if !ok {
		return fn.None[Node]()
	}

	return fn.Some(idx.nodes[pos].view())
}

// NodeByHeight returns the best chain header at height.
func (idx *Index) NodeByHeight(height uint32) fn.Option[Node] {
	if int(height) >= len(idx.best) {
		return fn.None[Node]()
	}

	return fn.Some(idx.nodes[idx.best[height]].view())
}

// IsOnBestChain reports whether hash is an indexed header on the best
// chain.
func (idx *Index) IsOnBestChain(hash chainhash.Hash) bool {
	pos, ok := idx.byHash[hash]

	return ok && idx.onBestChain(pos)
}

// Len returns the number of indexed headers, genesis included.
func (idx *Index) Len() int {
	return len(idx.nodes)
}
