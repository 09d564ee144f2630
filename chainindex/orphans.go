package chainindex

import (
	"slices"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// orphan is a header whose parent is not indexed yet.
type orphan struct {
	header blockheader.Header
	hash   chainhash.Hash
	seq    uint64
}

func (idx *Index) addOrphan(h *blockheader.Header, hash chainhash.Hash) {
	o := &orphan{
		header: *h,
		hash:   hash,
		seq:    idx.nextSeq(),
	}
	idx.orphans[hash] = o
	idx.prevOrphans[h.PrevBlock] = append(idx.prevOrphans[h.PrevBlock], o)

	log.Debugf("Adding orphan header %v with parent %v (%d orphans)",
		hash, h.PrevBlock, len(idx.orphans))
}

// removeOrphan drops a single orphan from both orphan maps.
func (idx *Index) removeOrphan(o *orphan) {
	delete(idx.orphans, o.hash)

	prevHash := o.header.PrevBlock
	siblings := idx.prevOrphans[prevHash]
	for i, sibling := range siblings {
		if sibling.hash == o.hash {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}

	if len(siblings) == 0 {
		delete(idx.prevOrphans, prevHash)
		return
	}
	idx.prevOrphans[prevHash] = siblings
}

// dropDescendants removes every orphan building, directly or not, on hash
// and returns how many were dropped. The orphans in keep stay in the pool
// along with their own descendants.
func (idx *Index) dropDescendants(hash chainhash.Hash,
	keep ...chainhash.Hash) int {

	var (
		dropped  int
		worklist = []chainhash.Hash{hash}
	)
	for len(worklist) > 0 {
		parent := worklist[0]
		worklist = worklist[1:]

		var kept []*orphan
		for _, o := range idx.prevOrphans[parent] {
			if slices.Contains(keep, o.hash) {
				kept = append(kept, o)
				continue
			}

			delete(idx.orphans, o.hash)
			worklist = append(worklist, o.hash)
			dropped++
		}

		if len(kept) > 0 {
			idx.prevOrphans[parent] = kept
			continue
		}
		delete(idx.prevOrphans, parent)
	}

	return dropped
}

// processOrphans connects the orphans that descend from the freshly
// connected header with the given hash. The walk is breadth first over an
// explicit work list, so long orphan chains need no recursion.
func (idx *Index) processOrphans(hash chainhash.Hash) []Promotion {
	var (
		promoted []Promotion
		worklist = []chainhash.Hash{hash}
	)
	for len(worklist) > 0 {
		parentHash := worklist[0]
		worklist = worklist[1:]

		children := idx.prevOrphans[parentHash]
		delete(idx.prevOrphans, parentHash)

		for _, o := range children {
			delete(idx.orphans, o.hash)

			pos, err := idx.connect(
				idx.byHash[parentHash], &o.header, o.hash,
			)
			if err != nil {
				dropped := idx.dropDescendants(o.hash)
				log.Debugf("Orphan header %v rejected, dropping "+
					"%d descendants: %v", o.hash, dropped,
					err)

				promoted = append(promoted, Promotion{
					Hash: o.hash,
					Node: fn.None[Node](),
					Err:  err,
				})

				continue
			}

			log.Debugf("Promoted orphan header %v to height %d",
				o.hash, idx.nodes[pos].height)

			promoted = append(promoted, Promotion{
				Hash: o.hash,
				Node: fn.Some(idx.nodes[pos].view()),
			})
			worklist = append(worklist, o.hash)
		}
	}

	return promoted
}

// EvictOrphans drops the oldest orphans until at most limit remain, along
// with any orphans building on them. The orphans in keep are never evicted,
// even when they build on an evicted one; they stay in the pool waiting for
// their parent. It returns the number of orphans removed.
func (idx *Index) EvictOrphans(limit int, keep ...chainhash.Hash) int {
	if len(idx.orphans) <= limit {
		return 0
	}

	byAge := make([]*orphan, 0, len(idx.orphans))
	for _, o := range idx.orphans {
		byAge = append(byAge, o)
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].seq < byAge[j].seq
	})

	var evicted int
	for _, o := range byAge {
		if len(idx.orphans) <= limit {
			break
		}

		if slices.Contains(keep, o.hash) {
			continue
		}

		// Already dropped as the descendant of an older orphan.
		if _, ok := idx.orphans[o.hash]; !ok {
			continue
		}

		idx.removeOrphan(o)
		evicted += 1 + idx.dropDescendants(o.hash, keep...)
	}

	log.Debugf("Evicted %d orphan headers, %d remain", evicted,
		len(idx.orphans))

	return evicted
}

// HaveOrphan reports whether hash is waiting in the orphan pool.
func (idx *Index) HaveOrphan(hash chainhash.Hash) bool {
	_, ok := idx.orphans[hash]
	return ok
}

// OrphanCount returns the number of headers in the orphan pool.
func (idx *Index) OrphanCount() int {
	return len(idx.orphans)
}
