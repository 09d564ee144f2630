package validator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/chainindex"
	"github.com/lightninglabs/spvchain/merkle"
	"github.com/lightninglabs/spvchain/netparams"
)

// DefaultMaxOrphans is a reasonable bound on the orphan pool for hosts that
// have no better figure.
const DefaultMaxOrphans = 1000

// Config holds the immutable settings of a Validator.
type Config struct {
	// Params is the network the headers belong to.
	Params *netparams.Params

	// MaxOrphans bounds the orphan pool. When a new orphan pushes the
	// pool past the bound the oldest orphans are dropped, except for the
	// new orphan itself. Zero leaves the pool unbounded.
	MaxOrphans int
}

// Validator accepts raw headers one at a time, maintains the best chain
// among them and answers transaction inclusion queries against indexed
// headers. Results depend only on the configuration and on the order in
// which headers were submitted.
//
// Validator is safe for concurrent use; calls are serialized.
type Validator struct {
	cfg Config

	mu    sync.Mutex
	index *chainindex.Index
}

// New creates a validator whose chain holds only the configured genesis.
func New(cfg Config) (*Validator, error) {
	if cfg.Params == nil {
		return nil, errors.New("network params required")
	}
	if cfg.MaxOrphans < 0 {
		return nil, fmt.Errorf("invalid orphan bound %d",
			cfg.MaxOrphans)
	}

	index, err := chainindex.New(cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("unable to create header index: %w", err)
	}

	return &Validator{
		cfg:   cfg,
		index: index,
	}, nil
}

// SubmitHeader decodes and validates an 80 byte header.
func (v *Validator) SubmitHeader(raw []byte) Outcome {
	h, err := blockheader.Decode(raw)
	if err != nil {
		log.Debugf("Rejecting undecodable header: %v", err)
		return rejected(chainhash.Hash{}, err)
	}

	hash := h.BlockHash()
	if _, err := blockheader.CompactToTarget(h.Bits); err != nil {
		log.Debugf("Rejecting header %v: %v", hash, err)
		return rejected(hash, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	res, err := v.index.ProcessHeader(h)
	if err != nil {
		log.Debugf("Rejecting header %v: %v", hash, err)
		return rejected(hash, err)
	}

	outcome := Outcome{
		Hash:       hash,
		TipChanged: res.TipChanged,
		Reorg:      res.Reorg,
		Promoted:   res.Promoted,
	}

	switch res.Status {
	case chainindex.StatusOrphaned:
		outcome.Kind = Orphaned

		// Never drop the header just reported as orphaned.
		if v.cfg.MaxOrphans > 0 {
			v.index.EvictOrphans(v.cfg.MaxOrphans, hash)
		}

	default:
		node := res.Node.UnwrapOr(chainindex.Node{})

		outcome.Kind = Accepted
		outcome.Height = node.Height
	}

	log.Tracef("Header %v: %v (%v)", hash, outcome, res.Status)

	return outcome
}

// VerifyInclusion reports whether proof links leaf to the merkle root of
// the indexed header with the given hash. The header may be on any branch.
// ErrUnknownHeader is returned for headers that are not indexed, and
// merkle.ErrMalformedProof for proofs that can never be valid.
func (v *Validator) VerifyInclusion(headerHash, leaf chainhash.Hash,
	proof *merkle.Proof) (bool, error) {

	if proof == nil {
		return false, fmt.Errorf("%w: missing proof",
			merkle.ErrMalformedProof)
	}

	v.mu.Lock()
	node, err := v.index.LookupNode(headerHash).UnwrapOrErr(
		fmt.Errorf("%w: %v", ErrUnknownHeader, headerHash),
	)
	v.mu.Unlock()
	if err != nil {
		return false, err
	}

	return merkle.Verify(leaf, proof, node.Header.MerkleRoot)
}
