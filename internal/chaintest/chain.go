// Package chaintest mines header chains against easy targets for tests.
package chaintest

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/holiman/uint256"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/netparams"
	"github.com/lightninglabs/spvchain/pow"
	"github.com/lightninglabs/spvchain/retarget"
)

const (
	// EasyBits is the compact form of the easiest target, roughly every
	// second hash meets it.
	EasyBits = 0x207fffff

	// GenesisTime is the timestamp of the easy genesis header.
	GenesisTime = 1296688603

	// Spacing is the block spacing of the easy networks in seconds.
	Spacing = 600
)

// EasyParams returns a network with the easiest pow limit that retargets
// every interval blocks. The genesis header is pre-mined.
func EasyParams(interval uint32) *netparams.Params {
	powLimit := new(uint256.Int).SubUint64(
		new(uint256.Int).Lsh(uint256.NewInt(1), 255), 1,
	)

	genesis := blockheader.Header{
		Version:   1,
		Timestamp: GenesisTime,
		Bits:      EasyBits,
	}

	return &netparams.Params{
		Name:        fmt.Sprintf("easynet-%d", interval),
		Net:         wire.SimNet,
		Genesis:     genesis,
		GenesisHash: genesis.BlockHash(),
		Retarget: retarget.Params{
			PowLimit:     powLimit,
			PowLimitBits: EasyBits,
			TargetTimespan: time.Duration(interval) * Spacing *
				time.Second,
			TargetTimePerBlock:       Spacing * time.Second,
			RetargetAdjustmentFactor: 4,
		},
	}
}

// Solve increments the nonce of h until its hash meets the target declared
// by its bits.
func Solve(h *blockheader.Header) {
	target, err := blockheader.CompactToTarget(h.Bits)
	if err != nil {
		panic(err)
	}

	for pow.CheckProofOfWork(h, target) != nil {
		h.Nonce++
	}
}

// Unsolve increments the nonce of h until its hash misses the target.
func Unsolve(h *blockheader.Header) {
	target, err := blockheader.CompactToTarget(h.Bits)
	if err != nil {
		panic(err)
	}

	for pow.CheckProofOfWork(h, target) == nil {
		h.Nonce++
	}
}

// Chain is a single branch of mined headers starting at genesis.
type Chain struct {
	params  *netparams.Params
	headers []blockheader.Header
	salt    uint32
}

// NewChain starts a branch at the network's genesis.
func NewChain(params *netparams.Params) *Chain {
	return &Chain{
		params:  params,
		headers: []blockheader.Header{params.Genesis},
	}
}

// Fork returns a new branch sharing this one's headers up to and including
// height. The salt makes the fork's headers differ from any other branch
// mined with the same timestamps.
func (c *Chain) Fork(height uint32, salt uint32) *Chain {
	headers := make([]blockheader.Header, height+1)
	copy(headers, c.headers[:height+1])

	return &Chain{
		params:  c.params,
		headers: headers,
		salt:    salt,
	}
}

// Height returns the height of the branch tip.
func (c *Chain) Height() uint32 {
	return uint32(len(c.headers) - 1)
}

// Header returns the header at height.
func (c *Chain) Header(height uint32) *blockheader.Header {
	h := c.headers[height]
	return &h
}

// Tip returns the last header of the branch.
func (c *Chain) Tip() *blockheader.Header {
	return c.Header(c.Height())
}

// Hash returns the hash of the header at height.
func (c *Chain) Hash(height uint32) chainhash.Hash {
	return c.headers[height].BlockHash()
}

// Raw returns the serialized header at height.
func (c *Chain) Raw(height uint32) []byte {
	enc := c.headers[height].Encode()
	return enc[:]
}

// Extend mines n headers spaced by the network's block spacing.
func (c *Chain) Extend(n int) *Chain {
	return c.ExtendSpaced(n, Spacing)
}

// ExtendSpaced mines n headers, each spacing seconds after its parent, with
// the bits the difficulty rules require.
func (c *Chain) ExtendSpaced(n int, spacing uint32) *Chain {
	for i := 0; i < n; i++ {
		parent := c.Tip()
		ts := parent.Timestamp + spacing

		bits, err := retarget.CalcNextRequiredBits(
			c.ctx(c.Height()), ts, &c.params.Retarget,
		)
		if err != nil {
			panic(err)
		}

		c.headers = append(c.headers, c.mine(parent, ts, bits))
	}

	return c
}

// Next returns a header on top of the tip with the given bits and timestamp
// without appending it. Tests use it to craft invalid headers.
func (c *Chain) Next(ts, bits uint32) *blockheader.Header {
	h := c.mine(c.Tip(), ts, bits)
	return &h
}

// NextExpectedBits returns the bits the next header must declare if it is
// spacing seconds after the tip.
func (c *Chain) NextExpectedBits(spacing uint32) uint32 {
	bits, err := retarget.CalcNextRequiredBits(
		c.ctx(c.Height()), c.Tip().Timestamp+spacing,
		&c.params.Retarget,
	)
	if err != nil {
		panic(err)
	}

	return bits
}

func (c *Chain) mine(parent *blockheader.Header, ts,
	bits uint32) blockheader.Header {

	var tag [8]byte
	binary.LittleEndian.PutUint32(tag[:4], c.salt)
	binary.LittleEndian.PutUint32(tag[4:], c.Height()+1)

	h := blockheader.Header{
		Version:    4,
		PrevBlock:  parent.BlockHash(),
		MerkleRoot: chainhash.DoubleHashH(tag[:]),
		Timestamp:  ts,
		Bits:       bits,
	}

	// Bits that cannot be decoded are left unsolved for the caller to
	// submit as malformed.
	if _, err := blockheader.CompactToTarget(bits); err == nil {
		Solve(&h)
	}

	return h
}

func (c *Chain) ctx(height uint32) retarget.HeaderCtx {
	return &ctxNode{chain: c, height: height}
}

// ctxNode implements retarget.HeaderCtx over a Chain.
type ctxNode struct {
	chain  *Chain
	height uint32
}

func (n *ctxNode) Height() uint32 {
	return n.height
}

func (n *ctxNode) Bits() uint32 {
	return n.chain.headers[n.height].Bits
}

func (n *ctxNode) Timestamp() uint32 {
	return n.chain.headers[n.height].Timestamp
}

func (n *ctxNode) Parent() retarget.HeaderCtx {
	return n.RelativeAncestorCtx(1)
}

func (n *ctxNode) RelativeAncestorCtx(distance uint32) retarget.HeaderCtx {
	if distance > n.height {
		return nil
	}

	return n.chain.ctx(n.height - distance)
}
