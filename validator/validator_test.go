package validator

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/chainindex"
	"github.com/lightninglabs/spvchain/internal/chaintest"
	"github.com/lightninglabs/spvchain/merkle"
	"github.com/lightninglabs/spvchain/netparams"
	"github.com/stretchr/testify/require"
)

const (
	mainnetBlock1 = "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a" +
		"089c68d6190000000000982051fd1e4ba744bbbe680e1fee1467" +
		"7ba1a3c3540bf7b1cdb606e857233e0e61bc6649ffff001d01e3" +
		"6299"

	mainnetBlock2 = "010000004860eb18bf1b1620e37e9490fc8a427514416fd75159" +
		"ab86688e9a8300000000d5fdcc541e25de1c7a5addedf24858b8" +
		"bb665c9f36ef744ee42c316022c90f9bb0bc6649ffff001d08d2" +
		"bd61"
)

// block100000TxIDs are the transactions of mainnet block 100000.
var block100000TxIDs = []string{
	"8c14f0db3df150123e6f3dbbf30f8b955a8249b62ac1d1ff16284aefa3d06d87",
	"fff2525b8931402dd09222c50775608f75787bd2b87e56995a7bdd30f79702c4",
	"6359f0868171b1d194cbee1af2f16ea598ae8fad666d9b012c8ed2b79a236ec4",
	"e9a66845e05d5abc0ad04ec80f774a7e585c6e8db975962d069a522137b80c1d",
}

func newTestValidator(t *testing.T, params *netparams.Params,
	maxOrphans int) *Validator {

	t.Helper()

	v, err := New(Config{Params: params, MaxOrphans: maxOrphans})
	require.NoError(t, err)

	return v
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()

	raw, err := hex.DecodeString(s)
	require.NoError(t, err)

	return raw
}

func requireAccepted(t *testing.T, o Outcome, height uint32) {
	t.Helper()

	require.Equal(t, Accepted, o.Kind, "outcome %v: %v", o, o.Err)
	require.Equal(t, height, o.Height)
	require.Equal(t, ReasonNone, o.Reason)
}

func requireRejected(t *testing.T, o Outcome, reason Reason) {
	t.Helper()

	require.Equal(t, Rejected, o.Kind, "outcome %v", o)
	require.Equal(t, reason, o.Reason, "err: %v", o.Err)
	require.Error(t, o.Err)
}

func encode(h *blockheader.Header) []byte {
	enc := h.Encode()
	return enc[:]
}

// TestNewValidator checks configuration errors.
func TestNewValidator(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Params: netparams.MainNet(), MaxOrphans: -1})
	require.Error(t, err)

	bad := netparams.MainNet()
	bad.Genesis.Nonce ^= 1
	_, err = New(Config{Params: bad})
	require.Error(t, err)
}

// TestSubmitMainnet submits the first real mainnet headers.
func TestSubmitMainnet(t *testing.T) {
	t.Parallel()

	params := netparams.MainNet()
	v := newTestValidator(t, params, DefaultMaxOrphans)

	genesis := params.Genesis.Encode()
	o := v.SubmitHeader(genesis[:])
	requireAccepted(t, o, 0)
	require.Equal(t, params.GenesisHash, o.Hash)
	require.False(t, o.TipChanged)

	o = v.SubmitHeader(mustDecodeHex(t, mainnetBlock1))
	requireAccepted(t, o, 1)
	require.True(t, o.TipChanged)
	require.True(t, o.Reorg.IsNone())

	o = v.SubmitHeader(mustDecodeHex(t, mainnetBlock2))
	requireAccepted(t, o, 2)
	require.Equal(t, "Accepted(2)", o.String())

	// Resubmitting is accepted at the same height.
	o = v.SubmitHeader(mustDecodeHex(t, mainnetBlock1))
	requireAccepted(t, o, 1)
	require.False(t, o.TipChanged)
}

// TestSubmitRejections covers each rejection reason reachable through
// SubmitHeader.
func TestSubmitRejections(t *testing.T) {
	t.Parallel()

	block1 := func(t *testing.T) *blockheader.Header {
		h, err := blockheader.Decode(mustDecodeHex(t, mainnetBlock1))
		require.NoError(t, err)

		return h
	}

	easy := chaintest.EasyParams(2016)
	easyChain := chaintest.NewChain(easy).Extend(2)

	tests := []struct {
		name   string
		params *netparams.Params
		raw    func(t *testing.T) []byte
		reason Reason
	}{
		{
			name:   "empty input",
			params: netparams.MainNet(),
			raw: func(t *testing.T) []byte {
				return nil
			},
			reason: ReasonMalformedHeader,
		},
		{
			name:   "truncated header",
			params: netparams.MainNet(),
			raw: func(t *testing.T) []byte {
				return mustDecodeHex(t, mainnetBlock1)[:79]
			},
			reason: ReasonMalformedHeader,
		},
		{
			name:   "trailing byte",
			params: netparams.MainNet(),
			raw: func(t *testing.T) []byte {
				raw := mustDecodeHex(t, mainnetBlock1)
				return append(raw, 0x00)
			},
			reason: ReasonMalformedHeader,
		},
		{
			name:   "flipped nonce",
			params: netparams.MainNet(),
			raw: func(t *testing.T) []byte {
				h := block1(t)
				h.Nonce ^= 1

				return encode(h)
			},
			reason: ReasonInsufficientWork,
		},
		{
			name:   "negative target",
			params: netparams.MainNet(),
			raw: func(t *testing.T) []byte {
				h := block1(t)
				h.Bits = 0x1d80ffff

				return encode(h)
			},
			reason: ReasonInvalidBits,
		},
		{
			name:   "overflowing target",
			params: netparams.MainNet(),
			raw: func(t *testing.T) []byte {
				h := block1(t)
				h.Bits = 0xff123456

				return encode(h)
			},
			reason: ReasonInvalidBits,
		},
		{
			name:   "orphan with invalid bits",
			params: netparams.MainNet(),
			raw: func(t *testing.T) []byte {
				h := block1(t)
				h.PrevBlock = chainhash.Hash{0x01}
				h.Bits = 0x1d80ffff

				return encode(h)
			},
			reason: ReasonInvalidBits,
		},
		{
			name:   "unexpected bits",
			params: easy,
			raw: func(t *testing.T) []byte {
				h := easyChain.Next(
					easyChain.Tip().Timestamp+chaintest.Spacing,
					0x1f7fffff,
				)

				return encode(h)
			},
			reason: ReasonInvalidDifficultyTransition,
		},
		{
			name:   "unsolved easy header",
			params: easy,
			raw: func(t *testing.T) []byte {
				h := easyChain.Next(
					easyChain.Tip().Timestamp+chaintest.Spacing,
					chaintest.EasyBits,
				)
				chaintest.Unsolve(h)

				return encode(h)
			},
			reason: ReasonInsufficientWork,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			v := newTestValidator(t, test.params, 0)

			// The easy chain tests need the chain to build on.
			if test.params == easy {
				for height := uint32(1); height <= 2; height++ {
					o := v.SubmitHeader(easyChain.Raw(height))
					requireAccepted(t, o, height)
				}
			}

			o := v.SubmitHeader(test.raw(t))
			requireRejected(t, o, test.reason)
		})
	}
}

// TestSubmitRejectedLeavesNoTrace checks that a rejected header can neither
// be found nor promoted later.
func TestSubmitRejectedLeavesNoTrace(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	c := chaintest.NewChain(params).Extend(1)
	v := newTestValidator(t, params, 0)

	bad := c.Next(c.Tip().Timestamp+chaintest.Spacing, chaintest.EasyBits)
	chaintest.Unsolve(bad)

	requireAccepted(t, v.SubmitHeader(c.Raw(1)), 1)
	requireRejected(t, v.SubmitHeader(encode(bad)), ReasonInsufficientWork)

	_, err := v.VerifyInclusion(bad.BlockHash(), bad.MerkleRoot,
		&merkle.Proof{})
	require.ErrorIs(t, err, ErrUnknownHeader)
}

// TestSubmitOrphans submits a chain in reverse order.
func TestSubmitOrphans(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	c := chaintest.NewChain(params).Extend(5)
	v := newTestValidator(t, params, 0)

	for height := uint32(5); height >= 2; height-- {
		o := v.SubmitHeader(c.Raw(height))
		require.Equal(t, Orphaned, o.Kind)
		require.Equal(t, c.Hash(height), o.Hash)
		require.Equal(t, "Orphaned", o.String())
	}

	// Resubmitting an orphan keeps it orphaned.
	require.Equal(t, Orphaned, v.SubmitHeader(c.Raw(3)).Kind)

	o := v.SubmitHeader(c.Raw(1))
	requireAccepted(t, o, 1)
	require.True(t, o.TipChanged)
	require.Len(t, o.Promoted, 4)

	for i, p := range o.Promoted {
		require.NoError(t, p.Err)
		node := p.Node.UnwrapOr(chainindex.Node{})
		require.Equal(t, uint32(i+2), node.Height)
		require.Equal(t, c.Hash(node.Height), p.Hash)
	}

	// Every promoted header is now indexed.
	requireAccepted(t, v.SubmitHeader(c.Raw(5)), 5)
}

// TestSubmitOrphanEviction checks the orphan pool bound.
func TestSubmitOrphanEviction(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	c := chaintest.NewChain(params).Extend(4)
	v := newTestValidator(t, params, 2)

	for height := uint32(2); height <= 4; height++ {
		require.Equal(t, Orphaned, v.SubmitHeader(c.Raw(height)).Kind)
	}

	// The third orphan pushed the pool over its bound. The oldest
	// orphan went, and every orphan building on it except the one just
	// submitted.
	o := v.SubmitHeader(c.Raw(1))
	requireAccepted(t, o, 1)
	require.Empty(t, o.Promoted)

	o = v.SubmitHeader(c.Raw(2))
	requireAccepted(t, o, 2)
	require.Empty(t, o.Promoted)

	// Height 4 is still waiting for its parent.
	o = v.SubmitHeader(c.Raw(3))
	requireAccepted(t, o, 3)
	require.Len(t, o.Promoted, 1)
	require.Equal(t, c.Hash(4), o.Promoted[0].Hash)
	require.NoError(t, o.Promoted[0].Err)
}

// TestSubmitOrphanKeptUnderBound makes sure a header reported as orphaned
// is held even when it builds on the orphan evicted to make room for it.
func TestSubmitOrphanKeptUnderBound(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	c := chaintest.NewChain(params).Extend(3)
	v := newTestValidator(t, params, 1)

	require.Equal(t, Orphaned, v.SubmitHeader(c.Raw(2)).Kind)
	require.Equal(t, Orphaned, v.SubmitHeader(c.Raw(3)).Kind)

	o := v.SubmitHeader(c.Raw(1))
	requireAccepted(t, o, 1)
	require.Empty(t, o.Promoted)

	// Height 3 survived the eviction of its parent and is promoted once
	// the parent arrives again.
	o = v.SubmitHeader(c.Raw(2))
	requireAccepted(t, o, 2)
	require.Len(t, o.Promoted, 1)

	p := o.Promoted[0]
	require.NoError(t, p.Err)
	require.Equal(t, c.Hash(3), p.Hash)
	require.Equal(t, uint32(3), p.Node.UnwrapOr(chainindex.Node{}).Height)
	require.True(t, o.TipChanged)
}

// TestSubmitReorg switches the best chain to a heavier branch.
func TestSubmitReorg(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	mainChain := chaintest.NewChain(params).Extend(3)
	sideChain := mainChain.Fork(1, 7).Extend(3)
	v := newTestValidator(t, params, 0)

	for height := uint32(1); height <= 3; height++ {
		requireAccepted(t, v.SubmitHeader(mainChain.Raw(height)), height)
	}

	// Equal work keeps the first seen tip.
	for height := uint32(2); height <= 3; height++ {
		o := v.SubmitHeader(sideChain.Raw(height))
		requireAccepted(t, o, height)
		require.False(t, o.TipChanged)
	}

	o := v.SubmitHeader(sideChain.Raw(4))
	requireAccepted(t, o, 4)
	require.True(t, o.TipChanged)
	require.True(t, o.Reorg.IsSome())

	reorg := o.Reorg.UnwrapOr(chainindex.Reorg{})
	require.Equal(t, mainChain.Hash(1), reorg.Fork.Hash)
	require.Equal(t, 2, reorg.Depth())
	require.Equal(t, mainChain.Hash(3), reorg.Disconnected[0].Hash)
	require.Equal(t, mainChain.Hash(2), reorg.Disconnected[1].Hash)
	require.Len(t, reorg.Connected, 3)
	require.Equal(t, sideChain.Hash(4), reorg.Connected[2].Hash)
}

// TestSubmitDeterministic feeds the same sequence to two validators.
func TestSubmitDeterministic(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	mainChain := chaintest.NewChain(params).Extend(4)
	sideChain := mainChain.Fork(2, 3).Extend(3)

	var inputs [][]byte
	for height := uint32(4); height >= 1; height-- {
		inputs = append(inputs, mainChain.Raw(height))
	}
	for height := uint32(3); height <= 5; height++ {
		inputs = append(inputs, sideChain.Raw(height))
	}
	inputs = append(inputs, []byte{0x01})

	run := func() []string {
		v := newTestValidator(t, params, 0)

		var out []string
		for _, raw := range inputs {
			o := v.SubmitHeader(raw)
			out = append(out, o.String()+o.Hash.String())
		}

		return out
	}

	require.Equal(t, run(), run())
}

// TestSubmitConcurrent submits headers from many goroutines.
func TestSubmitConcurrent(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	c := chaintest.NewChain(params).Extend(32)
	v := newTestValidator(t, params, 0)

	var wg sync.WaitGroup
	for height := uint32(1); height <= c.Height(); height++ {
		wg.Add(1)
		go func(height uint32) {
			defer wg.Done()

			v.SubmitHeader(c.Raw(height))
		}(height)
	}
	wg.Wait()

	// Whatever the order, every header ends up indexed.
	for height := uint32(1); height <= c.Height(); height++ {
		requireAccepted(t, v.SubmitHeader(c.Raw(height)), height)
	}
}

// TestVerifyInclusion proves transactions against an indexed header whose
// merkle root commits to the transactions of mainnet block 100000.
func TestVerifyInclusion(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	c := chaintest.NewChain(params).Extend(1)
	v := newTestValidator(t, params, 0)
	requireAccepted(t, v.SubmitHeader(c.Raw(1)), 1)

	var leaves []chainhash.Hash
	for _, s := range block100000TxIDs {
		h, err := chainhash.NewHashFromStr(s)
		require.NoError(t, err)
		leaves = append(leaves, *h)
	}
	root, _ := merkle.Root(leaves)

	header := &blockheader.Header{
		Version:    4,
		PrevBlock:  c.Hash(1),
		MerkleRoot: root,
		Timestamp:  c.Tip().Timestamp + chaintest.Spacing,
		Bits:       c.NextExpectedBits(chaintest.Spacing),
	}
	chaintest.Solve(header)
	headerHash := header.BlockHash()

	requireAccepted(t, v.SubmitHeader(encode(header)), 2)

	for i, leaf := range leaves {
		proof, err := merkle.BuildProof(leaves, i)
		require.NoError(t, err)

		ok, err := v.VerifyInclusion(headerHash, leaf, proof)
		require.NoError(t, err)
		require.True(t, ok, "leaf %d", i)

		// The proof does not hold against another header.
		ok, err = v.VerifyInclusion(c.Hash(1), leaf, proof)
		require.NoError(t, err)
		require.False(t, ok)
	}

	proof, err := merkle.BuildProof(leaves, 0)
	require.NoError(t, err)

	// Unrelated leaf.
	ok, err := v.VerifyInclusion(
		headerHash, chainhash.DoubleHashH([]byte("x")), proof,
	)
	require.NoError(t, err)
	require.False(t, ok)

	// Unknown header.
	_, err = v.VerifyInclusion(chainhash.Hash{0x01}, leaves[0], proof)
	require.ErrorIs(t, err, ErrUnknownHeader)
	require.Equal(t, ReasonUnknownHeader, ReasonFromError(err))

	// Self paired step.
	selfPaired := &merkle.Proof{Steps: []merkle.Step{{
		Sibling: leaves[0], SiblingIsRight: true,
	}}}
	_, err = v.VerifyInclusion(headerHash, leaves[0], selfPaired)
	require.ErrorIs(t, err, merkle.ErrMalformedProof)
	require.Equal(t, ReasonMalformedMerkleProof, ReasonFromError(err))

	// Missing proof.
	_, err = v.VerifyInclusion(headerHash, leaves[0], nil)
	require.ErrorIs(t, err, merkle.ErrMalformedProof)
}

// TestVerifyInclusionSideBranch checks that headers off the best chain and
// orphans are treated differently.
func TestVerifyInclusionSideBranch(t *testing.T) {
	t.Parallel()

	params := chaintest.EasyParams(2016)
	mainChain := chaintest.NewChain(params).Extend(3)
	sideChain := mainChain.Fork(1, 9).Extend(1)
	v := newTestValidator(t, params, 0)

	for height := uint32(1); height <= 3; height++ {
		requireAccepted(t, v.SubmitHeader(mainChain.Raw(height)), height)
	}
	requireAccepted(t, v.SubmitHeader(sideChain.Raw(2)), 2)

	// A single transaction block has the txid as root and an empty
	// proof.
	side := sideChain.Header(2)
	ok, err := v.VerifyInclusion(
		side.BlockHash(), side.MerkleRoot, &merkle.Proof{},
	)
	require.NoError(t, err)
	require.True(t, ok)

	orphanChain := mainChain.Fork(3, 11).Extend(2)
	require.Equal(t, Orphaned, v.SubmitHeader(orphanChain.Raw(5)).Kind)

	orphan := orphanChain.Header(5)
	_, err = v.VerifyInclusion(
		orphan.BlockHash(), orphan.MerkleRoot, &merkle.Proof{},
	)
	require.ErrorIs(t, err, ErrUnknownHeader)
}

// TestReasonFromError checks the reason strings and the fallback.
func TestReasonFromError(t *testing.T) {
	t.Parallel()

	require.Equal(t, ReasonNone, ReasonFromError(nil))
	require.Equal(t, ReasonMalformedHeader,
		ReasonFromError(blockheader.ErrMalformedHeader))
	require.Equal(t, "InvalidBits", ReasonInvalidBits.String())
	require.Equal(t, "Reason(200)", Reason(200).String())
	require.Equal(t, "Rejected(UnknownHeader)", Outcome{
		Kind:   Rejected,
		Reason: ReasonUnknownHeader,
	}.String())
}
