package retarget

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lightninglabs/spvchain/blockheader"
)

// ErrMissingAncestor is returned when the first block of a retarget
// interval cannot be reached from the last one.
var ErrMissingAncestor = errors.New("retarget interval ancestor not found")

// HeaderCtx is the view of an indexed header the retargeter needs. Parent
// returns nil for the genesis header.
type HeaderCtx interface {
	// Height returns the height of the header.
	Height() uint32

	// Bits returns the compact target declared by the header.
	Bits() uint32

	// Timestamp returns the header time in seconds.
	Timestamp() uint32

	// Parent returns the header's parent, or nil at genesis.
	Parent() HeaderCtx

	// RelativeAncestorCtx returns the ancestor distance blocks back, or
	// nil if the chain is shorter than that.
	RelativeAncestorCtx(distance uint32) HeaderCtx
}

// IsRetargetHeight reports whether a header at height opens a new retarget
// interval.
func IsRetargetHeight(height uint32, p *Params) bool {
	return height%p.BlocksPerRetarget() == 0
}

// NextTarget computes the target for the interval following one that
// started at firstTime and ended at lastTime with target oldTarget.
//
// The elapsed time is clamped to [timespan/factor, timespan*factor] and the
// product oldTarget*elapsed is carried at 512 bits before dividing, so the
// result is exact. It never exceeds the network's pow limit.
func NextTarget(oldTarget *uint256.Int, firstTime, lastTime uint32,
	p *Params) *uint256.Int {

	elapsed := int64(lastTime) - int64(firstTime)
	switch {
	case elapsed < p.MinRetargetTimespan():
		elapsed = p.MinRetargetTimespan()

	case elapsed > p.MaxRetargetTimespan():
		elapsed = p.MaxRetargetTimespan()
	}

	newTarget, overflow := new(uint256.Int).MulDivOverflow(
		oldTarget, uint256.NewInt(uint64(elapsed)),
		uint256.NewInt(uint64(p.TargetTimespanSecs())),
	)
	if overflow || newTarget.Gt(p.PowLimit) {
		newTarget.Set(p.PowLimit)
	}

	return newTarget
}

// CalcNextRequiredBits returns the compact target a header building on last
// with timestamp newBlockTime must declare. A nil last means the header is
// the genesis.
func CalcNextRequiredBits(last HeaderCtx, newBlockTime uint32,
	p *Params) (uint32, error) {

	if last == nil {
		return p.PowLimitBits, nil
	}

	if !IsRetargetHeight(last.Height()+1, p) {
		if !p.ReduceMinDifficulty {
			return last.Bits(), nil
		}

		// A block arriving long after its parent may use the
		// minimum difficulty.
		reductionTime := int64(p.MinDiffReductionTime.Seconds())
		allowMinTime := int64(last.Timestamp()) + reductionTime
		if int64(newBlockTime) > allowMinTime {
			return p.PowLimitBits, nil
		}

		return findPrevTestNetBits(last, p), nil
	}

	if p.NoRetargeting {
		return last.Bits(), nil
	}

	first := last.RelativeAncestorCtx(p.BlocksPerRetarget() - 1)
	if first == nil {
		return 0, fmt.Errorf("%w: %d blocks before height %d",
			ErrMissingAncestor, p.BlocksPerRetarget()-1,
			last.Height())
	}

	oldTarget, err := blockheader.CompactToTarget(last.Bits())
	if err != nil {
		return 0, fmt.Errorf("bits of height %d: %w", last.Height(),
			err)
	}

	newTarget := NextTarget(
		oldTarget, first.Timestamp(), last.Timestamp(), p,
	)
	newBits := blockheader.TargetToCompact(newTarget)

	log.Debugf("Difficulty retarget at height %d: old %08x, new %08x, "+
		"interval %d-%d", last.Height()+1, last.Bits(), newBits,
		first.Timestamp(), last.Timestamp())

	return newBits, nil
}

// findPrevTestNetBits walks back from node to the last header that was not
// mined under the minimum difficulty rule and returns its bits.
func findPrevTestNetBits(node HeaderCtx, p *Params) uint32 {
	iter := node
	for iter != nil && !IsRetargetHeight(iter.Height(), p) &&
		iter.Bits() == p.PowLimitBits {

		parent := iter.Parent()
		if parent == nil {
			break
		}
		iter = parent
	}

	if iter == nil {
		return p.PowLimitBits
	}

	return iter.Bits()
}
