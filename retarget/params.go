package retarget

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/lightninglabs/spvchain/blockheader"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid retarget parameters")

// Params holds the difficulty rules of a network. A Params value is never
// modified once it has been handed to a chain.
type Params struct {
	// PowLimit is the highest (easiest) target allowed.
	PowLimit *uint256.Int

	// PowLimitBits is the compact encoding of PowLimit.
	PowLimitBits uint32

	// TargetTimespan is the desired time for one retarget interval.
	TargetTimespan time.Duration

	// TargetTimePerBlock is the desired spacing between blocks.
	TargetTimePerBlock time.Duration

	// RetargetAdjustmentFactor bounds how much the target may move in one
	// adjustment, in both directions.
	RetargetAdjustmentFactor int64

	// ReduceMinDifficulty enables the testnet rule that allows a block at
	// PowLimitBits when it arrives more than MinDiffReductionTime after
	// its parent.
	ReduceMinDifficulty bool

	// MinDiffReductionTime is the gap that triggers the minimum
	// difficulty rule.
	MinDiffReductionTime time.Duration

	// NoRetargeting keeps the target constant across retarget
	// boundaries.
	NoRetargeting bool
}

// BlocksPerRetarget is the number of blocks between difficulty adjustments.
func (p *Params) BlocksPerRetarget() uint32 {
	return uint32(p.TargetTimespan / p.TargetTimePerBlock)
}

// TargetTimespanSecs returns the target timespan in seconds.
func (p *Params) TargetTimespanSecs() int64 {
	return int64(p.TargetTimespan / time.Second)
}

// MinRetargetTimespan is the smallest elapsed time an interval is credited
// with.
func (p *Params) MinRetargetTimespan() int64 {
	return p.TargetTimespanSecs() / p.RetargetAdjustmentFactor
}

// MaxRetargetTimespan is the largest elapsed time an interval is credited
// with.
func (p *Params) MaxRetargetTimespan() int64 {
	return p.TargetTimespanSecs() * p.RetargetAdjustmentFactor
}

// Validate checks the parameters are internally consistent.
func (p *Params) Validate() error {
	switch {
	case p.PowLimit == nil || p.PowLimit.IsZero():
		return fmt.Errorf("%w: zero pow limit", ErrInvalidParams)

	case p.TargetTimePerBlock < time.Second:
		return fmt.Errorf("%w: block spacing %v below one second",
			ErrInvalidParams, p.TargetTimePerBlock)

	case p.TargetTimespan%time.Second != 0:
		return fmt.Errorf("%w: timespan %v is not whole seconds",
			ErrInvalidParams, p.TargetTimespan)

	case p.BlocksPerRetarget() == 0:
		return fmt.Errorf("%w: timespan %v shorter than spacing %v",
			ErrInvalidParams, p.TargetTimespan,
			p.TargetTimePerBlock)

	case p.RetargetAdjustmentFactor < 1:
		return fmt.Errorf("%w: adjustment factor %d",
			ErrInvalidParams, p.RetargetAdjustmentFactor)

	case p.MinRetargetTimespan() == 0:
		return fmt.Errorf("%w: adjustment factor %d exceeds timespan",
			ErrInvalidParams, p.RetargetAdjustmentFactor)

	case p.ReduceMinDifficulty && p.MinDiffReductionTime <= 0:
		return fmt.Errorf("%w: min difficulty reduction time %v",
			ErrInvalidParams, p.MinDiffReductionTime)
	}

	limitBits, err := blockheader.CompactToTarget(p.PowLimitBits)
	if err != nil {
		return fmt.Errorf("%w: pow limit bits: %v", ErrInvalidParams,
			err)
	}
	if limitBits.IsZero() || limitBits.Gt(p.PowLimit) {
		return fmt.Errorf("%w: pow limit bits %08x do not encode the "+
			"pow limit", ErrInvalidParams, p.PowLimitBits)
	}

	return nil
}
