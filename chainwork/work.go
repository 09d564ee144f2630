package chainwork

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when adding two work values would exceed
	// 2^256-1.
	ErrOverflow = errors.New("chain work overflows 256 bits")

	// ErrZeroTarget is returned when the work of a zero target is
	// requested. No hash can be below a zero target, so such a header
	// proves nothing.
	ErrZeroTarget = errors.New("target is zero")
)

// Work is an unsigned 256-bit quantity measuring the expected number of hash
// attempts behind a header or a chain of headers. The zero value is zero
// work.
type Work struct {
	v uint256.Int
}

// Zero is the work of an empty chain.
var Zero = Work{}

// FromUint64 returns a Work holding the passed value.
func FromUint64(n uint64) Work {
	var w Work
	w.v.SetUint64(n)

	return w
}

// FromBig converts a big integer into a Work value. Negative numbers and
// numbers wider than 256 bits are rejected with ErrOverflow.
func FromBig(n *big.Int) (Work, error) {
	if n.Sign() < 0 {
		return Zero, fmt.Errorf("negative work %v: %w", n, ErrOverflow)
	}

	v, overflow := uint256.FromBig(n)
	if overflow {
		return Zero, ErrOverflow
	}

	return Work{v: *v}, nil
}

// CalcWork returns the work represented by a target, floor(2^256 /
// (target+1)).
//
// 2^256 does not fit in 256 bits, so the quotient is computed as
// (~target / (target+1)) + 1, which is equal for every target below 2^256-1.
// The maximum target itself yields a work of one.
func CalcWork(target *uint256.Int) (Work, error) {
	if target.IsZero() {
		return Zero, ErrZeroTarget
	}

	var (
		denom uint256.Int
		w     Work
	)
	if _, overflow := denom.AddOverflow(target, uint256.NewInt(1)); overflow {
		return FromUint64(1), nil
	}

	w.v.Not(target)
	w.v.Div(&w.v, &denom)
	w.v.AddUint64(&w.v, 1)

	return w, nil
}

// Add returns w + o, or ErrOverflow if the sum does not fit in 256 bits.
func (w Work) Add(o Work) (Work, error) {
	var sum Work
	if _, overflow := sum.v.AddOverflow(&w.v, &o.v); overflow {
		return Zero, ErrOverflow
	}

	return sum, nil
}

// Cmp compares w and o and returns -1, 0 or +1.
func (w Work) Cmp(o Work) int {
	return w.v.Cmp(&o.v)
}

// Less reports whether w < o.
func (w Work) Less(o Work) bool {
	return w.v.Lt(&o.v)
}

// IsZero reports whether w is zero.
func (w Work) IsZero() bool {
	return w.v.IsZero()
}

// Big returns the work as a big integer.
func (w Work) Big() *big.Int {
	return w.v.ToBig()
}

// Bytes returns the big-endian 32-byte representation of w.
func (w Work) Bytes() [32]byte {
	return w.v.Bytes32()
}

// String returns the work as a 0x-prefixed hex string.
func (w Work) String() string {
	return w.v.Hex()
}
