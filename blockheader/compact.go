package blockheader

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/holiman/uint256"
)

// ErrInvalidBits is returned when a compact target is negative, overflows
// 256 bits or is not in canonical form.
var ErrInvalidBits = errors.New("invalid compact target")

const (
	// compactSignBit is the sign bit of the 24-bit mantissa.
	compactSignBit = 0x00800000

	// compactMantissaMask selects the mantissa without the sign bit.
	compactMantissaMask = 0x007fffff
)

// CompactToTarget expands the compact representation of a target.
//
// The encoding is a base-256 floating point number: the high byte is the
// size of the number in bytes and the low 23 bits are the mantissa. Bit 23
// is a sign bit. A set sign bit, a value wider than 256 bits or an encoding
// that does not round trip through TargetToCompact yields ErrInvalidBits.
func CompactToTarget(bits uint32) (*uint256.Int, error) {
	if bits&compactSignBit != 0 {
		return nil, fmt.Errorf("%w: %08x has the sign bit set",
			ErrInvalidBits, bits)
	}

	var (
		mantissa = bits & compactMantissaMask
		exponent = uint(bits >> 24)
		target   = new(uint256.Int)
	)

	if exponent <= 3 {
		target.SetUint64(uint64(mantissa >> (8 * (3 - exponent))))
	} else {
		overflow := mantissa != 0 && (exponent > 34 ||
			(mantissa > 0xff && exponent > 33) ||
			(mantissa > 0xffff && exponent > 32))
		if overflow {
			return nil, fmt.Errorf("%w: %08x exceeds 256 bits",
				ErrInvalidBits, bits)
		}

		target.SetUint64(uint64(mantissa))
		target.Lsh(target, 8*(exponent-3))
	}

	if canon := TargetToCompact(target); canon != bits {
		return nil, fmt.Errorf("%w: %08x is not canonical, want %08x",
			ErrInvalidBits, bits, canon)
	}

	return target, nil
}

// TargetToCompact returns the canonical compact encoding of a target.
func TargetToCompact(target *uint256.Int) uint32 {
	if target.IsZero() {
		return 0
	}

	var (
		size     = uint((target.BitLen() + 7) / 8)
		mantissa uint32
	)
	if size <= 3 {
		mantissa = uint32(target.Uint64() << (8 * (3 - size)))
	} else {
		shifted := new(uint256.Int).Rsh(target, 8*(size-3))
		mantissa = uint32(shifted.Uint64())
	}

	// Keep the mantissa positive by moving a set sign bit into the next
	// byte of the exponent.
	if mantissa&compactSignBit != 0 {
		mantissa >>= 8
		size++
	}

	return uint32(size<<24) | mantissa
}

// HashToTarget interprets a block hash as a little-endian 256-bit integer so
// it can be compared against a target.
func HashToTarget(hash chainhash.Hash) *uint256.Int {
	var be [chainhash.HashSize]byte
	for i := range hash {
		be[chainhash.HashSize-1-i] = hash[i]
	}

	return new(uint256.Int).SetBytes32(be[:])
}
