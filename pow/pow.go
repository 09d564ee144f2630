package pow

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/lightninglabs/spvchain/blockheader"
)

var (
	// ErrInsufficientWork is returned when a header's hash is above the
	// target it must meet.
	ErrInsufficientWork = errors.New("hash does not meet target")

	// ErrTargetOutOfRange is returned when a target is zero or above the
	// network's proof-of-work limit.
	ErrTargetOutOfRange = errors.New("target out of range")
)

// CheckProofOfWork ensures the header's hash, read as a little-endian
// integer, is no greater than target. A zero target can never be met.
func CheckProofOfWork(h *blockheader.Header, target *uint256.Int) error {
	if target.IsZero() {
		return fmt.Errorf("%w: zero target", ErrInsufficientWork)
	}

	hash := h.BlockHash()
	if blockheader.HashToTarget(hash).Gt(target) {
		return fmt.Errorf("%w: block hash %v is higher than target "+
			"%064x", ErrInsufficientWork, hash, target.Bytes32())
	}

	return nil
}

// CheckTargetRange ensures target lies in (0, powLimit].
func CheckTargetRange(target, powLimit *uint256.Int) error {
	if target.IsZero() {
		return fmt.Errorf("%w: zero target", ErrTargetOutOfRange)
	}

	if target.Gt(powLimit) {
		return fmt.Errorf("%w: target %064x is higher than max of "+
			"%064x", ErrTargetOutOfRange, target.Bytes32(),
			powLimit.Bytes32())
	}

	return nil
}
