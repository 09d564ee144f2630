package validator

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/chainindex"
	"github.com/lightninglabs/spvchain/chainwork"
	"github.com/lightninglabs/spvchain/merkle"
	"github.com/lightninglabs/spvchain/pow"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrUnknownHeader is returned by VerifyInclusion for headers that are not
// indexed.
var ErrUnknownHeader = errors.New("unknown header")

// Reason is the closed set of reasons a header or proof is refused.
type Reason uint8

const (
	// ReasonNone is the reason of an outcome that was not rejected.
	ReasonNone Reason = iota

	// ReasonInsufficientWork means the header's hash does not meet its
	// target.
	ReasonInsufficientWork

	// ReasonInvalidDifficultyTransition means the header declares bits
	// other than the ones required at its height.
	ReasonInvalidDifficultyTransition

	// ReasonMalformedHeader means the input is not an 80 byte header.
	ReasonMalformedHeader

	// ReasonInvalidBits means the header's compact target cannot be
	// decoded.
	ReasonInvalidBits

	// ReasonMalformedMerkleProof means an inclusion proof is
	// structurally invalid.
	ReasonMalformedMerkleProof

	// ReasonUnknownHeader means an inclusion proof refers to a header
	// that is not indexed.
	ReasonUnknownHeader
)

// String returns the name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonInsufficientWork:
		return "InsufficientWork"
	case ReasonInvalidDifficultyTransition:
		return "InvalidDifficultyTransition"
	case ReasonMalformedHeader:
		return "MalformedHeader"
	case ReasonInvalidBits:
		return "InvalidBits"
	case ReasonMalformedMerkleProof:
		return "MalformedMerkleProof"
	case ReasonUnknownHeader:
		return "UnknownHeader"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

// ReasonFromError maps an error returned by the validation packages onto
// the reason vocabulary. Work overflow is only reachable with hashes far
// below any real target, so it is reported as insufficient work.
func ReasonFromError(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, blockheader.ErrMalformedHeader):
		return ReasonMalformedHeader
	case errors.Is(err, blockheader.ErrInvalidBits):
		return ReasonInvalidBits
	case errors.Is(err, chainindex.ErrInvalidDifficultyTransition):
		return ReasonInvalidDifficultyTransition
	case errors.Is(err, pow.ErrInsufficientWork),
		errors.Is(err, chainwork.ErrOverflow),
		errors.Is(err, chainwork.ErrZeroTarget):
		return ReasonInsufficientWork
	case errors.Is(err, merkle.ErrMalformedProof):
		return ReasonMalformedMerkleProof
	case errors.Is(err, ErrUnknownHeader):
		return ReasonUnknownHeader
	default:
		// Anything else means the difficulty of the header could not
		// be established.
		return ReasonInvalidDifficultyTransition
	}
}

// OutcomeKind is the top level result of SubmitHeader.
type OutcomeKind uint8

const (
	// Accepted means the header is indexed. Resubmitting an indexed
	// header is also accepted.
	Accepted OutcomeKind = iota

	// Orphaned means the header's parent is unknown. The header is kept
	// and connected once its parent arrives.
	Orphaned

	// Rejected means the header is invalid. Nothing was stored.
	Rejected
)

// String returns the name of the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case Accepted:
		return "Accepted"
	case Orphaned:
		return "Orphaned"
	case Rejected:
		return "Rejected"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// Outcome is the result of submitting one header.
type Outcome struct {
	// Kind tells whether the header was accepted, orphaned or rejected.
	Kind OutcomeKind

	// Hash is the header's hash. It is zero when the input could not
	// be decoded.
	Hash chainhash.Hash

	// Height is the header's height for accepted headers.
	Height uint32

	// Reason explains a rejection.
	Reason Reason

	// Err carries the detailed rejection error.
	Err error

	// TipChanged is set when the best chain tip moved.
	TipChanged bool

	// Reorg is set when the best chain switched branches.
	Reorg fn.Option[chainindex.Reorg]

	// Promoted lists the orphans processed because of this header.
	Promoted []chainindex.Promotion
}

// String returns a compact description of the outcome.
func (o Outcome) String() string {
	switch o.Kind {
	case Accepted:
		return fmt.Sprintf("Accepted(%d)", o.Height)
	case Rejected:
		return fmt.Sprintf("Rejected(%v)", o.Reason)
	default:
		return o.Kind.String()
	}
}

func rejected(hash chainhash.Hash, err error) Outcome {
	return Outcome{
		Kind:   Rejected,
		Hash:   hash,
		Reason: ReasonFromError(err),
		Err:    err,
	}
}
