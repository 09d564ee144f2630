package merkle

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// stepSize is the encoded size of a single step: the sibling hash followed
// by a one byte side flag.
const stepSize = chainhash.HashSize + 1

const (
	flagSiblingLeft  = 0x00
	flagSiblingRight = 0x01
)

// Encode writes the proof as a CompactSize step count followed by each
// step's sibling hash and side flag.
func (p *Proof) Encode(w io.Writer) error {
	err := wire.WriteVarInt(w, wire.ProtocolVersion, uint64(len(p.Steps)))
	if err != nil {
		return err
	}

	var buf [stepSize]byte
	for _, step := range p.Steps {
		copy(buf[:chainhash.HashSize], step.Sibling[:])

		buf[chainhash.HashSize] = flagSiblingLeft
		if step.SiblingIsRight {
			buf[chainhash.HashSize] = flagSiblingRight
		}

		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}

	return nil
}

// Bytes returns the serialized proof.
func (p *Proof) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(wire.VarIntSerializeSize(uint64(len(p.Steps))) +
		len(p.Steps)*stepSize)

	// Writes to a bytes.Buffer cannot fail.
	_ = p.Encode(&buf)

	return buf.Bytes()
}

// Decode reads a proof written by Encode. Unknown side flags, non-canonical
// counts and proofs deeper than MaxProofDepth are malformed.
func Decode(r io.Reader) (*Proof, error) {
	count, err := wire.ReadVarInt(r, wire.ProtocolVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: step count: %v", ErrMalformedProof,
			err)
	}
	if count > MaxProofDepth {
		return nil, fmt.Errorf("%w: depth %d exceeds %d",
			ErrMalformedProof, count, MaxProofDepth)
	}

	proof := &Proof{Steps: make([]Step, 0, count)}

	var buf [stepSize]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: step %d: %v",
				ErrMalformedProof, i, err)
		}

		var step Step
		copy(step.Sibling[:], buf[:chainhash.HashSize])

		switch buf[chainhash.HashSize] {
		case flagSiblingLeft:
		case flagSiblingRight:
			step.SiblingIsRight = true
		default:
			return nil, fmt.Errorf("%w: step %d has side flag %d",
				ErrMalformedProof, i, buf[chainhash.HashSize])
		}

		proof.Steps = append(proof.Steps, step)
	}

	return proof, nil
}

// DecodeBytes decodes a proof that must span all of b.
func DecodeBytes(b []byte) (*Proof, error) {
	r := bytes.NewReader(b)

	proof, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedProof, r.Len())
	}

	return proof, nil
}
