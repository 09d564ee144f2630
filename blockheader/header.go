package blockheader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Size is the length of a serialized block header.
const Size = wire.MaxBlockHeaderPayload

// ErrMalformedHeader is returned when a header cannot be decoded from its
// serialized form.
var ErrMalformedHeader = errors.New("malformed block header")

// Header is a decoded Bitcoin block header. Timestamps are kept as the raw
// 32-bit seconds value found on the wire so that header processing never
// depends on time zone or clock state.
type Header struct {
	// Version is the block version. It is carried opaquely.
	Version int32

	// PrevBlock is the hash of the parent header.
	PrevBlock chainhash.Hash

	// MerkleRoot commits to the block's transactions.
	MerkleRoot chainhash.Hash

	// Timestamp is the block time in seconds since the unix epoch.
	Timestamp uint32

	// Bits is the compact encoding of the block's target.
	Bits uint32

	// Nonce is the proof-of-work nonce.
	Nonce uint32
}

// Decode parses a header from exactly Size bytes.
func Decode(b []byte) (*Header, error) {
	if len(b) != Size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrMalformedHeader, len(b), Size)
	}

	return Deserialize(bytes.NewReader(b))
}

// Deserialize reads a single header from r.
func Deserialize(r io.Reader) (*Header, error) {
	var wh wire.BlockHeader
	if err := wh.Deserialize(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	return FromWire(&wh), nil
}

// FromWire converts a btcd wire header.
func FromWire(wh *wire.BlockHeader) *Header {
	return &Header{
		Version:    wh.Version,
		PrevBlock:  wh.PrevBlock,
		MerkleRoot: wh.MerkleRoot,
		Timestamp:  uint32(wh.Timestamp.Unix()),
		Bits:       wh.Bits,
		Nonce:      wh.Nonce,
	}
}

// ToWire converts the header into its btcd wire form.
func (h *Header) ToWire() *wire.BlockHeader {
	return &wire.BlockHeader{
		Version:    h.Version,
		PrevBlock:  h.PrevBlock,
		MerkleRoot: h.MerkleRoot,
		Timestamp:  time.Unix(int64(h.Timestamp), 0),
		Bits:       h.Bits,
		Nonce:      h.Nonce,
	}
}

// Serialize writes the 80-byte encoding of the header to w.
func (h *Header) Serialize(w io.Writer) error {
	return h.ToWire().Serialize(w)
}

// Encode returns the 80-byte encoding of the header.
func (h *Header) Encode() [Size]byte {
	var (
		buf bytes.Buffer
		out [Size]byte
	)
	buf.Grow(Size)

	// Writes to a bytes.Buffer cannot fail.
	_ = h.Serialize(&buf)
	copy(out[:], buf.Bytes())

	return out
}

// BlockHash returns the double SHA-256 of the encoded header.
func (h *Header) BlockHash() chainhash.Hash {
	enc := h.Encode()
	return chainhash.DoubleHashH(enc[:])
}

// String returns a short description of the header for logging.
func (h *Header) String() string {
	return fmt.Sprintf("header(hash=%v, prev=%v, time=%d, bits=%08x)",
		h.BlockHash(), h.PrevBlock, h.Timestamp, h.Bits)
}
