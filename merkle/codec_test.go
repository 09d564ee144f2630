package merkle

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genProof(t *rapid.T) *Proof {
	depth := rapid.IntRange(0, MaxProofDepth).Draw(t, "depth")

	proof := &Proof{Steps: make([]Step, depth)}
	for i := range proof.Steps {
		raw := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "sibling")
		copy(proof.Steps[i].Sibling[:], raw)
		proof.Steps[i].SiblingIsRight = rapid.Bool().Draw(t, "right")
	}

	return proof
}

// TestProofCodecRoundTrip encodes and decodes random proofs.
func TestProofCodecRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		proof := genProof(t)

		raw := proof.Bytes()
		require.Len(t, raw, 1+len(proof.Steps)*stepSize)

		decoded, err := DecodeBytes(raw)
		require.NoError(t, err)
		require.Equal(t, proof.Steps, decoded.Steps)
	})
}

// TestProofCodecLayout pins the wire layout of a one step proof.
func TestProofCodecLayout(t *testing.T) {
	t.Parallel()

	sibling := chainhash.Hash{0x01, 0x02}
	proof := &Proof{Steps: []Step{{Sibling: sibling, SiblingIsRight: true}}}

	want := append([]byte{0x01}, sibling[:]...)
	want = append(want, 0x01)
	require.Equal(t, want, proof.Bytes())
}

// TestProofCodecMalformed covers every decoding failure.
func TestProofCodecMalformed(t *testing.T) {
	t.Parallel()

	step := bytes.Repeat([]byte{0xaa}, chainhash.HashSize)

	tests := []struct {
		name string
		raw  []byte
	}{
		{
			name: "empty",
			raw:  nil,
		},
		{
			name: "truncated step",
			raw:  append([]byte{0x01}, step[:10]...),
		},
		{
			name: "missing flag",
			raw:  append([]byte{0x01}, step...),
		},
		{
			name: "bad flag",
			raw:  append(append([]byte{0x01}, step...), 0x02),
		},
		{
			name: "too deep",
			raw:  []byte{MaxProofDepth + 1},
		},
		{
			name: "non canonical count",
			raw:  []byte{0xfd, 0x01, 0x00},
		},
		{
			name: "trailing bytes",
			raw:  []byte{0x00, 0x00},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := DecodeBytes(test.raw)
			require.ErrorIs(t, err, ErrMalformedProof)
		})
	}
}
