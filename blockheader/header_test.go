package blockheader

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var headerVectors = []struct {
	name string
	raw  string
	hash string
}{
	{
		name: "mainnet genesis",
		raw: "0100000000000000000000000000000000000000000000000000" +
			"000000000000000000003ba3edfd7a7b12b27ac72c3e67768f61" +
			"7fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac" +
			"2b7c",
		hash: "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3" +
			"f1b60a8ce26f",
	},
	{
		name: "mainnet block 1",
		raw: "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a" +
			"089c68d6190000000000982051fd1e4ba744bbbe680e1fee1467" +
			"7ba1a3c3540bf7b1cdb606e857233e0e61bc6649ffff001d01e3" +
			"6299",
		hash: "00000000839a8e6886ab5951d76f411475428afc90947ee32016" +
			"1bbf18eb6048",
	},
	{
		name: "mainnet block 2",
		raw: "010000004860eb18bf1b1620e37e9490fc8a427514416fd75159" +
			"ab86688e9a8300000000d5fdcc541e25de1c7a5addedf24858b8" +
			"bb665c9f36ef744ee42c316022c90f9bb0bc6649ffff001d08d2" +
			"bd61",
		hash: "000000006a625f06636b8bb6ac7b960a8d03705d1ace08b1a19d" +
			"a3fdcc99ddbd",
	},
}

// TestHeaderVectors decodes real headers and checks their hashes and
// re-encoding.
func TestHeaderVectors(t *testing.T) {
	t.Parallel()

	for _, test := range headerVectors {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			raw, err := hex.DecodeString(test.raw)
			require.NoError(t, err)

			h, err := Decode(raw)
			require.NoError(t, err)
			require.Equal(t, uint32(0x1d00ffff), h.Bits)
			require.EqualValues(t, 1, h.Version)

			require.Equal(t, test.hash, h.BlockHash().String())

			enc := h.Encode()
			require.Equal(t, raw, enc[:])
		})
	}
}

// TestGenesisMatchesChainParams compares the decoded genesis with the header
// btcd ships for mainnet.
func TestGenesisMatchesChainParams(t *testing.T) {
	t.Parallel()

	raw, err := hex.DecodeString(headerVectors[0].raw)
	require.NoError(t, err)

	h, err := Decode(raw)
	require.NoError(t, err)

	want := chaincfg.MainNetParams.GenesisBlock.Header
	require.Equal(t, FromWire(&want), h)
	require.Equal(t, *chaincfg.MainNetParams.GenesisHash, h.BlockHash())
}

// TestDecodeLength asserts that anything but 80 bytes is malformed.
func TestDecodeLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 79, 81, 160} {
		_, err := Decode(make([]byte, n))
		require.ErrorIs(t, err, ErrMalformedHeader, "len %d", n)
	}

	_, err := Decode(make([]byte, Size))
	require.NoError(t, err)
}

// TestDeserializeShortStream ensures a truncated stream is malformed.
func TestDeserializeShortStream(t *testing.T) {
	t.Parallel()

	_, err := Deserialize(bytes.NewReader(make([]byte, 40)))
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func genHeader(t *rapid.T) *Header {
	hash := func(label string) chainhash.Hash {
		var h chainhash.Hash
		copy(h[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, label))
		return h
	}

	return &Header{
		Version:    rapid.Int32().Draw(t, "version"),
		PrevBlock:  hash("prev"),
		MerkleRoot: hash("merkle"),
		Timestamp:  rapid.Uint32().Draw(t, "timestamp"),
		Bits:       rapid.Uint32().Draw(t, "bits"),
		Nonce:      rapid.Uint32().Draw(t, "nonce"),
	}
}

// TestHeaderRoundTrip checks decode(encode(h)) == h and that the encoding
// agrees byte for byte with btcd's wire header.
func TestHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		h := genHeader(t)

		enc := h.Encode()
		decoded, err := Decode(enc[:])
		require.NoError(t, err)
		require.Equal(t, h, decoded)

		wh := wire.NewBlockHeader(
			h.Version, &h.PrevBlock, &h.MerkleRoot, h.Bits, h.Nonce,
		)
		wh.Timestamp = time.Unix(int64(h.Timestamp), 0)

		var buf bytes.Buffer
		require.NoError(t, wh.Serialize(&buf))
		require.Equal(t, buf.Bytes(), enc[:])
		require.Equal(t, wh.BlockHash(), h.BlockHash())
	})
}
