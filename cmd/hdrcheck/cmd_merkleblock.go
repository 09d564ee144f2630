package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/wire"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/merkle"
	"github.com/lightninglabs/spvchain/validator"
)

type merkleBlockCommand struct {
	Hex bool `long:"hex" description:"The inputs hold one hex encoded merkleblock per line instead of a single raw payload"`

	cfg *config
	out io.Writer
}

func newMerkleBlockCommand(cfg *config) *merkleBlockCommand {
	return &merkleBlockCommand{
		cfg: cfg,
		out: os.Stdout,
	}
}

func (x *merkleBlockCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"merkleblock",
		"Extract and verify the transactions proven by merkleblocks",
		"Read BIP 37 merkleblock payloads from the files given as "+
			"arguments, or from stdin if there are none; the "+
			"header of each is submitted first, then every "+
			"matched transaction is verified against it and "+
			"printed with its proof",
		x,
	)
	return err
}

func (x *merkleBlockCommand) Execute(args []string) error {
	s, err := openSession(x.cfg)
	if err != nil {
		return err
	}
	defer s.close()

	return forEachInput(args, func(name string, r io.Reader) error {
		log.Infof("Reading merkleblocks from %v", name)

		if !x.Hex {
			payload, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			return x.process(s, payload)
		}

		return readHexLines(r, func(payload []byte) error {
			return x.process(s, payload)
		})
	})
}

// process handles a single merkleblock payload. Header rejections and bad
// partial trees are reported and do not stop the command.
func (x *merkleBlockCommand) process(s *session, payload []byte) error {
	var mb wire.MsgMerkleBlock
	err := mb.BtcDecode(
		bytes.NewReader(payload), wire.ProtocolVersion,
		wire.BaseEncoding,
	)
	if err != nil {
		return fmt.Errorf("unable to decode merkleblock: %w", err)
	}

	enc := blockheader.FromWire(&mb.Header).Encode()
	outcome, err := s.submit(enc[:])
	if err != nil {
		return err
	}
	printOutcome(x.out, outcome)

	if outcome.Kind != validator.Accepted {
		return nil
	}

	matches, err := merkle.ExtractProofs(&mb)
	if err != nil {
		fmt.Fprintf(x.out, "%v %v: %v\n", outcome.Hash,
			validator.ReasonMalformedMerkleProof, err)
		return nil
	}

	for _, m := range matches.Matches {
		ok, err := s.verify(matches.BlockHash, m.TxID, m.Proof)
		switch {
		case err != nil:
			fmt.Fprintf(x.out, "  %v %d %v\n", m.TxID, m.Index,
				validator.ReasonFromError(err))

		case !ok:
			fmt.Fprintf(x.out, "  %v %d invalid\n", m.TxID,
				m.Index)

		default:
			fmt.Fprintf(x.out, "  %v %d valid %x\n", m.TxID,
				m.Index, m.Proof.Bytes())
		}
	}

	for _, txid := range matches.Unprovable {
		fmt.Fprintf(x.out, "  %v unprovable\n", txid)
	}

	return nil
}
