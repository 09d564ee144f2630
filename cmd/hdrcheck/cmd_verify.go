package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/spvchain/merkle"
	"github.com/lightninglabs/spvchain/validator"
)

// errInvalidProof makes the command exit with an error for a well formed
// proof that does not hold.
var errInvalidProof = errors.New("proof does not link the leaf to the " +
	"header's merkle root")

type verifyCommand struct {
	Header string `long:"header" description:"Hash of a stored header, in the usual byte reversed hex" required:"true"`
	Leaf   string `long:"leaf" description:"The transaction id to prove, in the usual byte reversed hex" required:"true"`
	Proof  string `long:"proof" description:"The hex encoded proof: a compact size step count followed by a 32 byte sibling hash and a side byte per step; empty for a single transaction block"`

	cfg *config
	out io.Writer
}

func newVerifyCommand(cfg *config) *verifyCommand {
	return &verifyCommand{
		cfg: cfg,
		out: os.Stdout,
	}
}

func (x *verifyCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"verify",
		"Verify that a transaction is committed to by a stored header",
		"Check a merkle inclusion proof against the merkle root of a "+
			"header previously accepted by the submit command; "+
			"the header may be on any branch",
		x,
	)
	return err
}

func (x *verifyCommand) Execute(_ []string) error {
	headerHash, err := chainhash.NewHashFromStr(x.Header)
	if err != nil {
		return fmt.Errorf("invalid header hash: %w", err)
	}
	leaf, err := chainhash.NewHashFromStr(x.Leaf)
	if err != nil {
		return fmt.Errorf("invalid leaf: %w", err)
	}

	s, err := openSession(x.cfg)
	if err != nil {
		return err
	}
	defer s.close()

	proof, err := parseProof(x.Proof)
	if err != nil {
		s.metrics.observeInclusion(false, err)
		return reasonError(err)
	}

	ok, err := s.verify(*headerHash, *leaf, proof)
	if err != nil {
		return reasonError(err)
	}
	if !ok {
		fmt.Fprintln(x.out, "invalid")
		return errInvalidProof
	}

	fmt.Fprintln(x.out, "valid")

	return nil
}

// parseProof decodes a hex encoded proof. An empty string is the proof of a
// single transaction block.
func parseProof(s string) (*merkle.Proof, error) {
	if s == "" {
		return &merkle.Proof{}, nil
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", merkle.ErrMalformedProof, err)
	}

	return merkle.DecodeBytes(raw)
}

// reasonError prefixes err with its rejection reason.
func reasonError(err error) error {
	return fmt.Errorf("%v: %w", validator.ReasonFromError(err), err)
}
