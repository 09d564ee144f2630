package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/spvchain/chainindex"
	"github.com/lightninglabs/spvchain/validator"
)

type submitCommand struct {
	Hex bool `long:"hex" description:"Read one hex encoded header per line instead of raw 80 byte records"`

	cfg *config
	out io.Writer
}

func newSubmitCommand(cfg *config) *submitCommand {
	return &submitCommand{
		cfg: cfg,
		out: os.Stdout,
	}
}

func (x *submitCommand) Register(parser *flags.Parser) error {
	_, err := parser.AddCommand(
		"submit",
		"Validate block headers and add them to the header chain",
		"Read block headers from the files given as arguments, or "+
			"from stdin if there are none, and submit them in "+
			"order; the outcome of each header is printed and "+
			"every header that is not rejected is stored in the "+
			"data directory unless --nopersist is set",
		x,
	)
	return err
}

func (x *submitCommand) Execute(args []string) error {
	s, err := openSession(x.cfg)
	if err != nil {
		return err
	}
	defer s.close()

	var counts [3]int
	err = forEachInput(args, func(name string, r io.Reader) error {
		log.Infof("Reading headers from %v", name)

		return readRecords(r, x.Hex, func(raw []byte) error {
			outcome, err := s.submit(raw)
			if err != nil {
				return err
			}
			counts[outcome.Kind]++

			printOutcome(x.out, outcome)

			return nil
		})
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(x.out, "accepted=%d orphaned=%d rejected=%d\n",
		counts[validator.Accepted], counts[validator.Orphaned],
		counts[validator.Rejected])

	return nil
}

// printOutcome writes one line per header, plus one per promoted orphan and
// reorg.
func printOutcome(w io.Writer, o validator.Outcome) {
	switch o.Kind {
	case validator.Rejected:
		fmt.Fprintf(w, "%v %v: %v\n", o.Hash, o, o.Err)
	default:
		fmt.Fprintf(w, "%v %v\n", o.Hash, o)
	}

	for _, p := range o.Promoted {
		if p.Err != nil {
			fmt.Fprintf(w, "%v promoted orphan rejected: %v\n",
				p.Hash, p.Err)
			continue
		}

		height := p.Node.UnwrapOr(chainindex.Node{}).Height
		fmt.Fprintf(w, "%v promoted orphan Accepted(%d)\n", p.Hash,
			height)
	}

	o.Reorg.WhenSome(func(r chainindex.Reorg) {
		fmt.Fprintf(w, "reorg depth=%d fork=%v new tip=%v\n",
			r.Depth(), r.Fork.Hash,
			r.Connected[len(r.Connected)-1].Hash)
	})
}
