// Command hdrcheck validates bitcoin block headers and merkle inclusion
// proofs the way a light client does, keeping the accepted headers on disk
// between runs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

type command interface {
	flags.Commander
	Register(parser *flags.Parser) error
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}
}

// run parses args and executes the selected command. Defaults are
// overridden by the config file, which is overridden by the command line.
func run(args []string) error {
	cfg := defaultConfig()
	parser := newParser(cfg)

	configFile := preParseConfigFile(args)
	if err := loadConfigFile(parser, configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	_, err := parser.ParseArgs(args)

	return err
}

// newParser registers every command on a parser for cfg. The config is
// validated right before the selected command runs.
func newParser(cfg *config) *flags.Parser {
	parser := flags.NewParser(cfg, flags.Default)

	commands := []command{
		newSubmitCommand(cfg),
		newVerifyCommand(cfg),
		newMerkleBlockCommand(cfg),
	}
	for _, c := range commands {
		if err := c.Register(parser); err != nil {
			panic(err)
		}
	}

	parser.CommandHandler = func(c flags.Commander, args []string) error {
		if err := cfg.validate(); err != nil {
			return err
		}

		return c.Execute(args)
	}

	return parser
}
