package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lightninglabs/spvchain/blockheader"
)

// readRecords calls cb for every record of r. Records are either raw 80 byte
// headers back to back, or hex strings one per line when hexLines is set.
// In hex mode blank lines and lines starting with # are skipped. A short
// trailing raw record is passed to cb as is.
func readRecords(r io.Reader, hexLines bool, cb func([]byte) error) error {
	if hexLines {
		return readHexLines(r, cb)
	}

	for {
		record := make([]byte, blockheader.Size)
		n, err := io.ReadFull(r, record)
		switch {
		case errors.Is(err, io.EOF):
			return nil

		case errors.Is(err, io.ErrUnexpectedEOF):
			return cb(record[:n])

		case err != nil:
			return err
		}

		if err := cb(record); err != nil {
			return err
		}
	}
}

func readHexLines(r io.Reader, cb func([]byte) error) error {
	scanner := bufio.NewScanner(r)

	var lineNum int
	for scanner.Scan() {
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		record, err := hex.DecodeString(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}

		if err := cb(record); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// forEachInput opens every named file, or stdin when there are none or the
// name is -, and passes it to cb.
func forEachInput(names []string, cb func(name string, r io.Reader) error) error {
	if len(names) == 0 {
		names = []string{"-"}
	}

	for _, name := range names {
		if name == "-" {
			if err := cb("stdin", os.Stdin); err != nil {
				return err
			}
			continue
		}

		f, err := os.Open(cleanAndExpandPath(name))
		if err != nil {
			return err
		}

		err = cb(name, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%v: %w", name, err)
		}
	}

	return nil
}
