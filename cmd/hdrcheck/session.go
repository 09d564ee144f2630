package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/build"
	"github.com/lightninglabs/spvchain/headerstore"
	"github.com/lightninglabs/spvchain/merkle"
	"github.com/lightninglabs/spvchain/validator"
	"github.com/lightningnetwork/lnd/clock"
)

// session is the state one command works with: a validator rebuilt from the
// header store, the store itself and the run's metrics.
type session struct {
	cfg *config

	validator *validator.Validator
	store     *headerstore.Store
	metrics   *metrics
	rotator   *build.RotatingLogWriter
}

// openSession sets up logging, creates the validator and replays the stored
// headers into it.
func openSession(cfg *config) (*session, error) {
	rotator, err := setupLogging(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		metrics: newMetrics(),
		rotator: rotator,
	}

	s.validator, err = validator.New(validator.Config{
		Params:     cfg.params,
		MaxOrphans: cfg.MaxOrphans,
	})
	if err != nil {
		s.close()
		return nil, err
	}

	log.Infof("Validating %v headers, genesis %v", cfg.params.Name,
		cfg.params.GenesisHash)

	if cfg.NoPersist {
		return s, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		s.close()
		return nil, fmt.Errorf("unable to create data directory: %w",
			err)
	}

	s.store, err = headerstore.Open(
		filepath.Join(cfg.DataDir, headerstore.DBFilename),
		clock.NewDefaultClock(),
	)
	if err != nil {
		s.close()
		return nil, err
	}

	stats, err := s.store.Replay(s.validator)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("unable to replay stored headers: %w",
			err)
	}
	if stats.Rejected > 0 {
		log.Warnf("%d stored headers no longer validate",
			stats.Rejected)
	}

	return s, nil
}

// submit validates raw and stores it unless it was rejected.
func (s *session) submit(raw []byte) (validator.Outcome, error) {
	var (
		outcome validator.Outcome
		err     error
	)
	if s.store != nil {
		outcome, err = s.store.Submit(s.validator, raw)
	} else {
		outcome = s.validator.SubmitHeader(raw)
	}
	if err != nil {
		return outcome, err
	}

	s.metrics.observeOutcome(outcome)

	if outcome.Kind == validator.Rejected {
		log.Debugf("Header %v rejected: %v", outcome.Hash, outcome.Err)
	}

	return outcome, nil
}

// verify checks an inclusion proof against an indexed header.
func (s *session) verify(headerHash, leaf chainhash.Hash,
	proof *merkle.Proof) (bool, error) {

	ok, err := s.validator.VerifyInclusion(headerHash, leaf, proof)
	s.metrics.observeInclusion(ok, err)

	return ok, err
}

// close writes the metrics textfile and releases the store and the log
// file. Failures are logged since the command's own result matters more.
func (s *session) close() {
	if s.cfg.Metrics.Textfile != "" {
		err := s.metrics.writeTextfile(s.cfg.Metrics.Textfile)
		if err != nil {
			log.Errorf("Unable to write metrics: %v", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Errorf("Unable to close header store: %v", err)
		}
	}

	if s.rotator != nil {
		_ = s.rotator.Close()
	}
}
