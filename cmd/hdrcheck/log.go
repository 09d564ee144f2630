package main

import (
	"path/filepath"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/spvchain/build"
	"github.com/lightninglabs/spvchain/chainindex"
	"github.com/lightninglabs/spvchain/headerstore"
	"github.com/lightninglabs/spvchain/merkle"
	"github.com/lightninglabs/spvchain/retarget"
	"github.com/lightninglabs/spvchain/validator"
)

// Subsystem is the logging code of the command itself.
const Subsystem = "HDRC"

// log is the command's logger. It stays disabled until setupLogging runs.
var log btclog.Logger = btclog.Disabled

// setupLoggers registers a sub logger for every package with the manager.
func setupLoggers(root *build.SubLoggerManager) {
	log = root.GenSubLogger(Subsystem, nil)

	root.GenSubLogger(chainindex.Subsystem, chainindex.UseLogger)
	root.GenSubLogger(retarget.Subsystem, retarget.UseLogger)
	root.GenSubLogger(merkle.Subsystem, merkle.UseLogger)
	root.GenSubLogger(validator.Subsystem, validator.UseLogger)
	root.GenSubLogger(headerstore.Subsystem, headerstore.UseLogger)
}

// setupLogging wires the console and the rotating log file into every
// package logger and applies the debug levels. The returned writer must be
// closed on exit.
func setupLogging(cfg *config) (*build.RotatingLogWriter, error) {
	var rotator *build.RotatingLogWriter
	if !cfg.LogConfig.File.Disable {
		var err error
		rotator, err = build.NewRotatingLogWriter(
			cfg.LogConfig.File,
			filepath.Join(cfg.LogDir, defaultLogFilename),
		)
		if err != nil {
			return nil, err
		}
	}

	root := build.NewSubLoggerManager(
		build.NewLogHandler(cfg.LogConfig, rotator),
	)
	setupLoggers(root)

	err := build.ParseAndSetDebugLevels(cfg.DebugLevel, root)
	if err != nil {
		if rotator != nil {
			_ = rotator.Close()
		}

		return nil, err
	}

	return rotator, nil
}
