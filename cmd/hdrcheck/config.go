package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/spvchain/build"
	"github.com/lightninglabs/spvchain/netparams"
	"github.com/lightninglabs/spvchain/validator"
)

const (
	defaultConfigFilename = "hdrcheck.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "hdrcheck.log"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"
)

var (
	defaultAppDir     = btcutil.AppDataDir("hdrcheck", false)
	defaultConfigFile = filepath.Join(defaultAppDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultAppDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultAppDir, defaultLogDirname)
)

type metricsConfig struct {
	Textfile string `long:"textfile" description:"Write prometheus metrics in the text exposition format to this file when a command finishes"`
}

// config is the global configuration shared by all commands.
//
//nolint:lll
type config struct {
	ConfigFile string `long:"configfile" description:"Path to configuration file"`
	DataDir    string `long:"datadir" description:"The directory to store submitted headers in"`
	NoPersist  bool   `long:"nopersist" description:"Neither load nor store headers, every run starts at genesis"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	Network    string `long:"network" description:"The network the headers belong to" choice:"mainnet" choice:"testnet" choice:"testnet3" choice:"regtest" choice:"simnet" choice:"signet"`
	MaxOrphans int    `long:"maxorphans" description:"Maximum number of orphan headers kept in memory (0 for no limit)"`

	Metrics *metricsConfig `group:"Metrics" namespace:"metrics"`

	LogConfig *build.LogConfig `group:"logging" namespace:"logging"`

	// params is derived from Network during validation.
	params *netparams.Params
}

func defaultConfig() *config {
	return &config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Network:    defaultNetwork,
		MaxOrphans: validator.DefaultMaxOrphans,
		Metrics:    &metricsConfig{},
		LogConfig:  build.DefaultLogConfig(),
	}
}

// preParseConfigFile picks up an alternative config file from the command
// line before the full parse.
func preParseConfigFile(args []string) string {
	preCfg := defaultConfig()
	preParser := flags.NewParser(preCfg, flags.IgnoreUnknown)

	// Errors are reported by the full parse.
	_, _ = preParser.ParseArgs(args)

	return cleanAndExpandPath(preCfg.ConfigFile)
}

// loadConfigFile applies the options of the INI file at path to the
// parser's data. A missing default config file is not an error.
func loadConfigFile(parser *flags.Parser, path string) error {
	err := flags.NewIniParser(parser).ParseFile(path)
	switch {
	case err == nil:
		return nil

	case errors.Is(err, os.ErrNotExist) && path == defaultConfigFile:
		return nil

	default:
		return fmt.Errorf("unable to load config file %v: %w", path,
			err)
	}
}

// validate normalizes paths and checks the options for consistency.
func (c *config) validate() error {
	params, err := netparams.ByName(c.Network)
	if err != nil {
		return err
	}
	c.params = params

	if c.MaxOrphans < 0 {
		return fmt.Errorf("maxorphans must not be negative")
	}

	if err := c.LogConfig.Validate(); err != nil {
		return err
	}

	c.DataDir = filepath.Join(cleanAndExpandPath(c.DataDir), params.Name)
	c.LogDir = filepath.Join(cleanAndExpandPath(c.LogDir), params.Name)
	c.Metrics.Textfile = cleanAndExpandPath(c.Metrics.Textfile)

	return nil
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
