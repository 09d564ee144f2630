//go:build stdlog
// +build stdlog

package build

// LoggingType is a log type that only writes to stdout.
const LoggingType = LogTypeStdOut

// LogLevel is the level given to every stdout sub logger. Tests built with
// the stdlog tag see all chain activity.
const LogLevel = "debug"
