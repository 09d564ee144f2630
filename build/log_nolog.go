//go:build nolog
// +build nolog

package build

// LoggingType is a log type that discards all output.
const LoggingType = LogTypeNone

// LogLevel is ignored when logging is compiled out.
const LogLevel = "off"
