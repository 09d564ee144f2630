//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

// LoggingType is a log type that writes to the handlers configured by the
// host application, if any.
const LoggingType = LogTypeDefault

// LogLevel is unused by the default build, sub loggers get their level from
// the host application.
const LogLevel = "info"
