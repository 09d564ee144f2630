package build

import (
	"sort"
	"sync"

	"github.com/btcsuite/btclog/v2"
)

// SubLoggerManager hands out subsystem loggers that share one handler and
// keeps track of them so their levels can be changed later.
type SubLoggerManager struct {
	root btclog.Logger

	mu      sync.Mutex
	loggers SubLoggers
}

// A compile-time check to ensure SubLoggerManager implements
// LeveledSubLogger.
var _ LeveledSubLogger = (*SubLoggerManager)(nil)

// NewSubLoggerManager creates a manager whose loggers all write through
// handler.
func NewSubLoggerManager(handler btclog.Handler) *SubLoggerManager {
	return &SubLoggerManager{
		root:    btclog.NewSLogger(handler),
		loggers: make(SubLoggers),
	}
}

// GenSubLogger creates the logger for subsystem, registers it and passes it
// to useLogger, which is normally a package's UseLogger function.
func (m *SubLoggerManager) GenSubLogger(subsystem string,
	useLogger func(btclog.Logger)) btclog.Logger {

	logger := NewSubLogger(subsystem, m.root.SubSystem)

	m.mu.Lock()
	m.loggers[subsystem] = logger
	m.mu.Unlock()

	if useLogger != nil {
		useLogger(logger)
	}

	return logger
}

// SubLoggers returns a copy of the registered subsystem loggers.
func (m *SubLoggerManager) SubLoggers() SubLoggers {
	m.mu.Lock()
	defer m.mu.Unlock()

	loggers := make(SubLoggers, len(m.loggers))
	for id, logger := range m.loggers {
		loggers[id] = logger
	}

	return loggers
}

// SupportedSubsystems returns the sorted subsystem names.
func (m *SubLoggerManager) SupportedSubsystems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	subsystems := make([]string, 0, len(m.loggers))
	for id := range m.loggers {
		subsystems = append(subsystems, id)
	}
	sort.Strings(subsystems)

	return subsystems
}

// SetLogLevel sets the level of a single subsystem. Unknown subsystems and
// levels are ignored.
func (m *SubLoggerManager) SetLogLevel(subsystemID, logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, ok := m.loggers[subsystemID]; ok {
		logger.SetLevel(level)
	}
}

// SetLogLevels sets every subsystem to the same level.
func (m *SubLoggerManager) SetLogLevels(logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}
}
