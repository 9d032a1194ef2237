//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// LogManager keeps track of all instantiated loggers
type LogManager struct {
	loggers  map[string]*Logger
	defLevel zapcore.Level
}

// Manager's singleton variables
var (
	manager *LogManager
	mu      sync.RWMutex
	once    sync.Once
)

// resetForTesting resets the manager state - only for testing
func resetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	manager = nil
	once = sync.Once{}
}

func initManager() {
	manager = &LogManager{
		loggers:  make(map[string]*Logger),
		defLevel: zapcore.InfoLevel,
	}
}

// GetLogger returns a logger for the specified module
func GetLogger(module string) *Logger {
	once.Do(initManager)

	mu.RLock()
	if aLogger := manager.loggers[module]; aLogger != nil {
		mu.RUnlock()
		return aLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if aLogger := manager.loggers[module]; aLogger != nil {
		return aLogger
	}

	aLogger := newLogger(module)
	aLogger.SetLevel(manager.defLevel)
	manager.loggers[module] = aLogger

	return aLogger
}

// parseLevel converts a string level to zapcore.Level
func parseLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "fatal":
		return zapcore.FatalLevel
	case "error":
		return zapcore.ErrorLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "info":
		return zapcore.InfoLevel
	case "debug", "trace":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// UpdateLogLevels updates log levels from a string of the form:
// "mod1:debug;mod2:error;.:info"
// Allows whitespace for readability
func UpdateLogLevels(logstr string) error {
	once.Do(initManager)

	// Strip whitespace
	for _, s := range []string{" ", "\t", "\n"} {
		logstr = strings.ReplaceAll(logstr, s, "")
	}

	mu.Lock()
	defer mu.Unlock()

	// Track which modules have explicit levels set
	explicitModules := make(map[string]bool)
	var defaultLevel zapcore.Level
	hasDefault := false

	for _, l := range strings.Split(logstr, ";") {
		parts := strings.Split(l, ":")
		if len(parts) != 2 {
			continue
		}

		mod := parts[0]
		level := parseLevel(parts[1])

		if mod == "." {
			defaultLevel = level
			hasDefault = true
			continue
		}

		explicitModules[mod] = true
		logger := manager.loggers[mod]
		if logger == nil {
			logger = newLogger(mod)
			manager.loggers[mod] = logger
		}
		logger.SetLevel(level)
	}

	// Apply the default level to modules without an explicit override
	if hasDefault {
		manager.defLevel = defaultLevel
		for mod, logger := range manager.loggers {
			if !explicitModules[mod] {
				logger.SetLevel(defaultLevel)
			}
		}
	}

	return nil
}
