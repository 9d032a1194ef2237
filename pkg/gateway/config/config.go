//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package config provides configuration management for the policy gateway
// using [Viper] for flexible configuration sources.
//
// Configuration can be provided via:
//   - YAML configuration files
//   - Environment variables with the PGW_ prefix
//   - Programmatic defaults
//
// # Configuration File
//
// By default, the gateway looks for pgw-config.yaml in the current directory.
// Override the location using environment variables:
//
//	PGW_CONFIG_PATH=/etc/policygateway
//	PGW_CONFIG_FILENAME=production-config
//
// Example configuration file:
//
//	log:
//	  level: ".:info"
//	engine:
//	  url: http://localhost:8181
//	  policypath: /v1/data/authz/allow
//	  timeoutms: 500
//	retry:
//	  max: 2
//	  delayms: 100
//	breaker:
//	  threshold: 5
//	  opendurationms: 10000
//	  halfopenwaitms: 5000
//	enforcement:
//	  skiplist:
//	    - /api/public/
//	    - /health
//
// # Environment Variables
//
// All configuration keys can be set via environment variables with the PGW_
// prefix. Dots in key names become underscores:
//
//	PGW_ENGINE_URL=http://opa:8181
//	PGW_BREAKER_THRESHOLD=10
//
// [Viper]: https://github.com/spf13/viper
package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/manetu/policygateway/internal/logging"
	"github.com/spf13/viper"
)

// Environment variable and default path constants for configuration loading.
const (
	// EnvVarPrefix is the prefix for all policy gateway environment variables.
	// For example, the key "engine.url" becomes PGW_ENGINE_URL.
	EnvVarPrefix string = "PGW"

	// ConfigPathEnv is the environment variable that specifies the directory
	// containing the configuration file.
	ConfigPathEnv string = "PGW_CONFIG_PATH"

	// ConfigFileNameEnv is the environment variable that specifies the
	// configuration file name (without extension).
	ConfigFileNameEnv string = "PGW_CONFIG_FILENAME"

	// ConfigDefaultPath is the default directory to search for config files.
	ConfigDefaultPath string = "."

	// ConfigDefaultFilename is the default configuration file name (without extension).
	ConfigDefaultFilename string = "pgw-config"
)

// Configuration key constants for use with [VConfig].
const (
	logLevel string = "log.level"

	// EngineURL is the base URL of the remote policy engine.
	EngineURL string = "engine.url"

	// EnginePolicyPath is the path of the policy decision document on the
	// engine, queried with POST {"input": ...}.
	EnginePolicyPath string = "engine.policypath"

	// EngineTimeoutMs bounds each individual decision call to the engine.
	EngineTimeoutMs string = "engine.timeoutms"

	// EngineHealthTimeoutMs bounds the engine reachability probe.
	EngineHealthTimeoutMs string = "engine.healthtimeoutms"

	// RetryMax is the number of retries after the initial decision attempt.
	RetryMax string = "retry.max"

	// RetryDelayMs is the fixed delay between retry attempts.
	RetryDelayMs string = "retry.delayms"

	// BreakerThreshold is the number of consecutive engine failures that
	// trips the circuit breaker from CLOSED to OPEN.
	BreakerThreshold string = "breaker.threshold"

	// BreakerOpenDurationMs is how long the breaker stays OPEN before a
	// HALF_OPEN probe is permitted.
	BreakerOpenDurationMs string = "breaker.opendurationms"

	// BreakerHalfOpenWaitMs bounds how long a HALF_OPEN probe may remain
	// unresolved before the breaker reverts to OPEN.
	BreakerHalfOpenWaitMs string = "breaker.halfopenwaitms"

	// EnforcementSkipList is the list of inbound paths exempt from
	// enforcement. Entries ending in '/' match as prefixes, others exactly.
	EnforcementSkipList string = "enforcement.skiplist"

	// EnforcementRulesFile optionally points at a YAML file of mapping
	// rules, replacing the built-in defaults.
	EnforcementRulesFile string = "enforcement.rulesfile"
)

var (
	once     sync.Once
	loadOnce sync.Once
	loadErr  error

	// VConfig is the global Viper configuration instance for the gateway.
	//
	// Use the configuration key constants ([EngineURL], [BreakerThreshold],
	// etc.) to access specific settings:
	//
	//	url := config.VConfig.GetString(config.EngineURL)
	//
	// VConfig is initialized automatically when [Load] or [Init] is called.
	VConfig *viper.Viper
	logger  = logging.GetLogger("policygateway.config")
)

// Init initializes the configuration system without loading config files.
//
// Init sets up Viper with:
//   - Configuration file paths and names
//   - Environment variable handling (PGW_ prefix)
//   - Default values for all configuration keys
//
// This function is safe to call multiple times; subsequent calls are no-ops.
// Most applications don't need to call Init directly; it's called
// automatically by [Load].
func Init() {
	once.Do(doInitialize)
}

func getConfigPath() string {
	if configPath, ok := os.LookupEnv(ConfigPathEnv); ok {
		return configPath
	}
	return ConfigDefaultPath
}

func getConfigFileName() string {
	if configName, ok := os.LookupEnv(ConfigFileNameEnv); ok {
		return configName
	}
	return ConfigDefaultFilename
}

func doInitialize() {
	VConfig = viper.New()

	// set up config-file loading:  default is './pgw-config.yaml' but can be
	// overridden with $(PGW_CONFIG_PATH)/$(PGW_CONFIG_FILENAME).yaml
	VConfig.AddConfigPath(getConfigPath())
	VConfig.SetConfigName(getConfigFileName())
	VConfig.SetConfigType("yaml")

	// set up envvar handling:  keys such as 'engine.url' become 'PGW_ENGINE_URL'
	VConfig.SetEnvPrefix(EnvVarPrefix)
	VConfig.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	VConfig.AutomaticEnv()

	// set up VConfig defaults
	VConfig.SetDefault(logLevel, ".:info")
	VConfig.SetDefault(EngineURL, "http://localhost:8181")
	VConfig.SetDefault(EnginePolicyPath, "/v1/data/authz/allow")
	VConfig.SetDefault(EngineTimeoutMs, 500)
	VConfig.SetDefault(EngineHealthTimeoutMs, 2000)
	VConfig.SetDefault(RetryMax, 2)
	VConfig.SetDefault(RetryDelayMs, 100)
	VConfig.SetDefault(BreakerThreshold, 5)
	VConfig.SetDefault(BreakerOpenDurationMs, 10000)
	VConfig.SetDefault(BreakerHalfOpenWaitMs, 5000)
	VConfig.SetDefault(EnforcementSkipList, []string{
		"/api/public/",
		"/api/check-access",
		"/health",
		"/metrics",
		"/",
	})
	VConfig.SetDefault(EnforcementRulesFile, "")
}

// Load initializes configuration and loads settings from files and environment.
//
// Load performs the following steps:
//  1. Calls [Init] if not already called
//  2. Reads the configuration file (if present; missing files are not an error)
//  3. Applies environment variable overrides
//  4. Updates log levels based on configuration
//
// This function is safe to call concurrently from multiple goroutines.
// Subsequent calls after the first successful load are no-ops that return nil.
func Load() error {
	loadOnce.Do(func() {
		Init()

		// Early log level update from environment variable allows us to debug the config loading.
		if earlyLoglevel := os.Getenv("PGW_LOG_LEVEL"); earlyLoglevel != "" {
			if err := logging.UpdateLogLevels(earlyLoglevel); err != nil {
				logger.SysErrorf("Failed updating early log level %s: %+v", earlyLoglevel, err)
				loadErr = err
				return
			}
		}

		logger.SysDebugf("Loading configuration from %s/%s.yaml", getConfigPath(), getConfigFileName())
		if err := VConfig.ReadInConfig(); err != nil {
			// Only log if it's an actual error, not just a missing config file
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				logger.SysWarnf("error reading config; using defaults: %+v", err)
			}
			logger.SysDebugf("No config file found at %s/%s.yaml", getConfigPath(), getConfigFileName())
		}

		// Update log levels based on final configuration
		loglevel := VConfig.GetString(logLevel)
		if err := logging.UpdateLogLevels(loglevel); err != nil {
			logger.SysErrorf("Failed updating log level %s: %+v", loglevel, err)
			loadErr = err
			return
		}

		if logger.IsDebugEnabled() {
			VConfig.DebugTo(logger.Out())
		}
	})

	return loadErr
}

// ResetConfig clears all configuration and reinitializes with defaults.
//
// WARNING: This function is intended for testing only. It resets the global
// configuration state, which can cause race conditions in concurrent code.
func ResetConfig() {
	VConfig = nil
	once = sync.Once{}
	loadOnce = sync.Once{}
	loadErr = nil
	Init()
	_ = Load()
}

// Millis reads the named key as a millisecond count and returns it as a
// duration.
func Millis(key string) time.Duration {
	return time.Duration(VConfig.GetInt64(key)) * time.Millisecond
}
