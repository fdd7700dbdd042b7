// config.go
// Configuration loading: locates the JSON config file, merges it onto the
// compiled-in defaults, validates the result, and falls back to pure
// defaults when the file is missing or broken. A missing file gets a
// default config written so users have something to edit.
package ghosttype

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// Configuration Loading
// =============================================================================

// LoadConfig loads configuration from standard locations, merges with
// defaults, validates, and attempts to write a default config if needed.
// The returned Config is always usable even when the error is non-nil; a
// non-nil error wraps ErrConfig and describes what went wrong along the way.
func LoadConfig(logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := getDefaultConfig()
	var loadedFromFile bool
	var loadErrors []error
	var configParseError error

	primaryPath, secondaryPath, pathErr := GetConfigPaths(logger)
	if pathErr != nil {
		loadErrors = append(loadErrors, pathErr)
		logger.Warn("Could not determine config paths, using defaults", "error", pathErr)
	}

	if primaryPath != "" {
		logger.Debug("Attempting to load config", "path", primaryPath)
		loaded, loadErr := LoadAndMergeConfig(primaryPath, &cfg, logger)
		if loadErr != nil {
			if strings.Contains(loadErr.Error(), "parsing config file JSON") {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", primaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", primaryPath, "error", loadErr)
		} else if loaded {
			loadedFromFile = true
			logger.Info("Loaded config", "path", primaryPath)
		}
	}

	primaryNotFoundOrFailed := !loadedFromFile || configParseError != nil
	if primaryNotFoundOrFailed && secondaryPath != "" && secondaryPath != primaryPath {
		logger.Debug("Attempting to load config from secondary path", "path", secondaryPath)
		loaded, loadErr := LoadAndMergeConfig(secondaryPath, &cfg, logger)
		if loadErr != nil {
			if configParseError == nil && strings.Contains(loadErr.Error(), "parsing config file JSON") {
				configParseError = loadErr
			}
			loadErrors = append(loadErrors, fmt.Errorf("loading %s failed: %w", secondaryPath, loadErr))
			logger.Warn("Failed to load or merge config", "path", secondaryPath, "error", loadErr)
		} else if loaded && !loadedFromFile {
			loadedFromFile = true
			logger.Info("Loaded config", "path", secondaryPath)
		}
	}

	loadSucceeded := loadedFromFile && configParseError == nil
	if !loadSucceeded {
		writePath := primaryPath
		if writePath == "" {
			writePath = secondaryPath
		}

		if writePath != "" {
			if configParseError != nil {
				logger.Warn("Existing config file failed to parse. Attempting to write default.", "path", writePath, "error", configParseError)
			} else {
				logger.Info("No valid config file found. Attempting to write default.", "path", writePath)
			}
			if err := WriteDefaultConfig(writePath, getDefaultConfig(), logger); err != nil {
				logger.Warn("Failed to write default config", "path", writePath, "error", err)
				loadErrors = append(loadErrors, fmt.Errorf("writing default config failed: %w", err))
			}
		} else {
			logger.Warn("Cannot determine path to write default config.")
			loadErrors = append(loadErrors, errors.New("cannot determine default config path"))
		}
		cfg = getDefaultConfig()
		logger.Info("Using default configuration values.")
	}

	finalCfg := cfg
	if err := finalCfg.Validate(logger); err != nil {
		logger.Error("Final configuration is invalid, falling back to pure defaults.", "error", err)
		loadErrors = append(loadErrors, fmt.Errorf("post-load config validation failed: %w", err))
		pureDefault := getDefaultConfig()
		if valErr := pureDefault.Validate(logger); valErr != nil {
			logger.Error("FATAL: Default config definition is invalid", "error", valErr)
			return pureDefault, fmt.Errorf("default config definition is invalid: %w", valErr)
		}
		finalCfg = pureDefault
	}

	if len(loadErrors) > 0 {
		return finalCfg, fmt.Errorf("%w: %w", ErrConfig, errors.Join(loadErrors...))
	}
	return finalCfg, nil
}

// GetConfigPaths returns the primary (os.UserConfigDir based) and secondary
// (home dotfile) candidate config file paths. Either may be empty when the
// base directory cannot be determined.
func GetConfigPaths(logger *slog.Logger) (primary, secondary string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var pathErrors []error

	configDir, dirErr := os.UserConfigDir()
	if dirErr != nil {
		pathErrors = append(pathErrors, fmt.Errorf("user config dir unavailable: %w", dirErr))
	} else {
		primary = filepath.Join(configDir, configDirName, defaultConfigFileName)
	}

	homeDir, homeErr := os.UserHomeDir()
	if homeErr != nil {
		pathErrors = append(pathErrors, fmt.Errorf("user home dir unavailable: %w", homeErr))
	} else {
		secondary = filepath.Join(homeDir, "."+configDirName, defaultConfigFileName)
	}

	if primary == "" && secondary == "" {
		return "", "", fmt.Errorf("%w: %w", ErrConfig, errors.Join(pathErrors...))
	}
	return primary, secondary, nil
}

// LoadAndMergeConfig reads the JSON file at path and merges its settings
// onto cfg. Returns false with a nil error when the file does not exist.
func LoadAndMergeConfig(path string, cfg *Config, logger *slog.Logger) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading config file: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("Config file exists but is empty, ignoring", "path", path)
		return false, nil
	}

	var fileCfg FileConfig
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return true, fmt.Errorf("parsing config file JSON: %w", err)
	}
	mergeFileConfig(cfg, fileCfg)
	return true, nil
}

// mergeFileConfig overwrites cfg fields for which the file provided a value.
func mergeFileConfig(cfg *Config, f FileConfig) {
	if f.APIKey != nil {
		cfg.APIKey = *f.APIKey
	}
	if f.Endpoint != nil {
		cfg.Endpoint = *f.Endpoint
	}
	if f.Model != nil {
		cfg.Model = *f.Model
	}
	if f.AutoTrigger != nil {
		cfg.AutoTrigger = *f.AutoTrigger
	}
	if f.DebounceMs != nil {
		cfg.DebounceMs = *f.DebounceMs
	}
	if f.MinTriggerIntervalMs != nil {
		cfg.MinTriggerIntervalMs = *f.MinTriggerIntervalMs
	}
	if f.MinPrefixLength != nil {
		cfg.MinPrefixLength = *f.MinPrefixLength
	}
	if f.LinesBefore != nil {
		cfg.LinesBefore = *f.LinesBefore
	}
	if f.LinesAfter != nil {
		cfg.LinesAfter = *f.LinesAfter
	}
	if f.MaxContextChars != nil {
		cfg.MaxContextChars = *f.MaxContextChars
	}
	if f.MaxFileSize != nil {
		cfg.MaxFileSize = *f.MaxFileSize
	}
	if f.CompletionMaxTokens != nil {
		cfg.CompletionMaxTokens = *f.CompletionMaxTokens
	}
	if f.CompletionTemp != nil {
		cfg.CompletionTemp = *f.CompletionTemp
	}
	if f.ChatMaxTokens != nil {
		cfg.ChatMaxTokens = *f.ChatMaxTokens
	}
	if f.ChatTemp != nil {
		cfg.ChatTemp = *f.ChatTemp
	}
	if f.RequestTimeoutSec != nil {
		cfg.RequestTimeoutSec = *f.RequestTimeoutSec
	}
	if f.CacheTTLSeconds != nil {
		cfg.CacheTTLSeconds = *f.CacheTTLSeconds
	}
	if f.PreserveIndent != nil {
		cfg.PreserveIndent = *f.PreserveIndent
	}
	if f.ContinuousCompletion != nil {
		cfg.ContinuousCompletion = *f.ContinuousCompletion
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
}

// WriteDefaultConfig creates the config directory and writes cfg as
// indented JSON. The file is created 0600 since it will hold an API key.
func WriteDefaultConfig(path string, cfg Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing default config file %s: %w", path, err)
	}
	logger.Info("Wrote default config file", "path", path)
	return nil
}
