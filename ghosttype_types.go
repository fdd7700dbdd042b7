// ghosttype_types.go
// Contains core type definitions for configuration, completion contexts,
// and suggestions used by the ghosttype package.
package ghosttype

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// =============================================================================
// Configuration Types
// =============================================================================

// Config holds the active configuration for the ghosttype engine.
type Config struct {
	APIKey               string  `json:"api_key"`
	Endpoint             string  `json:"endpoint"`
	Model                string  `json:"model"`
	AutoTrigger          bool    `json:"auto_trigger"`
	DebounceMs           int     `json:"debounce_ms"`
	MinTriggerIntervalMs int     `json:"min_trigger_interval_ms"`
	MinPrefixLength      int     `json:"min_prefix_length"`
	LinesBefore          int     `json:"lines_before"`
	LinesAfter           int     `json:"lines_after"`
	MaxContextChars      int     `json:"max_context_chars"`
	MaxFileSize          int     `json:"max_file_size"`
	CompletionMaxTokens  int     `json:"completion_max_tokens"`
	CompletionTemp       float64 `json:"completion_temperature"`
	ChatMaxTokens        int     `json:"chat_max_tokens"`
	ChatTemp             float64 `json:"chat_temperature"`
	RequestTimeoutSec    int     `json:"request_timeout_seconds"`
	CacheTTLSeconds      int     `json:"cache_ttl_seconds"`
	PreserveIndent       bool    `json:"preserve_indent"`
	ContinuousCompletion bool    `json:"continuous_completion"`
	LogLevel             string  `json:"log_level"`
}

// FileConfig mirrors Config with pointer fields so that settings absent
// from the JSON file are distinguishable from zero values during merge.
type FileConfig struct {
	APIKey               *string  `json:"api_key"`
	Endpoint             *string  `json:"endpoint"`
	Model                *string  `json:"model"`
	AutoTrigger          *bool    `json:"auto_trigger"`
	DebounceMs           *int     `json:"debounce_ms"`
	MinTriggerIntervalMs *int     `json:"min_trigger_interval_ms"`
	MinPrefixLength      *int     `json:"min_prefix_length"`
	LinesBefore          *int     `json:"lines_before"`
	LinesAfter           *int     `json:"lines_after"`
	MaxContextChars      *int     `json:"max_context_chars"`
	MaxFileSize          *int     `json:"max_file_size"`
	CompletionMaxTokens  *int     `json:"completion_max_tokens"`
	CompletionTemp       *float64 `json:"completion_temperature"`
	ChatMaxTokens        *int     `json:"chat_max_tokens"`
	ChatTemp             *float64 `json:"chat_temperature"`
	RequestTimeoutSec    *int     `json:"request_timeout_seconds"`
	CacheTTLSeconds      *int     `json:"cache_ttl_seconds"`
	PreserveIndent       *bool    `json:"preserve_indent"`
	ContinuousCompletion *bool    `json:"continuous_completion"`
	LogLevel             *string  `json:"log_level"`
}

// getDefaultConfig returns the compiled-in default configuration.
func getDefaultConfig() Config {
	return Config{
		APIKey:               "",
		Endpoint:             "https://api.openai.com/v1",
		Model:                "gpt-4o-mini",
		AutoTrigger:          true,
		DebounceMs:           defaultDebounceMs,
		MinTriggerIntervalMs: defaultMinTriggerIntervalMs,
		MinPrefixLength:      defaultMinPrefixLength,
		LinesBefore:          defaultLinesBefore,
		LinesAfter:           defaultLinesAfter,
		MaxContextChars:      defaultMaxContextChars,
		MaxFileSize:          defaultMaxFileSize,
		CompletionMaxTokens:  defaultCompletionMaxTokens,
		CompletionTemp:       defaultCompletionTemp,
		ChatMaxTokens:        defaultChatMaxTokens,
		ChatTemp:             defaultChatTemp,
		RequestTimeoutSec:    defaultRequestTimeoutSec,
		CacheTTLSeconds:      defaultCacheTTLSeconds,
		PreserveIndent:       true,
		ContinuousCompletion: true,
		LogLevel:             "info",
	}
}

// Validate checks configuration values and patches invalid ones back to
// their defaults, logging a warning for each. It returns an error wrapping
// ErrInvalidConfig describing everything that was patched, or nil when the
// configuration was already valid.
func (c *Config) Validate(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := getDefaultConfig()
	var validationErrors []string

	patchInt := func(name string, field *int, min, def int) {
		if *field < min {
			validationErrors = append(validationErrors,
				fmt.Sprintf("%s must be >= %d (got %d), using default %d", name, min, *field, def))
			*field = def
		}
	}

	if strings.TrimSpace(c.Endpoint) == "" {
		validationErrors = append(validationErrors, "endpoint cannot be empty, using default")
		c.Endpoint = defaults.Endpoint
	}
	if strings.TrimSpace(c.Model) == "" {
		validationErrors = append(validationErrors, "model cannot be empty, using default")
		c.Model = defaults.Model
	}
	patchInt("debounce_ms", &c.DebounceMs, 1, defaults.DebounceMs)
	patchInt("min_trigger_interval_ms", &c.MinTriggerIntervalMs, 0, defaults.MinTriggerIntervalMs)
	patchInt("min_prefix_length", &c.MinPrefixLength, 1, defaults.MinPrefixLength)
	patchInt("lines_before", &c.LinesBefore, 0, defaults.LinesBefore)
	patchInt("lines_after", &c.LinesAfter, 0, defaults.LinesAfter)
	patchInt("max_context_chars", &c.MaxContextChars, 100, defaults.MaxContextChars)
	patchInt("max_file_size", &c.MaxFileSize, 1000, defaults.MaxFileSize)
	patchInt("completion_max_tokens", &c.CompletionMaxTokens, 1, defaults.CompletionMaxTokens)
	patchInt("chat_max_tokens", &c.ChatMaxTokens, 1, defaults.ChatMaxTokens)
	patchInt("request_timeout_seconds", &c.RequestTimeoutSec, 1, defaults.RequestTimeoutSec)
	patchInt("cache_ttl_seconds", &c.CacheTTLSeconds, 0, defaults.CacheTTLSeconds)
	if c.CompletionTemp < 0 || c.CompletionTemp > 2 {
		validationErrors = append(validationErrors,
			fmt.Sprintf("completion_temperature out of range (got %.2f), using default", c.CompletionTemp))
		c.CompletionTemp = defaults.CompletionTemp
	}
	if c.ChatTemp < 0 || c.ChatTemp > 2 {
		validationErrors = append(validationErrors,
			fmt.Sprintf("chat_temperature out of range (got %.2f), using default", c.ChatTemp))
		c.ChatTemp = defaults.ChatTemp
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		validationErrors = append(validationErrors,
			fmt.Sprintf("log_level %q not recognized, using default", c.LogLevel))
		c.LogLevel = defaults.LogLevel
	}

	if len(validationErrors) > 0 {
		for _, ve := range validationErrors {
			logger.Warn("Config validation issue", "issue", ve)
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(validationErrors, "; "))
	}
	return nil
}

// DebounceDelay returns the configured debounce delay as a duration.
func (c Config) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// MinTriggerInterval returns the configured minimum trigger interval.
func (c Config) MinTriggerInterval() time.Duration {
	return time.Duration(c.MinTriggerIntervalMs) * time.Millisecond
}

// RequestTimeout returns the configured per-request timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ParseLogLevel converts a config log level string to a slog.Level.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, levelStr)
	}
}

// =============================================================================
// Completion Types
// =============================================================================

// Mode identifies which kind of request a completion context represents.
type Mode string

const (
	// ModeCompletion inserts ghost text at the cursor.
	ModeCompletion Mode = "completion"
	// ModeFix replaces a selected region with a suggested rewrite.
	ModeFix Mode = "fix"
	// ModeAnalysis produces a review of the buffer or selection.
	ModeAnalysis Mode = "analysis"
	// ModeChat is a free-form conversational request.
	ModeChat Mode = "chat"
)

// CompletionContext carries everything the completion client needs to build
// a prompt for one request.
type CompletionContext struct {
	PrefixText     string // code before the cursor, capped window
	SuffixText     string // code after the cursor, capped window
	SelectionText  string // selected code, fix/analysis modes only
	BoundaryBefore string // text immediately preceding the selection
	BoundaryAfter  string // text immediately following the selection
	CursorLine     int    // zero-based
	CursorCol      int    // zero-based byte offset within the line
	Language       string
	FileName       string
	Mode           Mode
	Indent         string // leading whitespace of the current line
	TotalChars     int    // size of the whole buffer
	Oversized      bool   // buffer exceeded MaxFileSize
}

// Suggestion is a cleaned completion ready for the renderer.
type Suggestion struct {
	Text         string
	Mode         Mode
	RequestID    int64
	Line         int // anchor line, zero-based
	Col          int // anchor column, zero-based byte offset
	ReplacedText string
	ReplaceStart Position
	ReplaceEnd   Position
}

// Position is a zero-based line/column pair. Column semantics follow the
// host protocol (UTF-16 code units on the wire, bytes internally).
type Position struct {
	Line int `json:"line"`
	Col  int `json:"character"`
}

// Range is a half-open [Start, End) span within a buffer.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// ChatMessage is one turn of an Ask-AI conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// =============================================================================
// Constants
// =============================================================================

const (
	defaultConfigFileName = "config.json"
	configDirName         = "ghosttype"

	defaultDebounceMs           = 300
	defaultMinTriggerIntervalMs = 1000
	defaultMinPrefixLength      = 2
	defaultLinesBefore          = 50
	defaultLinesAfter           = 10
	defaultMaxContextChars      = 4000
	defaultMaxFileSize          = 100000
	defaultCompletionMaxTokens  = 400
	defaultCompletionTemp       = 0.4
	defaultChatMaxTokens        = 2000
	defaultChatTemp             = 0.7
	defaultRequestTimeoutSec    = 60
	defaultCacheTTLSeconds      = 300

	// maxRetries is the retry budget for retryable API failures.
	maxRetries = 3
	// retryDelay is the pause between retry attempts.
	retryDelay = 500 * time.Millisecond

	// chatHistoryWindow is how many prior turns are sent with a chat request.
	chatHistoryWindow = 6
	// chatHistoryLimit bounds stored conversation history.
	chatHistoryLimit = 12

	// suffixOverlapWindow bounds how much of the suffix is considered when
	// trimming completion overlap.
	suffixOverlapWindow = 500

	// sessionIdleTTL is how long an untouched buffer session is kept before
	// the registry evicts and closes it.
	sessionIdleTTL = 30 * time.Minute

	// historySchemaVersion invalidates persisted history on layout changes.
	historySchemaVersion = 1
)
