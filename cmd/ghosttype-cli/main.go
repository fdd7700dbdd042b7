package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shehackedyou/ghosttype"
)

// Set at build time
var version = "dev"

func main() {
	filePath := flag.String("file", "", "Path to the source file (required unless -stdin is used)")
	line := flag.Int("line", 0, "Cursor line number (1-based)")
	col := flag.Int("col", 0, "Cursor column number (1-based, byte offset)")
	stdin := flag.Bool("stdin", false, "Read the source text from stdin instead of -file")
	language := flag.String("language", "", "Language id for the buffer (default: from file extension)")
	mode := flag.String("mode", "complete", "Operation: complete, analyze, or ask")
	question := flag.String("question", "", "Question text for -mode ask")
	logLevelFlag := flag.String("log-level", "", "Log level (debug, info, warn, error) - overrides config")

	flag.Parse()

	tempLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, cfgErr := ghosttype.LoadConfig(tempLogger)
	if cfgErr != nil && !errors.Is(cfgErr, ghosttype.ErrConfig) {
		tempLogger.Error("Fatal error loading configuration", "error", cfgErr)
		os.Exit(1)
	}

	chosenLogLevelStr := cfg.LogLevel
	if *logLevelFlag != "" {
		chosenLogLevelStr = *logLevelFlag
	}
	logLevel, parseLevelErr := ghosttype.ParseLogLevel(chosenLogLevelStr)
	if parseLevelErr != nil {
		tempLogger.Warn("Invalid log level specified, using default 'info'", "specified_level", chosenLogLevelStr, "error", parseLevelErr)
		logLevel = slog.LevelInfo
	}
	handlerOpts := slog.HandlerOptions{Level: logLevel, AddSource: false}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &handlerOpts))
	slog.SetDefault(logger)

	if cfgErr != nil {
		slog.Warn("Configuration loaded with warnings", "error", cfgErr)
	}
	slog.Debug("ghosttype CLI starting", "version", version)

	engine, engineErr := ghosttype.NewEngine(cfg, &stderrFrontend{logger: logger}, logger)
	if engineErr != nil {
		slog.Error("Failed to initialize engine", "error", engineErr)
		os.Exit(1)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("Error closing engine", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *mode {
	case "ask":
		if *question == "" {
			slog.Error("Missing required flag for -mode ask: -question")
			flag.Usage()
			os.Exit(1)
		}
		reply, _, err := engine.Ask(ctx, "", *question, "", nil)
		if err != nil {
			slog.Error("Chat request failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(reply)
		return

	case "complete", "analyze":
		// Handled below.
	default:
		slog.Error("Unknown mode", "mode", *mode)
		flag.Usage()
		os.Exit(1)
	}

	uri, text, langID := readInput(*filePath, *stdin, *language)
	if *line <= 0 || *col <= 0 {
		slog.Error("Flags -line and -col must be positive (1-based)")
		flag.Usage()
		os.Exit(1)
	}
	pos := ghosttype.Position{Line: *line - 1, Col: *col - 1}

	engine.OpenBuffer(uri, langID, text, 1)

	switch *mode {
	case "complete":
		suggestion, err := engine.CompleteOnce(ctx, uri, pos)
		if err != nil {
			if errors.Is(err, ghosttype.ErrNoSuggestion) {
				slog.Info("No suggestion produced")
				return
			}
			slog.Error("Completion failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(suggestion)
	case "analyze":
		explanation, err := engine.Analyze(ctx, uri, pos, nil)
		if err != nil {
			slog.Error("Analysis failed", "error", err)
			os.Exit(1)
		}
		fmt.Println(explanation)
	}
}

// readInput loads the buffer text from -file or stdin and derives a URI and
// language id.
func readInput(filePath string, stdin bool, language string) (uri, text, langID string) {
	if stdin {
		if filePath != "" {
			slog.Error("Cannot use -file when -stdin is specified")
			flag.Usage()
			os.Exit(1)
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			slog.Error("Failed to read from stdin", "error", err)
			os.Exit(1)
		}
		langID = language
		if langID == "" {
			langID = "python"
		}
		return "stdin://buffer", string(data), langID
	}

	if filePath == "" {
		slog.Error("Missing required flag: -file")
		flag.Usage()
		os.Exit(1)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		slog.Error("Invalid file path", "path", filePath, "error", err)
		os.Exit(1)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		slog.Error("Cannot read file", "path", absPath, "error", err)
		os.Exit(1)
	}
	langID = language
	if langID == "" {
		langID = languageFromExtension(absPath)
	}
	return "file://" + absPath, string(data), langID
}

func languageFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "python"
	case ".go":
		return "go"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".rb":
		return "ruby"
	case ".rs":
		return "rust"
	default:
		return ""
	}
}

// stderrFrontend satisfies the engine's notification surface for one-shot
// CLI runs, where there is no editor to render ghost text.
type stderrFrontend struct {
	logger *slog.Logger
}

func (f *stderrFrontend) ShowGhost(params ghosttype.GhostShowParams) {
	fmt.Fprintln(os.Stderr, params.Text)
}
func (f *stderrFrontend) AcceptGhost(params ghosttype.GhostAcceptParams) {}
func (f *stderrFrontend) ClearGhost(params ghosttype.GhostClearParams)  {}
func (f *stderrFrontend) Status(params ghosttype.StatusParams) {
	f.logger.Info(params.Message)
}
func (f *stderrFrontend) ShowMessage(params ghosttype.ShowMessageParams) {
	f.logger.Warn(params.Message)
}
