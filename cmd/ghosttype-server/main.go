package main

import (
	"context"
	"errors"
	"expvar"
	"io"
	stlog "log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"os"
	"runtime"

	"github.com/shehackedyou/ghosttype"
)

// App version (set via linker flags -ldflags="-X main.appVersion=...")
var appVersion = "dev"

func main() {
	// Setup logging destination before initializing slog. The server talks
	// JSON-RPC on stdout, so logs must never go there.
	logFile, err := os.OpenFile("ghosttype-server.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		stlog.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	// Basic stderr logger until the configured level is known.
	tempLogger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, logFile), &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, cfgErr := ghosttype.LoadConfig(tempLogger)
	if cfgErr != nil {
		if !errors.Is(cfgErr, ghosttype.ErrConfig) {
			tempLogger.Error("Failed to load configuration", "error", cfgErr)
			os.Exit(1)
		}
		tempLogger.Warn("Configuration loaded with warnings", "error", cfgErr)
	}

	logLevel, parseLevelErr := ghosttype.ParseLogLevel(cfg.LogLevel)
	if parseLevelErr != nil {
		logLevel = slog.LevelInfo
		tempLogger.Warn("Invalid log level in config, using default 'info'", "config_level", cfg.LogLevel, "error", parseLevelErr)
	}
	logWriter := io.MultiWriter(os.Stderr, logFile)
	handlerOpts := slog.HandlerOptions{Level: logLevel, AddSource: true}
	logger := slog.New(slog.NewTextHandler(logWriter, &handlerOpts))
	slog.SetDefault(logger)

	slog.Info("ghosttype server starting...", "version", appVersion, "log_level", logLevel.String())

	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)
	startDebugServer()

	server, serverErr := ghosttype.NewServer(cfg, logger, appVersion)
	if serverErr != nil {
		slog.Error("Failed to initialize server", "error", serverErr)
		os.Exit(1)
	}

	// Hot-reload the config file while the server runs.
	if primaryPath, _, pathErr := ghosttype.GetConfigPaths(logger); pathErr == nil && primaryPath != "" {
		watcher, watchErr := ghosttype.WatchConfig(primaryPath, server.Engine().ApplyConfig, logger)
		if watchErr != nil {
			slog.Warn("Config hot reload unavailable", "error", watchErr)
		} else {
			defer watcher.Close()
		}
	}

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	server.Engine().StartIdleSweeper(sweepCtx)

	// Blocks until the client disconnects or sends exit.
	server.Run(os.Stdin, os.Stdout)

	slog.Info("Server has shut down gracefully.")
}

// startDebugServer starts the HTTP server for pprof and expvar.
func startDebugServer() {
	debugListenAddr := "localhost:6071"
	go func() {
		slog.Info("Starting debug server for pprof/expvar", "addr", debugListenAddr)
		debugMux := http.NewServeMux()
		debugMux.HandleFunc("/debug/pprof/", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/cmdline", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/profile", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/symbol", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/pprof/trace", http.DefaultServeMux.ServeHTTP)
		debugMux.HandleFunc("/debug/vars", expvar.Handler().ServeHTTP)
		if err := http.ListenAndServe(debugListenAddr, debugMux); err != nil {
			slog.Error("Debug server failed", "error", err)
		}
	}()
}
