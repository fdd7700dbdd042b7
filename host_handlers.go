// host_handlers.go
// Handler methods for the host protocol requests that need more than a
// one-line engine call: lifecycle, analysis, chat, config, and history.
package ghosttype

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
)

// ============================================================================
// Lifecycle Handlers
// ============================================================================

// handleInitialize stores client info and returns server capabilities.
func (s *Server) handleInitialize(ctx context.Context, params InitializeParams) (any, error) {
	clientName := ""
	if params.ClientInfo != nil {
		clientName = params.ClientInfo.Name
	}
	s.logger.Info("Handling initialize request", "client_name", clientName)

	s.stateMu.Lock()
	s.initialized = true
	s.initParams = &params
	s.stateMu.Unlock()

	// InitializationOptions may carry inline settings, merged like a
	// config/update before the first completion.
	if len(params.InitializationOptions) > 0 {
		var fileCfg FileConfig
		if err := json.Unmarshal(params.InitializationOptions, &fileCfg); err != nil {
			s.logger.Warn("Ignoring malformed initializationOptions", "error", err)
		} else if _, err := s.engine.UpdateConfig(fileCfg); err != nil {
			s.logger.Warn("initializationOptions contained invalid values", "error", err)
		}
	}

	return InitializeResult{
		Capabilities: ServerCapabilities{
			CompletionProvider: true,
			FixProvider:        true,
			AnalysisProvider:   true,
			ChatProvider:       true,
		},
		ServerInfo: s.serverInfo,
	}, nil
}

// handleShutdown marks the server as shutting down. Buffers stay open until
// exit so late notifications do not error.
func (s *Server) handleShutdown(ctx context.Context) (any, error) {
	s.logger.Info("Handling shutdown request")
	s.stateMu.Lock()
	s.shuttingDown = true
	s.stateMu.Unlock()
	return nil, nil
}

// handleExit closes the connection, which unblocks Run and shuts the engine
// down.
func (s *Server) handleExit(conn *jsonrpc2.Conn) {
	s.logger.Info("Handling exit notification")
	if err := conn.Close(); err != nil {
		s.logger.Warn("Error closing connection on exit", "error", err)
	}
}

// ============================================================================
// Analysis and Chat Handlers
// ============================================================================

func (s *Server) handleAnalyze(ctx context.Context, params AnalyzeParams) (any, error) {
	text, err := s.engine.Analyze(ctx, params.URI, params.Position, params.Range)
	if err != nil {
		return nil, s.engineError(err)
	}
	return AnalyzeResult{Text: text}, nil
}

func (s *Server) handleChatAsk(ctx context.Context, params ChatAskParams) (any, error) {
	if params.Question == "" {
		return nil, &jsonrpc2.Error{Code: CodeInvalidParams, Message: "chat/ask requires a question"}
	}
	reply, id, err := s.engine.Ask(ctx, params.ConversationID, params.Question, params.URI, params.Range)
	if err != nil {
		return nil, s.engineError(err)
	}
	return ChatAskResult{ConversationID: id, Reply: reply}, nil
}

// ============================================================================
// Config and History Handlers
// ============================================================================

func (s *Server) handleConfigUpdate(params ConfigUpdateParams) (any, error) {
	cfg, err := s.engine.UpdateConfig(params.Settings)
	if err != nil {
		// Values were patched; report the active config with a warning
		// rather than failing the request.
		s.logger.Warn("config/update contained invalid values", "error", err)
		s.ShowMessage(ShowMessageParams{
			Type:    MessageTypeWarning,
			Message: fmt.Sprintf("Some settings were invalid and reset to defaults: %v", err),
		})
	}
	return ConfigUpdateResult{Config: cfg}, nil
}

func (s *Server) handleHistoryStats() (any, error) {
	stats := s.engine.Stats()
	out := make(map[string]HistoryStats, len(stats))
	for mode, st := range stats {
		out[string(mode)] = st
	}
	return HistoryStatsResult{Stats: out}, nil
}

func (s *Server) handleHistoryRecent(params HistoryRecentParams) (any, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	records := s.engine.RecentAccepted(limit)
	if records == nil {
		records = []HistoryRecord{}
	}
	return HistoryRecentResult{Records: records}, nil
}
