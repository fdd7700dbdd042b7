// ghosttype.go
// Engine facade: owns the shared completion client, caches, history store,
// chat registry, and the per-buffer session registry. The JSON-RPC host
// server and the CLI both drive the engine through this type.
package ghosttype

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Engine coordinates completion sessions across all open buffers.
type Engine struct {
	configMu sync.RWMutex
	config   Config

	client   CompletionClient
	cache    *completionCache
	history  *HistoryStore
	chat     *ChatManager
	frontend Frontend

	// sessions maps buffer URI to its session. Idle sessions are evicted
	// and closed after sessionIdleTTL without activity.
	sessions *ttlcache.Cache[string, *CompletionSession]

	logger  *slog.Logger
	closeMu sync.Mutex
	closed  bool
}

// NewEngine creates an engine with the default OpenAI-compatible client and
// a history store under the user config directory. History store failures
// are non-fatal; the engine runs without persistence.
func NewEngine(cfg Config, frontend Frontend, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var history *HistoryStore
	if path, err := defaultHistoryPath(); err != nil {
		logger.Warn("Cannot determine history path, history disabled", "error", err)
	} else if history, err = NewHistoryStore(path, logger); err != nil {
		logger.Warn("Cannot open history store, history disabled", "path", path, "error", err)
		history = nil
	}
	return NewEngineWithComponents(cfg, frontend, newOpenAIClient(logger), history, logger)
}

// NewEngineWithComponents creates an engine with explicit client and history
// dependencies. history may be nil.
func NewEngineWithComponents(cfg Config, frontend Frontend, client CompletionClient, history *HistoryStore, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if frontend == nil {
		return nil, fmt.Errorf("%w: frontend is required", ErrInvalidConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: completion client is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(logger); err != nil {
		logger.Warn("Engine config validation patched values", "error", err)
	}

	e := &Engine{
		config:   cfg,
		client:   client,
		cache:    newCompletionCache(logger),
		history:  history,
		frontend: frontend,
		logger:   logger.With("component", "Engine"),
	}
	e.chat = NewChatManager(client, e.GetCurrentConfig, logger)

	e.sessions = ttlcache.New[string, *CompletionSession](
		ttlcache.WithTTL[string, *CompletionSession](sessionIdleTTL),
	)
	e.sessions.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *CompletionSession]) {
		if reason == ttlcache.EvictionReasonExpired {
			e.logger.Debug("Closing idle session", "uri", item.Key())
		}
		item.Value().Close()
	})
	go e.sessions.Start()

	e.logger.Info("Engine initialized",
		"model", cfg.Model,
		"endpoint", cfg.Endpoint,
		"auto_trigger", cfg.AutoTrigger,
		"history", history != nil)
	return e, nil
}

func defaultHistoryPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir unavailable: %w", err)
	}
	return filepath.Join(configDir, configDirName, "history.db"), nil
}

// =============================================================================
// Configuration
// =============================================================================

// GetCurrentConfig returns a copy of the active configuration.
func (e *Engine) GetCurrentConfig() Config {
	e.configMu.RLock()
	defer e.configMu.RUnlock()
	return e.config
}

// UpdateConfig merges file-style settings onto the active configuration,
// validates, and applies the result. The completion cache is cleared since
// cached text may have been produced under different model settings.
func (e *Engine) UpdateConfig(fileCfg FileConfig) (Config, error) {
	e.configMu.Lock()
	merged := e.config
	mergeFileConfig(&merged, fileCfg)
	err := merged.Validate(e.logger)
	e.config = merged
	e.configMu.Unlock()

	e.cache.Clear()
	e.logger.Info("Configuration updated", "model", merged.Model, "auto_trigger", merged.AutoTrigger)
	if err != nil {
		return merged, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return merged, nil
}

// ApplyConfig replaces the active configuration wholesale, as used by the
// config file watcher. Values are validated and patched first.
func (e *Engine) ApplyConfig(cfg Config) {
	if err := cfg.Validate(e.logger); err != nil {
		e.logger.Warn("Applied config had invalid values, patched", "error", err)
	}
	e.configMu.Lock()
	e.config = cfg
	e.configMu.Unlock()
	e.cache.Clear()
}

// =============================================================================
// Buffer lifecycle
// =============================================================================

// OpenBuffer registers a buffer and creates its completion session. Opening
// an already-open URI replaces the previous session.
func (e *Engine) OpenBuffer(uri, languageID, text string, version int) {
	doc := NewDocument(uri, languageID, text)
	if version > 0 {
		doc.Update(text, version)
	}
	session := NewCompletionSession(doc, e.frontend, e.client, e.GetCurrentConfig, e.cache, e.history, e.logger)

	if prev := e.sessions.Get(uri); prev != nil {
		prev.Value().Close()
	}
	e.sessions.Set(uri, session, ttlcache.DefaultTTL)
	e.logger.Debug("Buffer opened", "uri", uri, "language", languageID, "chars", len(text))
}

// UpdateBuffer applies a full-text update to an open buffer.
func (e *Engine) UpdateBuffer(uri, text string, version int, cursor Position) error {
	session, err := e.session(uri)
	if err != nil {
		return err
	}
	session.HandleChange(text, version, cursor)
	return nil
}

// CloseBuffer closes a buffer's session and removes it from the registry.
func (e *Engine) CloseBuffer(uri string) {
	if item := e.sessions.Get(uri); item != nil {
		item.Value().Close()
		e.sessions.Delete(uri)
		e.logger.Debug("Buffer closed", "uri", uri)
	}
}

// session looks up an open buffer's session, refreshing its idle TTL.
func (e *Engine) session(uri string) (*CompletionSession, error) {
	item := e.sessions.Get(uri)
	if item == nil {
		return nil, fmt.Errorf("%w: buffer not open: %s", ErrSessionClosed, uri)
	}
	return item.Value(), nil
}

// =============================================================================
// Completion operations
// =============================================================================

// Keystroke feeds a keystroke position into a buffer's trigger pipeline.
func (e *Engine) Keystroke(uri string, pos Position) error {
	session, err := e.session(uri)
	if err != nil {
		return err
	}
	session.HandleKeystroke(pos)
	return nil
}

// Trigger requests a completion immediately, bypassing debounce and
// throttle.
func (e *Engine) Trigger(uri string, pos Position) error {
	session, err := e.session(uri)
	if err != nil {
		return err
	}
	session.TriggerManual(pos)
	return nil
}

// Fix requests a replacement suggestion for the selected range, optionally
// steered by a user instruction.
func (e *Engine) Fix(uri string, sel Range, instruction string) error {
	session, err := e.session(uri)
	if err != nil {
		return err
	}
	session.RequestFix(sel, instruction)
	return nil
}

// Accept materializes the showing suggestion in a buffer. Returns false
// when nothing is showing.
func (e *Engine) Accept(uri string) (bool, error) {
	session, err := e.session(uri)
	if err != nil {
		return false, err
	}
	return session.Accept(), nil
}

// Dismiss removes the showing suggestion in a buffer. Returns false when
// nothing is showing.
func (e *Engine) Dismiss(uri string) (bool, error) {
	session, err := e.session(uri)
	if err != nil {
		return false, err
	}
	return session.Dismiss(), nil
}

// SessionState reports the lifecycle state of a buffer's session.
func (e *Engine) SessionState(uri string) (SessionState, error) {
	session, err := e.session(uri)
	if err != nil {
		return StateIdle, err
	}
	return session.State(), nil
}

// CompleteOnce runs the completion pipeline synchronously and returns the
// cleaned suggestion text instead of showing ghost text. Used by the CLI
// and one-shot integrations.
func (e *Engine) CompleteOnce(ctx context.Context, uri string, pos Position) (string, error) {
	session, err := e.session(uri)
	if err != nil {
		return "", err
	}
	cfg := e.GetCurrentConfig()
	doc := session.Document()

	extractor := NewContextExtractor(e.logger)
	compCtx := extractor.Extract(doc, pos, cfg, ModeCompletion)

	if cached, ok := e.cache.Get(cfg, compCtx); ok {
		return cached, nil
	}
	raw, err := e.client.Complete(ctx, compCtx, cfg)
	if err != nil {
		return "", err
	}
	text := RemoveOverlap(CleanCompletion(raw, ModeCompletion), compCtx.PrefixText, compCtx.SuffixText)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoSuggestion
	}
	e.cache.Set(cfg, compCtx, text)
	return text, nil
}

// =============================================================================
// Analysis and chat
// =============================================================================

// Analyze runs the analysis prompt over the selection (or the context
// window around pos when sel is nil) and returns the explanation text.
// Unlike completion this is synchronous; the caller shows the result.
func (e *Engine) Analyze(ctx context.Context, uri string, pos Position, sel *Range) (string, error) {
	session, err := e.session(uri)
	if err != nil {
		return "", err
	}
	cfg := e.GetCurrentConfig()
	doc := session.Document()

	extractor := NewContextExtractor(e.logger)
	compCtx := extractor.Extract(doc, pos, cfg, ModeAnalysis)
	if sel != nil {
		compCtx.SelectionText = doc.TextRange(sel.Start, sel.End, e.logger)
	}

	text, err := e.client.Complete(ctx, compCtx, cfg)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(CleanCompletion(text, ModeAnalysis))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Ask sends a chat question, optionally attaching the current selection of
// an open buffer as code context.
func (e *Engine) Ask(ctx context.Context, conversationID, question, uri string, sel *Range) (reply, id string, err error) {
	var codeContext string
	if uri != "" && sel != nil {
		if session, sErr := e.session(uri); sErr == nil {
			codeContext = session.Document().TextRange(sel.Start, sel.End, e.logger)
		}
	}
	return e.chat.Ask(ctx, conversationID, question, codeContext)
}

// Chat exposes the conversation registry for reset and history queries.
func (e *Engine) Chat() *ChatManager { return e.chat }

// =============================================================================
// History
// =============================================================================

// Stats returns per-mode suggestion counters, or nil when history is
// disabled.
func (e *Engine) Stats() map[Mode]HistoryStats {
	return e.history.Stats()
}

// RecentAccepted returns the most recently accepted suggestions, newest
// first.
func (e *Engine) RecentAccepted(n int) []HistoryRecord {
	return e.history.RecentAccepted(n)
}

// =============================================================================
// Shutdown
// =============================================================================

// Close shuts down every session and releases engine resources. Safe to
// call more than once.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	for _, item := range e.sessions.Items() {
		item.Value().Close()
	}
	e.sessions.Stop()
	e.cache.Close()
	e.chat.Prune(0)

	var err error
	if e.history != nil {
		err = e.history.Close()
	}
	e.logger.Info("Engine closed")
	return err
}

// idleSweepInterval is how often callers should prune chat conversations.
const idleSweepInterval = 10 * time.Minute

// StartIdleSweeper prunes idle chat conversations until ctx is done.
// Buffer sessions already expire through the registry TTL.
func (e *Engine) StartIdleSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(idleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.chat.Prune(sessionIdleTTL)
			}
		}
	}()
}
