// session.go
// Per-buffer completion session: a small state machine that owns the
// debounce timer, the monotonic request id used to fence stale results,
// and the ghost renderer for one open buffer. All mutable state is guarded
// by a single mutex; network calls run in goroutines and re-validate
// against the current request id before touching the renderer.
package ghosttype

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// Session State
// ============================================================================

// SessionState is the completion lifecycle state of one buffer.
type SessionState int32

const (
	// StateIdle means no request is pending and no ghost text is showing.
	StateIdle SessionState = iota
	// StateRequesting means a completion request is in flight.
	StateRequesting
	// StateShowing means ghost text is displayed and awaiting accept/dismiss.
	StateShowing
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateShowing:
		return "showing"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// ============================================================================
// Completion Session
// ============================================================================

// CompletionSession drives ghost-text completion for a single buffer.
type CompletionSession struct {
	mu sync.Mutex

	uri      string
	doc      *Document
	state    SessionState
	closed   bool
	renderer *Renderer
	frontend Frontend
	// oversizedWarned keeps the large-buffer warning to one per buffer.
	oversizedWarned bool

	// requestID fences responses: results carrying an id other than the
	// current one are stale and dropped.
	requestID int64
	// lastRequestAt is when the last request was issued, for the
	// min-trigger-interval throttle on automatic triggers.
	lastRequestAt time.Time

	debounce *time.Timer
	// continueAfterAccept marks that the next buffer change (the frontend
	// inserting the accepted text) should trigger a follow-up completion.
	continueAfterAccept bool

	client    CompletionClient
	extractor *ContextExtractor
	cache     *completionCache
	history   *HistoryStore
	configFn  func() Config

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewCompletionSession creates a session for one buffer. configFn is read on
// every trigger so config hot-reloads apply without restarting sessions.
// cache and history may be nil.
func NewCompletionSession(doc *Document, frontend Frontend, client CompletionClient, configFn func() Config, cache *completionCache, history *HistoryStore, logger *slog.Logger) *CompletionSession {
	if logger == nil {
		logger = slog.Default()
	}
	sessionLogger := logger.With("component", "CompletionSession", "uri", doc.URI())
	ctx, cancel := context.WithCancel(context.Background())
	return &CompletionSession{
		uri:       doc.URI(),
		doc:       doc,
		state:     StateIdle,
		renderer:  NewRenderer(doc.URI(), frontend, logger),
		frontend:  frontend,
		client:    client,
		extractor: NewContextExtractor(logger),
		cache:     cache,
		history:   history,
		configFn:  configFn,
		ctx:       ctx,
		cancel:    cancel,
		logger:    sessionLogger,
	}
}

// URI returns the buffer URI this session serves.
func (s *CompletionSession) URI() string { return s.uri }

// State returns the current lifecycle state.
func (s *CompletionSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Document returns the buffer document backing this session.
func (s *CompletionSession) Document() *Document { return s.doc }

// ============================================================================
// Triggers
// ============================================================================

// HandleKeystroke runs the trigger heuristic after a keystroke at pos and,
// when it fires, arms the trailing-edge debounce timer. A keystroke while
// ghost text is showing dismisses it first; a keystroke while a request is
// in flight invalidates that request by advancing the request id.
func (s *CompletionSession) HandleKeystroke(pos Position) {
	cfg := s.configFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.state == StateShowing {
		s.dismissLocked("keystroke")
	}
	if s.state == StateRequesting {
		s.requestID++
		s.state = StateIdle
	}
	s.stopDebounceLocked()

	if !cfg.AutoTrigger {
		return
	}
	line, col := s.doc.ClampPosition(pos, s.logger)
	lineText := s.doc.Line(line)
	if col > len(lineText) {
		col = len(lineText)
	}
	if !ShouldTrigger(lineText[:col], cfg.MinPrefixLength) {
		return
	}

	triggerPos := Position{Line: line, Col: col}
	s.debounce = time.AfterFunc(cfg.DebounceDelay(), func() {
		s.requestCompletion(triggerPos, ModeCompletion, "", nil, false)
	})
	s.logger.Debug("Debounce armed", "line", line, "col", col, "delay", cfg.DebounceDelay())
}

// TriggerManual requests a completion at pos immediately, bypassing the
// debounce timer and the min-trigger-interval throttle.
func (s *CompletionSession) TriggerManual(pos Position) {
	s.mu.Lock()
	s.stopDebounceLocked()
	s.mu.Unlock()
	s.requestCompletion(pos, ModeCompletion, "", nil, true)
}

// RequestFix requests a replacement suggestion for the selected range.
func (s *CompletionSession) RequestFix(sel Range, instruction string) {
	s.mu.Lock()
	s.stopDebounceLocked()
	s.mu.Unlock()
	s.requestCompletion(sel.Start, ModeFix, instruction, &sel, true)
}

// ============================================================================
// Buffer updates
// ============================================================================

// HandleChange applies a full-text buffer update. Ghost text showing when
// the buffer changes is dismissed, except for the change produced by the
// frontend inserting an accepted suggestion, which may instead trigger a
// continuous follow-up completion at the new cursor position.
func (s *CompletionSession) HandleChange(text string, version int, cursor Position) {
	if !s.doc.Update(text, version) {
		s.logger.Warn("Rejected stale buffer update", "version", version)
		return
	}
	cfg := s.configFn()

	s.mu.Lock()
	continueNow := s.continueAfterAccept
	s.continueAfterAccept = false
	if s.state == StateShowing && !continueNow {
		s.dismissLocked("buffer changed")
	}
	s.mu.Unlock()

	if continueNow && cfg.ContinuousCompletion && cursorAtLineEnd(s.doc, cursor) {
		s.requestCompletion(cursor, ModeCompletion, "", nil, true)
	}
}

func cursorAtLineEnd(doc *Document, pos Position) bool {
	line, col := doc.ClampPosition(pos, nil)
	return strings.TrimSpace(doc.Line(line)[col:]) == ""
}

// ============================================================================
// Accept / Dismiss
// ============================================================================

// Accept materializes the showing suggestion. Returns false when nothing is
// showing. When continuous completion is enabled and the suggestion ends a
// line, the next buffer change triggers a follow-up request.
func (s *CompletionSession) Accept() bool {
	cfg := s.configFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateShowing {
		return false
	}
	accepted, ok := s.renderer.Accept()
	if !ok {
		s.state = StateIdle
		return false
	}
	s.state = StateIdle
	s.history.RecordAccepted(HistoryRecord{
		Mode:     accepted.Mode,
		Text:     accepted.Text,
		URI:      s.uri,
		Accepted: time.Now(),
	})
	if cfg.ContinuousCompletion && accepted.Mode == ModeCompletion {
		s.continueAfterAccept = true
	}
	return true
}

// Dismiss removes the showing suggestion. Returns false when nothing is
// showing.
func (s *CompletionSession) Dismiss() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StateShowing {
		return false
	}
	s.dismissLocked("explicit dismiss")
	return true
}

func (s *CompletionSession) dismissLocked(reason string) {
	dismissed, ok := s.renderer.Dismiss()
	s.state = StateIdle
	if ok {
		s.history.RecordDismissed(dismissed.Mode)
		s.logger.Debug("Suggestion dismissed", "reason", reason)
	}
}

// ============================================================================
// Request pipeline
// ============================================================================

// requestCompletion issues a fenced completion request. manual bypasses the
// min-trigger-interval throttle.
func (s *CompletionSession) requestCompletion(pos Position, mode Mode, instruction string, sel *Range, manual bool) {
	cfg := s.configFn()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.state == StateRequesting {
		s.logger.Debug("Trigger ignored, request already in flight")
		s.mu.Unlock()
		return
	}
	now := time.Now()
	if !manual && !s.lastRequestAt.IsZero() && now.Sub(s.lastRequestAt) < cfg.MinTriggerInterval() {
		s.logger.Debug("Trigger throttled", "since_last", now.Sub(s.lastRequestAt))
		s.mu.Unlock()
		return
	}
	if s.state == StateShowing {
		s.dismissLocked("new request")
	}
	s.requestID++
	id := s.requestID
	s.lastRequestAt = now
	s.state = StateRequesting
	ctx := s.ctx
	s.mu.Unlock()

	compCtx := s.extractor.Extract(s.doc, pos, cfg, mode)
	if compCtx.Oversized {
		s.warnOversized(compCtx.TotalChars)
	}
	if sel != nil {
		compCtx.SelectionText = s.doc.TextRange(sel.Start, sel.End, s.logger)
		if instruction != "" {
			compCtx.SelectionText = instruction + "\n\n" + compCtx.SelectionText
		}
		compCtx.BoundaryBefore = compCtx.PrefixText
		compCtx.BoundaryAfter = s.extractor.Extract(s.doc, sel.End, cfg, mode).SuffixText
	}

	opLogger := s.logger.With("operation", "requestCompletion", "request_id", id, "mode", string(mode))

	if cached, ok := s.cache.Get(cfg, compCtx); ok {
		opLogger.Debug("Cache hit")
		s.showResult(id, pos, compCtx, cached, sel)
		return
	}

	go func() {
		raw, err := s.client.Complete(ctx, compCtx, cfg)
		if err != nil {
			s.finishRequest(id, err)
			return
		}
		text := CleanCompletion(raw, mode)
		if mode == ModeCompletion {
			text = RemoveOverlap(text, compCtx.PrefixText, compCtx.SuffixText)
		} else if mode == ModeFix {
			text = TrimBoundaryOverlap(text, compCtx.BoundaryBefore, compCtx.BoundaryAfter)
		}
		if strings.TrimSpace(text) == "" {
			s.finishRequest(id, ErrNoSuggestion)
			return
		}
		s.cache.Set(cfg, compCtx, text)
		s.showResult(id, pos, compCtx, text, sel)
	}()
}

// showResult shows a completed suggestion if the request is still current.
func (s *CompletionSession) showResult(id int64, pos Position, compCtx CompletionContext, text string, sel *Range) {
	cfg := s.configFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id != s.requestID {
		s.logger.Debug("Dropping stale result", "result_id", id, "current_id", s.requestID)
		return
	}

	sugg := Suggestion{
		Text:      text,
		Mode:      compCtx.Mode,
		RequestID: id,
		Line:      pos.Line,
		Col:       pos.Col,
	}
	var shown bool
	if sel != nil {
		sugg.ReplaceStart = sel.Start
		sugg.ReplaceEnd = sel.End
		sugg.ReplacedText = s.doc.TextRange(sel.Start, sel.End, s.logger)
		shown = s.renderer.ShowReplacement(sugg)
	} else {
		shown = s.renderer.Show(sugg, compCtx.Indent, cfg.PreserveIndent)
	}
	if !shown {
		s.state = StateIdle
		return
	}
	s.state = StateShowing
	s.history.RecordShown(compCtx.Mode)
}

// warnOversized surfaces the large-buffer warning to the editor, once per
// buffer.
func (s *CompletionSession) warnOversized(totalChars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.oversizedWarned {
		return
	}
	s.oversizedWarned = true
	s.frontend.ShowMessage(ShowMessageParams{
		Type:    MessageTypeWarning,
		Message: fmt.Sprintf("File is large (%d chars); completions use only a window of nearby code", totalChars),
	})
}

// finishRequest records a request outcome that produced no suggestion.
func (s *CompletionSession) finishRequest(id int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || id != s.requestID {
		return
	}
	s.state = StateIdle
	if err == nil || errors.Is(err, ErrNoSuggestion) {
		s.logger.Debug("Request produced no suggestion", "request_id", id)
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("Completion request failed", "request_id", id, "error", err)
	s.frontend.Status(StatusParams{URI: s.uri, Message: statusForError(err)})
	if errors.Is(err, ErrAuthFailed) {
		s.frontend.ShowMessage(ShowMessageParams{
			Type:    MessageTypeError,
			Message: "The configured API key was rejected. Open the ghosttype settings and update api_key.",
		})
	}
}

// statusForError maps client errors to short status-line messages.
func statusForError(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return "AI completion: API key not configured"
	case errors.Is(err, ErrTimeout):
		return "AI completion: request timed out"
	case errors.Is(err, ErrAuthFailed):
		return "AI completion: authentication failed"
	case errors.Is(err, ErrRateLimited):
		return "AI completion: rate limited, try again later"
	case errors.Is(err, ErrEmptyResponse):
		return "AI completion: empty response"
	default:
		return "AI completion: request failed"
	}
}

// ============================================================================
// Shutdown
// ============================================================================

// Close cancels any in-flight request, stops the debounce timer, and clears
// showing ghost text. The session is unusable afterwards.
func (s *CompletionSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopDebounceLocked()
	if s.state == StateShowing {
		s.dismissLocked("session closed")
	}
	s.closed = true
	s.requestID++ // fence any in-flight result
	s.cancel()
	s.logger.Debug("Session closed")
}

func (s *CompletionSession) stopDebounceLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}
