// host_server.go
// JSON-RPC 2.0 host server speaking the editor protocol over stdio. Routes
// requests to the engine, sends ghost/* notifications back, and tracks
// in-flight requests for $/cancelRequest.
package ghosttype

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
)

var serverStartTime = time.Now()

// Server is the stdio JSON-RPC host server.
type Server struct {
	conn   *jsonrpc2.Conn
	connMu sync.RWMutex

	logger         *slog.Logger
	engine         *Engine
	serverInfo     *ServerInfo
	initParams     *InitializeParams
	requestTracker *RequestTracker

	stateMu      sync.Mutex
	initialized  bool
	shuttingDown bool
}

// NewServer creates a host server and its engine. The server itself is the
// engine's Frontend: ghost notifications go out over the JSON-RPC
// connection once Run establishes it.
func NewServer(cfg Config, logger *slog.Logger, version string) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		logger: logger,
		serverInfo: &ServerInfo{
			Name:    "ghosttype",
			Version: version,
		},
		requestTracker: NewRequestTracker(),
	}
	engine, err := NewEngine(cfg, s, logger)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	publishExpvarMetrics(s)
	return s, nil
}

// Engine exposes the underlying engine, mainly for the CLI and tests.
func (s *Server) Engine() *Engine { return s.engine }

// Run starts the server loop on r/w and blocks until the connection closes.
// The engine is shut down on return.
func (s *Server) Run(r io.Reader, w io.Writer) {
	s.logger.Info("Starting host server run loop")

	stream := &stdrwc{r: r, w: w}
	objectStream := jsonrpc2.NewPlainObjectStream(stream)
	handler := jsonrpc2.HandlerWithError(s.handle)

	conn := jsonrpc2.NewConn(context.Background(), objectStream, handler)
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.logger.Info("JSON-RPC connection established")

	<-conn.DisconnectNotify()
	s.logger.Info("JSON-RPC connection closed")
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("Engine close reported error", "error", err)
	}
}

// stdrwc is a simple ReadWriteCloser that wraps stdin/stdout without closing them.
type stdrwc struct {
	r io.Reader
	w io.Writer
}

func (s *stdrwc) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *stdrwc) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *stdrwc) Close() error                { return nil }

// handle routes incoming requests/notifications to handler methods.
func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (result any, err error) {
	methodLogger := s.logger.With("method", req.Method, "is_notification", req.Notif)
	isRequest := req.ID != (jsonrpc2.ID{})
	if isRequest {
		methodLogger = methodLogger.With("req_id", req.ID)
	}
	methodLogger.Debug("Received request/notification")

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			methodLogger.Error("Panic recovered in handler", "panic_value", r, "stack", stack)

			panicMsg := fmt.Sprintf("Panic: %v", r)
			panicData, marshalErr := json.Marshal(panicMsg)
			if marshalErr != nil {
				methodLogger.Error("Failed to marshal panic message for error data", "error", marshalErr)
				panicData = json.RawMessage(`"failed to marshal panic data"`)
			}
			rawPanicData := json.RawMessage(panicData)

			err = &jsonrpc2.Error{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("Internal server error in method %s", req.Method),
				Data:    &rawPanicData,
			}
			result = nil
		}
	}()

	if isRequest {
		ctx = s.requestTracker.Add(req.ID, ctx)
		defer s.requestTracker.Remove(req.ID)
	}
	select {
	case <-ctx.Done():
		methodLogger.Warn("Request context cancelled before processing started", "error", ctx.Err())
		return nil, &jsonrpc2.Error{Code: CodeRequestCancelled, Message: "Request cancelled"}
	default:
	}

	unmarshalParams := func(target any) error {
		if req.Params == nil {
			return errors.New("params field is null")
		}
		return json.Unmarshal(*req.Params, target)
	}

	switch req.Method {
	case "initialize":
		var params InitializeParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("initialize", err)
		}
		return s.handleInitialize(ctx, params)

	case "initialized":
		methodLogger.Info("Client initialized notification received")
		return nil, nil

	case "shutdown":
		return s.handleShutdown(ctx)

	case "exit":
		s.handleExit(conn)
		return nil, nil

	case "buffer/didOpen":
		var params BufferOpenParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("buffer/didOpen", err)
		}
		s.engine.OpenBuffer(params.URI, params.LanguageID, params.Text, params.Version)
		return nil, nil

	case "buffer/didChange":
		var params BufferChangeParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("buffer/didChange", err)
		}
		if err := s.engine.UpdateBuffer(params.URI, params.Text, params.Version, params.Cursor); err != nil {
			methodLogger.Warn("Buffer update rejected", "uri", params.URI, "error", err)
		}
		return nil, nil

	case "buffer/didClose":
		var params BufferCloseParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("buffer/didClose", err)
		}
		s.engine.CloseBuffer(params.URI)
		return nil, nil

	case "completion/keystroke":
		var params KeystrokeParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("completion/keystroke", err)
		}
		if err := s.engine.Keystroke(params.URI, params.Position); err != nil {
			methodLogger.Debug("Keystroke on unknown buffer", "uri", params.URI)
		}
		return nil, nil

	case "completion/trigger":
		var params TriggerParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("completion/trigger", err)
		}
		return nil, s.engineError(s.engine.Trigger(params.URI, params.Position))

	case "completion/accept":
		var params AcceptParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("completion/accept", err)
		}
		accepted, aErr := s.engine.Accept(params.URI)
		if aErr != nil {
			return nil, s.engineError(aErr)
		}
		return AcceptResult{Accepted: accepted}, nil

	case "completion/dismiss":
		var params DismissParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("completion/dismiss", err)
		}
		dismissed, dErr := s.engine.Dismiss(params.URI)
		if dErr != nil {
			return nil, s.engineError(dErr)
		}
		return DismissResult{Dismissed: dismissed}, nil

	case "fix/run":
		var params FixParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("fix/run", err)
		}
		return nil, s.engineError(s.engine.Fix(params.URI, params.Range, params.Instruction))

	case "analysis/run":
		var params AnalyzeParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("analysis/run", err)
		}
		return s.handleAnalyze(ctx, params)

	case "chat/ask":
		var params ChatAskParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("chat/ask", err)
		}
		return s.handleChatAsk(ctx, params)

	case "chat/reset":
		var params ChatResetParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("chat/reset", err)
		}
		s.engine.Chat().Reset(params.ConversationID)
		return nil, nil

	case "config/update":
		var params ConfigUpdateParams
		if err := unmarshalParams(&params); err != nil {
			return nil, invalidParams("config/update", err)
		}
		return s.handleConfigUpdate(params)

	case "history/stats":
		return s.handleHistoryStats()

	case "history/recent":
		var params HistoryRecentParams
		if req.Params != nil {
			if err := unmarshalParams(&params); err != nil {
				return nil, invalidParams("history/recent", err)
			}
		}
		return s.handleHistoryRecent(params)

	case "$/cancelRequest":
		var params CancelParams
		if err := unmarshalParams(&params); err != nil {
			methodLogger.Warn("Invalid cancel params", "error", err)
			return nil, nil
		}
		s.cancelByRawID(params.ID, methodLogger)
		return nil, nil

	default:
		methodLogger.Warn("Unsupported method")
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not supported: %s", req.Method)}
	}
}

// cancelByRawID decodes a cancel target id, which may be a number or string.
func (s *Server) cancelByRawID(raw json.RawMessage, logger *slog.Logger) {
	var cancelID jsonrpc2.ID
	var numVal uint64
	var strVal string
	if err := json.Unmarshal(raw, &numVal); err == nil {
		cancelID = jsonrpc2.ID{Num: numVal}
	} else if err := json.Unmarshal(raw, &strVal); err == nil {
		cancelID = jsonrpc2.ID{Str: strVal, IsString: true}
	} else {
		logger.Warn("Could not determine type of cancel request ID", "raw", string(raw))
		return
	}
	s.requestTracker.Cancel(cancelID)
}

// invalidParams wraps an unmarshal failure into a JSON-RPC error.
func invalidParams(method string, err error) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: CodeInvalidParams, Message: fmt.Sprintf("Invalid %s params: %v", method, err)}
}

// engineError maps engine sentinel errors to protocol error codes.
func (s *Server) engineError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrSessionClosed):
		return &jsonrpc2.Error{Code: CodeBufferNotOpen, Message: err.Error()}
	case errors.Is(err, ErrNotConfigured):
		return &jsonrpc2.Error{Code: CodeNotConfigured, Message: err.Error()}
	default:
		return &jsonrpc2.Error{Code: CodeInternalError, Message: err.Error()}
	}
}

// ============================================================================
// Frontend implementation (server -> editor notifications)
// ============================================================================

func (s *Server) notify(method string, params any) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		s.logger.Warn("Cannot send notification: connection is nil", "method", method)
		return
	}
	if err := conn.Notify(context.Background(), method, params); err != nil {
		s.logger.Error("Failed to send notification", "method", method, "error", err)
	}
}

// ShowGhost implements Frontend.
func (s *Server) ShowGhost(params GhostShowParams) { s.notify("ghost/show", params) }

// AcceptGhost implements Frontend.
func (s *Server) AcceptGhost(params GhostAcceptParams) { s.notify("ghost/accept", params) }

// ClearGhost implements Frontend.
func (s *Server) ClearGhost(params GhostClearParams) { s.notify("ghost/clear", params) }

// Status implements Frontend.
func (s *Server) Status(params StatusParams) { s.notify("ghost/status", params) }

// ShowMessage implements Frontend.
func (s *Server) ShowMessage(params ShowMessageParams) { s.notify("window/showMessage", params) }

// ============================================================================
// Metrics Publication
// ============================================================================

func publishExpvarMetrics(s *Server) {
	expvar.NewString("serverInfo.name").Set(s.serverInfo.Name)
	expvar.NewString("serverInfo.version").Set(s.serverInfo.Version)
	expvar.NewString("serverStartTime").Set(serverStartTime.Format(time.RFC3339))
	expvar.Publish("goroutines", expvar.Func(func() any { return runtime.NumGoroutine() }))
	expvar.Publish("memory.allocBytes", expvar.Func(func() any {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc
	}))
	expvar.Publish("host.openBuffers", expvar.Func(func() any { return s.engine.sessions.Len() }))
	expvar.Publish("host.pendingRequests", expvar.Func(func() any { return s.requestTracker.Count() }))

	if metrics := s.engine.cache.Metrics(); metrics != nil {
		expvar.Publish("cache.completion.hits", expvar.Func(func() any { return metrics.Hits() }))
		expvar.Publish("cache.completion.misses", expvar.Func(func() any { return metrics.Misses() }))
		expvar.Publish("cache.completion.keysAdded", expvar.Func(func() any { return metrics.KeysAdded() }))
		expvar.Publish("cache.completion.keysEvicted", expvar.Func(func() any { return metrics.KeysEvicted() }))
	} else {
		expvar.Publish("cache.completion.hits", expvar.Func(func() any { return 0 }))
		expvar.Publish("cache.completion.misses", expvar.Func(func() any { return 0 }))
		expvar.Publish("cache.completion.keysAdded", expvar.Func(func() any { return 0 }))
		expvar.Publish("cache.completion.keysEvicted", expvar.Func(func() any { return 0 }))
	}
}

// ============================================================================
// Request Cancellation Tracker
// ============================================================================

// RequestTracker manages cancellation contexts for in-flight requests.
type RequestTracker struct {
	mu       sync.Mutex
	requests map[jsonrpc2.ID]context.CancelFunc
}

// NewRequestTracker creates a new tracker.
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		requests: make(map[jsonrpc2.ID]context.CancelFunc),
	}
}

// Add registers a request ID and returns a derived context that is cancelled
// when the client sends $/cancelRequest for that ID. Handlers must run on
// the returned context for cancellation to take effect.
func (rt *RequestTracker) Add(id jsonrpc2.ID, ctx context.Context) context.Context {
	if id == (jsonrpc2.ID{}) {
		return ctx
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	trackCtx, cancel := context.WithCancel(ctx)
	rt.requests[id] = cancel
	return trackCtx
}

// Remove deregisters a request ID, releasing its derived context.
func (rt *RequestTracker) Remove(id jsonrpc2.ID) {
	if id == (jsonrpc2.ID{}) {
		return
	}
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	if found {
		delete(rt.requests, id)
	}
	rt.mu.Unlock()

	if found {
		cancel()
	}
}

// Cancel finds the cancel function for a request ID and calls it.
func (rt *RequestTracker) Cancel(id jsonrpc2.ID) {
	if id == (jsonrpc2.ID{}) {
		return
	}
	rt.mu.Lock()
	cancel, found := rt.requests[id]
	if found {
		delete(rt.requests, id)
	}
	rt.mu.Unlock()

	if found {
		cancel()
	}
}

// Count returns the number of currently tracked requests.
func (rt *RequestTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.requests)
}
