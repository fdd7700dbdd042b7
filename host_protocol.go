// host_protocol.go
// Wire structures for the editor host protocol: a JSON-RPC 2.0 surface over
// stdio, shaped after LSP but specific to ghost-text completion. Requests
// flow editor -> server; ghost/* notifications flow server -> editor.
package ghosttype

import "encoding/json"

// ============================================================================
// Lifecycle
// ============================================================================

// ClientInfo identifies the connecting editor.
type ClientInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// InitializeParams parameters for the initialize request.
type InitializeParams struct {
	ProcessID             int             `json:"processId,omitempty"`
	ClientInfo            *ClientInfo     `json:"clientInfo,omitempty"`
	InitializationOptions json.RawMessage `json:"initializationOptions,omitempty"`
}

// ServerInfo identifies this server in the initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerCapabilities advertises what the server supports.
type ServerCapabilities struct {
	CompletionProvider bool `json:"completionProvider"`
	FixProvider        bool `json:"fixProvider"`
	AnalysisProvider   bool `json:"analysisProvider"`
	ChatProvider       bool `json:"chatProvider"`
}

// InitializeResult response to the initialize request.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ============================================================================
// Buffer synchronization
// ============================================================================

// BufferOpenParams parameters for buffer/didOpen.
type BufferOpenParams struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// BufferChangeParams parameters for buffer/didChange. Full-text sync: Text
// is the complete new buffer content.
type BufferChangeParams struct {
	URI     string   `json:"uri"`
	Version int      `json:"version"`
	Text    string   `json:"text"`
	Cursor  Position `json:"cursor"`
}

// BufferCloseParams parameters for buffer/didClose.
type BufferCloseParams struct {
	URI string `json:"uri"`
}

// ============================================================================
// Completion
// ============================================================================

// KeystrokeParams parameters for completion/keystroke.
type KeystrokeParams struct {
	URI      string   `json:"uri"`
	Position Position `json:"position"`
}

// TriggerParams parameters for completion/trigger (manual invocation).
type TriggerParams struct {
	URI      string   `json:"uri"`
	Position Position `json:"position"`
}

// AcceptParams parameters for completion/accept.
type AcceptParams struct {
	URI string `json:"uri"`
}

// AcceptResult response to completion/accept.
type AcceptResult struct {
	Accepted bool `json:"accepted"`
}

// DismissParams parameters for completion/dismiss.
type DismissParams struct {
	URI string `json:"uri"`
}

// DismissResult response to completion/dismiss.
type DismissResult struct {
	Dismissed bool `json:"dismissed"`
}

// FixParams parameters for fix/run: request a replacement for the selection.
type FixParams struct {
	URI         string `json:"uri"`
	Range       Range  `json:"range"`
	Instruction string `json:"instruction,omitempty"`
}

// ============================================================================
// Analysis and chat
// ============================================================================

// AnalyzeParams parameters for analysis/run.
type AnalyzeParams struct {
	URI      string   `json:"uri"`
	Position Position `json:"position"`
	Range    *Range   `json:"range,omitempty"`
}

// AnalyzeResult response to analysis/run.
type AnalyzeResult struct {
	Text string `json:"text"`
}

// ChatAskParams parameters for chat/ask. An empty ConversationID starts a
// new conversation; URI and Range optionally attach code context.
type ChatAskParams struct {
	ConversationID string `json:"conversationId,omitempty"`
	Question       string `json:"question"`
	URI            string `json:"uri,omitempty"`
	Range          *Range `json:"range,omitempty"`
}

// ChatAskResult response to chat/ask.
type ChatAskResult struct {
	ConversationID string `json:"conversationId"`
	Reply          string `json:"reply"`
}

// ChatResetParams parameters for chat/reset.
type ChatResetParams struct {
	ConversationID string `json:"conversationId"`
}

// ============================================================================
// Configuration and history
// ============================================================================

// ConfigUpdateParams parameters for config/update. Settings carries only the
// fields the editor wants to change.
type ConfigUpdateParams struct {
	Settings FileConfig `json:"settings"`
}

// ConfigUpdateResult response to config/update: the full active config.
type ConfigUpdateResult struct {
	Config Config `json:"config"`
}

// HistoryStatsResult response to history/stats, keyed by mode name.
type HistoryStatsResult struct {
	Stats map[string]HistoryStats `json:"stats"`
}

// HistoryRecentParams parameters for history/recent.
type HistoryRecentParams struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryRecentResult response to history/recent, newest first.
type HistoryRecentResult struct {
	Records []HistoryRecord `json:"records"`
}

// ============================================================================
// Server -> editor notifications
// ============================================================================

// GhostShowParams payload of the ghost/show notification. ReplaceRange is
// set for fix-mode suggestions that replace a selection.
type GhostShowParams struct {
	URI          string   `json:"uri"`
	Anchor       Position `json:"anchor"`
	Text         string   `json:"text"`
	ReplaceRange *Range   `json:"replaceRange,omitempty"`
}

// GhostAcceptParams payload of the ghost/accept notification.
type GhostAcceptParams struct {
	URI string `json:"uri"`
}

// GhostClearParams payload of the ghost/clear notification. RestoreText is
// set when a dismissed fix-mode suggestion must restore the original
// selection text.
type GhostClearParams struct {
	URI         string  `json:"uri"`
	RestoreText *string `json:"restoreText,omitempty"`
}

// StatusParams payload of the ghost/status notification.
type StatusParams struct {
	URI     string `json:"uri,omitempty"`
	Message string `json:"message"`
}

// MessageType severity for window/showMessage.
type MessageType int

const (
	MessageTypeError   MessageType = 1
	MessageTypeWarning MessageType = 2
	MessageTypeInfo    MessageType = 3
	MessageTypeLog     MessageType = 4
)

// ShowMessageParams payload of the window/showMessage notification.
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// CancelParams payload of the $/cancelRequest notification.
type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

// ============================================================================
// JSON-RPC error codes
// ============================================================================

const (
	// JSON-RPC 2.0 reserved codes.
	CodeParseError     int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternalError  int64 = -32603

	// Server-specific codes.
	CodeServerNotInitialized int64 = -32002
	CodeRequestCancelled     int64 = -32800
	CodeBufferNotOpen        int64 = -32010
	CodeNotConfigured        int64 = -32011
)
