// ghosttype_errors.go
// Defines sentinel error values used throughout the ghosttype module.
package ghosttype

import "errors"

var (
	// ErrNotConfigured indicates the API key is missing, so no network
	// request can be attempted.
	ErrNotConfigured = errors.New("completion service not configured: missing API key")
	// ErrTimeout indicates the completion request exceeded its deadline.
	ErrTimeout = errors.New("completion request timed out")
	// ErrAuthFailed indicates the API rejected the configured key (HTTP 401).
	ErrAuthFailed = errors.New("completion API authentication failed")
	// ErrRateLimited indicates the API throttled the request (HTTP 429).
	ErrRateLimited = errors.New("completion API rate limited")
	// ErrAPI indicates a non-auth, non-throttle API failure.
	ErrAPI = errors.New("completion API error")
	// ErrEmptyResponse indicates the API returned no usable content.
	ErrEmptyResponse = errors.New("completion API returned empty response")
	// ErrStaleRequest indicates a completion result arrived after its
	// request was superseded and was discarded.
	ErrStaleRequest = errors.New("completion request superseded")
	// ErrNoSuggestion indicates an accept or dismiss was attempted with no
	// suggestion showing.
	ErrNoSuggestion = errors.New("no active suggestion")
	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("completion session closed")
	// ErrConfig indicates a non-fatal configuration issue (e.g., file
	// not found or unparsable, defaults used).
	ErrConfig = errors.New("configuration error")
	// ErrInvalidConfig indicates a specific invalid configuration value.
	ErrInvalidConfig = errors.New("invalid configuration setting")
	// ErrHistory indicates a failure in the suggestion history store.
	ErrHistory = errors.New("suggestion history error")
	// ErrInvalidPositionInput indicates invalid row/col input values for a
	// position conversion.
	ErrInvalidPositionInput = errors.New("invalid input position")
	// ErrPositionOutOfRange indicates a position is outside the document's
	// valid range after clamping.
	ErrPositionOutOfRange = errors.New("position out of range")
	// ErrInvalidUTF8 indicates malformed UTF-8 was encountered during
	// position conversion.
	ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")
)
