// ghosttype/session_test.go
package ghosttype

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClient returns a canned response, optionally blocking until released.
type fakeClient struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	gate     chan struct{} // when non-nil, Complete blocks on it
}

func (f *fakeClient) Complete(ctx context.Context, compCtx CompletionContext, cfg Config) (string, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	resp, err := f.response, f.err
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp, err
}

func (f *fakeClient) Chat(ctx context.Context, history []ChatMessage, cfg Config) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.response, f.err
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testSessionConfig() Config {
	cfg := getDefaultConfig()
	cfg.DebounceMs = 5
	cfg.MinTriggerIntervalMs = 0
	cfg.MinPrefixLength = 2
	cfg.ContinuousCompletion = false
	return cfg
}

func newTestSession(t *testing.T, text string, client *fakeClient, cfg Config) (*CompletionSession, *fakeFrontend) {
	t.Helper()
	doc := NewDocument("file:///s.py", "python", text)
	frontend := newFakeFrontend()
	session := NewCompletionSession(doc, frontend, client, func() Config { return cfg }, nil, nil, testLogger())
	t.Cleanup(session.Close)
	return session, frontend
}

func waitForShow(t *testing.T, frontend *fakeFrontend) GhostShowParams {
	t.Helper()
	select {
	case params := <-frontend.shown:
		return params
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ghost text")
		return GhostShowParams{}
	}
}

func TestSessionKeystrokeTriggersCompletion(t *testing.T) {
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.HandleKeystroke(Position{Line: 1, Col: 7})
	shown := waitForShow(t, frontend)
	if shown.Text != "return a + b" {
		t.Errorf("ghost text = %q, want %q", shown.Text, "return a + b")
	}
	if got := session.State(); got != StateShowing {
		t.Errorf("state = %v, want %v", got, StateShowing)
	}
}

func TestSessionNoTriggerBelowMinPrefix(t *testing.T) {
	client := &fakeClient{response: "x"}
	session, _ := newTestSession(t, "r", client, testSessionConfig())

	session.HandleKeystroke(Position{Line: 0, Col: 1})
	time.Sleep(50 * time.Millisecond)
	if client.callCount() != 0 {
		t.Errorf("request issued for prefix below minimum, calls = %d", client.callCount())
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state = %v, want %v", got, StateIdle)
	}
}

func TestSessionAutoTriggerDisabled(t *testing.T) {
	cfg := testSessionConfig()
	cfg.AutoTrigger = false
	client := &fakeClient{response: "x"}
	session, _ := newTestSession(t, "def add(a, b):\n    ret", client, cfg)

	session.HandleKeystroke(Position{Line: 1, Col: 7})
	time.Sleep(50 * time.Millisecond)
	if client.callCount() != 0 {
		t.Error("request issued with auto trigger disabled")
	}
}

func TestSessionKeystrokeDismissesShowingGhost(t *testing.T) {
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.HandleKeystroke(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)

	// A keystroke that does not re-trigger still clears the ghost.
	session.HandleKeystroke(Position{Line: 1, Col: 1})
	if _, ok := frontend.lastClear(); !ok {
		t.Error("showing ghost not cleared on keystroke")
	}
	if got := session.State(); got == StateShowing {
		t.Error("session still showing after keystroke")
	}
}

func TestSessionStaleResultDropped(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{response: "stale text", gate: gate}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.TriggerManual(Position{Line: 1, Col: 7})
	for client.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Invalidate the in-flight request, then release it.
	session.HandleKeystroke(Position{Line: 1, Col: 1})
	close(gate)
	time.Sleep(50 * time.Millisecond)

	if n := frontend.showCount(); n != 0 {
		t.Errorf("stale result shown, show notifications = %d", n)
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state = %v, want %v", got, StateIdle)
	}
}

func TestSessionTriggerIgnoredWhileRequesting(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{response: "return a + b", gate: gate}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.TriggerManual(Position{Line: 1, Col: 7})
	for client.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if got := session.State(); got != StateRequesting {
		t.Fatalf("state = %v, want %v", got, StateRequesting)
	}

	// Further triggers while a request is in flight are no-ops.
	session.TriggerManual(Position{Line: 1, Col: 7})
	session.RequestFix(Range{Start: Position{Line: 1, Col: 4}, End: Position{Line: 1, Col: 7}}, "")
	time.Sleep(20 * time.Millisecond)
	if client.callCount() != 1 {
		t.Errorf("second network call started while requesting, calls = %d, want 1", client.callCount())
	}

	// The in-flight request is still current and its result shows.
	close(gate)
	shown := waitForShow(t, frontend)
	if shown.Text != "return a + b" {
		t.Errorf("ghost text = %q", shown.Text)
	}
}

func TestSessionMinTriggerIntervalThrottle(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MinTriggerIntervalMs = 60000
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, cfg)

	session.HandleKeystroke(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)
	if client.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", client.callCount())
	}

	// A second automatic trigger inside the interval is swallowed.
	session.HandleKeystroke(Position{Line: 1, Col: 7})
	time.Sleep(50 * time.Millisecond)
	if client.callCount() != 1 {
		t.Errorf("throttled trigger issued a request, calls = %d", client.callCount())
	}

	// Manual trigger bypasses the throttle.
	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)
	if client.callCount() != 2 {
		t.Errorf("manual trigger throttled, calls = %d", client.callCount())
	}
}

func TestSessionAcceptAndDismiss(t *testing.T) {
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	if session.Accept() {
		t.Error("Accept with nothing showing returned true")
	}
	if session.Dismiss() {
		t.Error("Dismiss with nothing showing returned true")
	}

	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)
	if !session.Accept() {
		t.Fatal("Accept returned false with ghost showing")
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state after accept = %v, want %v", got, StateIdle)
	}

	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)
	if !session.Dismiss() {
		t.Fatal("Dismiss returned false with ghost showing")
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state after dismiss = %v, want %v", got, StateIdle)
	}
}

func TestSessionBufferChangeDismissesGhost(t *testing.T) {
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)

	session.HandleChange("def add(a, b):\n    retu", 2, Position{Line: 1, Col: 8})
	if _, ok := frontend.lastClear(); !ok {
		t.Error("ghost not cleared on buffer change")
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state = %v, want %v", got, StateIdle)
	}
}

func TestSessionContinuousCompletionAfterAccept(t *testing.T) {
	cfg := testSessionConfig()
	cfg.ContinuousCompletion = true
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, cfg)

	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)
	if !session.Accept() {
		t.Fatal("Accept returned false")
	}

	// The frontend inserting the accepted text produces a change with the
	// cursor at the end of the inserted line, which triggers a follow-up.
	session.HandleChange("def add(a, b):\n    return a + b", 2, Position{Line: 1, Col: 16})
	waitForShow(t, frontend)
	if client.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (follow-up after accept)", client.callCount())
	}
}

func TestSessionNoContinuousMidLine(t *testing.T) {
	cfg := testSessionConfig()
	cfg.ContinuousCompletion = true
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret  # note", client, cfg)

	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)
	session.Accept()

	session.HandleChange("def add(a, b):\n    return a + b  # note", 2, Position{Line: 1, Col: 16})
	time.Sleep(50 * time.Millisecond)
	if client.callCount() != 1 {
		t.Errorf("follow-up issued mid-line, calls = %d", client.callCount())
	}
}

func TestSessionFixModeReplacement(t *testing.T) {
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, "def add(a, b):\n    retrn a + b", client, testSessionConfig())

	sel := Range{Start: Position{Line: 1, Col: 4}, End: Position{Line: 1, Col: 16}}
	session.RequestFix(sel, "fix the typo")
	shown := waitForShow(t, frontend)
	if shown.ReplaceRange == nil {
		t.Fatal("fix suggestion missing ReplaceRange")
	}
	if *shown.ReplaceRange != sel {
		t.Errorf("ReplaceRange = %+v, want %+v", *shown.ReplaceRange, sel)
	}

	if !session.Dismiss() {
		t.Fatal("Dismiss returned false")
	}
	clear, ok := frontend.lastClear()
	if !ok {
		t.Fatal("no clear notification")
	}
	if clear.RestoreText == nil || *clear.RestoreText != "retrn a + b" {
		t.Errorf("RestoreText = %v, want original selection", clear.RestoreText)
	}
}

func TestSessionErrorSetsStatus(t *testing.T) {
	client := &fakeClient{err: ErrRateLimited}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.TriggerManual(Position{Line: 1, Col: 7})
	deadline := time.After(2 * time.Second)
	for {
		frontend.mu.Lock()
		n := len(frontend.statuses)
		frontend.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no status notification after client error")
		case <-time.After(time.Millisecond):
		}
	}
	frontend.mu.Lock()
	msg := frontend.statuses[0].Message
	frontend.mu.Unlock()
	if msg != "AI completion: rate limited, try again later" {
		t.Errorf("status = %q", msg)
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state = %v, want %v", got, StateIdle)
	}
}

func TestSessionOversizedBufferWarnsOnce(t *testing.T) {
	cfg := testSessionConfig()
	cfg.MaxFileSize = 1000
	text := "def add(a, b):\n    ret" + strings.Repeat("\n# padding line", 100)
	client := &fakeClient{response: "return a + b"}
	session, frontend := newTestSession(t, text, client, cfg)

	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)
	session.TriggerManual(Position{Line: 1, Col: 7})
	waitForShow(t, frontend)

	var warnings int
	for _, msg := range frontend.messageList() {
		if msg.Type == MessageTypeWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Errorf("oversized warnings = %d, want exactly 1", warnings)
	}
}

func TestSessionAuthFailurePromptsForSettings(t *testing.T) {
	client := &fakeClient{err: ErrAuthFailed}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.TriggerManual(Position{Line: 1, Col: 7})
	deadline := time.After(2 * time.Second)
	for len(frontend.messageList()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no message notification after auth failure")
		case <-time.After(time.Millisecond):
		}
	}
	msgs := frontend.messageList()
	if msgs[0].Type != MessageTypeError {
		t.Errorf("message type = %d, want %d", msgs[0].Type, MessageTypeError)
	}
	if !strings.Contains(msgs[0].Message, "settings") {
		t.Errorf("message = %q, want settings guidance", msgs[0].Message)
	}
	if got := session.State(); got != StateIdle {
		t.Errorf("state = %v, want %v", got, StateIdle)
	}
}

func TestSessionCloseFencesInFlightRequest(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{response: "late text", gate: gate}
	session, frontend := newTestSession(t, "def add(a, b):\n    ret", client, testSessionConfig())

	session.TriggerManual(Position{Line: 1, Col: 7})
	for client.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	session.Close()
	close(gate)
	time.Sleep(50 * time.Millisecond)

	if n := frontend.showCount(); n != 0 {
		t.Errorf("result shown after Close, show notifications = %d", n)
	}
}

func TestSessionStateString(t *testing.T) {
	cases := map[SessionState]string{
		StateIdle:        "idle",
		StateRequesting:  "requesting",
		StateShowing:     "showing",
		SessionState(42): "unknown(42)",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("SessionState(%d).String() = %q, want %q", int32(state), got, want)
		}
	}
}
