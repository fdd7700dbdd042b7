// renderer.go
// Tracks the ghost suggestion the editor frontend is displaying for one
// buffer and drives it through show/accept/dismiss notifications. The
// renderer never edits text itself; the frontend owns the widget.
package ghosttype

import (
	"log/slog"
	"strings"
)

// Frontend is the notification surface the engine drives. The JSON-RPC
// server implements it by sending ghost/* notifications to the editor.
type Frontend interface {
	// ShowGhost asks the editor to display ghost text. For fix mode the
	// ReplaceRange is set and the frontend swaps the selection for the
	// ghost text.
	ShowGhost(params GhostShowParams)
	// AcceptGhost asks the editor to materialize the active ghost text.
	AcceptGhost(params GhostAcceptParams)
	// ClearGhost asks the editor to remove the active ghost text,
	// restoring RestoreText when set (fix mode dismiss).
	ClearGhost(params GhostClearParams)
	// Status updates the editor status line.
	Status(params StatusParams)
	// ShowMessage surfaces a user-visible error or warning.
	ShowMessage(params ShowMessageParams)
}

// Renderer holds the ghost text state for a single buffer. Callers hold the
// session mutex; Renderer itself is not locked.
type Renderer struct {
	frontend Frontend
	logger   *slog.Logger

	uri        string
	active     bool
	suggestion Suggestion

	replacementMode bool
	originalText    string
}

// NewRenderer creates a renderer bound to one buffer URI.
func NewRenderer(uri string, frontend Frontend, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		frontend: frontend,
		logger:   logger.With("component", "Renderer", "uri", uri),
		uri:      uri,
	}
}

// Active reports whether a suggestion is currently showing.
func (r *Renderer) Active() bool { return r.active }

// Current returns the showing suggestion, valid only while Active.
func (r *Renderer) Current() Suggestion { return r.suggestion }

// Show displays an insertion suggestion at its anchor. Blank suggestions
// are rejected. Multi-line text is re-indented to the anchor line's indent
// when preserveIndent is set: the first line is untouched and non-blank
// continuation lines get the indent prefix.
func (r *Renderer) Show(sugg Suggestion, indent string, preserveIndent bool) bool {
	r.clearLocked(nil)

	if strings.TrimSpace(sugg.Text) == "" {
		r.logger.Debug("Empty suggestion, not showing")
		return false
	}
	if preserveIndent && indent != "" {
		sugg.Text = reindent(sugg.Text, indent)
	}

	r.suggestion = sugg
	r.active = true
	r.replacementMode = false
	r.originalText = ""

	r.frontend.ShowGhost(GhostShowParams{
		URI:    r.uri,
		Anchor: Position{Line: sugg.Line, Col: sugg.Col},
		Text:   sugg.Text,
	})
	r.logger.Info("Ghost text shown", "chars", len(sugg.Text), "line", sugg.Line, "col", sugg.Col)
	return true
}

// ShowReplacement displays a fix-mode suggestion replacing a selection. The
// replaced original text is kept so Dismiss can restore it.
func (r *Renderer) ShowReplacement(sugg Suggestion) bool {
	r.clearLocked(nil)

	if strings.TrimSpace(sugg.Text) == "" {
		return false
	}
	r.suggestion = sugg
	r.active = true
	r.replacementMode = true
	r.originalText = sugg.ReplacedText

	rng := Range{Start: sugg.ReplaceStart, End: sugg.ReplaceEnd}
	r.frontend.ShowGhost(GhostShowParams{
		URI:          r.uri,
		Anchor:       sugg.ReplaceStart,
		Text:         sugg.Text,
		ReplaceRange: &rng,
	})
	r.logger.Info("Replacement shown", "chars", len(sugg.Text), "replaced_chars", len(sugg.ReplacedText))
	return true
}

// Accept materializes the active suggestion. Returns the accepted
// suggestion and true, or a zero value and false when nothing is showing.
func (r *Renderer) Accept() (Suggestion, bool) {
	if !r.active {
		return Suggestion{}, false
	}
	accepted := r.suggestion
	wasReplacement := r.replacementMode

	r.frontend.AcceptGhost(GhostAcceptParams{URI: r.uri})
	if wasReplacement {
		r.frontend.Status(StatusParams{URI: r.uri, Message: "Fix applied"})
	} else {
		r.frontend.Status(StatusParams{URI: r.uri, Message: "Completion accepted"})
	}
	r.reset()
	r.logger.Info("Suggestion accepted", "mode", string(accepted.Mode))
	return accepted, true
}

// Dismiss removes the active suggestion, restoring the original selection
// text in fix mode. Returns the dismissed suggestion and true, or false
// when nothing is showing.
func (r *Renderer) Dismiss() (Suggestion, bool) {
	if !r.active {
		return Suggestion{}, false
	}
	dismissed := r.suggestion
	var restore *string
	if r.replacementMode && r.originalText != "" {
		text := r.originalText
		restore = &text
	}
	r.clearLocked(restore)
	r.logger.Info("Suggestion dismissed", "mode", string(dismissed.Mode))
	return dismissed, true
}

func (r *Renderer) clearLocked(restore *string) {
	if !r.active {
		return
	}
	r.frontend.ClearGhost(GhostClearParams{URI: r.uri, RestoreText: restore})
	r.reset()
}

func (r *Renderer) reset() {
	r.active = false
	r.suggestion = Suggestion{}
	r.replacementMode = false
	r.originalText = ""
}

// reindent prefixes non-blank continuation lines with indent.
func reindent(text, indent string) string {
	if !strings.Contains(text, "\n") {
		return text
	}
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			lines[i] = indent + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
