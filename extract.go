// extract.go
// Implements the context window extractor that turns a document and cursor
// position into the prefix/suffix snippet sent to the completion API.
package ghosttype

import (
	"log/slog"
	"strings"
)

// ContextExtractor builds CompletionContext values from documents using the
// configured window sizes.
type ContextExtractor struct {
	logger *slog.Logger
}

// NewContextExtractor creates an extractor.
func NewContextExtractor(logger *slog.Logger) *ContextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextExtractor{logger: logger.With("component", "ContextExtractor")}
}

// Extract captures the context window around pos. The window spans
// cfg.LinesBefore lines above and cfg.LinesAfter lines below the cursor
// line; prefix and suffix are each capped at half of cfg.MaxContextChars,
// keeping the prefix tail and the suffix head. The cursor is clamped into
// the buffer; an empty buffer yields empty prefix and suffix.
func (e *ContextExtractor) Extract(doc *Document, pos Position, cfg Config, mode Mode) CompletionContext {
	line, col := doc.ClampPosition(pos, e.logger)
	currentLine := doc.Line(line)
	if col > len(currentLine) {
		col = len(currentLine)
	}

	before := doc.LineRange(line-cfg.LinesBefore, line)
	after := doc.LineRange(line+1, line+1+cfg.LinesAfter)

	var prefixB strings.Builder
	for _, l := range before {
		prefixB.WriteString(l)
		prefixB.WriteByte('\n')
	}
	prefixB.WriteString(currentLine[:col])
	prefix := prefixB.String()

	var suffixB strings.Builder
	suffixB.WriteString(currentLine[col:])
	for _, l := range after {
		suffixB.WriteByte('\n')
		suffixB.WriteString(l)
	}
	suffix := suffixB.String()

	half := cfg.MaxContextChars / 2
	if len(prefix) > half {
		prefix = prefix[len(prefix)-half:]
		e.logger.Debug("Prefix truncated", "uri", doc.URI(), "kept_chars", len(prefix))
	}
	if len(suffix) > half {
		suffix = suffix[:half]
		e.logger.Debug("Suffix truncated", "uri", doc.URI(), "kept_chars", len(suffix))
	}

	totalChars := doc.Len()
	oversized := totalChars > cfg.MaxFileSize
	if oversized {
		e.logger.Warn("Buffer exceeds size threshold, using windowed context only",
			"uri", doc.URI(), "chars", totalChars, "threshold", cfg.MaxFileSize)
	}

	return CompletionContext{
		PrefixText: prefix,
		SuffixText: suffix,
		CursorLine: line,
		CursorCol:  col,
		Language:   doc.LanguageID(),
		FileName:   doc.URI(),
		Mode:       mode,
		Indent:     leadingIndent(currentLine[:col]),
		TotalChars: totalChars,
		Oversized:  oversized,
	}
}
