// document.go
package ghosttype

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

// ============================================================================
// Document Model
// ============================================================================

// Document is the engine's in-memory model of one open editor buffer.
// The host syncs full text on every change; versions increase monotonically.
type Document struct {
	mu         sync.RWMutex
	uri        string
	languageID string
	version    int
	text       string
	lines      []string
}

// NewDocument creates a document from the initial didOpen payload.
func NewDocument(uri, languageID, text string) *Document {
	d := &Document{
		uri:        uri,
		languageID: languageID,
		version:    0,
	}
	d.setText(text)
	return d
}

func (d *Document) setText(text string) {
	d.text = text
	d.lines = strings.Split(text, "\n")
}

// Update replaces the document content. Updates carrying a version not newer
// than the current one are ignored and reported.
func (d *Document) Update(text string, version int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if version <= d.version && version != 0 {
		return false
	}
	d.version = version
	d.setText(text)
	return true
}

// URI returns the document's identifier.
func (d *Document) URI() string { return d.uri }

// LanguageID returns the language declared at open time.
func (d *Document) LanguageID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.languageID
}

// Version returns the current sync version.
func (d *Document) Version() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Text returns the full buffer content.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Len returns the buffer size in bytes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.text)
}

// LineCount returns the number of lines in the buffer. An empty buffer has
// one (empty) line.
func (d *Document) LineCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.lines)
}

// Line returns the content of the zero-based line i without its newline.
// Out-of-range lines return "".
func (d *Document) Line(i int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.lines) {
		return ""
	}
	return d.lines[i]
}

// LineRange returns lines [from, to) clamped to the buffer.
func (d *Document) LineRange(from, to int) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if to > len(d.lines) {
		to = len(d.lines)
	}
	if from >= to {
		return nil
	}
	out := make([]string, to-from)
	copy(out, d.lines[from:to])
	return out
}

// ClampPosition converts a wire position (zero-based line, UTF-16 character
// offset) to a zero-based line and byte column, clamping both into the
// buffer's valid range. It never fails on out-of-range input; conversion
// errors inside a line clamp to line end with a warning.
func (d *Document) ClampPosition(pos Position, logger *slog.Logger) (line, byteCol int) {
	if logger == nil {
		logger = slog.Default()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	line = pos.Line
	if line < 0 {
		line = 0
	}
	if line >= len(d.lines) {
		line = len(d.lines) - 1
	}
	lineText := d.lines[line]

	byteCol, err := Utf16OffsetToBytes([]byte(lineText), pos.Col)
	if err != nil {
		logger.Warn("Clamping cursor column to line end",
			"uri", d.uri, "line", line, "character", pos.Col, "error", err)
		byteCol = len(lineText)
	}
	return line, byteCol
}

// TextRange extracts the text between two clamped positions.
func (d *Document) TextRange(start, end Position, logger *slog.Logger) string {
	sl, sc := d.ClampPosition(start, logger)
	el, ec := d.ClampPosition(end, logger)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if sl > el || (sl == el && sc >= ec) {
		return ""
	}
	if sl == el {
		return d.lines[sl][sc:ec]
	}
	var b strings.Builder
	b.WriteString(d.lines[sl][sc:])
	for i := sl + 1; i < el; i++ {
		b.WriteByte('\n')
		b.WriteString(d.lines[i])
	}
	b.WriteByte('\n')
	b.WriteString(d.lines[el][:ec])
	return b.String()
}

// ============================================================================
// Position Conversion Helpers
// ============================================================================

// Utf16OffsetToBytes converts a 0-based UTF-16 offset within a line to a
// 0-based byte offset.
func Utf16OffsetToBytes(line []byte, utf16Offset int) (int, error) {
	if utf16Offset < 0 {
		return 0, fmt.Errorf("%w: invalid utf16Offset: %d (must be >= 0)", ErrInvalidPositionInput, utf16Offset)
	}
	if utf16Offset == 0 {
		return 0, nil
	}

	byteOffset := 0
	currentUTF16Offset := 0
	for byteOffset < len(line) {
		if currentUTF16Offset >= utf16Offset {
			break
		}
		r, size := utf8.DecodeRune(line[byteOffset:])
		if r == utf8.RuneError && size <= 1 {
			return byteOffset, fmt.Errorf("%w at byte offset %d", ErrInvalidUTF8, byteOffset)
		}
		utf16Units := 1
		if r > 0xFFFF {
			utf16Units = 2
		} // Surrogate pairs require 2 units.
		if currentUTF16Offset+utf16Units > utf16Offset {
			break
		}
		currentUTF16Offset += utf16Units
		byteOffset += size
		if currentUTF16Offset == utf16Offset {
			break
		}
	}
	if currentUTF16Offset < utf16Offset {
		return len(line), fmt.Errorf("%w: utf16Offset %d is beyond the line length in UTF-16 units (%d)", ErrPositionOutOfRange, utf16Offset, currentUTF16Offset)
	}
	return byteOffset, nil
}

// leadingIndent returns the run of spaces and tabs at the start of line.
func leadingIndent(line string) string {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return line[:i]
		}
	}
	return line
}
