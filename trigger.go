// trigger.go
// Heuristics deciding whether the text before the cursor warrants an
// automatic completion request.
package ghosttype

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// triggerKeywords are line prefixes that always warrant a completion.
var triggerKeywords = []string{
	"def ", "class ", "for ", "while ", "if ", "elif ", "with ",
	"import ", "from ", "return ", "print(", "self.", "try:",
	"except", "finally:", "else:", "async ", "await ", "lambda ",
	"yield ", "raise ", "assert ", "global ", "nonlocal ",
}

// triggerEndings are trailing characters that warrant a completion.
const triggerEndings = "=([{,:.+-*/><&|%@!~"

// ShouldTrigger reports whether an automatic completion should be requested
// for the given text between line start and cursor. minPrefixLength is the
// smallest stripped-line length that qualifies on its own.
func ShouldTrigger(lineBeforeCursor string, minPrefixLength int) bool {
	stripped := strings.TrimSpace(lineBeforeCursor)
	if stripped == "" {
		return false
	}

	// Keywords carry their trailing space, so match against the line with
	// only the indentation removed.
	unindented := strings.TrimLeft(lineBeforeCursor, " \t")
	for _, kw := range triggerKeywords {
		if strings.HasPrefix(unindented, kw) {
			return true
		}
	}

	trimmed := strings.TrimRight(lineBeforeCursor, " \t")
	if trimmed != "" {
		last, _ := utf8.DecodeLastRuneInString(trimmed)
		if strings.ContainsRune(triggerEndings, last) {
			return true
		}
	}

	// Assignment anywhere on a non-comment line.
	if strings.Contains(stripped, "=") && !strings.HasPrefix(stripped, "#") {
		return true
	}

	// Inside an open call.
	if strings.Contains(stripped, "(") && !strings.HasSuffix(stripped, ")") {
		return true
	}

	if len(stripped) >= minPrefixLength {
		last, _ := utf8.DecodeLastRuneInString(stripped)
		if unicode.IsLetter(last) || unicode.IsDigit(last) {
			return true
		}
		if strings.HasSuffix(lineBeforeCursor, " ") {
			return true
		}
	}
	return false
}
