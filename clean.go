// clean.go
// Post-processing of raw completion API responses: markdown and prose
// stripping, duplicate definition removal, and call-vs-definition collapse.
package ghosttype

import (
	"strings"
)

// codeLinePrefixes mark lines treated as code when stripping prose.
var codeLinePrefixes = []string{
	"def ", "class ", "if ", "for ", "while ", "return ", "import ",
	"from ", "try", "with ", "elif ", "else:", "except", "finally:",
	"async ", "self.", "print(", "raise ", "yield ", "pass",
}

// prosePhrases mark lines treated as explanatory text.
var prosePhrases = []string{
	"here", "this is", "the code", "complete", "output:", "result:",
	"answer:", "following",
}

// trailingProsePrefixes mark trailing lines dropped as explanations.
var trailingProsePrefixes = []string{"this ", "note:", "explanation:", "the above"}

// CleanCompletion normalizes a raw model response for the given mode.
// Only completion mode is cleaned; other modes pass through untouched.
// The function never panics regardless of input and may return "".
func CleanCompletion(raw string, mode Mode) string {
	if mode != ModeCompletion {
		return raw
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	text = stripMarkdownFences(text)
	text = stripLeadingProse(text)
	text = stripTrailingProse(text)
	text = splitInlineDefs(text)
	text = dedupeDefinitions(text)
	text = collapseCallVsDefinition(text)
	return strings.TrimRight(text, " \t\n")
}

// stripMarkdownFences keeps fenced code block contents; outside fences only
// code-looking lines survive.
func stripMarkdownFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	var codeLines []string
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "```") {
			inBlock = !inBlock
			continue
		}
		if inBlock {
			codeLines = append(codeLines, line)
			continue
		}
		if stripped == "" {
			continue
		}
		if looksLikeCode(line) {
			codeLines = append(codeLines, line)
		}
	}
	if len(codeLines) == 0 {
		return text
	}
	return strings.Join(codeLines, "\n")
}

// looksLikeCode reports whether a line plausibly belongs to the completion
// rather than to surrounding explanation.
func looksLikeCode(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return false
	}
	if strings.ContainsRune("()[]{}#'\":.,=", rune(stripped[0])) {
		return true
	}
	if strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t") {
		return true
	}
	for _, p := range codeLinePrefixes {
		if strings.HasPrefix(stripped, p) {
			return true
		}
	}
	// Assignment statements.
	if isIdentStart(stripped[0]) && strings.Contains(stripped, "=") {
		return true
	}
	// Call expressions.
	if isIdentStart(stripped[0]) && strings.Contains(stripped, "(") {
		return true
	}
	return false
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// stripLeadingProse drops explanation lines preceding the first code line.
func stripLeadingProse(text string) string {
	lines := strings.Split(text, "\n")
	start := 0
	for start < len(lines) {
		stripped := strings.TrimSpace(lines[start])
		if stripped == "" {
			start++
			continue
		}
		if looksLikeCode(lines[start]) {
			break
		}
		lower := strings.ToLower(stripped)
		isProse := false
		for _, phrase := range prosePhrases {
			if strings.Contains(lower, phrase) {
				isProse = true
				break
			}
		}
		if !isProse {
			break
		}
		start++
	}
	return strings.Join(lines[start:], "\n")
}

// stripTrailingProse drops blank and explanation lines from the end.
func stripTrailingProse(text string) string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 {
		last := strings.ToLower(strings.TrimSpace(lines[len(lines)-1]))
		if last == "" {
			lines = lines[:len(lines)-1]
			continue
		}
		dropped := false
		for _, p := range trailingProsePrefixes {
			if strings.HasPrefix(last, p) {
				lines = lines[:len(lines)-1]
				dropped = true
				break
			}
		}
		if !dropped {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// splitInlineDefs truncates lines where a definition starts mid-line, e.g.
// "return x)def fibonacci(n):" becomes "return x)".
func splitInlineDefs(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if idx := strings.Index(stripped, "def "); idx > 0 && !strings.HasPrefix(stripped, "def ") {
			cut := strings.Index(line, "def ")
			lines[i] = strings.TrimRight(line[:cut], " \t")
		}
	}
	return strings.Join(lines, "\n")
}

// dedupeDefinitions removes a repeated def/class of a name already defined
// earlier in the completion, including the repeated definition's body.
func dedupeDefinitions(text string) string {
	lines := strings.Split(text, "\n")
	seen := make(map[string]struct{})
	var kept []string
	skipBody := false
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		name := definitionName(stripped)
		if name != "" {
			if _, dup := seen[name]; dup {
				skipBody = true
				continue
			}
			seen[name] = struct{}{}
			skipBody = false
		} else if skipBody {
			// Body lines of a skipped definition are indented or blank.
			if stripped == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
				continue
			}
			skipBody = false
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// definitionName returns the defined identifier for a def/class line, or "".
func definitionName(stripped string) string {
	if m := defRe.FindStringSubmatch(stripped); m != nil && strings.HasPrefix(stripped, "def ") {
		return m[1]
	}
	if m := classRe.FindStringSubmatch(stripped); m != nil && strings.HasPrefix(stripped, "class ") {
		return m[1]
	}
	return ""
}

// collapseCallVsDefinition resolves completions that mix a partial call with
// full definitions. A completion opening with a definition keeps only that
// first definition; a completion opening with a call followed by definitions
// keeps only the call; a bare "name(...):" head trailed by a body or a
// definition loses the colon and everything after it.
func collapseCallVsDefinition(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	first := strings.TrimSpace(lines[0])

	if strings.HasPrefix(first, "def ") || strings.HasPrefix(first, "class ") {
		// Keep the first definition only, up to the next top-level def/class.
		kept := []string{lines[0]}
		for _, line := range lines[1:] {
			if name := definitionName(strings.TrimSpace(line)); name != "" &&
				!strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
				break
			}
			kept = append(kept, line)
		}
		return strings.Join(kept, "\n")
	}

	firstDefIdx := -1
	for i, line := range lines {
		if definitionName(strings.TrimSpace(line)) != "" {
			firstDefIdx = i
			break
		}
	}

	// Partial "name(...):" head followed by a body or a definition is a
	// disguised redefinition; keep only the call form.
	if strings.HasSuffix(first, "):") && strings.Contains(first, "(") {
		second := ""
		if len(lines) > 1 {
			second = lines[1]
		}
		bodyFollows := strings.HasPrefix(second, "    ") || strings.HasPrefix(second, "\t")
		if firstDefIdx > 0 || bodyFollows {
			return strings.TrimSuffix(lines[0], ":")
		}
	}

	// Call-looking first line with definitions after it: keep the call.
	if firstDefIdx > 0 && (strings.HasSuffix(first, ")") || strings.Contains(first, "(")) {
		return strings.TrimRight(strings.Join(lines[:firstDefIdx], "\n"), " \t\n")
	}
	return text
}
