// prompt.go
// Contains helper functions for constructing the chat-completion prompts
// sent to the API for each request mode.
package ghosttype

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ============================================================================
// Prompt Construction
// ============================================================================

const completionSystemPrompt = `You are an expert code completion assistant.

Your mission: suggest code completions that help programmers write code faster.

CRITICAL RULES:
1. Output ONLY the code that should come AFTER the cursor - nothing before the cursor
2. NEVER repeat code that already exists in the context
3. NEVER output complete function/class definitions if they already exist
4. If the user typed a partial identifier, only complete the remaining part
5. If a function is already defined above, DO NOT redefine it - just complete the call

STRICT OUTPUT RULES:
1. Output ONLY the code completion - no explanations, no markdown, no code blocks
2. The completion should seamlessly continue from where the cursor is
3. Match the existing code style, indentation, and naming conventions exactly
4. Never duplicate existing code - only complete what is missing

COMPLETION STRATEGIES:
1. Partial identifiers matching a name defined in context: complete as a CALL
   with plausible arguments, never as a new definition.
2. New definitions (def/class typed by the user): complete the full
   definition including parameters and body.
3. Control flow: complete if/for/while blocks with sensible logic.
4. Expressions: complete comparisons, assignments, and method calls.`

const fixSystemPrompt = `You are a code repair assistant. The user selected a region of code that
may contain a bug or need improvement. Output ONLY the replacement code for
the selected region - no explanations, no markdown fences. Preserve the
surrounding style and indentation. Do not repeat code outside the selection.`

const analysisSystemPrompt = `You are a careful code review assistant. Analyze the provided code and
report: what it does, potential bugs, quality issues, and concrete
improvement suggestions. Be concise and specific.`

const chatSystemPrompt = `You are a friendly, knowledgeable assistant embedded in a code editor. You
answer programming and general questions clearly and concisely. If you are
unsure, say so.`

// internalPromptLimit bounds intermediate user-prompt construction; the
// per-section context window was already capped during extraction.
const internalPromptLimit = 8192

var identifierTailRe = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)$`)
var defRe = regexp.MustCompile(`def\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
var classRe = regexp.MustCompile(`class\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
var assignRe = regexp.MustCompile(`^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*=`)

// promptForMode returns the system and user prompts for a request.
func promptForMode(ctx CompletionContext, logger *slog.Logger) (system, user string) {
	if logger == nil {
		logger = slog.Default()
	}
	switch ctx.Mode {
	case ModeFix:
		return fixSystemPrompt, buildFixPrompt(ctx)
	case ModeAnalysis:
		return analysisSystemPrompt, buildAnalysisPrompt(ctx)
	case ModeChat:
		return chatSystemPrompt, ctx.SelectionText
	default:
		return completionSystemPrompt, buildCompletionPrompt(ctx, logger)
	}
}

// buildCompletionPrompt assembles the user prompt for completion mode:
// context window, current line, indentation, names defined in context, and a
// note when the line tail is a partial match for a defined name.
func buildCompletionPrompt(ctx CompletionContext, logger *slog.Logger) string {
	var prompt strings.Builder
	currentLen := 0
	limitReached := false

	add := func(s string) bool {
		if limitReached {
			return false
		}
		if currentLen+len(s) < internalPromptLimit {
			prompt.WriteString(s)
			currentLen += len(s)
			return true
		}
		limitReached = true
		logger.Debug("Prompt construction limit reached", "limit", internalPromptLimit, "current_len", currentLen)
		return false
	}

	lines := strings.Split(ctx.PrefixText, "\n")
	currentLine := lines[len(lines)-1]
	currentStripped := strings.TrimSpace(currentLine)

	defined := definedNames(lines)
	partialFrom, partialTo := partialIdentifierMatch(currentStripped, defined)

	add(fmt.Sprintf("Complete this %s code. Output ONLY the code that should come AFTER the cursor position (marked with |).\n\n", languageOrDefault(ctx.Language)))
	add("Context before the cursor:\n")
	add("```\n")
	add(ctx.PrefixText)
	add("|\n```\n\n")
	if ctx.SuffixText != "" {
		add("Code after the cursor (do not repeat it):\n")
		add("```\n")
		add(ctx.SuffixText)
		add("\n```\n\n")
	}
	add(fmt.Sprintf("Current line (cursor at end): `%s`\n", currentStripped))
	add(fmt.Sprintf("Current indentation: %d characters\n", len(ctx.Indent)))
	if len(defined) > 0 {
		add(fmt.Sprintf("Names defined in context: %s\n", strings.Join(defined, ", ")))
	}
	if partialFrom != "" {
		add(fmt.Sprintf("\nIMPORTANT: the user typed %q which is a prefix of %q defined above. Only complete the remaining part as a call; never output the definition again.\n", partialFrom, partialTo))
	}
	add("\nOnly output what comes after the cursor, never repeat what is before it. Output exactly one completion.")
	return prompt.String()
}

func buildFixPrompt(ctx CompletionContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the selected %s code to fix bugs or improve it.\n\n", languageOrDefault(ctx.Language))
	if ctx.BoundaryBefore != "" {
		fmt.Fprintf(&b, "Text immediately before the selection (do not repeat): `%s`\n", ctx.BoundaryBefore)
	}
	if ctx.BoundaryAfter != "" {
		fmt.Fprintf(&b, "Text immediately after the selection (do not repeat): `%s`\n", ctx.BoundaryAfter)
	}
	b.WriteString("\nSelected code:\n```\n")
	b.WriteString(ctx.SelectionText)
	b.WriteString("\n```\n\nOutput only the replacement for the selection.")
	return b.String()
}

func buildAnalysisPrompt(ctx CompletionContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following %s code", languageOrDefault(ctx.Language))
	if ctx.FileName != "" {
		fmt.Fprintf(&b, " from %s", ctx.FileName)
	}
	b.WriteString(":\n\n```\n")
	if ctx.SelectionText != "" {
		b.WriteString(ctx.SelectionText)
	} else {
		b.WriteString(ctx.PrefixText)
		b.WriteString(ctx.SuffixText)
	}
	b.WriteString("\n```\n\nReport: purpose, potential bugs, quality issues, and improvements.")
	return b.String()
}

func languageOrDefault(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return "python"
	}
	return lang
}

// definedNames scans context lines for function, class, and variable names,
// keeping the most recent twenty distinct names in order of appearance.
func definedNames(lines []string) []string {
	seen := make(map[string]struct{})
	var names []string
	appendName := func(n string) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	for _, line := range lines {
		if m := defRe.FindStringSubmatch(line); m != nil {
			appendName(m[1])
		}
		if m := classRe.FindStringSubmatch(line); m != nil {
			appendName(m[1])
		}
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			if m := assignRe.FindStringSubmatch(line); m != nil {
				appendName(m[1])
			}
		}
	}
	if len(names) > 20 {
		names = names[len(names)-20:]
	}
	return names
}

// partialIdentifierMatch reports the identifier tail of the current line and
// the first defined name it strictly prefixes, or empty strings.
func partialIdentifierMatch(currentStripped string, defined []string) (from, to string) {
	m := identifierTailRe.FindStringSubmatch(currentStripped)
	if m == nil {
		return "", ""
	}
	tail := m[1]
	for _, name := range defined {
		if name != tail && strings.HasPrefix(name, tail) {
			return tail, name
		}
	}
	return "", ""
}
