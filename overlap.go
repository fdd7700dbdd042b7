// overlap.go
// Trimming of completion text that duplicates code already present in the
// buffer, either after the cursor or around a replaced selection.
package ghosttype

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

var dmp = diffmatchpatch.New()

// RemoveOverlap trims completion text that duplicates code already in the
// buffer: leading suggestion lines that exactly reproduce the last complete
// lines of prefix, and a suggestion tail that duplicates the head of suffix.
// Only the first suffixOverlapWindow characters of the left-trimmed suffix
// are considered. When character-level tail trimming would leave nothing,
// whole-line overlap is tried instead: suggestion lines from the first line
// equal to the suffix's first non-blank line onward are dropped. Passes run
// until the text stops changing, so applying the function to its own result
// is a no-op.
func RemoveOverlap(suggestion, prefix, suffix string) string {
	for {
		next := removeOverlapOnce(suggestion, prefix, suffix)
		if next == suggestion {
			return suggestion
		}
		suggestion = next
	}
}

func removeOverlapOnce(suggestion, prefix, suffix string) string {
	if suggestion == "" {
		return suggestion
	}
	suggestion = trimPrefixEcho(suggestion, prefix)
	if suffix == "" {
		return suggestion
	}
	suffixClean := strings.TrimLeft(suffix, " \t\n")
	if len(suffixClean) > suffixOverlapWindow {
		suffixClean = suffixClean[:suffixOverlapWindow]
	}
	if suffixClean == "" {
		return suggestion
	}

	// Largest k where the suggestion tail equals the suffix head.
	max := len(suggestion)
	if len(suffixClean) < max {
		max = len(suffixClean)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(suggestion, suffixClean[:k]) {
			trimmed := suggestion[:len(suggestion)-k]
			if strings.TrimSpace(trimmed) != "" {
				return trimmed
			}
			break
		}
	}

	// Line-level fallback: drop suggestion lines from the first line that
	// matches the suffix's first non-blank line.
	suffixLines := strings.Split(suffixClean, "\n")
	firstSuffixLine := strings.TrimSpace(suffixLines[0])
	if firstSuffixLine == "" {
		return suggestion
	}
	suggestionLines := strings.Split(suggestion, "\n")
	for i, line := range suggestionLines {
		if strings.TrimSpace(line) == firstSuffixLine {
			trimmed := strings.TrimRight(strings.Join(suggestionLines[:i], "\n"), " \t\n")
			if trimmed != "" {
				return trimmed
			}
			break
		}
	}
	return suggestion
}

// trimPrefixEcho drops leading suggestion lines that exactly reproduce the
// last complete lines of prefix. The text after the final newline of prefix
// is the in-progress cursor line and is not matched. A suggestion that would
// trim to nothing is left intact.
func trimPrefixEcho(suggestion, prefix string) string {
	if prefix == "" || !strings.Contains(prefix, "\n") || !strings.Contains(suggestion, "\n") {
		return suggestion
	}
	prefixLines := strings.Split(prefix, "\n")
	prefixLines = prefixLines[:len(prefixLines)-1]
	suggestionLines := strings.Split(suggestion, "\n")

	max := len(suggestionLines)
	if len(prefixLines) < max {
		max = len(prefixLines)
	}
	for n := max; n > 0; n-- {
		match := true
		for i := 0; i < n; i++ {
			if suggestionLines[i] != prefixLines[len(prefixLines)-n+i] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		trimmed := strings.TrimLeft(strings.Join(suggestionLines[n:], "\n"), "\n")
		if strings.TrimSpace(trimmed) == "" {
			return suggestion
		}
		return trimmed
	}
	return suggestion
}

// TrimBoundaryOverlap strips a leading copy of the text immediately before a
// replaced selection and a trailing overlap with the text immediately after
// it. A result that trims to nothing restores the original suggestion.
// Used in fix mode where the model sometimes re-emits the boundary context.
func TrimBoundaryOverlap(suggestion, before, after string) string {
	original := suggestion
	if suggestion == "" {
		return suggestion
	}

	if before != "" && dmp.DiffCommonPrefix(suggestion, before) == len(before) {
		suggestion = suggestion[len(before):]
	}
	if after != "" && suggestion != "" {
		if dmp.DiffCommonSuffix(suggestion, after) == len(after) {
			suggestion = suggestion[:len(suggestion)-len(after)]
		} else {
			// Partial overlap: largest k where the suggestion tail equals
			// the after-boundary head.
			max := len(suggestion)
			if len(after) < max {
				max = len(after)
			}
			for k := max; k > 0; k-- {
				if strings.HasSuffix(suggestion, after[:k]) {
					suggestion = suggestion[:len(suggestion)-k]
					break
				}
			}
		}
	}

	suggestion = strings.TrimSpace(suggestion)
	if suggestion == "" && strings.TrimSpace(original) != "" {
		return strings.TrimSpace(original)
	}
	return suggestion
}
