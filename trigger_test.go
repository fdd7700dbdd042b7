// ghosttype/trigger_test.go
package ghosttype

import "testing"

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"Empty line", "", false},
		{"Whitespace only", "    \t", false},
		{"Keyword def", "def fibonacci", true},
		{"Keyword class", "class Animal", true},
		{"Indented keyword", "    for item", true},
		{"Bare keyword with trailing space", "if ", true},
		{"Indented bare keyword with trailing space", "    while ", true},
		{"Keyword return", "    return ", true},
		{"Keyword print", "print(", true},
		{"Keyword self", "self.name", true},
		{"Trailing open paren", "result = compute(", true},
		{"Trailing dot", "os.path.", true},
		{"Trailing comma", "foo(a,", true},
		{"Trailing colon", "if x > 0:", true},
		{"Trailing operator", "total = a +", true},
		{"Trailing equals", "x =", true},
		{"Trailing equals with space", "x = ", true},
		{"Assignment mid line", `x = "foo"`, true},
		{"Comment with assignment", `# x = "foo"`, false},
		{"Open call mid line", "foo(bar", true},
		{"Closed call", "fo()", false},
		{"Short identifier below min", "x", false},
		{"Identifier at min length", "ab", true},
		{"Identifier ending in digit", "value2", true},
		{"Long word ending in letter", "calculate", true},
		{"Unicode identifier", "café", true},
		{"Only punctuation short", "##", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldTrigger(tt.line, defaultMinPrefixLength); got != tt.want {
				t.Errorf("ShouldTrigger(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestShouldTriggerMinPrefixLength(t *testing.T) {
	// A plain identifier must reach the configured length.
	if ShouldTrigger("abc", 4) {
		t.Error("ShouldTrigger(abc, 4) = true, want false")
	}
	if !ShouldTrigger("abcd", 4) {
		t.Error("ShouldTrigger(abcd, 4) = false, want true")
	}
	// Keywords and endings ignore the length requirement.
	if !ShouldTrigger("if ", 10) {
		t.Error("keyword prefix should trigger regardless of min length")
	}
	if !ShouldTrigger("x.", 10) {
		t.Error("trailing ending should trigger regardless of min length")
	}
}
