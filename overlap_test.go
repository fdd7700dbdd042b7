// ghosttype/overlap_test.go
package ghosttype

import (
	"strings"
	"testing"
)

func TestRemoveOverlap(t *testing.T) {
	tests := []struct {
		name       string
		suggestion string
		prefix     string
		suffix     string
		want       string
	}{
		{
			name:       "No overlap",
			suggestion: "x = 1",
			suffix:     "z = 3",
			want:       "x = 1",
		},
		{
			name:       "Empty suffix",
			suggestion: "x = 1",
			suffix:     "",
			want:       "x = 1",
		},
		{
			name:       "Empty suggestion",
			suggestion: "",
			suffix:     "z = 3",
			want:       "",
		},
		{
			name:       "Tail duplicates suffix head",
			suggestion: "x = 1\ny = 2",
			suffix:     "y = 2\nz = 3",
			want:       "x = 1\n",
		},
		{
			name:       "Suffix leading whitespace ignored",
			suggestion: "x = 1\ny = 2",
			suffix:     "\n  \ny = 2",
			want:       "x = 1\n",
		},
		{
			name:       "Full duplicate left intact",
			suggestion: "return x",
			suffix:     "return x\nprint(x)",
			want:       "return x",
		},
		{
			name:       "Line level fallback on whitespace mismatch",
			suggestion: "foo()\nexisting()  ",
			suffix:     "existing()\nmore()",
			want:       "foo()",
		},
		{
			name:       "Repeated tail trims to fixed point",
			suggestion: "xabab",
			suffix:     "abq",
			want:       "x",
		},
		{
			name:       "Leading lines echo prefix tail",
			suggestion: "def add(a, b):\n    return a + b",
			prefix:     "import math\ndef add(a, b):\n    ",
			want:       "    return a + b",
		},
		{
			name:       "Multi line prefix echo",
			suggestion: "def add(a, b):\n    x = a\n    return x + b",
			prefix:     "def add(a, b):\n    x = a\n    ",
			want:       "    return x + b",
		},
		{
			name:       "Prefix echo of entire suggestion left intact",
			suggestion: "def add(a, b):\n    return a + b",
			prefix:     "def add(a, b):\n    return a + b\n",
			want:       "def add(a, b):\n    return a + b",
		},
		{
			name:       "In-progress cursor line not matched",
			suggestion: "return a + b\nprint(a)",
			prefix:     "def add(a, b):\nreturn a + b",
			want:       "return a + b\nprint(a)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RemoveOverlap(tt.suggestion, tt.prefix, tt.suffix)
			if got != tt.want {
				t.Errorf("RemoveOverlap(%q, %q, %q) = %q, want %q",
					tt.suggestion, tt.prefix, tt.suffix, got, tt.want)
			}
			if again := RemoveOverlap(got, tt.prefix, tt.suffix); again != got {
				t.Errorf("RemoveOverlap not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestRemoveOverlapWindowCap(t *testing.T) {
	// Overlap beyond the inspection window is not considered.
	far := strings.Repeat("a", suffixOverlapWindow) + "needle()"
	got := RemoveOverlap("needle()", "", far)
	if got != "needle()" {
		t.Errorf("overlap beyond window should be ignored, got %q", got)
	}
}

func TestTrimBoundaryOverlap(t *testing.T) {
	tests := []struct {
		name       string
		suggestion string
		before     string
		after      string
		want       string
	}{
		{
			name:       "No boundaries",
			suggestion: "fixed_code",
			before:     "",
			after:      "",
			want:       "fixed_code",
		},
		{
			name:       "Both boundaries re-emitted",
			suggestion: "before_code fixed_code after_code",
			before:     "before_code ",
			after:      " after_code",
			want:       "fixed_code",
		},
		{
			name:       "Partial after overlap",
			suggestion: "fixed)\nprint(x",
			before:     "",
			after:      "print(x)\nrest()",
			want:       "fixed)",
		},
		{
			name:       "Trim to empty restores original",
			suggestion: "  abc  ",
			before:     "  abc  ",
			after:      "",
			want:       "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimBoundaryOverlap(tt.suggestion, tt.before, tt.after)
			if got != tt.want {
				t.Errorf("TrimBoundaryOverlap(%q, %q, %q) = %q, want %q",
					tt.suggestion, tt.before, tt.after, got, tt.want)
			}
		})
	}
}
