package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyChange(t *testing.T) {
	tests := []struct {
		name    string
		content string
		offset  int
		length  int
		newText string
		want    string
	}{
		{
			name:    "ascii replace",
			content: "hello world",
			offset:  6,
			length:  5,
			newText: "there",
			want:    "hello there",
		},
		{
			name:    "ascii insert at end",
			content: "hello",
			offset:  5,
			length:  0,
			newText: " world",
			want:    "hello world",
		},
		{
			name:    "ascii offset beyond length pads with spaces",
			content: "ab",
			offset:  5,
			length:  0,
			newText: "x",
			want:    "ab   x",
		},
		{
			name:    "escaped newline in new text is unescaped",
			content: "a",
			offset:  1,
			length:  0,
			newText: `b\nc`,
			want:    "ab\nc",
		},
		{
			name:    "length clamped to remaining runes",
			content: "abc",
			offset:  1,
			length:  100,
			newText: "X",
			want:    "aX",
		},
		{
			name:    "multi-byte content, offset within rune length edits mid-string",
			content: "héllo", // 5 runes, 6 bytes ('é' is 2 bytes)
			offset:  2,
			length:  0,
			newText: "!",
			want:    "hé!llo",
		},
		{
			// offset(6) sits between the rune length (5) and the byte length
			// (6): the pad check must compare against byte length, so this
			// must NOT pad, matching the original this ports.
			name:    "multi-byte content, offset equal to byte length does not pad",
			content: "héllo", // 5 runes, 6 bytes
			offset:  6,
			length:  0,
			newText: "!",
			want:    "héllo!",
		},
		{
			name:    "multi-byte content, offset beyond byte length pads",
			content: "héllo", // 5 runes, 6 bytes
			offset:  8,
			length:  0,
			newText: "!",
			want:    "héllo  !",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyChange(tt.content, tt.offset, tt.length, tt.newText)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyChange_NegativeLengthClampedToZero(t *testing.T) {
	got := ApplyChange("abc", 1, -5, "X")
	assert.Equal(t, "aXbc", got)
}

func TestComputeViewport(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		center int
		radius int
		want   Viewport
	}{
		{name: "centered with room on both sides", total: 100, center: 50, radius: 10, want: Viewport{Start: 40, End: 60}},
		{name: "clamped at start", total: 100, center: 2, radius: 10, want: Viewport{Start: 1, End: 12}},
		{name: "clamped at end", total: 100, center: 98, radius: 10, want: Viewport{Start: 88, End: 100}},
		{name: "zero radius is just the center line", total: 100, center: 50, radius: 0, want: Viewport{Start: 50, End: 50}},
		{name: "empty file has no viewport", total: 0, center: 1, radius: 10, want: Viewport{Start: 1, End: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeViewport(tt.total, tt.center, tt.radius)
			assert.Equal(t, tt.want, got)
			if tt.total == 0 {
				assert.True(t, got.Empty())
			}
		})
	}
}

func TestNormalizeTerminalOutput_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text\nsecond line\n",
		"progress: 10%\rprogress: 50%\rprogress: 100%\n",
		"\x1b[31mred text\x1b[0m normal\n",
		"\x1b]0;window title\x07prompt$ ",
		"back\x08\x08ack space\n",
	}

	for _, in := range inputs {
		once := NormalizeTerminalOutput(in)
		twice := NormalizeTerminalOutput(once)
		assert.Equal(t, once, twice, "normalizing already-normalized output must be a no-op: %q", in)
	}
}

func TestNormalizeTerminalOutput_StripsAnsiAndResolvesCarriageReturns(t *testing.T) {
	got := NormalizeTerminalOutput("progress: 10%\rprogress: 100%\n\x1b[31mdone\x1b[0m")
	assert.NotContains(t, got, "\x1b")
	assert.NotContains(t, got, "10%")
	assert.Contains(t, got, "100%")
	assert.Contains(t, got, "done")
}

func TestLineNumberedOutput(t *testing.T) {
	content := "line1\nline2\nline3"

	full := LineNumberedOutput(content, nil, nil)
	assert.Equal(t, 3, strings.Count(full, "\n")+1)
	assert.Contains(t, full, "     1\tline1")
	assert.Contains(t, full, "     3\tline3")

	start, end := 2, 2
	partial := LineNumberedOutput(content, &start, &end)
	assert.Equal(t, "     2\tline2", partial)

	assert.Equal(t, "", LineNumberedOutput("", nil, nil))
}

func TestEscapeSingleQuotesForSed(t *testing.T) {
	assert.Equal(t, `it'"'"'s`, EscapeSingleQuotesForSed("it's"))
	assert.Equal(t, `a\\b`, EscapeSingleQuotesForSed(`a\b`))
}
