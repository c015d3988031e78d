package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffLines_Identical(t *testing.T) {
	stats := DiffLines("a\nb\nc\n", "a\nb\nc\n")
	assert.Equal(t, Stats{Unchanged: 3}, stats)
}

func TestDiffLines_AllNew(t *testing.T) {
	stats := DiffLines("", "a\nb\n")
	assert.Equal(t, Stats{Added: 2}, stats)
}

func TestDiffLines_AllRemoved(t *testing.T) {
	stats := DiffLines("a\nb\n", "")
	assert.Equal(t, Stats{Removed: 2}, stats)
}

func TestDiffLines_MixedEdit(t *testing.T) {
	before := "line1\nline2\nline3\n"
	after := "line1\nchanged\nline3\nline4\n"

	stats := DiffLines(before, after)
	assert.Equal(t, 2, stats.Added, "changed and line4 are new")
	assert.Equal(t, 1, stats.Removed, "line2 was replaced")
	assert.Equal(t, 2, stats.Unchanged, "line1 and line3 survive")
}

func TestDiffLines_NoTrailingNewlineCountsLastLine(t *testing.T) {
	stats := DiffLines("", "no newline at end")
	assert.Equal(t, Stats{Added: 1}, stats)
}

func TestStats_Add(t *testing.T) {
	s := Stats{Added: 1, Removed: 2, Unchanged: 3}
	s.Add(Stats{Added: 4, Removed: 5, Unchanged: 6})
	assert.Equal(t, Stats{Added: 5, Removed: 7, Unchanged: 9}, s)
}

func TestSession_AggregatesAcrossFiles(t *testing.T) {
	first := map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	}
	last := map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
		"b.go": "package b\n",
	}

	total := Session(first, last)
	assert.Equal(t, 2, total.Added)
	assert.Equal(t, 2, total.Unchanged)
	assert.Equal(t, 0, total.Removed)
}

func TestSession_EmptyInputsProduceZeroStats(t *testing.T) {
	assert.Equal(t, Stats{}, Session(nil, nil))
}
