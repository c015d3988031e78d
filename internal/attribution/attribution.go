// Package attribution computes line-level added/removed/unchanged stats for
// files touched during a session, folded into metadata.json as ambient
// telemetry. It never feeds back into the conversation state manager.
package attribution

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Stats holds line counts for a single file's before/after snapshots.
type Stats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Add accumulates another Stats into s.
func (s *Stats) Add(other Stats) {
	s.Added += other.Added
	s.Removed += other.Removed
	s.Unchanged += other.Unchanged
}

// DiffLines compares two whole-file snapshots and returns line-level stats,
// using the same DiffLinesToChars/DiffMain/DiffCharsToLines pattern as a
// line-granularity diff.
func DiffLines(before, after string) Stats {
	if before == after {
		return Stats{Unchanged: countLines(after)}
	}
	if before == "" {
		return Stats{Added: countLines(after)}
	}
	if after == "" {
		return Stats{Removed: countLines(before)}
	}

	dmp := diffmatchpatch.New()
	text1, text2, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(text1, text2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var s Stats
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			s.Unchanged += n
		case diffmatchpatch.DiffInsert:
			s.Added += n
		case diffmatchpatch.DiffDelete:
			s.Removed += n
		}
	}
	return s
}

// countLines returns the number of lines in content. An empty string has 0
// lines; a string without a trailing newline still counts its last line.
func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

// Session computes aggregate Stats across every file touched in a session,
// given each file's first-captured and last-captured snapshot.
func Session(firstSnapshot, lastSnapshot map[string]string) Stats {
	var total Stats
	for filePath, first := range firstSnapshot {
		last := lastSnapshot[filePath]
		total.Add(DiffLines(first, last))
	}
	return total
}
