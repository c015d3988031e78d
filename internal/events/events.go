// Package events defines the IDE interaction events the conversation state
// manager consumes, and the CSV row shape they are decoded from.
package events

// Type identifies the kind of IDE interaction a Row describes. These are the
// literal values found in a session CSV's Type column.
type Type string

const (
	Tab               Type = "tab"
	Content           Type = "content"
	SelectionCommand  Type = "selection_command"
	SelectionMouse    Type = "selection_mouse"
	SelectionKeyboard Type = "selection_keyboard"
	TerminalCommand   Type = "terminal_command"
	TerminalOutput    Type = "terminal_output"
	TerminalFocus     Type = "terminal_focus"
	GitBranchCheckout Type = "git_branch_checkout"
)

// IsSelection reports whether t is one of the three selection event
// variants, all three of which are handled identically (spec §3).
func (t Type) IsSelection() bool {
	return t == SelectionCommand || t == SelectionMouse || t == SelectionKeyboard
}

// Row is a single decoded line from a session CSV, in the column order the
// ingest recording tool emits: Sequence, Time, File, RangeOffset,
// RangeLength, Text, Language, Type. Sequence/Time/Language are carried for
// attribution and debugging but ignored by the state machine.
type Row struct {
	Sequence    *int64
	Time        string
	File        string
	RangeOffset *int64
	RangeLength *int64
	Text        *string
	Language    string
	Type        Type
}

// TextOr returns Text if present, else fallback.
func (r Row) TextOr(fallback string) string {
	if r.Text == nil {
		return fallback
	}
	return *r.Text
}
