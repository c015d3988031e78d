// Package csm implements the conversation state manager: a single-threaded,
// event-driven state machine that turns a stream of IDE interaction events
// into alternating Assistant/User shell-transcript messages suitable for
// fine-tuning a command-prediction model.
package csm

import (
	"regexp"
	"strings"

	"github.com/transcriptforge/cli/internal/diffengine"
	"github.com/transcriptforge/cli/internal/textutil"
	"github.com/transcriptforge/cli/internal/tokenizer"
)

const (
	DefaultViewportRadius             = 10
	DefaultCoalesceRadius             = 5
	DefaultMaxTokensPerMessage        = 2048
	DefaultMaxTokensPerTerminalOutput = 256
)

// Message is a single alternating-role entry in a conversation transcript.
type Message struct {
	From  string // "Assistant" or "User"
	Value string
}

func assistantMessage(value string) Message { return Message{From: "Assistant", Value: value} }
func userMessage(value string) Message      { return Message{From: "User", Value: value} }

// Config tunes the manager's behavior. A zero Config is invalid; use
// DefaultConfig.
type Config struct {
	ViewportRadius             int
	CoalesceRadius             int
	MaxTokensPerMessage        int
	MaxTokensPerTerminalOutput int
	// MaxTokensPerConversation, when non-nil, finalizes the current chunk and
	// starts a new one whenever appending a message would exceed it.
	MaxTokensPerConversation *int
	MinConversationMessages  int
}

// DefaultConfig matches the manager's behavior with chunking disabled.
func DefaultConfig() Config {
	return Config{
		ViewportRadius:             DefaultViewportRadius,
		CoalesceRadius:             DefaultCoalesceRadius,
		MaxTokensPerMessage:        DefaultMaxTokensPerMessage,
		MaxTokensPerTerminalOutput: DefaultMaxTokensPerTerminalOutput,
		MinConversationMessages:    5,
	}
}

// FinalizedConversation is a completed chunk ready to be written out.
type FinalizedConversation struct {
	Messages   []Message
	TokenCount int
}

type editRegion struct {
	start, end int
}

// Manager owns all per-session state: the synthetic files it has
// reconstructed from edits, the terminal output awaiting a flush, and the
// conversation chunks accumulated so far. It is not safe for concurrent use;
// callers process one session's events per Manager (see spec §5).
type Manager struct {
	tok    tokenizer.Tokenizer
	config Config

	messages      []Message
	currentTokens int

	finalized []FinalizedConversation

	fileStates                map[string]string
	firstFileStates           map[string]string
	perFileViewport           map[string]*textutil.Viewport
	filesOpenedInConversation map[string]bool
	terminalOutputBuffer      []string
	pendingEditsBefore        map[string]*string
	pendingEditRegions        map[string]*editRegion
}

// New creates a Manager with the given tokenizer and config.
func New(tok tokenizer.Tokenizer, config Config) *Manager {
	return &Manager{
		tok:                       tok,
		config:                    config,
		fileStates:                make(map[string]string),
		firstFileStates:           make(map[string]string),
		perFileViewport:           make(map[string]*textutil.Viewport),
		filesOpenedInConversation: make(map[string]bool),
		pendingEditsBefore:        make(map[string]*string),
		pendingEditRegions:        make(map[string]*editRegion),
	}
}

// Reset clears all state, as if the Manager were newly constructed.
func (m *Manager) Reset() {
	m.messages = nil
	m.currentTokens = 0
	m.finalized = nil
	m.fileStates = make(map[string]string)
	m.firstFileStates = make(map[string]string)
	m.perFileViewport = make(map[string]*textutil.Viewport)
	m.filesOpenedInConversation = make(map[string]bool)
	m.terminalOutputBuffer = nil
	m.pendingEditsBefore = make(map[string]*string)
	m.pendingEditRegions = make(map[string]*editRegion)
}

func (m *Manager) finalizeCurrentConversation() {
	if len(m.messages) == 0 {
		return
	}

	isLongEnough := len(m.messages) >= m.config.MinConversationMessages
	hasUser, hasAssistant := false, false
	for _, msg := range m.messages {
		if msg.From == "User" {
			hasUser = true
		}
		if msg.From == "Assistant" {
			hasAssistant = true
		}
	}

	if isLongEnough && hasUser && hasAssistant {
		m.finalized = append(m.finalized, FinalizedConversation{
			Messages:   m.messages,
			TokenCount: m.currentTokens,
		})
	}

	m.messages = nil
	m.currentTokens = 0
	m.filesOpenedInConversation = make(map[string]bool)
}

// GetConversations flushes any pending edits and terminal output, finalizes
// the current conversation, and returns every chunk produced so far. It
// leaves the Manager ready to start a fresh conversation (state like file
// contents and viewports is untouched — only the message buffer resets).
func (m *Manager) GetConversations() []FinalizedConversation {
	m.FlushAllPendingEdits()
	m.FlushTerminalOutputBuffer()
	m.finalizeCurrentConversation()

	out := m.finalized
	m.finalized = nil
	return out
}

// Messages returns a copy of the messages accumulated in the conversation
// currently being built.
func (m *Manager) Messages() []Message {
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// FileContent returns the current reconstructed content of filePath, or the
// empty string if it has not been seen.
func (m *Manager) FileContent(filePath string) string {
	return m.fileStates[filePath]
}

// captureFirstSeen records content as filePath's earliest known snapshot, the
// first time filePath is observed. Later calls are no-ops.
func (m *Manager) captureFirstSeen(filePath, content string) {
	if _, ok := m.firstFileStates[filePath]; ok {
		return
	}
	m.firstFileStates[filePath] = content
}

// InitialFileStates returns a copy of each touched file's earliest captured
// snapshot, for session-level attribution stats.
func (m *Manager) InitialFileStates() map[string]string {
	out := make(map[string]string, len(m.firstFileStates))
	for k, v := range m.firstFileStates {
		out[k] = v
	}
	return out
}

// FinalFileStates returns a copy of each touched file's current reconstructed
// content, for session-level attribution stats.
func (m *Manager) FinalFileStates() map[string]string {
	out := make(map[string]string, len(m.fileStates))
	for k, v := range m.fileStates {
		out[k] = v
	}
	return out
}

func (m *Manager) appendMessage(msg Message) {
	tokens := m.tok.Count(msg.Value)
	if tokens > m.config.MaxTokensPerMessage {
		msg.Value = m.tok.Truncate(msg.Value, m.config.MaxTokensPerMessage)
		tokens = m.config.MaxTokensPerMessage
	}

	if maxTokens := m.config.MaxTokensPerConversation; maxTokens != nil {
		if m.currentTokens+tokens > *maxTokens && len(m.messages) > 0 {
			m.finalizeCurrentConversation()
		}
	}

	m.messages = append(m.messages, msg)
	m.currentTokens += tokens
}

func (m *Manager) maybeCaptureFileContents(filePath, content string) {
	if m.filesOpenedInConversation[filePath] {
		return
	}
	cmd := "cat -n " + filePath
	m.appendMessage(assistantMessage(textutil.FencedBlock("bash", textutil.CleanText(cmd))))
	output := textutil.LineNumberedOutput(content, nil, nil)
	m.appendMessage(userMessage("<stdout>\n" + output + "\n</stdout>"))
	m.filesOpenedInConversation[filePath] = true
}

// FlushTerminalOutputBuffer aggregates, normalizes, and emits any buffered
// terminal output as a single User message. A no-op if nothing is buffered.
func (m *Manager) FlushTerminalOutputBuffer() {
	if len(m.terminalOutputBuffer) == 0 {
		return
	}
	aggregated := strings.Join(m.terminalOutputBuffer, "")
	out := textutil.NormalizeTerminalOutput(aggregated)
	cleaned := textutil.CleanText(out)

	tokens := m.tok.Count(cleaned)
	if tokens > m.config.MaxTokensPerTerminalOutput {
		truncated := m.tok.Truncate(cleaned, m.config.MaxTokensPerTerminalOutput)
		cleaned = truncated + "\n... [truncated]"
	}

	if strings.TrimSpace(cleaned) != "" {
		m.appendMessage(userMessage("<stdout>\n" + cleaned + "\n</stdout>"))
	}
	m.terminalOutputBuffer = nil
}

// FlushPendingEditForFile emits the accumulated edit to targetFile (if any)
// as a sed command plus its resulting viewport, and clears the pending edit
// state for that file.
func (m *Manager) FlushPendingEditForFile(targetFile string) {
	beforePtr, ok := m.pendingEditsBefore[targetFile]
	if !ok || beforePtr == nil {
		return
	}
	beforeSnapshot := *beforePtr
	afterState := m.fileStates[targetFile]

	if strings.TrimRight(beforeSnapshot, "\n") == strings.TrimRight(afterState, "\n") {
		m.pendingEditsBefore[targetFile] = nil
		m.pendingEditRegions[targetFile] = nil
		return
	}

	changed, err := diffengine.ComputeChangedBlockLines(beforeSnapshot, afterState)
	if err != nil {
		// before/after differ only by trailing newlines handled above; any
		// other "no changes" result here would indicate a logic bug upstream.
		m.pendingEditsBefore[targetFile] = nil
		m.pendingEditRegions[targetFile] = nil
		return
	}

	beforeTotalLines := strings.Count(beforeSnapshot, "\n") + 1
	var sedCmd string

	switch {
	case changed.EndBefore < changed.StartBefore:
		// Pure insertion.
		sedPayload := escapedLines(changed.ReplacementLines)
		if changed.StartBefore <= max(beforeTotalLines, 1) {
			sedCmd = "sed -i '" + itoa(changed.StartBefore) + "i\\\n" + sedPayload + "' " + targetFile
		} else {
			sedCmd = "sed -i '$a\\\n" + sedPayload + "' " + targetFile
		}
	case len(changed.ReplacementLines) == 0:
		// Pure deletion.
		sedCmd = "sed -i '" + itoa(changed.StartBefore) + "," + itoa(changed.EndBefore) + "d' " + targetFile
	default:
		// Replacement.
		sedPayload := escapedLines(changed.ReplacementLines)
		sedCmd = "sed -i '" + itoa(changed.StartBefore) + "," + itoa(changed.EndBefore) + "c\\\n" + sedPayload + "' " + targetFile
	}

	totalLines := strings.Count(afterState, "\n") + 1
	center := (changed.StartAfter + changed.EndAfter) / 2
	vp := textutil.ComputeViewport(totalLines, center, m.config.ViewportRadius)
	m.perFileViewport[targetFile] = &vp

	m.maybeCaptureFileContents(targetFile, beforeSnapshot)

	chainedCmd := sedCmd + " && cat -n " + targetFile + " | sed -n '" + itoa(vp.Start) + "," + itoa(vp.End) + "p'"
	m.appendMessage(assistantMessage(textutil.FencedBlock("bash", textutil.CleanText(chainedCmd))))

	viewportOutput := textutil.LineNumberedOutput(afterState, &vp.Start, &vp.End)
	m.appendMessage(userMessage("<stdout>\n" + viewportOutput + "\n</stdout>"))

	m.pendingEditsBefore[targetFile] = nil
	m.pendingEditRegions[targetFile] = nil
}

// FlushAllPendingEdits flushes every file with an outstanding edit.
func (m *Manager) FlushAllPendingEdits() {
	files := make([]string, 0, len(m.pendingEditsBefore))
	for f := range m.pendingEditsBefore {
		files = append(files, f)
	}
	for _, f := range files {
		m.FlushPendingEditForFile(f)
	}
}

// HandleTabEvent records a tab (file focus) switch. When textContent is
// non-nil it is treated as a fresh snapshot of the file (e.g. on first open);
// otherwise the file's last known viewport is re-displayed.
func (m *Manager) HandleTabEvent(filePath string, textContent *string) {
	m.FlushAllPendingEdits()
	m.FlushTerminalOutputBuffer()

	if textContent != nil {
		content := textutil.UnescapeNewlines(*textContent)
		m.captureFirstSeen(filePath, content)
		m.fileStates[filePath] = content

		cmd := "cat -n " + filePath
		m.appendMessage(assistantMessage(textutil.FencedBlock("bash", textutil.CleanText(cmd))))
		output := textutil.LineNumberedOutput(content, nil, nil)
		m.appendMessage(userMessage("<stdout>\n" + output + "\n</stdout>"))
		m.filesOpenedInConversation[filePath] = true
		return
	}

	content := m.fileStates[filePath]
	totalLines := strings.Count(content, "\n") + 1
	vp, ok := m.perFileViewport[filePath]
	if !ok || vp == nil || vp.End <= 0 {
		newVP := textutil.ComputeViewport(totalLines, 1, m.config.ViewportRadius)
		m.perFileViewport[filePath] = &newVP
		vp = &newVP
	}

	if vp.End >= vp.Start {
		m.maybeCaptureFileContents(filePath, content)
		cmd := "cat -n " + filePath + " | sed -n '" + itoa(vp.Start) + "," + itoa(vp.End) + "p'"
		m.appendMessage(assistantMessage(textutil.FencedBlock("bash", textutil.CleanText(cmd))))
		viewportOutput := textutil.LineNumberedOutput(content, &vp.Start, &vp.End)
		m.appendMessage(userMessage("<stdout>\n" + viewportOutput + "\n</stdout>"))
	}
}

// HandleContentEvent records a character-range edit to filePath: newText
// replaces the length codepoints starting at offset. Edits are coalesced:
// nearby edits extend the pending region instead of flushing immediately
// (see spec §4.A on coalesce radius).
func (m *Manager) HandleContentEvent(filePath string, offset, length int, newText string) {
	m.FlushTerminalOutputBuffer()

	before := m.fileStates[filePath]
	m.captureFirstSeen(filePath, before)

	safeOffset := textutil.FloorCharBoundary(before, min(offset, len(before)))
	safeEnd := textutil.FloorCharBoundary(before, min(offset+length, len(before)))
	startLineCurrent := strings.Count(before[:safeOffset], "\n") + 1
	deletedContent := before[safeOffset:safeEnd]
	linesAdded := strings.Count(newText, "\n")
	linesDeleted := strings.Count(deletedContent, "\n")
	regionStart := startLineCurrent
	regionEnd := startLineCurrent + max(linesAdded, linesDeleted)

	if region, ok := m.pendingEditRegions[filePath]; ok && region != nil {
		lo := region.start - m.config.CoalesceRadius
		if lo < 0 {
			lo = 0
		}
		if regionStart < lo || regionStart > region.end+m.config.CoalesceRadius {
			m.FlushPendingEditForFile(filePath)
		}
	}

	after := textutil.ApplyChange(before, offset, length, newText)

	if ptr, ok := m.pendingEditsBefore[filePath]; !ok || ptr == nil {
		beforeCopy := before
		m.pendingEditsBefore[filePath] = &beforeCopy
	}

	region := m.pendingEditRegions[filePath]
	var newRegion editRegion
	if region != nil {
		newRegion = editRegion{start: min(region.start, regionStart), end: max(region.end, regionEnd)}
	} else {
		newRegion = editRegion{start: regionStart, end: max(regionStart, regionEnd)}
	}
	m.pendingEditRegions[filePath] = &newRegion

	m.fileStates[filePath] = after
}

// HandleSelectionEvent records a cursor/selection move to offset in
// filePath. While an edit burst is pending for that file, selection
// movements are suppressed entirely so they don't fragment the diff.
func (m *Manager) HandleSelectionEvent(filePath string, offset int) {
	if ptr, ok := m.pendingEditsBefore[filePath]; ok && ptr != nil {
		return
	}

	m.FlushTerminalOutputBuffer()

	content := m.fileStates[filePath]
	totalLines := strings.Count(content, "\n") + 1
	safeOffset := textutil.FloorCharBoundary(content, min(offset, len(content)))
	targetLine := strings.Count(content[:safeOffset], "\n") + 1

	currentVP := m.perFileViewport[filePath]
	shouldEmit := false

	var vp textutil.Viewport
	if currentVP != nil && currentVP.End > 0 {
		if targetLine < currentVP.Start || targetLine > currentVP.End {
			vp = textutil.ComputeViewport(totalLines, targetLine, m.config.ViewportRadius)
			m.perFileViewport[filePath] = &vp
			shouldEmit = true
		} else {
			vp = *currentVP
		}
	} else {
		vp = textutil.ComputeViewport(totalLines, targetLine, m.config.ViewportRadius)
		m.perFileViewport[filePath] = &vp
		shouldEmit = true
	}

	if shouldEmit && vp.End >= vp.Start {
		m.maybeCaptureFileContents(filePath, content)
		cmd := "cat -n " + filePath + " | sed -n '" + itoa(vp.Start) + "," + itoa(vp.End) + "p'"
		m.appendMessage(assistantMessage(textutil.FencedBlock("bash", textutil.CleanText(cmd))))
		viewportOutput := textutil.LineNumberedOutput(content, &vp.Start, &vp.End)
		m.appendMessage(userMessage("<stdout>\n" + viewportOutput + "\n</stdout>"))
	}
}

// HandleTerminalCommandEvent records a shell command the user ran. Any
// pending edits and buffered terminal output are flushed first, since a new
// command implies the prior edit burst is complete.
func (m *Manager) HandleTerminalCommandEvent(command string) {
	m.FlushAllPendingEdits()
	m.FlushTerminalOutputBuffer()

	commandStr := textutil.UnescapeNewlines(command)
	m.appendMessage(assistantMessage(textutil.FencedBlock("bash", textutil.CleanText(commandStr))))
}

// HandleTerminalOutputEvent buffers a chunk of terminal output for later
// aggregation; output is not emitted until the buffer is flushed, since a
// single command can produce output across many events.
func (m *Manager) HandleTerminalOutputEvent(output string) {
	m.terminalOutputBuffer = append(m.terminalOutputBuffer, textutil.UnescapeNewlines(output))
}

// HandleTerminalFocusEvent records the terminal gaining focus. It produces
// no message of its own; it only forces a flush of anything pending.
func (m *Manager) HandleTerminalFocusEvent() {
	m.FlushAllPendingEdits()
	m.FlushTerminalOutputBuffer()
}

var branchCheckoutRe = regexp.MustCompile(`to '([^']+)'`)
var branchSpecialCharsRe = regexp.MustCompile(`[^A-Za-z0-9._/\\-]`)

// HandleGitBranchCheckoutEvent records a branch checkout, extracting the
// branch name from a VCS message of the form "... to 'branch-name'" and
// emitting the equivalent `git checkout` command. If no branch name can be
// extracted, the event is dropped (see spec §4.A edge cases).
func (m *Manager) HandleGitBranchCheckoutEvent(branchInfo string) {
	m.FlushAllPendingEdits()
	m.FlushTerminalOutputBuffer()

	branchStr := textutil.UnescapeNewlines(branchInfo)
	cleaned := textutil.CleanText(branchStr)

	matches := branchCheckoutRe.FindStringSubmatch(cleaned)
	if matches == nil {
		return
	}
	branchName := strings.TrimSpace(matches[1])
	if branchName == "" {
		return
	}

	if branchSpecialCharsRe.MatchString(branchName) {
		branchName = "'" + strings.ReplaceAll(branchName, "'", `'"'"'`) + "'"
	}

	cmd := "git checkout " + branchName
	m.appendMessage(assistantMessage(textutil.FencedBlock("bash", textutil.CleanText(cmd))))
}

// FinalizeForModel flushes all pending state and returns the messages
// accumulated in the current (not-yet-finalized) conversation.
func (m *Manager) FinalizeForModel() []Message {
	m.FlushAllPendingEdits()
	m.FlushTerminalOutputBuffer()
	return m.Messages()
}

func escapedLines(lines []string) string {
	escaped := make([]string, len(lines))
	for i, l := range lines {
		escaped[i] = textutil.EscapeSingleQuotesForSed(l)
	}
	return strings.Join(escaped, "\n")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
