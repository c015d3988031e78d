package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcriptforge/cli/internal/csm"
	"github.com/transcriptforge/cli/internal/events"
	"github.com/transcriptforge/cli/internal/tokenizer"
)

func TestDiscoverCSVFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.csv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.txt"), []byte("x"), 0o644))

	files, err := DiscoverCSVFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "b.csv")
}

func TestProcessSession_DispatchesEvents(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "session.csv")
	content := "Sequence,Time,File,RangeOffset,RangeLength,Text,Language,Type\n" +
		"1,2026-01-01,/test/file.go,0,0,\"package main\",go,tab\n" +
		"2,2026-01-01,/test/file.go,0,0,go build ./...,bash,terminal_command\n" +
		"3,2026-01-01,/test/file.go,0,0,done,bash,terminal_output\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o644))

	config := csm.DefaultConfig()
	config.MinConversationMessages = 2
	mgr := csm.New(tokenizer.CharApprox{}, config)

	convs, err := ProcessSession(context.Background(), csvPath, mgr)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.GreaterOrEqual(t, len(convs[0].Messages), 4)
}

func TestDispatch_GitBranchCheckoutMissingTextStillFlushes(t *testing.T) {
	mgr := csm.New(tokenizer.CharApprox{}, csm.DefaultConfig())
	mgr.HandleTerminalOutputEvent("build output")

	row := events.Row{Type: events.GitBranchCheckout, Text: nil}
	dispatch(context.Background(), mgr, "session.csv", row, Options{})

	messages := mgr.Messages()
	found := false
	for _, m := range messages {
		if strings.Contains(m.Value, "build output") {
			found = true
		}
	}
	assert.True(t, found, "terminal output buffered before a git_branch_checkout event with missing Text must still be flushed")
}

func TestProcessSession_MissingTypeColumnErrors(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Sequence,File\n1,/x\n"), 0o644))

	mgr := csm.New(tokenizer.CharApprox{}, csm.DefaultConfig())
	_, err := ProcessSession(context.Background(), csvPath, mgr)
	assert.Error(t, err)
}
