package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcriptforge/cli/internal/csm"
	"github.com/transcriptforge/cli/internal/tokenizer"
)

func writeSessionCSV(t *testing.T, dir, name string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "Sequence,Time,File,RangeOffset,RangeLength,Text,Language,Type\n"
	for _, r := range rows {
		content += r + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func baseConfig(csvRoot, outDir string) Config {
	cfg := csm.DefaultConfig()
	cfg.MinConversationMessages = 2
	return Config{
		CSVRoot:       csvRoot,
		OutputDir:     outDir,
		SystemPrompt:  "system prompt",
		ValRatio:      0,
		Tokenizer:     tokenizer.CharApprox{},
		TokenizerName: "approx",
		CSMConfig:     cfg,
	}
}

func TestRun_WritesTrainingAndMetadata(t *testing.T) {
	csvRoot := t.TempDir()
	outDir := t.TempDir()

	writeSessionCSV(t, csvRoot, "session1.csv",
		`1,2026-01-01,/test/file.go,0,0,"package main",go,tab`,
		`2,2026-01-01,/test/file.go,0,0,go build ./...,bash,terminal_command`,
		`3,2026-01-01,/test/file.go,0,0,done,bash,terminal_output`,
	)

	result, err := Run(context.Background(), baseConfig(csvRoot, outDir))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, result.TotalSessions)
	assert.Equal(t, 0, result.FailedSessions)
	assert.Greater(t, result.TrainConversations, 0)
	assert.Equal(t, 0, result.ValConversations)

	trainPath := filepath.Join(outDir, "training.jsonl")
	data, err := os.ReadFile(trainPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	metadataPath := filepath.Join(outDir, "metadata.json")
	metaBytes, err := os.ReadFile(metadataPath)
	require.NoError(t, err)

	var decoded Result
	require.NoError(t, json.Unmarshal(metaBytes, &decoded))
	assert.Equal(t, "approx", decoded.Tokenizer)
}

func TestRun_RedactsSecretsInOutput(t *testing.T) {
	csvRoot := t.TempDir()
	outDir := t.TempDir()

	secret := "AKIAIOSFODNN7EXAMPLEAKIAIOSFODNN7EXAMPLE"
	writeSessionCSV(t, csvRoot, "session1.csv",
		`1,2026-01-01,/test/file.go,0,0,"package main",go,tab`,
		`2,2026-01-01,/test/file.go,0,0,echo token,bash,terminal_command`,
		`3,2026-01-01,/test/file.go,0,0,`+secret+`,bash,terminal_output`,
	)

	_, err := Run(context.Background(), baseConfig(csvRoot, outDir))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "training.jsonl"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), secret)
}

func TestRun_NoCSVFilesErrors(t *testing.T) {
	csvRoot := t.TempDir()
	outDir := t.TempDir()

	_, err := Run(context.Background(), baseConfig(csvRoot, outDir))
	assert.Error(t, err)
}

func TestRun_SplitsTrainAndValidation(t *testing.T) {
	csvRoot := t.TempDir()
	outDir := t.TempDir()

	for i := 0; i < 5; i++ {
		name := "session" + string(rune('0'+i)) + ".csv"
		writeSessionCSV(t, csvRoot, name,
			`1,2026-01-01,/test/file.go,0,0,"package main",go,tab`,
			`2,2026-01-01,/test/file.go,0,0,go build ./...,bash,terminal_command`,
			`3,2026-01-01,/test/file.go,0,0,done,bash,terminal_output`,
		)
	}

	cfg := baseConfig(csvRoot, outDir)
	cfg.ValRatio = 0.4

	result, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalSessions)
	assert.Greater(t, result.ValConversations, 0)
	assert.Greater(t, result.TrainConversations, 0)

	valFile, err := os.Open(filepath.Join(outDir, "validation.jsonl"))
	require.NoError(t, err)
	defer valFile.Close()

	scanner := bufio.NewScanner(valFile)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	assert.Greater(t, lines, 0)
}
