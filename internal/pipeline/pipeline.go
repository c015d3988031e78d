// Package pipeline drives session discovery, parallel CSM replay, and
// JSONL/metadata output for a full serialize run.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/transcriptforge/cli/internal/attribution"
	"github.com/transcriptforge/cli/internal/csm"
	"github.com/transcriptforge/cli/internal/ingest"
	"github.com/transcriptforge/cli/internal/jsonutil"
	"github.com/transcriptforge/cli/internal/logging"
	"github.com/transcriptforge/cli/internal/tokenizer"
	"github.com/transcriptforge/cli/redact"
)

// maxConcurrency bounds how many sessions are replayed at once; each worker
// owns a dedicated Manager, so there is no shared mutable CSM state.
const maxConcurrency = 8

// shuffleMultiplier reproduces the same train/val split for a given set of
// input files and val ratio across runs, without needing real randomness.
const shuffleMultiplier = 2654435761

// Config tunes a serialize run.
type Config struct {
	CSVRoot       string
	OutputDir     string
	SystemPrompt  string
	ValRatio      float64
	Tokenizer     tokenizer.Tokenizer
	TokenizerName string
	CSMConfig     csm.Config
	BranchChecker *ingest.BranchChecker
}

// sessionResult is one session's finalized conversations plus its
// attribution stats, keyed to the CSV file it came from.
type sessionResult struct {
	sourcePath    string
	conversations []csm.FinalizedConversation
	attribution   attribution.Stats
}

// NemoMessage is a single message in NeMo conversational training format.
type NemoMessage struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

// NemoRecord is one training record: a system prompt plus the alternating
// conversation it grounds.
type NemoRecord struct {
	Mask          string        `json:"mask"`
	System        string        `json:"system"`
	Conversations []NemoMessage `json:"conversations"`
}

// Result summarizes a completed run, written to metadata.json.
type Result struct {
	Tokenizer          string            `json:"tokenizer"`
	TotalSessions      int               `json:"total_sessions"`
	FailedSessions     int               `json:"failed_sessions"`
	TotalConversations int               `json:"total_conversations"`
	TrainConversations int               `json:"train_conversations"`
	ValConversations   int               `json:"val_conversations"`
	TotalMessages      int               `json:"total_messages"`
	TotalTokens        int               `json:"total_tokens"`
	Attribution        attribution.Stats `json:"attribution"`
}

// Run discovers CSV sessions under cfg.CSVRoot, replays each through its own
// Manager (bounded parallelism), and writes training.jsonl, validation.jsonl
// and metadata.json under cfg.OutputDir.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	csvFiles, err := ingest.DiscoverCSVFiles(cfg.CSVRoot)
	if err != nil {
		return nil, fmt.Errorf("discovering sessions: %w", err)
	}
	if len(csvFiles) == 0 {
		return nil, fmt.Errorf("no CSV files found under %s", cfg.CSVRoot)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	results := make([]*sessionResult, len(csvFiles))
	opt := ingest.Options{BranchChecker: cfg.BranchChecker}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, path := range csvFiles {
		g.Go(func() error {
			sessionCtx := logging.WithSession(gctx, path)
			mgr := csm.New(cfg.Tokenizer, cfg.CSMConfig)

			convs, err := ingest.ProcessSession(sessionCtx, path, mgr, opt)
			if err != nil {
				logging.Warn(sessionCtx, "session failed, skipping", slog.String("error", err.Error()))
				return nil
			}

			stats := attribution.Session(mgr.InitialFileStates(), mgr.FinalFileStates())
			results[i] = &sessionResult{sourcePath: path, conversations: convs, attribution: stats}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("processing sessions: %w", err)
	}

	failed := 0
	sessions := make([]*sessionResult, 0, len(results))
	originalIndex := make([]int, 0, len(results))
	for i, r := range results {
		if r == nil {
			failed++
			continue
		}
		sessions = append(sessions, r)
		originalIndex = append(originalIndex, i)
	}

	return writeOutputs(sessions, originalIndex, failed, cfg)
}

// writeOutputs splits sessions deterministically between train and
// validation, writes both JSONL files with secret redaction applied, and
// writes metadata.json.
func writeOutputs(sessions []*sessionResult, originalIndex []int, failed int, cfg Config) (*Result, error) {
	order := make([]int, len(sessions))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := originalIndex[order[a]], originalIndex[order[b]]
		ha := (ia * shuffleMultiplier) % 1000
		hb := (ib * shuffleMultiplier) % 1000
		if ha != hb {
			return ha < hb
		}
		return sessions[order[a]].sourcePath < sessions[order[b]].sourcePath
	})

	total := len(order)
	valCount := int(float64(total)*cfg.ValRatio + 0.5)
	trainCount := total - valCount

	trainPath := filepath.Join(cfg.OutputDir, "training.jsonl")
	valPath := filepath.Join(cfg.OutputDir, "validation.jsonl")

	trainFile, err := os.Create(trainPath) //nolint:gosec // path built from validated --output-dir
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", trainPath, err)
	}
	defer trainFile.Close()

	valFile, err := os.Create(valPath) //nolint:gosec // path built from validated --output-dir
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", valPath, err)
	}
	defer valFile.Close()

	result := &Result{Tokenizer: cfg.TokenizerName, TotalSessions: total, FailedSessions: failed}

	for pos, idx := range order {
		session := sessions[idx]
		isValidation := pos >= trainCount

		dest := trainFile
		if isValidation {
			dest = valFile
		}

		for _, conv := range session.conversations {
			line, err := marshalRecord(conv, cfg.SystemPrompt)
			if err != nil {
				return nil, fmt.Errorf("encoding conversation from %s: %w", session.sourcePath, err)
			}
			if _, err := dest.Write(line); err != nil {
				return nil, fmt.Errorf("writing to %s: %w", dest.Name(), err)
			}

			if isValidation {
				result.ValConversations++
			} else {
				result.TrainConversations++
			}
			result.TotalMessages += len(conv.Messages)
			result.TotalTokens += conv.TokenCount
		}

		result.Attribution.Add(session.attribution)
	}
	result.TotalConversations = result.TrainConversations + result.ValConversations

	if err := trainFile.Sync(); err != nil {
		return nil, fmt.Errorf("flushing %s: %w", trainPath, err)
	}
	if err := valFile.Sync(); err != nil {
		return nil, fmt.Errorf("flushing %s: %w", valPath, err)
	}

	if err := writeMetadata(cfg.OutputDir, result); err != nil {
		return nil, err
	}

	return result, nil
}

// marshalRecord redacts message values, builds a compact single-line NeMo
// record and appends a trailing newline for JSONL.
func marshalRecord(conv csm.FinalizedConversation, systemPrompt string) ([]byte, error) {
	messages := make([]NemoMessage, len(conv.Messages))
	for i, m := range conv.Messages {
		messages[i] = NemoMessage{From: m.From, Value: redact.String(m.Value)}
	}

	record := NemoRecord{Mask: "User", System: systemPrompt, Conversations: messages}
	line, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}
	return append(line, '\n'), nil
}

func writeMetadata(outputDir string, result *Result) error {
	data, err := jsonutil.MarshalIndentWithNewline(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	metadataPath := filepath.Join(outputDir, "metadata.json")
	if err := os.WriteFile(metadataPath, data, 0o644); err != nil { //nolint:gosec // path built from validated --output-dir
		return fmt.Errorf("writing %s: %w", metadataPath, err)
	}
	return nil
}
