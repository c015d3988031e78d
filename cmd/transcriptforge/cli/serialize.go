package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/transcriptforge/cli/internal/csm"
	"github.com/transcriptforge/cli/internal/ingest"
	"github.com/transcriptforge/cli/internal/logging"
	"github.com/transcriptforge/cli/internal/pipeline"
	"github.com/transcriptforge/cli/internal/runid"
	"github.com/transcriptforge/cli/internal/settings"
	"github.com/transcriptforge/cli/internal/systemprompt"
	"github.com/transcriptforge/cli/internal/telemetry"
	"github.com/transcriptforge/cli/internal/tokenizer"
	"github.com/transcriptforge/cli/internal/validation"
	"github.com/transcriptforge/cli/redact"
)

type serializeFlags struct {
	csvRoot                  string
	outputDir                string
	tokenizerName            string
	maxTokensPerConversation int
	maxTokensPerMessage      int
	minConversationMessages  int
	viewportRadius           int
	coalesceRadius           int
	valRatio                 float64
	systemPrompt             string
	repo                     string
	logLevel                 string
	redactEntropyThreshold   float64
}

func newSerializeCmd(stats *telemetry.RunStats) *cobra.Command {
	flags := &serializeFlags{}

	cmd := &cobra.Command{
		Use:   "serialize",
		Short: "Convert a directory of IDE session CSV files into training JSONL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSerialize(cmd, flags, stats)
		},
	}

	cmd.Flags().StringVar(&flags.csvRoot, "csv-root", "", "directory to search for session CSV files (required)")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "directory to write training.jsonl, validation.jsonl and metadata.json (required)")
	cmd.Flags().StringVar(&flags.tokenizerName, "tokenizer", "", "tokenizer backend (default from settings, otherwise \"approx\")")
	cmd.Flags().IntVar(&flags.maxTokensPerConversation, "max-tokens-per-conversation", 0, "token budget per conversation chunk (default from settings)")
	cmd.Flags().IntVar(&flags.maxTokensPerMessage, "max-tokens-per-message", 0, "token budget per message (default from settings)")
	cmd.Flags().IntVar(&flags.minConversationMessages, "min-conversation-messages", 0, "minimum messages to keep a conversation chunk (default from settings)")
	cmd.Flags().IntVar(&flags.viewportRadius, "viewport-radius", 0, "lines shown above/below an edit or cursor move (default from settings)")
	cmd.Flags().IntVar(&flags.coalesceRadius, "coalesce-radius", 0, "line distance within which edits are coalesced (default from settings)")
	cmd.Flags().Float64Var(&flags.valRatio, "val-ratio", 0, "fraction of sessions routed to validation.jsonl (default from settings)")
	cmd.Flags().StringVar(&flags.systemPrompt, "system-prompt", "", "override the default system prompt")
	cmd.Flags().StringVar(&flags.repo, "repo", "", "optional git repository to cross-check git_branch_checkout events against")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (default from settings, env "+logging.LogLevelEnvVar+")")
	cmd.Flags().Float64Var(&flags.redactEntropyThreshold, "redact-entropy-threshold", 0, "minimum Shannon entropy for a candidate string to be redacted (default from settings)")

	_ = cmd.MarkFlagRequired("csv-root")
	_ = cmd.MarkFlagRequired("output-dir")

	return cmd
}

func runSerialize(cmd *cobra.Command, flags *serializeFlags, stats *telemetry.RunStats) error {
	s, err := settings.Load()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	applySerializeOverrides(s, flags)

	if err := validation.ValidateValRatio(s.ValRatio); err != nil {
		return err
	}
	if err := validation.ValidateRadius("viewport-radius", s.ViewportRadius); err != nil {
		return err
	}
	if err := validation.ValidateRadius("coalesce-radius", s.CoalesceRadius); err != nil {
		return err
	}

	runID := runid.New()
	if err := validation.ValidateRunID(runID); err != nil {
		return fmt.Errorf("generating run ID: %w", err)
	}
	logging.SetLogLevelGetter(func() string { return s.LogLevel })
	if err := logging.Init(runID); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logging.Close()

	ctx := logging.WithComponent(cmd.Context(), "serialize")

	tok, err := tokenizer.Load(s.Tokenizer)
	if err != nil {
		return fmt.Errorf("loading tokenizer %q: %w", s.Tokenizer, err)
	}

	var branchChecker *ingest.BranchChecker
	if flags.repo != "" {
		branchChecker, err = ingest.NewBranchChecker(flags.repo)
		if err != nil {
			return fmt.Errorf("opening --repo: %w", err)
		}
	}

	prompt := flags.systemPrompt
	if prompt == "" {
		prompt = systemprompt.Default(s.ViewportRadius)
	}

	redact.EntropyThreshold = s.RedactEntropyThreshold

	maxTokens := s.MaxTokensPerConversation
	cfg := pipeline.Config{
		CSVRoot:       flags.csvRoot,
		OutputDir:     flags.outputDir,
		SystemPrompt:  prompt,
		ValRatio:      s.ValRatio,
		Tokenizer:     tok,
		TokenizerName: s.Tokenizer,
		BranchChecker: branchChecker,
		CSMConfig: csm.Config{
			ViewportRadius:             s.ViewportRadius,
			CoalesceRadius:             s.CoalesceRadius,
			MaxTokensPerMessage:        s.MaxTokensPerMessage,
			MaxTokensPerTerminalOutput: s.MaxTokensPerTerminalOutput,
			MaxTokensPerConversation:   &maxTokens,
			MinConversationMessages:    s.MinConversationMessages,
		},
	}

	start := time.Now()
	result, err := pipeline.Run(ctx, cfg)
	if err != nil {
		logging.Error(ctx, "serialize run failed", slog.String("error", err.Error()))
		return NewSilentError(fmt.Errorf("serialize failed: %w", err))
	}
	logging.LogDuration(ctx, slog.LevelInfo, "serialize run completed", start,
		slog.Int("total_sessions", result.TotalSessions),
		slog.Int("total_conversations", result.TotalConversations))

	*stats = telemetry.RunStats{
		Tokenizer:          s.Tokenizer,
		TotalSessions:      result.TotalSessions,
		TotalConversations: result.TotalConversations,
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d sessions into %d conversations (%d train, %d validation).\n",
		result.TotalSessions, result.TotalConversations, result.TrainConversations, result.ValConversations)
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote output to %s\n", flags.outputDir)

	return nil
}

// applySerializeOverrides layers non-zero CLI flag values on top of the
// loaded settings, so explicit flags always win over settings files.
func applySerializeOverrides(s *settings.Settings, flags *serializeFlags) {
	if flags.tokenizerName != "" {
		s.Tokenizer = flags.tokenizerName
	}
	if flags.maxTokensPerConversation != 0 {
		s.MaxTokensPerConversation = flags.maxTokensPerConversation
	}
	if flags.maxTokensPerMessage != 0 {
		s.MaxTokensPerMessage = flags.maxTokensPerMessage
	}
	if flags.minConversationMessages != 0 {
		s.MinConversationMessages = flags.minConversationMessages
	}
	if flags.viewportRadius != 0 {
		s.ViewportRadius = flags.viewportRadius
	}
	if flags.coalesceRadius != 0 {
		s.CoalesceRadius = flags.coalesceRadius
	}
	if flags.valRatio != 0 {
		s.ValRatio = flags.valRatio
	}
	if flags.logLevel != "" {
		s.LogLevel = flags.logLevel
	}
	if flags.redactEntropyThreshold != 0 {
		s.RedactEntropyThreshold = flags.redactEntropyThreshold
	}
}
