// Package ingest discovers session CSV files and replays their rows through
// a conversation state manager, one row at a time, in file order.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/transcriptforge/cli/internal/csm"
	"github.com/transcriptforge/cli/internal/events"
	"github.com/transcriptforge/cli/internal/logging"
)

// expectedHeader is the CSV column order a session recording emits.
var expectedHeader = []string{"Sequence", "Time", "File", "RangeOffset", "RangeLength", "Text", "Language", "Type"}

// DiscoverCSVFiles walks root and returns every *.csv file found, sorted
// lexicographically for deterministic processing order.
func DiscoverCSVFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering CSV files under %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Options tunes how ProcessSession ingests a session CSV.
type Options struct {
	// BranchChecker, if set, cross-checks git_branch_checkout rows against a
	// real repository and logs a warning for branches that no longer exist.
	BranchChecker *BranchChecker
}

// ProcessSession reads csvPath row by row and dispatches each row to mgr,
// returning the finalized conversations once the file is exhausted.
func ProcessSession(ctx context.Context, csvPath string, mgr *csm.Manager, opts ...Options) ([]csm.FinalizedConversation, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	f, err := os.Open(csvPath) //nolint:gosec // csvPath comes from DiscoverCSVFiles under a caller-controlled root
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", csvPath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return mgr.GetConversations(), nil
		}
		return nil, fmt.Errorf("reading header of %s: %w", csvPath, err)
	}
	cols := columnIndex(header)
	if _, ok := cols["File"]; !ok {
		return nil, fmt.Errorf("%s: missing File column, expected header like %s", csvPath, expectedHeaderString())
	}
	if _, ok := cols["Type"]; !ok {
		return nil, fmt.Errorf("%s: missing Type column, expected header like %s", csvPath, expectedHeaderString())
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row of %s: %w", csvPath, err)
		}

		row, err := decodeRow(record, cols)
		if err != nil {
			logging.Warn(ctx, "skipping malformed row", slog.String("path", csvPath), slog.String("error", err.Error()))
			continue
		}

		dispatch(ctx, mgr, csvPath, row, opt)
	}

	return mgr.GetConversations(), nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func field(record []string, cols map[string]int, name string) (string, bool) {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return "", false
	}
	return record[i], true
}

func decodeRow(record []string, cols map[string]int) (events.Row, error) {
	var row events.Row

	fileVal, _ := field(record, cols, "File")
	row.File = fileVal

	typeVal, ok := field(record, cols, "Type")
	if !ok || typeVal == "" {
		return events.Row{}, fmt.Errorf("missing Type column")
	}
	row.Type = events.Type(typeVal)

	if v, ok := field(record, cols, "Time"); ok {
		row.Time = v
	}
	if v, ok := field(record, cols, "Language"); ok {
		row.Language = v
	}

	if v, ok := field(record, cols, "Sequence"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			row.Sequence = &n
		}
	}
	if v, ok := field(record, cols, "Text"); ok {
		text := v
		row.Text = &text
	}
	if v, ok := field(record, cols, "RangeOffset"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			row.RangeOffset = &n
		}
	}
	if v, ok := field(record, cols, "RangeLength"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			row.RangeLength = &n
		}
	}

	return row, nil
}

func dispatch(ctx context.Context, mgr *csm.Manager, sourcePath string, row events.Row, opt Options) {
	switch {
	case row.Type == events.Tab:
		mgr.HandleTabEvent(row.File, row.Text)

	case row.Type == events.Content:
		if row.RangeOffset == nil || row.RangeLength == nil {
			logging.Warn(ctx, "content event missing range", slog.String("path", sourcePath))
			return
		}
		mgr.HandleContentEvent(row.File, int(*row.RangeOffset), int(*row.RangeLength), row.TextOr(""))

	case row.Type.IsSelection():
		if row.RangeOffset == nil {
			logging.Warn(ctx, "selection event missing RangeOffset", slog.String("path", sourcePath))
			return
		}
		mgr.HandleSelectionEvent(row.File, int(*row.RangeOffset))

	case row.Type == events.TerminalCommand:
		if row.Text == nil {
			logging.Warn(ctx, "terminal_command event missing Text", slog.String("path", sourcePath))
		}
		mgr.HandleTerminalCommandEvent(row.TextOr(""))

	case row.Type == events.TerminalOutput:
		if row.Text == nil {
			logging.Warn(ctx, "terminal_output event missing Text", slog.String("path", sourcePath))
		}
		mgr.HandleTerminalOutputEvent(row.TextOr(""))

	case row.Type == events.TerminalFocus:
		mgr.HandleTerminalFocusEvent()

	case row.Type == events.GitBranchCheckout:
		if row.Text == nil {
			logging.Warn(ctx, "git_branch_checkout event missing Text", slog.String("path", sourcePath))
		}
		if opt.BranchChecker != nil && row.Text != nil {
			checkBranchExists(ctx, opt.BranchChecker, sourcePath, *row.Text)
		}
		mgr.HandleGitBranchCheckoutEvent(row.TextOr(""))

	default:
		logging.Warn(ctx, "unknown event type", slog.String("path", sourcePath), slog.String("type", string(row.Type)))
	}
}

// expectedHeaderString renders the canonical header, used in diagnostic
// messages when a CSV's columns don't match what ingest expects.
func expectedHeaderString() string {
	return strings.Join(expectedHeader, ",")
}
