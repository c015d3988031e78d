package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/transcriptforge/cli/internal/logging"
)

var branchCheckoutRe = regexp.MustCompile(`to '([^']+)'`)

// checkBranchExists extracts the branch name from a raw git_branch_checkout
// message the same way the state manager does, and logs a warning if it
// cannot be found in checker's repository. Extraction failures are silent
// here too: the state manager will separately drop the event.
func checkBranchExists(ctx context.Context, checker *BranchChecker, sourcePath, branchInfo string) {
	matches := branchCheckoutRe.FindStringSubmatch(branchInfo)
	if matches == nil {
		return
	}
	if !checker.Exists(matches[1]) {
		logging.Warn(ctx, "git_branch_checkout references a branch not found in the repository",
			slog.String("path", sourcePath), slog.String("branch", matches[1]))
	}
}

// BranchChecker cross-checks git_branch_checkout event branch names against
// a real repository, to flag a session recording that references a branch
// that was since deleted or renamed. Optional: the pipeline only constructs
// one when --repo is given.
type BranchChecker struct {
	repo *git.Repository
}

// NewBranchChecker opens the git repository at repoPath.
func NewBranchChecker(repoPath string) (*BranchChecker, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", repoPath, err)
	}
	return &BranchChecker{repo: repo}, nil
}

// Exists reports whether branchName resolves to a local or remote-tracking
// branch reference in the repository.
func (c *BranchChecker) Exists(branchName string) bool {
	if _, err := c.repo.Reference(plumbing.NewBranchReferenceName(branchName), true); err == nil {
		return true
	}
	refs, err := c.repo.References()
	if err != nil {
		return false
	}
	defer refs.Close()

	found := false
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name().Short() == branchName {
			found = true
		}
		return nil
	})
	return found
}
