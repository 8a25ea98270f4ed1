// Package vcs commits the agent's working-tree changes. Everything
// here is best-effort: failures are logged and reported as false,
// never propagated.
package vcs

import (
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Committer is the version-control collaborator consumed by the runner
type Committer interface {
	HasChanges() bool
	CommitAll(message string) bool
}

// GitRepo wraps a local git repository
type GitRepo struct {
	path   string
	logger *zap.Logger
}

// NewGitRepo creates a committer for the repository at path
func NewGitRepo(path string, logger *zap.Logger) *GitRepo {
	return &GitRepo{path: path, logger: logger}
}

// HasChanges reports whether the working tree is dirty
func (g *GitRepo) HasChanges() bool {
	repo, err := git.PlainOpen(g.path)
	if err != nil {
		g.logger.Warn("failed to open repository", zap.String("path", g.path), zap.Error(err))
		return false
	}

	wt, err := repo.Worktree()
	if err != nil {
		g.logger.Warn("failed to get worktree", zap.Error(err))
		return false
	}

	status, err := wt.Status()
	if err != nil {
		g.logger.Warn("failed to get worktree status", zap.Error(err))
		return false
	}

	return !status.IsClean()
}

// CommitAll stages everything and commits with the given message.
// Returns true only when a commit was actually created.
func (g *GitRepo) CommitAll(message string) bool {
	repo, err := git.PlainOpen(g.path)
	if err != nil {
		g.logger.Warn("failed to open repository", zap.String("path", g.path), zap.Error(err))
		return false
	}

	wt, err := repo.Worktree()
	if err != nil {
		g.logger.Warn("failed to get worktree", zap.Error(err))
		return false
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		g.logger.Warn("failed to stage changes", zap.Error(err))
		return false
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "claude-issue-loop",
			Email: "claude-issue-loop@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		g.logger.Warn("failed to commit changes", zap.Error(err))
		return false
	}

	g.logger.Info("committed working-tree changes", zap.String("hash", hash.String()[:8]))
	return true
}
