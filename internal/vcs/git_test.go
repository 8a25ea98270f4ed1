package vcs

import (
	"os"
	"path/filepath"
	"testing"

	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestHasChanges(t *testing.T) {
	dir := initRepo(t)
	repo := NewGitRepo(dir, zap.NewNop())

	if repo.HasChanges() {
		t.Error("HasChanges = true on empty repo")
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !repo.HasChanges() {
		t.Error("HasChanges = false with untracked file")
	}
}

func TestCommitAll(t *testing.T) {
	dir := initRepo(t)
	repo := NewGitRepo(dir, zap.NewNop())

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !repo.CommitAll("agent changes for PROJ-1") {
		t.Fatal("CommitAll = false, want true")
	}
	if repo.HasChanges() {
		t.Error("HasChanges = true after commit")
	}
}

func TestBestEffortOnMissingRepo(t *testing.T) {
	repo := NewGitRepo(t.TempDir(), zap.NewNop())

	// Not a git repository: both calls degrade to false, no panic.
	if repo.HasChanges() {
		t.Error("HasChanges = true outside a repository")
	}
	if repo.CommitAll("msg") {
		t.Error("CommitAll = true outside a repository")
	}
}
