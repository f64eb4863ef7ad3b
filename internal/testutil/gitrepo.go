package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RepoFile is a file to write into a fixture repository.
type RepoFile struct {
	Content    string
	Executable bool
	Untracked  bool   // written to the worktree but never added
	Link       string // when set, the file is a symlink to Link
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// InitRepo creates a git repository in a temp dir, writes files, commits the
// tracked ones and returns the worktree root.
func InitRepo(t *testing.T, files map[string]RepoFile) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("opening worktree: %v", err)
	}

	for rel, f := range files {
		if f.Link != "" {
			WriteSymlink(t, filepath.Join(dir, rel), f.Link)
		} else {
			WriteFile(t, filepath.Join(dir, rel), f.Content, f.Executable)
		}
		if f.Untracked {
			continue
		}
		if _, err := wt.Add(filepath.ToSlash(rel)); err != nil {
			t.Fatalf("git add %s: %v", rel, err)
		}
	}

	_, err = wt.Commit("fixture", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Fixture",
			Email: "fixture@example.com",
			When:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("git commit: %v", err)
	}
	return dir
}

// WriteFile creates parent directories and writes content to path.
func WriteFile(t *testing.T, path, content string, executable bool) {
	t.Helper()
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

// WriteSymlink creates parent directories and a symlink at path.
func WriteSymlink(t *testing.T, path, target string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, path); err != nil {
		t.Fatal(err)
	}
}
