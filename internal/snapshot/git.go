package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitExporter shells out to `git archive`.
type GitExporter struct {
	binary string
	logger *slog.Logger
}

// NewGitExporter creates an exporter that runs the git found on PATH.
func NewGitExporter(logger *slog.Logger) *GitExporter {
	return &GitExporter{binary: "git", logger: logger}
}

func (e *GitExporter) Name() string { return "git" }

// Export runs git archive --format=tar --output=<dest> <revision> inside root.
func (e *GitExporter) Export(ctx context.Context, root, revision, dest string) error {
	path, err := exec.LookPath(e.binary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}

	dest, err = filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving archive path: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return fmt.Errorf("source root %s: %w", root, err)
	} else if !info.IsDir() {
		return fmt.Errorf("source root %s is not a directory", root)
	}

	cmd := exec.CommandContext(ctx, path, "archive", "--format=tar", "--output="+dest, revision)
	cmd.Dir = root
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := strings.TrimSpace(string(output))
		e.logger.Debug("git archive failed", "root", root, "revision", revision, "output", out)
		if strings.Contains(strings.ToLower(out), "not a git repository") {
			return fmt.Errorf("%s: %w", root, ErrNotRepository)
		}
		return fmt.Errorf("git archive %s in %s: %w: %s", revision, root, err, out)
	}

	e.logger.Info("git archive completed", "root", root, "revision", revision, "archive", dest)
	return nil
}
