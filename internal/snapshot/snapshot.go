// Package snapshot exports the tracked files of a git checkout at one
// revision as an uncompressed tar archive.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BadgerOps/srcpack/internal/config"
)

var (
	// ErrNotRepository indicates the source root is not a git checkout.
	ErrNotRepository = errors.New("not a git repository")
	// ErrToolUnavailable indicates the git executable could not be found.
	ErrToolUnavailable = errors.New("git executable not found")
)

// Exporter writes the tracked tree of root at revision to dest as a tar
// archive. An existing file at dest is overwritten.
type Exporter interface {
	Name() string
	Export(ctx context.Context, root, revision, dest string) error
}

// New returns the exporter for the configured backend.
func New(backend string, logger *slog.Logger) (Exporter, error) {
	switch backend {
	case config.BackendGit, "":
		return NewGitExporter(logger), nil
	case config.BackendGoGit:
		return NewGoGitExporter(logger), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot backend %q", backend)
	}
}
