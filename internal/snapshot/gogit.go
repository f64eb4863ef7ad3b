package snapshot

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GoGitExporter reads the repository in-process with go-git and writes the
// same layout git archive produces: a pax global header carrying the commit
// id, followed by directories and files of the tree.
type GoGitExporter struct {
	logger *slog.Logger
}

// NewGoGitExporter creates an in-process exporter.
func NewGoGitExporter(logger *slog.Logger) *GoGitExporter {
	return &GoGitExporter{logger: logger}
}

func (e *GoGitExporter) Name() string { return "go-git" }

// Export writes the tree of revision to dest. When root is a subdirectory of
// the worktree only that subtree is exported, as git archive does.
func (e *GoGitExporter) Export(ctx context.Context, root, revision, dest string) error {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return fmt.Errorf("%s: %w", root, ErrNotRepository)
		}
		return fmt.Errorf("opening repository %s: %w", root, err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return fmt.Errorf("resolving revision %s: %w", revision, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return fmt.Errorf("loading commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("loading tree of %s: %w", hash, err)
	}

	prefix, err := subtreePrefix(repo, root)
	if err != nil {
		return err
	}
	if prefix != "" {
		tree, err = tree.Tree(prefix)
		if err != nil {
			return fmt.Errorf("locating %s in %s: %w", prefix, hash, err)
		}
	}

	if err := writeTreeArchive(ctx, tree, hash.String(), commit.Committer.When, dest); err != nil {
		_ = os.Remove(dest)
		return err
	}

	e.logger.Info("go-git export completed", "root", root, "revision", revision, "commit", hash.String(), "archive", dest)
	return nil
}

// subtreePrefix returns root's slash-separated path relative to the worktree,
// or "" when root is the worktree itself or the repository is bare.
func subtreePrefix(repo *git.Repository, root string) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return "", nil
		}
		return "", fmt.Errorf("opening worktree: %w", err)
	}

	top, err := filepath.EvalSymlinks(wt.Filesystem.Root())
	if err != nil {
		return "", fmt.Errorf("resolving worktree root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving source root: %w", err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolving source root: %w", err)
	}

	rel, err := filepath.Rel(top, abs)
	if err != nil {
		return "", fmt.Errorf("locating source root in worktree: %w", err)
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

func writeTreeArchive(ctx context.Context, tree *object.Tree, commitID string, modTime time.Time, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	tw := tar.NewWriter(f)
	if err := tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": commitID},
		Format:     tar.FormatPAX,
	}); err != nil {
		return fmt.Errorf("writing global header: %w", err)
	}

	dirs := make(map[string]bool)
	err = tree.Files().ForEach(func(file *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeParentDirs(tw, dirs, file.Name, modTime); err != nil {
			return err
		}
		return writeTreeFile(tw, file, modTime)
	})
	if err != nil {
		return fmt.Errorf("writing archive entries: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing archive file: %w", err)
	}
	return nil
}

func writeParentDirs(tw *tar.Writer, seen map[string]bool, name string, modTime time.Time) error {
	dir := path.Dir(name)
	if dir == "." || seen[dir] {
		return nil
	}
	if err := writeParentDirs(tw, seen, dir, modTime); err != nil {
		return err
	}
	seen[dir] = true
	return tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     dir + "/",
		Mode:     0o755,
		ModTime:  modTime,
		Format:   tar.FormatPAX,
	})
}

func writeTreeFile(tw *tar.Writer, file *object.File, modTime time.Time) error {
	if file.Mode == filemode.Symlink {
		target, err := file.Contents()
		if err != nil {
			return fmt.Errorf("reading link %s: %w", file.Name, err)
		}
		return tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     file.Name,
			Linkname: strings.TrimRight(target, "\n"),
			Mode:     0o777,
			ModTime:  modTime,
			Format:   tar.FormatPAX,
		})
	}

	mode := int64(0o644)
	if file.Mode == filemode.Executable {
		mode = 0o755
	}
	if err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     file.Name,
		Size:     file.Size,
		Mode:     mode,
		ModTime:  modTime,
		Format:   tar.FormatPAX,
	}); err != nil {
		return err
	}

	r, err := file.Reader()
	if err != nil {
		return fmt.Errorf("opening blob %s: %w", file.Name, err)
	}
	defer func() {
		_ = r.Close()
	}()
	if _, err := io.Copy(tw, r); err != nil {
		return fmt.Errorf("copying %s: %w", file.Name, err)
	}
	return nil
}
