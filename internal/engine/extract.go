package engine

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BadgerOps/srcpack/internal/safety"
)

// extractResult summarizes an extracted snapshot.
type extractResult struct {
	Commit string // from the pax global header, when present
	Files  int
	Bytes  int64
}

// extractTar unpacks an uncompressed tar archive into destDir. Directories,
// regular files and symlinks are supported. Entry names must stay under
// destDir and may not pass through a symlink extracted earlier. Symlink
// targets are kept as-is: they are never followed while staging.
func extractTar(ctx context.Context, archivePath, destDir string) (*extractResult, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	res := &extractResult{}
	tr := tar.NewReader(f)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading tar entry: %w", err)
		}

		if header.Typeflag == tar.TypeXGlobalHeader {
			if c := header.PAXRecords["comment"]; c != "" {
				res.Commit = c
			}
			continue
		}
		if filepath.Clean(filepath.FromSlash(header.Name)) == "." {
			continue
		}

		destPath, err := safety.SafeJoinUnder(destDir, header.Name)
		if err != nil {
			return res, fmt.Errorf("unsafe path in archive %q: %w", header.Name, err)
		}
		if err := safety.EnsureNoSymlinks(destDir, destPath); err != nil {
			return res, fmt.Errorf("unsafe path in archive %q: %w", header.Name, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return res, fmt.Errorf("creating directory: %w", err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return res, fmt.Errorf("creating directory: %w", err)
			}
			n, err := writeEntry(destPath, tr, os.FileMode(header.Mode).Perm())
			if err != nil {
				return res, fmt.Errorf("extracting %s: %w", header.Name, err)
			}
			res.Files++
			res.Bytes += n

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return res, fmt.Errorf("creating directory: %w", err)
			}
			if err := os.Symlink(header.Linkname, destPath); err != nil {
				return res, fmt.Errorf("creating link %s: %w", header.Name, err)
			}
			res.Files++

		default:
			return res, fmt.Errorf("unsupported tar entry type for %s: %c", header.Name, header.Typeflag)
		}
	}

	return res, nil
}

func writeEntry(destPath string, r io.Reader, perm os.FileMode) (int64, error) {
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return n, err
}
