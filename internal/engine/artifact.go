package engine

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BadgerOps/srcpack/internal/config"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Artifact describes the compressed package written by PackageArtifact.
type Artifact struct {
	Path    string
	Size    int64
	SHA256  string
	Entries int
}

// PackageArtifact compresses the tree at stagingDir into dest. Entry names
// are relative to stagingDir's parent, so the archive unpacks to a single
// top-level directory. The archive is written next to dest and renamed into
// place once complete.
func PackageArtifact(ctx context.Context, stagingDir, dest, compression string) (*Artifact, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return nil, fmt.Errorf("creating artifact: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	zw, err := newCompressor(tmp, compression)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(zw)

	entries, err := addTree(ctx, tw, stagingDir)
	if err != nil {
		_ = tw.Close()
		_ = zw.Close()
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar writer: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing %s writer: %w", compression, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing artifact file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return nil, fmt.Errorf("setting artifact permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("moving artifact into place: %w", err)
	}
	committed = true

	hash, size, err := hashFile(dest)
	if err != nil {
		return nil, fmt.Errorf("hashing artifact: %w", err)
	}

	return &Artifact{
		Path:    dest,
		Size:    size,
		SHA256:  hash,
		Entries: entries,
	}, nil
}

func newCompressor(w io.Writer, compression string) (io.WriteCloser, error) {
	switch compression {
	case config.CompressionGzip, "":
		zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		return zw, nil
	case config.CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		return zw, nil
	case config.CompressionXz:
		zw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating xz writer: %w", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
}

// addTree writes root and everything below it in lexical order.
func addTree(ctx context.Context, tw *tar.Writer, root string) (int, error) {
	base := filepath.Dir(root)
	entries := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := addEntry(tw, path, filepath.ToSlash(rel), info); err != nil {
			return fmt.Errorf("adding %s to artifact: %w", rel, err)
		}
		entries++
		return nil
	})
	if err != nil {
		return entries, err
	}
	return entries, nil
}

// addEntry writes one file, directory or symlink. Ownership is dropped so
// the archive does not depend on who ran the packager.
func addEntry(tw *tar.Writer, srcPath, name string, info fs.FileInfo) error {
	var link string
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(srcPath)
		if err != nil {
			return err
		}
		link = target
	case info.IsDir(), info.Mode().IsRegular():
	default:
		return fmt.Errorf("unsupported file type %s", info.Mode().Type())
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	header.Uid, header.Gid = 0, 0
	header.Uname, header.Gname = "", ""

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	_, err = io.Copy(tw, f)
	return err
}

// hashFile computes the SHA256 of a file, returning hex string and size.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
