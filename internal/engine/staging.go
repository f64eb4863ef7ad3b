package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// assemble builds the package root: a fresh staging directory holding the
// extracted snapshot under SourceDir plus every auxiliary file. The snapshot
// archive is consumed.
func (p *Packager) assemble(ctx context.Context) (*extractResult, error) {
	l := p.layout

	removeBestEffort(p.logger, l.ExtractDir)
	removeBestEffort(p.logger, l.StagingDir)

	if err := os.Mkdir(l.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	if err := os.Mkdir(l.ExtractDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating extraction directory: %w", err)
	}

	res, err := extractTar(ctx, l.ArchivePath, l.ExtractDir)
	if err != nil {
		return nil, fmt.Errorf("extracting snapshot: %w", err)
	}
	p.logger.Info("snapshot extracted", "files", res.Files, "bytes", res.Bytes, "commit", res.Commit)

	removeBestEffort(p.logger, l.ArchivePath)

	if err := os.Rename(l.ExtractDir, l.SourceDir); err != nil {
		return nil, fmt.Errorf("moving snapshot into staging directory: %w", err)
	}

	for _, aux := range l.Auxiliary {
		if err := copyFile(aux.Src, aux.Dest); err != nil {
			return nil, fmt.Errorf("copying auxiliary file %s: %w", filepath.Base(aux.Dest), err)
		}
		p.logger.Debug("auxiliary file staged", "src", aux.Src, "dest", aux.Dest)
	}

	return res, nil
}

// copyFile copies a regular file, keeping its permission bits plus owner write.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
