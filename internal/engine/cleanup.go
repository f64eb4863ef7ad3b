package engine

import (
	"log/slog"
	"os"
)

// removeBestEffort deletes path and everything below it. A path that does
// not exist counts as removed. Any other failure is logged and swallowed so
// leftover state can never block the next run.
func removeBestEffort(logger *slog.Logger, path string) bool {
	if err := os.RemoveAll(path); err != nil {
		if os.IsNotExist(err) {
			return true
		}
		logger.Warn("failed to remove intermediate path", "path", path, "error", err)
		return false
	}
	return true
}

// tidy removes state abandoned by an earlier run before anything is written.
func (p *Packager) tidy() {
	for _, path := range []string{p.layout.ArchivePath, p.layout.ExtractDir, p.layout.StagingDir} {
		if _, err := os.Lstat(path); err == nil {
			p.logger.Info("removing stale intermediate state", "path", path)
		}
		removeBestEffort(p.logger, path)
	}
}

// finish removes the intermediate paths once the artifact is in place.
func (p *Packager) finish() {
	removeBestEffort(p.logger, p.layout.StagingDir)
	removeBestEffort(p.logger, p.layout.ArchivePath)
	removeBestEffort(p.logger, p.layout.ExtractDir)
}
