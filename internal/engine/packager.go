// Package engine runs the packaging pipeline: snapshot export, staging,
// manifest rewrite, compression and cleanup, strictly in that order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BadgerOps/srcpack/internal/config"
	"github.com/BadgerOps/srcpack/internal/snapshot"
	"github.com/BadgerOps/srcpack/internal/store"
	"github.com/google/uuid"
)

// RunRecorder persists the outcome of packaging runs.
type RunRecorder interface {
	CreateRun(run *store.PackageRun) error
	UpdateRun(run *store.PackageRun) error
}

// Report summarizes a completed run.
type Report struct {
	RunID          string
	Commit         string
	Version        string
	VersionFound   bool
	ArtifactPath   string
	ArtifactSize   int64
	ArtifactSHA256 string
	Entries        int
	Duration       time.Duration
}

// Packager owns the working paths of one host project and runs the pipeline
// against them. Runs must not overlap.
type Packager struct {
	cfg      *config.Config
	layout   *config.Layout
	exporter snapshot.Exporter
	recorder RunRecorder
	logger   *slog.Logger
	onStage  func(Stage)
}

// NewPackager resolves the working paths from cfg. recorder may be nil.
func NewPackager(cfg *config.Config, exporter snapshot.Exporter, recorder RunRecorder, logger *slog.Logger) (*Packager, error) {
	layout, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Packager{
		cfg:      cfg,
		layout:   layout,
		exporter: exporter,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// OnStage registers a callback invoked at every stage boundary.
func (p *Packager) OnStage(fn func(Stage)) {
	p.onStage = fn
}

// Layout returns the resolved working paths.
func (p *Packager) Layout() *config.Layout {
	return p.layout
}

// Run executes one packaging run. The first failing stage aborts the run;
// intermediate state it leaves behind is removed by the next run's tidy-up.
func (p *Packager) Run(ctx context.Context) (*Report, error) {
	startTime := time.Now()
	report := &Report{RunID: uuid.NewString()}

	run := &store.PackageRun{
		RunID:        report.RunID,
		SourceRoot:   p.layout.SourceRoot,
		Revision:     p.cfg.Snapshot.Revision,
		Backend:      p.exporter.Name(),
		ArtifactPath: p.layout.Artifact,
		Status:       store.RunStatusRunning,
		StartTime:    startTime,
	}
	if p.recorder != nil {
		if err := p.recorder.CreateRun(run); err != nil {
			p.logger.Warn("failed to record run in history", "error", err)
		}
	}

	p.logger.Info("packaging started",
		"run_id", report.RunID,
		"source_root", p.layout.SourceRoot,
		"backend", p.exporter.Name(),
	)

	err := p.run(ctx, report)
	report.Duration = time.Since(startTime)

	run.EndTime = time.Now()
	run.Commit = report.Commit
	run.Version = report.Version
	run.VersionFound = report.VersionFound
	if err != nil {
		run.Status = store.RunStatusFailed
		run.ErrorMessage = err.Error()
	} else {
		run.Status = store.RunStatusCompleted
		run.ArtifactSHA256 = report.ArtifactSHA256
		run.ArtifactSize = report.ArtifactSize
		run.EntryCount = report.Entries
	}
	if p.recorder != nil && run.ID != 0 {
		if uerr := p.recorder.UpdateRun(run); uerr != nil {
			p.logger.Warn("failed to update run history", "error", uerr)
		}
	}

	if err != nil {
		p.logger.Error("packaging failed", "run_id", report.RunID, "error", err)
		return nil, err
	}

	p.logger.Info("packaging completed",
		"run_id", report.RunID,
		"artifact", report.ArtifactPath,
		"size", report.ArtifactSize,
		"version", report.Version,
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Packager) run(ctx context.Context, report *Report) error {
	l := p.layout

	p.stage(StageGathering)
	p.tidy()

	if err := p.exporter.Export(ctx, l.SourceRoot, p.cfg.Snapshot.Revision, l.ArchivePath); err != nil {
		return fmt.Errorf("exporting snapshot: %w", err)
	}

	extracted, err := p.assemble(ctx)
	if err != nil {
		return fmt.Errorf("assembling package: %w", err)
	}
	report.Commit = extracted.Commit

	p.stage(StageManifest)
	version, found, err := ResolveVersion(l.VersionFile, p.cfg.Version.Marker)
	if err != nil {
		return fmt.Errorf("resolving version: %w", err)
	}
	if found {
		p.logger.Info("found version string", "file", l.VersionFile, "version", version)
	} else {
		if p.cfg.Version.Require {
			return fmt.Errorf("resolving version: %w: no line containing %q in %s", ErrVersionNotFound, p.cfg.Version.Marker, l.VersionFile)
		}
		// The template's version ships unchanged; it may be stale.
		p.logger.Warn("version marker not found, keeping manifest template version",
			"file", l.VersionFile, "marker", p.cfg.Version.Marker)
	}
	report.Version = version
	report.VersionFound = found

	if err := RewriteManifest(l.Manifest, ManifestUpdate{
		Version:        version,
		SetVersion:     found,
		InstallCommand: p.cfg.Manifest.InstallCommand,
	}); err != nil {
		return fmt.Errorf("rewriting manifest: %w", err)
	}

	p.stage(StageCompressing)
	art, err := PackageArtifact(ctx, l.StagingDir, l.Artifact, p.cfg.Package.Compression)
	if err != nil {
		return fmt.Errorf("packaging artifact: %w", err)
	}
	report.ArtifactPath = art.Path
	report.ArtifactSize = art.Size
	report.ArtifactSHA256 = art.SHA256
	report.Entries = art.Entries

	p.stage(StageCleanup)
	p.finish()

	p.stage(StageDone)
	return nil
}
