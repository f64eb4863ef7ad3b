package main

import (
	"fmt"
	"time"

	"github.com/BadgerOps/srcpack/internal/config"
	"github.com/BadgerOps/srcpack/internal/engine"
	"github.com/BadgerOps/srcpack/internal/snapshot"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	packCompression string
	packBackend     string
)

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Build the source artifact",
		Long: `Build the source artifact. Exports the tracked files of the host project,
stages them with the package manifest, build script, license and readme,
rewrites the manifest's version and install script, and compresses the
staging tree into the artifact next to the tool.

Intermediate files are removed on success. State left by an interrupted run
is removed at the start of the next one.`,
		Example: `  srcpack pack
  srcpack pack --compression zstd
  srcpack pack --compression xz
  srcpack pack --backend go-git`,
		Args: cobra.NoArgs,
		RunE: packRun,
	}

	cmd.Flags().StringVar(&packCompression, "compression", "", "artifact compression (gzip, zstd or xz)")
	cmd.Flags().StringVar(&packBackend, "backend", "", "snapshot backend (git or go-git)")

	return cmd
}

func packRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	if packCompression != "" {
		globalCfg.Package.Compression = packCompression
		globalCfg.Paths.ArtifactName = config.ArtifactNameFor(globalCfg.Paths.ArtifactName, packCompression)
	}
	if packBackend != "" {
		globalCfg.Snapshot.Backend = packBackend
	}

	exporter, err := snapshot.New(globalCfg.Snapshot.Backend, logger)
	if err != nil {
		return err
	}

	var recorder engine.RunRecorder
	if globalStore != nil {
		recorder = globalStore
	}

	packager, err := engine.NewPackager(globalCfg, exporter, recorder, logger)
	if err != nil {
		return err
	}
	if !quiet {
		packager.OnStage(func(s engine.Stage) {
			fmt.Println(s.Message())
		})
	}

	report, err := packager.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("packaging failed: %w", err)
	}

	if quiet {
		return nil
	}

	fmt.Println()
	fmt.Printf("  Artifact: %s (%s)\n", report.ArtifactPath, humanize.Bytes(uint64(report.ArtifactSize)))
	if report.VersionFound {
		fmt.Printf("  Version: %s\n", report.Version)
	} else {
		fmt.Printf("  Version: unchanged (marker %q not found)\n", globalCfg.Version.Marker)
	}
	if report.Commit != "" {
		fmt.Printf("  Commit: %s\n", report.Commit)
	}
	fmt.Printf("  Entries: %s\n", humanize.Comma(int64(report.Entries)))
	fmt.Printf("  SHA256: %s\n", report.ArtifactSHA256)
	fmt.Printf("  Duration: %s\n", report.Duration.Round(time.Millisecond))

	return nil
}
