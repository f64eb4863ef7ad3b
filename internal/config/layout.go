package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is the set of absolute paths a packaging run works with.
type Layout struct {
	ToolDir     string
	SourceRoot  string
	ArchivePath string // uncompressed snapshot export
	ExtractDir  string // temporary extraction subpath
	StagingDir  string // package root
	SourceDir   string // snapshot tree inside the package root
	Artifact    string
	VersionFile string
	Manifest    string // manifest path inside the package root
	Auxiliary   []AuxiliaryPath
}

// AuxiliaryPath is a resolved auxiliary file copy.
type AuxiliaryPath struct {
	Src  string
	Dest string
}

// Resolve validates the config and produces absolute working paths.
func (c *Config) Resolve() (*Layout, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	toolDir := c.Paths.ToolDir
	if toolDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		toolDir = wd
	}
	toolDir, err := filepath.Abs(toolDir)
	if err != nil {
		return nil, fmt.Errorf("resolving tool dir: %w", err)
	}

	sourceRoot := c.Paths.SourceRoot
	if !filepath.IsAbs(sourceRoot) {
		sourceRoot = filepath.Join(toolDir, sourceRoot)
	}
	sourceRoot = filepath.Clean(sourceRoot)

	staging := filepath.Join(toolDir, c.Paths.StagingDirName)
	l := &Layout{
		ToolDir:     toolDir,
		SourceRoot:  sourceRoot,
		ArchivePath: filepath.Join(toolDir, c.Paths.ArchiveName),
		ExtractDir:  filepath.Join(toolDir, c.Paths.SourceDirName),
		StagingDir:  staging,
		SourceDir:   filepath.Join(staging, c.Paths.SourceDirName),
		Artifact:    filepath.Join(toolDir, c.Paths.ArtifactName),
		VersionFile: resolveUnder(sourceRoot, c.Version.File),
		Manifest:    filepath.Join(staging, c.Manifest.Name),
	}

	for _, aux := range c.Auxiliary {
		base := toolDir
		if aux.From == FromSource {
			base = sourceRoot
		}
		l.Auxiliary = append(l.Auxiliary, AuxiliaryPath{
			Src:  resolveUnder(base, aux.Path),
			Dest: filepath.Join(staging, aux.Name),
		})
	}

	return l, nil
}

func resolveUnder(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
