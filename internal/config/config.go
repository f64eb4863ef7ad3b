package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Version   VersionConfig   `yaml:"version"`
	Manifest  ManifestConfig  `yaml:"manifest"`
	Package   PackageConfig   `yaml:"package"`
	Auxiliary []AuxiliaryFile `yaml:"auxiliary"`
	History   HistoryConfig   `yaml:"history"`
}

// PathsConfig holds the working paths of a packaging run. Relative entries
// are resolved against ToolDir.
type PathsConfig struct {
	ToolDir        string `yaml:"tool_dir"`
	SourceRoot     string `yaml:"source_root"`
	ArchiveName    string `yaml:"archive_name"`
	SourceDirName  string `yaml:"source_dir_name"`
	StagingDirName string `yaml:"staging_dir_name"`
	ArtifactName   string `yaml:"artifact_name"`
}

// SnapshotConfig selects how the tracked tree is exported
type SnapshotConfig struct {
	Backend  string `yaml:"backend"`
	Revision string `yaml:"revision"`
}

// VersionConfig describes where the host project declares its version
type VersionConfig struct {
	File    string `yaml:"file"`
	Marker  string `yaml:"marker"`
	Require bool   `yaml:"require"`
}

// ManifestConfig holds manifest rewrite settings
type ManifestConfig struct {
	Name           string `yaml:"name"`
	InstallCommand string `yaml:"install_command"`
}

// PackageConfig holds artifact settings
type PackageConfig struct {
	Compression string `yaml:"compression"`
}

// AuxiliaryFile is a file copied into the package root next to the source tree
type AuxiliaryFile struct {
	From string `yaml:"from"` // "tool" or "source"
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// HistoryConfig holds run history settings
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

const (
	BackendGit   = "git"
	BackendGoGit = "go-git"

	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
	CompressionXz   = "xz"

	FromTool   = "tool"
	FromSource = "source"
)

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			ToolDir:        "",
			SourceRoot:     filepath.Join("..", ".."),
			ArchiveName:    "kuzu-source.tar",
			SourceDirName:  "kuzu-source",
			StagingDirName: "package",
			ArtifactName:   "kuzu-source.tar.gz",
		},
		Snapshot: SnapshotConfig{
			Backend:  BackendGit,
			Revision: "HEAD",
		},
		Version: VersionConfig{
			File:   "CMakeLists.txt",
			Marker: "Kuzu VERSION",
		},
		Manifest: ManifestConfig{
			Name:           "package.json",
			InstallCommand: "node build.js",
		},
		Package: PackageConfig{
			Compression: CompressionGzip,
		},
		Auxiliary: []AuxiliaryFile{
			{From: FromTool, Path: "package.json", Name: "package.json"},
			{From: FromTool, Path: "build.js", Name: "build.js"},
			{From: FromSource, Path: "LICENSE", Name: "LICENSE"},
			{From: FromSource, Path: "README.md", Name: "README.md"},
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  defaultHistoryPath(),
		},
	}
}

func defaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "srcpack", "history.db")
}

// LocalConfigFile is the config file name looked up in the working directory.
const LocalConfigFile = "srcpack.yaml"

// Load reads a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// AnchorToolDir sets an unset tool_dir to the directory holding the config
// file at path. Only a file that belongs to the tool (passed explicitly or
// found in the working directory) should anchor it; shared files under /etc
// or the user's config directory leave tool_dir to the working directory.
func (c *Config) AnchorToolDir(path string) error {
	if c.Paths.ToolDir != "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	c.Paths.ToolDir = filepath.Dir(abs)
	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		LocalConfigFile,
		"/etc/srcpack/srcpack.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "srcpack", "srcpack.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Validate checks the config for values the pipeline cannot act on
func (c *Config) Validate() error {
	switch c.Snapshot.Backend {
	case BackendGit, BackendGoGit:
	default:
		return fmt.Errorf("unsupported snapshot backend %q (want %s or %s)", c.Snapshot.Backend, BackendGit, BackendGoGit)
	}
	if c.Snapshot.Revision == "" {
		return fmt.Errorf("snapshot revision is empty")
	}

	switch c.Package.Compression {
	case CompressionGzip, CompressionZstd, CompressionXz:
	default:
		return fmt.Errorf("unsupported compression %q (want %s, %s or %s)", c.Package.Compression, CompressionGzip, CompressionZstd, CompressionXz)
	}

	if strings.TrimSpace(c.Version.Marker) == "" {
		return fmt.Errorf("version marker is empty")
	}
	if c.Version.File == "" {
		return fmt.Errorf("version file is empty")
	}
	if c.Manifest.InstallCommand == "" {
		return fmt.Errorf("manifest install command is empty")
	}

	names := map[string]string{
		c.Paths.ArchiveName:    "archive_name",
		c.Paths.SourceDirName:  "source_dir_name",
		c.Paths.StagingDirName: "staging_dir_name",
		c.Paths.ArtifactName:   "artifact_name",
	}
	if len(names) != 4 {
		return fmt.Errorf("archive, source dir, staging dir and artifact names must be distinct")
	}
	for name, key := range names {
		if !isPlainName(name) {
			return fmt.Errorf("paths.%s must be a plain file name, got %q", key, name)
		}
	}

	if !strings.HasSuffix(c.Paths.ArtifactName, compressionSuffix(c.Package.Compression)) &&
		!(c.Package.Compression == CompressionGzip && strings.HasSuffix(c.Paths.ArtifactName, ".tgz")) {
		return fmt.Errorf("paths.artifact_name %q does not match compression %s (want a %s suffix)",
			c.Paths.ArtifactName, c.Package.Compression, compressionSuffix(c.Package.Compression))
	}

	seen := make(map[string]bool)
	manifestListed := false
	for i, aux := range c.Auxiliary {
		if aux.From != FromTool && aux.From != FromSource {
			return fmt.Errorf("auxiliary[%d]: from must be %q or %q, got %q", i, FromTool, FromSource, aux.From)
		}
		if aux.Path == "" {
			return fmt.Errorf("auxiliary[%d]: path is empty", i)
		}
		if !isPlainName(aux.Name) {
			return fmt.Errorf("auxiliary[%d]: name must be a plain file name, got %q", i, aux.Name)
		}
		if aux.Name == c.Paths.SourceDirName {
			return fmt.Errorf("auxiliary[%d]: name %q collides with the source directory", i, aux.Name)
		}
		if seen[aux.Name] {
			return fmt.Errorf("auxiliary[%d]: duplicate name %q", i, aux.Name)
		}
		seen[aux.Name] = true
		if aux.Name == c.Manifest.Name {
			manifestListed = true
		}
	}
	if !manifestListed {
		return fmt.Errorf("manifest %q is not among the auxiliary files", c.Manifest.Name)
	}

	return nil
}

func compressionSuffix(compression string) string {
	switch compression {
	case CompressionZstd:
		return ".zst"
	case CompressionXz:
		return ".xz"
	default:
		return ".gz"
	}
}

// ArtifactNameFor swaps the compression suffix of an artifact name for the
// one matching compression, so "kuzu-source.tar.gz" becomes
// "kuzu-source.tar.zst" under zstd. Names without a known suffix are
// returned unchanged.
func ArtifactNameFor(name, compression string) string {
	base := name
	switch {
	case strings.HasSuffix(name, ".tgz"):
		base = strings.TrimSuffix(name, ".tgz") + ".tar"
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tar.xz"):
		base = strings.TrimSuffix(name, filepath.Ext(name))
	case strings.HasSuffix(name, ".tar"):
	default:
		return name
	}
	return base + compressionSuffix(compression)
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
