package main

import (
	"fmt"

	"github.com/BadgerOps/srcpack/internal/engine"
	"github.com/spf13/cobra"
)

func newResolveVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve-version",
		Short: "Print the host project version",
		Long: `Print the version the next pack run would stamp into the manifest. The
version is the third field of the first line of the build configuration that
contains the configured marker.

Exits nonzero when no line contains the marker.`,
		Example: `  srcpack resolve-version
  srcpack resolve-version --source-root /src/kuzu`,
		Args: cobra.NoArgs,
		RunE: resolveVersionRun,
	}

	return cmd
}

func resolveVersionRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	layout, err := globalCfg.Resolve()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	version, found, err := engine.ResolveVersion(layout.VersionFile, globalCfg.Version.Marker)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no line containing %q in %s", engine.ErrVersionNotFound, globalCfg.Version.Marker, layout.VersionFile)
	}

	fmt.Println(version)
	return nil
}
