package main

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/srcpack/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded packaging runs",
		Long: `List recorded packaging runs, newest first. Each run shows its status,
the resolved version, the exported commit and the artifact size. Failed runs
show the error that stopped them.`,
		Example: `  srcpack history
  srcpack history --limit 5`,
		Args: cobra.NoArgs,
		RunE: historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show (0 for all)")

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("run history not available")
	}

	runs, err := globalStore.ListRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No packaging runs recorded.")
		return nil
	}

	fmt.Println("Packaging History")
	fmt.Println("=================")
	fmt.Println("")
	fmt.Printf("%-10s %-17s %-10s %-12s %-10s %10s\n", "Run", "Started", "Status", "Version", "Commit", "Size")
	fmt.Println(strings.Repeat("-", 74))

	for _, run := range runs {
		fmt.Printf("%-10s %-17s %-10s %-12s %-10s %10s\n",
			shortID(run.RunID, 8),
			run.StartTime.Local().Format("2006-01-02 15:04"),
			run.Status,
			versionLabel(run),
			shortID(run.Commit, 10),
			sizeLabel(run),
		)
		if run.Status == store.RunStatusFailed && run.ErrorMessage != "" {
			fmt.Printf("  error: %s\n", run.ErrorMessage)
		}
	}

	if last, err := globalStore.LastCompletedRun(); err == nil {
		fmt.Println("")
		fmt.Printf("Last successful run: %s (%s)\n", humanize.Time(last.EndTime), last.ArtifactPath)
	}

	return nil
}

func shortID(id string, n int) string {
	if id == "" {
		return "-"
	}
	if len(id) > n {
		return id[:n]
	}
	return id
}

func versionLabel(run store.PackageRun) string {
	switch {
	case run.Version != "":
		return run.Version
	case run.Status == store.RunStatusCompleted:
		return "(template)"
	default:
		return "-"
	}
}

func sizeLabel(run store.PackageRun) string {
	if run.Status != store.RunStatusCompleted {
		return "-"
	}
	return humanize.Bytes(uint64(run.ArtifactSize))
}
