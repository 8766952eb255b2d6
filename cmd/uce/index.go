package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run a full refresh of the project index",
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := eng.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	fmt.Printf("Refresh complete (generation %d, %s):\n", result.Generation, result.Duration.Round(time.Millisecond))
	fmt.Printf("  added:    %d\n", result.Added)
	fmt.Printf("  modified: %d\n", result.Modified)
	fmt.Printf("  cached:   %d\n", result.Cached)
	fmt.Printf("  removed:  %d\n", result.Removed)
	fmt.Printf("  reparsed: %d\n", len(result.Reparsed))
	return nil
}
