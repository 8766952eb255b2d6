package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index state for the current branch",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ix := eng.Indexer()
	stats := ix.Stats()
	git := ix.Git()

	fmt.Printf("branch:     %s\n", eng.Branch())
	if git.Commit != "" {
		fmt.Printf("commit:     %.8s (dirty=%v)\n", git.Commit, git.Dirty)
	}
	fmt.Printf("generation: %d\n", ix.Generation())
	fmt.Printf("files:      %d\n", stats.TotalFiles)
	fmt.Printf("symbols:    %d\n", stats.TotalSymbols)
	fmt.Printf("chunks:     %d\n", stats.TotalChunks)
	if stats.TotalErrors > 0 {
		fmt.Printf("errors:     %d\n", stats.TotalErrors)
	}

	if len(stats.Languages) > 0 {
		langs := make([]string, 0, len(stats.Languages))
		for l := range stats.Languages {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		fmt.Println("languages:")
		for _, l := range langs {
			fmt.Printf("  %-12s %d\n", l, stats.Languages[l])
		}
	}
	return nil
}
