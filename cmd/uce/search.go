package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid search over indexed chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	results, err := eng.Search(cmd.Context(), query, searchLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}

	for i, r := range results {
		c := r.Chunk
		name := c.PrimarySymbol
		if name == "" {
			name = c.Kind
		}
		fmt.Printf("%2d. %s:%d-%d  %s  (score %.4f, sparse %.3f, dense %.3f)\n",
			i+1, c.File, c.StartLine, c.EndLine, name, r.Score, r.SparseScore, r.DenseScore)
	}
	return nil
}
