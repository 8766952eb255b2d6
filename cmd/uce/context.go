package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ucengine/uce/internal/engine"
)

var (
	contextMaxTokens int
	contextPriority  []string
)

var contextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Assemble a token-budgeted context for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runContext,
}

func init() {
	contextCmd.Flags().IntVar(&contextMaxTokens, "max-tokens", 0, "override the token budget")
	contextCmd.Flags().StringSliceVar(&contextPriority, "priority", nil, "files to prioritize")
	rootCmd.AddCommand(contextCmd)
}

func runContext(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Context(cmd.Context(), query, engine.ContextOptions{
		MaxTokens:     contextMaxTokens,
		PriorityFiles: contextPriority,
	})
	if err != nil {
		return err
	}

	sel := res.Selection
	if len(sel.Chunks) == 0 {
		fmt.Println("no context fits the budget")
		return nil
	}

	for _, c := range sel.Chunks {
		fmt.Printf("--- %s:%d-%d", c.File, c.StartLine, c.EndLine)
		if len(c.Symbols) > 0 {
			fmt.Printf("  [%s]", strings.Join(c.Symbols, ", "))
		}
		fmt.Println()
	}
	fmt.Printf("\n%d chunks, %d tokens used, %d remaining, %d files, avg score %.3f\n",
		len(sel.Chunks), sel.TotalTokens, sel.Remaining, len(sel.Files), sel.AvgScore)
	return nil
}
