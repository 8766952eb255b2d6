package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ucengine/uce/internal/config"
	"github.com/ucengine/uce/internal/engine"
)

var (
	flagProject string
	flagConfig  string
	flagUser    string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "uce",
	Short: "Incremental code intelligence and context retrieval",
	Long:  `Maintain a persistent index of a source tree and retrieve token-budgeted context for natural-language queries.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("uce v0.3.0")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", ".", "project root")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default <project>/.uce.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "user id for snapshot partitioning")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	root, err := filepath.Abs(flagProject)
	if err != nil {
		return nil, fmt.Errorf("invalid project path: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}

	path := flagConfig
	if path == "" {
		path = filepath.Join(root, ".uce.yaml")
	}
	cfg, err := config.Load(path, root)
	if err != nil {
		return nil, err
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openEngine() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg, engine.Options{Logger: newLogger()})
}
