// Package main provides the lectern CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/richinex/lectern/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider   string
	configPath string
	dbPath     string
	offline    bool
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "lectern",
		Short: "Question answering over your documents with per-document tools",
		Long: `Lectern indexes a small set of documents and answers questions about them.

Each document gets a vector index for specific facts and a summary index
for whole-document questions; an agent picks the right tools per question.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "openai", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path for the index cache")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the local hashing embedder instead of the OpenAI API")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show tool activity and token usage")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(clearCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.Provider = provider
	opts.ConfigPath = configPath
	opts.DBPath = dbPath
	opts.Offline = offline
	opts.Verbose = verbose
	return opts
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Index documents and build their query tools",
		Long: `Index one or more text documents.

Each document is chunked, embedded, and summarized lazily; indices are
cached in the database so a re-run with unchanged documents is free.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ingest(context.Background(), args, options())
		},
	}
}

func askCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question over the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := options()
			opts.Timeout = timeout
			return cli.Ask(context.Background(), args[0], opts)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout for one question")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List indexed documents and their tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Status(context.Background(), options())
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every indexed document from the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Clear(context.Background(), options())
		},
	}
}
