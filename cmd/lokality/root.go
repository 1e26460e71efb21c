package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lokality-ai/lokality/internal/config"
	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:     "lokality",
	Short:   "Lokality, a private fully local AI assistant",
	Long:    `Lokality is a local AI chat assistant with persistent memory, live web search, and adaptive resource planning. Everything runs on your machine.`,
	Version: core.Version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	return log.NewContextWithLogger(ctx, debug || config.IsDebug())
}
