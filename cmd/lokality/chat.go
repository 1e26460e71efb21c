package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lokality-ai/lokality/pkg/log"
	"github.com/lokality-ai/lokality/pkg/srv"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  `Opens the terminal chat. Pulls a default model sized to your hardware on first run if none is installed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting lokality")

		services := NewServices(ctx, stop)

		srv.StartServices(ctx, services)
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("lokality has been shut down gracefully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
