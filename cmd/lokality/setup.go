package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/lokality-ai/lokality/internal/config"
	"github.com/lokality-ai/lokality/internal/providers/llm"
	"github.com/lokality-ai/lokality/internal/providers/websearch"
	"github.com/lokality-ai/lokality/internal/service/assistant"
	"github.com/lokality-ai/lokality/internal/service/memory"
	"github.com/lokality-ai/lokality/internal/service/planner"
	"github.com/lokality-ai/lokality/internal/service/stats"
	"github.com/lokality-ai/lokality/internal/storage/sqlite"
	"github.com/lokality-ai/lokality/internal/transport/cli"
	"github.com/lokality-ai/lokality/pkg/log"
	"github.com/lokality-ai/lokality/pkg/srv"
)

func NewServices(ctx context.Context, stop context.CancelFunc) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	if err := initEnv(ctx, config.DefaultRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	appCfg := config.NewAppConfig(ctx)

	// Storage
	store, err := sqlite.NewFactStore(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize fact store")
	}
	services = append(services, srv.NewCleanup(store.Close))

	// AI provider
	provider, err := llm.NewOllama(appCfg.OllamaHost, appCfg.Model)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize ollama provider")
	}

	plan := planner.New(provider, planner.SystemProbe{})

	// First run on a fresh machine: pick and pull a model sized to the GPU.
	_, vramMB := planner.SystemProbe{}.Resources(ctx)
	model, err := provider.EnsureModel(ctx, vramMB)
	if err != nil {
		logger.Fatal().Err(err).Msg("no usable model available")
	}
	appCfg.Model = model
	provider.Warmup(ctx)

	extractor := memory.NewExtractor(store, provider, func(ctx context.Context) int {
		return plan.SafeContextSize(ctx, model, appCfg.ContextWindow)
	})

	chat := assistant.New(assistant.Config{
		Repo:          store,
		AI:            provider,
		Search:        websearch.NewDuckDuckGo(),
		Planner:       plan,
		Extractor:     extractor,
		Model:         model,
		ContextWindow: appCfg.ContextWindow,
	})
	if err := chat.RefreshSystemPrompt(ctx, ""); err != nil {
		logger.Warn().Err(err).Msg("initial system prompt build failed")
	}

	collector := &stats.Collector{Model: model, Repo: store, Intr: provider}

	repl, err := cli.NewReadLine(chat, collector, appCfg, stop)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize terminal chat")
	}
	services = append(services, repl)

	return services
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
